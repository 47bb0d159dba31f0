package models

import (
	"time"

	"gorm.io/gorm"
)

const (
	QuestionTypeMCQ   = "mcq"
	QuestionTypeTF    = "tf"
	QuestionTypeShort = "short"
)

type Question struct {
	ID        uint           `json:"id" gorm:"primaryKey"`
	QuizID    uint           `json:"quiz_id" gorm:"not null"`
	Type      string         `json:"type" gorm:"not null;default:'mcq'"` // mcq, tf, short
	Text      string         `json:"text" gorm:"not null"`
	Answer    string         `json:"answer" gorm:"not null"` // never sent to clients before reveal
	Points    int            `json:"points" gorm:"not null;default:1"`
	TimeLimit int            `json:"time_limit" gorm:"not null;default:30"` // seconds
	Order     int            `json:"order" gorm:"not null"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	// Relationships
	Quiz    Quiz     `json:"quiz,omitempty"`
	Options []Option `json:"options,omitempty" gorm:"foreignKey:QuestionID"`
}

// OptionTexts returns the option strings in authored order.
func (q *Question) OptionTexts() []string {
	texts := make([]string, len(q.Options))
	for i, opt := range q.Options {
		texts[i] = opt.Text
	}
	return texts
}
