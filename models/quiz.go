package models

import (
	"time"

	"gorm.io/gorm"
)

type Quiz struct {
	ID        uint           `json:"id" gorm:"primaryKey"`
	Title     string         `json:"title" gorm:"not null"`
	Subject   string         `json:"subject" gorm:"not null"`
	Duration  int            `json:"duration" gorm:"not null"` // minutes, solo mode only
	UserID    uint           `json:"user_id" gorm:"not null"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	// Relationships
	User      User       `json:"user,omitempty"`
	Questions []Question `json:"questions,omitempty" gorm:"foreignKey:QuizID"`
}

// TotalPoints is the sum of all question point values. Arena results use
// this as the denominator even when a session ends before every question
// is reached.
func (q *Quiz) TotalPoints() int {
	total := 0
	for _, question := range q.Questions {
		total += question.Points
	}
	return total
}
