package models

import "time"

const (
	ResultModeSolo  = "solo"
	ResultModeArena = "live_arena"
)

// Result is one finished run of a quiz by one user, written once at solo
// submission or arena finalization. Percentage is rounded to one decimal.
type Result struct {
	ID            uint      `json:"id" gorm:"primaryKey"`
	QuizID        uint      `json:"quiz_id" gorm:"not null;index"`
	QuizTitle     string    `json:"quiz_title" gorm:"not null"` // snapshot, survives quiz deletion
	UserID        uint      `json:"user_id" gorm:"not null;index"`
	Username      string    `json:"username" gorm:"not null"` // snapshot
	Score         int       `json:"score" gorm:"not null"`
	TotalPossible int       `json:"total_possible" gorm:"not null"`
	Percentage    float64   `json:"percentage" gorm:"not null"`
	Mode          string    `json:"mode" gorm:"not null;default:'solo'"` // solo, live_arena
	CompletedAt   time.Time `json:"completed_at"`
	CreatedAt     time.Time `json:"created_at"`
}
