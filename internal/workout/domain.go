package workout

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

var (
	ErrInvalidUser       = errors.New("workout: invalid user")
	ErrInvalidDate       = errors.New("workout: invalid workout date")
	ErrInvalidDuration   = errors.New("workout: duration must be positive")
	ErrWorkoutNotFound   = errors.New("workout: not found")
	ErrInvalidTransition = errors.New("workout: invalid status transition")
)

// Workout statuses. IN_PROGRESS may move to COMPLETED (which emits
// workout.completed) or CANCELLED (which emits nothing). Deleting a
// COMPLETED workout emits workout.deleted; deleting anything else is
// silent.
const (
	StatusInProgress = "IN_PROGRESS"
	StatusCompleted  = "COMPLETED"
	StatusCancelled  = "CANCELLED"
)

// Workout is one tracked session.
type Workout struct {
	ID              snowflake.ID `json:"id" gorm:"primaryKey"`
	UserID          int64        `json:"user_id" gorm:"column:user_id;not null;index:idx_workouts_user_date,priority:1"`
	WorkoutDate     time.Time    `json:"workout_date" gorm:"type:date;not null;index:idx_workouts_user_date,priority:2"`
	WorkoutType     string       `json:"workout_type" gorm:"type:text;not null"`
	DurationMinutes int          `json:"duration_minutes" gorm:"not null;default:0"`
	CaloriesBurned  int          `json:"calories_burned" gorm:"not null;default:0"`
	Status          string       `json:"status" gorm:"type:text;not null;default:IN_PROGRESS"`

	CreatedAt   time.Time  `json:"created_at" gorm:"not null"`
	CompletedAt *time.Time `json:"completed_at"`
}

// TableName sets the database table name.
func (Workout) TableName() string { return "workouts" }

// StartWorkoutRequest opens an IN_PROGRESS session.
type StartWorkoutRequest struct {
	UserID      int64  `json:"user_id,string"`
	WorkoutDate string `json:"workout_date"`
	WorkoutType string `json:"workout_type"`
}

// CompleteWorkoutRequest closes a session with its final totals.
type CompleteWorkoutRequest struct {
	DurationMinutes int `json:"duration_minutes"`
	CaloriesBurned  int `json:"calories_burned"`
}
