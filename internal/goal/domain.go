package goal

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

var (
	ErrGoalNotFound      = errors.New("goal: not found")
	ErrInvalidKind       = errors.New("goal: invalid kind")
	ErrInvalidTarget     = errors.New("goal: target must differ from start")
	ErrInvalidTransition = errors.New("goal: invalid status transition")
)

// Goal kinds.
const (
	KindWeight  = "WEIGHT"
	KindCalorie = "CALORIE"
	KindWorkout = "WORKOUT"
	KindMacro   = "MACRO"
)

// Goal statuses. ACTIVE may move to COMPLETED, ABANDONED or PAUSED;
// PAUSED may resume to ACTIVE; COMPLETED and ABANDONED are terminal.
const (
	StatusActive    = "ACTIVE"
	StatusCompleted = "COMPLETED"
	StatusAbandoned = "ABANDONED"
	StatusPaused    = "PAUSED"
)

// Metrics selectable for WORKOUT and MACRO goals.
const (
	MetricWorkoutCount   = "workout_count"
	MetricWorkoutMinutes = "workout_minutes"
	MetricProteinG       = "protein_g"
	MetricCarbsG         = "carbs_g"
	MetricFatG           = "fat_g"
	MetricFiberG         = "fiber_g"
)

// defaultPeriodDays is the rolling window used when a goal does not
// set its own.
const defaultPeriodDays = 7

// Goal tracks progress from a start value toward a target value.
// current is derived per kind: latest weight observation for WEIGHT,
// rolling mean of the rollup field for CALORIE and MACRO, period sum
// for WORKOUT.
type Goal struct {
	ID          snowflake.ID    `json:"id" gorm:"primaryKey"`
	UserID      int64           `json:"user_id" gorm:"column:user_id;not null;index:idx_goals_user_status,priority:1"`
	Kind        string          `json:"kind" gorm:"type:text;not null"`
	Metric      string          `json:"metric" gorm:"type:text"`
	Target      decimal.Decimal `json:"target" gorm:"type:decimal(12,2);not null"`
	Start       decimal.Decimal `json:"start" gorm:"type:decimal(12,2);not null"`
	TargetDate  *time.Time      `json:"target_date" gorm:"type:date"`
	PeriodDays  int             `json:"period_days" gorm:"not null;default:7"`
	Status      string          `json:"status" gorm:"type:text;not null;default:ACTIVE;index:idx_goals_user_status,priority:2"`
	ProgressPct float64         `json:"progress_pct" gorm:"not null;default:0"`
	CreatedAt   time.Time       `json:"created_at" gorm:"not null"`
	UpdatedAt   time.Time       `json:"updated_at" gorm:"not null"`
	CompletedAt *time.Time      `json:"completed_at"`
}

// TableName sets the database table name.
func (Goal) TableName() string { return "goals" }

func (g Goal) terminal() bool {
	return g.Status == StatusCompleted || g.Status == StatusAbandoned
}

// CreateGoalRequest opens a new ACTIVE goal.
type CreateGoalRequest struct {
	UserID     int64           `json:"user_id,string"`
	Kind       string          `json:"kind"`
	Metric     string          `json:"metric"`
	Target     decimal.Decimal `json:"target"`
	Start      decimal.Decimal `json:"start"`
	TargetDate string          `json:"target_date"`
	PeriodDays int             `json:"period_days"`
}

// ProgressView is one goal's derived progress snapshot.
type ProgressView struct {
	GoalID      snowflake.ID    `json:"goal_id"`
	Kind        string          `json:"kind"`
	Metric      string          `json:"metric,omitempty"`
	Status      string          `json:"status"`
	Start       decimal.Decimal `json:"start"`
	Target      decimal.Decimal `json:"target"`
	Current     decimal.Decimal `json:"current"`
	ProgressPct float64         `json:"progress_pct"`
}

func validKind(value string) bool {
	switch value {
	case KindWeight, KindCalorie, KindWorkout, KindMacro:
		return true
	default:
		return false
	}
}
