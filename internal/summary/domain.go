package summary

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrAlreadyApplied reports that the event_id is present in the
	// applied-event ledger. Redeliveries terminate here.
	ErrAlreadyApplied = errors.New("summary: event already applied")
)

// DailySummary is the per-user, per-day rollup. It is created lazily
// on the first event for (user, date) and never deleted; subtracted
// deltas may drive totals to zero or transiently below it, but the
// row remains.
type DailySummary struct {
	ID                 int64           `json:"-" gorm:"primaryKey;autoIncrement"`
	UserID             int64           `json:"user_id" gorm:"column:user_id;not null;uniqueIndex:ux_daily_summary_user_date,priority:1"`
	Date               time.Time       `json:"date" gorm:"type:date;not null;uniqueIndex:ux_daily_summary_user_date,priority:2"`
	CaloriesIn         int             `json:"calories_in" gorm:"not null;default:0"`
	CaloriesOut        int             `json:"calories_out" gorm:"not null;default:0"`
	ProteinG           decimal.Decimal `json:"protein_g" gorm:"type:decimal(10,2);not null;default:0"`
	CarbsG             decimal.Decimal `json:"carbs_g" gorm:"type:decimal(10,2);not null;default:0"`
	FatG               decimal.Decimal `json:"fat_g" gorm:"type:decimal(10,2);not null;default:0"`
	FiberG             decimal.Decimal `json:"fiber_g" gorm:"type:decimal(10,2);not null;default:0"`
	MealCount          int             `json:"meal_count" gorm:"not null;default:0"`
	WorkoutCount       int             `json:"workout_count" gorm:"not null;default:0"`
	WorkoutMinutes     int             `json:"workout_minutes" gorm:"not null;default:0"`
	Revision           int64           `json:"revision" gorm:"not null;default:0"`
	LastAppliedEventAt *time.Time      `json:"last_applied_event_at"`
	UpdatedAt          time.Time       `json:"updated_at" gorm:"not null"`
}

// TableName sets the database table name.
func (DailySummary) TableName() string { return "daily_summary" }

// NetCalories is derived, never stored.
func (s DailySummary) NetCalories() int { return s.CaloriesIn - s.CaloriesOut }

// AppliedEvent is the processed-event ledger: a unique index of every
// event_id ever applied to the rollup. It is the sole idempotency
// mechanism and is written in the same transaction as the delta it
// authorizes.
type AppliedEvent struct {
	EventID   string    `json:"event_id" gorm:"primaryKey;type:text"`
	UserID    int64     `json:"user_id" gorm:"column:user_id;not null;index"`
	Date      time.Time `json:"date" gorm:"type:date;not null"`
	AppliedAt time.Time `json:"applied_at" gorm:"not null"`
}

// TableName sets the database table name.
func (AppliedEvent) TableName() string { return "applied_event" }

// Delta is the rollup change computed from one event. Deletion events
// carry the inverse of their creation sibling, so any interleaving of
// the two converges to the same totals. The delta path never clamps:
// clamping a transiently negative total would prevent the late-arriving
// creation event from restoring it.
type Delta struct {
	CaloriesIn     int
	CaloriesOut    int
	ProteinG       decimal.Decimal
	CarbsG         decimal.Decimal
	FatG           decimal.Decimal
	FiberG         decimal.Decimal
	MealCount      int
	WorkoutCount   int
	WorkoutMinutes int
}

// Negate returns the inverse delta.
func (d Delta) Negate() Delta {
	return Delta{
		CaloriesIn:     -d.CaloriesIn,
		CaloriesOut:    -d.CaloriesOut,
		ProteinG:       d.ProteinG.Neg(),
		CarbsG:         d.CarbsG.Neg(),
		FatG:           d.FatG.Neg(),
		FiberG:         d.FiberG.Neg(),
		MealCount:      -d.MealCount,
		WorkoutCount:   -d.WorkoutCount,
		WorkoutMinutes: -d.WorkoutMinutes,
	}
}

// DateOf normalizes a timestamp to its UTC calendar date.
func DateOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD wire date.
func ParseDate(value string) (time.Time, error) {
	return time.ParseInLocation("2006-01-02", value, time.UTC)
}
