package replay

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vitalhq/pulse/internal/cache"
	"github.com/vitalhq/pulse/internal/summary"
	"github.com/vitalhq/pulse/internal/workout"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// maxWindowDays bounds one rebuild request.
const maxWindowDays = 366

var ErrWindowTooLarge = errors.New("replay: rebuild window too large")

type RebuilderParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Cache *cache.SummaryCache
}

// Rebuilder recomputes rollup rows from the domain tables instead of
// the event stream. It is the escape hatch for corrupted or drifted
// summaries: the meals and workouts tables are the source of truth, so
// a rebuilt row is correct regardless of what events were lost or
// double-applied.
type Rebuilder struct {
	db    *gorm.DB
	log   *zap.Logger
	cache *cache.SummaryCache
}

func NewRebuilder(p RebuilderParam) *Rebuilder {
	return &Rebuilder{
		db:    p.DB,
		log:   p.Log.Named("replay"),
		cache: p.Cache,
	}
}

type dayTotals struct {
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

// Rebuild overwrites the rollup rows for (user, start..end) with totals
// recomputed from meals and completed workouts. Revision keeps
// increasing so readers can still detect the change.
func (r *Rebuilder) Rebuild(ctx context.Context, userID int64, start, end time.Time) (int, error) {
	start = summary.DateOf(start)
	end = summary.DateOf(end)
	if end.Before(start) {
		start, end = end, start
	}
	days := int(end.Sub(start).Hours()/24) + 1
	if days > maxWindowDays {
		return 0, fmt.Errorf("%w: %d days", ErrWindowTooLarge, days)
	}

	rebuilt := 0
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
			totals, err := r.recompute(tx, userID, d)
			if err != nil {
				return err
			}
			if err := r.overwrite(tx, userID, d, totals); err != nil {
				return err
			}
			rebuilt++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		r.cache.Invalidate(ctx, userID, d)
	}

	r.log.Info("rollup rebuilt",
		zap.Int64("user_id", userID),
		zap.String("start", start.Format("2006-01-02")),
		zap.String("end", end.Format("2006-01-02")),
		zap.Int("days", rebuilt),
	)
	return rebuilt, nil
}

func (r *Rebuilder) recompute(tx *gorm.DB, userID int64, date time.Time) (dayTotals, error) {
	var meals struct {
		Calories int
		ProteinG decimal.Decimal
		CarbsG   decimal.Decimal
		FatG     decimal.Decimal
		FiberG   decimal.Decimal
		Count    int
	}
	err := tx.Raw(
		`SELECT
			COALESCE(SUM(calories), 0) AS calories,
			COALESCE(SUM(protein_g), 0) AS protein_g,
			COALESCE(SUM(carbs_g), 0) AS carbs_g,
			COALESCE(SUM(fat_g), 0) AS fat_g,
			COALESCE(SUM(fiber_g), 0) AS fiber_g,
			COUNT(*) AS count
		FROM meals
		WHERE user_id = ? AND meal_date = ?`,
		userID, date,
	).Scan(&meals).Error
	if err != nil {
		return dayTotals{}, err
	}

	var workouts struct {
		CaloriesBurned  int
		DurationMinutes int
		Count           int
	}
	err = tx.Raw(
		`SELECT
			COALESCE(SUM(calories_burned), 0) AS calories_burned,
			COALESCE(SUM(duration_minutes), 0) AS duration_minutes,
			COUNT(*) AS count
		FROM workouts
		WHERE user_id = ? AND workout_date = ? AND status = ?`,
		userID, date, workout.StatusCompleted,
	).Scan(&workouts).Error
	if err != nil {
		return dayTotals{}, err
	}

	return dayTotals{
		CaloriesIn:     meals.Calories,
		CaloriesOut:    workouts.CaloriesBurned,
		ProteinG:       meals.ProteinG,
		CarbsG:         meals.CarbsG,
		FatG:           meals.FatG,
		FiberG:         meals.FiberG,
		MealCount:      meals.Count,
		WorkoutCount:   workouts.Count,
		WorkoutMinutes: workouts.DurationMinutes,
	}, nil
}

func (r *Rebuilder) overwrite(tx *gorm.DB, userID int64, date time.Time, totals dayTotals) error {
	now := time.Now().UTC()
	if strings.EqualFold(tx.Dialector.Name(), "mysql") {
		return r.overwriteMySQL(tx, userID, date, totals, now)
	}
	return tx.Exec(
		`INSERT INTO daily_summary (
			user_id, date, calories_in, calories_out,
			protein_g, carbs_g, fat_g, fiber_g,
			meal_count, workout_count, workout_minutes,
			revision, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?)
		ON CONFLICT (user_id, date) DO UPDATE SET
			calories_in = excluded.calories_in,
			calories_out = excluded.calories_out,
			protein_g = excluded.protein_g,
			carbs_g = excluded.carbs_g,
			fat_g = excluded.fat_g,
			fiber_g = excluded.fiber_g,
			meal_count = excluded.meal_count,
			workout_count = excluded.workout_count,
			workout_minutes = excluded.workout_minutes,
			revision = daily_summary.revision + 1,
			updated_at = excluded.updated_at`,
		userID, date,
		totals.CaloriesIn, totals.CaloriesOut,
		totals.ProteinG, totals.CarbsG, totals.FatG, totals.FiberG,
		totals.MealCount, totals.WorkoutCount, totals.WorkoutMinutes,
		now,
	).Error
}

func (r *Rebuilder) overwriteMySQL(tx *gorm.DB, userID int64, date time.Time, totals dayTotals, now time.Time) error {
	return tx.Exec(
		`INSERT INTO daily_summary (
			user_id, date, calories_in, calories_out,
			protein_g, carbs_g, fat_g, fiber_g,
			meal_count, workout_count, workout_minutes,
			revision, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?)
		ON DUPLICATE KEY UPDATE
			calories_in = VALUES(calories_in),
			calories_out = VALUES(calories_out),
			protein_g = VALUES(protein_g),
			carbs_g = VALUES(carbs_g),
			fat_g = VALUES(fat_g),
			fiber_g = VALUES(fiber_g),
			meal_count = VALUES(meal_count),
			workout_count = VALUES(workout_count),
			workout_minutes = VALUES(workout_minutes),
			revision = revision + 1,
			updated_at = VALUES(updated_at)`,
		userID, date,
		totals.CaloriesIn, totals.CaloriesOut,
		totals.ProteinG, totals.CarbsG, totals.FatG, totals.FiberG,
		totals.MealCount, totals.WorkoutCount, totals.WorkoutMinutes,
		now,
	).Error
}

var Module = fx.Module("replay",
	fx.Provide(NewRebuilder),
)
