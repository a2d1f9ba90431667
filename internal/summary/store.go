package summary

import (
	"context"
	"strings"
	"time"

	"github.com/vitalhq/pulse/pkg/db"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Store owns the daily_summary table and the applied_event ledger.
// Correctness across consumer instances rests on two things only:
// per-partition exclusivity upstream, and the unique event_id
// constraint enforced here.
type Store struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewStore(conn *gorm.DB, log *zap.Logger) *Store {
	return &Store{
		db:  conn,
		log: log.Named("summary.store"),
	}
}

// UpsertDelta applies one event's delta inside a single local
// transaction: (a) record the event_id in the ledger, aborting with
// ErrAlreadyApplied on a duplicate; (b) insert-or-update the rollup
// row, adding each field and incrementing revision. The caller must
// not acknowledge the event before this commits.
func (s *Store) UpsertDelta(ctx context.Context, userID int64, date time.Time, delta Delta, eventID string, eventAt time.Time) error {
	date = DateOf(date)
	now := time.Now().UTC()

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ledger := AppliedEvent{
			EventID:   eventID,
			UserID:    userID,
			Date:      date,
			AppliedAt: now,
		}
		if err := tx.Create(&ledger).Error; err != nil {
			if db.IsDuplicateKeyErr(err) {
				return ErrAlreadyApplied
			}
			return err
		}

		return s.applyDelta(tx, userID, date, delta, eventAt, now)
	})
}

func (s *Store) applyDelta(tx *gorm.DB, userID int64, date time.Time, delta Delta, eventAt, now time.Time) error {
	if strings.EqualFold(tx.Dialector.Name(), "mysql") {
		return s.applyDeltaMySQL(tx, userID, date, delta, eventAt, now)
	}

	return tx.Exec(
		`INSERT INTO daily_summary (
			user_id, date, calories_in, calories_out,
			protein_g, carbs_g, fat_g, fiber_g,
			meal_count, workout_count, workout_minutes,
			revision, last_applied_event_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)
		ON CONFLICT (user_id, date) DO UPDATE SET
			calories_in = daily_summary.calories_in + excluded.calories_in,
			calories_out = daily_summary.calories_out + excluded.calories_out,
			protein_g = daily_summary.protein_g + excluded.protein_g,
			carbs_g = daily_summary.carbs_g + excluded.carbs_g,
			fat_g = daily_summary.fat_g + excluded.fat_g,
			fiber_g = daily_summary.fiber_g + excluded.fiber_g,
			meal_count = daily_summary.meal_count + excluded.meal_count,
			workout_count = daily_summary.workout_count + excluded.workout_count,
			workout_minutes = daily_summary.workout_minutes + excluded.workout_minutes,
			revision = daily_summary.revision + 1,
			last_applied_event_at = excluded.last_applied_event_at,
			updated_at = excluded.updated_at`,
		userID, date,
		delta.CaloriesIn, delta.CaloriesOut,
		delta.ProteinG, delta.CarbsG, delta.FatG, delta.FiberG,
		delta.MealCount, delta.WorkoutCount, delta.WorkoutMinutes,
		eventAt.UTC(), now,
	).Error
}

func (s *Store) applyDeltaMySQL(tx *gorm.DB, userID int64, date time.Time, delta Delta, eventAt, now time.Time) error {
	return tx.Exec(
		`INSERT INTO daily_summary (
			user_id, date, calories_in, calories_out,
			protein_g, carbs_g, fat_g, fiber_g,
			meal_count, workout_count, workout_minutes,
			revision, last_applied_event_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)
		ON DUPLICATE KEY UPDATE
			calories_in = calories_in + VALUES(calories_in),
			calories_out = calories_out + VALUES(calories_out),
			protein_g = protein_g + VALUES(protein_g),
			carbs_g = carbs_g + VALUES(carbs_g),
			fat_g = fat_g + VALUES(fat_g),
			fiber_g = fiber_g + VALUES(fiber_g),
			meal_count = meal_count + VALUES(meal_count),
			workout_count = workout_count + VALUES(workout_count),
			workout_minutes = workout_minutes + VALUES(workout_minutes),
			revision = revision + 1,
			last_applied_event_at = VALUES(last_applied_event_at),
			updated_at = VALUES(updated_at)`,
		userID, date,
		delta.CaloriesIn, delta.CaloriesOut,
		delta.ProteinG, delta.CarbsG, delta.FatG, delta.FiberG,
		delta.MealCount, delta.WorkoutCount, delta.WorkoutMinutes,
		eventAt.UTC(), now,
	).Error
}

// EnsureNamespace creates a blank rollup row for a freshly registered
// user. The insert is naturally idempotent and does not touch revision:
// no delta has been applied yet.
func (s *Store) EnsureNamespace(ctx context.Context, userID int64, date time.Time) error {
	date = DateOf(date)
	now := time.Now().UTC()

	row := DailySummary{
		UserID:    userID,
		Date:      date,
		UpdatedAt: now,
	}
	err := s.db.WithContext(ctx).Create(&row).Error
	if err != nil && db.IsDuplicateKeyErr(err) {
		return nil
	}
	return err
}

// Read returns the rollup row for (user, date), or a zero-valued row
// when none exists. Missing dates are never an error.
func (s *Store) Read(ctx context.Context, userID int64, date time.Time) (DailySummary, error) {
	date = DateOf(date)

	var row DailySummary
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND date = ?", userID, date).
		First(&row).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return zeroRow(userID, date), nil
		}
		return DailySummary{}, err
	}
	return row, nil
}

// ReadRange returns one row per date from start to end inclusive, in
// date order, with zero-valued rows filling the gaps. The result
// always has exactly (end-start+1) entries.
func (s *Store) ReadRange(ctx context.Context, userID int64, start, end time.Time) ([]DailySummary, error) {
	start = DateOf(start)
	end = DateOf(end)
	if end.Before(start) {
		start, end = end, start
	}

	var rows []DailySummary
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND date >= ? AND date <= ?", userID, start, end).
		Order("date ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	byDate := make(map[string]DailySummary, len(rows))
	for _, row := range rows {
		byDate[DateOf(row.Date).Format("2006-01-02")] = row
	}

	days := int(end.Sub(start).Hours()/24) + 1
	out := make([]DailySummary, 0, days)
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if row, ok := byDate[d.Format("2006-01-02")]; ok {
			out = append(out, row)
		} else {
			out = append(out, zeroRow(userID, d))
		}
	}
	return out, nil
}

func zeroRow(userID int64, date time.Time) DailySummary {
	return DailySummary{UserID: userID, Date: date}
}
