package workout

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/vitalhq/pulse/internal/events"
	"github.com/vitalhq/pulse/internal/outbox"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	GenID  *snowflake.Node
	Outbox *outbox.Outbox
}

// Service owns the workouts store and its status state machine. Only
// the IN_PROGRESS -> COMPLETED transition and the deletion of a
// COMPLETED workout publish events.
type Service struct {
	db     *gorm.DB
	log    *zap.Logger
	genID  *snowflake.Node
	outbox *outbox.Outbox
}

func NewService(p ServiceParam) *Service {
	return &Service{
		db:     p.DB,
		log:    p.Log.Named("workout.service"),
		genID:  p.GenID,
		outbox: p.Outbox,
	}
}

// Start opens an IN_PROGRESS workout. No event is emitted; a workout
// that never reaches COMPLETED stays invisible to the rollup.
func (s *Service) Start(ctx context.Context, req StartWorkoutRequest) (*Workout, error) {
	if req.UserID == 0 {
		return nil, ErrInvalidUser
	}
	workoutDate, err := time.ParseInLocation(events.DateLayout, req.WorkoutDate, time.UTC)
	if err != nil {
		return nil, ErrInvalidDate
	}

	record := &Workout{
		ID:          s.genID.Generate(),
		UserID:      req.UserID,
		WorkoutDate: workoutDate,
		WorkoutType: req.WorkoutType,
		Status:      StatusInProgress,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(record).Error; err != nil {
		return nil, err
	}
	return record, nil
}

// Complete transitions IN_PROGRESS -> COMPLETED and enqueues
// workout.completed in the same transaction as the status write.
func (s *Service) Complete(ctx context.Context, userID int64, workoutID snowflake.ID, req CompleteWorkoutRequest) (*Workout, error) {
	if req.DurationMinutes <= 0 {
		return nil, ErrInvalidDuration
	}

	var record Workout
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.load(tx, userID, workoutID, &record); err != nil {
			return err
		}
		if record.Status != StatusInProgress {
			return ErrInvalidTransition
		}

		now := time.Now().UTC()
		record.Status = StatusCompleted
		record.DurationMinutes = req.DurationMinutes
		record.CaloriesBurned = req.CaloriesBurned
		record.CompletedAt = &now

		if err := tx.Model(&Workout{}).Where("id = ?", record.ID).Updates(map[string]any{
			"status":           record.Status,
			"duration_minutes": record.DurationMinutes,
			"calories_burned":  record.CaloriesBurned,
			"completed_at":     now,
		}).Error; err != nil {
			return err
		}

		env := envelopeFor(events.EventWorkoutCompleted, record.UserID, now)
		return s.outbox.Enqueue(ctx, tx, env, wireRecord(env, &record))
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("workout completed",
		zap.String("workout_id", record.ID.String()),
		zap.Int64("user_id", record.UserID),
		zap.Int("duration_minutes", record.DurationMinutes),
	)
	return &record, nil
}

// Cancel transitions IN_PROGRESS -> CANCELLED. Nothing is published.
func (s *Service) Cancel(ctx context.Context, userID int64, workoutID snowflake.ID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var record Workout
		if err := s.load(tx, userID, workoutID, &record); err != nil {
			return err
		}
		if record.Status != StatusInProgress {
			return ErrInvalidTransition
		}
		return tx.Model(&Workout{}).Where("id = ?", record.ID).
			Update("status", StatusCancelled).Error
	})
}

// Delete removes a workout. Deleting a COMPLETED one enqueues
// workout.deleted carrying the same totals workout.completed carried,
// snapshotted before the row goes away.
func (s *Service) Delete(ctx context.Context, userID int64, workoutID snowflake.ID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var record Workout
		if err := s.load(tx, userID, workoutID, &record); err != nil {
			return err
		}

		if err := tx.Delete(&Workout{}, "id = ?", record.ID).Error; err != nil {
			return err
		}

		if record.Status != StatusCompleted {
			return nil
		}

		now := time.Now().UTC()
		env := envelopeFor(events.EventWorkoutDeleted, record.UserID, now)
		return s.outbox.Enqueue(ctx, tx, env, wireRecord(env, &record))
	})
}

// Get returns one workout.
func (s *Service) Get(ctx context.Context, userID int64, workoutID snowflake.ID) (*Workout, error) {
	var record Workout
	if err := s.load(s.db.WithContext(ctx), userID, workoutID, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

func (s *Service) load(tx *gorm.DB, userID int64, workoutID snowflake.ID, dst *Workout) error {
	err := tx.Where("id = ? AND user_id = ?", workoutID, userID).First(dst).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrWorkoutNotFound
		}
		return err
	}
	return nil
}

func envelopeFor(eventType string, userID int64, at time.Time) events.Envelope {
	return events.NewEnvelope(uuid.NewString(), eventType, userID, at)
}

func wireRecord(env events.Envelope, record *Workout) events.WorkoutEvent {
	return events.WorkoutEvent{
		Envelope:        env,
		WorkoutID:       int64(record.ID),
		WorkoutDate:     record.WorkoutDate.UTC().Format(events.DateLayout),
		DurationMinutes: record.DurationMinutes,
		CaloriesBurned:  record.CaloriesBurned,
		WorkoutType:     record.WorkoutType,
	}
}
