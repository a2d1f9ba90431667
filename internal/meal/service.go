package meal

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

// Service owns the meals store. Every successful write captures its
// event in the outbox inside the same transaction; publication happens
// later via the sweeper, never inline.
type Service struct {
	db     *gorm.DB
	log    *zap.Logger
	genID  *snowflake.Node
	outbox *outbox.Outbox
}

func NewService(p ServiceParam) *Service {
	return &Service{
		db:     p.DB,
		log:    p.Log.Named("meal.service"),
		genID:  p.GenID,
		outbox: p.Outbox,
	}
}

// Create validates and stores a meal, enqueueing meal.created.
func (s *Service) Create(ctx context.Context, req CreateMealRequest) (*Meal, error) {
	if req.UserID == 0 {
		return nil, ErrInvalidUser
	}
	if !validMealType(req.MealType) {
		return nil, ErrInvalidMealType
	}
	if req.Calories < 0 {
		return nil, ErrInvalidCalories
	}
	mealDate, err := time.ParseInLocation(events.DateLayout, req.MealDate, time.UTC)
	if err != nil {
		return nil, ErrInvalidDate
	}

	now := time.Now().UTC()
	record := &Meal{
		ID:        s.genID.Generate(),
		UserID:    req.UserID,
		MealDate:  mealDate,
		MealType:  req.MealType,
		Calories:  req.Calories,
		ProteinG:  req.ProteinG,
		CarbsG:    req.CarbsG,
		FatG:      req.FatG,
		FiberG:    req.FiberG,
		CreatedAt: now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(record).Error; err != nil {
			return err
		}
		env := envelopeFor(events.EventMealCreated, record.UserID, now)
		return s.outbox.Enqueue(ctx, tx, env, wireRecord(env, record))
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("meal created",
		zap.String("meal_id", record.ID.String()),
		zap.Int64("user_id", record.UserID),
		zap.String("meal_date", req.MealDate),
	)
	return record, nil
}

// Delete removes a meal and enqueues meal.deleted carrying the same
// totals the creation event published. The snapshot is taken before
// the destructive delete so the inverse delta is always recoverable.
func (s *Service) Delete(ctx context.Context, userID int64, mealID snowflake.ID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var record Meal
		err := tx.Where("id = ? AND user_id = ?", mealID, userID).First(&record).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrMealNotFound
			}
			return err
		}

		if err := tx.Delete(&Meal{}, "id = ?", record.ID).Error; err != nil {
			return err
		}

		now := time.Now().UTC()
		env := envelopeFor(events.EventMealDeleted, record.UserID, now)
		return s.outbox.Enqueue(ctx, tx, env, wireRecord(env, &record))
	})
}

// Get returns one meal.
func (s *Service) Get(ctx context.Context, userID int64, mealID snowflake.ID) (*Meal, error) {
	var record Meal
	err := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", mealID, userID).
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMealNotFound
		}
		return nil, err
	}
	return &record, nil
}

// ListByDate returns the meals logged for one date.
func (s *Service) ListByDate(ctx context.Context, userID int64, date time.Time) ([]Meal, error) {
	var records []Meal
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND meal_date = ?", userID, date).
		Order("created_at ASC").
		Find(&records).Error
	return records, err
}

func envelopeFor(eventType string, userID int64, at time.Time) events.Envelope {
	return events.NewEnvelope(uuid.NewString(), eventType, userID, at)
}

func wireRecord(env events.Envelope, record *Meal) events.MealEvent {
	return events.MealEvent{
		Envelope: env,
		MealID:   int64(record.ID),
		MealDate: record.MealDate.UTC().Format(events.DateLayout),
		MealType: record.MealType,
		Calories: record.Calories,
		ProteinG: record.ProteinG,
		CarbsG:   record.CarbsG,
		FatG:     record.FatG,
		FiberG:   record.FiberG,
	}
}
