package user

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/vitalhq/pulse/internal/events"
	"github.com/vitalhq/pulse/internal/outbox"
	"github.com/vitalhq/pulse/pkg/db"
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

// Service owns the identity store: users and weight observations.
type Service struct {
	db     *gorm.DB
	log    *zap.Logger
	genID  *snowflake.Node
	outbox *outbox.Outbox
}

func NewService(p ServiceParam) *Service {
	return &Service{
		db:     p.DB,
		log:    p.Log.Named("user.service"),
		genID:  p.GenID,
		outbox: p.Outbox,
	}
}

// Register creates a user and enqueues user.registered, which the
// consumer uses to set up a blank rollup namespace.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*User, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, ErrInvalidEmail
	}

	now := time.Now().UTC()
	record := &User{
		ID:        s.genID.Generate(),
		Email:     email,
		FirstName: strings.TrimSpace(req.FirstName),
		LastName:  strings.TrimSpace(req.LastName),
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(record).Error; err != nil {
			if db.IsDuplicateKeyErr(err) {
				return ErrEmailTaken
			}
			return err
		}
		env := events.NewEnvelope(uuid.NewString(), events.EventUserRegistered, int64(record.ID), now)
		return s.outbox.Enqueue(ctx, tx, env, events.RegisteredEvent{
			Envelope:     env,
			Email:        record.Email,
			FirstName:    record.FirstName,
			LastName:     record.LastName,
			RegisteredAt: now,
		})
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("user registered", zap.String("user_id", record.ID.String()))
	return record, nil
}

// RecordWeight stores a weight observation and enqueues
// user.weight_updated. The event carries no rollup delta; the consumer
// hands it straight to goal derivation.
func (s *Service) RecordWeight(ctx context.Context, req RecordWeightRequest) (*WeightEntry, error) {
	if req.UserID == 0 {
		return nil, ErrUserNotFound
	}
	if !req.WeightKg.IsPositive() {
		return nil, ErrInvalidWeight
	}
	recordedDate, err := time.ParseInLocation(events.DateLayout, req.RecordedDate, time.UTC)
	if err != nil {
		return nil, ErrInvalidDate
	}

	now := time.Now().UTC()
	record := &WeightEntry{
		ID:           s.genID.Generate(),
		UserID:       req.UserID,
		WeightKg:     req.WeightKg,
		RecordedDate: recordedDate,
		CreatedAt:    now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(record).Error; err != nil {
			return err
		}
		env := events.NewEnvelope(uuid.NewString(), events.EventWeightUpdated, record.UserID, now)
		return s.outbox.Enqueue(ctx, tx, env, events.WeightEvent{
			Envelope:     env,
			WeightKg:     record.WeightKg,
			RecordedDate: req.RecordedDate,
		})
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

// LatestWeight returns the most recent observation for a user, or nil
// when none exists.
func (s *Service) LatestWeight(ctx context.Context, userID int64) (*WeightEntry, error) {
	var record WeightEntry
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("recorded_date DESC, created_at DESC").
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

// Get returns one user.
func (s *Service) Get(ctx context.Context, userID snowflake.ID) (*User, error) {
	var record User
	err := s.db.WithContext(ctx).Where("id = ?", userID).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &record, nil
}
