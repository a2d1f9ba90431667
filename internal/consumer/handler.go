package consumer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vitalhq/pulse/internal/broker"
	"github.com/vitalhq/pulse/internal/cache"
	"github.com/vitalhq/pulse/internal/derivation"
	"github.com/vitalhq/pulse/internal/events"
	"github.com/vitalhq/pulse/internal/metrics"
	"github.com/vitalhq/pulse/internal/summary"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type HandlerParam struct {
	fx.In

	Log     *zap.Logger
	Store   *summary.Store
	Cache   *cache.SummaryCache
	Deriver *derivation.Deriver
	Metrics *metrics.Metrics `optional:"true"`
}

// Handler applies one consumed record to the rollup. Returning nil
// acknowledges the record; a permanent error dead-letters it; anything
// else is retried. The applied-event ledger absorbs redeliveries, so
// the handler never needs to know whether it has seen a record before.
type Handler struct {
	log     *zap.Logger
	store   *summary.Store
	cache   *cache.SummaryCache
	deriver *derivation.Deriver
	metrics *metrics.Metrics
}

func NewHandler(p HandlerParam) *Handler {
	return &Handler{
		log:     p.Log.Named("consumer.handler"),
		store:   p.Store,
		cache:   p.Cache,
		deriver: p.Deriver,
		metrics: p.Metrics,
	}
}

// Handle dispatches one record by event type.
func (h *Handler) Handle(ctx context.Context, msg broker.Message) error {
	env, err := events.Decode(msg.Payload)
	if err != nil {
		return broker.Permanent(err)
	}

	switch env.EventType {
	case events.EventMealCreated, events.EventMealDeleted:
		return h.handleMeal(ctx, msg, env)
	case events.EventWorkoutCompleted, events.EventWorkoutDeleted:
		return h.handleWorkout(ctx, msg, env)
	case events.EventUserRegistered:
		return h.handleRegistered(ctx, msg, env)
	case events.EventWeightUpdated:
		return h.handleWeight(ctx, msg, env)
	default:
		return broker.Permanent(fmt.Errorf("%w: %q", events.ErrUnknownEvent, env.EventType))
	}
}

func (h *Handler) handleMeal(ctx context.Context, msg broker.Message, env events.Envelope) error {
	var payload events.MealEvent
	if err := events.DecodePayload(msg.Payload, &payload); err != nil {
		return broker.Permanent(err)
	}
	date, err := summary.ParseDate(payload.MealDate)
	if err != nil {
		return broker.Permanent(fmt.Errorf("%w: bad meal_date %q", events.ErrMalformed, payload.MealDate))
	}

	delta := summary.Delta{
		CaloriesIn: payload.Calories,
		ProteinG:   payload.ProteinG,
		CarbsG:     payload.CarbsG,
		FatG:       payload.FatG,
		FiberG:     payload.FiberG,
		MealCount:  1,
	}
	if env.EventType == events.EventMealDeleted {
		delta = delta.Negate()
	}
	return h.apply(ctx, msg, env, date, delta)
}

func (h *Handler) handleWorkout(ctx context.Context, msg broker.Message, env events.Envelope) error {
	var payload events.WorkoutEvent
	if err := events.DecodePayload(msg.Payload, &payload); err != nil {
		return broker.Permanent(err)
	}
	date, err := summary.ParseDate(payload.WorkoutDate)
	if err != nil {
		return broker.Permanent(fmt.Errorf("%w: bad workout_date %q", events.ErrMalformed, payload.WorkoutDate))
	}

	delta := summary.Delta{
		CaloriesOut:    payload.CaloriesBurned,
		WorkoutCount:   1,
		WorkoutMinutes: payload.DurationMinutes,
	}
	if env.EventType == events.EventWorkoutDeleted {
		delta = delta.Negate()
	}
	return h.apply(ctx, msg, env, date, delta)
}

// handleRegistered sets up a blank rollup namespace for the new user.
// EnsureNamespace is naturally idempotent, so no ledger entry is needed.
func (h *Handler) handleRegistered(ctx context.Context, msg broker.Message, env events.Envelope) error {
	if err := h.store.EnsureNamespace(ctx, env.UserID, env.EventTimestamp); err != nil {
		return err
	}
	h.consumed(msg, env)
	return nil
}

// handleWeight carries no rollup delta; it only moves goal progress.
func (h *Handler) handleWeight(ctx context.Context, msg broker.Message, env events.Envelope) error {
	var payload events.WeightEvent
	if err := events.DecodePayload(msg.Payload, &payload); err != nil {
		return broker.Permanent(err)
	}

	h.deriver.OnWeightUpdated(ctx, env.UserID)
	h.consumed(msg, env)
	return nil
}

// apply commits the delta and, only after the commit, invalidates the
// cache and runs derivation. A duplicate event_id acknowledges without
// reapplying.
func (h *Handler) apply(ctx context.Context, msg broker.Message, env events.Envelope, date time.Time, delta summary.Delta) error {
	err := h.store.UpsertDelta(ctx, env.UserID, date, delta, env.EventID, env.EventTimestamp)
	if err != nil {
		if errors.Is(err, summary.ErrAlreadyApplied) {
			if h.metrics != nil {
				h.metrics.EventsDeduplicated.WithLabelValues(msg.Topic).Inc()
			}
			h.log.Debug("duplicate event skipped",
				zap.String("event_id", env.EventID),
				zap.String("event_type", env.EventType),
			)
			return nil
		}
		return err
	}

	h.cache.Invalidate(ctx, env.UserID, date)
	h.deriver.OnRollupChanged(ctx, env.UserID)
	h.consumed(msg, env)
	return nil
}

func (h *Handler) consumed(msg broker.Message, env events.Envelope) {
	if h.metrics != nil {
		h.metrics.EventsConsumed.WithLabelValues(msg.Topic, env.EventType).Inc()
	}
}
