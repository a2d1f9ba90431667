package goal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/vitalhq/pulse/internal/achievement"
	"github.com/vitalhq/pulse/internal/cache"
	"github.com/vitalhq/pulse/internal/config"
	"github.com/vitalhq/pulse/internal/events"
	"github.com/vitalhq/pulse/internal/summary"
	"github.com/vitalhq/pulse/internal/user"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	Config       config.Config
	DB           *gorm.DB
	Log          *zap.Logger
	GenID        *snowflake.Node
	Store        *summary.Store
	Users        *user.Service
	Achievements *achievement.Service
}

// Service manages goal lifecycle and derives progress from the rollup.
// Evaluation runs after every rollup change, so progress is fresh
// without any polling.
type Service struct {
	db           *gorm.DB
	log          *zap.Logger
	genID        *snowflake.Node
	store        *summary.Store
	users        *user.Service
	achievements *achievement.Service

	active    cache.Cache[int64, []Goal]
	activeTTL time.Duration
}

func NewService(p ServiceParam) *Service {
	return &Service{
		db:           p.DB,
		log:          p.Log.Named("goal.service"),
		genID:        p.GenID,
		store:        p.Store,
		users:        p.Users,
		achievements: p.Achievements,
		active:       cache.NewTTLCache[int64, []Goal](),
		activeTTL:    p.Config.Cache.GoalTTL,
	}
}

// Create opens a new ACTIVE goal. WEIGHT goals default start to the
// latest weight observation when the caller leaves it zero.
func (s *Service) Create(ctx context.Context, req CreateGoalRequest) (*Goal, error) {
	if !validKind(req.Kind) {
		return nil, ErrInvalidKind
	}

	metric := req.Metric
	switch req.Kind {
	case KindWorkout:
		if metric != MetricWorkoutMinutes {
			metric = MetricWorkoutCount
		}
	case KindMacro:
		switch metric {
		case MetricProteinG, MetricCarbsG, MetricFatG, MetricFiberG:
		default:
			return nil, fmt.Errorf("%w: macro goal needs a metric", ErrInvalidKind)
		}
	default:
		metric = ""
	}

	start := req.Start
	if req.Kind == KindWeight && start.IsZero() {
		latest, err := s.users.LatestWeight(ctx, req.UserID)
		if err != nil {
			return nil, err
		}
		if latest != nil {
			start = latest.WeightKg
		}
	}
	if req.Target.Equal(start) {
		return nil, ErrInvalidTarget
	}

	periodDays := req.PeriodDays
	if periodDays <= 0 {
		periodDays = defaultPeriodDays
	}

	var targetDate *time.Time
	if req.TargetDate != "" {
		parsed, err := time.ParseInLocation(events.DateLayout, req.TargetDate, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("goal: invalid target_date: %w", err)
		}
		targetDate = &parsed
	}

	now := time.Now().UTC()
	record := &Goal{
		ID:         s.genID.Generate(),
		UserID:     req.UserID,
		Kind:       req.Kind,
		Metric:     metric,
		Target:     req.Target,
		Start:      start,
		TargetDate: targetDate,
		PeriodDays: periodDays,
		Status:     StatusActive,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.db.WithContext(ctx).Create(record).Error; err != nil {
		return nil, err
	}

	s.active.Delete(req.UserID)
	s.log.Info("goal created",
		zap.String("goal_id", record.ID.String()),
		zap.Int64("user_id", req.UserID),
		zap.String("kind", req.Kind),
	)
	return record, nil
}

// Get returns one goal.
func (s *Service) Get(ctx context.Context, goalID snowflake.ID) (*Goal, error) {
	var record Goal
	err := s.db.WithContext(ctx).Where("id = ?", goalID).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrGoalNotFound
		}
		return nil, err
	}
	return &record, nil
}

// List returns a user's goals, newest first. An empty status returns
// all of them.
func (s *Service) List(ctx context.Context, userID int64, status string) ([]Goal, error) {
	query := s.db.WithContext(ctx).Where("user_id = ?", userID)
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var records []Goal
	err := query.Order("created_at DESC, id DESC").Find(&records).Error
	return records, err
}

// Pause moves an ACTIVE goal to PAUSED.
func (s *Service) Pause(ctx context.Context, goalID snowflake.ID) (*Goal, error) {
	return s.transition(ctx, goalID, StatusActive, StatusPaused)
}

// Resume moves a PAUSED goal back to ACTIVE.
func (s *Service) Resume(ctx context.Context, goalID snowflake.ID) (*Goal, error) {
	return s.transition(ctx, goalID, StatusPaused, StatusActive)
}

// Abandon terminates a goal from ACTIVE or PAUSED.
func (s *Service) Abandon(ctx context.Context, goalID snowflake.ID) (*Goal, error) {
	record, err := s.Get(ctx, goalID)
	if err != nil {
		return nil, err
	}
	if record.terminal() {
		return nil, ErrInvalidTransition
	}
	return s.setStatus(ctx, record, StatusAbandoned)
}

func (s *Service) transition(ctx context.Context, goalID snowflake.ID, from, to string) (*Goal, error) {
	record, err := s.Get(ctx, goalID)
	if err != nil {
		return nil, err
	}
	if record.Status != from {
		return nil, ErrInvalidTransition
	}
	return s.setStatus(ctx, record, to)
}

func (s *Service) setStatus(ctx context.Context, record *Goal, to string) (*Goal, error) {
	now := time.Now().UTC()
	updates := map[string]any{"status": to, "updated_at": now}
	if to == StatusCompleted {
		updates["completed_at"] = now
	}

	err := s.db.WithContext(ctx).Model(&Goal{}).
		Where("id = ? AND status = ?", record.ID, record.Status).
		Updates(updates).Error
	if err != nil {
		return nil, err
	}

	record.Status = to
	record.UpdatedAt = now
	if to == StatusCompleted {
		record.CompletedAt = &now
	}
	s.active.Delete(record.UserID)
	return record, nil
}

// EvaluateForUser recomputes progress for every ACTIVE goal the user
// has. A goal reaching 100% is completed exactly once and earns a
// GOAL_COMPLETED achievement; the award is deduplicated by goal id, so
// re-evaluation after redelivered events stays silent.
func (s *Service) EvaluateForUser(ctx context.Context, userID int64, today time.Time) error {
	goals, err := s.activeGoals(ctx, userID)
	if err != nil {
		return err
	}

	var errs error
	for i := range goals {
		if err := s.evaluate(ctx, &goals[i], today); err != nil {
			errs = errors.Join(errs, err)
		}
	}
	return errs
}

// Progress returns derived progress for every non-abandoned goal.
func (s *Service) Progress(ctx context.Context, userID int64, today time.Time) ([]ProgressView, error) {
	records, err := s.List(ctx, userID, "")
	if err != nil {
		return nil, err
	}

	views := make([]ProgressView, 0, len(records))
	for _, record := range records {
		if record.Status == StatusAbandoned {
			continue
		}
		current, err := s.current(ctx, record, today)
		if err != nil {
			return nil, err
		}
		pct := record.ProgressPct
		if record.Status == StatusActive {
			pct = progressPct(record.Start, record.Target, current)
		}
		views = append(views, ProgressView{
			GoalID:      record.ID,
			Kind:        record.Kind,
			Metric:      record.Metric,
			Status:      record.Status,
			Start:       record.Start,
			Target:      record.Target,
			Current:     current,
			ProgressPct: pct,
		})
	}
	return views, nil
}

func (s *Service) evaluate(ctx context.Context, record *Goal, today time.Time) error {
	current, err := s.current(ctx, *record, today)
	if err != nil {
		return err
	}

	pct := progressPct(record.Start, record.Target, current)
	if pct == record.ProgressPct && pct < 100 {
		return nil
	}

	now := time.Now().UTC()
	updates := map[string]any{"progress_pct": pct, "updated_at": now}
	completed := pct >= 100
	if completed {
		updates["status"] = StatusCompleted
		updates["completed_at"] = now
	}

	err = s.db.WithContext(ctx).Model(&Goal{}).
		Where("id = ? AND status = ?", record.ID, StatusActive).
		Updates(updates).Error
	if err != nil {
		return err
	}
	record.ProgressPct = pct

	if !completed {
		return nil
	}

	s.active.Delete(record.UserID)
	s.log.Info("goal completed",
		zap.String("goal_id", record.ID.String()),
		zap.Int64("user_id", record.UserID),
		zap.Float64("progress_pct", pct),
	)
	_, err = s.achievements.Award(ctx, record.UserID, achievement.KindGoalCompleted,
		achievement.GoalDedupKey(record.UserID, record.ID), map[string]any{
			"goal_id": record.ID.String(),
			"kind":    record.Kind,
		})
	return err
}

// current derives the goal's present value. WEIGHT reads the latest
// observation; CALORIE and MACRO take a rolling mean over the goal's
// period; WORKOUT sums count or minutes over the same window.
func (s *Service) current(ctx context.Context, record Goal, today time.Time) (decimal.Decimal, error) {
	if record.Kind == KindWeight {
		latest, err := s.users.LatestWeight(ctx, record.UserID)
		if err != nil {
			return decimal.Zero, err
		}
		if latest == nil {
			return record.Start, nil
		}
		return latest.WeightKg, nil
	}

	today = summary.DateOf(today)
	rows, err := s.store.ReadRange(ctx, record.UserID, today.AddDate(0, 0, -(record.PeriodDays-1)), today)
	if err != nil {
		return decimal.Zero, err
	}

	switch record.Kind {
	case KindCalorie:
		total := 0
		for _, row := range rows {
			total += row.CaloriesIn
		}
		return decimal.NewFromInt(int64(total)).
			Div(decimal.NewFromInt(int64(len(rows)))).Round(2), nil

	case KindMacro:
		total := decimal.Zero
		for _, row := range rows {
			total = total.Add(macroField(row, record.Metric))
		}
		return total.Div(decimal.NewFromInt(int64(len(rows)))).Round(2), nil

	case KindWorkout:
		total := 0
		for _, row := range rows {
			if record.Metric == MetricWorkoutMinutes {
				total += row.WorkoutMinutes
			} else {
				total += row.WorkoutCount
			}
		}
		return decimal.NewFromInt(int64(total)), nil
	}
	return decimal.Zero, ErrInvalidKind
}

func (s *Service) activeGoals(ctx context.Context, userID int64) ([]Goal, error) {
	if cached, ok := s.active.Get(userID); ok {
		return cached, nil
	}
	records, err := s.List(ctx, userID, StatusActive)
	if err != nil {
		return nil, err
	}
	s.active.Set(userID, records, s.activeTTL)
	return records, nil
}

func macroField(row summary.DailySummary, metric string) decimal.Decimal {
	switch metric {
	case MetricCarbsG:
		return row.CarbsG
	case MetricFatG:
		return row.FatG
	case MetricFiberG:
		return row.FiberG
	default:
		return row.ProteinG
	}
}

// progressPct measures how far current has moved from start toward
// target, as a percentage. The formula holds for decreasing targets
// too: both numerator and denominator flip sign. Values below zero
// clamp to zero; overshoot past 100 is kept.
func progressPct(start, target, current decimal.Decimal) float64 {
	span := target.Sub(start)
	if span.IsZero() {
		return 0
	}
	pct, _ := current.Sub(start).Div(span).Mul(decimal.NewFromInt(100)).Round(2).Float64()
	if pct < 0 {
		return 0
	}
	return pct
}
