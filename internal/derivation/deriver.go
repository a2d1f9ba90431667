package derivation

import (
	"context"

	"github.com/vitalhq/pulse/internal/achievement"
	"github.com/vitalhq/pulse/internal/clock"
	"github.com/vitalhq/pulse/internal/goal"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type DeriverParam struct {
	fx.In

	Log          *zap.Logger
	Clock        clock.Clock
	Goals        *goal.Service
	Achievements *achievement.Service
}

// Deriver runs the read-model side effects that follow a rollup change:
// streak evaluation and goal progress. Both are recomputed from current
// state and award through deduplicated keys, so running them after a
// redelivered event changes nothing. Failures here are logged and
// swallowed; the event offset is already committed by the time the
// deriver runs, and the next rollup change retries the same derivation.
//
// Evaluation is always anchored at wall-clock today, never at the
// event's own date: a streak is a run of logged days ending today, and
// goal windows trail today. Backfilled or replayed events for past
// dates update the rollup but must not award for runs that ended long
// ago.
type Deriver struct {
	log          *zap.Logger
	clock        clock.Clock
	goals        *goal.Service
	achievements *achievement.Service
}

func NewDeriver(p DeriverParam) *Deriver {
	return &Deriver{
		log:          p.Log.Named("derivation"),
		clock:        p.Clock,
		goals:        p.Goals,
		achievements: p.Achievements,
	}
}

// OnRollupChanged is called after a delta commits for a user.
func (d *Deriver) OnRollupChanged(ctx context.Context, userID int64) {
	today := d.clock.Now()
	if err := d.achievements.EvaluateStreaks(ctx, userID, today); err != nil {
		d.log.Warn("streak evaluation failed",
			zap.Int64("user_id", userID),
			zap.Error(err),
		)
	}
	if err := d.goals.EvaluateForUser(ctx, userID, today); err != nil {
		d.log.Warn("goal evaluation failed",
			zap.Int64("user_id", userID),
			zap.Error(err),
		)
	}
}

// OnWeightUpdated is called for weight observations, which change goal
// progress without touching the rollup.
func (d *Deriver) OnWeightUpdated(ctx context.Context, userID int64) {
	if err := d.goals.EvaluateForUser(ctx, userID, d.clock.Now()); err != nil {
		d.log.Warn("goal evaluation failed",
			zap.Int64("user_id", userID),
			zap.Error(err),
		)
	}
}

var Module = fx.Module("derivation",
	fx.Provide(NewDeriver),
)
