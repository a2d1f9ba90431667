package outbox

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/vitalhq/pulse/internal/broker"
	"github.com/vitalhq/pulse/internal/config"
	"github.com/vitalhq/pulse/internal/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("outbox",
	fx.Provide(func(genID *snowflake.Node, cfg config.Config) *Outbox {
		return New(genID, cfg.Broker.Partitions)
	}),
	fx.Provide(func(db *gorm.DB, pub *broker.Publisher, log *zap.Logger, m *metrics.Metrics, cfg config.Config) *Sweeper {
		return NewSweeper(db, pub, log, m, cfg.Sweeper)
	}),
)

// RunModule starts the sweeper loop for binaries that host it.
var RunModule = fx.Module("outbox.run",
	fx.Invoke(func(lc fx.Lifecycle, sweeper *Sweeper) {
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		lc.Append(fx.Hook{
			OnStart: func(context.Context) error {
				go func() {
					defer close(done)
					sweeper.RunForever(ctx)
				}()
				return nil
			},
			OnStop: func(stopCtx context.Context) error {
				cancel()
				select {
				case <-done:
					return nil
				case <-stopCtx.Done():
					return stopCtx.Err()
				}
			},
		})
	}),
)
