package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/vitalhq/pulse/internal/achievement"
	"github.com/vitalhq/pulse/internal/broker"
	"github.com/vitalhq/pulse/internal/cache"
	"github.com/vitalhq/pulse/internal/clock"
	"github.com/vitalhq/pulse/internal/config"
	"github.com/vitalhq/pulse/internal/consumer"
	"github.com/vitalhq/pulse/internal/derivation"
	"github.com/vitalhq/pulse/internal/goal"
	"github.com/vitalhq/pulse/internal/logger"
	"github.com/vitalhq/pulse/internal/metrics"
	"github.com/vitalhq/pulse/internal/migration"
	"github.com/vitalhq/pulse/internal/outbox"
	"github.com/vitalhq/pulse/internal/summary"
	"github.com/vitalhq/pulse/internal/user"
	"github.com/vitalhq/pulse/pkg/db"
	"go.uber.org/fx"
)

// The consumer binary runs the aggregation group: it leases topic
// partitions, applies event deltas to the rollup and derives streaks
// and goal progress.
func main() {
	app := fx.New(
		config.Module,
		logger.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		metrics.Module,
		migration.Module,

		broker.Module,
		cache.Module,
		outbox.Module,

		summary.Module,
		user.Module,
		goal.Module,
		achievement.Module,
		derivation.Module,

		consumer.Module,
		consumer.RunModule,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
