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
	"github.com/vitalhq/pulse/internal/meal"
	"github.com/vitalhq/pulse/internal/metrics"
	"github.com/vitalhq/pulse/internal/migration"
	"github.com/vitalhq/pulse/internal/outbox"
	"github.com/vitalhq/pulse/internal/replay"
	"github.com/vitalhq/pulse/internal/server"
	"github.com/vitalhq/pulse/internal/summary"
	"github.com/vitalhq/pulse/internal/user"
	"github.com/vitalhq/pulse/internal/workout"
	"github.com/vitalhq/pulse/pkg/db"
	"go.uber.org/fx"
)

// The monolith runs everything in one process: producers, the outbox
// sweeper, the aggregation consumer and the read API.
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
		outbox.RunModule,

		meal.Module,
		workout.Module,
		user.Module,
		summary.Module,
		goal.Module,
		achievement.Module,
		derivation.Module,
		replay.Module,

		consumer.Module,
		consumer.RunModule,

		server.Module,
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
