package broker

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/vitalhq/pulse/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("broker",
	fx.Provide(NewClient),
	fx.Provide(NewPublisher),
	fx.Provide(NewLocker),
)

// NewClient builds the shared redis client used by the stream
// transport, the partition locks and the read-side cache.
func NewClient(lc fx.Lifecycle, cfg config.Config) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		},
		OnStop: func(ctx context.Context) error {
			return client.Close()
		},
	})

	return client
}

// StreamName returns the redis stream backing one partition of a topic.
func StreamName(topic string, partition int) string {
	return fmt.Sprintf("%s.%d", topic, partition)
}

// DeadLetterStream returns the dead-letter stream for a topic.
func DeadLetterStream(topic string) string {
	return topic + ".dlq"
}
