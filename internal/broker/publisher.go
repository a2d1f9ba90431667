package broker

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const publishTimeout = 5 * time.Second

// Publisher appends records to partitioned topic streams. Delivery is
// at-least-once: the caller (the outbox sweeper) retries until the
// broker acknowledges, so a record may be appended more than once with
// the same event_id.
type Publisher struct {
	client *redis.Client
	log    *zap.Logger
}

func NewPublisher(client *redis.Client, log *zap.Logger) *Publisher {
	return &Publisher{
		client: client,
		log:    log.Named("broker.publisher"),
	}
}

// Publish appends one record to the stream for (topic, partition).
// Records within one stream are strictly ordered, which carries the
// per-user publish-order guarantee.
func (p *Publisher) Publish(ctx context.Context, topic string, partition int, key string, payload []byte) error {
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	return p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamName(topic, partition),
		Values: map[string]any{
			"key":     key,
			"payload": payload,
		},
	}).Err()
}

// DeadLetter routes a record that can never be processed to the
// topic's dead-letter stream. The payload is preserved byte-identical
// to the original record so operators can replay after repair.
func (p *Publisher) DeadLetter(ctx context.Context, topic string, payload []byte, reason string) error {
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: DeadLetterStream(topic),
		Values: map[string]any{
			"payload": payload,
			"reason":  reason,
		},
	}).Err()
	if err != nil {
		return err
	}

	p.log.Warn("event dead-lettered",
		zap.String("topic", topic),
		zap.String("reason", reason),
	)
	return nil
}
