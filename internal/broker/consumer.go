package broker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Message is one record fetched from a partition stream.
type Message struct {
	ID        string
	Topic     string
	Partition int
	Key       string
	Payload   []byte
}

// Handler processes one record. Returning nil acknowledges the record.
// A permanent error (see Permanent) dead-letters it; any other error
// is treated as transient and retried with backoff without
// acknowledging, so a crash mid-retry redelivers the record.
type Handler func(ctx context.Context, msg Message) error

// DeadLetterer routes an unprocessable record to a topic's dead-letter
// stream. Satisfied by Publisher.
type DeadLetterer interface {
	DeadLetter(ctx context.Context, topic string, payload []byte, reason string) error
}

// PartitionConsumer owns exactly one (topic, partition) stream and
// processes its records sequentially in an explicit
// fetch-process-commit loop. The acknowledgement is gated on handler
// success, never on fetch.
type PartitionConsumer struct {
	client     *redis.Client
	pub        DeadLetterer
	log        *zap.Logger
	topic      string
	partition  int
	group      string
	batchSize  int64
	poll       time.Duration
	maxBackoff time.Duration
	handler    Handler
}

type ConsumerOptions struct {
	Topic      string
	Partition  int
	Group      string
	BatchSize  int
	Poll       time.Duration
	MaxBackoff time.Duration
}

func NewPartitionConsumer(client *redis.Client, pub DeadLetterer, log *zap.Logger, opts ConsumerOptions, handler Handler) *PartitionConsumer {
	batch := int64(opts.BatchSize)
	if batch <= 0 {
		batch = 50
	}
	poll := opts.Poll
	if poll <= 0 {
		poll = 2 * time.Second
	}
	maxBackoff := opts.MaxBackoff
	if maxBackoff <= 0 {
		maxBackoff = 30 * time.Second
	}
	return &PartitionConsumer{
		client:     client,
		pub:        pub,
		log:        log.Named("broker.consumer").With(zap.String("topic", opts.Topic), zap.Int("partition", opts.Partition)),
		topic:      opts.Topic,
		partition:  opts.Partition,
		group:      opts.Group,
		batchSize:  batch,
		poll:       poll,
		maxBackoff: maxBackoff,
		handler:    handler,
	}
}

func (c *PartitionConsumer) stream() string {
	return StreamName(c.topic, c.partition)
}

// consumerName is fixed per partition rather than per instance so that
// a new lease owner drains the pending entries a crashed predecessor
// left behind.
func (c *PartitionConsumer) consumerName() string {
	return fmt.Sprintf("%s-p%d", c.group, c.partition)
}

// Run consumes until ctx is cancelled.
func (c *PartitionConsumer) Run(ctx context.Context) error {
	if err := c.ensureGroup(ctx); err != nil {
		return err
	}

	// Drain records delivered but not acknowledged before a restart.
	if err := c.consumeOnce(ctx, "0"); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := c.consumeOnce(ctx, ">"); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			c.log.Warn("consume iteration failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.poll):
			}
		}
	}
}

func (c *PartitionConsumer) ensureGroup(ctx context.Context) error {
	err := c.client.XGroupCreateMkStream(ctx, c.stream(), c.group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return err
	}
	return nil
}

func (c *PartitionConsumer) consumeOnce(ctx context.Context, cursor string) error {
	args := &redis.XReadGroupArgs{
		Group:    c.group,
		Consumer: c.consumerName(),
		Streams:  []string{c.stream(), cursor},
		Count:    c.batchSize,
	}
	if cursor == ">" {
		args.Block = c.poll
	}

	streams, err := c.client.XReadGroup(ctx, args).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return err
	}

	for _, stream := range streams {
		for _, entry := range stream.Messages {
			if err := c.process(ctx, entry); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *PartitionConsumer) process(ctx context.Context, entry redis.XMessage) error {
	msg := Message{
		ID:        entry.ID,
		Topic:     c.topic,
		Partition: c.partition,
	}
	if key, ok := entry.Values["key"].(string); ok {
		msg.Key = key
	}
	if payload, ok := entry.Values["payload"].(string); ok {
		msg.Payload = []byte(payload)
	}

	if err := c.dispatch(ctx, msg); err != nil {
		return err
	}
	return c.ack(ctx, entry.ID)
}

// dispatch runs the handler until the record is either processed or
// dead-lettered. Returning nil means the record may be acknowledged.
// The dead-lettered payload is msg.Payload untouched, byte-identical
// to what was consumed.
func (c *PartitionConsumer) dispatch(ctx context.Context, msg Message) error {
	backoff := 500 * time.Millisecond
	if backoff > c.maxBackoff {
		backoff = c.maxBackoff
	}
	for {
		err := c.handler(ctx, msg)
		if err == nil {
			return nil
		}
		if IsPermanent(err) {
			return c.pub.DeadLetter(ctx, c.topic, msg.Payload, err.Error())
		}

		c.log.Warn("transient handler failure, retrying",
			zap.Error(err),
			zap.String("entry_id", msg.ID),
			zap.Duration("backoff", backoff),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > c.maxBackoff {
			backoff = c.maxBackoff
		}
	}
}

func (c *PartitionConsumer) ack(ctx context.Context, entryID string) error {
	return c.client.XAck(ctx, c.stream(), c.group, entryID).Err()
}

// Lag reports how many records this partition's group has not yet
// acknowledged. It is a first-class operational metric.
func (c *PartitionConsumer) Lag(ctx context.Context) (int64, error) {
	groups, err := c.client.XInfoGroups(ctx, c.stream()).Result()
	if err != nil {
		return 0, err
	}
	for _, group := range groups {
		if group.Name == c.group {
			return group.Lag + group.Pending, nil
		}
	}
	return 0, nil
}
