package consumer

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vitalhq/pulse/internal/broker"
	"github.com/vitalhq/pulse/internal/config"
	"github.com/vitalhq/pulse/internal/events"
	"github.com/vitalhq/pulse/internal/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Topics consumed by the aggregation group.
var Topics = []string{
	events.TopicMealEvents,
	events.TopicWorkoutEvents,
	events.TopicUserEvents,
}

type WorkerPoolParam struct {
	fx.In

	Client  *redis.Client
	Pub     *broker.Publisher
	Locker  *broker.Locker
	Log     *zap.Logger
	Config  config.Config
	Handler *Handler
	Metrics *metrics.Metrics `optional:"true"`
}

// WorkerPool runs one worker per (topic, partition). Each worker holds
// a redis lease before consuming, so a partition has at most one active
// consumer across all instances. Losing the lease stops the worker;
// the fixed per-partition consumer name lets the next owner drain
// whatever this one left unacknowledged.
type WorkerPool struct {
	client  *redis.Client
	pub     *broker.Publisher
	locker  *broker.Locker
	log     *zap.Logger
	cfg     config.BrokerConfig
	handler *Handler
	metrics *metrics.Metrics
}

func NewWorkerPool(p WorkerPoolParam) *WorkerPool {
	return &WorkerPool{
		client:  p.Client,
		pub:     p.Pub,
		locker:  p.Locker,
		log:     p.Log.Named("consumer.pool"),
		cfg:     p.Config.Broker,
		handler: p.Handler,
		metrics: p.Metrics,
	}
}

// leaseKey names the partition lease in redis.
func leaseKey(topic string, partition int) string {
	return fmt.Sprintf("pulse:lease:%s.%d", topic, partition)
}

// Run blocks until ctx is cancelled.
func (p *WorkerPool) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, topic := range Topics {
		for partition := 0; partition < p.cfg.Partitions; partition++ {
			wg.Add(1)
			go func(topic string, partition int) {
				defer wg.Done()
				p.runPartition(ctx, topic, partition)
			}(topic, partition)
		}
	}
	wg.Wait()
}

// runPartition loops forever: acquire the lease, consume while holding
// it, back off when another instance owns it.
func (p *WorkerPool) runPartition(ctx context.Context, topic string, partition int) {
	log := p.log.With(zap.String("topic", topic), zap.Int("partition", partition))
	key := leaseKey(topic, partition)
	retry := p.cfg.LeaseTTL / 2
	if retry <= 0 {
		retry = 15 * time.Second
	}

	for {
		if ctx.Err() != nil {
			return
		}

		token, ok, err := p.locker.TryLock(ctx, key, p.cfg.LeaseTTL)
		if err != nil {
			log.Warn("lease acquisition failed", zap.Error(err))
		}
		if !ok || err != nil {
			select {
			case <-ctx.Done():
				return
			case <-time.After(retry):
			}
			continue
		}

		log.Info("partition lease acquired")
		p.consumeWhileHolding(ctx, log, topic, partition, key, token)

		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := p.locker.Release(releaseCtx, key, token); err != nil {
			log.Warn("lease release failed", zap.Error(err))
		}
		cancel()
	}
}

// consumeWhileHolding runs the partition consumer under a child context
// that is cancelled the moment the lease refresh fails.
func (p *WorkerPool) consumeWhileHolding(ctx context.Context, log *zap.Logger, topic string, partition int, key, token string) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	consumer := broker.NewPartitionConsumer(p.client, p.pub, p.log, broker.ConsumerOptions{
		Topic:      topic,
		Partition:  partition,
		Group:      p.cfg.ConsumerGroup,
		BatchSize:  p.cfg.BatchSize,
		Poll:       p.cfg.PollInterval,
		MaxBackoff: p.cfg.MaxBackoff,
	}, p.handle)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		p.keepLease(runCtx, cancel, log, key, token)
	}()
	wg.Add(1)
	go func() {
		defer wg.Done()
		p.reportLag(runCtx, consumer, topic, partition)
	}()

	if err := consumer.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
		log.Warn("partition consumer stopped", zap.Error(err))
	}
	cancel()
	wg.Wait()
}

func (p *WorkerPool) handle(ctx context.Context, msg broker.Message) error {
	err := p.handler.Handle(ctx, msg)
	if broker.IsPermanent(err) && p.metrics != nil {
		p.metrics.EventsDeadLettered.WithLabelValues(msg.Topic).Inc()
	}
	return err
}

func (p *WorkerPool) keepLease(ctx context.Context, cancel context.CancelFunc, log *zap.Logger, key, token string) {
	interval := p.cfg.LeaseTTL / 3
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		held, err := p.locker.Refresh(ctx, key, token, p.cfg.LeaseTTL)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			log.Warn("lease refresh failed", zap.Error(err))
			continue
		}
		if !held {
			log.Warn("partition lease lost, stopping consumer")
			cancel()
			return
		}
	}
}

func (p *WorkerPool) reportLag(ctx context.Context, consumer *broker.PartitionConsumer, topic string, partition int) {
	if p.metrics == nil {
		return
	}
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		lag, err := consumer.Lag(ctx)
		if err != nil {
			continue
		}
		p.metrics.ConsumerLag.WithLabelValues(topic, strconv.Itoa(partition)).Set(float64(lag))
	}
}

var Module = fx.Module("consumer",
	fx.Provide(NewHandler),
	fx.Provide(NewWorkerPool),
)

// RunModule starts the worker pool for binaries that host it.
var RunModule = fx.Module("consumer.run",
	fx.Invoke(func(lc fx.Lifecycle, pool *WorkerPool) {
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		lc.Append(fx.Hook{
			OnStart: func(context.Context) error {
				go func() {
					defer close(done)
					pool.Run(ctx)
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
