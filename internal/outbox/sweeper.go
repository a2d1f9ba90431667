package outbox

import (
	"context"
	"errors"
	"time"

	"github.com/vitalhq/pulse/internal/config"
	"github.com/vitalhq/pulse/internal/events"
	"github.com/vitalhq/pulse/internal/metrics"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Publisher appends one record to a partitioned topic stream.
// Satisfied by broker.Publisher.
type Publisher interface {
	Publish(ctx context.Context, topic string, partition int, key string, payload []byte) error
}

// Sweeper publishes pending outbox rows in created-at order and marks
// them sent. A crash between publish and mark leaves the row pending,
// so the next sweep republishes the same event_id; consumers
// de-duplicate via the applied-event ledger.
type Sweeper struct {
	db      *gorm.DB
	pub     Publisher
	log     *zap.Logger
	metrics *metrics.Metrics
	cfg     config.SweeperConfig
}

func NewSweeper(db *gorm.DB, pub Publisher, log *zap.Logger, m *metrics.Metrics, cfg config.SweeperConfig) *Sweeper {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = 30 * time.Second
	}
	return &Sweeper{
		db:      db,
		pub:     pub,
		log:     log.Named("outbox.sweeper"),
		metrics: m,
		cfg:     cfg,
	}
}

func (s *Sweeper) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.log.Warn("outbox sweep failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Sweeper) RunOnce(parentCtx context.Context) error {
	ctx, cancel := context.WithTimeout(parentCtx, s.cfg.RunTimeout)
	defer cancel()

	var rows []OutboxEvent
	if err := s.db.WithContext(ctx).
		Where("status = ?", StatusPending).
		Order("created_at ASC, id ASC").
		Limit(s.cfg.BatchSize).
		Find(&rows).Error; err != nil {
		return err
	}

	if s.metrics != nil {
		var pending int64
		if err := s.db.WithContext(ctx).Model(&OutboxEvent{}).
			Where("status = ?", StatusPending).
			Count(&pending).Error; err == nil {
			s.metrics.OutboxPending.Set(float64(pending))
		}
	}

	var jobErr error
	for _, row := range rows {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := s.sweep(ctx, row); err != nil {
			jobErr = errors.Join(jobErr, err)
			s.log.Warn("failed to publish outbox row",
				zap.Error(err),
				zap.String("event_id", row.EventID),
				zap.String("event_type", row.EventType),
			)
		}
	}
	return jobErr
}

func (s *Sweeper) sweep(ctx context.Context, row OutboxEvent) error {
	key := events.PartitionKey(row.UserID)
	if err := s.pub.Publish(ctx, row.Topic, row.Partition, key, row.Payload); err != nil {
		return err
	}

	if s.metrics != nil {
		s.metrics.EventsPublished.WithLabelValues(row.Topic).Inc()
	}

	now := time.Now().UTC()
	return s.db.WithContext(ctx).
		Model(&OutboxEvent{}).
		Where("id = ? AND status = ?", row.ID, StatusPending).
		Updates(map[string]any{"status": StatusSent, "sent_at": now}).Error
}
