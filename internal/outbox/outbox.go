package outbox

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/vitalhq/pulse/internal/events"
	"gorm.io/gorm"
)

// Outbox enqueues wire records for later publication. Enqueue must run
// inside the caller's domain transaction: if the domain write rolls
// back, no event is captured; if it commits, the event is durable
// before any broker I/O happens.
type Outbox struct {
	genID      *snowflake.Node
	partitions int
}

func New(genID *snowflake.Node, partitions int) *Outbox {
	if partitions <= 0 {
		partitions = 1
	}
	return &Outbox{genID: genID, partitions: partitions}
}

// Enqueue writes one outbox row for the given wire record. The record
// must embed events.Envelope with EventID already minted.
func (o *Outbox) Enqueue(ctx context.Context, tx *gorm.DB, env events.Envelope, record any) error {
	topic, err := events.TopicFor(env.EventType)
	if err != nil {
		return err
	}

	payload, err := events.Encode(record)
	if err != nil {
		return err
	}

	row := OutboxEvent{
		ID:        o.genID.Generate(),
		EventID:   env.EventID,
		EventType: env.EventType,
		UserID:    env.UserID,
		Topic:     topic,
		Partition: events.Partition(env.UserID, o.partitions),
		Payload:   payload,
		Status:    StatusPending,
		CreatedAt: time.Now().UTC(),
	}

	return tx.WithContext(ctx).Create(&row).Error
}
