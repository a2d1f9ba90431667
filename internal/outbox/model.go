package outbox

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

const (
	StatusPending = "pending"
	StatusSent    = "sent"
)

// OutboxEvent is a domain event captured inside the same local
// transaction as the write that produced it. The sweeper publishes
// pending rows and marks them sent; the event_id is minted once at
// enqueue and reused by every publish retry.
type OutboxEvent struct {
	ID        snowflake.ID   `json:"id" gorm:"primaryKey"`
	EventID   string         `json:"event_id" gorm:"type:text;not null;uniqueIndex:ux_outbox_event_id"`
	EventType string         `json:"event_type" gorm:"type:text;not null"`
	UserID    int64          `json:"user_id" gorm:"column:user_id;not null"`
	Topic     string         `json:"topic" gorm:"type:text;not null"`
	Partition int            `json:"partition" gorm:"not null"`
	Payload   datatypes.JSON `json:"payload" gorm:"not null"`
	Status    string         `json:"status" gorm:"type:text;not null;default:pending;index:idx_outbox_status_created,priority:1"`
	CreatedAt time.Time      `json:"created_at" gorm:"not null;index:idx_outbox_status_created,priority:2"`
	SentAt    *time.Time     `json:"sent_at"`
}

// TableName sets the database table name.
func (OutboxEvent) TableName() string { return "outbox_events" }
