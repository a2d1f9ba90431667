package outbox

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/vitalhq/pulse/internal/config"
	"github.com/vitalhq/pulse/internal/events"
	"github.com/vitalhq/pulse/pkg/db"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type publishedRecord struct {
	topic     string
	partition int
	key       string
	payload   []byte
}

type fakePublisher struct {
	published []publishedRecord
	fail      bool
}

func (f *fakePublisher) Publish(_ context.Context, topic string, partition int, key string, payload []byte) error {
	if f.fail {
		return errors.New("broker unavailable")
	}
	f.published = append(f.published, publishedRecord{
		topic:     topic,
		partition: partition,
		key:       key,
		payload:   payload,
	})
	return nil
}

func setupSweeper(t *testing.T) (*Sweeper, *Outbox, *fakePublisher, *gorm.DB) {
	t.Helper()
	conn, err := db.NewTest()
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := conn.AutoMigrate(&OutboxEvent{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake: %v", err)
	}
	pub := &fakePublisher{}
	sweeper := NewSweeper(conn, pub, zap.NewNop(), nil, config.SweeperConfig{})
	return sweeper, New(node, 8), pub, conn
}

func enqueueMeal(t *testing.T, conn *gorm.DB, ob *Outbox, eventID string, userID int64) {
	t.Helper()
	env := events.NewEnvelope(eventID, events.EventMealCreated, userID, time.Now().UTC())
	record := events.MealEvent{
		Envelope: env,
		MealID:   1,
		MealDate: "2026-08-29",
		MealType: "LUNCH",
		Calories: 500,
	}
	err := conn.Transaction(func(tx *gorm.DB) error {
		return ob.Enqueue(context.Background(), tx, env, record)
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
}

func TestRunOncePublishesPendingAndMarksSent(t *testing.T) {
	sweeper, ob, pub, conn := setupSweeper(t)
	ctx := context.Background()

	enqueueMeal(t, conn, ob, "evt-1", 42)

	if err := sweeper.RunOnce(ctx); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if len(pub.published) != 1 {
		t.Fatalf("expected 1 publish, got %d", len(pub.published))
	}

	got := pub.published[0]
	if got.topic != events.TopicMealEvents {
		t.Fatalf("expected meal-events, got %s", got.topic)
	}
	if got.key != "42" {
		t.Fatalf("record key must be user_id as a decimal string, got %q", got.key)
	}
	if got.partition != events.Partition(42, 8) {
		t.Fatalf("partition mismatch: %d", got.partition)
	}

	env, err := events.Decode(got.payload)
	if err != nil {
		t.Fatalf("decode published payload: %v", err)
	}
	if env.EventID != "evt-1" {
		t.Fatalf("event_id mismatch: %s", env.EventID)
	}

	var row OutboxEvent
	if err := conn.First(&row, "event_id = ?", "evt-1").Error; err != nil {
		t.Fatalf("load row: %v", err)
	}
	if row.Status != StatusSent {
		t.Fatalf("expected sent, got %s", row.Status)
	}
	if !bytes.Equal(got.payload, row.Payload) {
		t.Fatal("published payload must match the stored row byte for byte")
	}
}

func TestPublishFailureKeepsRowPending(t *testing.T) {
	sweeper, ob, pub, conn := setupSweeper(t)
	ctx := context.Background()

	enqueueMeal(t, conn, ob, "evt-2", 7)

	pub.fail = true
	if err := sweeper.RunOnce(ctx); err == nil {
		t.Fatal("expected publish failure to surface")
	}

	var row OutboxEvent
	if err := conn.First(&row, "event_id = ?", "evt-2").Error; err != nil {
		t.Fatalf("load row: %v", err)
	}
	if row.Status != StatusPending {
		t.Fatalf("failed publish must leave the row pending, got %s", row.Status)
	}

	pub.fail = false
	if err := sweeper.RunOnce(ctx); err != nil {
		t.Fatalf("retry sweep: %v", err)
	}
	if len(pub.published) != 1 {
		t.Fatalf("expected 1 publish after recovery, got %d", len(pub.published))
	}
}

func TestUnmarkedRowRepublishesSameEventID(t *testing.T) {
	sweeper, ob, pub, conn := setupSweeper(t)
	ctx := context.Background()

	enqueueMeal(t, conn, ob, "evt-3", 9)

	if err := sweeper.RunOnce(ctx); err != nil {
		t.Fatalf("first sweep: %v", err)
	}

	// As if the process died after the publish but before the mark: the
	// row is still pending on the next sweep.
	err := conn.Model(&OutboxEvent{}).
		Where("event_id = ?", "evt-3").
		Update("status", StatusPending).Error
	if err != nil {
		t.Fatalf("reset status: %v", err)
	}

	if err := sweeper.RunOnce(ctx); err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if len(pub.published) != 2 {
		t.Fatalf("expected republish, got %d publishes", len(pub.published))
	}
	if !bytes.Equal(pub.published[0].payload, pub.published[1].payload) {
		t.Fatal("republished payload must be byte-identical")
	}

	first, err := events.Decode(pub.published[0].payload)
	if err != nil {
		t.Fatalf("decode first: %v", err)
	}
	second, err := events.Decode(pub.published[1].payload)
	if err != nil {
		t.Fatalf("decode second: %v", err)
	}
	if first.EventID != second.EventID {
		t.Fatalf("event_id must survive republish: %s vs %s", first.EventID, second.EventID)
	}
}
