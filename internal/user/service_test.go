package user

import (
	"context"
	"errors"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/vitalhq/pulse/internal/events"
	"github.com/vitalhq/pulse/internal/outbox"
	"github.com/vitalhq/pulse/pkg/db"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupUserService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	conn, err := db.NewTest()
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := conn.AutoMigrate(&User{}, &WeightEntry{}, &outbox.OutboxEvent{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake: %v", err)
	}
	svc := NewService(ServiceParam{
		DB:     conn,
		Log:    zap.NewNop(),
		GenID:  node,
		Outbox: outbox.New(node, 8),
	})
	return svc, conn
}

func TestRegisterEnqueuesUserRegistered(t *testing.T) {
	svc, conn := setupUserService(t)
	ctx := context.Background()

	record, err := svc.Register(ctx, RegisterRequest{Email: "Jamie@Example.com", FirstName: "Jamie"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if record.Email != "jamie@example.com" {
		t.Fatalf("email must be normalized, got %s", record.Email)
	}

	var row outbox.OutboxEvent
	if err := conn.Where("user_id = ?", int64(record.ID)).First(&row).Error; err != nil {
		t.Fatalf("outbox row missing: %v", err)
	}
	if row.EventType != events.EventUserRegistered || row.Topic != events.TopicUserEvents {
		t.Fatalf("unexpected outbox row: %s %s", row.EventType, row.Topic)
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	svc, _ := setupUserService(t)
	ctx := context.Background()

	if _, err := svc.Register(ctx, RegisterRequest{Email: "dupe@example.com"}); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if _, err := svc.Register(ctx, RegisterRequest{Email: "DUPE@example.com"}); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
}

func TestRecordWeightAndLatest(t *testing.T) {
	svc, _ := setupUserService(t)
	ctx := context.Background()

	for _, entry := range []struct {
		date   string
		weight string
	}{
		{"2026-08-01", "82.4"},
		{"2026-08-20", "80.1"},
		{"2026-08-10", "81.0"},
	} {
		_, err := svc.RecordWeight(ctx, RecordWeightRequest{
			UserID:       9,
			WeightKg:     decimal.RequireFromString(entry.weight),
			RecordedDate: entry.date,
		})
		if err != nil {
			t.Fatalf("record weight %s: %v", entry.date, err)
		}
	}

	latest, err := svc.LatestWeight(ctx, 9)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if latest == nil || !latest.WeightKg.Equal(decimal.RequireFromString("80.1")) {
		t.Fatalf("expected latest 80.1, got %+v", latest)
	}

	none, err := svc.LatestWeight(ctx, 1000)
	if err != nil {
		t.Fatalf("latest for unknown user: %v", err)
	}
	if none != nil {
		t.Fatalf("expected nil for unknown user, got %+v", none)
	}
}

func TestRecordWeightValidation(t *testing.T) {
	svc, _ := setupUserService(t)
	ctx := context.Background()

	if _, err := svc.RecordWeight(ctx, RecordWeightRequest{UserID: 9, WeightKg: decimal.Zero, RecordedDate: "2026-08-01"}); !errors.Is(err, ErrInvalidWeight) {
		t.Fatalf("expected ErrInvalidWeight, got %v", err)
	}
	if _, err := svc.RecordWeight(ctx, RecordWeightRequest{UserID: 9, WeightKg: decimal.RequireFromString("80"), RecordedDate: "01-08-2026"}); !errors.Is(err, ErrInvalidDate) {
		t.Fatalf("expected ErrInvalidDate, got %v", err)
	}
}
