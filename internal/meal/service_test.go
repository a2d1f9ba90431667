package meal

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

func setupMealService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	conn, err := db.NewTest()
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := conn.AutoMigrate(&Meal{}, &outbox.OutboxEvent{}); err != nil {
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

func createRequest(userID int64) CreateMealRequest {
	return CreateMealRequest{
		UserID:   userID,
		MealDate: "2026-08-29",
		MealType: "LUNCH",
		Calories: 650,
		ProteinG: decimal.RequireFromString("32.5"),
		CarbsG:   decimal.RequireFromString("70"),
		FatG:     decimal.RequireFromString("21"),
		FiberG:   decimal.RequireFromString("8"),
	}
}

func TestCreateEnqueuesMealCreated(t *testing.T) {
	svc, conn := setupMealService(t)
	ctx := context.Background()

	record, err := svc.Create(ctx, createRequest(42))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	var row outbox.OutboxEvent
	if err := conn.Where("user_id = ?", 42).First(&row).Error; err != nil {
		t.Fatalf("outbox row missing: %v", err)
	}
	if row.EventType != events.EventMealCreated {
		t.Fatalf("expected meal.created, got %s", row.EventType)
	}
	if row.Topic != events.TopicMealEvents {
		t.Fatalf("expected meal-events topic, got %s", row.Topic)
	}
	if row.Partition != events.Partition(42, 8) {
		t.Fatalf("partition mismatch: %d", row.Partition)
	}

	// The payload envelope must carry the same event_id as the row.
	env, err := events.Decode(row.Payload)
	if err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if env.EventID != row.EventID {
		t.Fatalf("event_id mismatch: row %s payload %s", row.EventID, env.EventID)
	}

	var payload events.MealEvent
	if err := events.DecodePayload(row.Payload, &payload); err != nil {
		t.Fatalf("decode meal payload: %v", err)
	}
	if payload.MealID != int64(record.ID) || payload.Calories != 650 {
		t.Fatalf("payload mismatch: %+v", payload)
	}
}

func TestDeleteEnqueuesInverseWithOriginalTotals(t *testing.T) {
	svc, conn := setupMealService(t)
	ctx := context.Background()

	record, err := svc.Create(ctx, createRequest(7))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := svc.Delete(ctx, 7, record.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	var rows []outbox.OutboxEvent
	if err := conn.Where("user_id = ?", 7).Order("created_at ASC, id ASC").Find(&rows).Error; err != nil {
		t.Fatalf("load outbox: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 outbox rows, got %d", len(rows))
	}
	if rows[1].EventType != events.EventMealDeleted {
		t.Fatalf("expected meal.deleted, got %s", rows[1].EventType)
	}

	var created, deleted events.MealEvent
	if err := events.DecodePayload(rows[0].Payload, &created); err != nil {
		t.Fatalf("decode created: %v", err)
	}
	if err := events.DecodePayload(rows[1].Payload, &deleted); err != nil {
		t.Fatalf("decode deleted: %v", err)
	}

	// Deletion must carry the creation totals so the two commute.
	if deleted.Calories != created.Calories || !deleted.ProteinG.Equal(created.ProteinG) {
		t.Fatalf("deletion totals differ: created %+v deleted %+v", created, deleted)
	}
	if deleted.EventID == created.EventID {
		t.Fatal("deletion must mint its own event_id")
	}

	if err := conn.First(&Meal{}, "id = ?", record.ID).Error; !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("meal row should be gone, got %v", err)
	}
}

func TestCreateValidation(t *testing.T) {
	svc, _ := setupMealService(t)
	ctx := context.Background()

	cases := []struct {
		name    string
		mutate  func(*CreateMealRequest)
		wantErr error
	}{
		{"missing user", func(r *CreateMealRequest) { r.UserID = 0 }, ErrInvalidUser},
		{"bad meal type", func(r *CreateMealRequest) { r.MealType = "BRUNCH" }, ErrInvalidMealType},
		{"negative calories", func(r *CreateMealRequest) { r.Calories = -1 }, ErrInvalidCalories},
		{"bad date", func(r *CreateMealRequest) { r.MealDate = "29-08-2026" }, ErrInvalidDate},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := createRequest(1)
			tc.mutate(&req)
			if _, err := svc.Create(ctx, req); !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestDeleteMissingMeal(t *testing.T) {
	svc, _ := setupMealService(t)
	if err := svc.Delete(context.Background(), 1, snowflake.ID(12345)); !errors.Is(err, ErrMealNotFound) {
		t.Fatalf("expected ErrMealNotFound, got %v", err)
	}
}
