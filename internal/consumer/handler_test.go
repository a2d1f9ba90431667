package consumer

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/vitalhq/pulse/internal/achievement"
	"github.com/vitalhq/pulse/internal/broker"
	"github.com/vitalhq/pulse/internal/cache"
	"github.com/vitalhq/pulse/internal/clock"
	"github.com/vitalhq/pulse/internal/config"
	"github.com/vitalhq/pulse/internal/derivation"
	"github.com/vitalhq/pulse/internal/events"
	"github.com/vitalhq/pulse/internal/goal"
	"github.com/vitalhq/pulse/internal/outbox"
	"github.com/vitalhq/pulse/internal/summary"
	"github.com/vitalhq/pulse/internal/user"
	"github.com/vitalhq/pulse/pkg/db"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type handlerFixture struct {
	handler *Handler
	store   *summary.Store
	conn    *gorm.DB
}

func setupHandler(t *testing.T) handlerFixture {
	t.Helper()
	conn, err := db.NewTest()
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	err = conn.AutoMigrate(
		&summary.DailySummary{}, &summary.AppliedEvent{},
		&goal.Goal{}, &achievement.Achievement{},
		&user.User{}, &user.WeightEntry{},
		&outbox.OutboxEvent{},
	)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake: %v", err)
	}
	log := zap.NewNop()
	store := summary.NewStore(conn, log)
	achievements := achievement.NewService(achievement.ServiceParam{
		DB: conn, Log: log, GenID: node, Store: store,
	})
	users := user.NewService(user.ServiceParam{
		DB: conn, Log: log, GenID: node, Outbox: outbox.New(node, 8),
	})
	goals := goal.NewService(goal.ServiceParam{
		Config:       config.Config{Cache: config.CacheConfig{GoalTTL: time.Minute}},
		DB:           conn,
		Log:          log,
		GenID:        node,
		Store:        store,
		Users:        users,
		Achievements: achievements,
	})
	fakeClock := clock.NewFakeClock(time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC))
	deriver := derivation.NewDeriver(derivation.DeriverParam{
		Log: log, Clock: fakeClock, Goals: goals, Achievements: achievements,
	})
	handler := NewHandler(HandlerParam{
		Log:     log,
		Store:   store,
		Cache:   cache.NewSummaryCache(nil, log, config.CacheConfig{}),
		Deriver: deriver,
	})
	return handlerFixture{handler: handler, store: store, conn: conn}
}

func mealMessage(t *testing.T, eventID, eventType string, userID int64, date string, calories int) broker.Message {
	t.Helper()
	payload, err := events.Encode(events.MealEvent{
		Envelope: events.NewEnvelope(eventID, eventType, userID, time.Now().UTC()),
		MealID:   1,
		MealDate: date,
		MealType: "LUNCH",
		Calories: calories,
		ProteinG: decimal.RequireFromString("30"),
	})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return broker.Message{Topic: events.TopicMealEvents, Payload: payload}
}

func TestHandleMealCreatedAppliesDelta(t *testing.T) {
	fx := setupHandler(t)
	ctx := context.Background()
	date := time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC)

	msg := mealMessage(t, "evt-1", events.EventMealCreated, 11, "2026-08-29", 700)
	if err := fx.handler.Handle(ctx, msg); err != nil {
		t.Fatalf("handle: %v", err)
	}

	row, err := fx.store.Read(ctx, 11, date)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if row.CaloriesIn != 700 || row.MealCount != 1 {
		t.Fatalf("delta not applied: %+v", row)
	}
	if !row.ProteinG.Equal(decimal.RequireFromString("30")) {
		t.Fatalf("protein not applied: %s", row.ProteinG)
	}
}

func TestHandleRedeliveryAcksWithoutReapplying(t *testing.T) {
	fx := setupHandler(t)
	ctx := context.Background()
	date := time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC)

	msg := mealMessage(t, "evt-dup", events.EventMealCreated, 12, "2026-08-29", 500)
	for i := 0; i < 3; i++ {
		if err := fx.handler.Handle(ctx, msg); err != nil {
			t.Fatalf("delivery %d: %v", i, err)
		}
	}

	row, err := fx.store.Read(ctx, 12, date)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if row.CaloriesIn != 500 || row.MealCount != 1 {
		t.Fatalf("redelivery must be a no-op: %+v", row)
	}
}

func TestHandleDeletionConvergesToZero(t *testing.T) {
	fx := setupHandler(t)
	ctx := context.Background()
	date := time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC)

	created := mealMessage(t, "evt-c", events.EventMealCreated, 13, "2026-08-29", 650)
	deleted := mealMessage(t, "evt-d", events.EventMealDeleted, 13, "2026-08-29", 650)

	if err := fx.handler.Handle(ctx, created); err != nil {
		t.Fatalf("created: %v", err)
	}
	if err := fx.handler.Handle(ctx, deleted); err != nil {
		t.Fatalf("deleted: %v", err)
	}

	row, err := fx.store.Read(ctx, 13, date)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if row.CaloriesIn != 0 || row.MealCount != 0 {
		t.Fatalf("pair must cancel out: %+v", row)
	}
}

func TestHandlePermanentFailures(t *testing.T) {
	fx := setupHandler(t)
	ctx := context.Background()

	cases := []struct {
		name string
		msg  broker.Message
	}{
		{"garbage payload", broker.Message{Topic: events.TopicMealEvents, Payload: []byte("not json")}},
		{"missing envelope fields", broker.Message{Topic: events.TopicMealEvents, Payload: []byte(`{"event_type":"meal.created"}`)}},
		{"unknown event type", mealMessage(t, "evt-u", "meal.updated", 14, "2026-08-29", 100)},
		{"bad meal date", mealMessage(t, "evt-b", events.EventMealCreated, 14, "29/08/2026", 100)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := fx.handler.Handle(ctx, tc.msg)
			if !broker.IsPermanent(err) {
				t.Fatalf("expected permanent error, got %v", err)
			}
		})
	}
}

func TestHandleRegisteredCreatesNamespace(t *testing.T) {
	fx := setupHandler(t)
	ctx := context.Background()

	payload, err := events.Encode(events.RegisteredEvent{
		Envelope: events.NewEnvelope("evt-r", events.EventUserRegistered, 15, time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)),
		Email:    "new@example.com",
	})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	msg := broker.Message{Topic: events.TopicUserEvents, Payload: payload}

	// Twice: namespace creation is naturally idempotent.
	for i := 0; i < 2; i++ {
		if err := fx.handler.Handle(ctx, msg); err != nil {
			t.Fatalf("delivery %d: %v", i, err)
		}
	}

	var count int64
	if err := fx.conn.Model(&summary.DailySummary{}).Where("user_id = ?", 15).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one namespace row, got %d", count)
	}
}

func TestHandleDrivesStreaksAndGoals(t *testing.T) {
	fx := setupHandler(t)
	ctx := context.Background()
	today := time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC)

	// Three consecutive logged days ending today, delivered out of order.
	for i, offset := range []int{1, 2, 0} {
		day := today.AddDate(0, 0, -offset)
		msg := mealMessage(t, fmt.Sprintf("evt-s%d", i), events.EventMealCreated, 16, day.Format("2006-01-02"), 2000)
		if err := fx.handler.Handle(ctx, msg); err != nil {
			t.Fatalf("handle day %d: %v", offset, err)
		}
	}

	var streaks int64
	err := fx.conn.Model(&achievement.Achievement{}).
		Where("user_id = ? AND kind = ?", 16, achievement.KindStreak).
		Count(&streaks).Error
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if streaks != 1 {
		t.Fatalf("expected one 3-day streak award, got %d", streaks)
	}
}

func TestHandleBackfillDoesNotAwardHistoricalStreaks(t *testing.T) {
	fx := setupHandler(t)
	ctx := context.Background()

	// Three consecutive days logged years ago. The run ended long before
	// today, so replaying or backfilling those events must update the
	// rollup without minting streak awards.
	for i, date := range []string{"2020-01-01", "2020-01-02", "2020-01-03"} {
		msg := mealMessage(t, fmt.Sprintf("evt-old%d", i), events.EventMealCreated, 77, date, 1800)
		if err := fx.handler.Handle(ctx, msg); err != nil {
			t.Fatalf("handle %s: %v", date, err)
		}
	}

	row, err := fx.store.Read(ctx, 77, time.Date(2020, 1, 2, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if row.CaloriesIn != 1800 {
		t.Fatalf("backfill must still reach the rollup: %+v", row)
	}

	var awards int64
	if err := fx.conn.Model(&achievement.Achievement{}).Where("user_id = ?", 77).Count(&awards).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if awards != 0 {
		t.Fatalf("historical run must not award, got %d", awards)
	}
}
