package summary

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vitalhq/pulse/pkg/db"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupStore(t *testing.T) *Store {
	t.Helper()
	conn, err := db.NewTest()
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := conn.AutoMigrate(&DailySummary{}, &AppliedEvent{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return NewStore(conn, zap.NewNop())
}

func mealDelta(calories int, protein string) Delta {
	return Delta{
		CaloriesIn: calories,
		ProteinG:   decimal.RequireFromString(protein),
		MealCount:  1,
	}
}

func TestUpsertDeltaCreatesAndAccumulates(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	date := time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC)

	if err := store.UpsertDelta(ctx, 42, date, mealDelta(600, "30.5"), "evt-1", date); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if err := store.UpsertDelta(ctx, 42, date, mealDelta(400, "19.5"), "evt-2", date); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	row, err := store.Read(ctx, 42, date)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if row.CaloriesIn != 1000 {
		t.Fatalf("expected calories_in 1000, got %d", row.CaloriesIn)
	}
	if !row.ProteinG.Equal(decimal.RequireFromString("50")) {
		t.Fatalf("expected protein 50, got %s", row.ProteinG)
	}
	if row.MealCount != 2 {
		t.Fatalf("expected meal_count 2, got %d", row.MealCount)
	}
	if row.Revision != 2 {
		t.Fatalf("expected revision 2, got %d", row.Revision)
	}
}

func TestUpsertDeltaIsIdempotent(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	date := time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC)

	if err := store.UpsertDelta(ctx, 7, date, mealDelta(500, "20"), "evt-dup", date); err != nil {
		t.Fatalf("first upsert: %v", err)
	}

	err := store.UpsertDelta(ctx, 7, date, mealDelta(500, "20"), "evt-dup", date)
	if !errors.Is(err, ErrAlreadyApplied) {
		t.Fatalf("expected ErrAlreadyApplied, got %v", err)
	}

	row, err := store.Read(ctx, 7, date)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if row.CaloriesIn != 500 {
		t.Fatalf("redelivery changed totals: calories_in %d", row.CaloriesIn)
	}
	if row.Revision != 1 {
		t.Fatalf("redelivery bumped revision: %d", row.Revision)
	}
}

func TestDeletionCommutesUnderReordering(t *testing.T) {
	ctx := context.Background()
	date := time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC)
	create := mealDelta(700, "42")

	// Creation then deletion.
	forward := setupStore(t)
	if err := forward.UpsertDelta(ctx, 1, date, create, "c-1", date); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := forward.UpsertDelta(ctx, 1, date, create.Negate(), "d-1", date); err != nil {
		t.Fatalf("delete: %v", err)
	}

	// Deletion arrives first, creation later.
	reversed := setupStore(t)
	if err := reversed.UpsertDelta(ctx, 1, date, create.Negate(), "d-1", date); err != nil {
		t.Fatalf("delete first: %v", err)
	}
	mid, err := reversed.Read(ctx, 1, date)
	if err != nil {
		t.Fatalf("read mid: %v", err)
	}
	if mid.CaloriesIn != -700 {
		t.Fatalf("expected transiently negative total, got %d", mid.CaloriesIn)
	}
	if err := reversed.UpsertDelta(ctx, 1, date, create, "c-1", date); err != nil {
		t.Fatalf("create late: %v", err)
	}

	for name, store := range map[string]*Store{"forward": forward, "reversed": reversed} {
		row, err := store.Read(ctx, 1, date)
		if err != nil {
			t.Fatalf("%s read: %v", name, err)
		}
		if row.CaloriesIn != 0 || row.MealCount != 0 || !row.ProteinG.IsZero() {
			t.Fatalf("%s did not converge to zero: calories %d meals %d protein %s",
				name, row.CaloriesIn, row.MealCount, row.ProteinG)
		}
		if row.Revision != 2 {
			t.Fatalf("%s expected revision 2, got %d", name, row.Revision)
		}
	}
}

func TestReadMissingDateReturnsZeroRow(t *testing.T) {
	store := setupStore(t)

	row, err := store.Read(context.Background(), 99, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if row.UserID != 99 || row.CaloriesIn != 0 || row.Revision != 0 {
		t.Fatalf("expected zero row, got %+v", row)
	}
}

func TestReadRangeFillsGaps(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	start := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	// Day 1 and day 5 have data, the rest are gaps.
	if err := store.UpsertDelta(ctx, 3, start, mealDelta(100, "1"), "g-1", start); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := store.UpsertDelta(ctx, 3, start.AddDate(0, 0, 4), mealDelta(500, "5"), "g-2", start); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	rows, err := store.ReadRange(ctx, 3, start, start.AddDate(0, 0, 6))
	if err != nil {
		t.Fatalf("read range: %v", err)
	}
	if len(rows) != 7 {
		t.Fatalf("expected 7 rows, got %d", len(rows))
	}
	if rows[0].CaloriesIn != 100 || rows[4].CaloriesIn != 500 {
		t.Fatalf("data rows misplaced: %d %d", rows[0].CaloriesIn, rows[4].CaloriesIn)
	}
	for _, i := range []int{1, 2, 3, 5, 6} {
		if rows[i].CaloriesIn != 0 || rows[i].Revision != 0 {
			t.Fatalf("expected gap row at index %d, got %+v", i, rows[i])
		}
	}
}

func TestEnsureNamespaceIsIdempotent(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	date := time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC)

	if err := store.EnsureNamespace(ctx, 5, date); err != nil {
		t.Fatalf("first ensure: %v", err)
	}
	if err := store.EnsureNamespace(ctx, 5, date); err != nil {
		t.Fatalf("second ensure: %v", err)
	}

	row, err := store.Read(ctx, 5, date)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if row.Revision != 0 {
		t.Fatalf("ensure must not touch revision, got %d", row.Revision)
	}

	var count int64
	if err := store.db.Model(&DailySummary{}).Where("user_id = ?", 5).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one row, got %d", count)
	}
}

func TestAppliedEventLedgerRecordsMetadata(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	date := time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC)

	if err := store.UpsertDelta(ctx, 11, date, mealDelta(300, "10"), "evt-a", date); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	var ledger AppliedEvent
	err := store.db.Where("event_id = ?", "evt-a").First(&ledger).Error
	if err != nil {
		t.Fatalf("ledger row missing: %v", err)
	}
	if ledger.UserID != 11 {
		t.Fatalf("ledger user mismatch: %d", ledger.UserID)
	}
	if !errors.Is(store.db.Where("event_id = ?", "evt-missing").First(&AppliedEvent{}).Error, gorm.ErrRecordNotFound) {
		t.Fatal("unexpected ledger row")
	}
}
