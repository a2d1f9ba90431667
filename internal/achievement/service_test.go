package achievement

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/vitalhq/pulse/internal/summary"
	"github.com/vitalhq/pulse/pkg/db"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupAchievements(t *testing.T) (*Service, *summary.Store, *gorm.DB) {
	t.Helper()
	conn, err := db.NewTest()
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := conn.AutoMigrate(&Achievement{}, &summary.DailySummary{}, &summary.AppliedEvent{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake: %v", err)
	}
	store := summary.NewStore(conn, zap.NewNop())
	svc := NewService(ServiceParam{
		DB:    conn,
		Log:   zap.NewNop(),
		GenID: node,
		Store: store,
	})
	return svc, store, conn
}

func logDay(t *testing.T, store *summary.Store, userID int64, date time.Time, eventID string) {
	t.Helper()
	err := store.UpsertDelta(context.Background(), userID, date, summary.Delta{
		CaloriesIn: 2000,
		MealCount:  1,
	}, eventID, date)
	if err != nil {
		t.Fatalf("seed day %s: %v", date.Format("2006-01-02"), err)
	}
}

func TestAwardIsIdempotent(t *testing.T) {
	svc, _, conn := setupAchievements(t)
	ctx := context.Background()

	awarded, err := svc.Award(ctx, 1, KindStreak, StreakDedupKey(1, 3), map[string]any{"days": 3})
	if err != nil {
		t.Fatalf("first award: %v", err)
	}
	if !awarded {
		t.Fatal("first attempt must award")
	}

	awarded, err = svc.Award(ctx, 1, KindStreak, StreakDedupKey(1, 3), map[string]any{"days": 3})
	if err != nil {
		t.Fatalf("second award: %v", err)
	}
	if awarded {
		t.Fatal("repeat attempt must be a silent no-op")
	}

	var count int64
	if err := conn.Model(&Achievement{}).Where("user_id = ?", 1).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected exactly one achievement, got %d", count)
	}
}

func TestEvaluateStreaksAwardsReachedThresholds(t *testing.T) {
	svc, store, conn := setupAchievements(t)
	ctx := context.Background()
	today := time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC)

	// Seven consecutive logged days ending today.
	for i := 0; i < 7; i++ {
		logDay(t, store, 2, today.AddDate(0, 0, -i), fmt.Sprintf("s-%d", i))
	}

	if err := svc.EvaluateStreaks(ctx, 2, today); err != nil {
		t.Fatalf("evaluate: %v", err)
	}

	var records []Achievement
	if err := conn.Where("user_id = ?", 2).Find(&records).Error; err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected awards for 3 and 7 days, got %d", len(records))
	}

	// Re-evaluation after a redelivered event changes nothing.
	if err := svc.EvaluateStreaks(ctx, 2, today); err != nil {
		t.Fatalf("re-evaluate: %v", err)
	}
	var count int64
	if err := conn.Model(&Achievement{}).Where("user_id = ?", 2).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 2 {
		t.Fatalf("re-evaluation minted extra awards: %d", count)
	}
}

func TestEvaluateStreaksRequiresRunEndingToday(t *testing.T) {
	svc, store, conn := setupAchievements(t)
	ctx := context.Background()
	today := time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC)

	// Three logged days but a gap yesterday: no active streak.
	for i := 2; i <= 4; i++ {
		logDay(t, store, 3, today.AddDate(0, 0, -i), fmt.Sprintf("gap-%d", i))
	}

	if err := svc.EvaluateStreaks(ctx, 3, today); err != nil {
		t.Fatalf("evaluate: %v", err)
	}

	var count int64
	if err := conn.Model(&Achievement{}).Where("user_id = ?", 3).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("broken streak must not award, got %d", count)
	}
}

func TestListPaginatesNewestFirst(t *testing.T) {
	svc, _, _ := setupAchievements(t)
	ctx := context.Background()

	for _, days := range StreakThresholds {
		if _, err := svc.Award(ctx, 4, KindStreak, StreakDedupKey(4, days), map[string]any{"days": days}); err != nil {
			t.Fatalf("award %d: %v", days, err)
		}
	}

	page, err := svc.List(ctx, 4, 1, 4)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.Total != int64(len(StreakThresholds)) {
		t.Fatalf("expected total %d, got %d", len(StreakThresholds), page.Total)
	}
	if len(page.Achievements) != 4 {
		t.Fatalf("expected 4 on first page, got %d", len(page.Achievements))
	}

	second, err := svc.List(ctx, 4, 2, 4)
	if err != nil {
		t.Fatalf("list page 2: %v", err)
	}
	if len(second.Achievements) != 2 {
		t.Fatalf("expected 2 on second page, got %d", len(second.Achievements))
	}
}
