package achievement

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/vitalhq/pulse/internal/metrics"
	"github.com/vitalhq/pulse/internal/summary"
	"github.com/vitalhq/pulse/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Store   *summary.Store
	Metrics *metrics.Metrics `optional:"true"`
}

// Service awards achievements and evaluates streaks against the
// rollup. Award is idempotent under event redelivery: the unique
// dedup_key turns a repeat attempt into a silent no-op.
type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	store   *summary.Store
	metrics *metrics.Metrics
}

func NewService(p ServiceParam) *Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("achievement.service"),
		genID:   p.GenID,
		store:   p.Store,
		metrics: p.Metrics,
	}
}

// Award inserts an achievement. A dedup_key collision means the badge
// was already given; the attempt is dropped silently and reported as
// awarded=false.
func (s *Service) Award(ctx context.Context, userID int64, kind, dedupKey string, payload map[string]any) (bool, error) {
	record := Achievement{
		ID:        s.genID.Generate(),
		UserID:    userID,
		Kind:      kind,
		Payload:   datatypes.JSONMap(payload),
		DedupKey:  dedupKey,
		AwardedAt: time.Now().UTC(),
	}

	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		if db.IsDuplicateKeyErr(err) {
			return false, nil
		}
		return false, err
	}

	if s.metrics != nil {
		s.metrics.AchievementsGiven.WithLabelValues(kind).Inc()
	}
	s.log.Info("achievement awarded",
		zap.Int64("user_id", userID),
		zap.String("kind", kind),
		zap.String("dedup_key", dedupKey),
	)
	return true, nil
}

// EvaluateStreaks recomputes the user's logging streak ending today
// and attempts an award for every threshold the streak has reached.
// A day counts as logged when its rollup shows at least one meal or
// workout.
func (s *Service) EvaluateStreaks(ctx context.Context, userID int64, today time.Time) error {
	today = summary.DateOf(today)
	maxWindow := StreakThresholds[len(StreakThresholds)-1]

	rows, err := s.store.ReadRange(ctx, userID, today.AddDate(0, 0, -(maxWindow-1)), today)
	if err != nil {
		return err
	}

	streak := 0
	for i := len(rows) - 1; i >= 0; i-- {
		if rows[i].MealCount+rows[i].WorkoutCount < 1 {
			break
		}
		streak++
	}

	for _, threshold := range StreakThresholds {
		if streak < threshold {
			break
		}
		_, err := s.Award(ctx, userID, KindStreak, StreakDedupKey(userID, threshold), map[string]any{
			"days": threshold,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// List returns one page of achievements ordered by awarded_at
// descending.
func (s *Service) List(ctx context.Context, userID int64, page, size int) (ListResponse, error) {
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > 100 {
		size = 20
	}

	var total int64
	if err := s.db.WithContext(ctx).Model(&Achievement{}).
		Where("user_id = ?", userID).
		Count(&total).Error; err != nil {
		return ListResponse{}, err
	}

	var records []Achievement
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("awarded_at DESC, id DESC").
		Offset((page - 1) * size).
		Limit(size).
		Find(&records).Error
	if err != nil {
		return ListResponse{}, err
	}

	return ListResponse{
		Achievements: records,
		Page:         page,
		Size:         size,
		Total:        total,
	}, nil
}
