package achievement

import (
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Achievement kinds.
const (
	KindStreak         = "STREAK"
	KindMilestone      = "MILESTONE"
	KindGoalCompleted  = "GOAL_COMPLETED"
	KindPersonalRecord = "PERSONAL_RECORD"
)

// StreakThresholds are the streak lengths, in days, that earn an award.
var StreakThresholds = []int{3, 7, 14, 30, 60, 100}

// Achievement is an awarded badge. The dedup_key is a natural key
// that makes award attempts idempotent: the same badge can be
// attempted any number of times and inserted at most once.
type Achievement struct {
	ID        snowflake.ID      `json:"id" gorm:"primaryKey"`
	UserID    int64             `json:"user_id" gorm:"column:user_id;not null;uniqueIndex:ux_achievements_user_dedup,priority:1"`
	Kind      string            `json:"kind" gorm:"type:text;not null"`
	Payload   datatypes.JSONMap `json:"payload" gorm:"type:json"`
	DedupKey  string            `json:"dedup_key" gorm:"type:text;not null;uniqueIndex:ux_achievements_user_dedup,priority:2"`
	AwardedAt time.Time         `json:"awarded_at" gorm:"not null;index:idx_achievements_awarded"`
}

// TableName sets the database table name.
func (Achievement) TableName() string { return "achievements" }

// StreakDedupKey builds the natural key for a streak award.
func StreakDedupKey(userID int64, days int) string {
	return fmt.Sprintf("user:%d:streak:%d", userID, days)
}

// GoalDedupKey builds the natural key for a goal-completion award.
func GoalDedupKey(userID int64, goalID snowflake.ID) string {
	return fmt.Sprintf("user:%d:goal:%s", userID, goalID)
}

// ListResponse is one page of achievements, newest first.
type ListResponse struct {
	Achievements []Achievement `json:"achievements"`
	Page         int           `json:"page"`
	Size         int           `json:"size"`
	Total        int64         `json:"total"`
}
