package user

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

var (
	ErrInvalidEmail  = errors.New("user: invalid email")
	ErrInvalidWeight = errors.New("user: weight must be positive")
	ErrInvalidDate   = errors.New("user: invalid recorded date")
	ErrUserNotFound  = errors.New("user: not found")
	ErrEmailTaken    = errors.New("user: email already registered")
)

// User is the identity record owned by this service.
type User struct {
	ID        snowflake.ID `json:"id" gorm:"primaryKey"`
	Email     string       `json:"email" gorm:"type:text;not null;uniqueIndex:ux_users_email"`
	FirstName string       `json:"first_name" gorm:"type:text;not null"`
	LastName  string       `json:"last_name" gorm:"type:text;not null"`
	CreatedAt time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt time.Time    `json:"updated_at" gorm:"not null"`
}

// TableName sets the database table name.
func (User) TableName() string { return "users" }

// WeightEntry is one weight observation. It never touches the rollup;
// it feeds goal derivation.
type WeightEntry struct {
	ID           snowflake.ID    `json:"id" gorm:"primaryKey"`
	UserID       int64           `json:"user_id" gorm:"column:user_id;not null;index:idx_weight_user_date,priority:1"`
	WeightKg     decimal.Decimal `json:"weight_kg" gorm:"type:decimal(6,2);not null"`
	RecordedDate time.Time       `json:"recorded_date" gorm:"type:date;not null;index:idx_weight_user_date,priority:2"`
	CreatedAt    time.Time       `json:"created_at" gorm:"not null"`
}

// TableName sets the database table name.
func (WeightEntry) TableName() string { return "weight_entries" }

// RegisterRequest creates a user.
type RegisterRequest struct {
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// RecordWeightRequest logs a weight observation.
type RecordWeightRequest struct {
	UserID       int64           `json:"user_id,string"`
	WeightKg     decimal.Decimal `json:"weight_kg"`
	RecordedDate string          `json:"recorded_date"`
}
