package meal

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

var (
	ErrInvalidUser     = errors.New("meal: invalid user")
	ErrInvalidDate     = errors.New("meal: invalid meal date")
	ErrInvalidMealType = errors.New("meal: invalid meal type")
	ErrInvalidCalories = errors.New("meal: calories must not be negative")
	ErrMealNotFound    = errors.New("meal: not found")
)

const (
	TypeBreakfast = "BREAKFAST"
	TypeLunch     = "LUNCH"
	TypeDinner    = "DINNER"
	TypeSnack     = "SNACK"
)

// Meal is a single logged meal. Its lifecycle is created -> deleted
// with no intermediate states; an edit is expressed as delete+create.
type Meal struct {
	ID       snowflake.ID    `json:"id" gorm:"primaryKey"`
	UserID   int64           `json:"user_id" gorm:"column:user_id;not null;index:idx_meals_user_date,priority:1"`
	MealDate time.Time       `json:"meal_date" gorm:"type:date;not null;index:idx_meals_user_date,priority:2"`
	MealType string          `json:"meal_type" gorm:"type:text;not null"`
	Calories int             `json:"calories" gorm:"not null"`
	ProteinG decimal.Decimal `json:"protein_g" gorm:"type:decimal(10,2);not null;default:0"`
	CarbsG   decimal.Decimal `json:"carbs_g" gorm:"type:decimal(10,2);not null;default:0"`
	FatG     decimal.Decimal `json:"fat_g" gorm:"type:decimal(10,2);not null;default:0"`
	FiberG   decimal.Decimal `json:"fiber_g" gorm:"type:decimal(10,2);not null;default:0"`

	CreatedAt time.Time `json:"created_at" gorm:"not null"`
}

// TableName sets the database table name.
func (Meal) TableName() string { return "meals" }

// CreateMealRequest is the producer-side write shape.
type CreateMealRequest struct {
	UserID   int64           `json:"user_id,string"`
	MealDate string          `json:"meal_date"`
	MealType string          `json:"meal_type"`
	Calories int             `json:"calories"`
	ProteinG decimal.Decimal `json:"protein_g"`
	CarbsG   decimal.Decimal `json:"carbs_g"`
	FatG     decimal.Decimal `json:"fat_g"`
	FiberG   decimal.Decimal `json:"fiber_g"`
}

func validMealType(value string) bool {
	switch value {
	case TypeBreakfast, TypeLunch, TypeDinner, TypeSnack:
		return true
	default:
		return false
	}
}
