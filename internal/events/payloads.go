package events

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// MealEvent is the wire record for meal.created and meal.deleted.
// A meal.deleted carries the same totals as its meal.created so the
// two commute under redelivery and reordering.
type MealEvent struct {
	Envelope
	MealID   int64           `json:"meal_id,string"`
	MealDate string          `json:"meal_date"`
	MealType string          `json:"meal_type"`
	Calories int             `json:"calories"`
	ProteinG decimal.Decimal `json:"protein_g"`
	CarbsG   decimal.Decimal `json:"carbs_g"`
	FatG     decimal.Decimal `json:"fat_g"`
	FiberG   decimal.Decimal `json:"fiber_g"`
}

// WorkoutEvent is the wire record for workout.completed and
// workout.deleted.
type WorkoutEvent struct {
	Envelope
	WorkoutID       int64  `json:"workout_id,string"`
	WorkoutDate     string `json:"workout_date"`
	DurationMinutes int    `json:"duration_minutes"`
	CaloriesBurned  int    `json:"calories_burned"`
	WorkoutType     string `json:"workout_type"`
}

// WeightEvent is the wire record for user.weight_updated.
type WeightEvent struct {
	Envelope
	WeightKg     decimal.Decimal `json:"weight_kg"`
	RecordedDate string          `json:"recorded_date"`
}

// RegisteredEvent is the wire record for user.registered.
type RegisteredEvent struct {
	Envelope
	Email        string    `json:"email"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	RegisteredAt time.Time `json:"registered_at"`
}

// Encode marshals a full wire record.
func Encode(record any) ([]byte, error) {
	return json.Marshal(record)
}

// NewEnvelope stamps the common fields for a freshly minted event.
// The event_id must stay stable across publish retries of the same
// logical event; callers mint it once and persist it on the outbox row.
func NewEnvelope(eventID, eventType string, userID int64, at time.Time) Envelope {
	return Envelope{
		EventID:        eventID,
		EventType:      eventType,
		EventTimestamp: at.UTC(),
		UserID:         userID,
	}
}
