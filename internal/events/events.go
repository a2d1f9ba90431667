package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"strconv"
	"strings"
	"time"
)

// Event kinds published by the domain services.
const (
	EventMealCreated      = "meal.created"
	EventMealDeleted      = "meal.deleted"
	EventWorkoutCompleted = "workout.completed"
	EventWorkoutDeleted   = "workout.deleted"
	EventWeightUpdated    = "user.weight_updated"
	EventUserRegistered   = "user.registered"
)

// Topic names. One topic per event family; every record is keyed by
// user_id so all events for one user stay on one partition.
const (
	TopicMealEvents    = "meal-events"
	TopicWorkoutEvents = "workout-events"
	TopicUserEvents    = "user-events"
)

// DateLayout is the wire format for calendar dates.
const DateLayout = "2006-01-02"

var (
	ErrMalformed    = errors.New("events: malformed envelope")
	ErrUnknownEvent = errors.New("events: unknown event type")
)

// Envelope carries the fields common to every published event. The
// full wire record is the envelope plus kind-specific fields in one
// flat JSON object; readers must tolerate unknown fields.
type Envelope struct {
	EventID        string    `json:"event_id"`
	EventType      string    `json:"event_type"`
	EventTimestamp time.Time `json:"event_timestamp"`
	UserID         int64     `json:"user_id,string"`

	// raw holds the original record bytes for dead-lettering.
	raw []byte
}

// Raw returns the original record bytes, byte-identical to what was
// consumed from the stream.
func (e Envelope) Raw() []byte { return e.raw }

// PartitionKey is user_id rendered as a decimal string. Every record
// is keyed by it, and the partition hash runs over the same string.
func PartitionKey(userID int64) string {
	return strconv.FormatInt(userID, 10)
}

// TopicFor maps an event type to its topic.
func TopicFor(eventType string) (string, error) {
	switch eventType {
	case EventMealCreated, EventMealDeleted:
		return TopicMealEvents, nil
	case EventWorkoutCompleted, EventWorkoutDeleted:
		return TopicWorkoutEvents, nil
	case EventWeightUpdated, EventUserRegistered:
		return TopicUserEvents, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownEvent, eventType)
	}
}

// Partition selects the partition for a user. The same user always
// hashes to the same partition, which carries the per-user ordering
// guarantee end to end.
func Partition(userID int64, partitions int) int {
	if partitions <= 1 {
		return 0
	}
	h := fnv.New32a()
	h.Write([]byte(PartitionKey(userID)))
	return int(h.Sum32() % uint32(partitions))
}

// Decode parses the envelope out of a wire record. Unknown fields are
// ignored; a missing event_id, event_type or user_id is a permanent
// error and the record belongs on the dead-letter stream.
func Decode(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if strings.TrimSpace(env.EventID) == "" {
		return Envelope{}, fmt.Errorf("%w: missing event_id", ErrMalformed)
	}
	if strings.TrimSpace(env.EventType) == "" {
		return Envelope{}, fmt.Errorf("%w: missing event_type", ErrMalformed)
	}
	if env.UserID == 0 {
		return Envelope{}, fmt.Errorf("%w: missing user_id", ErrMalformed)
	}
	env.raw = data
	return env, nil
}

// DecodePayload parses the kind-specific fields of a record into dst.
func DecodePayload(data []byte, dst any) error {
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}
