// Package notifications publishes domain events to Redis channels after the
// owning transaction commits.
package notifications

import (
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Event types emitted by the services.
const (
	EventReactionToggled       = "reaction.toggled"
	EventConversionPrompted    = "conversion.prompted"
	EventConversionDismissed   = "conversion.dismissed"
	EventConversionCompleted   = "conversion.completed"
	EventReservationCreated    = "reservation.created"
	EventReservationUpdated    = "reservation.updated"
	EventReservationCancelled  = "reservation.cancelled"
	EventReservationPromoted   = "reservation.promoted"
	EventActivityStatusChanged = "activity.status_changed"
)

// Event is a fire-and-forget record of something that already committed.
type Event struct {
	ID         string      `json:"id"`
	Type       string      `json:"type"`
	OccurredAt time.Time   `json:"occurred_at"`
	ActorID    uint        `json:"actor_id,omitempty"`
	PostID     uint        `json:"post_id,omitempty"`
	ActivityID uint        `json:"activity_id,omitempty"`
	RsvpID     uint        `json:"rsvp_id,omitempty"`
	UserID     uint        `json:"user_id,omitempty"`
	// Recipients are users whose personal channel also receives the event.
	Recipients []uint      `json:"recipients,omitempty"`
	Payload    interface{} `json:"payload,omitempty"`
}

// NewEvent stamps a fresh event of the given type.
func NewEvent(eventType string, at time.Time) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		OccurredAt: at.UTC(),
	}
}

// EventChannel derives the Redis channel name for an event type.
func EventChannel(eventType string) string {
	return "events:" + eventType
}

const userChannelPrefix = "notifications:user:"

// UserChannel derives the Redis channel name for a user.
func UserChannel(userID uint) string {
	return userChannelPrefix + strconv.FormatUint(uint64(userID), 10)
}
