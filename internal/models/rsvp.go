package models

import "time"

// Reservation states.
const (
	RsvpStatusAttending = "attending"
	RsvpStatusMaybe     = "maybe"
	RsvpStatusWaitlist  = "waitlist"
	RsvpStatusDeclined  = "declined"
)

// IsValidRsvpStatus reports whether s names a reservation state.
func IsValidRsvpStatus(s string) bool {
	switch s {
	case RsvpStatusAttending, RsvpStatusMaybe, RsvpStatusWaitlist, RsvpStatusDeclined:
		return true
	}
	return false
}

// Rsvp is a user's claim on an activity. One row per (activity, user); the ID
// doubles as the waitlist tie-break for rows created in the same instant.
type Rsvp struct {
	ID         uint   `gorm:"primaryKey" json:"id"`
	ActivityID uint   `gorm:"not null;uniqueIndex:idx_rsvps_activity_user;index:idx_rsvps_activity_status" json:"activity_id"`
	UserID     uint   `gorm:"not null;uniqueIndex:idx_rsvps_activity_user;index" json:"user_id"`
	Status     string `gorm:"size:20;not null;index:idx_rsvps_activity_status" json:"status"`
	Attended   bool   `gorm:"not null;default:false" json:"attended"`

	// Payment linkage is opaque to this service.
	PaymentIntentID *string `gorm:"size:128" json:"payment_intent_id,omitempty"`
	PaymentStatus   string  `gorm:"size:32" json:"payment_status,omitempty"`

	PromotedAt *time.Time `json:"promoted_at,omitempty"`
	CreatedAt  time.Time  `gorm:"index" json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}
