package models

import "time"

// Activity lifecycle states.
const (
	ActivityStatusDraft     = "draft"
	ActivityStatusPublished = "published"
	ActivityStatusActive    = "active"
	ActivityStatusCompleted = "completed"
	ActivityStatusCancelled = "cancelled"
)

// Activity is a structured, capacity-bounded event. CurrentAttendees mirrors the
// number of attending reservations and is only changed under the activity row lock.
type Activity struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	HostID      uint      `gorm:"not null;index" json:"host_id"`
	Title       string    `gorm:"size:300;not null" json:"title"`
	Description string    `gorm:"type:text" json:"description"`
	Location    string    `gorm:"size:255" json:"location"`
	StartTime   time.Time `gorm:"not null;index" json:"start_time"`
	EndTime     time.Time `gorm:"not null" json:"end_time"`
	// MaxAttendees nil means unbounded.
	MaxAttendees     *int `json:"max_attendees"`
	CurrentAttendees int  `gorm:"not null;default:0" json:"current_attendees"`

	// Pricing flags are supplied by the payment subsystem and stored as-is.
	IsPaid     bool   `gorm:"not null;default:false" json:"is_paid"`
	PriceCents int    `gorm:"not null;default:0" json:"price_cents"`
	Currency   string `gorm:"size:3" json:"currency,omitempty"`

	Status               string    `gorm:"size:20;not null;default:'draft';index" json:"status"`
	OriginatedFromPostID *uint     `gorm:"index" json:"originated_from_post_id,omitempty"`
	Tags                 []Tag     `gorm:"many2many:activity_tags;" json:"tags,omitempty"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// IsBounded reports whether the activity has an attendee cap.
func (a *Activity) IsBounded() bool {
	return a.MaxAttendees != nil
}

// IsFull reports whether a bounded activity has no spots left.
func (a *Activity) IsFull() bool {
	return a.MaxAttendees != nil && a.CurrentAttendees >= *a.MaxAttendees
}

// SpotsRemaining returns the open spots, or nil when unbounded.
func (a *Activity) SpotsRemaining() *int {
	if a.MaxAttendees == nil {
		return nil
	}
	left := *a.MaxAttendees - a.CurrentAttendees
	if left < 0 {
		left = 0
	}
	return &left
}

// AcceptsReservations reports whether new reservations may be created.
func (a *Activity) AcceptsReservations() bool {
	return a.Status == ActivityStatusPublished || a.Status == ActivityStatusActive
}
