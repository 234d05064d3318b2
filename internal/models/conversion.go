package models

import "time"

// Conversion trigger types.
const (
	ConversionTriggerManual   = "manual"
	ConversionTriggerPrompted = "prompted"
)

// ConversionRecord is the permanent audit of one post becoming one activity.
// The unique index on PostID is what guarantees a post converts at most once.
type ConversionRecord struct {
	ID                uint   `gorm:"primaryKey" json:"id"`
	PostID            uint   `gorm:"not null;uniqueIndex" json:"post_id"`
	ActivityID        uint   `gorm:"not null;uniqueIndex" json:"activity_id"`
	ConvertedByUserID uint   `gorm:"not null" json:"converted_by_user_id"`
	TriggerType       string `gorm:"size:20;not null" json:"trigger_type"`
	PromptUrgency     string `gorm:"size:10" json:"prompt_urgency,omitempty"`

	ReactionCount int `gorm:"not null;default:0" json:"reaction_count"`
	CommentCount  int `gorm:"not null;default:0" json:"comment_count"`
	ViewCount     int `gorm:"not null;default:0" json:"view_count"`

	// RsvpConversionRate is filled in after the fact: attending / ReactionCount.
	RsvpConversionRate *float64  `json:"rsvp_conversion_rate,omitempty"`
	ConvertedAt        time.Time `gorm:"not null" json:"converted_at"`
}
