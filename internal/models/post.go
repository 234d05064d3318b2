// Package models contains data structures for the application's domain models.
package models

import (
	"time"
)

// Post lifecycle states. converted and expired are terminal.
const (
	PostStatusActive    = "active"
	PostStatusExpired   = "expired"
	PostStatusConverted = "converted"
)

// Post is an ephemeral, time-boxed intent that collects reactions and may be
// converted into an Activity once.
type Post struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	UserID      uint      `gorm:"not null;index" json:"user_id"`
	Title       string    `gorm:"size:300;not null" json:"title"`
	Description string    `gorm:"type:text" json:"description"`
	Location    string    `gorm:"size:255" json:"location"`
	ExpiresAt   time.Time `gorm:"not null;index" json:"expires_at"`
	Tags        []Tag     `gorm:"many2many:post_tags;" json:"tags,omitempty"`
	// ReactionCount is recomputed from the reactions table after every toggle.
	ReactionCount int `gorm:"not null;default:0" json:"reaction_count"`
	// CommentCount and ViewCount are maintained by the comment and feed collaborators.
	CommentCount int `gorm:"not null;default:0" json:"comment_count"`
	ViewCount    int `gorm:"not null;default:0" json:"view_count"`

	ConversionPromptedAt   *time.Time `json:"conversion_prompted_at,omitempty"`
	ConversionDismissedAt  *time.Time `json:"conversion_dismissed_at,omitempty"`
	ConversionDismissCount int        `gorm:"not null;default:0" json:"conversion_dismiss_count"`

	Status              string    `gorm:"size:20;not null;default:'active';index" json:"status"`
	ConvertedActivityID *uint     `json:"converted_activity_id,omitempty"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// IsActive reports whether the post still accepts reactions, prompts and conversion.
func (p *Post) IsActive() bool {
	return p.Status == PostStatusActive
}

// OpenAt reports whether the post is active and not yet past its expiry at
// now. A post can outlive its expiry until the expiry job retires it.
func (p *Post) OpenAt(now time.Time) bool {
	return p.IsActive() && (p.ExpiresAt.IsZero() || now.Before(p.ExpiresAt))
}

// TagNames returns the names of the tags preloaded on the post.
func (p *Post) TagNames() []string {
	names := make([]string, 0, len(p.Tags))
	for _, t := range p.Tags {
		names = append(names, t.Name)
	}
	return names
}
