package models

import "time"

// Reaction types accepted on a post.
const (
	ReactionInterested = "interested"
	ReactionLike       = "like"
	ReactionLove       = "love"
	ReactionFire       = "fire"
)

// ReactionTypes lists every valid reaction type.
var ReactionTypes = []string{ReactionInterested, ReactionLike, ReactionLove, ReactionFire}

// IsValidReactionType reports whether t is one of ReactionTypes.
func IsValidReactionType(t string) bool {
	for _, rt := range ReactionTypes {
		if rt == t {
			return true
		}
	}
	return false
}

// Reaction is a single user's reaction on a post. A user holds at most one
// reaction per post; changing its type updates the row in place.
type Reaction struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	PostID    uint      `gorm:"not null;uniqueIndex:idx_reactions_post_user" json:"post_id"`
	UserID    uint      `gorm:"not null;uniqueIndex:idx_reactions_post_user;index" json:"user_id"`
	Type      string    `gorm:"size:20;not null" json:"type"`
	CreatedAt time.Time `json:"created_at"`
}
