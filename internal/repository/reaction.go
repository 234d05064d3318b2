package repository

import (
	"context"

	"rally/internal/models"

	"gorm.io/gorm"
)

// ReactionRepository defines the interface for reaction data operations
type ReactionRepository interface {
	// Find returns the user's reaction on a post, or nil when there is none.
	Find(ctx context.Context, postID, userID uint) (*models.Reaction, error)
	Create(ctx context.Context, reaction *models.Reaction) error
	Delete(ctx context.Context, id uint) error
	UpdateType(ctx context.Context, id uint, reactionType string) error
	ListByPost(ctx context.Context, postID uint) ([]models.Reaction, error)
}

type reactionRepository struct {
	db *gorm.DB
}

// NewReactionRepository creates a new reaction repository
func NewReactionRepository(db *gorm.DB) ReactionRepository {
	return &reactionRepository{db: db}
}

func (r *reactionRepository) Find(ctx context.Context, postID, userID uint) (*models.Reaction, error) {
	var reaction models.Reaction
	err := r.db.WithContext(ctx).
		Where("post_id = ? AND user_id = ?", postID, userID).
		First(&reaction).Error
	return firstOrNil(&reaction, err)
}

func (r *reactionRepository) Create(ctx context.Context, reaction *models.Reaction) error {
	return translate(r.db.WithContext(ctx).Create(reaction).Error, "Reaction", reaction.PostID)
}

func (r *reactionRepository) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Delete(&models.Reaction{}, id).Error
}

func (r *reactionRepository) UpdateType(ctx context.Context, id uint, reactionType string) error {
	return r.db.WithContext(ctx).Model(&models.Reaction{}).
		Where("id = ?", id).
		Update("type", reactionType).Error
}

func (r *reactionRepository) ListByPost(ctx context.Context, postID uint) ([]models.Reaction, error) {
	var reactions []models.Reaction
	err := r.db.WithContext(ctx).
		Where("post_id = ?", postID).
		Order("id ASC").
		Find(&reactions).Error
	return reactions, err
}
