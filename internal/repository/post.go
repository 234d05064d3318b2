package repository

import (
	"context"
	"time"

	"rally/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PostRepository defines the interface for post data operations
type PostRepository interface {
	Create(ctx context.Context, post *models.Post) error
	GetByID(ctx context.Context, id uint) (*models.Post, error)
	// LockByID loads the post row with an exclusive lock held until the
	// surrounding transaction ends.
	LockByID(ctx context.Context, id uint) (*models.Post, error)
	LoadTags(ctx context.Context, post *models.Post) error
	UpdateReactionCount(ctx context.Context, id uint, count int) error
	StampPrompted(ctx context.Context, id uint, at time.Time) error
	RecordDismiss(ctx context.Context, id uint, at time.Time) error
	MarkConverted(ctx context.Context, id uint, activityID uint) error
	// ExpireDue retires active posts whose expiry has passed and returns their ids.
	ExpireDue(ctx context.Context, now time.Time) ([]uint, error)
}

type postRepository struct {
	db *gorm.DB
}

// NewPostRepository creates a new post repository
func NewPostRepository(db *gorm.DB) PostRepository {
	return &postRepository{db: db}
}

func (r *postRepository) Create(ctx context.Context, post *models.Post) error {
	return translate(r.db.WithContext(ctx).Create(post).Error, "Post", post.ID)
}

func (r *postRepository) GetByID(ctx context.Context, id uint) (*models.Post, error) {
	var post models.Post
	if err := r.db.WithContext(ctx).Preload("Tags").First(&post, id).Error; err != nil {
		return nil, translate(err, "Post", id)
	}
	return &post, nil
}

func (r *postRepository) LockByID(ctx context.Context, id uint) (*models.Post, error) {
	var post models.Post
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&post, id).Error
	if err != nil {
		return nil, translate(err, "Post", id)
	}
	return &post, nil
}

func (r *postRepository) LoadTags(ctx context.Context, post *models.Post) error {
	return r.db.WithContext(ctx).Model(post).Association("Tags").Find(&post.Tags)
}

func (r *postRepository) UpdateReactionCount(ctx context.Context, id uint, count int) error {
	return r.update(ctx, id, map[string]interface{}{"reaction_count": count})
}

func (r *postRepository) StampPrompted(ctx context.Context, id uint, at time.Time) error {
	return r.update(ctx, id, map[string]interface{}{"conversion_prompted_at": at})
}

func (r *postRepository) RecordDismiss(ctx context.Context, id uint, at time.Time) error {
	return r.update(ctx, id, map[string]interface{}{
		"conversion_dismiss_count": gorm.Expr("conversion_dismiss_count + 1"),
		"conversion_dismissed_at":  at,
	})
}

// MarkConverted retires an active post. A post that is no longer active is a
// conflict rather than a silent no-op.
func (r *postRepository) MarkConverted(ctx context.Context, id uint, activityID uint) error {
	res := r.db.WithContext(ctx).Model(&models.Post{}).
		Where("id = ? AND status = ?", id, models.PostStatusActive).
		Updates(map[string]interface{}{
			"status":                models.PostStatusConverted,
			"converted_activity_id": activityID,
		})
	if res.Error != nil {
		return translate(res.Error, "Post", id)
	}
	if res.RowsAffected == 0 {
		return models.NewConflictError("post is no longer active")
	}
	return nil
}

func (r *postRepository) ExpireDue(ctx context.Context, now time.Time) ([]uint, error) {
	var ids []uint
	err := r.db.WithContext(ctx).Model(&models.Post{}).
		Where("status = ? AND expires_at <= ?", models.PostStatusActive, now).
		Pluck("id", &ids).Error
	if err != nil || len(ids) == 0 {
		return nil, err
	}
	err = r.db.WithContext(ctx).Model(&models.Post{}).
		Where("id IN ? AND status = ?", ids, models.PostStatusActive).
		Update("status", models.PostStatusExpired).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *postRepository) update(ctx context.Context, id uint, fields map[string]interface{}) error {
	res := r.db.WithContext(ctx).Model(&models.Post{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return translate(res.Error, "Post", id)
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("Post", id)
	}
	return nil
}
