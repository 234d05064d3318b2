package repository

import (
	"context"

	"rally/internal/models"

	"gorm.io/gorm"
)

// ConversionRepository stores the append-only conversion audit.
type ConversionRepository interface {
	// Create fails with a conflict when the post already has a record.
	Create(ctx context.Context, record *models.ConversionRecord) error
	GetByPostID(ctx context.Context, postID uint) (*models.ConversionRecord, error)
	GetByActivityID(ctx context.Context, activityID uint) (*models.ConversionRecord, error)
	UpdateRate(ctx context.Context, id uint, rate float64) error
}

type conversionRepository struct {
	db *gorm.DB
}

// NewConversionRepository creates a new conversion record repository
func NewConversionRepository(db *gorm.DB) ConversionRepository {
	return &conversionRepository{db: db}
}

func (r *conversionRepository) Create(ctx context.Context, record *models.ConversionRecord) error {
	err := r.db.WithContext(ctx).Create(record).Error
	if IsUniqueViolation(err) {
		return &models.AppError{
			Code:    models.CodeConflict,
			Message: "post has already been converted",
			Err:     err,
		}
	}
	return err
}

func (r *conversionRepository) GetByPostID(ctx context.Context, postID uint) (*models.ConversionRecord, error) {
	var record models.ConversionRecord
	if err := r.db.WithContext(ctx).Where("post_id = ?", postID).First(&record).Error; err != nil {
		return nil, translate(err, "ConversionRecord", postID)
	}
	return &record, nil
}

func (r *conversionRepository) GetByActivityID(ctx context.Context, activityID uint) (*models.ConversionRecord, error) {
	var record models.ConversionRecord
	if err := r.db.WithContext(ctx).Where("activity_id = ?", activityID).First(&record).Error; err != nil {
		return nil, translate(err, "ConversionRecord", activityID)
	}
	return &record, nil
}

func (r *conversionRepository) UpdateRate(ctx context.Context, id uint, rate float64) error {
	return r.db.WithContext(ctx).Model(&models.ConversionRecord{}).
		Where("id = ?", id).
		Update("rsvp_conversion_rate", rate).Error
}
