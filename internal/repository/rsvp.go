package repository

import (
	"context"
	"time"

	"rally/internal/models"

	"gorm.io/gorm"
)

// RsvpRepository defines the interface for reservation data operations
type RsvpRepository interface {
	Create(ctx context.Context, rsvp *models.Rsvp) error
	GetByID(ctx context.Context, id uint) (*models.Rsvp, error)
	// FindByActivityAndUser returns nil when the user holds no reservation.
	FindByActivityAndUser(ctx context.Context, activityID, userID uint) (*models.Rsvp, error)
	UpdateStatus(ctx context.Context, id uint, status string) error
	Promote(ctx context.Context, id uint, at time.Time) error
	MarkAttended(ctx context.Context, id uint) error
	// NextWaitlisted returns the oldest waitlisted reservation, or nil.
	NextWaitlisted(ctx context.Context, activityID uint) (*models.Rsvp, error)
	ListByActivity(ctx context.Context, activityID uint) ([]models.Rsvp, error)
	CountByStatus(ctx context.Context, activityID uint, status string) (int64, error)
}

type rsvpRepository struct {
	db *gorm.DB
}

// NewRsvpRepository creates a new reservation repository
func NewRsvpRepository(db *gorm.DB) RsvpRepository {
	return &rsvpRepository{db: db}
}

func (r *rsvpRepository) Create(ctx context.Context, rsvp *models.Rsvp) error {
	return translate(r.db.WithContext(ctx).Create(rsvp).Error, "Reservation", rsvp.ActivityID)
}

func (r *rsvpRepository) GetByID(ctx context.Context, id uint) (*models.Rsvp, error) {
	var rsvp models.Rsvp
	if err := r.db.WithContext(ctx).First(&rsvp, id).Error; err != nil {
		return nil, translate(err, "Reservation", id)
	}
	return &rsvp, nil
}

func (r *rsvpRepository) FindByActivityAndUser(ctx context.Context, activityID, userID uint) (*models.Rsvp, error) {
	var rsvp models.Rsvp
	err := r.db.WithContext(ctx).
		Where("activity_id = ? AND user_id = ?", activityID, userID).
		First(&rsvp).Error
	return firstOrNil(&rsvp, err)
}

func (r *rsvpRepository) UpdateStatus(ctx context.Context, id uint, status string) error {
	return r.update(ctx, id, map[string]interface{}{"status": status})
}

func (r *rsvpRepository) Promote(ctx context.Context, id uint, at time.Time) error {
	return r.update(ctx, id, map[string]interface{}{
		"status":      models.RsvpStatusAttending,
		"promoted_at": at,
	})
}

func (r *rsvpRepository) MarkAttended(ctx context.Context, id uint) error {
	return r.update(ctx, id, map[string]interface{}{"attended": true})
}

// NextWaitlisted orders by creation time and falls back to the row id for
// reservations created in the same instant.
func (r *rsvpRepository) NextWaitlisted(ctx context.Context, activityID uint) (*models.Rsvp, error) {
	var rsvp models.Rsvp
	err := r.db.WithContext(ctx).
		Where("activity_id = ? AND status = ?", activityID, models.RsvpStatusWaitlist).
		Order("created_at ASC").
		Order("id ASC").
		First(&rsvp).Error
	return firstOrNil(&rsvp, err)
}

func (r *rsvpRepository) ListByActivity(ctx context.Context, activityID uint) ([]models.Rsvp, error) {
	var rsvps []models.Rsvp
	err := r.db.WithContext(ctx).
		Where("activity_id = ?", activityID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&rsvps).Error
	return rsvps, err
}

func (r *rsvpRepository) CountByStatus(ctx context.Context, activityID uint, status string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Rsvp{}).
		Where("activity_id = ? AND status = ?", activityID, status).
		Count(&count).Error
	return count, err
}

func (r *rsvpRepository) update(ctx context.Context, id uint, fields map[string]interface{}) error {
	res := r.db.WithContext(ctx).Model(&models.Rsvp{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return translate(res.Error, "Reservation", id)
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("Reservation", id)
	}
	return nil
}
