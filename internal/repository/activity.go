package repository

import (
	"context"

	"rally/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ActivityRepository defines the interface for activity data operations
type ActivityRepository interface {
	Create(ctx context.Context, activity *models.Activity) error
	GetByID(ctx context.Context, id uint) (*models.Activity, error)
	// LockByID loads the activity with SELECT ... FOR UPDATE. Every capacity
	// change goes through this lock.
	LockByID(ctx context.Context, id uint) (*models.Activity, error)
	AdjustAttendees(ctx context.Context, id uint, delta int) error
	SetAttendees(ctx context.Context, id uint, count int) error
	UpdateStatus(ctx context.Context, id uint, status string) error
	UpdateMaxAttendees(ctx context.Context, id uint, maxAttendees *int) error
}

type activityRepository struct {
	db *gorm.DB
}

// NewActivityRepository creates a new activity repository
func NewActivityRepository(db *gorm.DB) ActivityRepository {
	return &activityRepository{db: db}
}

func (r *activityRepository) Create(ctx context.Context, activity *models.Activity) error {
	return translate(r.db.WithContext(ctx).Create(activity).Error, "Activity", activity.ID)
}

func (r *activityRepository) GetByID(ctx context.Context, id uint) (*models.Activity, error) {
	var activity models.Activity
	if err := r.db.WithContext(ctx).Preload("Tags").First(&activity, id).Error; err != nil {
		return nil, translate(err, "Activity", id)
	}
	return &activity, nil
}

func (r *activityRepository) LockByID(ctx context.Context, id uint) (*models.Activity, error) {
	var activity models.Activity
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&activity, id).Error
	if err != nil {
		return nil, translate(err, "Activity", id)
	}
	return &activity, nil
}

func (r *activityRepository) AdjustAttendees(ctx context.Context, id uint, delta int) error {
	return r.update(ctx, id, map[string]interface{}{
		"current_attendees": gorm.Expr("current_attendees + ?", delta),
	})
}

func (r *activityRepository) SetAttendees(ctx context.Context, id uint, count int) error {
	return r.update(ctx, id, map[string]interface{}{"current_attendees": count})
}

func (r *activityRepository) UpdateStatus(ctx context.Context, id uint, status string) error {
	return r.update(ctx, id, map[string]interface{}{"status": status})
}

func (r *activityRepository) UpdateMaxAttendees(ctx context.Context, id uint, maxAttendees *int) error {
	return r.update(ctx, id, map[string]interface{}{"max_attendees": maxAttendees})
}

func (r *activityRepository) update(ctx context.Context, id uint, fields map[string]interface{}) error {
	res := r.db.WithContext(ctx).Model(&models.Activity{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return translate(res.Error, "Activity", id)
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("Activity", id)
	}
	return nil
}
