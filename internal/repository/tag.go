package repository

import (
	"context"

	"rally/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TagRepository resolves tag names to stored tags.
type TagRepository interface {
	// FindOrCreateByNames normalizes names, creates the missing ones and
	// returns the tags in first-seen order.
	FindOrCreateByNames(ctx context.Context, names []string) ([]models.Tag, error)
}

type tagRepository struct {
	db *gorm.DB
}

// NewTagRepository creates a new tag repository
func NewTagRepository(db *gorm.DB) TagRepository {
	return &tagRepository{db: db}
}

func (r *tagRepository) FindOrCreateByNames(ctx context.Context, names []string) ([]models.Tag, error) {
	names = models.NormalizeTagNames(names)
	if len(names) == 0 {
		return []models.Tag{}, nil
	}

	rows := make([]models.Tag, 0, len(names))
	for _, n := range names {
		rows = append(rows, models.Tag{Name: n})
	}
	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "name"}}, DoNothing: true}).
		Create(&rows).Error; err != nil {
		return nil, err
	}

	var stored []models.Tag
	if err := r.db.WithContext(ctx).Where("name IN ?", names).Find(&stored).Error; err != nil {
		return nil, err
	}
	byName := make(map[string]models.Tag, len(stored))
	for _, t := range stored {
		byName[t.Name] = t
	}

	out := make([]models.Tag, 0, len(names))
	for _, n := range names {
		if t, ok := byName[n]; ok {
			out = append(out, t)
		}
	}
	return out, nil
}
