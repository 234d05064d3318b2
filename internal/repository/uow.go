package repository

import (
	"context"

	"gorm.io/gorm"
)

// Repositories bundles every repository bound to one database handle. Inside
// UnitOfWork.Do the handle is the open transaction.
type Repositories struct {
	Posts       PostRepository
	Reactions   ReactionRepository
	Tags        TagRepository
	Activities  ActivityRepository
	Rsvps       RsvpRepository
	Conversions ConversionRepository
}

// NewRepositories binds all repositories to db.
func NewRepositories(db *gorm.DB) Repositories {
	return Repositories{
		Posts:       NewPostRepository(db),
		Reactions:   NewReactionRepository(db),
		Tags:        NewTagRepository(db),
		Activities:  NewActivityRepository(db),
		Rsvps:       NewRsvpRepository(db),
		Conversions: NewConversionRepository(db),
	}
}

// UnitOfWork runs a function inside one database transaction. Returning an
// error from fn rolls back every write made through the supplied repositories.
type UnitOfWork interface {
	Do(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error
	// Repos returns repositories that run outside any transaction.
	Repos() Repositories
}

type gormUnitOfWork struct {
	db    *gorm.DB
	repos Repositories
}

// NewUnitOfWork creates a GORM backed unit of work.
func NewUnitOfWork(db *gorm.DB) UnitOfWork {
	return &gormUnitOfWork{db: db, repos: NewRepositories(db)}
}

func (u *gormUnitOfWork) Do(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error {
	return u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ctx, NewRepositories(tx))
	})
}

func (u *gormUnitOfWork) Repos() Repositories {
	return u.repos
}
