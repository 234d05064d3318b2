package service

import (
	"context"
	"strings"
	"time"

	"rally/internal/cache"
	"rally/internal/models"
	"rally/internal/repository"
)

const maxTitleLen = 300

// CreatePostInput describes a new post.
type CreatePostInput struct {
	UserID      uint
	Title       string
	Description string
	Location    string
	ExpiresAt   time.Time
	Tags        []string
}

// PostService creates, reads and expires posts.
type PostService struct {
	uow repository.UnitOfWork
	now Clock
}

// NewPostService creates a post service.
func NewPostService(uow repository.UnitOfWork) *PostService {
	return &PostService{uow: uow, now: time.Now}
}

// SetClock replaces the service's time source.
func (s *PostService) SetClock(now Clock) { s.now = now }

// CreatePost stores an active post with its normalized tags.
func (s *PostService) CreatePost(ctx context.Context, in CreatePostInput) (*models.Post, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, models.NewValidationError("Title is required")
	}
	if len(title) > maxTitleLen {
		return nil, models.NewValidationError("Title too long (max 300 characters)")
	}
	if !in.ExpiresAt.After(s.now()) {
		return nil, models.NewValidationError("expires_at must be in the future")
	}

	post := &models.Post{
		UserID:      in.UserID,
		Title:       title,
		Description: in.Description,
		Location:    in.Location,
		ExpiresAt:   in.ExpiresAt,
		Status:      models.PostStatusActive,
	}
	err := s.uow.Do(ctx, func(ctx context.Context, repos repository.Repositories) error {
		tags, err := repos.Tags.FindOrCreateByNames(ctx, in.Tags)
		if err != nil {
			return err
		}
		post.Tags = tags
		return repos.Posts.Create(ctx, post)
	})
	if err != nil {
		return nil, err
	}
	return post, nil
}

// GetPost reads a post through the cache.
func (s *PostService) GetPost(ctx context.Context, id uint) (*models.Post, error) {
	var post models.Post
	err := cache.Aside(ctx, cache.PostKey(id), &post, cache.PostTTL, func() error {
		p, err := s.uow.Repos().Posts.GetByID(ctx, id)
		if err != nil {
			return err
		}
		post = *p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &post, nil
}

// ExpireDue retires every active post past its expiry and returns their ids.
func (s *PostService) ExpireDue(ctx context.Context) ([]uint, error) {
	ids, err := s.uow.Repos().Posts.ExpireDue(ctx, s.now())
	if err != nil {
		return nil, err
	}
	cache.InvalidatePosts(ctx, ids...)
	return ids, nil
}
