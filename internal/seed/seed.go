// Package seed provides helpers to create demo and test data. Everything is
// created through the domain services so the seeded rows satisfy the same
// invariants as live data.
package seed

import (
	"context"
	"fmt"
	"strings"
	"time"

	"rally/internal/middleware"
	"rally/internal/models"
	"rally/internal/service"

	"github.com/brianvoe/gofakeit/v6"
	"gorm.io/gorm"
)

// Options configures a generated (non-fixture) seeding run.
type Options struct {
	NumPosts int
	// NumUsers bounds the user IDs that post, react and reserve.
	NumUsers int
	// MaxReactions caps reactions per post; the actual count is random.
	MaxReactions int
	// ConvertEvery converts every Nth post that crossed the prompt threshold.
	ConvertEvery int
	// Seed makes generation reproducible. Zero picks a time based seed.
	Seed int64
}

var activityTags = []string{
	"hiking", "running", "cycling", "climbing", "kayaking", "chess", "board games",
	"karaoke", "pottery", "photography", "cooking", "book club", "coding", "yoga",
}

// Factory generates posts, reactions, conversions and reservations.
type Factory struct {
	svc   *service.Services
	opts  Options
	faker *gofakeit.Faker
}

// NewFactory creates a new Factory bound to the services.
func NewFactory(svc *service.Services, opts Options) *Factory {
	if opts.NumUsers <= 1 {
		opts.NumUsers = 50
	}
	if opts.MaxReactions <= 0 {
		opts.MaxReactions = 15
	}
	if opts.ConvertEvery <= 0 {
		opts.ConvertEvery = 2
	}
	if opts.Seed == 0 {
		opts.Seed = time.Now().UnixNano()
	}
	return &Factory{svc: svc, opts: opts, faker: gofakeit.New(opts.Seed)}
}

func (f *Factory) userID() uint {
	return uint(f.faker.Number(1, f.opts.NumUsers))
}

// distinctUsers returns n different user IDs, excluding skip.
func (f *Factory) distinctUsers(n int, skip uint) []uint {
	if n > f.opts.NumUsers-1 {
		n = f.opts.NumUsers - 1
	}
	seen := map[uint]struct{}{skip: {}}
	out := make([]uint, 0, n)
	for len(out) < n {
		u := f.userID()
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}

// BuildPost returns a random post input expiring within the next three days.
func (f *Factory) BuildPost(ownerID uint, now time.Time) service.CreatePostInput {
	tags := make([]string, 0, 2)
	for i := 0; i < f.faker.Number(1, 2); i++ {
		tags = append(tags, activityTags[f.faker.Number(0, len(activityTags)-1)])
	}
	title := fmt.Sprintf("Anyone up for %s %s?", strings.ToLower(f.faker.Adjective()), tags[0])
	return service.CreatePostInput{
		UserID:      ownerID,
		Title:       title,
		Description: f.faker.Sentence(12),
		Location:    f.faker.Street() + ", " + f.faker.City(),
		ExpiresAt:   now.Add(time.Duration(f.faker.Number(6, 72)) * time.Hour),
		Tags:        tags,
	}
}

// Run creates opts.NumPosts posts with reactions. Every ConvertEvery-th post
// that got prompted is converted and filled with reservations, some beyond
// capacity so waitlists exist.
func (f *Factory) Run(ctx context.Context, now time.Time) (Report, error) {
	var report Report
	prompted := 0

	for i := 0; i < f.opts.NumPosts; i++ {
		owner := f.userID()
		post, err := f.svc.Posts.CreatePost(ctx, f.BuildPost(owner, now))
		if err != nil {
			return report, fmt.Errorf("create post: %w", err)
		}
		report.Posts++

		var last *service.ReactionResult
		for _, u := range f.distinctUsers(f.faker.Number(0, f.opts.MaxReactions), owner) {
			kind := models.ReactionTypes[f.faker.Number(0, len(models.ReactionTypes)-1)]
			last, err = f.svc.Reactions.ToggleReaction(ctx, service.ToggleReactionInput{PostID: post.ID, UserID: u, Type: kind})
			if err != nil {
				return report, fmt.Errorf("react: %w", err)
			}
			report.Reactions++
		}
		if last == nil || last.ReactionCount < f.svc.Gate.Policy().SoftThreshold {
			continue
		}
		prompted++
		if prompted%f.opts.ConvertEvery != 0 {
			continue
		}

		start := now.Add(time.Duration(f.faker.Number(24, 240)) * time.Hour)
		maxAttendees := f.faker.Number(2, 12)
		res, err := f.svc.Conversions.Convert(ctx, service.ConvertInput{
			PostID:       post.ID,
			ActingUserID: owner,
			StartTime:    start,
			EndTime:      start.Add(time.Duration(f.faker.Number(1, 4)) * time.Hour),
			MaxAttendees: &maxAttendees,
		})
		if err != nil {
			return report, fmt.Errorf("convert: %w", err)
		}
		report.Conversions++

		if err := reserveAll(ctx, f.svc, res.Activity.ID, f.distinctUsers(maxAttendees+f.faker.Number(0, 4), owner), &report); err != nil {
			return report, err
		}
	}

	middleware.Logger.InfoContext(ctx, "seed run complete", "report", report.String())
	return report, nil
}

// ClearAll removes every row the service owns. Postgres also resets the ID
// sequences.
func ClearAll(db *gorm.DB) error {
	if db.Dialector.Name() == "postgres" {
		return db.Exec(`TRUNCATE TABLE conversion_records, rsvps, activity_tags, reactions, post_tags, posts, activities, tags RESTART IDENTITY CASCADE`).Error
	}
	return db.Transaction(func(tx *gorm.DB) error {
		for _, table := range []string{"conversion_records", "rsvps", "activity_tags", "reactions", "post_tags", "posts", "activities", "tags"} {
			if err := tx.Exec("DELETE FROM " + table).Error; err != nil {
				return fmt.Errorf("clear %s: %w", table, err)
			}
		}
		return nil
	})
}
