package seed

import (
	"context"
	"embed"
	"fmt"
	"io"
	"time"

	"rally/internal/models"
	"rally/internal/service"

	"gopkg.in/yaml.v3"
)

//go:embed fixtures/*.yaml
var fixtureFS embed.FS

// Fixtures is a hand-written data set. Times are offsets from the moment the
// fixtures are applied so a file never goes stale.
type Fixtures struct {
	Posts      []PostFixture     `yaml:"posts"`
	Activities []ActivityFixture `yaml:"activities"`
}

// PostFixture describes a post, the users reacting to it and an optional
// conversion.
type PostFixture struct {
	Owner       uint               `yaml:"owner"`
	Title       string             `yaml:"title"`
	Description string             `yaml:"description"`
	Location    string             `yaml:"location"`
	ExpiresIn   time.Duration      `yaml:"expires_in"`
	Tags        []string           `yaml:"tags"`
	Reactions   []uint             `yaml:"reactions"`
	Convert     *ConversionFixture `yaml:"convert"`
}

// ConversionFixture converts the enclosing post and reserves for the listed
// users in order.
type ConversionFixture struct {
	StartIn      time.Duration `yaml:"start_in"`
	Duration     time.Duration `yaml:"duration"`
	MaxAttendees int           `yaml:"max_attendees"`
	Reservations []uint        `yaml:"reservations"`
}

// ActivityFixture describes an activity created directly by its host.
type ActivityFixture struct {
	Host         uint          `yaml:"host"`
	Title        string        `yaml:"title"`
	Description  string        `yaml:"description"`
	Location     string        `yaml:"location"`
	StartIn      time.Duration `yaml:"start_in"`
	Duration     time.Duration `yaml:"duration"`
	MaxAttendees *int          `yaml:"max_attendees"`
	IsPaid       bool          `yaml:"is_paid"`
	PriceCents   int           `yaml:"price_cents"`
	Currency     string        `yaml:"currency"`
	Tags         []string      `yaml:"tags"`
	Status       string        `yaml:"status"`
	Reservations []uint        `yaml:"reservations"`
}

// Report counts what a seeding run created.
type Report struct {
	Posts        int
	Reactions    int
	Conversions  int
	Activities   int
	Reservations int
	Waitlisted   int
}

func (r Report) String() string {
	return fmt.Sprintf("posts=%d reactions=%d conversions=%d activities=%d reservations=%d waitlisted=%d",
		r.Posts, r.Reactions, r.Conversions, r.Activities, r.Reservations, r.Waitlisted)
}

// LoadFixtures decodes a YAML fixture document.
func LoadFixtures(r io.Reader) (*Fixtures, error) {
	var f Fixtures
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("decode fixtures: %w", err)
	}
	return &f, nil
}

// DemoFixtures returns the built-in demo data set.
func DemoFixtures() (*Fixtures, error) {
	file, err := fixtureFS.Open("fixtures/demo.yaml")
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return LoadFixtures(file)
}

// Apply creates the fixtures through the domain services, so counters,
// prompts and waitlists end up exactly as live traffic would leave them.
func Apply(ctx context.Context, svc *service.Services, f *Fixtures, now time.Time) (Report, error) {
	var report Report

	for i, pf := range f.Posts {
		post, err := svc.Posts.CreatePost(ctx, service.CreatePostInput{
			UserID:      pf.Owner,
			Title:       pf.Title,
			Description: pf.Description,
			Location:    pf.Location,
			ExpiresAt:   now.Add(pf.ExpiresIn),
			Tags:        pf.Tags,
		})
		if err != nil {
			return report, fmt.Errorf("post %d: %w", i, err)
		}
		report.Posts++

		for _, userID := range pf.Reactions {
			if _, err := svc.Reactions.ToggleReaction(ctx, service.ToggleReactionInput{
				PostID: post.ID, UserID: userID, Type: models.ReactionInterested,
			}); err != nil {
				return report, fmt.Errorf("post %d reaction by %d: %w", i, userID, err)
			}
			report.Reactions++
		}

		if pf.Convert == nil {
			continue
		}
		start := now.Add(pf.Convert.StartIn)
		maxAttendees := pf.Convert.MaxAttendees
		res, err := svc.Conversions.Convert(ctx, service.ConvertInput{
			PostID:       post.ID,
			ActingUserID: pf.Owner,
			StartTime:    start,
			EndTime:      start.Add(pf.Convert.Duration),
			MaxAttendees: &maxAttendees,
		})
		if err != nil {
			return report, fmt.Errorf("post %d conversion: %w", i, err)
		}
		report.Conversions++
		if err := reserveAll(ctx, svc, res.Activity.ID, pf.Convert.Reservations, &report); err != nil {
			return report, fmt.Errorf("post %d: %w", i, err)
		}
	}

	for i, af := range f.Activities {
		start := now.Add(af.StartIn)
		activity, err := svc.Activities.CreateActivity(ctx, service.CreateActivityInput{
			HostID:       af.Host,
			Title:        af.Title,
			Description:  af.Description,
			Location:     af.Location,
			StartTime:    start,
			EndTime:      start.Add(af.Duration),
			MaxAttendees: af.MaxAttendees,
			IsPaid:       af.IsPaid,
			PriceCents:   af.PriceCents,
			Currency:     af.Currency,
			Tags:         af.Tags,
			Status:       af.Status,
		})
		if err != nil {
			return report, fmt.Errorf("activity %d: %w", i, err)
		}
		report.Activities++
		if err := reserveAll(ctx, svc, activity.ID, af.Reservations, &report); err != nil {
			return report, fmt.Errorf("activity %d: %w", i, err)
		}
	}
	return report, nil
}

func reserveAll(ctx context.Context, svc *service.Services, activityID uint, users []uint, report *Report) error {
	for _, userID := range users {
		rsvp, err := svc.Reservations.Create(ctx, service.CreateReservationInput{ActivityID: activityID, UserID: userID})
		if err != nil {
			return fmt.Errorf("reservation by %d: %w", userID, err)
		}
		report.Reservations++
		if rsvp.Status == models.RsvpStatusWaitlist {
			report.Waitlisted++
		}
	}
	return nil
}
