package service

import (
	"context"
	"strings"
	"time"

	"rally/internal/models"
	"rally/internal/notifications"
	"rally/internal/observability"
	"rally/internal/repository"

	"go.opentelemetry.io/otel/attribute"
)

// ConvertInput carries the activity fields supplied at conversion time.
// Empty text fields are carried over from the post. A nil Tags reuses the
// post's tags; a non-nil empty list clears them.
type ConvertInput struct {
	PostID       uint
	ActingUserID uint
	Title        string
	Description  string
	Location     string
	StartTime    time.Time
	EndTime      time.Time
	MaxAttendees *int
	IsPaid       bool
	PriceCents   int
	Currency     string
	Tags         *[]string
	Status       string
}

// ConversionResult is the activity and audit record produced by Convert.
type ConversionResult struct {
	Activity *models.Activity         `json:"activity"`
	Record   *models.ConversionRecord `json:"record"`
}

// ConversionService turns a post into an activity exactly once.
type ConversionService struct {
	uow    repository.UnitOfWork
	policy PromptPolicy
	events EventPublisher
	now    Clock
}

// NewConversionService creates a conversion service. The policy grades the
// urgency recorded for prompted conversions.
func NewConversionService(uow repository.UnitOfWork, policy PromptPolicy, events EventPublisher) *ConversionService {
	return &ConversionService{uow: uow, policy: policy, events: events, now: time.Now}
}

// SetClock replaces the service's time source.
func (s *ConversionService) SetClock(now Clock) { s.now = now }

// Convert creates the activity, attaches tags, writes the conversion record
// and retires the post in one transaction. A second conversion of the same
// post fails with a conflict and leaves nothing behind.
func (s *ConversionService) Convert(ctx context.Context, in ConvertInput) (result *ConversionResult, err error) {
	span, ctx := observability.NewSpan(ctx, "ConversionService.Convert",
		attribute.Int("post_id", int(in.PostID)), attribute.Int("user_id", int(in.ActingUserID)))
	defer func() { span.End(err) }()

	var box outbox
	err = s.uow.Do(ctx, func(ctx context.Context, repos repository.Repositories) error {
		post, err := repos.Posts.LockByID(ctx, in.PostID)
		if err != nil {
			return err
		}
		if post.UserID != in.ActingUserID {
			return models.NewUnauthorizedError("only the post owner can convert it")
		}
		now := s.now()
		switch {
		case post.Status == models.PostStatusConverted:
			return models.NewConflictError("post has already been converted")
		case !post.OpenAt(now):
			return models.NewConflictError("post has expired")
		}
		if err := validateSchedule(in.StartTime, in.EndTime, in.MaxAttendees, true, now); err != nil {
			return err
		}
		status, err := initialActivityStatus(in.Status, models.ActivityStatusPublished)
		if err != nil {
			return err
		}

		activity := &models.Activity{
			HostID:               in.ActingUserID,
			Title:                firstNonEmpty(in.Title, post.Title),
			Description:          firstNonEmpty(in.Description, post.Description),
			Location:             firstNonEmpty(in.Location, post.Location),
			StartTime:            in.StartTime,
			EndTime:              in.EndTime,
			MaxAttendees:         in.MaxAttendees,
			IsPaid:               in.IsPaid,
			PriceCents:           in.PriceCents,
			Currency:             strings.ToUpper(strings.TrimSpace(in.Currency)),
			Status:               status,
			OriginatedFromPostID: &post.ID,
		}

		var tagNames []string
		if in.Tags != nil {
			tagNames = *in.Tags
		} else {
			if err := repos.Posts.LoadTags(ctx, post); err != nil {
				return err
			}
			tagNames = post.TagNames()
		}
		if activity.Tags, err = repos.Tags.FindOrCreateByNames(ctx, tagNames); err != nil {
			return err
		}
		if err := repos.Activities.Create(ctx, activity); err != nil {
			return err
		}

		record := &models.ConversionRecord{
			PostID:            post.ID,
			ActivityID:        activity.ID,
			ConvertedByUserID: in.ActingUserID,
			TriggerType:       models.ConversionTriggerManual,
			ReactionCount:     post.ReactionCount,
			CommentCount:      post.CommentCount,
			ViewCount:         post.ViewCount,
			ConvertedAt:       now,
		}
		if post.ConversionPromptedAt != nil {
			record.TriggerType = models.ConversionTriggerPrompted
			record.PromptUrgency = s.policy.Urgency(post.ReactionCount)
		}
		if err := repos.Conversions.Create(ctx, record); err != nil {
			return err
		}
		if err := repos.Posts.MarkConverted(ctx, post.ID, activity.ID); err != nil {
			return err
		}

		result = &ConversionResult{Activity: activity, Record: record}
		ev := notifications.NewEvent(notifications.EventConversionCompleted, now)
		ev.PostID = post.ID
		ev.ActivityID = activity.ID
		ev.ActorID = in.ActingUserID
		ev.Payload = result
		box.add(ev)
		box.touchPost(post.ID)
		return nil
	})
	if err != nil {
		return nil, err
	}

	span.AddAttributes(attribute.Int("activity_id", int(result.Activity.ID)))
	observability.Conversions.WithLabelValues(result.Record.TriggerType).Inc()
	box.flush(ctx, s.events)
	return result, nil
}

// GetConversion returns the conversion record of a post.
func (s *ConversionService) GetConversion(ctx context.Context, postID uint) (*models.ConversionRecord, error) {
	return s.uow.Repos().Conversions.GetByPostID(ctx, postID)
}

// RefreshConversionRate stores attending reservations divided by the
// reaction count captured at conversion. The rate stays unset when the
// snapshot had no reactions.
func (s *ConversionService) RefreshConversionRate(ctx context.Context, activityID uint) (record *models.ConversionRecord, err error) {
	span, ctx := observability.NewSpan(ctx, "ConversionService.RefreshConversionRate", attribute.Int("activity_id", int(activityID)))
	defer func() { span.End(err) }()

	repos := s.uow.Repos()
	record, err = repos.Conversions.GetByActivityID(ctx, activityID)
	if err != nil {
		return nil, err
	}
	if record.ReactionCount == 0 {
		return record, nil
	}
	attending, err := repos.Rsvps.CountByStatus(ctx, activityID, models.RsvpStatusAttending)
	if err != nil {
		return nil, err
	}
	rate := float64(attending) / float64(record.ReactionCount)
	if err := repos.Conversions.UpdateRate(ctx, record.ID, rate); err != nil {
		return nil, err
	}
	record.RsvpConversionRate = &rate
	return record, nil
}

// refreshIfConverted is RefreshConversionRate for activities that may not
// have come from a post.
func (s *ConversionService) refreshIfConverted(ctx context.Context, activityID uint) error {
	_, err := s.RefreshConversionRate(ctx, activityID)
	if models.HasCode(err, models.CodeNotFound) {
		return nil
	}
	return err
}

func validateSchedule(start, end time.Time, maxAttendees *int, requireCap bool, now time.Time) error {
	if start.IsZero() || end.IsZero() {
		return models.NewValidationError("start_time and end_time are required")
	}
	if !start.After(now) {
		return models.NewValidationError("start_time must be in the future")
	}
	if !end.After(start) {
		return models.NewValidationError("end_time must be after start_time")
	}
	if maxAttendees == nil {
		if requireCap {
			return models.NewValidationError("max_attendees is required")
		}
		return nil
	}
	if *maxAttendees <= 0 {
		return models.NewValidationError("max_attendees must be positive")
	}
	return nil
}

func initialActivityStatus(status, def string) (string, error) {
	switch status {
	case "":
		return def, nil
	case models.ActivityStatusDraft, models.ActivityStatusPublished:
		return status, nil
	}
	return "", models.NewValidationError("initial status must be draft or published")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
