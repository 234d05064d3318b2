package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"rally/internal/middleware"
	"rally/internal/models"
	"rally/internal/notifications"
	"rally/internal/observability"
	"rally/internal/repository"

	"go.opentelemetry.io/otel/attribute"
)

// CreateActivityInput describes an activity created directly by its host.
type CreateActivityInput struct {
	HostID       uint
	Title        string
	Description  string
	Location     string
	StartTime    time.Time
	EndTime      time.Time
	MaxAttendees *int
	IsPaid       bool
	PriceCents   int
	Currency     string
	Tags         []string
	Status       string
}

var activityTransitions = map[string][]string{
	models.ActivityStatusDraft:     {models.ActivityStatusPublished, models.ActivityStatusCancelled},
	models.ActivityStatusPublished: {models.ActivityStatusActive, models.ActivityStatusCompleted, models.ActivityStatusCancelled},
	models.ActivityStatusActive:    {models.ActivityStatusCompleted, models.ActivityStatusCancelled},
}

func canTransitionActivity(from, to string) bool {
	for _, next := range activityTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ActivityService manages activities outside the reservation flow.
type ActivityService struct {
	uow         repository.UnitOfWork
	engine      *CapacityEngine
	conversions *ConversionService
	events      EventPublisher
	now         Clock
}

// NewActivityService creates an activity service. conversions may be nil, in
// which case completing an activity does not refresh its conversion rate.
func NewActivityService(uow repository.UnitOfWork, engine *CapacityEngine, conversions *ConversionService, events EventPublisher) *ActivityService {
	return &ActivityService{uow: uow, engine: engine, conversions: conversions, events: events, now: time.Now}
}

// SetClock replaces the service's time source.
func (s *ActivityService) SetClock(now Clock) { s.now = now }

// CreateActivity creates an activity hosted by in.HostID.
func (s *ActivityService) CreateActivity(ctx context.Context, in CreateActivityInput) (activity *models.Activity, err error) {
	span, ctx := observability.NewSpan(ctx, "ActivityService.CreateActivity", attribute.Int("host_id", int(in.HostID)))
	defer func() { span.End(err) }()

	if strings.TrimSpace(in.Title) == "" {
		return nil, models.NewValidationError("Title is required")
	}
	if err := validateSchedule(in.StartTime, in.EndTime, in.MaxAttendees, false, s.now()); err != nil {
		return nil, err
	}
	status, err := initialActivityStatus(in.Status, models.ActivityStatusDraft)
	if err != nil {
		return nil, err
	}

	err = s.uow.Do(ctx, func(ctx context.Context, repos repository.Repositories) error {
		tags, err := repos.Tags.FindOrCreateByNames(ctx, in.Tags)
		if err != nil {
			return err
		}
		activity = &models.Activity{
			HostID:       in.HostID,
			Title:        strings.TrimSpace(in.Title),
			Description:  in.Description,
			Location:     in.Location,
			StartTime:    in.StartTime,
			EndTime:      in.EndTime,
			MaxAttendees: in.MaxAttendees,
			IsPaid:       in.IsPaid,
			PriceCents:   in.PriceCents,
			Currency:     strings.ToUpper(strings.TrimSpace(in.Currency)),
			Status:       status,
			Tags:         tags,
		}
		return repos.Activities.Create(ctx, activity)
	})
	if err != nil {
		return nil, err
	}
	return activity, nil
}

// GetActivity returns an activity with its tags.
func (s *ActivityService) GetActivity(ctx context.Context, id uint) (*models.Activity, error) {
	return s.uow.Repos().Activities.GetByID(ctx, id)
}

// UpdateStatus moves an activity along draft, published, active, completed.
// Any non-terminal activity may be cancelled.
func (s *ActivityService) UpdateStatus(ctx context.Context, activityID, actingUserID uint, status string) (activity *models.Activity, err error) {
	span, ctx := observability.NewSpan(ctx, "ActivityService.UpdateStatus",
		attribute.Int("activity_id", int(activityID)), attribute.String("status", status))
	defer func() { span.End(err) }()

	var box outbox
	err = s.uow.Do(ctx, func(ctx context.Context, repos repository.Repositories) error {
		a, err := s.engine.Lock(ctx, repos, activityID)
		if err != nil {
			return err
		}
		if a.HostID != actingUserID {
			return models.NewUnauthorizedError("only the host can change the activity status")
		}
		activity = a
		if a.Status == status {
			return nil
		}
		if !canTransitionActivity(a.Status, status) {
			return models.NewConflictError("cannot move activity from " + a.Status + " to " + status)
		}
		if err := repos.Activities.UpdateStatus(ctx, a.ID, status); err != nil {
			return err
		}
		from := a.Status
		a.Status = status

		ev := notifications.NewEvent(notifications.EventActivityStatusChanged, s.now())
		ev.ActivityID = a.ID
		ev.ActorID = actingUserID
		ev.Payload = map[string]string{"from": from, "to": status}
		box.add(ev)
		return nil
	})
	if err != nil {
		return nil, err
	}
	box.flush(ctx, s.events)

	if activity.Status == models.ActivityStatusCompleted && s.conversions != nil {
		if err := s.conversions.refreshIfConverted(ctx, activity.ID); err != nil {
			middleware.Logger.WarnContext(ctx, "conversion rate refresh failed",
				slog.Uint64("activity_id", uint64(activity.ID)),
				slog.String("error", err.Error()))
		}
	}
	return activity, nil
}

// UpdateCapacity changes max_attendees. A nil value removes the cap. The cap
// cannot drop below the current attendees; raising it promotes from the
// waitlist immediately.
func (s *ActivityService) UpdateCapacity(ctx context.Context, activityID, actingUserID uint, maxAttendees *int) (activity *models.Activity, promoted []*models.Rsvp, err error) {
	span, ctx := observability.NewSpan(ctx, "ActivityService.UpdateCapacity", attribute.Int("activity_id", int(activityID)))
	defer func() { span.End(err) }()

	if maxAttendees != nil && *maxAttendees <= 0 {
		return nil, nil, models.NewValidationError("max_attendees must be positive")
	}

	var box outbox
	err = s.uow.Do(ctx, func(ctx context.Context, repos repository.Repositories) error {
		a, err := s.engine.Lock(ctx, repos, activityID)
		if err != nil {
			return err
		}
		if a.HostID != actingUserID {
			return models.NewUnauthorizedError("only the host can change capacity")
		}
		if a.Status == models.ActivityStatusCompleted || a.Status == models.ActivityStatusCancelled {
			return models.NewConflictError("activity is closed")
		}
		if maxAttendees != nil && *maxAttendees < a.CurrentAttendees {
			return models.NewConflictError("capacity cannot drop below current attendees")
		}
		if err := repos.Activities.UpdateMaxAttendees(ctx, a.ID, maxAttendees); err != nil {
			return err
		}
		a.MaxAttendees = maxAttendees

		if promoted, err = s.engine.FillOpenSpots(ctx, repos, a); err != nil {
			return err
		}
		addPromotions(&box, s.now(), promoted)
		activity = a
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	recordPromotions(promoted)
	box.flush(ctx, s.events)
	return activity, promoted, nil
}

// Reconcile repairs the attendance counter of one activity.
func (s *ActivityService) Reconcile(ctx context.Context, activityID uint) (result *ReconcileResult, err error) {
	span, ctx := observability.NewSpan(ctx, "ActivityService.Reconcile", attribute.Int("activity_id", int(activityID)))
	defer func() { span.End(err) }()

	var box outbox
	err = s.uow.Do(ctx, func(ctx context.Context, repos repository.Repositories) error {
		a, err := s.engine.Lock(ctx, repos, activityID)
		if err != nil {
			return err
		}
		if result, err = s.engine.Reconcile(ctx, repos, a); err != nil {
			return err
		}
		addPromotions(&box, s.now(), result.Promoted)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if result.Drifted() {
		observability.AttendanceDrift.Inc()
		middleware.Logger.WarnContext(ctx, "attendance counter repaired",
			slog.Uint64("activity_id", uint64(activityID)),
			slog.Int("before", result.Before),
			slog.Int("after", result.After))
	}
	recordPromotions(result.Promoted)
	box.flush(ctx, s.events)
	return result, nil
}
