package service

import (
	"context"
	"time"

	"rally/internal/models"
	"rally/internal/notifications"
	"rally/internal/observability"
	"rally/internal/repository"

	"go.opentelemetry.io/otel/attribute"
)

// CreateReservationInput requests a spot on an activity.
type CreateReservationInput struct {
	ActivityID      uint
	UserID          uint
	PaymentIntentID *string
	PaymentStatus   string
}

// UpdateReservationInput moves a reservation to a new status.
type UpdateReservationInput struct {
	RsvpID       uint
	ActingUserID uint
	Status       string
}

// ReservationPreview is the unlocked answer to "what would I get".
type ReservationPreview struct {
	ActivityID     uint   `json:"activity_id"`
	Status         string `json:"status"`
	SpotsRemaining *int   `json:"spots_remaining"`
}

// AttendanceStats summarises an activity's reservations.
type AttendanceStats struct {
	AttendanceTally

	ActivityID       uint `json:"activity_id"`
	MaxAttendees     *int `json:"max_attendees"`
	CurrentAttendees int  `json:"current_attendees"`
	SpotsRemaining   *int `json:"spots_remaining"`
}

// ReservationService validates reservation requests and delegates every
// counter change to the capacity engine.
type ReservationService struct {
	uow    repository.UnitOfWork
	engine *CapacityEngine
	events EventPublisher
	now    Clock
}

// NewReservationService creates a reservation service.
func NewReservationService(uow repository.UnitOfWork, engine *CapacityEngine, events EventPublisher) *ReservationService {
	return &ReservationService{uow: uow, engine: engine, events: events, now: time.Now}
}

// SetClock replaces the service's time source.
func (s *ReservationService) SetClock(now Clock) { s.now = now }

// Preview runs the reservation check without the lock.
func (s *ReservationService) Preview(ctx context.Context, activityID, userID uint) (*ReservationPreview, error) {
	repos := s.uow.Repos()
	activity, err := repos.Activities.GetByID(ctx, activityID)
	if err != nil {
		return nil, err
	}
	if !activity.AcceptsReservations() {
		return nil, models.NewConflictError("activity is not accepting reservations")
	}
	status, err := s.engine.CanReserve(ctx, repos, activity, userID)
	if err != nil {
		return nil, err
	}
	return &ReservationPreview{ActivityID: activity.ID, Status: status, SpotsRemaining: activity.SpotsRemaining()}, nil
}

// Create reserves a spot, or a waitlist place when the activity is full.
func (s *ReservationService) Create(ctx context.Context, in CreateReservationInput) (rsvp *models.Rsvp, err error) {
	span, ctx := observability.NewSpan(ctx, "ReservationService.Create",
		attribute.Int("activity_id", int(in.ActivityID)), attribute.Int("user_id", int(in.UserID)))
	defer func() { span.End(err) }()

	var box outbox
	err = s.uow.Do(ctx, func(ctx context.Context, repos repository.Repositories) error {
		activity, err := s.engine.Lock(ctx, repos, in.ActivityID)
		if err != nil {
			return err
		}
		if !activity.AcceptsReservations() {
			return models.NewConflictError("activity is not accepting reservations")
		}
		rsvp, err = s.engine.Reserve(ctx, repos, activity, in.UserID, ReservationExtras{
			PaymentIntentID: in.PaymentIntentID,
			PaymentStatus:   in.PaymentStatus,
		})
		if err != nil {
			return err
		}
		box.add(s.rsvpEvent(notifications.EventReservationCreated, rsvp, in.UserID, activity.HostID))
		return nil
	})
	if err != nil {
		return nil, err
	}
	observability.Reservations.WithLabelValues(rsvp.Status).Inc()
	box.flush(ctx, s.events)
	return rsvp, nil
}

// Update applies a user driven status change. Waitlist moves belong to the
// capacity engine and declined is final.
func (s *ReservationService) Update(ctx context.Context, in UpdateReservationInput) (rsvp *models.Rsvp, err error) {
	span, ctx := observability.NewSpan(ctx, "ReservationService.Update",
		attribute.Int("rsvp_id", int(in.RsvpID)), attribute.String("status", in.Status))
	defer func() { span.End(err) }()

	if !models.IsValidRsvpStatus(in.Status) {
		return nil, models.NewValidationError("Invalid reservation status")
	}

	var box outbox
	var promoted *models.Rsvp
	err = s.uow.Do(ctx, func(ctx context.Context, repos repository.Repositories) error {
		activity, current, err := s.lockReservation(ctx, repos, in.RsvpID)
		if err != nil {
			return err
		}
		if current.UserID != in.ActingUserID {
			return models.NewUnauthorizedError("only the reservation holder can change it")
		}
		rsvp = current

		from, to := current.Status, in.Status
		switch {
		case from == to:
			return nil
		case from == models.RsvpStatusDeclined:
			return models.NewConflictError("declined reservations are final")
		case to == models.RsvpStatusDeclined:
			if promoted, err = s.engine.Release(ctx, repos, activity, current); err != nil {
				return err
			}
		case from == models.RsvpStatusWaitlist || to == models.RsvpStatusWaitlist:
			return models.NewConflictError("waitlist places are assigned by capacity, not by request")
		case from == models.RsvpStatusAttending:
			if err := repos.Rsvps.UpdateStatus(ctx, current.ID, to); err != nil {
				return err
			}
			current.Status = to
			if err := s.engine.adjust(ctx, repos, activity, -1); err != nil {
				return err
			}
			if promoted, err = s.engine.Promote(ctx, repos, activity); err != nil {
				return err
			}
		case to == models.RsvpStatusAttending:
			if !activity.AcceptsReservations() {
				return models.NewConflictError("activity is not accepting reservations")
			}
			if activity.IsFull() {
				return models.NewConflictError("activity is full")
			}
			if err := repos.Rsvps.UpdateStatus(ctx, current.ID, to); err != nil {
				return err
			}
			current.Status = to
			if err := s.engine.adjust(ctx, repos, activity, 1); err != nil {
				return err
			}
		}

		eventType := notifications.EventReservationUpdated
		if to == models.RsvpStatusDeclined {
			eventType = notifications.EventReservationCancelled
		}
		box.add(s.rsvpEvent(eventType, current, in.ActingUserID, activity.HostID))
		addPromotions(&box, s.now(), []*models.Rsvp{promoted})
		return nil
	})
	if err != nil {
		return nil, err
	}
	recordPromotions([]*models.Rsvp{promoted})
	box.flush(ctx, s.events)
	return rsvp, nil
}

// Cancel declines a reservation on behalf of its holder or the activity's
// host. Cancelling a declined reservation returns it unchanged.
func (s *ReservationService) Cancel(ctx context.Context, rsvpID, actingUserID uint) (rsvp *models.Rsvp, err error) {
	span, ctx := observability.NewSpan(ctx, "ReservationService.Cancel", attribute.Int("rsvp_id", int(rsvpID)))
	defer func() { span.End(err) }()

	var box outbox
	var promoted *models.Rsvp
	err = s.uow.Do(ctx, func(ctx context.Context, repos repository.Repositories) error {
		activity, current, err := s.lockReservation(ctx, repos, rsvpID)
		if err != nil {
			return err
		}
		if current.UserID != actingUserID && activity.HostID != actingUserID {
			return models.NewUnauthorizedError("only the reservation holder or host can cancel it")
		}
		rsvp = current
		if current.Status == models.RsvpStatusDeclined {
			return nil
		}
		if promoted, err = s.engine.Release(ctx, repos, activity, current); err != nil {
			return err
		}
		box.add(s.rsvpEvent(notifications.EventReservationCancelled, current, actingUserID, activity.HostID))
		addPromotions(&box, s.now(), []*models.Rsvp{promoted})
		return nil
	})
	if err != nil {
		return nil, err
	}
	recordPromotions([]*models.Rsvp{promoted})
	box.flush(ctx, s.events)
	return rsvp, nil
}

// MarkAttended flags an attending reservation as checked in. Only the host
// may do it; repeating it changes nothing and the counter is never touched.
func (s *ReservationService) MarkAttended(ctx context.Context, rsvpID, actingUserID uint) (rsvp *models.Rsvp, err error) {
	span, ctx := observability.NewSpan(ctx, "ReservationService.MarkAttended", attribute.Int("rsvp_id", int(rsvpID)))
	defer func() { span.End(err) }()

	err = s.uow.Do(ctx, func(ctx context.Context, repos repository.Repositories) error {
		current, err := repos.Rsvps.GetByID(ctx, rsvpID)
		if err != nil {
			return err
		}
		activity, err := repos.Activities.GetByID(ctx, current.ActivityID)
		if err != nil {
			return err
		}
		if activity.HostID != actingUserID {
			return models.NewUnauthorizedError("only the host can mark attendance")
		}
		rsvp = current
		if current.Attended {
			return nil
		}
		if current.Status != models.RsvpStatusAttending {
			return models.NewConflictError("only attending reservations can be marked attended")
		}
		if err := repos.Rsvps.MarkAttended(ctx, current.ID); err != nil {
			return err
		}
		current.Attended = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rsvp, nil
}

// Stats returns reservation counts and capacity for an activity.
func (s *ReservationService) Stats(ctx context.Context, activityID uint) (*AttendanceStats, error) {
	repos := s.uow.Repos()
	activity, err := repos.Activities.GetByID(ctx, activityID)
	if err != nil {
		return nil, err
	}
	rows, err := repos.Rsvps.ListByActivity(ctx, activityID)
	if err != nil {
		return nil, err
	}
	return &AttendanceStats{
		ActivityID:       activity.ID,
		AttendanceTally:  TallyAttendance(rows),
		MaxAttendees:     activity.MaxAttendees,
		CurrentAttendees: activity.CurrentAttendees,
		SpotsRemaining:   activity.SpotsRemaining(),
	}, nil
}

// List returns every reservation of an activity in queue order. Only the
// host sees the full list.
func (s *ReservationService) List(ctx context.Context, activityID, actingUserID uint) ([]models.Rsvp, error) {
	repos := s.uow.Repos()
	activity, err := repos.Activities.GetByID(ctx, activityID)
	if err != nil {
		return nil, err
	}
	if activity.HostID != actingUserID {
		return nil, models.NewUnauthorizedError("only the host can list reservations")
	}
	return repos.Rsvps.ListByActivity(ctx, activityID)
}

// WaitlistCount returns how many reservations are waiting for a spot.
func (s *ReservationService) WaitlistCount(ctx context.Context, activityID uint) (int64, error) {
	repos := s.uow.Repos()
	if _, err := repos.Activities.GetByID(ctx, activityID); err != nil {
		return 0, err
	}
	return repos.Rsvps.CountByStatus(ctx, activityID, models.RsvpStatusWaitlist)
}

// SpotsRemaining returns the open spots, or nil for an unbounded activity.
func (s *ReservationService) SpotsRemaining(ctx context.Context, activityID uint) (*int, error) {
	activity, err := s.uow.Repos().Activities.GetByID(ctx, activityID)
	if err != nil {
		return nil, err
	}
	return activity.SpotsRemaining(), nil
}

// lockReservation locks the reservation's activity and re-reads the
// reservation under that lock.
func (s *ReservationService) lockReservation(ctx context.Context, repos repository.Repositories, rsvpID uint) (*models.Activity, *models.Rsvp, error) {
	unlocked, err := repos.Rsvps.GetByID(ctx, rsvpID)
	if err != nil {
		return nil, nil, err
	}
	activity, err := s.engine.Lock(ctx, repos, unlocked.ActivityID)
	if err != nil {
		return nil, nil, err
	}
	rsvp, err := repos.Rsvps.GetByID(ctx, rsvpID)
	if err != nil {
		return nil, nil, err
	}
	return activity, rsvp, nil
}

func (s *ReservationService) rsvpEvent(eventType string, rsvp *models.Rsvp, actorID, hostID uint) notifications.Event {
	ev := notifications.NewEvent(eventType, s.now())
	ev.ActivityID = rsvp.ActivityID
	ev.RsvpID = rsvp.ID
	ev.ActorID = actorID
	ev.Recipients = []uint{hostID}
	ev.Payload = rsvp
	return ev
}
