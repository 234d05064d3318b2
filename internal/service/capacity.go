package service

import (
	"context"
	"time"

	"rally/internal/models"
	"rally/internal/observability"
	"rally/internal/repository"
)

// ReservationExtras are opaque payment fields stored with a reservation.
type ReservationExtras struct {
	PaymentIntentID *string
	PaymentStatus   string
}

// ReconcileResult describes a counter repair.
type ReconcileResult struct {
	ActivityID uint           `json:"activity_id"`
	Before     int            `json:"before"`
	After      int            `json:"after"`
	Promoted   []*models.Rsvp `json:"promoted,omitempty"`
}

// Drifted reports whether the stored counter was wrong.
func (r *ReconcileResult) Drifted() bool { return r.Before != r.After }

// CapacityEngine keeps current_attendees equal to the number of attending
// reservations and runs the FIFO waitlist.
//
// Every method except Lock expects to run inside a unit of work whose first
// step was Lock on the same activity. The activity passed in is the locked
// row and is kept in step with every counter change.
type CapacityEngine struct {
	now Clock
}

// NewCapacityEngine creates a capacity engine.
func NewCapacityEngine() *CapacityEngine {
	return &CapacityEngine{now: time.Now}
}

// SetClock replaces the engine's time source.
func (e *CapacityEngine) SetClock(now Clock) { e.now = now }

// Lock takes the exclusive row lock that serializes capacity changes on one
// activity.
func (e *CapacityEngine) Lock(ctx context.Context, repos repository.Repositories, activityID uint) (*models.Activity, error) {
	start := time.Now()
	activity, err := repos.Activities.LockByID(ctx, activityID)
	observability.ObserveLockWait(start)
	return activity, err
}

// CanReserve resolves the status a new reservation would get. Without the
// lock the answer is only a hint.
func (e *CapacityEngine) CanReserve(ctx context.Context, repos repository.Repositories, activity *models.Activity, userID uint) (string, error) {
	existing, err := repos.Rsvps.FindByActivityAndUser(ctx, activity.ID, userID)
	if err != nil {
		return "", err
	}
	if existing != nil {
		return "", models.NewConflictError("user already has a reservation for this activity")
	}
	if activity.IsFull() {
		return models.RsvpStatusWaitlist, nil
	}
	return models.RsvpStatusAttending, nil
}

// Reserve re-checks CanReserve under the lock and writes the reservation,
// counting it when it is attending.
func (e *CapacityEngine) Reserve(ctx context.Context, repos repository.Repositories, activity *models.Activity, userID uint, extras ReservationExtras) (*models.Rsvp, error) {
	status, err := e.CanReserve(ctx, repos, activity, userID)
	if err != nil {
		return nil, err
	}
	rsvp := &models.Rsvp{
		ActivityID:      activity.ID,
		UserID:          userID,
		Status:          status,
		PaymentIntentID: extras.PaymentIntentID,
		PaymentStatus:   extras.PaymentStatus,
	}
	if err := repos.Rsvps.Create(ctx, rsvp); err != nil {
		return nil, err
	}
	if status == models.RsvpStatusAttending {
		if err := e.adjust(ctx, repos, activity, 1); err != nil {
			return nil, err
		}
	}
	return rsvp, nil
}

// Release declines rsvp, frees its spot when it held one and then promotes
// from the waitlist in the same transaction. Releasing a declined reservation
// does nothing.
func (e *CapacityEngine) Release(ctx context.Context, repos repository.Repositories, activity *models.Activity, rsvp *models.Rsvp) (*models.Rsvp, error) {
	if rsvp.Status == models.RsvpStatusDeclined {
		return nil, nil
	}
	wasAttending := rsvp.Status == models.RsvpStatusAttending
	if err := repos.Rsvps.UpdateStatus(ctx, rsvp.ID, models.RsvpStatusDeclined); err != nil {
		return nil, err
	}
	rsvp.Status = models.RsvpStatusDeclined
	if wasAttending {
		if err := e.adjust(ctx, repos, activity, -1); err != nil {
			return nil, err
		}
	}
	return e.Promote(ctx, repos, activity)
}

// Promote moves the oldest waitlisted reservation to attending when a spot is
// open. It returns nil when nothing was promoted.
func (e *CapacityEngine) Promote(ctx context.Context, repos repository.Repositories, activity *models.Activity) (*models.Rsvp, error) {
	if activity.IsFull() {
		return nil, nil
	}
	next, err := repos.Rsvps.NextWaitlisted(ctx, activity.ID)
	if err != nil || next == nil {
		return nil, err
	}
	now := e.now()
	if err := repos.Rsvps.Promote(ctx, next.ID, now); err != nil {
		return nil, err
	}
	if err := e.adjust(ctx, repos, activity, 1); err != nil {
		return nil, err
	}
	next.Status = models.RsvpStatusAttending
	next.PromotedAt = &now
	return next, nil
}

// FillOpenSpots promotes until the activity is full or the waitlist is empty.
func (e *CapacityEngine) FillOpenSpots(ctx context.Context, repos repository.Repositories, activity *models.Activity) ([]*models.Rsvp, error) {
	var promoted []*models.Rsvp
	for {
		next, err := e.Promote(ctx, repos, activity)
		if err != nil {
			return nil, err
		}
		if next == nil {
			return promoted, nil
		}
		promoted = append(promoted, next)
	}
}

// Reconcile recounts attending reservations, repairs the stored counter and
// fills any spots the repair opened.
func (e *CapacityEngine) Reconcile(ctx context.Context, repos repository.Repositories, activity *models.Activity) (*ReconcileResult, error) {
	rows, err := repos.Rsvps.ListByActivity(ctx, activity.ID)
	if err != nil {
		return nil, err
	}
	result := &ReconcileResult{ActivityID: activity.ID, Before: activity.CurrentAttendees}
	actual := TallyAttendance(rows).Attending
	if actual != activity.CurrentAttendees {
		if err := repos.Activities.SetAttendees(ctx, activity.ID, actual); err != nil {
			return nil, err
		}
		activity.CurrentAttendees = actual
	}
	result.After = actual
	if result.Promoted, err = e.FillOpenSpots(ctx, repos, activity); err != nil {
		return nil, err
	}
	return result, nil
}

func (e *CapacityEngine) adjust(ctx context.Context, repos repository.Repositories, activity *models.Activity, delta int) error {
	if err := repos.Activities.AdjustAttendees(ctx, activity.ID, delta); err != nil {
		return err
	}
	activity.CurrentAttendees += delta
	return nil
}
