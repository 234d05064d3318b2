// Package service implements the post to activity conversion pipeline.
package service

import (
	"context"
	"log/slog"
	"time"

	"rally/internal/cache"
	"rally/internal/middleware"
	"rally/internal/models"
	"rally/internal/notifications"
	"rally/internal/observability"
)

// EventPublisher receives events once the owning transaction has committed.
type EventPublisher interface {
	Publish(ctx context.Context, events ...notifications.Event) error
}

// Clock returns the current time. Services default to time.Now.
type Clock func() time.Time

// outbox collects side effects while a unit of work runs so they can be
// released only after commit.
type outbox struct {
	events  []notifications.Event
	postIDs []uint
}

func (o *outbox) add(ev notifications.Event) {
	o.events = append(o.events, ev)
}

func (o *outbox) touchPost(id uint) {
	o.postIDs = append(o.postIDs, id)
}

// flush invalidates cached posts and publishes events. Failures are logged;
// the operation they describe has already committed.
func (o *outbox) flush(ctx context.Context, pub EventPublisher) {
	if len(o.postIDs) > 0 {
		cache.InvalidatePosts(ctx, o.postIDs...)
	}
	if pub == nil || len(o.events) == 0 {
		return
	}
	if err := pub.Publish(ctx, o.events...); err != nil {
		middleware.Logger.WarnContext(ctx, "event publish failed",
			slog.Int("events", len(o.events)),
			slog.String("first_type", o.events[0].Type),
			slog.String("error", err.Error()))
	}
}

// addPromotions queues one reservation.promoted event per promoted
// reservation, addressed to its holder.
func addPromotions(box *outbox, at time.Time, promoted []*models.Rsvp) {
	for _, p := range promoted {
		if p == nil {
			continue
		}
		ev := notifications.NewEvent(notifications.EventReservationPromoted, at)
		ev.ActivityID = p.ActivityID
		ev.RsvpID = p.ID
		ev.UserID = p.UserID
		ev.Recipients = []uint{p.UserID}
		ev.Payload = p
		box.add(ev)
	}
}

func recordPromotions(promoted []*models.Rsvp) {
	for _, p := range promoted {
		if p != nil {
			observability.WaitlistPromotions.Inc()
		}
	}
}
