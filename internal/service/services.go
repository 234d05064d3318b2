package service

import (
	"rally/internal/featureflags"
	"rally/internal/repository"
)

// Services bundles every domain service over one unit of work and one event
// sink. The HTTP server and the CLI both build their handlers on it.
type Services struct {
	Gate         *ConversionGate
	Reactions    *ReactionService
	Conversions  *ConversionService
	Capacity     *CapacityEngine
	Reservations *ReservationService
	Activities   *ActivityService
	Posts        *PostService
}

// NewServices wires the services together.
func NewServices(uow repository.UnitOfWork, policy PromptPolicy, flags *featureflags.Manager, events EventPublisher) *Services {
	s := &Services{}
	s.Gate = NewConversionGate(uow, policy, flags, events)
	s.Reactions = NewReactionService(uow, s.Gate, events)
	s.Conversions = NewConversionService(uow, policy, events)
	s.Capacity = NewCapacityEngine()
	s.Reservations = NewReservationService(uow, s.Capacity, events)
	s.Activities = NewActivityService(uow, s.Capacity, s.Conversions, events)
	s.Posts = NewPostService(uow)
	return s
}

// SetClock replaces the time source of every service.
func (s *Services) SetClock(now Clock) {
	s.Gate.SetClock(now)
	s.Reactions.SetClock(now)
	s.Conversions.SetClock(now)
	s.Capacity.SetClock(now)
	s.Reservations.SetClock(now)
	s.Activities.SetClock(now)
	s.Posts.SetClock(now)
}
