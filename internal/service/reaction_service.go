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

// Toggle outcomes.
const (
	ReactionOn      = "on"
	ReactionOff     = "off"
	ReactionChanged = "changed"
)

// ToggleReactionInput identifies the reaction being toggled.
type ToggleReactionInput struct {
	PostID uint
	UserID uint
	Type   string
}

// ReactionResult reports what a toggle did. Eligibility is set only when a
// new reaction was added.
type ReactionResult struct {
	Action        string        `json:"action"`
	Type          string        `json:"type"`
	ReactionCount int           `json:"reaction_count"`
	Eligibility   *PromptResult `json:"eligibility,omitempty"`
}

// ReactionService maintains per-user reactions and the post's reaction count.
type ReactionService struct {
	uow    repository.UnitOfWork
	gate   *ConversionGate
	events EventPublisher
	now    Clock
}

// NewReactionService creates a reaction service.
func NewReactionService(uow repository.UnitOfWork, gate *ConversionGate, events EventPublisher) *ReactionService {
	return &ReactionService{uow: uow, gate: gate, events: events, now: time.Now}
}

// SetClock replaces the service's time source.
func (s *ReactionService) SetClock(now Clock) { s.now = now }

// ToggleReaction adds, removes or retypes the user's reaction. The count is
// recomputed from the rows afterwards rather than adjusted by a delta.
func (s *ReactionService) ToggleReaction(ctx context.Context, in ToggleReactionInput) (result *ReactionResult, err error) {
	span, ctx := observability.NewSpan(ctx, "ReactionService.ToggleReaction",
		attribute.Int("post_id", int(in.PostID)), attribute.Int("user_id", int(in.UserID)))
	defer func() { span.End(err) }()

	if !models.IsValidReactionType(in.Type) {
		return nil, models.NewValidationError("Invalid reaction type")
	}

	var box outbox
	err = s.uow.Do(ctx, func(ctx context.Context, repos repository.Repositories) error {
		// The post lock serializes toggles on one post so each recount sees
		// every previously committed reaction.
		post, err := repos.Posts.LockByID(ctx, in.PostID)
		if err != nil {
			return err
		}
		if post.UserID == in.UserID {
			return models.NewValidationError("You cannot react to your own post")
		}
		if !post.OpenAt(s.now()) {
			return models.NewConflictError("post is no longer accepting reactions")
		}

		existing, err := repos.Reactions.Find(ctx, post.ID, in.UserID)
		if err != nil {
			return err
		}
		res := &ReactionResult{Type: in.Type}
		switch {
		case existing == nil:
			res.Action = ReactionOn
			err = repos.Reactions.Create(ctx, &models.Reaction{PostID: post.ID, UserID: in.UserID, Type: in.Type})
		case existing.Type == in.Type:
			res.Action = ReactionOff
			err = repos.Reactions.Delete(ctx, existing.ID)
		default:
			res.Action = ReactionChanged
			err = repos.Reactions.UpdateType(ctx, existing.ID, in.Type)
		}
		if err != nil {
			return err
		}

		rows, err := repos.Reactions.ListByPost(ctx, post.ID)
		if err != nil {
			return err
		}
		res.ReactionCount = CountReactions(rows)
		if err := repos.Posts.UpdateReactionCount(ctx, post.ID, res.ReactionCount); err != nil {
			return err
		}
		post.ReactionCount = res.ReactionCount
		box.touchPost(post.ID)

		if res.Action == ReactionOn && s.gate != nil {
			if res.Eligibility, err = s.gate.promptLocked(ctx, repos, post, &box); err != nil {
				return err
			}
		}

		ev := notifications.NewEvent(notifications.EventReactionToggled, s.now())
		ev.PostID = post.ID
		ev.ActorID = in.UserID
		if res.Action == ReactionOn {
			ev.Recipients = []uint{post.UserID}
		}
		ev.Payload = res
		box.add(ev)

		result = res
		return nil
	})
	if err != nil {
		return nil, err
	}

	span.AddAttributes(attribute.String("action", result.Action), attribute.Int("reaction_count", result.ReactionCount))
	observability.ReactionToggles.WithLabelValues(result.Action).Inc()
	recordPromptOutcome(result.Eligibility)
	box.flush(ctx, s.events)
	return result, nil
}
