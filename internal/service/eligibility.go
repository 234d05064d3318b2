package service

import (
	"context"
	"time"

	"rally/internal/config"
	"rally/internal/featureflags"
	"rally/internal/models"
	"rally/internal/notifications"
	"rally/internal/observability"
	"rally/internal/repository"

	"go.opentelemetry.io/otel/attribute"
)

// Prompt urgencies.
const (
	UrgencySoft   = "soft"
	UrgencyStrong = "strong"
)

// Reasons a post was not prompted.
const (
	ReasonNotActive             = "not_active"
	ReasonInsufficientReactions = "insufficient_reactions"
	ReasonDismissLimitReached   = "dismiss_limit_reached"
	ReasonAlreadyPrompted       = "already_prompted"
	ReasonUnknown               = "unknown"
	ReasonPromptsDisabled       = "prompts_disabled"
)

// PromptPolicy holds the thresholds that decide when a post owner is asked
// to convert.
type PromptPolicy struct {
	SoftThreshold   int
	StrongThreshold int
	Cooldown        time.Duration
	DismissLimit    int
}

// DefaultPromptPolicy returns the stock thresholds.
func DefaultPromptPolicy() PromptPolicy {
	return PromptPolicy{
		SoftThreshold:   5,
		StrongThreshold: 10,
		Cooldown:        24 * time.Hour,
		DismissLimit:    3,
	}
}

// PromptPolicyFromConfig reads the policy from cfg.
func PromptPolicyFromConfig(cfg *config.Config) PromptPolicy {
	return PromptPolicy{
		SoftThreshold:   cfg.ConversionSoftThreshold,
		StrongThreshold: cfg.ConversionStrongThreshold,
		Cooldown:        cfg.ConversionPromptCooldown,
		DismissLimit:    cfg.ConversionDismissLimit,
	}
}

// Evaluate decides whether post should be prompted at now. When it should
// not, reason says why.
func (p PromptPolicy) Evaluate(post *models.Post, now time.Time) (ok bool, reason string) {
	switch {
	case post == nil:
		return false, ReasonUnknown
	case !post.OpenAt(now):
		return false, ReasonNotActive
	case post.ReactionCount < p.SoftThreshold:
		return false, ReasonInsufficientReactions
	case post.ConversionDismissCount >= p.DismissLimit:
		return false, ReasonDismissLimitReached
	case post.ConversionPromptedAt != nil && now.Sub(*post.ConversionPromptedAt) < p.Cooldown:
		return false, ReasonAlreadyPrompted
	}
	return true, ""
}

// ShouldPrompt reports whether post should be prompted at now.
func (p PromptPolicy) ShouldPrompt(post *models.Post, now time.Time) bool {
	ok, _ := p.Evaluate(post, now)
	return ok
}

// Urgency grades a reaction count.
func (p PromptPolicy) Urgency(reactionCount int) string {
	if reactionCount >= p.StrongThreshold {
		return UrgencyStrong
	}
	return UrgencySoft
}

// PromptResult is the outcome of an eligibility check.
type PromptResult struct {
	PostID        uint   `json:"post_id"`
	Prompted      bool   `json:"prompted"`
	Urgency       string `json:"urgency,omitempty"`
	Reason        string `json:"reason,omitempty"`
	ReactionCount int    `json:"reaction_count"`
}

// ConversionGate stamps conversion prompts and records dismissals.
type ConversionGate struct {
	uow    repository.UnitOfWork
	policy PromptPolicy
	flags  *featureflags.Manager
	events EventPublisher
	now    Clock
}

// NewConversionGate creates a gate. A nil flag manager leaves prompts on.
func NewConversionGate(uow repository.UnitOfWork, policy PromptPolicy, flags *featureflags.Manager, events EventPublisher) *ConversionGate {
	return &ConversionGate{uow: uow, policy: policy, flags: flags, events: events, now: time.Now}
}

// SetClock replaces the gate's time source.
func (g *ConversionGate) SetClock(now Clock) { g.now = now }

// Policy returns the thresholds in force.
func (g *ConversionGate) Policy() PromptPolicy { return g.policy }

// CheckAndPrompt evaluates the post under its row lock and stamps the prompt
// when eligible.
func (g *ConversionGate) CheckAndPrompt(ctx context.Context, postID uint) (result *PromptResult, err error) {
	span, ctx := observability.NewSpan(ctx, "ConversionGate.CheckAndPrompt", attribute.Int("post_id", int(postID)))
	defer func() { span.End(err) }()

	var box outbox
	err = g.uow.Do(ctx, func(ctx context.Context, repos repository.Repositories) error {
		post, err := repos.Posts.LockByID(ctx, postID)
		if err != nil {
			return err
		}
		result, err = g.promptLocked(ctx, repos, post, &box)
		return err
	})
	if err != nil {
		return nil, err
	}
	recordPromptOutcome(result)
	box.flush(ctx, g.events)
	return result, nil
}

// promptLocked runs inside a unit of work that already holds the post.
func (g *ConversionGate) promptLocked(ctx context.Context, repos repository.Repositories, post *models.Post, box *outbox) (*PromptResult, error) {
	now := g.now()
	result := &PromptResult{PostID: post.ID, ReactionCount: post.ReactionCount}

	if ok, reason := g.policy.Evaluate(post, now); !ok {
		result.Reason = reason
		return result, nil
	}
	if !g.flags.EnabledDefault(featureflags.ConversionPrompts, post.UserID, true) {
		result.Reason = ReasonPromptsDisabled
		return result, nil
	}

	if err := repos.Posts.StampPrompted(ctx, post.ID, now); err != nil {
		return nil, err
	}
	post.ConversionPromptedAt = &now

	result.Prompted = true
	result.Urgency = g.policy.Urgency(post.ReactionCount)

	ev := notifications.NewEvent(notifications.EventConversionPrompted, now)
	ev.PostID = post.ID
	ev.Recipients = []uint{post.UserID}
	ev.Payload = result
	box.add(ev)
	box.touchPost(post.ID)
	return result, nil
}

func recordPromptOutcome(result *PromptResult) {
	if result == nil {
		return
	}
	if result.Prompted {
		observability.ConversionPrompts.WithLabelValues(result.Urgency).Inc()
		return
	}
	observability.ConversionPromptsSkipped.WithLabelValues(result.Reason).Inc()
}

// Dismiss records that the owner declined the prompt. Once the dismiss count
// reaches the policy limit the post is never prompted again.
func (g *ConversionGate) Dismiss(ctx context.Context, postID, actingUserID uint) (post *models.Post, err error) {
	span, ctx := observability.NewSpan(ctx, "ConversionGate.Dismiss",
		attribute.Int("post_id", int(postID)), attribute.Int("user_id", int(actingUserID)))
	defer func() { span.End(err) }()

	var box outbox
	err = g.uow.Do(ctx, func(ctx context.Context, repos repository.Repositories) error {
		p, err := repos.Posts.LockByID(ctx, postID)
		if err != nil {
			return err
		}
		if p.UserID != actingUserID {
			return models.NewUnauthorizedError("only the post owner can dismiss its conversion prompt")
		}
		if !p.IsActive() {
			return models.NewConflictError("post is no longer active")
		}

		now := g.now()
		if err := repos.Posts.RecordDismiss(ctx, p.ID, now); err != nil {
			return err
		}
		p.ConversionDismissCount++
		p.ConversionDismissedAt = &now

		ev := notifications.NewEvent(notifications.EventConversionDismissed, now)
		ev.PostID = p.ID
		ev.ActorID = actingUserID
		ev.Payload = map[string]interface{}{
			"dismiss_count":   p.ConversionDismissCount,
			"limit_reached":   p.ConversionDismissCount >= g.policy.DismissLimit,
			"dismiss_ceiling": g.policy.DismissLimit,
		}
		box.add(ev)
		box.touchPost(p.ID)
		post = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	box.flush(ctx, g.events)
	return post, nil
}
