package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"rally/internal/featureflags"
	"rally/internal/models"
	"rally/internal/notifications"
	"rally/internal/repository"
	"rally/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type harness struct {
	db     *gorm.DB
	uow    repository.UnitOfWork
	events *notifications.Recorder
	clock  *fakeClock

	gate         *ConversionGate
	reactions    *ReactionService
	conversions  *ConversionService
	engine       *CapacityEngine
	reservations *ReservationService
	activities   *ActivityService
	posts        *PostService
}

func newHarness(t *testing.T, flags string) *harness {
	t.Helper()
	db := testutil.NewSQLiteDB(t)
	uow := repository.NewUnitOfWork(db)
	events := &notifications.Recorder{}
	clock := newFakeClock()
	policy := DefaultPromptPolicy()

	svc := NewServices(uow, policy, featureflags.NewManager(flags), events)
	svc.SetClock(clock.Now)

	return &harness{
		db:           db,
		uow:          uow,
		events:       events,
		clock:        clock,
		gate:         svc.Gate,
		reactions:    svc.Reactions,
		conversions:  svc.Conversions,
		engine:       svc.Capacity,
		reservations: svc.Reservations,
		activities:   svc.Activities,
		posts:        svc.Posts,
	}
}

func (h *harness) post(t *testing.T, ownerID uint, tags ...string) *models.Post {
	t.Helper()
	post, err := h.posts.CreatePost(context.Background(), CreatePostInput{
		UserID:      ownerID,
		Title:       "Sunset kayak trip",
		Description: "Paddle out from the north beach",
		Location:    "North beach",
		ExpiresAt:   h.clock.Now().Add(72 * time.Hour),
		Tags:        tags,
	})
	require.NoError(t, err)
	return post
}

func (h *harness) activity(t *testing.T, hostID uint, maxAttendees *int) *models.Activity {
	t.Helper()
	start := h.clock.Now().Add(48 * time.Hour)
	activity, err := h.activities.CreateActivity(context.Background(), CreateActivityInput{
		HostID:       hostID,
		Title:        "Five-a-side",
		StartTime:    start,
		EndTime:      start.Add(90 * time.Minute),
		MaxAttendees: maxAttendees,
		Status:       models.ActivityStatusPublished,
	})
	require.NoError(t, err)
	return activity
}

func (h *harness) react(t *testing.T, postID uint, users ...uint) *ReactionResult {
	t.Helper()
	var last *ReactionResult
	for _, u := range users {
		res, err := h.reactions.ToggleReaction(context.Background(), ToggleReactionInput{PostID: postID, UserID: u, Type: models.ReactionInterested})
		require.NoError(t, err)
		last = res
	}
	return last
}

func (h *harness) reserve(t *testing.T, activityID, userID uint) *models.Rsvp {
	t.Helper()
	rsvp, err := h.reservations.Create(context.Background(), CreateReservationInput{ActivityID: activityID, UserID: userID})
	require.NoError(t, err)
	return rsvp
}

func (h *harness) reload(t *testing.T, activityID uint) *models.Activity {
	t.Helper()
	a, err := h.uow.Repos().Activities.GetByID(context.Background(), activityID)
	require.NoError(t, err)
	return a
}

func (h *harness) rsvp(t *testing.T, id uint) *models.Rsvp {
	t.Helper()
	r, err := h.uow.Repos().Rsvps.GetByID(context.Background(), id)
	require.NoError(t, err)
	return r
}

// assertCapacityInvariant checks the stored counter against the rows.
func (h *harness) assertCapacityInvariant(t *testing.T, activityID uint) {
	t.Helper()
	a := h.reload(t, activityID)
	rows, err := h.uow.Repos().Rsvps.ListByActivity(context.Background(), activityID)
	require.NoError(t, err)
	assert.Equal(t, TallyAttendance(rows).Attending, a.CurrentAttendees, "counter must equal attending rows")
	assert.GreaterOrEqual(t, a.CurrentAttendees, 0)
	if a.MaxAttendees != nil {
		assert.LessOrEqual(t, a.CurrentAttendees, *a.MaxAttendees)
	}
}

func userRange(from, to uint) []uint {
	out := make([]uint, 0, to-from+1)
	for u := from; u <= to; u++ {
		out = append(out, u)
	}
	return out
}
