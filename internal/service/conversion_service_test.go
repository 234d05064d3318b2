package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"rally/internal/models"
	"rally/internal/notifications"
	"rally/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (h *harness) convertInput(postID, actingUserID uint) ConvertInput {
	start := h.clock.Now().Add(72 * time.Hour)
	return ConvertInput{
		PostID:       postID,
		ActingUserID: actingUserID,
		StartTime:    start,
		EndTime:      start.Add(3 * time.Hour),
		MaxAttendees: testutil.IntPtr(8),
	}
}

func countRows(t *testing.T, h *harness, model interface{}) int64 {
	t.Helper()
	var n int64
	require.NoError(t, h.db.Model(model).Count(&n).Error)
	return n
}

func TestConversionService_ConvertCarriesPostFields(t *testing.T) {
	h := newHarness(t, "")
	post := h.post(t, 1, "Kayak", "outdoors")
	h.react(t, post.ID, 2, 3)
	ctx := context.Background()

	res, err := h.conversions.Convert(ctx, h.convertInput(post.ID, 1))
	require.NoError(t, err)

	a := res.Activity
	assert.Equal(t, post.Title, a.Title)
	assert.Equal(t, post.Description, a.Description)
	assert.Equal(t, post.Location, a.Location)
	assert.Equal(t, uint(1), a.HostID)
	assert.Equal(t, models.ActivityStatusPublished, a.Status)
	require.NotNil(t, a.OriginatedFromPostID)
	assert.Equal(t, post.ID, *a.OriginatedFromPostID)

	stored, err := h.activities.GetActivity(ctx, a.ID)
	require.NoError(t, err)
	names := make([]string, 0, len(stored.Tags))
	for _, tag := range stored.Tags {
		names = append(names, tag.Name)
	}
	assert.ElementsMatch(t, []string{"kayak", "outdoors"}, names)

	rec := res.Record
	assert.Equal(t, post.ID, rec.PostID)
	assert.Equal(t, a.ID, rec.ActivityID)
	assert.Equal(t, 2, rec.ReactionCount)
	assert.Equal(t, models.ConversionTriggerManual, rec.TriggerType)
	assert.Empty(t, rec.PromptUrgency)
	assert.True(t, rec.ConvertedAt.Equal(h.clock.Now()))

	retired, err := h.uow.Repos().Posts.GetByID(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PostStatusConverted, retired.Status)
	require.NotNil(t, retired.ConvertedActivityID)
	assert.Equal(t, a.ID, *retired.ConvertedActivityID)

	completed := h.events.OfType(notifications.EventConversionCompleted)
	require.Len(t, completed, 1)
	assert.Equal(t, a.ID, completed[0].ActivityID)
	assert.Same(t, res, completed[0].Payload)
}

func TestConversionService_OverridesWin(t *testing.T) {
	h := newHarness(t, "")
	post := h.post(t, 1, "kayak")
	in := h.convertInput(post.ID, 1)
	in.Title = "Kayak club launch"
	in.Location = "Harbour"
	in.IsPaid = true
	in.PriceCents = 1500
	in.Currency = "eur"
	in.Status = models.ActivityStatusDraft
	empty := []string{}
	in.Tags = &empty

	res, err := h.conversions.Convert(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, "Kayak club launch", res.Activity.Title)
	assert.Equal(t, post.Description, res.Activity.Description)
	assert.Equal(t, "Harbour", res.Activity.Location)
	assert.Equal(t, "EUR", res.Activity.Currency)
	assert.Equal(t, 1500, res.Activity.PriceCents)
	assert.Equal(t, models.ActivityStatusDraft, res.Activity.Status)

	stored, err := h.activities.GetActivity(context.Background(), res.Activity.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.Tags)
}

func TestConversionService_Validation(t *testing.T) {
	h := newHarness(t, "")
	post := h.post(t, 1)
	now := h.clock.Now()

	tests := []struct {
		name   string
		mutate func(in *ConvertInput)
	}{
		{"missing start", func(in *ConvertInput) { in.StartTime = time.Time{} }},
		{"missing end", func(in *ConvertInput) { in.EndTime = time.Time{} }},
		{"start in the past", func(in *ConvertInput) { in.StartTime = now.Add(-time.Hour) }},
		{"start now", func(in *ConvertInput) { in.StartTime = now }},
		{"end before start", func(in *ConvertInput) { in.EndTime = in.StartTime.Add(-time.Minute) }},
		{"end equals start", func(in *ConvertInput) { in.EndTime = in.StartTime }},
		{"zero cap", func(in *ConvertInput) { in.MaxAttendees = testutil.IntPtr(0) }},
		{"negative cap", func(in *ConvertInput) { in.MaxAttendees = testutil.IntPtr(-2) }},
		{"missing cap", func(in *ConvertInput) { in.MaxAttendees = nil }},
		{"bad status", func(in *ConvertInput) { in.Status = models.ActivityStatusCompleted }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := h.convertInput(post.ID, 1)
			tt.mutate(&in)
			_, err := h.conversions.Convert(context.Background(), in)
			assert.True(t, models.HasCode(err, models.CodeValidation), "got %v", err)
		})
	}
	assert.Zero(t, countRows(t, h, &models.Activity{}))
	assert.Zero(t, countRows(t, h, &models.ConversionRecord{}))
}

func TestConversionService_Rejections(t *testing.T) {
	h := newHarness(t, "")
	post := h.post(t, 1)
	ctx := context.Background()

	_, err := h.conversions.Convert(ctx, h.convertInput(post.ID, 2))
	assert.True(t, models.HasCode(err, models.CodeUnauthorized))

	_, err = h.conversions.Convert(ctx, h.convertInput(404, 1))
	assert.True(t, models.HasCode(err, models.CodeNotFound))

	h.clock.Advance(100 * time.Hour)
	_, err = h.posts.ExpireDue(ctx)
	require.NoError(t, err)
	_, err = h.conversions.Convert(ctx, h.convertInput(post.ID, 1))
	assert.True(t, models.HasCode(err, models.CodeConflict))
}

func TestConversionService_SecondConversionConflicts(t *testing.T) {
	h := newHarness(t, "")
	post := h.post(t, 1)
	ctx := context.Background()

	_, err := h.conversions.Convert(ctx, h.convertInput(post.ID, 1))
	require.NoError(t, err)

	_, err = h.conversions.Convert(ctx, h.convertInput(post.ID, 1))
	assert.True(t, models.HasCode(err, models.CodeConflict))

	assert.Equal(t, int64(1), countRows(t, h, &models.Activity{}))
	assert.Equal(t, int64(1), countRows(t, h, &models.ConversionRecord{}))
	assert.Len(t, h.events.OfType(notifications.EventConversionCompleted), 1)
}

func TestConversionService_SecondConversionConflictsBeforeValidation(t *testing.T) {
	h := newHarness(t, "")
	post := h.post(t, 1)
	ctx := context.Background()

	_, err := h.conversions.Convert(ctx, h.convertInput(post.ID, 1))
	require.NoError(t, err)

	_, err = h.conversions.Convert(ctx, ConvertInput{PostID: post.ID, ActingUserID: 1})
	assert.True(t, models.HasCode(err, models.CodeConflict), "got %v", err)
}

func TestConversionService_RejectsPostPastExpiry(t *testing.T) {
	h := newHarness(t, "")
	post := h.post(t, 1)

	h.clock.Advance(73 * time.Hour)
	_, err := h.conversions.Convert(context.Background(), h.convertInput(post.ID, 1))
	assert.True(t, models.HasCode(err, models.CodeConflict), "got %v", err)
	assert.Zero(t, countRows(t, h, &models.Activity{}))
}

func TestConversionService_ConcurrentConversionsProduceOne(t *testing.T) {
	h := newHarness(t, "")
	post := h.post(t, 1)
	ctx := context.Background()

	const attempts = 5
	errs := make([]error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = h.conversions.Convert(ctx, h.convertInput(post.ID, 1))
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.True(t, models.HasCode(err, models.CodeConflict), "got %v", err)
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, int64(1), countRows(t, h, &models.Activity{}))
	assert.Equal(t, int64(1), countRows(t, h, &models.ConversionRecord{}))
}

func TestConversionService_ConversionRecordIsTheBackstop(t *testing.T) {
	h := newHarness(t, "")
	post := h.post(t, 1)
	ctx := context.Background()
	other := h.activity(t, 1, nil)

	require.NoError(t, h.uow.Repos().Conversions.Create(ctx, &models.ConversionRecord{
		PostID: post.ID, ActivityID: other.ID, ConvertedByUserID: 1,
		TriggerType: models.ConversionTriggerManual, ConvertedAt: h.clock.Now(),
	}))

	_, err := h.conversions.Convert(ctx, h.convertInput(post.ID, 1))
	assert.True(t, models.HasCode(err, models.CodeConflict))
	assert.Equal(t, int64(1), countRows(t, h, &models.Activity{}))

	still, err := h.uow.Repos().Posts.GetByID(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PostStatusActive, still.Status)
}

func TestConversionService_PromptedTrigger(t *testing.T) {
	h := newHarness(t, "")
	post := h.post(t, 1)
	h.react(t, post.ID, userRange(2, 11)...)

	res, err := h.conversions.Convert(context.Background(), h.convertInput(post.ID, 1))
	require.NoError(t, err)
	assert.Equal(t, models.ConversionTriggerPrompted, res.Record.TriggerType)
	assert.Equal(t, UrgencyStrong, res.Record.PromptUrgency)
	assert.Equal(t, 10, res.Record.ReactionCount)

	got, err := h.conversions.GetConversion(context.Background(), post.ID)
	require.NoError(t, err)
	assert.Equal(t, res.Record.ID, got.ID)
}

func TestConversionService_RefreshConversionRate(t *testing.T) {
	h := newHarness(t, "")
	post := h.post(t, 1)
	h.react(t, post.ID, 2, 3, 4, 5)
	ctx := context.Background()

	res, err := h.conversions.Convert(ctx, h.convertInput(post.ID, 1))
	require.NoError(t, err)
	h.reserve(t, res.Activity.ID, 2)
	h.reserve(t, res.Activity.ID, 3)

	rec, err := h.conversions.RefreshConversionRate(ctx, res.Activity.ID)
	require.NoError(t, err)
	require.NotNil(t, rec.RsvpConversionRate)
	assert.InDelta(t, 0.5, *rec.RsvpConversionRate, 1e-9)

	plain := h.activity(t, 1, nil)
	_, err = h.conversions.RefreshConversionRate(ctx, plain.ID)
	assert.True(t, models.HasCode(err, models.CodeNotFound))
}

func TestConversionService_RefreshWithoutReactionsLeavesRateUnset(t *testing.T) {
	h := newHarness(t, "")
	post := h.post(t, 1)
	ctx := context.Background()

	res, err := h.conversions.Convert(ctx, h.convertInput(post.ID, 1))
	require.NoError(t, err)
	h.reserve(t, res.Activity.ID, 2)

	rec, err := h.conversions.RefreshConversionRate(ctx, res.Activity.ID)
	require.NoError(t, err)
	assert.Nil(t, rec.RsvpConversionRate)
}
