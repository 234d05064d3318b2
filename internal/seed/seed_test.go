package seed

import (
	"context"
	"strings"
	"testing"
	"time"

	"rally/internal/featureflags"
	"rally/internal/models"
	"rally/internal/notifications"
	"rally/internal/repository"
	"rally/internal/service"
	"rally/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newServices(t *testing.T) (*gorm.DB, *service.Services) {
	t.Helper()
	db := testutil.NewSQLiteDB(t)
	uow := repository.NewUnitOfWork(db)
	return db, service.NewServices(uow, service.DefaultPromptPolicy(), featureflags.NewManager(""), &notifications.Recorder{})
}

func TestDemoFixtures(t *testing.T) {
	db, svc := newServices(t)
	f, err := DemoFixtures()
	require.NoError(t, err)

	report, err := Apply(context.Background(), svc, f, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 3, report.Posts)
	assert.Equal(t, 16, report.Reactions)
	assert.Equal(t, 1, report.Conversions)
	assert.Equal(t, 1, report.Activities)
	assert.Equal(t, 8, report.Reservations)
	assert.Equal(t, 2, report.Waitlisted)

	var converted models.Post
	require.NoError(t, db.Where("title = ?", "Sunset kayak trip").First(&converted).Error)
	assert.Equal(t, models.PostStatusConverted, converted.Status)
	require.NotNil(t, converted.ConvertedActivityID)

	var activity models.Activity
	require.NoError(t, db.First(&activity, *converted.ConvertedActivityID).Error)
	assert.Equal(t, 3, activity.CurrentAttendees)

	var chess models.Post
	require.NoError(t, db.Where("user_id = ?", 8).First(&chess).Error)
	assert.Equal(t, 9, chess.ReactionCount)
	assert.NotNil(t, chess.ConversionPromptedAt)

	var pottery models.Activity
	require.NoError(t, db.Where("title = ?", "Pottery basics workshop").First(&pottery).Error)
	assert.Equal(t, "USD", pottery.Currency)
	assert.True(t, pottery.IsPaid)
}

func TestLoadFixtures_RejectsUnknownFields(t *testing.T) {
	_, err := LoadFixtures(strings.NewReader("posts:\n  - owner: 1\n    colour: red\n"))
	assert.Error(t, err)
}

func TestLoadFixtures_Durations(t *testing.T) {
	f, err := LoadFixtures(strings.NewReader(`
posts:
  - owner: 3
    title: Quiz night
    expires_in: 90m
    convert:
      start_in: 26h
      duration: 2h30m
      max_attendees: 4
`))
	require.NoError(t, err)
	require.Len(t, f.Posts, 1)
	assert.Equal(t, 90*time.Minute, f.Posts[0].ExpiresIn)
	require.NotNil(t, f.Posts[0].Convert)
	assert.Equal(t, 150*time.Minute, f.Posts[0].Convert.Duration)
}

func TestFactoryRun_KeepsCountersConsistent(t *testing.T) {
	db, svc := newServices(t)
	f := NewFactory(svc, Options{NumPosts: 12, NumUsers: 25, MaxReactions: 12, ConvertEvery: 1, Seed: 42})

	report, err := f.Run(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, 12, report.Posts)

	var records int64
	require.NoError(t, db.Model(&models.ConversionRecord{}).Count(&records).Error)
	assert.Equal(t, int64(report.Conversions), records)

	var activities []models.Activity
	require.NoError(t, db.Find(&activities).Error)
	for _, a := range activities {
		var attending int64
		require.NoError(t, db.Model(&models.Rsvp{}).
			Where("activity_id = ? AND status = ?", a.ID, models.RsvpStatusAttending).
			Count(&attending).Error)
		assert.Equal(t, int(attending), a.CurrentAttendees)
		require.NotNil(t, a.MaxAttendees)
		assert.LessOrEqual(t, a.CurrentAttendees, *a.MaxAttendees)
	}
}

func TestClearAll(t *testing.T) {
	db, svc := newServices(t)
	f, err := DemoFixtures()
	require.NoError(t, err)
	_, err = Apply(context.Background(), svc, f, time.Now())
	require.NoError(t, err)

	require.NoError(t, ClearAll(db))
	for _, model := range []interface{}{&models.Post{}, &models.Activity{}, &models.Rsvp{}, &models.Reaction{}, &models.ConversionRecord{}, &models.Tag{}} {
		var n int64
		require.NoError(t, db.Model(model).Count(&n).Error)
		assert.Zero(t, n)
	}
}
