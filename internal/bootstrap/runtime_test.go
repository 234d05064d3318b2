package bootstrap

import (
	"context"
	"testing"
	"time"

	"rally/internal/config"
	"rally/internal/models"
	"rally/internal/service"
	"rally/internal/testutil"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	return &config.Config{
		JWTSecret:                 "test-secret",
		Port:                      "0",
		FeatureFlags:              "conversion_prompts=on",
		ConversionSoftThreshold:   2,
		ConversionStrongThreshold: 4,
		ConversionPromptCooldown:  time.Hour,
		ConversionDismissLimit:    1,
	}
}

func TestNewRuntime_UsesConfiguredPolicy(t *testing.T) {
	rt := NewRuntime(testConfig(), testutil.NewSQLiteDB(t), nil)

	policy := rt.Services.Gate.Policy()
	assert.Equal(t, 2, policy.SoftThreshold)
	assert.Equal(t, 4, policy.StrongThreshold)
	assert.Equal(t, 1, policy.DismissLimit)
}

func TestNewRuntime_PublishesToRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	rt := NewRuntime(testConfig(), testutil.NewSQLiteDB(t), rdb)
	ctx := context.Background()

	sub := rdb.PSubscribe(ctx, "events:*")
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	post, err := rt.Services.Posts.CreatePost(ctx, service.CreatePostInput{
		UserID: 1, Title: "Picnic", ExpiresAt: time.Now().Add(time.Hour),
	})
	require.NoError(t, err)
	_, err = rt.Services.Reactions.ToggleReaction(ctx, service.ToggleReactionInput{
		PostID: post.ID, UserID: 2, Type: models.ReactionInterested,
	})
	require.NoError(t, err)

	select {
	case msg := <-sub.Channel():
		assert.Equal(t, "events:reaction.toggled", msg.Channel)
	case <-time.After(2 * time.Second):
		t.Fatal("no event published")
	}
}
