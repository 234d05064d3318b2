package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotifier_NilRedisIsNoop(t *testing.T) {
	n := NewNotifier(nil, BreakerSettings{})
	assert.NoError(t, n.Publish(context.Background(), NewEvent(EventConversionPrompted, time.Now())))
}

func TestChannels(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "notifications:user:100", UserChannel(100))
	assert.Equal(t, "events:conversion.completed", EventChannel(EventConversionCompleted))
}

func TestNewEvent(t *testing.T) {
	at := time.Date(2026, 5, 1, 12, 0, 0, 0, time.FixedZone("x", 3600))
	a := NewEvent(EventReservationCreated, at)
	b := NewEvent(EventReservationCreated, at)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, time.UTC, a.OccurredAt.Location())
	assert.True(t, a.OccurredAt.Equal(at))
}

func TestNotifier_PublishReachesTypeAndUserChannels(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = rdb.Close() }()

	ctx := context.Background()
	sub := rdb.Subscribe(ctx, EventChannel(EventReservationPromoted), UserChannel(42))
	defer func() { _ = sub.Close() }()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)
	_, err = sub.Receive(ctx)
	require.NoError(t, err)

	n := NewNotifier(rdb, BreakerSettings{MaxFailures: 3, Timeout: time.Second})
	ev := NewEvent(EventReservationPromoted, time.Now())
	ev.ActivityID = 7
	ev.Recipients = []uint{42}
	require.NoError(t, n.Publish(ctx, ev))

	seen := map[string]Event{}
	for i := 0; i < 2; i++ {
		msg, err := sub.ReceiveMessage(ctx)
		require.NoError(t, err)
		var got Event
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
		seen[msg.Channel] = got
	}
	assert.Equal(t, ev.ID, seen[EventChannel(EventReservationPromoted)].ID)
	assert.Equal(t, uint(7), seen[UserChannel(42)].ActivityID)
}

func TestNotifier_BreakerOpensAfterFailures(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer func() { _ = rdb.Close() }()

	n := NewNotifier(rdb, BreakerSettings{MaxFailures: 2, Timeout: time.Minute})
	mr.Close()

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		assert.Error(t, n.Publish(ctx, NewEvent(EventConversionPrompted, time.Now())))
	}
	assert.Equal(t, gobreaker.StateOpen, n.BreakerState())

	err := n.Publish(ctx, NewEvent(EventConversionPrompted, time.Now()))
	assert.True(t, errors.Is(err, gobreaker.ErrOpenState))
}

func TestNotifier_StartEventSubscriber(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = rdb.Close() }()

	n := NewNotifier(rdb, BreakerSettings{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan Event, 1)
	require.NoError(t, n.StartEventSubscriber(ctx, func(_ string, ev Event) {
		got <- ev
	}))

	ev := NewEvent(EventConversionCompleted, time.Now())
	ev.PostID = 3
	require.NoError(t, n.Publish(context.Background(), ev))

	select {
	case received := <-got:
		assert.Equal(t, ev.ID, received.ID)
		assert.Equal(t, uint(3), received.PostID)
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered")
	}
}

func TestRecorder(t *testing.T) {
	r := &Recorder{}
	require.NoError(t, r.Publish(context.Background(),
		NewEvent(EventReservationCreated, time.Now()),
		NewEvent(EventReservationPromoted, time.Now()),
	))
	assert.Len(t, r.Events(), 2)
	assert.Len(t, r.OfType(EventReservationPromoted), 1)

	r.Err = errors.New("sink down")
	assert.Error(t, r.Publish(context.Background(), NewEvent(EventReservationCreated, time.Now())))
	assert.Len(t, r.Events(), 3)

	r.Reset()
	assert.Empty(t, r.Events())
}

func TestNotifier_SubscriberRequiresRedis(t *testing.T) {
	n := NewNotifier(nil, BreakerSettings{})
	assert.Error(t, n.StartEventSubscriber(context.Background(), func(string, Event) {}))
}
