package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"rally/internal/middleware"
	"rally/internal/observability"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
)

// BreakerSettings tunes the circuit breaker in front of Redis publishes.
type BreakerSettings struct {
	MaxFailures uint32
	Timeout     time.Duration
}

// Notifier publishes events into Redis channels. A nil Redis client turns
// every publish into a no-op.
type Notifier struct {
	rdb     *redis.Client
	breaker *gobreaker.CircuitBreaker
}

// NewNotifier creates a new Notifier instance using the provided Redis client.
func NewNotifier(rdb *redis.Client, settings BreakerSettings) *Notifier {
	if settings.MaxFailures == 0 {
		settings.MaxFailures = 5
	}
	if settings.Timeout <= 0 {
		settings.Timeout = 30 * time.Second
	}
	st := gobreaker.Settings{Name: "event-publish", Timeout: settings.Timeout}
	st.ReadyToTrip = func(counts gobreaker.Counts) bool {
		return counts.ConsecutiveFailures >= settings.MaxFailures
	}
	st.OnStateChange = func(name string, from, to gobreaker.State) {
		middleware.Logger.Warn("circuit breaker state change",
			slog.String("breaker", name),
			slog.String("from", from.String()),
			slog.String("to", to.String()))
	}
	return &Notifier{rdb: rdb, breaker: gobreaker.NewCircuitBreaker(st)}
}

// Publish sends each event to its type channel and to every recipient's user
// channel. All events are attempted; the returned error joins the failures.
func (n *Notifier) Publish(ctx context.Context, events ...Event) error {
	if n == nil || n.rdb == nil {
		return nil
	}
	var errs []error
	for _, ev := range events {
		if err := n.publishOne(ctx, ev); err != nil {
			observability.EventPublishFailures.WithLabelValues(ev.Type).Inc()
			errs = append(errs, fmt.Errorf("publish %s: %w", ev.Type, err))
		}
	}
	return errors.Join(errs...)
}

func (n *Notifier) publishOne(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	_, err = n.breaker.Execute(func() (interface{}, error) {
		pipe := n.rdb.Pipeline()
		pipe.Publish(ctx, EventChannel(ev.Type), payload)
		for _, userID := range ev.Recipients {
			pipe.Publish(ctx, UserChannel(userID), payload)
		}
		_, err := pipe.Exec(ctx)
		return nil, err
	})
	return err
}

// BreakerState reports the publish breaker state.
func (n *Notifier) BreakerState() gobreaker.State {
	return n.breaker.State()
}

// StartEventSubscriber subscribes to `events:*` and calls onMessage for each
// decoded event until ctx is cancelled.
func (n *Notifier) StartEventSubscriber(ctx context.Context, onMessage func(channel string, ev Event)) error {
	return n.psubscribe(ctx, EventChannel("*"), func(msg *redis.Message) {
		var ev Event
		if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
			middleware.Logger.Warn("dropping undecodable event",
				slog.String("channel", msg.Channel),
				slog.String("error", err.Error()))
			return
		}
		onMessage(msg.Channel, ev)
	})
}

func (n *Notifier) psubscribe(ctx context.Context, pattern string, handle func(*redis.Message)) error {
	if n == nil || n.rdb == nil {
		return errors.New("subscriber requires redis")
	}
	sub := n.rdb.PSubscribe(ctx, pattern)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("subscribe %s: %w", pattern, err)
	}
	ch := sub.Channel()

	go func() {
		defer func() { _ = sub.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				safeCall("subscriber "+pattern, func() { handle(msg) })
			}
		}
	}()

	return nil
}

// safeCall runs fn and logs a panic instead of killing the subscriber.
func safeCall(what string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			middleware.Logger.Error("panic in "+what,
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
		}
	}()
	fn()
}
