// Package observability provides metrics and tracing.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ReactionToggles counts reaction toggles by resulting action (on, off, changed).
	ReactionToggles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rally_reaction_toggles_total",
		Help: "Total reaction toggles by resulting action",
	}, []string{"action"})

	// ConversionPrompts counts conversion prompts emitted by urgency.
	ConversionPrompts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rally_conversion_prompts_total",
		Help: "Total conversion prompts emitted by urgency",
	}, []string{"urgency"})

	// ConversionPromptsSkipped counts eligibility checks that did not prompt, by reason.
	ConversionPromptsSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rally_conversion_prompts_skipped_total",
		Help: "Total eligibility checks that did not emit a prompt, by reason",
	}, []string{"reason"})

	// Conversions counts completed post to activity conversions by trigger type.
	Conversions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rally_conversions_total",
		Help: "Total completed post conversions by trigger type",
	}, []string{"trigger"})

	// Reservations counts created reservations by initial status.
	Reservations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rally_reservations_total",
		Help: "Total reservations created by initial status",
	}, []string{"status"})

	// WaitlistPromotions counts waitlisted reservations promoted to attending.
	WaitlistPromotions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rally_waitlist_promotions_total",
		Help: "Total waitlisted reservations promoted to attending",
	})

	// CapacityLockWait records how long capacity operations waited for the activity row lock.
	CapacityLockWait = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "rally_capacity_lock_wait_seconds",
		Help:    "Time spent acquiring the activity row lock",
		Buckets: prometheus.DefBuckets,
	})

	// AttendanceDrift counts reconcile runs that found a counter mismatch.
	AttendanceDrift = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rally_attendance_drift_repairs_total",
		Help: "Total attendance counter repairs made by reconcile",
	})

	// EventPublishFailures counts events that could not be handed to the event sink.
	EventPublishFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rally_event_publish_failures_total",
		Help: "Total events that failed to publish by event type",
	}, []string{"event_type"})

	// RedisErrors counts Redis errors by command.
	RedisErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rally_redis_errors_total",
		Help: "Total number of Redis errors by command",
	}, []string{"command"})
)

// ObserveLockWait records the time elapsed since start as capacity lock wait.
func ObserveLockWait(start time.Time) {
	CapacityLockWait.Observe(time.Since(start).Seconds())
}
