// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Fork outcomes.
const (
	ForkSucceeded = "succeeded"
	ForkDenied    = "denied"
	ForkFailed    = "failed"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// ForksTotal counts fork attempts by outcome and reason.
	ForksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conversation_forks_total",
			Help: "Fork attempts by outcome",
		},
		[]string{"outcome", "reason"},
	)

	// ForkDuration tracks how long successful and failed forks take.
	ForkDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "conversation_fork_duration_seconds",
			Help:    "Fork duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"outcome"},
	)

	// ForkMessagesCopied tracks the size of copied transcripts.
	ForkMessagesCopied = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "conversation_fork_messages_copied",
			Help:    "Messages copied per successful fork",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		},
	)

	// ForkCompensationsTotal counts compensating deletes by result.
	ForkCompensationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conversation_fork_compensations_total",
			Help: "Compensating deletes after a failed copy",
		},
		[]string{"result"},
	)

	// ForkOrphansTotal counts copies left behind by a failed compensation.
	ForkOrphansTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "conversation_fork_orphans_total",
			Help: "Partial copies that could not be removed",
		},
	)

	// ConversationsTotal tracks conversations created, by source (create or fork).
	ConversationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conversations_total",
			Help: "Total conversations created",
		},
		[]string{"source"},
	)

	// MessagesTotal tracks messages appended.
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messages_total",
			Help: "Total messages appended",
		},
		[]string{"role"},
	)

	// AppendConflictsTotal counts appends rejected by the unique position constraint.
	AppendConflictsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "message_append_conflicts_total",
			Help: "Append position conflicts",
		},
	)

	// EventsPublished counts conversation events by type and result.
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conversation_events_published_total",
			Help: "Conversation events published",
		},
		[]string{"type", "result"},
	)

	// NATSStreamMessages tracks messages in NATS stream.
	NATSStreamMessages = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "nats_stream_messages",
			Help: "Number of messages in NATS stream",
		},
		[]string{"stream"},
	)

	// NATSStreamBytes tracks bytes in NATS stream.
	NATSStreamBytes = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "nats_stream_bytes",
			Help: "Bytes in NATS stream",
		},
		[]string{"stream"},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordFork records a fork attempt. reason is empty on success.
func RecordFork(outcome, reason string, duration float64, messages int) {
	ForksTotal.WithLabelValues(outcome, reason).Inc()
	ForkDuration.WithLabelValues(outcome).Observe(duration)
	if outcome == ForkSucceeded {
		ForkMessagesCopied.Observe(float64(messages))
		ConversationsTotal.WithLabelValues("fork").Inc()
	}
}

// RecordCompensation records the result of a compensating delete.
func RecordCompensation(ok bool) {
	if ok {
		ForkCompensationsTotal.WithLabelValues("deleted").Inc()
		return
	}
	ForkCompensationsTotal.WithLabelValues("failed").Inc()
	ForkOrphansTotal.Inc()
}

// RecordEvent records an event publish attempt.
func RecordEvent(eventType string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	EventsPublished.WithLabelValues(eventType, result).Inc()
}

// RecordStream records the current size of a JetStream stream.
func RecordStream(stream string, msgs, bytes uint64) {
	NATSStreamMessages.WithLabelValues(stream).Set(float64(msgs))
	NATSStreamBytes.WithLabelValues(stream).Set(float64(bytes))
}
