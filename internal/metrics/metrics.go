package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	OutboxPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retreat_outbox_published_total",
			Help: "Outbox rows published to the broker by event type",
		},
		[]string{"event_type"},
	)

	OutboxFailed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retreat_outbox_failed_total",
			Help: "Failed outbox publish attempts by event type",
		},
		[]string{"event_type"},
	)

	OutboxPending = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "retreat_outbox_pending",
		Help: "Unprocessed outbox rows",
	})

	OutboxOldestAge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "retreat_outbox_oldest_pending_age_seconds",
		Help: "Age of the oldest unprocessed outbox row",
	})

	OutboxPublishDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "retreat_outbox_publish_duration_seconds",
			Help:    "Time to publish one outbox row and get the broker confirm",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 5},
		},
		[]string{"event_type"},
	)

	OutboxBatchSize = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "retreat_outbox_batch_size",
		Help:    "Rows fetched per dispatcher cycle",
		Buckets: []float64{0, 1, 5, 10, 25, 50, 100},
	})

	ConsumerHandled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retreat_consumer_messages_total",
			Help: "Messages handled by consumer loops by queue and outcome",
		},
		[]string{"queue", "outcome"}, // acked|rejected|malformed
	)

	ConsumerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "retreat_consumer_state",
			Help: "Current consumer loop state (0 connecting, 1 bound, 2 polling, 3 backoff, 4 stopped)",
		},
		[]string{"queue"},
	)

	NotificationsSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retreat_notifications_total",
			Help: "Outbound notifications by channel and result",
		},
		[]string{"channel", "result"}, // sent|duplicate|failed
	)

	ProviderBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "retreat_provider_breaker_state",
			Help: "Circuit breaker state per provider (0 closed, 1 half-open, 2 open)",
		},
		[]string{"provider"},
	)
)

func MustRegister(r prometheus.Registerer) {
	r.MustRegister(
		OutboxPublished,
		OutboxFailed,
		OutboxPending,
		OutboxOldestAge,
		OutboxPublishDuration,
		OutboxBatchSize,
		ConsumerHandled,
		ConsumerState,
		NotificationsSent,
		ProviderBreakerState,
	)
}
