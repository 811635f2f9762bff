package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/shinosaki/webpush-worker-go/serviceworker"
)

// Metrics groups the Prometheus instruments of the worker.
type Metrics struct {
	PushEvents        *prometheus.CounterVec
	NotificationClick *prometheus.CounterVec
	EventSettle       *prometheus.HistogramVec
	DecryptFailures   prometheus.Counter
}

// New registers all instruments with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		PushEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "webpush_push_events_total",
			Help: "Push events handled, by result.",
		}, []string{"result"}),

		NotificationClick: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "webpush_notification_clicks_total",
			Help: "Notification clicks handled, by routing outcome.",
		}, []string{"outcome"}),

		EventSettle: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "webpush_event_settle_seconds",
			Help:    "Time from dispatch until the event's extended lifetime settled.",
			Buckets: prometheus.DefBuckets,
		}, []string{"event"}),

		DecryptFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "webpush_decrypt_failures_total",
			Help: "Push messages dropped because they could not be decrypted.",
		}),
	}

	reg.MustRegister(
		m.PushEvents,
		m.NotificationClick,
		m.EventSettle,
		m.DecryptFailures,
	)
	return m
}

// WorkerHooks returns the callbacks for serviceworker.WithHooks.
func (m *Metrics) WorkerHooks() serviceworker.Hooks {
	return serviceworker.Hooks{
		OnPush: func(result serviceworker.PushResult, elapsed time.Duration) {
			m.PushEvents.WithLabelValues(string(result)).Inc()
			m.EventSettle.WithLabelValues("push").Observe(elapsed.Seconds())
		},
		OnClick: func(outcome serviceworker.ClickOutcome, elapsed time.Duration) {
			m.NotificationClick.WithLabelValues(string(outcome)).Inc()
			m.EventSettle.WithLabelValues("notificationclick").Observe(elapsed.Seconds())
		},
	}
}
