package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"route", "method", "status"},
	)

	IntentsOpened = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "payment_intents_opened_total",
			Help: "Purchase intents that reached the provider",
		},
	)

	SettlementsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "settlements_total",
			Help: "Transactions reconciled to a terminal state",
		},
		[]string{"status"}, // success|failed
	)

	WebhookEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_events_total",
			Help: "Provider webhook events by outcome",
		},
		[]string{"event", "outcome"},
	)

	WebhookRejected = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "webhook_signature_rejections_total",
			Help: "Webhook deliveries rejected for a bad signature",
		},
	)

	// StuckPending is maintained by the pending monitor; a growing value is
	// the operational signal for settlements that never saw a confirmation.
	StuckPending = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "transactions_stuck_pending",
			Help: "Pending transactions older than the monitor threshold",
		},
	)

	WorkerQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "worker_queue_depth",
			Help: "Current worker queue depth",
		},
	)
)

func Init() {
	prometheus.MustRegister(RequestsTotal)
	prometheus.MustRegister(IntentsOpened)
	prometheus.MustRegister(SettlementsTotal)
	prometheus.MustRegister(WebhookEvents)
	prometheus.MustRegister(WebhookRejected)
	prometheus.MustRegister(StuckPending)
	prometheus.MustRegister(WorkerQueueDepth)
}
