package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// WebhookRequestsTotal counts Stripe webhook requests by event type and HTTP status.
	WebhookRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pitlane",
		Subsystem: "billing",
		Name:      "webhook_requests_total",
		Help:      "Total Stripe webhook requests by event type and HTTP status.",
	}, []string{"event_type", "status"})

	// WebhookDuration tracks webhook handling latency.
	WebhookDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "pitlane",
		Subsystem: "billing",
		Name:      "webhook_duration_seconds",
		Help:      "Stripe webhook processing duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"event_type"})

	// EntitlementGrantsTotal counts grant attempts by kind, strategy path and outcome.
	EntitlementGrantsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pitlane",
		Subsystem: "billing",
		Name:      "entitlement_grants_total",
		Help:      "Entitlement grant attempts by kind, path and outcome.",
	}, []string{"kind", "path", "outcome"})

	// PaymentEventsTotal counts payment outcome and dispute events.
	PaymentEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pitlane",
		Subsystem: "billing",
		Name:      "payment_events_total",
		Help:      "Payment lifecycle events received from the provider.",
	}, []string{"event"})

	// RefundsTotal counts refund requests by outcome.
	RefundsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pitlane",
		Subsystem: "billing",
		Name:      "refunds_total",
		Help:      "Refund requests by outcome.",
	}, []string{"outcome"})

	// RefundLookupFailuresTotal counts per-session refund lookups that degraded during history reads.
	RefundLookupFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "pitlane",
		Subsystem: "billing",
		Name:      "refund_lookup_failures_total",
		Help:      "Refund lookups that failed while building payment history.",
	})
)
