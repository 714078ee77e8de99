package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WebhooksReceivedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webhooks_received_total",
		Help: "Total number of webhook notifications received",
	}, []string{"event_type"})

	WebhooksIgnoredTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webhooks_ignored_total",
		Help: "Total number of webhook notifications acknowledged without processing",
	}, []string{"reason"})

	EnrollmentsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "enrollments_created_total",
		Help: "Total number of new course enrollments",
	})

	EnrollmentsRenewedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "enrollments_renewed_total",
		Help: "Total number of renewed course enrollments",
	})

	EnrollmentsFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "enrollments_failed_total",
		Help: "Total number of failed enrollment reconciliations",
	}, []string{"reason"})

	EnrollmentsDuplicateTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "enrollments_duplicate_total",
		Help: "Total number of re-delivered notifications skipped as already applied",
	})

	PaymentsRecordedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payments_recorded_total",
		Help: "Total number of payment records appended to user histories",
	})

	StoreConflictsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "store_conflicts_total",
		Help: "Total number of optimistic-concurrency conflicts on user record writes",
	})

	ReconcileLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "reconcile_latency_seconds",
		Help:    "Latency of webhook enrollment reconciliation",
		Buckets: prometheus.DefBuckets,
	})

	ProviderRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "provider_request_duration_seconds",
		Help:    "Latency of payment provider API calls",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
