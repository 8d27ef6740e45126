package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ListsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "puppyspa_lists_created_total",
		Help: "Total number of day lists created.",
	})

	EntriesCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "puppyspa_entries_created_total",
		Help: "Total number of waiting-list entries created.",
	})

	StatusChangesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "puppyspa_status_changes_total",
		Help: "Total number of entry status changes by target status.",
	},
		[]string{"status"},
	)

	ReordersTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "puppyspa_reorders_total",
		Help: "Total number of committed reorders.",
	})

	OperationErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "puppyspa_operation_errors_total",
		Help: "Total number of errors encountered during specific operations.",
	},
		[]string{"operation"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "puppyspa_http_requests_total",
		Help: "Total number of HTTP requests by method, route and status code.",
	},
		[]string{"method", "route", "code"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "puppyspa_http_request_duration_seconds",
		Help:    "HTTP request latency.",
		Buckets: prometheus.DefBuckets,
	},
		[]string{"method", "route"},
	)

	RelayPublishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "puppyspa_relay_published_total",
		Help: "Total number of outbox events delivered per publisher.",
	},
		[]string{"publisher"},
	)

	RelayPublishErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "puppyspa_relay_publish_errors_total",
		Help: "Total number of failed outbox deliveries per publisher.",
	},
		[]string{"publisher"},
	)

	RealtimeClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "puppyspa_realtime_clients",
		Help: "Current number of connected realtime clients.",
	})
)
