// Package metrics provides Prometheus instrumentation for spendwatch.
package metrics

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// EventsDecodedTotal counts successfully decoded events by type.
	EventsDecodedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "spendwatch",
			Name:      "events_decoded_total",
			Help:      "Total log records successfully decoded, by event type.",
		},
		[]string{"type"},
	)

	// InvalidRecordsTotal counts rejected records by rejection reason.
	InvalidRecordsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "spendwatch",
			Name:      "invalid_records_total",
			Help:      "Total log records rejected, by reason.",
		},
		[]string{"reason"},
	)

	// FlaggedPurchasesTotal counts stream purchases flagged as anomalous.
	FlaggedPurchasesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "spendwatch",
		Name:      "flagged_purchases_total",
		Help:      "Total stream purchases flagged as anomalous.",
	})

	// DetectionsSkippedTotal counts purchases where detection could not run.
	DetectionsSkippedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "spendwatch",
			Name:      "detections_skipped_total",
			Help:      "Stream purchases where detection was skipped, by cause.",
		},
		[]string{"cause"},
	)

	// NetworkNodes tracks the current node count of the friendship graph.
	NetworkNodes = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "spendwatch",
		Name:      "network_nodes",
		Help:      "Current number of customers in the friendship graph.",
	})

	// NetworkEdges tracks the current edge count of the friendship graph.
	NetworkEdges = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "spendwatch",
		Name:      "network_edges",
		Help:      "Current number of friendships in the graph.",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "spendwatch",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, path pattern, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency by method and path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "spendwatch",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// ActiveFeedClients tracks connected websocket feed clients.
	ActiveFeedClients = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "spendwatch",
		Name:      "active_feed_clients",
		Help:      "Number of currently connected flag feed clients.",
	})
)

func init() {
	prometheus.MustRegister(
		EventsDecodedTotal,
		InvalidRecordsTotal,
		FlaggedPurchasesTotal,
		DetectionsSkippedTotal,
		NetworkNodes,
		NetworkEdges,
		HTTPRequestsTotal,
		HTTPRequestDuration,
		ActiveFeedClients,
	)
}

// Middleware returns a gin middleware that records request metrics.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		timer := prometheus.NewTimer(HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(), // Uses route pattern, not actual path (avoids cardinality explosion)
		))

		c.Next()

		timer.ObserveDuration()
		HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			statusBucket(c.Writer.Status()),
		).Inc()
	}
}

// Handler returns the Prometheus metrics HTTP handler for /metrics endpoint.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// statusBucket groups HTTP status codes into buckets (2xx, 3xx, 4xx, 5xx).
func statusBucket(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
