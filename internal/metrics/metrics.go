package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sos_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sos_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"method", "path"},
	)

	// Occurrence metrics
	OccurrencesCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sos_occurrences_created_total",
			Help: "Occurrences created, by classified type and priority",
		},
		[]string{"type", "priority"},
	)

	StatusChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sos_occurrence_status_changed_total",
			Help: "Occurrence status transitions",
		},
		[]string{"from_status", "to_status"},
	)

	PersistFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sos_occurrence_persist_failures_total",
			Help: "Occurrence snapshots that could not be persisted",
		},
	)

	// Dispatch metrics
	CallsOffered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sos_calls_offered_total",
			Help: "Incoming calls offered to responders, by redirect reason",
		},
		[]string{"reason"},
	)

	CallsResolved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sos_calls_resolved_total",
			Help: "Incoming calls leaving the pending state, by outcome",
		},
		[]string{"outcome"},
	)

	PendingCalls = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sos_calls_pending",
			Help: "Incoming calls currently waiting for a responder",
		},
	)

	Escalations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sos_dispatch_escalations_total",
			Help: "Occurrences escalated because no eligible responder was left",
		},
	)

	RealtimeEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sos_realtime_events_total",
			Help: "Inbound nova_ocorrencia events, by source and result",
		},
		[]string{"source", "result"},
	)

	WebsocketSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sos_websocket_sessions",
			Help: "Connected responder websocket sessions",
		},
	)
)

// Middleware records request count and latency per route.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		httpRequestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		httpRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

func Handler() http.Handler {
	return promhttp.Handler()
}
