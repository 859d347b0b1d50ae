package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RequestsTotal tracks total HTTP requests
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "darila_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	// RequestDuration tracks HTTP request duration
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "darila_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// ItemOperationsTotal counts item operations by outcome (ok or error kind)
	ItemOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "darila_item_operations_total",
			Help: "Total number of item operations by result",
		},
		[]string{"operation", "result"},
	)

	// ItemOperationDuration tracks item operation latency including lock wait
	ItemOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "darila_item_operation_duration_seconds",
			Help:    "Item operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// ItemLockWait tracks time spent waiting for per-item exclusivity
	ItemLockWait = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "darila_item_lock_wait_seconds",
			Help:    "Time spent waiting for an item lock",
			Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 5},
		},
	)

	// ItemRetriesTotal counts store retries before any write
	ItemRetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "darila_item_retries_total",
			Help: "Total number of retried item transactions",
		},
	)

	// CircuitBreakerState tracks circuit breaker state (0=closed, 1=open, 2=half-open)
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "darila_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		},
		[]string{"circuit_name"},
	)

	// CircuitBreakerFailures tracks circuit breaker failures
	CircuitBreakerFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "darila_circuit_breaker_failures_total",
			Help: "Total number of circuit breaker failures",
		},
		[]string{"circuit_name"},
	)

	// LiveSubscribers tracks open live viewer channels
	LiveSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "darila_live_subscribers",
			Help: "Number of live viewer channels",
		},
	)

	// LiveDropped counts viewers dropped because they stopped draining events
	LiveDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "darila_live_dropped_total",
			Help: "Total number of live viewers dropped for falling behind",
		},
	)

	// EventsPublished counts published live events by kind
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "darila_events_published_total",
			Help: "Total number of published live events",
		},
		[]string{"event"},
	)

	// EventsDelivered counts per-viewer event deliveries
	EventsDelivered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "darila_events_delivered_total",
			Help: "Total number of events delivered to live viewers",
		},
	)

	// RateLimited counts visitor requests rejected by the limiter
	RateLimited = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "darila_rate_limited_total",
			Help: "Total number of visitor mutations rejected by the rate limiter",
		},
	)
)

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack passes through to the underlying writer for websocket upgrades.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

// Middleware records request counts and latency per matched route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		RequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
		RequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
