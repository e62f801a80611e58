package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	OutcomeSuccess  = "success"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

// Collector counts ledger operations by outcome and HTTP requests by
// status. A nil *Collector is valid and records nothing.
type Collector struct {
	registry   *prometheus.Registry
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	requests   *prometheus.CounterVec
}

func NewCollector() *Collector {
	registry := prometheus.NewRegistry()

	return &Collector{
		registry: registry,
		operations: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_operations_total",
			Help: "Ledger operations by operation and outcome",
		}, []string{"operation", "outcome"}),
		duration: promauto.With(registry).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ledger_operation_duration_seconds",
			Help:    "Time taken by ledger operations",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		requests: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by method and status code",
		}, []string{"method", "status"}),
	}
}

func (c *Collector) RecordOperation(operation, outcome string, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.operations.WithLabelValues(operation, outcome).Inc()
	c.duration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

func (c *Collector) RecordRequest(method string, status int) {
	if c == nil {
		return
	}
	c.requests.WithLabelValues(method, strconv.Itoa(status)).Inc()
}

func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
