// Package metrics exposes Prometheus counters for authorization outcomes,
// key set refreshes and HTTP traffic.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/keksclan/goBarista/authz"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector owns its registry so several servers can coexist in one
// process, as they do in tests.
type Collector struct {
	registry *prometheus.Registry

	validations *prometheus.CounterVec
	refreshes   *prometheus.CounterVec
	requests    *prometheus.CounterVec
	duration    *prometheus.HistogramVec
}

var _ authz.Metrics = (*Collector)(nil)

func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		validations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "barista_token_validations_total",
				Help: "Authorization decisions by result and failure kind.",
			},
			[]string{"result", "reason"},
		),
		refreshes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "barista_jwks_refreshes_total",
				Help: "Remote JWKS fetches by result.",
			},
			[]string{"result"},
		),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "barista_http_requests_total",
				Help: "HTTP requests by method, route and status.",
			},
			[]string{"method", "route", "status"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "barista_http_request_duration_seconds",
				Help:    "HTTP request latency by method and route.",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "route"},
		),
	}
	c.registry.MustRegister(
		c.validations,
		c.refreshes,
		c.requests,
		c.duration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

func (c *Collector) AuthorizationSucceeded() {
	c.validations.WithLabelValues("ok", "").Inc()
}

func (c *Collector) AuthorizationFailed(kind authz.Kind) {
	c.validations.WithLabelValues("failed", string(kind)).Inc()
}

func (c *Collector) KeySetRefreshed(err error) {
	result := "ok"
	if err != nil {
		result = "failed"
	}
	c.refreshes.WithLabelValues(result).Inc()
}

// ObserveRequest records one served HTTP request. route is the matched
// route pattern, never the raw path.
func (c *Collector) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	c.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.duration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
