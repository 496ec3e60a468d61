package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the Prometheus metrics of the service. Each collector owns
// its registry so tests can build as many as they like.
type Collector struct {
	registry *prometheus.Registry

	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	ChatTurns        *prometheus.CounterVec
	Directives       *prometheus.CounterVec
	RecallLimitHits  prometheus.Counter
	TransportErrors  prometheus.Counter
	MalformedLines   prometheus.Counter
	MemoryWrites     prometheus.Counter
	MemorySearches   *prometheus.CounterVec
	StorePersistence *prometheus.CounterVec
}

func NewCollector(namespace string) *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		ChatTurns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "chat_turns_total",
				Help:      "Model turns processed, by origin",
			},
			[]string{"kind"},
		),
		Directives: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "chat_directives_total",
				Help:      "Memory directives seen in model output",
			},
			[]string{"operation", "outcome"},
		),
		RecallLimitHits: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "chat_recall_limit_hits_total",
				Help:      "Messages stopped by the recall depth limit",
			},
		),
		TransportErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "llm_transport_errors_total",
				Help:      "Failed requests to the inference server",
			},
		),
		MalformedLines: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "llm_stream_malformed_lines_total",
				Help:      "Stream lines that could not be decoded",
			},
		),
		MemoryWrites: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "memory_writes_total",
				Help:      "Documents written to the knowledge store",
			},
		),
		MemorySearches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "memory_searches_total",
				Help:      "Knowledge store searches, by whether anything matched",
			},
			[]string{"result"},
		),
		StorePersistence: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "memory_persistence_total",
				Help:      "Store load and save calls",
			},
			[]string{"operation", "status"},
		),
	}

	c.registry.MustRegister(
		c.HTTPRequests,
		c.HTTPDuration,
		c.ChatTurns,
		c.Directives,
		c.RecallLimitHits,
		c.TransportErrors,
		c.MalformedLines,
		c.MemoryWrites,
		c.MemorySearches,
		c.StorePersistence,
	)
	return c
}

// Registry exposes the underlying registry, mainly for tests.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) RecordHTTP(method, route string, status int, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.HTTPDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

func (c *Collector) RecordDirective(operation, outcome string) {
	if c == nil {
		return
	}
	c.Directives.WithLabelValues(operation, outcome).Inc()
}

func (c *Collector) RecordTurn(kind string) {
	if c == nil {
		return
	}
	c.ChatTurns.WithLabelValues(kind).Inc()
}

func (c *Collector) RecordRecallLimit() {
	if c == nil {
		return
	}
	c.RecallLimitHits.Inc()
}

func (c *Collector) RecordTransportError() {
	if c == nil {
		return
	}
	c.TransportErrors.Inc()
}

func (c *Collector) RecordMalformedLines(n int) {
	if c == nil || n <= 0 {
		return
	}
	c.MalformedLines.Add(float64(n))
}

func (c *Collector) RecordWrite() {
	if c == nil {
		return
	}
	c.MemoryWrites.Inc()
}

func (c *Collector) RecordSearch(matches int) {
	if c == nil {
		return
	}
	result := "hit"
	if matches == 0 {
		result = "miss"
	}
	c.MemorySearches.WithLabelValues(result).Inc()
}

func (c *Collector) RecordPersistence(operation string, err error) {
	if c == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	c.StorePersistence.WithLabelValues(operation, status).Inc()
}
