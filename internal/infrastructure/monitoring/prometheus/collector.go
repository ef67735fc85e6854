// Package prometheus exposes the platform's operational metrics.  A single
// Metrics value is constructed at startup and handed to the search controller,
// oracle adapter, and cache; each component records through typed methods
// rather than touching prometheus types directly.
package prometheus

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// CollectorConfig controls metric registration.
type CollectorConfig struct {
	// Namespace prefixes every metric name, e.g. "helixforge".
	Namespace string

	// ConstLabels are attached to every metric, e.g. {"instance_role": "worker"}.
	ConstLabels map[string]string

	// EnableProcessMetrics registers the standard process collector
	// (CPU, memory, file descriptors).
	EnableProcessMetrics bool

	// EnableGoMetrics registers the Go runtime collector
	// (goroutines, GC pauses, heap).
	EnableGoMetrics bool

	// DurationBuckets overrides the histogram buckets for duration metrics,
	// in seconds.  Defaults cover the span from sub-millisecond cache hits to
	// multi-minute docking calls.
	DurationBuckets []float64
}

// defaultDurationBuckets spans cache lookups (~µs) through docking
// evaluations (~minutes).
var defaultDurationBuckets = []float64{
	.001, .005, .01, .05, .1, .5, 1, 5, 15, 30, 60, 120, 300,
}

// Collector owns a private prometheus registry so that tests can construct
// independent instances without duplicate-registration panics.
type Collector struct {
	cfg      CollectorConfig
	registry *prometheus.Registry
}

// NewCollector builds a Collector with its own registry and, when enabled,
// the standard process and Go runtime collectors.
func NewCollector(cfg CollectorConfig) *Collector {
	if cfg.Namespace == "" {
		cfg.Namespace = "helixforge"
	}
	if len(cfg.DurationBuckets) == 0 {
		cfg.DurationBuckets = defaultDurationBuckets
	}

	reg := prometheus.NewRegistry()
	if cfg.EnableProcessMetrics {
		reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	if cfg.EnableGoMetrics {
		reg.MustRegister(collectors.NewGoCollector())
	}

	return &Collector{cfg: cfg, registry: reg}
}

// Registry exposes the underlying registry for components that register
// custom collectors.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler returns the HTTP handler serving the /metrics endpoint.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	cv := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   c.cfg.Namespace,
		Name:        name,
		Help:        help,
		ConstLabels: c.cfg.ConstLabels,
	}, labels)
	c.registry.MustRegister(cv)
	return cv
}

func (c *Collector) gaugeVec(name, help string, labels ...string) *prometheus.GaugeVec {
	gv := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace:   c.cfg.Namespace,
		Name:        name,
		Help:        help,
		ConstLabels: c.cfg.ConstLabels,
	}, labels)
	c.registry.MustRegister(gv)
	return gv
}

func (c *Collector) histogramVec(name, help string, labels ...string) *prometheus.HistogramVec {
	hv := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   c.cfg.Namespace,
		Name:        name,
		Help:        help,
		Buckets:     c.cfg.DurationBuckets,
		ConstLabels: c.cfg.ConstLabels,
	}, labels)
	c.registry.MustRegister(hv)
	return hv
}
