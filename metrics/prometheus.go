// Package metrics provides Prometheus instrumentation for a shield.Limiter.
//
// Wrap any Limiter to automatically record request counts, latency, and
// backend errors:
//
//	collector := metrics.NewCollector()
//	limiter := shield.NewLimiter(s, 100, 60, shield.WithPolicy(shield.TokenBucket))
//	wrapped := metrics.Wrap(limiter, metrics.TokenBucket, collector)
//
// All metrics are partitioned by policy name. Request counts carry an
// additional "decision" label (allowed / denied).
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	shield "github.com/shieldrl/shield"
)

// Policy name constants for the policy label, matching shield.Policy's
// string values.
const (
	TokenBucket   = string(shield.TokenBucket)
	LeakyBucket   = string(shield.LeakyBucket)
	FixedWindow   = string(shield.FixedWindow)
	SlidingWindow = string(shield.SlidingWindow)
)

// Limiting is the subset of *shield.Limiter's behavior Wrap needs,
// kept as an interface so a test double or a differently-configured
// limiter can be instrumented the same way.
type Limiting interface {
	Allow(ctx context.Context, key string) (shield.Decision, error)
	AllowN(ctx context.Context, key string, n int64) (shield.Decision, error)
	Reset(ctx context.Context, key string) error
}

// Collector holds Prometheus metric vectors for rate limiter instrumentation.
type Collector struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	errors   *prometheus.CounterVec
}

type collectorConfig struct {
	namespace string
	subsystem string
	registry  prometheus.Registerer
	buckets   []float64
}

// CollectorOption configures a Collector.
type CollectorOption func(*collectorConfig)

// WithNamespace sets the Prometheus metric namespace (prefix).
func WithNamespace(ns string) CollectorOption {
	return func(c *collectorConfig) { c.namespace = ns }
}

// WithSubsystem sets the Prometheus metric subsystem.
func WithSubsystem(sub string) CollectorOption {
	return func(c *collectorConfig) { c.subsystem = sub }
}

// WithRegistry registers metrics with the given Registerer instead of
// prometheus.DefaultRegisterer.
func WithRegistry(r prometheus.Registerer) CollectorOption {
	return func(c *collectorConfig) { c.registry = r }
}

// WithBuckets sets custom histogram buckets for request duration.
func WithBuckets(b []float64) CollectorOption {
	return func(c *collectorConfig) { c.buckets = b }
}

var defaultBuckets = []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1}

// NewCollector creates a Collector and registers its metrics.
//
// Metrics registered:
//   - {namespace}_requests_total           counter   (policy, decision)
//   - {namespace}_request_duration_seconds  histogram (policy)
//   - {namespace}_errors_total              counter   (policy)
//
// Default namespace is "shield".
func NewCollector(opts ...CollectorOption) *Collector {
	cfg := &collectorConfig{
		namespace: "shield",
		registry:  prometheus.DefaultRegisterer,
		buckets:   defaultBuckets,
	}
	for _, o := range opts {
		o(cfg)
	}

	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: cfg.namespace,
		Subsystem: cfg.subsystem,
		Name:      "requests_total",
		Help:      "Total absorb calls partitioned by policy and decision.",
	}, []string{"policy", "decision"})

	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: cfg.namespace,
		Subsystem: cfg.subsystem,
		Name:      "request_duration_seconds",
		Help:      "Latency of absorb calls in seconds.",
		Buckets:   cfg.buckets,
	}, []string{"policy"})

	errors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: cfg.namespace,
		Subsystem: cfg.subsystem,
		Name:      "errors_total",
		Help:      "Total store or decode errors surfaced from absorb calls.",
	}, []string{"policy"})

	cfg.registry.MustRegister(requests, duration, errors)

	return &Collector{
		requests: requests,
		duration: duration,
		errors:   errors,
	}
}

// Wrap returns a Limiting that transparently records Prometheus
// metrics for every Allow and AllowN call delegated to inner.
func Wrap(inner Limiting, policy string, c *Collector) Limiting {
	return &instrumentedLimiter{
		inner:     inner,
		policy:    policy,
		collector: c,
	}
}

type instrumentedLimiter struct {
	inner     Limiting
	policy    string
	collector *Collector
}

func (l *instrumentedLimiter) Allow(ctx context.Context, key string) (shield.Decision, error) {
	return l.AllowN(ctx, key, 1)
}

func (l *instrumentedLimiter) AllowN(ctx context.Context, key string, n int64) (shield.Decision, error) {
	start := time.Now()
	decision, err := l.inner.AllowN(ctx, key, n)
	l.collector.duration.WithLabelValues(l.policy).Observe(time.Since(start).Seconds())

	if err != nil {
		l.collector.errors.WithLabelValues(l.policy).Inc()
		return decision, err
	}

	l.recordDecision(decision)
	return decision, nil
}

func (l *instrumentedLimiter) Reset(ctx context.Context, key string) error {
	return l.inner.Reset(ctx, key)
}

func (l *instrumentedLimiter) recordDecision(decision shield.Decision) {
	label := "denied"
	if decision.Allowed {
		label = "allowed"
	}
	l.collector.requests.WithLabelValues(l.policy, label).Inc()
}
