package metrics_test

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	shield "github.com/shieldrl/shield"
	"github.com/shieldrl/shield/metrics"
	"github.com/shieldrl/shield/store/memory"
)

func TestWrap_AllowedAndDenied(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(metrics.WithRegistry(reg))

	s := memory.New()
	defer s.Close()
	limiter := shield.NewLimiter(s, 2, 60, shield.WithPolicy(shield.FixedWindow))
	wrapped := metrics.Wrap(limiter, metrics.FixedWindow, collector)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		d, err := wrapped.Allow(ctx, "k1")
		if err != nil {
			t.Fatal(err)
		}
		if !d.Allowed {
			t.Fatalf("request %d: expected allowed", i+1)
		}
	}

	d, err := wrapped.Allow(ctx, "k1")
	if err != nil {
		t.Fatal(err)
	}
	if d.Allowed {
		t.Fatal("request 3: expected denied")
	}

	assertCounter(t, reg, "shield_requests_total", map[string]string{
		"policy": "fixed_window", "decision": "allowed",
	}, 2)
	assertCounter(t, reg, "shield_requests_total", map[string]string{
		"policy": "fixed_window", "decision": "denied",
	}, 1)
	assertHistogramCount(t, reg, "shield_request_duration_seconds", map[string]string{
		"policy": "fixed_window",
	}, 3)
	assertCounter(t, reg, "shield_errors_total", map[string]string{
		"policy": "fixed_window",
	}, 0)
}

func TestWrap_AllowN(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(metrics.WithRegistry(reg))

	s := memory.New()
	defer s.Close()
	limiter := shield.NewLimiter(s, 10, 10, shield.WithPolicy(shield.TokenBucket))
	wrapped := metrics.Wrap(limiter, metrics.TokenBucket, collector)

	d, err := wrapped.AllowN(context.Background(), "k1", 5)
	if err != nil {
		t.Fatal(err)
	}
	if !d.Allowed {
		t.Fatal("expected allowed for AllowN(5)")
	}

	assertCounter(t, reg, "shield_requests_total", map[string]string{
		"policy": "token_bucket", "decision": "allowed",
	}, 1)
}

func TestWrap_ErrorCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(metrics.WithRegistry(reg))

	wrapped := metrics.Wrap(&failLimiter{}, "custom", collector)

	_, err := wrapped.Allow(context.Background(), "k1")
	if err == nil {
		t.Fatal("expected error")
	}

	assertCounter(t, reg, "shield_errors_total", map[string]string{
		"policy": "custom",
	}, 1)
}

func TestWrap_Reset(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(metrics.WithRegistry(reg))

	s := memory.New()
	defer s.Close()
	limiter := shield.NewLimiter(s, 1, 60, shield.WithPolicy(shield.FixedWindow))
	wrapped := metrics.Wrap(limiter, metrics.FixedWindow, collector)
	ctx := context.Background()

	if _, err := wrapped.Allow(ctx, "k1"); err != nil {
		t.Fatal(err)
	}
	if err := wrapped.Reset(ctx, "k1"); err != nil {
		t.Fatal(err)
	}

	d, err := wrapped.Allow(ctx, "k1")
	if err != nil {
		t.Fatal(err)
	}
	if !d.Allowed {
		t.Fatal("expected allowed after reset")
	}
}

func TestCollectorOptions(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(
		metrics.WithRegistry(reg),
		metrics.WithNamespace("myapp"),
		metrics.WithSubsystem("api"),
		metrics.WithBuckets([]float64{.001, .01, .1}),
	)

	s := memory.New()
	defer s.Close()
	limiter := shield.NewLimiter(s, 10, 10, shield.WithPolicy(shield.TokenBucket))
	wrapped := metrics.Wrap(limiter, metrics.TokenBucket, collector)

	if _, err := wrapped.Allow(context.Background(), "k1"); err != nil {
		t.Fatal(err)
	}

	assertCounter(t, reg, "myapp_api_requests_total", map[string]string{
		"policy": "token_bucket", "decision": "allowed",
	}, 1)
	assertHistogramCount(t, reg, "myapp_api_request_duration_seconds", map[string]string{
		"policy": "token_bucket",
	}, 1)
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

type failLimiter struct{}

func (f *failLimiter) Allow(ctx context.Context, key string) (shield.Decision, error) {
	return shield.Decision{}, errors.New("backend down")
}

func (f *failLimiter) AllowN(ctx context.Context, key string, n int64) (shield.Decision, error) {
	return shield.Decision{}, errors.New("backend down")
}

func (f *failLimiter) Reset(ctx context.Context, key string) error {
	return errors.New("backend down")
}

func assertCounter(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string, want float64) {
	t.Helper()
	val := gatherMetricValue(t, reg, name, labels, func(m *dto.Metric) float64 {
		return m.GetCounter().GetValue()
	})
	if val != want {
		t.Errorf("%s%v = %v, want %v", name, labels, val, want)
	}
}

func assertHistogramCount(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string, want uint64) {
	t.Helper()
	val := gatherMetricValue(t, reg, name, labels, func(m *dto.Metric) float64 {
		return float64(m.GetHistogram().GetSampleCount())
	})
	if uint64(val) != want {
		t.Errorf("%s%v sample_count = %v, want %v", name, labels, uint64(val), want)
	}
}

func gatherMetricValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string, extract func(*dto.Metric) float64) float64 {
	t.Helper()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if matchLabels(m, labels) {
				return extract(m)
			}
		}
	}
	if len(labels) > 0 {
		return 0
	}
	t.Fatalf("metric %s not found", name)
	return 0
}

func matchLabels(m *dto.Metric, want map[string]string) bool {
	pairs := m.GetLabel()
	if len(pairs) < len(want) {
		return false
	}
	for _, lp := range pairs {
		if v, ok := want[lp.GetName()]; ok && v != lp.GetValue() {
			return false
		}
	}
	return true
}
