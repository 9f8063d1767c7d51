package goGuard

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestMetricsDisabledNoIncrement(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: false})
	m.Inc(MetricLoginSuccess)

	if got := m.Value(MetricLoginSuccess); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
}

func TestMetricsEnabledIncrement(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})
	m.Inc(MetricLoginSuccess)
	m.Inc(MetricLoginSuccess)
	m.Inc(MetricLoginSuccess)

	if got := m.Value(MetricLoginSuccess); got != 3 {
		t.Fatalf("expected 3, got %d", got)
	}
}

func TestMetricsConcurrentIncrementSafe(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})

	const goroutines = 32
	const perG = 4000

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perG; j++ {
				m.Inc(MetricResetRequest)
			}
		}()
	}
	wg.Wait()

	want := uint64(goroutines * perG)
	if got := m.Value(MetricResetRequest); got != want {
		t.Fatalf("expected %d, got %d", want, got)
	}
}

func TestMetricsHistogramBucketCorrectness(t *testing.T) {
	m := NewMetrics(MetricsConfig{
		Enabled:                 true,
		EnableLatencyHistograms: true,
	})

	observations := []time.Duration{
		10 * time.Millisecond,
		25 * time.Millisecond,
		50 * time.Millisecond,
		100 * time.Millisecond,
		250 * time.Millisecond,
		500 * time.Millisecond,
		time.Second,
		3 * time.Second,
	}

	for _, d := range observations {
		m.Observe(MetricResetRequestLatency, d)
	}

	snap := m.Snapshot()
	buckets := snap.Histograms[MetricResetRequestLatency]
	if len(buckets) != HistogramBucketCount {
		t.Fatalf("expected %d buckets, got %d", HistogramBucketCount, len(buckets))
	}

	for i, v := range buckets {
		if v != 1 {
			t.Fatalf("bucket %d expected 1, got %d", i, v)
		}
	}
}

func TestMetricsObserveIgnoresCounters(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true, EnableLatencyHistograms: true})
	m.Observe(MetricLoginSuccess, time.Millisecond)
	m.Inc(MetricLoginLatency)

	snap := m.Snapshot()
	if _, ok := snap.Histograms[MetricLoginSuccess]; ok {
		t.Fatal("counter ids must not produce histograms")
	}
	if _, ok := snap.Counters[MetricLoginLatency]; ok {
		t.Fatal("latency ids must not appear as counters")
	}
}

func TestMetricsSnapshotConsistency(t *testing.T) {
	m := NewMetrics(MetricsConfig{
		Enabled:                 true,
		EnableLatencyHistograms: true,
	})
	m.Inc(MetricLoginSuccess)
	m.Inc(MetricLoginFailure)
	m.Inc(MetricLoginFailure)
	m.Observe(MetricLoginLatency, 2*time.Millisecond)

	snap := m.Snapshot()

	if snap.Counters[MetricLoginSuccess] != 1 {
		t.Fatalf("expected MetricLoginSuccess=1 got %d", snap.Counters[MetricLoginSuccess])
	}
	if snap.Counters[MetricLoginFailure] != 2 {
		t.Fatalf("expected MetricLoginFailure=2 got %d", snap.Counters[MetricLoginFailure])
	}
	if len(snap.Histograms) != 3 {
		t.Fatalf("expected 3 histograms, got %d", len(snap.Histograms))
	}
	if snap.Histograms[MetricLoginLatency][0] != 1 {
		t.Fatalf("expected first histogram bucket=1 got %d", snap.Histograms[MetricLoginLatency][0])
	}
}

func TestEngineRecordsOperationMetrics(t *testing.T) {
	h := newHarness(t, nil)
	h.engine.metrics = NewMetrics(MetricsConfig{Enabled: true, EnableLatencyHistograms: true})

	if _, err := h.engine.Authenticate(context.Background(), "alice@example.com", "wrong-password", "198.51.100.1"); err == nil {
		t.Fatal("expected failure")
	}
	if _, err := h.engine.Authenticate(context.Background(), "alice@example.com", alicePassword, "198.51.100.1"); err != nil {
		t.Fatalf("authenticate: %v", err)
	}

	snap := h.engine.MetricsSnapshot()
	if snap.Counters[MetricLoginFailure] != 1 || snap.Counters[MetricLoginSuccess] != 1 {
		t.Fatalf("unexpected counters %+v", snap.Counters)
	}
	var samples uint64
	for _, v := range snap.Histograms[MetricLoginLatency] {
		samples += v
	}
	if samples != 2 {
		t.Fatalf("expected 2 latency samples, got %d", samples)
	}
}
