package goToken

import (
	"sync"
	"testing"
	"time"
)

func TestMetricsDisabledNoIncrement(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: false})
	m.Inc(MetricIssueSuccess)

	if got := m.Value(MetricIssueSuccess); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
}

func TestMetricsEnabledIncrement(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})
	m.Inc(MetricIssueSuccess)
	m.Inc(MetricIssueSuccess)
	m.Inc(MetricIssueSuccess)

	if got := m.Value(MetricIssueSuccess); got != 3 {
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
				m.Inc(MetricRefreshSuccess)
			}
		}()
	}
	wg.Wait()

	want := uint64(goroutines * perG)
	if got := m.Value(MetricRefreshSuccess); got != want {
		t.Fatalf("expected %d, got %d", want, got)
	}
}

func TestMetricsHistogramBucketCorrectness(t *testing.T) {
	m := NewMetrics(MetricsConfig{
		Enabled:                 true,
		EnableLatencyHistograms: true,
	})

	observations := []time.Duration{
		5 * time.Millisecond,
		10 * time.Millisecond,
		25 * time.Millisecond,
		50 * time.Millisecond,
		100 * time.Millisecond,
		250 * time.Millisecond,
		500 * time.Millisecond,
		700 * time.Millisecond,
	}

	for _, d := range observations {
		m.Observe(MetricValidateLatency, d)
	}

	snap := m.Snapshot()
	buckets := snap.Histograms[MetricValidateLatency]
	if len(buckets) != 8 {
		t.Fatalf("expected 8 buckets, got %d", len(buckets))
	}

	for i, v := range buckets {
		if v != 1 {
			t.Fatalf("bucket %d expected 1, got %d", i, v)
		}
	}
}

func TestMetricsSnapshotConsistency(t *testing.T) {
	m := NewMetrics(MetricsConfig{
		Enabled:                 true,
		EnableLatencyHistograms: true,
	})
	m.Inc(MetricIssueSuccess)
	m.Inc(MetricIssueFailure)
	m.Inc(MetricIssueFailure)
	m.Observe(MetricValidateLatency, 2*time.Millisecond)

	snap := m.Snapshot()

	if snap.Counters[MetricIssueSuccess] != 1 {
		t.Fatalf("expected MetricIssueSuccess=1 got %d", snap.Counters[MetricIssueSuccess])
	}
	if snap.Counters[MetricIssueFailure] != 2 {
		t.Fatalf("expected MetricIssueFailure=2 got %d", snap.Counters[MetricIssueFailure])
	}
	if len(snap.Histograms[MetricValidateLatency]) != 8 {
		t.Fatalf("expected histogram length 8")
	}
	if snap.Histograms[MetricValidateLatency][0] != 1 {
		t.Fatalf("expected first histogram bucket=1 got %d", snap.Histograms[MetricValidateLatency][0])
	}
}

func TestMetricsAddAndLatencyScope(t *testing.T) {
	m := NewMetrics(MetricsConfig{
		Enabled:                 true,
		EnableLatencyHistograms: true,
	})
	m.Add(MetricCleanupDeleted, 7)
	m.Add(MetricCleanupDeleted, 0)
	m.Observe(MetricRefreshLatency, 30*time.Millisecond)
	m.Observe(MetricIssueSuccess, 30*time.Millisecond)

	snap := m.Snapshot()
	if got := snap.Counters[MetricCleanupDeleted]; got != 7 {
		t.Fatalf("expected MetricCleanupDeleted=7 got %d", got)
	}
	if got := snap.Histograms[MetricRefreshLatency][3]; got != 1 {
		t.Fatalf("expected refresh latency bucket 3 = 1, got %d", got)
	}
	if _, ok := snap.Histograms[MetricIssueSuccess]; ok {
		t.Fatal("counter metrics must not carry histograms")
	}
	if _, ok := snap.Counters[MetricValidateLatency]; ok {
		t.Fatal("latency metrics must not appear as counters")
	}
}
