package goToken

import (
	"sync/atomic"
	"time"
)

// MetricID identifies one counter or histogram in [Metrics].
type MetricID uint16

const (
	// MetricIssueSuccess counts token pairs issued.
	MetricIssueSuccess MetricID = iota
	// MetricIssueFailure counts failed issue calls.
	MetricIssueFailure
	// MetricRefreshSuccess counts successful rotations.
	MetricRefreshSuccess
	// MetricRefreshFailure counts failed refresh calls of any kind.
	MetricRefreshFailure
	// MetricReplayDetected counts presentations of used or revoked refresh tokens.
	MetricReplayDetected
	// MetricRefreshLostRace counts redemptions that lost the conditional update to a concurrent caller.
	MetricRefreshLostRace
	// MetricRefreshRateLimited counts throttled refresh attempts.
	MetricRefreshRateLimited
	// MetricRefreshAccountRejected counts rotations refused because the account is missing or not usable.
	MetricRefreshAccountRejected
	MetricValidateSuccess
	MetricValidateFailure
	// MetricBlacklistHit counts tokens rejected by the revocation cache.
	MetricBlacklistHit
	MetricRevoke
	MetricRevokeAll
	MetricBlacklistAdd
	MetricOneTimeIssued
	MetricOneTimeRedeemed
	MetricOneTimeFailure
	MetricOneTimeRateLimited
	MetricCleanupRun
	// MetricCleanupDeleted counts records removed by Cleanup.
	MetricCleanupDeleted
	// MetricBackendUnavailable counts store, cache or directory failures surfaced as ErrUnavailable.
	MetricBackendUnavailable
	// MetricValidateLatency is the Validate latency histogram.
	MetricValidateLatency
	// MetricRefreshLatency is the Refresh latency histogram.
	MetricRefreshLatency
	metricIDCount
)

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

var latencyMetrics = [...]MetricID{MetricValidateLatency, MetricRefreshLatency}

type metricHistogram struct {
	buckets [histBucketCount]uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics holds lock-free counters and fixed-bucket latency histograms.
//
// Metrics is safe for concurrent use. A nil or disabled Metrics records nothing.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time copy of every counter and enabled histogram.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// NewMetrics returns a Metrics configured by cfg.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

// Inc adds one to counter id.
func (m *Metrics) Inc(id MetricID) {
	m.Add(id, 1)
}

// Add adds n to counter id.
func (m *Metrics) Add(id MetricID, n uint64) {
	if m == nil || !m.enabled || id >= metricIDCount || n == 0 {
		return
	}
	atomic.AddUint64(&m.counters[id].value, n)
}

// Observe records d in the histogram for id. Only latency metrics have histograms.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enabled || !m.enableLatency || !isLatencyMetric(id) {
		return
	}

	b := bucketIndex(d)
	atomic.AddUint64(&m.histograms[id].buckets[b], 1)
}

// Value returns the current value of counter id.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies every counter, and every latency histogram when enabled.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}

	s := MetricsSnapshot{
		Counters:   make(map[MetricID]uint64, int(metricIDCount)),
		Histograms: make(map[MetricID][]uint64, len(latencyMetrics)),
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		if isLatencyMetric(id) {
			continue
		}
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		for _, id := range latencyMetrics {
			buckets := make([]uint64, histBucketCount)
			for i := 0; i < histBucketCount; i++ {
				buckets[i] = atomic.LoadUint64(&m.histograms[id].buckets[i])
			}
			s.Histograms[id] = buckets
		}
	}

	return s
}

func isLatencyMetric(id MetricID) bool {
	for _, l := range latencyMetrics {
		if l == id {
			return true
		}
	}
	return false
}

func bucketIndex(d time.Duration) int {
	ms := d.Milliseconds()

	switch {
	case ms <= 5:
		return 0
	case ms <= 10:
		return 1
	case ms <= 25:
		return 2
	case ms <= 50:
		return 3
	case ms <= 100:
		return 4
	case ms <= 250:
		return 5
	case ms <= 500:
		return 6
	default:
		return 7
	}
}
