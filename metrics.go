package goGuard

import (
	"sync/atomic"
	"time"
)

// MetricID defines a public type used by goGuard APIs.
//
// MetricID instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type MetricID uint16

const (
	// MetricResetRequest is an exported constant or variable used by the authentication engine.
	MetricResetRequest MetricID = iota
	// MetricResetRequestThrottled is an exported constant or variable used by the authentication engine.
	MetricResetRequestThrottled
	// MetricResetTokenIssued is an exported constant or variable used by the authentication engine.
	MetricResetTokenIssued
	// MetricResetNotifyFailure is an exported constant or variable used by the authentication engine.
	MetricResetNotifyFailure
	// MetricResetConfirmSuccess is an exported constant or variable used by the authentication engine.
	MetricResetConfirmSuccess
	// MetricResetConfirmFailure is an exported constant or variable used by the authentication engine.
	MetricResetConfirmFailure
	// MetricLoginSuccess is an exported constant or variable used by the authentication engine.
	MetricLoginSuccess
	// MetricLoginFailure is an exported constant or variable used by the authentication engine.
	MetricLoginFailure
	// MetricLoginLocked is an exported constant or variable used by the authentication engine.
	MetricLoginLocked
	// MetricLoginLockoutTriggered is an exported constant or variable used by the authentication engine.
	MetricLoginLockoutTriggered
	// MetricLoginThrottled is an exported constant or variable used by the authentication engine.
	MetricLoginThrottled
	// MetricPersistenceFailure is an exported constant or variable used by the authentication engine.
	MetricPersistenceFailure
	// MetricAuditDropped is an exported constant or variable used by the authentication engine.
	MetricAuditDropped
	// MetricResetRequestLatency is an exported constant or variable used by the authentication engine.
	MetricResetRequestLatency
	// MetricResetConfirmLatency is an exported constant or variable used by the authentication engine.
	MetricResetConfirmLatency
	// MetricLoginLatency is an exported constant or variable used by the authentication engine.
	MetricLoginLatency
	metricIDCount
)

// HistogramBucketCount is the number of latency buckets in a snapshot; the
// last bucket is +Inf.
const HistogramBucketCount = 8

// HistogramUpperBounds are the inclusive bucket limits, excluding +Inf.
var HistogramUpperBounds = [HistogramBucketCount - 1]time.Duration{
	10 * time.Millisecond,
	25 * time.Millisecond,
	50 * time.Millisecond,
	100 * time.Millisecond,
	250 * time.Millisecond,
	500 * time.Millisecond,
	time.Second,
}

const cacheLineSize = 64

type metricHistogram struct {
	buckets [HistogramBucketCount]uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics holds lock-free counters and latency histograms indexed by
// [MetricID].
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot defines a public type used by goGuard APIs.
//
// Histogram slices are non-cumulative bucket counts.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// IsLatencyMetric reports whether id names a latency histogram.
func IsLatencyMetric(id MetricID) bool {
	switch id {
	case MetricResetRequestLatency, MetricResetConfirmLatency, MetricLoginLatency:
		return true
	default:
		return false
	}
}

// NewMetrics describes the newmetrics operation and its observable behavior.
//
// NewMetrics does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

// Enabled reports whether counters are recorded.
func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

// LatencyEnabled reports whether histograms are recorded.
func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

// Inc adds one to a counter. Unknown ids and latency ids are ignored.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount || IsLatencyMetric(id) {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe records one latency sample.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enableLatency || !IsLatencyMetric(id) {
		return
	}
	atomic.AddUint64(&m.histograms[id].buckets[bucketIndex(d)], 1)
}

// Value describes the value operation and its observable behavior.
//
// Value does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot describes the snapshot operation and its observable behavior.
//
// Snapshot does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}

	s := MetricsSnapshot{
		Counters:   make(map[MetricID]uint64, int(metricIDCount)),
		Histograms: make(map[MetricID][]uint64, 3),
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		if IsLatencyMetric(id) {
			if !m.enableLatency {
				continue
			}
			buckets := make([]uint64, HistogramBucketCount)
			for i := range buckets {
				buckets[i] = atomic.LoadUint64(&m.histograms[id].buckets[i])
			}
			s.Histograms[id] = buckets
			continue
		}
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	return s
}

func bucketIndex(d time.Duration) int {
	for i, bound := range HistogramUpperBounds {
		if d <= bound {
			return i
		}
	}
	return HistogramBucketCount - 1
}
