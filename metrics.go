package admission

import "sync/atomic"

// MetricID identifies one gate counter.
type MetricID uint16

const (
	// MetricAllowGranted counts attempts that passed every rate-limit check.
	MetricAllowGranted MetricID = iota
	// MetricDenyPenalty counts denials from an active penalty window.
	MetricDenyPenalty
	// MetricDenyGlobal counts denials from the system-wide fixed window.
	MetricDenyGlobal
	// MetricDenyBucket counts denials from an exhausted token bucket.
	MetricDenyBucket
	// MetricDenyWindow counts denials from an hourly or daily sliding window.
	MetricDenyWindow
	// MetricPenaltyEscalated counts violations that pushed an entity into a
	// penalty window.
	MetricPenaltyEscalated
	// MetricScoreLow counts LOW risk classifications.
	MetricScoreLow
	// MetricScoreMedium counts MEDIUM risk classifications.
	MetricScoreMedium
	// MetricScoreHigh counts HIGH risk classifications.
	MetricScoreHigh
	// MetricBackendFailover counts transitions to the local fallback store.
	MetricBackendFailover
	// MetricBackendRecovered counts transitions back to the primary backend.
	MetricBackendRecovered
	// MetricFraudReported counts accepted fraud reports.
	MetricFraudReported
	// MetricReceiptIssued counts signed admission receipts.
	MetricReceiptIssued

	metricCount
)

// Metrics is a fixed set of atomic counters. A disabled Metrics drops all
// increments; a nil Metrics is safe to use.
type Metrics struct {
	enabled  bool
	counters [metricCount]atomic.Uint64
}

func newMetrics(enabled bool) *Metrics {
	return &Metrics{enabled: enabled}
}

// Inc increments the counter for id.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricCount {
		return
	}
	m.counters[id].Add(1)
}

// MetricsSnapshot is a point-in-time copy of all counters.
type MetricsSnapshot struct {
	Counters map[MetricID]uint64
}

// Snapshot copies all counters. Counters incremented concurrently with the
// snapshot may or may not be included.
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{Counters: make(map[MetricID]uint64, int(metricCount))}
	if m == nil || !m.enabled {
		return snap
	}
	for id := MetricID(0); id < metricCount; id++ {
		snap.Counters[id] = m.counters[id].Load()
	}
	return snap
}
