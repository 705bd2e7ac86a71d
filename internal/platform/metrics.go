package platform

import (
	"sort"
	"sync"
	"time"
)

// MetricsRecorder accumulates per-type execution counters and duration
// samples, and exposes point-in-time snapshots.
type MetricsRecorder struct {
	mu              sync.Mutex
	types           map[string]*typeMetrics
	platformBugTotal int64
}

type typeMetrics struct {
	executionsTotal        int64
	successesTotal         int64
	failuresTotal          int64
	skippedDedupTotal      int64
	skippedValidationTotal int64
	timedOutTotal          int64
	deadLetteredTotal      int64
	deadLetterEvictedTotal int64
	itemsProcessedTotal    int64

	// durationsMS is a bounded ring of recent execution durations, used to
	// compute p50/p95/p99/max. Old samples are evicted FIFO.
	durationsMS []int64

	lastSuccessAt time.Time
	lastFailureAt time.Time
	lastError     string

	// recent1h holds (timestamp, success) pairs for the rolling
	// success_rate_1h health computation.
	recent1h []executionSample

	// missedTicks1h holds timestamps of Scheduler ticks skipped by Layer A
	// stacking prevention, for the rolling missed_ticks_1h health field.
	missedTicks1h []time.Time
}

type executionSample struct {
	at      time.Time
	success bool
}

const durationSampleCap = 2000

// NewMetricsRecorder creates an empty recorder.
func NewMetricsRecorder() *MetricsRecorder {
	return &MetricsRecorder{types: make(map[string]*typeMetrics)}
}

func (m *MetricsRecorder) typeFor(jobType string) *typeMetrics {
	tm, ok := m.types[jobType]
	if !ok {
		tm = &typeMetrics{}
		m.types[jobType] = tm
	}
	return tm
}

// Record ingests one ExecutionRecord.
func (m *MetricsRecorder) Record(rec ExecutionRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tm := m.typeFor(rec.JobType)
	durMS := rec.EndedAt.Sub(rec.StartedAt).Milliseconds()

	switch rec.Outcome {
	case OutcomeSuccess:
		tm.executionsTotal++
		tm.successesTotal++
		tm.itemsProcessedTotal += int64(rec.ItemsProcessed)
		tm.lastSuccessAt = rec.EndedAt
		tm.durationsMS = appendCapped(tm.durationsMS, durMS)
		tm.recent1h = appendSample(tm.recent1h, rec.EndedAt, true)
	case OutcomeFailedRetryable, OutcomeFailedTerminal:
		tm.executionsTotal++
		tm.failuresTotal++
		tm.lastFailureAt = rec.EndedAt
		tm.lastError = rec.ErrorSummary
		tm.durationsMS = appendCapped(tm.durationsMS, durMS)
		tm.recent1h = appendSample(tm.recent1h, rec.EndedAt, false)
		if rec.Outcome == OutcomeFailedTerminal {
			tm.deadLetteredTotal++
		}
	case OutcomeTimedOut:
		tm.executionsTotal++
		tm.failuresTotal++
		tm.timedOutTotal++
		tm.lastFailureAt = rec.EndedAt
		tm.lastError = "timed out"
		tm.durationsMS = appendCapped(tm.durationsMS, durMS)
		tm.recent1h = appendSample(tm.recent1h, rec.EndedAt, false)
	case OutcomeCancelled:
		tm.executionsTotal++
		tm.failuresTotal++
		tm.lastFailureAt = rec.EndedAt
		tm.lastError = "cancelled"
		tm.recent1h = appendSample(tm.recent1h, rec.EndedAt, false)
	case OutcomeSkippedDedup:
		tm.skippedDedupTotal++
	case OutcomeSkippedValidation:
		tm.skippedValidationTotal++
	}
}

// RecordDeadLetterEvicted increments a type's dead-letter eviction count.
// Tracked separately from deadLetteredTotal so callers can distinguish
// "entered dead-letter" from "fell off the ring".
func (m *MetricsRecorder) RecordDeadLetterEvicted(jobType string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.typeFor(jobType).deadLetterEvictedTotal++
}

// DeadLetterEvictedTotal returns how many of jobType's dead-letter entries
// have been evicted from the full ring.
func (m *MetricsRecorder) DeadLetterEvictedTotal(jobType string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	tm, ok := m.types[jobType]
	if !ok {
		return 0
	}
	return tm.deadLetterEvictedTotal
}

// RecordMissedTick notes that the Scheduler skipped a tick for jobType due
// to Layer A stacking prevention, feeding the missed_ticks_1h health field.
func (m *MetricsRecorder) RecordMissedTick(jobType string, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tm := m.typeFor(jobType)
	tm.missedTicks1h = appendTimeCapped(tm.missedTicks1h, at)
}

func (m *MetricsRecorder) missedTicks1hCount(jobType string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	tm, ok := m.types[jobType]
	if !ok {
		return 0
	}
	return len(tm.missedTicks1h)
}

func appendTimeCapped(xs []time.Time, at time.Time) []time.Time {
	xs = append(xs, at)
	cutoff := at.Add(-time.Hour)
	i := 0
	for i < len(xs) && xs[i].Before(cutoff) {
		i++
	}
	return xs[i:]
}

// RecordPlatformBug increments the platform_bug_total counter, for the
// CRITICAL-level internal-invariant violations named in §7.
func (m *MetricsRecorder) RecordPlatformBug() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.platformBugTotal++
}

// PlatformBugTotal returns the cumulative count of recorded internal
// invariant violations.
func (m *MetricsRecorder) PlatformBugTotal() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.platformBugTotal
}

func appendCapped(xs []int64, v int64) []int64 {
	xs = append(xs, v)
	if len(xs) > durationSampleCap {
		xs = xs[len(xs)-durationSampleCap:]
	}
	return xs
}

func appendSample(xs []executionSample, at time.Time, ok bool) []executionSample {
	xs = append(xs, executionSample{at: at, success: ok})
	cutoff := at.Add(-time.Hour)
	i := 0
	for i < len(xs) && xs[i].at.Before(cutoff) {
		i++
	}
	return xs[i:]
}

// DurationStats is the p50/p95/p99/max nested object in a TypeMetrics entry.
type DurationStats struct {
	P50 int64 `json:"p50"`
	P95 int64 `json:"p95"`
	P99 int64 `json:"p99"`
	Max int64 `json:"max"`
}

// TypeMetrics is the point-in-time snapshot for one job_type, matching the
// per_type entry shape of MetricsSnapshot in spec §6.
type TypeMetrics struct {
	JobType                string        `json:"job_type"`
	ExecutionsTotal        int64         `json:"executions_total"`
	SuccessesTotal         int64         `json:"successes_total"`
	FailuresTotal          int64         `json:"failures_total"`
	SkippedDedupTotal      int64         `json:"skipped_dedup_total"`
	SkippedValidationTotal int64         `json:"skipped_validation_total"`
	TimedOutTotal          int64         `json:"timed_out_total"`
	DeadLetteredTotal      int64         `json:"dead_lettered_total"`
	ItemsProcessedTotal    int64         `json:"items_processed_total"`
	DurationMS             DurationStats `json:"duration_ms"`
}

// Snapshot returns a stable-sorted (by job_type) snapshot of every type's
// metrics.
func (m *MetricsRecorder) Snapshot() []TypeMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]TypeMetrics, 0, len(m.types))
	for jt, tm := range m.types {
		p50, p95, p99, max := percentiles(tm.durationsMS)
		out = append(out, TypeMetrics{
			JobType:                jt,
			ExecutionsTotal:        tm.executionsTotal,
			SuccessesTotal:         tm.successesTotal,
			FailuresTotal:          tm.failuresTotal,
			SkippedDedupTotal:      tm.skippedDedupTotal,
			SkippedValidationTotal: tm.skippedValidationTotal,
			TimedOutTotal:          tm.timedOutTotal,
			DeadLetteredTotal:      tm.deadLetteredTotal,
			ItemsProcessedTotal:    tm.itemsProcessedTotal,
			DurationMS:             DurationStats{P50: p50, P95: p95, P99: p99, Max: max},
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JobType < out[j].JobType })
	return out
}

// successRate1h reports the rolling 1h success rate and execution count,
// used by Health (§7: unhealthy when success_rate_1h < 0.5 with >= 5 execs).
func (m *MetricsRecorder) successRate1h(jobType string) (rate float64, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tm, ok := m.types[jobType]
	if !ok || len(tm.recent1h) == 0 {
		return 1, 0
	}
	successes := 0
	for _, s := range tm.recent1h {
		if s.success {
			successes++
		}
	}
	return float64(successes) / float64(len(tm.recent1h)), len(tm.recent1h)
}

func (m *MetricsRecorder) lastTimestamps(jobType string) (success, failure time.Time, lastErr string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tm, ok := m.types[jobType]
	if !ok {
		return time.Time{}, time.Time{}, ""
	}
	return tm.lastSuccessAt, tm.lastFailureAt, tm.lastError
}

func (m *MetricsRecorder) avgDurationMS(jobType string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	tm, ok := m.types[jobType]
	if !ok || len(tm.durationsMS) == 0 {
		return 0
	}
	var sum int64
	for _, d := range tm.durationsMS {
		sum += d
	}
	return sum / int64(len(tm.durationsMS))
}

// percentiles computes p50/p95/p99/max over a copy of samples, sorted
// ascending. Percentile p is the sample at index floor(p*n), clamped to the
// last sample.
func percentiles(samples []int64) (p50, p95, p99, max int64) {
	n := len(samples)
	if n == 0 {
		return 0, 0, 0, 0
	}
	sorted := make([]int64, n)
	copy(sorted, samples)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	rank := func(p float64) int64 {
		idx := int(p*float64(n))
		if idx >= n {
			idx = n - 1
		}
		if idx < 0 {
			idx = 0
		}
		return sorted[idx]
	}
	return rank(0.50), rank(0.95), rank(0.99), sorted[n-1]
}
