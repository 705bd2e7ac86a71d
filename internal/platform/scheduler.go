package platform

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Scheduler owns one ticker per interval-bearing descriptor, enabled or not,
// and enqueues a SCHEDULED invocation on every tick at which the descriptor
// is enabled, subject to Layer A
// stacking prevention (§4.4: skip the tick if the type already has
// in-flight-plus-pending work at or above its configured concurrency).
type Scheduler struct {
	registry *TaskRegistry
	queue    *PriorityQueue
	governor *ConcurrencyGovernor
	metrics  *MetricsRecorder
	clock    Clock
	logger   Logger

	monitoringMode MonitoringMode

	wg sync.WaitGroup
}

// NewScheduler wires a Scheduler's collaborators together. mode governs how
// aggressively Layer A treats monitoring-set types (§4.4, §6
// MONITORING_DEDUP_MODE).
func NewScheduler(registry *TaskRegistry, queue *PriorityQueue, governor *ConcurrencyGovernor, metrics *MetricsRecorder, clock Clock, logger Logger, mode MonitoringMode) *Scheduler {
	return &Scheduler{
		registry:       registry,
		queue:          queue,
		governor:       governor,
		metrics:        metrics,
		clock:          clock,
		logger:         logger,
		monitoringMode: mode,
	}
}

// Start spawns one ticker goroutine per descriptor with Interval > 0. Each
// goroutine runs until ctx is cancelled; Wait blocks for all of them to
// return.
func (s *Scheduler) Start(ctx context.Context) {
	for _, d := range s.registry.List() {
		if d.Interval <= 0 {
			continue
		}
		s.wg.Add(1)
		go s.tickLoop(ctx, d.JobType, d.Interval)
	}
}

// Wait blocks until every ticker goroutine started by Start has returned.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) tickLoop(ctx context.Context, jobType string, interval time.Duration) {
	defer s.wg.Done()

	ticker := s.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			s.fireTick(jobType)
		}
	}
}

// fireTick re-reads the descriptor (Enabled may have changed since Start),
// applies Layer A dedup, and enqueues a SCHEDULED invocation.
func (s *Scheduler) fireTick(jobType string) {
	d, err := s.registry.Get(jobType)
	if err != nil {
		return
	}
	if !d.Enabled {
		return
	}

	if s.isStacked(d) {
		now := s.clock.Now()
		s.metrics.RecordMissedTick(jobType, now)
		s.metrics.Record(ExecutionRecord{
			JobType:   jobType,
			Outcome:   OutcomeSkippedDedup,
			StartedAt: now,
			EndedAt:   now,
		})
		s.logger.Debug().Str("job_type", jobType).Msg("platform: scheduler skipped tick, already saturated")
		return
	}

	inv := &Invocation{
		InvocationID: uuid.New().String(),
		JobType:      jobType,
		Priority:     d.Priority,
		EnqueuedAt:   s.clock.Now(),
		Attempt:      1,
		Source:       SourceScheduled,
		DedupKey:     jobType,
	}
	if d.Timeout > 0 {
		inv.Deadline = s.clock.Now().Add(d.Timeout)
	}

	if !s.queue.Push(inv) {
		now := s.clock.Now()
		s.metrics.Record(ExecutionRecord{
			InvocationID: inv.InvocationID,
			JobType:      jobType,
			Outcome:      OutcomeSkippedDedup,
			StartedAt:    now,
			EndedAt:      now,
		})
		s.logger.Debug().Str("job_type", jobType).Msg("platform: scheduler tick dropped by dedup")
	}
}

// isStacked reports whether job_type already has in-flight-plus-pending
// work at or above its configured concurrency, the Layer A pre-enqueue check
// (§4.4). Monitoring-set types are additionally subject to
// s.monitoringMode: strict or conservative modes skip ticks more eagerly
// than the plain max_concurrent comparison would.
func (s *Scheduler) isStacked(d *TaskDescriptor) bool {
	inFlight := s.governor.InFlight(d.JobType)
	pending := s.queue.LenByType(d.JobType)
	if inFlight+pending >= d.MaxConcurrent {
		return true
	}

	if !s.governor.IsMonitoring(d.JobType) {
		return false
	}
	switch s.monitoringMode {
	case MonitoringModeStrict:
		return inFlight+pending >= 1
	case MonitoringModeConservative:
		return inFlight >= 1
	default: // MonitoringModeOff
		return false
	}
}
