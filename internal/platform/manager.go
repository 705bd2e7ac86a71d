package platform

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ManagerConfig bounds the Manager's worker pool and shutdown behavior.
type ManagerConfig struct {
	WorkerCount int

	// ShutdownGraceful is how long Stop waits for in-flight executions to
	// finish before cancelling their contexts (§7 graceful shutdown).
	ShutdownGraceful time.Duration

	// DeadLetterCapacity bounds the DeadLetterQueue ring.
	DeadLetterCapacity int

	// MonitoringSet overrides the governor's default "_monitor"-suffix
	// monitoring set; nil means use DefaultMonitoringSet.
	MonitoringSet map[string]bool

	// MonitoringMode governs Layer A stacking prevention strictness for
	// monitoring-set types (§4.4, §6 MONITORING_DEDUP_MODE).
	MonitoringMode MonitoringMode

	// MaxPayloadBytes bounds the size of a []byte Enqueue payload; 0 means
	// unbounded. Non-[]byte payloads are never size-checked.
	MaxPayloadBytes int
}

// Manager is the platform's external facade: it owns the TaskRegistry,
// PriorityQueue, ConcurrencyGovernor, MetricsRecorder, DeadLetterQueue,
// Scheduler and Executor, and exposes Start/Stop/Enqueue/SetEnabled/
// Health/Metrics/DeadLetter to the host process (§4.7).
type Manager struct {
	registry  *TaskRegistry
	queue     *PriorityQueue
	governor  *ConcurrencyGovernor
	metrics   *MetricsRecorder
	deadLet   *DeadLetterQueue
	scheduler *Scheduler
	executor  *Executor
	clock     Clock
	logger    Logger

	cfg ManagerConfig

	mu          sync.Mutex
	running     bool
	everStarted bool
	schedCancel context.CancelFunc
	execCancel  context.CancelFunc
	workers     sync.WaitGroup

	startedAt time.Time
}

// NewManager builds a Manager from a TaskRegistry that has already had every
// task's init() registration applied. FinalizeDiscovery is called here if
// the registry is not already frozen.
func NewManager(registry *TaskRegistry, clock Clock, logger Logger, cfg ManagerConfig) (*Manager, error) {
	if !registry.IsFrozen() {
		if err := registry.FinalizeDiscovery(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStartupFailed, err)
		}
	}

	descs := registry.List()
	preserveOrder := make(map[string]bool)
	for _, d := range descs {
		if d.PreserveOrder {
			preserveOrder[d.JobType] = true
		}
	}

	monitoring := cfg.MonitoringSet
	if monitoring == nil {
		monitoring = DefaultMonitoringSet(descs)
	}

	queue := NewPriorityQueue(preserveOrder)
	governor := NewConcurrencyGovernor(descs, monitoring)
	metrics := NewMetricsRecorder()
	deadLet := NewDeadLetterQueue(cfg.DeadLetterCapacity, metrics.RecordDeadLetterEvicted)
	scheduler := NewScheduler(registry, queue, governor, metrics, clock, logger, cfg.MonitoringMode)
	executor := NewExecutor(registry, queue, governor, metrics, deadLet, clock, logger, cfg.WorkerCount)

	return &Manager{
		registry:  registry,
		queue:     queue,
		governor:  governor,
		metrics:   metrics,
		deadLet:   deadLet,
		scheduler: scheduler,
		executor:  executor,
		clock:     clock,
		logger:    logger,
		cfg:       cfg,
	}, nil
}

// Start launches the Scheduler's tickers and the Executor's worker pool.
// Returns ErrStartupFailed if already running.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return fmt.Errorf("%w: already running", ErrStartupFailed)
	}

	// Executions and the scheduler's tickers are bounded by independent
	// contexts: the scheduler is cancelled immediately on Stop (no new
	// ticks), but in-flight executions are only cancelled once the
	// graceful deadline elapses, so a task that would finish within the
	// grace window is not spuriously aborted (§7).
	execCtx, execCancel := context.WithCancel(ctx)
	schedCtx, schedCancel := context.WithCancel(ctx)
	m.execCancel = execCancel
	m.schedCancel = schedCancel
	m.running = true
	m.everStarted = true
	m.startedAt = m.clock.Now()

	for i := 0; i < m.executor.workerCount; i++ {
		m.workers.Add(1)
		id := i
		go func() {
			defer m.workers.Done()
			m.executor.workerLoop(execCtx, id)
		}()
	}

	m.scheduler.Start(schedCtx)

	m.logger.Info().Int("workers", m.executor.workerCount).Msg("platform: manager started")
	return nil
}

// hardKillGrace is the additional wait, beyond ShutdownGraceful, before Stop
// gives up on straggling workers entirely (§7 hard threshold).
const hardKillGrace = 5 * time.Second

// Stop cancels the scheduler, stops accepting new work and closes the
// queue; workers keep draining the invocations already queued. It waits up
// to ShutdownGraceful for the workers to finish, then cancels the contexts
// of in-flight executions, so Execute implementations that honor ctx return
// promptly, and waits at most hardKillGrace more before returning without
// the stragglers.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	schedCancel := m.schedCancel
	execCancel := m.execCancel
	m.mu.Unlock()

	schedCancel()
	m.scheduler.Wait()
	m.queue.Close()

	done := make(chan struct{})
	go func() {
		m.workers.Wait()
		close(done)
	}()

	grace := m.cfg.ShutdownGraceful
	if grace <= 0 {
		grace = 30 * time.Second
	}

	select {
	case <-done:
		execCancel()
		m.logger.Info().Msg("platform: manager stopped")
		return
	case <-m.clock.NewTicker(grace).C():
		m.logger.Warn().Msg("platform: shutdown grace period elapsed, cancelling in-flight work")
	}

	// Grace period elapsed with work still in flight: cancel their
	// contexts and give stragglers one more window before abandoning them.
	execCancel()

	select {
	case <-done:
	case <-m.clock.NewTicker(hardKillGrace).C():
		m.logger.Warn().Msg("platform: hard kill threshold elapsed, abandoning in-flight workers")
	}

	m.logger.Info().Msg("platform: manager stopped")
}

// EnqueueOptions customizes an external Enqueue call (§4.7).
type EnqueueOptions struct {
	// PriorityOverride, if non-nil, replaces the descriptor's configured
	// priority for this invocation only.
	PriorityOverride *Priority

	// DedupKey, if non-empty, is checked by Layer B dedup against
	// already-pending invocations of the same type. Empty (the default)
	// means the invocation is not checked against pending work at push time.
	DedupKey string

	// NotBefore delays the push onto the queue until this instant. Zero
	// means "push immediately".
	NotBefore time.Time
}

// Enqueue submits an externally-sourced invocation for jobType, bypassing
// the Scheduler. Returns ErrNotRunning (never started), ErrShutdown
// (started then stopped), ErrNotFound, ErrDisabled, or ErrPayloadTooLarge.
func (m *Manager) Enqueue(jobType string, payload any, opts EnqueueOptions) (string, error) {
	m.mu.Lock()
	running := m.running
	everStarted := m.everStarted
	m.mu.Unlock()
	if !running {
		if everStarted {
			return "", ErrShutdown
		}
		return "", ErrNotRunning
	}

	if b, ok := payload.([]byte); ok && m.cfg.MaxPayloadBytes > 0 && len(b) > m.cfg.MaxPayloadBytes {
		return "", fmt.Errorf("%w: %d bytes exceeds limit of %d", ErrPayloadTooLarge, len(b), m.cfg.MaxPayloadBytes)
	}

	d, err := m.registry.Get(jobType)
	if err != nil {
		return "", err
	}
	if !d.Enabled {
		return "", fmt.Errorf("%w: %s", ErrDisabled, jobType)
	}

	priority := d.Priority
	if opts.PriorityOverride != nil {
		priority = *opts.PriorityOverride
	}
	dedupKey := opts.DedupKey

	inv := &Invocation{
		InvocationID: uuid.New().String(),
		JobType:      jobType,
		Priority:     priority,
		EnqueuedAt:   m.clock.Now(),
		Attempt:      1,
		Source:       SourceExternal,
		Payload:      payload,
		DedupKey:     dedupKey,
	}
	if d.Timeout > 0 {
		inv.Deadline = m.clock.Now().Add(d.Timeout)
	}

	if !opts.NotBefore.IsZero() && opts.NotBefore.After(m.clock.Now()) {
		delay := opts.NotBefore.Sub(m.clock.Now())
		id := inv.InvocationID
		go func() {
			m.clock.Sleep(delay)
			m.queue.Push(inv)
		}()
		return id, nil
	}

	if !m.queue.Push(inv) {
		return "", fmt.Errorf("platform: invocation %s deduplicated against pending work", jobType)
	}
	return inv.InvocationID, nil
}

// SetEnabled flips a job_type's scheduling/acceptance flag at runtime.
func (m *Manager) SetEnabled(jobType string, enabled bool) error {
	return m.registry.setEnabled(jobType, enabled)
}

// DeadLetter returns the n oldest dead-lettered entries (or all, if n <= 0).
func (m *Manager) DeadLetter(n int) []DeadLetterEntry {
	return m.deadLet.Peek(n)
}

// Metrics returns a point-in-time snapshot of every registered type's
// execution counters.
func (m *Manager) Metrics() MetricsSnapshot {
	return MetricsSnapshot{
		PerType: m.metrics.Snapshot(),
	}
}

// deadLetterUnhealthyThreshold is the dead-letter depth at or above which
// overall health is forced to unhealthy regardless of per-type rates (§7).
const deadLetterUnhealthyThreshold = 100

// Health computes the platform-wide and per-type health snapshot (§6, §7):
// overall is unhealthy when dead_letter_depth reaches
// deadLetterUnhealthyThreshold or any type has success_rate_1h < 0.5 over
// >= 5 executions in the last hour.
func (m *Manager) Health() HealthSnapshot {
	now := m.clock.Now()
	descs := m.registry.List()
	perType := make([]TypeHealth, 0, len(descs))

	deadLetterDepth := m.deadLet.Len()
	overall := HealthHealthy
	if deadLetterDepth >= deadLetterUnhealthyThreshold {
		overall = HealthUnhealthy
	}
	if m.metrics.PlatformBugTotal() > 0 {
		overall = HealthUnhealthy
	}

	busy := 0
	for _, n := range m.governor.InFlightAll() {
		busy += n
	}

	for _, d := range descs {
		rate, n := m.metrics.successRate1h(d.JobType)
		lastSuccess, lastFailure, lastErr := m.metrics.lastTimestamps(d.JobType)

		if n >= 5 && rate < 0.5 {
			overall = HealthUnhealthy
		} else if overall == HealthHealthy && n > 0 && rate < 0.9 {
			overall = HealthDegraded
		}

		perType = append(perType, TypeHealth{
			JobType:         d.JobType,
			Enabled:         d.Enabled,
			InFlight:        m.governor.InFlight(d.JobType),
			Pending:         m.queue.LenByType(d.JobType),
			SuccessRate1h:   rate,
			AvgDurationMS:   m.metrics.avgDurationMS(d.JobType),
			IntervalSeconds: d.Interval.Seconds(),
			MissedTicks1h:   m.metrics.missedTicks1hCount(d.JobType),
			LastSuccessAt:   lastSuccess,
			LastFailureAt:   lastFailure,
			LastError:       lastErr,
		})
	}

	workerCount := m.executor.workerCount
	idle := workerCount - busy
	if idle < 0 {
		idle = 0
	}

	return HealthSnapshot{
		Overall:         overall,
		StartedAt:       m.startedAt,
		UptimeSeconds:   now.Sub(m.startedAt).Seconds(),
		Workers:         WorkerCounts{Count: workerCount, Busy: busy, Idle: idle},
		DeadLetterDepth: deadLetterDepth,
		PerType:         perType,
	}
}
