package platform

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// nullLogger discards everything; the manager/scheduler/executor tests care
// about behavior, not log output.
type nullLogger struct{}

func (nullLogger) Debug() LogEvent    { return nullEvent{} }
func (nullLogger) Info() LogEvent     { return nullEvent{} }
func (nullLogger) Warn() LogEvent     { return nullEvent{} }
func (nullLogger) Error() LogEvent    { return nullEvent{} }
func (nullLogger) Critical() LogEvent { return nullEvent{} }

// findTypeMetrics returns the entry for jobType in a metrics snapshot, or
// nil if the type has never recorded anything.
func findTypeMetrics(snap MetricsSnapshot, jobType string) *TypeMetrics {
	for i := range snap.PerType {
		if snap.PerType[i].JobType == jobType {
			return &snap.PerType[i]
		}
	}
	return nil
}

type nullEvent struct{}

func (nullEvent) Str(string, string) LogEvent           { return nullEvent{} }
func (nullEvent) Int(string, int) LogEvent              { return nullEvent{} }
func (nullEvent) Dur(string, time.Duration) LogEvent     { return nullEvent{} }
func (nullEvent) Err(error) LogEvent                     { return nullEvent{} }
func (nullEvent) Msg(string)                             {}

// countingTask records every Execute call and runs fn, defaulting to an
// always-successful no-op when fn is nil.
type countingTask struct {
	mu    sync.Mutex
	calls []time.Time

	fn func(ctx context.Context, inv *Invocation) (int, error)
}

func (t *countingTask) Validate(_ context.Context, _ *Invocation) (bool, string) { return true, "" }

func (t *countingTask) Execute(ctx context.Context, inv *Invocation) (int, error) {
	t.mu.Lock()
	t.calls = append(t.calls, time.Now())
	t.mu.Unlock()
	if t.fn != nil {
		return t.fn(ctx, inv)
	}
	return 1, nil
}

func (t *countingTask) callCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.calls)
}

func newTestManager(t *testing.T, descs ...TaskDescriptor) (*Manager, *TaskRegistry) {
	t.Helper()
	registry := NewTaskRegistry(nullLogger{})
	for _, d := range descs {
		if err := registry.Register(d); err != nil {
			t.Fatalf("Register(%s) failed: %v", d.JobType, err)
		}
	}
	if err := registry.FinalizeDiscovery(); err != nil {
		t.Fatalf("FinalizeDiscovery failed: %v", err)
	}
	m, err := NewManager(registry, NewSystemClock(), nullLogger{}, ManagerConfig{
		WorkerCount:        4,
		ShutdownGraceful:   200 * time.Millisecond,
		DeadLetterCapacity: 100,
	})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	return m, registry
}

// TestManager_SimpleScheduleFires is scenario S1: a descriptor with a short
// interval fires repeatedly once the manager is running.
func TestManager_SimpleScheduleFires(t *testing.T) {
	task := &countingTask{}
	d := NewTaskDescriptor("s1_job", task)
	d.Interval = 20 * time.Millisecond
	m, _ := newTestManager(t, d)

	ctx, cancel := context.WithCancel(context.Background())
	if err := m.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	time.Sleep(110 * time.Millisecond)
	m.Stop()
	cancel()

	if calls := task.callCount(); calls < 3 {
		t.Errorf("callCount = %d, want at least 3 within 110ms at a 20ms interval", calls)
	}
}

// TestManager_PriorityOrdering is scenario S2: with a single worker, a
// critical-priority invocation enqueued after a low-priority one is served
// first.
func TestManager_PriorityOrdering(t *testing.T) {
	var order []string
	var mu sync.Mutex
	block := make(chan struct{})

	task := &countingTask{}
	task.fn = func(_ context.Context, inv *Invocation) (int, error) {
		<-block
		mu.Lock()
		order = append(order, inv.Payload.(string))
		mu.Unlock()
		return 1, nil
	}

	d := NewTaskDescriptor("s2_job", task)
	d.MaxConcurrent = 1
	registry := NewTaskRegistry(nullLogger{})
	if err := registry.Register(d); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := registry.FinalizeDiscovery(); err != nil {
		t.Fatalf("FinalizeDiscovery failed: %v", err)
	}
	m, err := NewManager(registry, NewSystemClock(), nullLogger{}, ManagerConfig{WorkerCount: 1, ShutdownGraceful: 200 * time.Millisecond})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := m.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// First invocation occupies the single worker, blocked on `block`, so the
	// next two land in the queue before either executes.
	if _, err := m.Enqueue("s2_job", "blocker", EnqueueOptions{}); err != nil {
		t.Fatalf("Enqueue(blocker) failed: %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	low := PriorityLow
	critical := PriorityCritical
	if _, err := m.Enqueue("s2_job", "low", EnqueueOptions{PriorityOverride: &low}); err != nil {
		t.Fatalf("Enqueue(low) failed: %v", err)
	}
	if _, err := m.Enqueue("s2_job", "critical", EnqueueOptions{PriorityOverride: &critical}); err != nil {
		t.Fatalf("Enqueue(critical) failed: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	close(block)
	time.Sleep(60 * time.Millisecond)
	m.Stop()

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 3 {
		t.Fatalf("order = %v, want 3 entries", order)
	}
	if order[1] != "critical" || order[2] != "low" {
		t.Errorf("order = %v, want [blocker critical low]", order)
	}
}

// TestManager_StackingPreventionSkipsOverlappingTicks is scenario S3: a task
// slower than its own interval never has two invocations in flight.
func TestManager_StackingPreventionSkipsOverlappingTicks(t *testing.T) {
	var maxConcurrent int32
	var current int32

	task := &countingTask{}
	task.fn = func(_ context.Context, _ *Invocation) (int, error) {
		n := atomic.AddInt32(&current, 1)
		for {
			old := atomic.LoadInt32(&maxConcurrent)
			if n <= old || atomic.CompareAndSwapInt32(&maxConcurrent, old, n) {
				break
			}
		}
		time.Sleep(300 * time.Millisecond)
		atomic.AddInt32(&current, -1)
		return 1, nil
	}

	d := NewTaskDescriptor("slow_monitor", task)
	d.Interval = 50 * time.Millisecond
	d.MaxConcurrent = 1
	m, _ := newTestManager(t, d)
	m.governor.monitoring["slow_monitor"] = true

	ctx, cancel := context.WithCancel(context.Background())
	if err := m.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	time.Sleep(1 * time.Second)
	m.Stop()
	cancel()

	if got := atomic.LoadInt32(&maxConcurrent); got > 1 {
		t.Errorf("observed %d concurrent executions of slow_monitor, want at most 1", got)
	}

	snap := m.Metrics()
	tm := findTypeMetrics(snap, "slow_monitor")
	if tm == nil {
		t.Fatal("no metrics recorded for slow_monitor")
	}
	if tm.ExecutionsTotal > 4 {
		t.Errorf("ExecutionsTotal = %d, want <= 4", tm.ExecutionsTotal)
	}
	if tm.SkippedDedupTotal < 15 {
		t.Errorf("SkippedDedupTotal = %d, want >= 15", tm.SkippedDedupTotal)
	}
}

// TestManager_RetryWithBackoff is scenario S4: a task that fails twice then
// succeeds is retried, not dead-lettered, and the final outcome is success.
func TestManager_RetryWithBackoff(t *testing.T) {
	var attempts int32

	task := &countingTask{}
	task.fn = func(_ context.Context, _ *Invocation) (int, error) {
		n := atomic.AddInt32(&attempts, 1)
		if n < 3 {
			return 0, fmt.Errorf("transient failure on attempt %d", n)
		}
		return 1, nil
	}

	d := NewTaskDescriptor("s4_job", task)
	d.MaxRetries = 3
	d.RetryBackoffBase = 10 * time.Millisecond
	d.RetryBackoffMax = 50 * time.Millisecond
	m, _ := newTestManager(t, d)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := m.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if _, err := m.Enqueue("s4_job", nil, EnqueueOptions{}); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for atomic.LoadInt32(&attempts) < 3 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	m.Stop()

	if got := atomic.LoadInt32(&attempts); got != 3 {
		t.Fatalf("attempts = %d, want 3 (2 failures then a success)", got)
	}
	if dl := m.DeadLetter(0); len(dl) != 0 {
		t.Errorf("DeadLetter = %v, want empty (task eventually succeeded)", dl)
	}
}

// TestManager_DeadLetterAfterRetriesExhausted is scenario S5: a task that
// always fails is dead-lettered once max_retries is exceeded.
func TestManager_DeadLetterAfterRetriesExhausted(t *testing.T) {
	task := &countingTask{}
	task.fn = func(_ context.Context, _ *Invocation) (int, error) {
		return 0, fmt.Errorf("permanent failure")
	}

	d := NewTaskDescriptor("s5_job", task)
	d.MaxRetries = 1
	d.RetryBackoffBase = 5 * time.Millisecond
	d.RetryBackoffMax = 10 * time.Millisecond
	m, _ := newTestManager(t, d)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := m.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if _, err := m.Enqueue("s5_job", nil, EnqueueOptions{}); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for len(m.DeadLetter(0)) == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	m.Stop()

	entries := m.DeadLetter(0)
	if len(entries) != 1 {
		t.Fatalf("DeadLetter entries = %d, want 1", len(entries))
	}
	if entries[0].Invocation.JobType != "s5_job" {
		t.Errorf("dead-lettered job_type = %s, want s5_job", entries[0].Invocation.JobType)
	}
	if task.callCount() != 2 {
		t.Errorf("callCount = %d, want 2 (initial attempt + 1 retry)", task.callCount())
	}
	if entries[0].Invocation.Attempt != 2 {
		t.Errorf("dead-lettered attempt = %d, want 2", entries[0].Invocation.Attempt)
	}

	tm := findTypeMetrics(m.Metrics(), "s5_job")
	if tm == nil {
		t.Fatal("no metrics recorded for s5_job")
	}
	if tm.DeadLetteredTotal != 1 {
		t.Errorf("DeadLetteredTotal = %d, want 1", tm.DeadLetteredTotal)
	}
}

// TestManager_GracefulShutdownWaitsForInFlightWork is scenario S6: Stop
// waits for an in-flight execution shorter than ShutdownGraceful to finish
// rather than cancelling it immediately.
func TestManager_GracefulShutdownWaitsForInFlightWork(t *testing.T) {
	finished := make(chan struct{})

	task := &countingTask{}
	task.fn = func(ctx context.Context, _ *Invocation) (int, error) {
		select {
		case <-time.After(80 * time.Millisecond):
			close(finished)
			return 1, nil
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}

	d := NewTaskDescriptor("s6_job", task)
	registry := NewTaskRegistry(nullLogger{})
	if err := registry.Register(d); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := registry.FinalizeDiscovery(); err != nil {
		t.Fatalf("FinalizeDiscovery failed: %v", err)
	}
	m, err := NewManager(registry, NewSystemClock(), nullLogger{}, ManagerConfig{
		WorkerCount:      2,
		ShutdownGraceful: 500 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := m.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if _, err := m.Enqueue("s6_job", nil, EnqueueOptions{}); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	m.Stop()

	select {
	case <-finished:
	default:
		t.Error("in-flight execution was abandoned instead of allowed to finish within the grace window")
	}
}

// TestManager_Enqueue_RejectsBeforeStart verifies ErrNotRunning for an
// Enqueue issued before Start.
func TestManager_Enqueue_RejectsBeforeStart(t *testing.T) {
	task := &countingTask{}
	m, _ := newTestManager(t, NewTaskDescriptor("unstarted_job", task))

	if _, err := m.Enqueue("unstarted_job", nil, EnqueueOptions{}); err != ErrNotRunning {
		t.Errorf("Enqueue before Start = %v, want ErrNotRunning", err)
	}
}

// TestManager_Enqueue_RejectsAfterStop verifies ErrShutdown for an Enqueue
// issued after the manager has been stopped.
func TestManager_Enqueue_RejectsAfterStop(t *testing.T) {
	task := &countingTask{}
	m, _ := newTestManager(t, NewTaskDescriptor("stopped_job", task))

	ctx, cancel := context.WithCancel(context.Background())
	if err := m.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	m.Stop()
	cancel()

	if _, err := m.Enqueue("stopped_job", nil, EnqueueOptions{}); err != ErrShutdown {
		t.Errorf("Enqueue after Stop = %v, want ErrShutdown", err)
	}
}

// TestManager_Enqueue_RejectsDisabledJobType verifies ErrDisabled.
func TestManager_Enqueue_RejectsDisabledJobType(t *testing.T) {
	task := &countingTask{}
	d := NewTaskDescriptor("disabled_job", task)
	d.Enabled = false
	m, _ := newTestManager(t, d)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := m.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer m.Stop()

	if _, err := m.Enqueue("disabled_job", nil, EnqueueOptions{}); err == nil {
		t.Error("Enqueue(disabled job_type) = nil error, want ErrDisabled")
	}
}

// TestManager_DeadLetterQueueEviction is scenario S9: pushing more entries
// than DeadLetterCapacity evicts the oldest first and bumps the eviction
// counter, verified here through the public DeadLetterQueue surface rather
// than a full Manager run.
func TestManager_DeadLetterQueueEviction(t *testing.T) {
	var evicted int
	dlq := NewDeadLetterQueue(2, func(jobType string) {
		evicted++
		if jobType != "job_0" {
			t.Errorf("evicted job_type = %s, want job_0", jobType)
		}
	})

	for i := 0; i < 3; i++ {
		dlq.Push(DeadLetterEntry{Invocation: Invocation{JobType: fmt.Sprintf("job_%d", i)}})
	}

	if evicted != 1 {
		t.Errorf("evicted = %d, want 1", evicted)
	}
	entries := dlq.Peek(0)
	if len(entries) != 2 {
		t.Fatalf("Peek(0) length = %d, want 2", len(entries))
	}
	if entries[0].Invocation.JobType != "job_1" {
		t.Errorf("oldest surviving entry = %s, want job_1 (job_0 should have been evicted)", entries[0].Invocation.JobType)
	}
}
