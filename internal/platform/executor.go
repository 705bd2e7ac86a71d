package platform

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
)

// consecutiveAcquireFailuresBeforeSleep bounds how many times a worker
// spins on TryAcquire/PushBack before yielding briefly, to avoid a busy
// loop when a type is saturated (§4.6 step 3).
const consecutiveAcquireFailuresBeforeSleep = 8

const acquireBackpressureSleep = 10 * time.Millisecond

// Executor is a fixed pool of worker goroutines draining a PriorityQueue
// under ConcurrencyGovernor control.
type Executor struct {
	registry *TaskRegistry
	queue    *PriorityQueue
	governor *ConcurrencyGovernor
	metrics  *MetricsRecorder
	deadLet  *DeadLetterQueue
	clock    Clock
	logger   Logger

	workerCount int
}

// NewExecutor wires an Executor's collaborators together.
func NewExecutor(registry *TaskRegistry, queue *PriorityQueue, governor *ConcurrencyGovernor, metrics *MetricsRecorder, deadLet *DeadLetterQueue, clock Clock, logger Logger, workerCount int) *Executor {
	if workerCount <= 0 {
		workerCount = 5
	}
	return &Executor{
		registry:    registry,
		queue:       queue,
		governor:    governor,
		metrics:     metrics,
		deadLet:     deadLet,
		clock:       clock,
		logger:      logger,
		workerCount: workerCount,
	}
}

// workerLoop is one worker of the pool: it pops invocations until the queue
// is closed and drained, running each under a governor slot. Manager.Start
// launches workerCount of them, each in its own goroutine.
func (e *Executor) workerLoop(ctx context.Context, id int) {
	consecutiveFailures := 0

	for {
		inv, err := e.queue.Pop()
		if err != nil {
			// ErrClosed: queue drained and closed, worker exits.
			return
		}

		if e.shouldDropForLayerBDedup(inv) {
			e.metrics.Record(ExecutionRecord{
				InvocationID: inv.InvocationID,
				JobType:      inv.JobType,
				StartedAt:    e.clock.Now(),
				EndedAt:      e.clock.Now(),
				Outcome:      OutcomeSkippedDedup,
			})
			continue
		}

		if !e.governor.TryAcquire(inv.JobType) {
			e.queue.PushBack(inv)
			consecutiveFailures++
			if consecutiveFailures >= consecutiveAcquireFailuresBeforeSleep {
				e.clock.Sleep(acquireBackpressureSleep)
				consecutiveFailures = 0
			}
			continue
		}
		consecutiveFailures = 0

		e.runOne(ctx, inv)
		e.governor.Release(inv.JobType)
	}
}

// shouldDropForLayerBDedup re-checks, at pre-execute time, whether another
// worker has just begun a same-type execution for a monitoring-set type
// (§4.4 Layer B pre-execute recheck).
func (e *Executor) shouldDropForLayerBDedup(inv *Invocation) bool {
	if !e.governor.IsMonitoring(inv.JobType) {
		return false
	}
	return e.governor.InFlight(inv.JobType) > 0
}

// runOne executes a single dequeued, acquired invocation through
// validate -> execute -> post-process, and records the outcome.
func (e *Executor) runOne(ctx context.Context, inv *Invocation) {
	desc, err := e.registry.Get(inv.JobType)
	if err != nil {
		// The type was valid at enqueue time; a descriptor disappearing is
		// an internal-invariant violation.
		e.metrics.RecordPlatformBug()
		e.logger.Critical().Str("job_type", inv.JobType).Msg("platform: invocation for unregistered job_type")
		return
	}

	ok, reason := func() (ok bool, reason string) {
		defer e.recoverPanic(&ok, &reason, "Validate")
		return desc.Task.Validate(ctx, inv)
	}()
	if !ok {
		e.metrics.Record(ExecutionRecord{
			InvocationID: inv.InvocationID,
			JobType:      inv.JobType,
			StartedAt:    e.clock.Now(),
			EndedAt:      e.clock.Now(),
			Outcome:      OutcomeSkippedValidation,
			ErrorSummary: reason,
		})
		return
	}

	deadline := e.clock.Now().Add(desc.Timeout)
	if !inv.Deadline.IsZero() && inv.Deadline.Before(deadline) {
		deadline = inv.Deadline
	}
	execCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	start := e.clock.Now()
	items, execErr := func() (items int, execErr error) {
		defer e.recoverPanicExec(&items, &execErr)
		return desc.Task.Execute(execCtx, inv)
	}()
	end := e.clock.Now()

	outcome, errSummary := e.classify(desc, execCtx, execErr)

	// The attempt just made may already be the one that exhausts retries, or
	// a non-idempotent timeout, in which case §4.6/§7 require it be recorded
	// as FAILED_TERMINAL (and counted in dead_lettered_total) rather than
	// under its raw classification.
	recordedOutcome := outcome
	if (outcome == OutcomeFailedRetryable || outcome == OutcomeTimedOut) && inv.Attempt > desc.MaxRetries {
		recordedOutcome = OutcomeFailedTerminal
	}
	if outcome == OutcomeTimedOut && !desc.Idempotent {
		recordedOutcome = OutcomeFailedTerminal
	}

	e.metrics.Record(ExecutionRecord{
		InvocationID:   inv.InvocationID,
		JobType:        inv.JobType,
		StartedAt:      start,
		EndedAt:        end,
		Outcome:        recordedOutcome,
		ErrorSummary:   errSummary,
		ItemsProcessed: items,
	})

	switch outcome {
	case OutcomeSuccess:
		return
	case OutcomeFailedRetryable:
		e.scheduleRetryOrDeadLetter(desc, inv, errSummary)
	case OutcomeTimedOut:
		if desc.Idempotent {
			e.scheduleRetryOrDeadLetter(desc, inv, errSummary)
		} else {
			e.deadLetter(inv, OutcomeFailedTerminal, errSummary)
		}
	case OutcomeFailedTerminal:
		e.deadLetter(inv, OutcomeFailedTerminal, errSummary)
	case OutcomeCancelled:
		// Shutdown abandoned the invocation; nothing further to do.
	}
}

// classify turns a raw Execute error (or nil) into an Outcome, consulting
// ErrorClassifier when the task_impl implements it.
func (e *Executor) classify(desc *TaskDescriptor, execCtx context.Context, execErr error) (Outcome, string) {
	if execErr == nil {
		return OutcomeSuccess, ""
	}
	if errors.Is(execErr, errTaskPanic) {
		return OutcomeFailedTerminal, execErr.Error()
	}
	if execCtx.Err() == context.DeadlineExceeded {
		return OutcomeTimedOut, execErr.Error()
	}
	if execCtx.Err() == context.Canceled {
		return OutcomeCancelled, execErr.Error()
	}

	class := Retryable
	if classifier, ok := desc.Task.(ErrorClassifier); ok {
		class = classifier.ClassifyError(execErr)
	}
	if class == Terminal {
		return OutcomeFailedTerminal, execErr.Error()
	}
	return OutcomeFailedRetryable, execErr.Error()
}

// scheduleRetryOrDeadLetter implements the retry-with-backoff decision of
// §4.6: retry while attempt <= max_retries, dead-letter once attempts are
// exhausted.
func (e *Executor) scheduleRetryOrDeadLetter(desc *TaskDescriptor, inv *Invocation, errSummary string) {
	if inv.Attempt > desc.MaxRetries {
		e.deadLetter(inv, OutcomeFailedTerminal, errSummary)
		return
	}

	delay := retryDelay(desc, inv.Attempt)
	retry := &Invocation{
		InvocationID: uuid.New().String(),
		JobType:      inv.JobType,
		Priority:     inv.Priority,
		EnqueuedAt:   e.clock.Now(),
		Attempt:      inv.Attempt + 1,
		Source:       SourceRetry,
		Payload:      inv.Payload,
		DedupKey:     inv.DedupKey,
		Deadline:     inv.Deadline,
	}

	go func() {
		e.clock.Sleep(delay)
		e.queue.Push(retry)
	}()
}

// retryDelay computes the delay before attempt+1, using
// cenkalti/backoff/v4's exponential policy seeded from the descriptor's
// backoff base and capped at retry_backoff_max (§3, §4.6): delay = min(base
// * 2^(attempt-1), retry_backoff_max).
func retryDelay(desc *TaskDescriptor, attempt int) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = desc.RetryBackoffBase
	b.Multiplier = 2
	b.MaxInterval = desc.RetryBackoffMax
	b.RandomizationFactor = 0
	b.Reset()

	// NextBackOff's k-th call (1-indexed) returns base*2^(k-1); calling it
	// attempt times yields base*2^(attempt-1), matching "retry N waits
	// base x 2^(N-1)".
	var delay time.Duration
	for i := 0; i < attempt; i++ {
		delay = b.NextBackOff()
	}
	if delay > desc.RetryBackoffMax {
		delay = desc.RetryBackoffMax
	}
	return delay
}

func (e *Executor) deadLetter(inv *Invocation, outcome Outcome, errSummary string) {
	e.deadLet.Push(DeadLetterEntry{
		Invocation: *inv,
		Outcome:    outcome,
		Error:      errSummary,
	})
}

// recoverPanic catches a panic inside Validate, classifying the result as
// "not ok" so the worker pool is never brought down by a task (§7).
func (e *Executor) recoverPanic(ok *bool, reason *string, phase string) {
	if r := recover(); r != nil {
		*ok = false
		*reason = fmt.Sprintf("panic in %s: %v", phase, r)
		e.logger.Error().Str("phase", phase).Str("panic", fmt.Sprintf("%v", r)).Str("stack", string(debug.Stack())).Msg("platform: recovered from task panic")
	}
}

// errTaskPanic marks an Execute error produced by a recovered panic, which
// classify treats as terminal.
var errTaskPanic = errors.New("panic in Execute")

// recoverPanicExec catches a panic inside Execute, classifying it as a
// terminal error.
func (e *Executor) recoverPanicExec(items *int, execErr *error) {
	if r := recover(); r != nil {
		*items = 0
		*execErr = fmt.Errorf("%w: %v", errTaskPanic, r)
	}
}
