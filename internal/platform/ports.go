// Package platform implements the job execution platform: a priority-driven
// scheduler and worker pool that discovers task definitions at startup,
// schedules them at fixed intervals or on demand, enforces per-type
// concurrency limits, deduplicates stacked work, retries with backoff, and
// quarantines poison jobs into a dead-letter queue.
package platform

import (
	"context"
	"time"
)

// Clock abstracts wall-clock time so the Scheduler can be driven
// deterministically in tests.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
	NewTicker(d time.Duration) Ticker
}

// Ticker is the subset of time.Ticker the Scheduler depends on.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// Logger is the structured logging port the platform consumes. Levels run
// DEBUG..CRITICAL; CRITICAL additionally marks an internal-invariant
// violation (§7).
type Logger interface {
	Debug() LogEvent
	Info() LogEvent
	Warn() LogEvent
	Error() LogEvent
	Critical() LogEvent
}

// LogEvent is a chainable structured log entry, mirroring the
// phuslu/log-via-arbor fluent style the rest of the repository uses.
type LogEvent interface {
	Str(key, value string) LogEvent
	Int(key string, value int) LogEvent
	Dur(key string, value time.Duration) LogEvent
	Err(err error) LogEvent
	Msg(msg string)
}

// ConfigSource is the overlay's read port. GetString reports whether the key
// was present at all, distinct from being present-but-empty.
type ConfigSource interface {
	GetString(key string) (value string, present bool)
}

// TaskImpl is the contract a registered job type implements. Validate is
// cheap and side-effect-free; a false return means "nothing to do right now"
// and is the normal idle case for queue-processing tasks. Execute performs
// the work and must honor ctx cancellation within descriptor.Timeout.
type TaskImpl interface {
	Validate(ctx context.Context, inv *Invocation) (ok bool, reason string)
	Execute(ctx context.Context, inv *Invocation) (itemsProcessed int, err error)
}

// ErrorClassifier is an optional extension of TaskImpl. When a task_impl
// implements it, the Executor asks it to classify Execute errors instead of
// defaulting every non-sentinel error to RETRYABLE.
type ErrorClassifier interface {
	ClassifyError(err error) ErrorClass
}

// ErrorClass is the outcome of ErrorClassifier.ClassifyError.
type ErrorClass int

const (
	Retryable ErrorClass = iota
	Terminal
)
