package platform

import (
	"context"
	"time"
)

// Priority ranks invocations within the PriorityQueue. Higher values are
// served first; CRITICAL always preempts HIGH/NORMAL/LOW.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityCritical
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "LOW"
	case PriorityNormal:
		return "NORMAL"
	case PriorityHigh:
		return "HIGH"
	case PriorityCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// Source identifies what produced an Invocation.
type Source int

const (
	SourceScheduled Source = iota
	SourceExternal
	SourceRetry
)

func (s Source) String() string {
	switch s {
	case SourceScheduled:
		return "SCHEDULED"
	case SourceExternal:
		return "EXTERNAL"
	case SourceRetry:
		return "RETRY"
	default:
		return "UNKNOWN"
	}
}

// Outcome is the terminal or non-terminal classification of one execution
// attempt, recorded to MetricsRecorder.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeFailedRetryable
	OutcomeFailedTerminal
	OutcomeSkippedValidation
	OutcomeSkippedDedup
	OutcomeTimedOut
	OutcomeCancelled
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "SUCCESS"
	case OutcomeFailedRetryable:
		return "FAILED_RETRYABLE"
	case OutcomeFailedTerminal:
		return "FAILED_TERMINAL"
	case OutcomeSkippedValidation:
		return "SKIPPED_VALIDATION"
	case OutcomeSkippedDedup:
		return "SKIPPED_DEDUP"
	case OutcomeTimedOut:
		return "TIMED_OUT"
	case OutcomeCancelled:
		return "CANCELLED"
	default:
		return "UNKNOWN"
	}
}

// TaskDescriptor is the immutable-after-registration definition of a job
// type. Defaults are documented on RegistryDefaults and pre-applied by
// NewTaskDescriptor; Register does not fill unset fields.
type TaskDescriptor struct {
	JobType     string
	DisplayName string
	Description string

	// Interval is the wall-clock period the Scheduler fires this type on.
	// Zero means "enqueue-only, never auto-scheduled".
	Interval time.Duration
	Priority Priority
	Enabled  bool

	MaxRetries       int
	RetryBackoffBase time.Duration
	RetryBackoffMax  time.Duration
	Timeout          time.Duration

	// MaxConcurrent caps simultaneous in-flight executions of this type.
	// Forced to 1 when PreserveOrder is true.
	MaxConcurrent int
	BatchSize     int

	// Requires is an advisory set of capability tags surfaced in health
	// (e.g. "wallet", "ai", "social", "blockchain", "queue").
	Requires []string

	// Dependencies names other job_types that must be registered, validated
	// at FinalizeDiscovery time.
	Dependencies []string

	// PreserveOrder forces MaxConcurrent to 1 and serves this type's
	// invocations strictly FIFO, overriding priority within the type.
	PreserveOrder bool

	// Idempotent, when false, disables retries once an execution has
	// actually begun side effects — a TIMED_OUT outcome becomes TERMINAL
	// rather than RETRYABLE.
	Idempotent bool

	Task TaskImpl
}

// RegistryDefaults is the starting value NewTaskDescriptor copies into every
// new descriptor, matching the annotation contract in spec §4.1. Register
// does not fill zero-valued fields from it.
var RegistryDefaults = TaskDescriptor{
	Enabled:          true,
	Priority:         PriorityNormal,
	MaxRetries:       3,
	RetryBackoffBase: 30 * time.Second,
	RetryBackoffMax:  5 * time.Minute,
	Timeout:          5 * time.Minute,
	MaxConcurrent:    1,
	BatchSize:        10,
	PreserveOrder:    false,
	Idempotent:       true,
}

// Invocation is one attempt to run a task, scheduled or enqueued.
type Invocation struct {
	InvocationID string
	JobType      string
	Priority     Priority
	EnqueuedAt   time.Time

	// Attempt is 1-based; attempt <= descriptor.MaxRetries+1 always holds.
	Attempt int
	Source  Source
	Payload any

	// DedupKey, when non-empty, is compared against other pending
	// invocations of the same type; a collision drops the newer one
	// (Layer B, §4.4). Defaults to JobType for SCHEDULED invocations.
	DedupKey string

	Deadline     time.Time
	CancelSignal <-chan struct{}

	cancel context.CancelFunc
}

// ExecutionRecord is emitted to MetricsRecorder after every attempt.
type ExecutionRecord struct {
	InvocationID   string
	JobType        string
	StartedAt      time.Time
	EndedAt        time.Time
	Outcome        Outcome
	ErrorSummary   string
	ItemsProcessed int
}
