// Package queuestore defines the SQL/document-store-backed queue table the
// broader DAO backend persists "queue messages" in. It is external
// collaborator glue, not part of the job execution platform: a
// queue-processing task_impl's Validate reads the store to decide whether
// there is work; its Execute consumes rows. The platform core
// (internal/platform) neither reads nor writes this store (spec §9).
package queuestore

import (
	"context"
	"time"
)

// Status is the lifecycle state of a persisted queue message, independent
// of platform.Outcome — a message can sit "pending" across many scheduler
// ticks before a task_impl ever dequeues it.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Message is one row of the queue table: a unit of DAO-domain work a
// queue-processing task relays (e.g. a filing PDF to ingest, a digest to
// post). Priority is a plain integer here, independent of
// platform.Priority, matching the column the teacher's job_queue table
// sorts by.
type Message struct {
	ID          string
	JobType     string
	DAOID       string
	Priority    int
	Status      Status
	CreatedAt   time.Time
	StartedAt   time.Time
	CompletedAt time.Time
	Error       string
	Attempts    int
	MaxAttempts int
	DurationMS  int64

	// Payload carries the job-type-specific body (a PDF path, a proposal
	// ID, a digest body) as an opaque string — JSON-encoded by the
	// producer, decoded by the consuming task_impl.
	Payload string
}

// Store is the persistence port internal/tasks' queue-processing task_impls
// depend on. Implementations live outside the platform core.
type Store interface {
	// Enqueue inserts msg, assigning an ID/CreatedAt/Status if unset.
	Enqueue(ctx context.Context, msg *Message) error

	// DequeueByType atomically claims the highest-priority pending message
	// of jobType, or returns (nil, nil) if none is pending.
	DequeueByType(ctx context.Context, jobType string) (*Message, error)

	// Complete marks id finished, recording jobErr (nil on success) and the
	// elapsed duration.
	Complete(ctx context.Context, id string, jobErr error, durationMS int64) error

	// Cancel marks a still-pending message cancelled; a no-op if it has
	// already started.
	Cancel(ctx context.Context, id string) error

	// CountPendingByType reports how many messages of jobType are pending,
	// the signal a queue-processing task_impl's Validate reads.
	CountPendingByType(ctx context.Context, jobType string) (int, error)

	// ListPending returns up to limit pending messages across all types,
	// highest priority first (or all, if limit <= 0).
	ListPending(ctx context.Context, limit int) ([]*Message, error)

	// PurgeCompleted deletes completed/failed/cancelled messages older than
	// olderThan, returning the count removed where the backend can report
	// one.
	PurgeCompleted(ctx context.Context, olderThan time.Time) (int, error)

	// ResetRunningMessages resets every "running" message back to
	// "pending", recovering work left in flight by a crashed process.
	ResetRunningMessages(ctx context.Context) (int, error)
}
