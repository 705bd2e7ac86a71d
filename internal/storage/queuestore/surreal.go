package queuestore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/aibtcdev/daoctl/internal/common"
)

// messageTable is the SurrealDB table queue messages are persisted to.
const messageTable = "queue_message"

// messageSelectFields lists the columns selected from queue_message,
// aliasing message_id to id for struct mapping (the teacher's job_queue
// select follows the same job_id-as-id convention).
const messageSelectFields = "message_id as id, job_type, dao_id, priority, status, created_at, started_at, completed_at, error, attempts, max_attempts, duration_ms, payload"

// SurrealStore implements Store using SurrealDB, mirroring the teacher's
// surrealdb.JobQueueStore query shapes against a DAO-domain schema
// (dao_id replaces ticker, queue_message replaces job_queue).
type SurrealStore struct {
	db     *surrealdb.DB
	logger *common.Logger
}

// NewSurrealStore wraps an already-connected SurrealDB handle.
func NewSurrealStore(db *surrealdb.DB, logger *common.Logger) *SurrealStore {
	return &SurrealStore{db: db, logger: logger}
}

// row mirrors Message's shape for SurrealDB struct decoding.
type row struct {
	ID          string    `json:"id"`
	JobType     string    `json:"job_type"`
	DAOID       string    `json:"dao_id"`
	Priority    int       `json:"priority"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
	Error       string    `json:"error"`
	Attempts    int       `json:"attempts"`
	MaxAttempts int       `json:"max_attempts"`
	DurationMS  int64     `json:"duration_ms"`
	Payload     string    `json:"payload"`
}

func (r row) toMessage() *Message {
	return &Message{
		ID:          r.ID,
		JobType:     r.JobType,
		DAOID:       r.DAOID,
		Priority:    r.Priority,
		Status:      Status(r.Status),
		CreatedAt:   r.CreatedAt,
		StartedAt:   r.StartedAt,
		CompletedAt: r.CompletedAt,
		Error:       r.Error,
		Attempts:    r.Attempts,
		MaxAttempts: r.MaxAttempts,
		DurationMS:  r.DurationMS,
		Payload:     r.Payload,
	}
}

func (s *SurrealStore) Enqueue(ctx context.Context, msg *Message) error {
	if msg.ID == "" {
		msg.ID = uuid.New().String()[:8]
	}
	if msg.Status == "" {
		msg.Status = StatusPending
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	if msg.MaxAttempts == 0 {
		msg.MaxAttempts = 3
	}

	sql := `UPSERT $rid SET
		message_id = $message_id, job_type = $job_type, dao_id = $dao_id, priority = $priority,
		status = $status, created_at = $created_at, started_at = $started_at,
		completed_at = $completed_at, error = $error, attempts = $attempts,
		max_attempts = $max_attempts, duration_ms = $duration_ms, payload = $payload`
	vars := map[string]any{
		"rid":          surrealmodels.NewRecordID(messageTable, msg.ID),
		"message_id":   msg.ID,
		"job_type":     msg.JobType,
		"dao_id":       msg.DAOID,
		"priority":     msg.Priority,
		"status":       msg.Status,
		"created_at":   msg.CreatedAt,
		"started_at":   msg.StartedAt,
		"completed_at": msg.CompletedAt,
		"error":        msg.Error,
		"attempts":     msg.Attempts,
		"max_attempts": msg.MaxAttempts,
		"duration_ms":  msg.DurationMS,
		"payload":      msg.Payload,
	}

	if _, err := surrealdb.Query[any](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("queuestore: enqueue message: %w", err)
	}
	return nil
}

func (s *SurrealStore) DequeueByType(ctx context.Context, jobType string) (*Message, error) {
	selectSQL := "SELECT " + messageSelectFields + " FROM " + messageTable + " WHERE job_type = $job_type AND status = $pending ORDER BY priority DESC, created_at ASC LIMIT 1"
	vars := map[string]any{"job_type": jobType, "pending": StatusPending}

	candidates, err := surrealdb.Query[[]row](ctx, s.db, selectSQL, vars)
	if err != nil {
		return nil, fmt.Errorf("queuestore: select candidate: %w", err)
	}
	if candidates == nil || len(*candidates) == 0 || len((*candidates)[0].Result) == 0 {
		return nil, nil
	}
	candidate := (*candidates)[0].Result[0]

	now := time.Now()
	updateSQL := "UPDATE $rid SET status = $running, started_at = $now, attempts = attempts + 1 WHERE status = $pending"
	updateVars := map[string]any{
		"rid":     surrealmodels.NewRecordID(messageTable, candidate.ID),
		"running": StatusRunning,
		"pending": StatusPending,
		"now":     now,
	}
	if _, err := surrealdb.Query[any](ctx, s.db, updateSQL, updateVars); err != nil {
		return nil, fmt.Errorf("queuestore: claim message: %w", err)
	}

	candidate.Status = string(StatusRunning)
	candidate.StartedAt = now
	candidate.Attempts++
	return candidate.toMessage(), nil
}

func (s *SurrealStore) Complete(ctx context.Context, id string, jobErr error, durationMS int64) error {
	status := StatusCompleted
	errStr := ""
	if jobErr != nil {
		status = StatusFailed
		errStr = jobErr.Error()
	}

	sql := "UPDATE $rid SET status = $status, completed_at = $now, error = $error, duration_ms = $dur"
	vars := map[string]any{
		"rid":    surrealmodels.NewRecordID(messageTable, id),
		"status": status,
		"now":    time.Now(),
		"error":  errStr,
		"dur":    durationMS,
	}
	if _, err := surrealdb.Query[any](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("queuestore: complete message: %w", err)
	}
	return nil
}

func (s *SurrealStore) Cancel(ctx context.Context, id string) error {
	sql := "UPDATE $rid SET status = $status WHERE status = $pending"
	vars := map[string]any{
		"rid":     surrealmodels.NewRecordID(messageTable, id),
		"status":  StatusCancelled,
		"pending": StatusPending,
	}
	if _, err := surrealdb.Query[any](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("queuestore: cancel message: %w", err)
	}
	return nil
}

func (s *SurrealStore) CountPendingByType(ctx context.Context, jobType string) (int, error) {
	sql := "SELECT count() AS cnt FROM " + messageTable + " WHERE job_type = $job_type AND status = $pending GROUP ALL"
	vars := map[string]any{"job_type": jobType, "pending": StatusPending}

	type countResult struct {
		Cnt int `json:"cnt"`
	}
	results, err := surrealdb.Query[[]countResult](ctx, s.db, sql, vars)
	if err != nil {
		return 0, fmt.Errorf("queuestore: count pending: %w", err)
	}
	if results != nil && len(*results) > 0 && len((*results)[0].Result) > 0 {
		return (*results)[0].Result[0].Cnt, nil
	}
	return 0, nil
}

func (s *SurrealStore) ListPending(ctx context.Context, limit int) ([]*Message, error) {
	sql := "SELECT " + messageSelectFields + " FROM " + messageTable + " WHERE status = $pending ORDER BY priority DESC, created_at ASC"
	vars := map[string]any{"pending": StatusPending}
	if limit > 0 {
		sql += " LIMIT $limit"
		vars["limit"] = limit
	}

	results, err := surrealdb.Query[[]row](ctx, s.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("queuestore: list pending: %w", err)
	}
	var out []*Message
	if results != nil && len(*results) > 0 {
		for _, r := range (*results)[0].Result {
			out = append(out, r.toMessage())
		}
	}
	return out, nil
}

func (s *SurrealStore) PurgeCompleted(ctx context.Context, olderThan time.Time) (int, error) {
	sql := "DELETE FROM " + messageTable + " WHERE status IN [$completed, $failed, $cancelled] AND completed_at < $cutoff"
	vars := map[string]any{
		"completed": StatusCompleted,
		"failed":    StatusFailed,
		"cancelled": StatusCancelled,
		"cutoff":    olderThan,
	}
	if _, err := surrealdb.Query[any](ctx, s.db, sql, vars); err != nil {
		return 0, fmt.Errorf("queuestore: purge completed: %w", err)
	}
	// SurrealDB's DELETE doesn't report an affected-row count cheaply.
	return 0, nil
}

func (s *SurrealStore) ResetRunningMessages(ctx context.Context) (int, error) {
	sql := "UPDATE " + messageTable + " SET status = $pending, started_at = NONE WHERE status = $running"
	vars := map[string]any{"pending": StatusPending, "running": StatusRunning}
	if _, err := surrealdb.Query[any](ctx, s.db, sql, vars); err != nil {
		return 0, fmt.Errorf("queuestore: reset running messages: %w", err)
	}
	return 0, nil
}

var _ Store = (*SurrealStore)(nil)
