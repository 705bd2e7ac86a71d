package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aibtcdev/daoctl/internal/clients"
	"github.com/aibtcdev/daoctl/internal/platform"
)

// SocialDigestJobType posts a queued governance digest to the DAO's social
// channel. Queue-processing task per spec §9: Validate checks for pending
// rows, Execute claims and posts one.
const SocialDigestJobType = "social_digest"

type socialDigestPayload struct {
	Body string   `json:"body"`
	Tags []string `json:"tags"`
}

type socialDigestTask struct{}

func (socialDigestTask) Validate(ctx context.Context, _ *platform.Invocation) (bool, string) {
	if queueStore == nil {
		return false, "queue store not configured"
	}
	if socialClient == nil {
		return false, "social client not configured"
	}
	n, err := queueStore.CountPendingByType(ctx, SocialDigestJobType)
	if err != nil {
		return false, fmt.Sprintf("count pending digests: %v", err)
	}
	if n == 0 {
		return false, "no pending social digests"
	}
	return true, ""
}

func (socialDigestTask) Execute(ctx context.Context, _ *platform.Invocation) (int, error) {
	msg, err := queueStore.DequeueByType(ctx, SocialDigestJobType)
	if err != nil {
		return 0, fmt.Errorf("tasks: social_digest: dequeue: %w", err)
	}
	if msg == nil {
		return 0, nil
	}

	start := time.Now()
	postErr := postDigest(ctx, msg.Payload)
	if completeErr := queueStore.Complete(ctx, msg.ID, postErr, time.Since(start).Milliseconds()); completeErr != nil {
		return 0, fmt.Errorf("tasks: social_digest: complete: %w", completeErr)
	}
	if postErr != nil {
		return 0, postErr
	}
	return 1, nil
}

func postDigest(ctx context.Context, payload string) error {
	var p socialDigestPayload
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		return fmt.Errorf("decode social_digest payload: %w", err)
	}
	if p.Body == "" {
		return fmt.Errorf("social_digest payload missing body")
	}
	_, err := socialClient.Post(ctx, clients.SocialPost{Body: p.Body, Tags: p.Tags})
	return err
}

func init() {
	d := platform.NewTaskDescriptor(SocialDigestJobType, socialDigestTask{})
	d.DisplayName = "Social Governance Digest"
	d.Description = "Posts queued governance digests to the DAO's configured social channel."
	d.Interval = 5 * time.Minute
	d.Priority = platform.PriorityNormal
	d.Requires = []string{"queue", "social"}
	d.MaxRetries = 3
	d.RetryBackoffBase = 30 * time.Second
	d.Idempotent = false
	platform.MustRegisterDescriptor(d)
}
