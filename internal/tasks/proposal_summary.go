package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/aibtcdev/daoctl/internal/platform"
)

// ProposalSummaryJobType produces an AI summary of a single proposal's
// filing text. Enqueue-only (interval=0): it runs only when enqueued through
// Manager.Enqueue; neither the Scheduler nor proposal_filing enqueues it.
const ProposalSummaryJobType = "proposal_summary"

// ProposalSummaryPayload is the Manager.Enqueue payload for this job type.
type ProposalSummaryPayload struct {
	ProposalID string
	Text       string
}

type proposalSummaryTask struct{}

func (proposalSummaryTask) Validate(_ context.Context, inv *platform.Invocation) (bool, string) {
	if aiClient == nil {
		return false, "AI client not configured"
	}
	p, ok := inv.Payload.(ProposalSummaryPayload)
	if !ok {
		return false, "invalid payload for proposal_summary"
	}
	if p.Text == "" {
		return false, "empty proposal text"
	}
	return true, ""
}

func (proposalSummaryTask) Execute(ctx context.Context, inv *platform.Invocation) (int, error) {
	p := inv.Payload.(ProposalSummaryPayload)
	summary, err := aiClient.Summarize(ctx, p.Text)
	if err != nil {
		return 0, fmt.Errorf("tasks: proposal_summary: %w", err)
	}
	_ = summary // persisting the summary is out of scope (spec.md Non-goals: no database schema)
	return 1, nil
}

func init() {
	d := platform.NewTaskDescriptor(ProposalSummaryJobType, proposalSummaryTask{})
	d.DisplayName = "Proposal AI Summary"
	d.Description = "Summarizes a single governance proposal's filing text on demand."
	d.Interval = 0
	d.Priority = platform.PriorityNormal
	d.Requires = []string{"ai"}
	d.MaxRetries = 2
	d.Timeout = 2 * time.Minute
	platform.MustRegisterDescriptor(d)
}
