package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/aibtcdev/daoctl/internal/platform"
)

// QueueRelayJobType counts pending queuestore rows for the job_types in
// relayedJobTypes and reports the total as its items-processed count, so
// the backlog shows up in the metrics snapshot without the excluded HTTP
// surface; it writes no log entry of its own. Named with
// the "_monitor" suffix so the governor's DefaultMonitoringSet (§4.4)
// treats it as a monitoring type: a stuck relay tick is never allowed to
// stack behind a prior one.
const QueueRelayJobType = "queue_relay_monitor"

// relayedJobTypes are the queue-processing job_types queue_relay_monitor
// reports backlog for.
var relayedJobTypes = []string{ProposalFilingJobType, SocialDigestJobType}

type queueRelayTask struct{}

func (queueRelayTask) Validate(_ context.Context, _ *platform.Invocation) (bool, string) {
	if queueStore == nil {
		return false, "queue store not configured"
	}
	return true, ""
}

func (queueRelayTask) Execute(ctx context.Context, _ *platform.Invocation) (int, error) {
	var total int
	for _, jobType := range relayedJobTypes {
		n, err := queueStore.CountPendingByType(ctx, jobType)
		if err != nil {
			return total, fmt.Errorf("tasks: queue_relay_monitor: count %s: %w", jobType, err)
		}
		total += n
	}
	return total, nil
}

func init() {
	d := platform.NewTaskDescriptor(QueueRelayJobType, queueRelayTask{})
	d.DisplayName = "Queue Backlog Relay"
	d.Description = "Reports pending queuestore backlog across queue-processing job types."
	d.Interval = 30 * time.Second
	d.Priority = platform.PriorityLow
	d.Requires = []string{"queue"}
	d.Idempotent = true
	platform.MustRegisterDescriptor(d)
}
