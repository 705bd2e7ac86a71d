package tasks

import (
	"context"
	"time"

	"github.com/aibtcdev/daoctl/internal/platform"
)

// HeartbeatMonitorJobType is a trivial liveness probe: it always succeeds
// and exists so the platform's own health snapshot (§6) always has at
// least one recently-successful type to report even when every domain
// collaborator is unconfigured. Named with the "_monitor" suffix so the
// governor treats it as a monitoring type.
const HeartbeatMonitorJobType = "heartbeat_monitor"

type heartbeatMonitorTask struct{}

func (heartbeatMonitorTask) Validate(_ context.Context, _ *platform.Invocation) (bool, string) {
	return true, ""
}

func (heartbeatMonitorTask) Execute(_ context.Context, _ *platform.Invocation) (int, error) {
	return 1, nil
}

func init() {
	d := platform.NewTaskDescriptor(HeartbeatMonitorJobType, heartbeatMonitorTask{})
	d.DisplayName = "Heartbeat"
	d.Description = "Trivial liveness probe scheduled regardless of external collaborator configuration."
	d.Interval = 15 * time.Second
	d.Priority = platform.PriorityLow
	d.MaxRetries = 0
	d.Idempotent = true
	platform.MustRegisterDescriptor(d)
}
