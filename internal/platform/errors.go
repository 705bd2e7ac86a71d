package platform

import "errors"

// Startup errors — surfaced to the caller of Manager.Start; the platform is
// left in a safe "not started" state.
var (
	ErrDuplicateJobType     = errors.New("platform: duplicate job_type")
	ErrInvalidDescriptor    = errors.New("platform: invalid descriptor")
	ErrUnknownDependency    = errors.New("platform: unknown dependency")
	ErrConfigOverrideInvalid = errors.New("platform: invalid config override")
	ErrRegistryFrozen       = errors.New("platform: registry already frozen")
	ErrStartupFailed        = errors.New("platform: startup failed")
)

// Enqueue errors — returned synchronously from Manager.Enqueue.
var (
	ErrNotRunning     = errors.New("platform: not running")
	ErrShutdown       = errors.New("platform: shut down")
	ErrNotFound       = errors.New("platform: job_type not found")
	ErrDisabled       = errors.New("platform: job_type disabled")
	ErrPayloadTooLarge = errors.New("platform: payload too large")
)

// ErrClosed is returned by PriorityQueue.Pop once the queue has been closed
// and drained.
var ErrClosed = errors.New("platform: queue closed")
