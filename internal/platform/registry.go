package platform

import (
	"fmt"
	"sort"
	"sync"
)

// TaskRegistry is the authoritative job_type -> descriptor mapping, built by
// a discovery pass at startup. It is immutable after FinalizeDiscovery.
type TaskRegistry struct {
	mu     sync.RWMutex
	descs  map[string]*TaskDescriptor
	frozen bool
	order  []string // insertion order, for deterministic discovery errors
	logger Logger
}

// NewTaskRegistry creates an empty, unfrozen registry.
func NewTaskRegistry(logger Logger) *TaskRegistry {
	return &TaskRegistry{
		descs:  make(map[string]*TaskDescriptor),
		logger: logger,
	}
}

// defaultRegistry backs the package-level MustRegisterDescriptor, giving
// internal/tasks' init() functions something to register against before
// main ever runs (spec §9 discovery note: "explicit registration list
// generated at an init phase"). Go guarantees internal/platform's
// package-level initialization completes before any importer's init()
// runs, so this is always non-nil by the time a task registers.
var defaultRegistry = NewTaskRegistry(nil)

// DefaultRegistry returns the package-level registry that
// MustRegisterDescriptor populates. cmd/daoctl-worker/main.go imports
// internal/tasks (whose init() functions register every task), applies the
// env overlay with ApplyOverlay, then calls FinalizeDiscovery.
func DefaultRegistry() *TaskRegistry {
	return defaultRegistry
}

// MustRegisterDescriptor registers d against the package-level default
// registry, panicking on failure. Intended to be called from an
// internal/tasks file's init().
func MustRegisterDescriptor(d TaskDescriptor) {
	defaultRegistry.MustRegister(d)
}

// SetLogger attaches a logger to an already-constructed registry, used to
// give the default registry real logging once main has one available
// (registration via init() necessarily happens before that).
func (r *TaskRegistry) SetLogger(logger Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logger = logger
}

// NewTaskDescriptor returns a descriptor with every field from
// RegistryDefaults pre-applied (enabled=true, priority=NORMAL,
// max_retries=3, retry_backoff_base=30s, timeout=5min, max_concurrent=1,
// batch_size=10, preserve_order=false, idempotent=true — spec §4.1), so a
// task source only needs to set the fields it cares about. This is the
// Go stand-in for the source's declarative annotation contract: there is
// no reflection-based discovery, just a constructor called from an init().
func NewTaskDescriptor(jobType string, task TaskImpl) TaskDescriptor {
	d := RegistryDefaults
	d.JobType = jobType
	d.Task = task
	return d
}

// Register adds a descriptor to the registry. Descriptors are expected to
// already carry their defaults (via NewTaskDescriptor); Register validates
// invariants only, it does not guess at unset fields.
func (r *TaskRegistry) Register(d TaskDescriptor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return fmt.Errorf("%w: %s", ErrRegistryFrozen, d.JobType)
	}
	if d.JobType == "" {
		return fmt.Errorf("%w: empty job_type", ErrInvalidDescriptor)
	}
	if _, exists := r.descs[d.JobType]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateJobType, d.JobType)
	}
	if d.Interval < 0 {
		return fmt.Errorf("%w: %s interval < 0", ErrInvalidDescriptor, d.JobType)
	}
	if d.MaxRetries < 0 {
		return fmt.Errorf("%w: %s max_retries < 0", ErrInvalidDescriptor, d.JobType)
	}
	if d.PreserveOrder {
		d.MaxConcurrent = 1
	}
	if d.MaxConcurrent < 1 {
		return fmt.Errorf("%w: %s max_concurrent < 1", ErrInvalidDescriptor, d.JobType)
	}

	cp := d
	r.descs[d.JobType] = &cp
	r.order = append(r.order, d.JobType)
	if r.logger != nil {
		r.logger.Info().Str("job_type", d.JobType).Msg("platform: task registered")
	}
	return nil
}

// MustRegister panics on registration failure; intended for task packages'
// init() functions, where a bad descriptor is a build-time programming
// error rather than a runtime condition.
func (r *TaskRegistry) MustRegister(d TaskDescriptor) {
	if err := r.Register(d); err != nil {
		panic(err)
	}
}

// FinalizeDiscovery validates cross-descriptor invariants (dependencies
// must resolve) and freezes the registry. No further Register calls
// succeed after this returns nil.
func (r *TaskRegistry) FinalizeDiscovery() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, jt := range r.order {
		d := r.descs[jt]
		for _, dep := range d.Dependencies {
			if _, ok := r.descs[dep]; !ok {
				return fmt.Errorf("%w: %s requires %s", ErrUnknownDependency, jt, dep)
			}
		}
	}
	r.frozen = true
	return nil
}

// IsFrozen reports whether FinalizeDiscovery has succeeded.
func (r *TaskRegistry) IsFrozen() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.frozen
}

// Get returns the descriptor for job_type, or ErrNotFound.
func (r *TaskRegistry) Get(jobType string) (*TaskDescriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.descs[jobType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, jobType)
	}
	return d, nil
}

// List returns a stable-sorted (by job_type) snapshot of all descriptors.
func (r *TaskRegistry) List() []*TaskDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*TaskDescriptor, 0, len(r.descs))
	for _, d := range r.descs {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JobType < out[j].JobType })
	return out
}

// setEnabled flips a descriptor's Enabled flag without re-registration.
// Safe post-freeze: Enabled is the one field the platform mutates in place,
// under the registry lock, since the Scheduler re-checks it on every tick.
func (r *TaskRegistry) setEnabled(jobType string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.descs[jobType]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, jobType)
	}
	d.Enabled = enabled
	return nil
}
