package platform

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ApplyOverlay reads, for every registered descriptor, the conventional
// keys "<JOB_TYPE>_ENABLED" and "<JOB_TYPE>_INTERVAL_SECONDS" (both
// upper-cased) from src, plus the "_RUNNER_" alias
// ("<JOB_TYPE>_RUNNER_ENABLED" / "<JOB_TYPE>_RUNNER_INTERVAL_SECONDS"), and
// overrides the corresponding descriptor field. It must run before
// FinalizeDiscovery. Invalid values are reported as
// ErrConfigOverrideInvalid and the platform refuses to start.
func ApplyOverlay(r *TaskRegistry, src ConfigSource) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return fmt.Errorf("%w: overlay applied after freeze", ErrRegistryFrozen)
	}

	for _, jt := range r.order {
		d := r.descs[jt]
		prefix := strings.ToUpper(jt)

		if v, ok := firstPresent(src, prefix+"_ENABLED", prefix+"_RUNNER_ENABLED"); ok {
			enabled, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("%w: %s_ENABLED=%q: %v", ErrConfigOverrideInvalid, prefix, v, err)
			}
			d.Enabled = enabled
		}

		if v, ok := firstPresent(src, prefix+"_INTERVAL_SECONDS", prefix+"_RUNNER_INTERVAL_SECONDS"); ok {
			secs, err := strconv.Atoi(v)
			if err != nil || secs < 0 {
				return fmt.Errorf("%w: %s_INTERVAL_SECONDS=%q must be a non-negative integer", ErrConfigOverrideInvalid, prefix, v)
			}
			d.Interval = time.Duration(secs) * time.Second
		}
	}
	return nil
}

func firstPresent(src ConfigSource, keys ...string) (string, bool) {
	for _, k := range keys {
		if v, ok := src.GetString(k); ok {
			return v, true
		}
	}
	return "", false
}
