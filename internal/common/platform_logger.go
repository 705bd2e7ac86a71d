package common

import (
	"time"

	"github.com/ternarybob/arbor"

	"github.com/aibtcdev/daoctl/internal/platform"
)

// platformLogEvent adapts arbor.ILogEvent to the platform.LogEvent port.
type platformLogEvent struct {
	ev arbor.ILogEvent
}

func (e platformLogEvent) Str(key, value string) platform.LogEvent {
	return platformLogEvent{ev: e.ev.Str(key, value)}
}

func (e platformLogEvent) Int(key string, value int) platform.LogEvent {
	return platformLogEvent{ev: e.ev.Int(key, value)}
}

func (e platformLogEvent) Dur(key string, value time.Duration) platform.LogEvent {
	return platformLogEvent{ev: e.ev.Dur(key, value)}
}

func (e platformLogEvent) Err(err error) platform.LogEvent {
	return platformLogEvent{ev: e.ev.Err(err)}
}

func (e platformLogEvent) Msg(msg string) {
	e.ev.Msg(msg)
}

// PlatformLogger adapts *Logger (arbor-backed) to the platform.Logger port
// consumed by the job execution platform.
type PlatformLogger struct {
	l *Logger
}

// NewPlatformLogger wraps l for use as a platform.Logger.
func NewPlatformLogger(l *Logger) *PlatformLogger {
	return &PlatformLogger{l: l}
}

func (p *PlatformLogger) Debug() platform.LogEvent {
	return platformLogEvent{ev: p.l.ILogger.Debug()}
}

func (p *PlatformLogger) Info() platform.LogEvent {
	return platformLogEvent{ev: p.l.ILogger.Info()}
}

func (p *PlatformLogger) Warn() platform.LogEvent {
	return platformLogEvent{ev: p.l.ILogger.Warn()}
}

func (p *PlatformLogger) Error() platform.LogEvent {
	return platformLogEvent{ev: p.l.ILogger.Error()}
}

// Critical maps to arbor's Error level plus a marker field: an internal
// platform-invariant violation should surface loudly and flip the health
// snapshot to unhealthy, but it must never call os.Exit the way arbor's own
// Fatal() does, so Fatal is deliberately not used here.
func (p *PlatformLogger) Critical() platform.LogEvent {
	ev := platformLogEvent{ev: p.l.ILogger.Error()}
	return ev.Str("severity", "critical")
}
