package audit

import (
	"context"
)

// Logger is the audit backend interface.
type Logger interface {
	// Log records one event. OccurredAt is stamped by the backend when zero.
	Log(ctx context.Context, event *Event) error
	// Close flushes and releases the backend.
	Close() error
}

// noOpLogger discards all events.
type noOpLogger struct{}

// NewNoOpLogger returns a logger that drops every event.
func NewNoOpLogger() Logger {
	return &noOpLogger{}
}

func (l *noOpLogger) Log(ctx context.Context, event *Event) error { return nil }

func (l *noOpLogger) Close() error { return nil }

// MultiLogger fans out each event to several backends. The first error is
// returned but every backend is attempted.
type MultiLogger struct {
	loggers []Logger
}

// NewMultiLogger creates a fan-out logger.
func NewMultiLogger(loggers ...Logger) *MultiLogger {
	return &MultiLogger{loggers: loggers}
}

// Log sends the event to every backend.
func (m *MultiLogger) Log(ctx context.Context, event *Event) error {
	var firstErr error
	for _, l := range m.loggers {
		if err := l.Log(ctx, event); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Close closes every backend.
func (m *MultiLogger) Close() error {
	var firstErr error
	for _, l := range m.loggers {
		if err := l.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
