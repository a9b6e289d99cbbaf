package audit

import (
	"context"
	"time"
)

// NewNopLogger returns a Logger that discards every event. Used when the
// audit trail is disabled.
func NewNopLogger() Logger { return nopLogger{} }

type nopLogger struct{}

func (nopLogger) Log(context.Context, *Event) error { return nil }

func (nopLogger) LogRunStarted(context.Context, string, string) error { return nil }

func (nopLogger) LogRunCompleted(context.Context, string, time.Duration) error { return nil }

func (nopLogger) LogRunFailed(context.Context, string, error) error { return nil }

func (nopLogger) LogModelCall(context.Context, string, string, int, time.Duration, error) error {
	return nil
}

func (nopLogger) LogDecision(context.Context, string, string, float64, int) error { return nil }

func (nopLogger) LogRollbackSuggested(context.Context, string, float64, float64) error {
	return nil
}

func (nopLogger) LogConfigLoaded(context.Context, string) error { return nil }

func (nopLogger) Sync() error { return nil }

func (nopLogger) Close() error { return nil }
