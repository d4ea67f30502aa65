package global

import (
	"context"
)

type ContextKey uint

const (
	CancelKey ContextKey = iota
	VersionKey
)

func Version(ctx context.Context) string {
	if version, ok := ctx.Value(VersionKey).(string); ok {
		return version
	}
	return "unknown"
}

// Cancel cancels the process-wide context, as set up by the command line.
func Cancel(ctx context.Context) {
	if cancel, ok := ctx.Value(CancelKey).(context.CancelFunc); ok {
		cancel()
	}
}
