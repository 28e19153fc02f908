// Package logging defines the minimal structured-logging interface used
// across the service. The concrete implementation wraps slog.
package logging

import "context"

// Logger is a context-aware, structured logger. Variadic args are
// key-value pairs:
//
//	log.Info(ctx, "user logged in", "user_id", id)
type Logger interface {
	// Debug logs a message useful only when diagnosing problems.
	Debug(ctx context.Context, msg string, args ...any)

	// Info logs an informational message.
	Info(ctx context.Context, msg string, args ...any)

	// Warn logs unusual but non-fatal conditions.
	Warn(ctx context.Context, msg string, args ...any)

	// Error logs failures.
	Error(ctx context.Context, msg string, args ...any)

	// With returns a child logger that always includes the given
	// key-value pairs.
	With(args ...any) Logger
}
