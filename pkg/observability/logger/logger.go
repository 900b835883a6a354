// Package logger provides structured logging for the engine and its servers.
package logger

import (
	"context"
)

// Logger is the structured logging interface used across the module.
// All log methods accept a message string followed by key-value pairs.
type Logger interface {
	// Debug logs a debug-level message with optional key-value pairs
	Debug(msg string, args ...any)

	// Info logs an info-level message with optional key-value pairs
	Info(msg string, args ...any)

	// Warn logs a warning-level message with optional key-value pairs
	Warn(msg string, args ...any)

	// Error logs an error-level message with optional key-value pairs
	Error(msg string, args ...any)

	// With creates a child logger with additional key-value pairs that will be
	// included in all subsequent log entries
	With(args ...any) Logger

	// WithContext creates a child logger carrying correlation fields found in ctx
	WithContext(ctx context.Context) Logger
}

type contextKey string

const sessionIDKey contextKey = "session_id"

// ContextWithSessionID returns a context carrying the stream session id.
// Loggers derived via WithContext include it as the session_id field.
func ContextWithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionIDKey, sessionID)
}

// SessionIDFromContext returns the stream session id stored in ctx, if any.
func SessionIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if sessionID, ok := ctx.Value(sessionIDKey).(string); ok {
		return sessionID
	}
	return ""
}
