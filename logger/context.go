package logger

import (
	"context"
)

// contextKey is a private type for context keys to avoid collisions.
type contextKey string

// Context keys for common logging fields. Values stored under these keys are
// automatically extracted and added to log entries by ContextHandler.
const (
	// ContextKeySessionID identifies the client session.
	ContextKeySessionID contextKey = "session_id"

	// ContextKeyRequestID identifies an individual frame/request cycle.
	ContextKeyRequestID contextKey = "request_id"

	// ContextKeyChannel identifies the delivery channel ("ws" or "http").
	ContextKeyChannel contextKey = "channel"

	// ContextKeyModel identifies the upstream model in use.
	ContextKeyModel contextKey = "model"
)

// allContextKeys lists all context keys that should be extracted for logging.
var allContextKeys = []contextKey{
	ContextKeySessionID,
	ContextKeyRequestID,
	ContextKeyChannel,
	ContextKeyModel,
}

// WithSessionID returns a new context with the session ID set.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, ContextKeySessionID, sessionID)
}

// WithRequestID returns a new context with the request ID set.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// WithChannel returns a new context with the delivery channel set.
func WithChannel(ctx context.Context, channel string) context.Context {
	return context.WithValue(ctx, ContextKeyChannel, channel)
}

// WithModel returns a new context with the model name set.
func WithModel(ctx context.Context, model string) context.Context {
	return context.WithValue(ctx, ContextKeyModel, model)
}
