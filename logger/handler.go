package logger

import (
	"context"
	"log/slog"
)

// ContextHandler wraps a slog.Handler and enriches records with values stored
// in the context (session ID, request ID, channel, model) plus any common
// fields configured at startup.
type ContextHandler struct {
	inner        slog.Handler
	commonFields []slog.Attr
}

// NewContextHandler creates a handler that extracts logging fields from the
// context and appends the given common fields to every record.
func NewContextHandler(inner slog.Handler, commonFields ...slog.Attr) *ContextHandler {
	return &ContextHandler{
		inner:        inner,
		commonFields: commonFields,
	}
}

// Enabled reports whether the inner handler handles records at the given level.
func (h *ContextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle enriches the record with context values and common fields.
func (h *ContextHandler) Handle(ctx context.Context, record slog.Record) error {
	for _, key := range allContextKeys {
		if v := ctx.Value(key); v != nil {
			if s, ok := v.(string); ok && s != "" {
				record.AddAttrs(slog.String(string(key), s))
			}
		}
	}

	record.AddAttrs(h.commonFields...)

	return h.inner.Handle(ctx, record)
}

// WithAttrs returns a new handler with the given attributes added.
func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ContextHandler{
		inner:        h.inner.WithAttrs(attrs),
		commonFields: h.commonFields,
	}
}

// WithGroup returns a new handler with the given group name.
func (h *ContextHandler) WithGroup(name string) slog.Handler {
	return &ContextHandler{
		inner:        h.inner.WithGroup(name),
		commonFields: h.commonFields,
	}
}
