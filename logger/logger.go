// Package logger provides structured logging with automatic credential redaction.
//
// This package wraps Go's standard log/slog with convenience functions for:
//   - Upstream inference call logging (requests, responses, errors)
//   - Automatic API key and bearer token redaction
//   - Contextual logging with session and request tracing
//   - Level-based verbosity control
//
// All exported functions use the global DefaultLogger which can be configured
// for different output formats and log levels.
package logger

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"regexp"
	"strings"
)

var (
	// DefaultLogger is the global structured logger instance.
	// It is safe for concurrent use and initialized with slog.LevelInfo by default.
	DefaultLogger *slog.Logger

	// logOutput is where log records are written. Overridable for tests.
	logOutput io.Writer = os.Stderr
)

func init() {
	initLogger(levelFromEnv(), false)
}

// levelFromEnv reads LOG_LEVEL and maps it to a slog level, defaulting to info.
func levelFromEnv() slog.Level {
	if envLevel := os.Getenv("LOG_LEVEL"); envLevel != "" {
		return ParseLevel(envLevel)
	}
	return slog.LevelInfo
}

// ParseLevel converts a level name to a slog.Level. Unknown names map to info.
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func initLogger(level slog.Level, useJSON bool, commonFields ...slog.Attr) {
	opts := &slog.HandlerOptions{Level: level}

	var base slog.Handler
	if useJSON {
		base = slog.NewJSONHandler(logOutput, opts)
	} else {
		base = slog.NewTextHandler(logOutput, opts)
	}

	DefaultLogger = slog.New(NewContextHandler(base, commonFields...))
	slog.SetDefault(DefaultLogger)
}

// SetLevel changes the logging level for all subsequent log operations.
// This is safe for concurrent use as it replaces the entire logger instance.
func SetLevel(level slog.Level) {
	initLogger(level, false)
}

// Configure applies logging settings from the gateway configuration.
func Configure(level, format string, commonFields map[string]string) {
	attrs := make([]slog.Attr, 0, len(commonFields))
	for k, v := range commonFields {
		attrs = append(attrs, slog.String(k, v))
	}
	initLogger(ParseLevel(level), format == "json", attrs...)
}

// Info logs an informational message with structured key-value attributes.
// Args should be provided in key-value pairs: key1, value1, key2, value2, ...
func Info(msg string, args ...any) {
	DefaultLogger.Info(msg, args...)
}

// InfoContext logs an informational message with context and structured attributes.
func InfoContext(ctx context.Context, msg string, args ...any) {
	DefaultLogger.InfoContext(ctx, msg, args...)
}

// Debug logs a debug-level message with structured attributes.
// Debug messages are only output when the log level is set to LevelDebug or lower.
func Debug(msg string, args ...any) {
	DefaultLogger.Debug(msg, args...)
}

// DebugContext logs a debug message with context and structured attributes.
func DebugContext(ctx context.Context, msg string, args ...any) {
	DefaultLogger.DebugContext(ctx, msg, args...)
}

// Warn logs a warning message with structured attributes.
// Use for recoverable errors or unexpected but non-critical situations.
func Warn(msg string, args ...any) {
	DefaultLogger.Warn(msg, args...)
}

// WarnContext logs a warning message with context and structured attributes.
func WarnContext(ctx context.Context, msg string, args ...any) {
	DefaultLogger.WarnContext(ctx, msg, args...)
}

// Error logs an error message with structured attributes.
// Use for errors that affect operation but don't cause complete failure.
func Error(msg string, args ...any) {
	DefaultLogger.Error(msg, args...)
}

// ErrorContext logs an error message with context and structured attributes.
func ErrorContext(ctx context.Context, msg string, args ...any) {
	DefaultLogger.ErrorContext(ctx, msg, args...)
}

// RelayCall logs an upstream inference call with structured fields for observability.
// Additional attributes can be passed as key-value pairs after the required parameters.
func RelayCall(model, sessionID string, frameBytes int, attrs ...any) {
	allAttrs := make([]any, 0, 6+len(attrs))
	allAttrs = append(allAttrs,
		"model", model,
		"session_id", sessionID,
		"frame_bytes", frameBytes,
	)
	allAttrs = append(allAttrs, attrs...)
	Info("🤖 Inference Call", allAttrs...)
}

// RelayResponse logs a completed upstream inference response.
func RelayResponse(model, sessionID string, chars int, empty bool, attrs ...any) {
	allAttrs := make([]any, 0, 8+len(attrs))
	allAttrs = append(allAttrs,
		"model", model,
		"session_id", sessionID,
		"chars", chars,
		"empty", empty,
	)
	allAttrs = append(allAttrs, attrs...)
	Info("✅ Inference Response", allAttrs...)
}

// RelayError logs an upstream inference failure for debugging and monitoring.
func RelayError(model, sessionID string, err error, attrs ...any) {
	allAttrs := make([]any, 0, 6+len(attrs))
	allAttrs = append(allAttrs,
		"model", model,
		"session_id", sessionID,
		"error", err,
	)
	allAttrs = append(allAttrs, attrs...)
	Error("❌ Inference Call Failed", allAttrs...)
}

var (
	// apiKeyPatterns contains compiled regular expressions for detecting sensitive data.
	// Patterns match common API key formats.
	apiKeyPatterns = []*regexp.Regexp{
		regexp.MustCompile(`sk-[a-zA-Z0-9]{32,}`),     // OpenAI-style API keys
		regexp.MustCompile(`Bearer\s+[a-zA-Z0-9_-]+`), // Bearer tokens
	}
)

// RedactSensitiveData removes API keys and other sensitive information from strings.
// It replaces matched patterns with a redacted form that preserves the first few
// characters for debugging while hiding the sensitive portion.
//
// This function is safe for concurrent use as it only reads from the compiled patterns.
func RedactSensitiveData(input string) string {
	result := input

	for _, pattern := range apiKeyPatterns {
		result = pattern.ReplaceAllStringFunc(result, func(match string) string {
			if strings.HasPrefix(match, "Bearer ") {
				return "Bearer [REDACTED]"
			}
			if len(match) > 8 {
				return match[:4] + "...[REDACTED]"
			}
			return "[REDACTED]"
		})
	}

	return result
}

// APIRequest logs HTTP API request details at debug level with automatic redaction.
// This function is a no-op when debug logging is disabled for performance.
// Sensitive data in URL, headers, and body are automatically redacted.
func APIRequest(method, url string, headers map[string]string, body interface{}) {
	if !DefaultLogger.Enabled(context.Background(), slog.LevelDebug) {
		return
	}

	attrs := make([]any, 0, 6)
	attrs = append(attrs,
		"method", method,
		"url", RedactSensitiveData(url),
	)

	if len(headers) > 0 {
		redactedHeaders := make(map[string]string, len(headers))
		for key, value := range headers {
			redactedHeaders[key] = RedactSensitiveData(value)
		}
		attrs = append(attrs, "headers", redactedHeaders)
	}

	if body != nil {
		bodyJSON, err := json.Marshal(body)
		if err != nil {
			attrs = append(attrs, "body_error", err.Error())
		} else {
			attrs = append(attrs, "body", RedactSensitiveData(string(bodyJSON)))
		}
	}

	Debug("🔵 API Request", attrs...)
}

// APIResponse logs HTTP API response details at debug level with automatic redaction.
// This function is a no-op when debug logging is disabled for performance.
// Status codes are logged with emoji indicators: 🟢 (2xx), 🟡 (3xx), 🔴 (4xx/5xx).
func APIResponse(statusCode int, body string, err error) {
	if !DefaultLogger.Enabled(context.Background(), slog.LevelDebug) {
		return
	}

	attrs := make([]any, 0, 4)
	attrs = append(attrs, "status_code", statusCode)

	if err != nil {
		attrs = append(attrs, "error", err.Error())
		Error("🔴 API Response Error", attrs...)
		return
	}

	var emoji string
	switch {
	case statusCode >= 200 && statusCode < 300:
		emoji = "🟢"
	case statusCode >= 400:
		emoji = "🔴"
	default:
		emoji = "🟡"
	}

	if body != "" {
		attrs = append(attrs, "body", RedactSensitiveData(body))
	}

	Debug(emoji+" API Response", attrs...)
}
