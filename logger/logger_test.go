package logger

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

// captureOutput redirects log output to a buffer for the duration of fn.
func captureOutput(t *testing.T, level slog.Level, fn func()) string {
	t.Helper()
	var buf bytes.Buffer
	origOutput := logOutput
	origLogger := DefaultLogger
	logOutput = &buf
	defer func() {
		logOutput = origOutput
		DefaultLogger = origLogger
	}()
	initLogger(level, false)
	fn()
	return buf.String()
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
		"":        slog.LevelInfo,
	}
	for name, want := range cases {
		if got := ParseLevel(name); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestRedactSensitiveData_OpenAIKey(t *testing.T) {
	input := "using key sk-rvgkaxqeyvhulcciizkmavnexduidivmbhwgroohpjfeaegn for auth"
	result := RedactSensitiveData(input)

	if strings.Contains(result, "rvgkaxqeyvhulcciizkm") {
		t.Errorf("API key not redacted: %s", result)
	}
	if !strings.Contains(result, "[REDACTED]") {
		t.Errorf("expected redaction marker in: %s", result)
	}
}

func TestRedactSensitiveData_BearerToken(t *testing.T) {
	result := RedactSensitiveData("Authorization: Bearer abc123def456")
	if strings.Contains(result, "abc123def456") {
		t.Errorf("bearer token not redacted: %s", result)
	}
	if !strings.Contains(result, "Bearer [REDACTED]") {
		t.Errorf("expected Bearer redaction in: %s", result)
	}
}

func TestRedactSensitiveData_CleanInput(t *testing.T) {
	input := "no secrets here"
	if got := RedactSensitiveData(input); got != input {
		t.Errorf("clean input modified: %s", got)
	}
}

func TestContextHandler_AddsSessionFields(t *testing.T) {
	out := captureOutput(t, slog.LevelInfo, func() {
		ctx := WithSessionID(context.Background(), "sess-42")
		ctx = WithChannel(ctx, "ws")
		InfoContext(ctx, "frame admitted")
	})

	if !strings.Contains(out, "session_id=sess-42") {
		t.Errorf("missing session_id in output: %s", out)
	}
	if !strings.Contains(out, "channel=ws") {
		t.Errorf("missing channel in output: %s", out)
	}
}

func TestAPIRequest_NoopWhenDebugDisabled(t *testing.T) {
	out := captureOutput(t, slog.LevelInfo, func() {
		APIRequest("POST", "https://api.example.com/v1/chat/completions",
			map[string]string{"Authorization": "Bearer secret"}, nil)
	})
	if out != "" {
		t.Errorf("expected no output at info level, got: %s", out)
	}
}

func TestAPIRequest_RedactsAtDebug(t *testing.T) {
	out := captureOutput(t, slog.LevelDebug, func() {
		APIRequest("POST", "https://api.example.com/v1/chat/completions",
			map[string]string{"Authorization": "Bearer supersecrettoken"}, nil)
	})
	if strings.Contains(out, "supersecrettoken") {
		t.Errorf("credential leaked into log output: %s", out)
	}
}

func TestConfigure_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	origOutput := logOutput
	origLogger := DefaultLogger
	logOutput = &buf
	defer func() {
		logOutput = origOutput
		DefaultLogger = origLogger
	}()

	Configure("info", "json", map[string]string{"service": "sightrelay"})
	Info("started")

	out := buf.String()
	if !strings.Contains(out, `"service":"sightrelay"`) {
		t.Errorf("common field missing from JSON output: %s", out)
	}
	if !strings.HasPrefix(strings.TrimSpace(out), "{") {
		t.Errorf("expected JSON output, got: %s", out)
	}
}
