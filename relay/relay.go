// Package relay forwards admitted frames to an OpenAI-compatible
// vision chat-completion endpoint and streams the guidance text back.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/AltairaLabs/SightRelay/logger"
	"github.com/AltairaLabs/SightRelay/types"
)

const (
	chatCompletionsPath = "/chat/completions"

	contentTypeHeader   = "Content-Type"
	authorizationHeader = "Authorization"
	applicationJSON     = "application/json"
	bearerPrefix        = "Bearer "
)

// DefaultSystemPrompt instructs the model to answer as a sighted assistant.
const DefaultSystemPrompt = "You are an assistive vision guide. Describe what the camera sees " +
	"concisely and concretely, prioritizing hazards, obstacles, text, and " +
	"anything the user asked about. Answer in short sentences."

// Config configures a Relay.
type Config struct {
	// BaseURL is the OpenAI-compatible API root, without trailing slash.
	BaseURL string

	// APIKey is sent as a bearer token on every request.
	APIKey string

	// Model is the vision model identifier.
	Model string

	// SystemPrompt overrides DefaultSystemPrompt when non-empty.
	SystemPrompt string

	// DefaultUserPrompt is used when a frame arrives without a prompt.
	DefaultUserPrompt string

	// Timeout bounds each upstream request, covering the full stream.
	Timeout time.Duration
}

// Relay holds the upstream connection settings. Safe for concurrent use.
type Relay struct {
	cfg    Config
	client *http.Client
	tracer trace.Tracer
}

// New creates a Relay. The HTTP client carries otel instrumentation so
// upstream spans nest under the serving request's trace.
func New(cfg Config) *Relay {
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = DefaultSystemPrompt
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &Relay{
		cfg: cfg,
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		tracer: otel.Tracer("sightrelay/relay"),
	}
}

// Model returns the configured model identifier.
func (r *Relay) Model() string {
	return r.cfg.Model
}

// chatMessage is one turn in the upstream request. Content is either a plain
// string or a list of typed parts for multimodal turns.
type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

// contentPart is one element of a multimodal user turn.
type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

// streamChunk mirrors the upstream SSE delta payload.
type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
}

// Stream sends one turn upstream and returns a channel of guidance chunks.
// Frame may be nil for text-only turns. The channel is closed after the
// terminal chunk; a mid-stream failure arrives as a chunk with Error set.
// Request construction or HTTP-level failures are returned synchronously
// instead.
func (r *Relay) Stream(ctx context.Context, frame *types.NormalizedFrame, prompt string) (<-chan types.StreamChunk, error) {
	attrs := []attribute.KeyValue{
		attribute.String("model", r.cfg.Model),
	}
	var frameBytes int64
	if frame != nil {
		frameBytes = frame.Size
		attrs = append(attrs,
			attribute.Int64("frame.bytes", frame.Size),
			attribute.Bool("frame.degraded", frame.Degraded),
		)
	}
	ctx, span := r.tracer.Start(ctx, "relay.Stream", trace.WithAttributes(attrs...))

	if prompt == "" {
		prompt = r.cfg.DefaultUserPrompt
	}

	body, err := json.Marshal(r.buildRequest(frame, prompt))
	if err != nil {
		span.End()
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := r.cfg.BaseURL + chatCompletionsPath
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		span.End()
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set(contentTypeHeader, applicationJSON)
	httpReq.Header.Set(authorizationHeader, bearerPrefix+r.cfg.APIKey)
	httpReq.Header.Set("Accept", "text/event-stream")

	logger.APIRequest(http.MethodPost, url, map[string]string{
		authorizationHeader: bearerPrefix + r.cfg.APIKey,
	}, nil)
	logger.RelayCall(r.cfg.Model, sessionIDFromContext(ctx), int(frameBytes))

	resp, err := r.client.Do(httpReq) //nolint:bodyclose // closed in streamResponse
	if err != nil {
		span.End()
		logger.RelayError(r.cfg.Model, sessionIDFromContext(ctx), err)
		return nil, fmt.Errorf("upstream request failed: %w", err)
	}

	if err := checkHTTPError(resp, url); err != nil {
		span.End()
		logger.RelayError(r.cfg.Model, sessionIDFromContext(ctx), err)
		return nil, err
	}

	out := make(chan types.StreamChunk)
	go r.streamResponse(ctx, span, resp.Body, out)
	return out, nil
}

// buildRequest assembles the chat-completion payload: a fixed system turn
// and one user turn carrying the frame as an image part plus the prompt text.
// Without a frame the user turn is plain text.
func (r *Relay) buildRequest(frame *types.NormalizedFrame, prompt string) map[string]any {
	var userContent any = prompt
	if frame != nil {
		dataURI := fmt.Sprintf("data:%s;base64,%s", frame.MIMEType, frame.Data)
		userContent = []contentPart{
			{Type: "image_url", ImageURL: &imageURL{URL: dataURI}},
			{Type: "text", Text: prompt},
		}
	}

	return map[string]any{
		"model": r.cfg.Model,
		"messages": []chatMessage{
			{Role: "system", Content: r.cfg.SystemPrompt},
			{Role: "user", Content: userContent},
		},
		"stream": true,
	}
}

// streamResponse reads the SSE stream and forwards guidance chunks. Always
// sends exactly one terminal chunk (FinishReason set) and closes the channel.
func (r *Relay) streamResponse(ctx context.Context, span trace.Span, body io.ReadCloser, out chan<- types.StreamChunk) {
	defer close(out)
	defer body.Close()
	defer span.End()

	sessionID := sessionIDFromContext(ctx)
	scanner := newSSEScanner(body)
	accumulated := ""

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			out <- types.StreamChunk{
				Content:      accumulated,
				Error:        ctx.Err(),
				FinishReason: types.StringPtr(types.FinishReasonCancelled),
			}
			return
		default:
		}

		data := scanner.Data()
		if data == "[DONE]" {
			span.SetAttributes(attribute.Int("response.chars", len(accumulated)))
			logger.RelayResponse(r.cfg.Model, sessionID, len(accumulated), accumulated == "")
			out <- types.StreamChunk{
				Content:      accumulated,
				FinishReason: types.StringPtr(types.FinishReasonStop),
			}
			return
		}

		var chunk streamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			continue // Skip malformed chunks
		}
		if len(chunk.Choices) == 0 {
			continue
		}

		choice := chunk.Choices[0]
		if choice.Delta.Content != "" {
			accumulated += choice.Delta.Content
			out <- types.StreamChunk{
				Content: accumulated,
				Delta:   choice.Delta.Content,
			}
		}

		if choice.FinishReason != nil {
			logger.RelayResponse(r.cfg.Model, sessionID, len(accumulated), accumulated == "")
			out <- types.StreamChunk{
				Content:      accumulated,
				FinishReason: choice.FinishReason,
			}
			return
		}
	}

	// The upstream closed the stream without [DONE] or a finish reason.
	err := scanner.Err()
	if err == nil {
		err = io.ErrUnexpectedEOF
	}
	logger.RelayError(r.cfg.Model, sessionID, err)
	out <- types.StreamChunk{
		Content:      accumulated,
		Error:        fmt.Errorf("upstream stream interrupted: %w", err),
		FinishReason: types.StringPtr(types.FinishReasonError),
	}
}

// checkHTTPError converts a non-200 response into an error carrying the body.
func checkHTTPError(resp *http.Response, url string) error {
	if resp.StatusCode == http.StatusOK {
		return nil
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	logger.APIResponse(resp.StatusCode, string(body), nil)
	return fmt.Errorf("upstream request to %s failed with status %d: %s", url, resp.StatusCode, string(body))
}

// sessionIDFromContext extracts the session ID set by the serving layer.
func sessionIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(logger.ContextKeySessionID).(string); ok {
		return v
	}
	return ""
}
