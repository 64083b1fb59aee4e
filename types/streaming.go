package types

import "strings"

// StreamChunk represents one increment of a streamed completion with metadata.
type StreamChunk struct {
	// Content is the accumulated content so far.
	Content string `json:"content"`

	// Delta is the new content in this chunk.
	Delta string `json:"delta"`

	// FinishReason is nil until the stream is complete.
	// Values: "stop", "error", "cancelled".
	FinishReason *string `json:"finish_reason,omitempty"`

	// Error is set if an error occurred during streaming. When set, the chunk
	// is the final one on the channel.
	Error error `json:"error,omitempty"`
}

// Final reports whether this is the terminal chunk of a stream.
func (c StreamChunk) Final() bool {
	return c.FinishReason != nil || c.Error != nil
}

// Result converts a terminal chunk's accumulated content into an
// InferenceResult, applying the whitespace-only suppression rule.
func (c StreamChunk) Result() InferenceResult {
	trimmed := strings.TrimSpace(c.Content)
	return InferenceResult{
		Text:       trimmed,
		HasContent: trimmed != "",
	}
}

// Stream finish reasons.
const (
	FinishReasonStop      = "stop"
	FinishReasonError     = "error"
	FinishReasonCancelled = "cancelled"
)

// StringPtr returns a pointer to the given string.
func StringPtr(s string) *string {
	return &s
}
