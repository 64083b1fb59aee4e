// Package types defines the shared data types that flow through the
// admission, normalization, and relay pipeline.
package types

import "time"

// Frame is a single inference request unit as received from a client.
// It is transient: it exists only for one admission + normalize + relay cycle
// and is never persisted.
type Frame struct {
	// Data is the raw frame payload, base64-encoded, optionally carrying a
	// data-URI prefix as sent by browser clients.
	Data string

	// Prompt is the optional text accompanying the frame.
	Prompt string

	// ReceivedAt is the arrival timestamp.
	ReceivedAt time.Time
}

// NormalizedFrame is a Frame after bounded re-encode. Width and height never
// exceed the configured bounds and the payload is always JPEG.
type NormalizedFrame struct {
	// Data is the re-encoded payload, base64-encoded for transport.
	Data string

	// MIMEType is the declared media type of Data. Always image/jpeg after
	// normalization.
	MIMEType string

	// Width and Height are the dimensions of the encoded image. Zero when the
	// normalizer passed the original payload through unmodified.
	Width  int
	Height int

	// Size is the decoded payload size in bytes.
	Size int64

	// Degraded is true when normalization failed on corrupt-but-present data
	// and the original payload was passed through unmodified.
	Degraded bool
}

// InferenceResult is the accumulated text from one streamed completion.
type InferenceResult struct {
	// Text is the trimmed concatenation of all content deltas.
	Text string

	// HasContent is false when the stream completed with empty or
	// whitespace-only output. An empty completion is not an error: it means
	// the model reported nothing noteworthy.
	HasContent bool
}
