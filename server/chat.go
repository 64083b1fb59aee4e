package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/AltairaLabs/SightRelay/logger"
	"github.com/AltairaLabs/SightRelay/media"
	"github.com/AltairaLabs/SightRelay/metrics"
	"github.com/AltairaLabs/SightRelay/types"
)

// chatRequest is the one-shot request body. At least one field is required.
type chatRequest struct {
	Message   string `json:"message,omitempty"`
	ImageData string `json:"imageData,omitempty"`
}

// chatEvent is one SSE data frame on the one-shot channel.
type chatEvent struct {
	Text      string `json:"text,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Error     string `json:"error,omitempty"`
}

// handleChat serves the one-shot channel: decode the request, normalize the
// optional image, relay upstream, and stream guidance chunks back as SSE.
// The one-shot channel has no session, so admission gates do not apply.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	ctx := logger.WithRequestID(r.Context(), uuid.NewString())
	ctx = logger.WithChannel(ctx, "http")

	r.Body = http.MaxBytesReader(w, r.Body, s.maxBodySize)

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Message == "" && req.ImageData == "" {
		writeJSONError(w, http.StatusBadRequest, "message or imageData is required")
		return
	}

	var frame *types.NormalizedFrame
	if req.ImageData != "" {
		metrics.RecordFrameReceived("http")

		normalized, err := s.normalizer.Normalize(req.ImageData)
		if err != nil {
			if errors.Is(err, media.ErrInvalidImage) {
				writeJSONError(w, http.StatusBadRequest, "invalid image data")
				return
			}
			writeJSONError(w, http.StatusInternalServerError, "image processing failed")
			return
		}
		metrics.RecordFrameAdmitted(normalized.Size, normalized.Degraded)
		frame = &normalized
	}

	start := time.Now()
	chunks, err := s.relay.Stream(ctx, frame, req.Message)
	if err != nil {
		logger.ErrorContext(ctx, "Upstream request failed", "error", err)
		metrics.RecordRelayRequest(s.relay.Model(), "error", time.Since(start).Seconds())
		writeJSONError(w, http.StatusBadGateway, err.Error())
		return
	}

	s.streamSSE(w, r, chunks, start)
}

// streamSSE forwards guidance chunks as SSE data frames. Each delta becomes
// one frame; the stream ends with [DONE], or an error frame on mid-stream
// failure so the client can distinguish truncation from completion.
func (s *Server) streamSSE(w http.ResponseWriter, r *http.Request, chunks <-chan types.StreamChunk, start time.Time) {
	ctx := r.Context()

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSONError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for chunk := range chunks {
		if chunk.Error != nil {
			logger.ErrorContext(ctx, "Upstream stream failed", "error", chunk.Error)
			metrics.RecordRelayRequest(s.relay.Model(), "error", time.Since(start).Seconds())
			writeSSEEvent(w, flusher, chatEvent{Error: chunk.Error.Error()})
			return
		}

		if chunk.Final() {
			if !chunk.Result().HasContent {
				metrics.RecordEmptyResponse()
			}
			metrics.RecordRelayRequest(s.relay.Model(), "success", time.Since(start).Seconds())
			fmt.Fprint(w, "data: [DONE]\n\n")
			flusher.Flush()
			return
		}

		if chunk.Delta != "" {
			writeSSEEvent(w, flusher, chatEvent{
				Text:      chunk.Delta,
				Timestamp: time.Now().UTC().Format(time.RFC3339),
			})
		}
	}
}

// writeSSEEvent writes one data frame and flushes it immediately.
func writeSSEEvent(w http.ResponseWriter, flusher http.Flusher, event chatEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", payload)
	flusher.Flush()
}

// writeJSONError writes a pre-stream failure as a JSON error body.
func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
