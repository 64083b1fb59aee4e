package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/AltairaLabs/SightRelay/admission"
	"github.com/AltairaLabs/SightRelay/logger"
	"github.com/AltairaLabs/SightRelay/media"
	"github.com/AltairaLabs/SightRelay/metrics"
	"github.com/AltairaLabs/SightRelay/session"
	"github.com/AltairaLabs/SightRelay/types"
)

const (
	// wsWriteWait bounds each outbound write.
	wsWriteWait = 10 * time.Second

	// wsPongWait is how long to wait for a pong before dropping the peer.
	wsPongWait = 60 * time.Second

	// wsPingInterval must be shorter than wsPongWait.
	wsPingInterval = 30 * time.Second
)

// Client event names on the persistent channel.
const (
	eventVideoFrame = "videoFrame"
	eventAIResponse = "aiResponse"
	eventError      = "error"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  64 << 10,
	WriteBufferSize: 64 << 10,
	// Browser clients connect from arbitrary origins; same policy as CORS.
	CheckOrigin: func(*http.Request) bool { return true },
}

// wsEnvelope frames every message on the persistent channel.
type wsEnvelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// videoFramePayload is the client's frame submission.
type videoFramePayload struct {
	Frame   string `json:"frame"`
	Message string `json:"message,omitempty"`
}

// aiResponsePayload carries one completed guidance message.
type aiResponsePayload struct {
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
}

// errorPayload carries a client-visible failure.
type errorPayload struct {
	Message string `json:"message"`
}

// wsClient is one connected peer. Writes are serialized through writeMu
// (gorilla/websocket requirement) since the read loop and the inference
// goroutine both emit events.
type wsClient struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	sess    *session.Session
}

func (c *wsClient) send(event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait)); err != nil {
		return err
	}
	return c.conn.WriteJSON(wsEnvelope{Event: event, Data: data})
}

func (c *wsClient) sendError(message string) {
	_ = c.send(eventError, errorPayload{Message: message})
}

// handleWebSocket runs one persistent session: upgrade, register, then read
// frames until the peer disconnects. Disconnection cancels any in-flight
// inference and tears the session down.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("WebSocket upgrade failed", "error", err)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sess := s.registry.Register(ctx)
	ctx = logger.WithSessionID(ctx, sess.ID())
	ctx = logger.WithChannel(ctx, "websocket")

	metrics.SessionOpened()
	logger.InfoContext(ctx, "Session connected")

	client := &wsClient{conn: conn, sess: sess}

	defer func() {
		cancel()
		_ = conn.Close()
		_ = s.registry.Unregister(context.WithoutCancel(ctx), sess.ID())
		metrics.SessionClosed()
		logger.InfoContext(ctx, "Session disconnected", "frames_seen", sess.FramesSeen())
	}()

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	go s.pingLoop(ctx, client)

	for {
		var env wsEnvelope
		if err := conn.ReadJSON(&env); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.DebugContext(ctx, "Read loop ended", "error", err)
			}
			return
		}

		switch env.Event {
		case eventVideoFrame:
			var payload videoFramePayload
			if err := json.Unmarshal(env.Data, &payload); err != nil {
				client.sendError("malformed videoFrame payload")
				continue
			}
			s.handleFrame(ctx, client, payload)
		default:
			client.sendError("unknown event: " + env.Event)
		}
	}
}

// pingLoop keeps the connection alive and detects dead peers.
func (s *Server) pingLoop(ctx context.Context, c *wsClient) {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.writeMu.Lock()
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			err := c.conn.WriteMessage(websocket.PingMessage, nil)
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// handleFrame runs the admission gates for one frame and, on admission,
// launches the normalize-and-relay phase. Admission bookkeeping happens
// synchronously on the read loop, so no two checks for this session
// interleave; the network phase runs in a goroutine, serialized to one
// in-flight inference per session.
func (s *Server) handleFrame(ctx context.Context, c *wsClient, payload videoFramePayload) {
	metrics.RecordFrameReceived("websocket")

	if payload.Frame == "" {
		c.sendError("videoFrame requires a frame")
		return
	}

	frame := types.Frame{
		Data:       payload.Frame,
		Prompt:     payload.Message,
		ReceivedAt: time.Now(),
	}

	decision := s.registry.CheckFrame(ctx, c.sess, frame)
	switch decision {
	case admission.RejectedInterval:
		metrics.RecordFrameRejected(decision.String())
		return // silent: expected steady-state at high frame rates
	case admission.RejectedQuota:
		metrics.RecordFrameRejected(decision.String())
		logger.WarnContext(ctx, "Frame rejected by quota gate")
		c.sendError("rate limit exceeded, please slow down")
		return
	case admission.Admitted:
	}

	if !c.sess.TryBeginInference() {
		// Previous admitted frame is still streaming; keep responses in
		// order by dropping this one.
		logger.DebugContext(ctx, "Dropping frame, inference in flight")
		return
	}

	go func() {
		defer c.sess.EndInference()
		s.relayFrame(ctx, c, frame)
	}()
}

// relayFrame normalizes an admitted frame, streams the upstream completion,
// and delivers the full guidance text as a single aiResponse event.
func (s *Server) relayFrame(ctx context.Context, c *wsClient, frame types.Frame) {
	normalized, err := s.normalizer.Normalize(frame.Data)
	if err != nil {
		if errors.Is(err, media.ErrInvalidImage) {
			c.sendError("invalid image data")
			return
		}
		logger.ErrorContext(ctx, "Frame normalization failed", "error", err)
		c.sendError("image processing failed")
		return
	}
	metrics.RecordFrameAdmitted(normalized.Size, normalized.Degraded)

	start := time.Now()
	chunks, err := s.relay.Stream(ctx, &normalized, frame.Prompt)
	if err != nil {
		metrics.RecordRelayRequest(s.relay.Model(), "error", time.Since(start).Seconds())
		c.sendError(err.Error())
		return
	}

	for chunk := range chunks {
		if !chunk.Final() {
			continue // persistent channel delivers complete messages only
		}

		if chunk.Error != nil {
			if ctx.Err() != nil {
				// Peer is gone; discard the partial result.
				metrics.RecordRelayRequest(s.relay.Model(), "cancelled", time.Since(start).Seconds())
				return
			}
			metrics.RecordRelayRequest(s.relay.Model(), "error", time.Since(start).Seconds())
			c.sendError(chunk.Error.Error())
			return
		}

		metrics.RecordRelayRequest(s.relay.Model(), "success", time.Since(start).Seconds())

		result := chunk.Result()
		if !result.HasContent {
			// The model reported nothing noteworthy; no message delivered.
			metrics.RecordEmptyResponse()
			return
		}

		_ = c.send(eventAIResponse, aiResponsePayload{
			Text:      result.Text,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		})
	}
}
