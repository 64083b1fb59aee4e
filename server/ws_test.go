package server

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// dialWS connects to a test gateway's WebSocket endpoint.
func dialWS(t *testing.T, httpURL string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(httpURL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("WebSocket dial failed: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func sendVideoFrame(t *testing.T, conn *websocket.Conn, frame, message string) {
	t.Helper()
	data, _ := json.Marshal(videoFramePayload{Frame: frame, Message: message})
	if err := conn.WriteJSON(wsEnvelope{Event: eventVideoFrame, Data: data}); err != nil {
		t.Fatalf("write failed: %v", err)
	}
}

// readEvent reads the next event, failing the test on timeout.
func readEvent(t *testing.T, conn *websocket.Conn, timeout time.Duration) wsEnvelope {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(timeout))
	var env wsEnvelope
	if err := conn.ReadJSON(&env); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	return env
}

// expectNoEvent asserts that nothing arrives within the window.
func expectNoEvent(t *testing.T, conn *websocket.Conn, window time.Duration) {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(window))
	var env wsEnvelope
	if err := conn.ReadJSON(&env); err == nil {
		t.Fatalf("unexpected event %q", env.Event)
	}
}

func TestWS_FrameProducesAIResponse(t *testing.T) {
	ts := newTestGateway(t, &upstreamBehavior{
		deltas: []string{"Stairs ", "going down ", "ahead."},
		done:   true,
	}, defaultGatewayOptions())

	conn := dialWS(t, ts.URL)
	sendVideoFrame(t, conn, encodeTestJPEG(t), "what do you see")

	env := readEvent(t, conn, 5*time.Second)
	if env.Event != eventAIResponse {
		t.Fatalf("event = %q, want %q", env.Event, eventAIResponse)
	}

	var payload aiResponsePayload
	if err := json.Unmarshal(env.Data, &payload); err != nil {
		t.Fatalf("payload not JSON: %v", err)
	}
	if payload.Text != "Stairs going down ahead." {
		t.Errorf("text = %q, want full completion", payload.Text)
	}
	if _, err := time.Parse(time.RFC3339, payload.Timestamp); err != nil {
		t.Errorf("timestamp %q not RFC3339: %v", payload.Timestamp, err)
	}
}

func TestWS_BurstSilentlyDropped(t *testing.T) {
	// Interval gate of 10s admits only the first frame of a burst; the
	// rest are dropped with no error event.
	opts := defaultGatewayOptions()
	opts.minInterval = 10 * time.Second

	ts := newTestGateway(t, &upstreamBehavior{
		deltas: []string{"one response"},
		done:   true,
	}, opts)

	conn := dialWS(t, ts.URL)
	frame := encodeTestJPEG(t)
	for i := 0; i < 10; i++ {
		sendVideoFrame(t, conn, frame, "")
	}

	env := readEvent(t, conn, 5*time.Second)
	if env.Event != eventAIResponse {
		t.Fatalf("event = %q, want single aiResponse", env.Event)
	}

	expectNoEvent(t, conn, 500*time.Millisecond)
}

func TestWS_QuotaExceededEmitsError(t *testing.T) {
	// Quota of 1 per window with a tiny interval gate: the second frame
	// passes the interval gate but trips the quota, producing an error event.
	opts := defaultGatewayOptions()
	opts.rateLimit = 1
	opts.minInterval = time.Millisecond

	ts := newTestGateway(t, &upstreamBehavior{
		deltas: []string{"resp"},
		done:   true,
	}, opts)

	conn := dialWS(t, ts.URL)
	frame := encodeTestJPEG(t)

	sendVideoFrame(t, conn, frame, "")
	env := readEvent(t, conn, 5*time.Second)
	if env.Event != eventAIResponse {
		t.Fatalf("first event = %q, want aiResponse", env.Event)
	}

	time.Sleep(10 * time.Millisecond) // clear the interval gate
	sendVideoFrame(t, conn, frame, "")

	env = readEvent(t, conn, 5*time.Second)
	if env.Event != eventError {
		t.Fatalf("second event = %q, want error", env.Event)
	}

	var payload errorPayload
	if err := json.Unmarshal(env.Data, &payload); err != nil {
		t.Fatalf("payload not JSON: %v", err)
	}
	if payload.Message == "" {
		t.Error("error event missing message")
	}
}

func TestWS_EmptyCompletionDeliversNothing(t *testing.T) {
	ts := newTestGateway(t, &upstreamBehavior{
		deltas: []string{"   ", "\n"},
		done:   true,
	}, defaultGatewayOptions())

	conn := dialWS(t, ts.URL)
	sendVideoFrame(t, conn, encodeTestJPEG(t), "")

	expectNoEvent(t, conn, time.Second)
}

func TestWS_MissingFrameRejected(t *testing.T) {
	ts := newTestGateway(t, &upstreamBehavior{done: true}, defaultGatewayOptions())

	conn := dialWS(t, ts.URL)
	sendVideoFrame(t, conn, "", "just a prompt")

	env := readEvent(t, conn, 5*time.Second)
	if env.Event != eventError {
		t.Fatalf("event = %q, want error", env.Event)
	}
}

func TestWS_UnknownEventRejected(t *testing.T) {
	ts := newTestGateway(t, &upstreamBehavior{done: true}, defaultGatewayOptions())

	conn := dialWS(t, ts.URL)
	if err := conn.WriteJSON(wsEnvelope{Event: "bogus"}); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	env := readEvent(t, conn, 5*time.Second)
	if env.Event != eventError {
		t.Fatalf("event = %q, want error", env.Event)
	}
}

func TestWS_RelayFailureEmitsError(t *testing.T) {
	ts := newTestGateway(t, &upstreamBehavior{status: 500}, defaultGatewayOptions())

	conn := dialWS(t, ts.URL)
	sendVideoFrame(t, conn, encodeTestJPEG(t), "")

	env := readEvent(t, conn, 5*time.Second)
	if env.Event != eventError {
		t.Fatalf("event = %q, want error", env.Event)
	}
}
