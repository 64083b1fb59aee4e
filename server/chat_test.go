package server

import (
	"bufio"
	"bytes"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/color"
	"image/jpeg"
	"net/http"
	"strings"
	"testing"
)

// encodeTestJPEG produces a small base64 JPEG as browsers submit them.
func encodeTestJPEG(t *testing.T) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 32, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			img.Set(x, y, color.RGBA{R: 10, G: 20, B: 30, A: 255})
		}
	}
	var buf bytes.Buffer
	_ = jpeg.Encode(&buf, img, nil)
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

// postChat sends a one-shot request and returns the response.
func postChat(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	payload, _ := json.Marshal(body)
	resp, err := http.Post(url+"/api/chat", "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("POST /api/chat failed: %v", err)
	}
	return resp
}

// readSSEFrames collects the data payloads of an SSE response body.
func readSSEFrames(t *testing.T, resp *http.Response) []string {
	t.Helper()
	defer resp.Body.Close()

	var frames []string
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "data: ") {
			frames = append(frames, strings.TrimPrefix(line, "data: "))
		}
	}
	return frames
}

func TestChat_EmptyBodyRejected(t *testing.T) {
	behavior := &upstreamBehavior{done: true}
	ts := newTestGateway(t, behavior, defaultGatewayOptions())

	resp := postChat(t, ts.URL, map[string]string{})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}

	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("error body not JSON: %v", err)
	}
	if body["error"] == "" {
		t.Error("error body missing explanation")
	}
	if behavior.hits.Load() != 0 {
		t.Errorf("empty body reached the upstream %d times", behavior.hits.Load())
	}
}

func TestChat_MessageOnlyStreamsChunks(t *testing.T) {
	ts := newTestGateway(t, &upstreamBehavior{
		deltas: []string{"Stay ", "on the ", "path."},
		done:   true,
	}, defaultGatewayOptions())

	resp := postChat(t, ts.URL, map[string]string{"message": "where should I walk"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Errorf("Content-Type = %q", ct)
	}

	frames := readSSEFrames(t, resp)
	if len(frames) != 4 {
		t.Fatalf("frames = %v, want 3 chunks + [DONE]", frames)
	}
	if frames[len(frames)-1] != "[DONE]" {
		t.Errorf("last frame = %q, want [DONE]", frames[len(frames)-1])
	}

	var first chatEvent
	if err := json.Unmarshal([]byte(frames[0]), &first); err != nil {
		t.Fatalf("chunk frame not JSON: %v", err)
	}
	if first.Text != "Stay " {
		t.Errorf("first chunk text = %q", first.Text)
	}
	if first.Timestamp == "" {
		t.Error("chunk frame missing timestamp")
	}
}

func TestChat_ImageAndMessage(t *testing.T) {
	ts := newTestGateway(t, &upstreamBehavior{
		deltas: []string{"A door ahead."},
		done:   true,
	}, defaultGatewayOptions())

	resp := postChat(t, ts.URL, map[string]string{
		"message":   "what is in front of me",
		"imageData": "data:image/jpeg;base64," + encodeTestJPEG(t),
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	frames := readSSEFrames(t, resp)
	if len(frames) < 2 || frames[len(frames)-1] != "[DONE]" {
		t.Fatalf("frames = %v", frames)
	}
}

func TestChat_MidStreamFailureEmitsErrorFrame(t *testing.T) {
	// Two chunks then the upstream drops without [DONE].
	ts := newTestGateway(t, &upstreamBehavior{
		deltas: []string{"partial ", "guidance"},
		done:   false,
	}, defaultGatewayOptions())

	resp := postChat(t, ts.URL, map[string]string{"message": "hello"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200 (failure is mid-stream)", resp.StatusCode)
	}

	frames := readSSEFrames(t, resp)
	if len(frames) != 3 {
		t.Fatalf("frames = %v, want 2 chunks + error frame", frames)
	}

	for _, f := range frames {
		if f == "[DONE]" {
			t.Fatal("interrupted stream must not end with [DONE]")
		}
	}

	var last chatEvent
	if err := json.Unmarshal([]byte(frames[2]), &last); err != nil {
		t.Fatalf("error frame not JSON: %v", err)
	}
	if last.Error == "" {
		t.Errorf("terminal frame = %+v, want error field", last)
	}
}

func TestChat_UpstreamRejectionIsPreStreamError(t *testing.T) {
	ts := newTestGateway(t, &upstreamBehavior{status: http.StatusUnauthorized}, defaultGatewayOptions())

	resp := postChat(t, ts.URL, map[string]string{"message": "hello"})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", resp.StatusCode)
	}

	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("error body not JSON: %v", err)
	}
	if body["error"] == "" {
		t.Error("error body missing cause")
	}
}

func TestChat_InvalidImageRejected(t *testing.T) {
	ts := newTestGateway(t, &upstreamBehavior{done: true}, defaultGatewayOptions())

	resp := postChat(t, ts.URL, map[string]string{"imageData": "data:image/jpeg;base64,"})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestChat_CorruptImageStillRelayed(t *testing.T) {
	// Corrupt-but-present data degrades gracefully and reaches the upstream.
	ts := newTestGateway(t, &upstreamBehavior{
		deltas: []string{"ok"},
		done:   true,
	}, defaultGatewayOptions())

	garbage := base64.StdEncoding.EncodeToString([]byte("not an image"))
	resp := postChat(t, ts.URL, map[string]string{"imageData": garbage})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	frames := readSSEFrames(t, resp)
	if len(frames) == 0 || frames[len(frames)-1] != "[DONE]" {
		t.Fatalf("frames = %v", frames)
	}
}
