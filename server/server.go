// Package server exposes the gateway over HTTP: a persistent WebSocket
// channel for streaming camera sessions and a one-shot SSE endpoint.
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/AltairaLabs/SightRelay/media"
	"github.com/AltairaLabs/SightRelay/relay"
	"github.com/AltairaLabs/SightRelay/session"
	"github.com/AltairaLabs/SightRelay/version"
)

const (
	// defaultReadHeaderTimeout prevents Slowloris attacks.
	defaultReadHeaderTimeout = 10 * time.Second

	// defaultReadTimeout is the maximum duration for reading the entire
	// request, including the body.
	defaultReadTimeout = 30 * time.Second

	// defaultIdleTimeout is the maximum amount of time to wait for the
	// next request when keep-alives are enabled.
	defaultIdleTimeout = 120 * time.Second

	// defaultMaxBodySize is the maximum allowed size of a request body (10 MB).
	defaultMaxBodySize int64 = 10 << 20
)

// Option configures a [Server].
type Option func(*Server)

// WithPort sets the TCP port for ListenAndServe.
func WithPort(port int) Option {
	return func(s *Server) { s.port = port }
}

// WithReadTimeout sets the maximum duration for reading the entire request.
// Default: 30s.
func WithReadTimeout(d time.Duration) Option {
	return func(s *Server) { s.readTimeout = d }
}

// WithIdleTimeout sets the maximum amount of time to wait for the next
// request when keep-alives are enabled. Default: 120s.
func WithIdleTimeout(d time.Duration) Option {
	return func(s *Server) { s.idleTimeout = d }
}

// WithMaxBodySize sets the maximum allowed request body size in bytes.
// Default: 10 MB.
func WithMaxBodySize(n int64) Option {
	return func(s *Server) { s.maxBodySize = n }
}

// WithMetricsHandler mounts a metrics handler at /metrics on the API
// listener, for deployments without a separate metrics port.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metricsHandler = h }
}

// Server serves the gateway API.
type Server struct {
	registry   *session.Registry
	normalizer *media.Normalizer
	relay      *relay.Relay

	port        int
	readTimeout time.Duration
	idleTimeout time.Duration
	maxBodySize int64

	metricsHandler http.Handler

	httpSrv   *http.Server
	httpSrvMu sync.Mutex
}

// New creates a gateway server.
func New(registry *session.Registry, normalizer *media.Normalizer, rel *relay.Relay, opts ...Option) *Server {
	s := &Server{
		registry:    registry,
		normalizer:  normalizer,
		relay:       rel,
		readTimeout: defaultReadTimeout,
		idleTimeout: defaultIdleTimeout,
		maxBodySize: defaultMaxBodySize,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the gateway's http.Handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/chat", s.handleChat)
	mux.HandleFunc("OPTIONS /api/chat", s.handlePreflight)
	mux.HandleFunc("GET /ws", s.handleWebSocket)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	if s.metricsHandler != nil {
		mux.Handle("GET /metrics", s.metricsHandler)
	}
	return otelhttp.NewHandler(withCORS(mux), "sightrelay-server")
}

// ListenAndServe starts the HTTP server on the configured port.
func (s *Server) ListenAndServe() error {
	srv := s.newHTTPServer()
	srv.Addr = fmt.Sprintf(":%d", s.port)

	s.httpSrvMu.Lock()
	s.httpSrv = srv
	s.httpSrvMu.Unlock()

	return srv.ListenAndServe()
}

// Serve starts the HTTP server on the given listener.
func (s *Server) Serve(ln net.Listener) error {
	srv := s.newHTTPServer()

	s.httpSrvMu.Lock()
	s.httpSrv = srv
	s.httpSrvMu.Unlock()

	return srv.Serve(ln)
}

// newHTTPServer builds the hardened http.Server. No WriteTimeout: both the
// WebSocket channel and the SSE stream are long-lived responses; per-request
// bounds come from the relay timeout instead.
func (s *Server) newHTTPServer() *http.Server {
	return &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: defaultReadHeaderTimeout,
		ReadTimeout:       s.readTimeout,
		IdleTimeout:       s.idleTimeout,
	}
}

// Shutdown gracefully drains HTTP requests and stops session eviction.
func (s *Server) Shutdown(ctx context.Context) error {
	s.registry.StopEvictionSweep()

	s.httpSrvMu.Lock()
	srv := s.httpSrv
	s.httpSrvMu.Unlock()

	if srv != nil {
		return srv.Shutdown(ctx)
	}
	return nil
}

// handleHealth reports liveness.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"status":"ok","version":%q}`, version.GetVersion())
}

// handlePreflight answers CORS preflight for the one-shot endpoint.
func (s *Server) handlePreflight(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

// withCORS allows browser clients from any origin. The gateway carries no
// cookies or per-user server-side auth, so a permissive policy is safe.
func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		next.ServeHTTP(w, r)
	})
}
