// Package web serves the browser-facing surface: the realtime session
// websocket, the transcript history API, and the operational endpoints
// (health, readiness, Prometheus metrics).
package web

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/akrusz/meditation-pal/internal/config"
	"github.com/akrusz/meditation-pal/internal/health"
	"github.com/akrusz/meditation-pal/internal/observe"
	"github.com/akrusz/meditation-pal/internal/session"
	"github.com/akrusz/meditation-pal/internal/transcript"
)

// shutdownTimeout bounds graceful HTTP shutdown once the run context ends.
const shutdownTimeout = 10 * time.Second

// Config holds the dependencies for a [Server].
type Config struct {
	Server  config.ServerConfig
	Audio   config.AudioConfig
	Manager *session.Manager
	Store   transcript.Store
	Health  *health.Handler
	Metrics *observe.Metrics
}

// Server is the HTTP surface of the application.
type Server struct {
	cfg        config.ServerConfig
	sampleRate int
	manager    *session.Manager
	store      transcript.Store
	metrics    *observe.Metrics
	mux        *http.ServeMux

	// clocks tracks cumulative microphone samples per session so frame
	// timestamps keep advancing across websocket reconnects.
	mu     sync.Mutex
	clocks map[string]int64
}

// New builds a Server and registers its routes.
func New(cfg Config) *Server {
	s := &Server{
		cfg:        cfg.Server,
		sampleRate: cfg.Audio.SampleRate,
		manager:    cfg.Manager,
		store:      cfg.Store,
		metrics:    cfg.Metrics,
		clocks:     make(map[string]int64),
	}
	if s.sampleRate == 0 {
		s.sampleRate = 16000
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	hh := cfg.Health
	if hh == nil {
		hh = health.New()
	}

	mux := http.NewServeMux()
	hh.Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	wrap := observe.Middleware(s.metrics)
	mux.Handle("GET /api/sessions", wrap(http.HandlerFunc(s.handleListSessions)))
	mux.Handle("GET /api/sessions/{id}", wrap(http.HandlerFunc(s.handleGetSession)))
	mux.Handle("DELETE /api/sessions/{id}", wrap(http.HandlerFunc(s.handleDeleteSession)))

	// The websocket route skips the request middleware: a connection lives
	// for the whole sit and would skew the request-duration histogram.
	mux.HandleFunc("GET /api/session/ws", s.handleSession)

	s.mux = mux
	return s
}

// Handler returns the server's route table, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.mux }

// Run serves HTTP until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("web server listening", "addr", s.cfg.ListenAddr, "tls", s.cfg.TLS != nil)
		if s.cfg.TLS != nil {
			errCh <- srv.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			errCh <- srv.ListenAndServe()
		}
	}()

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutCtx); err != nil {
			return fmt.Errorf("web: shutdown: %w", err)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("web: serve: %w", err)
	}
}

// advanceClock returns the timestamp for a frame starting at the session's
// current sample position, then advances the position by n samples.
func (s *Server) advanceClock(id string, n int) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := s.clocks[id]
	s.clocks[id] = total + int64(n)
	return time.Duration(total) * time.Second / time.Duration(s.sampleRate)
}

// dropClock forgets a session's sample position once the session ends.
func (s *Server) dropClock(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.clocks, id)
}
