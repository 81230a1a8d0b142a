// Package http serves the ops endpoints of the bot and the worker:
// liveness, readiness and Prometheus metrics.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alem-hub/kata-mentor-bot/internal/interface/http/handlers"
	"github.com/alem-hub/kata-mentor-bot/pkg/logger"
)

// ErrAlreadyRunning is returned by a second Run.
var ErrAlreadyRunning = errors.New("http: server already running")

// Config configures the ops server.
type Config struct {
	// Host is empty for all interfaces.
	Host string
	Port int

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	MaxHeaderBytes  int
}

// DefaultConfig listens on :8080.
func DefaultConfig() Config {
	return Config{
		Port:            8080,
		ReadTimeout:     5 * time.Second,
		WriteTimeout:    10 * time.Second,
		IdleTimeout:     time.Minute,
		ShutdownTimeout: 10 * time.Second,
		MaxHeaderBytes:  64 << 10,
	}
}

// Address is host:port.
func (c Config) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Dependencies are what the endpoints read.
type Dependencies struct {
	// Readiness backs /health/ready. Nil means always ready.
	Readiness *handlers.ReadinessChecker

	// Gatherer backs /metrics. Nil disables the endpoint.
	Gatherer prometheus.Gatherer

	Logger *slog.Logger
}

// Server is the ops HTTP server.
type Server struct {
	srv       *http.Server
	readiness *handlers.ReadinessChecker
	logger    *slog.Logger
	grace     time.Duration
	running   atomic.Bool
}

// NewServer builds the server. It does not listen until Run.
func NewServer(config Config, deps Dependencies) *Server {
	def := DefaultConfig()
	if config.Port == 0 {
		config.Port = def.Port
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = def.ShutdownTimeout
	}
	if config.ReadTimeout <= 0 {
		config.ReadTimeout = def.ReadTimeout
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Readiness == nil {
		deps.Readiness = handlers.NewReadinessChecker("")
	}

	s := &Server{
		readiness: deps.Readiness,
		logger:    deps.Logger.With(logger.Component("http")),
		grace:     config.ShutdownTimeout,
	}

	mux := http.NewServeMux()
	mux.Handle("GET /health/live", handlers.NoStore(http.HandlerFunc(s.live)))
	mux.Handle("GET /health/ready", handlers.NoStore(http.HandlerFunc(s.ready)))
	if deps.Gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{
			ErrorLog: slog.NewLogLogger(s.logger.Handler(), slog.LevelError),
		}))
	}

	s.srv = &http.Server{
		Addr:              config.Address(),
		Handler:           handlers.Wrap(mux, handlers.WithRequestID, handlers.Observe(s.logger)),
		ReadTimeout:       config.ReadTimeout,
		ReadHeaderTimeout: config.ReadTimeout,
		WriteTimeout:      config.WriteTimeout,
		IdleTimeout:       config.IdleTimeout,
		MaxHeaderBytes:    config.MaxHeaderBytes,
		ErrorLog:          slog.NewLogLogger(s.logger.Handler(), slog.LevelWarn),
	}
	return s
}

// Handler is the root handler, middleware included.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

// Address is the configured listen address.
func (s *Server) Address() string { return s.srv.Addr }

// Run listens and serves until ctx is done, then drains connections for up
// to ShutdownTimeout.
func (s *Server) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("http: listen %s: %w", s.srv.Addr, err)
	}
	s.logger.Info("http server listening", "address", ln.Addr().String())

	served := make(chan error, 1)
	go func() { served <- s.srv.Serve(ln) }()

	select {
	case err := <-served:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http: serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.grace)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http: shutdown: %w", err)
	}
	<-served
	s.logger.Info("http server stopped")
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ENDPOINTS
// ══════════════════════════════════════════════════════════════════════════════

// live never touches dependencies.
func (s *Server) live(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "alive",
		"uptime": s.readiness.Uptime().Round(time.Second).String(),
	})
}

func (s *Server) ready(w http.ResponseWriter, r *http.Request) {
	status := s.readiness.Check(r.Context())
	code := http.StatusOK
	if !status.Ready {
		code = http.StatusServiceUnavailable
		s.logger.Warn("not ready", "reason", status.Message)
	}
	writeJSON(w, code, status)
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
