// Package api exposes the dialogue engine over HTTP.
//
// Sessions are started, advanced, undone, inspected and abandoned through JSON endpoints
// that answer with the models.APIResponse envelope. The server also serves Prometheus
// metrics and, when the Twilio channel is enabled, its inbound webhook.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/BTreeMap/ShiftGuide/internal/models"
)

// DefaultAddr is the listen address used when none is configured.
const DefaultAddr = ":8080"

const shutdownTimeout = 10 * time.Second

// Engine is the part of flow.Engine the handlers drive.
type Engine interface {
	Start(ctx context.Context, userID, sessionID string) (models.TurnOutput, error)
	Turn(ctx context.Context, sessionID string, input *string) (models.TurnOutput, error)
	Undo(ctx context.Context, sessionID string) (models.TurnOutput, error)
	Get(ctx context.Context, sessionID string) (*models.SessionContext, error)
	Abandon(ctx context.Context, sessionID string) error
	ActiveSessions() int
}

// UsageReader reports a session's assistance usage.
type UsageReader interface {
	Usage(sessionID string) (models.UsageStats, error)
}

// Server holds the HTTP dependencies.
type Server struct {
	engine  Engine
	usage   UsageReader
	metrics http.Handler
	webhook http.HandlerFunc
	addr    string
}

// Option configures a Server.
type Option func(*Server)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(s *Server) {
		s.addr = addr
	}
}

// WithUsage enables GET /sessions/{id}/usage.
func WithUsage(u UsageReader) Option {
	return func(s *Server) {
		s.usage = u
	}
}

// WithMetricsHandler serves h on GET /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) {
		s.metrics = h
	}
}

// WithTwilioWebhook serves h on POST /webhook/twilio.
func WithTwilioWebhook(h http.HandlerFunc) Option {
	return func(s *Server) {
		s.webhook = h
	}
}

// NewServer creates a Server for engine.
func NewServer(engine Engine, opts ...Option) *Server {
	s := &Server{engine: engine, addr: DefaultAddr}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /sessions", s.startSessionHandler)
	mux.HandleFunc("POST /sessions/{id}/turns", s.turnHandler)
	mux.HandleFunc("POST /sessions/{id}/undo", s.undoHandler)
	mux.HandleFunc("GET /sessions/{id}", s.getSessionHandler)
	mux.HandleFunc("DELETE /sessions/{id}", s.abandonSessionHandler)
	mux.HandleFunc("GET /sessions/{id}/usage", s.usageHandler)
	mux.HandleFunc("GET /healthz", s.healthHandler)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}
	if s.webhook != nil {
		mux.HandleFunc("POST /webhook/twilio", s.webhook)
	}
	return mux
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server.Run: listening", "addr", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		slog.Error("Server.Run: listener failed", "error", err)
		return err
	case <-ctx.Done():
		slog.Info("Server.Run: shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server.Run: shutdown failed", "error", err)
			return err
		}
		return nil
	}
}
