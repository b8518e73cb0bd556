// Package api exposes the follow-up scheduling engine over HTTP.
//
// Endpoints cover schedule lifecycle (create/reset, message events, status)
// plus a manual trigger endpoint that is disabled unless explicitly enabled.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/amoria-labs/followup/internal/followup"
)

// DefaultAddr is the listen address used when none is configured.
const DefaultAddr = ":8080"

// Opts holds configuration options for the API server.
type Opts struct {
	// Addr is the HTTP listen address.
	Addr string
	// EnableTrigger allows the manual trigger endpoint. Off by default;
	// intended for non-production environments only.
	EnableTrigger bool
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the HTTP listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithManualTrigger enables the manual trigger endpoint.
func WithManualTrigger() Option {
	return func(o *Opts) { o.EnableTrigger = true }
}

// Server hosts the follow-up HTTP API.
type Server struct {
	svc           *followup.Service
	addr          string
	enableTrigger bool
	httpSrv       *http.Server
}

// NewServer creates an API server around the follow-up service.
func NewServer(svc *followup.Service, opts ...Option) *Server {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	return &Server{
		svc:           svc,
		addr:          cfg.Addr,
		enableTrigger: cfg.EnableTrigger,
	}
}

// routes registers all handlers on a fresh mux.
func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/followups/schedule", s.scheduleHandler)
	mux.HandleFunc("/followups/events", s.messageEventHandler)
	mux.HandleFunc("/followups/status", s.statusHandler)
	mux.HandleFunc("/followups/trigger", s.triggerHandler)
	mux.HandleFunc("/followups/active", s.activeHandler)
	return mux
}

// Start begins serving HTTP requests. It blocks until the server stops.
func (s *Server) Start() error {
	s.httpSrv = &http.Server{
		Addr:         s.addr,
		Handler:      s.routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	slog.Info("Server.Start: follow-up API listening", "addr", s.addr, "triggerEnabled", s.enableTrigger)
	return s.httpSrv.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}
