// Package server exposes the intake pipeline over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hurttlocker/mira/internal/audit"
	"github.com/hurttlocker/mira/internal/metrics"
	"github.com/hurttlocker/mira/internal/pipeline"
)

const (
	defaultMaxUploadBytes = 32 << 20
	multipartMemory       = 8 << 20
	shutdownTimeout       = 10 * time.Second
)

// Ingester runs one request through the pipeline.
type Ingester interface {
	Ingest(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
}

// InputReader reads back the audit trail of an input.
type InputReader interface {
	GetInput(ctx context.Context, inputID int64) (*audit.InputEvent, error)
	GetExtractedFields(ctx context.Context, inputID int64) ([]*audit.ExtractedFieldsEvent, error)
}

// Config configures a Server.
type Config struct {
	Addr           string
	Pipeline       Ingester
	Inputs         InputReader
	Metrics        *metrics.Metrics
	Logger         *slog.Logger
	MaxUploadBytes int64
	Version        string
}

// Server is the HTTP front end.
type Server struct {
	cfg    Config
	logger *slog.Logger
	router chi.Router
}

// New creates a Server and its routes.
func New(cfg Config) (*Server, error) {
	if cfg.Pipeline == nil {
		return nil, errors.New("server: pipeline is nil")
	}
	if cfg.Inputs == nil {
		return nil, errors.New("server: input reader is nil")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = defaultMaxUploadBytes
	}

	s := &Server{cfg: cfg, logger: cfg.Logger}

	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(accessLog(cfg.Logger))
	r.Use(middleware.Recoverer)

	r.Post("/intake", s.handleIntake)
	r.Get("/inputs/{id}", s.handleGetInput)
	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())

	s.router = r
	return s, nil
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on cfg.Addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.logger.Info("http server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	return nil
}
