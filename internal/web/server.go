package web

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zpdzap/mlsandbox/internal/config"
	"github.com/zpdzap/mlsandbox/internal/sandbox"
)

//go:embed templates/*.html
var templateFS embed.FS

const shutdownTimeout = 10 * time.Second

// Controller is the lifecycle surface the panel drives.
type Controller interface {
	Launch(ctx context.Context, spec sandbox.Spec) sandbox.Result
	Stop(ctx context.Context) sandbox.Result
	Status(ctx context.Context) sandbox.Status
	Owned() (sandbox.Handle, bool)
	PendingStop() (time.Time, bool)
}

// ServerConfig holds what NewServer needs.
type ServerConfig struct {
	Addr       string
	Controller Controller
	Defaults   config.Defaults
	Flashes    *FlashStore
	Logger     *slog.Logger
	// Gatherer backs /metrics. Nil serves an empty exposition.
	Gatherer prometheus.Gatherer
}

// Server is the HTTP control panel.
type Server struct {
	ctrl     Controller
	defaults config.Defaults
	flashes  *FlashStore
	logger   *slog.Logger
	gatherer prometheus.Gatherer

	page   *template.Template
	router *http.ServeMux
	server *http.Server
}

func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Controller == nil {
		return nil, errors.New("web: controller is required")
	}
	if cfg.Flashes == nil {
		cfg.Flashes = NewFlashStore()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Gatherer == nil {
		cfg.Gatherer = prometheus.NewRegistry()
	}

	page, err := template.New("index.html").Funcs(template.FuncMap{
		"clock": func(t time.Time) string { return t.Local().Format("15:04:05") },
	}).ParseFS(templateFS, "templates/index.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}

	s := &Server{
		ctrl:     cfg.Controller,
		defaults: cfg.Defaults,
		flashes:  cfg.Flashes,
		logger:   cfg.Logger,
		gatherer: cfg.Gatherer,
		page:     page,
		router:   http.NewServeMux(),
	}
	s.setupRoutes()

	s.server = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s, nil
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("GET /{$}", s.handleIndex)
	s.router.HandleFunc("POST /launch", s.handleLaunch)
	s.router.HandleFunc("POST /stop", s.handleStop)
	s.router.HandleFunc("GET /api/status", s.handleStatus)
	s.router.HandleFunc("GET /healthz", s.handleHealth)
	s.router.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
}

// Handler returns the routed handler wrapped in middleware.
func (s *Server) Handler() http.Handler {
	return requestIDMiddleware(loggingMiddleware(s.logger, recoveryMiddleware(s.logger, s.router)))
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("control panel listening", "addr", s.server.Addr)
		errCh <- s.server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down control panel")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
