package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/aigoflow/rideguard/internal/capabilities"
	"github.com/aigoflow/rideguard/internal/handlers"
	"github.com/aigoflow/rideguard/internal/metrics"
	"github.com/aigoflow/rideguard/internal/schema"
	"github.com/aigoflow/rideguard/internal/services"
)

const shutdownTimeout = 10 * time.Second

type Server struct {
	httpAddr         string
	inferenceService *services.AuditedService
	coercer          *schema.Coercer
	metrics          *metrics.Metrics
	formEnabled      bool
}

// NewServer wires the HTTP surface. m may be nil, in which case /metrics is not served.
func NewServer(httpAddr string, inferenceService *services.AuditedService, coercer *schema.Coercer, m *metrics.Metrics, formEnabled bool) *Server {
	return &Server{
		httpAddr:         httpAddr,
		inferenceService: inferenceService,
		coercer:          coercer,
		metrics:          m,
		formEnabled:      formEnabled,
	}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	caps := s.inferenceService.Capabilities()
	slog.Info("Registering endpoints",
		"available", s.inferenceService.Available(),
		"capabilities", capabilities.Summary(caps))

	handlers.NewInferenceHandler(s.inferenceService, s.coercer).RegisterRoutes(mux)
	endpoints := []string{"/predict", "/healthz", "/logs", "/status"}

	mux.HandleFunc("/status", s.handleStatus)

	if s.formEnabled {
		handlers.NewFormHandler(s.inferenceService, s.coercer).RegisterRoutes(mux)
		endpoints = append(endpoints, "/")
	}
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics.Handler())
		endpoints = append(endpoints, "/metrics")
	}

	if !capabilities.Supports(caps, capabilities.CapabilityProbability) && s.inferenceService.Available() {
		slog.Warn("Pipeline exposes labels only; responses will carry no probability or confidence")
	}

	slog.Info("Registered endpoints", "endpoints", endpoints)
	return mux
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.inferenceService.Status()); err != nil {
		slog.Warn("Failed to write status", "error", err)
	}
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.httpAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server starting", "addr", s.httpAddr, "form", s.formEnabled)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	slog.Info("HTTP server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
