package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"chainIndexer/internal/bridge"
	"chainIndexer/internal/indexer"
)

const shutdownTimeout = 5 * time.Second

// SyncStatusProvider reports the primary chain sync state.
type SyncStatusProvider interface {
	Status() indexer.Status
}

// BridgeStatusProvider reports the bridge reconciler state.
type BridgeStatusProvider interface {
	Status() bridge.Status
}

// Server exposes health, status and metrics over HTTP.
type Server struct {
	logger *zap.Logger
	sync   SyncStatusProvider
	bridge BridgeStatusProvider
	router *chi.Mux
	server *http.Server
}

// New builds the ops server. bridgeStatus may be nil when the reconciler is
// disabled; gatherer may be nil to use the default registry.
func New(addr string, sync SyncStatusProvider, bridgeStatus BridgeStatusProvider, gatherer prometheus.Gatherer, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	s := &Server{
		logger: logger,
		sync:   sync,
		bridge: bridgeStatus,
		router: chi.NewRouter(),
	}

	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)

	s.router.Get("/healthz", s.handleHealth)
	s.router.Get("/status", s.handleStatus)
	s.router.Get("/bridge/status", s.handleBridgeStatus)
	s.router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Router returns the underlying chi router.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start serves until Stop is called.
func (s *Server) Start() error {
	s.logger.Info("starting ops server", zap.String("address", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("ops server: %w", err)
	}
	return nil
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("ops server shutdown: %w", err)
	}
	return nil
}

type healthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.sync.Status())
}

func (s *Server) handleBridgeStatus(w http.ResponseWriter, _ *http.Request) {
	if s.bridge == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "bridge reconciler not enabled"})
		return
	}
	writeJSON(w, http.StatusOK, s.bridge.Status())
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
