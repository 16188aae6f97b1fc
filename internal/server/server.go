// Package server provides the local HTTP API: last snapshot, recent history,
// manual refresh, health, and Prometheus metrics.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/HerbHall/drivewatch/internal/history"
	"github.com/HerbHall/drivewatch/internal/poller"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// RouteRegistrar allows external packages (the WebSocket handler) to register
// routes on the server without creating import cycles.
type RouteRegistrar interface {
	RegisterRoutes(mux *http.ServeMux)
}

// Server is the DriveWatch HTTP API server.
type Server struct {
	httpServer *http.Server
	coord      *poller.Coordinator
	store      *history.Store
	logger     *zap.Logger
	mux        *http.ServeMux
}

// New creates the server with middleware and routes. store may be nil when
// history persistence is disabled.
func New(addr string, coord *poller.Coordinator, store *history.Store, logger *zap.Logger, extra ...RouteRegistrar) *Server {
	mux := http.NewServeMux()

	s := &Server{
		coord:  coord,
		store:  store,
		logger: logger,
		mux:    mux,
	}

	s.registerRoutes()
	for _, r := range extra {
		r.RegisterRoutes(mux)
	}

	// Middleware chain: outermost listed first.
	handler := Chain(mux,
		RecoveryMiddleware(logger),
		RequestIDMiddleware,
		LoggingMiddleware(logger, []string{"/healthz", "/metrics"}),
	)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Start begins serving. Blocks until the server stops.
func (s *Server) Start() error {
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) registerRoutes() {
	// Unversioned operational endpoints.
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
	s.mux.Handle("GET /metrics", promhttp.Handler())

	// Versioned API endpoints.
	s.mux.HandleFunc("GET /api/v1/snapshot", s.handleSnapshot)
	s.mux.HandleFunc("GET /api/v1/status", s.handleStatus)
	s.mux.HandleFunc("GET /api/v1/history", s.handleHistory)
	s.mux.HandleFunc("POST /api/v1/refresh", s.handleRefresh)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleSnapshot returns the most recently published snapshot in full.
func (s *Server) handleSnapshot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.coord.LastSnapshot())
}

// handleStatus returns a compact health view of the last snapshot.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	snap := s.coord.LastSnapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":        snap.Status,
		"cycle_id":      snap.CycleID,
		"timestamp":     snap.Timestamp,
		"auth_required": snap.AuthRequired,
		"failures":      len(snap.Errors),
	})
}

// handleHistory returns recent persisted snapshots, newest first.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		http.Error(w, "history persistence disabled", http.StatusNotFound)
		return
	}
	limit := 50
	if q := r.URL.Query().Get("limit"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n <= 0 || n > 1000 {
			http.Error(w, "limit must be 1..1000", http.StatusBadRequest)
			return
		}
		limit = n
	}
	records, err := s.store.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error("history query failed", zap.Error(err))
		http.Error(w, "history query failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"snapshots": records})
}

// handleRefresh requests a poll cycle outside the normal timer. The request
// is accepted even when a cycle is in flight; it coalesces with it.
func (s *Server) handleRefresh(w http.ResponseWriter, _ *http.Request) {
	s.coord.RequestRefresh()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "refresh requested"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
