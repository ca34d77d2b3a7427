// Package server implements SPEC_FULL.md §5's HTTP operational surface:
// starting and inspecting discovery runs, and a liveness probe.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"briefly/internal/config"
	"briefly/internal/discovery"
	"briefly/internal/logger"
	"briefly/internal/patch"
	"briefly/internal/persistence"
)

// Server exposes the discovery engine's run-control endpoints.
type Server struct {
	coord   *discovery.Coordinator
	patches patch.Provider
	db      persistence.Database
	cfg     config.Server
	log     *slog.Logger
	httpSrv *http.Server
}

// New constructs a Server wired to coord for run lifecycle operations.
func New(coord *discovery.Coordinator, patches patch.Provider, db persistence.Database, cfg config.Server) *Server {
	return &Server{coord: coord, patches: patches, db: db, cfg: cfg, log: logger.Get()}
}

func (s *Server) router() *mux.Router {
	r := mux.NewRouter()
	r.Use(requestLogger(s.log))
	r.HandleFunc("/runs/{patchHandle}", s.handleStartRun).Methods(http.MethodPost)
	r.HandleFunc("/runs/{runId}", s.handleRunStatus).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	return r
}

// Start binds and serves until the process is asked to stop; callers
// drive shutdown via Shutdown, mirroring the teacher's signal-driven
// serve command.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.httpSrv = &http.Server{
		Addr:         addr,
		Handler:      s.router(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}
	return s.httpSrv.ListenAndServe()
}

// Shutdown gracefully stops the server within cfg.ShutdownTimeout.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
	defer cancel()
	return s.httpSrv.Shutdown(shutdownCtx)
}

type runResponse struct {
	RunID string `json:"runId"`
}

func (s *Server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	handle := mux.Vars(r)["patchHandle"]
	pt, err := s.patches.GetPatchByHandle(r.Context(), handle)
	if err != nil {
		respondError(w, http.StatusNotFound, fmt.Sprintf("patch %q not found", handle))
		return
	}

	runID, err := s.coord.StartRun(r.Context(), pt.ID)
	if err != nil {
		s.log.Error("failed to start discovery run", "patch_handle", handle, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to start discovery run")
		return
	}
	respondJSON(w, http.StatusOK, runResponse{RunID: runID})
}

type runStatusResponse struct {
	RunID     string  `json:"runId"`
	Status    string  `json:"status"`
	Processed int     `json:"processed"`
	Saved     int     `json:"saved"`
	Denied    int     `json:"denied"`
	Failed    int     `json:"failed"`
	Rate      float64 `json:"rate"`
}

func (s *Server) handleRunStatus(w http.ResponseWriter, r *http.Request) {
	runID := mux.Vars(r)["runId"]
	run, err := s.coord.Status(r.Context(), runID)
	if err != nil || run == nil {
		respondError(w, http.StatusNotFound, fmt.Sprintf("run %q not found", runID))
		return
	}
	respondJSON(w, http.StatusOK, runStatusResponse{
		RunID:     run.ID,
		Status:    string(run.Status),
		Processed: run.ProcessedCount,
		Saved:     run.SavedCount,
		Denied:    run.DeniedCount,
		Failed:    run.FailedCount,
		Rate:      run.Rate(),
	})
}

type healthResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.db.Ping(ctx); err != nil {
		respondJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "db_unreachable"})
		return
	}
	respondJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

func requestLogger(log *slog.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			log.Info("request handled", "method", r.Method, "path", r.URL.Path, "elapsed_ms", time.Since(start).Milliseconds())
		})
	}
}
