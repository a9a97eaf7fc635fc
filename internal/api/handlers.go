package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"ridedispatch/internal/store"
)

// Health
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	// Check connectivity of the Postgres store and Redis broker when used
	type pinger interface {
		Ping(ctx context.Context) error
	}
	for _, dep := range []any{s.Store, s.Broker} {
		p, ok := dep.(pinger)
		if !ok {
			continue
		}
		ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
		err := p.Ping(ctx)
		cancel()
		if err != nil {
			writeProblem(w, http.StatusServiceUnavailable, "Not Ready", err.Error(), r.URL.Path)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// CreateScenarioHandler handles POST /scenario/create
func (s *Server) CreateScenarioHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	req, err := parseCreateRequest(r.URL.Query())
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid request", err.Error(), r.URL.Path)
		return
	}
	if s.Backend == nil {
		writeProblem(w, http.StatusServiceUnavailable, "Backend not configured", "", r.URL.Path)
		return
	}
	sc, err := s.Backend.CreateScenario(r.Context(), req.Vehicles, req.Customers)
	if err != nil {
		s.Log.Warnf("create scenario: %v", err)
		writeProblem(w, http.StatusBadGateway, "Create scenario failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, sc)
}

// SessionsHandler handles GET /v1/admin/sessions
func (s *Server) SessionsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": s.Registry.Sessions()})
}

// SolveRunsHandler handles GET /v1/admin/solve-runs?scenarioId=&limit=
func (s *Server) SolveRunsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeProblem(w, http.StatusBadRequest, "Invalid limit", "limit must be a non-negative integer", r.URL.Path)
			return
		}
		limit = n
	}
	items, err := s.Store.ListSolveRuns(r.Context(), r.URL.Query().Get("scenarioId"), limit)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "List solve runs failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// SolveRunByIDHandler handles GET /v1/admin/solve-runs/{id}
func (s *Server) SolveRunByIDHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/v1/admin/solve-runs/")
	if id == "" || strings.Contains(id, "/") {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	run, err := s.Store.GetSolveRun(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeProblem(w, http.StatusNotFound, "Not Found", "solve run "+id, r.URL.Path)
		return
	}
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Get solve run failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, run)
}
