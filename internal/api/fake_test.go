package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"ridedispatch/internal/config"
	"ridedispatch/internal/logger"
	"ridedispatch/internal/model"
	"ridedispatch/internal/runner"
)

// runnerServer speaks the runner protocol over HTTP for one scenario.
// Trips finish on the next get; the scenario ends after endAfter gets.
type runnerServer struct {
	*httptest.Server

	mu       sync.Mutex
	scenario model.Scenario
	endAfter int
	gets     int
	inits    int
	speed    string
}

func newRunnerServer(t *testing.T, id string, endAfter int) *runnerServer {
	t.Helper()
	rs := &runnerServer{endAfter: endAfter, scenario: model.Scenario{ID: id, Status: "RUNNING"}}
	for i := 0; i < 2; i++ {
		rs.scenario.Vehicles = append(rs.scenario.Vehicles, model.Vehicle{ID: fmt.Sprintf("v%d", i), CoordX: float64(i), IsAvailable: true})
	}
	for i := 0; i < 3; i++ {
		rs.scenario.Customers = append(rs.scenario.Customers, model.Customer{ID: fmt.Sprintf("c%d", i), CoordX: float64(i), CoordY: 1, AwaitingService: true})
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /Scenarios/initialize_scenario", func(w http.ResponseWriter, r *http.Request) {
		rs.mu.Lock()
		defer rs.mu.Unlock()
		rs.inits++
		if r.URL.Query().Get("db_scenario_id") != id {
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "scenario not found"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"message": "initialized", "scenario": rs.scenario})
	})
	mux.HandleFunc("POST /Runner/launch_scenario/{id}", func(w http.ResponseWriter, r *http.Request) {
		rs.mu.Lock()
		rs.speed = r.URL.Query().Get("speed")
		rs.mu.Unlock()
		_ = json.NewEncoder(w).Encode(model.LaunchScenarioResponse{Message: "launched", ScenarioID: r.PathValue("id")})
	})
	mux.HandleFunc("PUT /Scenarios/update_scenario/{id}", func(w http.ResponseWriter, r *http.Request) {
		var d model.UpdateScenario
		if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		rs.mu.Lock()
		defer rs.mu.Unlock()
		for _, a := range d.Vehicles {
			for i := range rs.scenario.Vehicles {
				if rs.scenario.Vehicles[i].ID == a.ID {
					rs.scenario.Vehicles[i].CustomerID = model.StringPtr(a.CustomerID)
					rs.scenario.Vehicles[i].IsAvailable = false
				}
			}
		}
		_ = json.NewEncoder(w).Encode(model.UpdateScenarioResponse{FailedToUpdate: []string{}})
	})
	mux.HandleFunc("GET /Scenarios/get_scenario/{id}", func(w http.ResponseWriter, r *http.Request) {
		rs.mu.Lock()
		defer rs.mu.Unlock()
		rs.gets++
		for i := range rs.scenario.Vehicles {
			v := &rs.scenario.Vehicles[i]
			if v.CustomerID == nil {
				continue
			}
			for j := range rs.scenario.Customers {
				if rs.scenario.Customers[j].ID == *v.CustomerID {
					rs.scenario.Customers[j].AwaitingService = false
				}
			}
			v.CustomerID, v.IsAvailable = nil, true
		}
		if rs.gets >= rs.endAfter {
			rs.scenario.EndTime = model.StringPtr("2024-01-01T01:00:00Z")
			rs.scenario.Status = "COMPLETED"
		}
		_ = json.NewEncoder(w).Encode(rs.scenario)
	})
	rs.Server = httptest.NewServer(mux)
	t.Cleanup(rs.Close)
	return rs
}

func (rs *runnerServer) counts() (inits, gets int, speed string) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.inits, rs.gets, rs.speed
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Sim.TickInterval = 5 * time.Millisecond
	cfg.ALNS.Iterations = 10
	cfg.ALNS.Seed = 1
	return &cfg
}

// newTestServer wires a Server against the given runner and backend URLs.
func newTestServer(t *testing.T, cfg *config.Config, runnerURL, backendURL string, d Deps) *Server {
	t.Helper()
	if runnerURL == "" {
		runnerURL = "http://127.0.0.1:1"
	}
	if backendURL == "" {
		backendURL = "http://127.0.0.1:1"
	}
	rc, err := runner.New(runnerURL, runner.Options{Timeout: cfg.Runner.Timeout})
	require.NoError(t, err)
	be, err := runner.NewBackend(backendURL, runner.Options{Timeout: cfg.Backend.Timeout})
	require.NoError(t, err)
	d.Runner, d.Backend = rc, be
	if d.Log == nil {
		d.Log = logger.NopLogger{}
	}
	s := New(cfg, d)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func wsURL(base, query string) string {
	return "ws" + strings.TrimPrefix(base, "http") + "/ws?" + query
}
