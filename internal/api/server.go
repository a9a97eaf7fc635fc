// Package api serves the scenario WebSocket stream, the backend proxy and
// the operational endpoints.
package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"ridedispatch/internal/config"
	"ridedispatch/internal/dispatch"
	"ridedispatch/internal/logger"
	"ridedispatch/internal/model"
	"ridedispatch/internal/opt"
	"ridedispatch/internal/runner"
	"ridedispatch/internal/sim"
	"ridedispatch/internal/store"
)

// ScenarioCreator creates scenarios in the backend.
type ScenarioCreator interface {
	CreateScenario(ctx context.Context, vehicles, customers int) (model.Scenario, error)
}

type Server struct {
	Cfg      *config.Config
	Store    store.Store
	Registry *sim.Registry
	Broker   sim.Broker
	Backend  ScenarioCreator
	Log      logger.Logger

	upgrader websocket.Upgrader
	closers  []io.Closer
}

// Deps are the collaborators a Server is built around. Nil Store and
// Broker fall back to the in-memory implementations.
type Deps struct {
	Store   store.Store
	Runner  sim.Runner
	Backend ScenarioCreator
	Broker  sim.Broker
	Log     logger.Logger
}

// New wires a Server from explicit collaborators.
func New(cfg *config.Config, d Deps) *Server {
	if d.Store == nil {
		d.Store = store.NewMemory()
	}
	if d.Broker == nil {
		d.Broker = sim.NewMemoryBroker()
	}
	if d.Log == nil {
		d.Log = logger.NopLogger{}
	}
	policies := dispatch.NewFactory(dispatch.PlannedConfig{
		Params: opt.Params{
			Iterations:      cfg.ALNS.Iterations,
			RemovalFraction: cfg.ALNS.RemovalFraction,
			InitialTemp:     cfg.ALNS.InitialTemp,
			Cooling:         cfg.ALNS.Cooling,
			LocalSearch:     cfg.ALNS.LocalSearch,
		},
		Seed:  cfg.ALNS.Seed,
		Store: d.Store,
		Log:   d.Log,
	})
	reg := sim.NewRegistry(sim.RegistryConfig{
		Controller: sim.NewController(d.Runner, cfg.Sim.TickInterval, d.Log),
		Policies:   policies,
		Broker:     d.Broker,
		QueueSize:  cfg.Sim.QueueSize,
		Log:        d.Log,
	})
	s := &Server{
		Cfg:      cfg,
		Store:    d.Store,
		Registry: reg,
		Broker:   d.Broker,
		Backend:  d.Backend,
		Log:      d.Log,
	}
	s.upgrader = websocket.Upgrader{CheckOrigin: s.checkOrigin}
	return s
}

// NewServer builds a Server from configuration. If DATABASE_URL is unset,
// uses the in-memory store; if REDIS_URL is unset, the in-memory broker.
func NewServer(cfg *config.Config) (*Server, error) {
	log := logger.New("api")
	var closers []io.Closer

	var st store.Store
	if strings.TrimSpace(cfg.Storage.DatabaseURL) == "" {
		st = store.NewMemory()
	} else {
		pg, err := store.NewPostgres(cfg.Storage.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		if cfg.Storage.Migrate {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			err := pg.Migrate(ctx)
			cancel()
			if err != nil {
				_ = pg.Close()
				return nil, fmt.Errorf("migrate: %w", err)
			}
		}
		st = pg
		closers = append(closers, pg)
	}

	var broker sim.Broker
	if cfg.Storage.RedisURL != "" {
		rb, err := sim.NewRedisBroker(cfg.Storage.RedisURL, logger.New("broker"))
		if err != nil {
			log.Warnf("redis broker unavailable, falling back to memory: %v", err)
			broker = sim.NewMemoryBroker()
		} else {
			broker = rb
			closers = append(closers, rb)
		}
	}

	rc, err := runner.New(cfg.Runner.BaseURL, runner.Options{
		Timeout:    cfg.Runner.Timeout,
		MaxRetries: cfg.Runner.MaxRetries,
		Log:        logger.New("runner"),
	})
	if err != nil {
		return nil, fmt.Errorf("runner client: %w", err)
	}
	backend, err := runner.NewBackend(cfg.Backend.BaseURL, runner.Options{
		Timeout:    cfg.Backend.Timeout,
		MaxRetries: cfg.Backend.MaxRetries,
		Log:        logger.New("backend"),
	})
	if err != nil {
		return nil, fmt.Errorf("backend client: %w", err)
	}

	s := New(cfg, Deps{Store: st, Runner: rc, Backend: backend, Broker: broker, Log: log})
	s.closers = closers
	return s, nil
}

// Routes registers every endpoint on a new mux.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	// Simulation
	mux.HandleFunc("/ws", s.WSHandler)
	mux.HandleFunc("/scenario/create", s.CreateScenarioHandler)

	// Health
	mux.HandleFunc("/healthz", s.HealthHandler)
	mux.HandleFunc("/readyz", s.ReadyHandler)
	mux.Handle("/metrics", MetricsHandler())
	mux.HandleFunc("/debug/vars", s.DebugJSON)

	// Admin
	mux.HandleFunc("/v1/admin/sessions", s.SessionsHandler)
	mux.HandleFunc("/v1/admin/solve-runs", s.SolveRunsHandler)
	mux.HandleFunc("/v1/admin/solve-runs/", s.SolveRunByIDHandler)
	return mux
}

// Handler is Routes wrapped with request logging and metrics.
func (s *Server) Handler() http.Handler {
	return Instrument(LogRequests(s.Log, s.Routes()))
}

// Close stops every session and releases the store and broker.
func (s *Server) Close() error {
	s.Registry.Close()
	var first error
	for _, c := range s.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (s *Server) checkOrigin(r *http.Request) bool {
	allowed := s.Cfg.Server.AllowOrigins
	if len(allowed) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, o := range allowed {
		if o == "*" || strings.EqualFold(o, origin) {
			return true
		}
	}
	return false
}
