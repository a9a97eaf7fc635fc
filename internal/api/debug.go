package api

import (
	"net/http"
	"time"

	"ridedispatch/internal/buildinfo"
)

func (s *Server) DebugJSON(w http.ResponseWriter, r *http.Request) {
	c := s.Cfg
	info := map[string]any{
		"build": buildinfo.Info(),
		"time":  time.Now().UTC().Format(time.RFC3339),
		"config": map[string]any{
			"PORT":             c.Server.Port,
			"ALLOW_ORIGINS":    c.Server.AllowOrigins,
			"RUNNER_BASE_URL":  c.Runner.BaseURL,
			"BACKEND_BASE_URL": c.Backend.BaseURL,
			"TICK_INTERVAL":    c.Sim.TickInterval.String(),
			"SUBSCRIBER_QUEUE": c.Sim.QueueSize,
			"DEFAULT_POLICY":   c.Sim.DefaultPolicy,
			"ALNS_ITERATIONS":  c.ALNS.Iterations,
			"HAS_DATABASE_URL": c.Storage.DatabaseURL != "",
			"HAS_REDIS_URL":    c.Storage.RedisURL != "",
		},
		"sessions": len(s.Registry.Sessions()),
	}
	writeJSON(w, http.StatusOK, info)
}
