package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// Registry is the dedicated Prometheus registry for the service
	Registry = prometheus.NewRegistry()
	// HTTPRequests counts requests by method, path, and status
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "path", "status"},
	)
	// HTTPDuration records request durations in seconds
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"method", "path", "status"},
	)

	// RunnerCalls counts runner/backend calls by operation and outcome
	RunnerCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "runner_calls_total", Help: "Runner and backend calls by operation and outcome."},
		[]string{"op", "outcome"},
	)
	// RunnerLatency tracks runner/backend call latency in seconds
	RunnerLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "runner_call_duration_seconds", Help: "Runner and backend call latency in seconds.", Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2, 5}},
		[]string{"op", "outcome"},
	)

	// Ticks counts simulation loop iterations by policy
	Ticks = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "sim_ticks_total", Help: "Simulation ticks by dispatch policy."},
		[]string{"policy"},
	)
	// Assignments counts vehicle-to-customer assignments sent to the runner
	Assignments = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "sim_assignments_total", Help: "Assignments sent to the runner by dispatch policy."},
		[]string{"policy"},
	)
	// InvariantViolations counts assignment deltas rejected locally or by the runner
	InvariantViolations = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "sim_invariant_violations_total", Help: "Assignment invariant violations."},
	)
	// ActiveSessions is the number of running simulation sessions
	ActiveSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "sim_active_sessions", Help: "Running simulation sessions."},
	)
	// Subscribers is the number of attached websocket subscribers
	Subscribers = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "sim_subscribers", Help: "Attached snapshot subscribers."},
	)
	// SlowConsumers counts subscribers disconnected for a full outbound queue
	SlowConsumers = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "sim_slow_consumers_total", Help: "Subscribers disconnected because their queue was full."},
	)

	// SolveDuration records ALNS solve durations in seconds
	SolveDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "alns_solve_duration_seconds", Help: "ALNS solve duration in seconds.", Buckets: prometheus.ExponentialBuckets(0.001, 2, 14)},
	)
	// SolveImprovement records the relative cost reduction of each solve
	SolveImprovement = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "alns_solve_improvement_ratio", Help: "1 - best/initial cost per ALNS solve.", Buckets: prometheus.LinearBuckets(0, 0.05, 11)},
	)
)

// RegisterDefault registers collectors to the service registry.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(HTTPRequests, HTTPDuration)
		Registry.MustRegister(RunnerCalls, RunnerLatency)
		Registry.MustRegister(Ticks, Assignments, InvariantViolations, ActiveSessions, Subscribers, SlowConsumers)
		Registry.MustRegister(SolveDuration, SolveImprovement)
		// Go/process collectors on our registry
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

var regOnce sync.Once
