package dispatch

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"ridedispatch/internal/logger"
	"ridedispatch/internal/metrics"
	"ridedispatch/internal/model"
	"ridedispatch/internal/opt"
	"ridedispatch/internal/store"
)

// PlannedConfig configures the ALNS-backed policy.
type PlannedConfig struct {
	Params opt.Params
	// Seed fixes the search RNG; 0 seeds from the clock.
	Seed  int64
	Store store.Store // optional solve telemetry sink
	Log   logger.Logger
}

// Planned solves the open customers with ALNS and then hands out the
// resulting per-vehicle queues one customer per free vehicle per tick.
// It re-solves when the queues run dry while customers still wait, or when
// a free vehicle is idle while an unplanned customer waits.
type Planned struct {
	cfg     PlannedConfig
	rng     *rand.Rand
	log     logger.Logger
	plan    opt.Plan
	planned map[string]struct{}
	solves  int
	last    opt.Metrics
}

func NewPlanned(cfg PlannedConfig) *Planned {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	log := cfg.Log
	if log == nil {
		log = logger.NopLogger{}
	}
	return &Planned{cfg: cfg, rng: rand.New(rand.NewSource(seed)), log: log}
}

func (p *Planned) Name() string { return model.PolicyALNS }

// Solves is the number of ALNS runs made so far.
func (p *Planned) Solves() int { return p.solves }

// LastMetrics returns the metrics of the most recent solve.
func (p *Planned) LastMetrics() opt.Metrics { return p.last }

func (p *Planned) Assign(ctx context.Context, snap model.Scenario) (model.UpdateScenario, error) {
	out := model.UpdateScenario{Vehicles: []model.UpdateVehicle{}}
	free := freeVehicles(snap)
	pending := pendingCustomers(snap)
	if len(free) == 0 || len(pending) == 0 {
		return out, nil
	}
	open := make(map[string]bool, len(pending))
	for _, c := range pending {
		open[c.ID] = true
	}
	if p.plan == nil || p.stale(free, open) {
		if err := p.solve(ctx, snap.ID, free, pending); err != nil {
			return out, err
		}
	}
	for _, v := range free {
		if id, ok := p.next(v.ID, open); ok {
			out.Vehicles = append(out.Vehicles, model.UpdateVehicle{ID: v.ID, CustomerID: id})
			delete(open, id)
		}
	}
	return out, nil
}

// next pops the vehicle's queue until it yields a customer that is still open.
func (p *Planned) next(vehicleID string, open map[string]bool) (string, bool) {
	for {
		id, ok := p.plan.Pop(vehicleID)
		if !ok {
			return "", false
		}
		if open[id] {
			return id, true
		}
	}
}

func (p *Planned) usable(vehicleID string, open map[string]bool) bool {
	for _, id := range p.plan[vehicleID] {
		if open[id] {
			return true
		}
	}
	return false
}

// stale reports whether the plan no longer covers the open customers: no
// queue holds an open customer, or a free vehicle is idle while an open
// customer is missing from the plan.
func (p *Planned) stale(free []model.Vehicle, open map[string]bool) bool {
	dry := true
	for vid := range p.plan {
		if p.usable(vid, open) {
			dry = false
			break
		}
	}
	if dry {
		return true
	}
	unplanned := false
	for id := range open {
		if _, ok := p.planned[id]; !ok {
			unplanned = true
			break
		}
	}
	if !unplanned {
		return false
	}
	for _, v := range free {
		if !p.usable(v.ID, open) {
			return true
		}
	}
	return false
}

func (p *Planned) solve(ctx context.Context, scenarioID string, free []model.Vehicle, pending []model.Customer) error {
	res, err := opt.Solve(ctx, free, pending, p.cfg.Params, p.rng)
	if err != nil {
		return fmt.Errorf("alns solve: %w", err)
	}
	p.plan = res.Plan
	p.planned = make(map[string]struct{}, len(pending))
	for _, c := range pending {
		p.planned[c.ID] = struct{}{}
	}
	p.solves++
	p.last = res.Metrics

	m := res.Metrics
	metrics.SolveDuration.Observe(m.Duration.Seconds())
	if m.InitialCost > 0 {
		metrics.SolveImprovement.Observe(1 - m.BestCost/m.InitialCost)
	}
	p.log.Debugw("alns solve", map[string]any{
		"scenarioId":   scenarioID,
		"vehicles":     len(free),
		"customers":    len(pending),
		"iterations":   m.Iterations,
		"improvements": m.Improvements,
		"initialCost":  m.InitialCost,
		"bestCost":     m.BestCost,
	})
	if p.cfg.Store != nil {
		run := store.SolveRun{ScenarioID: scenarioID, Policy: p.Name(), Vehicles: len(free), Customers: len(pending), Metrics: m}
		if _, err := p.cfg.Store.SaveSolveRun(ctx, run); err != nil {
			p.log.Warnf("save solve run for %s: %v", scenarioID, err)
		}
	}
	return nil
}
