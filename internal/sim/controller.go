// Package sim drives simulated scenarios tick by tick and fans the
// resulting snapshots out to subscribers.
package sim

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"ridedispatch/internal/dispatch"
	"ridedispatch/internal/logger"
	"ridedispatch/internal/metrics"
	"ridedispatch/internal/model"
)

// Runner is the part of the scenario runner the loop drives.
type Runner interface {
	Initialize(ctx context.Context, scenarioID string) (model.Scenario, error)
	Launch(ctx context.Context, scenarioID string, speed float64) (model.LaunchScenarioResponse, error)
	Get(ctx context.Context, scenarioID string) (model.Scenario, error)
	Update(ctx context.Context, scenarioID string, delta model.UpdateScenario) (model.UpdateScenarioResponse, error)
}

// EmitFunc receives every snapshot in order.
type EmitFunc func(model.Scenario) error

// DefaultTick is the pause between two loop iterations.
const DefaultTick = 100 * time.Millisecond

type Controller struct {
	Runner Runner
	Tick   time.Duration
	Log    logger.Logger
}

func NewController(r Runner, tick time.Duration, log logger.Logger) *Controller {
	if tick <= 0 {
		tick = DefaultTick
	}
	if log == nil {
		log = logger.NopLogger{}
	}
	return &Controller{Runner: r, Tick: tick, Log: log}
}

// Run initializes the scenario in the runner and loops it to completion.
func (c *Controller) Run(ctx context.Context, scenarioID string, speed float64, policy dispatch.Policy, emit EmitFunc) error {
	initial, err := c.Runner.Initialize(ctx, scenarioID)
	if err != nil {
		return fmt.Errorf("initialize scenario %s: %w", scenarioID, err)
	}
	return c.Loop(ctx, initial, speed, policy, emit)
}

// Loop emits the initial snapshot, launches the scenario, then on every
// tick assigns, updates, fetches and emits, until the runner reports the
// scenario terminal or ctx is cancelled.
func (c *Controller) Loop(ctx context.Context, initial model.Scenario, speed float64, policy dispatch.Policy, emit EmitFunc) error {
	id := initial.ID
	if err := emit(initial); err != nil {
		return fmt.Errorf("emit initial snapshot: %w", err)
	}
	launch, err := c.Runner.Launch(ctx, id, speed)
	if err != nil {
		return fmt.Errorf("launch scenario %s: %w", id, err)
	}
	c.Log.Infof("scenario %s launched at speed %g (policy %s, start %s)", id, speed, policy.Name(), launch.StartTime)

	pace := rate.NewLimiter(rate.Every(c.Tick), 1)
	snap := initial
	for !snap.Done() {
		if err := pace.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		metrics.Ticks.WithLabelValues(policy.Name()).Inc()

		delta, err := policy.Assign(ctx, snap)
		if err != nil {
			return fmt.Errorf("assign %s: %w", id, err)
		}
		if err := CheckDelta(snap, delta); err != nil {
			metrics.InvariantViolations.Inc()
			return err
		}
		if len(delta.Vehicles) > 0 {
			resp, err := c.Runner.Update(ctx, id, delta)
			if err != nil {
				return fmt.Errorf("update scenario %s: %w", id, err)
			}
			if len(resp.FailedToUpdate) > 0 {
				metrics.InvariantViolations.Inc()
				return &InvariantError{Snapshot: snap, Delta: delta, Rejected: resp.FailedToUpdate, Reason: "runner rejected assignments"}
			}
			metrics.Assignments.WithLabelValues(policy.Name()).Add(float64(len(delta.Vehicles)))
		}

		snap, err = c.Runner.Get(ctx, id)
		if err != nil {
			return fmt.Errorf("get scenario %s: %w", id, err)
		}
		if err := emit(snap); err != nil {
			return fmt.Errorf("emit snapshot: %w", err)
		}
	}
	c.Log.Infof("scenario %s finished at %s", id, *snap.EndTime)
	return nil
}

// InvariantError reports an assignment delta that must not reach, or was
// refused by, the runner. It is never retried.
type InvariantError struct {
	Snapshot model.Scenario
	Delta    model.UpdateScenario
	Rejected []string
	Reason   string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("assignment invariant violated for scenario %s: %s [%s]", e.Snapshot.ID, e.Reason, strings.Join(e.Rejected, ","))
}

// Fields returns structured log fields describing the violation.
func (e *InvariantError) Fields() map[string]any {
	return map[string]any{
		"scenarioId": e.Snapshot.ID,
		"reason":     e.Reason,
		"rejected":   e.Rejected,
		"delta":      e.Delta,
		"snapshot":   e.Snapshot,
	}
}

// CheckDelta validates an assignment delta against the snapshot it was
// computed from: at most min(free vehicles, awaiting customers) entries,
// each vehicle and customer at most once.
func CheckDelta(snap model.Scenario, delta model.UpdateScenario) error {
	free := len(snap.AvailableVehicles())
	awaiting := len(snap.AwaitingCustomers())
	if n := len(delta.Vehicles); n > min(free, awaiting) {
		ids := make([]string, 0, n)
		for _, a := range delta.Vehicles {
			ids = append(ids, a.ID)
		}
		return &InvariantError{Snapshot: snap, Delta: delta, Rejected: ids,
			Reason: fmt.Sprintf("%d assignments for %d free vehicles and %d awaiting customers", n, free, awaiting)}
	}
	seenV := map[string]bool{}
	seenC := map[string]bool{}
	var dup []string
	for _, a := range delta.Vehicles {
		if seenV[a.ID] || seenC[a.CustomerID] {
			dup = append(dup, a.ID)
		}
		seenV[a.ID], seenC[a.CustomerID] = true, true
	}
	if len(dup) > 0 {
		return &InvariantError{Snapshot: snap, Delta: delta, Rejected: dup, Reason: "vehicle or customer assigned twice"}
	}
	return nil
}
