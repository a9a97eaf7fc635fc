package opt

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"ridedispatch/internal/model"
)

// Defaults for Params fields left at their zero value.
const (
	DefaultIterations      = 50
	DefaultRemovalFraction = 0.2
	DefaultCooling         = 0.95
	defaultSnapshotEvery   = 10
)

// Params configures a Solve.
type Params struct {
	Iterations      int     // destroy/repair rounds; 0 means DefaultIterations
	RemovalFraction float64 // share of visits removed per round
	InitialTemp     float64 // SA start temperature; 0 derives 1% of the initial cost
	Cooling         float64 // temperature factor per round, in (0,1)
	Metric          Metric  // cost function; Haversine when nil
	Destroyers      []Destroyer
	Repairers       []Repairer
	DestroyWeights  []float64 // optional initial weights, aligned with Destroyers
	RepairWeights   []float64 // optional initial weights, aligned with Repairers
	LocalSearch     bool      // 2-opt each candidate route after repair
	SnapshotEvery   int
}

// Metrics summarises what happened during a Solve.
type Metrics struct {
	Iterations    int              `json:"iterations"`
	Improvements  int              `json:"improvements"`
	AcceptedWorse int              `json:"acceptedWorse"`
	Rejected      int              `json:"rejected"`
	RemovalCount  int              `json:"removalCount"`
	InitialCost   float64          `json:"initialCost"`
	BestCost      float64          `json:"bestCost"`
	FinalCost     float64          `json:"finalCost"`
	Destroy       []OperatorStat   `json:"destroy"`
	Repair        []OperatorStat   `json:"repair"`
	Snapshots     []WeightSnapshot `json:"snapshots,omitempty"`
	Duration      time.Duration    `json:"durationNs"`
}

// WeightSnapshot records each pool's selection probabilities at an iteration.
type WeightSnapshot struct {
	Iteration int       `json:"iteration"`
	Destroy   []float64 `json:"destroy"`
	Repair    []float64 `json:"repair"`
}

// Result is the outcome of a Solve: the best solution found, the vehicles
// its routes are indexed by, and the derived plan.
type Result struct {
	Vehicles []model.Vehicle
	Solution Solution
	Plan     Plan
	Metrics  Metrics
}

var errInvalidParams = errors.New("opt: invalid params")

func (p Params) withDefaults() (Params, error) {
	if p.Iterations < 0 {
		return p, fmt.Errorf("%w: iterations must be >= 0", errInvalidParams)
	}
	if p.Iterations == 0 {
		p.Iterations = DefaultIterations
	}
	if p.RemovalFraction == 0 {
		p.RemovalFraction = DefaultRemovalFraction
	}
	if p.RemovalFraction < 0 || p.RemovalFraction > 1 {
		return p, fmt.Errorf("%w: removal fraction must be in (0,1]", errInvalidParams)
	}
	if p.Cooling == 0 {
		p.Cooling = DefaultCooling
	}
	if p.Cooling <= 0 || p.Cooling >= 1 {
		return p, fmt.Errorf("%w: cooling must be in (0,1)", errInvalidParams)
	}
	if p.InitialTemp < 0 {
		return p, fmt.Errorf("%w: initial temperature must be >= 0", errInvalidParams)
	}
	if p.Metric == nil {
		p.Metric = Haversine{}
	}
	if len(p.Destroyers) == 0 {
		p.Destroyers = []Destroyer{ShawRemoval{}, RandomRemoval{}}
	}
	if len(p.Repairers) == 0 {
		p.Repairers = []Repairer{GreedyInsertion{}, RegretInsertion{}}
	}
	if p.SnapshotEvery <= 0 {
		p.SnapshotEvery = defaultSnapshotEvery
	}
	return p, nil
}

// Solve runs ALNS over the available vehicles and awaiting customers of a
// snapshot. It keeps the best solution by total route cost and accepts
// worse candidates with simulated-annealing probability. Cancelling ctx
// stops the search early; the best solution so far is still returned.
func Solve(ctx context.Context, vehicles []model.Vehicle, customers []model.Customer, p Params, rng *rand.Rand) (Result, error) {
	p, err := p.withDefaults()
	if err != nil {
		return Result{}, err
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	start := time.Now()

	vs := make([]model.Vehicle, 0, len(vehicles))
	for _, v := range vehicles {
		if v.IsAvailable {
			vs = append(vs, v)
		}
	}
	cs := make([]model.Customer, 0, len(customers))
	for _, c := range customers {
		if c.AwaitingService {
			cs = append(cs, c)
		}
	}

	// CONSTRUCTED
	curr, err := Construct(vs, cs, p.Metric)
	if err != nil {
		return Result{}, err
	}
	currCost := curr.Cost(vs, p.Metric)
	best, bestCost := curr, currCost

	destroyers := NewPool(p.Destroyers, p.DestroyWeights)
	repairers := NewPool(p.Repairers, p.RepairWeights)
	q := RemovalCount(curr.Visits(), p.RemovalFraction)
	temp := p.InitialTemp
	if temp == 0 {
		temp = math.Max(1e-6, 0.01*currCost)
	}
	m := Metrics{InitialCost: currCost, BestCost: bestCost, RemovalCount: q}

	// ITERATING
	for it := 0; it < p.Iterations && q > 0; it++ {
		if ctx.Err() != nil {
			break
		}
		m.Iterations++
		di, d := destroyers.Pick(rng)
		ri, r := repairers.Pick(rng)

		cand := curr.Clone()
		removed := RemoveAt(&cand, d.Destroy(cand, p.Metric, q, rng))
		r.Repair(vs, &cand, removed, p.Metric)
		if p.LocalSearch {
			ImproveSolution(vs, &cand, p.Metric)
		}
		candCost := cand.Cost(vs, p.Metric)

		outcome := OutcomeRejected
		delta := candCost - currCost
		if delta < 0 || rng.Float64() < math.Exp(-delta/(temp+1e-9)) {
			curr, currCost = cand, candCost
			outcome = OutcomeAccepted
			if candCost+1e-9 < bestCost {
				best, bestCost = cand, candCost
				outcome = OutcomeBest
			}
		}
		switch outcome {
		case OutcomeBest:
			m.Improvements++
		case OutcomeAccepted:
			if delta > 0 {
				m.AcceptedWorse++
			}
		default:
			m.Rejected++
		}
		destroyers.Reward(di, outcome)
		repairers.Reward(ri, outcome)
		temp *= p.Cooling

		if m.Iterations%p.SnapshotEvery == 0 {
			m.Snapshots = append(m.Snapshots, WeightSnapshot{Iteration: m.Iterations, Destroy: destroyers.Share(), Repair: repairers.Share()})
		}
	}

	// DONE
	m.BestCost = bestCost
	m.FinalCost = currCost
	m.Destroy = destroyers.Stats()
	m.Repair = repairers.Stats()
	m.Duration = time.Since(start)
	return Result{Vehicles: vs, Solution: best, Plan: PlanFrom(vs, best), Metrics: m}, nil
}
