package opt

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
)

// Weight rewards applied after each iteration.
const (
	rewardBest     = 0.1
	rewardAccepted = 0.01
	decayRejected  = 0.999
	minWeight      = 0.01
)

// SelectOperator draws an index by roulette wheel: r in [0, sum), subtract
// weights in order and stop once the remainder is <= 0.
func SelectOperator(weights []float64, rng *rand.Rand) int {
	if len(weights) == 0 {
		return -1
	}
	sum := floats.Sum(weights)
	if sum <= 0 {
		return 0
	}
	r := rng.Float64() * sum
	for i, w := range weights {
		r -= w
		if r <= 0 {
			return i
		}
	}
	return len(weights) - 1
}

// Pool keeps an ordered set of interchangeable operators aligned with
// their selection weights.
type Pool[T interface{ Name() string }] struct {
	ops     []T
	weights []float64
	selects []int
}

// NewPool registers ops with uniform weights, or with the given initial
// weights when their length matches.
func NewPool[T interface{ Name() string }](ops []T, initial []float64) *Pool[T] {
	w := make([]float64, len(ops))
	if len(initial) == len(ops) {
		copy(w, initial)
	} else {
		for i := range w {
			w[i] = 1
		}
	}
	return &Pool[T]{ops: ops, weights: w, selects: make([]int, len(ops))}
}

func (p *Pool[T]) Len() int { return len(p.ops) }

// Pick selects an operator by weight.
func (p *Pool[T]) Pick(rng *rand.Rand) (int, T) {
	i := SelectOperator(p.weights, rng)
	p.selects[i]++
	return i, p.ops[i]
}

// Reward adjusts the weight of operator i after an iteration outcome.
func (p *Pool[T]) Reward(i int, o Outcome) {
	switch o {
	case OutcomeBest:
		p.weights[i] += rewardBest
	case OutcomeAccepted:
		p.weights[i] += rewardAccepted
	default:
		p.weights[i] = math.Max(minWeight, p.weights[i]*decayRejected)
	}
}

// Weights returns a copy of the current weights.
func (p *Pool[T]) Weights() []float64 { return append([]float64(nil), p.weights...) }

// Share returns the weights normalised to sum to one.
func (p *Pool[T]) Share() []float64 {
	out := p.Weights()
	if s := floats.Sum(out); s > 0 {
		floats.Scale(1/s, out)
	}
	return out
}

// Stats reports per-operator selections and final weights.
func (p *Pool[T]) Stats() []OperatorStat {
	out := make([]OperatorStat, len(p.ops))
	for i, op := range p.ops {
		out[i] = OperatorStat{Name: op.Name(), Selects: p.selects[i], Weight: p.weights[i]}
	}
	return out
}

// Outcome classifies one destroy/repair iteration.
type Outcome int

const (
	OutcomeRejected Outcome = iota
	OutcomeAccepted
	OutcomeBest
)

type OperatorStat struct {
	Name    string  `json:"name"`
	Selects int     `json:"selects"`
	Weight  float64 `json:"weight"`
}
