package opt

import (
	"math"
	"math/rand"
	"sort"

	"ridedispatch/internal/model"
)

// Destroyer picks visits to take out of a solution.
type Destroyer interface {
	Name() string
	Destroy(s Solution, m Metric, q int, rng *rand.Rand) []Position
}

// RemovalCount is floor(total * fraction).
func RemovalCount(total int, fraction float64) int {
	if total <= 0 || fraction <= 0 {
		return 0
	}
	return int(math.Floor(float64(total) * fraction))
}

// ShawRemoval removes visits whose own trip cost is closest to that of a
// randomly chosen anchor visit. A small multiplicative noise keeps equal
// costs from always being removed in the same order.
type ShawRemoval struct{}

func (ShawRemoval) Name() string { return "shaw" }

func (ShawRemoval) Destroy(s Solution, m Metric, q int, rng *rand.Rand) []Position {
	type scored struct {
		pos  Position
		cost float64
		key  float64
	}
	all := s.positions()
	if len(all) == 0 || q <= 0 {
		return nil
	}
	items := make([]scored, len(all))
	for i, p := range all {
		c := s.Routes[p.Route][p.Index]
		o, d := c.Origin(), c.Destination()
		items[i] = scored{pos: p, cost: m.Calculate(o.X, o.Y, d.X, d.Y)}
	}
	anchor := items[rng.Intn(len(items))].cost
	// noise is drawn once per visit so the comparator stays consistent
	for i := range items {
		items[i].key = math.Abs(items[i].cost-anchor) * (0.95 + 0.1*rng.Float64())
	}
	sort.SliceStable(items, func(a, b int) bool { return items[a].key < items[b].key })
	if q > len(items) {
		q = len(items)
	}
	out := make([]Position, q)
	for i := 0; i < q; i++ {
		out[i] = items[i].pos
	}
	return out
}

// RandomRemoval removes q visits chosen uniformly.
type RandomRemoval struct{}

func (RandomRemoval) Name() string { return "random" }

func (RandomRemoval) Destroy(s Solution, _ Metric, q int, rng *rand.Rand) []Position {
	all := s.positions()
	if len(all) == 0 || q <= 0 {
		return nil
	}
	if q > len(all) {
		q = len(all)
	}
	out := make([]Position, 0, q)
	for _, i := range rng.Perm(len(all))[:q] {
		out = append(out, all[i])
	}
	return out
}

// RemoveAt takes the addressed visits out of s and returns them in the
// order the positions were given. Positions are removed per route from the
// highest index down, so earlier removals never shift later ones.
func RemoveAt(s *Solution, positions []Position) []model.Customer {
	if len(positions) == 0 {
		return nil
	}
	removed := make([]model.Customer, 0, len(positions))
	byRoute := map[int][]int{}
	seen := map[Position]bool{}
	for _, p := range positions {
		if seen[p] || p.Route < 0 || p.Route >= len(s.Routes) || p.Index < 0 || p.Index >= len(s.Routes[p.Route]) {
			continue
		}
		seen[p] = true
		removed = append(removed, s.Routes[p.Route][p.Index])
		byRoute[p.Route] = append(byRoute[p.Route], p.Index)
	}
	for r, idx := range byRoute {
		sort.Sort(sort.Reverse(sort.IntSlice(idx)))
		route := s.Routes[r]
		for _, j := range idx {
			route = append(route[:j], route[j+1:]...)
		}
		s.Routes[r] = route
	}
	return removed
}
