package opt

import (
	"math"

	"ridedispatch/internal/model"
)

// Repairer reinserts removed customers into a solution in place.
type Repairer interface {
	Name() string
	Repair(vehicles []model.Vehicle, s *Solution, removed []model.Customer, m Metric)
}

// GreedyInsertion inserts each removed customer, in removal order, at the
// position with the lowest marginal cost over all routes.
type GreedyInsertion struct{}

func (GreedyInsertion) Name() string { return "greedy" }

func (GreedyInsertion) Repair(vehicles []model.Vehicle, s *Solution, removed []model.Customer, m Metric) {
	for _, c := range removed {
		route, pos, _ := bestInsertion(vehicles, *s, c, m)
		if route < 0 {
			return
		}
		insertAt(s, route, pos, c)
	}
}

// RegretInsertion repeatedly inserts the customer whose best and second
// best positions differ the most (regret-2).
type RegretInsertion struct{}

func (RegretInsertion) Name() string { return "regret2" }

func (RegretInsertion) Repair(vehicles []model.Vehicle, s *Solution, removed []model.Customer, m Metric) {
	nodes := append([]model.Customer(nil), removed...)
	for len(nodes) > 0 {
		pick, pickRoute, pickPos := -1, -1, -1
		bestRegret, bestCost := -1.0, math.MaxFloat64
		for ni, c := range nodes {
			best1, best2 := math.MaxFloat64, math.MaxFloat64
			br, bp := -1, -1
			for ri, r := range s.Routes {
				for pos := 0; pos <= len(r); pos++ {
					d := InsertionCost(vehicles[ri], r, c, pos, m)
					if d < best1 {
						best2 = best1
						best1 = d
						br, bp = ri, pos
					} else if d < best2 {
						best2 = d
					}
				}
			}
			if br < 0 {
				continue
			}
			regret := best2 - best1
			if regret > bestRegret || (regret == bestRegret && best1 < bestCost) {
				pick, pickRoute, pickPos = ni, br, bp
				bestRegret, bestCost = regret, best1
			}
		}
		if pick < 0 {
			return
		}
		insertAt(s, pickRoute, pickPos, nodes[pick])
		nodes = append(nodes[:pick], nodes[pick+1:]...)
	}
}

// InsertionCost is the marginal cost of putting c at index pos of route,
// served by v. Appending after the last stop charges only the deadhead to
// the new pickup.
func InsertionCost(v model.Vehicle, route []model.Customer, c model.Customer, pos int, m Metric) float64 {
	o, d := c.Origin(), c.Destination()
	if len(route) == 0 {
		p := v.Position()
		return m.Calculate(p.X, p.Y, o.X, o.Y)
	}
	if pos >= len(route) {
		last := route[len(route)-1].Destination()
		return m.Calculate(last.X, last.Y, o.X, o.Y)
	}
	var prev model.Coordinate
	if pos == 0 {
		prev = v.Position()
	} else {
		prev = route[pos-1].Destination()
	}
	next := route[pos].Origin()
	added := m.Calculate(prev.X, prev.Y, o.X, o.Y) + m.Calculate(d.X, d.Y, next.X, next.Y)
	return added - m.Calculate(prev.X, prev.Y, next.X, next.Y)
}

// bestInsertion scans routes in order and positions front to back; only a
// strictly cheaper position replaces the current best.
func bestInsertion(vehicles []model.Vehicle, s Solution, c model.Customer, m Metric) (int, int, float64) {
	bestRoute, bestPos := -1, -1
	bestCost := math.MaxFloat64
	for ri, r := range s.Routes {
		for pos := 0; pos <= len(r); pos++ {
			d := InsertionCost(vehicles[ri], r, c, pos, m)
			if d < bestCost {
				bestRoute, bestPos, bestCost = ri, pos, d
			}
		}
	}
	return bestRoute, bestPos, bestCost
}

func insertAt(s *Solution, route, pos int, c model.Customer) {
	r := s.Routes[route]
	if pos >= len(r) {
		s.Routes[route] = append(r, c)
		return
	}
	r = append(r[:pos+1], r[pos:]...)
	r[pos] = c
	s.Routes[route] = r
}
