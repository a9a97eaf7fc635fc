package opt

import "ridedispatch/internal/model"

// ImproveRoute2Opt applies 2-opt segment reversals to a single route while
// they shorten it. The vehicle position is the fixed start of the route.
func ImproveRoute2Opt(v model.Vehicle, route []model.Customer, m Metric, iterations int) []model.Customer {
	if iterations <= 0 {
		iterations = 1
	}
	best := append([]model.Customer(nil), route...)
	bestCost := RouteCost(v, best, m)
	n := len(best)
	for it := 0; it < iterations; it++ {
		improved := false
		for i := 0; i < n-1; i++ {
			for k := i + 1; k < n; k++ {
				cand := twoOptSwap(best, i, k)
				c := RouteCost(v, cand, m)
				if c+1e-6 < bestCost {
					best = cand
					bestCost = c
					improved = true
				}
			}
		}
		if !improved {
			break
		}
	}
	return best
}

// ImproveSolution runs ImproveRoute2Opt on every route of s.
func ImproveSolution(vehicles []model.Vehicle, s *Solution, m Metric) {
	for i, r := range s.Routes {
		if len(r) < 2 {
			continue
		}
		s.Routes[i] = ImproveRoute2Opt(vehicles[i], r, m, 2)
	}
}

func twoOptSwap(ord []model.Customer, i, k int) []model.Customer {
	out := make([]model.Customer, len(ord))
	copy(out, ord[:i])
	// reverse i..k
	pos := i
	for j := k; j >= i; j-- {
		out[pos] = ord[j]
		pos++
	}
	copy(out[pos:], ord[k+1:])
	return out
}
