package opt

import (
	"errors"
	"math"

	"ridedispatch/internal/model"
)

// ErrNoVehicles is returned when customers must be routed but no vehicle exists.
var ErrNoVehicles = errors.New("opt: no vehicles to route customers")

// Construct builds the initial solution by round-robin nearest neighbour:
// vehicles take turns appending the unassigned customer closest to their
// cursor (own position, or drop-off of their last customer).
func Construct(vehicles []model.Vehicle, customers []model.Customer, m Metric) (Solution, error) {
	sol := NewSolution(len(vehicles))
	if len(customers) == 0 {
		return sol, nil
	}
	if len(vehicles) == 0 {
		return sol, ErrNoVehicles
	}
	remaining := append([]model.Customer(nil), customers...)
	vi := 0
	for len(remaining) > 0 {
		cur := cursor(vehicles[vi], sol.Routes[vi])
		bestIdx, bestCost := 0, math.MaxFloat64
		for i, c := range remaining {
			d := m.Calculate(c.CoordX, c.CoordY, cur.X, cur.Y)
			if d < bestCost {
				bestIdx = i
				bestCost = d
			}
		}
		sol.Routes[vi] = append(sol.Routes[vi], remaining[bestIdx])
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
		vi = (vi + 1) % len(vehicles)
	}
	return sol, nil
}

func cursor(v model.Vehicle, route []model.Customer) model.Coordinate {
	if len(route) == 0 {
		return v.Position()
	}
	return route[len(route)-1].Destination()
}
