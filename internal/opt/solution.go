package opt

import "ridedispatch/internal/model"

// Solution holds one ordered route of customer visits per vehicle. Route i
// always belongs to the i-th vehicle the solve started with.
type Solution struct {
	Routes [][]model.Customer
}

// Position addresses a single visit inside a Solution.
type Position struct {
	Route int
	Index int
}

func NewSolution(vehicles int) Solution {
	routes := make([][]model.Customer, vehicles)
	for i := range routes {
		routes[i] = []model.Customer{}
	}
	return Solution{Routes: routes}
}

// Clone returns a deep copy so destroy/repair can work on a candidate.
func (s Solution) Clone() Solution {
	out := Solution{Routes: make([][]model.Customer, len(s.Routes))}
	for i, r := range s.Routes {
		out.Routes[i] = append(make([]model.Customer, 0, len(r)+1), r...)
	}
	return out
}

// Visits is the total number of scheduled customer visits.
func (s Solution) Visits() int {
	n := 0
	for _, r := range s.Routes {
		n += len(r)
	}
	return n
}

func (s Solution) positions() []Position {
	out := make([]Position, 0, s.Visits())
	for i, r := range s.Routes {
		for j := range r {
			out = append(out, Position{Route: i, Index: j})
		}
	}
	return out
}

// Cost sums RouteCost over all routes.
func (s Solution) Cost(vehicles []model.Vehicle, m Metric) float64 {
	total := 0.0
	for i, r := range s.Routes {
		total += RouteCost(vehicles[i], r, m)
	}
	return total
}

// RouteCost is the distance a vehicle drives to serve its route in order:
// deadhead to each pickup plus the trip itself. No return leg is charged.
func RouteCost(v model.Vehicle, route []model.Customer, m Metric) float64 {
	cur := v.Position()
	total := 0.0
	for _, c := range route {
		o, d := c.Origin(), c.Destination()
		total += m.Calculate(cur.X, cur.Y, o.X, o.Y) + m.Calculate(o.X, o.Y, d.X, d.Y)
		cur = d
	}
	return total
}

// Plan maps a vehicle id to its queue of planned customer ids.
type Plan map[string][]string

// PlanFrom extracts per-vehicle queues from a solution.
func PlanFrom(vehicles []model.Vehicle, s Solution) Plan {
	p := Plan{}
	for i, v := range vehicles {
		ids := make([]string, 0, len(s.Routes[i]))
		for _, c := range s.Routes[i] {
			ids = append(ids, c.ID)
		}
		p[v.ID] = ids
	}
	return p
}

// Pop consumes the next planned customer for a vehicle.
func (p Plan) Pop(vehicleID string) (string, bool) {
	q := p[vehicleID]
	if len(q) == 0 {
		return "", false
	}
	p[vehicleID] = q[1:]
	return q[0], true
}

// Remaining counts queued customer ids across all vehicles.
func (p Plan) Remaining() int {
	n := 0
	for _, q := range p {
		n += len(q)
	}
	return n
}
