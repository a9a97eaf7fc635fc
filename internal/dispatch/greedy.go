package dispatch

import (
	"context"

	"ridedispatch/internal/model"
)

// Greedy assigns each pending customer, in snapshot order, to the closest
// free vehicle by squared Euclidean distance on raw coordinates.
type Greedy struct{}

func (Greedy) Name() string { return model.PolicyGreedy }

func (Greedy) Assign(_ context.Context, snap model.Scenario) (model.UpdateScenario, error) {
	pool := freeVehicles(snap)
	out := model.UpdateScenario{Vehicles: []model.UpdateVehicle{}}
	for _, c := range pendingCustomers(snap) {
		if len(pool) == 0 {
			break
		}
		best, bestDist := -1, 0.0
		for i, v := range pool {
			dx, dy := v.CoordX-c.CoordX, v.CoordY-c.CoordY
			if d := dx*dx + dy*dy; best < 0 || d < bestDist {
				best, bestDist = i, d
			}
		}
		out.Vehicles = append(out.Vehicles, model.UpdateVehicle{ID: pool[best].ID, CustomerID: c.ID})
		pool = append(pool[:best], pool[best+1:]...)
	}
	return out, nil
}
