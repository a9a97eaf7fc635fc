package opt

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ridedispatch/internal/model"
)

// euclid keeps expected values easy to compute by hand.
var euclid = MetricFunc(func(x1, y1, x2, y2 float64) float64 {
	return math.Hypot(x2-x1, y2-y1)
})

func TestInsertionCostCases(t *testing.T) {
	v := model.Vehicle{ID: "v", CoordX: 0, CoordY: 0}
	c := cust("n", 3, 0, 4, 0)
	// empty route: deadhead only
	assert.Equal(t, 3.0, InsertionCost(v, nil, c, 0, euclid))

	route := []model.Customer{cust("a", 1, 0, 2, 0), cust("b", 10, 0, 11, 0)}
	// front: v->n + n.dest->a - v->a = 3 + 3 - 1
	assert.InDelta(t, 5.0, InsertionCost(v, route, c, 0, euclid), 1e-9)
	// middle: a.dest->n + n.dest->b - a.dest->b = 1 + 6 - 8
	assert.InDelta(t, -1.0, InsertionCost(v, route, c, 1, euclid), 1e-9)
	// end: b.dest->n only, no return leg
	assert.InDelta(t, 8.0, InsertionCost(v, route, c, 2, euclid), 1e-9)
}

func TestGreedyInsertionPicksStrictMinimum(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	v := []model.Vehicle{{ID: "v", CoordX: 0, CoordY: 0, IsAvailable: true}}
	for trial := 0; trial < 50; trial++ {
		route := []model.Customer{
			cust("a", rng.Float64()*10, rng.Float64()*10, rng.Float64()*10, rng.Float64()*10),
			cust("b", rng.Float64()*10, rng.Float64()*10, rng.Float64()*10, rng.Float64()*10),
			cust("c", rng.Float64()*10, rng.Float64()*10, rng.Float64()*10, rng.Float64()*10),
		}
		n := cust("n", rng.Float64()*10, rng.Float64()*10, rng.Float64()*10, rng.Float64()*10)

		wantPos, wantCost := -1, math.MaxFloat64
		for pos := 0; pos <= len(route); pos++ {
			if c := InsertionCost(v[0], route, n, pos, euclid); c < wantCost {
				wantPos, wantCost = pos, c
			}
		}

		s := Solution{Routes: [][]model.Customer{append([]model.Customer(nil), route...)}}
		GreedyInsertion{}.Repair(v, &s, []model.Customer{n}, euclid)
		require.Len(t, s.Routes[0], 4)
		assert.Equal(t, "n", s.Routes[0][wantPos].ID, "trial %d", trial)
	}
}

func TestGreedyInsertionTiesFirstFound(t *testing.T) {
	flat := MetricFunc(func(_, _, _, _ float64) float64 { return 1 })
	v := []model.Vehicle{{ID: "v1"}, {ID: "v2"}}
	s := Solution{Routes: [][]model.Customer{
		{cust("a", 0, 0, 0, 0), cust("b", 0, 0, 0, 0)},
		{cust("c", 0, 0, 0, 0)},
	}}
	// every front/middle insertion costs 1, every append costs 1: first scan wins
	GreedyInsertion{}.Repair(v, &s, []model.Customer{cust("n", 0, 0, 0, 0)}, flat)
	assert.Equal(t, []string{"n", "a", "b"}, routeIDs(s.Routes[0]))
	assert.Equal(t, []string{"c"}, routeIDs(s.Routes[1]))
}

func TestGreedyInsertionUsesEmptyRoute(t *testing.T) {
	v := []model.Vehicle{{ID: "far", CoordX: 100, CoordY: 100}, {ID: "near", CoordX: 0, CoordY: 0}}
	s := Solution{Routes: [][]model.Customer{{cust("a", 90, 90, 95, 95)}, {}}}
	GreedyInsertion{}.Repair(v, &s, []model.Customer{cust("n", 1, 1, 2, 2)}, euclid)
	assert.Equal(t, []string{"n"}, routeIDs(s.Routes[1]))
}

func TestRepairersKeepEveryCustomer(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	vehicles := []model.Vehicle{{ID: "v1"}, {ID: "v2"}, {ID: "v3"}}
	for _, r := range []Repairer{GreedyInsertion{}, RegretInsertion{}} {
		s := randomSolution(rng, 3, 25)
		removed := RemoveAt(&s, ShawRemoval{}.Destroy(s, euclid, 8, rng))
		require.Len(t, removed, 8)
		r.Repair(vehicles, &s, removed, euclid)
		assert.Equal(t, 25, s.Visits(), r.Name())
		seen := map[string]bool{}
		for _, route := range s.Routes {
			for _, c := range route {
				assert.False(t, seen[c.ID], "%s duplicated by %s", c.ID, r.Name())
				seen[c.ID] = true
			}
		}
	}
}

func TestImproveRoute2OptNeverWorse(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	v := model.Vehicle{ID: "v"}
	route := make([]model.Customer, 0, 8)
	for i := 0; i < 8; i++ {
		route = append(route, cust(string(rune('a'+i)), rng.Float64()*10, rng.Float64()*10, rng.Float64()*10, rng.Float64()*10))
	}
	got := ImproveRoute2Opt(v, route, euclid, 5)
	assert.Len(t, got, len(route))
	assert.LessOrEqual(t, RouteCost(v, got, euclid), RouteCost(v, route, euclid)+1e-9)
}
