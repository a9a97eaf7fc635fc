package sim

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ridedispatch/internal/dispatch"
	"ridedispatch/internal/model"
)

type recorder struct {
	mu    sync.Mutex
	snaps []model.Scenario
}

func (r *recorder) emit(s model.Scenario) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps = append(r.snaps, s)
	return nil
}

func (r *recorder) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.snaps)
}

func TestRunEmitsInitialThenEveryTick(t *testing.T) {
	fr := newFakeRunner("s1", 2, 3, 4)
	c := NewController(fr, time.Millisecond, nil)
	var rec recorder

	err := c.Run(context.Background(), "s1", 2.5, dispatch.Greedy{}, rec.emit)
	require.NoError(t, err)
	require.Len(t, rec.snaps, 5)
	assert.False(t, rec.snaps[0].Done(), "initial snapshot first")
	assert.True(t, rec.snaps[4].Done())
	assert.Equal(t, 2.5, fr.speed)
	require.NotEmpty(t, fr.updates)
	// first tick: two free vehicles, three awaiting customers
	assert.Len(t, fr.updates[0].Vehicles, 2)
}

func TestLoopStopsOnRunnerRejection(t *testing.T) {
	fr := newFakeRunner("s1", 1, 1, 10)
	fr.failIDs = []string{"v0"}
	c := NewController(fr, time.Millisecond, nil)
	var rec recorder

	err := c.Run(context.Background(), "s1", 1, dispatch.Greedy{}, rec.emit)
	var inv *InvariantError
	require.ErrorAs(t, err, &inv)
	assert.Equal(t, []string{"v0"}, inv.Rejected)
	assert.Equal(t, "s1", inv.Snapshot.ID)
	assert.Len(t, inv.Delta.Vehicles, 1)
	assert.Equal(t, 1, rec.len(), "only the initial snapshot went out")
	assert.Equal(t, "s1", inv.Fields()["scenarioId"])
}

type twicePolicy struct{}

func (twicePolicy) Name() string { return "twice" }

func (twicePolicy) Assign(_ context.Context, s model.Scenario) (model.UpdateScenario, error) {
	return model.UpdateScenario{Vehicles: []model.UpdateVehicle{{ID: "v0", CustomerID: "c0"}, {ID: "v1", CustomerID: "c0"}}}, nil
}

func TestLoopRejectsInvalidDeltaBeforeUpdate(t *testing.T) {
	fr := newFakeRunner("s1", 2, 2, 10)
	c := NewController(fr, time.Millisecond, nil)
	var rec recorder

	err := c.Run(context.Background(), "s1", 1, twicePolicy{}, rec.emit)
	var inv *InvariantError
	require.ErrorAs(t, err, &inv)
	assert.Equal(t, []string{"v1"}, inv.Rejected)
	assert.Empty(t, fr.updates)
}

func TestLoopCancellation(t *testing.T) {
	fr := newFakeRunner("s1", 1, 1, 1<<30)
	c := NewController(fr, time.Millisecond, nil)
	var rec recorder
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx, "s1", 1, dispatch.Greedy{}, rec.emit) }()

	require.Eventually(t, func() bool { return rec.len() > 3 }, time.Second, time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("loop did not stop")
	}
}

func TestRunInitializeError(t *testing.T) {
	fr := newFakeRunner("s1", 1, 1, 1)
	fr.initErr = errors.New("no such scenario")
	var rec recorder
	err := NewController(fr, 0, nil).Run(context.Background(), "s1", 1, dispatch.Greedy{}, rec.emit)
	assert.ErrorContains(t, err, "no such scenario")
	assert.Zero(t, rec.len())
}

func TestLoopPacing(t *testing.T) {
	fr := newFakeRunner("s1", 1, 1, 4)
	c := NewController(fr, 20*time.Millisecond, nil)
	var rec recorder
	start := time.Now()
	require.NoError(t, c.Run(context.Background(), "s1", 1, dispatch.Greedy{}, rec.emit))
	// four ticks, the first one immediate
	assert.GreaterOrEqual(t, time.Since(start), 55*time.Millisecond)
}

func TestCheckDelta(t *testing.T) {
	snap := newFakeRunner("s", 2, 1, 1).snapshot()
	assert.NoError(t, CheckDelta(snap, model.UpdateScenario{}))
	assert.NoError(t, CheckDelta(snap, model.UpdateScenario{Vehicles: []model.UpdateVehicle{{ID: "v0", CustomerID: "c0"}}}))

	err := CheckDelta(snap, model.UpdateScenario{Vehicles: []model.UpdateVehicle{{ID: "v0", CustomerID: "c0"}, {ID: "v1", CustomerID: "c1"}}})
	var inv *InvariantError
	require.ErrorAs(t, err, &inv)
	assert.Equal(t, []string{"v0", "v1"}, inv.Rejected)

	snap = newFakeRunner("s", 2, 2, 1).snapshot()
	err = CheckDelta(snap, model.UpdateScenario{Vehicles: []model.UpdateVehicle{{ID: "v0", CustomerID: "c0"}, {ID: "v0", CustomerID: "c1"}}})
	require.ErrorAs(t, err, &inv)
	assert.Equal(t, []string{"v0"}, inv.Rejected)
}

func TestInvariantErrorFieldsSerialize(t *testing.T) {
	inv := &InvariantError{Snapshot: model.Scenario{ID: "s"}, Rejected: []string{"v"}, Reason: "x"}
	_, err := json.Marshal(inv.Fields())
	assert.NoError(t, err)
	assert.Contains(t, inv.Error(), "[v]")
}
