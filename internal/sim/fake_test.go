package sim

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ridedispatch/internal/model"
)

// fakeRunner serves a small scenario and finishes every trip on the next Get.
type fakeRunner struct {
	mu       sync.Mutex
	scenario model.Scenario
	endAfter int           // Get calls before the scenario ends
	gate     chan struct{} // when set, Get waits for it to close
	failIDs  []string
	initErr  error
	// updateDelay stalls Update without honoring cancellation, like a
	// runner that is slow to answer.
	updateDelay time.Duration

	inits    int
	gets     int
	speed    float64
	updates  []model.UpdateScenario
	inflight int // updates currently stalled
	overlaps int // initializes that ran while an update was stalled
}

func newFakeRunner(id string, vehicles, customers, endAfter int) *fakeRunner {
	s := model.Scenario{ID: id, Status: "RUNNING"}
	for i := 0; i < vehicles; i++ {
		s.Vehicles = append(s.Vehicles, model.Vehicle{ID: fmt.Sprintf("v%d", i), CoordX: float64(i), CoordY: 0, IsAvailable: true})
	}
	for i := 0; i < customers; i++ {
		s.Customers = append(s.Customers, model.Customer{ID: fmt.Sprintf("c%d", i), CoordX: float64(i), CoordY: 1,
			DestinationX: model.FloatPtr(float64(i)), DestinationY: model.FloatPtr(2), AwaitingService: true})
	}
	return &fakeRunner{scenario: s, endAfter: endAfter}
}

func (f *fakeRunner) snapshot() model.Scenario {
	s := f.scenario
	s.Vehicles = append([]model.Vehicle(nil), f.scenario.Vehicles...)
	s.Customers = append([]model.Customer(nil), f.scenario.Customers...)
	return s
}

func (f *fakeRunner) Initialize(_ context.Context, id string) (model.Scenario, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inits++
	if f.inflight > 0 {
		f.overlaps++
	}
	if f.initErr != nil {
		return model.Scenario{}, f.initErr
	}
	return f.snapshot(), nil
}

func (f *fakeRunner) Launch(_ context.Context, id string, speed float64) (model.LaunchScenarioResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.speed = speed
	return model.LaunchScenarioResponse{Message: "launched", ScenarioID: id, StartTime: "2024-01-01T00:00:00Z"}, nil
}

func (f *fakeRunner) Update(_ context.Context, _ string, d model.UpdateScenario) (model.UpdateScenarioResponse, error) {
	if f.updateDelay > 0 {
		f.mu.Lock()
		f.inflight++
		f.mu.Unlock()
		time.Sleep(f.updateDelay)
		defer func() {
			f.mu.Lock()
			f.inflight--
			f.mu.Unlock()
		}()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, d)
	if len(f.failIDs) > 0 {
		return model.UpdateScenarioResponse{FailedToUpdate: f.failIDs}, nil
	}
	for _, a := range d.Vehicles {
		for i := range f.scenario.Vehicles {
			if f.scenario.Vehicles[i].ID == a.ID {
				f.scenario.Vehicles[i].CustomerID = model.StringPtr(a.CustomerID)
				f.scenario.Vehicles[i].IsAvailable = false
			}
		}
	}
	return model.UpdateScenarioResponse{FailedToUpdate: []string{}}, nil
}

func (f *fakeRunner) Get(ctx context.Context, _ string) (model.Scenario, error) {
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return model.Scenario{}, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	for i := range f.scenario.Vehicles {
		v := &f.scenario.Vehicles[i]
		if v.CustomerID == nil {
			continue
		}
		for j := range f.scenario.Customers {
			if f.scenario.Customers[j].ID == *v.CustomerID {
				f.scenario.Customers[j].AwaitingService = false
			}
		}
		v.CustomerID = nil
		v.IsAvailable = true
	}
	if f.gets >= f.endAfter {
		f.scenario.EndTime = model.StringPtr("2024-01-01T01:00:00Z")
	}
	return f.snapshot(), nil
}

func (f *fakeRunner) counts() (inits, gets int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inits, f.gets
}

func (f *fakeRunner) updating() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inflight > 0
}

func (f *fakeRunner) overlapping() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.overlaps
}

// stallBroker holds the next Subscribe until release is closed.
type stallBroker struct {
	*MemoryBroker
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func newStallBroker() *stallBroker {
	return &stallBroker{MemoryBroker: NewMemoryBroker(), entered: make(chan struct{}), release: make(chan struct{})}
}

func (b *stallBroker) Subscribe(ctx context.Context, scenarioID string, sub *Subscriber) error {
	stall := false
	b.once.Do(func() { stall = true })
	if stall {
		close(b.entered)
		<-b.release
	}
	return b.MemoryBroker.Subscribe(ctx, scenarioID, sub)
}
