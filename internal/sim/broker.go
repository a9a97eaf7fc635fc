package sim

import (
	"context"
	"sync"

	"ridedispatch/internal/metrics"
)

// Broker fans a session's frames out to its subscribers.
type Broker interface {
	Subscribe(ctx context.Context, scenarioID string, sub *Subscriber) error
	Unsubscribe(scenarioID string, sub *Subscriber)
	Publish(ctx context.Context, scenarioID string, f Frame) error
}

// MemoryBroker delivers frames in-process.
type MemoryBroker struct {
	mu   sync.Mutex
	subs map[string]map[*Subscriber]struct{} // scenarioId -> subscribers
}

func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{subs: map[string]map[*Subscriber]struct{}{}}
}

func (b *MemoryBroker) Subscribe(_ context.Context, scenarioID string, sub *Subscriber) error {
	b.mu.Lock()
	if b.subs[scenarioID] == nil {
		b.subs[scenarioID] = map[*Subscriber]struct{}{}
	}
	b.subs[scenarioID][sub] = struct{}{}
	b.mu.Unlock()
	return nil
}

func (b *MemoryBroker) Unsubscribe(scenarioID string, sub *Subscriber) {
	b.mu.Lock()
	if m := b.subs[scenarioID]; m != nil {
		delete(m, sub)
		if len(m) == 0 {
			delete(b.subs, scenarioID)
		}
	}
	b.mu.Unlock()
}

// Publish queues f on every subscriber. A subscriber with a full queue is
// closed as a slow consumer and dropped from the fan-out.
func (b *MemoryBroker) Publish(_ context.Context, scenarioID string, f Frame) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	m := b.subs[scenarioID]
	for sub := range m {
		if !sub.Offer(f) {
			dropSlow(sub)
			delete(m, sub)
		}
	}
	return nil
}

func dropSlow(sub *Subscriber) {
	metrics.SlowConsumers.Inc()
	sub.Close(ReasonSlowConsumer, "outbound queue full")
}
