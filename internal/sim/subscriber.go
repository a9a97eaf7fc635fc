package sim

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Reason tells a subscriber why its stream ended.
type Reason string

const (
	ReasonFinished     Reason = "scenario finished"
	ReasonFailed       Reason = "scenario failed"
	ReasonCancelled    Reason = "session cancelled"
	ReasonSlowConsumer Reason = "slow consumer"
	ReasonUnsubscribed Reason = "unsubscribed"
)

// DefaultQueueSize is the outbound frame capacity of a subscriber.
const DefaultQueueSize = 64

// finishGrace bounds how long a finishing subscriber waits for the final
// frame to arrive through the broker.
var finishGrace = 2 * time.Second

// Frame is one serialized snapshot with its position in the session stream.
type Frame struct {
	Seq  uint64
	Data []byte
}

// Subscriber is one consumer of a scenario stream with a bounded queue.
// Frames are delivered in order and never skipped; when the queue is full
// the subscriber is closed instead.
type Subscriber struct {
	ID         string
	ScenarioID string

	ch   chan []byte
	done chan struct{}
	sess *session

	mu      sync.Mutex
	closed  bool
	seq     uint64 // last queued frame
	closeAt uint64 // close once this frame is queued
	pending Reason
	reason  Reason
	detail  string
}

func NewSubscriber(scenarioID string, size int) *Subscriber {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Subscriber{
		ID:         uuid.NewString(),
		ScenarioID: scenarioID,
		ch:         make(chan []byte, size),
		done:       make(chan struct{}),
	}
}

// Frames yields queued snapshot frames.
func (s *Subscriber) Frames() <-chan []byte { return s.ch }

// Done is closed when the stream ended. Frames already queued stay readable.
func (s *Subscriber) Done() <-chan struct{} { return s.done }

// Reason returns why the stream ended and an optional detail message.
func (s *Subscriber) Reason() (Reason, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason, s.detail
}

// Offer queues f without blocking. Frames at or below the last queued
// sequence are ignored. It returns false when the queue is full.
func (s *Subscriber) Offer(f Frame) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || f.Seq <= s.seq {
		return true
	}
	select {
	case s.ch <- f.Data:
	default:
		return false
	}
	s.seq = f.Seq
	if s.closeAt > 0 && s.seq >= s.closeAt {
		s.closeLocked(s.pending, "")
	}
	return true
}

// Close ends the stream immediately.
func (s *Subscriber) Close(r Reason, detail string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked(r, detail)
}

// closeAfter ends the stream once frame seq has been queued, or after
// finishGrace at the latest.
func (s *Subscriber) closeAfter(seq uint64, r Reason, detail string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if s.seq >= seq {
		s.closeLocked(r, detail)
		return
	}
	s.closeAt, s.pending, s.detail = seq, r, detail
	time.AfterFunc(finishGrace, func() { s.Close(r, detail) })
}

func (s *Subscriber) closeLocked(r Reason, detail string) {
	if s.closed {
		return
	}
	s.closed = true
	s.reason = r
	if detail != "" {
		s.detail = detail
	}
	close(s.done)
}
