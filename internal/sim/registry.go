package sim

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"ridedispatch/internal/dispatch"
	"ridedispatch/internal/logger"
	"ridedispatch/internal/metrics"
	"ridedispatch/internal/model"
)

// Request asks to watch a scenario. Speed and Policy only apply when the
// request starts a new session.
type Request struct {
	ScenarioID string
	Speed      float64
	Policy     string
}

// SessionInfo describes a running session.
type SessionInfo struct {
	ScenarioID  string    `json:"scenarioId"`
	Policy      string    `json:"policy"`
	Speed       float64   `json:"speed"`
	Subscribers int       `json:"subscribers"`
	Frames      uint64    `json:"frames"`
	StartedAt   time.Time `json:"startedAt"`
}

var errSessionEnded = errors.New("sim: session ended")

// Registry owns one session per scenario id. The first subscriber starts
// the loop and is attached before the initial snapshot is published; later
// subscribers attach to the running session. The loop is cancelled when the
// last subscriber leaves, and the session keeps its id until the loop has
// returned.
type Registry struct {
	ctrl      *Controller
	policies  dispatch.Factory
	broker    Broker
	queueSize int
	log       logger.Logger

	base   context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	sessions map[string]*session
	wg       sync.WaitGroup
}

type RegistryConfig struct {
	Controller *Controller
	Policies   dispatch.Factory
	Broker     Broker // MemoryBroker when nil
	QueueSize  int
	Log        logger.Logger
}

func NewRegistry(cfg RegistryConfig) *Registry {
	if cfg.Broker == nil {
		cfg.Broker = NewMemoryBroker()
	}
	if cfg.Log == nil {
		cfg.Log = logger.NopLogger{}
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	base, cancel := context.WithCancel(context.Background())
	return &Registry{
		ctrl:      cfg.Controller,
		policies:  cfg.Policies,
		broker:    cfg.Broker,
		queueSize: cfg.QueueSize,
		log:       cfg.Log,
		base:      base,
		cancel:    cancel,
		sessions:  map[string]*session{},
	}
}

// Subscribe attaches a new subscriber to the scenario's session, starting
// the session first when none runs. Starting initializes the scenario in
// the runner, so runner failures are returned here.
func (r *Registry) Subscribe(ctx context.Context, req Request) (*Subscriber, error) {
	if req.ScenarioID == "" {
		return nil, errors.New("sim: scenario id required")
	}
	if _, err := dispatch.Normalize(req.Policy); err != nil {
		return nil, err
	}
	for {
		sub := NewSubscriber(req.ScenarioID, r.queueSize)
		s, created, err := r.session(ctx, req, sub)
		if err != nil {
			return nil, err
		}
		if !created {
			err = s.attach(ctx, sub)
			if errors.Is(err, errSessionEnded) {
				// the old loop may still be talking to the runner
				select {
				case <-s.done:
				case <-ctx.Done():
					return nil, ctx.Err()
				}
				continue
			}
			if err != nil {
				r.dropIfIdle(s)
				return nil, err
			}
		}
		metrics.Subscribers.Inc()
		r.log.Debugf("subscriber %s attached to %s", sub.ID, req.ScenarioID)
		return sub, nil
	}
}

// session returns the session for the request. When none is registered it
// starts one with first already attached and reports created.
func (r *Registry) session(ctx context.Context, req Request, first *Subscriber) (*session, bool, error) {
	r.mu.Lock()
	if r.base.Err() != nil {
		r.mu.Unlock()
		return nil, false, errors.New("sim: registry closed")
	}
	s, ok := r.sessions[req.ScenarioID]
	if !ok {
		s = r.newSession(req)
		r.sessions[req.ScenarioID] = s
		r.wg.Add(1)
	}
	r.mu.Unlock()
	if !ok {
		if err := r.start(ctx, s, first); err != nil {
			return nil, false, err
		}
		return s, true, nil
	}
	select {
	case <-s.ready:
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
	if s.startErr != nil {
		return nil, false, s.startErr
	}
	return s, false, nil
}

func (r *Registry) newSession(req Request) *session {
	ctx, cancel := context.WithCancel(r.base)
	name, _ := dispatch.Normalize(req.Policy)
	return &session{
		id:      req.ScenarioID,
		policy:  name,
		speed:   req.Speed,
		broker:  r.broker,
		ctx:     ctx,
		cancel:  cancel,
		ready:   make(chan struct{}),
		done:    make(chan struct{}),
		subs:    map[*Subscriber]struct{}{},
		started: time.Now().UTC(),
	}
}

// start initializes the scenario, attaches first and only then launches the
// loop, so the first subscriber sees every frame from the initial snapshot on.
func (r *Registry) start(ctx context.Context, s *session, first *Subscriber) error {
	fail := func(err error) error {
		r.mu.Lock()
		if r.sessions[s.id] == s {
			delete(r.sessions, s.id)
		}
		r.mu.Unlock()
		s.cancel()
		s.startErr = err
		close(s.ready)
		close(s.done)
		r.wg.Done()
		return err
	}
	policy, err := r.policies(s.policy)
	if err != nil {
		return fail(err)
	}
	initial, err := r.ctrl.Runner.Initialize(ctx, s.id)
	if err != nil {
		return fail(fmt.Errorf("initialize scenario %s: %w", s.id, err))
	}
	if err := s.attach(ctx, first); err != nil {
		return fail(err)
	}
	metrics.ActiveSessions.Inc()
	close(s.ready)

	go func() {
		defer r.wg.Done()
		err := r.ctrl.Loop(s.ctx, initial, s.speed, policy, s.publish)
		r.finish(s, err)
	}()
	return nil
}

func (r *Registry) finish(s *session, err error) {
	r.mu.Lock()
	if r.sessions[s.id] == s {
		delete(r.sessions, s.id)
	}
	r.mu.Unlock()
	metrics.ActiveSessions.Dec()

	reason, detail := ReasonFinished, ""
	var inv *InvariantError
	switch {
	case err == nil:
		r.log.Infof("session %s finished", s.id)
	case errors.Is(err, context.Canceled):
		reason = ReasonCancelled
		r.log.Infof("session %s cancelled", s.id)
	case errors.As(err, &inv):
		reason, detail = ReasonFailed, inv.Error()
		r.log.Errorw("assignment invariant violated", inv.Fields())
	default:
		reason, detail = ReasonFailed, err.Error()
		r.log.Errorf("session %s failed: %v", s.id, err)
	}
	s.end(reason, detail)
	s.cancel()
	close(s.done)
}

// Unsubscribe detaches sub. It is safe to call more than once.
func (r *Registry) Unsubscribe(sub *Subscriber) {
	sub.Close(ReasonUnsubscribed, "")
	s := sub.sess
	if s == nil {
		return
	}
	left, ok := s.detach(sub)
	if !ok {
		return
	}
	metrics.Subscribers.Dec()
	r.log.Debugf("subscriber %s left %s (%d remaining)", sub.ID, sub.ScenarioID, left)
	if left == 0 {
		// finish unregisters the session once the loop returns
		s.cancel()
	}
}

// dropIfIdle cancels a session nobody is attached to.
func (r *Registry) dropIfIdle(s *session) {
	s.mu.Lock()
	idle := len(s.subs) == 0
	if idle {
		s.ended, s.idle = true, true
	}
	s.mu.Unlock()
	if idle {
		s.cancel()
	}
}

// Sessions lists running sessions ordered by scenario id. Sessions whose
// last subscriber left are omitted while their loop winds down.
func (r *Registry) Sessions() []SessionInfo {
	r.mu.Lock()
	list := make([]*session, 0, len(r.sessions))
	for _, s := range r.sessions {
		list = append(list, s)
	}
	r.mu.Unlock()
	out := make([]SessionInfo, 0, len(list))
	for _, s := range list {
		if info, ok := s.info(); ok {
			out = append(out, info)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScenarioID < out[j].ScenarioID })
	return out
}

// Close cancels every session and waits for their loops to return.
func (r *Registry) Close() {
	r.mu.Lock()
	r.cancel()
	r.mu.Unlock()
	r.wg.Wait()
}

type session struct {
	id      string
	policy  string
	speed   float64
	broker  Broker
	ctx     context.Context
	cancel  context.CancelFunc
	started time.Time

	ready    chan struct{}
	startErr error
	done     chan struct{} // closed once the loop has returned

	mu        sync.Mutex
	subs      map[*Subscriber]struct{}
	last      Frame
	ended     bool
	idle      bool // ended because every subscriber left
	endReason Reason
	endDetail string
}

// publish serializes snap as the next frame of the stream.
func (s *session) publish(snap model.Scenario) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	f := Frame{Seq: s.last.Seq + 1, Data: data}
	if err := s.broker.Publish(s.ctx, s.id, f); err != nil {
		return err
	}
	s.last = f
	return nil
}

// attach subscribes sub and queues the latest frame so it starts from the
// current state. The broker subscription runs without s.mu held so publish
// is not stalled by a slow broker.
func (s *session) attach(ctx context.Context, sub *Subscriber) error {
	s.mu.Lock()
	ended, idle := s.ended, s.idle
	s.mu.Unlock()
	if ended && idle {
		return errSessionEnded
	}
	subscribed := false
	if !ended {
		if err := s.broker.Subscribe(ctx, s.id, sub); err != nil {
			return err
		}
		subscribed = true
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended && subscribed {
		s.broker.Unsubscribe(s.id, sub)
	}
	if s.ended && s.idle {
		return errSessionEnded
	}
	s.subs[sub] = struct{}{}
	sub.sess = s
	if s.last.Seq > 0 {
		sub.Offer(s.last)
	}
	if s.ended {
		// the loop already returned: hand over the final state and why
		sub.Close(s.endReason, s.endDetail)
	}
	return nil
}

func (s *session) detach(sub *Subscriber) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subs[sub]; !ok {
		return len(s.subs), false
	}
	delete(s.subs, sub)
	s.broker.Unsubscribe(s.id, sub)
	if len(s.subs) == 0 {
		// no new subscriber may join a session that is being cancelled
		s.ended, s.idle = true, true
	}
	return len(s.subs), true
}

// end closes every subscriber once the final frame has reached it.
func (s *session) end(r Reason, detail string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ended {
		s.ended, s.endReason, s.endDetail = true, r, detail
	}
	for sub := range s.subs {
		sub.closeAfter(s.last.Seq, r, detail)
	}
}

func (s *session) info() (SessionInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.idle {
		return SessionInfo{}, false
	}
	return SessionInfo{ScenarioID: s.id, Policy: s.policy, Speed: s.speed, Subscribers: len(s.subs), Frames: s.last.Seq, StartedAt: s.started}, true
}
