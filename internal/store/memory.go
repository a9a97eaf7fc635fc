package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is a simple in-memory store used when no DATABASE_URL is set.
type Memory struct {
	mu   sync.Mutex
	runs []SolveRun     // insertion order
	byID map[string]int // id -> index into runs
	cap  int            // oldest runs are evicted past this size
}

func NewMemory() *Memory {
	return &Memory{byID: map[string]int{}, cap: 10000}
}

func (m *Memory) SaveSolveRun(ctx context.Context, run SolveRun) (SolveRun, error) {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if i, ok := m.byID[run.ID]; ok {
		m.runs[i] = run
		return run, nil
	}
	m.runs = append(m.runs, run)
	m.byID[run.ID] = len(m.runs) - 1
	if len(m.runs) > m.cap {
		m.runs = append([]SolveRun(nil), m.runs[len(m.runs)-m.cap:]...)
		m.byID = make(map[string]int, len(m.runs))
		for i, r := range m.runs {
			m.byID[r.ID] = i
		}
	}
	return run, nil
}

func (m *Memory) ListSolveRuns(ctx context.Context, scenarioID string, limit int) ([]SolveRun, error) {
	limit = clampLimit(limit)
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []SolveRun{}
	for i := len(m.runs) - 1; i >= 0 && len(out) < limit; i-- {
		if scenarioID != "" && m.runs[i].ScenarioID != scenarioID {
			continue
		}
		out = append(out, m.runs[i])
	}
	return out, nil
}

func (m *Memory) GetSolveRun(ctx context.Context, id string) (SolveRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, ok := m.byID[id]
	if !ok {
		return SolveRun{}, ErrNotFound
	}
	return m.runs[i], nil
}
