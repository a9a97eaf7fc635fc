package store

import (
	"context"
	"errors"
	"time"

	"ridedispatch/internal/opt"
)

// SolveRun is the telemetry of one ALNS solve made while dispatching a
// scenario. Scenario state itself is never persisted.
type SolveRun struct {
	ID         string      `json:"id"`
	ScenarioID string      `json:"scenarioId"`
	Policy     string      `json:"policy"`
	Vehicles   int         `json:"vehicles"`
	Customers  int         `json:"customers"`
	Metrics    opt.Metrics `json:"metrics"`
	CreatedAt  time.Time   `json:"createdAt"`
}

// Store is the persistence interface for solve telemetry.
type Store interface {
	// SaveSolveRun stores run, assigning ID and CreatedAt when empty.
	SaveSolveRun(ctx context.Context, run SolveRun) (SolveRun, error)
	// ListSolveRuns returns runs newest first, optionally for one scenario.
	ListSolveRuns(ctx context.Context, scenarioID string, limit int) ([]SolveRun, error)
	GetSolveRun(ctx context.Context, id string) (SolveRun, error)
}

var ErrNotFound = errors.New("not found")

const (
	defaultLimit = 100
	maxLimit     = 500
)

func clampLimit(limit int) int {
	if limit <= 0 || limit > maxLimit {
		return defaultLimit
	}
	return limit
}
