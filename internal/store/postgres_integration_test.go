//go:build postgres_integration

package store

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ridedispatch/internal/opt"
)

func TestPostgresSolveRuns(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set; skipping integration test")
	}
	p, err := NewPostgres(dsn)
	require.NoError(t, err)
	defer p.Close()
	require.NoError(t, p.Ping(t.Context()))
	require.NoError(t, p.Migrate(t.Context()))

	saved, err := p.SaveSolveRun(t.Context(), SolveRun{ScenarioID: "it-scenario", Policy: "alns", Vehicles: 2, Customers: 5, Metrics: opt.Metrics{Iterations: 50, BestCost: 12}})
	require.NoError(t, err)

	got, err := p.GetSolveRun(t.Context(), saved.ID)
	require.NoError(t, err)
	assert.Equal(t, 50, got.Metrics.Iterations)

	runs, err := p.ListSolveRuns(t.Context(), "it-scenario", 10)
	require.NoError(t, err)
	assert.NotEmpty(t, runs)

	_, err = p.GetSolveRun(t.Context(), "not-a-uuid")
	assert.ErrorIs(t, err, ErrNotFound)
}
