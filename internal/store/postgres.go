package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
)

type Postgres struct {
	db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Postgres{db: db}, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS solve_runs (
    id             uuid PRIMARY KEY,
    scenario_id    text NOT NULL,
    policy         text NOT NULL,
    vehicles       integer NOT NULL,
    customers      integer NOT NULL,
    iterations     integer NOT NULL,
    improvements   integer NOT NULL,
    accepted_worse integer NOT NULL,
    initial_cost   double precision NOT NULL,
    best_cost      double precision NOT NULL,
    duration_ms    bigint NOT NULL,
    metrics        jsonb NOT NULL,
    created_at     timestamptz NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS solve_runs_scenario_idx ON solve_runs (scenario_id, created_at DESC);
`

// Migrate creates the telemetry schema when missing.
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate solve_runs: %w", err)
	}
	return nil
}

func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

func (p *Postgres) Close() error { return p.db.Close() }

func (p *Postgres) SaveSolveRun(ctx context.Context, run SolveRun) (SolveRun, error) {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	js, err := json.Marshal(run.Metrics)
	if err != nil {
		return SolveRun{}, err
	}
	m := run.Metrics
	_, err = p.db.ExecContext(ctx, `INSERT INTO solve_runs (id, scenario_id, policy, vehicles, customers, iterations, improvements, accepted_worse, initial_cost, best_cost, duration_ms, metrics, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
        ON CONFLICT (id) DO UPDATE SET metrics=$12`,
		run.ID, run.ScenarioID, run.Policy, run.Vehicles, run.Customers,
		m.Iterations, m.Improvements, m.AcceptedWorse, m.InitialCost, m.BestCost, m.Duration.Milliseconds(), js, run.CreatedAt,
	)
	if err != nil {
		return SolveRun{}, err
	}
	return run, nil
}

const selectRuns = `SELECT id::text, scenario_id, policy, vehicles, customers, metrics, created_at FROM solve_runs`

func (p *Postgres) ListSolveRuns(ctx context.Context, scenarioID string, limit int) ([]SolveRun, error) {
	limit = clampLimit(limit)
	var rows *sql.Rows
	var err error
	if scenarioID != "" {
		rows, err = p.db.QueryContext(ctx, selectRuns+` WHERE scenario_id=$1 ORDER BY created_at DESC LIMIT $2`, scenarioID, limit)
	} else {
		rows, err = p.db.QueryContext(ctx, selectRuns+` ORDER BY created_at DESC LIMIT $1`, limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []SolveRun{}
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *Postgres) GetSolveRun(ctx context.Context, id string) (SolveRun, error) {
	if _, err := uuid.Parse(id); err != nil {
		return SolveRun{}, ErrNotFound
	}
	r, err := scanRun(p.db.QueryRowContext(ctx, selectRuns+` WHERE id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return SolveRun{}, ErrNotFound
	}
	return r, err
}

type scanner interface{ Scan(dest ...any) error }

func scanRun(s scanner) (SolveRun, error) {
	var r SolveRun
	var js []byte
	if err := s.Scan(&r.ID, &r.ScenarioID, &r.Policy, &r.Vehicles, &r.Customers, &js, &r.CreatedAt); err != nil {
		return SolveRun{}, err
	}
	if err := json.Unmarshal(js, &r.Metrics); err != nil {
		return SolveRun{}, fmt.Errorf("decode metrics of %s: %w", r.ID, err)
	}
	return r, nil
}
