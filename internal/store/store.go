// Package store persists truncation results to SQLite so runs can be
// compared and re-exported without re-exploring.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"stamina/internal/builder"
	"stamina/internal/logging"
	"stamina/internal/storage"
)

// ResultStore wraps the SQLite database holding run results.
type ResultStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	created_at INTEGER NOT NULL,
	model TEXT NOT NULL,
	method TEXT NOT NULL,
	states INTEGER NOT NULL,
	transitions INTEGER NOT NULL,
	pi_hat REAL NOT NULL,
	iterations INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS run_states (
	run_id TEXT NOT NULL REFERENCES runs(id),
	state_id INTEGER NOT NULL,
	label TEXT NOT NULL,
	PRIMARY KEY (run_id, state_id, label)
);
CREATE TABLE IF NOT EXISTS run_transitions (
	run_id TEXT NOT NULL REFERENCES runs(id),
	from_id INTEGER NOT NULL,
	to_id INTEGER NOT NULL,
	rate REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_run_transitions_run ON run_transitions(run_id);
`

// Open opens (creating if necessary) the result store at path.
func Open(path string) (*ResultStore, error) {
	timer := logging.StartTimer(logging.CategoryStore, "open result store")
	defer timer.Stop()

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open result store: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("verify result store: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate result store: %w", err)
	}
	logging.Store("result store ready at %s", path)
	return &ResultStore{db: db}, nil
}

// Close releases the database handle.
func (s *ResultStore) Close() error { return s.db.Close() }

// SaveResult writes one finalized truncation in a single transaction.
func (s *ResultStore) SaveResult(ctx context.Context, modelName string, res *builder.Result) error {
	timer := logging.StartTimer(logging.CategoryStore, "save result")
	defer timer.Stop()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save result: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO runs (id, created_at, model, method, states, transitions, pi_hat, iterations)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		res.RunID, time.Now().Unix(), modelName, res.Method.String(),
		res.NumStates(), res.Matrix.NNZ(), res.PiHat, res.Iterations); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	stateStmt, err := tx.PrepareContext(ctx,
		`INSERT OR IGNORE INTO run_states (run_id, state_id, label) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare state insert: %w", err)
	}
	defer stateStmt.Close()
	for label, ids := range res.Labels() {
		for _, id := range ids {
			if _, err := stateStmt.ExecContext(ctx, res.RunID, id, label); err != nil {
				return fmt.Errorf("insert state label: %w", err)
			}
		}
	}

	transStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO run_transitions (run_id, from_id, to_id, rate) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare transition insert: %w", err)
	}
	defer transStmt.Close()
	m := res.Matrix
	for row := 0; row < m.NumRows(); row++ {
		cols, rates := m.Row(storage.StateID(row))
		for i, col := range cols {
			if _, err := transStmt.ExecContext(ctx, res.RunID, row, col, rates[i]); err != nil {
				return fmt.Errorf("insert transition: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit result: %w", err)
	}
	logging.Store("saved run %s (%d states, %d transitions)", res.RunID, res.NumStates(), m.NNZ())
	return nil
}

// RunSummary is one row of the runs table.
type RunSummary struct {
	ID          string
	CreatedAt   time.Time
	Model       string
	Method      string
	States      int
	Transitions int
	PiHat       float64
	Iterations  int
}

// ListRuns returns stored runs, newest first.
func (s *ResultStore) ListRuns(ctx context.Context) ([]RunSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, created_at, model, method, states, transitions, pi_hat, iterations
		 FROM runs ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var r RunSummary
		var created int64
		if err := rows.Scan(&r.ID, &created, &r.Model, &r.Method, &r.States, &r.Transitions, &r.PiHat, &r.Iterations); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.CreatedAt = time.Unix(created, 0)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Transitions reads back the stored transition list of a run.
func (s *ResultStore) Transitions(ctx context.Context, runID string) ([]storage.Transition, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT from_id, to_id, rate FROM run_transitions WHERE run_id = ? ORDER BY from_id, to_id`, runID)
	if err != nil {
		return nil, fmt.Errorf("load transitions: %w", err)
	}
	defer rows.Close()

	var out []storage.Transition
	for rows.Next() {
		var tr storage.Transition
		if err := rows.Scan(&tr.From, &tr.To, &tr.Rate); err != nil {
			return nil, fmt.Errorf("scan transition: %w", err)
		}
		out = append(out, tr)
	}
	return out, rows.Err()
}
