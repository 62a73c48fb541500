// Package history keeps a SQLite record of finished benchmark runs.
package history

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"sonatabench/internal/bench"
)

// ErrNotFound is returned by Get for an unknown run id.
var ErrNotFound = errors.New("run not found")

const schema = `
CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    example TEXT NOT NULL,
    rank INTEGER NOT NULL,
    nvp INTEGER NOT NULL,
    started_at TEXT NOT NULL,
    py_time_simulate REAL,
    num_connections INTEGER,
    results TEXT NOT NULL  -- log file lines, in key order
);
CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
`

// Store is a run history backed by SQLite.
type Store struct {
	db *sql.DB
}

// Summary is one row of List.
type Summary struct {
	ID             string
	Example        string
	Rank           int
	NVP            int
	StartedAt      time.Time
	SimulateTime   float64
	NumConnections int64
}

// Open opens or creates the database at path. ":memory:" gives a private
// in-memory store.
func Open(path string) (*Store, error) {
	dsn := path
	if path != ":memory:" {
		dsn += "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening history: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing history schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// Save records r. Saving the same id twice replaces the earlier row.
func (s *Store) Save(ctx context.Context, r bench.Report) error {
	var buf bytes.Buffer
	if err := bench.WriteLog(&buf, r.Results); err != nil {
		return err
	}
	simTime, _ := r.Results.Float("py_time_simulate")
	conns, _ := r.Results.Float("num_connections")
	_, err := s.db.ExecContext(ctx, `
INSERT OR REPLACE INTO runs (id, example, rank, nvp, started_at, py_time_simulate, num_connections, results)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Example, r.Rank, r.NVP, r.StartedAt.UTC().Format(time.RFC3339Nano),
		simTime, int64(conns), buf.String())
	if err != nil {
		return fmt.Errorf("saving run %s: %w", r.ID, err)
	}
	return nil
}

// List returns up to limit runs, newest first. limit <= 0 means all.
func (s *Store) List(ctx context.Context, limit int) ([]Summary, error) {
	q := `SELECT id, example, rank, nvp, started_at, py_time_simulate, num_connections
FROM runs ORDER BY started_at DESC, id`
	args := []any{}
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var (
			sum     Summary
			started string
			simTime sql.NullFloat64
			conns   sql.NullInt64
		)
		if err := rows.Scan(&sum.ID, &sum.Example, &sum.Rank, &sum.NVP, &started, &simTime, &conns); err != nil {
			return nil, err
		}
		if sum.StartedAt, err = time.Parse(time.RFC3339Nano, started); err != nil {
			return nil, fmt.Errorf("run %s: bad started_at: %w", sum.ID, err)
		}
		sum.SimulateTime = simTime.Float64
		sum.NumConnections = conns.Int64
		out = append(out, sum)
	}
	return out, rows.Err()
}

// Get returns the full report of run id.
func (s *Store) Get(ctx context.Context, id string) (bench.Report, error) {
	var (
		r       bench.Report
		started string
		results string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, example, rank, nvp, started_at, results FROM runs WHERE id = ?`, id).
		Scan(&r.ID, &r.Example, &r.Rank, &r.NVP, &started, &results)
	if errors.Is(err, sql.ErrNoRows) {
		return bench.Report{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return bench.Report{}, err
	}
	if r.StartedAt, err = time.Parse(time.RFC3339Nano, started); err != nil {
		return bench.Report{}, fmt.Errorf("run %s: bad started_at: %w", id, err)
	}
	if r.Results, err = bench.ParseLog(bytes.NewBufferString(results)); err != nil {
		return bench.Report{}, fmt.Errorf("run %s: %w", id, err)
	}
	return r, nil
}
