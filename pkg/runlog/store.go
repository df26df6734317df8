package runlog

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	seq          INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id       TEXT NOT NULL UNIQUE,
	stage        TEXT NOT NULL,
	params_json  TEXT NOT NULL,
	metrics_json TEXT,
	status       TEXT NOT NULL,
	error        TEXT,
	started_at   TEXT NOT NULL,
	finished_at  TEXT
);
CREATE INDEX IF NOT EXISTS runs_stage ON runs(stage, seq);
`

// Status is the outcome of a stage run.
type Status string

const (
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// ErrNotFound is returned when no run matches.
var ErrNotFound = errors.New("run not found")

// Run is one invocation of a pipeline stage.
type Run struct {
	ID         string
	Stage      string
	Params     map[string]any
	Metrics    map[string]float64
	Status     Status
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time
}

// Store records stage runs in SQLite.
type Store struct {
	db *sql.DB
}

// NewStore opens (creating if needed) the database at dbPath and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Start records a running stage and returns it.
func (s *Store) Start(stage string, params map[string]any) (*Run, error) {
	if params == nil {
		params = map[string]any{}
	}
	run := &Run{
		ID:        uuid.New().String(),
		Stage:     stage,
		Params:    params,
		Status:    StatusRunning,
		StartedAt: time.Now().UTC(),
	}
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal params: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO runs (run_id, stage, params_json, status, started_at) VALUES (?, ?, ?, ?, ?)`,
		run.ID, stage, string(paramsJSON), string(run.Status), run.StartedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("insert run: %w", err)
	}
	return run, nil
}

// Finish marks run as succeeded, or failed when runErr is non-nil, and stores its metrics.
func (s *Store) Finish(run *Run, metrics map[string]float64, runErr error) error {
	run.Metrics = metrics
	run.FinishedAt = time.Now().UTC()
	run.Status = StatusSucceeded
	var errText sql.NullString
	if runErr != nil {
		run.Status = StatusFailed
		run.Error = runErr.Error()
		errText = sql.NullString{String: run.Error, Valid: true}
	}
	metricsJSON, err := json.Marshal(metrics)
	if err != nil {
		return fmt.Errorf("marshal metrics: %w", err)
	}
	res, err := s.db.Exec(
		`UPDATE runs SET metrics_json = ?, status = ?, error = ?, finished_at = ? WHERE run_id = ?`,
		string(metricsJSON), string(run.Status), errText, run.FinishedAt.Format(time.RFC3339Nano), run.ID,
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, run.ID)
	}
	return nil
}

const selectRun = `SELECT run_id, stage, params_json, metrics_json, status, error, started_at, finished_at FROM runs`

// Get returns the run with the given id.
func (s *Store) Get(id string) (*Run, error) {
	rows, err := s.db.Query(selectRun+` WHERE run_id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("query run: %w", err)
	}
	runs, err := scanRuns(rows)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return &runs[0], nil
}

// List returns up to limit runs, newest first. An empty stage matches every stage.
func (s *Store) List(stage string, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.Query(selectRun+` WHERE (? = '' OR stage = ?) ORDER BY seq DESC LIMIT ?`, stage, stage, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	return scanRuns(rows)
}

// LatestSucceeded returns the most recent successful run of stage.
func (s *Store) LatestSucceeded(stage string) (*Run, error) {
	rows, err := s.db.Query(selectRun+` WHERE stage = ? AND status = ? ORDER BY seq DESC LIMIT 1`, stage, string(StatusSucceeded))
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	runs, err := scanRuns(rows)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, fmt.Errorf("%w: no successful %s run", ErrNotFound, stage)
	}
	return &runs[0], nil
}

func scanRuns(rows *sql.Rows) ([]Run, error) {
	defer rows.Close()
	var out []Run
	for rows.Next() {
		var r Run
		var params string
		var metrics, errText, finished sql.NullString
		var status, started string
		if err := rows.Scan(&r.ID, &r.Stage, &params, &metrics, &status, &errText, &started, &finished); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if err := json.Unmarshal([]byte(params), &r.Params); err != nil {
			return nil, fmt.Errorf("unmarshal params: %w", err)
		}
		if metrics.Valid {
			if err := json.Unmarshal([]byte(metrics.String), &r.Metrics); err != nil {
				return nil, fmt.Errorf("unmarshal metrics: %w", err)
			}
		}
		r.Status = Status(status)
		r.Error = errText.String
		r.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
		if finished.Valid {
			r.FinishedAt, _ = time.Parse(time.RFC3339Nano, finished.String)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
