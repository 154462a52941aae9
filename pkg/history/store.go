// Package history keeps a SQLite record of completed runs.
package history

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	// SQLite driver
	_ "modernc.org/sqlite"

	"github.com/rpaflow/rpaflow/pkg/kernel/engine"
)

//go:embed schema.sql
var schema string

// ErrNotFound is returned when a run ID is unknown.
var ErrNotFound = errors.New("run not found")

// Run is one recorded run.
type Run struct {
	ID        string                 `json:"id"`
	Script    string                 `json:"script"`
	Status    string                 `json:"status"`
	StartedAt time.Time              `json:"started_at"`
	Duration  time.Duration          `json:"duration"`
	Error     string                 `json:"error,omitempty"`
	ErrorKind string                 `json:"error_kind,omitempty"`
	Outputs   map[string]any         `json:"outputs,omitempty"`
	Reported  []engine.ReportedError `json:"reported,omitempty"`
}

// Store is a run-history database.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the history database at path and
// applies the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer at a time; runs are recorded after they finish.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Record stores a finished run and its reported errors.
func (s *Store) Record(ctx context.Context, scriptName string, startedAt time.Time, res *engine.RunResult) error {
	var errMsg, errKind *string
	if res.Error != nil {
		m, k := res.Error.Error(), engine.FailureKind(res.Error)
		errMsg, errKind = &m, &k
	}
	var outputs *string
	if len(res.Outputs) > 0 {
		data, err := json.Marshal(res.Outputs)
		if err != nil {
			return fmt.Errorf("failed to encode outputs: %w", err)
		}
		o := string(data)
		outputs = &o
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, script, status, started_at, duration_ms, error, error_kind, outputs)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		res.RunID,
		scriptName,
		res.Status,
		startedAt.UnixMilli(),
		res.Duration.Milliseconds(),
		errMsg,
		errKind,
		outputs,
	)
	if err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}

	for i, re := range res.Reported {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO reported_errors (run_id, seq, line, command, message, kind)
			VALUES (?, ?, ?, ?, ?, ?)
		`, res.RunID, i, re.Line, re.Command, re.Message, re.Kind)
		if err != nil {
			return fmt.Errorf("failed to record reported error: %w", err)
		}
	}
	return tx.Commit()
}

// List returns the most recent runs, newest first. An empty script name
// lists every script.
func (s *Store) List(ctx context.Context, scriptName string, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, script, status, started_at, duration_ms, error, error_kind, outputs
		FROM runs
		WHERE ? = '' OR script = ?
		ORDER BY started_at DESC, id
		LIMIT ?
	`, scriptName, scriptName, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := []*Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return runs, nil
}

// Get returns one run with its reported errors.
func (s *Store) Get(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, script, status, started_at, duration_ms, error, error_kind, outputs
		FROM runs
		WHERE id = ?
	`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT line, command, message, kind
		FROM reported_errors
		WHERE run_id = ?
		ORDER BY seq
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get reported errors: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			re   engine.ReportedError
			kind sql.NullString
		)
		if err := rows.Scan(&re.Line, &re.Command, &re.Message, &kind); err != nil {
			return nil, fmt.Errorf("failed to scan reported error: %w", err)
		}
		re.Kind = kind.String
		run.Reported = append(run.Reported, re)
	}
	return run, rows.Err()
}

// Prune deletes runs that started before cutoff and returns how many were
// removed.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE started_at < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to prune runs: %w", err)
	}
	return result.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*Run, error) {
	var (
		run              Run
		startedMs, durMs int64
		errMsg, errKind  sql.NullString
		outputs          sql.NullString
	)
	err := sc.Scan(&run.ID, &run.Script, &run.Status, &startedMs, &durMs, &errMsg, &errKind, &outputs)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}
	run.StartedAt = time.UnixMilli(startedMs)
	run.Duration = time.Duration(durMs) * time.Millisecond
	run.Error = errMsg.String
	run.ErrorKind = errKind.String
	if outputs.Valid {
		if err := json.Unmarshal([]byte(outputs.String), &run.Outputs); err != nil {
			return nil, fmt.Errorf("failed to decode outputs: %w", err)
		}
	}
	return &run, nil
}
