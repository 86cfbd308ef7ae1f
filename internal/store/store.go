// Package store handles SQLite persistence of batch runs.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/verte-zerg/imebench/internal/model"

	_ "modernc.org/sqlite" // SQLite driver.
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = errors.New("run not found")

// Store wraps SQLite access for run history.
type Store struct {
	db *sql.DB
}

// Open opens or creates the SQLite database and applies migrations.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		if cerr := db.Close(); cerr != nil {
			// Best-effort close on migration failure.
			_ = cerr
		}
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id INTEGER PRIMARY KEY,
			started_at TEXT NOT NULL,
			ended_at TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			input_path TEXT NOT NULL,
			expected_path TEXT NOT NULL,
			output_path TEXT NOT NULL,
			driver TEXT NOT NULL,
			mode TEXT NOT NULL,
			phrases INTEGER NOT NULL,
			processed INTEGER NOT NULL DEFAULT 0,
			converted INTEGER NOT NULL DEFAULT 0,
			unchanged INTEGER NOT NULL DEFAULT 0,
			spaced INTEGER NOT NULL DEFAULT 0,
			failed INTEGER NOT NULL DEFAULT 0,
			timed_out INTEGER NOT NULL DEFAULT 0,
			compared INTEGER NOT NULL DEFAULT 0,
			exact_matches INTEGER NOT NULL DEFAULT 0,
			edit_distance INTEGER NOT NULL DEFAULT 0,
			expected_len INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE TABLE IF NOT EXISTS records (
			run_id INTEGER NOT NULL,
			idx INTEGER NOT NULL,
			hiragana TEXT NOT NULL,
			romaji TEXT NOT NULL,
			output TEXT NOT NULL,
			expected TEXT NOT NULL,
			warnings TEXT NOT NULL,
			attempts INTEGER NOT NULL,
			elapsed_ms INTEGER NOT NULL,
			PRIMARY KEY (run_id, idx)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// StartRun records a new run in the running state and returns its id.
func (s *Store) StartRun(ctx context.Context, info model.RunInfo) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (started_at, status, input_path, expected_path, output_path, driver, mode, phrases)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		info.StartedAt.Format(time.RFC3339Nano),
		model.RunRunning,
		info.InputPath,
		info.ExpectedPath,
		info.OutputPath,
		info.Driver,
		info.Mode,
		info.Phrases,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// InsertRecord stores one conversion record of a run.
func (s *Store) InsertRecord(ctx context.Context, runID int64, rec model.Record) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO records (run_id, idx, hiragana, romaji, output, expected, warnings, attempts, elapsed_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID,
		rec.Index,
		rec.Hiragana,
		rec.Romaji,
		rec.Output,
		rec.Expected,
		joinWarnings(rec.Warnings),
		rec.Attempts,
		rec.Elapsed.Milliseconds(),
	)
	return err
}

// FinishRun stores the final totals and status of a run.
func (s *Store) FinishRun(ctx context.Context, runID int64, stats model.RunStats) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET ended_at = ?, status = ?, processed = ?, converted = ?, unchanged = ?, spaced = ?,
			failed = ?, timed_out = ?, compared = ?, exact_matches = ?, edit_distance = ?, expected_len = ?
		 WHERE id = ?`,
		stats.EndedAt.Format(time.RFC3339Nano),
		stats.Status,
		stats.Processed,
		stats.Converted,
		stats.Unchanged,
		stats.Spaced,
		stats.Failed,
		stats.TimedOut,
		stats.Compared,
		stats.ExactMatches,
		stats.EditDistance,
		stats.ExpectedLen,
		runID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %d", ErrNotFound, runID)
	}
	return nil
}

const runColumns = `id, started_at, ended_at, status, input_path, driver, mode, phrases,
	processed, converted, unchanged, spaced, failed, timed_out, compared, exact_matches, edit_distance, expected_len`

// ListRuns returns runs oldest first. cfg.Last keeps only the most recent
// runs; cfg.RunID selects a single run.
func (s *Store) ListRuns(ctx context.Context, cfg model.StatsConfig) ([]model.RunAggregate, error) {
	clauses := []string{"1=1"}
	args := []any{}
	if cfg.RunID > 0 {
		clauses = append(clauses, "id = ?")
		args = append(args, cfg.RunID)
	}
	limit := -1
	if cfg.Last > 0 {
		limit = cfg.Last
	}
	args = append(args, limit)
	query := fmt.Sprintf(`SELECT * FROM (
		SELECT %s FROM runs
		WHERE %s
		ORDER BY started_at DESC, id DESC
		LIMIT ?
	) ORDER BY started_at ASC, id ASC`, runColumns, strings.Join(clauses, " AND "))
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	var runs []model.RunAggregate
	for rows.Next() {
		agg, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, agg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return runs, nil
}

// GetRun returns a single run.
func (s *Store) GetRun(ctx context.Context, runID int64) (model.RunAggregate, error) {
	runs, err := s.ListRuns(ctx, model.StatsConfig{RunID: runID})
	if err != nil {
		return model.RunAggregate{}, err
	}
	if len(runs) == 0 {
		return model.RunAggregate{}, fmt.Errorf("%w: %d", ErrNotFound, runID)
	}
	return runs[0], nil
}

// ListRecords returns the records of a run in input order.
func (s *Store) ListRecords(ctx context.Context, runID int64) ([]model.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT idx, hiragana, romaji, output, expected, warnings, attempts, elapsed_ms
		 FROM records WHERE run_id = ? ORDER BY idx ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	var records []model.Record
	for rows.Next() {
		var rec model.Record
		var warnings string
		var elapsedMs int64
		if err := rows.Scan(&rec.Index, &rec.Hiragana, &rec.Romaji, &rec.Output, &rec.Expected,
			&warnings, &rec.Attempts, &elapsedMs); err != nil {
			return nil, err
		}
		rec.Warnings = splitWarnings(warnings)
		rec.Elapsed = time.Duration(elapsedMs) * time.Millisecond
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (model.RunAggregate, error) {
	var agg model.RunAggregate
	var startedAt, endedAt string
	if err := row.Scan(&agg.RunID, &startedAt, &endedAt, &agg.Status, &agg.InputPath, &agg.Driver, &agg.Mode,
		&agg.Phrases, &agg.Processed, &agg.Converted, &agg.Unchanged, &agg.Spaced, &agg.Failed, &agg.TimedOut,
		&agg.Compared, &agg.ExactMatches, &agg.EditDistance, &agg.ExpectedLen); err != nil {
		return agg, err
	}
	parsed, err := time.Parse(time.RFC3339Nano, startedAt)
	if err != nil {
		return agg, err
	}
	agg.StartedAt = parsed
	if endedAt != "" {
		parsed, err := time.Parse(time.RFC3339Nano, endedAt)
		if err != nil {
			return agg, err
		}
		agg.EndedAt = parsed
	}
	return agg, nil
}

func joinWarnings(warnings []model.Warning) string {
	parts := make([]string, len(warnings))
	for i, w := range warnings {
		parts[i] = string(w)
	}
	return strings.Join(parts, ",")
}

func splitWarnings(s string) []model.Warning {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	warnings := make([]model.Warning, len(parts))
	for i, p := range parts {
		warnings[i] = model.Warning(p)
	}
	return warnings
}
