package runstore

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"genflow/internal/config"
	"genflow/internal/run"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is the current schema version. Bump this when the schema
// changes; existing databases must be deleted after a bump.
const schemaVersion = 1

var (
	// ErrNotFound indicates the run id has no stored snapshot.
	ErrNotFound = errors.New("run not found")
	// ErrSchemaMismatch indicates the database was created by a different
	// schema version.
	ErrSchemaMismatch = errors.New("schema version mismatch")
)

// Store persists run snapshots backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the run database under the data directory.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := filepath.Join(cfg.Paths.DataDir, "runs.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) initSchema(ctx context.Context) error {
	var tableExists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}
	if tableExists == 0 {
		return s.createSchema(ctx)
	}

	var version int
	if err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d (delete %s to recreate)",
			ErrSchemaMismatch, version, schemaVersion, s.path)
	}
	return nil
}

func (s *Store) createSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
}

// Summary is the run-list view of a stored snapshot.
type Summary struct {
	RunID          string
	VideoTitle     string
	ActiveStage    run.Stage
	ReachedStage   run.Stage
	FinalVideoPath string
	LastError      string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// SaveSnapshot upserts the run's snapshot and rewrites its log rows so the
// stored history matches the snapshot exactly.
func (s *Store) SaveSnapshot(ctx context.Context, snap run.Snapshot) error {
	if snap.RunID == "" {
		return fmt.Errorf("save snapshot: run id required")
	}
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("save snapshot: marshal: %w", err)
	}
	title := ""
	if snap.Script != nil {
		title = snap.Script.VideoTitle
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save snapshot: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
        INSERT INTO runs (
            run_id, created_at, updated_at, active_stage, reached_stage,
            video_title, final_video_path, last_error, snapshot_json
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(run_id) DO UPDATE SET
            updated_at = excluded.updated_at,
            active_stage = excluded.active_stage,
            reached_stage = excluded.reached_stage,
            video_title = excluded.video_title,
            final_video_path = excluded.final_video_path,
            last_error = excluded.last_error,
            snapshot_json = excluded.snapshot_json`,
		snap.RunID, now, now, int(snap.ActiveStage), int(snap.Reached),
		title, snap.FinalVideoPath, snap.LastError, string(payload),
	)
	if err != nil {
		return fmt.Errorf("save snapshot: upsert run: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM run_logs WHERE run_id = ?", snap.RunID); err != nil {
		return fmt.Errorf("save snapshot: clear logs: %w", err)
	}
	for _, entry := range snap.Log {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO run_logs (run_id, ts, level, message) VALUES (?, ?, ?, ?)",
			snap.RunID, entry.Timestamp.UTC().Format(time.RFC3339Nano), string(entry.Level), entry.Message,
		); err != nil {
			return fmt.Errorf("save snapshot: insert log: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("save snapshot: commit: %w", err)
	}
	return nil
}

// Get loads a stored snapshot by run id.
func (s *Store) Get(ctx context.Context, runID string) (run.Snapshot, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		"SELECT snapshot_json FROM runs WHERE run_id = ?", runID,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return run.Snapshot{}, fmt.Errorf("get run %s: %w", runID, ErrNotFound)
	}
	if err != nil {
		return run.Snapshot{}, fmt.Errorf("get run %s: %w", runID, err)
	}
	var snap run.Snapshot
	if err := json.Unmarshal([]byte(payload), &snap); err != nil {
		return run.Snapshot{}, fmt.Errorf("get run %s: decode snapshot: %w", runID, err)
	}
	return snap, nil
}

// List returns summaries of all stored runs, most recently updated first.
func (s *Store) List(ctx context.Context) ([]Summary, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT run_id, created_at, updated_at, active_stage, reached_stage,
               video_title, final_video_path, last_error
        FROM runs ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var summaries []Summary
	for rows.Next() {
		var (
			sum                  Summary
			createdAt, updatedAt string
			active, reached      int
		)
		if err := rows.Scan(&sum.RunID, &createdAt, &updatedAt, &active, &reached,
			&sum.VideoTitle, &sum.FinalVideoPath, &sum.LastError); err != nil {
			return nil, fmt.Errorf("list runs: scan: %w", err)
		}
		sum.ActiveStage = run.Stage(active)
		sum.ReachedStage = run.Stage(reached)
		sum.CreatedAt = parseTimestamp(createdAt)
		sum.UpdatedAt = parseTimestamp(updatedAt)
		summaries = append(summaries, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return summaries, nil
}

// Delete removes a stored run and its logs.
func (s *Store) Delete(ctx context.Context, runID string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM runs WHERE run_id = ?", runID)
	if err != nil {
		return fmt.Errorf("delete run %s: %w", runID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete run %s: %w", runID, err)
	}
	if affected == 0 {
		return fmt.Errorf("delete run %s: %w", runID, ErrNotFound)
	}
	return nil
}

// AppendLog adds one log entry to a stored run without rewriting the
// snapshot. The run must already exist.
func (s *Store) AppendLog(ctx context.Context, runID string, entry run.LogEntry) error {
	var exists int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM runs WHERE run_id = ?", runID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("append log for %s: %w", runID, err)
	}
	if exists == 0 {
		return fmt.Errorf("append log for %s: %w", runID, ErrNotFound)
	}
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO run_logs (run_id, ts, level, message) VALUES (?, ?, ?, ?)",
		runID, entry.Timestamp.UTC().Format(time.RFC3339Nano), string(entry.Level), entry.Message,
	)
	if err != nil {
		return fmt.Errorf("append log for %s: %w", runID, err)
	}
	return nil
}

// Logs returns a run's stored log entries in insertion order.
func (s *Store) Logs(ctx context.Context, runID string) ([]run.LogEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT ts, level, message FROM run_logs WHERE run_id = ? ORDER BY id", runID)
	if err != nil {
		return nil, fmt.Errorf("logs for %s: %w", runID, err)
	}
	defer rows.Close()

	var entries []run.LogEntry
	for rows.Next() {
		var (
			ts, level string
			entry     run.LogEntry
		)
		if err := rows.Scan(&ts, &level, &entry.Message); err != nil {
			return nil, fmt.Errorf("logs for %s: scan: %w", runID, err)
		}
		entry.Timestamp = parseTimestamp(ts)
		entry.Level = run.ParseLogLevel(level)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("logs for %s: %w", runID, err)
	}
	return entries, nil
}

func parseTimestamp(value string) time.Time {
	ts, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return ts
}
