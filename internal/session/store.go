package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"storyloom/internal/config"
)

// schemaVersion is the current schema version. Bump this when the schema
// changes; stale databases are rejected rather than migrated in place.
const schemaVersion = 1

const schemaSQL = `
CREATE TABLE IF NOT EXISTS tracked_jobs (
    session_key TEXT PRIMARY KEY,
    job_id      TEXT NOT NULL,
    title       TEXT NOT NULL DEFAULT '',
    created_at  TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER NOT NULL
);
`

// ErrSchemaMismatch indicates the database schema version doesn't match the
// expected version.
var ErrSchemaMismatch = errors.New("schema version mismatch")

// ErrActiveJob indicates a different job is already tracked for the session.
var ErrActiveJob = errors.New("a job is already tracked for this session")

// Record is the tracked-job slot content for one session key.
type Record struct {
	SessionKey string
	JobID      string
	Title      string
	CreatedAt  time.Time
}

// Store manages tracked-job persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the session database.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := cfg.SessionDBPath()
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

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) initSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	var version int
	err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := s.db.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
			return fmt.Errorf("record schema version: %w", err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("read schema version: %w", err)
	}

	if version != schemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d (delete %s to reset)",
			ErrSchemaMismatch, version, schemaVersion, s.path)
	}
	return nil
}

// Track records the job as the active one for its session key. Tracking the
// job that is already recorded is a no-op; a different active job returns
// ErrActiveJob wrapping the existing record.
func (s *Store) Track(ctx context.Context, rec Record) error {
	if strings.TrimSpace(rec.SessionKey) == "" {
		return errors.New("session key must not be empty")
	}
	if strings.TrimSpace(rec.JobID) == "" {
		return errors.New("job id must not be empty")
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var existing string
	err = tx.QueryRowContext(ctx,
		"SELECT job_id FROM tracked_jobs WHERE session_key = ?", rec.SessionKey,
	).Scan(&existing)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return fmt.Errorf("read tracked job: %w", err)
	case existing == rec.JobID:
		return tx.Commit()
	default:
		return fmt.Errorf("%w: job %s", ErrActiveJob, existing)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO tracked_jobs (session_key, job_id, title, created_at) VALUES (?, ?, ?, ?)`,
		rec.SessionKey, rec.JobID, rec.Title, rec.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert tracked job: %w", err)
	}
	return tx.Commit()
}

// Current returns the tracked record for the session key, or nil when the
// slot is empty.
func (s *Store) Current(ctx context.Context, sessionKey string) (*Record, error) {
	var rec Record
	var createdAt string
	err := s.db.QueryRowContext(ctx,
		"SELECT session_key, job_id, title, created_at FROM tracked_jobs WHERE session_key = ?",
		sessionKey,
	).Scan(&rec.SessionKey, &rec.JobID, &rec.Title, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read tracked job: %w", err)
	}

	parsed, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at %q: %w", createdAt, err)
	}
	rec.CreatedAt = parsed
	return &rec, nil
}

// Clear empties the slot for the session key regardless of which job holds it.
func (s *Store) Clear(ctx context.Context, sessionKey string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM tracked_jobs WHERE session_key = ?", sessionKey); err != nil {
		return fmt.Errorf("clear tracked job: %w", err)
	}
	return nil
}

// ClearIfCurrent empties the slot only while it still holds the given job.
// A resumed tracker finishing late must not clear a newer job's record.
func (s *Store) ClearIfCurrent(ctx context.Context, sessionKey, jobID string) error {
	if _, err := s.db.ExecContext(ctx,
		"DELETE FROM tracked_jobs WHERE session_key = ? AND job_id = ?",
		sessionKey, jobID,
	); err != nil {
		return fmt.Errorf("clear tracked job: %w", err)
	}
	return nil
}
