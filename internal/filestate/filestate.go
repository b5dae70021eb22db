// Package filestate persists per-file processing state and decides, for a
// freshly-hashed file, whether it needs to be processed, retried, or
// skipped (§4.2). It shares the same SQLite database file as
// internal/store so a folder's document, chunk, embedding, and file-state
// tables all commit or crash together.
package filestate

import (
	"context"
	"database/sql"
	"time"

	"github.com/foldermcp/folderindex/internal/kerrors"
)

// State is the closed set of processing states a file can be in.
type State string

const (
	StateNeverSeen  State = "never_seen"
	StateIndexed    State = "indexed"
	StateFailed     State = "failed"
	StateSkipped    State = "skipped"
	StateInProgress State = "in_progress"
)

// Action is the decision FileStateStore.Decide returns for one file.
type Action string

const (
	ActionProcess Action = "process"
	ActionRetry   Action = "retry"
	ActionSkip    Action = "skip"
)

// Decision is the sum type produced by Decide: an Action plus the reason a
// human (or a test) would want to see.
type Decision struct {
	Action Action
	Reason string
}

// Record is one row of a file's persisted state.
type Record struct {
	Path       string
	Hash       string
	State      State
	ChunkCount int
	Attempts   int
	LastError  string
	UpdatedAt  time.Time
}

// Stats summarizes FileStateStore contents for §4.2's stats() operation.
type Stats struct {
	Total      int
	ByState    map[State]int
	Efficiency float64 // skipped / total
}

// DefaultMaxAttempts bounds retries across process restarts (§4.2): once a
// failed file has been attempted this many times, Decide stops offering
// retry and the file is permanently failed.
const DefaultMaxAttempts = 3

// Store is the SQLite-backed implementation of C2 FileStateStore.
type Store struct {
	db          *sql.DB
	maxAttempts int
}

// New wraps an already-open *sql.DB (shared with internal/store's
// connection, or a dedicated one in tests) and ensures the file_states
// table exists.
func New(db *sql.DB, maxAttempts int) (*Store, error) {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	s := &Store{db: db, maxAttempts: maxAttempts}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS file_states (
			path TEXT PRIMARY KEY,
			hash TEXT NOT NULL,
			state TEXT NOT NULL,
			chunk_count INTEGER NOT NULL DEFAULT 0,
			attempts INTEGER NOT NULL DEFAULT 0,
			last_error TEXT NOT NULL DEFAULT '',
			updated_at INTEGER NOT NULL
		)`)
	if err != nil {
		return kerrors.DatabaseFatal("create file_states table", err)
	}
	return nil
}

func (s *Store) get(ctx context.Context, path string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT path, hash, state, chunk_count, attempts, last_error, updated_at
		FROM file_states WHERE path = ?`, path)

	var r Record
	var updatedAt int64
	err := row.Scan(&r.Path, &r.Hash, &r.State, &r.ChunkCount, &r.Attempts, &r.LastError, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, kerrors.DatabaseTransient("read file state", err)
	}
	r.UpdatedAt = time.Unix(updatedAt, 0)
	return &r, nil
}

// Decide implements §4.2's rule order exactly: new file, modified file,
// retryable failure, unchanged skip, else skip with recorded reason.
func (s *Store) Decide(ctx context.Context, path, currentHash string) (Decision, error) {
	rec, err := s.get(ctx, path)
	if err != nil {
		return Decision{}, err
	}

	if rec == nil {
		return Decision{Action: ActionProcess, Reason: "new file"}, nil
	}
	if rec.Hash != currentHash {
		return Decision{Action: ActionProcess, Reason: "content changed"}, nil
	}
	if rec.State == StateFailed && rec.Attempts < s.maxAttempts {
		return Decision{Action: ActionRetry, Reason: "retrying previous failure"}, nil
	}
	if rec.State == StateIndexed {
		return Decision{Action: ActionSkip, Reason: "unchanged"}, nil
	}
	return Decision{Action: ActionSkip, Reason: "previously " + string(rec.State) + ", attempts exhausted"}, nil
}

// StartProcessing records an attempt and marks the file in-progress.
func (s *Store) StartProcessing(ctx context.Context, path, hash string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO file_states (path, hash, state, chunk_count, attempts, last_error, updated_at)
		VALUES (?, ?, ?, 0, 1, '', ?)
		ON CONFLICT(path) DO UPDATE SET
			hash = excluded.hash,
			state = excluded.state,
			attempts = file_states.attempts + 1,
			updated_at = excluded.updated_at`,
		path, hash, StateInProgress, time.Now().Unix())
	if err != nil {
		return kerrors.DatabaseTransient("start processing file state", err)
	}
	return nil
}

// MarkSuccess records a completed, indexed file.
func (s *Store) MarkSuccess(ctx context.Context, path string, chunkCount int) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE file_states SET state = ?, chunk_count = ?, last_error = '', updated_at = ?
		WHERE path = ?`, StateIndexed, chunkCount, time.Now().Unix(), path)
	if err != nil {
		return kerrors.DatabaseTransient("mark file state success", err)
	}
	return nil
}

// MarkSkipped records a file that was deliberately not processed.
func (s *Store) MarkSkipped(ctx context.Context, path, hash, reason string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO file_states (path, hash, state, chunk_count, attempts, last_error, updated_at)
		VALUES (?, ?, ?, 0, 0, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			hash = excluded.hash,
			state = excluded.state,
			last_error = excluded.last_error,
			updated_at = excluded.updated_at`,
		path, hash, StateSkipped, reason, time.Now().Unix())
	if err != nil {
		return kerrors.DatabaseTransient("mark file state skipped", err)
	}
	return nil
}

// MarkFailed sets the failed state and records the failure reason. It leaves
// the attempt count as is; StartProcessing already counted this attempt.
func (s *Store) MarkFailed(ctx context.Context, path, errorMessage string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE file_states SET state = ?, last_error = ?, updated_at = ?
		WHERE path = ?`, StateFailed, errorMessage, time.Now().Unix(), path)
	if err != nil {
		return kerrors.DatabaseTransient("mark file state failed", err)
	}
	return nil
}

// Remove deletes a file's state row entirely, used by orphan cleanup (§4.6)
// so a removed file leaves no trace once its Document is also gone.
func (s *Store) Remove(ctx context.Context, path string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM file_states WHERE path = ?`, path); err != nil {
		return kerrors.DatabaseTransient("remove file state", err)
	}
	return nil
}

// StatsOf reports totals grouped by state, plus the skipped/total
// efficiency ratio.
func (s *Store) StatsOf(ctx context.Context) (Stats, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT state, COUNT(*) FROM file_states GROUP BY state`)
	if err != nil {
		return Stats{}, kerrors.DatabaseTransient("query file state stats", err)
	}
	defer rows.Close()

	stats := Stats{ByState: make(map[State]int)}
	for rows.Next() {
		var state State
		var count int
		if err := rows.Scan(&state, &count); err != nil {
			return Stats{}, kerrors.DatabaseTransient("scan file state stats row", err)
		}
		stats.ByState[state] = count
		stats.Total += count
	}
	if err := rows.Err(); err != nil {
		return Stats{}, kerrors.DatabaseTransient("iterate file state stats", err)
	}

	if stats.Total > 0 {
		stats.Efficiency = float64(stats.ByState[StateSkipped]) / float64(stats.Total)
	}
	return stats, nil
}

// HasAnyTracked reports whether any file has ever been recorded, used by
// FolderLifecycleService's "embeddings present" validation (§4.8).
func (s *Store) HasAnyTracked(ctx context.Context) (bool, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM file_states`).Scan(&count); err != nil {
		return false, kerrors.DatabaseTransient("count tracked file states", err)
	}
	return count > 0, nil
}
