// Package store keeps the job log and result cache in SQLite.
package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/avast/retry-go/v4"
	_ "github.com/mattn/go-sqlite3"
)

// Job kinds.
const (
	KindAsk       = "ask"
	KindSummarize = "summarize"
)

// Job statuses.
const (
	StatusFound    = "found"
	StatusNoAnswer = "no_answer"
	StatusFailed   = "failed"
)

// Job represents a row in the jobs table.
type Job struct {
	ID          string `json:"id"`
	Kind        string `json:"kind"`
	Prompt      string `json:"prompt"` // question or title
	ContentHash string `json:"content_hash"`
	Status      string `json:"status"`
	Result      string `json:"result,omitempty"` // JSON object
	Error       string `json:"error,omitempty"`
	Model       string `json:"model,omitempty"`
	Settings    string `json:"settings,omitempty"` // fingerprint of the generation settings
	Calls       int    `json:"calls"`
	Depth       int    `json:"depth"`
	Chunks      int    `json:"chunks"`
	ElapsedMS   int64  `json:"elapsed_ms"`
	CreatedAt   string `json:"created_at"`
}

// Store wraps the SQLite database for the job log.
type Store struct {
	db *sql.DB
}

// New opens (or creates) a SQLite database at the given path and applies
// the schema and pending migrations.
func New(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// A concurrent writer can hold the file briefly on first open.
	err = retry.Do(db.Ping,
		retry.Attempts(3),
		retry.Delay(100*time.Millisecond),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	s := &Store{db: db}
	if err := s.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ContentHash returns the hex SHA-256 of text, the cache key for inputs.
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

const jobColumns = `id, kind, prompt, content_hash, status, result, error, model, settings,
	calls, depth, chunks, elapsed_ms, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (*Job, error) {
	j := &Job{}
	var result, errText, model, settings sql.NullString
	if err := row.Scan(&j.ID, &j.Kind, &j.Prompt, &j.ContentHash, &j.Status,
		&result, &errText, &model, &settings,
		&j.Calls, &j.Depth, &j.Chunks, &j.ElapsedMS, &j.CreatedAt); err != nil {
		return nil, err
	}
	j.Result = result.String
	j.Error = errText.String
	j.Model = model.String
	j.Settings = settings.String
	return j, nil
}

// InsertJob records a finished job.
func (s *Store) InsertJob(ctx context.Context, j Job) error {
	var result sql.NullString
	if j.Result != "" {
		result = sql.NullString{String: j.Result, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO jobs (id, kind, prompt, content_hash, status, result, error, model, settings,
			calls, depth, chunks, elapsed_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, j.ID, j.Kind, j.Prompt, j.ContentHash, j.Status, result, j.Error, j.Model, j.Settings,
		j.Calls, j.Depth, j.Chunks, j.ElapsedMS)
	if err != nil {
		return fmt.Errorf("inserting job %s: %w", j.ID, err)
	}
	return nil
}

// GetJob retrieves a job by ID. A missing job yields sql.ErrNoRows.
func (s *Store) GetJob(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+jobColumns+" FROM jobs WHERE id = ?", id)
	return scanJob(row)
}

// ListJobs returns the most recent jobs first. An empty kind lists all
// kinds; limit <= 0 means no limit.
func (s *Store) ListJobs(ctx context.Context, kind string, limit int) ([]Job, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+jobColumns+` FROM jobs
		WHERE (? = '' OR kind = ?)
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`, kind, kind, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *j)
	}
	return jobs, rows.Err()
}

// CacheKey identifies requests that may share a result.
type CacheKey struct {
	Kind        string
	Prompt      string
	ContentHash string
	Model       string
	Settings    string
}

// CachedResult returns the latest successful job recorded under k.
// A miss yields sql.ErrNoRows.
func (s *Store) CachedResult(ctx context.Context, k CacheKey) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+jobColumns+` FROM jobs
		WHERE kind = ? AND prompt = ? AND content_hash = ? AND model = ? AND settings = ?
			AND status != ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT 1
	`, k.Kind, k.Prompt, k.ContentHash, k.Model, k.Settings, StatusFailed)
	return scanJob(row)
}

// PruneJobs deletes jobs created before cutoff and returns how many went.
func (s *Store) PruneJobs(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM jobs WHERE created_at < ?",
		cutoff.UTC().Format("2006-01-02 15:04:05"))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DBStats holds job counts per status.
type DBStats struct {
	Jobs     int `json:"jobs"`
	Found    int `json:"found"`
	NoAnswer int `json:"no_answer"`
	Failed   int `json:"failed"`
}

// DBStats returns job counts by status.
func (s *Store) DBStats(ctx context.Context) (*DBStats, error) {
	stats := &DBStats{}
	queries := []struct {
		query string
		args  []any
		dest  *int
	}{
		{"SELECT COUNT(*) FROM jobs", nil, &stats.Jobs},
		{"SELECT COUNT(*) FROM jobs WHERE status = ?", []any{StatusFound}, &stats.Found},
		{"SELECT COUNT(*) FROM jobs WHERE status = ?", []any{StatusNoAnswer}, &stats.NoAnswer},
		{"SELECT COUNT(*) FROM jobs WHERE status = ?", []any{StatusFailed}, &stats.Failed},
	}
	for _, q := range queries {
		if err := s.db.QueryRowContext(ctx, q.query, q.args...).Scan(q.dest); err != nil {
			return nil, fmt.Errorf("counting %s: %w", q.query, err)
		}
	}
	return stats, nil
}

// --- helpers ---

func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}
