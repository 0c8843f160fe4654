//go:build cgo

package store

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := New(dbPath)
	if err != nil {
		t.Fatalf("creating store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// ---------------------------------------------------------------------------
// Schema / construction
// ---------------------------------------------------------------------------

func TestNew(t *testing.T) {
	s := newTestStore(t)
	if s.db == nil {
		t.Fatal("expected non-nil *sql.DB")
	}
	v, err := s.SchemaVersion(context.Background())
	if err != nil {
		t.Fatalf("SchemaVersion: %v", err)
	}
	if want := migrations[len(migrations)-1].version; v != want {
		t.Errorf("schema version = %d, want %d", v, want)
	}
}

func TestNewCreatesParentDir(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "sub", "dir", "test.db")
	s, err := New(dbPath)
	if err != nil {
		t.Fatalf("creating store in nested dir: %v", err)
	}
	s.Close()
}

func TestReopenKeepsJobs(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	ctx := context.Background()

	s, err := New(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.InsertJob(ctx, sampleJob("j1")); err != nil {
		t.Fatal(err)
	}
	s.Close()

	s, err = New(dbPath)
	if err != nil {
		t.Fatalf("reopening: %v", err)
	}
	defer s.Close()
	if _, err := s.GetJob(ctx, "j1"); err != nil {
		t.Errorf("GetJob after reopen: %v", err)
	}
}

func TestMigrateFromVersion3(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "v3.db")
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		t.Fatal(err)
	}
	stmts := []string{
		schemaSQL,
		"ALTER TABLE jobs ADD COLUMN model TEXT DEFAULT ''",
		`CREATE TABLE schema_version (version INTEGER PRIMARY KEY, description TEXT,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP)`,
		"INSERT INTO schema_version (version) VALUES (1), (2), (3)",
		`INSERT INTO jobs (id, kind, prompt, content_hash, status, result, model)
			VALUES ('old', 'ask', 'Who?', 'h', 'found', '{"Answer":"Ada"}', 'm')`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("seeding v3 database: %v", err)
		}
	}
	db.Close()

	s, err := New(dbPath)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	if v, _ := s.SchemaVersion(ctx); v != 4 {
		t.Errorf("schema version = %d, want 4", v)
	}
	j, err := s.GetJob(ctx, "old")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if j.Settings != "" {
		t.Errorf("settings = %q, want empty for a pre-fingerprint job", j.Settings)
	}
	// Rows recorded before the fingerprint existed never match a current key.
	key := CacheKey{Kind: KindAsk, Prompt: "Who?", ContentHash: "h", Model: "m", Settings: "fp"}
	if _, err := s.CachedResult(ctx, key); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("expected miss on old row, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// Jobs
// ---------------------------------------------------------------------------

func sampleJob(id string) Job {
	return Job{
		ID:          id,
		Kind:        KindAsk,
		Prompt:      "Who founded the company?",
		ContentHash: ContentHash("some document"),
		Status:      StatusFound,
		Result:      `{"Final Answer":"Ada"}`,
		Model:       "test-model",
		Settings:    "fp1",
		Calls:       9,
		Depth:       1,
		Chunks:      8,
		ElapsedMS:   1200,
	}
}

func TestInsertAndGetJob(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	job := sampleJob("abc")
	if err := s.InsertJob(ctx, job); err != nil {
		t.Fatalf("InsertJob: %v", err)
	}

	got, err := s.GetJob(ctx, "abc")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.Prompt != job.Prompt {
		t.Errorf("prompt = %q, want %q", got.Prompt, job.Prompt)
	}
	if got.Result != job.Result {
		t.Errorf("result = %q, want %q", got.Result, job.Result)
	}
	if got.Model != "test-model" {
		t.Errorf("model = %q, want %q", got.Model, "test-model")
	}
	if got.Calls != 9 || got.Depth != 1 || got.Chunks != 8 || got.ElapsedMS != 1200 {
		t.Errorf("stats = %d/%d/%d/%d, want 9/1/8/1200", got.Calls, got.Depth, got.Chunks, got.ElapsedMS)
	}
	if got.CreatedAt == "" {
		t.Error("expected created_at to be set")
	}
}

func TestInsertJobDuplicateID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.InsertJob(ctx, sampleJob("dup")); err != nil {
		t.Fatal(err)
	}
	if err := s.InsertJob(ctx, sampleJob("dup")); err == nil {
		t.Fatal("expected error for duplicate job id")
	}
}

func TestGetJobNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetJob(context.Background(), "missing")
	if !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected sql.ErrNoRows, got %v", err)
	}
}

func TestFailedJobHasNoResult(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	job := sampleJob("f")
	job.Status = StatusFailed
	job.Result = ""
	job.Error = "generation failed"
	if err := s.InsertJob(ctx, job); err != nil {
		t.Fatal(err)
	}
	got, err := s.GetJob(ctx, "f")
	if err != nil {
		t.Fatal(err)
	}
	if got.Result != "" || got.Error != "generation failed" {
		t.Errorf("got result %q error %q", got.Result, got.Error)
	}
}

func TestListJobs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		j := sampleJob(id)
		if id == "b" {
			j.Kind = KindSummarize
		}
		if err := s.InsertJob(ctx, j); err != nil {
			t.Fatal(err)
		}
	}

	all, err := s.ListJobs(ctx, "", 0)
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("got %d jobs, want 3", len(all))
	}
	// Same-second inserts fall back to insertion order, newest first.
	if all[0].ID != "c" || all[2].ID != "a" {
		t.Errorf("order = %s,%s,%s, want c,b,a", all[0].ID, all[1].ID, all[2].ID)
	}

	asks, err := s.ListJobs(ctx, KindAsk, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(asks) != 2 {
		t.Errorf("got %d ask jobs, want 2", len(asks))
	}

	limited, err := s.ListJobs(ctx, "", 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(limited) != 1 {
		t.Errorf("got %d jobs with limit 1, want 1", len(limited))
	}
}

func TestListJobsEmpty(t *testing.T) {
	s := newTestStore(t)
	jobs, err := s.ListJobs(context.Background(), "", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(jobs) != 0 {
		t.Errorf("expected no jobs, got %d", len(jobs))
	}
}

// ---------------------------------------------------------------------------
// Result cache
// ---------------------------------------------------------------------------

func sampleKey() CacheKey {
	return CacheKey{
		Kind:        KindAsk,
		Prompt:      "Who founded the company?",
		ContentHash: ContentHash("some document"),
		Model:       "test-model",
		Settings:    "fp1",
	}
}

func TestCachedResult(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.CachedResult(ctx, sampleKey()); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected miss on empty store, got %v", err)
	}

	failed := sampleJob("failed")
	failed.Status = StatusFailed
	if err := s.InsertJob(ctx, failed); err != nil {
		t.Fatal(err)
	}
	if _, err := s.CachedResult(ctx, sampleKey()); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("failed jobs must not be served from cache, got %v", err)
	}

	if err := s.InsertJob(ctx, sampleJob("ok")); err != nil {
		t.Fatal(err)
	}
	got, err := s.CachedResult(ctx, sampleKey())
	if err != nil {
		t.Fatalf("CachedResult: %v", err)
	}
	if got.ID != "ok" {
		t.Errorf("cached job = %q, want %q", got.ID, "ok")
	}
	if got.Settings != "fp1" {
		t.Errorf("settings = %q, want %q", got.Settings, "fp1")
	}
}

func TestCachedResultKeyedOnAllFields(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if err := s.InsertJob(ctx, sampleJob("ok")); err != nil {
		t.Fatal(err)
	}

	misses := []struct {
		name   string
		mutate func(*CacheKey)
	}{
		{"kind", func(k *CacheKey) { k.Kind = KindSummarize }},
		{"prompt", func(k *CacheKey) { k.Prompt = "When?" }},
		{"content", func(k *CacheKey) { k.ContentHash = ContentHash("other document") }},
		{"model", func(k *CacheKey) { k.Model = "other-model" }},
		{"settings", func(k *CacheKey) { k.Settings = "fp2" }},
	}
	for _, tt := range misses {
		t.Run(tt.name, func(t *testing.T) {
			k := sampleKey()
			tt.mutate(&k)
			if _, err := s.CachedResult(ctx, k); !errors.Is(err, sql.ErrNoRows) {
				t.Errorf("expected miss, got %v", err)
			}
		})
	}
}

func TestContentHash(t *testing.T) {
	a := ContentHash("hello")
	if len(a) != 64 {
		t.Errorf("hash length = %d, want 64", len(a))
	}
	if a != ContentHash("hello") {
		t.Error("hash not deterministic")
	}
	if a == ContentHash("hello!") {
		t.Error("different inputs produced the same hash")
	}
}

// ---------------------------------------------------------------------------
// Maintenance
// ---------------------------------------------------------------------------

func TestPruneJobs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.InsertJob(ctx, sampleJob("old")); err != nil {
		t.Fatal(err)
	}
	if _, err := s.db.ExecContext(ctx,
		"UPDATE jobs SET created_at = '2001-01-01 00:00:00' WHERE id = 'old'"); err != nil {
		t.Fatal(err)
	}
	if err := s.InsertJob(ctx, sampleJob("new")); err != nil {
		t.Fatal(err)
	}

	n, err := s.PruneJobs(ctx, time.Now().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("PruneJobs: %v", err)
	}
	if n != 1 {
		t.Errorf("pruned %d jobs, want 1", n)
	}
	if _, err := s.GetJob(ctx, "new"); err != nil {
		t.Errorf("recent job was pruned: %v", err)
	}
}

func TestDBStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	statuses := map[string]string{"a": StatusFound, "b": StatusFound, "c": StatusNoAnswer, "d": StatusFailed}
	for id, status := range statuses {
		j := sampleJob(id)
		j.Status = status
		if err := s.InsertJob(ctx, j); err != nil {
			t.Fatal(err)
		}
	}

	stats, err := s.DBStats(ctx)
	if err != nil {
		t.Fatalf("DBStats: %v", err)
	}
	if stats.Jobs != 4 || stats.Found != 2 || stats.NoAnswer != 1 || stats.Failed != 1 {
		t.Errorf("stats = %+v", *stats)
	}
}
