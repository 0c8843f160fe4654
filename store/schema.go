package store

// schemaSQL is the base schema. Later changes go into migrations.
const schemaSQL = `
-- One row per Ask or Summarize call
CREATE TABLE IF NOT EXISTS jobs (
    id TEXT PRIMARY KEY,
    kind TEXT NOT NULL,
    prompt TEXT NOT NULL,
    content_hash TEXT NOT NULL,
    status TEXT NOT NULL,
    result JSON,
    error TEXT,
    calls INTEGER DEFAULT 0,
    depth INTEGER DEFAULT 0,
    chunks INTEGER DEFAULT 0,
    elapsed_ms INTEGER DEFAULT 0,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_jobs_created ON jobs(created_at);
`
