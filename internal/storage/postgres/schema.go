// Package postgres provides a PostgreSQL implementation of the cold
// tier's ArchiveStore, for deployments that keep the hash chain on a
// server-grade database instead of local SQLite.
package postgres

// Schema contains the SQL statements creating the archive table.
const Schema = `
-- Chunks table: the cold tier's append-only hash chain.
CREATE TABLE IF NOT EXISTS chunks (
    chunk_id TEXT PRIMARY KEY,
    owner_id TEXT NOT NULL,
    seq INTEGER NOT NULL,
    delta_payload TEXT NOT NULL,
    delta_base TEXT,
    content_hash TEXT NOT NULL,
    previous_hash TEXT,
    redacted BOOLEAN NOT NULL DEFAULT FALSE,
    redacted_at TIMESTAMPTZ,
    importance DOUBLE PRECISION NOT NULL DEFAULT 0,
    created_at TIMESTAMPTZ NOT NULL,
    UNIQUE (owner_id, seq)
);

CREATE INDEX IF NOT EXISTS idx_chunks_owner_seq ON chunks(owner_id, seq);
`
