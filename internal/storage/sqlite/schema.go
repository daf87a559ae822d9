package sqlite

// Schema contains the SQL statements creating the Stratum tier tables.
// Applied idempotently on every open.
const Schema = `
-- Items table: memory items resident in the warm or cold tier.
-- Hot-tier residency is in-process only and never persisted here.
CREATE TABLE IF NOT EXISTS items (
    id TEXT PRIMARY KEY,
    owner_id TEXT NOT NULL,
    session_id TEXT,
    content TEXT NOT NULL,
    entities TEXT,                -- JSON array of entity strings
    semantic_novelty REAL NOT NULL DEFAULT 0,
    sentiment_intensity REAL NOT NULL DEFAULT 0,
    user_feedback REAL NOT NULL DEFAULT 0,
    recurrence_count INTEGER NOT NULL DEFAULT 0,
    importance REAL NOT NULL DEFAULT 0,
    tier TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    last_referenced_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_items_owner_tier ON items(owner_id, tier, created_at DESC);

-- Nodes table: warm-tier graph nodes (entity | topic | summary).
-- Nodes are never hard-deleted, only marked orphaned.
CREATE TABLE IF NOT EXISTS nodes (
    node_id TEXT PRIMARY KEY,
    owner_id TEXT NOT NULL,
    node_type TEXT NOT NULL,
    payload TEXT NOT NULL,
    weight REAL NOT NULL DEFAULT 0,
    item_id TEXT,                 -- weak back-reference, lookup only
    orphaned INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

-- Entity and topic nodes are de-duplicated per owner by payload.
CREATE UNIQUE INDEX IF NOT EXISTS idx_nodes_dedup
    ON nodes(owner_id, node_type, payload)
    WHERE node_type IN ('entity', 'topic');

CREATE INDEX IF NOT EXISTS idx_nodes_owner_updated ON nodes(owner_id, updated_at DESC);

-- Edges table: directed relations between nodes.
CREATE TABLE IF NOT EXISTS edges (
    from_id TEXT NOT NULL,
    to_id TEXT NOT NULL,
    relation_kind TEXT NOT NULL,
    strength REAL NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (from_id, to_id, relation_kind)
);

CREATE INDEX IF NOT EXISTS idx_edges_to ON edges(to_id);

-- Chunks table: the cold tier's append-only hash chain.
-- (owner_id, seq) uniqueness is what makes a chain append atomic:
-- two concurrent appends at the same tail cannot both commit.
CREATE TABLE IF NOT EXISTS chunks (
    chunk_id TEXT PRIMARY KEY,
    owner_id TEXT NOT NULL,
    seq INTEGER NOT NULL,
    delta_payload TEXT NOT NULL,
    delta_base TEXT,
    content_hash TEXT NOT NULL,
    previous_hash TEXT,
    redacted INTEGER NOT NULL DEFAULT 0,
    redacted_at TIMESTAMP,
    importance REAL NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL,
    UNIQUE (owner_id, seq)
);

CREATE INDEX IF NOT EXISTS idx_chunks_owner_seq ON chunks(owner_id, seq);
`
