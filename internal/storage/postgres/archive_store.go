package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/stratumhq/stratum/internal/storage"
	"github.com/stratumhq/stratum/pkg/types"
)

// ArchiveStore implements storage.ArchiveStore on PostgreSQL.
type ArchiveStore struct {
	db *sql.DB
}

// NewArchiveStore connects to PostgreSQL using the given DSN and
// applies the schema.
func NewArchiveStore(dsn string) (*ArchiveStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres: create schema: %w", err)
	}
	return &ArchiveStore{db: db}, nil
}

// AppendChunk stores a chunk at the tail of its owner's chain.
// The tail seq is re-checked inside the transaction with a row lock on
// the owner's newest chunk, so concurrent appends serialize and a
// retried append can never fork the chain.
func (s *ArchiveStore) AppendChunk(ctx context.Context, chunk *types.ArchiveChunk) error {
	if chunk == nil {
		return storage.ErrInvalidInput
	}
	if chunk.ChunkID == "" || chunk.OwnerID == "" || chunk.ContentHash == "" {
		return fmt.Errorf("%w: chunk id, owner and content hash are required", storage.ErrInvalidInput)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres: begin append tx: %w", err)
	}
	defer tx.Rollback()

	// Lock the tail row so concurrent appends for the same owner
	// serialize; the (owner_id, seq) unique constraint backstops races
	// on an empty chain.
	var tailSeq int
	err = tx.QueryRowContext(ctx, `
		SELECT seq FROM chunks WHERE owner_id = $1 ORDER BY seq DESC LIMIT 1 FOR UPDATE
	`, chunk.OwnerID).Scan(&tailSeq)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("postgres: read chain tail: %w", err)
	}

	if chunk.Seq != tailSeq+1 {
		return fmt.Errorf("%w: append at seq %d but chain tail is %d",
			storage.ErrChainIntegrity, chunk.Seq, tailSeq)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO chunks (
			chunk_id, owner_id, seq, delta_payload, delta_base,
			content_hash, previous_hash, redacted, redacted_at, importance, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, FALSE, NULL, $8, $9)
	`, chunk.ChunkID, chunk.OwnerID, chunk.Seq, chunk.DeltaPayload,
		nullIfEmpty(chunk.DeltaBase), chunk.ContentHash,
		nullIfEmpty(chunk.PreviousHash), chunk.Importance, chunk.CreatedAt)
	if err != nil {
		return fmt.Errorf("postgres: insert chunk %s: %w", chunk.ChunkID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("postgres: commit chunk %s: %w", chunk.ChunkID, err)
	}
	return nil
}

// GetChunk retrieves a chunk by ID.
func (s *ArchiveStore) GetChunk(ctx context.Context, chunkID string) (*types.ArchiveChunk, error) {
	row := s.db.QueryRowContext(ctx, chunkSelect+" WHERE chunk_id = $1", chunkID)

	chunk, err := scanChunk(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: chunk %s", storage.ErrNotFound, chunkID)
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get chunk %s: %w", chunkID, err)
	}
	return chunk, nil
}

// ListChunks returns an owner's chunks ordered by seq ascending.
func (s *ArchiveStore) ListChunks(ctx context.Context, ownerID string) ([]*types.ArchiveChunk, error) {
	rows, err := s.db.QueryContext(ctx,
		chunkSelect+" WHERE owner_id = $1 ORDER BY seq ASC", ownerID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list chunks for %s: %w", ownerID, err)
	}
	defer rows.Close()

	chunks := make([]*types.ArchiveChunk, 0)
	for rows.Next() {
		chunk, err := scanChunk(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan chunk: %w", err)
		}
		chunks = append(chunks, chunk)
	}
	return chunks, rows.Err()
}

// TailChunk returns the newest chunk for an owner.
func (s *ArchiveStore) TailChunk(ctx context.Context, ownerID string) (*types.ArchiveChunk, error) {
	row := s.db.QueryRowContext(ctx,
		chunkSelect+" WHERE owner_id = $1 ORDER BY seq DESC LIMIT 1", ownerID)

	chunk, err := scanChunk(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: no chunks for owner %s", storage.ErrNotFound, ownerID)
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: tail chunk for %s: %w", ownerID, err)
	}
	return chunk, nil
}

// UpdateChunkPayload overwrites a chunk's display payload and marks it
// redacted. content_hash and previous_hash are deliberately untouched.
func (s *ArchiveStore) UpdateChunkPayload(ctx context.Context, chunkID, payload string, redactedAt time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE chunks SET delta_payload = $1, delta_base = NULL, redacted = TRUE, redacted_at = $2
		WHERE chunk_id = $3
	`, payload, redactedAt, chunkID)
	if err != nil {
		return fmt.Errorf("postgres: redact chunk %s: %w", chunkID, err)
	}
	return requireAffected(result, chunkID)
}

// ReencodeChunkRaw swaps a chunk's stored representation to raw without
// changing its logical payload or redaction state.
func (s *ArchiveStore) ReencodeChunkRaw(ctx context.Context, chunkID, payload string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE chunks SET delta_payload = $1, delta_base = NULL WHERE chunk_id = $2
	`, payload, chunkID)
	if err != nil {
		return fmt.Errorf("postgres: re-encode chunk %s: %w", chunkID, err)
	}
	return requireAffected(result, chunkID)
}

// Close releases the database connection.
func (s *ArchiveStore) Close() error {
	return s.db.Close()
}

const chunkSelect = `
	SELECT chunk_id, owner_id, seq, delta_payload, delta_base,
	       content_hash, previous_hash, redacted, redacted_at, importance, created_at
	FROM chunks`

func scanChunk(row interface{ Scan(...interface{}) error }) (*types.ArchiveChunk, error) {
	var (
		chunk      types.ArchiveChunk
		deltaBase  sql.NullString
		prevHash   sql.NullString
		redactedAt sql.NullTime
	)

	err := row.Scan(&chunk.ChunkID, &chunk.OwnerID, &chunk.Seq,
		&chunk.DeltaPayload, &deltaBase, &chunk.ContentHash, &prevHash,
		&chunk.Redacted, &redactedAt, &chunk.Importance, &chunk.CreatedAt)
	if err != nil {
		return nil, err
	}

	chunk.DeltaBase = deltaBase.String
	chunk.PreviousHash = prevHash.String
	if redactedAt.Valid {
		t := redactedAt.Time
		chunk.RedactedAt = &t
	}
	return &chunk, nil
}

func requireAffected(result sql.Result, chunkID string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("postgres: rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: chunk %s", storage.ErrNotFound, chunkID)
	}
	return nil
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
