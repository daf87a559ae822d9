package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/stratumhq/stratum/internal/storage"
	"github.com/stratumhq/stratum/pkg/types"
)

// AppendChunk stores a fully-formed chunk at the tail of its owner's
// chain. The insert runs in a transaction that re-checks the tail seq,
// so a concurrent or retried append can never fork the chain: either
// this chunk becomes the new tail or nothing is written.
func (s *Store) AppendChunk(ctx context.Context, chunk *types.ArchiveChunk) error {
	if chunk == nil {
		return storage.ErrInvalidInput
	}
	if chunk.ChunkID == "" || chunk.OwnerID == "" || chunk.ContentHash == "" {
		return fmt.Errorf("%w: chunk id, owner and content hash are required", storage.ErrInvalidInput)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin append tx: %w", err)
	}
	defer tx.Rollback()

	var tailSeq int
	err = tx.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(seq), 0) FROM chunks WHERE owner_id = ?",
		chunk.OwnerID).Scan(&tailSeq)
	if err != nil {
		return fmt.Errorf("sqlite: read chain tail: %w", err)
	}

	if chunk.Seq != tailSeq+1 {
		return fmt.Errorf("%w: append at seq %d but chain tail is %d",
			storage.ErrChainIntegrity, chunk.Seq, tailSeq)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO chunks (
			chunk_id, owner_id, seq, delta_payload, delta_base,
			content_hash, previous_hash, redacted, redacted_at, importance, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, 0, NULL, ?, ?)
	`, chunk.ChunkID, chunk.OwnerID, chunk.Seq, chunk.DeltaPayload,
		nullIfEmpty(chunk.DeltaBase), chunk.ContentHash,
		nullIfEmpty(chunk.PreviousHash), chunk.Importance, chunk.CreatedAt)
	if err != nil {
		return fmt.Errorf("sqlite: insert chunk %s: %w", chunk.ChunkID, err)
	}

	// Durability: with synchronous=FULL the commit is fsynced before
	// Commit returns, satisfying the no-silent-loss-of-chain-tail rule.
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit chunk %s: %w", chunk.ChunkID, err)
	}
	return nil
}

// GetChunk retrieves a chunk by ID.
func (s *Store) GetChunk(ctx context.Context, chunkID string) (*types.ArchiveChunk, error) {
	row := s.db.QueryRowContext(ctx, chunkSelect+" WHERE chunk_id = ?", chunkID)

	chunk, err := scanChunk(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: chunk %s", storage.ErrNotFound, chunkID)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: get chunk %s: %w", chunkID, err)
	}
	return chunk, nil
}

// ListChunks returns an owner's chunks ordered by seq ascending.
func (s *Store) ListChunks(ctx context.Context, ownerID string) ([]*types.ArchiveChunk, error) {
	rows, err := s.db.QueryContext(ctx,
		chunkSelect+" WHERE owner_id = ? ORDER BY seq ASC", ownerID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list chunks for %s: %w", ownerID, err)
	}
	defer rows.Close()

	chunks := make([]*types.ArchiveChunk, 0)
	for rows.Next() {
		chunk, err := scanChunk(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan chunk: %w", err)
		}
		chunks = append(chunks, chunk)
	}
	return chunks, rows.Err()
}

// TailChunk returns the newest chunk for an owner.
func (s *Store) TailChunk(ctx context.Context, ownerID string) (*types.ArchiveChunk, error) {
	row := s.db.QueryRowContext(ctx,
		chunkSelect+" WHERE owner_id = ? ORDER BY seq DESC LIMIT 1", ownerID)

	chunk, err := scanChunk(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: no chunks for owner %s", storage.ErrNotFound, ownerID)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: tail chunk for %s: %w", ownerID, err)
	}
	return chunk, nil
}

// UpdateChunkPayload overwrites a chunk's display payload and marks it
// redacted. content_hash and previous_hash are deliberately untouched.
func (s *Store) UpdateChunkPayload(ctx context.Context, chunkID, payload string, redactedAt time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE chunks SET delta_payload = ?, delta_base = NULL, redacted = 1, redacted_at = ?
		WHERE chunk_id = ?
	`, payload, redactedAt, chunkID)
	if err != nil {
		return fmt.Errorf("sqlite: redact chunk %s: %w", chunkID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: chunk %s", storage.ErrNotFound, chunkID)
	}
	return nil
}

// ReencodeChunkRaw swaps a chunk's stored representation to raw without
// changing its logical payload or redaction state.
func (s *Store) ReencodeChunkRaw(ctx context.Context, chunkID, payload string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE chunks SET delta_payload = ?, delta_base = NULL
		WHERE chunk_id = ?
	`, payload, chunkID)
	if err != nil {
		return fmt.Errorf("sqlite: re-encode chunk %s: %w", chunkID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: chunk %s", storage.ErrNotFound, chunkID)
	}
	return nil
}

const chunkSelect = `
	SELECT chunk_id, owner_id, seq, delta_payload, delta_base,
	       content_hash, previous_hash, redacted, redacted_at, importance, created_at
	FROM chunks`

func scanChunk(row rowScanner) (*types.ArchiveChunk, error) {
	var (
		chunk      types.ArchiveChunk
		deltaBase  sql.NullString
		prevHash   sql.NullString
		redacted   int
		redactedAt sql.NullTime
	)

	err := row.Scan(&chunk.ChunkID, &chunk.OwnerID, &chunk.Seq,
		&chunk.DeltaPayload, &deltaBase, &chunk.ContentHash, &prevHash,
		&redacted, &redactedAt, &chunk.Importance, &chunk.CreatedAt)
	if err != nil {
		return nil, err
	}

	chunk.DeltaBase = deltaBase.String
	chunk.PreviousHash = prevHash.String
	chunk.Redacted = redacted != 0
	if redactedAt.Valid {
		t := redactedAt.Time
		chunk.RedactedAt = &t
	}
	return &chunk, nil
}
