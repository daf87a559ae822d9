package sqlite

import (
	"context"
	"errors"
	"fmt"

	"github.com/stratumhq/stratum/internal/storage"
)

// Stats returns the owner's durable-tier footprint. Unknown owners
// yield zeroed stats.
func (s *Store) Stats(ctx context.Context, ownerID string) (*storage.OwnerStats, error) {
	stats := &storage.OwnerStats{OwnerID: ownerID}

	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM items WHERE owner_id = ? AND tier = 'warm'",
		ownerID).Scan(&stats.WarmItems)
	if err != nil {
		return nil, fmt.Errorf("sqlite: warm item count: %w", err)
	}

	err = s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM nodes WHERE owner_id = ?", ownerID).Scan(&stats.GraphNodes)
	if err != nil {
		return nil, fmt.Errorf("sqlite: node count: %w", err)
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM edges
		WHERE from_id IN (SELECT node_id FROM nodes WHERE owner_id = ?)
	`, ownerID).Scan(&stats.GraphEdges)
	if err != nil {
		return nil, fmt.Errorf("sqlite: edge count: %w", err)
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(redacted), 0) FROM chunks WHERE owner_id = ?
	`, ownerID).Scan(&stats.ColdChunks, &stats.RedactedChunks)
	if err != nil {
		return nil, fmt.Errorf("sqlite: chunk counts: %w", err)
	}

	tail, err := s.TailChunk(ctx, ownerID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}
	if err == nil {
		stats.ChainTail = tail.ContentHash
		t := tail.CreatedAt
		stats.LastAppendAt = &t
	}

	return stats, nil
}
