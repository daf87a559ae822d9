package storage

import (
	"context"
	"time"

	"github.com/stratumhq/stratum/pkg/types"
)

// archiveOverride routes the cold tier to a dedicated ArchiveStore
// while every other concern stays on the base store. Used when the
// archive backend is configured separately (for example postgres cold
// storage over a sqlite primary).
type archiveOverride struct {
	Store
	archive ArchiveStore
}

// WithArchive returns a Store whose archive operations go to archive
// instead of base. Close closes both stores.
func WithArchive(base Store, archive ArchiveStore) Store {
	return &archiveOverride{Store: base, archive: archive}
}

func (o *archiveOverride) AppendChunk(ctx context.Context, chunk *types.ArchiveChunk) error {
	return o.archive.AppendChunk(ctx, chunk)
}

func (o *archiveOverride) GetChunk(ctx context.Context, chunkID string) (*types.ArchiveChunk, error) {
	return o.archive.GetChunk(ctx, chunkID)
}

func (o *archiveOverride) ListChunks(ctx context.Context, ownerID string) ([]*types.ArchiveChunk, error) {
	return o.archive.ListChunks(ctx, ownerID)
}

func (o *archiveOverride) TailChunk(ctx context.Context, ownerID string) (*types.ArchiveChunk, error) {
	return o.archive.TailChunk(ctx, ownerID)
}

func (o *archiveOverride) UpdateChunkPayload(ctx context.Context, chunkID, payload string, redactedAt time.Time) error {
	return o.archive.UpdateChunkPayload(ctx, chunkID, payload, redactedAt)
}

func (o *archiveOverride) ReencodeChunkRaw(ctx context.Context, chunkID, payload string) error {
	return o.archive.ReencodeChunkRaw(ctx, chunkID, payload)
}

// Stats recomputes the cold-tier half of the footprint from the
// archive backend; the base store only knows about its own chunks.
func (o *archiveOverride) Stats(ctx context.Context, ownerID string) (*OwnerStats, error) {
	stats, err := o.Store.Stats(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	chunks, err := o.archive.ListChunks(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	stats.ColdChunks = len(chunks)
	stats.RedactedChunks = 0
	stats.ChainTail = ""
	stats.LastAppendAt = nil
	for _, c := range chunks {
		if c.Redacted {
			stats.RedactedChunks++
		}
	}
	if len(chunks) > 0 {
		tail := chunks[len(chunks)-1]
		stats.ChainTail = tail.ContentHash
		at := tail.CreatedAt
		stats.LastAppendAt = &at
	}
	return stats, nil
}

func (o *archiveOverride) Close() error {
	err := o.Store.Close()
	if c, ok := o.archive.(interface{ Close() error }); ok {
		if cerr := c.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
