package archive

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/stratumhq/stratum/internal/redact"
	"github.com/stratumhq/stratum/internal/storage"
	"github.com/stratumhq/stratum/pkg/types"
)

// Commitment scheme
//
// A chunk's content_hash is the SHA-256 digest of the canonical JSON of
// {payload, previous_hash, timestamp}, where payload is the FULL
// rehydrated payload as it existed at append time, not the stored delta
// encoding. Committing to content rather than encoding buys two
// properties at once:
//
//  1. Redaction never changes content_hash: the digest was fixed over
//     the pre-redaction payload at append time, and redaction only
//     mutates the stored display copy. verify_chain keeps passing.
//  2. A chunk's stored representation may be freely re-encoded
//     (delta -> raw) when its delta base is redacted, again without
//     touching the hash.
//
// Unredacted chunks are re-hashed from their rehydrated payload during
// verification, so any out-of-band mutation of a stored payload is
// detected. Redacted chunks are verified structurally (seq and
// previous_hash linkage) against their immutably stored digest.

// chunkCommit is the canonical serialization the content hash covers.
// Field order is fixed by the struct definition; encoding/json emits
// struct fields in declaration order, making the serialization stable.
type chunkCommit struct {
	Payload      string `json:"payload"`
	PreviousHash string `json:"previous_hash"`
	Timestamp    int64  `json:"timestamp"` // UnixNano, UTC
}

// CommitHash computes the content hash for a payload at a chain
// position. Exported for tests that need to forge or cross-check
// digests.
func CommitHash(payload, previousHash string, createdAt time.Time) string {
	canonical, _ := json.Marshal(chunkCommit{
		Payload:      payload,
		PreviousHash: previousHash,
		Timestamp:    createdAt.UTC().UnixNano(),
	})
	return fmt.Sprintf("%x", sha256.Sum256(canonical))
}

// Chain provides append, verify, reconstruct and redact operations over
// an owner's hash-chained archive.
//
// Chain performs no locking of its own: the tier controller serializes
// all mutating calls per owner, which keeps the chain tail strictly
// single-writer as the concurrency model requires.
type Chain struct {
	store    storage.ArchiveStore
	codec    *deltaCodec
	redactor *redact.Redactor
}

// NewChain creates a Chain over the given archive store.
func NewChain(store storage.ArchiveStore, redactor *redact.Redactor) *Chain {
	if redactor == nil {
		redactor = redact.NewRedactor()
	}
	return &Chain{
		store:    store,
		codec:    newDeltaCodec(),
		redactor: redactor,
	}
}

// Append stores payload at the tail of the owner's chain and returns
// the new chunk. The chunk is durable when Append returns.
//
// The payload is delta-encoded against the previous chunk's rehydrated
// payload when the two are similar enough for the delta to pay off;
// otherwise the raw payload is stored. Either way the content hash
// commits to the full payload.
func (c *Chain) Append(ctx context.Context, ownerID, payload string, importance float64) (*types.ArchiveChunk, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("%w: owner ID is required", storage.ErrInvalidInput)
	}

	chunks, fulls, err := c.replay(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	chunk := &types.ArchiveChunk{
		ChunkID:    ulid.Make().String(),
		OwnerID:    ownerID,
		Seq:        len(chunks) + 1,
		Importance: importance,
		CreatedAt:  now,
	}

	if n := len(chunks); n > 0 {
		tail := chunks[n-1]
		chunk.PreviousHash = tail.ContentHash

		prevFull := fulls[n-1]
		if c.codec.Similarity(prevFull, payload) >= similarityThreshold {
			chunk.DeltaPayload = c.codec.Encode(prevFull, payload)
			chunk.DeltaBase = tail.ChunkID
		} else {
			chunk.DeltaPayload = payload
		}
	} else {
		chunk.DeltaPayload = payload
	}

	chunk.ContentHash = CommitHash(payload, chunk.PreviousHash, now)

	if err := c.store.AppendChunk(ctx, chunk); err != nil {
		return nil, fmt.Errorf("archive: append chunk for %s: %w", ownerID, err)
	}
	return chunk, nil
}

// Verify walks the owner's chain and confirms that every chunk's
// recorded content_hash matches a recomputation from its stored fields
// and that previous_hash values form an unbroken sequence.
//
// A mismatch is a tamper or corruption signal and is surfaced as
// storage.ErrChainIntegrity, never silently ignored. Owners with no
// chunks verify trivially.
func (c *Chain) Verify(ctx context.Context, ownerID string) error {
	chunks, err := c.store.ListChunks(ctx, ownerID)
	if err != nil {
		return fmt.Errorf("archive: list chunks for %s: %w", ownerID, err)
	}

	prevHash := ""
	var prevFull string
	for i, chunk := range chunks {
		if chunk.Seq != i+1 {
			return fmt.Errorf("%w: owner %s chunk %s has seq %d, want %d",
				storage.ErrChainIntegrity, ownerID, chunk.ChunkID, chunk.Seq, i+1)
		}
		if chunk.PreviousHash != prevHash {
			return fmt.Errorf("%w: owner %s chunk %s previous_hash broken at seq %d",
				storage.ErrChainIntegrity, ownerID, chunk.ChunkID, chunk.Seq)
		}

		full, err := c.rehydrate(chunk, prevFull)
		if err != nil {
			return fmt.Errorf("%w: owner %s chunk %s payload does not rehydrate: %v",
				storage.ErrChainIntegrity, ownerID, chunk.ChunkID, err)
		}

		// Redacted chunks carry a digest fixed over their pre-redaction
		// payload; the display copy intentionally no longer hashes to
		// it. Everything else must re-hash exactly.
		if !chunk.Redacted {
			recomputed := CommitHash(full, chunk.PreviousHash, chunk.CreatedAt)
			if recomputed != chunk.ContentHash {
				return fmt.Errorf("%w: owner %s chunk %s content_hash mismatch at seq %d",
					storage.ErrChainIntegrity, ownerID, chunk.ChunkID, chunk.Seq)
			}
		}

		prevHash = chunk.ContentHash
		prevFull = full
	}
	return nil
}

// Reconstruct replays deltas from the first chunk up to and including
// upToChunkID, returning the fully rehydrated payload sequence. Applied
// redactions are reflected in the output. An upToChunkID that does not
// exist in the owner's chain is an error; an empty upToChunkID replays
// the whole chain.
func (c *Chain) Reconstruct(ctx context.Context, ownerID, upToChunkID string) ([]string, error) {
	chunks, fulls, err := c.replay(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	if upToChunkID == "" {
		return fulls, nil
	}
	for i, chunk := range chunks {
		if chunk.ChunkID == upToChunkID {
			return fulls[:i+1], nil
		}
	}
	return nil, fmt.Errorf("%w: chunk %s not in chain for owner %s", storage.ErrNotFound, upToChunkID, ownerID)
}

// Redact scrubs personally identifying fragments from a chunk's display
// payload. The chunk's content_hash is untouched, so the chain verifies
// identically afterwards.
//
// If the following chunk was delta-encoded against the target, it is
// first re-encoded to its raw payload so reconstruction never needs the
// pre-redaction content again.
func (c *Chain) Redact(ctx context.Context, ownerID, chunkID string, identifiers ...string) (*types.ArchiveChunk, error) {
	chunks, fulls, err := c.replay(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	target := -1
	for i, chunk := range chunks {
		if chunk.ChunkID == chunkID {
			target = i
			break
		}
	}
	if target < 0 {
		return nil, fmt.Errorf("%w: chunk %s not in chain for owner %s", storage.ErrNotFound, chunkID, ownerID)
	}

	// Re-encode the dependent chunk before mutating its base.
	if next := target + 1; next < len(chunks) && chunks[next].DeltaBase == chunkID {
		if err := c.store.ReencodeChunkRaw(ctx, chunks[next].ChunkID, fulls[next]); err != nil {
			return nil, fmt.Errorf("archive: re-encode dependent chunk %s: %w", chunks[next].ChunkID, err)
		}
	}

	scrubbed, _ := c.redactor.Redact(fulls[target], identifiers...)
	now := time.Now()
	if err := c.store.UpdateChunkPayload(ctx, chunkID, scrubbed, now); err != nil {
		return nil, fmt.Errorf("archive: redact chunk %s: %w", chunkID, err)
	}

	out := *chunks[target]
	out.DeltaPayload = scrubbed
	out.DeltaBase = ""
	out.Redacted = true
	out.RedactedAt = &now
	return &out, nil
}

// Tail returns the newest chunk for an owner, or nil when the owner has
// no chunks.
func (c *Chain) Tail(ctx context.Context, ownerID string) (*types.ArchiveChunk, error) {
	tail, err := c.store.TailChunk(ctx, ownerID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	return tail, err
}

// replay loads an owner's chunks in order and rehydrates each full
// payload. Returns parallel slices.
func (c *Chain) replay(ctx context.Context, ownerID string) ([]*types.ArchiveChunk, []string, error) {
	chunks, err := c.store.ListChunks(ctx, ownerID)
	if err != nil {
		return nil, nil, fmt.Errorf("archive: list chunks for %s: %w", ownerID, err)
	}

	fulls := make([]string, len(chunks))
	var prevFull string
	for i, chunk := range chunks {
		full, err := c.rehydrate(chunk, prevFull)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: owner %s chunk %s: %v",
				storage.ErrChainIntegrity, ownerID, chunk.ChunkID, err)
		}
		fulls[i] = full
		prevFull = full
	}
	return chunks, fulls, nil
}

// rehydrate materializes a chunk's full payload from its stored
// representation. prevFull must be the full payload of the immediately
// preceding chunk (deltas only ever reference their predecessor).
func (c *Chain) rehydrate(chunk *types.ArchiveChunk, prevFull string) (string, error) {
	if chunk.DeltaBase == "" {
		return chunk.DeltaPayload, nil
	}
	return c.codec.Decode(prevFull, chunk.DeltaPayload)
}
