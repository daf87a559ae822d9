// Package storage provides composable storage interfaces for the Stratum
// memory tiers.
//
// The storage layer is designed with small, focused interfaces that can be
// implemented independently and composed as needed. The sqlite package
// implements all of them in one store; the postgres package implements the
// ArchiveStore for deployments that want the cold tier on a server-grade
// database.
package storage

import (
	"context"
	"time"

	"github.com/stratumhq/stratum/pkg/types"
)

// ItemStore persists memory items that have left the hot tier.
// The hot tier itself is in-process; warm- and cold-resident items are
// recorded here so tier exclusivity survives restarts.
type ItemStore interface {
	// PutItem creates or updates an item record (upsert semantics).
	PutItem(ctx context.Context, item *types.MemoryItem) error

	// GetItem retrieves an item by ID.
	// Returns ErrNotFound if the item doesn't exist.
	GetItem(ctx context.Context, id string) (*types.MemoryItem, error)

	// ListItems retrieves an owner's items in the given tier, newest
	// first. Unknown owners yield an empty slice, not an error.
	ListItems(ctx context.Context, ownerID string, tier types.Tier, opts ListOptions) ([]*types.MemoryItem, error)

	// UpdateItemTier moves an item to a new tier.
	// Returns ErrNotFound if the item doesn't exist.
	UpdateItemTier(ctx context.Context, id string, tier types.Tier) error

	// TouchItem updates last_referenced_at for the given items.
	TouchItem(ctx context.Context, ids []string, at time.Time) error

	// PurgeItem hard-deletes an item record. The caller is responsible
	// for orphaning any warm nodes that referenced it.
	PurgeItem(ctx context.Context, id string) error
}

// GraphStore persists the warm tier: entity/topic/summary nodes and the
// relationship edges between them.
type GraphStore interface {
	// UpsertNode creates a node, or, for entity and topic nodes that
	// already exist for (owner, type, payload), adds weight to the
	// existing node and returns its ID. Re-mentioning an entity must
	// never create a duplicate node.
	UpsertNode(ctx context.Context, node *types.GraphNode) (string, error)

	// GetNode retrieves a node by ID.
	// Returns ErrNotFound if the node doesn't exist.
	GetNode(ctx context.Context, nodeID string) (*types.GraphNode, error)

	// Link creates or strengthens a directed edge between two nodes.
	// An existing (from, to, kind) edge has its strength raised to the
	// given value if higher, and its updated_at refreshed.
	Link(ctx context.Context, edge *types.GraphEdge) error

	// Neighbors returns the node IDs reachable from nodeID by one edge
	// in either direction.
	Neighbors(ctx context.Context, nodeID string) ([]string, error)

	// FindAnchor resolves a traversal starting point for an owner:
	// the best node matching topicHint, or the most recently updated
	// summary node when the hint is empty or unmatched.
	// Returns ErrNotFound when the owner has no usable anchor.
	FindAnchor(ctx context.Context, ownerID, topicHint string) (*types.GraphNode, error)

	// OrphanNodesForItem marks nodes whose sole originating item was
	// purged. Nodes are never hard-deleted.
	OrphanNodesForItem(ctx context.Context, itemID string) (int, error)
}

// ArchiveStore persists the cold tier: the append-only hash chain.
// Implementations must make AppendChunk durable before returning.
type ArchiveStore interface {
	// AppendChunk stores a fully-formed chunk at the tail of its
	// owner's chain. The chunk's seq must be exactly one greater than
	// the current tail's (1 for a new owner); implementations reject
	// anything else so a failed append can never advance the chain.
	AppendChunk(ctx context.Context, chunk *types.ArchiveChunk) error

	// GetChunk retrieves a chunk by ID.
	// Returns ErrNotFound if the chunk doesn't exist.
	GetChunk(ctx context.Context, chunkID string) (*types.ArchiveChunk, error)

	// ListChunks returns an owner's chunks ordered by seq ascending.
	// Unknown owners yield an empty slice, not an error.
	ListChunks(ctx context.Context, ownerID string) ([]*types.ArchiveChunk, error)

	// TailChunk returns the newest chunk for an owner, or ErrNotFound
	// when the owner has no chunks yet.
	TailChunk(ctx context.Context, ownerID string) (*types.ArchiveChunk, error)

	// UpdateChunkPayload overwrites a chunk's display payload and marks
	// it redacted. Clears delta_base (redacted payloads are stored
	// raw). Must never touch content_hash or previous_hash.
	UpdateChunkPayload(ctx context.Context, chunkID, payload string, redactedAt time.Time) error

	// ReencodeChunkRaw swaps a chunk's stored representation from delta
	// to raw without changing its logical payload, clearing delta_base.
	// Used when the chunk's delta base is about to be redacted. The
	// hash commits to the rehydrated payload, not the encoding, so this
	// never affects verification.
	ReencodeChunkRaw(ctx context.Context, chunkID, payload string) error
}

// StatsProvider reports per-owner tier footprints.
type StatsProvider interface {
	// Stats returns the owner's durable-tier footprint. Unknown owners
	// yield zeroed stats, not an error.
	Stats(ctx context.Context, ownerID string) (*OwnerStats, error)
}

// Store aggregates every storage concern the tier controller needs.
type Store interface {
	ItemStore
	GraphStore
	ArchiveStore
	StatsProvider

	// Close releases any resources held by the store.
	Close() error
}
