package storage

import (
	"errors"
	"time"

	"github.com/stratumhq/stratum/pkg/types"
)

var (
	// ErrNotFound indicates that the requested resource was not found.
	// Read paths translate unknown owners into empty results; only
	// lookups of a specific chunk or item surface ErrNotFound.
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput indicates that the input parameters are invalid.
	ErrInvalidInput = errors.New("invalid input")

	// ErrChainIntegrity indicates that a stored chunk's recomputed hash
	// does not match its recorded content_hash, or that previous_hash
	// links do not form an unbroken sequence. Never silently corrected.
	ErrChainIntegrity = errors.New("hash chain integrity violation")

	// ErrOwnerBusy indicates that a mutating call was rejected because
	// another mutation for the same owner is in flight.
	ErrOwnerBusy = errors.New("owner mutation already in flight")
)

// GraphBounds prevents combinatorial explosion during graph traversal.
type GraphBounds struct {
	// MaxHops is the maximum number of hops from the anchor node.
	MaxHops int

	// MaxNodes is the maximum number of nodes visited.
	MaxNodes int
}

// Normalize applies defaults and caps to the GraphBounds.
func (g *GraphBounds) Normalize() {
	if g.MaxHops < 1 {
		g.MaxHops = 3
	}
	if g.MaxHops > 10 {
		g.MaxHops = 10
	}
	if g.MaxNodes < 1 {
		g.MaxNodes = 100
	}
	if g.MaxNodes > 1000 {
		g.MaxNodes = 1000
	}
}

// RankedNode is a graph node returned by a context query, annotated
// with its traversal distance from the anchor.
type RankedNode struct {
	Node *types.GraphNode

	// HopDistance is the number of edges between the anchor and this
	// node. The anchor itself has distance 0.
	HopDistance int

	// Score combines path distance and node weight; closer and heavier
	// nodes score higher.
	Score float64
}

// ListOptions provides pagination and time filtering for list operations.
type ListOptions struct {
	// Limit is the maximum number of results (default 50, max 500).
	Limit int

	// Offset is the number of results to skip.
	Offset int

	// Since restricts results to records created after this time.
	// Zero value means no lower bound.
	Since time.Time
}

// Normalize applies defaults and caps to the ListOptions.
func (o *ListOptions) Normalize() {
	if o.Limit < 1 {
		o.Limit = 50
	}
	if o.Limit > 500 {
		o.Limit = 500
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
}

// OwnerStats summarises an owner's footprint across the durable tiers,
// used by the stats endpoint and the audit CLI.
type OwnerStats struct {
	OwnerID string `json:"owner_id"`

	// HotItems is filled in by the tier controller; the hot tier is
	// in-process and invisible to the store.
	HotItems int `json:"hot_items"`

	WarmItems      int        `json:"warm_items"`
	GraphNodes     int        `json:"graph_nodes"`
	GraphEdges     int        `json:"graph_edges"`
	ColdChunks     int        `json:"cold_chunks"`
	RedactedChunks int        `json:"redacted_chunks"`
	ChainTail      string     `json:"chain_tail,omitempty"` // content_hash of the newest chunk
	LastAppendAt   *time.Time `json:"last_append_at,omitempty"`
}
