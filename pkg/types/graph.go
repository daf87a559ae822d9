package types

import (
	"fmt"
	"time"
)

// NodeType identifies what a warm-tier graph node represents.
type NodeType int

const (
	// NodeEntity is a de-duplicated named entity (one node per distinct
	// entity string per owner).
	NodeEntity NodeType = iota

	// NodeTopic is a recurring conversational topic.
	NodeTopic

	// NodeSummary aggregates several related memory items into one node.
	NodeSummary
)

// nodeTypeNames maps node type variants to their storage names.
var nodeTypeNames = map[NodeType]string{
	NodeEntity:  "entity",
	NodeTopic:   "topic",
	NodeSummary: "summary",
}

// String returns the lowercase node type name used in storage and APIs.
func (n NodeType) String() string {
	if name, ok := nodeTypeNames[n]; ok {
		return name
	}
	return fmt.Sprintf("nodetype(%d)", int(n))
}

// ParseNodeType converts a node type name back to its variant.
func ParseNodeType(name string) (NodeType, error) {
	for nt, n := range nodeTypeNames {
		if n == name {
			return nt, nil
		}
	}
	return 0, fmt.Errorf("unknown node type %q", name)
}

// GraphNode is a warm-tier node representing an entity, topic or summary.
// Nodes are never hard-deleted; when the sole referencing item is purged
// from all tiers the node is marked orphaned so historical queries stay
// structurally valid.
type GraphNode struct {
	NodeID   string   `json:"node_id"`  // Unique identifier
	OwnerID  string   `json:"owner_id"` // Owner the node belongs to
	NodeType NodeType `json:"node_type"`

	Payload string  `json:"payload"` // Entity/topic string, or summary text
	Weight  float64 `json:"weight"`  // Derived from linked items' importance

	// ItemID is a weak, lookup-only back-reference to the memory item
	// the node originated from. Deleting the item does not delete the
	// node, only marks it orphaned.
	ItemID   string `json:"item_id,omitempty"`
	Orphaned bool   `json:"orphaned"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// GraphEdge is a directed relation between two warm-tier nodes.
type GraphEdge struct {
	FromID       string    `json:"from_id"`
	ToID         string    `json:"to_id"`
	RelationKind string    `json:"relation_kind"` // e.g. "mentions", "relates_to"
	Strength     float64   `json:"strength"`      // Relation strength (0.0-1.0)
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Common relation kinds produced by the tier controller.
const (
	RelationMentions  = "mentions"
	RelationRelatesTo = "relates_to"
)
