package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/stratumhq/stratum/internal/storage"
)

// GraphQuery answers "what does the warm tier know that relates to this
// hint" via bounded shortest-path traversal.
//
// The anchor is the owner's best topic match for the hint, falling back
// to the most recent summary node when nothing matches. From there a
// breadth-first walk expands outward up to MaxHops, so every visited
// node is reached at its minimum path distance from the anchor. Results
// rank by distance first, then node weight, ties broken by most recent
// update.
type GraphQuery struct {
	graph storage.GraphStore
}

// NewGraphQuery creates a query engine over the given graph store.
func NewGraphQuery(graph storage.GraphStore) *GraphQuery {
	return &GraphQuery{graph: graph}
}

// Query runs an anchored traversal for one owner. An owner with no
// usable anchor yields an empty result, not an error.
func (g *GraphQuery) Query(ctx context.Context, ownerID, hint string, bounds storage.GraphBounds) ([]storage.RankedNode, error) {
	bounds.Normalize()

	anchor, err := g.graph.FindAnchor(ctx, ownerID, hint)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("graph query: find anchor for %s: %w", ownerID, err)
	}

	type frontierNode struct {
		id  string
		hop int
	}

	visited := map[string]bool{anchor.NodeID: true}
	results := []storage.RankedNode{rank(storage.RankedNode{Node: anchor, HopDistance: 0})}
	queue := []frontierNode{{anchor.NodeID, 0}}

	for len(queue) > 0 && len(results) < bounds.MaxNodes {
		current := queue[0]
		queue = queue[1:]

		if current.hop >= bounds.MaxHops {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		neighborIDs, err := g.graph.Neighbors(ctx, current.id)
		if err != nil {
			return nil, fmt.Errorf("graph query: neighbors of %s: %w", current.id, err)
		}

		for _, id := range neighborIDs {
			if visited[id] {
				continue
			}
			visited[id] = true

			node, err := g.graph.GetNode(ctx, id)
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("graph query: resolve node %s: %w", id, err)
			}
			if node.Orphaned || node.OwnerID != ownerID {
				continue
			}
			results = append(results, rank(storage.RankedNode{Node: node, HopDistance: current.hop + 1}))
			if len(results) >= bounds.MaxNodes {
				break
			}
			queue = append(queue, frontierNode{id, current.hop + 1})
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.HopDistance != b.HopDistance {
			return a.HopDistance < b.HopDistance
		}
		if a.Node.Weight != b.Node.Weight {
			return a.Node.Weight > b.Node.Weight
		}
		return a.Node.UpdatedAt.After(b.Node.UpdatedAt)
	})
	return results, nil
}

// rank assigns the node's recall score: weight discounted by distance
// from the anchor.
func rank(rn storage.RankedNode) storage.RankedNode {
	rn.Score = rn.Node.Weight / float64(1+rn.HopDistance)
	return rn
}
