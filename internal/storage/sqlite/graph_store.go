package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/stratumhq/stratum/internal/storage"
	"github.com/stratumhq/stratum/pkg/types"
)

// UpsertNode creates a node, or adds weight to an existing entity/topic
// node for the same (owner, type, payload). Summary nodes are always
// inserted fresh: they aggregate items rather than de-duplicating.
func (s *Store) UpsertNode(ctx context.Context, node *types.GraphNode) (string, error) {
	if node == nil {
		return "", storage.ErrInvalidInput
	}
	if node.OwnerID == "" {
		return "", fmt.Errorf("%w: owner ID is required", storage.ErrInvalidInput)
	}
	if node.Payload == "" {
		return "", fmt.Errorf("%w: node payload is required", storage.ErrInvalidInput)
	}

	now := time.Now()
	if node.NodeID == "" {
		node.NodeID = "node:" + uuid.New().String()
	}
	if node.CreatedAt.IsZero() {
		node.CreatedAt = now
	}
	node.UpdatedAt = now

	if node.NodeType == types.NodeSummary {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO nodes (node_id, owner_id, node_type, payload, weight, item_id, orphaned, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?)
		`, node.NodeID, node.OwnerID, node.NodeType.String(), node.Payload,
			node.Weight, nullIfEmpty(node.ItemID), node.CreatedAt, node.UpdatedAt)
		if err != nil {
			return "", fmt.Errorf("sqlite: insert summary node: %w", err)
		}
		return node.NodeID, nil
	}

	// Entity/topic upsert: re-mentioning increments weight on the
	// existing node instead of creating a duplicate. An orphaned node
	// that gets re-mentioned is revived.
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO nodes (node_id, owner_id, node_type, payload, weight, item_id, orphaned, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?)
		ON CONFLICT(owner_id, node_type, payload) WHERE node_type IN ('entity', 'topic') DO UPDATE SET
			weight = nodes.weight + excluded.weight,
			orphaned = 0,
			updated_at = excluded.updated_at
	`, node.NodeID, node.OwnerID, node.NodeType.String(), node.Payload,
		node.Weight, nullIfEmpty(node.ItemID), node.CreatedAt, node.UpdatedAt)
	if err != nil {
		return "", fmt.Errorf("sqlite: upsert node: %w", err)
	}

	// The upsert may have landed on an existing row with a different ID.
	var nodeID string
	err = s.db.QueryRowContext(ctx,
		"SELECT node_id FROM nodes WHERE owner_id = ? AND node_type = ? AND payload = ?",
		node.OwnerID, node.NodeType.String(), node.Payload).Scan(&nodeID)
	if err != nil {
		return "", fmt.Errorf("sqlite: resolve upserted node: %w", err)
	}
	return nodeID, nil
}

// GetNode retrieves a node by ID.
func (s *Store) GetNode(ctx context.Context, nodeID string) (*types.GraphNode, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT node_id, owner_id, node_type, payload, weight, item_id, orphaned, created_at, updated_at
		FROM nodes WHERE node_id = ?
	`, nodeID)

	node, err := scanNode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: node %s", storage.ErrNotFound, nodeID)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: get node %s: %w", nodeID, err)
	}
	return node, nil
}

// Link creates or strengthens a directed edge between two nodes.
func (s *Store) Link(ctx context.Context, edge *types.GraphEdge) error {
	if edge == nil || edge.FromID == "" || edge.ToID == "" || edge.RelationKind == "" {
		return fmt.Errorf("%w: edge endpoints and relation kind are required", storage.ErrInvalidInput)
	}

	now := time.Now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO edges (from_id, to_id, relation_kind, strength, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(from_id, to_id, relation_kind) DO UPDATE SET
			strength = MAX(edges.strength, excluded.strength),
			updated_at = excluded.updated_at
	`, edge.FromID, edge.ToID, edge.RelationKind, edge.Strength, now, now)
	if err != nil {
		return fmt.Errorf("sqlite: link %s -> %s: %w", edge.FromID, edge.ToID, err)
	}
	return nil
}

// Neighbors returns node IDs one edge away from nodeID, in either
// direction.
func (s *Store) Neighbors(ctx context.Context, nodeID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT to_id FROM edges WHERE from_id = ?
		UNION
		SELECT from_id FROM edges WHERE to_id = ?
	`, nodeID, nodeID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: neighbors of %s: %w", nodeID, err)
	}
	defer rows.Close()

	neighbors := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("sqlite: scan neighbor: %w", err)
		}
		neighbors = append(neighbors, id)
	}
	return neighbors, rows.Err()
}

// FindAnchor resolves a traversal starting point: the heaviest
// non-orphaned node whose payload matches topicHint, falling back to
// the most recently updated summary node.
func (s *Store) FindAnchor(ctx context.Context, ownerID, topicHint string) (*types.GraphNode, error) {
	if topicHint != "" {
		row := s.db.QueryRowContext(ctx, `
			SELECT node_id, owner_id, node_type, payload, weight, item_id, orphaned, created_at, updated_at
			FROM nodes
			WHERE owner_id = ? AND orphaned = 0 AND payload LIKE ?
			ORDER BY weight DESC, updated_at DESC
			LIMIT 1
		`, ownerID, "%"+topicHint+"%")

		node, err := scanNode(row)
		if err == nil {
			return node, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("sqlite: find anchor by hint: %w", err)
		}
		// Unmatched hint falls through to the summary fallback.
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT node_id, owner_id, node_type, payload, weight, item_id, orphaned, created_at, updated_at
		FROM nodes
		WHERE owner_id = ? AND orphaned = 0 AND node_type = 'summary'
		ORDER BY updated_at DESC
		LIMIT 1
	`, ownerID)

	node, err := scanNode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: no anchor node for owner %s", storage.ErrNotFound, ownerID)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: find anchor: %w", err)
	}
	return node, nil
}

// OrphanNodesForItem marks nodes whose originating item was purged.
func (s *Store) OrphanNodesForItem(ctx context.Context, itemID string) (int, error) {
	result, err := s.db.ExecContext(ctx,
		"UPDATE nodes SET orphaned = 1, updated_at = ? WHERE item_id = ?",
		time.Now(), itemID)
	if err != nil {
		return 0, fmt.Errorf("sqlite: orphan nodes for %s: %w", itemID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: rows affected: %w", err)
	}
	return int(affected), nil
}

func scanNode(row rowScanner) (*types.GraphNode, error) {
	var (
		node     types.GraphNode
		typeName string
		itemID   sql.NullString
		orphaned int
	)

	err := row.Scan(&node.NodeID, &node.OwnerID, &typeName, &node.Payload,
		&node.Weight, &itemID, &orphaned, &node.CreatedAt, &node.UpdatedAt)
	if err != nil {
		return nil, err
	}

	nodeType, err := types.ParseNodeType(typeName)
	if err != nil {
		return nil, err
	}
	node.NodeType = nodeType
	node.ItemID = itemID.String
	node.Orphaned = orphaned != 0

	return &node, nil
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
