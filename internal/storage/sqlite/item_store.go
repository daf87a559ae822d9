package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stratumhq/stratum/internal/storage"
	"github.com/stratumhq/stratum/pkg/types"
)

// PutItem creates or updates an item record (upsert semantics).
func (s *Store) PutItem(ctx context.Context, item *types.MemoryItem) error {
	if item == nil {
		return storage.ErrInvalidInput
	}
	if item.ID == "" {
		return fmt.Errorf("%w: item ID is required", storage.ErrInvalidInput)
	}
	if item.OwnerID == "" {
		return fmt.Errorf("%w: owner ID is required", storage.ErrInvalidInput)
	}

	var entitiesJSON []byte
	if len(item.Entities) > 0 {
		var err error
		entitiesJSON, err = json.Marshal(item.Entities)
		if err != nil {
			return fmt.Errorf("sqlite: marshal entities: %w", err)
		}
	}

	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now()
	}
	if item.LastReferencedAt.IsZero() {
		item.LastReferencedAt = item.CreatedAt
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO items (
			id, owner_id, session_id, content, entities,
			semantic_novelty, sentiment_intensity, user_feedback, recurrence_count,
			importance, tier, created_at, last_referenced_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			content = excluded.content,
			entities = excluded.entities,
			semantic_novelty = excluded.semantic_novelty,
			sentiment_intensity = excluded.sentiment_intensity,
			user_feedback = excluded.user_feedback,
			recurrence_count = excluded.recurrence_count,
			importance = excluded.importance,
			tier = excluded.tier,
			last_referenced_at = excluded.last_referenced_at
	`,
		item.ID, item.OwnerID, item.SessionID, item.Content, nullableString(entitiesJSON),
		item.Signals.SemanticNovelty, item.Signals.SentimentIntensity,
		item.Signals.UserFeedback, item.Signals.RecurrenceCount,
		item.Importance, item.Tier.String(), item.CreatedAt, item.LastReferencedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: put item %s: %w", item.ID, err)
	}
	return nil
}

// GetItem retrieves an item by ID.
func (s *Store) GetItem(ctx context.Context, id string) (*types.MemoryItem, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, session_id, content, entities,
		       semantic_novelty, sentiment_intensity, user_feedback, recurrence_count,
		       importance, tier, created_at, last_referenced_at
		FROM items WHERE id = ?
	`, id)

	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: item %s", storage.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: get item %s: %w", id, err)
	}
	return item, nil
}

// ListItems retrieves an owner's items in the given tier, newest first.
func (s *Store) ListItems(ctx context.Context, ownerID string, tier types.Tier, opts storage.ListOptions) ([]*types.MemoryItem, error) {
	opts.Normalize()

	query := `
		SELECT id, owner_id, session_id, content, entities,
		       semantic_novelty, sentiment_intensity, user_feedback, recurrence_count,
		       importance, tier, created_at, last_referenced_at
		FROM items
		WHERE owner_id = ? AND tier = ?`
	args := []interface{}{ownerID, tier.String()}

	if !opts.Since.IsZero() {
		query += " AND created_at > ?"
		args = append(args, opts.Since)
	}
	query += " ORDER BY created_at DESC LIMIT ? OFFSET ?"
	args = append(args, opts.Limit, opts.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list items for %s: %w", ownerID, err)
	}
	defer rows.Close()

	items := make([]*types.MemoryItem, 0)
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// UpdateItemTier moves an item to a new tier.
func (s *Store) UpdateItemTier(ctx context.Context, id string, tier types.Tier) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE items SET tier = ? WHERE id = ?", tier.String(), id)
	if err != nil {
		return fmt.Errorf("sqlite: update tier for %s: %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: item %s", storage.ErrNotFound, id)
	}
	return nil
}

// TouchItem updates last_referenced_at for the given items.
func (s *Store) TouchItem(ctx context.Context, ids []string, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]

	args := make([]interface{}, 0, len(ids)+1)
	args = append(args, at)
	for _, id := range ids {
		args = append(args, id)
	}

	_, err := s.db.ExecContext(ctx,
		"UPDATE items SET last_referenced_at = ? WHERE id IN ("+placeholders+")", args...)
	if err != nil {
		return fmt.Errorf("sqlite: touch items: %w", err)
	}
	return nil
}

// PurgeItem hard-deletes an item record.
func (s *Store) PurgeItem(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM items WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("sqlite: purge item %s: %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: item %s", storage.ErrNotFound, id)
	}
	return nil
}

// rowScanner abstracts *sql.Row and *sql.Rows for scanItem.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanItem(row rowScanner) (*types.MemoryItem, error) {
	var (
		item         types.MemoryItem
		sessionID    sql.NullString
		entitiesJSON sql.NullString
		tierName     string
	)

	err := row.Scan(
		&item.ID, &item.OwnerID, &sessionID, &item.Content, &entitiesJSON,
		&item.Signals.SemanticNovelty, &item.Signals.SentimentIntensity,
		&item.Signals.UserFeedback, &item.Signals.RecurrenceCount,
		&item.Importance, &tierName, &item.CreatedAt, &item.LastReferencedAt,
	)
	if err != nil {
		return nil, err
	}

	item.SessionID = sessionID.String
	if entitiesJSON.Valid && entitiesJSON.String != "" {
		if err := json.Unmarshal([]byte(entitiesJSON.String), &item.Entities); err != nil {
			return nil, fmt.Errorf("unmarshal entities: %w", err)
		}
	}

	tier, err := types.ParseTier(tierName)
	if err != nil {
		return nil, err
	}
	item.Tier = tier

	return &item, nil
}

// nullableString converts a possibly-empty byte slice to a driver value
// that stores NULL instead of an empty string.
func nullableString(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
