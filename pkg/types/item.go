package types

import "time"

// Signals bundles the importance inputs captured alongside a
// conversational turn. Each value is expected in [0, 10]; the scorer
// rejects out-of-range inputs before any tier write occurs.
type Signals struct {
	// SemanticNovelty measures how new the turn's content is relative
	// to what the owner has said before.
	SemanticNovelty float64 `json:"semantic_novelty"`

	// SentimentIntensity measures emotional charge, independent of sign.
	SentimentIntensity float64 `json:"sentiment_intensity"`

	// UserFeedback is explicit feedback attached to the turn (e.g. the
	// user marked an insight as helpful).
	UserFeedback float64 `json:"user_feedback"`

	// RecurrenceCount is how many times the turn's dominant topic has
	// recurred for this owner. Contributes a diminishing-returns bonus.
	RecurrenceCount int `json:"recurrence_count"`
}

// MemoryItem is the atomic unit of conversational memory.
// Items are created on ingestion, always land in the Hot tier first,
// and are later promoted or demoted by the tier controller.
type MemoryItem struct {
	ID        string `json:"id"`         // Unique identifier, immutable after creation
	OwnerID   string `json:"owner_id"`   // Partitioning key; all tier operations are per-owner
	SessionID string `json:"session_id"` // Conversation session the turn belongs to

	Content  string   `json:"content"`            // Turn text (opaque payload)
	Entities []string `json:"entities,omitempty"` // Entity strings mentioned in the turn

	Signals    Signals `json:"signals"`    // Raw importance inputs as captured
	Importance float64 `json:"importance"` // Score computed at ingestion; drives tier placement

	Tier Tier `json:"tier"` // Tier that currently owns this item

	CreatedAt        time.Time `json:"created_at"`
	LastReferencedAt time.Time `json:"last_referenced_at"` // Updated whenever a retrieval returns the item
}

// Touch records that the item was returned by a retrieval query.
func (m *MemoryItem) Touch(now time.Time) {
	m.LastReferencedAt = now
}

// Age returns how long ago the item was created.
func (m *MemoryItem) Age(now time.Time) time.Duration {
	return now.Sub(m.CreatedAt)
}
