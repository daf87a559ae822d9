// Package engine provides the tier controller that orchestrates the
// memory hierarchy: a bounded in-process hot cache, a persistent warm
// knowledge graph, and a hash-chained cold archive. Items enter hot and
// move down the hierarchy through sweeps and evictions; cold is
// terminal.
package engine

import (
	"fmt"
	"time"

	"github.com/stratumhq/stratum/pkg/types"
)

// Depth selects how far down the hierarchy a context recall reaches.
type Depth string

const (
	// DepthShallow reads the hot cache and the warm graph.
	DepthShallow Depth = "shallow"

	// DepthDeep additionally reconstructs the cold archive.
	DepthDeep Depth = "deep"
)

// ParseDepth maps a string to a Depth, defaulting to shallow.
func ParseDepth(s string) Depth {
	if s == string(DepthDeep) {
		return DepthDeep
	}
	return DepthShallow
}

// Config holds configuration for the tier controller.
type Config struct {
	// HotCapacity is the per-owner hot cache size (default: 50).
	HotCapacity int

	// HotWindow is how long an untouched item stays hot (default: 30m).
	HotWindow time.Duration

	// WarmThreshold is the minimum importance for an evicted hot item
	// to be promoted to the warm graph (default: 5.0).
	WarmThreshold float64

	// RetentionFloor is the minimum importance for an item below the
	// warm threshold to still be archived cold instead of dropped
	// (default: 2.5).
	RetentionFloor float64

	// WarmRetention is how long a warm item lives before aging out to
	// the cold archive (default: 168h).
	WarmRetention time.Duration

	// LockStripes is the number of owner lock stripes (default: 32).
	LockStripes int

	// MaxHops bounds graph traversal depth during recall (default: 3).
	MaxHops int

	// MaxNodes bounds graph traversal breadth during recall
	// (default: 100).
	MaxNodes int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		HotCapacity:    50,
		HotWindow:      30 * time.Minute,
		WarmThreshold:  5.0,
		RetentionFloor: 2.5,
		WarmRetention:  168 * time.Hour,
		LockStripes:    32,
		MaxHops:        3,
		MaxNodes:       100,
	}
}

// Validate checks if the config is valid.
func (c *Config) Validate() error {
	if c.HotCapacity < 1 {
		return fmt.Errorf("HotCapacity must be >= 1, got %d", c.HotCapacity)
	}
	if c.HotWindow <= 0 {
		return fmt.Errorf("HotWindow must be > 0, got %v", c.HotWindow)
	}
	if c.WarmThreshold < 0 || c.WarmThreshold > 10 {
		return fmt.Errorf("WarmThreshold must be in [0, 10], got %f", c.WarmThreshold)
	}
	if c.RetentionFloor < 0 || c.RetentionFloor > c.WarmThreshold {
		return fmt.Errorf("RetentionFloor must be in [0, WarmThreshold], got %f", c.RetentionFloor)
	}
	if c.WarmRetention <= 0 {
		return fmt.Errorf("WarmRetention must be > 0, got %v", c.WarmRetention)
	}
	if c.LockStripes < 1 {
		return fmt.Errorf("LockStripes must be >= 1, got %d", c.LockStripes)
	}
	return nil
}

// TurnInput is one conversational turn handed to RecordTurn.
type TurnInput struct {
	OwnerID   string
	SessionID string
	Content   string
	Entities  []string
	Signals   types.Signals
}

// ContextEntry is one ranked element of a recalled context window.
type ContextEntry struct {
	// Source is the tier the entry was read from.
	Source types.Tier `json:"source"`

	// Ref identifies the backing record: item ID for hot, node ID for
	// warm, chunk ID for cold.
	Ref string `json:"ref"`

	// Content is the displayable payload.
	Content string `json:"content"`

	// Score orders entries within the window, higher first.
	Score float64 `json:"score"`
}

// RecallResult is the merged context window returned by RecallContext.
type RecallResult struct {
	OwnerID string         `json:"owner_id"`
	Depth   Depth          `json:"depth"`
	Entries []ContextEntry `json:"entries"`
}

// IntegrityReport summarizes a chain verification run.
type IntegrityReport struct {
	OwnerID    string    `json:"owner_id"`
	Chunks     int       `json:"chunks"`
	Valid      bool      `json:"valid"`
	Reason     string    `json:"reason,omitempty"`
	VerifiedAt time.Time `json:"verified_at"`
}

// AuditChunk pairs a chunk's chain metadata with its reconstructed
// payload for export.
type AuditChunk struct {
	ChunkID      string     `json:"chunk_id"`
	Seq          int        `json:"seq"`
	ContentHash  string     `json:"content_hash"`
	PreviousHash string     `json:"previous_hash"`
	Redacted     bool       `json:"redacted"`
	RedactedAt   *time.Time `json:"redacted_at,omitempty"`
	Importance   float64    `json:"importance"`
	CreatedAt    time.Time  `json:"created_at"`
	Payload      string     `json:"payload"`
}

// AuditExport is the full reconstructed history of an owner's archive.
type AuditExport struct {
	OwnerID    string       `json:"owner_id"`
	Chunks     []AuditChunk `json:"chunks"`
	ExportedAt time.Time    `json:"exported_at"`
}
