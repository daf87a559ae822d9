package types

import "time"

// ArchiveChunk is a cold-tier record: one delta-compressed payload in an
// owner's hash chain.
//
// ContentHash is computed once at append time over the canonical
// serialization of the pre-redaction payload, the previous chunk's hash
// and the append timestamp. It is immutable from then on. Redaction
// mutates only DeltaPayload (the display copy) and sets Redacted; the
// hash never changes, so a chain verifies identically before and after
// redaction while any out-of-band payload mutation is still detected.
type ArchiveChunk struct {
	ChunkID string `json:"chunk_id"` // ULID; lexically ordered per owner
	OwnerID string `json:"owner_id"`
	Seq     int    `json:"seq"` // Position in the owner's chain, starting at 1

	// DeltaPayload is either a delta against the reconstructed payload
	// of DeltaBase, or the raw payload when no beneficial reference
	// existed at append time.
	DeltaPayload string `json:"delta_payload"`

	// DeltaBase is the chunk ID the delta was computed against, or ""
	// when DeltaPayload stores the raw payload.
	DeltaBase string `json:"delta_base,omitempty"`

	// ContentHash is the SHA-256 digest of the chunk's canonical
	// serialization, fixed at append time.
	ContentHash string `json:"content_hash"`

	// PreviousHash links to the preceding chunk's ContentHash for the
	// same owner, or "" for the first chunk in a chain.
	PreviousHash string `json:"previous_hash,omitempty"`

	Redacted   bool       `json:"redacted"`
	RedactedAt *time.Time `json:"redacted_at,omitempty"`

	// Importance carries the originating item's score into the archive
	// so audit exports can rank history without consulting other tiers.
	Importance float64 `json:"importance"`

	CreatedAt time.Time `json:"created_at"`
}

// IsGenesis reports whether this is the first chunk in its owner's chain.
func (c *ArchiveChunk) IsGenesis() bool {
	return c.PreviousHash == ""
}
