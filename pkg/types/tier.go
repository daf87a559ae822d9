package types

import "fmt"

// Tier identifies the storage level that currently owns a memory item.
// Tiers form a closed enumeration; an item is resident in exactly one
// tier at any time.
type Tier int

const (
	// TierHot is the bounded, recency-biased in-process cache.
	TierHot Tier = iota

	// TierWarm is the persistent graph of entities, topics and summaries.
	TierWarm

	// TierCold is the append-only, hash-chained, delta-compressed archive.
	// Cold is terminal: an item's payload may later be redacted but its
	// tier never regresses.
	TierCold

	// TierEvicted marks an item dropped from Hot that fell below the
	// retention floor. Evicted items are not resident in any tier.
	TierEvicted
)

// tierInfo carries the per-tier attributes looked up by code that would
// otherwise switch on tier names.
type tierInfo struct {
	name     string
	durable  bool
	terminal bool
}

// tierTable maps each tier variant to its attributes.
var tierTable = map[Tier]tierInfo{
	TierHot:     {name: "hot", durable: false, terminal: false},
	TierWarm:    {name: "warm", durable: true, terminal: false},
	TierCold:    {name: "cold", durable: true, terminal: true},
	TierEvicted: {name: "evicted", durable: false, terminal: true},
}

// String returns the lowercase tier name used in storage and APIs.
func (t Tier) String() string {
	if info, ok := tierTable[t]; ok {
		return info.name
	}
	return fmt.Sprintf("tier(%d)", int(t))
}

// Durable reports whether items in this tier survive process restarts.
func (t Tier) Durable() bool {
	return tierTable[t].durable
}

// Terminal reports whether the tier admits no outgoing transitions.
func (t Tier) Terminal() bool {
	return tierTable[t].terminal
}

// ParseTier converts a tier name back to its variant.
// Returns an error for unknown names.
func ParseTier(name string) (Tier, error) {
	for t, info := range tierTable {
		if info.name == name {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown tier %q", name)
}

// IsValidTierTransition validates item movement between tiers.
//
// Valid transitions:
//
//	hot  -> warm | cold | evicted
//	warm -> cold
//	cold -> (terminal, no transitions out)
func IsValidTierTransition(from, to Tier) bool {
	switch from {
	case TierHot:
		return to == TierWarm || to == TierCold || to == TierEvicted
	case TierWarm:
		return to == TierCold
	default:
		return false
	}
}
