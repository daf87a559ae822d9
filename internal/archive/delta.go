// Package archive implements the cold tier's hash chain: delta
// compression of appended payloads, SHA-256 chaining for tamper
// evidence, full-chain verification, and historical reconstruction.
package archive

import (
	"fmt"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// similarityThreshold is the minimum payload similarity for delta
// encoding to be worthwhile. Below it, the raw payload is usually
// smaller than the delta and is stored as-is.
const similarityThreshold = 0.5

// deltaCodec wraps diffmatchpatch for payload delta compression.
// Encoded deltas use the library's compact delta format, which applies
// cleanly against the exact base text it was computed from.
type deltaCodec struct {
	dmp *diffmatchpatch.DiffMatchPatch
}

func newDeltaCodec() *deltaCodec {
	return &deltaCodec{dmp: diffmatchpatch.New()}
}

// Encode computes the delta that transforms base into target.
func (c *deltaCodec) Encode(base, target string) string {
	diffs := c.dmp.DiffMain(base, target, false)
	return c.dmp.DiffToDelta(diffs)
}

// Decode applies a delta produced by Encode back onto its base text.
func (c *deltaCodec) Decode(base, delta string) (string, error) {
	diffs, err := c.dmp.DiffFromDelta(base, delta)
	if err != nil {
		return "", fmt.Errorf("archive: apply delta: %w", err)
	}
	return c.dmp.DiffText2(diffs), nil
}

// Similarity returns the fraction of characters the two payloads share,
// in [0, 1]. Used to decide whether delta encoding is beneficial.
func (c *deltaCodec) Similarity(a, b string) float64 {
	if a == "" && b == "" {
		return 1.0
	}
	longer := len(a)
	if len(b) > longer {
		longer = len(b)
	}
	if longer == 0 {
		return 1.0
	}

	common := 0
	for _, d := range c.dmp.DiffMain(a, b, false) {
		if d.Type == diffmatchpatch.DiffEqual {
			common += len(d.Text)
		}
	}
	return float64(common) / float64(longer)
}
