// Package scoring computes importance scores for memory items.
//
// The scorer is a pure function of its inputs: identical signals always
// yield identical scores. This matters both for test reproducibility and
// because scores are embedded in archived payloads that are covered by
// the cold tier's hash chain.
package scoring

import (
	"fmt"
	"math"

	"github.com/stratumhq/stratum/internal/storage"
	"github.com/stratumhq/stratum/pkg/types"
)

const (
	// SignalMax is the upper bound for each raw signal and for the
	// final importance score.
	SignalMax = 10.0
)

// Weights configures the contribution of each signal.
//
// The combined score is:
//
//	score = Novelty*novelty + Sentiment*sentiment + Feedback*feedback
//	      + Recurrence*ln(1+recurrence_count)
//
// clamped to [0, SignalMax]. Novelty and sentiment dominate; the
// recurrence term grows logarithmically so recurring topics earn a boost
// without driving importance unbounded.
type Weights struct {
	Novelty    float64
	Sentiment  float64
	Feedback   float64
	Recurrence float64
}

// DefaultWeights are the production weights. Novelty and sentiment
// together account for three quarters of a maximal score.
func DefaultWeights() Weights {
	return Weights{
		Novelty:    0.40,
		Sentiment:  0.35,
		Feedback:   0.15,
		Recurrence: 0.50,
	}
}

// Scorer converts turn signals into a single importance value.
// Construct one with NewScorer and share it freely; it holds no mutable
// state.
type Scorer struct {
	weights Weights
}

// NewScorer returns a Scorer with the given weights. Zero-valued weights
// are replaced with DefaultWeights.
func NewScorer(w Weights) *Scorer {
	if w == (Weights{}) {
		w = DefaultWeights()
	}
	return &Scorer{weights: w}
}

// Score converts the signals into an importance value in [0, SignalMax].
// Each signal must already be normalized to [0, SignalMax] by the
// caller; out-of-range signals are rejected with ErrInvalidInput before
// any tier write occurs.
func (s *Scorer) Score(sig types.Signals) (float64, error) {
	if err := ValidateSignals(sig); err != nil {
		return 0, err
	}

	raw := s.weights.Novelty*sig.SemanticNovelty +
		s.weights.Sentiment*sig.SentimentIntensity +
		s.weights.Feedback*sig.UserFeedback +
		s.weights.Recurrence*math.Log1p(float64(sig.RecurrenceCount))

	return clamp(raw, 0, SignalMax), nil
}

// ValidateSignals checks that every signal lies in its documented range.
func ValidateSignals(sig types.Signals) error {
	check := func(name string, v float64) error {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s is not a finite number", storage.ErrInvalidInput, name)
		}
		if v < 0 || v > SignalMax {
			return fmt.Errorf("%w: %s %.2f outside [0, %.0f]", storage.ErrInvalidInput, name, v, SignalMax)
		}
		return nil
	}

	if err := check("semantic_novelty", sig.SemanticNovelty); err != nil {
		return err
	}
	if err := check("sentiment_intensity", sig.SentimentIntensity); err != nil {
		return err
	}
	if err := check("user_feedback", sig.UserFeedback); err != nil {
		return err
	}
	if sig.RecurrenceCount < 0 {
		return fmt.Errorf("%w: recurrence_count %d is negative", storage.ErrInvalidInput, sig.RecurrenceCount)
	}
	return nil
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}
