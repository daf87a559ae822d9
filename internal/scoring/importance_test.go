package scoring_test

import (
	"errors"
	"testing"

	"github.com/stratumhq/stratum/internal/scoring"
	"github.com/stratumhq/stratum/internal/storage"
	"github.com/stratumhq/stratum/pkg/types"
)

// TestScoreDeterminism verifies that identical inputs always produce
// identical output.
func TestScoreDeterminism(t *testing.T) {
	s := scoring.NewScorer(scoring.DefaultWeights())
	sig := types.Signals{
		SemanticNovelty:    7.3,
		SentimentIntensity: 4.1,
		UserFeedback:       2.0,
		RecurrenceCount:    5,
	}

	first, err := s.Score(sig)
	if err != nil {
		t.Fatalf("Score returned error: %v", err)
	}

	for i := 0; i < 100; i++ {
		again, err := s.Score(sig)
		if err != nil {
			t.Fatalf("Score returned error on repeat %d: %v", i, err)
		}
		if again != first {
			t.Fatalf("Score not deterministic: first=%v repeat=%v", first, again)
		}
	}
}

// TestScoreRange verifies the final clamp to [0, SignalMax].
func TestScoreRange(t *testing.T) {
	s := scoring.NewScorer(scoring.DefaultWeights())

	cases := []struct {
		name string
		sig  types.Signals
	}{
		{"all_zero", types.Signals{}},
		{"all_max", types.Signals{SemanticNovelty: 10, SentimentIntensity: 10, UserFeedback: 10, RecurrenceCount: 1000000}},
		{"mid", types.Signals{SemanticNovelty: 5, SentimentIntensity: 5, UserFeedback: 5, RecurrenceCount: 3}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			score, err := s.Score(tc.sig)
			if err != nil {
				t.Fatalf("Score returned error: %v", err)
			}
			if score < 0 || score > scoring.SignalMax {
				t.Errorf("score %v outside [0, %v]", score, scoring.SignalMax)
			}
		})
	}
}

// TestScoreRecurrenceDiminishingReturns verifies that recurrence alone
// cannot dominate importance: doubling the count adds less each time.
func TestScoreRecurrenceDiminishingReturns(t *testing.T) {
	s := scoring.NewScorer(scoring.DefaultWeights())

	score := func(recurrence int) float64 {
		v, err := s.Score(types.Signals{RecurrenceCount: recurrence})
		if err != nil {
			t.Fatalf("Score(%d) returned error: %v", recurrence, err)
		}
		return v
	}

	gain1 := score(2) - score(1)
	gain2 := score(4) - score(2)
	gain3 := score(8) - score(4)

	if !(gain1 > gain2 && gain2 > gain3) {
		t.Errorf("expected diminishing gains, got %v, %v, %v", gain1, gain2, gain3)
	}
}

// TestScoreNoveltyAndSentimentDominate verifies the relative weighting.
func TestScoreNoveltyAndSentimentDominate(t *testing.T) {
	s := scoring.NewScorer(scoring.DefaultWeights())

	novel, _ := s.Score(types.Signals{SemanticNovelty: 10})
	felt, _ := s.Score(types.Signals{SentimentIntensity: 10})
	fed, _ := s.Score(types.Signals{UserFeedback: 10})
	recurred, _ := s.Score(types.Signals{RecurrenceCount: 50})

	if novel <= fed || felt <= fed {
		t.Errorf("novelty (%v) and sentiment (%v) should outweigh feedback (%v)", novel, felt, fed)
	}
	if recurred >= novel {
		t.Errorf("recurrence alone (%v) should not outweigh max novelty (%v)", recurred, novel)
	}
}

// TestScoreRejectsOutOfRangeSignals verifies ErrInvalidInput for
// malformed signals.
func TestScoreRejectsOutOfRangeSignals(t *testing.T) {
	s := scoring.NewScorer(scoring.DefaultWeights())

	cases := []struct {
		name string
		sig  types.Signals
	}{
		{"negative_novelty", types.Signals{SemanticNovelty: -0.1}},
		{"over_max_sentiment", types.Signals{SentimentIntensity: 10.01}},
		{"over_max_feedback", types.Signals{UserFeedback: 11}},
		{"negative_recurrence", types.Signals{RecurrenceCount: -1}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := s.Score(tc.sig); !errors.Is(err, storage.ErrInvalidInput) {
				t.Errorf("expected ErrInvalidInput, got %v", err)
			}
		})
	}
}
