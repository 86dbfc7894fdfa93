package enhance

import (
	"fmt"

	"github.com/stratahq/strata/ledger"
)

// Thresholds are the promotion gates, usually sourced from config.
type Thresholds struct {
	Frequency  int
	Confidence float64
}

// DefaultThresholds mirrors the config defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{Frequency: 3, Confidence: 0.85}
}

// Score is the evaluation of one fragment against the promotion gates.
type Score struct {
	InferredType string
	Confidence   float64
	Frequency    int
	Diverse      bool
}

// Eligible reports whether the score clears every gate.
func (s Score) Eligible(t Thresholds) bool {
	return s.Frequency >= t.Frequency && s.Confidence >= t.Confidence && s.Diverse
}

// Reasoning renders the score as a human-readable sentence for the
// recommendation row. It names counts and thresholds, never field values.
func (s Score) Reasoning(t Thresholds) string {
	if s.Eligible(t) {
		return fmt.Sprintf("seen %d times with %.0f%% type agreement (%s) across multiple sources",
			s.Frequency, s.Confidence*100, s.InferredType)
	}
	switch {
	case s.Frequency < t.Frequency:
		return fmt.Sprintf("seen %d times, below the %d-sighting threshold", s.Frequency, t.Frequency)
	case s.Confidence < t.Confidence:
		return fmt.Sprintf("type agreement %.0f%% (%s), below the %.0f%% threshold",
			s.Confidence*100, s.InferredType, t.Confidence*100)
	default:
		return "all sightings come from a single source"
	}
}

// Evaluate scores one fragment. Confidence is the fraction of sampled
// values agreeing with the majority inferred type; diversity requires at
// least two distinct sources or two distinct records.
func Evaluate(frag ledger.RawFragment) Score {
	counts := make(map[string]int)
	for _, v := range frag.SampleValues {
		counts[v.TypeName()]++
	}

	var (
		majority string
		best     int
	)
	for name, n := range counts {
		if n > best || (n == best && name < majority) {
			majority, best = name, n
		}
	}

	confidence := 0.0
	if len(frag.SampleValues) > 0 {
		confidence = float64(best) / float64(len(frag.SampleValues))
	}

	return Score{
		InferredType: majority,
		Confidence:   confidence,
		Frequency:    frag.FrequencyCount,
		Diverse:      len(frag.SourceIDs) >= 2 || len(frag.RecordRefs) >= 2,
	}
}
