// Package recommend aggregates partner, timeline and content
// recommendations across a contractor's matched patterns. All aggregators
// treat "no matched patterns" as an empty result, never an error.
package recommend

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/coaching-engine/internal/model"
	"github.com/sells-group/coaching-engine/internal/store"
)

// matchedPattern pairs one stored match with its pattern.
type matchedPattern struct {
	match   model.ContractorPatternMatch
	pattern model.Pattern
}

// weight is the evidence weight a pattern contributes to an aggregation.
func (mp *matchedPattern) weight() float64 {
	return mp.match.MatchScore * mp.pattern.ConfidenceScore
}

// loadMatched resolves the contractor's matches to their patterns.
func loadMatched(ctx context.Context, st store.Store, contractorID int64) ([]matchedPattern, error) {
	matches, err := st.ListMatchesByContractor(ctx, contractorID)
	if err != nil {
		return nil, eris.Wrapf(err, "recommend: matches for contractor %d", contractorID)
	}
	out := make([]matchedPattern, 0, len(matches))
	for _, m := range matches {
		p, err := st.GetPattern(ctx, m.PatternID)
		if err != nil {
			return nil, eris.Wrapf(err, "recommend: pattern %d", m.PatternID)
		}
		out = append(out, matchedPattern{match: m, pattern: *p})
	}
	return out, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
