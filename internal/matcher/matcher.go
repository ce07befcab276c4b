// Package matcher scores contractors against the pattern library and
// persists the resulting contractor-pattern associations.
package matcher

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/coaching-engine/internal/faults"
	"github.com/sells-group/coaching-engine/internal/model"
	"github.com/sells-group/coaching-engine/internal/store"
)

// Dimension weights. They must sum to 1.0; WeightSum exists so tests can
// hold the invariant.
const (
	WeightRevenueTier  = 0.30
	WeightFocusAreas   = 0.40
	WeightTeamSize     = 0.15
	WeightCurrentStage = 0.15
)

// WeightSum is the total of the four dimension weights.
const WeightSum = WeightRevenueTier + WeightFocusAreas + WeightTeamSize + WeightCurrentStage

// Matcher scores contractors against patterns.
type Matcher struct {
	store store.Store
	floor float64 // minimum score for a pattern to count as matching
}

// New creates a Matcher. floor is the relevance cutoff for FindMatchingPatterns.
func New(st store.Store, floor float64) *Matcher {
	return &Matcher{store: st, floor: floor}
}

// ScoredPattern pairs a pattern with its relevance to one contractor.
type ScoredPattern struct {
	Pattern model.Pattern `json:"pattern"`
	Score   float64       `json:"score"`
	Reason  string        `json:"reason"`
}

// CalculateMatchScore computes the weighted relevance of a pattern to a
// contractor over four dimensions: revenue tier proximity (0.30), focus
// area overlap (0.40), team size similarity (0.15), business stage
// proximity (0.15). Always in [0, 1].
func CalculateMatchScore(c *model.ContractorProfile, p *model.Pattern) float64 {
	score := WeightRevenueTier*tierScore(c.RevenueTier, p.FromTier) +
		WeightFocusAreas*focusScore(c.FocusAreas, p.CommonFocusAreas) +
		WeightTeamSize*teamScore(c.TeamSize, p.SuccessIndicators.TypicalTeamSize) +
		WeightCurrentStage*stageScore(c.CurrentStage, p.SuccessIndicators.TypicalStage)
	return math.Max(0, math.Min(1, score))
}

// tierScore decays with ladder distance between the contractor's tier and
// the pattern's starting tier: 1.0 at the exact tier, 0.5 one rung off.
func tierScore(contractorTier, patternFrom model.Tier) float64 {
	return 1.0 / float64(1+model.TierDistance(contractorTier, patternFrom))
}

// focusScore is the share of the pattern's common focus areas the
// contractor already works on. Patterns without focus areas score neutral.
func focusScore(contractor, pattern []string) float64 {
	if len(pattern) == 0 {
		return 0.5
	}
	have := make(map[string]bool, len(contractor))
	for _, f := range contractor {
		have[strings.ToLower(strings.TrimSpace(f))] = true
	}
	var hits int
	for _, f := range pattern {
		if have[strings.ToLower(strings.TrimSpace(f))] {
			hits++
		}
	}
	return float64(hits) / float64(len(pattern))
}

// teamScore decays linearly with relative distance from the cohort's
// typical team size. Unknown typical size scores neutral.
func teamScore(contractorSize, typicalSize int) float64 {
	if typicalSize <= 0 {
		return 0.5
	}
	diff := math.Abs(float64(contractorSize - typicalSize))
	return math.Max(0, 1.0-diff/float64(typicalSize))
}

// stageScore: exact stage 1.0, adjacent 0.5, anything further 0.25.
func stageScore(contractorStage, typicalStage string) float64 {
	if typicalStage == "" {
		return 0.5
	}
	switch model.StageDistance(contractorStage, typicalStage) {
	case 0:
		return 1.0
	case 1:
		return 0.5
	default:
		return 0.25
	}
}

// FindMatchingPatterns scores the whole library against one contractor and
// returns the patterns at or above the relevance floor, each with a
// human-readable reason.
func (m *Matcher) FindMatchingPatterns(ctx context.Context, contractorID int64) ([]ScoredPattern, error) {
	contractor, err := m.store.GetContractorProfile(ctx, contractorID)
	if err != nil {
		return nil, eris.Wrapf(err, "matcher: contractor %d", contractorID)
	}
	patterns, err := m.store.ListPatterns(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "matcher: list patterns")
	}

	var matches []ScoredPattern
	for i := range patterns {
		score := CalculateMatchScore(contractor, &patterns[i])
		if score < m.floor {
			continue
		}
		matches = append(matches, ScoredPattern{
			Pattern: patterns[i],
			Score:   score,
			Reason:  matchReason(contractor, &patterns[i], score),
		})
	}
	RankByRelevance(matches)

	zap.L().Debug("matcher: library scored",
		zap.Int64("contractor_id", contractorID),
		zap.Int("library_size", len(patterns)),
		zap.Int("matches", len(matches)),
	)
	return matches, nil
}

// RankByRelevance orders matches by descending score, preserving the input
// order of equal scores.
func RankByRelevance(matches []ScoredPattern) {
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
}

// ApplyToContractor persists the association between a contractor and a
// pattern. Re-applying the same pattern updates the stored score and reason
// instead of inserting a second row; generation counters are owned by the
// goal engine and untouched here.
func (m *Matcher) ApplyToContractor(ctx context.Context, contractorID, patternID int64) (*model.ContractorPatternMatch, error) {
	contractor, err := m.store.GetContractorProfile(ctx, contractorID)
	if err != nil {
		return nil, eris.Wrapf(err, "matcher: contractor %d", contractorID)
	}
	pattern, err := m.store.GetPattern(ctx, patternID)
	if err != nil {
		return nil, eris.Wrapf(err, "matcher: pattern %d", patternID)
	}

	score := CalculateMatchScore(contractor, pattern)
	match, err := m.store.UpsertMatch(ctx, &model.ContractorPatternMatch{
		ContractorID: contractorID,
		PatternID:    patternID,
		MatchScore:   score,
		MatchReason:  matchReason(contractor, pattern, score),
		Result:       model.PatternResultPending,
	})
	if err != nil {
		return nil, eris.Wrap(err, "matcher: apply pattern")
	}

	zap.L().Info("matcher: pattern applied",
		zap.Int64("contractor_id", contractorID),
		zap.Int64("pattern_id", patternID),
		zap.Float64("match_score", score),
	)
	return match, nil
}

// UpdateMatchResult moves a match through its result lifecycle
// (pending -> in_progress -> successful|unsuccessful).
func (m *Matcher) UpdateMatchResult(ctx context.Context, matchID int64, result model.PatternResult) error {
	if !result.Valid() {
		return faults.NewValidation("pattern_result", "pending|in_progress|successful|unsuccessful")
	}
	if err := m.store.UpdateMatchResult(ctx, matchID, result); err != nil {
		return eris.Wrapf(err, "matcher: update match %d", matchID)
	}
	return nil
}

// matchReason summarizes why the pattern scored what it did.
func matchReason(c *model.ContractorProfile, p *model.Pattern, score float64) string {
	parts := []string{fmt.Sprintf("overall %.2f", score)}

	if d := model.TierDistance(c.RevenueTier, p.FromTier); d == 0 {
		parts = append(parts, "same starting tier")
	} else {
		parts = append(parts, fmt.Sprintf("%d tier(s) from pattern start", d))
	}

	if len(p.CommonFocusAreas) > 0 {
		have := make(map[string]bool, len(c.FocusAreas))
		for _, f := range c.FocusAreas {
			have[strings.ToLower(strings.TrimSpace(f))] = true
		}
		var shared []string
		for _, f := range p.CommonFocusAreas {
			if have[strings.ToLower(strings.TrimSpace(f))] {
				shared = append(shared, f)
			}
		}
		if len(shared) > 0 {
			parts = append(parts, "shared focus: "+strings.Join(shared, ", "))
		}
	}

	if c.CurrentStage != "" && c.CurrentStage == p.SuccessIndicators.TypicalStage {
		parts = append(parts, "typical stage for this pattern")
	}
	return strings.Join(parts, "; ")
}
