package recommend

import (
	"context"
	"math"
	"sort"

	"github.com/sells-group/coaching-engine/internal/store"
)

// Strength component weights and the cap on match-score enhancement.
const (
	strengthUsageWeight        = 0.4
	strengthSatisfactionWeight = 0.3
	strengthBreadthWeight      = 0.3
	maxScoreEnhancement        = 0.15
)

// PartnerRecommendation is one partner's aggregated standing across a
// contractor's matched patterns.
type PartnerRecommendation struct {
	PartnerID       int64   `json:"partner_id"`
	UsageRate       float64 `json:"usage_rate"`
	AvgSatisfaction float64 `json:"avg_satisfaction"`
	PatternCount    int     `json:"pattern_count"`
	Strength        float64 `json:"recommendation_strength"`
}

// PartnerRecommender aggregates partner usage evidence across patterns.
type PartnerRecommender struct {
	store store.Store
}

func NewPartnerRecommender(st store.Store) *PartnerRecommender {
	return &PartnerRecommender{store: st}
}

// Aggregate computes, for every partner appearing in any matched pattern,
// usage rate and satisfaction weighted by match_score x pattern confidence,
// a distinct pattern count, and the combined recommendation strength
// usage x 0.4 + satisfaction/5 x 0.3 + min(patterns/3, 1) x 0.3.
// No matches means an empty slice.
func (r *PartnerRecommender) Aggregate(ctx context.Context, contractorID int64) ([]PartnerRecommendation, error) {
	matched, err := loadMatched(ctx, r.store, contractorID)
	if err != nil {
		return nil, err
	}

	type acc struct {
		weightSum    float64
		usage        float64
		satisfaction float64
		patterns     int
	}
	byPartner := make(map[int64]*acc)
	for i := range matched {
		w := matched[i].weight()
		if w <= 0 {
			continue
		}
		for _, pu := range matched[i].pattern.CommonPartners {
			a, ok := byPartner[pu.PartnerID]
			if !ok {
				a = &acc{}
				byPartner[pu.PartnerID] = a
			}
			a.weightSum += w
			a.usage += w * pu.UsageRate
			a.satisfaction += w * pu.AvgSatisfaction
			a.patterns++
		}
	}

	recs := make([]PartnerRecommendation, 0, len(byPartner))
	for id, a := range byPartner {
		usage := a.usage / a.weightSum
		satisfaction := a.satisfaction / a.weightSum
		recs = append(recs, PartnerRecommendation{
			PartnerID:       id,
			UsageRate:       usage,
			AvgSatisfaction: satisfaction,
			PatternCount:    a.patterns,
			Strength:        Strength(usage, satisfaction, a.patterns),
		})
	}
	sort.Slice(recs, func(i, j int) bool {
		if recs[i].Strength != recs[j].Strength {
			return recs[i].Strength > recs[j].Strength
		}
		return recs[i].PartnerID < recs[j].PartnerID
	})
	return recs, nil
}

// Strength combines usage, satisfaction and pattern breadth into one score.
func Strength(usageRate, avgSatisfaction float64, patternCount int) float64 {
	return usageRate*strengthUsageWeight +
		(avgSatisfaction/5)*strengthSatisfactionWeight +
		math.Min(float64(patternCount)/3, 1)*strengthBreadthWeight
}

// EnhanceMatchScore lifts an externally-computed base score by up to +0.15
// proportional to the partner's aggregated strength, clamped to 1.0. An
// unknown partner leaves the base score untouched.
func EnhanceMatchScore(base float64, partnerID int64, recs []PartnerRecommendation) float64 {
	for i := range recs {
		if recs[i].PartnerID == partnerID {
			return math.Min(1.0, base+maxScoreEnhancement*clamp01(recs[i].Strength))
		}
	}
	return base
}
