package recommend

import (
	"context"
	"math"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/coaching-engine/internal/model"
	"github.com/sells-group/coaching-engine/internal/store"
)

// TimelinePrediction estimates how long a contractor's path to a target
// tier will take, aggregated over the patterns they matched.
type TimelinePrediction struct {
	TargetTier            model.Tier `json:"target_tier"`
	EstimatedMonths       float64    `json:"estimated_months"`
	RangeMinMonths        float64    `json:"range_min_months"`
	RangeMaxMonths        float64    `json:"range_max_months"`
	FastestObservedMonths float64    `json:"fastest_observed_months"`
	Confidence            float64    `json:"confidence"`
	SampleSize            int        `json:"sample_size"`
	PatternCount          int        `json:"pattern_count"`
	AdjustmentFactor      float64    `json:"adjustment_factor,omitempty"`
}

// TimelinePredictor aggregates transition-time evidence from matched patterns.
type TimelinePredictor struct {
	store store.Store
}

func NewTimelinePredictor(st store.Store) *TimelinePredictor {
	return &TimelinePredictor{store: st}
}

// PredictToTier aggregates avg/median/fastest months across the
// contractor's matched patterns that transition into targetTier, weighted
// by match score. Returns (nil, nil) when no matched pattern contributes.
func (t *TimelinePredictor) PredictToTier(ctx context.Context, contractorID int64, targetTier model.Tier) (*TimelinePrediction, error) {
	matched, err := loadMatched(ctx, t.store, contractorID)
	if err != nil {
		return nil, err
	}

	pred := &TimelinePrediction{TargetTier: targetTier, FastestObservedMonths: math.Inf(1)}
	var weightSum, weightedAvg, weightedMedian, weightedConfidence float64
	var medianMin, medianMax float64

	for i := range matched {
		p := &matched[i].pattern
		if p.ToTier != targetTier {
			continue
		}
		w := matched[i].match.MatchScore
		if w <= 0 {
			continue
		}
		weightSum += w
		weightedAvg += w * p.AvgTimeToLevelUpMonths
		weightedMedian += w * p.MedianTimeToLevelUpMonths
		weightedConfidence += w * p.ConfidenceScore
		pred.SampleSize += p.SampleSize
		pred.PatternCount++
		if p.FastestTimeMonths < pred.FastestObservedMonths {
			pred.FastestObservedMonths = p.FastestTimeMonths
		}
		if pred.PatternCount == 1 || p.MedianTimeToLevelUpMonths < medianMin {
			medianMin = p.MedianTimeToLevelUpMonths
		}
		if p.MedianTimeToLevelUpMonths > medianMax {
			medianMax = p.MedianTimeToLevelUpMonths
		}
	}

	if pred.PatternCount == 0 {
		return nil, nil
	}

	pred.EstimatedMonths = weightedAvg / weightSum
	pred.Confidence = weightedConfidence / weightSum

	// Range: the median band across contributing patterns, widened by the
	// spread between median and average.
	spread := math.Abs(pred.EstimatedMonths - weightedMedian/weightSum)
	pred.RangeMinMonths = math.Max(pred.FastestObservedMonths, medianMin-spread)
	pred.RangeMaxMonths = medianMax + spread
	return pred, nil
}

// NextMilestoneTimeline predicts the contractor's path to their next tier,
// adjusted for how far their team size and stage sit from the contributing
// cohorts' typical profile.
func (t *TimelinePredictor) NextMilestoneTimeline(ctx context.Context, contractorID int64) (*TimelinePrediction, error) {
	profile, err := t.store.GetContractorProfile(ctx, contractorID)
	if err != nil {
		return nil, eris.Wrapf(err, "recommend: contractor %d", contractorID)
	}
	next := profile.RevenueTier.Next()
	if next == "" {
		return nil, nil
	}

	pred, err := t.PredictToTier(ctx, contractorID, next)
	if err != nil || pred == nil {
		return pred, err
	}

	factor, err := t.adjustmentFactor(ctx, profile, next)
	if err != nil {
		return nil, err
	}
	pred.AdjustmentFactor = factor
	pred.EstimatedMonths *= factor
	pred.RangeMinMonths *= factor
	pred.RangeMaxMonths *= factor

	zap.L().Debug("recommend: next milestone timeline",
		zap.Int64("contractor_id", contractorID),
		zap.String("target_tier", string(next)),
		zap.Float64("estimated_months", pred.EstimatedMonths),
		zap.Float64("adjustment_factor", factor),
	)
	return pred, nil
}

// adjustmentFactor scales the cohort timeline by the contractor's deviation
// from the typical profile: a smaller team or an earlier stage than typical
// slows the estimate, a stronger profile speeds it up. Bounded to [0.8, 1.5].
func (t *TimelinePredictor) adjustmentFactor(ctx context.Context, profile *model.ContractorProfile, target model.Tier) (float64, error) {
	matched, err := loadMatched(ctx, t.store, profile.ID)
	if err != nil {
		return 1, err
	}

	factor := 1.0
	var contributing int
	for i := range matched {
		p := &matched[i].pattern
		if p.ToTier != target {
			continue
		}
		contributing++
		if typical := p.SuccessIndicators.TypicalTeamSize; typical > 0 && profile.TeamSize > 0 {
			ratio := float64(profile.TeamSize) / float64(typical)
			switch {
			case ratio < 0.5:
				factor += 0.15
			case ratio > 1.5:
				factor -= 0.10
			}
		}
		if typical := p.SuccessIndicators.TypicalStage; typical != "" {
			if d := model.StageDistance(profile.CurrentStage, typical); d >= 2 {
				factor += 0.10
			}
		}
	}
	if contributing == 0 {
		return 1, nil
	}
	return math.Max(0.8, math.Min(1.5, factor)), nil
}
