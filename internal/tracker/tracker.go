// Package tracker records pattern outcomes and closes the feedback loop by
// recalculating pattern confidence from observed results.
package tracker

import (
	"context"
	"math"
	"sync"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/coaching-engine/internal/model"
	"github.com/sells-group/coaching-engine/internal/store"
)

// Confidence recalculation weights over observed outcomes.
const (
	weightSuccessRate  = 0.5
	weightSatisfaction = 0.3
	weightImpact       = 0.2
)

// Tracker appends outcome records and maintains pattern confidence.
type Tracker struct {
	store store.Store

	// Underperformance gates.
	confidenceThreshold float64
	minAttempts         int

	// Parallelism of the library recompute batch.
	concurrency int
}

// New creates a Tracker. concurrency below 1 is raised to 1.
func New(st store.Store, confidenceThreshold float64, minAttempts, concurrency int) *Tracker {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Tracker{
		store:               st,
		confidenceThreshold: confidenceThreshold,
		minAttempts:         minAttempts,
		concurrency:         concurrency,
	}
}

// TrackSuccess validates and appends one outcome record. Satisfaction
// outside 1-5 is rejected before touching storage.
func (t *Tracker) TrackSuccess(ctx context.Context, rec *model.PatternSuccessTracking) (*model.PatternSuccessTracking, error) {
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	stored, err := t.store.InsertTracking(ctx, rec)
	if err != nil {
		return nil, eris.Wrap(err, "tracker: insert outcome")
	}
	zap.L().Info("tracker: outcome recorded",
		zap.Int64("pattern_id", stored.PatternID),
		zap.Int64("contractor_id", stored.ContractorID),
		zap.Bool("goal_completed", stored.GoalCompleted),
	)
	return stored, nil
}

// Stats aggregates every tracked outcome of one pattern.
type Stats struct {
	PatternID             int64                       `json:"pattern_id"`
	TotalAttempts         int                         `json:"total_attempts"`
	SuccessfulCompletions int                         `json:"successful_completions"`
	SuccessRate           float64                     `json:"success_rate"`
	AvgCompletionDays     float64                     `json:"avg_completion_days"`
	AvgSatisfaction       float64                     `json:"avg_satisfaction"`
	RevenueImpact         map[model.RevenueImpact]int `json:"revenue_impact"`
}

// StatsFor aggregates the tracking rows of one pattern. A pattern with no
// rows yields zeroed stats, not an error.
func (t *Tracker) StatsFor(ctx context.Context, patternID int64) (*Stats, error) {
	records, err := t.store.ListTrackingByPattern(ctx, patternID)
	if err != nil {
		return nil, eris.Wrapf(err, "tracker: stats for pattern %d", patternID)
	}
	return computeStats(patternID, records), nil
}

func computeStats(patternID int64, records []model.PatternSuccessTracking) *Stats {
	s := &Stats{
		PatternID:     patternID,
		TotalAttempts: len(records),
		RevenueImpact: make(map[model.RevenueImpact]int),
	}
	if len(records) == 0 {
		return s
	}

	var daysSum float64
	var daysCount int
	var satisfactionSum float64
	var satisfactionCount int
	for _, r := range records {
		if r.GoalCompleted {
			s.SuccessfulCompletions++
		}
		if r.TimeToCompletionDays != nil {
			daysSum += float64(*r.TimeToCompletionDays)
			daysCount++
		}
		if r.ContractorSatisfaction != nil {
			satisfactionSum += float64(*r.ContractorSatisfaction)
			satisfactionCount++
		}
		if r.RevenueImpact != "" {
			s.RevenueImpact[r.RevenueImpact]++
		}
	}
	s.SuccessRate = float64(s.SuccessfulCompletions) / float64(s.TotalAttempts)
	if daysCount > 0 {
		s.AvgCompletionDays = daysSum / float64(daysCount)
	}
	if satisfactionCount > 0 {
		s.AvgSatisfaction = satisfactionSum / float64(satisfactionCount)
	}
	return s
}

// RecalculateConfidence rewrites a pattern's confidence from its outcomes:
// success_rate x 0.5 + satisfaction/5 x 0.3 + positive-impact share x 0.2,
// clamped to [0, 1]. A single tracked outcome moves confidence as hard as
// fifty; the recalculation is intentionally undamped by sample size.
// Patterns with no tracking rows are left untouched.
func (t *Tracker) RecalculateConfidence(ctx context.Context, patternID int64) (float64, error) {
	records, err := t.store.ListTrackingByPattern(ctx, patternID)
	if err != nil {
		return 0, eris.Wrapf(err, "tracker: outcomes for pattern %d", patternID)
	}
	if len(records) == 0 {
		p, err := t.store.GetPattern(ctx, patternID)
		if err != nil {
			return 0, eris.Wrapf(err, "tracker: pattern %d", patternID)
		}
		return p.ConfidenceScore, nil
	}

	score := ConfidenceFromOutcomes(computeStats(patternID, records), countPositive(records))
	if err := t.store.UpdatePatternConfidence(ctx, patternID, score); err != nil {
		return 0, eris.Wrapf(err, "tracker: write confidence for pattern %d", patternID)
	}
	zap.L().Info("tracker: confidence recalculated",
		zap.Int64("pattern_id", patternID),
		zap.Float64("confidence", score),
		zap.Int("attempts", len(records)),
	)
	return score, nil
}

func countPositive(records []model.PatternSuccessTracking) int {
	var n int
	for _, r := range records {
		if r.RevenueImpact == model.RevenueImpactPositive {
			n++
		}
	}
	return n
}

// ConfidenceFromOutcomes applies the outcome-weighted confidence formula.
func ConfidenceFromOutcomes(s *Stats, positiveImpact int) float64 {
	if s.TotalAttempts == 0 {
		return 0
	}
	score := s.SuccessRate*weightSuccessRate +
		(s.AvgSatisfaction/5)*weightSatisfaction +
		(float64(positiveImpact)/float64(s.TotalAttempts))*weightImpact
	return math.Max(0, math.Min(1, score))
}

// IdentifyUnderperforming returns the patterns whose confidence fell below
// the threshold across at least minAttempts tracked outcomes. Patterns with
// fewer attempts are unproven, not underperforming.
func (t *Tracker) IdentifyUnderperforming(ctx context.Context) ([]model.Pattern, error) {
	patterns, err := t.store.ListPatterns(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "tracker: list patterns")
	}

	var flagged []model.Pattern
	for _, p := range patterns {
		if p.ConfidenceScore >= t.confidenceThreshold {
			continue
		}
		records, err := t.store.ListTrackingByPattern(ctx, p.ID)
		if err != nil {
			return nil, eris.Wrapf(err, "tracker: outcomes for pattern %d", p.ID)
		}
		if len(records) >= t.minAttempts {
			flagged = append(flagged, p)
		}
	}
	return flagged, nil
}

// LibrarySummary reports one full library recompute.
type LibrarySummary struct {
	PatternsRecalculated int             `json:"patterns_recalculated"`
	PatternsFlagged      int             `json:"patterns_flagged"`
	Underperforming      []model.Pattern `json:"underperforming_patterns"`
}

// UpdateLibrary recalculates confidence for every pattern with at least one
// tracking row, then flags underperformers. Per-pattern recalculations run
// in parallel; no two touch the same pattern row.
func (t *Tracker) UpdateLibrary(ctx context.Context) (*LibrarySummary, error) {
	runID := uuid.New().String()
	ids, err := t.store.ListTrackedPatternIDs(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "tracker: tracked pattern ids")
	}

	var mu sync.Mutex
	summary := &LibrarySummary{}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.concurrency)
	for _, id := range ids {
		g.Go(func() error {
			if _, err := t.RecalculateConfidence(gctx, id); err != nil {
				return err
			}
			mu.Lock()
			summary.PatternsRecalculated++
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	flagged, err := t.IdentifyUnderperforming(ctx)
	if err != nil {
		return nil, err
	}
	summary.Underperforming = flagged
	summary.PatternsFlagged = len(flagged)

	zap.L().Info("tracker: library updated",
		zap.String("run_id", runID),
		zap.Int("recalculated", summary.PatternsRecalculated),
		zap.Int("flagged", summary.PatternsFlagged),
	)
	return summary, nil
}
