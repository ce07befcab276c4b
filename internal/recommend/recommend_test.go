package recommend

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/coaching-engine/internal/faults"
	"github.com/sells-group/coaching-engine/internal/model"
	"github.com/sells-group/coaching-engine/internal/store"
)

type fakeStore struct {
	store.Store

	contractors map[int64]*model.ContractorProfile
	patterns    map[int64]*model.Pattern
	matches     map[int64][]model.ContractorPatternMatch
	goals       map[int64]*model.Goal
	items       []model.ChecklistItem
	nextID      int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		contractors: make(map[int64]*model.ContractorProfile),
		patterns:    make(map[int64]*model.Pattern),
		matches:     make(map[int64][]model.ContractorPatternMatch),
		goals:       make(map[int64]*model.Goal),
	}
}

func (f *fakeStore) ListMatchesByContractor(_ context.Context, contractorID int64) ([]model.ContractorPatternMatch, error) {
	return f.matches[contractorID], nil
}

func (f *fakeStore) GetPattern(_ context.Context, id int64) (*model.Pattern, error) {
	if p, ok := f.patterns[id]; ok {
		return p, nil
	}
	return nil, faults.NewNotFound("pattern", id)
}

func (f *fakeStore) GetContractorProfile(_ context.Context, id int64) (*model.ContractorProfile, error) {
	if c, ok := f.contractors[id]; ok {
		return c, nil
	}
	return nil, faults.NewNotFound("contractor", id)
}

func (f *fakeStore) GetGoal(_ context.Context, id int64) (*model.Goal, error) {
	if g, ok := f.goals[id]; ok {
		return g, nil
	}
	return nil, faults.NewNotFound("goal", id)
}

func (f *fakeStore) CreateChecklistItem(_ context.Context, item *model.ChecklistItem) (*model.ChecklistItem, error) {
	if err := item.Validate(); err != nil {
		return nil, err
	}
	stored := *item
	f.nextID++
	stored.ID = f.nextID
	f.items = append(f.items, stored)
	return &stored, nil
}

func (f *fakeStore) addMatch(contractorID int64, p *model.Pattern, score float64) {
	f.patterns[p.ID] = p
	f.matches[contractorID] = append(f.matches[contractorID], model.ContractorPatternMatch{
		ContractorID: contractorID,
		PatternID:    p.ID,
		MatchScore:   score,
		Result:       model.PatternResultPending,
	})
}

func TestStrengthFormula(t *testing.T) {
	// 0.8*0.4 + (4.0/5)*0.3 + (1/3)*0.3 = 0.66
	assert.InDelta(t, 0.66, Strength(0.8, 4.0, 1), 1e-9)
	// Breadth saturates at three patterns.
	assert.InDelta(t, Strength(0.8, 4.0, 3), Strength(0.8, 4.0, 9), 1e-9)
}

func TestPartnerAggregateWeighted(t *testing.T) {
	f := newFakeStore()
	f.addMatch(1, &model.Pattern{
		ID: 10, ConfidenceScore: 0.8, SampleSize: 10,
		CommonPartners: []model.PartnerUsage{{PartnerID: 7, UsageRate: 0.6, AvgSatisfaction: 4.0}},
	}, 1.0) // weight 0.8
	f.addMatch(1, &model.Pattern{
		ID: 11, ConfidenceScore: 0.5, SampleSize: 8,
		CommonPartners: []model.PartnerUsage{{PartnerID: 7, UsageRate: 0.9, AvgSatisfaction: 5.0}},
	}, 0.4) // weight 0.2

	recs, err := NewPartnerRecommender(f).Aggregate(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, recs, 1)

	r := recs[0]
	assert.Equal(t, int64(7), r.PartnerID)
	assert.Equal(t, 2, r.PatternCount)
	// usage = (0.8*0.6 + 0.2*0.9) / 1.0 = 0.66
	assert.InDelta(t, 0.66, r.UsageRate, 1e-9)
	// satisfaction = (0.8*4.0 + 0.2*5.0) / 1.0 = 4.2
	assert.InDelta(t, 4.2, r.AvgSatisfaction, 1e-9)
	assert.InDelta(t, Strength(0.66, 4.2, 2), r.Strength, 1e-9)
}

func TestPartnerAggregateNoMatches(t *testing.T) {
	recs, err := NewPartnerRecommender(newFakeStore()).Aggregate(context.Background(), 99)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestEnhanceMatchScore(t *testing.T) {
	recs := []PartnerRecommendation{{PartnerID: 7, Strength: 1.0}, {PartnerID: 8, Strength: 0.5}}

	assert.InDelta(t, 0.65, EnhanceMatchScore(0.5, 7, recs), 1e-9, "full strength adds the whole +0.15")
	assert.InDelta(t, 0.575, EnhanceMatchScore(0.5, 8, recs), 1e-9, "half strength adds half")
	assert.InDelta(t, 0.5, EnhanceMatchScore(0.5, 99, recs), 1e-9, "unknown partner is untouched")
	assert.InDelta(t, 1.0, EnhanceMatchScore(0.95, 7, recs), 1e-9, "never exceeds 1.0")
}

func TestPredictToTier(t *testing.T) {
	f := newFakeStore()
	f.addMatch(1, &model.Pattern{
		ID: 10, ToTier: model.Tier10To20M, ConfidenceScore: 0.8, SampleSize: 10,
		AvgTimeToLevelUpMonths: 24, MedianTimeToLevelUpMonths: 22, FastestTimeMonths: 12,
	}, 0.9)
	f.addMatch(1, &model.Pattern{
		ID: 11, ToTier: model.Tier10To20M, ConfidenceScore: 0.6, SampleSize: 6,
		AvgTimeToLevelUpMonths: 30, MedianTimeToLevelUpMonths: 28, FastestTimeMonths: 18,
	}, 0.3)
	// Different target, must not contribute.
	f.addMatch(1, &model.Pattern{
		ID: 12, ToTier: model.Tier31To50M, ConfidenceScore: 0.9, SampleSize: 20,
		AvgTimeToLevelUpMonths: 60, MedianTimeToLevelUpMonths: 55, FastestTimeMonths: 40,
	}, 1.0)

	pred, err := NewTimelinePredictor(f).PredictToTier(context.Background(), 1, model.Tier10To20M)
	require.NoError(t, err)
	require.NotNil(t, pred)

	assert.Equal(t, 2, pred.PatternCount)
	assert.Equal(t, 16, pred.SampleSize)
	// estimated = (0.9*24 + 0.3*30) / 1.2 = 25.5
	assert.InDelta(t, 25.5, pred.EstimatedMonths, 1e-9)
	// confidence = (0.9*0.8 + 0.3*0.6) / 1.2 = 0.75
	assert.InDelta(t, 0.75, pred.Confidence, 1e-9)
	assert.InDelta(t, 12, pred.FastestObservedMonths, 1e-9)
	assert.LessOrEqual(t, pred.RangeMinMonths, pred.EstimatedMonths)
	assert.GreaterOrEqual(t, pred.RangeMaxMonths, pred.EstimatedMonths)
}

func TestPredictToTierNoMatches(t *testing.T) {
	pred, err := NewTimelinePredictor(newFakeStore()).PredictToTier(context.Background(), 1, model.Tier10To20M)
	require.NoError(t, err)
	assert.Nil(t, pred, "no contributing patterns means no prediction, not an error")
}

func TestNextMilestoneTimelineAdjusts(t *testing.T) {
	f := newFakeStore()
	f.contractors[1] = &model.ContractorProfile{
		ID: 1, RevenueTier: model.Tier5To10M, TeamSize: 3, CurrentStage: "foundation",
	}
	f.addMatch(1, &model.Pattern{
		ID: 10, ToTier: model.Tier10To20M, ConfidenceScore: 0.8, SampleSize: 10,
		AvgTimeToLevelUpMonths: 20, MedianTimeToLevelUpMonths: 20, FastestTimeMonths: 15,
		SuccessIndicators: model.SuccessIndicators{TypicalTeamSize: 12, TypicalStage: "scaling"},
	}, 1.0)

	pred, err := NewTimelinePredictor(f).NextMilestoneTimeline(context.Background(), 1)
	require.NoError(t, err)
	require.NotNil(t, pred)

	// Small team (+0.15) and two stages behind (+0.10): factor 1.25.
	assert.InDelta(t, 1.25, pred.AdjustmentFactor, 1e-9)
	assert.InDelta(t, 25.0, pred.EstimatedMonths, 1e-9)
}

func TestContentAggregate(t *testing.T) {
	f := newFakeStore()
	f.addMatch(1, &model.Pattern{
		ID: 10, ConfidenceScore: 0.8, SampleSize: 10,
		CommonBooks:    []model.BookUsage{{ContentUsage: model.ContentUsage{ID: 1, Title: "Traction", UsageRate: 0.6}}},
		CommonPodcasts: []model.PodcastUsage{{ContentUsage: model.ContentUsage{ID: 2, Title: "The Contractor Fight", UsageRate: 0.4}}},
	}, 1.0)

	recs, err := NewContentRecommender(f).Aggregate(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, recs, 2)

	assert.Equal(t, ContentKindBook, recs[0].Kind)
	assert.InDelta(t, 60.0, recs[0].UsagePercentage, 1e-9)
	assert.Equal(t, 6, recs[0].TotalContractors)
	assert.Equal(t, 1, recs[0].PatternCount)
	assert.Contains(t, recs[0].Message, "60%")
}

func TestSynthesizeChecklistItems(t *testing.T) {
	f := newFakeStore()
	f.goals[5] = &model.Goal{ID: 5, ContractorID: 1, Status: model.GoalStatusActive, PriorityScore: 8}
	f.addMatch(1, &model.Pattern{
		ID: 10, ConfidenceScore: 0.8, SampleSize: 10,
		CommonBooks: []model.BookUsage{{ContentUsage: model.ContentUsage{ID: 1, Title: "Traction", UsageRate: 0.6}}},
	}, 1.0)

	items, err := NewContentRecommender(f).SynthesizeChecklistItems(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, items, 1)

	assert.Equal(t, model.ItemTypeContentRecommendation, items[0].Type)
	assert.Equal(t, "pattern_analysis", items[0].Source)
	assert.Equal(t, int64(1), items[0].ContractorID)
	assert.Equal(t, int64(5), items[0].GoalID)
}
