package matcher

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/coaching-engine/internal/model"
	"github.com/sells-group/coaching-engine/internal/store"
)

type fakeStore struct {
	store.Store

	contractors map[int64]*model.ContractorProfile
	patterns    []model.Pattern
	matches     map[int64]*model.ContractorPatternMatch
	byPair      map[[2]int64]int64
	nextID      int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		contractors: make(map[int64]*model.ContractorProfile),
		matches:     make(map[int64]*model.ContractorPatternMatch),
		byPair:      make(map[[2]int64]int64),
	}
}

func (f *fakeStore) GetContractorProfile(_ context.Context, id int64) (*model.ContractorProfile, error) {
	return f.contractors[id], nil
}

func (f *fakeStore) ListPatterns(_ context.Context) ([]model.Pattern, error) {
	return f.patterns, nil
}

func (f *fakeStore) GetPattern(_ context.Context, id int64) (*model.Pattern, error) {
	for i := range f.patterns {
		if f.patterns[i].ID == id {
			return &f.patterns[i], nil
		}
	}
	return nil, nil
}

func (f *fakeStore) UpsertMatch(_ context.Context, m *model.ContractorPatternMatch) (*model.ContractorPatternMatch, error) {
	stored := *m
	pair := [2]int64{m.ContractorID, m.PatternID}
	if id, ok := f.byPair[pair]; ok {
		prev := f.matches[id]
		stored.ID = id
		stored.GoalsGenerated = prev.GoalsGenerated
		stored.ChecklistItemsGenerated = prev.ChecklistItemsGenerated
		stored.CreatedAt = prev.CreatedAt
		stored.UpdatedAt = time.Now().UTC()
		f.matches[id] = &stored
		return &stored, nil
	}
	f.nextID++
	stored.ID = f.nextID
	stored.CreatedAt = time.Now().UTC()
	stored.UpdatedAt = stored.CreatedAt
	f.matches[stored.ID] = &stored
	f.byPair[pair] = stored.ID
	return &stored, nil
}

func pattern(id int64, from model.Tier, focus []string, teamSize int, stage string) model.Pattern {
	return model.Pattern{
		ID:       id,
		FromTier: from,
		ToTier:   from.Next(),
		Type:     model.PatternTypeRevenueGrowth,
		CommonFocusAreas: focus,
		SuccessIndicators: model.SuccessIndicators{
			TypicalTeamSize: teamSize,
			TypicalStage:    stage,
		},
		SampleSize:      10,
		ConfidenceScore: 0.5,
	}
}

func TestWeightsSumToOne(t *testing.T) {
	assert.InDelta(t, 1.0, WeightSum, 1e-12)
}

func TestCalculateMatchScorePerfect(t *testing.T) {
	c := &model.ContractorProfile{
		RevenueTier:  model.Tier31To50M,
		TeamSize:     25,
		FocusAreas:   []string{"lead_gen", "hiring"},
		CurrentStage: "scaling",
	}
	p := pattern(1, model.Tier31To50M, []string{"lead_gen", "hiring"}, 25, "scaling")

	assert.InDelta(t, 1.0, CalculateMatchScore(c, &p), 1e-9)
}

func TestCalculateMatchScoreTierProximity(t *testing.T) {
	c := &model.ContractorProfile{
		RevenueTier:  model.Tier31To50M,
		TeamSize:     25,
		FocusAreas:   []string{"lead_gen"},
		CurrentStage: "scaling",
	}
	near := pattern(1, model.Tier31To50M, []string{"lead_gen"}, 25, "scaling")
	far := pattern(2, model.Tier5To10M, []string{"lead_gen"}, 25, "scaling")

	nearScore := CalculateMatchScore(c, &near)
	farScore := CalculateMatchScore(c, &far)
	assert.Greater(t, nearScore, farScore, "pattern starting at the contractor's tier outranks a distant one")

	// Tier dimension only differs: near 1.0, far 1/(1+3)=0.25.
	assert.InDelta(t, WeightRevenueTier*(1.0-0.25), nearScore-farScore, 1e-9)
}

func TestCalculateMatchScoreBounds(t *testing.T) {
	c := &model.ContractorProfile{RevenueTier: "unknown_tier", TeamSize: 500, CurrentStage: "x"}
	p := pattern(1, model.Tier0To5M, []string{"a", "b"}, 3, "foundation")

	s := CalculateMatchScore(c, &p)
	assert.GreaterOrEqual(t, s, 0.0)
	assert.LessOrEqual(t, s, 1.0)
}

func TestFocusScoreIsShareOfPatternAreas(t *testing.T) {
	c := &model.ContractorProfile{
		RevenueTier:  model.Tier5To10M,
		TeamSize:     10,
		FocusAreas:   []string{"Lead_Gen"},
		CurrentStage: "growth",
	}
	p := pattern(1, model.Tier5To10M, []string{"lead_gen", "hiring"}, 10, "growth")

	// Shares one of two pattern areas, case-insensitively.
	expected := WeightRevenueTier + WeightFocusAreas*0.5 + WeightTeamSize + WeightCurrentStage
	assert.InDelta(t, expected, CalculateMatchScore(c, &p), 1e-9)
}

func TestFindMatchingPatternsFloorsAndRanks(t *testing.T) {
	fs := newFakeStore()
	fs.contractors[1] = &model.ContractorProfile{
		ID: 1, RevenueTier: model.Tier5To10M, TeamSize: 10,
		FocusAreas: []string{"lead_gen"}, CurrentStage: "growth",
	}
	fs.patterns = []model.Pattern{
		pattern(1, model.Tier5To10M, []string{"lead_gen"}, 10, "growth"),     // strong
		pattern(2, model.Tier10To20M, []string{"lead_gen"}, 12, "growth"),    // adjacent tier
		pattern(3, model.Tier150MPlus, []string{"exits"}, 400, "optimization"), // irrelevant
	}

	m := New(fs, 0.3)
	matches, err := m.FindMatchingPatterns(context.Background(), 1)
	require.NoError(t, err)

	require.Len(t, matches, 2)
	assert.Equal(t, int64(1), matches[0].Pattern.ID)
	assert.Equal(t, int64(2), matches[1].Pattern.ID)
	assert.Greater(t, matches[0].Score, matches[1].Score)
	assert.NotEmpty(t, matches[0].Reason)
}

func TestApplyToContractorUpserts(t *testing.T) {
	fs := newFakeStore()
	fs.contractors[1] = &model.ContractorProfile{
		ID: 1, RevenueTier: model.Tier5To10M, TeamSize: 10,
		FocusAreas: []string{"lead_gen"}, CurrentStage: "growth",
	}
	fs.patterns = []model.Pattern{pattern(4, model.Tier5To10M, []string{"lead_gen"}, 10, "growth")}

	m := New(fs, 0.3)
	first, err := m.ApplyToContractor(context.Background(), 1, 4)
	require.NoError(t, err)
	assert.Equal(t, model.PatternResultPending, first.Result)

	// Counters belong to the goal engine; re-application must not reset them.
	fs.matches[first.ID].GoalsGenerated = 3

	second, err := m.ApplyToContractor(context.Background(), 1, 4)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID, "same pair, same row")
	assert.Equal(t, 3, second.GoalsGenerated)
	assert.Len(t, fs.matches, 1)
}

func TestUpdateMatchResultRejectsUnknown(t *testing.T) {
	m := New(newFakeStore(), 0.3)
	err := m.UpdateMatchResult(context.Background(), 1, model.PatternResult("abandoned"))
	require.Error(t, err)
}
