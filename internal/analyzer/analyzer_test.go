package analyzer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/coaching-engine/internal/model"
	"github.com/sells-group/coaching-engine/internal/store"
)

// fakeStore implements the subset of store.Store the analyzer touches.
// Unimplemented methods panic via the embedded nil interface.
type fakeStore struct {
	store.Store

	contractorsByTier map[model.Tier][]model.ContractorProfile
	patterns          map[string]*model.Pattern
	nextID            int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		contractorsByTier: make(map[model.Tier][]model.ContractorProfile),
		patterns:          make(map[string]*model.Pattern),
	}
}

func (f *fakeStore) ListContractorsByTier(_ context.Context, tier model.Tier) ([]model.ContractorProfile, error) {
	return f.contractorsByTier[tier], nil
}

func (f *fakeStore) UpsertPattern(_ context.Context, p *model.Pattern) (*model.Pattern, bool, error) {
	if err := p.Validate(); err != nil {
		return nil, false, err
	}
	key := string(p.FromTier) + "|" + string(p.ToTier) + "|" + string(p.Type)
	stored := *p
	if existing, ok := f.patterns[key]; ok {
		stored.ID = existing.ID
		stored.CreatedAt = existing.CreatedAt
		stored.UpdatedAt = time.Now().UTC()
		f.patterns[key] = &stored
		return &stored, false, nil
	}
	f.nextID++
	stored.ID = f.nextID
	stored.CreatedAt = time.Now().UTC()
	stored.UpdatedAt = stored.CreatedAt
	f.patterns[key] = &stored
	return &stored, true, nil
}

func months(m float64) *float64 { return &m }

func cohortMember(tier model.Tier, teamSize int, stage string, focus []string, toTier float64) model.ContractorProfile {
	return model.ContractorProfile{
		RevenueTier:         tier,
		TeamSize:            teamSize,
		CurrentStage:        stage,
		FocusAreas:          focus,
		MonthsToCurrentTier: months(toTier),
	}
}

func TestConfidenceCurve(t *testing.T) {
	assert.Equal(t, 0.0, Confidence(0))
	assert.Equal(t, 0.0, Confidence(4))
	assert.InDelta(t, 0.25, Confidence(5), 1e-9)
	assert.InDelta(t, 0.50, Confidence(10), 1e-9)
	assert.InDelta(t, 1.00, Confidence(20), 1e-9)
	assert.InDelta(t, 1.00, Confidence(50), 1e-9)
}

func TestIdentifyCommonPatterns(t *testing.T) {
	a := New(newFakeStore(), nil, 5)

	// 10 members: "lead_gen" in 6 (60%), "branding" in 2 (20%).
	cohort := make([]model.ContractorProfile, 0, 10)
	for i := 0; i < 6; i++ {
		cohort = append(cohort, cohortMember(model.Tier5To10M, 8, "growth", []string{"lead_gen"}, 18))
	}
	for i := 0; i < 2; i++ {
		cohort = append(cohort, cohortMember(model.Tier5To10M, 12, "growth", []string{"branding"}, 24))
	}
	cohort = append(cohort,
		cohortMember(model.Tier5To10M, 5, "scaling", nil, 12),
		cohortMember(model.Tier5To10M, 9, "growth", nil, 30),
	)

	p := a.IdentifyCommonPatterns(cohort, model.Tier0To5M, model.Tier5To10M)
	require.NotNil(t, p)

	assert.Equal(t, model.Tier0To5M, p.FromTier)
	assert.Equal(t, model.Tier5To10M, p.ToTier)
	assert.Equal(t, model.PatternTypeRevenueGrowth, p.Type)
	assert.Equal(t, 10, p.SampleSize)
	assert.InDelta(t, 0.50, p.ConfidenceScore, 1e-9)

	assert.Equal(t, []string{"lead_gen"}, p.CommonFocusAreas, "only more than 30 percent focus areas survive")

	// times: 6x18, 2x24, 12, 30 -> avg 19.8, median 18, fastest 12
	assert.InDelta(t, 19.8, p.AvgTimeToLevelUpMonths, 1e-9)
	assert.InDelta(t, 18.0, p.MedianTimeToLevelUpMonths, 1e-9)
	assert.InDelta(t, 12.0, p.FastestTimeMonths, 1e-9)

	assert.Equal(t, "growth", p.SuccessIndicators.TypicalStage)
	assert.Equal(t, 8, p.SuccessIndicators.TypicalTeamSize)
}

func TestIdentifyCommonPatternsPartnersAndContent(t *testing.T) {
	a := New(newFakeStore(), nil, 5)

	cohort := make([]model.ContractorProfile, 0, 5)
	for i := 0; i < 4; i++ {
		cohort = append(cohort, model.ContractorProfile{
			RevenueTier:  model.Tier10To20M,
			CurrentStage: "scaling",
			TeamSize:     20,
			PartnersUsed: []model.PartnerEngagement{{PartnerID: 7, Satisfaction: 4.5}},
			BooksRead:    []model.ContentRef{{ID: 3, Title: "Profit First", Meta: "Mike Michalowicz"}},
		})
	}
	cohort = append(cohort, model.ContractorProfile{
		RevenueTier:  model.Tier10To20M,
		CurrentStage: "scaling",
		TeamSize:     20,
		PartnersUsed: []model.PartnerEngagement{{PartnerID: 9, Satisfaction: 3}},
	})

	p := a.IdentifyCommonPatterns(cohort, model.Tier5To10M, model.Tier10To20M)
	require.NotNil(t, p)

	require.Len(t, p.CommonPartners, 1, "partner 9 at 20 percent usage is dropped")
	assert.Equal(t, int64(7), p.CommonPartners[0].PartnerID)
	assert.InDelta(t, 0.8, p.CommonPartners[0].UsageRate, 1e-9)
	assert.InDelta(t, 4.5, p.CommonPartners[0].AvgSatisfaction, 1e-9)

	require.Len(t, p.CommonBooks, 1)
	assert.Equal(t, "Profit First", p.CommonBooks[0].Title)
	assert.Equal(t, "Mike Michalowicz", p.CommonBooks[0].Author)
	assert.InDelta(t, 0.8, p.CommonBooks[0].UsageRate, 1e-9)
}

func TestStoreRejectsSmallCohort(t *testing.T) {
	fs := newFakeStore()
	a := New(fs, nil, 5)

	p, err := a.Store(context.Background(), &model.Pattern{
		FromTier: model.Tier0To5M, ToTier: model.Tier5To10M,
		Type: model.PatternTypeRevenueGrowth, SampleSize: 3,
	})
	require.NoError(t, err)
	assert.Nil(t, p)
	assert.Empty(t, fs.patterns)
}

func TestStoreRecomputesConfidence(t *testing.T) {
	fs := newFakeStore()
	a := New(fs, nil, 5)

	stored, err := a.Store(context.Background(), &model.Pattern{
		FromTier: model.Tier0To5M, ToTier: model.Tier5To10M,
		Type: model.PatternTypeRevenueGrowth, SampleSize: 10,
		ConfidenceScore: 0.99, // stale, must be overwritten from sample size
	})
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.InDelta(t, 0.50, stored.ConfidenceScore, 1e-9)
}

func TestGenerateAll(t *testing.T) {
	fs := newFakeStore()
	for i := 0; i < 6; i++ {
		fs.contractorsByTier[model.Tier5To10M] = append(fs.contractorsByTier[model.Tier5To10M],
			cohortMember(model.Tier5To10M, 8, "growth", []string{"lead_gen"}, 18))
	}
	// Only 2 at the next rung: below the floor, skipped.
	for i := 0; i < 2; i++ {
		fs.contractorsByTier[model.Tier10To20M] = append(fs.contractorsByTier[model.Tier10To20M],
			cohortMember(model.Tier10To20M, 15, "scaling", nil, 30))
	}

	transitions := []model.TierTransition{
		{From: model.Tier0To5M, To: model.Tier5To10M},
		{From: model.Tier5To10M, To: model.Tier10To20M},
	}
	a := New(fs, transitions, 5)

	summary, err := a.GenerateAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Created)
	assert.Equal(t, 0, summary.Updated)
	assert.Equal(t, 1, summary.Skipped)
	require.Len(t, summary.Patterns, 1)

	// Second run hits the upsert path.
	summary, err = a.GenerateAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Created)
	assert.Equal(t, 1, summary.Updated)
	assert.Equal(t, 1, summary.Skipped)
}
