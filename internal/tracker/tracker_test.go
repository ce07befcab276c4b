package tracker

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/coaching-engine/internal/faults"
	"github.com/sells-group/coaching-engine/internal/model"
	"github.com/sells-group/coaching-engine/internal/store"
)

type fakeStore struct {
	store.Store

	mu       sync.Mutex
	patterns map[int64]*model.Pattern
	tracking map[int64][]model.PatternSuccessTracking
	nextID   int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		patterns: make(map[int64]*model.Pattern),
		tracking: make(map[int64][]model.PatternSuccessTracking),
	}
}

func (f *fakeStore) InsertTracking(_ context.Context, rec *model.PatternSuccessTracking) (*model.PatternSuccessTracking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored := *rec
	f.nextID++
	stored.ID = f.nextID
	f.tracking[rec.PatternID] = append(f.tracking[rec.PatternID], stored)
	return &stored, nil
}

func (f *fakeStore) ListTrackingByPattern(_ context.Context, patternID int64) ([]model.PatternSuccessTracking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tracking[patternID], nil
}

func (f *fakeStore) ListTrackedPatternIDs(_ context.Context) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []int64
	for id := range f.tracking {
		ids = append(ids, id)
	}
	return ids, nil
}

func (f *fakeStore) GetPattern(_ context.Context, id int64) (*model.Pattern, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.patterns[id]; ok {
		return p, nil
	}
	return nil, faults.NewNotFound("pattern", id)
}

func (f *fakeStore) ListPatterns(_ context.Context) ([]model.Pattern, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Pattern
	for _, p := range f.patterns {
		out = append(out, *p)
	}
	return out, nil
}

func (f *fakeStore) UpdatePatternConfidence(_ context.Context, id int64, score float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.patterns[id]
	if !ok {
		return faults.NewNotFound("pattern", id)
	}
	p.ConfidenceScore = score
	return nil
}

func intp(v int) *int { return &v }

func record(patternID int64, completed bool, satisfaction int, impact model.RevenueImpact) *model.PatternSuccessTracking {
	return &model.PatternSuccessTracking{
		PatternID:              patternID,
		ContractorID:           1,
		GoalCompleted:          completed,
		ContractorSatisfaction: intp(satisfaction),
		RevenueImpact:          impact,
	}
}

func TestTrackSuccessRejectsBadSatisfaction(t *testing.T) {
	tr := New(newFakeStore(), 0.7, 3, 2)

	_, err := tr.TrackSuccess(context.Background(), record(1, true, 6, model.RevenueImpactPositive))
	require.Error(t, err)
	assert.True(t, faults.IsValidation(err))

	_, err = tr.TrackSuccess(context.Background(), record(1, true, 0, model.RevenueImpactPositive))
	require.Error(t, err)
	assert.True(t, faults.IsValidation(err))
}

func TestStatsAggregation(t *testing.T) {
	f := newFakeStore()
	tr := New(f, 0.7, 3, 2)
	ctx := context.Background()

	days := []int{30, 60}
	for i, rec := range []*model.PatternSuccessTracking{
		record(1, true, 5, model.RevenueImpactPositive),
		record(1, true, 4, model.RevenueImpactPositive),
		record(1, false, 2, model.RevenueImpactNeutral),
		record(1, false, 1, model.RevenueImpactNegative),
	} {
		if i < len(days) {
			rec.TimeToCompletionDays = intp(days[i])
		}
		_, err := tr.TrackSuccess(ctx, rec)
		require.NoError(t, err)
	}

	stats, err := tr.StatsFor(ctx, 1)
	require.NoError(t, err)

	assert.Equal(t, 4, stats.TotalAttempts)
	assert.Equal(t, 2, stats.SuccessfulCompletions)
	assert.InDelta(t, 0.5, stats.SuccessRate, 1e-9)
	assert.InDelta(t, 45.0, stats.AvgCompletionDays, 1e-9)
	assert.InDelta(t, 3.0, stats.AvgSatisfaction, 1e-9)
	assert.Equal(t, 2, stats.RevenueImpact[model.RevenueImpactPositive])
	assert.Equal(t, 1, stats.RevenueImpact[model.RevenueImpactNeutral])
	assert.Equal(t, 1, stats.RevenueImpact[model.RevenueImpactNegative])
}

func TestRecalculateConfidence(t *testing.T) {
	f := newFakeStore()
	f.patterns[1] = &model.Pattern{ID: 1, ConfidenceScore: 0.25, SampleSize: 5}
	tr := New(f, 0.7, 3, 2)
	ctx := context.Background()

	// success_rate 0.5, avg satisfaction 3.0, positive share 0.5:
	// 0.5*0.5 + (3/5)*0.3 + 0.5*0.2 = 0.53
	for _, rec := range []*model.PatternSuccessTracking{
		record(1, true, 5, model.RevenueImpactPositive),
		record(1, true, 4, model.RevenueImpactPositive),
		record(1, false, 2, model.RevenueImpactNeutral),
		record(1, false, 1, model.RevenueImpactNegative),
	} {
		_, err := tr.TrackSuccess(ctx, rec)
		require.NoError(t, err)
	}

	score, err := tr.RecalculateConfidence(ctx, 1)
	require.NoError(t, err)
	assert.InDelta(t, 0.53, score, 1e-9)
	assert.InDelta(t, 0.53, f.patterns[1].ConfidenceScore, 1e-9)
}

func TestRecalculateConfidenceNoOutcomes(t *testing.T) {
	f := newFakeStore()
	f.patterns[1] = &model.Pattern{ID: 1, ConfidenceScore: 0.4, SampleSize: 8}
	tr := New(f, 0.7, 3, 2)

	score, err := tr.RecalculateConfidence(context.Background(), 1)
	require.NoError(t, err)
	assert.InDelta(t, 0.4, score, 1e-9, "untracked patterns keep their confidence")
}

func TestIdentifyUnderperforming(t *testing.T) {
	f := newFakeStore()
	// Low confidence, enough attempts: flagged.
	f.patterns[1] = &model.Pattern{ID: 1, ConfidenceScore: 0.3, SampleSize: 5}
	// Low confidence, too few attempts: unproven, not flagged.
	f.patterns[2] = &model.Pattern{ID: 2, ConfidenceScore: 0.3, SampleSize: 5}
	// High confidence: not flagged.
	f.patterns[3] = &model.Pattern{ID: 3, ConfidenceScore: 0.9, SampleSize: 20}

	tr := New(f, 0.7, 3, 2)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := tr.TrackSuccess(ctx, record(1, false, 2, model.RevenueImpactNeutral))
		require.NoError(t, err)
		_, err = tr.TrackSuccess(ctx, record(3, true, 5, model.RevenueImpactPositive))
		require.NoError(t, err)
	}
	_, err := tr.TrackSuccess(ctx, record(2, false, 2, model.RevenueImpactNeutral))
	require.NoError(t, err)

	flagged, err := tr.IdentifyUnderperforming(ctx)
	require.NoError(t, err)
	require.Len(t, flagged, 1)
	assert.Equal(t, int64(1), flagged[0].ID)
}

func TestUpdateLibrary(t *testing.T) {
	f := newFakeStore()
	f.patterns[1] = &model.Pattern{ID: 1, ConfidenceScore: 0.8, SampleSize: 10}
	f.patterns[2] = &model.Pattern{ID: 2, ConfidenceScore: 0.8, SampleSize: 10}
	f.patterns[3] = &model.Pattern{ID: 3, ConfidenceScore: 0.8, SampleSize: 10} // untracked

	tr := New(f, 0.7, 3, 4)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := tr.TrackSuccess(ctx, record(1, false, 1, model.RevenueImpactNegative))
		require.NoError(t, err)
		_, err = tr.TrackSuccess(ctx, record(2, true, 5, model.RevenueImpactPositive))
		require.NoError(t, err)
	}

	summary, err := tr.UpdateLibrary(ctx)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.PatternsRecalculated)
	require.Equal(t, 1, summary.PatternsFlagged)
	assert.Equal(t, int64(1), summary.Underperforming[0].ID)

	// Pattern 2's outcomes were perfect: 0.5 + 0.3 + 0.2 = 1.0.
	assert.InDelta(t, 1.0, f.patterns[2].ConfidenceScore, 1e-9)
	// Pattern 3 was never tracked and keeps its analyzer confidence.
	assert.InDelta(t, 0.8, f.patterns[3].ConfidenceScore, 1e-9)
}
