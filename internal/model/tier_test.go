package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/coaching-engine/internal/faults"
)

func TestTierLadderOrder(t *testing.T) {
	assert.True(t, Tier0To5M.Valid())
	assert.False(t, Tier("999_million").Valid())

	assert.Equal(t, Tier5To10M, Tier0To5M.Next())
	assert.Equal(t, Tier(""), Tier150MPlus.Next(), "top tier has no next")
	assert.Equal(t, Tier(""), Tier("bogus").Next())
}

func TestTierDistance(t *testing.T) {
	assert.Equal(t, 0, TierDistance(Tier5To10M, Tier5To10M))
	assert.Equal(t, 1, TierDistance(Tier5To10M, Tier10To20M))
	assert.Equal(t, 1, TierDistance(Tier10To20M, Tier5To10M), "distance is symmetric")
	assert.Equal(t, 7, TierDistance(Tier0To5M, Tier150MPlus))
	assert.Equal(t, len(TierLadder), TierDistance(Tier0To5M, Tier("bogus")))
}

func TestConsecutiveTransitions(t *testing.T) {
	transitions := ConsecutiveTransitions(TierLadder)
	require.Len(t, transitions, len(TierLadder)-1)
	assert.Equal(t, TierTransition{From: Tier0To5M, To: Tier5To10M}, transitions[0])
	assert.Equal(t, TierTransition{From: Tier76To150M, To: Tier150MPlus}, transitions[len(transitions)-1])

	assert.Nil(t, ConsecutiveTransitions([]Tier{Tier0To5M}))
}

func TestStageDistance(t *testing.T) {
	assert.Equal(t, 0, StageDistance("growth", "growth"))
	assert.Equal(t, 2, StageDistance("foundation", "scaling"))
	assert.Equal(t, len(BusinessStages), StageDistance("growth", "plateau"))
}

func TestPatternValidate(t *testing.T) {
	p := &Pattern{
		FromTier:        Tier0To5M,
		ToTier:          Tier5To10M,
		Type:            PatternTypeRevenueGrowth,
		SampleSize:      8,
		ConfidenceScore: 0.4,
	}
	require.NoError(t, p.Validate())

	small := *p
	small.SampleSize = 4
	assert.True(t, faults.IsValidation(small.Validate()))

	conf := *p
	conf.ConfidenceScore = 1.01
	assert.True(t, faults.IsValidation(conf.Validate()))

	partner := *p
	partner.CommonPartners = []PartnerUsage{{PartnerID: 1, UsageRate: 0.5, AvgSatisfaction: 5.5}}
	assert.True(t, faults.IsValidation(partner.Validate()))
}
