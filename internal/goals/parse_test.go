package goals

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/coaching-engine/internal/model"
)

func TestParseResponseQuestionsAndRecommendations(t *testing.T) {
	response := "What is your current close rate? I recommend documenting your sales process. " +
		"Have you considered hiring an estimator? That should help."

	result := ParseResponseForActions(response, nil)

	require.Len(t, result.QuestionsAsked, 2)
	assert.Contains(t, result.QuestionsAsked[0], "close rate")
	assert.Contains(t, result.QuestionsAsked[1], "estimator")

	require.Len(t, result.RecommendationsMade, 1)
	assert.Contains(t, result.RecommendationsMade[0], "sales process")
}

func TestParseResponseMatchesChecklistItems(t *testing.T) {
	items := []model.ChecklistItem{
		{ID: 1, Text: "Ask about close rate percentage"},
		{ID: 2, Text: "Recommend estimating software vendors"},
		{ID: 3, Text: "Suggest attending regional trade conference"},
	}

	response := "What is your close rate percentage on recent bids? " +
		"You might look at estimating software."

	result := ParseResponseForActions(response, items)

	require.Len(t, result.MatchedChecklistItems, 2)

	byID := make(map[int64]MatchedItem)
	for _, m := range result.MatchedChecklistItems {
		byID[m.Item.ID] = m
	}

	// Item 1: keywords {close, rate, percentage} all present -> high.
	require.Contains(t, byID, int64(1))
	assert.Equal(t, MatchConfidenceHigh, byID[1].Confidence)

	// Item 2: {recommend, estimating, software, vendors}: 2 of 4 present -> medium.
	require.Contains(t, byID, int64(2))
	assert.Equal(t, MatchConfidenceMedium, byID[2].Confidence)

	// Item 3 shares nothing with the response.
	assert.NotContains(t, byID, int64(3))
}

func TestParseResponseEmptyInput(t *testing.T) {
	result := ParseResponseForActions("", []model.ChecklistItem{{ID: 1, Text: "Ask about crew count"}})
	assert.Empty(t, result.QuestionsAsked)
	assert.Empty(t, result.RecommendationsMade)
	assert.Empty(t, result.MatchedChecklistItems)
}
