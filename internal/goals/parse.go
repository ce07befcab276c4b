package goals

import (
	"strings"
	"unicode"

	"github.com/sells-group/coaching-engine/internal/model"
)

// MatchConfidence is the coarse tier of a keyword-overlap classification.
type MatchConfidence string

const (
	MatchConfidenceHigh   MatchConfidence = "high"
	MatchConfidenceMedium MatchConfidence = "medium"
)

// Overlap thresholds for classifying a checklist item as addressed by a
// response. Keyword overlap is approximate on purpose; this is a heuristic
// classifier, not language understanding.
const (
	highOverlap    = 0.6
	minimumOverlap = 0.3
)

// MatchedItem is one checklist item a response appears to have acted on.
type MatchedItem struct {
	Item       model.ChecklistItem `json:"item"`
	Confidence MatchConfidence     `json:"confidence"`
	Overlap    float64             `json:"overlap"`
}

// ParseResult is the action extraction from one coaching response.
type ParseResult struct {
	QuestionsAsked       []string      `json:"questions_asked"`
	RecommendationsMade  []string      `json:"recommendations_made"`
	MatchedChecklistItems []MatchedItem `json:"matched_checklist_items"`
}

var recommendationCues = []string{"recommend", "suggest"}

// ParseResponseForActions extracts questions, recommendations and probable
// checklist-item executions from a coaching response. Sentences ending in
// "?" are questions; sentences containing a recommendation cue are
// recommendations; items are matched by keyword overlap against the
// response, tiered high/medium, with anything under the minimum dropped.
func ParseResponseForActions(response string, activeChecklist []model.ChecklistItem) *ParseResult {
	result := &ParseResult{}

	for _, sentence := range splitSentences(response) {
		if strings.HasSuffix(sentence, "?") {
			result.QuestionsAsked = append(result.QuestionsAsked, sentence)
		}
		lower := strings.ToLower(sentence)
		for _, cue := range recommendationCues {
			if strings.Contains(lower, cue) {
				result.RecommendationsMade = append(result.RecommendationsMade, sentence)
				break
			}
		}
	}

	responseWords := keywordSet(response)
	for _, item := range activeChecklist {
		keys := keywords(item.Text)
		if len(keys) == 0 {
			continue
		}
		var hits int
		for _, k := range keys {
			if responseWords[k] {
				hits++
			}
		}
		overlap := float64(hits) / float64(len(keys))
		if overlap < minimumOverlap {
			continue
		}
		confidence := MatchConfidenceMedium
		if overlap >= highOverlap {
			confidence = MatchConfidenceHigh
		}
		result.MatchedChecklistItems = append(result.MatchedChecklistItems, MatchedItem{
			Item:       item,
			Confidence: confidence,
			Overlap:    overlap,
		})
	}
	return result
}

// splitSentences breaks text on terminal punctuation, keeping the
// terminator attached.
func splitSentences(text string) []string {
	var sentences []string
	var b strings.Builder
	for _, r := range text {
		b.WriteRune(r)
		if r == '.' || r == '?' || r == '!' {
			if s := strings.TrimSpace(b.String()); s != "" {
				sentences = append(sentences, s)
			}
			b.Reset()
		}
	}
	if s := strings.TrimSpace(b.String()); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

// stopwords are excluded from keyword overlap so filler does not inflate
// match confidence.
var stopwords = map[string]bool{
	"about": true, "after": true, "ask": true, "could": true, "from": true,
	"have": true, "into": true, "next": true, "should": true, "some": true,
	"suggest": true, "that": true, "their": true, "them": true, "they": true,
	"this": true, "toward": true, "what": true, "with": true, "would": true,
	"your": true,
}

func keywords(text string) []string {
	var keys []string
	seen := make(map[string]bool)
	for _, w := range splitWords(text) {
		if len(w) < 4 || stopwords[w] || seen[w] {
			continue
		}
		seen[w] = true
		keys = append(keys, w)
	}
	return keys
}

func keywordSet(text string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range splitWords(text) {
		if len(w) >= 4 && !stopwords[w] {
			set[w] = true
		}
	}
	return set
}

func splitWords(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r) && r != '_'
	})
}
