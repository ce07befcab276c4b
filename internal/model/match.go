package model

import (
	"time"

	"github.com/sells-group/coaching-engine/internal/faults"
)

// PatternResult tracks how a matched pattern worked out for a contractor.
type PatternResult string

const (
	PatternResultPending      PatternResult = "pending"
	PatternResultInProgress   PatternResult = "in_progress"
	PatternResultSuccessful   PatternResult = "successful"
	PatternResultUnsuccessful PatternResult = "unsuccessful"
)

// Valid reports whether r is a known pattern result.
func (r PatternResult) Valid() bool {
	switch r {
	case PatternResultPending, PatternResultInProgress, PatternResultSuccessful, PatternResultUnsuccessful:
		return true
	}
	return false
}

// ContractorPatternMatch is a scored association between one contractor and
// one pattern. One row per (contractor, pattern) pair; re-application upserts.
type ContractorPatternMatch struct {
	ID           int64         `json:"id"`
	ContractorID int64         `json:"contractor_id"`
	PatternID    int64         `json:"pattern_id"`
	MatchScore   float64       `json:"match_score"` // 0.0-1.0
	MatchReason  string        `json:"match_reason"`
	Result       PatternResult `json:"pattern_result"`

	GoalsGenerated          int `json:"goals_generated"`
	ChecklistItemsGenerated int `json:"checklist_items_generated"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks the persistable ranges on a match.
func (m *ContractorPatternMatch) Validate() error {
	if m.MatchScore < 0 || m.MatchScore > 1 {
		return faults.NewValidation("match_score", "0.0-1.0")
	}
	if !m.Result.Valid() {
		return faults.NewValidation("pattern_result", "pending|in_progress|successful|unsuccessful")
	}
	return nil
}
