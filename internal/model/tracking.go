package model

import (
	"time"

	"github.com/sells-group/coaching-engine/internal/faults"
)

// RevenueImpact classifies the observed revenue effect of following a pattern.
type RevenueImpact string

const (
	RevenueImpactPositive RevenueImpact = "positive"
	RevenueImpactNeutral  RevenueImpact = "neutral"
	RevenueImpactNegative RevenueImpact = "negative"
	RevenueImpactTooEarly RevenueImpact = "too_early"
)

// Valid reports whether r is a known revenue impact value.
func (r RevenueImpact) Valid() bool {
	switch r {
	case RevenueImpactPositive, RevenueImpactNeutral, RevenueImpactNegative, RevenueImpactTooEarly:
		return true
	}
	return false
}

// PatternSuccessTracking is one observed real-world outcome for a pattern
// applied to a contractor. Rows are append-only and never updated in place.
type PatternSuccessTracking struct {
	ID           int64  `json:"id"`
	PatternID    int64  `json:"pattern_id"`
	ContractorID int64  `json:"contractor_id"`
	GoalID       *int64 `json:"goal_id,omitempty"`

	GoalCompleted          bool          `json:"goal_completed"`
	TimeToCompletionDays   *int          `json:"time_to_completion_days,omitempty"`
	ContractorSatisfaction *int          `json:"contractor_satisfaction,omitempty"` // 1-5
	RevenueImpact          RevenueImpact `json:"revenue_impact"`

	OutcomeNotes string `json:"outcome_notes,omitempty"`
	WhatWorked   string `json:"what_worked,omitempty"`
	WhatDidnt    string `json:"what_didnt,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Validate checks the persistable ranges on a tracking record.
func (t *PatternSuccessTracking) Validate() error {
	if t.ContractorSatisfaction != nil {
		if s := *t.ContractorSatisfaction; s < 1 || s > 5 {
			return faults.NewValidation("contractor_satisfaction", "integer 1-5")
		}
	}
	if t.TimeToCompletionDays != nil && *t.TimeToCompletionDays <= 0 {
		return faults.NewValidation("time_to_completion_days", "positive integer")
	}
	if !t.RevenueImpact.Valid() {
		return faults.NewValidation("revenue_impact", "positive|neutral|negative|too_early")
	}
	return nil
}
