package model

import (
	"time"

	"github.com/sells-group/coaching-engine/internal/faults"
)

// MinPatternSampleSize is the hard floor on cohort size. Patterns mined from
// smaller cohorts are never persisted.
const MinPatternSampleSize = 5

// PatternType labels the kind of trajectory a pattern describes.
type PatternType string

const (
	PatternTypeRevenueGrowth PatternType = "revenue_growth"
)

// PartnerUsage records how often a cohort used a partner and how satisfied it was.
type PartnerUsage struct {
	PartnerID       int64   `json:"partner_id"`
	UsageRate       float64 `json:"usage_rate"`       // 0.0-1.0 share of the cohort
	AvgSatisfaction float64 `json:"avg_satisfaction"` // 0.0-5.0
}

// ContentUsage is the shared shape of book/podcast/event usage records.
type ContentUsage struct {
	ID        int64   `json:"id"`
	Title     string  `json:"title"`
	UsageRate float64 `json:"usage_rate"` // 0.0-1.0 share of the cohort
}

// BookUsage records cohort usage of one book.
type BookUsage struct {
	ContentUsage
	Author string `json:"author,omitempty"`
}

// PodcastUsage records cohort usage of one podcast.
type PodcastUsage struct {
	ContentUsage
	Host string `json:"host,omitempty"`
}

// EventUsage records cohort attendance of one event.
type EventUsage struct {
	ContentUsage
	EventType string `json:"event_type,omitempty"`
}

// SuccessIndicators summarizes the typical profile of the cohort behind a pattern.
type SuccessIndicators struct {
	TypicalTeamSize int      `json:"typical_team_size"`
	TypicalStage    string   `json:"typical_stage"`
	CommonTraits    []string `json:"common_traits,omitempty"`
}

// Pattern is a statistically-derived description of what successful contractors
// making a given tier transition had in common. Created and updated by the
// analyzer; its confidence score is later refined by the success tracker.
type Pattern struct {
	ID          int64       `json:"id"`
	FromTier    Tier        `json:"from_tier"`
	ToTier      Tier        `json:"to_tier"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Type        PatternType `json:"type"`

	CommonFocusAreas []string       `json:"common_focus_areas"`
	CommonPartners   []PartnerUsage `json:"common_partners"`
	CommonMilestones []string       `json:"common_milestones"`
	CommonBooks      []BookUsage    `json:"common_books"`
	CommonPodcasts   []PodcastUsage `json:"common_podcasts"`
	CommonEvents     []EventUsage   `json:"common_events"`

	AvgTimeToLevelUpMonths    float64 `json:"avg_time_to_level_up_months"`
	MedianTimeToLevelUpMonths float64 `json:"median_time_to_level_up_months"`
	FastestTimeMonths         float64 `json:"fastest_time_months"`

	SuccessIndicators SuccessIndicators `json:"success_indicators"`

	ConfidenceScore float64 `json:"confidence_score"` // 0.0-1.0
	SampleSize      int     `json:"sample_size"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks the persistable ranges on a pattern.
func (p *Pattern) Validate() error {
	if !p.FromTier.Valid() {
		return faults.NewValidation("from_tier", "a known revenue tier")
	}
	if !p.ToTier.Valid() {
		return faults.NewValidation("to_tier", "a known revenue tier")
	}
	if p.SampleSize < MinPatternSampleSize {
		return faults.NewValidation("sample_size", ">= 5")
	}
	if p.ConfidenceScore < 0 || p.ConfidenceScore > 1 {
		return faults.NewValidation("confidence_score", "0.0-1.0")
	}
	for _, pu := range p.CommonPartners {
		if pu.UsageRate < 0 || pu.UsageRate > 1 {
			return faults.NewValidation("common_partners.usage_rate", "0.0-1.0")
		}
		if pu.AvgSatisfaction < 0 || pu.AvgSatisfaction > 5 {
			return faults.NewValidation("common_partners.avg_satisfaction", "0.0-5.0")
		}
	}
	return nil
}
