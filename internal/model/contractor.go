package model

import "time"

// PartnerEngagement is one partner a contractor has worked with and how
// satisfied they were (0-5).
type PartnerEngagement struct {
	PartnerID    int64   `json:"partner_id"`
	Satisfaction float64 `json:"satisfaction"`
}

// ContentRef points at one book, podcast or event a contractor has engaged
// with. Meta carries the kind-specific detail (author, host, event type).
type ContentRef struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
	Meta  string `json:"meta,omitempty"`
}

// ContractorProfile is the slice of a contractor record the engine reads:
// matching inputs, the fields the goal engine checks for data gaps, and the
// history fields pattern mining aggregates over.
type ContractorProfile struct {
	ID           int64    `json:"id"`
	RevenueTier  Tier     `json:"revenue_tier"`
	TeamSize     int      `json:"team_size"`
	FocusAreas   []string `json:"focus_areas"`
	CurrentStage string   `json:"current_stage"`

	CloseRate    *float64 `json:"close_rate,omitempty"`
	LeadSources  []string `json:"lead_sources,omitempty"`
	SalesProcess string   `json:"sales_process,omitempty"`
	AvgJobSize   *float64 `json:"avg_job_size,omitempty"`
	CrewCount    *int     `json:"crew_count,omitempty"`

	// Cohort history, read when this contractor appears in an analyzer
	// cohort. MonthsToCurrentTier is how long the contractor took to reach
	// their current revenue tier.
	MonthsToCurrentTier *float64            `json:"months_to_current_tier,omitempty"`
	MilestonesAchieved  []string            `json:"milestones_achieved,omitempty"`
	PartnersUsed        []PartnerEngagement `json:"partners_used,omitempty"`
	BooksRead           []ContentRef        `json:"books_read,omitempty"`
	PodcastsFollowed    []ContentRef        `json:"podcasts_followed,omitempty"`
	EventsAttended      []ContentRef        `json:"events_attended,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BusinessStages is the ordered ladder of operating maturity stages used for
// stage proximity scoring.
var BusinessStages = []string{"foundation", "growth", "scaling", "optimization"}

// StageDistance returns the absolute ladder distance between two stages.
// Unknown stages are treated as maximally distant.
func StageDistance(a, b string) int {
	ia, ib := -1, -1
	for i, s := range BusinessStages {
		if s == a {
			ia = i
		}
		if s == b {
			ib = i
		}
	}
	if ia < 0 || ib < 0 {
		return len(BusinessStages)
	}
	d := ia - ib
	if d < 0 {
		d = -d
	}
	return d
}
