package model

import (
	"time"

	"github.com/sells-group/coaching-engine/internal/faults"
)

// GoalType labels what a hidden goal is driving at.
type GoalType string

const (
	GoalTypeRevenueGrowth   GoalType = "revenue_growth"
	GoalTypeLeadImprovement GoalType = "lead_improvement"
	GoalTypeTeamExpansion   GoalType = "team_expansion"
	GoalTypeNetworkBuilding GoalType = "network_building"
	GoalTypeDataCollection  GoalType = "data_collection"
)

// GoalStatus is the lifecycle state of a goal.
type GoalStatus string

const (
	GoalStatusActive    GoalStatus = "active"
	GoalStatusCompleted GoalStatus = "completed"
)

// Goal is a hidden, AI-internal objective for a contractor. Goals are never
// exposed on the contractor-facing surface; only the agent layer reads them.
type Goal struct {
	ID              int64    `json:"id"`
	ContractorID    int64    `json:"contractor_id"`
	Type            GoalType `json:"goal_type"`
	Description     string   `json:"description"`
	TargetMilestone string   `json:"target_milestone"`
	NextMilestone   string   `json:"next_milestone"`

	PriorityScore   int        `json:"priority_score"`   // 1-10
	CurrentProgress int        `json:"current_progress"` // 0-100, derived from checklist items
	Status          GoalStatus `json:"status"`

	DataGaps          []string `json:"data_gaps,omitempty"`
	PatternSource     string   `json:"pattern_source,omitempty"`
	PatternConfidence *float64 `json:"pattern_confidence,omitempty"`
	TriggerCondition  string   `json:"trigger_condition,omitempty"`

	LastActionAt *time.Time `json:"last_action_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Validate checks the persistable ranges on a goal.
func (g *Goal) Validate() error {
	if g.PriorityScore < 1 || g.PriorityScore > 10 {
		return faults.NewValidation("priority_score", "integer 1-10")
	}
	if g.CurrentProgress < 0 || g.CurrentProgress > 100 {
		return faults.NewValidation("current_progress", "integer 0-100")
	}
	if g.Status != GoalStatusActive && g.Status != GoalStatusCompleted {
		return faults.NewValidation("status", "active|completed")
	}
	if g.PatternConfidence != nil && (*g.PatternConfidence < 0 || *g.PatternConfidence > 1) {
		return faults.NewValidation("pattern_confidence", "0.0-1.0")
	}
	return nil
}

// ItemType labels what kind of action a checklist item is.
type ItemType string

const (
	ItemTypeDataCollection        ItemType = "data_collection"
	ItemTypeRecommendation        ItemType = "recommendation"
	ItemTypeContentRecommendation ItemType = "content_recommendation"
)

// TriggerCondition gates when a checklist item becomes actionable.
type TriggerCondition string

const (
	TriggerImmediately        TriggerCondition = "immediately"
	TriggerNextConversation   TriggerCondition = "next_conversation"
	TriggerAfterDataCollected TriggerCondition = "after_data_collected"
	TriggerPostEvent          TriggerCondition = "post_event"
)

// ItemStatus is the lifecycle state of a checklist item.
type ItemStatus string

const (
	ItemStatusPending    ItemStatus = "pending"
	ItemStatusInProgress ItemStatus = "in_progress"
	ItemStatusCompleted  ItemStatus = "completed"
)

// ChecklistItem is one concrete, schedulable action serving a goal.
type ChecklistItem struct {
	ID           int64            `json:"id"`
	GoalID       int64            `json:"goal_id"`
	ContractorID int64            `json:"contractor_id"`
	Text         string           `json:"checklist_item"`
	Type         ItemType         `json:"item_type"`
	Trigger      TriggerCondition `json:"trigger_condition"`
	Status       ItemStatus       `json:"status"`
	Source       string           `json:"source,omitempty"`

	ExecutionContext map[string]any `json:"execution_context,omitempty"`
	CompletionNotes  string         `json:"completion_notes,omitempty"`

	ExecutedAt  *time.Time `json:"executed_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Validate checks the enum fields on a checklist item.
func (c *ChecklistItem) Validate() error {
	switch c.Type {
	case ItemTypeDataCollection, ItemTypeRecommendation, ItemTypeContentRecommendation:
	default:
		return faults.NewValidation("item_type", "data_collection|recommendation|content_recommendation")
	}
	switch c.Trigger {
	case TriggerImmediately, TriggerNextConversation, TriggerAfterDataCollected, TriggerPostEvent:
	default:
		return faults.NewValidation("trigger_condition", "immediately|next_conversation|after_data_collected|post_event")
	}
	switch c.Status {
	case ItemStatusPending, ItemStatusInProgress, ItemStatusCompleted:
	default:
		return faults.NewValidation("status", "pending|in_progress|completed")
	}
	return nil
}
