// Package store persists patterns, matches, goals, checklist items and
// outcome tracking records behind a single interface with postgres and
// sqlite drivers.
package store

import (
	"context"
	"time"

	"github.com/sells-group/coaching-engine/internal/model"
)

// Store defines the persistence contract for the pattern engine.
type Store interface {
	// Patterns
	UpsertPattern(ctx context.Context, p *model.Pattern) (*model.Pattern, bool, error)
	GetPattern(ctx context.Context, id int64) (*model.Pattern, error)
	ListPatterns(ctx context.Context) ([]model.Pattern, error)
	UpdatePatternConfidence(ctx context.Context, id int64, score float64) error

	// Contractor pattern matches (one row per contractor+pattern pair)
	UpsertMatch(ctx context.Context, m *model.ContractorPatternMatch) (*model.ContractorPatternMatch, error)
	GetMatch(ctx context.Context, id int64) (*model.ContractorPatternMatch, error)
	ListMatchesByContractor(ctx context.Context, contractorID int64) ([]model.ContractorPatternMatch, error)
	LatestMatch(ctx context.Context, contractorID int64) (*model.ContractorPatternMatch, error)
	UpdateMatchResult(ctx context.Context, id int64, result model.PatternResult) error
	AddMatchCounters(ctx context.Context, id int64, goals, items int) error

	// Goals
	CreateGoal(ctx context.Context, g *model.Goal) (*model.Goal, error)
	GetGoal(ctx context.Context, id int64) (*model.Goal, error)
	ListGoalsByContractor(ctx context.Context, contractorID int64, status model.GoalStatus) ([]model.Goal, error)

	// Checklist items
	CreateChecklistItem(ctx context.Context, item *model.ChecklistItem) (*model.ChecklistItem, error)
	GetChecklistItem(ctx context.Context, id int64) (*model.ChecklistItem, error)
	ListChecklistByGoal(ctx context.Context, goalID int64) ([]model.ChecklistItem, error)
	ListPendingChecklist(ctx context.Context, contractorID int64) ([]model.ChecklistItem, error)
	// MarkItemInProgress transitions pending -> in_progress. Returns false
	// without error when the item was not pending (idempotent re-invocation).
	MarkItemInProgress(ctx context.Context, id int64, execCtx map[string]any, at time.Time) (bool, error)
	// CompleteItem marks the item completed and recomputes the parent goal's
	// progress in the same transaction. Returns the new progress and whether
	// the goal auto-completed.
	CompleteItem(ctx context.Context, id int64, notes string, execCtx map[string]any, at time.Time) (int, bool, error)

	// Outcome tracking (append-only)
	InsertTracking(ctx context.Context, rec *model.PatternSuccessTracking) (*model.PatternSuccessTracking, error)
	ListTrackingByPattern(ctx context.Context, patternID int64) ([]model.PatternSuccessTracking, error)
	ListTrackedPatternIDs(ctx context.Context) ([]int64, error)

	// Contractor profiles (read side)
	GetContractorProfile(ctx context.Context, id int64) (*model.ContractorProfile, error)
	ListContractorsByTier(ctx context.Context, tier model.Tier) ([]model.ContractorProfile, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
