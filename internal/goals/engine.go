// Package goals turns matched patterns (or static heuristics) into hidden
// goals with actionable checklists, evaluates item triggers, and tracks the
// execution lifecycle through to goal auto-completion.
package goals

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/coaching-engine/internal/matcher"
	"github.com/sells-group/coaching-engine/internal/model"
	"github.com/sells-group/coaching-engine/internal/store"
)

// Engine generates and maintains goals and checklist items.
type Engine struct {
	store   store.Store
	matcher *matcher.Matcher

	// boostConfidence is the pattern confidence at which goal priority is
	// boosted into the 9-10 band.
	boostConfidence float64

	clock func() time.Time

	// Progress recomputes for sibling item completions under one goal must
	// not interleave.
	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

// New creates a goal engine.
func New(st store.Store, m *matcher.Matcher, boostConfidence float64) *Engine {
	return &Engine{
		store:           st,
		matcher:         m,
		boostConfidence: boostConfidence,
		clock:           time.Now,
		locks:           make(map[int64]*sync.Mutex),
	}
}

func (e *Engine) goalLock(goalID int64) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.locks[goalID]
	if !ok {
		l = &sync.Mutex{}
		e.locks[goalID] = l
	}
	return l
}

// IdentifyDataGaps returns the profile fields the engine still needs before
// it can recommend with confidence. Pure function of the profile.
func IdentifyDataGaps(p *model.ContractorProfile) []string {
	var gaps []string
	if p.CloseRate == nil {
		gaps = append(gaps, "close_rate")
	}
	if len(p.LeadSources) == 0 {
		gaps = append(gaps, "lead_sources")
	}
	if p.SalesProcess == "" {
		gaps = append(gaps, "sales_process")
	}
	if p.AvgJobSize == nil {
		gaps = append(gaps, "avg_job_size")
	}
	if p.CrewCount == nil {
		gaps = append(gaps, "crew_count")
	}
	return gaps
}

// GenerateResult reports one goal-generation run for a contractor.
type GenerateResult struct {
	GoalsCreated int                   `json:"goals_created"`
	ItemsCreated int                   `json:"items_created"`
	Goals        []model.Goal          `json:"goals"`
	Items        []model.ChecklistItem `json:"items"`
	FromPattern  bool                  `json:"from_pattern"`
}

// GenerateGoalsForContractor builds goals and checklist items for one
// contractor. When a pattern matches above the relevance floor the goals are
// pattern-driven (priority boosted to 9-10 at high confidence); otherwise a
// static heuristic set is generated from the profile alone.
func (e *Engine) GenerateGoalsForContractor(ctx context.Context, contractorID int64) (*GenerateResult, error) {
	profile, err := e.store.GetContractorProfile(ctx, contractorID)
	if err != nil {
		return nil, eris.Wrapf(err, "goals: contractor %d", contractorID)
	}
	matches, err := e.matcher.FindMatchingPatterns(ctx, contractorID)
	if err != nil {
		return nil, eris.Wrap(err, "goals: match patterns")
	}
	gaps := IdentifyDataGaps(profile)

	result := &GenerateResult{}
	if len(matches) > 0 {
		if err := e.generateFromPattern(ctx, profile, &matches[0], gaps, result); err != nil {
			return nil, err
		}
		result.FromPattern = true
	} else {
		if err := e.generateHeuristic(ctx, profile, gaps, result); err != nil {
			return nil, err
		}
	}

	zap.L().Info("goals: generation complete",
		zap.Int64("contractor_id", contractorID),
		zap.Bool("from_pattern", result.FromPattern),
		zap.Int("goals", result.GoalsCreated),
		zap.Int("items", result.ItemsCreated),
	)
	return result, nil
}

// generateFromPattern creates a pattern-driven goal plus its checklist and
// records the generation counters on the match row.
func (e *Engine) generateFromPattern(ctx context.Context, profile *model.ContractorProfile, top *matcher.ScoredPattern, gaps []string, result *GenerateResult) error {
	p := &top.Pattern

	match, err := e.matcher.ApplyToContractor(ctx, profile.ID, p.ID)
	if err != nil {
		return err
	}

	conf := p.ConfidenceScore
	goal := &model.Goal{
		ContractorID: profile.ID,
		Type:         model.GoalTypeRevenueGrowth,
		Description: fmt.Sprintf("Follow the path %d contractors took from %s to %s",
			p.SampleSize, p.FromTier, p.ToTier),
		TargetMilestone:   fmt.Sprintf("reach_%s", p.ToTier),
		NextMilestone:     firstOr(p.CommonMilestones, "establish_baseline_metrics"),
		PriorityScore:     e.patternPriority(conf, top.Score),
		Status:            model.GoalStatusActive,
		DataGaps:          gaps,
		PatternSource:     p.Name,
		PatternConfidence: &conf,
		TriggerCondition:  string(model.TriggerImmediately),
	}
	created, err := e.store.CreateGoal(ctx, goal)
	if err != nil {
		return eris.Wrap(err, "goals: create pattern goal")
	}
	result.Goals = append(result.Goals, *created)
	result.GoalsCreated++

	items := e.checklistForGoal(created, gaps)
	items = append(items, e.patternChecklist(created, p)...)
	if err := e.createItems(ctx, items, result); err != nil {
		return err
	}

	if err := e.store.AddMatchCounters(ctx, match.ID, result.GoalsCreated, result.ItemsCreated); err != nil {
		return eris.Wrap(err, "goals: record match counters")
	}
	return nil
}

// patternPriority places pattern-driven goals at 9-10 when the pattern is
// high confidence, otherwise 6-9 scaled by match relevance.
func (e *Engine) patternPriority(confidence, matchScore float64) int {
	if confidence >= e.boostConfidence {
		if matchScore >= 0.8 {
			return 10
		}
		return 9
	}
	// 6..9 by match score
	p := 6 + int(matchScore*4)
	if p > 9 {
		p = 9
	}
	return p
}

// generateHeuristic creates the static fallback goals when no pattern
// qualifies.
func (e *Engine) generateHeuristic(ctx context.Context, profile *model.ContractorProfile, gaps []string, result *GenerateResult) error {
	var goals []*model.Goal

	if next := profile.RevenueTier.Next(); next != "" {
		goals = append(goals, &model.Goal{
			ContractorID:    profile.ID,
			Type:            model.GoalTypeRevenueGrowth,
			Description:     fmt.Sprintf("Grow revenue from %s toward %s", profile.RevenueTier, next),
			TargetMilestone: fmt.Sprintf("reach_%s", next),
			NextMilestone:   "establish_baseline_metrics",
			PriorityScore:   8,
		})
	}
	if hasLeadFocus(profile.FocusAreas) {
		goals = append(goals, &model.Goal{
			ContractorID:    profile.ID,
			Type:            model.GoalTypeLeadImprovement,
			Description:     "Improve lead quality and conversion in current focus areas",
			TargetMilestone: "documented_lead_pipeline",
			NextMilestone:   "capture_lead_source_data",
			PriorityScore:   7,
		})
	}
	if profile.TeamSize > 0 && len(profile.FocusAreas) > 0 {
		goals = append(goals, &model.Goal{
			ContractorID:    profile.ID,
			Type:            model.GoalTypeTeamExpansion,
			Description:     fmt.Sprintf("Scale the team beyond %d to support growth focus", profile.TeamSize),
			TargetMilestone: "next_key_hire_made",
			NextMilestone:   "define_hiring_plan",
			PriorityScore:   6,
		})
	}
	if len(profile.FocusAreas) > 1 {
		goals = append(goals, &model.Goal{
			ContractorID:    profile.ID,
			Type:            model.GoalTypeNetworkBuilding,
			Description:     "Build a peer and partner network across focus areas",
			TargetMilestone: "active_peer_group",
			NextMilestone:   "attend_industry_event",
			PriorityScore:   6,
		})
	}

	for _, g := range goals {
		g.Status = model.GoalStatusActive
		g.DataGaps = gaps
		g.TriggerCondition = string(model.TriggerImmediately)
		created, err := e.store.CreateGoal(ctx, g)
		if err != nil {
			return eris.Wrap(err, "goals: create heuristic goal")
		}
		result.Goals = append(result.Goals, *created)
		result.GoalsCreated++

		if err := e.createItems(ctx, e.checklistForGoal(created, gaps), result); err != nil {
			return err
		}
	}
	return nil
}

func hasLeadFocus(areas []string) bool {
	for _, a := range areas {
		if strings.Contains(strings.ToLower(a), "lead") {
			return true
		}
	}
	return false
}

func firstOr(values []string, fallback string) string {
	if len(values) > 0 {
		return values[0]
	}
	return fallback
}

// checklistForGoal emits the baseline checklist for any goal: one
// data_collection item per gap, then a recommendation item gated on the
// collected data.
func (e *Engine) checklistForGoal(g *model.Goal, gaps []string) []*model.ChecklistItem {
	var items []*model.ChecklistItem
	for i, gap := range gaps {
		trigger := model.TriggerNextConversation
		if i == 0 {
			trigger = model.TriggerImmediately
		}
		items = append(items, &model.ChecklistItem{
			GoalID:       g.ID,
			ContractorID: g.ContractorID,
			Text:         fmt.Sprintf("Ask about %s", strings.ReplaceAll(gap, "_", " ")),
			Type:         model.ItemTypeDataCollection,
			Trigger:      trigger,
			Status:       model.ItemStatusPending,
			Source:       "data_gap",
		})
	}
	items = append(items, &model.ChecklistItem{
		GoalID:       g.ID,
		ContractorID: g.ContractorID,
		Text:         fmt.Sprintf("Recommend next steps toward %s", strings.ReplaceAll(g.TargetMilestone, "_", " ")),
		Type:         model.ItemTypeRecommendation,
		Trigger:      model.TriggerAfterDataCollected,
		Status:       model.ItemStatusPending,
		Source:       "goal_generation",
	})
	return items
}

// patternChecklist synthesizes items from the pattern's milestones and
// content usage.
func (e *Engine) patternChecklist(g *model.Goal, p *model.Pattern) []*model.ChecklistItem {
	var items []*model.ChecklistItem
	for _, m := range p.CommonMilestones {
		items = append(items, &model.ChecklistItem{
			GoalID:       g.ID,
			ContractorID: g.ContractorID,
			Text:         fmt.Sprintf("Work toward milestone: %s", strings.ReplaceAll(m, "_", " ")),
			Type:         model.ItemTypeRecommendation,
			Trigger:      model.TriggerAfterDataCollected,
			Status:       model.ItemStatusPending,
			Source:       "pattern_analysis",
		})
	}
	for _, b := range p.CommonBooks {
		items = append(items, contentItem(g, fmt.Sprintf("Suggest reading %q", b.Title)))
	}
	for _, pc := range p.CommonPodcasts {
		items = append(items, contentItem(g, fmt.Sprintf("Suggest the %q podcast", pc.Title)))
	}
	for _, ev := range p.CommonEvents {
		items = append(items, contentItem(g, fmt.Sprintf("Suggest attending %q", ev.Title)))
	}
	return items
}

func contentItem(g *model.Goal, text string) *model.ChecklistItem {
	return &model.ChecklistItem{
		GoalID:       g.ID,
		ContractorID: g.ContractorID,
		Text:         text,
		Type:         model.ItemTypeContentRecommendation,
		Trigger:      model.TriggerNextConversation,
		Status:       model.ItemStatusPending,
		Source:       "pattern_analysis",
	}
}

func (e *Engine) createItems(ctx context.Context, items []*model.ChecklistItem, result *GenerateResult) error {
	for _, item := range items {
		created, err := e.store.CreateChecklistItem(ctx, item)
		if err != nil {
			return eris.Wrap(err, "goals: create checklist item")
		}
		result.Items = append(result.Items, *created)
		result.ItemsCreated++
	}
	return nil
}

// TriggerContext describes the conversational situation trigger evaluation
// runs against.
type TriggerContext struct {
	IsInConversation bool   `json:"is_in_conversation"`
	IsPostEvent      bool   `json:"is_post_event"`
	EventID          string `json:"event_id,omitempty"`
}

// EvaluateChecklistTriggers returns the contractor's pending items whose
// trigger condition the context satisfies, ordered by parent goal priority
// descending. after_data_collected items stay ineligible while any sibling
// data_collection item under the same goal is not yet completed.
func (e *Engine) EvaluateChecklistTriggers(ctx context.Context, contractorID int64, tc TriggerContext) ([]model.ChecklistItem, error) {
	pending, err := e.store.ListPendingChecklist(ctx, contractorID)
	if err != nil {
		return nil, eris.Wrap(err, "goals: pending checklist")
	}
	if len(pending) == 0 {
		return nil, nil
	}

	goals, err := e.store.ListGoalsByContractor(ctx, contractorID, model.GoalStatusActive)
	if err != nil {
		return nil, eris.Wrap(err, "goals: active goals")
	}
	priority := make(map[int64]int, len(goals))
	for _, g := range goals {
		priority[g.ID] = g.PriorityScore
	}

	dataDone := make(map[int64]bool)
	var triggered []model.ChecklistItem
	for _, item := range pending {
		ok := false
		switch item.Trigger {
		case model.TriggerImmediately:
			ok = true
		case model.TriggerNextConversation:
			ok = tc.IsInConversation
		case model.TriggerPostEvent:
			ok = tc.IsPostEvent
		case model.TriggerAfterDataCollected:
			done, seen := dataDone[item.GoalID]
			if !seen {
				done, err = e.dataCollectionComplete(ctx, item.GoalID)
				if err != nil {
					return nil, err
				}
				dataDone[item.GoalID] = done
			}
			ok = done
		}
		if ok {
			triggered = append(triggered, item)
		}
	}

	// Stable within a goal; ordered by parent priority across goals.
	for i := 1; i < len(triggered); i++ {
		for j := i; j > 0 && priority[triggered[j].GoalID] > priority[triggered[j-1].GoalID]; j-- {
			triggered[j], triggered[j-1] = triggered[j-1], triggered[j]
		}
	}
	return triggered, nil
}

// dataCollectionComplete reports whether every data_collection item under
// the goal is completed.
func (e *Engine) dataCollectionComplete(ctx context.Context, goalID int64) (bool, error) {
	siblings, err := e.store.ListChecklistByGoal(ctx, goalID)
	if err != nil {
		return false, eris.Wrapf(err, "goals: siblings of goal %d", goalID)
	}
	for _, s := range siblings {
		if s.Type == model.ItemTypeDataCollection && s.Status != model.ItemStatusCompleted {
			return false, nil
		}
	}
	return true, nil
}

// TrackActionExecution moves a pending item to in_progress, recording the
// execution context. Re-invoking on an already started item is a no-op and
// returns false.
func (e *Engine) TrackActionExecution(ctx context.Context, itemID int64, execCtx map[string]any) (bool, error) {
	moved, err := e.store.MarkItemInProgress(ctx, itemID, execCtx, e.clock().UTC())
	if err != nil {
		return false, eris.Wrapf(err, "goals: track execution of item %d", itemID)
	}
	return moved, nil
}

// CompleteActionAndUpdateProgress completes an item and recomputes the
// parent goal's progress, auto-completing the goal at 100. Sibling
// completions for the same goal are serialized.
func (e *Engine) CompleteActionAndUpdateProgress(ctx context.Context, itemID int64, notes string, execCtx map[string]any) (progress int, goalCompleted bool, err error) {
	item, err := e.store.GetChecklistItem(ctx, itemID)
	if err != nil {
		return 0, false, eris.Wrapf(err, "goals: item %d", itemID)
	}

	l := e.goalLock(item.GoalID)
	l.Lock()
	defer l.Unlock()

	progress, goalCompleted, err = e.store.CompleteItem(ctx, itemID, notes, execCtx, e.clock().UTC())
	if err != nil {
		return 0, false, eris.Wrapf(err, "goals: complete item %d", itemID)
	}

	if goalCompleted {
		zap.L().Info("goals: goal auto-completed",
			zap.Int64("goal_id", item.GoalID),
			zap.Int64("contractor_id", item.ContractorID),
		)
	}
	return progress, goalCompleted, nil
}
