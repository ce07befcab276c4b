package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/coaching-engine/internal/db"
	"github.com/sells-group/coaching-engine/internal/faults"
	"github.com/sells-group/coaching-engine/internal/model"
)

const goalColumns = `id, contractor_id, goal_type, description, target_milestone, next_milestone,
	priority_score, current_progress, status, data_gaps, pattern_source, pattern_confidence,
	trigger_condition, last_action_at, completed_at, created_at, updated_at`

func scanGoal(row pgx.Row) (*model.Goal, error) {
	var g model.Goal
	var gapsJSON []byte
	var patternSource, triggerCond *string

	err := row.Scan(
		&g.ID, &g.ContractorID, &g.Type, &g.Description, &g.TargetMilestone, &g.NextMilestone,
		&g.PriorityScore, &g.CurrentProgress, &g.Status, &gapsJSON, &patternSource, &g.PatternConfidence,
		&triggerCond, &g.LastActionAt, &g.CompletedAt, &g.CreatedAt, &g.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if patternSource != nil {
		g.PatternSource = *patternSource
	}
	if triggerCond != nil {
		g.TriggerCondition = *triggerCond
	}
	if len(gapsJSON) > 0 {
		if err := json.Unmarshal(gapsJSON, &g.DataGaps); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal data gaps")
		}
	}
	return &g, nil
}

func (s *PostgresStore) CreateGoal(ctx context.Context, g *model.Goal) (*model.Goal, error) {
	if g.Status == "" {
		g.Status = model.GoalStatusActive
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}

	gapsJSON, err := json.Marshal(emptyIfNil(g.DataGaps))
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal data gaps")
	}

	now := time.Now().UTC()
	stored := *g
	err = s.pool.QueryRow(ctx,
		`INSERT INTO goals
		 (contractor_id, goal_type, description, target_milestone, next_milestone,
		  priority_score, current_progress, status, data_gaps, pattern_source,
		  pattern_confidence, trigger_condition, created_at, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$13)
		 RETURNING id`,
		g.ContractorID, string(g.Type), g.Description, g.TargetMilestone, g.NextMilestone,
		g.PriorityScore, g.CurrentProgress, string(g.Status), gapsJSON, nullIfEmpty(g.PatternSource),
		g.PatternConfidence, nullIfEmpty(g.TriggerCondition), now,
	).Scan(&stored.ID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert goal")
	}
	stored.CreatedAt = now
	stored.UpdatedAt = now
	return &stored, nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// marshalExecJSON renders an execution context for a JSONB column, keeping
// SQL NULL for an absent context so COALESCE-based updates preserve the
// previously stored one.
func marshalExecJSON(execCtx map[string]any) ([]byte, error) {
	if execCtx == nil {
		return nil, nil
	}
	b, err := json.Marshal(execCtx)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal execution context")
	}
	return b, nil
}

func (s *PostgresStore) GetGoal(ctx context.Context, id int64) (*model.Goal, error) {
	g, err := scanGoal(s.pool.QueryRow(ctx,
		`SELECT `+goalColumns+` FROM goals WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, faults.NewNotFound("goal", id)
		}
		return nil, eris.Wrapf(err, "postgres: get goal %d", id)
	}
	return g, nil
}

// ListGoalsByContractor lists a contractor's goals, optionally filtered by
// status, highest priority first.
func (s *PostgresStore) ListGoalsByContractor(ctx context.Context, contractorID int64, status model.GoalStatus) ([]model.Goal, error) {
	query := `SELECT ` + goalColumns + ` FROM goals WHERE contractor_id = $1`
	args := []any{contractorID}
	if status != "" {
		query += ` AND status = $2`
		args = append(args, string(status))
	}
	query += ` ORDER BY priority_score DESC, id`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list goals")
	}
	defer rows.Close()

	var goals []model.Goal
	for rows.Next() {
		g, err := scanGoal(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan goal")
		}
		goals = append(goals, *g)
	}
	return goals, eris.Wrap(rows.Err(), "postgres: list goals iterate")
}

const itemColumns = `id, goal_id, contractor_id, checklist_item, item_type, trigger_condition,
	status, source, execution_context, completion_notes, executed_at, completed_at, created_at, updated_at`

func scanItem(row pgx.Row) (*model.ChecklistItem, error) {
	var c model.ChecklistItem
	var execJSON []byte
	var source, notes *string

	err := row.Scan(
		&c.ID, &c.GoalID, &c.ContractorID, &c.Text, &c.Type, &c.Trigger,
		&c.Status, &source, &execJSON, &notes, &c.ExecutedAt, &c.CompletedAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if source != nil {
		c.Source = *source
	}
	if notes != nil {
		c.CompletionNotes = *notes
	}
	if len(execJSON) > 0 {
		if err := json.Unmarshal(execJSON, &c.ExecutionContext); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal execution context")
		}
	}
	return &c, nil
}

func (s *PostgresStore) CreateChecklistItem(ctx context.Context, item *model.ChecklistItem) (*model.ChecklistItem, error) {
	if item.Status == "" {
		item.Status = model.ItemStatusPending
	}
	if err := item.Validate(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	stored := *item
	err := s.pool.QueryRow(ctx,
		`INSERT INTO checklist_items
		 (goal_id, contractor_id, checklist_item, item_type, trigger_condition, status, source, created_at, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$8)
		 RETURNING id`,
		item.GoalID, item.ContractorID, item.Text, string(item.Type), string(item.Trigger),
		string(item.Status), nullIfEmpty(item.Source), now,
	).Scan(&stored.ID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert checklist item")
	}
	stored.CreatedAt = now
	stored.UpdatedAt = now
	return &stored, nil
}

func (s *PostgresStore) GetChecklistItem(ctx context.Context, id int64) (*model.ChecklistItem, error) {
	c, err := scanItem(s.pool.QueryRow(ctx,
		`SELECT `+itemColumns+` FROM checklist_items WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, faults.NewNotFound("checklist_item", id)
		}
		return nil, eris.Wrapf(err, "postgres: get checklist item %d", id)
	}
	return c, nil
}

func (s *PostgresStore) ListChecklistByGoal(ctx context.Context, goalID int64) ([]model.ChecklistItem, error) {
	return s.listItems(ctx,
		`SELECT `+itemColumns+` FROM checklist_items WHERE goal_id = $1 ORDER BY id`, goalID)
}

func (s *PostgresStore) ListPendingChecklist(ctx context.Context, contractorID int64) ([]model.ChecklistItem, error) {
	return s.listItems(ctx,
		`SELECT `+itemColumns+` FROM checklist_items WHERE contractor_id = $1 AND status = 'pending' ORDER BY id`,
		contractorID)
}

func (s *PostgresStore) listItems(ctx context.Context, query string, args ...any) ([]model.ChecklistItem, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list checklist items")
	}
	defer rows.Close()

	var items []model.ChecklistItem
	for rows.Next() {
		c, err := scanItem(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan checklist item")
		}
		items = append(items, *c)
	}
	return items, eris.Wrap(rows.Err(), "postgres: list checklist items iterate")
}

// MarkItemInProgress transitions pending -> in_progress, recording the
// execution timestamp and context. Returns false when the item was not in
// pending state, which callers treat as an idempotent no-op.
func (s *PostgresStore) MarkItemInProgress(ctx context.Context, id int64, execCtx map[string]any, at time.Time) (bool, error) {
	execJSON, err := marshalExecJSON(execCtx)
	if err != nil {
		return false, err
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE checklist_items
		 SET status = 'in_progress', execution_context = $1, executed_at = $2, updated_at = $2
		 WHERE id = $3 AND status = 'pending'`,
		execJSON, at.UTC(), id,
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: mark item in progress %d", id)
	}
	return tag.RowsAffected() > 0, nil
}

// CompleteItem marks the item completed and recomputes the parent goal's
// progress, status and last_action_at in the same transaction. The goal
// update is a single statement so two sibling completions cannot interleave
// between the progress read and write.
func (s *PostgresStore) CompleteItem(ctx context.Context, id int64, notes string, execCtx map[string]any, at time.Time) (int, bool, error) {
	execJSON, err := marshalExecJSON(execCtx)
	if err != nil {
		return 0, false, err
	}

	var progress int
	var status string
	err = db.WithTx(ctx, s.pool, func(ctx context.Context, tx db.Tx) error {
		var goalID int64
		err := tx.QueryRow(ctx,
			`UPDATE checklist_items
			 SET status = 'completed', completion_notes = $1, execution_context = COALESCE($2, execution_context),
			     completed_at = $3, updated_at = $3
			 WHERE id = $4 AND status IN ('pending','in_progress')
			 RETURNING goal_id`,
			notes, execJSON, at.UTC(), id,
		).Scan(&goalID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return faults.NewNotFound("checklist_item", id)
			}
			return eris.Wrapf(err, "postgres: complete item %d", id)
		}

		err = tx.QueryRow(ctx,
			`UPDATE goals g
			 SET current_progress = sub.progress,
			     status = CASE WHEN sub.progress >= 100 THEN 'completed' ELSE g.status END,
			     completed_at = CASE WHEN sub.progress >= 100 AND g.completed_at IS NULL THEN $2 ELSE g.completed_at END,
			     last_action_at = $2,
			     updated_at = $2
			 FROM (
			   SELECT COALESCE(ROUND(100.0 * COUNT(*) FILTER (WHERE status = 'completed') / NULLIF(COUNT(*), 0)), 0)::int AS progress
			   FROM checklist_items WHERE goal_id = $1
			 ) sub
			 WHERE g.id = $1
			 RETURNING g.current_progress, g.status`,
			goalID, at.UTC(),
		).Scan(&progress, &status)
		if err != nil {
			return eris.Wrapf(err, "postgres: recompute goal progress %d", goalID)
		}
		return nil
	})
	if err != nil {
		return 0, false, err
	}
	return progress, status == string(model.GoalStatusCompleted), nil
}
