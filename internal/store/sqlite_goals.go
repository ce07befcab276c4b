package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/coaching-engine/internal/faults"
	"github.com/sells-group/coaching-engine/internal/model"
)

func (s *SQLiteStore) CreateGoal(ctx context.Context, g *model.Goal) (*model.Goal, error) {
	if g.Status == "" {
		g.Status = model.GoalStatusActive
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}

	gapsJSON, err := json.Marshal(emptyIfNil(g.DataGaps))
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal data gaps")
	}

	now := time.Now().UTC()
	stored := *g
	err = s.db.QueryRowContext(ctx,
		`INSERT INTO goals
		 (contractor_id, goal_type, description, target_milestone, next_milestone,
		  priority_score, current_progress, status, data_gaps, pattern_source,
		  pattern_confidence, trigger_condition, created_at, updated_at)
		 VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		 RETURNING id`,
		g.ContractorID, string(g.Type), g.Description, g.TargetMilestone, g.NextMilestone,
		g.PriorityScore, g.CurrentProgress, string(g.Status), string(gapsJSON), nullIfEmpty(g.PatternSource),
		g.PatternConfidence, nullIfEmpty(g.TriggerCondition), now, now,
	).Scan(&stored.ID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert goal")
	}
	stored.CreatedAt = now
	stored.UpdatedAt = now
	return &stored, nil
}

func (s *SQLiteStore) GetGoal(ctx context.Context, id int64) (*model.Goal, error) {
	g, err := scanGoal(s.db.QueryRowContext(ctx,
		`SELECT `+goalColumns+` FROM goals WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, faults.NewNotFound("goal", id)
		}
		return nil, eris.Wrapf(err, "sqlite: get goal %d", id)
	}
	return g, nil
}

func (s *SQLiteStore) ListGoalsByContractor(ctx context.Context, contractorID int64, status model.GoalStatus) ([]model.Goal, error) {
	query := `SELECT ` + goalColumns + ` FROM goals WHERE contractor_id = ?`
	args := []any{contractorID}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY priority_score DESC, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list goals")
	}
	defer rows.Close()

	var goals []model.Goal
	for rows.Next() {
		g, err := scanGoal(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan goal")
		}
		goals = append(goals, *g)
	}
	return goals, eris.Wrap(rows.Err(), "sqlite: list goals iterate")
}

func (s *SQLiteStore) CreateChecklistItem(ctx context.Context, item *model.ChecklistItem) (*model.ChecklistItem, error) {
	if item.Status == "" {
		item.Status = model.ItemStatusPending
	}
	if err := item.Validate(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	stored := *item
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO checklist_items
		 (goal_id, contractor_id, checklist_item, item_type, trigger_condition, status, source, created_at, updated_at)
		 VALUES (?,?,?,?,?,?,?,?,?)
		 RETURNING id`,
		item.GoalID, item.ContractorID, item.Text, string(item.Type), string(item.Trigger),
		string(item.Status), nullIfEmpty(item.Source), now, now,
	).Scan(&stored.ID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert checklist item")
	}
	stored.CreatedAt = now
	stored.UpdatedAt = now
	return &stored, nil
}

func (s *SQLiteStore) GetChecklistItem(ctx context.Context, id int64) (*model.ChecklistItem, error) {
	c, err := scanItem(s.db.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM checklist_items WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, faults.NewNotFound("checklist_item", id)
		}
		return nil, eris.Wrapf(err, "sqlite: get checklist item %d", id)
	}
	return c, nil
}

func (s *SQLiteStore) ListChecklistByGoal(ctx context.Context, goalID int64) ([]model.ChecklistItem, error) {
	return s.listItems(ctx,
		`SELECT `+itemColumns+` FROM checklist_items WHERE goal_id = ? ORDER BY id`, goalID)
}

func (s *SQLiteStore) ListPendingChecklist(ctx context.Context, contractorID int64) ([]model.ChecklistItem, error) {
	return s.listItems(ctx,
		`SELECT `+itemColumns+` FROM checklist_items WHERE contractor_id = ? AND status = 'pending' ORDER BY id`,
		contractorID)
}

func (s *SQLiteStore) listItems(ctx context.Context, query string, args ...any) ([]model.ChecklistItem, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list checklist items")
	}
	defer rows.Close()

	var items []model.ChecklistItem
	for rows.Next() {
		c, err := scanItem(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan checklist item")
		}
		items = append(items, *c)
	}
	return items, eris.Wrap(rows.Err(), "sqlite: list checklist items iterate")
}

func (s *SQLiteStore) MarkItemInProgress(ctx context.Context, id int64, execCtx map[string]any, at time.Time) (bool, error) {
	execJSON, err := marshalExecCtx(execCtx)
	if err != nil {
		return false, err
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE checklist_items
		 SET status = 'in_progress', execution_context = ?, executed_at = ?, updated_at = ?
		 WHERE id = ? AND status = 'pending'`,
		execJSON, at.UTC(), at.UTC(), id,
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: mark item in progress %d", id)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *SQLiteStore) CompleteItem(ctx context.Context, id int64, notes string, execCtx map[string]any, at time.Time) (int, bool, error) {
	execJSON, err := marshalExecCtx(execCtx)
	if err != nil {
		return 0, false, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, false, eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback()

	var goalID int64
	err = tx.QueryRowContext(ctx,
		`UPDATE checklist_items
		 SET status = 'completed', completion_notes = ?, execution_context = COALESCE(?, execution_context),
		     completed_at = ?, updated_at = ?
		 WHERE id = ? AND status IN ('pending','in_progress')
		 RETURNING goal_id`,
		notes, execJSON, at.UTC(), at.UTC(), id,
	).Scan(&goalID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, faults.NewNotFound("checklist_item", id)
		}
		return 0, false, eris.Wrapf(err, "sqlite: complete item %d", id)
	}

	var progress int
	var status string
	err = tx.QueryRowContext(ctx,
		`UPDATE goals
		 SET current_progress = (
		       SELECT CAST(COALESCE(ROUND(100.0 * SUM(status = 'completed') / COUNT(*)), 0) AS INTEGER)
		       FROM checklist_items WHERE goal_id = goals.id
		     ),
		     last_action_at = ?,
		     updated_at = ?
		 WHERE id = ?
		 RETURNING current_progress, status`,
		at.UTC(), at.UTC(), goalID,
	).Scan(&progress, &status)
	if err != nil {
		return 0, false, eris.Wrapf(err, "sqlite: recompute goal progress %d", goalID)
	}

	// Auto-completion is a second statement here; both run in one
	// transaction, so the pair is still atomic to other writers.
	if progress >= 100 && status != string(model.GoalStatusCompleted) {
		if _, err := tx.ExecContext(ctx,
			`UPDATE goals SET status = 'completed', completed_at = ?, updated_at = ? WHERE id = ?`,
			at.UTC(), at.UTC(), goalID,
		); err != nil {
			return 0, false, eris.Wrapf(err, "sqlite: auto-complete goal %d", goalID)
		}
		status = string(model.GoalStatusCompleted)
	}

	if err := tx.Commit(); err != nil {
		return 0, false, eris.Wrap(err, "sqlite: commit tx")
	}
	return progress, status == string(model.GoalStatusCompleted), nil
}
