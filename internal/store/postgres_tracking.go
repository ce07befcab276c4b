package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/coaching-engine/internal/faults"
	"github.com/sells-group/coaching-engine/internal/model"
)

// InsertTracking appends one outcome record. Tracking rows are never updated.
func (s *PostgresStore) InsertTracking(ctx context.Context, rec *model.PatternSuccessTracking) (*model.PatternSuccessTracking, error) {
	if err := rec.Validate(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	stored := *rec
	err := s.pool.QueryRow(ctx,
		`INSERT INTO pattern_success_tracking
		 (pattern_id, contractor_id, goal_id, goal_completed, time_to_completion_days,
		  contractor_satisfaction, revenue_impact, outcome_notes, what_worked, what_didnt, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		 RETURNING id`,
		rec.PatternID, rec.ContractorID, rec.GoalID, rec.GoalCompleted, rec.TimeToCompletionDays,
		rec.ContractorSatisfaction, string(rec.RevenueImpact),
		nullIfEmpty(rec.OutcomeNotes), nullIfEmpty(rec.WhatWorked), nullIfEmpty(rec.WhatDidnt), now,
	).Scan(&stored.ID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert tracking")
	}
	stored.CreatedAt = now
	return &stored, nil
}

func (s *PostgresStore) ListTrackingByPattern(ctx context.Context, patternID int64) ([]model.PatternSuccessTracking, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, pattern_id, contractor_id, goal_id, goal_completed, time_to_completion_days,
		        contractor_satisfaction, revenue_impact, outcome_notes, what_worked, what_didnt, created_at
		 FROM pattern_success_tracking WHERE pattern_id = $1 ORDER BY created_at`,
		patternID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list tracking")
	}
	defer rows.Close()

	var records []model.PatternSuccessTracking
	for rows.Next() {
		var r model.PatternSuccessTracking
		var notes, worked, didnt *string
		if err := rows.Scan(
			&r.ID, &r.PatternID, &r.ContractorID, &r.GoalID, &r.GoalCompleted, &r.TimeToCompletionDays,
			&r.ContractorSatisfaction, &r.RevenueImpact, &notes, &worked, &didnt, &r.CreatedAt,
		); err != nil {
			return nil, eris.Wrap(err, "postgres: scan tracking")
		}
		if notes != nil {
			r.OutcomeNotes = *notes
		}
		if worked != nil {
			r.WhatWorked = *worked
		}
		if didnt != nil {
			r.WhatDidnt = *didnt
		}
		records = append(records, r)
	}
	return records, eris.Wrap(rows.Err(), "postgres: list tracking iterate")
}

// ListTrackedPatternIDs returns the ids of patterns with at least one
// tracking row, the working set of the library recompute batch.
func (s *PostgresStore) ListTrackedPatternIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT pattern_id FROM pattern_success_tracking ORDER BY pattern_id`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list tracked pattern ids")
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "postgres: scan tracked pattern id")
		}
		ids = append(ids, id)
	}
	return ids, eris.Wrap(rows.Err(), "postgres: list tracked pattern ids iterate")
}

const contractorColumns = `id, revenue_tier, team_size, focus_areas, current_stage,
	close_rate, lead_sources, sales_process, avg_job_size, crew_count,
	months_to_current_tier, milestones_achieved, partners_used, books_read,
	podcasts_followed, events_attended, created_at, updated_at`

func scanContractor(row pgx.Row) (*model.ContractorProfile, error) {
	var p model.ContractorProfile
	var focusJSON, leadsJSON, milestonesJSON, partnersJSON, booksJSON, podcastsJSON, eventsJSON []byte
	var salesProcess *string

	err := row.Scan(
		&p.ID, &p.RevenueTier, &p.TeamSize, &focusJSON, &p.CurrentStage,
		&p.CloseRate, &leadsJSON, &salesProcess, &p.AvgJobSize, &p.CrewCount,
		&p.MonthsToCurrentTier, &milestonesJSON, &partnersJSON, &booksJSON,
		&podcastsJSON, &eventsJSON, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if salesProcess != nil {
		p.SalesProcess = *salesProcess
	}
	for _, f := range []struct {
		data []byte
		dst  any
	}{
		{focusJSON, &p.FocusAreas},
		{leadsJSON, &p.LeadSources},
		{milestonesJSON, &p.MilestonesAchieved},
		{partnersJSON, &p.PartnersUsed},
		{booksJSON, &p.BooksRead},
		{podcastsJSON, &p.PodcastsFollowed},
		{eventsJSON, &p.EventsAttended},
	} {
		if len(f.data) == 0 {
			continue
		}
		if err := json.Unmarshal(f.data, f.dst); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal contractor field")
		}
	}
	return &p, nil
}

func (s *PostgresStore) GetContractorProfile(ctx context.Context, id int64) (*model.ContractorProfile, error) {
	p, err := scanContractor(s.pool.QueryRow(ctx,
		`SELECT `+contractorColumns+` FROM contractors WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, faults.NewNotFound("contractor", id)
		}
		return nil, eris.Wrapf(err, "postgres: get contractor %d", id)
	}
	return p, nil
}

func (s *PostgresStore) ListContractorsByTier(ctx context.Context, tier model.Tier) ([]model.ContractorProfile, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+contractorColumns+` FROM contractors WHERE revenue_tier = $1 ORDER BY id`,
		string(tier),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list contractors by tier")
	}
	defer rows.Close()

	var profiles []model.ContractorProfile
	for rows.Next() {
		p, err := scanContractor(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan contractor")
		}
		profiles = append(profiles, *p)
	}
	return profiles, eris.Wrap(rows.Err(), "postgres: list contractors iterate")
}
