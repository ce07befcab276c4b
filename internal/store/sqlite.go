package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/coaching-engine/internal/faults"
	"github.com/sells-group/coaching-engine/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. It exists for local
// development and tests; production runs on postgres.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	sdb, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := sdb.Exec(pragma); err != nil {
			sdb.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: sdb}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS contractors (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	revenue_tier   TEXT NOT NULL,
	team_size      INTEGER NOT NULL DEFAULT 0,
	focus_areas    TEXT NOT NULL DEFAULT '[]',
	current_stage  TEXT NOT NULL DEFAULT '',
	close_rate     REAL,
	lead_sources   TEXT,
	sales_process  TEXT,
	avg_job_size   REAL,
	crew_count     INTEGER,
	months_to_current_tier REAL,
	milestones_achieved    TEXT,
	partners_used          TEXT,
	books_read             TEXT,
	podcasts_followed      TEXT,
	events_attended        TEXT,
	created_at     DATETIME NOT NULL,
	updated_at     DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS patterns (
	id                  INTEGER PRIMARY KEY AUTOINCREMENT,
	from_tier           TEXT NOT NULL,
	to_tier             TEXT NOT NULL,
	name                TEXT NOT NULL,
	description         TEXT NOT NULL DEFAULT '',
	pattern_type        TEXT NOT NULL,
	common_focus_areas  TEXT NOT NULL DEFAULT '[]',
	common_partners     TEXT NOT NULL DEFAULT '[]',
	common_milestones   TEXT NOT NULL DEFAULT '[]',
	common_books        TEXT NOT NULL DEFAULT '[]',
	common_podcasts     TEXT NOT NULL DEFAULT '[]',
	common_events       TEXT NOT NULL DEFAULT '[]',
	avg_months          REAL NOT NULL DEFAULT 0,
	median_months       REAL NOT NULL DEFAULT 0,
	fastest_months      REAL NOT NULL DEFAULT 0,
	success_indicators  TEXT NOT NULL DEFAULT '{}',
	confidence_score    REAL NOT NULL DEFAULT 0 CHECK (confidence_score >= 0 AND confidence_score <= 1),
	sample_size         INTEGER NOT NULL CHECK (sample_size >= 5),
	created_at          DATETIME NOT NULL,
	updated_at          DATETIME NOT NULL,
	UNIQUE (from_tier, to_tier, pattern_type)
);

CREATE TABLE IF NOT EXISTS contractor_pattern_matches (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	contractor_id  INTEGER NOT NULL REFERENCES contractors(id),
	pattern_id     INTEGER NOT NULL REFERENCES patterns(id),
	match_score    REAL NOT NULL CHECK (match_score >= 0 AND match_score <= 1),
	match_reason   TEXT NOT NULL DEFAULT '',
	pattern_result TEXT NOT NULL DEFAULT 'pending' CHECK (pattern_result IN ('pending','in_progress','successful','unsuccessful')),
	goals_generated           INTEGER NOT NULL DEFAULT 0,
	checklist_items_generated INTEGER NOT NULL DEFAULT 0,
	created_at     DATETIME NOT NULL,
	updated_at     DATETIME NOT NULL,
	UNIQUE (contractor_id, pattern_id)
);

CREATE TABLE IF NOT EXISTS goals (
	id                 INTEGER PRIMARY KEY AUTOINCREMENT,
	contractor_id      INTEGER NOT NULL REFERENCES contractors(id),
	goal_type          TEXT NOT NULL,
	description        TEXT NOT NULL DEFAULT '',
	target_milestone   TEXT NOT NULL DEFAULT '',
	next_milestone     TEXT NOT NULL DEFAULT '',
	priority_score     INTEGER NOT NULL CHECK (priority_score >= 1 AND priority_score <= 10),
	current_progress   INTEGER NOT NULL DEFAULT 0 CHECK (current_progress >= 0 AND current_progress <= 100),
	status             TEXT NOT NULL DEFAULT 'active' CHECK (status IN ('active','completed')),
	data_gaps          TEXT,
	pattern_source     TEXT,
	pattern_confidence REAL CHECK (pattern_confidence IS NULL OR (pattern_confidence >= 0 AND pattern_confidence <= 1)),
	trigger_condition  TEXT,
	last_action_at     DATETIME,
	completed_at       DATETIME,
	created_at         DATETIME NOT NULL,
	updated_at         DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS checklist_items (
	id                INTEGER PRIMARY KEY AUTOINCREMENT,
	goal_id           INTEGER NOT NULL REFERENCES goals(id),
	contractor_id     INTEGER NOT NULL REFERENCES contractors(id),
	checklist_item    TEXT NOT NULL,
	item_type         TEXT NOT NULL CHECK (item_type IN ('data_collection','recommendation','content_recommendation')),
	trigger_condition TEXT NOT NULL CHECK (trigger_condition IN ('immediately','next_conversation','after_data_collected','post_event')),
	status            TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending','in_progress','completed')),
	source            TEXT,
	execution_context TEXT,
	completion_notes  TEXT,
	executed_at       DATETIME,
	completed_at      DATETIME,
	created_at        DATETIME NOT NULL,
	updated_at        DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS pattern_success_tracking (
	id                      INTEGER PRIMARY KEY AUTOINCREMENT,
	pattern_id              INTEGER NOT NULL REFERENCES patterns(id),
	contractor_id           INTEGER NOT NULL REFERENCES contractors(id),
	goal_id                 INTEGER REFERENCES goals(id),
	goal_completed          INTEGER NOT NULL DEFAULT 0,
	time_to_completion_days INTEGER CHECK (time_to_completion_days IS NULL OR time_to_completion_days > 0),
	contractor_satisfaction INTEGER CHECK (contractor_satisfaction IS NULL OR (contractor_satisfaction >= 1 AND contractor_satisfaction <= 5)),
	revenue_impact          TEXT NOT NULL CHECK (revenue_impact IN ('positive','neutral','negative','too_early')),
	outcome_notes           TEXT,
	what_worked             TEXT,
	what_didnt              TEXT,
	created_at              DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_contractors_tier ON contractors(revenue_tier);
CREATE INDEX IF NOT EXISTS idx_patterns_transition ON patterns(from_tier, to_tier);
CREATE INDEX IF NOT EXISTS idx_matches_contractor ON contractor_pattern_matches(contractor_id);
CREATE INDEX IF NOT EXISTS idx_goals_contractor_status ON goals(contractor_id, status);
CREATE INDEX IF NOT EXISTS idx_items_goal ON checklist_items(goal_id);
CREATE INDEX IF NOT EXISTS idx_items_contractor_status ON checklist_items(contractor_id, status);
CREATE INDEX IF NOT EXISTS idx_tracking_pattern ON pattern_success_tracking(pattern_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) UpsertPattern(ctx context.Context, p *model.Pattern) (*model.Pattern, bool, error) {
	if err := p.Validate(); err != nil {
		return nil, false, err
	}
	focus, partners, milestones, books, podcasts, events, indicators, err := marshalPatternFields(p)
	if err != nil {
		return nil, false, err
	}

	now := time.Now().UTC()
	var id int64
	var createdAt time.Time
	err = s.db.QueryRowContext(ctx,
		`INSERT INTO patterns
		 (from_tier, to_tier, name, description, pattern_type,
		  common_focus_areas, common_partners, common_milestones,
		  common_books, common_podcasts, common_events,
		  avg_months, median_months, fastest_months, success_indicators,
		  confidence_score, sample_size, created_at, updated_at)
		 VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		 ON CONFLICT (from_tier, to_tier, pattern_type) DO UPDATE SET
		   name = excluded.name, description = excluded.description,
		   common_focus_areas = excluded.common_focus_areas,
		   common_partners = excluded.common_partners,
		   common_milestones = excluded.common_milestones,
		   common_books = excluded.common_books,
		   common_podcasts = excluded.common_podcasts,
		   common_events = excluded.common_events,
		   avg_months = excluded.avg_months,
		   median_months = excluded.median_months,
		   fastest_months = excluded.fastest_months,
		   success_indicators = excluded.success_indicators,
		   confidence_score = excluded.confidence_score,
		   sample_size = excluded.sample_size,
		   updated_at = excluded.updated_at
		 RETURNING id, created_at`,
		string(p.FromTier), string(p.ToTier), p.Name, p.Description, string(p.Type),
		string(focus), string(partners), string(milestones), string(books), string(podcasts), string(events),
		p.AvgTimeToLevelUpMonths, p.MedianTimeToLevelUpMonths, p.FastestTimeMonths, string(indicators),
		p.ConfidenceScore, p.SampleSize, now, now,
	).Scan(&id, &createdAt)
	if err != nil {
		return nil, false, eris.Wrap(err, "sqlite: upsert pattern")
	}

	stored := *p
	stored.ID = id
	stored.CreatedAt = createdAt
	stored.UpdatedAt = now
	return &stored, createdAt.Equal(now), nil
}

func (s *SQLiteStore) GetPattern(ctx context.Context, id int64) (*model.Pattern, error) {
	p, err := scanPattern(s.db.QueryRowContext(ctx,
		`SELECT `+patternColumns+` FROM patterns WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, faults.NewNotFound("pattern", id)
		}
		return nil, eris.Wrapf(err, "sqlite: get pattern %d", id)
	}
	return p, nil
}

func (s *SQLiteStore) ListPatterns(ctx context.Context) ([]model.Pattern, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+patternColumns+` FROM patterns ORDER BY from_tier, to_tier`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list patterns")
	}
	defer rows.Close()

	var patterns []model.Pattern
	for rows.Next() {
		p, err := scanPattern(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan pattern")
		}
		patterns = append(patterns, *p)
	}
	return patterns, eris.Wrap(rows.Err(), "sqlite: list patterns iterate")
}

func (s *SQLiteStore) UpdatePatternConfidence(ctx context.Context, id int64, score float64) error {
	if score < 0 || score > 1 {
		return faults.NewValidation("confidence_score", "0.0-1.0")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE patterns SET confidence_score = ?, updated_at = ? WHERE id = ?`,
		score, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update pattern confidence %d", id)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return faults.NewNotFound("pattern", id)
	}
	return nil
}

func (s *SQLiteStore) UpsertMatch(ctx context.Context, m *model.ContractorPatternMatch) (*model.ContractorPatternMatch, error) {
	if m.Result == "" {
		m.Result = model.PatternResultPending
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	stored := *m
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO contractor_pattern_matches
		 (contractor_id, pattern_id, match_score, match_reason, pattern_result, created_at, updated_at)
		 VALUES (?,?,?,?,?,?,?)
		 ON CONFLICT (contractor_id, pattern_id) DO UPDATE SET
		   match_score = excluded.match_score, match_reason = excluded.match_reason, updated_at = excluded.updated_at
		 RETURNING id, pattern_result, goals_generated, checklist_items_generated, created_at`,
		m.ContractorID, m.PatternID, m.MatchScore, m.MatchReason, string(m.Result), now, now,
	).Scan(&stored.ID, &stored.Result, &stored.GoalsGenerated, &stored.ChecklistItemsGenerated, &stored.CreatedAt)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: upsert match")
	}
	stored.UpdatedAt = now
	return &stored, nil
}

func (s *SQLiteStore) GetMatch(ctx context.Context, id int64) (*model.ContractorPatternMatch, error) {
	m, err := scanMatch(s.db.QueryRowContext(ctx,
		`SELECT `+matchColumns+` FROM contractor_pattern_matches WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, faults.NewNotFound("match", id)
		}
		return nil, eris.Wrapf(err, "sqlite: get match %d", id)
	}
	return m, nil
}

func (s *SQLiteStore) ListMatchesByContractor(ctx context.Context, contractorID int64) ([]model.ContractorPatternMatch, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+matchColumns+` FROM contractor_pattern_matches
		 WHERE contractor_id = ? ORDER BY match_score DESC, id`,
		contractorID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list matches")
	}
	defer rows.Close()

	var matches []model.ContractorPatternMatch
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan match")
		}
		matches = append(matches, *m)
	}
	return matches, eris.Wrap(rows.Err(), "sqlite: list matches iterate")
}

func (s *SQLiteStore) LatestMatch(ctx context.Context, contractorID int64) (*model.ContractorPatternMatch, error) {
	m, err := scanMatch(s.db.QueryRowContext(ctx,
		`SELECT `+matchColumns+` FROM contractor_pattern_matches
		 WHERE contractor_id = ? ORDER BY updated_at DESC LIMIT 1`,
		contractorID,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "sqlite: latest match")
	}
	return m, nil
}

func (s *SQLiteStore) UpdateMatchResult(ctx context.Context, id int64, result model.PatternResult) error {
	if !result.Valid() {
		return faults.NewValidation("pattern_result", "pending|in_progress|successful|unsuccessful")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE contractor_pattern_matches SET pattern_result = ?, updated_at = ? WHERE id = ?`,
		string(result), time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update match result %d", id)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return faults.NewNotFound("match", id)
	}
	return nil
}

func (s *SQLiteStore) AddMatchCounters(ctx context.Context, id int64, goals, items int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE contractor_pattern_matches
		 SET goals_generated = goals_generated + ?,
		     checklist_items_generated = checklist_items_generated + ?,
		     updated_at = ?
		 WHERE id = ?`,
		goals, items, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: add match counters %d", id)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return faults.NewNotFound("match", id)
	}
	return nil
}

func (s *SQLiteStore) InsertTracking(ctx context.Context, rec *model.PatternSuccessTracking) (*model.PatternSuccessTracking, error) {
	if err := rec.Validate(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	stored := *rec
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO pattern_success_tracking
		 (pattern_id, contractor_id, goal_id, goal_completed, time_to_completion_days,
		  contractor_satisfaction, revenue_impact, outcome_notes, what_worked, what_didnt, created_at)
		 VALUES (?,?,?,?,?,?,?,?,?,?,?)
		 RETURNING id`,
		rec.PatternID, rec.ContractorID, rec.GoalID, rec.GoalCompleted, rec.TimeToCompletionDays,
		rec.ContractorSatisfaction, string(rec.RevenueImpact),
		nullIfEmpty(rec.OutcomeNotes), nullIfEmpty(rec.WhatWorked), nullIfEmpty(rec.WhatDidnt), now,
	).Scan(&stored.ID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert tracking")
	}
	stored.CreatedAt = now
	return &stored, nil
}

func (s *SQLiteStore) ListTrackingByPattern(ctx context.Context, patternID int64) ([]model.PatternSuccessTracking, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, pattern_id, contractor_id, goal_id, goal_completed, time_to_completion_days,
		        contractor_satisfaction, revenue_impact, outcome_notes, what_worked, what_didnt, created_at
		 FROM pattern_success_tracking WHERE pattern_id = ? ORDER BY created_at`,
		patternID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list tracking")
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
			return nil, eris.Wrap(err, "sqlite: scan tracking")
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
	return records, eris.Wrap(rows.Err(), "sqlite: list tracking iterate")
}

func (s *SQLiteStore) ListTrackedPatternIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT pattern_id FROM pattern_success_tracking ORDER BY pattern_id`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list tracked pattern ids")
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan tracked pattern id")
		}
		ids = append(ids, id)
	}
	return ids, eris.Wrap(rows.Err(), "sqlite: list tracked pattern ids iterate")
}

func (s *SQLiteStore) GetContractorProfile(ctx context.Context, id int64) (*model.ContractorProfile, error) {
	p, err := scanContractor(s.db.QueryRowContext(ctx,
		`SELECT `+contractorColumns+` FROM contractors WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, faults.NewNotFound("contractor", id)
		}
		return nil, eris.Wrapf(err, "sqlite: get contractor %d", id)
	}
	return p, nil
}

func (s *SQLiteStore) ListContractorsByTier(ctx context.Context, tier model.Tier) ([]model.ContractorProfile, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+contractorColumns+` FROM contractors WHERE revenue_tier = ? ORDER BY id`,
		string(tier),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list contractors by tier")
	}
	defer rows.Close()

	var profiles []model.ContractorProfile
	for rows.Next() {
		p, err := scanContractor(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan contractor")
		}
		profiles = append(profiles, *p)
	}
	return profiles, eris.Wrap(rows.Err(), "sqlite: list contractors iterate")
}

// marshalExecCtx renders an execution context for a TEXT column, keeping
// SQL NULL for an absent context.
func marshalExecCtx(execCtx map[string]any) (*string, error) {
	if execCtx == nil {
		return nil, nil
	}
	b, err := json.Marshal(execCtx)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal execution context")
	}
	s := string(b)
	return &s, nil
}
