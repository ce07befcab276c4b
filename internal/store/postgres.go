package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/coaching-engine/internal/db"
	"github.com/sells-group/coaching-engine/internal/faults"
	"github.com/sells-group/coaching-engine/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	// Apply pool sizing from config with sensible defaults.
	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Pool returns the underlying database pool for subsystems that need direct
// query access.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS contractors (
	id             BIGSERIAL PRIMARY KEY,
	revenue_tier   TEXT NOT NULL,
	team_size      INTEGER NOT NULL DEFAULT 0,
	focus_areas    JSONB NOT NULL DEFAULT '[]',
	current_stage  TEXT NOT NULL DEFAULT '',
	close_rate     DOUBLE PRECISION,
	lead_sources   JSONB,
	sales_process  TEXT,
	avg_job_size   DOUBLE PRECISION,
	crew_count     INTEGER,
	months_to_current_tier DOUBLE PRECISION,
	milestones_achieved    JSONB,
	partners_used          JSONB,
	books_read             JSONB,
	podcasts_followed      JSONB,
	events_attended        JSONB,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS patterns (
	id                  BIGSERIAL PRIMARY KEY,
	from_tier           TEXT NOT NULL,
	to_tier             TEXT NOT NULL,
	name                TEXT NOT NULL,
	description         TEXT NOT NULL DEFAULT '',
	pattern_type        TEXT NOT NULL,
	common_focus_areas  JSONB NOT NULL DEFAULT '[]',
	common_partners     JSONB NOT NULL DEFAULT '[]',
	common_milestones   JSONB NOT NULL DEFAULT '[]',
	common_books        JSONB NOT NULL DEFAULT '[]',
	common_podcasts     JSONB NOT NULL DEFAULT '[]',
	common_events       JSONB NOT NULL DEFAULT '[]',
	avg_months          DOUBLE PRECISION NOT NULL DEFAULT 0,
	median_months       DOUBLE PRECISION NOT NULL DEFAULT 0,
	fastest_months      DOUBLE PRECISION NOT NULL DEFAULT 0,
	success_indicators  JSONB NOT NULL DEFAULT '{}',
	confidence_score    DOUBLE PRECISION NOT NULL DEFAULT 0 CHECK (confidence_score >= 0 AND confidence_score <= 1),
	sample_size         INTEGER NOT NULL CHECK (sample_size >= 5),
	created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (from_tier, to_tier, pattern_type)
);

CREATE TABLE IF NOT EXISTS contractor_pattern_matches (
	id             BIGSERIAL PRIMARY KEY,
	contractor_id  BIGINT NOT NULL REFERENCES contractors(id),
	pattern_id     BIGINT NOT NULL REFERENCES patterns(id),
	match_score    DOUBLE PRECISION NOT NULL CHECK (match_score >= 0 AND match_score <= 1),
	match_reason   TEXT NOT NULL DEFAULT '',
	pattern_result TEXT NOT NULL DEFAULT 'pending' CHECK (pattern_result IN ('pending','in_progress','successful','unsuccessful')),
	goals_generated           INTEGER NOT NULL DEFAULT 0,
	checklist_items_generated INTEGER NOT NULL DEFAULT 0,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (contractor_id, pattern_id)
);

CREATE TABLE IF NOT EXISTS goals (
	id                 BIGSERIAL PRIMARY KEY,
	contractor_id      BIGINT NOT NULL REFERENCES contractors(id),
	goal_type          TEXT NOT NULL,
	description        TEXT NOT NULL DEFAULT '',
	target_milestone   TEXT NOT NULL DEFAULT '',
	next_milestone     TEXT NOT NULL DEFAULT '',
	priority_score     INTEGER NOT NULL CHECK (priority_score >= 1 AND priority_score <= 10),
	current_progress   INTEGER NOT NULL DEFAULT 0 CHECK (current_progress >= 0 AND current_progress <= 100),
	status             TEXT NOT NULL DEFAULT 'active' CHECK (status IN ('active','completed')),
	data_gaps          JSONB,
	pattern_source     TEXT,
	pattern_confidence DOUBLE PRECISION CHECK (pattern_confidence IS NULL OR (pattern_confidence >= 0 AND pattern_confidence <= 1)),
	trigger_condition  TEXT,
	last_action_at     TIMESTAMPTZ,
	completed_at       TIMESTAMPTZ,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS checklist_items (
	id                BIGSERIAL PRIMARY KEY,
	goal_id           BIGINT NOT NULL REFERENCES goals(id),
	contractor_id     BIGINT NOT NULL REFERENCES contractors(id),
	checklist_item    TEXT NOT NULL,
	item_type         TEXT NOT NULL CHECK (item_type IN ('data_collection','recommendation','content_recommendation')),
	trigger_condition TEXT NOT NULL CHECK (trigger_condition IN ('immediately','next_conversation','after_data_collected','post_event')),
	status            TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending','in_progress','completed')),
	source            TEXT,
	execution_context JSONB,
	completion_notes  TEXT,
	executed_at       TIMESTAMPTZ,
	completed_at      TIMESTAMPTZ,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS pattern_success_tracking (
	id                      BIGSERIAL PRIMARY KEY,
	pattern_id              BIGINT NOT NULL REFERENCES patterns(id),
	contractor_id           BIGINT NOT NULL REFERENCES contractors(id),
	goal_id                 BIGINT REFERENCES goals(id),
	goal_completed          BOOLEAN NOT NULL DEFAULT false,
	time_to_completion_days INTEGER CHECK (time_to_completion_days IS NULL OR time_to_completion_days > 0),
	contractor_satisfaction INTEGER CHECK (contractor_satisfaction IS NULL OR (contractor_satisfaction >= 1 AND contractor_satisfaction <= 5)),
	revenue_impact          TEXT NOT NULL CHECK (revenue_impact IN ('positive','neutral','negative','too_early')),
	outcome_notes           TEXT,
	what_worked             TEXT,
	what_didnt              TEXT,
	created_at              TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_contractors_tier ON contractors(revenue_tier);
CREATE INDEX IF NOT EXISTS idx_patterns_transition ON patterns(from_tier, to_tier);
CREATE INDEX IF NOT EXISTS idx_matches_contractor ON contractor_pattern_matches(contractor_id);
CREATE INDEX IF NOT EXISTS idx_matches_pattern ON contractor_pattern_matches(pattern_id);
CREATE INDEX IF NOT EXISTS idx_goals_contractor_status ON goals(contractor_id, status);
CREATE INDEX IF NOT EXISTS idx_items_goal ON checklist_items(goal_id);
CREATE INDEX IF NOT EXISTS idx_items_contractor_status ON checklist_items(contractor_id, status);
CREATE INDEX IF NOT EXISTS idx_tracking_pattern ON pattern_success_tracking(pattern_id);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// patternColumns is the column list every pattern read uses, in scan order.
const patternColumns = `id, from_tier, to_tier, name, description, pattern_type,
	common_focus_areas, common_partners, common_milestones,
	common_books, common_podcasts, common_events,
	avg_months, median_months, fastest_months, success_indicators,
	confidence_score, sample_size, created_at, updated_at`

func scanPattern(row pgx.Row) (*model.Pattern, error) {
	var p model.Pattern
	var focusJSON, partnersJSON, milestonesJSON, booksJSON, podcastsJSON, eventsJSON, indicatorsJSON []byte

	err := row.Scan(
		&p.ID, &p.FromTier, &p.ToTier, &p.Name, &p.Description, &p.Type,
		&focusJSON, &partnersJSON, &milestonesJSON,
		&booksJSON, &podcastsJSON, &eventsJSON,
		&p.AvgTimeToLevelUpMonths, &p.MedianTimeToLevelUpMonths, &p.FastestTimeMonths, &indicatorsJSON,
		&p.ConfidenceScore, &p.SampleSize, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	for _, f := range []struct {
		data []byte
		dst  any
	}{
		{focusJSON, &p.CommonFocusAreas},
		{partnersJSON, &p.CommonPartners},
		{milestonesJSON, &p.CommonMilestones},
		{booksJSON, &p.CommonBooks},
		{podcastsJSON, &p.CommonPodcasts},
		{eventsJSON, &p.CommonEvents},
		{indicatorsJSON, &p.SuccessIndicators},
	} {
		if len(f.data) == 0 {
			continue
		}
		if err := json.Unmarshal(f.data, f.dst); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal pattern field")
		}
	}
	return &p, nil
}

func marshalPatternFields(p *model.Pattern) (focus, partners, milestones, books, podcasts, events, indicators []byte, err error) {
	marshal := func(v any) []byte {
		if err != nil {
			return nil
		}
		var b []byte
		b, err = json.Marshal(v)
		return b
	}
	focus = marshal(emptyIfNil(p.CommonFocusAreas))
	partners = marshal(emptySliceIfNil(p.CommonPartners))
	milestones = marshal(emptyIfNil(p.CommonMilestones))
	books = marshal(emptySliceIfNil(p.CommonBooks))
	podcasts = marshal(emptySliceIfNil(p.CommonPodcasts))
	events = marshal(emptySliceIfNil(p.CommonEvents))
	indicators = marshal(p.SuccessIndicators)
	if err != nil {
		err = eris.Wrap(err, "postgres: marshal pattern field")
	}
	return
}

func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func emptySliceIfNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// UpsertPattern inserts or updates the pattern keyed by (from_tier, to_tier,
// pattern_type). Returns the stored pattern and whether a new row was created.
func (s *PostgresStore) UpsertPattern(ctx context.Context, p *model.Pattern) (*model.Pattern, bool, error) {
	if err := p.Validate(); err != nil {
		return nil, false, err
	}
	focus, partners, milestones, books, podcasts, events, indicators, err := marshalPatternFields(p)
	if err != nil {
		return nil, false, err
	}

	// xmax = 0 distinguishes a fresh insert from a conflict update; the
	// stored created_at is timestamptz (microseconds) and never compares
	// equal to a nanosecond now.
	now := time.Now().UTC()
	var id int64
	var createdAt time.Time
	var created bool
	err = s.pool.QueryRow(ctx,
		`INSERT INTO patterns
		 (from_tier, to_tier, name, description, pattern_type,
		  common_focus_areas, common_partners, common_milestones,
		  common_books, common_podcasts, common_events,
		  avg_months, median_months, fastest_months, success_indicators,
		  confidence_score, sample_size, created_at, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$18)
		 ON CONFLICT (from_tier, to_tier, pattern_type) DO UPDATE SET
		   name = $3, description = $4,
		   common_focus_areas = $6, common_partners = $7, common_milestones = $8,
		   common_books = $9, common_podcasts = $10, common_events = $11,
		   avg_months = $12, median_months = $13, fastest_months = $14,
		   success_indicators = $15, confidence_score = $16, sample_size = $17,
		   updated_at = $18
		 RETURNING id, created_at, (xmax = 0) AS inserted`,
		string(p.FromTier), string(p.ToTier), p.Name, p.Description, string(p.Type),
		focus, partners, milestones, books, podcasts, events,
		p.AvgTimeToLevelUpMonths, p.MedianTimeToLevelUpMonths, p.FastestTimeMonths, indicators,
		p.ConfidenceScore, p.SampleSize, now,
	).Scan(&id, &createdAt, &created)
	if err != nil {
		return nil, false, eris.Wrap(err, "postgres: upsert pattern")
	}

	stored := *p
	stored.ID = id
	stored.CreatedAt = createdAt
	stored.UpdatedAt = now
	return &stored, created, nil
}

func (s *PostgresStore) GetPattern(ctx context.Context, id int64) (*model.Pattern, error) {
	p, err := scanPattern(s.pool.QueryRow(ctx,
		`SELECT `+patternColumns+` FROM patterns WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, faults.NewNotFound("pattern", id)
		}
		return nil, eris.Wrapf(err, "postgres: get pattern %d", id)
	}
	return p, nil
}

func (s *PostgresStore) ListPatterns(ctx context.Context) ([]model.Pattern, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+patternColumns+` FROM patterns ORDER BY from_tier, to_tier`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list patterns")
	}
	defer rows.Close()

	var patterns []model.Pattern
	for rows.Next() {
		p, err := scanPattern(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan pattern")
		}
		patterns = append(patterns, *p)
	}
	return patterns, eris.Wrap(rows.Err(), "postgres: list patterns iterate")
}

func (s *PostgresStore) UpdatePatternConfidence(ctx context.Context, id int64, score float64) error {
	if score < 0 || score > 1 {
		return faults.NewValidation("confidence_score", "0.0-1.0")
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE patterns SET confidence_score = $1, updated_at = $2 WHERE id = $3`,
		score, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update pattern confidence %d", id)
	}
	if tag.RowsAffected() == 0 {
		return faults.NewNotFound("pattern", id)
	}
	return nil
}

const matchColumns = `id, contractor_id, pattern_id, match_score, match_reason, pattern_result,
	goals_generated, checklist_items_generated, created_at, updated_at`

func scanMatch(row pgx.Row) (*model.ContractorPatternMatch, error) {
	var m model.ContractorPatternMatch
	err := row.Scan(
		&m.ID, &m.ContractorID, &m.PatternID, &m.MatchScore, &m.MatchReason, &m.Result,
		&m.GoalsGenerated, &m.ChecklistItemsGenerated, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// UpsertMatch inserts or refreshes the single row for (contractor, pattern).
// Re-application updates score and reason without resetting counters.
func (s *PostgresStore) UpsertMatch(ctx context.Context, m *model.ContractorPatternMatch) (*model.ContractorPatternMatch, error) {
	if m.Result == "" {
		m.Result = model.PatternResultPending
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	stored := *m
	err := s.pool.QueryRow(ctx,
		`INSERT INTO contractor_pattern_matches
		 (contractor_id, pattern_id, match_score, match_reason, pattern_result, created_at, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$6)
		 ON CONFLICT (contractor_id, pattern_id) DO UPDATE SET
		   match_score = $3, match_reason = $4, updated_at = $6
		 RETURNING id, pattern_result, goals_generated, checklist_items_generated, created_at`,
		m.ContractorID, m.PatternID, m.MatchScore, m.MatchReason, string(m.Result), now,
	).Scan(&stored.ID, &stored.Result, &stored.GoalsGenerated, &stored.ChecklistItemsGenerated, &stored.CreatedAt)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: upsert match")
	}
	stored.UpdatedAt = now
	return &stored, nil
}

func (s *PostgresStore) GetMatch(ctx context.Context, id int64) (*model.ContractorPatternMatch, error) {
	m, err := scanMatch(s.pool.QueryRow(ctx,
		`SELECT `+matchColumns+` FROM contractor_pattern_matches WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, faults.NewNotFound("match", id)
		}
		return nil, eris.Wrapf(err, "postgres: get match %d", id)
	}
	return m, nil
}

func (s *PostgresStore) ListMatchesByContractor(ctx context.Context, contractorID int64) ([]model.ContractorPatternMatch, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+matchColumns+` FROM contractor_pattern_matches
		 WHERE contractor_id = $1 ORDER BY match_score DESC, id`,
		contractorID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list matches")
	}
	defer rows.Close()

	var matches []model.ContractorPatternMatch
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan match")
		}
		matches = append(matches, *m)
	}
	return matches, eris.Wrap(rows.Err(), "postgres: list matches iterate")
}

// LatestMatch returns the most recently updated match for a contractor, or
// nil when the contractor has never been matched.
func (s *PostgresStore) LatestMatch(ctx context.Context, contractorID int64) (*model.ContractorPatternMatch, error) {
	m, err := scanMatch(s.pool.QueryRow(ctx,
		`SELECT `+matchColumns+` FROM contractor_pattern_matches
		 WHERE contractor_id = $1 ORDER BY updated_at DESC LIMIT 1`,
		contractorID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: latest match")
	}
	return m, nil
}

func (s *PostgresStore) UpdateMatchResult(ctx context.Context, id int64, result model.PatternResult) error {
	if !result.Valid() {
		return faults.NewValidation("pattern_result", "pending|in_progress|successful|unsuccessful")
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE contractor_pattern_matches SET pattern_result = $1, updated_at = $2 WHERE id = $3`,
		string(result), time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update match result %d", id)
	}
	if tag.RowsAffected() == 0 {
		return faults.NewNotFound("match", id)
	}
	return nil
}

func (s *PostgresStore) AddMatchCounters(ctx context.Context, id int64, goals, items int) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE contractor_pattern_matches
		 SET goals_generated = goals_generated + $1,
		     checklist_items_generated = checklist_items_generated + $2,
		     updated_at = $3
		 WHERE id = $4`,
		goals, items, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: add match counters %d", id)
	}
	if tag.RowsAffected() == 0 {
		return faults.NewNotFound("match", id)
	}
	return nil
}
