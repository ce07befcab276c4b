package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/coaching-engine/internal/faults"
	"github.com/sells-group/coaching-engine/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func validPattern() *model.Pattern {
	return &model.Pattern{
		FromTier:        model.Tier0To5M,
		ToTier:          model.Tier5To10M,
		Name:            "starter growth pattern",
		Type:            model.PatternTypeRevenueGrowth,
		SampleSize:      10,
		ConfidenceScore: 0.5,
	}
}

func TestPostgresStore_UpsertPattern_RejectsSmallSample(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	p := validPattern()
	p.SampleSize = 3
	_, _, err := s.UpsertPattern(context.Background(), p)
	require.Error(t, err)
	assert.True(t, faults.IsValidation(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

// upsertPatternArgs matches the 18 bind parameters of the pattern upsert.
func upsertPatternArgs() []any {
	args := make([]any, 18)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	return args
}

func TestPostgresStore_UpsertPattern_Insert(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	// Postgres truncates created_at to microseconds, so the returned value
	// never equals the nanosecond timestamp we bound; created must come from
	// the inserted column, not a timestamp comparison.
	truncated := time.Now().UTC().Truncate(time.Microsecond)
	mock.ExpectQuery(`INSERT INTO patterns`).
		WithArgs(upsertPatternArgs()...).
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at", "inserted"}).
			AddRow(int64(7), truncated, true))

	stored, created, err := s.UpsertPattern(context.Background(), validPattern())
	require.NoError(t, err)
	assert.Equal(t, int64(7), stored.ID)
	assert.True(t, created)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertPattern_Update(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	// Conflict update: xmax != 0, so created=false.
	earlier := time.Now().UTC().Add(-time.Hour)
	mock.ExpectQuery(`INSERT INTO patterns`).
		WithArgs(upsertPatternArgs()...).
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at", "inserted"}).
			AddRow(int64(7), earlier, false))

	stored, created, err := s.UpsertPattern(context.Background(), validPattern())
	require.NoError(t, err)
	assert.Equal(t, int64(7), stored.ID)
	assert.Equal(t, earlier, stored.CreatedAt)
	assert.False(t, created)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetPattern_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT .+ FROM patterns WHERE id = \$1`).
		WithArgs(int64(99)).
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetPattern(context.Background(), 99)
	require.Error(t, err)
	assert.True(t, faults.IsNotFound(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdatePatternConfidence_Range(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	err := s.UpdatePatternConfidence(context.Background(), 1, 1.2)
	require.Error(t, err)
	assert.True(t, faults.IsValidation(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdatePatternConfidence_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE patterns SET confidence_score`).
		WithArgs(0.6, pgxmock.AnyArg(), int64(42)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.UpdatePatternConfidence(context.Background(), 42, 0.6)
	require.Error(t, err)
	assert.True(t, faults.IsNotFound(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertMatch_RejectsBadScore(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	_, err := s.UpsertMatch(context.Background(), &model.ContractorPatternMatch{
		ContractorID: 1, PatternID: 2, MatchScore: 1.5,
	})
	require.Error(t, err)
	assert.True(t, faults.IsValidation(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertMatch_PreservesCounters(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	created := time.Now().UTC().Add(-time.Hour)
	mock.ExpectQuery(`INSERT INTO contractor_pattern_matches`).
		WithArgs(int64(1), int64(2), 0.8, "", "pending", pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows(
			[]string{"id", "pattern_result", "goals_generated", "checklist_items_generated", "created_at"}).
			AddRow(int64(5), "in_progress", 2, 9, created))

	stored, err := s.UpsertMatch(context.Background(), &model.ContractorPatternMatch{
		ContractorID: 1, PatternID: 2, MatchScore: 0.8,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(5), stored.ID)
	assert.Equal(t, model.PatternResultInProgress, stored.Result, "stored result survives re-application")
	assert.Equal(t, 2, stored.GoalsGenerated)
	assert.Equal(t, 9, stored.ChecklistItemsGenerated)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LatestMatch_NoRows(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`ORDER BY updated_at DESC LIMIT 1`).
		WithArgs(int64(3)).
		WillReturnError(pgx.ErrNoRows)

	m, err := s.LatestMatch(context.Background(), 3)
	require.NoError(t, err)
	assert.Nil(t, m, "never-matched contractor yields nil, not an error")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateMatchResult_RejectsUnknown(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	err := s.UpdateMatchResult(context.Background(), 1, model.PatternResult("abandoned"))
	require.Error(t, err)
	assert.True(t, faults.IsValidation(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateGoal_RejectsBadPriority(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	_, err := s.CreateGoal(context.Background(), &model.Goal{
		ContractorID: 1, Type: model.GoalTypeRevenueGrowth, PriorityScore: 11,
	})
	require.Error(t, err)
	assert.True(t, faults.IsValidation(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_MarkItemInProgress_Idempotent(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	// Already in_progress: zero rows updated, no error.
	mock.ExpectExec(`UPDATE checklist_items`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), int64(8)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	moved, err := s.MarkItemInProgress(context.Background(), 8, nil, time.Now())
	require.NoError(t, err)
	assert.False(t, moved)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CompleteItem_AutoCompletesGoal(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	at := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE checklist_items`).
		WithArgs("all done", pgxmock.AnyArg(), at, int64(4)).
		WillReturnRows(pgxmock.NewRows([]string{"goal_id"}).AddRow(int64(2)))
	mock.ExpectQuery(`UPDATE goals g`).
		WithArgs(int64(2), at).
		WillReturnRows(pgxmock.NewRows([]string{"current_progress", "status"}).AddRow(100, "completed"))
	mock.ExpectCommit()

	progress, completed, err := s.CompleteItem(context.Background(), 4, "all done", nil, at)
	require.NoError(t, err)
	assert.Equal(t, 100, progress)
	assert.True(t, completed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CompleteItem_AlreadyCompleted(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	at := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE checklist_items`).
		WithArgs("", pgxmock.AnyArg(), at, int64(4)).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	_, _, err := s.CompleteItem(context.Background(), 4, "", nil, at)
	require.Error(t, err)
	assert.True(t, faults.IsNotFound(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_InsertTracking_RejectsBadSatisfaction(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	bad := 7
	_, err := s.InsertTracking(context.Background(), &model.PatternSuccessTracking{
		PatternID: 1, ContractorID: 1,
		ContractorSatisfaction: &bad,
		RevenueImpact:          model.RevenueImpactPositive,
	})
	require.Error(t, err)
	assert.True(t, faults.IsValidation(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}
