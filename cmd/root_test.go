package main

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/coaching-engine/internal/faults"
)

func TestParseID(t *testing.T) {
	id, err := parseID("42", "contractor-id")
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	_, err = parseID("forty-two", "contractor-id")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "contractor-id")
}

func TestWriteErrorStatusMapping(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, faults.NewNotFound("contractor", 7))
	assert.Equal(t, 404, rec.Code)

	rec = httptest.NewRecorder()
	writeError(rec, faults.NewValidation("match_score", "0.0-1.0"))
	assert.Equal(t, 400, rec.Code)

	rec = httptest.NewRecorder()
	writeError(rec, assert.AnError)
	assert.Equal(t, 500, rec.Code)
}

func TestRootCommandTree(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"patterns", "match", "goals", "track", "recommend", "migrate", "serve"} {
		assert.True(t, names[want], "missing command %s", want)
	}
}
