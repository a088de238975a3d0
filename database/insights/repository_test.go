package insights

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pulse-insights/database"
	"pulse-insights/database/dbtest"
	models "pulse-insights/database/models_pkg"
)

func TestSaveInsightRerunKeepsPublishedFlag(t *testing.T) {
	db, rec, err := dbtest.Open()
	require.NoError(t, err)

	err = NewRepository(db).SaveInsight(context.Background(), &models.Insight{
		UserID:     "u1",
		LocalDate:  time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC),
		MetricType: "hrv",
		Direction:  "below",
		Severity:   "high",
		Admitted:   true,
		Causes:     "[]",
		Pattern:    "null",
		Positives:  "[]",
	})

	var dbErr *database.DBError
	require.True(t, errors.As(err, &dbErr))
	assert.Equal(t, "SaveInsight", dbErr.Operation)
	assert.Equal(t, "u1", dbErr.UserID)
	assert.ErrorIs(t, err, dbtest.ErrNoDatabase)

	stmt := rec.Last()
	assert.Contains(t, stmt, `"insights"`)
	assert.Contains(t, stmt, "DO UPDATE SET")
	assert.Contains(t, stmt, `"admitted"="excluded"."admitted"`)
	assert.Contains(t, stmt, `"run_id"="excluded"."run_id"`)
	assert.NotContains(t, stmt, `"published"="excluded"."published"`)
}

func TestInsightUpdateColumnsLeavePublishedAlone(t *testing.T) {
	assert.NotContains(t, insightUpdateColumns, "published")
	assert.Contains(t, insightUpdateColumns, "admitted")
	assert.Contains(t, insightUpdateColumns, "causes")
}
