package cache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	models "pulse-insights/database/models_pkg"
)

func TestCooldownWithoutRedisIsDisabled(t *testing.T) {
	c := NewCooldownStore(nil)
	ctx := context.Background()

	ok, err := c.Claim(ctx, "u1", "hrv", 4*time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, time.Duration(0), c.Remaining(ctx, "u1", "hrv"))
}

func TestCooldownKey(t *testing.T) {
	assert.Equal(t, "insights:cooldown:u1:resting_heart_rate", CooldownKey("u1", "resting_heart_rate"))
}

func TestPublisherRefusesRejectedInsights(t *testing.T) {
	p := NewInsightPublisher(nil)
	err := p.Publish(context.Background(), &models.Insight{UserID: "u1", MetricType: "hrv"})
	assert.Error(t, err)
}

func TestInsightMessageForwardsRawJSON(t *testing.T) {
	fp := "recovery_deficit"
	in := &models.Insight{
		ID:          7,
		UserID:      "u1",
		LocalDate:   time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC),
		MetricType:  "hrv",
		Direction:   "below",
		Severity:    "high",
		Fingerprint: &fp,
		Causes:      `[{"category":"nutrition","key":"alcohol_units"}]`,
		Pattern:     "",
		Admitted:    true,
	}

	body, err := json.Marshal(NewInsightMessage(in))
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &decoded))
	assert.Equal(t, "2024-06-15", decoded["local_date"])
	assert.Equal(t, "recovery_deficit", decoded["pattern_fingerprint"])
	assert.Nil(t, decoded["pattern"])

	causes, ok := decoded["causes"].([]interface{})
	require.True(t, ok)
	assert.Len(t, causes, 1)
}
