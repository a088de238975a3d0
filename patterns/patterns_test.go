package patterns

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pulse-insights/anomaly"
	"pulse-insights/attribution"
	"pulse-insights/database/memstore"
	"pulse-insights/factors"
	"pulse-insights/helpers"
	"pulse-insights/metric"
	"pulse-insights/settings"
)

var today = time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC)

const historyDays = 180

var eventDays = []int{40, 60, 80, 100, 120, 140, 160}

func dayAt(i int) time.Time {
	return helpers.AddDays(today, i-historyDays)
}

// seedHRV writes six months of HRV alternating 58/62, with eventValue on event days
func seedHRV(store *memstore.Store, eventValue float64) {
	events := make(map[int]bool)
	for _, i := range eventDays {
		events[i] = true
	}
	for i := 0; i < historyDays; i++ {
		v := 58.0
		if i%2 == 0 {
			v = 62
		}
		if events[i] {
			v = eventValue
		}
		store.AddMetric("u1", string(metric.HRV), dayAt(i), v)
	}
}

func alcoholBehavior(dir anomaly.Direction) []attribution.Behavior {
	return []attribution.Behavior{{Key: factors.Key{Category: factors.CategoryNutrition, Name: "alcohol_units"}, Direction: dir}}
}

func TestPatternConfidenceBound(t *testing.T) {
	months := []float64{0, 0.01, 0.5, 1, 6, 24, 120}
	for _, mo := range months {
		prev := -1.0
		for n := 0; n <= 500; n++ {
			c := PatternConfidence(n, mo)
			assert.GreaterOrEqual(t, c, 0.0)
			assert.LessOrEqual(t, c, 0.95)
			assert.GreaterOrEqual(t, c, prev, "monotonic in match count")
			prev = c
		}
	}
	assert.InDelta(t, 0.3+3*0.07+0.5*0.1, PatternConfidence(3, 6), 1e-9)
}

func TestFindMatchesRequiresOneMonthOfHistory(t *testing.T) {
	store := memstore.New()
	for i := 1; i <= 20; i++ {
		store.AddMetric("u1", string(metric.HRV), helpers.AddDays(today, -i), 60)
	}

	m := NewMatcher(store, settings.Static(settings.Defaults()), 30)
	got := m.FindMatches(context.Background(), "u1", today, metric.HRV, anomaly.Below, alcoholBehavior(anomaly.Above))

	assert.Equal(t, 0, got.MatchCount)
	assert.False(t, got.IsRecurring)
	assert.Less(t, got.TotalHistoryMonths, 1.0)
}

func TestFindMatchesRecurringPattern(t *testing.T) {
	store := memstore.New()
	seedHRV(store, 48)
	events := make(map[int]bool)
	for _, i := range eventDays {
		events[i] = true
	}
	for i := 0; i < historyDays; i++ {
		units := 1.0
		if events[i] {
			units = 4
		}
		store.AddNumericFactor("u1", dayAt(i), "nutrition", "alcohol_units", units)
	}

	m := NewMatcher(store, settings.Static(settings.Defaults()), 30)

	got := m.FindMatches(context.Background(), "u1", today, metric.HRV, anomaly.Below, alcoholBehavior(anomaly.Above))
	require.Equal(t, len(eventDays), got.MatchCount)
	assert.True(t, got.IsRecurring)
	assert.Len(t, got.MatchDates, len(eventDays))
	assert.Equal(t, dayAt(160), got.MatchDates[0], "most recent first")
	assert.InDelta(t, PatternConfidence(len(eventDays), helpers.MonthsBetween(dayAt(0), today)), got.PatternConfidence, 0.01)
	assert.Contains(t, got.Description, "higher alcohol preceded HRV below baseline 7 times")

	opposite := m.FindMatches(context.Background(), "u1", today, metric.HRV, anomaly.Below, alcoholBehavior(anomaly.Below))
	assert.Equal(t, 0, opposite.MatchCount)
	assert.Equal(t, 0.0, opposite.PatternConfidence)

	wrongOutcome := m.FindMatches(context.Background(), "u1", today, metric.HRV, anomaly.Above, alcoholBehavior(anomaly.Above))
	assert.Equal(t, 0, wrongOutcome.MatchCount)
}

func TestFindMatchesCancelledContextTruncates(t *testing.T) {
	store := memstore.New()
	seedHRV(store, 48)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	m := NewMatcher(store, settings.Static(settings.Defaults()), 30)
	got := m.FindMatches(ctx, "u1", today, metric.HRV, anomaly.Below, alcoholBehavior(anomaly.Above))

	assert.True(t, got.Truncated)
	assert.Equal(t, 0, got.MatchCount)
}

func seedSauna(store *memstore.Store, occurrences int) {
	for _, i := range eventDays[:occurrences] {
		store.AddNumericFactor("u1", dayAt(i), "recovery", "sauna_minutes", 20)
	}
}

func TestFindPositiveMinimumOccurrences(t *testing.T) {
	s := settings.Defaults()
	s.MinPositiveOccurrences = 5

	t.Run("four good days is not enough", func(t *testing.T) {
		store := memstore.New()
		seedHRV(store, 70)
		seedSauna(store, 4)

		got := NewMiner(store, settings.Static(s), 30).FindPositiveAsOf(context.Background(), "u1", metric.HRV, today, 0)
		assert.Empty(t, got)
	})

	t.Run("five good days is included", func(t *testing.T) {
		store := memstore.New()
		seedHRV(store, 70)
		seedSauna(store, 5)

		got := NewMiner(store, settings.Static(s), 30).FindPositiveAsOf(context.Background(), "u1", metric.HRV, today, 6)
		require.Len(t, got, 1)
		assert.Equal(t, []string{"recovery.sauna_minutes"}, got[0].BehaviorKeys)
		assert.Equal(t, 5, got[0].OccurrenceCount)
		assert.GreaterOrEqual(t, got[0].GoodDays, len(eventDays))
		assert.Equal(t, "sauna", got[0].BehaviorDescription)
		assert.Greater(t, got[0].OutcomeImprovement, 0.0)
		assert.LessOrEqual(t, got[0].Confidence, 0.95)
	})
}

func TestFindPositiveUsesClock(t *testing.T) {
	store := memstore.New()
	seedHRV(store, 70)
	seedSauna(store, 5)

	m := NewMiner(store, settings.Static(settings.Defaults()), 30)
	m.now = func() time.Time { return today }

	got := m.FindPositive(context.Background(), "u1", metric.HRV, 0)
	require.Len(t, got, 1)
}

func TestFindPositiveLowerIsBetter(t *testing.T) {
	store := memstore.New()
	for i := 0; i < historyDays; i++ {
		v := 57.0
		if i%2 == 0 {
			v = 59
		}
		store.AddMetric("u1", string(metric.RestingHeartRate), dayAt(i), v)
	}
	for _, i := range eventDays {
		store.AddMetric("u1", string(metric.RestingHeartRate), dayAt(i), 52)
		store.AddTextFactor("u1", dayAt(i), "life_event", "celebration", "birthday")
	}

	got := NewMiner(store, settings.Static(settings.Defaults()), 30).FindPositiveAsOf(context.Background(), "u1", metric.RestingHeartRate, today, 0)
	require.Len(t, got, 1)
	assert.Equal(t, []string{"life_event.celebration"}, got[0].BehaviorKeys)
}

func TestExcludeKeysIsExact(t *testing.T) {
	patterns := []PositivePattern{
		{BehaviorDescription: "sauna", BehaviorKeys: []string{"recovery.sauna_minutes"}},
		{BehaviorDescription: "higher protein", BehaviorKeys: []string{"nutrition.protein_g"}},
	}

	got := ExcludeKeys(patterns, []factors.Key{{Category: factors.CategoryRecovery, Name: "sauna_minutes"}})
	require.Len(t, got, 1)
	assert.Equal(t, "higher protein", got[0].BehaviorDescription)

	got = ExcludeKeys(patterns, []factors.Key{{Category: factors.CategoryRecovery, Name: "sauna"}})
	assert.Len(t, got, 2, "labels never match keys")

	got = ExcludeKeys(patterns, []factors.Key{{Category: factors.CategoryWorkout, Name: "sauna_minutes"}})
	assert.Len(t, got, 2, "category is part of the key")
}
