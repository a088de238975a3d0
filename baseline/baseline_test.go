package baseline

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	models "pulse-insights/database/models_pkg"
	"pulse-insights/database/memstore"
	"pulse-insights/database/types"
	"pulse-insights/factors"
	"pulse-insights/helpers"
	"pulse-insights/metric"
)

var asOf = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

func TestComputeMinimumSamples(t *testing.T) {
	for n := 0; n < 5; n++ {
		values := make([]float64, n)
		for i := range values {
			values[i] = float64(10 + i)
		}
		assert.Nil(t, Compute(values), "n=%d", n)
	}

	b := Compute([]float64{2, 4, 4, 4, 5, 5, 7, 9})
	require.NotNil(t, b)
	assert.InDelta(t, 5.0, b.Mean, 1e-9)
	assert.InDelta(t, 2.0, b.StdDev, 1e-9)
	assert.Equal(t, int64(8), b.SampleCount)
}

func TestComputeIgnoresNonFiniteValues(t *testing.T) {
	assert.Nil(t, Compute([]float64{1, 2, 3, 4, math.NaN(), math.Inf(1)}), "only four finite samples")

	b := Compute([]float64{2, 4, math.NaN(), 4, 4, 5, math.Inf(-1), 5, 7, 9})
	require.NotNil(t, b)
	assert.InDelta(t, 5.0, b.Mean, 1e-9)
	assert.InDelta(t, 2.0, b.StdDev, 1e-9)
	assert.Equal(t, int64(8), b.SampleCount)

	flat := Compute([]float64{0.1, 0.1, 0.1, 0.1, 0.1})
	require.NotNil(t, flat)
	assert.False(t, math.IsNaN(flat.StdDev))
	assert.InDelta(t, 0, flat.StdDev, 1e-12)
}

func TestBaselineExcludesEvaluationDate(t *testing.T) {
	store := memstore.New()
	for i := 1; i <= 30; i++ {
		store.AddMetric("u1", string(metric.RestingHeartRate), helpers.AddDays(asOf, -i), 58)
	}
	engine := NewEngine(store, 30)

	before, err := engine.ForMetric(context.Background(), "u1", metric.RestingHeartRate, asOf, 0)
	require.NoError(t, err)
	require.NotNil(t, before)

	store.AddMetric("u1", string(metric.RestingHeartRate), asOf, 500)

	after, err := engine.ForMetric(context.Background(), "u1", metric.RestingHeartRate, asOf, 0)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Equal(t, 58.0, after.Mean)
}

func TestFromSeriesWindowBounds(t *testing.T) {
	series := []types.DateValue{
		{Date: helpers.AddDays(asOf, -31), Value: 1000}, // outside window
		{Date: asOf, Value: 1000},                       // evaluation date
	}
	for i := 1; i <= 5; i++ {
		series = append(series, types.DateValue{Date: helpers.AddDays(asOf, -i), Value: 10})
	}
	series = append(series, types.DateValue{Date: helpers.AddDays(asOf, -30), Value: 10})

	b := FromSeries(series, asOf, 30)
	require.NotNil(t, b)
	assert.Equal(t, int64(6), b.SampleCount)
	assert.Equal(t, 10.0, b.Mean)
}

func TestDeviationSignConsistency(t *testing.T) {
	means := []float64{0.5, 1, 58, 1380, 2400}
	offsets := []float64{-100, -3, -0.01, 0, 0.01, 3, 100}
	for _, mean := range means {
		for _, off := range offsets {
			value := mean + off
			dev := DeviationPct(value, mean)
			assert.Equal(t, value > mean, dev > 0, "mean=%v value=%v", mean, value)
		}
	}
	assert.Equal(t, 0.0, DeviationPct(5, 0))
	assert.Equal(t, 0.0, DeviationPct(5, -2))
}

func TestEnrich(t *testing.T) {
	store := memstore.New()
	for i := 1; i <= 10; i++ {
		store.AddNumericFactor("u1", helpers.AddDays(asOf, -i), "nutrition", "protein_g", 100)
	}

	protein := 150.0
	caffeine := 200.0
	prior := 12.0
	location := "Lisbon"
	fs := []models.BehaviorFactor{
		{UserID: "u1", LocalDate: asOf, Category: "nutrition", FactorKey: "protein_g", NumericValue: &protein},
		{UserID: "u1", LocalDate: asOf, Category: "nutrition", FactorKey: "caffeine_mg", NumericValue: &caffeine},
		{UserID: "u1", LocalDate: asOf, Category: "environment", FactorKey: "location", StringValue: &location},
		{UserID: "u1", LocalDate: asOf, Category: "nutrition", FactorKey: "fat_g", NumericValue: &protein, DeviationFromBaselinePct: &prior},
	}

	n := NewEngine(store, 30).Enrich(context.Background(), fs)

	assert.Equal(t, 1, n)
	require.NotNil(t, fs[0].DeviationFromBaselinePct)
	assert.InDelta(t, 50.0, *fs[0].DeviationFromBaselinePct, 1e-9)
	assert.Equal(t, 100.0, *fs[0].BaselineValue)
	assert.True(t, fs[0].IsNotable)

	assert.Nil(t, fs[1].DeviationFromBaselinePct, "no history, no baseline")
	assert.Nil(t, fs[2].DeviationFromBaselinePct)
	assert.Equal(t, 12.0, *fs[3].DeviationFromBaselinePct, "enriched factors are immutable")
}

func TestEnrichStoreFailureLeavesFactorsUnenriched(t *testing.T) {
	store := memstore.New()
	store.FailOn("GetFactorSeries", errors.New("timeout"))

	v := 10.0
	fs := []models.BehaviorFactor{{UserID: "u1", LocalDate: asOf, Category: "nutrition", FactorKey: "fiber_g", NumericValue: &v}}

	assert.Equal(t, 0, NewEngine(store, 30).Enrich(context.Background(), fs))
	assert.False(t, fs[0].IsEnriched())
}

func TestBedtimeBaselinesAcrossMidnight(t *testing.T) {
	store := memstore.New()
	// 23:30 every night for a week
	for i := 1; i <= 7; i++ {
		store.AddNumericFactor("u1", helpers.AddDays(asOf, -i), "sleep_timing", "bedtime", 1410)
	}
	engine := NewEngine(store, 30)

	b, err := engine.ForFactor(context.Background(), "u1", factors.Key{Category: factors.CategorySleepTiming, Name: "bedtime"}, asOf, 0)
	require.NoError(t, err)
	require.NotNil(t, b)

	late := factors.Bedtime(time.Date(2024, 5, 2, 0, 30, 0, 0, time.UTC)).Float()
	assert.InDelta(t, 60, late-b.Mean, 1e-9)
	assert.Less(t, DeviationPct(late, b.Mean), 5.0)
}

// countingAggregator records how often the engine delegates to the store
type countingAggregator struct {
	*memstore.AggregatingStore
	factorCalls int
	metricCalls int
}

func (c *countingAggregator) AggregateFactor(ctx context.Context, userID, category, key string, from, to, exclude time.Time, minSamples int) (*types.Baseline, error) {
	c.factorCalls++
	return c.AggregatingStore.AggregateFactor(ctx, userID, category, key, from, to, exclude, minSamples)
}

func (c *countingAggregator) AggregateMetric(ctx context.Context, userID, metricType string, from, to, exclude time.Time, minSamples int) (*types.Baseline, error) {
	c.metricCalls++
	return c.AggregatingStore.AggregateMetric(ctx, userID, metricType, from, to, exclude, minSamples)
}

func TestAggregatorBaselineExcludesEvaluationDate(t *testing.T) {
	store := &countingAggregator{AggregatingStore: memstore.NewAggregating()}
	for i := 1; i <= 30; i++ {
		v := 55.0
		if i%2 == 0 {
			v = 61.0
		}
		store.AddMetric("u1", string(metric.RestingHeartRate), helpers.AddDays(asOf, -i), v)
	}
	// outside the window
	store.AddMetric("u1", string(metric.RestingHeartRate), helpers.AddDays(asOf, -31), 500)
	engine := NewEngine(store, 30)
	ctx := context.Background()

	before, err := engine.ForMetric(ctx, "u1", metric.RestingHeartRate, asOf, 0)
	require.NoError(t, err)
	require.NotNil(t, before)

	store.AddMetric("u1", string(metric.RestingHeartRate), asOf, 500)
	after, err := engine.ForMetric(ctx, "u1", metric.RestingHeartRate, asOf, 0)
	require.NoError(t, err)

	assert.Equal(t, 2, store.metricCalls)
	assert.Equal(t, before, after)
	assert.InDelta(t, 58.0, after.Mean, 1e-9)
	assert.InDelta(t, 3.0, after.StdDev, 1e-9)
	assert.Equal(t, int64(30), after.SampleCount)
}

func TestAggregatorBaselineMinimumSamples(t *testing.T) {
	store := &countingAggregator{AggregatingStore: memstore.NewAggregating()}
	engine := NewEngine(store, 30)
	key := factors.Key{Category: factors.CategoryNutrition, Name: "caffeine_mg"}
	ctx := context.Background()

	for i := 1; i <= 4; i++ {
		store.AddNumericFactor("u1", helpers.AddDays(asOf, -i), string(key.Category), key.Name, 100)
	}
	store.AddNumericFactor("u1", asOf, string(key.Category), key.Name, 100)

	b, err := engine.ForFactor(ctx, "u1", key, asOf, 0)
	require.NoError(t, err)
	assert.Nil(t, b, "four samples plus the evaluation date is not a baseline")

	store.AddNumericFactor("u1", helpers.AddDays(asOf, -5), string(key.Category), key.Name, 200)
	b, err = engine.ForFactor(ctx, "u1", key, asOf, 0)
	require.NoError(t, err)
	require.NotNil(t, b)
	assert.Equal(t, int64(5), b.SampleCount)
	assert.InDelta(t, 120.0, b.Mean, 1e-9)
	assert.Equal(t, 2, store.factorCalls)
}

func TestAggregatorFailureIsReturned(t *testing.T) {
	store := memstore.NewAggregating()
	store.FailOn("GetMetricSeries", errors.New("connection reset"))

	b, err := NewEngine(store, 30).ForMetric(context.Background(), "u1", metric.HRV, asOf, 0)
	assert.Error(t, err)
	assert.Nil(t, b)
}
