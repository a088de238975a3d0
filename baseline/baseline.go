// Package baseline computes trailing-window statistics for factors and
// outcome metrics. The evaluation date is never part of its own baseline.
package baseline

import (
	"context"
	"log"
	"math"
	"time"

	"gonum.org/v1/gonum/stat"

	"pulse-insights/database"
	models "pulse-insights/database/models_pkg"
	"pulse-insights/database/types"
	"pulse-insights/factors"
	"pulse-insights/helpers"
	"pulse-insights/metric"
)

// Store answers range scans over the per-user daily series
type Store interface {
	GetFactorSeries(ctx context.Context, userID, category, key string, from, to time.Time) ([]types.DateValue, error)
	GetMetricSeries(ctx context.Context, userID, metricType string, from, to time.Time) ([]types.DateValue, error)
}

// Aggregator is implemented by stores that can compute the baseline server-side
type Aggregator interface {
	AggregateFactor(ctx context.Context, userID, category, key string, from, to, exclude time.Time, minSamples int) (*types.Baseline, error)
	AggregateMetric(ctx context.Context, userID, metricType string, from, to, exclude time.Time, minSamples int) (*types.Baseline, error)
}

// Engine computes baselines and enriches factors with their deviation
type Engine struct {
	store      Store
	windowDays int
}

// NewEngine creates a baseline engine; windowDays <= 0 uses the default window
func NewEngine(store Store, windowDays int) *Engine {
	if windowDays <= 0 {
		windowDays = database.BaselineWindowDays
	}
	return &Engine{store: store, windowDays: windowDays}
}

// WindowDays returns the engine's default window
func (e *Engine) WindowDays() int {
	return e.windowDays
}

// Window returns the half-open range [asOf - windowDays, asOf)
func Window(asOf time.Time, windowDays int) (from, to time.Time) {
	to = helpers.DateOnly(asOf)
	return helpers.AddDays(to, -windowDays), to
}

// ForFactor returns the factor's baseline as of a date, or nil when history is too thin
func (e *Engine) ForFactor(ctx context.Context, userID string, key factors.Key, asOf time.Time, windowDays int) (*types.Baseline, error) {
	if windowDays <= 0 {
		windowDays = e.windowDays
	}
	from, to := Window(asOf, windowDays)

	if agg, ok := e.store.(Aggregator); ok {
		return agg.AggregateFactor(ctx, userID, string(key.Category), key.Name, from, to, to, database.MinBaselineSamples)
	}

	series, err := e.store.GetFactorSeries(ctx, userID, string(key.Category), key.Name, from, to)
	if err != nil {
		return nil, err
	}
	return FromSeries(series, asOf, windowDays), nil
}

// ForMetric returns the metric's baseline as of a date, or nil when history is too thin
func (e *Engine) ForMetric(ctx context.Context, userID string, m metric.Type, asOf time.Time, windowDays int) (*types.Baseline, error) {
	if windowDays <= 0 {
		windowDays = e.windowDays
	}
	from, to := Window(asOf, windowDays)

	if agg, ok := e.store.(Aggregator); ok {
		return agg.AggregateMetric(ctx, userID, string(m), from, to, to, database.MinBaselineSamples)
	}

	series, err := e.store.GetMetricSeries(ctx, userID, string(m), from, to)
	if err != nil {
		return nil, err
	}
	return FromSeries(series, asOf, windowDays), nil
}

// FromSeries computes the baseline at asOf from a preloaded, date-ordered or unordered series.
// Only points in [asOf - windowDays, asOf) are used.
func FromSeries(series []types.DateValue, asOf time.Time, windowDays int) *types.Baseline {
	from, to := Window(asOf, windowDays)

	values := make([]float64, 0, windowDays)
	for _, p := range series {
		d := helpers.DateOnly(p.Date)
		if d.Before(from) || !d.Before(to) {
			continue
		}
		values = append(values, p.Value)
	}
	return Compute(values)
}

// Compute returns mean and population standard deviation, or nil below the minimum sample count.
// NaN and infinite values are ignored.
func Compute(values []float64) *types.Baseline {
	finite := make([]float64, 0, len(values))
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		finite = append(finite, v)
	}
	if len(finite) < database.MinBaselineSamples {
		return nil
	}

	mean, variance := stat.PopMeanVariance(finite, nil)
	return &types.Baseline{
		Mean:        mean,
		StdDev:      math.Sqrt(math.Max(0, variance)),
		SampleCount: int64(len(finite)),
	}
}

// DeviationPct returns the percentage deviation of value from mean; 0 when mean is not positive
func DeviationPct(value, mean float64) float64 {
	if mean <= 0 {
		return 0
	}
	return (value - mean) / mean * 100
}

// ZScore returns (value - mean) / max(stddev, epsilon)
func ZScore(value float64, b *types.Baseline) float64 {
	return (value - b.Mean) / math.Max(b.StdDev, database.StdDevEpsilon)
}

// IsNotable reports whether a factor deviation is large enough to be marked notable
func IsNotable(deviationPct float64) bool {
	return math.Abs(deviationPct) >= database.NotableDeviationPct
}

// Enrich sets deviation, baseline value and the notable flag on every numeric factor
// that has a baseline. Already-enriched factors are left untouched, as are factors
// without enough history. Returns the number of factors enriched.
func (e *Engine) Enrich(ctx context.Context, fs []models.BehaviorFactor) int {
	enriched := 0
	for i := range fs {
		f := &fs[i]
		if f.IsEnriched() || f.NumericValue == nil {
			continue
		}
		if ctx.Err() != nil {
			break
		}

		b, err := e.ForFactor(ctx, f.UserID, factors.KeyOf(f), f.LocalDate, 0)
		if err != nil {
			log.Printf("⚠️  Baseline unavailable for %s.%s (%s): %v", f.Category, f.FactorKey, f.UserID, err)
			continue
		}
		if b == nil {
			continue
		}

		dev := DeviationPct(*f.NumericValue, b.Mean)
		mean := b.Mean
		f.DeviationFromBaselinePct = &dev
		f.BaselineValue = &mean
		f.IsNotable = IsNotable(dev)
		enriched++
	}
	return enriched
}
