// Package patterns scans a user's history for recurring behavior→outcome
// patterns: the historical matcher for anomalies and the positive miner for
// behaviors that precede good days.
package patterns

import (
	"context"
	"math"
	"time"

	"pulse-insights/baseline"
	models "pulse-insights/database/models_pkg"
	"pulse-insights/database/types"
	"pulse-insights/factors"
	"pulse-insights/helpers"
	"pulse-insights/metric"
)

// HistoryStore answers the range scans the scans need
type HistoryStore interface {
	GetDataSpan(ctx context.Context, userID string) (types.DataSpan, error)
	GetMetricSeries(ctx context.Context, userID, metricType string, from, to time.Time) ([]types.DateValue, error)
	GetFactorsInRange(ctx context.Context, userID string, from, to time.Time, keys []string) ([]models.BehaviorFactor, error)
}

// scanWindow returns the first outcome date to scan and the history length in months.
// History is clipped to lookbackMonths before asOf.
func scanWindow(span types.DataSpan, asOf time.Time, lookbackMonths int) (time.Time, float64) {
	asOf = helpers.DateOnly(asOf)
	start := helpers.DateOnly(span.First)
	if lookbackMonths > 0 {
		if earliest := asOf.AddDate(0, -lookbackMonths, 0); start.Before(earliest) {
			start = earliest
		}
	}
	return start, helpers.MonthsBetween(start, asOf)
}

// outcomeDay is one historical outcome value compared to its own trailing baseline
type outcomeDay struct {
	date         time.Time
	z            float64
	deviationPct float64
}

// outcomeHistory loads the outcome series and scores every day in [start, asOf).
// Each day's z-score comes from that day's own trailing baseline.
// A cancelled context stops the scan early and reports truncated.
func outcomeHistory(ctx context.Context, store HistoryStore, userID string, m metric.Type, start, asOf time.Time, windowDays int) ([]outcomeDay, bool, error) {
	series, err := store.GetMetricSeries(ctx, userID, string(m), helpers.AddDays(start, -windowDays), asOf)
	if err != nil {
		return nil, false, err
	}

	var days []outcomeDay
	for _, p := range series {
		d := helpers.DateOnly(p.Date)
		if d.Before(start) || !d.Before(asOf) {
			continue
		}
		if ctx.Err() != nil {
			return days, true, nil
		}

		b := baseline.FromSeries(series, d, windowDays)
		if b == nil {
			continue
		}

		dev := baseline.DeviationPct(p.Value, b.Mean)
		if metric.IsTemperature(m) {
			dev = p.Value - b.Mean
		}
		days = append(days, outcomeDay{date: d, z: baseline.ZScore(p.Value, b), deviationPct: dev})
	}
	return days, false, nil
}

// factorHistory indexes factors by date and key. Deviations come from
// enrichment when present, else from the factor's own trailing series.
type factorHistory struct {
	byDate map[time.Time]map[factors.Key]*models.BehaviorFactor
	series map[factors.Key][]types.DateValue
	window int
}

func loadFactorHistory(ctx context.Context, store HistoryStore, userID string, from, to time.Time, names []string, windowDays int) (*factorHistory, error) {
	fs, err := store.GetFactorsInRange(ctx, userID, helpers.AddDays(from, -windowDays), to, names)
	if err != nil {
		return nil, err
	}

	h := &factorHistory{
		byDate: make(map[time.Time]map[factors.Key]*models.BehaviorFactor),
		series: make(map[factors.Key][]types.DateValue),
		window: windowDays,
	}
	for i := range fs {
		f := &fs[i]
		k := factors.KeyOf(f)
		d := helpers.DateOnly(f.LocalDate)

		day, ok := h.byDate[d]
		if !ok {
			day = make(map[factors.Key]*models.BehaviorFactor)
			h.byDate[d] = day
		}
		day[k] = f

		if f.NumericValue != nil {
			h.series[k] = append(h.series[k], types.DateValue{Date: d, Value: *f.NumericValue})
		}
	}
	return h, nil
}

// factor returns the factor with key on date, or nil
func (h *factorHistory) factor(date time.Time, k factors.Key) *models.BehaviorFactor {
	return h.byDate[date][k]
}

// deviation returns the factor's deviation on date; ok is false when it has none
func (h *factorHistory) deviation(date time.Time, k factors.Key) (float64, bool) {
	f := h.factor(date, k)
	if f == nil {
		return 0, false
	}
	if f.DeviationFromBaselinePct != nil {
		return *f.DeviationFromBaselinePct, true
	}
	if f.NumericValue == nil {
		return 0, false
	}

	b := baseline.FromSeries(h.series[k], date, h.window)
	if b == nil {
		return 0, false
	}
	return baseline.DeviationPct(*f.NumericValue, b.Mean), true
}

// present reports whether a presence-style factor happened on date
func (h *factorHistory) present(date time.Time, k factors.Key) bool {
	f := h.factor(date, k)
	if f == nil {
		return false
	}
	if f.StringValue != nil {
		return *f.StringValue != ""
	}
	return f.NumericValue != nil && *f.NumericValue > 0
}

// keysOn returns every key recorded on date
func (h *factorHistory) keysOn(date time.Time) []factors.Key {
	day := h.byDate[date]
	keys := make([]factors.Key, 0, len(day))
	for k := range day {
		keys = append(keys, k)
	}
	return keys
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
