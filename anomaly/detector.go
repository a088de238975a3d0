// Package anomaly flags outcome metrics that deviate from their trailing
// baseline and tags known multi-metric signatures.
package anomaly

import (
	"context"
	"log"
	"math"
	"time"

	"pulse-insights/baseline"
	"pulse-insights/database"
	"pulse-insights/helpers"
	"pulse-insights/metric"
	"pulse-insights/settings"
)

// Direction of a deviation relative to baseline
type Direction string

const (
	Above Direction = "above"
	Below Direction = "below"
)

// Sign returns +1 for above and -1 for below
func (d Direction) Sign() float64 {
	if d == Below {
		return -1
	}
	return 1
}

// Severity bucket of an anomaly
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityModerate Severity = "moderate"
	SeverityHigh     Severity = "high"
)

// Result is one detected anomaly. It is never mutated after detection.
type Result struct {
	UserID        string      `json:"user_id"`
	Metric        metric.Type `json:"metric_type"`
	Date          time.Time   `json:"local_date"`
	CurrentValue  float64     `json:"current_value"`
	BaselineValue float64     `json:"baseline_value"`

	// Percent for most metrics, absolute °C for temperature-deviation metrics
	DeviationPct float64 `json:"deviation_pct"`

	ZScore          float64   `json:"z_score"`
	Direction       Direction `json:"direction"`
	Severity        Severity  `json:"severity"`
	Fingerprint     string    `json:"pattern_fingerprint,omitempty"`
	ModelConfidence float64   `json:"model_confidence"`
	BaselineSamples int64     `json:"baseline_samples"`
}

// FormattedDeviation renders the deviation in the metric's own convention
func (r *Result) FormattedDeviation() string {
	return metric.FormatDeviation(r.Metric, r.DeviationPct)
}

// ValueStore answers point lookups of a metric
type ValueStore interface {
	GetMetricValue(ctx context.Context, userID, metricType string, date time.Time) (*float64, error)
}

// Detector compares metric values against their baselines
type Detector struct {
	store     ValueStore
	baselines *baseline.Engine
	settings  settings.Provider
}

// NewDetector creates a new anomaly detector
func NewDetector(store ValueStore, baselines *baseline.Engine, provider settings.Provider) *Detector {
	return &Detector{
		store:     store,
		baselines: baselines,
		settings:  provider,
	}
}

// measurement is a metric compared to its baseline, anomalous or not
type measurement struct {
	result  Result
	flagged bool
}

// Detect evaluates one metric on one date. It returns nil when the metric has
// no value, no baseline, or does not qualify as an anomaly. Fingerprints need
// the co-deviating metrics and are only assigned by DetectAll.
func (d *Detector) Detect(ctx context.Context, userID string, m metric.Type, date time.Time) (*Result, error) {
	s := d.settings.Get(ctx)
	meas, err := d.measure(ctx, userID, m, date, s)
	if err != nil || meas == nil || !meas.flagged {
		return nil, err
	}
	r := meas.result
	return &r, nil
}

// DetectAll evaluates every given metric and applies the fingerprint rule table.
// A metric that fails to load is logged and skipped.
func (d *Detector) DetectAll(ctx context.Context, userID string, date time.Time, metrics []metric.Type) []Result {
	s := d.settings.Get(ctx)

	measured := make(map[metric.Type]*measurement, len(metrics))
	for _, m := range metrics {
		meas, err := d.measure(ctx, userID, m, date, s)
		if err != nil {
			log.Printf("⚠️  Anomaly check for %s/%s skipped: %v", userID, m, err)
			continue
		}
		if meas != nil {
			measured[m] = meas
		}
	}

	ApplyFingerprints(measured)

	var out []Result
	for _, m := range metrics {
		if meas, ok := measured[m]; ok && meas.flagged {
			out = append(out, meas.result)
		}
	}
	return out
}

func (d *Detector) measure(ctx context.Context, userID string, m metric.Type, date time.Time, s settings.MLSettings) (*measurement, error) {
	date = helpers.DateOnly(date)

	value, err := d.store.GetMetricValue(ctx, userID, string(m), date)
	if err != nil {
		return nil, err
	}
	if value == nil {
		return nil, nil
	}

	b, err := d.baselines.ForMetric(ctx, userID, m, date, 0)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, nil
	}

	z := baseline.ZScore(*value, b)

	r := Result{
		UserID:          userID,
		Metric:          m,
		Date:            date,
		CurrentValue:    *value,
		BaselineValue:   b.Mean,
		ZScore:          z,
		Direction:       Above,
		BaselineSamples: b.SampleCount,
	}
	if *value <= b.Mean {
		r.Direction = Below
	}

	if metric.IsTemperature(m) {
		r.DeviationPct = *value - b.Mean
	} else {
		r.DeviationPct = baseline.DeviationPct(*value, b.Mean)
	}
	r.Severity = Classify(m, r.DeviationPct, z)
	r.ModelConfidence = ModelConfidence(math.Abs(z), s.AnomalyZScoreThreshold, b.SampleCount, d.baselines.WindowDays())

	flagged := math.Abs(z) >= s.AnomalyZScoreThreshold && r.ModelConfidence >= s.MinAnomalyConfidence
	if metric.IsTemperature(m) && math.Abs(r.DeviationPct) < database.TemperatureMinDeviationC {
		flagged = false
	}

	return &measurement{result: r, flagged: flagged}, nil
}

// Classify buckets a deviation. Percentage metrics take the stronger of the
// percentage and z conventions; temperature metrics use absolute °C only.
func Classify(m metric.Type, deviation, z float64) Severity {
	dev := math.Abs(deviation)

	if metric.IsTemperature(m) {
		switch {
		case dev >= database.TemperatureSeverityHighC:
			return SeverityHigh
		case dev >= database.TemperatureSeverityModerateC:
			return SeverityModerate
		}
		return SeverityLow
	}

	absZ := math.Abs(z)
	switch {
	case dev >= database.SeverityHighPct || absZ >= database.SeverityHighZ:
		return SeverityHigh
	case dev >= database.SeverityModeratePct || absZ >= database.SeverityModerateZ:
		return SeverityModerate
	}
	return SeverityLow
}

// ModelConfidence scores how far past the threshold the z-score sits. Any z at or
// past the threshold scores at least 0.5; the excess above that is scaled down
// when the baseline holds fewer samples than the window. The result is in [0, 1].
func ModelConfidence(absZ, threshold float64, samples int64, windowDays int) float64 {
	if threshold <= 0 || absZ < threshold {
		return 0
	}

	excess := math.Min(1, (absZ-threshold)/threshold)

	coverage := 1.0
	if windowDays > 0 {
		coverage = math.Min(1, float64(samples)/float64(windowDays))
	}
	sampleFactor := 0.7 + 0.3*coverage

	return 0.5 + 0.5*excess*sampleFactor
}
