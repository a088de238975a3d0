package quality

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"pulse-insights/attribution"
	"pulse-insights/metric"
	"pulse-insights/patterns"
)

func causes(contributions ...attribution.Contribution) []attribution.AttributedFactor {
	out := make([]attribution.AttributedFactor, 0, len(contributions))
	for _, c := range contributions {
		out = append(out, attribution.AttributedFactor{Contribution: c})
	}
	return out
}

func TestEvaluate(t *testing.T) {
	gate := NewGate()

	tests := []struct {
		name     string
		in       Input
		admitted bool
		reason   string
	}{
		{
			name:     "single cause and no pattern is rejected before scoring",
			in:       Input{Metric: metric.HRV, DeviationPct: -60, Causes: causes(attribution.ContributionHigh)},
			admitted: false,
			reason:   "insufficient evidence",
		},
		{
			name:     "low contribution causes do not count",
			in:       Input{Metric: metric.HRV, DeviationPct: -60, Causes: causes(attribution.ContributionLow, attribution.ContributionLow, attribution.ContributionLow)},
			admitted: false,
			reason:   "insufficient evidence",
		},
		{
			name: "strong pattern stands in for causes",
			in: Input{
				Metric: metric.HRV, DeviationPct: -40,
				Pattern: &patterns.HistoricalMatch{MatchCount: 4, PatternConfidence: 0.6},
			},
			admitted: true,
		},
		{
			name:     "below activity noise floor",
			in:       Input{Metric: metric.Steps, DeviationPct: -28, Causes: causes(attribution.ContributionHigh, attribution.ContributionHigh)},
			admitted: false,
			reason:   "noise floor",
		},
		{
			name:     "two significant causes and a large deviation",
			in:       Input{Metric: metric.DeepSleep, DeviationPct: -40, Causes: causes(attribution.ContributionHigh, attribution.ContributionMedium)},
			admitted: true,
		},
		{
			name:     "two causes with a small deviation score below the floor",
			in:       Input{Metric: metric.DeepSleep, DeviationPct: -21, Causes: causes(attribution.ContributionMedium, attribution.ContributionMedium)},
			admitted: false,
			reason:   "below 0.40",
		},
		{
			name:     "temperature below absolute floor",
			in:       Input{Metric: metric.TemperatureDeviation, DeviationPct: 0.2, Causes: causes(attribution.ContributionHigh, attribution.ContributionHigh)},
			admitted: false,
			reason:   "+0.2°C below noise floor",
		},
		{
			name:     "temperature magnitude is absolute",
			in:       Input{Metric: metric.TemperatureDeviation, DeviationPct: 1.2, Causes: causes(attribution.ContributionHigh, attribution.ContributionHigh)},
			admitted: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := gate.Evaluate(tt.in)
			assert.Equal(t, tt.admitted, d.Admitted, d.Reason)
			if tt.reason != "" {
				assert.Contains(t, d.Reason, tt.reason)
			} else {
				assert.Empty(t, d.Reason)
			}
			assert.GreaterOrEqual(t, d.Score, 0.0)
			assert.LessOrEqual(t, d.Score, 1.0)
		})
	}
}

func TestScoreTerms(t *testing.T) {
	in := Input{
		Metric:       metric.HRV,
		DeviationPct: -55,
		Causes:       causes(attribution.ContributionHigh, attribution.ContributionHigh, attribution.ContributionMedium, attribution.ContributionLow),
		Pattern:      &patterns.HistoricalMatch{MatchCount: 5, PatternConfidence: 0.8},
	}
	assert.InDelta(t, 1.0, Score(in), 1e-9)

	in.Pattern = nil
	in.Causes = causes(attribution.ContributionHigh)
	in.DeviationPct = 36
	assert.InDelta(t, 0.12+0.20, Score(in), 1e-9)
}

func TestScoreMonotonicInMatchCount(t *testing.T) {
	for _, conf := range []float64{0, 0.29, 0.3, 0.39, 0.4, 0.6, 0.95} {
		for _, dev := range []float64{10, 26, 40, 80} {
			for n := 0; n <= 3; n++ {
				prev := -1.0
				for matches := 0; matches <= 20; matches++ {
					in := Input{
						Metric:       metric.RestingHeartRate,
						DeviationPct: dev,
						Causes:       causes(repeat(attribution.ContributionHigh, n)...),
						Pattern:      &patterns.HistoricalMatch{MatchCount: matches, PatternConfidence: conf},
					}
					s := Score(in)
					assert.GreaterOrEqual(t, s, prev, "conf=%v dev=%v causes=%d matches=%d", conf, dev, n, matches)
					prev = s
				}
			}
		}
	}
}

func repeat(c attribution.Contribution, n int) []attribution.Contribution {
	out := make([]attribution.Contribution, n)
	for i := range out {
		out[i] = c
	}
	return out
}
