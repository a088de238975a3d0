// Package quality decides whether an attribution is strong enough to surface.
// Hard pre-filters run first; survivors are scored and admitted at a fixed floor.
package quality

import (
	"fmt"
	"math"

	"pulse-insights/attribution"
	"pulse-insights/database"
	"pulse-insights/metric"
	"pulse-insights/patterns"
)

// Temperature magnitude tiers, absolute °C
const (
	temperatureMagnitudeFullC    = 1.0
	temperatureMagnitudePartialC = 0.6
	temperatureMagnitudeMinimalC = 0.4
)

// Magnitude tiers, percent deviation
const (
	magnitudeFullPct    = 50.0
	magnitudePartialPct = 35.0
	magnitudeMinimalPct = 25.0
)

// Input is everything the gate looks at for one anomaly
type Input struct {
	Metric       metric.Type
	DeviationPct float64 // percent, or absolute °C for temperature metrics
	Causes       []attribution.AttributedFactor
	Pattern      *patterns.HistoricalMatch
}

func (in Input) matchCount() int {
	if in.Pattern == nil {
		return 0
	}
	return in.Pattern.MatchCount
}

func (in Input) patternConfidence() float64 {
	if in.Pattern == nil {
		return 0
	}
	return in.Pattern.PatternConfidence
}

// Decision is the gate's verdict with its score breakdown
type Decision struct {
	Admitted bool    `json:"admitted"`
	Score    float64 `json:"score"`
	Reason   string  `json:"reason,omitempty"`

	CausesTerm    float64 `json:"causes_term"`
	PatternTerm   float64 `json:"pattern_term"`
	MagnitudeTerm float64 `json:"magnitude_term"`
}

// Gate admits or rejects insights
type Gate struct {
	floor float64
}

// NewGate creates a gate with the standard admit floor
func NewGate() *Gate {
	return &Gate{floor: database.QualityAdmitFloor}
}

// Evaluate applies the pre-filters, then the composite score
func (g *Gate) Evaluate(in Input) Decision {
	d := Decision{
		CausesTerm:    causesTerm(in),
		PatternTerm:   patternTerm(in),
		MagnitudeTerm: magnitudeTerm(in),
	}
	d.Score = clamp01(d.CausesTerm + d.PatternTerm + d.MagnitudeTerm)

	significant := attribution.CountSignificant(in.Causes)
	if significant < database.QualityMinSignificant && !HasStrongPattern(in.Pattern) {
		d.Reason = fmt.Sprintf("insufficient evidence: %d significant causes and no strong historical pattern", significant)
		return d
	}

	if floor := metric.NoiseFloor(in.Metric); math.Abs(in.DeviationPct) < floor {
		d.Reason = fmt.Sprintf("deviation %s below noise floor", metric.FormatDeviation(in.Metric, in.DeviationPct))
		return d
	}

	if d.Score < g.floor {
		d.Reason = fmt.Sprintf("quality score %.2f below %.2f", d.Score, g.floor)
		return d
	}

	d.Admitted = true
	return d
}

// Score returns the composite quality score in [0, 1] without applying the pre-filters
func Score(in Input) float64 {
	return clamp01(causesTerm(in) + patternTerm(in) + magnitudeTerm(in))
}

// HasStrongPattern reports whether a historical match can stand in for missing causes
func HasStrongPattern(m *patterns.HistoricalMatch) bool {
	return m != nil &&
		m.MatchCount >= database.StrongPatternMatches &&
		m.PatternConfidence >= database.StrongPatternConfidence
}

func causesTerm(in Input) float64 {
	n := attribution.CountSignificant(in.Causes)
	return math.Min(database.QualityCausesCap, float64(n)*database.QualityCausePoints)
}

func patternTerm(in Input) float64 {
	count, conf := in.matchCount(), in.patternConfidence()
	switch {
	case count >= 3 && conf >= 0.4:
		return database.QualityPatternFull
	case count >= 2 && conf >= 0.3:
		return database.QualityPatternPartial
	case count >= 1:
		return database.QualityPatternMinimal
	}
	return 0
}

func magnitudeTerm(in Input) float64 {
	dev := math.Abs(in.DeviationPct)

	full, partial, minimal := magnitudeFullPct, magnitudePartialPct, magnitudeMinimalPct
	if metric.IsTemperature(in.Metric) {
		full, partial, minimal = temperatureMagnitudeFullC, temperatureMagnitudePartialC, temperatureMagnitudeMinimalC
	}

	switch {
	case dev >= full:
		return database.QualityMagnitudeFull
	case dev >= partial:
		return database.QualityMagnitudePartial
	case dev >= minimal:
		return database.QualityMagnitudeMinimal
	}
	return 0
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
