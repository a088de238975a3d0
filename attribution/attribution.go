// Package attribution ranks the behavior factors that co-deviated with an anomaly.
package attribution

import (
	"context"
	"math"
	"sort"
	"time"

	"pulse-insights/anomaly"
	"pulse-insights/baseline"
	"pulse-insights/database"
	models "pulse-insights/database/models_pkg"
	"pulse-insights/factors"
	"pulse-insights/helpers"
	"pulse-insights/metric"
)

// Contribution bucket of an attributed factor
type Contribution string

const (
	ContributionHigh   Contribution = "high"
	ContributionMedium Contribution = "medium"
	ContributionLow    Contribution = "low"
)

// IsSignificant reports whether the contribution is high or medium
func (c Contribution) IsSignificant() bool {
	return c == ContributionHigh || c == ContributionMedium
}

// AttributedFactor is one candidate cause of an anomaly
type AttributedFactor struct {
	Category      factors.Category `json:"category"`
	Key           string           `json:"key"`
	Label         string           `json:"label"`
	ValueDisplay  string           `json:"value_display"`
	DeviationPct  float64          `json:"deviation_pct"`
	BaselineValue float64          `json:"baseline_value"`
	Contribution  Contribution     `json:"contribution"`
}

// FactorKey returns the canonical identity of the factor
func (a AttributedFactor) FactorKey() factors.Key {
	return factors.Key{Category: a.Category, Name: a.Key}
}

// Direction returns whether the factor was above or below its baseline
func (a AttributedFactor) Direction() anomaly.Direction {
	if a.DeviationPct < 0 {
		return anomaly.Below
	}
	return anomaly.Above
}

// Behavior is a factor moving in a direction, the unit the history matcher searches for
type Behavior struct {
	Key       factors.Key       `json:"key"`
	Direction anomaly.Direction `json:"direction"`
}

// FactorStore answers point lookups of a user-day's factors
type FactorStore interface {
	GetFactorsForDate(ctx context.Context, userID string, date time.Time) ([]models.BehaviorFactor, error)
}

// Engine ranks candidate causes for anomalies
type Engine struct {
	store     FactorStore
	baselines *baseline.Engine
}

// NewEngine creates a new attribution engine
func NewEngine(store FactorStore, baselines *baseline.Engine) *Engine {
	return &Engine{store: store, baselines: baselines}
}

// BehaviorDate returns the day whose behavior explains an outcome on date.
// Sleep outcomes are explained by the previous day.
func BehaviorDate(m metric.Type, date time.Time) time.Time {
	return helpers.AddDays(date, -metric.BehaviorLagDays(m))
}

// Attribute returns the qualifying factors for an anomaly ordered by |deviation|
// descending, capped at MaxAttributedFactors. A zero outcome deviation yields
// no causes. Factors not yet enriched are enriched on the fly, not persisted.
func (e *Engine) Attribute(ctx context.Context, userID string, anomalyDate time.Time, outcome metric.Type, outcomeDeviationPct float64) ([]AttributedFactor, error) {
	if outcomeDeviationPct == 0 {
		return []AttributedFactor{}, nil
	}

	fs, err := e.store.GetFactorsForDate(ctx, userID, BehaviorDate(outcome, anomalyDate))
	if err != nil {
		return nil, err
	}

	if e.baselines != nil {
		e.baselines.Enrich(ctx, fs)
	}

	causes := make([]AttributedFactor, 0, len(fs))
	for i := range fs {
		f := &fs[i]
		if f.DeviationFromBaselinePct == nil {
			continue
		}
		dev := *f.DeviationFromBaselinePct
		if !f.IsNotable && math.Abs(dev) < database.AttributionMinDeviationPct {
			continue
		}

		cause := AttributedFactor{
			Category:     factors.Category(f.Category),
			Key:          f.FactorKey,
			Label:        factors.Label(factors.KeyOf(f)),
			ValueDisplay: factors.FormatValue(f),
			DeviationPct: dev,
			Contribution: ContributionFor(dev),
		}
		if f.BaselineValue != nil {
			cause.BaselineValue = *f.BaselineValue
		}
		causes = append(causes, cause)
	}

	sort.SliceStable(causes, func(i, j int) bool {
		di, dj := math.Abs(causes[i].DeviationPct), math.Abs(causes[j].DeviationPct)
		if di != dj {
			return di > dj
		}
		return causes[i].FactorKey().String() < causes[j].FactorKey().String()
	})

	if len(causes) > database.MaxAttributedFactors {
		causes = causes[:database.MaxAttributedFactors]
	}
	return causes, nil
}

// ContributionFor buckets a factor deviation
func ContributionFor(deviationPct float64) Contribution {
	dev := math.Abs(deviationPct)
	switch {
	case dev >= database.ContributionHighPct:
		return ContributionHigh
	case dev >= database.ContributionMediumPct:
		return ContributionMedium
	}
	return ContributionLow
}

// CountSignificant returns how many causes are high or medium contribution
func CountSignificant(causes []AttributedFactor) int {
	n := 0
	for _, c := range causes {
		if c.Contribution.IsSignificant() {
			n++
		}
	}
	return n
}

// Notable returns up to max behaviors from the strongest causes, for the history matcher
func Notable(causes []AttributedFactor, max int) []Behavior {
	if max <= 0 || max > database.MaxNotableBehaviors {
		max = database.MaxNotableBehaviors
	}

	out := make([]Behavior, 0, max)
	for _, c := range causes {
		if len(out) == max {
			break
		}
		if c.DeviationPct == 0 {
			continue
		}
		out = append(out, Behavior{Key: c.FactorKey(), Direction: c.Direction()})
	}
	return out
}

// Keys returns the canonical keys of the causes
func Keys(causes []AttributedFactor) []factors.Key {
	keys := make([]factors.Key, 0, len(causes))
	for _, c := range causes {
		keys = append(keys, c.FactorKey())
	}
	return keys
}
