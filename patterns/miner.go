package patterns

import (
	"context"
	"log"
	"math"
	"sort"
	"time"

	"pulse-insights/anomaly"
	"pulse-insights/database"
	"pulse-insights/factors"
	"pulse-insights/helpers"
	"pulse-insights/metric"
	"pulse-insights/settings"
)

// PositivePattern is a behavior that repeatedly preceded a good outcome day
type PositivePattern struct {
	BehaviorDescription string            `json:"behavior_description"`
	BehaviorKeys        []string          `json:"behavior_keys"`
	Direction           anomaly.Direction `json:"direction"`
	OccurrenceCount     int               `json:"occurrence_count"`
	GoodDays            int               `json:"good_days"`

	// Mean polarity-adjusted outcome deviation on the days the behavior occurred
	OutcomeImprovement float64 `json:"outcome_improvement"`

	Confidence float64 `json:"confidence"`
}

// Miner finds behaviors that precede good outcome days
type Miner struct {
	store      HistoryStore
	settings   settings.Provider
	windowDays int
	now        func() time.Time
}

// NewMiner creates a positive pattern miner
func NewMiner(store HistoryStore, provider settings.Provider, windowDays int) *Miner {
	if windowDays <= 0 {
		windowDays = database.BaselineWindowDays
	}
	return &Miner{store: store, settings: provider, windowDays: windowDays, now: time.Now}
}

type candidate struct {
	key         factors.Key
	direction   anomaly.Direction
	count       int
	improvement float64
}

// FindPositive mines history up to today; lookbackMonths <= 0 uses the configured lookback
func (m *Miner) FindPositive(ctx context.Context, userID string, outcome metric.Type, lookbackMonths int) []PositivePattern {
	return m.FindPositiveAsOf(ctx, userID, outcome, m.now(), lookbackMonths)
}

// FindPositiveAsOf mines history before asOf. A good day is one where the outcome's
// polarity-adjusted z-score exceeded +1.0. A behavior counts on a good day when it
// deviated past the positive outcome threshold in one direction, or, for presence-style
// factors, when it happened at all. Behaviors seen on fewer than MinPositiveOccurrences
// good days are dropped.
func (m *Miner) FindPositiveAsOf(ctx context.Context, userID string, outcome metric.Type, asOf time.Time, lookbackMonths int) []PositivePattern {
	s := m.settings.Get(ctx)
	asOf = helpers.DateOnly(asOf)
	if lookbackMonths <= 0 {
		lookbackMonths = s.HistoryLookbackMonths
	}

	span, err := m.store.GetDataSpan(ctx, userID)
	if err != nil {
		log.Printf("⚠️  History span unavailable for %s: %v", userID, err)
		return nil
	}
	if span.Empty() {
		return nil
	}

	start, months := scanWindow(span, asOf, lookbackMonths)
	if months < database.MinHistoryMonths {
		return nil
	}

	outcomes, truncated, err := outcomeHistory(ctx, m.store, userID, outcome, start, asOf, m.windowDays)
	if err != nil {
		log.Printf("⚠️  Outcome history unavailable for %s/%s: %v", userID, outcome, err)
		return nil
	}

	polarity := metric.Polarity(outcome)
	var goodDays []outcomeDay
	for _, d := range outcomes {
		if d.z*polarity > database.PositiveOutcomeMinZ {
			goodDays = append(goodDays, d)
		}
	}
	if len(goodDays) == 0 {
		return nil
	}

	lag := metric.BehaviorLagDays(outcome)
	history, err := loadFactorHistory(ctx, m.store, userID, helpers.AddDays(start, -lag), asOf, nil, m.windowDays)
	if err != nil {
		log.Printf("⚠️  Factor history unavailable for %s: %v", userID, err)
		return nil
	}

	threshold := s.PositiveOutcomeThreshold * 100
	candidates := make(map[string]*candidate)
	bump := func(k factors.Key, dir anomaly.Direction, improvement float64) {
		id := k.String() + ":" + string(dir)
		c, ok := candidates[id]
		if !ok {
			c = &candidate{key: k, direction: dir}
			candidates[id] = c
		}
		c.count++
		c.improvement += improvement
	}

	for _, good := range goodDays {
		if ctx.Err() != nil {
			truncated = true
			break
		}

		behaviorDay := helpers.AddDays(good.date, -lag)
		improvement := good.deviationPct * polarity

		for _, k := range history.keysOn(behaviorDay) {
			if factors.IsPresence(k) {
				if history.present(behaviorDay, k) {
					bump(k, anomaly.Above, improvement)
				}
				continue
			}

			dev, ok := history.deviation(behaviorDay, k)
			if !ok {
				continue
			}
			switch {
			case dev > threshold:
				bump(k, anomaly.Above, improvement)
			case dev < -threshold:
				bump(k, anomaly.Below, improvement)
			}
		}
	}

	if truncated {
		log.Printf("⚠️  Positive pattern scan for %s/%s truncated", userID, outcome)
	}

	var out []PositivePattern
	for _, c := range candidates {
		if c.count < s.MinPositiveOccurrences {
			continue
		}
		out = append(out, PositivePattern{
			BehaviorDescription: describeBehavior(c.key, c.direction),
			BehaviorKeys:        []string{c.key.String()},
			Direction:           c.direction,
			OccurrenceCount:     c.count,
			GoodDays:            len(goodDays),
			OutcomeImprovement:  round2(c.improvement / float64(c.count)),
			Confidence:          round2(positiveConfidence(c.count, len(goodDays))),
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		if out[i].OccurrenceCount != out[j].OccurrenceCount {
			return out[i].OccurrenceCount > out[j].OccurrenceCount
		}
		return out[i].BehaviorKeys[0]+string(out[i].Direction) < out[j].BehaviorKeys[0]+string(out[j].Direction)
	})
	return out
}

// positiveConfidence combines how often the behavior showed up on good days with
// how many times it did, capped like pattern confidence
func positiveConfidence(count, goodDays int) float64 {
	if count <= 0 || goodDays <= 0 {
		return 0
	}
	support := float64(count) / float64(goodDays)
	c := database.PatternConfidenceBase + support*0.5 + math.Min(float64(count), 10)*0.02
	return math.Min(database.MaxPatternConfidence, c)
}

// ExcludeKeys drops patterns that share any canonical behavior key with keys.
// Matching is exact on "category.key"; labels are never compared.
func ExcludeKeys(patterns []PositivePattern, keys []factors.Key) []PositivePattern {
	if len(keys) == 0 {
		return patterns
	}

	exclude := make(map[string]bool, len(keys))
	for _, k := range keys {
		exclude[k.String()] = true
	}

	out := make([]PositivePattern, 0, len(patterns))
	for _, p := range patterns {
		shared := false
		for _, k := range p.BehaviorKeys {
			if exclude[k] {
				shared = true
				break
			}
		}
		if !shared {
			out = append(out, p)
		}
	}
	return out
}
