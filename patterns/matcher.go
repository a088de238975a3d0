package patterns

import (
	"context"
	"fmt"
	"log"
	"math"
	"sort"
	"strings"
	"time"

	"pulse-insights/anomaly"
	"pulse-insights/attribution"
	"pulse-insights/database"
	"pulse-insights/factors"
	"pulse-insights/helpers"
	"pulse-insights/metric"
	"pulse-insights/settings"
)

// HistoricalMatch is the result of scanning history for a behavior→outcome pattern
type HistoricalMatch struct {
	MatchCount         int         `json:"match_count"`
	TotalHistoryMonths float64     `json:"total_history_months"`
	MatchDates         []time.Time `json:"match_dates"`
	PatternConfidence  float64     `json:"pattern_confidence"`
	IsRecurring        bool        `json:"is_recurring"`
	Description        string      `json:"description"`

	// Truncated is set when a deadline cut the scan short
	Truncated bool `json:"truncated,omitempty"`
}

// Matcher finds past days where the same behaviors preceded the same outcome move
type Matcher struct {
	store      HistoryStore
	settings   settings.Provider
	windowDays int
}

// NewMatcher creates a historical pattern matcher
func NewMatcher(store HistoryStore, provider settings.Provider, windowDays int) *Matcher {
	if windowDays <= 0 {
		windowDays = database.BaselineWindowDays
	}
	return &Matcher{store: store, settings: provider, windowDays: windowDays}
}

// PatternConfidence rewards both the absolute number of matches and their density over time.
// The result is always in [0, 0.95]; no matches means no confidence.
func PatternConfidence(matchCount int, historyMonths float64) float64 {
	if matchCount <= 0 {
		return 0
	}

	density := 0.0
	if historyMonths > 0 {
		density = float64(matchCount) / historyMonths
	}

	c := database.PatternConfidenceBase +
		float64(matchCount)*database.PatternConfidencePerHit +
		density*database.PatternDensityWeight
	return math.Max(0, math.Min(database.MaxPatternConfidence, c))
}

// FindMatches scans history before currentDate for days where every behavior moved in
// its direction and the outcome's historical z-score crossed 1.5 in outcomeDirection.
// Store failures and thin history yield zero matches; a cancelled context truncates the scan.
func (m *Matcher) FindMatches(ctx context.Context, userID string, currentDate time.Time, outcome metric.Type, outcomeDirection anomaly.Direction, behaviors []attribution.Behavior) HistoricalMatch {
	s := m.settings.Get(ctx)
	currentDate = helpers.DateOnly(currentDate)

	if len(behaviors) > database.MaxNotableBehaviors {
		behaviors = behaviors[:database.MaxNotableBehaviors]
	}
	result := HistoricalMatch{MatchDates: []time.Time{}}
	if len(behaviors) == 0 {
		result.Description = "no notable behaviors to match"
		return result
	}

	span, err := m.store.GetDataSpan(ctx, userID)
	if err != nil {
		log.Printf("⚠️  History span unavailable for %s: %v", userID, err)
		return result
	}
	if span.Empty() {
		result.Description = "no history"
		return result
	}

	start, months := scanWindow(span, currentDate, s.HistoryLookbackMonths)
	result.TotalHistoryMonths = round2(months)
	if months < database.MinHistoryMonths {
		result.Description = fmt.Sprintf("only %.1f months of history", months)
		return result
	}

	outcomes, truncated, err := outcomeHistory(ctx, m.store, userID, outcome, start, currentDate, m.windowDays)
	if err != nil {
		log.Printf("⚠️  Outcome history unavailable for %s/%s: %v", userID, outcome, err)
		return result
	}
	result.Truncated = truncated

	lag := metric.BehaviorLagDays(outcome)
	names := make([]string, 0, len(behaviors))
	for _, b := range behaviors {
		names = append(names, b.Key.Name)
	}
	history, err := loadFactorHistory(ctx, m.store, userID, helpers.AddDays(start, -lag), currentDate, names, m.windowDays)
	if err != nil {
		log.Printf("⚠️  Factor history unavailable for %s: %v", userID, err)
		return result
	}

	var matches []time.Time
	for _, day := range outcomes {
		if ctx.Err() != nil {
			result.Truncated = true
			break
		}
		if day.z*outcomeDirection.Sign() < database.HistoricalOutcomeMinZ {
			continue
		}
		if allBehaviorsOccurred(history, helpers.AddDays(day.date, -lag), behaviors) {
			matches = append(matches, day.date)
		}
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].After(matches[j]) })

	result.MatchCount = len(matches)
	if len(matches) > database.MaxMatchDates {
		matches = matches[:database.MaxMatchDates]
	}
	result.MatchDates = matches
	result.PatternConfidence = round2(PatternConfidence(result.MatchCount, months))
	result.IsRecurring = result.MatchCount >= s.MinPatternMatches
	result.Description = describeMatch(behaviors, outcome, outcomeDirection, result.MatchCount, months)

	if result.Truncated {
		log.Printf("⚠️  History scan for %s/%s truncated after %d matches", userID, outcome, result.MatchCount)
	}
	return result
}

func allBehaviorsOccurred(h *factorHistory, date time.Time, behaviors []attribution.Behavior) bool {
	for _, b := range behaviors {
		dev, ok := h.deviation(date, b.Key)
		if !ok || dev == 0 {
			return false
		}
		if dev*b.Direction.Sign() < database.AttributionMinDeviationPct {
			return false
		}
	}
	return true
}

func describeMatch(behaviors []attribution.Behavior, outcome metric.Type, dir anomaly.Direction, count int, months float64) string {
	parts := make([]string, 0, len(behaviors))
	for _, b := range behaviors {
		parts = append(parts, describeBehavior(b.Key, b.Direction))
	}

	times := "times"
	if count == 1 {
		times = "time"
	}
	return fmt.Sprintf("%s preceded %s %s baseline %d %s in %.0f months",
		strings.Join(parts, " + "), metric.Label(outcome), dir, count, times, math.Round(months))
}

func describeBehavior(k factors.Key, dir anomaly.Direction) string {
	if factors.IsPresence(k) {
		return factors.Label(k)
	}
	if dir == anomaly.Below {
		return "lower " + factors.Label(k)
	}
	return "higher " + factors.Label(k)
}
