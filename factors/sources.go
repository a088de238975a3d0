package factors

import (
	"context"
	"log"
	"math"
	"sort"
	"strings"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	models "pulse-insights/database/models_pkg"
	"pulse-insights/helpers"
)

// Glucose time-in-range bounds, mg/dL inclusive
const (
	GlucoseRangeLow  = 70.0
	GlucoseRangeHigh = 180.0
)

// SourceStore reads the raw per-day signal tables
type SourceStore interface {
	GetNutritionDay(ctx context.Context, userID string, date time.Time) (*models.NutritionDay, error)
	GetWorkouts(ctx context.Context, userID string, date time.Time) ([]models.WorkoutSession, error)
	GetRecoverySessions(ctx context.Context, userID string, date time.Time) ([]models.RecoverySession, error)
	GetEnvironmentDay(ctx context.Context, userID string, date time.Time) (*models.EnvironmentDay, error)
	GetActiveLifeEvents(ctx context.Context, userID string, date time.Time) ([]models.LifeEvent, error)
	GetSleepSession(ctx context.Context, userID string, date time.Time) (*models.SleepSession, error)
	GetGlucoseReadings(ctx context.Context, userID string, date time.Time) ([]models.GlucoseReading, error)
}

// Source turns one raw signal table into factors for a user-day
type Source interface {
	Name() string
	Extract(ctx context.Context, userID string, date time.Time) ([]models.BehaviorFactor, error)
}

// DefaultSources returns every source backed by the given store
func DefaultSources(store SourceStore) []Source {
	return []Source{
		&NutritionSource{store: store},
		&WorkoutSource{store: store},
		&RecoverySource{store: store},
		&EnvironmentSource{store: store},
		&LifeEventSource{store: store},
		&SleepTimingSource{store: store},
		&GlucoseSource{store: store},
	}
}

// collector accumulates factors for one user-day, dropping absent values
type collector struct {
	userID string
	date   time.Time
	source string
	out    []models.BehaviorFactor
}

func newCollector(userID string, date time.Time, source string) *collector {
	if source == "" {
		source = models.SourceDevice
	}
	return &collector{userID: userID, date: date, source: source}
}

func (c *collector) add(category Category, name string, v Value) {
	f, err := NewFactor(c.userID, c.date, Key{Category: category, Name: name}, v, c.source)
	if err != nil {
		log.Printf("⚠️  Skipping factor %s.%s for %s: %v", category, name, c.userID, err)
		return
	}
	c.out = append(c.out, f)
}

func (c *collector) addNumber(category Category, name string, v *float64) {
	if v == nil {
		return
	}
	c.add(category, name, Numeric(*v))
}

// ============================================================================
// Nutrition
// ============================================================================

// NutritionSource extracts daily nutrition totals
type NutritionSource struct {
	store SourceStore
}

// Name returns the source name
func (s *NutritionSource) Name() string { return string(CategoryNutrition) }

// Extract returns the nutrition factors for a user-day
func (s *NutritionSource) Extract(ctx context.Context, userID string, date time.Time) ([]models.BehaviorFactor, error) {
	day, err := s.store.GetNutritionDay(ctx, userID, date)
	if err != nil {
		return nil, err
	}
	if day == nil {
		return nil, nil
	}

	c := newCollector(userID, date, day.Source)
	c.addNumber(CategoryNutrition, "calories", day.Calories)
	c.addNumber(CategoryNutrition, "protein_g", day.ProteinG)
	c.addNumber(CategoryNutrition, "carbs_g", day.CarbsG)
	c.addNumber(CategoryNutrition, "fat_g", day.FatG)
	c.addNumber(CategoryNutrition, "fiber_g", day.FiberG)
	c.addNumber(CategoryNutrition, "sugar_g", day.SugarG)
	c.addNumber(CategoryNutrition, "alcohol_units", day.AlcoholUnits)
	c.addNumber(CategoryNutrition, "caffeine_mg", day.CaffeineMg)
	c.addNumber(CategoryNutrition, "water_ml", day.WaterMl)
	if day.LastMealAt != nil {
		c.add(CategoryNutrition, "last_meal_time", Bedtime(*day.LastMealAt))
	}
	return c.out, nil
}

// ============================================================================
// Workouts
// ============================================================================

// WorkoutSource aggregates every workout of the day
type WorkoutSource struct {
	store SourceStore
}

// Name returns the source name
func (s *WorkoutSource) Name() string { return string(CategoryWorkout) }

// Extract returns aggregate workout factors for a user-day
func (s *WorkoutSource) Extract(ctx context.Context, userID string, date time.Time) ([]models.BehaviorFactor, error) {
	sessions, err := s.store.GetWorkouts(ctx, userID, date)
	if err != nil {
		return nil, err
	}
	if len(sessions) == 0 {
		return nil, nil
	}

	var (
		minutes, calories, strain float64
		hasCalories, hasStrain    bool
		hrWeighted, hrMinutes     float64
		maxHR                     *float64
		first, last               = sessions[0].StartedAt, sessions[0].StartedAt
		types                     = make(map[string]bool)
	)

	for _, w := range sessions {
		minutes += w.DurationMin
		if w.Calories != nil {
			calories += *w.Calories
			hasCalories = true
		}
		if w.Strain != nil {
			strain += *w.Strain
			hasStrain = true
		}
		if w.AvgHeartRate != nil && w.DurationMin > 0 {
			hrWeighted += *w.AvgHeartRate * w.DurationMin
			hrMinutes += w.DurationMin
		}
		if w.MaxHeartRate != nil && (maxHR == nil || *w.MaxHeartRate > *maxHR) {
			v := *w.MaxHeartRate
			maxHR = &v
		}
		if w.StartedAt.Before(first) {
			first = w.StartedAt
		}
		if w.StartedAt.After(last) {
			last = w.StartedAt
		}
		if t := strings.TrimSpace(strings.ToLower(w.WorkoutType)); t != "" {
			types[t] = true
		}
	}

	c := newCollector(userID, date, sessions[0].Source)
	c.add(CategoryWorkout, "workout_count", Numeric(float64(len(sessions))))
	c.add(CategoryWorkout, "workout_minutes", Numeric(minutes))
	if hasCalories {
		c.add(CategoryWorkout, "workout_calories", Numeric(calories))
	}
	if hrMinutes > 0 {
		c.add(CategoryWorkout, "workout_avg_hr", Numeric(hrWeighted/hrMinutes))
	}
	c.addNumber(CategoryWorkout, "workout_max_hr", maxHR)
	if hasStrain {
		c.add(CategoryWorkout, "workout_strain", Numeric(strain))
	}
	c.add(CategoryWorkout, "first_workout_time", ClockTime(first))
	c.add(CategoryWorkout, "last_workout_time", ClockTime(last))

	if len(types) > 0 {
		names := make([]string, 0, len(types))
		for t := range types {
			names = append(names, t)
		}
		sort.Strings(names)
		c.add(CategoryWorkout, "workout_types", Text(strings.Join(names, ",")))
	}

	return c.out, nil
}

// ============================================================================
// Recovery modalities
// ============================================================================

// RecoverySource sums minutes per recovery modality
type RecoverySource struct {
	store SourceStore
}

// Name returns the source name
func (s *RecoverySource) Name() string { return string(CategoryRecovery) }

// Extract returns one minutes factor per modality used that day
func (s *RecoverySource) Extract(ctx context.Context, userID string, date time.Time) ([]models.BehaviorFactor, error) {
	sessions, err := s.store.GetRecoverySessions(ctx, userID, date)
	if err != nil {
		return nil, err
	}
	if len(sessions) == 0 {
		return nil, nil
	}

	totals := make(map[string]float64)
	var order []string
	for _, r := range sessions {
		name := strings.TrimSpace(strings.ToLower(r.Modality)) + "_minutes"
		if _, ok := Lookup(Key{Category: CategoryRecovery, Name: name}); !ok {
			log.Printf("ℹ️  Unknown recovery modality %q for %s, skipping", r.Modality, userID)
			continue
		}
		if _, seen := totals[name]; !seen {
			order = append(order, name)
		}
		totals[name] += r.DurationMin
	}

	c := newCollector(userID, date, sessions[0].Source)
	for _, name := range order {
		c.add(CategoryRecovery, name, Numeric(totals[name]))
	}
	return c.out, nil
}

// ============================================================================
// Environment
// ============================================================================

// EnvironmentSource extracts climate and location signals
type EnvironmentSource struct {
	store SourceStore
}

// Name returns the source name
func (s *EnvironmentSource) Name() string { return string(CategoryEnvironment) }

// Extract returns the environment factors for a user-day
func (s *EnvironmentSource) Extract(ctx context.Context, userID string, date time.Time) ([]models.BehaviorFactor, error) {
	day, err := s.store.GetEnvironmentDay(ctx, userID, date)
	if err != nil {
		return nil, err
	}
	if day == nil {
		return nil, nil
	}

	c := newCollector(userID, date, models.SourceExternalAPI)
	c.addNumber(CategoryEnvironment, "avg_temp_c", day.AvgTempC)
	c.addNumber(CategoryEnvironment, "humidity_pct", day.HumidityPct)
	c.addNumber(CategoryEnvironment, "altitude_m", day.AltitudeM)
	c.addNumber(CategoryEnvironment, "aqi", day.AQI)
	c.addNumber(CategoryEnvironment, "timezone_shift_hours", day.TimezoneShiftHours)
	if day.Location != nil && strings.TrimSpace(*day.Location) != "" {
		c.add(CategoryEnvironment, "location", Text(strings.TrimSpace(*day.Location)))
	}
	return c.out, nil
}

// ============================================================================
// Life events
// ============================================================================

// LifeEventSource emits one presence factor per active event type
type LifeEventSource struct {
	store SourceStore
}

// Name returns the source name
func (s *LifeEventSource) Name() string { return string(CategoryLifeEvent) }

// Extract returns the life events covering a user-day
func (s *LifeEventSource) Extract(ctx context.Context, userID string, date time.Time) ([]models.BehaviorFactor, error) {
	events, err := s.store.GetActiveLifeEvents(ctx, userID, date)
	if err != nil {
		return nil, err
	}

	c := newCollector(userID, date, models.SourceUserLogged)
	seen := make(map[string]bool)
	for _, e := range events {
		name := strings.TrimSpace(strings.ToLower(e.EventType))
		if seen[name] {
			continue
		}
		if _, ok := Lookup(Key{Category: CategoryLifeEvent, Name: name}); !ok {
			log.Printf("ℹ️  Unknown life event type %q for %s, skipping", e.EventType, userID)
			continue
		}
		seen[name] = true

		label := strings.TrimSpace(e.Label)
		if label == "" {
			label = name
		}
		c.add(CategoryLifeEvent, name, Text(label))
	}
	return c.out, nil
}

// ============================================================================
// Sleep timing
// ============================================================================

// SleepTimingSource describes the night that starts on the factor's date,
// i.e. the sleep session that wakes on the following date.
type SleepTimingSource struct {
	store SourceStore
}

// Name returns the source name
func (s *SleepTimingSource) Name() string { return string(CategorySleepTiming) }

// Extract returns bedtime, wake time and time in bed for the night starting on date
func (s *SleepTimingSource) Extract(ctx context.Context, userID string, date time.Time) ([]models.BehaviorFactor, error) {
	session, err := s.store.GetSleepSession(ctx, userID, helpers.AddDays(date, 1))
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, nil
	}

	c := newCollector(userID, date, session.Source)
	c.add(CategorySleepTiming, "bedtime", Bedtime(session.BedtimeAt))
	c.add(CategorySleepTiming, "wake_time", ClockTime(session.WakeAt))

	inBed := session.InBedMin
	if inBed == nil && session.WakeAt.After(session.BedtimeAt) {
		v := session.WakeAt.Sub(session.BedtimeAt).Minutes()
		inBed = &v
	}
	c.addNumber(CategorySleepTiming, "time_in_bed_minutes", inBed)
	return c.out, nil
}

// ============================================================================
// Glucose
// ============================================================================

// GlucoseSource summarizes the day's glucose readings
type GlucoseSource struct {
	store SourceStore
}

// Name returns the source name
func (s *GlucoseSource) Name() string { return string(CategoryGlucose) }

// Extract returns glucose summary statistics for a user-day
func (s *GlucoseSource) Extract(ctx context.Context, userID string, date time.Time) ([]models.BehaviorFactor, error) {
	readings, err := s.store.GetGlucoseReadings(ctx, userID, date)
	if err != nil {
		return nil, err
	}
	if len(readings) == 0 {
		return nil, nil
	}

	stats := SummarizeGlucose(readings)
	c := newCollector(userID, date, models.SourceDevice)
	c.add(CategoryGlucose, "glucose_avg", Numeric(stats.Mean))
	c.add(CategoryGlucose, "glucose_max", Numeric(stats.Max))
	c.add(CategoryGlucose, "glucose_min", Numeric(stats.Min))
	c.add(CategoryGlucose, "glucose_variability", Numeric(stats.StdDev))
	c.add(CategoryGlucose, "glucose_time_in_range_pct", Numeric(stats.TimeInRangePct))
	return c.out, nil
}

// GlucoseStats is the daily glucose summary
type GlucoseStats struct {
	Mean           float64
	Max            float64
	Min            float64
	StdDev         float64 // population standard deviation
	TimeInRangePct float64 // share of readings within [70, 180] mg/dL
}

// SummarizeGlucose computes the daily summary; readings must be non-empty
func SummarizeGlucose(readings []models.GlucoseReading) GlucoseStats {
	values := make([]float64, len(readings))
	var inRange int
	for i, r := range readings {
		values[i] = r.MgDl
		if r.MgDl >= GlucoseRangeLow && r.MgDl <= GlucoseRangeHigh {
			inRange++
		}
	}

	mean, variance := stat.PopMeanVariance(values, nil)
	return GlucoseStats{
		Mean:           mean,
		Max:            floats.Max(values),
		Min:            floats.Min(values),
		StdDev:         math.Sqrt(math.Max(0, variance)),
		TimeInRangePct: float64(inRange) / float64(len(values)) * 100,
	}
}
