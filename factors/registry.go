package factors

import (
	"fmt"
	"math"
	"strings"
	"time"

	"pulse-insights/database"
	models "pulse-insights/database/models_pkg"
	"pulse-insights/helpers"
)

// RegistryVersion is bumped whenever a key is added, removed or changes kind
const RegistryVersion = 3

// Category groups factors by the source they are extracted from
type Category string

const (
	CategoryNutrition   Category = "nutrition"
	CategoryWorkout     Category = "workout"
	CategoryRecovery    Category = "recovery"
	CategoryEnvironment Category = "environment"
	CategoryLifeEvent   Category = "life_event"
	CategorySleepTiming Category = "sleep_timing"
	CategoryGlucose     Category = "glucose"
)

// Kind is the value variant a factor key carries
type Kind int

const (
	KindNumeric Kind = iota
	KindText
	KindTimeOfDay // minutes since local midnight, stored numerically
)

// Key is the canonical machine identity of a factor.
// Equality and deduplication use Key; display uses the registry label.
type Key struct {
	Category Category
	Name     string
}

// String returns the canonical "category.name" form
func (k Key) String() string {
	return string(k.Category) + "." + k.Name
}

// ParseKey parses the canonical "category.name" form
func ParseKey(s string) (Key, bool) {
	category, name, ok := strings.Cut(s, ".")
	if !ok || category == "" || name == "" {
		return Key{}, false
	}
	return Key{Category: Category(category), Name: name}, true
}

// KeyOf returns the key of a stored factor
func KeyOf(f *models.BehaviorFactor) Key {
	return Key{Category: Category(f.Category), Name: f.FactorKey}
}

// Definition describes one registered factor key
type Definition struct {
	Key   Key
	Kind  Kind
	Label string
	Unit  string

	// Presence factors are occasional behaviors (a sauna session, a trip) whose
	// mere occurrence is the signal, rather than their size relative to a baseline.
	Presence bool
}

var definitions = []Definition{
	// Nutrition
	{Key: Key{CategoryNutrition, "calories"}, Kind: KindNumeric, Label: "calories", Unit: "kcal"},
	{Key: Key{CategoryNutrition, "protein_g"}, Kind: KindNumeric, Label: "protein", Unit: "g"},
	{Key: Key{CategoryNutrition, "carbs_g"}, Kind: KindNumeric, Label: "carbohydrates", Unit: "g"},
	{Key: Key{CategoryNutrition, "fat_g"}, Kind: KindNumeric, Label: "fat", Unit: "g"},
	{Key: Key{CategoryNutrition, "fiber_g"}, Kind: KindNumeric, Label: "fiber", Unit: "g"},
	{Key: Key{CategoryNutrition, "sugar_g"}, Kind: KindNumeric, Label: "sugar", Unit: "g"},
	{Key: Key{CategoryNutrition, "alcohol_units"}, Kind: KindNumeric, Label: "alcohol", Unit: "units"},
	{Key: Key{CategoryNutrition, "caffeine_mg"}, Kind: KindNumeric, Label: "caffeine", Unit: "mg"},
	{Key: Key{CategoryNutrition, "water_ml"}, Kind: KindNumeric, Label: "water intake", Unit: "ml"},
	{Key: Key{CategoryNutrition, "last_meal_time"}, Kind: KindTimeOfDay, Label: "last meal time"},

	// Workouts
	{Key: Key{CategoryWorkout, "workout_count"}, Kind: KindNumeric, Label: "workouts"},
	{Key: Key{CategoryWorkout, "workout_minutes"}, Kind: KindNumeric, Label: "workout duration", Unit: "min"},
	{Key: Key{CategoryWorkout, "workout_calories"}, Kind: KindNumeric, Label: "workout calories", Unit: "kcal"},
	{Key: Key{CategoryWorkout, "workout_avg_hr"}, Kind: KindNumeric, Label: "workout average heart rate", Unit: "bpm"},
	{Key: Key{CategoryWorkout, "workout_max_hr"}, Kind: KindNumeric, Label: "workout max heart rate", Unit: "bpm"},
	{Key: Key{CategoryWorkout, "workout_strain"}, Kind: KindNumeric, Label: "training strain"},
	{Key: Key{CategoryWorkout, "first_workout_time"}, Kind: KindTimeOfDay, Label: "first workout time"},
	{Key: Key{CategoryWorkout, "last_workout_time"}, Kind: KindTimeOfDay, Label: "last workout time"},
	{Key: Key{CategoryWorkout, "workout_types"}, Kind: KindText, Label: "workout types"},

	// Recovery modalities
	{Key: Key{CategoryRecovery, "sauna_minutes"}, Kind: KindNumeric, Label: "sauna", Unit: "min", Presence: true},
	{Key: Key{CategoryRecovery, "cold_plunge_minutes"}, Kind: KindNumeric, Label: "cold plunge", Unit: "min", Presence: true},
	{Key: Key{CategoryRecovery, "meditation_minutes"}, Kind: KindNumeric, Label: "meditation", Unit: "min", Presence: true},
	{Key: Key{CategoryRecovery, "massage_minutes"}, Kind: KindNumeric, Label: "massage", Unit: "min", Presence: true},
	{Key: Key{CategoryRecovery, "breathwork_minutes"}, Kind: KindNumeric, Label: "breathwork", Unit: "min", Presence: true},

	// Environment
	{Key: Key{CategoryEnvironment, "avg_temp_c"}, Kind: KindNumeric, Label: "outdoor temperature", Unit: "°C"},
	{Key: Key{CategoryEnvironment, "humidity_pct"}, Kind: KindNumeric, Label: "humidity", Unit: "%"},
	{Key: Key{CategoryEnvironment, "altitude_m"}, Kind: KindNumeric, Label: "altitude", Unit: "m"},
	{Key: Key{CategoryEnvironment, "aqi"}, Kind: KindNumeric, Label: "air quality index"},
	{Key: Key{CategoryEnvironment, "timezone_shift_hours"}, Kind: KindNumeric, Label: "time zone shift", Unit: "h"},
	{Key: Key{CategoryEnvironment, "location"}, Kind: KindText, Label: "location"},

	// Life events
	{Key: Key{CategoryLifeEvent, "travel"}, Kind: KindText, Label: "travel", Presence: true},
	{Key: Key{CategoryLifeEvent, "illness"}, Kind: KindText, Label: "illness", Presence: true},
	{Key: Key{CategoryLifeEvent, "stress"}, Kind: KindText, Label: "stressful event", Presence: true},
	{Key: Key{CategoryLifeEvent, "injury"}, Kind: KindText, Label: "injury", Presence: true},
	{Key: Key{CategoryLifeEvent, "menstruation"}, Kind: KindText, Label: "menstrual cycle", Presence: true},
	{Key: Key{CategoryLifeEvent, "celebration"}, Kind: KindText, Label: "celebration", Presence: true},
	{Key: Key{CategoryLifeEvent, "work_deadline"}, Kind: KindText, Label: "work deadline", Presence: true},

	// Sleep timing (the night that starts on the factor's date)
	{Key: Key{CategorySleepTiming, "bedtime"}, Kind: KindTimeOfDay, Label: "bedtime"},
	{Key: Key{CategorySleepTiming, "wake_time"}, Kind: KindTimeOfDay, Label: "wake time"},
	{Key: Key{CategorySleepTiming, "time_in_bed_minutes"}, Kind: KindNumeric, Label: "time in bed", Unit: "min"},

	// Glucose
	{Key: Key{CategoryGlucose, "glucose_avg"}, Kind: KindNumeric, Label: "average glucose", Unit: "mg/dL"},
	{Key: Key{CategoryGlucose, "glucose_max"}, Kind: KindNumeric, Label: "peak glucose", Unit: "mg/dL"},
	{Key: Key{CategoryGlucose, "glucose_min"}, Kind: KindNumeric, Label: "lowest glucose", Unit: "mg/dL"},
	{Key: Key{CategoryGlucose, "glucose_variability"}, Kind: KindNumeric, Label: "glucose variability", Unit: "mg/dL"},
	{Key: Key{CategoryGlucose, "glucose_time_in_range_pct"}, Kind: KindNumeric, Label: "glucose time in range", Unit: "%"},
}

var registry = func() map[Key]Definition {
	m := make(map[Key]Definition, len(definitions))
	for _, d := range definitions {
		m[d.Key] = d
	}
	return m
}()

// Lookup returns the definition for a key
func Lookup(k Key) (Definition, bool) {
	d, ok := registry[k]
	return d, ok
}

// Definitions returns every registered definition in registration order
func Definitions() []Definition {
	out := make([]Definition, len(definitions))
	copy(out, definitions)
	return out
}

// Label returns the display label for a key; unregistered keys fall back to their name
func Label(k Key) string {
	if d, ok := registry[k]; ok {
		return d.Label
	}
	return strings.ReplaceAll(k.Name, "_", " ")
}

// IsPresence reports whether the key is a presence-style factor
func IsPresence(k Key) bool {
	return registry[k].Presence
}

// NewFactor builds a factor row after checking the key and value kind against the registry
func NewFactor(userID string, date time.Time, key Key, value Value, source string) (models.BehaviorFactor, error) {
	def, ok := registry[key]
	if !ok {
		return models.BehaviorFactor{}, database.NewValidationErrorWithValue("key", "not in factor registry", key.String())
	}
	if def.Kind != value.kind {
		return models.BehaviorFactor{}, database.NewValidationErrorWithValue("value", "kind does not match registry", key.String())
	}

	f := models.BehaviorFactor{
		UserID:    userID,
		LocalDate: helpers.DateOnly(date),
		Category:  string(key.Category),
		FactorKey: key.Name,
		Source:    source,
	}

	switch value.kind {
	case KindText:
		text := value.text
		f.StringValue = &text
	default:
		if math.IsNaN(value.num) || math.IsInf(value.num, 0) {
			return models.BehaviorFactor{}, database.NewValidationErrorWithValue("value", "not a finite number", key.String())
		}
		num := value.num
		f.NumericValue = &num
	}

	return f, nil
}

// FormatValue renders a factor's value for display, e.g. "01:00", "45 g", "travel"
func FormatValue(f *models.BehaviorFactor) string {
	key := KeyOf(f)
	def := registry[key]

	if f.StringValue != nil {
		return *f.StringValue
	}
	if f.NumericValue == nil {
		return ""
	}

	v := *f.NumericValue
	if def.Kind == KindTimeOfDay {
		return helpers.FormatClock(v)
	}

	var s string
	switch {
	case math.Abs(v) >= 1000:
		s = helpers.FormatThousands(v)
	case math.Abs(v) >= 10 || v == math.Trunc(v):
		s = fmt.Sprintf("%.0f", v)
	default:
		s = fmt.Sprintf("%.1f", v)
	}

	if def.Unit == "" {
		return s
	}
	if def.Unit == "%" || def.Unit == "°C" {
		return s + def.Unit
	}
	return s + " " + def.Unit
}
