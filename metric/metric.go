// Package metric is the closed catalog of outcome metrics the engine analyses
// and the per-metric conventions every stage has to agree on.
package metric

import (
	"pulse-insights/database"
	"pulse-insights/helpers"
)

// Type identifies an outcome metric
type Type string

const (
	HRV                  Type = "hrv"
	RestingHeartRate     Type = "resting_heart_rate"
	RespiratoryRate      Type = "respiratory_rate"
	BloodOxygen          Type = "blood_oxygen"
	TemperatureDeviation Type = "temperature_deviation"
	SleepDuration        Type = "sleep_duration"
	DeepSleep            Type = "deep_sleep"
	REMSleep             Type = "rem_sleep"
	SleepEfficiency      Type = "sleep_efficiency"
	Steps                Type = "steps"
	ActiveCalories       Type = "active_calories"
	ExerciseMinutes      Type = "exercise_minutes"
	GlucoseAverage       Type = "glucose_average"
	RecoveryScore        Type = "recovery_score"
)

// Group is the family a metric belongs to; noise floors and lags are per group
type Group int

const (
	GroupCardio Group = iota
	GroupSleep
	GroupActivity
	GroupTemperature
	GroupMetabolic
	GroupRecovery
)

type info struct {
	label        string
	unit         string
	group        Group
	higherBetter bool
}

var catalog = map[Type]info{
	HRV:                  {"HRV", "ms", GroupRecovery, true},
	RestingHeartRate:     {"resting heart rate", "bpm", GroupCardio, false},
	RespiratoryRate:      {"respiratory rate", "br/min", GroupCardio, false},
	BloodOxygen:          {"blood oxygen", "%", GroupCardio, true},
	TemperatureDeviation: {"temperature deviation", "°C", GroupTemperature, false},
	SleepDuration:        {"sleep duration", "min", GroupSleep, true},
	DeepSleep:            {"deep sleep", "min", GroupSleep, true},
	REMSleep:             {"REM sleep", "min", GroupSleep, true},
	SleepEfficiency:      {"sleep efficiency", "%", GroupSleep, true},
	Steps:                {"steps", "steps", GroupActivity, true},
	ActiveCalories:       {"active calories", "kcal", GroupActivity, true},
	ExerciseMinutes:      {"exercise minutes", "min", GroupActivity, true},
	GlucoseAverage:       {"average glucose", "mg/dL", GroupMetabolic, false},
	RecoveryScore:        {"recovery score", "", GroupRecovery, true},
}

// All returns every catalog metric in a stable order
func All() []Type {
	return []Type{
		HRV, RestingHeartRate, RespiratoryRate, BloodOxygen, TemperatureDeviation,
		SleepDuration, DeepSleep, REMSleep, SleepEfficiency,
		Steps, ActiveCalories, ExerciseMinutes, GlucoseAverage, RecoveryScore,
	}
}

// Known reports whether t is in the catalog
func Known(t Type) bool {
	_, ok := catalog[t]
	return ok
}

// Label returns the display label for a metric
func Label(t Type) string {
	if s, ok := catalog[t]; ok {
		return s.label
	}
	return string(t)
}

// GroupOf returns the metric's group; unknown metrics are treated as cardio
func GroupOf(t Type) Group {
	return catalog[t].group
}

// IsTemperature reports whether the metric already expresses an absolute °C deviation
func IsTemperature(t Type) bool {
	return GroupOf(t) == GroupTemperature
}

// IsSleep reports whether the metric is a sleep stage/duration outcome.
// Sleep outcomes lag behind the previous day's behavior.
func IsSleep(t Type) bool {
	return GroupOf(t) == GroupSleep
}

// HigherIsBetter reports the metric's polarity
func HigherIsBetter(t Type) bool {
	return catalog[t].higherBetter
}

// Polarity is +1 when higher is better and -1 otherwise
func Polarity(t Type) float64 {
	if HigherIsBetter(t) {
		return 1
	}
	return -1
}

// BehaviorLagDays is how many days before the outcome the explaining behavior happened
func BehaviorLagDays(t Type) int {
	if IsSleep(t) {
		return 1
	}
	return 0
}

// NoiseFloor is the minimum |deviation| worth surfacing, in percent or, for temperature, °C
func NoiseFloor(t Type) float64 {
	switch GroupOf(t) {
	case GroupActivity:
		return database.NoiseFloorActivityPct
	case GroupSleep, GroupRecovery:
		return database.NoiseFloorRecoveryPct
	case GroupTemperature:
		return database.NoiseFloorTemperatureC
	}
	return database.NoiseFloorDefaultPct
}

// FormatDeviation renders a deviation for display: "+0.4°C" for temperature metrics, "+17%" otherwise
func FormatDeviation(t Type, deviation float64) string {
	if IsTemperature(t) {
		return helpers.FormatSignedCelsius(deviation)
	}
	return helpers.FormatSignedPercent(deviation)
}

// Unit returns the display unit for a metric's raw values
func Unit(t Type) string {
	return catalog[t].unit
}
