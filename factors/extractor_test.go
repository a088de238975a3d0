package factors

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pulse-insights/database"
	models "pulse-insights/database/models_pkg"
)

type fakeStore struct {
	nutrition   *models.NutritionDay
	workouts    []models.WorkoutSession
	recovery    []models.RecoverySession
	environment *models.EnvironmentDay
	events      []models.LifeEvent
	sleep       map[string]*models.SleepSession
	glucose     []models.GlucoseReading

	nutritionErr error
	glucoseErr   error
}

func (f *fakeStore) GetNutritionDay(ctx context.Context, userID string, date time.Time) (*models.NutritionDay, error) {
	return f.nutrition, f.nutritionErr
}

func (f *fakeStore) GetWorkouts(ctx context.Context, userID string, date time.Time) ([]models.WorkoutSession, error) {
	return f.workouts, nil
}

func (f *fakeStore) GetRecoverySessions(ctx context.Context, userID string, date time.Time) ([]models.RecoverySession, error) {
	return f.recovery, nil
}

func (f *fakeStore) GetEnvironmentDay(ctx context.Context, userID string, date time.Time) (*models.EnvironmentDay, error) {
	return f.environment, nil
}

func (f *fakeStore) GetActiveLifeEvents(ctx context.Context, userID string, date time.Time) ([]models.LifeEvent, error) {
	return f.events, nil
}

func (f *fakeStore) GetSleepSession(ctx context.Context, userID string, date time.Time) (*models.SleepSession, error) {
	return f.sleep[date.Format("2006-01-02")], nil
}

func (f *fakeStore) GetGlucoseReadings(ctx context.Context, userID string, date time.Time) ([]models.GlucoseReading, error) {
	return f.glucose, f.glucoseErr
}

func ptr(v float64) *float64 { return &v }

func factorMap(fs []models.BehaviorFactor) map[string]models.BehaviorFactor {
	m := make(map[string]models.BehaviorFactor, len(fs))
	for _, f := range fs {
		m[KeyOf(&f).String()] = f
	}
	return m
}

var day = time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)

func TestExtractorSkipsFailingSource(t *testing.T) {
	store := &fakeStore{
		nutritionErr: errors.New("connection reset"),
		recovery: []models.RecoverySession{
			{Modality: "sauna", DurationMin: 20},
			{Modality: "sauna", DurationMin: 10},
		},
	}

	var failed []string
	e := NewExtractor(store)
	e.OnSourceFailure(func(source string, err error) { failed = append(failed, source) })

	got := factorMap(e.Extract(context.Background(), "u1", day))

	assert.Equal(t, []string{"nutrition"}, failed)
	require.Contains(t, got, "recovery.sauna_minutes")
	assert.InDelta(t, 30, *got["recovery.sauna_minutes"].NumericValue, 1e-9)
	for k := range got {
		assert.NotContains(t, k, "nutrition.")
	}
}

func TestExtractorAllSourcesEmpty(t *testing.T) {
	e := NewExtractor(&fakeStore{})
	assert.Empty(t, e.Extract(context.Background(), "u1", day))
}

func TestWorkoutAggregation(t *testing.T) {
	store := &fakeStore{
		workouts: []models.WorkoutSession{
			{StartedAt: time.Date(2024, 3, 10, 7, 0, 0, 0, time.UTC), WorkoutType: "Run", DurationMin: 30, AvgHeartRate: ptr(150), MaxHeartRate: ptr(175), Calories: ptr(300)},
			{StartedAt: time.Date(2024, 3, 10, 18, 30, 0, 0, time.UTC), WorkoutType: "strength", DurationMin: 60, AvgHeartRate: ptr(120), MaxHeartRate: ptr(160)},
		},
	}

	got := factorMap(NewExtractor(store).Extract(context.Background(), "u1", day))

	assert.Equal(t, 2.0, *got["workout.workout_count"].NumericValue)
	assert.Equal(t, 90.0, *got["workout.workout_minutes"].NumericValue)
	assert.Equal(t, 300.0, *got["workout.workout_calories"].NumericValue)
	assert.InDelta(t, 130.0, *got["workout.workout_avg_hr"].NumericValue, 1e-9)
	assert.Equal(t, 175.0, *got["workout.workout_max_hr"].NumericValue)
	assert.Equal(t, 420.0, *got["workout.first_workout_time"].NumericValue)
	assert.Equal(t, 1110.0, *got["workout.last_workout_time"].NumericValue)
	assert.Equal(t, "run,strength", *got["workout.workout_types"].StringValue)
	assert.NotContains(t, got, "workout.workout_strain")
}

func TestSleepTimingUsesNightStartingOnDate(t *testing.T) {
	store := &fakeStore{
		sleep: map[string]*models.SleepSession{
			"2024-03-11": {
				BedtimeAt: time.Date(2024, 3, 11, 1, 0, 0, 0, time.UTC),
				WakeAt:    time.Date(2024, 3, 11, 8, 30, 0, 0, time.UTC),
			},
		},
	}

	got := factorMap(NewExtractor(store).Extract(context.Background(), "u1", day))

	require.Contains(t, got, "sleep_timing.bedtime")
	assert.Equal(t, 1500.0, *got["sleep_timing.bedtime"].NumericValue)
	assert.Equal(t, "01:00", FormatValue(ptrFactor(got["sleep_timing.bedtime"])))
	assert.Equal(t, 510.0, *got["sleep_timing.wake_time"].NumericValue)
	assert.Equal(t, 450.0, *got["sleep_timing.time_in_bed_minutes"].NumericValue)
}

func ptrFactor(f models.BehaviorFactor) *models.BehaviorFactor { return &f }

func TestBedtimeOrdering(t *testing.T) {
	late := Bedtime(time.Date(2024, 3, 11, 0, 30, 0, 0, time.UTC))
	early := Bedtime(time.Date(2024, 3, 10, 23, 0, 0, 0, time.UTC))
	assert.Greater(t, late.Float(), early.Float())
}

func TestSummarizeGlucose(t *testing.T) {
	readings := []models.GlucoseReading{{MgDl: 60}, {MgDl: 100}, {MgDl: 140}, {MgDl: 200}}
	st := SummarizeGlucose(readings)

	assert.Equal(t, 125.0, st.Mean)
	assert.Equal(t, 200.0, st.Max)
	assert.Equal(t, 60.0, st.Min)
	assert.InDelta(t, 51.72, st.StdDev, 0.01)
	assert.Equal(t, 50.0, st.TimeInRangePct)

	single := SummarizeGlucose([]models.GlucoseReading{{MgDl: 95}})
	assert.Equal(t, 95.0, single.Mean)
	assert.Equal(t, 95.0, single.Max)
	assert.Equal(t, 95.0, single.Min)
	assert.Zero(t, single.StdDev)
	assert.Equal(t, 100.0, single.TimeInRangePct)
}

func TestLifeEventsDeduplicateAndSkipUnknown(t *testing.T) {
	store := &fakeStore{
		events: []models.LifeEvent{
			{EventType: "travel", Label: "Lisbon trip"},
			{EventType: "travel", Label: "Another trip"},
			{EventType: "moon_phase"},
		},
	}

	got := factorMap(NewExtractor(store).Extract(context.Background(), "u1", day))

	require.Len(t, got, 1)
	assert.Equal(t, "Lisbon trip", *got["life_event.travel"].StringValue)
	assert.True(t, IsPresence(Key{CategoryLifeEvent, "travel"}))
}

func TestNewFactorValidation(t *testing.T) {
	_, err := NewFactor("u1", day, Key{CategoryNutrition, "unicorns"}, Numeric(1), models.SourceDevice)
	var verr *database.ValidationError
	require.ErrorAs(t, err, &verr)

	_, err = NewFactor("u1", day, Key{CategoryNutrition, "calories"}, Text("lots"), models.SourceDevice)
	require.ErrorAs(t, err, &verr)

	f, err := NewFactor("u1", day.Add(15*time.Hour), Key{CategoryNutrition, "calories"}, Numeric(2100), models.SourceUserLogged)
	require.NoError(t, err)
	assert.Equal(t, day, f.LocalDate)
	assert.Equal(t, "2,100 kcal", FormatValue(&f))
}

func TestParseKey(t *testing.T) {
	k, ok := ParseKey("recovery.sauna_minutes")
	require.True(t, ok)
	assert.Equal(t, Key{CategoryRecovery, "sauna_minutes"}, k)
	assert.Equal(t, "sauna", Label(k))

	_, ok = ParseKey("nodot")
	assert.False(t, ok)
}
