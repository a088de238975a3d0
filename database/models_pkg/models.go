package models

import "time"

// Factor sources
const (
	SourceDevice      = "device"
	SourceUserLogged  = "user_logged"
	SourceExternalAPI = "external_api"
	SourceSystem      = "system"
)

// BehaviorFactor is one normalized behavioral or environmental signal for a user-day.
//
// Key Fields:
//   - UserID/LocalDate/Category/FactorKey: unique identity of the factor
//   - NumericValue/StringValue: exactly one is set, depending on the registry kind
//   - DeviationFromBaselinePct/BaselineValue: set once by baseline enrichment
//   - IsNotable: |deviation| >= 30%, independent of the anomaly threshold
//   - Source: device, user_logged, external_api or system
//
// Rows are created daily by the factor extractor and are immutable once enriched.
// History is kept indefinitely because its depth drives pattern confidence.
type BehaviorFactor struct {
	ID                       int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID                   string    `gorm:"type:text;not null;uniqueIndex:idx_factor_identity,priority:1;index:idx_factor_user_key,priority:1" json:"user_id"`
	LocalDate                time.Time `gorm:"type:date;not null;uniqueIndex:idx_factor_identity,priority:2;index:idx_factor_user_key,priority:3" json:"local_date"`
	Category                 string    `gorm:"type:text;not null;uniqueIndex:idx_factor_identity,priority:3" json:"category"`
	FactorKey                string    `gorm:"type:text;not null;uniqueIndex:idx_factor_identity,priority:4;index:idx_factor_user_key,priority:2" json:"key"`
	NumericValue             *float64  `gorm:"type:double precision" json:"numeric_value,omitempty"`
	StringValue              *string   `gorm:"type:text" json:"string_value,omitempty"`
	DeviationFromBaselinePct *float64  `gorm:"type:double precision" json:"deviation_from_baseline_pct,omitempty"`
	BaselineValue            *float64  `gorm:"type:double precision" json:"baseline_value,omitempty"`
	IsNotable                bool      `gorm:"not null;default:false" json:"is_notable"`
	Source                   string    `gorm:"type:text;not null" json:"source"`
	CreatedAt                time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// TableName specifies the table name for BehaviorFactor
func (BehaviorFactor) TableName() string {
	return "behavior_factors"
}

// IsEnriched reports whether baseline enrichment has already run for this factor
func (f *BehaviorFactor) IsEnriched() bool {
	return f.DeviationFromBaselinePct != nil
}

// DailyMetric is one outcome metric value for a user-day (HRV, resting HR, deep sleep, ...)
type DailyMetric struct {
	UserID     string    `gorm:"type:text;primaryKey" json:"user_id"`
	MetricType string    `gorm:"type:text;primaryKey" json:"metric_type"`
	LocalDate  time.Time `gorm:"type:date;primaryKey" json:"local_date"`
	Value      float64   `gorm:"type:double precision;not null" json:"value"`
}

// TableName specifies the table name for DailyMetric
func (DailyMetric) TableName() string {
	return "daily_metrics"
}

// ============================================================================
// Source signal tables (read-only for the engine)
// ============================================================================

// NutritionDay holds one day of logged nutrition totals
type NutritionDay struct {
	UserID       string     `gorm:"type:text;primaryKey" json:"user_id"`
	LocalDate    time.Time  `gorm:"type:date;primaryKey" json:"local_date"`
	Calories     *float64   `json:"calories,omitempty"`
	ProteinG     *float64   `json:"protein_g,omitempty"`
	CarbsG       *float64   `json:"carbs_g,omitempty"`
	FatG         *float64   `json:"fat_g,omitempty"`
	FiberG       *float64   `json:"fiber_g,omitempty"`
	SugarG       *float64   `json:"sugar_g,omitempty"`
	AlcoholUnits *float64   `json:"alcohol_units,omitempty"`
	CaffeineMg   *float64   `json:"caffeine_mg,omitempty"`
	WaterMl      *float64   `json:"water_ml,omitempty"`
	LastMealAt   *time.Time `gorm:"type:timestamp" json:"last_meal_at,omitempty"` // local wall-clock time
	Source       string     `gorm:"type:text" json:"source"`
}

// TableName specifies the table name for NutritionDay
func (NutritionDay) TableName() string {
	return "nutrition_daily"
}

// WorkoutSession is a single recorded workout
type WorkoutSession struct {
	ID           int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID       string    `gorm:"type:text;not null;index:idx_workout_user_date,priority:1" json:"user_id"`
	LocalDate    time.Time `gorm:"type:date;not null;index:idx_workout_user_date,priority:2" json:"local_date"`
	StartedAt    time.Time `gorm:"type:timestamp;not null" json:"started_at"` // local wall-clock time
	WorkoutType  string    `gorm:"type:text" json:"workout_type"`
	DurationMin  float64   `json:"duration_min"`
	Calories     *float64  `json:"calories,omitempty"`
	AvgHeartRate *float64  `json:"avg_heart_rate,omitempty"`
	MaxHeartRate *float64  `json:"max_heart_rate,omitempty"`
	Strain       *float64  `json:"strain,omitempty"`
	Source       string    `gorm:"type:text" json:"source"`
}

// TableName specifies the table name for WorkoutSession
func (WorkoutSession) TableName() string {
	return "workout_sessions"
}

// RecoverySession is a recovery modality such as sauna or cold plunge
type RecoverySession struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID      string    `gorm:"type:text;not null;index:idx_recovery_user_date,priority:1" json:"user_id"`
	LocalDate   time.Time `gorm:"type:date;not null;index:idx_recovery_user_date,priority:2" json:"local_date"`
	Modality    string    `gorm:"type:text;not null" json:"modality"` // sauna, cold_plunge, meditation, massage, breathwork
	DurationMin float64   `json:"duration_min"`
	Source      string    `gorm:"type:text" json:"source"`
}

// TableName specifies the table name for RecoverySession
func (RecoverySession) TableName() string {
	return "recovery_sessions"
}

// EnvironmentDay holds the user's environment and location for a day
type EnvironmentDay struct {
	UserID             string    `gorm:"type:text;primaryKey" json:"user_id"`
	LocalDate          time.Time `gorm:"type:date;primaryKey" json:"local_date"`
	AvgTempC           *float64  `json:"avg_temp_c,omitempty"`
	HumidityPct        *float64  `json:"humidity_pct,omitempty"`
	AltitudeM          *float64  `json:"altitude_m,omitempty"`
	AQI                *float64  `gorm:"column:aqi" json:"aqi,omitempty"`
	Location           *string   `gorm:"type:text" json:"location,omitempty"`
	TimezoneShiftHours *float64  `json:"timezone_shift_hours,omitempty"`
}

// TableName specifies the table name for EnvironmentDay
func (EnvironmentDay) TableName() string {
	return "environment_daily"
}

// LifeEvent is a user-logged or detected event spanning one or more days
type LifeEvent struct {
	ID        int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    string     `gorm:"type:text;not null;index" json:"user_id"`
	EventType string     `gorm:"type:text;not null" json:"event_type"` // travel, illness, stress, ...
	Label     string     `gorm:"type:text" json:"label"`
	StartDate time.Time  `gorm:"type:date;not null" json:"start_date"`
	EndDate   *time.Time `gorm:"type:date" json:"end_date,omitempty"` // nil while ongoing
}

// TableName specifies the table name for LifeEvent
func (LifeEvent) TableName() string {
	return "life_events"
}

// SleepSession is the main sleep period that ends on LocalDate
type SleepSession struct {
	UserID    string    `gorm:"type:text;primaryKey" json:"user_id"`
	LocalDate time.Time `gorm:"type:date;primaryKey" json:"local_date"`    // date of waking
	BedtimeAt time.Time `gorm:"type:timestamp;not null" json:"bedtime_at"` // local wall-clock time
	WakeAt    time.Time `gorm:"type:timestamp;not null" json:"wake_at"`    // local wall-clock time
	InBedMin  *float64  `json:"in_bed_min,omitempty"`
	Source    string    `gorm:"type:text" json:"source"`
}

// TableName specifies the table name for SleepSession
func (SleepSession) TableName() string {
	return "sleep_sessions"
}

// GlucoseReading is a single CGM or fingerstick reading in mg/dL
type GlucoseReading struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    string    `gorm:"type:text;not null;index:idx_glucose_user_date,priority:1" json:"user_id"`
	LocalDate time.Time `gorm:"type:date;not null;index:idx_glucose_user_date,priority:2" json:"local_date"`
	ReadAt    time.Time `gorm:"not null" json:"read_at"`
	MgDl      float64   `gorm:"column:mg_dl;not null" json:"mg_dl"`
}

// TableName specifies the table name for GlucoseReading
func (GlucoseReading) TableName() string {
	return "glucose_readings"
}

// ============================================================================
// Derived tables
// ============================================================================

// MLSettingsRecord is the admin-editable row backing the settings provider
type MLSettingsRecord struct {
	ID                       string    `gorm:"type:text;primaryKey" json:"id"`
	AnomalyZScoreThreshold   float64   `json:"anomaly_z_score_threshold"`
	MinAnomalyConfidence     float64   `json:"min_anomaly_confidence"`
	MinPatternMatches        int       `json:"min_pattern_matches"`
	HistoryLookbackMonths    int       `json:"history_lookback_months"`
	MinPositiveOccurrences   int       `json:"min_positive_occurrences"`
	PositiveOutcomeThreshold float64   `json:"positive_outcome_threshold"`
	InsightConfidenceFloor   float64   `json:"insight_confidence_floor"`
	AlertCooldownHours       float64   `json:"alert_cooldown_hours"`
	UpdatedAt                time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName specifies the table name for MLSettingsRecord
func (MLSettingsRecord) TableName() string {
	return "ml_settings"
}

// Insight is the persisted decision for one anomaly.
// Causes, Pattern and Positives hold JSON so the narrative layer can read them as-is.
type Insight struct {
	ID           int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	RunID        string    `gorm:"type:text;index" json:"run_id"`
	UserID       string    `gorm:"type:text;not null;uniqueIndex:idx_insight_identity,priority:1" json:"user_id"`
	LocalDate    time.Time `gorm:"type:date;not null;uniqueIndex:idx_insight_identity,priority:2" json:"local_date"`
	MetricType   string    `gorm:"type:text;not null;uniqueIndex:idx_insight_identity,priority:3" json:"metric_type"`
	Direction    string    `gorm:"type:text;not null" json:"direction"`
	Severity     string    `gorm:"type:text;not null" json:"severity"`
	DeviationPct float64   `json:"deviation_pct"`
	ZScore       float64   `json:"z_score"`
	Fingerprint  *string   `gorm:"type:text" json:"fingerprint,omitempty"`
	QualityScore float64   `json:"quality_score"`
	Admitted     bool      `gorm:"not null;index" json:"admitted"`
	RejectReason string    `gorm:"type:text" json:"reject_reason,omitempty"`
	Causes       string    `gorm:"type:jsonb" json:"causes"`
	Pattern      string    `gorm:"type:jsonb" json:"pattern"`
	Positives    string    `gorm:"type:jsonb" json:"positives"`
	Published    bool      `gorm:"not null;default:false" json:"published"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// TableName specifies the table name for Insight
func (Insight) TableName() string {
	return "insights"
}
