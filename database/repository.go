package database

import (
	"fmt"
)

// SchemaManager owns schema initialization for all engine tables
type SchemaManager struct {
	db *Database
}

// NewSchemaManager creates a new schema manager
func NewSchemaManager(db *Database) *SchemaManager {
	return &SchemaManager{db: db}
}

// InitSchema performs auto-migration and creates the supporting indexes
func (s *SchemaManager) InitSchema() error {
	fmt.Println("🔄 Starting database schema initialization...")

	err := s.db.db.AutoMigrate(
		// Source signal tables
		&NutritionDay{},
		&WorkoutSession{},
		&RecoverySession{},
		&EnvironmentDay{},
		&LifeEvent{},
		&SleepSession{},
		&GlucoseReading{},
		&DailyMetric{},
		// Derived tables
		&BehaviorFactor{},
		&MLSettingsRecord{},
		&Insight{},
	)
	if err != nil {
		return fmt.Errorf("auto-migration failed: %w", err)
	}

	// Range scans by (user, metric, date) dominate the matcher and miner
	if err := s.db.db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_daily_metrics_user_metric_date
		ON daily_metrics (user_id, metric_type, local_date)
	`).Error; err != nil {
		fmt.Printf("⚠️ Warning: Failed to create index on daily_metrics: %v\n", err)
	}

	// Partial index for enrichment lookups of notable factors
	if err := s.db.db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_behavior_factors_notable
		ON behavior_factors (user_id, local_date)
		WHERE is_notable
	`).Error; err != nil {
		fmt.Printf("⚠️ Warning: Failed to create notable factor index: %v\n", err)
	}

	if err := s.seedSettings(); err != nil {
		fmt.Printf("⚠️ Warning: Failed to seed ml_settings: %v\n", err)
	}

	fmt.Println("✅ Database schema initialization completed successfully")
	return nil
}

// seedSettings inserts the global settings row when it does not exist yet.
// Existing admin edits are never overwritten.
func (s *SchemaManager) seedSettings() error {
	return s.db.db.Exec(`
		INSERT INTO ml_settings (
			id, anomaly_z_score_threshold, min_anomaly_confidence, min_pattern_matches,
			history_lookback_months, min_positive_occurrences, positive_outcome_threshold,
			insight_confidence_floor, alert_cooldown_hours, updated_at
		) VALUES (?, 2.0, 0.5, 3, 24, 5, 0.1, 0.3, 4, NOW())
		ON CONFLICT (id) DO NOTHING
	`, SettingsRecordID).Error
}

// SettingsRecordID is the key of the single global settings row
const SettingsRecordID = "global"
