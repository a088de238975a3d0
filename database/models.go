// Package database provides database connection management for the pulse-insights anomaly attribution engine.
//
// This package includes:
//   - Database connection management using GORM and PostgreSQL
//   - Schema initialization for source signal tables and derived tables
//   - Comprehensive error handling and validation
//
// Key Concepts:
//   - Every row is scoped to a single user; queries never aggregate across users
//   - Source signal tables are read-only for the engine
//   - Derived tables (behavior_factors enrichment, insights) are the only write targets
//
// Data Models:
//
//	All data models (BehaviorFactor, DailyMetric, Insight, etc.) are defined in the models_pkg package
//	to avoid circular import dependencies.
package database

import (
	"fmt"
	"log"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	models "pulse-insights/database/models_pkg"
)

// Database holds the GORM database connection and provides access to the underlying DB instance.
// It serves as the central connection point for all repositories in the application.
type Database struct {
	db *gorm.DB
}

// DB returns the underlying GORM database instance for direct access when needed.
func (d *Database) DB() *gorm.DB {
	return d.db
}

// Connect establishes database connection using GORM
func Connect(host string, port int, dbname, user, password string) (*Database, error) {
	dsn := fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=disable",
		host, port, dbname, user, password)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent), // Silent logging for production
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access connection pool: %w", err)
	}

	// Pool sized for concurrent per-user pipelines
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)
	sqlDB.SetConnMaxIdleTime(2 * time.Minute)

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Println("✅ Database connection established")

	return &Database{db: db}, nil
}

// Close closes the database connection
func (d *Database) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	log.Println("📡 Closing database connection...")
	return sqlDB.Close()
}

// ============================================================================
// Type Aliases
// ============================================================================

// These aliases let callers import model types from the database package directly.

type BehaviorFactor = models.BehaviorFactor
type DailyMetric = models.DailyMetric
type NutritionDay = models.NutritionDay
type WorkoutSession = models.WorkoutSession
type RecoverySession = models.RecoverySession
type EnvironmentDay = models.EnvironmentDay
type LifeEvent = models.LifeEvent
type SleepSession = models.SleepSession
type GlucoseReading = models.GlucoseReading
type MLSettingsRecord = models.MLSettingsRecord
type Insight = models.Insight
