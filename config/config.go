package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	// Database configuration
	DatabaseHost     string
	DatabasePort     string
	DatabaseName     string
	DatabaseUser     string
	DatabasePassword string

	// Redis configuration
	RedisHost     string
	RedisPassword string
	RedisPort     string

	// Metrics listener address (empty disables the listener)
	MetricsAddr string

	// Analysis configuration
	Analysis AnalysisConfig
}

// AnalysisConfig holds cycle and pipeline parameters.
// Statistical thresholds live in the ml_settings table, not here.
type AnalysisConfig struct {
	// Cycle
	Concurrency        int  // Users analysed in parallel
	IntervalHours      int  // Ticker interval when running as a service
	RunOnce            bool // Run a single cycle and exit (external scheduler mode)
	UserTimeoutSeconds int  // Per-user deadline; truncates history scans
	ActiveUserDays     int  // Users with metrics in this many days are analysed

	// Fixed local date to analyse (YYYY-MM-DD); empty means the current date
	Date string

	// Baselines
	BaselineWindowDays int

	// Settings cache
	SettingsCacheTTLSeconds int
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() *Config {
	// Load .env file if exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	return &Config{
		// Database configuration
		DatabaseHost:     getEnvOrDefault("DB_HOST", "localhost"),
		DatabasePort:     getEnvOrDefault("DB_PORT", "5432"),
		DatabaseName:     getEnvOrDefault("DB_NAME", "pulse"),
		DatabaseUser:     getEnvOrDefault("DB_USER", "pulse"),
		DatabasePassword: getEnvOrDefault("DB_PASSWORD", "pulse123"),

		// Redis configuration
		RedisHost:     getEnvOrDefault("REDIS_HOST", "localhost"),
		RedisPort:     getEnvOrDefault("REDIS_PORT", "6379"),
		RedisPassword: getEnvOrDefault("REDIS_PASSWORD", ""),

		MetricsAddr: getEnvOrDefault("METRICS_ADDR", ":9090"),

		Analysis: AnalysisConfig{
			Concurrency:        getEnvInt("ANALYSIS_CONCURRENCY", 8),
			IntervalHours:      getEnvInt("ANALYSIS_INTERVAL_HOURS", 24),
			RunOnce:            getEnvOrDefault("ANALYSIS_RUN_ONCE", "false") == "true",
			UserTimeoutSeconds: getEnvInt("ANALYSIS_USER_TIMEOUT_SECONDS", 120),
			ActiveUserDays:     getEnvInt("ANALYSIS_ACTIVE_USER_DAYS", 3),
			Date:               getEnvOrDefault("ANALYSIS_DATE", ""),

			BaselineWindowDays: getEnvInt("ANALYSIS_BASELINE_WINDOW_DAYS", 30),

			SettingsCacheTTLSeconds: getEnvInt("SETTINGS_CACHE_TTL_SECONDS", 60),
		},
	}
}

// TargetDate returns the date a cycle should analyse
func (a AnalysisConfig) TargetDate(now time.Time) (time.Time, error) {
	if a.Date == "" {
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC), nil
	}
	d, err := time.Parse("2006-01-02", a.Date)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid ANALYSIS_DATE %q: %w", a.Date, err)
	}
	return d, nil
}

// UserTimeout returns the per-user deadline; zero disables it
func (a AnalysisConfig) UserTimeout() time.Duration {
	if a.UserTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.UserTimeoutSeconds) * time.Second
}

// getEnvInt gets environment variable as int or returns default value
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var intValue int
	if _, err := fmt.Sscanf(value, "%d", &intValue); err != nil {
		return defaultValue
	}
	return intValue
}

// getEnvOrDefault gets environment variable or returns default value
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
