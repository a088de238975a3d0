package sources

import (
	"context"
	"time"

	"gorm.io/gorm"

	"pulse-insights/database"
	models "pulse-insights/database/models_pkg"
)

// Repository reads the raw per-day source signal tables.
// The engine never writes to these tables.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new source signal repository
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// GetNutritionDay retrieves the nutrition totals for a user-day
func (r *Repository) GetNutritionDay(ctx context.Context, userID string, date time.Time) (*models.NutritionDay, error) {
	var day models.NutritionDay
	err := r.db.WithContext(ctx).Where("user_id = ? AND local_date = ?", userID, date).First(&day).Error
	if err != nil {
		if database.IsRecordNotFound(err) {
			return nil, nil
		}
		return nil, database.WrapUserDBError("GetNutritionDay", userID, err)
	}
	return &day, nil
}

// GetWorkouts retrieves all workouts for a user-day ordered by start time
func (r *Repository) GetWorkouts(ctx context.Context, userID string, date time.Time) ([]models.WorkoutSession, error) {
	var sessions []models.WorkoutSession
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND local_date = ?", userID, date).
		Order("started_at ASC").
		Find(&sessions).Error
	if err != nil {
		return nil, database.WrapUserDBError("GetWorkouts", userID, err)
	}
	return sessions, nil
}

// GetRecoverySessions retrieves recovery modalities for a user-day
func (r *Repository) GetRecoverySessions(ctx context.Context, userID string, date time.Time) ([]models.RecoverySession, error) {
	var sessions []models.RecoverySession
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND local_date = ?", userID, date).
		Find(&sessions).Error
	if err != nil {
		return nil, database.WrapUserDBError("GetRecoverySessions", userID, err)
	}
	return sessions, nil
}

// GetEnvironmentDay retrieves the environment snapshot for a user-day
func (r *Repository) GetEnvironmentDay(ctx context.Context, userID string, date time.Time) (*models.EnvironmentDay, error) {
	var day models.EnvironmentDay
	err := r.db.WithContext(ctx).Where("user_id = ? AND local_date = ?", userID, date).First(&day).Error
	if err != nil {
		if database.IsRecordNotFound(err) {
			return nil, nil
		}
		return nil, database.WrapUserDBError("GetEnvironmentDay", userID, err)
	}
	return &day, nil
}

// GetActiveLifeEvents retrieves life events covering the given date (ongoing events included)
func (r *Repository) GetActiveLifeEvents(ctx context.Context, userID string, date time.Time) ([]models.LifeEvent, error) {
	var events []models.LifeEvent
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND start_date <= ?", userID, date).
		Where("end_date IS NULL OR end_date >= ?", date).
		Order("start_date ASC").
		Find(&events).Error
	if err != nil {
		return nil, database.WrapUserDBError("GetActiveLifeEvents", userID, err)
	}
	return events, nil
}

// GetSleepSession retrieves the main sleep that ended on the given date
func (r *Repository) GetSleepSession(ctx context.Context, userID string, date time.Time) (*models.SleepSession, error) {
	var session models.SleepSession
	err := r.db.WithContext(ctx).Where("user_id = ? AND local_date = ?", userID, date).First(&session).Error
	if err != nil {
		if database.IsRecordNotFound(err) {
			return nil, nil
		}
		return nil, database.WrapUserDBError("GetSleepSession", userID, err)
	}
	return &session, nil
}

// GetGlucoseReadings retrieves every glucose reading for a user-day
func (r *Repository) GetGlucoseReadings(ctx context.Context, userID string, date time.Time) ([]models.GlucoseReading, error) {
	var readings []models.GlucoseReading
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND local_date = ?", userID, date).
		Order("read_at ASC").
		Find(&readings).Error
	if err != nil {
		return nil, database.WrapUserDBError("GetGlucoseReadings", userID, err)
	}
	return readings, nil
}
