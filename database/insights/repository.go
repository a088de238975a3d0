package insights

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"pulse-insights/database"
	models "pulse-insights/database/models_pkg"
)

// Repository handles the derived insight and settings tables
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new insights repository
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// ============================================================================
// ML Settings
// ============================================================================

// LoadSettings retrieves the global settings row, or nil when it does not exist
func (r *Repository) LoadSettings(ctx context.Context) (*models.MLSettingsRecord, error) {
	var record models.MLSettingsRecord
	err := r.db.WithContext(ctx).Where("id = ?", database.SettingsRecordID).First(&record).Error
	if err != nil {
		if database.IsRecordNotFound(err) {
			return nil, nil
		}
		return nil, database.WrapDBError("LoadSettings", err)
	}
	return &record, nil
}

// ============================================================================
// Insights
// ============================================================================

// insightUpdateColumns are overwritten when a date is re-run; published is
// owned by MarkPublished and survives re-runs
var insightUpdateColumns = []string{
	"run_id", "direction", "severity", "deviation_pct", "z_score", "fingerprint",
	"quality_score", "admitted", "reject_reason", "causes", "pattern", "positives",
}

// SaveInsight persists the decision for one (user, date, metric), replacing an earlier run's row
func (r *Repository) SaveInsight(ctx context.Context, insight *models.Insight) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "local_date"}, {Name: "metric_type"}},
		DoUpdates: clause.AssignmentColumns(insightUpdateColumns),
	}).Create(insight).Error
	if err != nil {
		return database.WrapUserDBError("SaveInsight", insight.UserID, err)
	}
	return nil
}

// MarkPublished flags an insight as handed to the narrative consumer
func (r *Repository) MarkPublished(ctx context.Context, userID string, date time.Time, metricType string) error {
	err := r.db.WithContext(ctx).Model(&models.Insight{}).
		Where("user_id = ? AND local_date = ? AND metric_type = ?", userID, date, metricType).
		Update("published", true).Error
	if err != nil {
		return database.WrapUserDBError("MarkPublished", userID, err)
	}
	return nil
}
