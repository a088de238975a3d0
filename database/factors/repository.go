package factors

import (
	"context"
	"time"

	"github.com/lib/pq"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"pulse-insights/database"
	models "pulse-insights/database/models_pkg"
	"pulse-insights/database/types"
)

// Repository is the per-user time-series store for behavior factors and outcome metrics
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new factor repository
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// ============================================================================
// Behavior Factors
// ============================================================================

// UpsertFactors writes extracted factors.
// Conflicting rows keep their enrichment: deviation and baseline columns are only
// filled when the stored row has none yet, so enriched factors stay immutable.
func (r *Repository) UpsertFactors(ctx context.Context, factors []models.BehaviorFactor) error {
	if len(factors) == 0 {
		return nil
	}

	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "local_date"}, {Name: "category"}, {Name: "factor_key"}},
		DoUpdates: clause.Set{
			{Column: clause.Column{Name: "deviation_from_baseline_pct"}, Value: gorm.Expr("COALESCE(behavior_factors.deviation_from_baseline_pct, EXCLUDED.deviation_from_baseline_pct)")},
			{Column: clause.Column{Name: "baseline_value"}, Value: gorm.Expr("COALESCE(behavior_factors.baseline_value, EXCLUDED.baseline_value)")},
			{Column: clause.Column{Name: "is_notable"}, Value: gorm.Expr("CASE WHEN behavior_factors.deviation_from_baseline_pct IS NULL THEN EXCLUDED.is_notable ELSE behavior_factors.is_notable END")},
		},
	}).Create(&factors).Error
	if err != nil {
		return database.WrapUserDBError("UpsertFactors", factors[0].UserID, err)
	}
	return nil
}

// GetFactorsForDate returns every factor recorded for one user-day
func (r *Repository) GetFactorsForDate(ctx context.Context, userID string, date time.Time) ([]models.BehaviorFactor, error) {
	var factors []models.BehaviorFactor
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND local_date = ?", userID, date).
		Order("category, factor_key").
		Find(&factors).Error
	if err != nil {
		return nil, database.WrapUserDBError("GetFactorsForDate", userID, err)
	}
	return factors, nil
}

// GetFactorsInRange returns factors for [from, to) ordered by date.
// An empty keys slice means every key.
func (r *Repository) GetFactorsInRange(ctx context.Context, userID string, from, to time.Time, keys []string) ([]models.BehaviorFactor, error) {
	var factors []models.BehaviorFactor
	query := r.db.WithContext(ctx).
		Where("user_id = ? AND local_date >= ? AND local_date < ?", userID, from, to)

	if len(keys) > 0 {
		query = query.Where("factor_key = ANY(?)", pq.Array(keys))
	}

	if err := query.Order("local_date ASC").Find(&factors).Error; err != nil {
		return nil, database.WrapUserDBError("GetFactorsInRange", userID, err)
	}
	return factors, nil
}

// GetFactorSeries returns the non-null numeric values of one factor for [from, to) ordered by date
func (r *Repository) GetFactorSeries(ctx context.Context, userID, category, key string, from, to time.Time) ([]types.DateValue, error) {
	var series []types.DateValue
	err := r.db.WithContext(ctx).
		Model(&models.BehaviorFactor{}).
		Select("local_date AS date, numeric_value AS value").
		Where("user_id = ? AND category = ? AND factor_key = ?", userID, category, key).
		Where("local_date >= ? AND local_date < ? AND numeric_value IS NOT NULL", from, to).
		Order("local_date ASC").
		Scan(&series).Error
	if err != nil {
		return nil, database.WrapUserDBError("GetFactorSeries", userID, err)
	}
	return series, nil
}

// AggregateFactor computes the baseline of one factor over [from, to) minus the excluded date.
// Returns nil when fewer than minSamples values exist.
func (r *Repository) AggregateFactor(ctx context.Context, userID, category, key string, from, to, exclude time.Time, minSamples int) (*types.Baseline, error) {
	var stats types.Baseline

	query := `
		SELECT
			COALESCE(AVG(numeric_value), 0) AS mean,
			COALESCE(STDDEV_POP(numeric_value), 0) AS std_dev,
			COUNT(numeric_value) AS sample_count
		FROM behavior_factors
		WHERE user_id = ? AND category = ? AND factor_key = ?
		AND local_date >= ? AND local_date < ? AND local_date <> ?
		AND numeric_value IS NOT NULL
	`

	if err := r.db.WithContext(ctx).Raw(query, userID, category, key, from, to, exclude).Scan(&stats).Error; err != nil {
		return nil, database.WrapUserDBError("AggregateFactor", userID, err)
	}
	if stats.SampleCount < int64(minSamples) {
		return nil, nil
	}
	return &stats, nil
}

// ============================================================================
// Outcome Metrics
// ============================================================================

// GetMetricValue returns a metric's value for one user-day, or nil when nothing was recorded
func (r *Repository) GetMetricValue(ctx context.Context, userID, metricType string, date time.Time) (*float64, error) {
	var metric models.DailyMetric
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND metric_type = ? AND local_date = ?", userID, metricType, date).
		First(&metric).Error
	if err != nil {
		if database.IsRecordNotFound(err) {
			return nil, nil
		}
		return nil, database.WrapUserDBError("GetMetricValue", userID, err)
	}
	return &metric.Value, nil
}

// GetMetricSeries returns a metric's values for [from, to) ordered by date
func (r *Repository) GetMetricSeries(ctx context.Context, userID, metricType string, from, to time.Time) ([]types.DateValue, error) {
	var series []types.DateValue
	err := r.db.WithContext(ctx).
		Model(&models.DailyMetric{}).
		Select("local_date AS date, value").
		Where("user_id = ? AND metric_type = ? AND local_date >= ? AND local_date < ?", userID, metricType, from, to).
		Order("local_date ASC").
		Scan(&series).Error
	if err != nil {
		return nil, database.WrapUserDBError("GetMetricSeries", userID, err)
	}
	return series, nil
}

// AggregateMetric computes the baseline of one metric over [from, to) minus the excluded date
func (r *Repository) AggregateMetric(ctx context.Context, userID, metricType string, from, to, exclude time.Time, minSamples int) (*types.Baseline, error) {
	var stats types.Baseline

	query := `
		SELECT
			COALESCE(AVG(value), 0) AS mean,
			COALESCE(STDDEV_POP(value), 0) AS std_dev,
			COUNT(value) AS sample_count
		FROM daily_metrics
		WHERE user_id = ? AND metric_type = ?
		AND local_date >= ? AND local_date < ? AND local_date <> ?
	`

	if err := r.db.WithContext(ctx).Raw(query, userID, metricType, from, to, exclude).Scan(&stats).Error; err != nil {
		return nil, database.WrapUserDBError("AggregateMetric", userID, err)
	}
	if stats.SampleCount < int64(minSamples) {
		return nil, nil
	}
	return &stats, nil
}

// GetDataSpan returns the first and last date with any metric or factor data for a user
func (r *Repository) GetDataSpan(ctx context.Context, userID string) (types.DataSpan, error) {
	var span struct {
		First *time.Time
		Last  *time.Time
	}

	query := `
		SELECT MIN(d) AS first, MAX(d) AS last FROM (
			SELECT local_date AS d FROM daily_metrics WHERE user_id = ?
			UNION ALL
			SELECT local_date AS d FROM behavior_factors WHERE user_id = ?
		) s
	`

	if err := r.db.WithContext(ctx).Raw(query, userID, userID).Scan(&span).Error; err != nil {
		return types.DataSpan{}, database.WrapUserDBError("GetDataSpan", userID, err)
	}

	var result types.DataSpan
	if span.First != nil {
		result.First = *span.First
	}
	if span.Last != nil {
		result.Last = *span.Last
	}
	return result, nil
}

// ListActiveUsers returns users with any metric recorded on or after since
func (r *Repository) ListActiveUsers(ctx context.Context, since time.Time) ([]string, error) {
	var users []string
	err := r.db.WithContext(ctx).
		Model(&models.DailyMetric{}).
		Distinct("user_id").
		Where("local_date >= ?", since).
		Order("user_id").
		Pluck("user_id", &users).Error
	if err != nil {
		return nil, database.WrapDBError("ListActiveUsers", err)
	}
	return users, nil
}
