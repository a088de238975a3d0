package settings

import (
	"context"
	"log"
	"sync"
	"time"

	models "pulse-insights/database/models_pkg"
)

// DefaultTTL is how long a loaded settings value is served before reloading
const DefaultTTL = 60 * time.Second

// MLSettings holds the admin-tunable engine thresholds.
// One global policy applies to every user.
type MLSettings struct {
	AnomalyZScoreThreshold   float64 `json:"anomaly_z_score_threshold"`
	MinAnomalyConfidence     float64 `json:"min_anomaly_confidence"`
	MinPatternMatches        int     `json:"min_pattern_matches"`
	HistoryLookbackMonths    int     `json:"history_lookback_months"`
	MinPositiveOccurrences   int     `json:"min_positive_occurrences"`
	PositiveOutcomeThreshold float64 `json:"positive_outcome_threshold"` // fraction, 0.1 = 10%
	InsightConfidenceFloor   float64 `json:"insight_confidence_floor"`
	AlertCooldownHours       float64 `json:"alert_cooldown_hours"`
}

// Defaults returns the hardcoded fallback settings
func Defaults() MLSettings {
	return MLSettings{
		AnomalyZScoreThreshold:   2.0,
		MinAnomalyConfidence:     0.5,
		MinPatternMatches:        3,
		HistoryLookbackMonths:    24,
		MinPositiveOccurrences:   5,
		PositiveOutcomeThreshold: 0.1,
		InsightConfidenceFloor:   0.3,
		AlertCooldownHours:       4,
	}
}

// AlertCooldown returns the cooldown as a duration
func (s MLSettings) AlertCooldown() time.Duration {
	return time.Duration(s.AlertCooldownHours * float64(time.Hour))
}

// fromRecord converts a stored row, replacing misconfigured fields with their defaults
func fromRecord(r *models.MLSettingsRecord) MLSettings {
	d := Defaults()
	s := d

	if r.AnomalyZScoreThreshold > 0 {
		s.AnomalyZScoreThreshold = r.AnomalyZScoreThreshold
	}
	if r.MinAnomalyConfidence > 0 && r.MinAnomalyConfidence <= 1 {
		s.MinAnomalyConfidence = r.MinAnomalyConfidence
	}
	if r.MinPatternMatches > 0 {
		s.MinPatternMatches = r.MinPatternMatches
	}
	if r.HistoryLookbackMonths > 0 {
		s.HistoryLookbackMonths = r.HistoryLookbackMonths
	}
	if r.MinPositiveOccurrences > 0 {
		s.MinPositiveOccurrences = r.MinPositiveOccurrences
	}
	if r.PositiveOutcomeThreshold > 0 && r.PositiveOutcomeThreshold < 10 {
		s.PositiveOutcomeThreshold = r.PositiveOutcomeThreshold
	}
	if r.InsightConfidenceFloor > 0 && r.InsightConfidenceFloor <= 1 {
		s.InsightConfidenceFloor = r.InsightConfidenceFloor
	}
	if r.AlertCooldownHours > 0 {
		s.AlertCooldownHours = r.AlertCooldownHours
	}

	return s
}

// Store loads the persisted settings row; (nil, nil) means no row exists
type Store interface {
	LoadSettings(ctx context.Context) (*models.MLSettingsRecord, error)
}

// Provider is what pipeline stages read settings through
type Provider interface {
	Get(ctx context.Context) MLSettings
}

// SettingsCache serves MLSettings with a short TTL.
// Get never fails: a store error keeps the last good value, or the defaults if none was ever loaded.
type SettingsCache struct {
	store Store
	ttl   time.Duration
	now   func() time.Time

	mu        sync.RWMutex
	current   MLSettings
	loaded    bool
	fetchedAt time.Time
}

// NewSettingsCache creates a settings cache; store may be nil, in which case defaults are served
func NewSettingsCache(store Store, ttl time.Duration) *SettingsCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &SettingsCache{
		store:   store,
		ttl:     ttl,
		now:     time.Now,
		current: Defaults(),
	}
}

// Get returns fresh or slightly stale settings, never an absent value
func (c *SettingsCache) Get(ctx context.Context) MLSettings {
	c.mu.RLock()
	if !c.fetchedAt.IsZero() && c.now().Sub(c.fetchedAt) < c.ttl {
		s := c.current
		c.mu.RUnlock()
		return s
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	// Another goroutine may have refreshed while we waited for the write lock
	if !c.fetchedAt.IsZero() && c.now().Sub(c.fetchedAt) < c.ttl {
		return c.current
	}

	c.refreshLocked(ctx)
	return c.current
}

// Invalidate forces the next Get to reload from the store
func (c *SettingsCache) Invalidate() {
	c.mu.Lock()
	c.fetchedAt = time.Time{}
	c.mu.Unlock()
}

func (c *SettingsCache) refreshLocked(ctx context.Context) {
	// Stamp first so a failing store is retried once per TTL, not on every call
	c.fetchedAt = c.now()

	if c.store == nil {
		return
	}

	record, err := c.store.LoadSettings(ctx)
	if err != nil {
		if c.loaded {
			log.Printf("⚠️  Failed to reload ML settings, keeping previous values: %v", err)
		} else {
			log.Printf("⚠️  Failed to load ML settings, using defaults: %v", err)
		}
		return
	}

	if record == nil {
		if !c.loaded {
			log.Println("ℹ️  No ML settings record found, using defaults")
		}
		c.current = Defaults()
		c.loaded = true
		return
	}

	c.current = fromRecord(record)
	c.loaded = true
}

// Static is a Provider that always returns the same settings
type Static MLSettings

// Get returns the fixed settings
func (s Static) Get(ctx context.Context) MLSettings {
	return MLSettings(s)
}
