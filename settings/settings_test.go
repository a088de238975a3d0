package settings

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	models "pulse-insights/database/models_pkg"
)

type fakeStore struct {
	mu     sync.Mutex
	record *models.MLSettingsRecord
	err    error
	loads  int
}

func (f *fakeStore) LoadSettings(ctx context.Context) (*models.MLSettingsRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loads++
	if f.err != nil {
		return nil, f.err
	}
	return f.record, nil
}

func record(z float64) *models.MLSettingsRecord {
	return &models.MLSettingsRecord{
		ID:                       "global",
		AnomalyZScoreThreshold:   z,
		MinAnomalyConfidence:     0.6,
		MinPatternMatches:        4,
		HistoryLookbackMonths:    12,
		MinPositiveOccurrences:   6,
		PositiveOutcomeThreshold: 0.15,
		InsightConfidenceFloor:   0.35,
		AlertCooldownHours:       8,
	}
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestCache(store Store, c *clock) *SettingsCache {
	cache := NewSettingsCache(store, time.Minute)
	cache.now = c.now
	return cache
}

func TestGetServesCachedValueWithinTTL(t *testing.T) {
	store := &fakeStore{record: record(2.5)}
	c := &clock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	cache := newTestCache(store, c)
	ctx := context.Background()

	assert.Equal(t, 2.5, cache.Get(ctx).AnomalyZScoreThreshold)
	store.record = record(3.0)

	c.advance(30 * time.Second)
	assert.Equal(t, 2.5, cache.Get(ctx).AnomalyZScoreThreshold)
	assert.Equal(t, 1, store.loads)

	c.advance(31 * time.Second)
	assert.Equal(t, 3.0, cache.Get(ctx).AnomalyZScoreThreshold)
	assert.Equal(t, 2, store.loads)
}

func TestGetKeepsLastGoodValueOnError(t *testing.T) {
	store := &fakeStore{record: record(2.5)}
	c := &clock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	cache := newTestCache(store, c)
	ctx := context.Background()

	cache.Get(ctx)
	store.err = errors.New("connection refused")
	c.advance(2 * time.Minute)

	s := cache.Get(ctx)
	assert.Equal(t, 2.5, s.AnomalyZScoreThreshold)
	assert.Equal(t, 8*time.Hour, s.AlertCooldown())
}

func TestGetFallsBackToDefaults(t *testing.T) {
	ctx := context.Background()

	failing := NewSettingsCache(&fakeStore{err: errors.New("boom")}, time.Minute)
	assert.Equal(t, Defaults(), failing.Get(ctx))

	missing := NewSettingsCache(&fakeStore{}, time.Minute)
	assert.Equal(t, Defaults(), missing.Get(ctx))

	noStore := NewSettingsCache(nil, 0)
	assert.Equal(t, Defaults(), noStore.Get(ctx))
}

func TestMisconfiguredFieldsFallBackPerField(t *testing.T) {
	r := record(-1)
	r.MinPatternMatches = 0
	r.InsightConfidenceFloor = 1.5

	s := fromRecord(r)
	d := Defaults()
	assert.Equal(t, d.AnomalyZScoreThreshold, s.AnomalyZScoreThreshold)
	assert.Equal(t, d.MinPatternMatches, s.MinPatternMatches)
	assert.Equal(t, d.InsightConfidenceFloor, s.InsightConfidenceFloor)
	assert.Equal(t, 12, s.HistoryLookbackMonths)
	assert.Equal(t, 0.15, s.PositiveOutcomeThreshold)
}

func TestInvalidateForcesReload(t *testing.T) {
	store := &fakeStore{record: record(2.5)}
	c := &clock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	cache := newTestCache(store, c)
	ctx := context.Background()

	cache.Get(ctx)
	store.record = record(3.5)
	cache.Invalidate()

	assert.Equal(t, 3.5, cache.Get(ctx).AnomalyZScoreThreshold)
	assert.Equal(t, 2, store.loads)
}

func TestGetIsSafeForConcurrentUse(t *testing.T) {
	cache := NewSettingsCache(&fakeStore{record: record(2.5)}, time.Millisecond)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				assert.Equal(t, 2.5, cache.Get(ctx).AnomalyZScoreThreshold)
			}
		}()
	}
	wg.Wait()
}

func TestZeroFieldsFallBackToDefaults(t *testing.T) {
	r := record(2.5)
	r.MinAnomalyConfidence = 0
	r.InsightConfidenceFloor = 0
	r.AlertCooldownHours = 0

	s := fromRecord(r)
	d := Defaults()
	assert.Equal(t, d.MinAnomalyConfidence, s.MinAnomalyConfidence)
	assert.Equal(t, d.InsightConfidenceFloor, s.InsightConfidenceFloor)
	assert.Equal(t, d.AlertCooldown(), s.AlertCooldown())
	assert.Equal(t, 2.5, s.AnomalyZScoreThreshold)
}
