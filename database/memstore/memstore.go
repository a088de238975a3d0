// Package memstore is an in-memory implementation of the factor and metric
// time-series store. It answers the same queries as database/factors.Repository
// and backs the engine's package tests.
package memstore

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"

	"pulse-insights/database"
	models "pulse-insights/database/models_pkg"
	"pulse-insights/database/types"
	"pulse-insights/helpers"
)

type factorID struct {
	date     time.Time
	category string
	key      string
}

// Store holds metrics and factors per user
type Store struct {
	mu      sync.RWMutex
	metrics map[string]map[string]map[time.Time]float64
	factors map[string]map[factorID]models.BehaviorFactor
	errs    map[string]error
}

// New creates an empty store
func New() *Store {
	return &Store{
		metrics: make(map[string]map[string]map[time.Time]float64),
		factors: make(map[string]map[factorID]models.BehaviorFactor),
		errs:    make(map[string]error),
	}
}

// FailOn makes the named operation return err; a nil err clears it
func (s *Store) FailOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.errs, op)
		return
	}
	s.errs[op] = err
}

func (s *Store) failure(op, userID string) error {
	if err, ok := s.errs[op]; ok {
		return database.WrapUserDBError(op, userID, err)
	}
	return nil
}

// AddMetric records one metric value
func (s *Store) AddMetric(userID, metricType string, date time.Time, value float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	byMetric, ok := s.metrics[userID]
	if !ok {
		byMetric = make(map[string]map[time.Time]float64)
		s.metrics[userID] = byMetric
	}
	byDate, ok := byMetric[metricType]
	if !ok {
		byDate = make(map[time.Time]float64)
		byMetric[metricType] = byDate
	}
	byDate[helpers.DateOnly(date)] = value
}

// AddNumericFactor records one numeric factor
func (s *Store) AddNumericFactor(userID string, date time.Time, category, key string, value float64) {
	v := value
	s.putFactor(models.BehaviorFactor{
		UserID:       userID,
		LocalDate:    helpers.DateOnly(date),
		Category:     category,
		FactorKey:    key,
		NumericValue: &v,
		Source:       models.SourceDevice,
	})
}

// AddTextFactor records one text factor
func (s *Store) AddTextFactor(userID string, date time.Time, category, key, value string) {
	v := value
	s.putFactor(models.BehaviorFactor{
		UserID:      userID,
		LocalDate:   helpers.DateOnly(date),
		Category:    category,
		FactorKey:   key,
		StringValue: &v,
		Source:      models.SourceUserLogged,
	})
}

func (s *Store) putFactor(f models.BehaviorFactor) {
	s.mu.Lock()
	defer s.mu.Unlock()

	byID, ok := s.factors[f.UserID]
	if !ok {
		byID = make(map[factorID]models.BehaviorFactor)
		s.factors[f.UserID] = byID
	}
	byID[factorID{date: f.LocalDate, category: f.Category, key: f.FactorKey}] = f
}

// UpsertFactors inserts factors; enrichment fields of existing rows are never overwritten
func (s *Store) UpsertFactors(ctx context.Context, fs []models.BehaviorFactor) error {
	if len(fs) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.failure("UpsertFactors", fs[0].UserID); err != nil {
		return err
	}

	for _, f := range fs {
		f.LocalDate = helpers.DateOnly(f.LocalDate)
		byID, ok := s.factors[f.UserID]
		if !ok {
			byID = make(map[factorID]models.BehaviorFactor)
			s.factors[f.UserID] = byID
		}
		id := factorID{date: f.LocalDate, category: f.Category, key: f.FactorKey}
		if existing, ok := byID[id]; ok && existing.IsEnriched() {
			continue
		}
		byID[id] = f
	}
	return nil
}

// GetFactorsForDate returns every factor of a user-day
func (s *Store) GetFactorsForDate(ctx context.Context, userID string, date time.Time) ([]models.BehaviorFactor, error) {
	return s.GetFactorsInRange(ctx, userID, date, helpers.AddDays(date, 1), nil)
}

// GetFactorsInRange returns factors for [from, to) ordered by date; empty keys means every key
func (s *Store) GetFactorsInRange(ctx context.Context, userID string, from, to time.Time, keys []string) ([]models.BehaviorFactor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.failure("GetFactorsInRange", userID); err != nil {
		return nil, err
	}

	want := make(map[string]bool, len(keys))
	for _, k := range keys {
		want[k] = true
	}

	from, to = helpers.DateOnly(from), helpers.DateOnly(to)
	var out []models.BehaviorFactor
	for id, f := range s.factors[userID] {
		if id.date.Before(from) || !id.date.Before(to) {
			continue
		}
		if len(want) > 0 && !want[id.key] {
			continue
		}
		out = append(out, f)
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].LocalDate.Equal(out[j].LocalDate) {
			return out[i].LocalDate.Before(out[j].LocalDate)
		}
		if out[i].Category != out[j].Category {
			return out[i].Category < out[j].Category
		}
		return out[i].FactorKey < out[j].FactorKey
	})
	return out, nil
}

// GetFactorSeries returns the numeric values of one factor for [from, to) ordered by date
func (s *Store) GetFactorSeries(ctx context.Context, userID, category, key string, from, to time.Time) ([]types.DateValue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.failure("GetFactorSeries", userID); err != nil {
		return nil, err
	}

	from, to = helpers.DateOnly(from), helpers.DateOnly(to)
	var out []types.DateValue
	for id, f := range s.factors[userID] {
		if id.category != category || id.key != key || f.NumericValue == nil {
			continue
		}
		if id.date.Before(from) || !id.date.Before(to) {
			continue
		}
		out = append(out, types.DateValue{Date: id.date, Value: *f.NumericValue})
	}
	sortSeries(out)
	return out, nil
}

// GetMetricValue returns a metric's value for one user-day, or nil when nothing was recorded
func (s *Store) GetMetricValue(ctx context.Context, userID, metricType string, date time.Time) (*float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.failure("GetMetricValue", userID); err != nil {
		return nil, err
	}

	v, ok := s.metrics[userID][metricType][helpers.DateOnly(date)]
	if !ok {
		return nil, nil
	}
	return &v, nil
}

// GetMetricSeries returns a metric's values for [from, to) ordered by date
func (s *Store) GetMetricSeries(ctx context.Context, userID, metricType string, from, to time.Time) ([]types.DateValue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.failure("GetMetricSeries", userID); err != nil {
		return nil, err
	}

	from, to = helpers.DateOnly(from), helpers.DateOnly(to)
	var out []types.DateValue
	for d, v := range s.metrics[userID][metricType] {
		if d.Before(from) || !d.Before(to) {
			continue
		}
		out = append(out, types.DateValue{Date: d, Value: v})
	}
	sortSeries(out)
	return out, nil
}

// GetDataSpan returns the first and last date with any metric or factor data
func (s *Store) GetDataSpan(ctx context.Context, userID string) (types.DataSpan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.failure("GetDataSpan", userID); err != nil {
		return types.DataSpan{}, err
	}

	var span types.DataSpan
	widen := func(d time.Time) {
		if span.First.IsZero() || d.Before(span.First) {
			span.First = d
		}
		if span.Last.IsZero() || d.After(span.Last) {
			span.Last = d
		}
	}
	for _, byDate := range s.metrics[userID] {
		for d := range byDate {
			widen(d)
		}
	}
	for id := range s.factors[userID] {
		widen(id.date)
	}
	return span, nil
}

// ListActiveUsers returns users with any metric recorded on or after since
func (s *Store) ListActiveUsers(ctx context.Context, since time.Time) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.failure("ListActiveUsers", ""); err != nil {
		return nil, err
	}

	since = helpers.DateOnly(since)
	var users []string
	for userID, byMetric := range s.metrics {
		active := false
		for _, byDate := range byMetric {
			for d := range byDate {
				if !d.Before(since) {
					active = true
					break
				}
			}
			if active {
				break
			}
		}
		if active {
			users = append(users, userID)
		}
	}
	sort.Strings(users)
	return users, nil
}

func sortSeries(series []types.DateValue) {
	sort.Slice(series, func(i, j int) bool {
		return series[i].Date.Before(series[j].Date)
	})
}

// AggregatingStore also computes baselines itself, answering the aggregate
// queries the Postgres repository runs with AVG and STDDEV_POP
type AggregatingStore struct {
	*Store
}

// NewAggregating creates an empty aggregating store
func NewAggregating() *AggregatingStore {
	return &AggregatingStore{Store: New()}
}

// AggregateFactor returns the factor's baseline over [from, to) minus exclude, or nil below minSamples
func (s *AggregatingStore) AggregateFactor(ctx context.Context, userID, category, key string, from, to, exclude time.Time, minSamples int) (*types.Baseline, error) {
	series, err := s.GetFactorSeries(ctx, userID, category, key, from, to)
	if err != nil {
		return nil, err
	}
	return aggregate(series, exclude, minSamples), nil
}

// AggregateMetric returns the metric's baseline over [from, to) minus exclude, or nil below minSamples
func (s *AggregatingStore) AggregateMetric(ctx context.Context, userID, metricType string, from, to, exclude time.Time, minSamples int) (*types.Baseline, error) {
	series, err := s.GetMetricSeries(ctx, userID, metricType, from, to)
	if err != nil {
		return nil, err
	}
	return aggregate(series, exclude, minSamples), nil
}

func aggregate(series []types.DateValue, exclude time.Time, minSamples int) *types.Baseline {
	exclude = helpers.DateOnly(exclude)
	values := make([]float64, 0, len(series))
	for _, p := range series {
		if p.Date.Equal(exclude) {
			continue
		}
		values = append(values, p.Value)
	}
	if len(values) == 0 || len(values) < minSamples {
		return nil
	}

	mean, variance := stat.PopMeanVariance(values, nil)
	return &types.Baseline{
		Mean:        mean,
		StdDev:      math.Sqrt(math.Max(0, variance)),
		SampleCount: int64(len(values)),
	}
}
