package types

import "time"

// Baseline holds trailing-window statistics for a factor or metric.
// A nil *Baseline means "no baseline": fewer than the minimum samples existed.
type Baseline struct {
	Mean        float64 `json:"mean"`
	StdDev      float64 `json:"std_dev"` // population standard deviation
	SampleCount int64   `json:"sample_count"`
}

// DateValue is one point of a per-user daily series
type DateValue struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
}

// DataSpan is the first and last date with any data for a user
type DataSpan struct {
	First time.Time `json:"first"`
	Last  time.Time `json:"last"`
}

// Empty reports whether the span holds no data
func (s DataSpan) Empty() bool {
	return s.First.IsZero() || s.Last.IsZero()
}
