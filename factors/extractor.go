// Package factors normalizes the raw per-day signal tables into behavior
// factors keyed by a closed registry of (category, key) pairs.
package factors

import (
	"context"
	"log"
	"time"

	models "pulse-insights/database/models_pkg"
	"pulse-insights/helpers"
)

// Extractor runs every configured source for a user-day.
// A failing source is logged and skipped; the others still contribute.
type Extractor struct {
	sources   []Source
	onFailure func(source string, err error)
}

// NewExtractor creates an extractor over the default sources
func NewExtractor(store SourceStore) *Extractor {
	return NewExtractorWithSources(DefaultSources(store)...)
}

// NewExtractorWithSources creates an extractor over explicit sources
func NewExtractorWithSources(sources ...Source) *Extractor {
	return &Extractor{sources: sources}
}

// OnSourceFailure registers a hook called for every failed source
func (e *Extractor) OnSourceFailure(fn func(source string, err error)) {
	e.onFailure = fn
}

// Extract returns the union of all sources' factors for the date.
// Duplicate keys keep the first occurrence.
func (e *Extractor) Extract(ctx context.Context, userID string, date time.Time) []models.BehaviorFactor {
	date = helpers.DateOnly(date)

	var out []models.BehaviorFactor
	seen := make(map[Key]bool)

	for _, src := range e.sources {
		if ctx.Err() != nil {
			log.Printf("⚠️  Factor extraction for %s cancelled after %d factors", userID, len(out))
			break
		}

		factors, err := src.Extract(ctx, userID, date)
		if err != nil {
			log.Printf("⚠️  %s factors unavailable for %s on %s: %v",
				src.Name(), userID, date.Format("2006-01-02"), err)
			if e.onFailure != nil {
				e.onFailure(src.Name(), err)
			}
			continue
		}

		for _, f := range factors {
			k := KeyOf(&f)
			if seen[k] {
				continue
			}
			seen[k] = true
			out = append(out, f)
		}
	}

	return out
}

// Keys returns the factor keys present in a slice, in order
func Keys(fs []models.BehaviorFactor) []Key {
	keys := make([]Key, 0, len(fs))
	for i := range fs {
		keys = append(keys, KeyOf(&fs[i]))
	}
	return keys
}
