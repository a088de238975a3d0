package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"pulse-insights/anomaly"
	"pulse-insights/attribution"
	"pulse-insights/baseline"
	"pulse-insights/database"
	models "pulse-insights/database/models_pkg"
	"pulse-insights/factors"
	"pulse-insights/helpers"
	"pulse-insights/metric"
	"pulse-insights/patterns"
	"pulse-insights/quality"
	"pulse-insights/settings"
)

// Store is the per-user time-series store every stage reads through
type Store interface {
	baseline.Store
	anomaly.ValueStore
	attribution.FactorStore
	patterns.HistoryStore

	UpsertFactors(ctx context.Context, fs []models.BehaviorFactor) error
	ListActiveUsers(ctx context.Context, since time.Time) ([]string, error)
}

// InsightStore persists gate decisions
type InsightStore interface {
	SaveInsight(ctx context.Context, insight *models.Insight) error
	MarkPublished(ctx context.Context, userID string, date time.Time, metricType string) error
}

// InsightSink receives admitted insights for the narrative layer
type InsightSink interface {
	Publish(ctx context.Context, insight *models.Insight) error
}

// Cooldown rate-limits publishing per user and metric
type Cooldown interface {
	Claim(ctx context.Context, userID, metricType string, ttl time.Duration) (bool, error)
	Remaining(ctx context.Context, userID, metricType string) time.Duration
}

type runIDKey struct{}

// WithRunID tags a context with the cycle's run id
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey{}, runID)
}

// RunIDFrom returns the run id carried by ctx, or a fresh one
func RunIDFrom(ctx context.Context) string {
	if id, ok := ctx.Value(runIDKey{}).(string); ok && id != "" {
		return id
	}
	return uuid.NewString()
}

// PipelineDeps wires a pipeline. Sink and Cooldown may be nil:
// without a sink admitted insights are persisted but not published.
type PipelineDeps struct {
	Store      Store
	Extractor  *factors.Extractor
	Settings   settings.Provider
	Insights   InsightStore
	Sink       InsightSink
	Cooldown   Cooldown
	Metrics    *Metrics
	WindowDays int
}

// Pipeline runs every engine stage for one user-day
type Pipeline struct {
	store      Store
	extractor  *factors.Extractor
	settings   settings.Provider
	baselines  *baseline.Engine
	detector   *anomaly.Detector
	attributor *attribution.Engine
	matcher    *patterns.Matcher
	miner      *patterns.Miner
	gate       *quality.Gate
	insights   InsightStore
	sink       InsightSink
	cooldown   Cooldown
	metrics    *Metrics
}

// NewPipeline builds the stage chain over one store
func NewPipeline(deps PipelineDeps) *Pipeline {
	baselines := baseline.NewEngine(deps.Store, deps.WindowDays)
	window := baselines.WindowDays()

	p := &Pipeline{
		store:      deps.Store,
		extractor:  deps.Extractor,
		settings:   deps.Settings,
		baselines:  baselines,
		detector:   anomaly.NewDetector(deps.Store, baselines, deps.Settings),
		attributor: attribution.NewEngine(deps.Store, baselines),
		matcher:    patterns.NewMatcher(deps.Store, deps.Settings, window),
		miner:      patterns.NewMiner(deps.Store, deps.Settings, window),
		gate:       quality.NewGate(),
		insights:   deps.Insights,
		sink:       deps.Sink,
		cooldown:   deps.Cooldown,
		metrics:    deps.Metrics,
	}

	if p.extractor != nil {
		p.extractor.OnSourceFailure(func(source string, err error) {
			p.metrics.sourceFailed(source)
		})
	}
	return p
}

// Run analyses one user-day and returns every persisted decision, admitted or not.
// Stage failures degrade the result; they never abort the run.
func (p *Pipeline) Run(ctx context.Context, userID string, date time.Time) []models.Insight {
	date = helpers.DateOnly(date)
	runID := RunIDFrom(ctx)

	p.prepareFactors(ctx, userID, helpers.AddDays(date, -1))
	p.prepareFactors(ctx, userID, date)

	s := p.settings.Get(ctx)
	anomalies := p.detector.DetectAll(ctx, userID, date, metric.All())
	if len(anomalies) == 0 {
		return nil
	}
	log.Printf("📊 %d anomalies for %s on %s", len(anomalies), userID, date.Format("2006-01-02"))

	insights := make([]models.Insight, 0, len(anomalies))
	for i := range anomalies {
		if ctx.Err() != nil {
			log.Printf("⚠️  Analysis for %s stopped after %d of %d anomalies: %v", userID, i, len(anomalies), ctx.Err())
			break
		}

		a := &anomalies[i]
		p.metrics.anomalyDetected(string(a.Metric), string(a.Severity))

		insight, err := p.analyse(ctx, runID, a, s)
		if err != nil {
			log.Printf("⚠️  Insight for %s/%s not saved: %v", userID, a.Metric, err)
			continue
		}
		insights = append(insights, *insight)
	}
	return insights
}

// prepareFactors extracts, enriches and stores a day's factors unless the day already has some
func (p *Pipeline) prepareFactors(ctx context.Context, userID string, date time.Time) {
	if p.extractor == nil {
		return
	}

	existing, err := p.store.GetFactorsForDate(ctx, userID, date)
	if err != nil {
		log.Printf("⚠️  Stored factors unavailable for %s on %s: %v", userID, date.Format("2006-01-02"), err)
		return
	}
	if len(existing) > 0 {
		return
	}

	fs := p.extractor.Extract(ctx, userID, date)
	if len(fs) == 0 {
		return
	}

	enriched := p.baselines.Enrich(ctx, fs)
	if err := p.store.UpsertFactors(ctx, fs); err != nil {
		log.Printf("⚠️  Failed to store %d factors for %s: %v", len(fs), userID, err)
		return
	}
	log.Printf("✅ Stored %d factors (%d enriched) for %s on %s", len(fs), enriched, userID, date.Format("2006-01-02"))
}

// analyse runs attribution through the gate for one anomaly and persists the decision
func (p *Pipeline) analyse(ctx context.Context, runID string, a *anomaly.Result, s settings.MLSettings) (*models.Insight, error) {
	causes, err := p.attributor.Attribute(ctx, a.UserID, a.Date, a.Metric, a.DeviationPct)
	if err != nil {
		log.Printf("⚠️  Attribution unavailable for %s/%s: %v", a.UserID, a.Metric, err)
		causes = nil
	}

	var pattern *patterns.HistoricalMatch
	if behaviors := attribution.Notable(causes, database.MaxNotableBehaviors); len(behaviors) > 0 {
		match := p.matcher.FindMatches(ctx, a.UserID, a.Date, a.Metric, a.Direction, behaviors)
		if match.MatchCount > 0 && match.PatternConfidence >= s.InsightConfidenceFloor {
			pattern = &match
		}
	}

	positives := p.miner.FindPositiveAsOf(ctx, a.UserID, a.Metric, a.Date, s.HistoryLookbackMonths)
	positives = patterns.ExcludeKeys(positives, attribution.Keys(causes))

	decision := p.gate.Evaluate(quality.Input{
		Metric:       a.Metric,
		DeviationPct: a.DeviationPct,
		Causes:       causes,
		Pattern:      pattern,
	})
	p.metrics.decided(string(a.Metric), decision.Admitted)

	insight, err := buildInsight(runID, a, causes, pattern, positives, decision)
	if err != nil {
		return nil, err
	}
	if err := p.insights.SaveInsight(ctx, insight); err != nil {
		return nil, err
	}

	if decision.Admitted {
		log.Printf("✅ Insight admitted for %s/%s (%s, score %.2f)", a.UserID, a.Metric, a.FormattedDeviation(), decision.Score)
		p.publish(ctx, insight, s)
	} else {
		log.Printf("ℹ️  Insight rejected for %s/%s: %s", a.UserID, a.Metric, decision.Reason)
	}
	return insight, nil
}

// publish hands an admitted insight to the sink unless its metric is cooling down
func (p *Pipeline) publish(ctx context.Context, insight *models.Insight, s settings.MLSettings) {
	if p.sink == nil {
		log.Printf("ℹ️  Publishing disabled, %s/%s kept for audit only", insight.UserID, insight.MetricType)
		return
	}

	if p.cooldown != nil {
		ok, err := p.cooldown.Claim(ctx, insight.UserID, insight.MetricType, s.AlertCooldown())
		if err != nil {
			log.Printf("⚠️  Cooldown check failed for %s/%s, not publishing: %v", insight.UserID, insight.MetricType, err)
			return
		}
		if !ok {
			log.Printf("⏳ %s/%s is in cooldown for another %s, not publishing",
				insight.UserID, insight.MetricType, p.cooldown.Remaining(ctx, insight.UserID, insight.MetricType).Round(time.Minute))
			p.metrics.cooldownSkipped(insight.MetricType)
			return
		}
	}

	if err := p.sink.Publish(ctx, insight); err != nil {
		log.Printf("⚠️  Failed to publish insight for %s/%s: %v", insight.UserID, insight.MetricType, err)
		return
	}
	insight.Published = true
	p.metrics.insightPublished(insight.MetricType)

	if err := p.insights.MarkPublished(ctx, insight.UserID, insight.LocalDate, insight.MetricType); err != nil {
		log.Printf("⚠️  Failed to mark %s/%s published: %v", insight.UserID, insight.MetricType, err)
	}
}

func buildInsight(runID string, a *anomaly.Result, causes []attribution.AttributedFactor, pattern *patterns.HistoricalMatch, positives []patterns.PositivePattern, d quality.Decision) (*models.Insight, error) {
	if causes == nil {
		causes = []attribution.AttributedFactor{}
	}
	if positives == nil {
		positives = []patterns.PositivePattern{}
	}

	causesJSON, err := json.Marshal(causes)
	if err != nil {
		return nil, fmt.Errorf("marshal causes: %w", err)
	}
	patternJSON, err := json.Marshal(pattern)
	if err != nil {
		return nil, fmt.Errorf("marshal pattern: %w", err)
	}
	positivesJSON, err := json.Marshal(positives)
	if err != nil {
		return nil, fmt.Errorf("marshal positives: %w", err)
	}

	insight := &models.Insight{
		RunID:        runID,
		UserID:       a.UserID,
		LocalDate:    a.Date,
		MetricType:   string(a.Metric),
		Direction:    string(a.Direction),
		Severity:     string(a.Severity),
		DeviationPct: a.DeviationPct,
		ZScore:       a.ZScore,
		QualityScore: d.Score,
		Admitted:     d.Admitted,
		RejectReason: d.Reason,
		Causes:       string(causesJSON),
		Pattern:      string(patternJSON),
		Positives:    string(positivesJSON),
	}
	if a.Fingerprint != "" {
		fp := a.Fingerprint
		insight.Fingerprint = &fp
	}
	return insight, nil
}
