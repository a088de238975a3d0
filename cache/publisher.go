package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	models "pulse-insights/database/models_pkg"
)

// InsightsChannel is the pub/sub channel the narrative layer listens on
const InsightsChannel = "insights:admitted"

// InsightMessage is the published form of an admitted insight.
// Causes, Pattern and Positives are forwarded as raw JSON.
type InsightMessage struct {
	InsightID    int64           `json:"insight_id"`
	RunID        string          `json:"run_id"`
	UserID       string          `json:"user_id"`
	LocalDate    string          `json:"local_date"`
	MetricType   string          `json:"metric_type"`
	Direction    string          `json:"direction"`
	Severity     string          `json:"severity"`
	DeviationPct float64         `json:"deviation_pct"`
	ZScore       float64         `json:"z_score"`
	Fingerprint  string          `json:"pattern_fingerprint,omitempty"`
	QualityScore float64         `json:"quality_score"`
	Causes       json.RawMessage `json:"causes"`
	Pattern      json.RawMessage `json:"pattern"`
	Positives    json.RawMessage `json:"positives"`
	PublishedAt  time.Time       `json:"published_at"`
}

// NewInsightMessage converts a persisted insight into its published form
func NewInsightMessage(in *models.Insight) InsightMessage {
	msg := InsightMessage{
		InsightID:    in.ID,
		RunID:        in.RunID,
		UserID:       in.UserID,
		LocalDate:    in.LocalDate.Format("2006-01-02"),
		MetricType:   in.MetricType,
		Direction:    in.Direction,
		Severity:     in.Severity,
		DeviationPct: in.DeviationPct,
		ZScore:       in.ZScore,
		QualityScore: in.QualityScore,
		Causes:       rawOrNull(in.Causes),
		Pattern:      rawOrNull(in.Pattern),
		Positives:    rawOrNull(in.Positives),
		PublishedAt:  time.Now().UTC(),
	}
	if in.Fingerprint != nil {
		msg.Fingerprint = *in.Fingerprint
	}
	return msg
}

func rawOrNull(s string) json.RawMessage {
	if s == "" || !json.Valid([]byte(s)) {
		return json.RawMessage("null")
	}
	return json.RawMessage(s)
}

// InsightPublisher publishes admitted insights on Redis pub/sub
type InsightPublisher struct {
	redis   *RedisClient
	channel string
}

// NewInsightPublisher creates a publisher on the default insights channel
func NewInsightPublisher(redis *RedisClient) *InsightPublisher {
	return &InsightPublisher{
		redis:   redis,
		channel: InsightsChannel,
	}
}

// Publish sends an admitted insight to the narrative layer
func (p *InsightPublisher) Publish(ctx context.Context, insight *models.Insight) error {
	if p.redis == nil {
		return fmt.Errorf("redis client not available")
	}
	if !insight.Admitted {
		return fmt.Errorf("refusing to publish rejected insight for %s/%s", insight.UserID, insight.MetricType)
	}

	return p.redis.Publish(ctx, p.channel, NewInsightMessage(insight))
}
