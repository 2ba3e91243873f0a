// Package notify delivers alert notifications produced by the insight
// dispatcher to downstream channels.
package notify

import (
	"context"
	"time"

	"opsinsight/pkg/structlog"
)

// Notification is the outward-facing alert payload. It carries the insight
// identifiers and the human-readable assessment but none of the raw metric
// state.
type Notification struct {
	InsightID       string    `json:"insight_id"`
	EntityID        string    `json:"entity_id"`
	EntityKind      string    `json:"entity_kind"`
	AlertKind       string    `json:"alert_kind"`
	Severity        string    `json:"severity"`
	Category        string    `json:"category"`
	RiskScore       float64   `json:"risk_score"`
	Explanation     string    `json:"explanation"`
	Recommendations []string  `json:"recommendations"`
	Tier            string    `json:"tier"`
	Timestamp       time.Time `json:"timestamp"`
}

// Sink delivers notifications to one channel. Implementations must be safe
// for concurrent use.
type Sink interface {
	Publish(ctx context.Context, n Notification) error
	Close() error
}

// LogSink writes notifications to the structured log. The default channel
// when no broker is configured.
type LogSink struct {
	log *structlog.Logger
}

// NewLogSink creates a sink that logs each notification.
func NewLogSink(log *structlog.Logger) *LogSink {
	if log == nil {
		log = structlog.NewLogger("notify", structlog.LevelInfo, nil)
	}
	return &LogSink{log: log}
}

func (s *LogSink) Publish(ctx context.Context, n Notification) error {
	s.log.WithContext(ctx).Info("alert notification", structlog.Fields{
		"insight_id":  n.InsightID,
		"entity_id":   n.EntityID,
		"entity_kind": n.EntityKind,
		"alert_kind":  n.AlertKind,
		"severity":    n.Severity,
		"category":    n.Category,
		"risk_score":  n.RiskScore,
		"tier":        n.Tier,
	})
	return nil
}

func (s *LogSink) Close() error { return nil }
