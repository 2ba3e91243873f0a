// Package inference turns candidate alerts into durable insights by walking
// a chain of scoring backends of increasing availability and decreasing
// fidelity: an ML classifier, a generative model, and deterministic rules.
package inference

import (
	"fmt"
	"time"

	"opsinsight/pkg/aggregate"
	"opsinsight/pkg/rules"
)

// Tier names the backend that produced an insight.
type Tier string

const (
	TierPrimary   Tier = "primary"
	TierSecondary Tier = "secondary"
	TierTertiary  Tier = "tertiary"
)

// Per-tier confidence attached to produced insights.
const (
	ConfidencePrimary   = 0.95
	ConfidenceSecondary = 0.88
	ConfidenceTertiary  = 0.75
)

// DefaultRetention is how long insights are kept before expiry.
const DefaultRetention = 90 * 24 * time.Hour

// Insight is the durable output of the orchestrator. Immutable after
// creation; a re-evaluation produces a new Insight with a new ID.
type Insight struct {
	ID              string               `json:"id"`
	Timestamp       time.Time            `json:"timestamp"`
	EntityID        string               `json:"entity_id"`
	EntityKind      aggregate.EntityKind `json:"entity_kind"`
	Kind            string               `json:"kind"` // candidate alert kind that triggered it
	Category        string               `json:"category"`
	RiskScore       float64              `json:"risk_score"` // 0-100, higher is worse
	Explanation     string               `json:"explanation"`
	Recommendations []string             `json:"recommendations"`
	Tier            Tier                 `json:"tier"`
	Confidence      float64              `json:"confidence"`
	RetentionExpiry time.Time            `json:"retention_expiry"`
}

// StorageKey returns the KV key for this insight.
func (i *Insight) StorageKey() string {
	return InsightStorageKey(i.ID)
}

// InsightStorageKey builds the KV key for an insight ID.
func InsightStorageKey(id string) string {
	return fmt.Sprintf("insight:%s", id)
}

// SeverityRisk maps a rule severity to the tertiary tier's risk score.
// Critical lands above the dispatch threshold so critical rule firings page
// even under total backend outage.
func SeverityRisk(sev rules.Severity) float64 {
	switch sev {
	case rules.SeverityCritical:
		return 85
	case rules.SeverityWarning:
		return 60
	default:
		return 30
	}
}

// RiskCategory buckets a risk score into a coarse label.
func RiskCategory(score float64) string {
	switch {
	case score >= 80:
		return "critical_risk"
	case score >= 60:
		return "elevated_risk"
	case score >= 40:
		return "anomaly_detected"
	default:
		return "normal_operation"
	}
}
