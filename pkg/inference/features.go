package inference

import (
	"math"
	"time"

	"opsinsight/pkg/rules"
)

// FeatureWidth is the fixed width of the engineered vector handed to the
// primary scorer. Order matches the classifier's training data.
const FeatureWidth = 16

// BuildFeatureVector derives the scorer's input from a candidate alert's
// details bag. Deterministic given the alert and clock; absent details
// contribute zeros.
func BuildFeatureVector(alert rules.CandidateAlert, now time.Time) []float64 {
	incidents14d := detailFloat(alert.Details, "incidents_14d")
	health := detailFloat(alert.Details, "health_score")
	sessions7d := detailFloat(alert.Details, "sessions_7d")
	demand := detailFloat(alert.Details, "demand_score")
	supply := detailFloat(alert.Details, "supply_score")

	sev := severityOrdinal(alert.Severity)
	kind := kindOrdinal(alert.Kind)

	// Derived features mirror what the classifier saw in training: rates,
	// deficits, and saturation ratios rather than raw counts alone.
	incidentRate := incidents14d / 14
	healthDeficit := 100 - health
	capacityGap := demand - supply
	incidentSaturation := math.Min(incidents14d/float64(rules.IncidentCriticalCount), 1)
	anomalyScore := sev*2 + incidentRate*3
	if health > 0 && health < rules.HealthCriticalBelow {
		anomalyScore += 3
	}

	u := now.UTC()
	return []float64{
		sev,
		kind,
		incidents14d,
		incidentRate,
		health,
		healthDeficit,
		sessions7d,
		demand,
		supply,
		capacityGap,
		float64(u.Hour()),
		float64(u.Weekday()),
		anomalyScore,
		incidentSaturation,
		sessions7d / 7,
		1, // bias
	}
}

// BucketRisk scales a classifier bucket (0..RiskBuckets-1) onto 0-100.
func BucketRisk(bucket int) float64 {
	return math.Round(float64(bucket) * 100 / float64(RiskBuckets-1))
}

func severityOrdinal(sev rules.Severity) float64 {
	switch sev {
	case rules.SeverityCritical:
		return 2
	case rules.SeverityWarning:
		return 1
	default:
		return 0
	}
}

func kindOrdinal(kind rules.AlertKind) float64 {
	switch kind {
	case rules.AlertHighIncidentFrequency:
		return 0
	case rules.AlertLowHealthScore:
		return 1
	case rules.AlertCapacityImbalance:
		return 2
	default:
		return 3
	}
}

func detailFloat(details map[string]interface{}, field string) float64 {
	switch v := details[field].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return 0
}
