package inference

import (
	"fmt"

	"opsinsight/pkg/rules"
)

// Explain synthesizes an assessment from the alert alone: no network call,
// no randomness, byte-identical output for identical input. This tier is
// the pipeline's availability floor; every candidate alert yields an
// insight even under total backend outage.
func Explain(alert rules.CandidateAlert) (risk float64, explanation string, recommendations []string) {
	risk = SeverityRisk(alert.Severity)

	switch alert.Kind {
	case rules.AlertHighIncidentFrequency:
		incidents := detailFloat(alert.Details, "incidents_14d")
		health := detailFloat(alert.Details, "health_score")
		explanation = fmt.Sprintf(
			"Rules-based analysis: entity %s logged %.0f incidents in the last 14 days (threshold %d) with a health score of %.1f. Repeated incidents in a short window indicate an unresolved underlying problem.",
			alert.EntityID, incidents, rules.IncidentWarningCount, health)
		recommendations = []string{
			fmt.Sprintf("Review the %.0f recent incidents for %s and identify a common cause", incidents, alert.EntityID),
			"Schedule a direct check-in with the affected entity",
		}
		if alert.Severity == rules.SeverityCritical {
			recommendations = append(recommendations, "Escalate to an account specialist for immediate follow-up")
		}

	case rules.AlertLowHealthScore:
		health := detailFloat(alert.Details, "health_score")
		sessions := detailFloat(alert.Details, "sessions_7d")
		explanation = fmt.Sprintf(
			"Rules-based analysis: entity %s has a health score of %.1f (warning below %.0f, critical below %.0f) with %.0f sessions in the last 7 days. Low health combined with reduced activity is a churn-risk pattern.",
			alert.EntityID, health, rules.HealthWarningBelow, rules.HealthCriticalBelow, sessions)
		recommendations = []string{
			fmt.Sprintf("Contact %s to understand the drop in engagement", alert.EntityID),
			"Offer a tailored re-engagement plan",
		}
		if alert.Severity == rules.SeverityCritical {
			recommendations = append(recommendations, "Flag the account for retention intervention this week")
		}

	case rules.AlertCapacityImbalance:
		demand := detailFloat(alert.Details, "demand_score")
		supply := detailFloat(alert.Details, "supply_score")
		explanation = fmt.Sprintf(
			"Rules-based analysis: topic %s is in a high-demand state (demand %.1f vs supply %.1f). Sustained imbalance degrades match quality and wait times.",
			alert.EntityID, demand, supply)
		recommendations = []string{
			fmt.Sprintf("Recruit additional providers for %s", alert.EntityID),
			"Rebalance existing provider availability toward the high-demand topic",
		}

	default:
		explanation = fmt.Sprintf(
			"Rules-based analysis: alert %s fired for entity %s with severity %s. %s",
			alert.Kind, alert.EntityID, alert.Severity, alert.Message)
		recommendations = []string{"Review the triggering metrics and continue monitoring"}
	}

	return risk, explanation, recommendations
}

// primaryAssessment synthesizes explanation text and recommendations for a
// classifier bucket. The primary backend returns only the coarse class, so
// the readable parts are produced locally from the same details bag.
func primaryAssessment(alert rules.CandidateAlert, bucket int) (string, []string) {
	labels := [RiskBuckets]string{"LOW", "MEDIUM", "HIGH", "CRITICAL"}
	label := labels[bucket]

	explanation := fmt.Sprintf(
		"ML classifier predicts %s risk (%d/%d) for entity %s based on %d engineered features covering incident frequency, health trend, activity level, and capacity balance. Triggering rule: %s.",
		label, bucket, RiskBuckets-1, alert.EntityID, FeatureWidth, alert.Kind)

	var recs []string
	switch {
	case bucket >= 3:
		recs = append(recs, "CRITICAL: immediate investigation required")
		if detailFloat(alert.Details, "incidents_14d") >= rules.IncidentCriticalCount {
			recs = append(recs, "Audit the incident history for systemic failures")
		}
		if h := detailFloat(alert.Details, "health_score"); h > 0 && h < rules.HealthCriticalBelow {
			recs = append(recs, "Open a retention case for the affected entity")
		}
	case bucket == 2:
		recs = append(recs, "HIGH: schedule follow-up within the next business day")
		recs = append(recs, "Monitor the triggering metric for further degradation")
	case bucket == 1:
		recs = append(recs, "MEDIUM: monitor closely for trend changes")
	default:
		recs = append(recs, "LOW: continue normal monitoring")
	}
	return explanation, recs
}
