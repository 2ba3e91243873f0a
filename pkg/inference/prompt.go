package inference

import (
	"fmt"

	"opsinsight/pkg/rules"
)

// BuildPrompt renders the natural-language request for the secondary
// backend. Every template demands a single JSON object with risk_score,
// explanation, and recommendations so ParseAssessment has a stable contract.
func BuildPrompt(alert rules.CandidateAlert) string {
	const replyFormat = `Provide a JSON response with:
1. "risk_score": a number between 0-100 representing the risk
2. "explanation": a clear explanation of the concerning pattern
3. "recommendations": an array of 2-3 specific actions

Format your response as valid JSON only, no additional text.`

	switch alert.Kind {
	case rules.AlertHighIncidentFrequency:
		return fmt.Sprintf(`Analyze this entity's incident pattern and assess its risk:

Entity: %s (%s)
Incidents (14 days): %.0f
Health score: %.1f

%s`, alert.EntityID, alert.EntityKind,
			detailFloat(alert.Details, "incidents_14d"),
			detailFloat(alert.Details, "health_score"),
			replyFormat)

	case rules.AlertLowHealthScore:
		return fmt.Sprintf(`Analyze this entity's health metrics and assess its risk:

Entity: %s (%s)
Health score: %.1f
Sessions (7 days): %.0f
Incidents (14 days): %.0f

%s`, alert.EntityID, alert.EntityKind,
			detailFloat(alert.Details, "health_score"),
			detailFloat(alert.Details, "sessions_7d"),
			detailFloat(alert.Details, "incidents_14d"),
			replyFormat)

	case rules.AlertCapacityImbalance:
		return fmt.Sprintf(`Analyze this capacity imbalance and recommend actions:

Topic: %s
Balance status: %s
Demand score: %.1f
Supply score: %.1f

%s`, alert.EntityID,
			alert.Details["balance_status"],
			detailFloat(alert.Details, "demand_score"),
			detailFloat(alert.Details, "supply_score"),
			replyFormat)

	default:
		return fmt.Sprintf(`Analyze this alert and assess its risk:

Entity: %s (%s)
Alert: %s (%s)
Message: %s

%s`, alert.EntityID, alert.EntityKind, alert.Kind, alert.Severity, alert.Message, replyFormat)
	}
}
