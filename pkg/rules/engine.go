// Package rules evaluates deterministic anomaly thresholds against rolling
// metrics and raw event fields, producing candidate alerts for the inference
// orchestrator. Evaluation is a pure function; deduplication happens later,
// at dispatch.
package rules

import (
	"fmt"
	"time"

	"opsinsight/pkg/aggregate"
	"opsinsight/pkg/event"
)

// Severity grades a candidate alert.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// AlertKind identifies which rule fired.
type AlertKind string

const (
	AlertHighIncidentFrequency AlertKind = "high_incident_frequency"
	AlertLowHealthScore        AlertKind = "low_health_score"
	AlertCapacityImbalance     AlertKind = "capacity_imbalance"
)

// Rule thresholds. These comparisons are the contract: warning at >= 3
// incidents in the medium window, critical at >= 5; health strictly below 70
// warns and strictly below 50 is critical.
const (
	IncidentWarningCount  = 3
	IncidentCriticalCount = 5
	HealthWarningBelow    = 70.0
	HealthCriticalBelow   = 50.0
)

// BalanceHighDemand is the capacity state that trips the imbalance rule.
const BalanceHighDemand = "high_demand"

// CandidateAlert is an ephemeral rule-engine output, consumed immediately by
// the orchestrator and never persisted.
type CandidateAlert struct {
	Kind       AlertKind              `json:"alert_type"`
	Severity   Severity               `json:"severity"`
	EntityID   string                 `json:"entity_id"`
	EntityKind aggregate.EntityKind   `json:"entity_kind"`
	Details    map[string]interface{} `json:"details"`
	Message    string                 `json:"message"`
	Timestamp  time.Time              `json:"timestamp"`
}

// Engine evaluates all rules independently; any subset may fire for a single
// event and each firing yields its own candidate alert.
type Engine struct {
	now func() time.Time
}

// NewEngine creates an Engine using the wall clock.
func NewEngine() *Engine {
	return &Engine{now: time.Now}
}

// NewEngineAt creates an Engine with an injected clock for tests.
func NewEngineAt(now func() time.Time) *Engine {
	return &Engine{now: now}
}

// Evaluate runs every rule against the event and the entity's current
// metrics. metrics may be nil for events that carry no aggregate (the
// imbalance rule reads the event alone).
func (e *Engine) Evaluate(ev event.Event, m *aggregate.Metrics) []CandidateAlert {
	var alerts []CandidateAlert
	now := e.now().UTC()

	if m != nil && m.EntityKind == aggregate.EntitySubject {
		if a, ok := e.incidentFrequency(m, now); ok {
			alerts = append(alerts, a)
		}
		if a, ok := e.lowHealth(m, now); ok {
			alerts = append(alerts, a)
		}
	}
	if ev.Kind == event.KindCapacityUpdate {
		if a, ok := e.imbalance(ev, now); ok {
			alerts = append(alerts, a)
		}
	}
	return alerts
}

func (e *Engine) incidentFrequency(m *aggregate.Metrics, now time.Time) (CandidateAlert, bool) {
	if m.Incidents14d < IncidentWarningCount {
		return CandidateAlert{}, false
	}
	sev := SeverityWarning
	if m.Incidents14d >= IncidentCriticalCount {
		sev = SeverityCritical
	}
	return CandidateAlert{
		Kind:       AlertHighIncidentFrequency,
		Severity:   sev,
		EntityID:   m.EntityID,
		EntityKind: m.EntityKind,
		Details: map[string]interface{}{
			"incidents_14d": m.Incidents14d,
			"health_score":  m.HealthScore,
		},
		Message:   fmt.Sprintf("subject %s has %d incidents in 14 days", m.EntityID, m.Incidents14d),
		Timestamp: now,
	}, true
}

func (e *Engine) lowHealth(m *aggregate.Metrics, now time.Time) (CandidateAlert, bool) {
	if m.HealthScore >= HealthWarningBelow {
		return CandidateAlert{}, false
	}
	sev := SeverityWarning
	if m.HealthScore < HealthCriticalBelow {
		sev = SeverityCritical
	}
	return CandidateAlert{
		Kind:       AlertLowHealthScore,
		Severity:   sev,
		EntityID:   m.EntityID,
		EntityKind: m.EntityKind,
		Details: map[string]interface{}{
			"health_score":  m.HealthScore,
			"sessions_7d":   m.Sessions7d,
			"incidents_14d": m.Incidents14d,
		},
		Message:   fmt.Sprintf("subject %s has low health score: %.1f", m.EntityID, m.HealthScore),
		Timestamp: now,
	}, true
}

func (e *Engine) imbalance(ev event.Event, now time.Time) (CandidateAlert, bool) {
	if ev.String("balance_status") != BalanceHighDemand {
		return CandidateAlert{}, false
	}
	topic := ev.String("topic")
	demand, _ := ev.Float("demand_score")
	supply, _ := ev.Float("supply_score")
	return CandidateAlert{
		Kind:       AlertCapacityImbalance,
		Severity:   SeverityInfo,
		EntityID:   topic,
		EntityKind: aggregate.EntityTopic,
		Details: map[string]interface{}{
			"balance_status": BalanceHighDemand,
			"demand_score":   demand,
			"supply_score":   supply,
		},
		Message:   fmt.Sprintf("high demand detected for %s (demand: %.1f, supply: %.1f)", topic, demand, supply),
		Timestamp: now,
	}, true
}
