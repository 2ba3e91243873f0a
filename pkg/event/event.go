// Package event defines the telemetry event model and the normalizer that
// gates raw events before aggregation.
package event

import (
	"errors"
	"time"
)

// Kind discriminates raw telemetry events.
type Kind string

const (
	KindSessionStarted   Kind = "session_started"
	KindSessionCompleted Kind = "session_completed"
	KindIncidentLogged   Kind = "incident_logged"
	KindHealthReport     Kind = "health_report"
	KindCapacityUpdate   Kind = "capacity_update"
)

// Normalization failures. Both are input errors: the event is dropped and
// counted, never fatal to the batch.
var (
	ErrInvalidEventKind = errors.New("event: invalid event kind")
	ErrMissingField     = errors.New("event: missing required field")
)

// RawEvent is the wire shape delivered by the event source.
type RawEvent struct {
	Kind      Kind                   `json:"event_type"`
	Timestamp string                 `json:"timestamp,omitempty"` // RFC3339; empty means "now"
	Payload   map[string]interface{} `json:"payload"`
}

// Event is the canonical shape produced by the Normalizer and consumed by the
// aggregator and rule engine.
type Event struct {
	Kind       Kind                   `json:"event_type"`
	Payload    map[string]interface{} `json:"payload"`
	Timestamp  time.Time              `json:"timestamp"`
	IngestedAt time.Time              `json:"ingested_at"`
}

// String returns a payload field as a string, "" if absent or not a string.
func (e Event) String(field string) string {
	if v, ok := e.Payload[field].(string); ok {
		return v
	}
	return ""
}

// Float returns a numeric payload field. JSON numbers decode as float64; int
// is accepted for events constructed in-process.
func (e Event) Float(field string) (float64, bool) {
	switch v := e.Payload[field].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}
