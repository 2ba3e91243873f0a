package event

import (
	"fmt"
	"time"
)

// requiredFields lists the payload fields each kind must carry. A nested
// slice means "at least one of these".
var requiredFields = map[Kind][][]string{
	KindSessionStarted:   {{"subject_id", "provider_id"}},
	KindSessionCompleted: {{"subject_id", "provider_id"}},
	KindIncidentLogged:   {{"subject_id"}},
	KindHealthReport:     {{"subject_id"}, {"health_score"}},
	KindCapacityUpdate:   {{"topic"}},
}

// Normalizer validates and enriches raw events into canonical ones. It is a
// pure transform: it never touches the aggregator or any store.
type Normalizer struct {
	now func() time.Time
}

// NewNormalizer creates a Normalizer using the wall clock.
func NewNormalizer() *Normalizer {
	return &Normalizer{now: time.Now}
}

// NewNormalizerAt creates a Normalizer with an injected clock for tests.
func NewNormalizerAt(now func() time.Time) *Normalizer {
	return &Normalizer{now: now}
}

// Normalize checks the event kind and required payload fields, then returns
// the canonical event with its timestamp (defaulting to now) and ingestion
// timestamp filled in.
func (n *Normalizer) Normalize(raw RawEvent) (Event, error) {
	groups, ok := requiredFields[raw.Kind]
	if !ok {
		return Event{}, fmt.Errorf("%w: %q", ErrInvalidEventKind, raw.Kind)
	}
	for _, group := range groups {
		if !anyPresent(raw.Payload, group) {
			return Event{}, fmt.Errorf("%w: %s (kind %s)", ErrMissingField, group[0], raw.Kind)
		}
	}

	now := n.now().UTC()
	ts := now
	if raw.Timestamp != "" {
		parsed, err := time.Parse(time.RFC3339, raw.Timestamp)
		if err == nil {
			ts = parsed.UTC()
		}
		// unparseable timestamps fall back to ingestion time rather than
		// rejecting an otherwise valid event
	}

	payload := make(map[string]interface{}, len(raw.Payload))
	for k, v := range raw.Payload {
		payload[k] = v
	}

	return Event{
		Kind:       raw.Kind,
		Payload:    payload,
		Timestamp:  ts,
		IngestedAt: now,
	}, nil
}

func anyPresent(payload map[string]interface{}, fields []string) bool {
	for _, f := range fields {
		if v, ok := payload[f]; ok && v != nil {
			if s, isStr := v.(string); isStr && s == "" {
				continue
			}
			return true
		}
	}
	return false
}
