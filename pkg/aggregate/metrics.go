// Package aggregate maintains rolling per-entity metrics over trailing
// windows, updated incrementally as canonical events arrive.
package aggregate

import (
	"errors"
	"fmt"
	"time"

	"opsinsight/pkg/event"
)

// EntityKind identifies the kind of monitored entity.
type EntityKind string

const (
	EntitySubject  EntityKind = "subject"
	EntityProvider EntityKind = "provider"
	EntityTopic    EntityKind = "topic"
	EntityRegion   EntityKind = "region"
)

// ErrUnknownEntityKind marks an event referencing an unregistered entity
// kind. The event is dropped and logged; the batch continues.
var ErrUnknownEntityKind = errors.New("aggregate: unknown entity kind")

var registeredKinds = map[EntityKind]bool{
	EntitySubject:  true,
	EntityProvider: true,
	EntityTopic:    true,
	EntityRegion:   true,
}

// Trailing window lengths in days.
const (
	WindowShortDays  = 7
	WindowMediumDays = 14
	WindowLongDays   = 30
)

const dayFormat = "2006-01-02"

// Key identifies one metrics record.
type Key struct {
	ID   string
	Kind EntityKind
}

// StorageKey returns the KV key for this entity's metrics record.
func (k Key) StorageKey() string {
	return fmt.Sprintf("metrics:%s:%s", k.Kind, k.ID)
}

// Metrics is the per-entity rolling aggregate record. The window counters are
// derived from the day buckets on every write, so short-window counts can
// never exceed medium or long ones and old contributions expire as the
// windows slide (at day granularity).
type Metrics struct {
	EntityID   string     `json:"entity_id"`
	EntityKind EntityKind `json:"entity_kind"`

	Sessions7d  int `json:"sessions_7d"`
	Sessions14d int `json:"sessions_14d"`
	Sessions30d int `json:"sessions_30d"`

	Incidents7d  int `json:"incidents_7d"`
	Incidents14d int `json:"incidents_14d"`

	AvgRating   float64 `json:"avg_rating"`
	RatingCount int     `json:"rating_count"`

	HealthScore float64 `json:"health_score"`

	// Topic capacity snapshot fields (capacity_update events only).
	Region        string  `json:"region,omitempty"`
	DemandScore   float64 `json:"demand_score,omitempty"`
	SupplyScore   float64 `json:"supply_score,omitempty"`
	BalanceStatus string  `json:"balance_status,omitempty"`

	LastUpdated time.Time `json:"last_updated"`

	// Day-bucketed histograms (day -> count), pruned beyond the longest
	// window. Source of truth for the derived counters above.
	SessionDays  map[string]int `json:"session_days,omitempty"`
	IncidentDays map[string]int `json:"incident_days,omitempty"`
}

// NewMetrics returns the default record for a freshly seen entity.
func NewMetrics(key Key, now time.Time) *Metrics {
	return &Metrics{
		EntityID:     key.ID,
		EntityKind:   key.Kind,
		HealthScore:  100,
		LastUpdated:  now.UTC(),
		SessionDays:  map[string]int{},
		IncidentDays: map[string]int{},
	}
}

// Key returns the record's entity key.
func (m *Metrics) Key() Key {
	return Key{ID: m.EntityID, Kind: m.EntityKind}
}

// recount derives every window counter from the day buckets and prunes
// buckets that fell out of the longest window.
func (m *Metrics) recount(now time.Time) {
	pruneDays(m.SessionDays, now, WindowLongDays)
	pruneDays(m.IncidentDays, now, WindowMediumDays)
	m.Sessions7d = sumWindow(m.SessionDays, now, WindowShortDays)
	m.Sessions14d = sumWindow(m.SessionDays, now, WindowMediumDays)
	m.Sessions30d = sumWindow(m.SessionDays, now, WindowLongDays)
	m.Incidents7d = sumWindow(m.IncidentDays, now, WindowShortDays)
	m.Incidents14d = sumWindow(m.IncidentDays, now, WindowMediumDays)
}

// sumWindow counts bucket entries within the trailing window ending today.
func sumWindow(days map[string]int, now time.Time, windowDays int) int {
	cutoff := dayFloor(now).AddDate(0, 0, -(windowDays - 1))
	total := 0
	for day, n := range days {
		t, err := time.Parse(dayFormat, day)
		if err != nil {
			continue
		}
		if !t.Before(cutoff) {
			total += n
		}
	}
	return total
}

func pruneDays(days map[string]int, now time.Time, windowDays int) {
	cutoff := dayFloor(now).AddDate(0, 0, -(windowDays - 1))
	for day := range days {
		t, err := time.Parse(dayFormat, day)
		if err != nil || t.Before(cutoff) {
			delete(days, day)
		}
	}
}

func dayFloor(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// EntityRefs lists the entities a canonical event touches.
func EntityRefs(ev event.Event) []Key {
	var refs []Key
	switch ev.Kind {
	case event.KindSessionStarted, event.KindSessionCompleted:
		if id := ev.String("subject_id"); id != "" {
			refs = append(refs, Key{ID: id, Kind: EntitySubject})
		}
		if id := ev.String("provider_id"); id != "" {
			refs = append(refs, Key{ID: id, Kind: EntityProvider})
		}
	case event.KindIncidentLogged, event.KindHealthReport:
		if id := ev.String("subject_id"); id != "" {
			refs = append(refs, Key{ID: id, Kind: EntitySubject})
		}
	case event.KindCapacityUpdate:
		if topic := ev.String("topic"); topic != "" {
			refs = append(refs, Key{ID: topic, Kind: EntityTopic})
		}
	}
	return refs
}
