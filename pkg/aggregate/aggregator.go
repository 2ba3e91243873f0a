package aggregate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"opsinsight/pkg/event"
	"opsinsight/pkg/storage"
)

// Aggregator applies canonical events to per-entity metrics records in the
// KV store. Updates to the same entity key are serialized by a striped key
// lock; different keys proceed in parallel.
type Aggregator struct {
	kv    storage.KV
	locks *keyLock
	now   func() time.Time
}

// NewAggregator creates an Aggregator over the given store.
func NewAggregator(kv storage.KV) *Aggregator {
	return &Aggregator{kv: kv, locks: newKeyLock(64), now: time.Now}
}

// NewAggregatorAt creates an Aggregator with an injected clock for tests.
func NewAggregatorAt(kv storage.KV, now func() time.Time) *Aggregator {
	return &Aggregator{kv: kv, locks: newKeyLock(64), now: now}
}

// Apply folds one canonical event into the metrics of every entity it
// references and returns the updated snapshots. A persistence failure aborts
// this event only; the caller marks the outcome failed and moves on.
func (a *Aggregator) Apply(ctx context.Context, ev event.Event) ([]*Metrics, error) {
	refs := EntityRefs(ev)
	if len(refs) == 0 {
		return nil, fmt.Errorf("%w: event %s references no entity", ErrUnknownEntityKind, ev.Kind)
	}

	updated := make([]*Metrics, 0, len(refs))
	for _, ref := range refs {
		if !registeredKinds[ref.Kind] {
			return nil, fmt.Errorf("%w: %q", ErrUnknownEntityKind, ref.Kind)
		}
		m, err := a.applyOne(ctx, ref, ev)
		if err != nil {
			return updated, err
		}
		updated = append(updated, m)
	}
	return updated, nil
}

// Get loads the current metrics for an entity, or storage.ErrNotFound.
func (a *Aggregator) Get(ctx context.Context, key Key) (*Metrics, error) {
	var m Metrics
	if err := storage.GetJSON(ctx, a.kv, key.StorageKey(), &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (a *Aggregator) applyOne(ctx context.Context, key Key, ev event.Event) (*Metrics, error) {
	mu := a.locks.lock(key.StorageKey())
	defer mu.Unlock()

	m, err := a.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			return nil, err
		}
		m = NewMetrics(key, a.now())
	}

	a.mutate(m, key, ev)
	m.LastUpdated = a.now().UTC()

	if err := storage.PutJSON(ctx, a.kv, key.StorageKey(), m, 0); err != nil {
		return nil, err
	}
	return m, nil
}

func (a *Aggregator) mutate(m *Metrics, key Key, ev event.Event) {
	now := a.now().UTC()
	if m.SessionDays == nil {
		m.SessionDays = map[string]int{}
	}
	if m.IncidentDays == nil {
		m.IncidentDays = map[string]int{}
	}

	switch ev.Kind {
	case event.KindSessionStarted, event.KindSessionCompleted:
		day := dayFloor(ev.Timestamp).Format(dayFormat)
		m.SessionDays[day]++
		m.recount(now)
		if ev.Kind == event.KindSessionCompleted && key.Kind == EntityProvider {
			if rating, ok := ev.Float("rating"); ok {
				// Weighted running mean; count seeded at 1 on first write so
				// the divisor is never zero.
				m.RatingCount++
				n := float64(m.RatingCount)
				m.AvgRating = (m.AvgRating*(n-1) + rating) / n
			}
		}

	case event.KindIncidentLogged:
		day := dayFloor(ev.Timestamp).Format(dayFormat)
		m.IncidentDays[day]++
		m.recount(now)

	case event.KindHealthReport:
		// Snapshot semantics: overwrite named fields, missing means no
		// change. Reported counters are advisory; the next count event
		// rederives them from the day buckets.
		if hs, ok := ev.Float("health_score"); ok {
			m.HealthScore = hs
		}
		if v, ok := ev.Float("sessions_7d"); ok {
			m.Sessions7d = int(v)
		}
		if v, ok := ev.Float("sessions_30d"); ok {
			m.Sessions30d = int(v)
		}
		if v, ok := ev.Float("incidents_14d"); ok {
			m.Incidents14d = int(v)
		}

	case event.KindCapacityUpdate:
		if r := ev.String("region"); r != "" {
			m.Region = r
		}
		if v, ok := ev.Float("demand_score"); ok {
			m.DemandScore = v
		}
		if v, ok := ev.Float("supply_score"); ok {
			m.SupplyScore = v
		}
		if bs := ev.String("balance_status"); bs != "" {
			m.BalanceStatus = bs
		}
	}
}
