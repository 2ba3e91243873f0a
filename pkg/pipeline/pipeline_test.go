package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"opsinsight/pkg/aggregate"
	"opsinsight/pkg/event"
	"opsinsight/pkg/inference"
	"opsinsight/pkg/insight"
	"opsinsight/pkg/notify"
	"opsinsight/pkg/rules"
	"opsinsight/pkg/storage"
)

type captureSink struct {
	mu   sync.Mutex
	sent []notify.Notification
}

func (s *captureSink) Publish(ctx context.Context, n notify.Notification) error {
	s.mu.Lock()
	s.sent = append(s.sent, n)
	s.mu.Unlock()
	return nil
}

func (s *captureSink) Close() error { return nil }

func (s *captureSink) notifications() []notify.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]notify.Notification(nil), s.sent...)
}

type testHarness struct {
	pipeline *Pipeline
	kv       *storage.MemoryKV
	store    *insight.Store
	sink     *captureSink
	now      time.Time
}

func newHarness(t *testing.T, concurrency int) *testHarness {
	t.Helper()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	kv := storage.NewMemoryKV()
	t.Cleanup(func() { kv.Close() })
	sink := &captureSink{}

	store := insight.NewStoreAt(kv, clock)
	orch := inference.NewOrchestrator(nil, nil, inference.DefaultConfig(), nil)
	dispatcher := insight.NewDispatcher(kv, sink, 80, time.Hour, nil)

	p := New(
		event.NewNormalizerAt(clock),
		aggregate.NewAggregatorAt(kv, clock),
		rules.NewEngineAt(clock),
		orch,
		store,
		dispatcher,
		Config{Concurrency: concurrency},
		nil,
	)
	return &testHarness{pipeline: p, kv: kv, store: store, sink: sink, now: now}
}

func rawIncident(subject string, ts time.Time) event.RawEvent {
	return event.RawEvent{
		Kind:      event.KindIncidentLogged,
		Timestamp: ts.Format(time.RFC3339),
		Payload:   map[string]interface{}{"subject_id": subject},
	}
}

func TestApplyEndToEndScenario(t *testing.T) {
	h := newHarness(t, 1)
	ctx := context.Background()

	// Three incidents inside the medium window, then a health snapshot of 45.
	raws := []event.RawEvent{
		rawIncident("subj-X", h.now.Add(-48*time.Hour)),
		rawIncident("subj-X", h.now.Add(-24*time.Hour)),
		rawIncident("subj-X", h.now.Add(-1*time.Hour)),
		{
			Kind:      event.KindHealthReport,
			Timestamp: h.now.Format(time.RFC3339),
			Payload:   map[string]interface{}{"subject_id": "subj-X", "health_score": float64(45)},
		},
	}

	outcomes := h.pipeline.Apply(ctx, raws)
	require.Len(t, outcomes, 4)
	for _, out := range outcomes {
		assert.Equal(t, StatusOK, out.Status, "event %d: %s", out.Index, out.Error)
	}

	// First two incidents stay under the threshold.
	assert.Zero(t, outcomes[0].Alerts)
	assert.Zero(t, outcomes[1].Alerts)

	// The third incident trips the frequency rule at warning.
	assert.Equal(t, 1, outcomes[2].Alerts)
	require.Len(t, outcomes[2].InsightIDs, 1)
	assert.Zero(t, outcomes[2].Notified, "warning maps to risk 60, below the dispatch threshold")

	// The health snapshot fires low-health critical; the incident counter is
	// still at 3 so the frequency rule fires again too.
	assert.Equal(t, 2, outcomes[3].Alerts)
	assert.Len(t, outcomes[3].InsightIDs, 2)
	assert.Equal(t, 1, outcomes[3].Notified, "only critical crosses the dispatch threshold")

	ns := h.sink.notifications()
	require.Len(t, ns, 1)
	assert.Equal(t, string(rules.AlertLowHealthScore), ns[0].AlertKind)
	assert.Equal(t, "subj-X", ns[0].EntityID)
	assert.Equal(t, float64(85), ns[0].RiskScore)

	// Every produced insight is readable back from the store.
	for _, out := range outcomes {
		for _, id := range out.InsightIDs {
			ins, err := h.store.Get(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, inference.TierTertiary, ins.Tier)
		}
	}
}

func TestApplyDropsInvalidEvents(t *testing.T) {
	h := newHarness(t, 4)

	raws := []event.RawEvent{
		{Kind: "unregistered_kind", Payload: map[string]interface{}{"x": 1}},
		{Kind: event.KindIncidentLogged, Payload: map[string]interface{}{}}, // missing subject_id
		rawIncident("subj-A", h.now),
	}

	outcomes := h.pipeline.Apply(context.Background(), raws)
	require.Len(t, outcomes, 3)
	assert.Equal(t, StatusDropped, outcomes[0].Status)
	assert.Equal(t, StatusDropped, outcomes[1].Status)
	assert.Equal(t, StatusOK, outcomes[2].Status)
}

func TestApplyDedupAcrossBatches(t *testing.T) {
	h := newHarness(t, 1)
	ctx := context.Background()

	healthRaw := event.RawEvent{
		Kind:      event.KindHealthReport,
		Timestamp: h.now.Format(time.RFC3339),
		Payload:   map[string]interface{}{"subject_id": "subj-Y", "health_score": float64(40)},
	}

	outcomes := h.pipeline.Apply(ctx, []event.RawEvent{healthRaw})
	require.Equal(t, 1, outcomes[0].Notified)

	// Same critical condition again inside the cool-down: insight persists
	// but the notification is suppressed.
	outcomes = h.pipeline.Apply(ctx, []event.RawEvent{healthRaw})
	assert.Equal(t, StatusOK, outcomes[0].Status)
	assert.Len(t, outcomes[0].InsightIDs, 1)
	assert.Zero(t, outcomes[0].Notified)

	assert.Len(t, h.sink.notifications(), 1)
}

func TestApplyCapacityImbalance(t *testing.T) {
	h := newHarness(t, 2)

	raws := []event.RawEvent{{
		Kind:      event.KindCapacityUpdate,
		Timestamp: h.now.Format(time.RFC3339),
		Payload: map[string]interface{}{
			"topic":          "algebra",
			"region":         "eu-west",
			"demand_score":   float64(92),
			"supply_score":   float64(31),
			"balance_status": "high_demand",
		},
	}}

	outcomes := h.pipeline.Apply(context.Background(), raws)
	require.Equal(t, StatusOK, outcomes[0].Status)
	assert.Equal(t, 1, outcomes[0].Alerts)
	assert.Zero(t, outcomes[0].Notified, "info severity maps below the dispatch threshold")
}

func TestApplyParallelBatchIsolated(t *testing.T) {
	h := newHarness(t, 8)
	ctx := context.Background()

	var raws []event.RawEvent
	for i := 0; i < 20; i++ {
		raws = append(raws, event.RawEvent{
			Kind:      event.KindSessionStarted,
			Timestamp: h.now.Format(time.RFC3339),
			Payload:   map[string]interface{}{"subject_id": "subj-P", "provider_id": "prov-Q"},
		})
	}

	outcomes := h.pipeline.Apply(ctx, raws)
	for _, out := range outcomes {
		assert.Equal(t, StatusOK, out.Status, out.Error)
	}

	agg := aggregate.NewAggregatorAt(h.kv, func() time.Time { return h.now })
	m, err := agg.Get(ctx, aggregate.Key{ID: "subj-P", Kind: aggregate.EntitySubject})
	require.NoError(t, err)
	assert.Equal(t, 20, m.Sessions7d, "concurrent updates to one entity must not lose counts")
	assert.Equal(t, 20, m.Sessions30d)

	pm, err := agg.Get(ctx, aggregate.Key{ID: "prov-Q", Kind: aggregate.EntityProvider})
	require.NoError(t, err)
	assert.Equal(t, 20, pm.Sessions7d)
}
