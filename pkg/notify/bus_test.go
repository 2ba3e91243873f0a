package notify

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusDeliversByAlertKind(t *testing.T) {
	b := NewBus(8)

	var mu sync.Mutex
	var health, all []Notification
	b.Subscribe("low_health_score", func(ctx context.Context, n Notification) {
		mu.Lock()
		health = append(health, n)
		mu.Unlock()
	})
	b.Subscribe("", func(ctx context.Context, n Notification) {
		mu.Lock()
		all = append(all, n)
		mu.Unlock()
	})

	require.NoError(t, b.Publish(context.Background(), Notification{InsightID: "a", AlertKind: "low_health_score"}))
	require.NoError(t, b.Publish(context.Background(), Notification{InsightID: "b", AlertKind: "capacity_imbalance"}))
	require.NoError(t, b.Close())

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, health, 1)
	assert.Equal(t, "a", health[0].InsightID)
	assert.Len(t, all, 2)
}

func TestBusPublishHonorsContext(t *testing.T) {
	b := NewBus(1)
	defer b.Close()

	// Fill the queue; no subscriber is registered so nothing drains fast
	// enough to matter for the cancelled publish below.
	require.NoError(t, b.Publish(context.Background(), Notification{InsightID: "fill"}))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := b.Publish(ctx, Notification{InsightID: "blocked"})
	if err != nil {
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	}
}

func TestLogSinkPublish(t *testing.T) {
	s := NewLogSink(nil)
	assert.NoError(t, s.Publish(context.Background(), Notification{InsightID: "x", AlertKind: "high_incident_frequency"}))
	assert.NoError(t, s.Close())
}
