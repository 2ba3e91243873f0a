package insight

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"opsinsight/pkg/inference"
	"opsinsight/pkg/notify"
	"opsinsight/pkg/storage"
	"opsinsight/pkg/structlog"
)

var (
	dispatchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "opsinsight", Subsystem: "dispatch", Name: "notifications_total", Help: "Dispatch decisions by outcome."},
		[]string{"outcome"}, // sent, suppressed, below_threshold
	)
)

func init() {
	_ = prometheus.Register(dispatchTotal)
}

// Dispatch defaults.
const (
	DefaultRiskThreshold = 80.0
	DefaultCooldown      = time.Hour
)

// DispatchRecord tracks the last outbound notification for one
// (alert kind, entity) pair. Mutated only on successful dispatch.
type DispatchRecord struct {
	AlertKind      string    `json:"alert_kind"`
	EntityID       string    `json:"entity_id"`
	EntityKind     string    `json:"entity_kind"`
	LastDispatched time.Time `json:"last_dispatched"`
	InsightID      string    `json:"insight_id"`
}

// DispatchRecordKey builds the KV key for a dedup record.
func DispatchRecordKey(alertKind, entityKind, entityID string) string {
	return fmt.Sprintf("dispatch:%s:%s:%s", alertKind, entityKind, entityID)
}

// Dispatcher emits at most one notification per (alert kind, entity) per
// cool-down interval. Insights below the risk threshold never notify; the
// caller has already persisted them.
type Dispatcher struct {
	kv        storage.KV
	sink      notify.Sink
	log       *structlog.Logger
	threshold float64
	cooldown  time.Duration
	now       func() time.Time

	// Serializes the read-check-write on the dedup record within this
	// process. Cross-process races are tolerated as duplicate pages, not
	// lost ones.
	mu sync.Mutex
}

// NewDispatcher builds a dispatcher. Zero threshold or cooldown fall back
// to the defaults.
func NewDispatcher(kv storage.KV, sink notify.Sink, threshold float64, cooldown time.Duration, log *structlog.Logger) *Dispatcher {
	if threshold <= 0 {
		threshold = DefaultRiskThreshold
	}
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	if log == nil {
		log = structlog.NewLogger("dispatch", structlog.LevelInfo, nil)
	}
	return &Dispatcher{
		kv:        kv,
		sink:      sink,
		log:       log,
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
	}
}

// Dispatch applies the threshold and cool-down policy to one insight and
// returns whether a notification went out.
func (d *Dispatcher) Dispatch(ctx context.Context, ins *inference.Insight) (bool, error) {
	if ins.RiskScore < d.threshold {
		dispatchTotal.WithLabelValues("below_threshold").Inc()
		return false, nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	key := DispatchRecordKey(ins.Kind, string(ins.EntityKind), ins.EntityID)
	now := d.now().UTC()

	var rec DispatchRecord
	err := storage.GetJSON(ctx, d.kv, key, &rec)
	switch {
	case err == nil:
		if now.Sub(rec.LastDispatched) < d.cooldown {
			dispatchTotal.WithLabelValues("suppressed").Inc()
			d.log.WithContext(ctx).Info("notification suppressed by cool-down", structlog.Fields{
				"insight_id":      ins.ID,
				"alert_kind":      ins.Kind,
				"entity_id":       ins.EntityID,
				"last_dispatched": rec.LastDispatched.Format(time.RFC3339),
			})
			return false, nil
		}
	case errors.Is(err, storage.ErrNotFound):
		// First notification for this pair.
	default:
		return false, fmt.Errorf("insight: load dispatch record %s: %w", key, err)
	}

	n := notify.Notification{
		InsightID:       ins.ID,
		EntityID:        ins.EntityID,
		EntityKind:      string(ins.EntityKind),
		AlertKind:       ins.Kind,
		Severity:        severityForRisk(ins.RiskScore),
		Category:        ins.Category,
		RiskScore:       ins.RiskScore,
		Explanation:     ins.Explanation,
		Recommendations: ins.Recommendations,
		Tier:            string(ins.Tier),
		Timestamp:       now,
	}
	if err := d.sink.Publish(ctx, n); err != nil {
		return false, fmt.Errorf("insight: publish notification for %s: %w", ins.ID, err)
	}

	rec = DispatchRecord{
		AlertKind:      ins.Kind,
		EntityID:       ins.EntityID,
		EntityKind:     string(ins.EntityKind),
		LastDispatched: now,
		InsightID:      ins.ID,
	}
	// Record TTL of two cool-downs keeps the dedup table from growing
	// without bound while never expiring a record that still suppresses.
	if err := storage.PutJSON(ctx, d.kv, key, rec, 2*d.cooldown); err != nil {
		return false, fmt.Errorf("insight: save dispatch record %s: %w", key, err)
	}

	dispatchTotal.WithLabelValues("sent").Inc()
	d.log.WithContext(ctx).Info("notification dispatched", structlog.Fields{
		"insight_id": ins.ID,
		"alert_kind": ins.Kind,
		"entity_id":  ins.EntityID,
		"risk_score": ins.RiskScore,
	})
	return true, nil
}

func severityForRisk(score float64) string {
	switch {
	case score >= 80:
		return "critical"
	case score >= 60:
		return "warning"
	default:
		return "info"
	}
}
