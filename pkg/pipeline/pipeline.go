// Package pipeline wires the full event path: normalize, aggregate, evaluate
// rules, orchestrate inference, persist insights, dispatch alerts.
package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"opsinsight/pkg/aggregate"
	"opsinsight/pkg/event"
	"opsinsight/pkg/inference"
	"opsinsight/pkg/insight"
	"opsinsight/pkg/rules"
	"opsinsight/pkg/structlog"
)

var (
	eventsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "opsinsight", Subsystem: "pipeline", Name: "events_total", Help: "Processed events by outcome status."},
		[]string{"status"},
	)
	alertsFired = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "opsinsight", Subsystem: "pipeline", Name: "alerts_total", Help: "Candidate alerts fired by kind and severity."},
		[]string{"kind", "severity"},
	)
	batchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{Namespace: "opsinsight", Subsystem: "pipeline", Name: "batch_duration_seconds", Help: "Wall time per Apply batch."},
	)
)

func init() {
	_ = prometheus.Register(eventsProcessed)
	_ = prometheus.Register(alertsFired)
	_ = prometheus.Register(batchDuration)
}

// Outcome statuses.
const (
	StatusOK      = "ok"
	StatusDropped = "dropped"
	StatusFailed  = "failed"
)

// Outcome reports what happened to one event in a batch. Order matches the
// input slice.
type Outcome struct {
	Index      int      `json:"index"`
	Status     string   `json:"status"`
	Error      string   `json:"error,omitempty"`
	EventKind  string   `json:"event_kind,omitempty"`
	Alerts     int      `json:"alerts"`
	InsightIDs []string `json:"insight_ids,omitempty"`
	Notified   int      `json:"notified"`
}

// Config tunes batch execution.
type Config struct {
	Concurrency  int           // worker pool size, default 8
	BatchTimeout time.Duration // 0 means no deadline
}

// Pipeline executes batches of raw events end to end. Per-entity ordering is
// guaranteed by the aggregator's key locks; everything else runs in parallel
// up to Concurrency.
type Pipeline struct {
	normalizer *event.Normalizer
	aggregator *aggregate.Aggregator
	engine     *rules.Engine
	orch       *inference.Orchestrator
	store      *insight.Store
	dispatcher *insight.Dispatcher
	log        *structlog.Logger
	cfg        Config
}

// New assembles a pipeline from its stages.
func New(n *event.Normalizer, a *aggregate.Aggregator, e *rules.Engine, o *inference.Orchestrator, s *insight.Store, d *insight.Dispatcher, cfg Config, log *structlog.Logger) *Pipeline {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}
	if log == nil {
		log = structlog.NewLogger("pipeline", structlog.LevelInfo, nil)
	}
	return &Pipeline{
		normalizer: n,
		aggregator: a,
		engine:     e,
		orch:       o,
		store:      s,
		dispatcher: d,
		log:        log,
		cfg:        cfg,
	}
}

// Apply processes a batch. Every input event gets exactly one outcome:
// dropped (failed validation), failed (a stage errored), or ok. Events are
// isolated; one failure never aborts the batch. When the batch deadline
// fires, in-flight work falls back to the deterministic tier and still
// completes.
func (p *Pipeline) Apply(ctx context.Context, raws []event.RawEvent) []Outcome {
	start := time.Now()
	defer func() { batchDuration.Observe(time.Since(start).Seconds()) }()

	if p.cfg.BatchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.BatchTimeout)
		defer cancel()
	}

	outcomes := make([]Outcome, len(raws))

	// Validation is cheap and pure; do it serially so dropped events never
	// occupy a worker slot.
	events := make([]*event.Event, len(raws))
	for i, raw := range raws {
		outcomes[i].Index = i
		ev, err := p.normalizer.Normalize(raw)
		if err != nil {
			outcomes[i].Status = StatusDropped
			outcomes[i].Error = err.Error()
			eventsProcessed.WithLabelValues(StatusDropped).Inc()
			continue
		}
		events[i] = &ev
		outcomes[i].EventKind = string(ev.Kind)
	}

	sem := make(chan struct{}, p.cfg.Concurrency)
	var wg sync.WaitGroup
	for i := range events {
		if events[i] == nil {
			continue
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()
			outcomes[i] = p.processOne(ctx, i, *events[i])
			eventsProcessed.WithLabelValues(outcomes[i].Status).Inc()
		}(i)
	}
	wg.Wait()
	return outcomes
}

func (p *Pipeline) processOne(ctx context.Context, idx int, ev event.Event) Outcome {
	out := Outcome{Index: idx, Status: StatusOK, EventKind: string(ev.Kind)}
	log := p.log.WithContext(ctx)

	snapshots, err := p.aggregator.Apply(ctx, ev)
	if err != nil {
		log.Error("aggregate event", structlog.Fields{"event_kind": string(ev.Kind), "error": err.Error()})
		out.Status = StatusFailed
		out.Error = err.Error()
		return out
	}

	var alerts []rules.CandidateAlert
	for _, m := range snapshots {
		alerts = append(alerts, p.engine.Evaluate(ev, m)...)
	}
	out.Alerts = len(alerts)
	for _, alert := range alerts {
		alertsFired.WithLabelValues(string(alert.Kind), string(alert.Severity)).Inc()
	}

	for _, alert := range alerts {
		ins, err := p.orch.Run(ctx, alert)
		if err != nil {
			log.Error("inference failed", structlog.Fields{"alert_kind": string(alert.Kind), "entity_id": alert.EntityID, "error": err.Error()})
			out.Status = StatusFailed
			out.Error = err.Error()
			continue
		}
		if err := p.store.Save(ctx, ins); err != nil {
			log.Error("persist insight", structlog.Fields{"insight_id": ins.ID, "error": err.Error()})
			out.Status = StatusFailed
			out.Error = err.Error()
			continue
		}
		out.InsightIDs = append(out.InsightIDs, ins.ID)

		sent, err := p.dispatcher.Dispatch(ctx, ins)
		if err != nil {
			log.Error("dispatch insight", structlog.Fields{"insight_id": ins.ID, "error": err.Error()})
			out.Status = StatusFailed
			out.Error = err.Error()
			continue
		}
		if sent {
			out.Notified++
		}
	}
	return out
}
