package inference

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"opsinsight/pkg/rules"
	"opsinsight/pkg/structlog"
)

var (
	insightsProduced = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "opsinsight", Subsystem: "inference", Name: "insights_total", Help: "Insights produced by backend tier."},
		[]string{"tier"},
	)
	tierFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "opsinsight", Subsystem: "inference", Name: "tier_failures_total", Help: "Tier attempts that fell through to the next tier."},
		[]string{"tier"},
	)
	tierLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Namespace: "opsinsight", Subsystem: "inference", Name: "tier_latency_seconds", Help: "Latency of each tier attempt."},
		[]string{"tier"},
	)
)

func init() {
	_ = prometheus.Register(insightsProduced)
	_ = prometheus.Register(tierFailures)
	_ = prometheus.Register(tierLatency)
}

// Config tunes the orchestrator's backend handling.
type Config struct {
	PrimaryTimeout   time.Duration // per primary call
	SecondaryTimeout time.Duration // per secondary attempt
	MaxRetries       int           // secondary retries for transient errors
	RetryBaseDelay   time.Duration // first backoff delay, doubling per attempt
	RetryMaxDelay    time.Duration // backoff cap
	GenParams        GenParams
	Retention        time.Duration

	// Circuit breaking per backend: after BreakerFailures consecutive
	// failures the tier fails fast for BreakerOpenFor before probing again.
	BreakerFailures int
	BreakerOpenFor  time.Duration
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		PrimaryTimeout:   10 * time.Second,
		SecondaryTimeout: 30 * time.Second,
		MaxRetries:       3,
		RetryBaseDelay:   time.Second,
		RetryMaxDelay:    8 * time.Second,
		GenParams:        GenParams{MaxTokens: 1000, Temperature: 0.3},
		Retention:        DefaultRetention,
		BreakerFailures:  5,
		BreakerOpenFor:   30 * time.Second,
	}
}

// Orchestrator produces exactly one Insight per candidate alert by walking
// the tier chain primary -> secondary -> tertiary. The only failure mode is
// the tertiary tier itself erroring, which is a programming error and is
// propagated, never swallowed.
type Orchestrator struct {
	scorer     Scorer
	generator  Generator
	cfg        Config
	log        *structlog.Logger
	now        func() time.Time
	newID      func() string
	primaryBrk *breaker
	secondBrk  *breaker
}

// NewOrchestrator wires the orchestrator with explicit backend clients.
// Either client may be nil; its tier then fails immediately and the chain
// moves on.
func NewOrchestrator(scorer Scorer, generator Generator, cfg Config, log *structlog.Logger) *Orchestrator {
	if log == nil {
		log = structlog.NewLogger("inference", structlog.LevelInfo, nil)
	}
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultRetention
	}
	return &Orchestrator{
		scorer:     scorer,
		generator:  generator,
		cfg:        cfg,
		log:        log,
		now:        time.Now,
		newID:      uuid.NewString,
		primaryBrk: newBreaker(cfg.BreakerFailures, cfg.BreakerOpenFor),
		secondBrk:  newBreaker(cfg.BreakerFailures, cfg.BreakerOpenFor),
	}
}

type tierResult struct {
	risk        float64
	explanation string
	recs        []string
}

type tierAttempt struct {
	tier       Tier
	confidence float64
	run        func(ctx context.Context, alert rules.CandidateAlert) (tierResult, error)
}

// Run walks the tier chain and returns the first successful tier's insight.
func (o *Orchestrator) Run(ctx context.Context, alert rules.CandidateAlert) (*Insight, error) {
	attempts := []tierAttempt{
		{TierPrimary, ConfidencePrimary, o.tryPrimary},
		{TierSecondary, ConfidenceSecondary, o.trySecondary},
		{TierTertiary, ConfidenceTertiary, o.tryTertiary},
	}

	var lastErr error
	for _, at := range attempts {
		start := time.Now()
		res, err := at.run(ctx, alert)
		tierLatency.WithLabelValues(string(at.tier)).Observe(time.Since(start).Seconds())
		if err != nil {
			tierFailures.WithLabelValues(string(at.tier)).Inc()
			o.log.WithContext(ctx).Warn("inference tier failed", structlog.Fields{
				"tier":       string(at.tier),
				"alert_kind": string(alert.Kind),
				"entity_id":  alert.EntityID,
				"error":      err.Error(),
			})
			lastErr = err
			continue
		}
		insightsProduced.WithLabelValues(string(at.tier)).Inc()
		return o.buildInsight(alert, at, res), nil
	}

	// Reachable only when the tertiary tier errored.
	return nil, fmt.Errorf("inference: all tiers failed for alert %s/%s: %w", alert.Kind, alert.EntityID, lastErr)
}

func (o *Orchestrator) tryPrimary(ctx context.Context, alert rules.CandidateAlert) (tierResult, error) {
	if o.scorer == nil {
		return tierResult{}, fmt.Errorf("inference: primary backend not configured")
	}
	// Past the batch deadline no new backend calls are started.
	if err := ctx.Err(); err != nil {
		return tierResult{}, err
	}
	if !o.primaryBrk.allow() {
		return tierResult{}, ErrBackendOpen
	}

	cctx, cancel := context.WithTimeout(ctx, o.cfg.PrimaryTimeout)
	defer cancel()

	features := BuildFeatureVector(alert, o.now())
	bucket, err := o.scorer.Score(cctx, features)
	o.primaryBrk.record(err == nil)
	if err != nil {
		return tierResult{}, err
	}

	explanation, recs := primaryAssessment(alert, bucket)
	return tierResult{risk: BucketRisk(bucket), explanation: explanation, recs: recs}, nil
}

func (o *Orchestrator) trySecondary(ctx context.Context, alert rules.CandidateAlert) (tierResult, error) {
	if o.generator == nil {
		return tierResult{}, fmt.Errorf("inference: secondary backend not configured")
	}
	if err := ctx.Err(); err != nil {
		return tierResult{}, err
	}
	if !o.secondBrk.allow() {
		return tierResult{}, ErrBackendOpen
	}

	prompt := BuildPrompt(alert)

	op := func() (string, error) {
		cctx, cancel := context.WithTimeout(ctx, o.cfg.SecondaryTimeout)
		defer cancel()
		text, err := o.generator.Generate(cctx, prompt, o.cfg.GenParams)
		if err != nil && !IsTransient(err) {
			return "", backoff.Permanent(err)
		}
		return text, err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = o.cfg.RetryBaseDelay
	b.MaxInterval = o.cfg.RetryMaxDelay
	b.Multiplier = 2
	b.MaxElapsedTime = 0 // bounded by attempt count and batch deadline

	text, err := backoff.RetryWithData(op, backoff.WithContext(backoff.WithMaxRetries(b, uint64(o.cfg.MaxRetries)), ctx))
	o.secondBrk.record(err == nil)
	if err != nil {
		return tierResult{}, err
	}

	// A reply that parses but fails validation fails the tier; re-prompting
	// an already-confused model is not worth the latency.
	reply, err := ParseAssessment(text)
	if err != nil {
		return tierResult{}, err
	}
	return tierResult{risk: *reply.RiskScore, explanation: reply.Explanation, recs: reply.Recommendations}, nil
}

func (o *Orchestrator) tryTertiary(_ context.Context, alert rules.CandidateAlert) (tierResult, error) {
	// Deliberately ignores cancellation: the tertiary tier is fast, local,
	// and the availability guarantee of the whole pipeline.
	risk, explanation, recs := Explain(alert)
	if explanation == "" || len(recs) == 0 {
		return tierResult{}, fmt.Errorf("inference: tertiary produced empty assessment for %s", alert.Kind)
	}
	return tierResult{risk: risk, explanation: explanation, recs: recs}, nil
}

func (o *Orchestrator) buildInsight(alert rules.CandidateAlert, at tierAttempt, res tierResult) *Insight {
	now := o.now().UTC()
	risk := res.risk
	if risk < 0 {
		risk = 0
	}
	if risk > 100 {
		risk = 100
	}
	return &Insight{
		ID:              o.newID(),
		Timestamp:       now,
		EntityID:        alert.EntityID,
		EntityKind:      alert.EntityKind,
		Kind:            string(alert.Kind),
		Category:        RiskCategory(risk),
		RiskScore:       risk,
		Explanation:     res.explanation,
		Recommendations: res.recs,
		Tier:            at.tier,
		Confidence:      at.confidence,
		RetentionExpiry: now.Add(o.cfg.Retention),
	}
}
