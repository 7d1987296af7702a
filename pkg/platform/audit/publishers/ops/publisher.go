// Package ops provides a best-effort audit publisher for non-protected records.
//
// Track never returns an error: a failed write is logged at Warn and counted,
// and the circuit breaker stops calls to a store that keeps failing so an audit
// outage cannot halt ordinary scheduling or billing work.
package ops

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	audit "carepilot/pkg/platform/audit"
	"carepilot/pkg/platform/circuit"
)

type Publisher struct {
	store   audit.Store
	breaker *circuit.Breaker
	logger  *slog.Logger
	metrics *Metrics
}

type Option func(*Publisher)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

func WithMetrics(m *Metrics) Option {
	return func(p *Publisher) {
		p.metrics = m
	}
}

// WithCircuitBreaker replaces the default breaker (5 failures, 1 minute
// cooldown, closes on the first successful trial).
func WithCircuitBreaker(cb *circuit.Breaker) Option {
	return func(p *Publisher) {
		p.breaker = cb
	}
}

func New(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{
		store:   store,
		breaker: circuit.New("ops-audit", circuit.WithSuccessThreshold(1)),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Track writes the record if the store is healthy and swallows any failure.
func (p *Publisher) Track(ctx context.Context, record audit.Record) {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now()
	}
	record.Category = audit.CategoryOperations

	if !p.breaker.Allow() {
		p.observe(outcomeDropped)
		p.logger.WarnContext(ctx, "ops audit dropped: circuit open",
			"log_type", "audit",
			"action", record.Action,
			"entity_type", record.EntityType,
			"entity_id", record.EntityID,
		)
		return
	}

	if err := p.store.Append(ctx, record); err != nil {
		p.breaker.RecordFailure()
		p.observe(outcomeFailed)
		p.logger.WarnContext(ctx, "ops audit write failed",
			"log_type", "audit",
			"action", record.Action,
			"entity_type", record.EntityType,
			"entity_id", record.EntityID,
			"error", err,
		)
		return
	}

	p.breaker.RecordSuccess()
	p.observe(outcomeTracked)
}

func (p *Publisher) observe(outcome string) {
	if p.metrics != nil {
		p.metrics.observe(outcome, p.breaker.IsOpen())
	}
}
