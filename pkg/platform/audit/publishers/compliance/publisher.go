// Package compliance provides a fail-closed audit publisher for protected records.
//
// Emit and EmitAccess write synchronously and return the store error. If the
// write fails the calling operation MUST fail; when the write happens inside a
// transaction the caller rolls the mutation back.
//
// Use for: client and note mutations, PHI access records.
package compliance

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	audit "carepilot/pkg/platform/audit"
)

// Publisher emits compliance records with fail-closed semantics.
type Publisher struct {
	store   audit.Store
	logger  *slog.Logger
	metrics *Metrics
}

// Option configures the Publisher.
type Option func(*Publisher)

// WithLogger sets a logger for error reporting.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *Metrics) Option {
	return func(p *Publisher) {
		p.metrics = m
	}
}

// New creates a compliance publisher.
func New(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{
		store: store,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Emit synchronously writes an audit record.
// Returns error if persistence fails - the caller MUST fail its operation.
func (p *Publisher) Emit(ctx context.Context, record audit.Record) error {
	start := time.Now()

	if record.ActorID.IsNil() {
		return fmt.Errorf("compliance record requires ActorID")
	}
	if record.Action == "" {
		return fmt.Errorf("compliance record requires Action")
	}
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now()
	}
	record.Category = audit.CategoryCompliance

	if err := p.store.Append(ctx, record); err != nil {
		p.fail(ctx, string(record.Action), record.ActorID.String(), err)
		return fmt.Errorf("compliance audit persistence failed: %w", err)
	}

	p.observe(start)
	return nil
}

// EmitAccess writes a PHI access record. It must succeed before any write to a
// clinical entity is attempted.
func (p *Publisher) EmitAccess(ctx context.Context, access audit.PHIAccess) error {
	start := time.Now()

	if access.ActorID.IsNil() {
		return fmt.Errorf("phi access record requires ActorID")
	}
	if access.ClientID.IsNil() {
		return fmt.Errorf("phi access record requires ClientID")
	}
	if access.Justification == "" {
		return fmt.Errorf("phi access record requires Justification")
	}
	if access.ID == uuid.Nil {
		access.ID = uuid.New()
	}
	if access.Timestamp.IsZero() {
		access.Timestamp = time.Now()
	}

	if err := p.store.AppendPHIAccess(ctx, access); err != nil {
		p.fail(ctx, "phi_access_"+string(access.AccessType), access.ActorID.String(), err)
		return fmt.Errorf("phi access persistence failed: %w", err)
	}

	p.observe(start)
	return nil
}

func (p *Publisher) fail(ctx context.Context, action, actor string, err error) {
	if p.metrics != nil {
		p.metrics.IncPersistFailures()
	}
	if p.logger != nil {
		p.logger.ErrorContext(ctx, "CRITICAL: compliance audit failed",
			"log_type", "audit",
			"action", action,
			"actor_id", actor,
			"error", err,
		)
	}
}

func (p *Publisher) observe(start time.Time) {
	if p.metrics != nil {
		p.metrics.ObservePersistDuration(time.Since(start).Seconds())
		p.metrics.IncEventsEmitted()
	}
}

// Close is a no-op for the synchronous compliance publisher.
func (p *Publisher) Close() error {
	return nil
}
