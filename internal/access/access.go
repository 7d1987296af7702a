// Package access decides whether an actor may touch a client record and keeps
// the append-only trail of protected data access.
//
// Denials are never silent: every negative VerifyAccess writes an
// UNAUTHORIZED_ACCESS_ATTEMPT record before returning.
package access

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"carepilot/internal/records"
	id "carepilot/pkg/domain"
	audit "carepilot/pkg/platform/audit"
	"carepilot/pkg/platform/sentinel"
	textutil "carepilot/pkg/platform/strings"
)

// ClientLookup is the owner-scoped read port used for access decisions.
type ClientLookup interface {
	GetClient(ctx context.Context, owner id.UserID, clientID id.ClientID) (*records.Client, error)
	IsPortalLinked(ctx context.Context, user id.UserID, clientID id.ClientID) (bool, error)
}

// ComplianceSink writes fail-closed audit data.
type ComplianceSink interface {
	Emit(ctx context.Context, record audit.Record) error
	EmitAccess(ctx context.Context, access audit.PHIAccess) error
}

// SecuritySink receives security events for alerting. Emit must not block.
type SecuritySink interface {
	Emit(ctx context.Context, event audit.SecurityEvent)
}

// MinimumNecessaryResult reports whether an action stayed within its declared fields.
type MinimumNecessaryResult struct {
	Valid  bool
	Error  string
	Excess []string
}

type Service struct {
	clients    ClientLookup
	compliance ComplianceSink
	security   SecuritySink
	policy     *Policy
	logger     *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithSecuritySink(sink SecuritySink) Option {
	return func(s *Service) {
		s.security = sink
	}
}

func WithPolicy(p *Policy) Option {
	return func(s *Service) {
		if p != nil {
			s.policy = p
		}
	}
}

func New(clients ClientLookup, compliance ComplianceSink, opts ...Option) *Service {
	s := &Service{
		clients:    clients,
		compliance: compliance,
		policy:     DefaultPolicy(),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// VerifyAccess reports whether actor owns clientID or is a portal user linked
// to it. A client that does not exist is denied the same way as one owned by
// someone else. Lookup failures return (false, err).
func (s *Service) VerifyAccess(ctx context.Context, actor id.UserID, clientID id.ClientID) (bool, error) {
	if actor.IsNil() || clientID.IsNil() {
		s.deny(ctx, actor, clientID, "missing actor or client id")
		return false, nil
	}

	_, err := s.clients.GetClient(ctx, actor, clientID)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, sentinel.ErrNotFound):
	default:
		return false, fmt.Errorf("checking client ownership: %w", err)
	}

	linked, err := s.clients.IsPortalLinked(ctx, actor, clientID)
	if err != nil {
		return false, fmt.Errorf("checking portal link: %w", err)
	}
	if linked {
		return true, nil
	}

	s.deny(ctx, actor, clientID, "actor neither owns nor is linked to client")
	return false, nil
}

func (s *Service) deny(ctx context.Context, actor id.UserID, clientID id.ClientID, reason string) {
	record := audit.Record{
		ActorID:    actor,
		Action:     audit.ActionUnauthorizedAccess,
		EntityType: audit.EntityClient,
		EntityID:   clientID.String(),
		Success:    false,
		ErrorKind:  "unauthorized",
		Message:    reason,
	}.Stamp(ctx)

	// The denial stands even when the trail cannot be written.
	if err := s.compliance.Emit(ctx, record); err != nil {
		s.logger.ErrorContext(ctx, "failed to record unauthorized access attempt",
			"actor_id", actor.String(),
			"client_id", clientID.String(),
			"error", err,
		)
	}

	if s.security != nil {
		s.security.Emit(ctx, audit.SecurityEvent{
			Subject:   clientID.String(),
			Action:    audit.ActionUnauthorizedAccess,
			Reason:    reason,
			IP:        record.ClientIP,
			RequestID: record.RequestID,
			ActorID:   actor.String(),
			Severity:  audit.SeverityWarning,
		})
	}
}

// LogAccess appends a PHI access record. It is fail-closed: an error here
// must abort the mutation it precedes.
func (s *Service) LogAccess(ctx context.Context, access audit.PHIAccess) error {
	access.AccessedFields = textutil.DedupeLower(access.AccessedFields)
	if err := s.compliance.EmitAccess(ctx, access.Stamp(ctx)); err != nil {
		return fmt.Errorf("logging protected access: %w", err)
	}
	return nil
}

// ValidateMinimumNecessary rejects an action that touched fields outside its
// declared set. Actions without a declaration pass and are logged.
func (s *Service) ValidateMinimumNecessary(ctx context.Context, action string, accessedFields []string) MinimumNecessaryResult {
	allowed, ok := s.policy.Allowed(action)
	if !ok {
		s.logger.WarnContext(ctx, "no minimum-necessary declaration for action", "action", action)
		return MinimumNecessaryResult{Valid: true}
	}

	var excess []string
	for _, f := range textutil.DedupeLower(accessedFields) {
		if !slices.Contains(allowed, f) {
			excess = append(excess, f)
		}
	}
	if len(excess) > 0 {
		return MinimumNecessaryResult{
			Valid:  false,
			Error:  fmt.Sprintf("%s may not access: %s", action, strings.Join(excess, ", ")),
			Excess: excess,
		}
	}
	return MinimumNecessaryResult{Valid: true}
}
