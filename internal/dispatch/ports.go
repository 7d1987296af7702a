package dispatch

//go:generate mockgen -source=ports.go -destination=mocks/mocks.go -package=mocks Resolver,AccessControl,ComplianceAuditor,OpsAuditor,Notifier

import (
	"context"

	"carepilot/internal/access"
	"carepilot/internal/notify"
	id "carepilot/pkg/domain"
	audit "carepilot/pkg/platform/audit"
)

// Resolver maps a free-text client name to one owned client id.
type Resolver interface {
	Resolve(ctx context.Context, owner id.UserID, name string) (id.ClientID, error)
}

// AccessControl guards client-scoped actions and records protected access.
type AccessControl interface {
	VerifyAccess(ctx context.Context, actor id.UserID, clientID id.ClientID) (bool, error)
	LogAccess(ctx context.Context, access audit.PHIAccess) error
	ValidateMinimumNecessary(ctx context.Context, action string, accessedFields []string) access.MinimumNecessaryResult
}

// ComplianceAuditor is the fail-closed audit path for protected entities.
type ComplianceAuditor interface {
	Emit(ctx context.Context, record audit.Record) error
}

// OpsAuditor is the best-effort audit path for everything else.
type OpsAuditor interface {
	Track(ctx context.Context, record audit.Record)
}

type Notifier interface {
	Send(ctx context.Context, n notify.Notification) error
}
