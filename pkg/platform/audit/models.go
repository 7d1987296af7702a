package audit

import (
	"context"
	"time"

	"github.com/google/uuid"

	id "carepilot/pkg/domain"
)

// Category classifies audit records by their primary purpose.
// Each category has its own publisher with its own failure semantics.
type Category string

const (
	// CategoryCompliance covers records about protected entities (clients and
	// clinical notes) and PHI access. Writes are fail-closed.
	CategoryCompliance Category = "compliance"

	// CategorySecurity covers unauthorized attempts and rate limit rejections.
	// These feed alerting and are processed asynchronously.
	CategorySecurity Category = "security"

	// CategoryOperations covers mutations of non-protected entities
	// (appointments, invoices, reminders). Writes are best-effort.
	CategoryOperations Category = "operations"
)

// Action is the verb recorded on an audit record.
type Action string

const (
	ActionCreate             Action = "CREATE"
	ActionUpdate             Action = "UPDATE"
	ActionDelete             Action = "DELETE"
	ActionRead               Action = "READ"
	ActionUnauthorizedAccess Action = "UNAUTHORIZED_ACCESS_ATTEMPT"
	ActionRateLimitExceeded  Action = "RATE_LIMIT_EXCEEDED"
)

// EntityType names the kind of domain record an audit entry refers to.
type EntityType string

const (
	EntityClient      EntityType = "client"
	EntityAppointment EntityType = "appointment"
	EntityInvoice     EntityType = "invoice"
	EntityReminder    EntityType = "reminder"
	EntityNote        EntityType = "note"
)

// Protected reports whether records of this type hold protected personal or
// clinical information. Audit writes for protected entities must not be dropped.
func (e EntityType) Protected() bool {
	return e == EntityClient || e == EntityNote
}

// Category returns the publisher category for a mutation of this entity type.
func (e EntityType) Category() Category {
	if e.Protected() {
		return CategoryCompliance
	}
	return CategoryOperations
}

// Record is one append-only audit entry per attempted action, written on
// success and on failure. Message holds the raw error text and is for
// operators only.
type Record struct {
	ID            uuid.UUID
	Category      Category
	Timestamp     time.Time
	ActorID       id.UserID
	Action        Action
	EntityType    EntityType
	EntityID      string
	Success       bool
	Justification string
	OldValue      map[string]any
	NewValue      map[string]any
	ErrorKind     string
	Message       string
	RequestID     string
	ClientIP      string
	Device        string
}

// AccessType describes how protected data was touched.
type AccessType string

const (
	AccessRead   AccessType = "read"
	AccessWrite  AccessType = "write"
	AccessDelete AccessType = "delete"
	AccessExport AccessType = "export"
)

// PHIAccess records which client's protected data was touched and why,
// independent of whether the touching action succeeded.
type PHIAccess struct {
	ID             uuid.UUID
	Timestamp      time.Time
	ActorID        id.UserID
	AccessType     AccessType
	EntityType     EntityType
	ClientID       id.ClientID
	Justification  string
	AccessedFields []string
	RequestID      string
	ClientIP       string
	Device         string
}

// Severity levels for security events.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// SecurityEvent captures security-relevant activity for alerting.
type SecurityEvent struct {
	Timestamp time.Time
	Subject   string // entity involved (client id, actor id, IP)
	Action    Action
	Reason    string
	IP        string
	RequestID string
	ActorID   string
	Severity  Severity
}

// Store persists audit data. Implementations are append-only and join the
// transaction carried by ctx when there is one.
type Store interface {
	Append(ctx context.Context, record Record) error
	AppendPHIAccess(ctx context.Context, access PHIAccess) error
	AppendSecurity(ctx context.Context, event SecurityEvent) error
	ListByActor(ctx context.Context, actorID id.UserID) ([]Record, error)
}
