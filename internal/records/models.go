// Package records defines the practice domain records the action pipeline
// reads and writes. Every record is owned by one therapist and every store
// query is filtered by that owner.
package records

import (
	"time"

	id "carepilot/pkg/domain"
)

type ClientStatus string

const (
	ClientActive     ClientStatus = "active"
	ClientInactive   ClientStatus = "inactive"
	ClientDischarged ClientStatus = "discharged"
)

type Client struct {
	ID          id.ClientID
	TherapistID id.UserID
	FirstName   string
	LastName    string
	Email       string
	Phone       string
	Status      ClientStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// FullName is "First Last".
func (c Client) FullName() string {
	return c.FirstName + " " + c.LastName
}

// AuditView lists the fields recorded as old/new values.
func (c Client) AuditView() map[string]any {
	return map[string]any{
		"id":         c.ID.String(),
		"first_name": c.FirstName,
		"last_name":  c.LastName,
		"email":      c.Email,
		"phone":      c.Phone,
		"status":     string(c.Status),
	}
}

type AppointmentType string

const (
	AppointmentInPerson   AppointmentType = "in_person"
	AppointmentTelehealth AppointmentType = "telehealth"
)

type AppointmentStatus string

const (
	AppointmentScheduled AppointmentStatus = "scheduled"
	AppointmentCompleted AppointmentStatus = "completed"
	AppointmentCancelled AppointmentStatus = "cancelled"
	AppointmentNoShow    AppointmentStatus = "no_show"
)

type Appointment struct {
	ID              id.AppointmentID
	TherapistID     id.UserID
	ClientID        id.ClientID
	StartsAt        time.Time
	DurationMinutes int
	Type            AppointmentType
	Status          AppointmentStatus
	Notes           string
	CancelReason    string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (a Appointment) AuditView() map[string]any {
	return map[string]any{
		"id":               a.ID.String(),
		"client_id":        a.ClientID.String(),
		"starts_at":        a.StartsAt.UTC().Format(time.RFC3339),
		"duration_minutes": a.DurationMinutes,
		"appointment_type": string(a.Type),
		"status":           string(a.Status),
		"cancel_reason":    a.CancelReason,
	}
}

type InvoiceStatus string

const (
	InvoiceDraft InvoiceStatus = "draft"
	InvoiceSent  InvoiceStatus = "sent"
	InvoicePaid  InvoiceStatus = "paid"
	InvoiceVoid  InvoiceStatus = "void"
)

type Invoice struct {
	ID          id.InvoiceID
	TherapistID id.UserID
	ClientID    id.ClientID
	AmountCents int64
	Currency    string
	Description string
	DueDate     *time.Time
	Status      InvoiceStatus
	PaidAt      *time.Time
	CreatedAt   time.Time
}

func (i Invoice) AuditView() map[string]any {
	v := map[string]any{
		"id":           i.ID.String(),
		"client_id":    i.ClientID.String(),
		"amount_cents": i.AmountCents,
		"currency":     i.Currency,
		"status":       string(i.Status),
	}
	if i.DueDate != nil {
		v["due_date"] = i.DueDate.Format(time.DateOnly)
	}
	return v
}

type Reminder struct {
	ID          id.ReminderID
	TherapistID id.UserID
	ClientID    *id.ClientID
	Title       string
	DueAt       time.Time
	Completed   bool
	CompletedAt *time.Time
	CreatedAt   time.Time
}

func (r Reminder) AuditView() map[string]any {
	v := map[string]any{
		"id":        r.ID.String(),
		"title":     r.Title,
		"due_at":    r.DueAt.UTC().Format(time.RFC3339),
		"completed": r.Completed,
	}
	if r.ClientID != nil {
		v["client_id"] = r.ClientID.String()
	}
	return v
}

type NoteType string

const (
	NoteProgress  NoteType = "progress"
	NoteIntake    NoteType = "intake"
	NoteDischarge NoteType = "discharge"
)

type Note struct {
	ID          id.NoteID
	TherapistID id.UserID
	ClientID    id.ClientID
	NoteType    NoteType
	Content     string
	CreatedAt   time.Time
}

// AuditView never includes the clinical content itself.
func (n Note) AuditView() map[string]any {
	return map[string]any{
		"id":             n.ID.String(),
		"client_id":      n.ClientID.String(),
		"note_type":      string(n.NoteType),
		"content_length": len(n.Content),
	}
}

// PortalLink grants a portal user access to one client record.
type PortalLink struct {
	UserID   id.UserID
	ClientID id.ClientID
}

// AppointmentFilter narrows ListAppointments. Zero values mean "any".
type AppointmentFilter struct {
	ClientID *id.ClientID
	From     *time.Time
	To       *time.Time
	Limit    int
}
