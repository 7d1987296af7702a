package records

import (
	"context"
	"time"

	id "carepilot/pkg/domain"
)

// Store is the persistence port for domain records. Every method is scoped
// by the owner. Get and update methods return sentinel.ErrNotFound when no row
// matches the id and owner together.
type Store interface {
	ClientStore
	AppointmentStore
	InvoiceStore
	ReminderStore
	NoteStore
}

type ClientStore interface {
	ListClients(ctx context.Context, owner id.UserID) ([]Client, error)
	GetClient(ctx context.Context, owner id.UserID, clientID id.ClientID) (*Client, error)
	CreateClient(ctx context.Context, c *Client) error
	UpdateClient(ctx context.Context, c *Client) error
	// IsPortalLinked reports whether user is a portal user linked to clientID.
	IsPortalLinked(ctx context.Context, user id.UserID, clientID id.ClientID) (bool, error)
}

type AppointmentStore interface {
	CreateAppointment(ctx context.Context, a *Appointment) error
	GetAppointment(ctx context.Context, owner id.UserID, apptID id.AppointmentID) (*Appointment, error)
	UpdateAppointment(ctx context.Context, a *Appointment) error
	ListAppointments(ctx context.Context, owner id.UserID, filter AppointmentFilter) ([]Appointment, error)
}

type InvoiceStore interface {
	CreateInvoice(ctx context.Context, inv *Invoice) error
	GetInvoice(ctx context.Context, owner id.UserID, invoiceID id.InvoiceID) (*Invoice, error)
	MarkInvoicePaid(ctx context.Context, owner id.UserID, invoiceID id.InvoiceID, paidAt time.Time) error
}

type ReminderStore interface {
	CreateReminder(ctx context.Context, r *Reminder) error
	GetReminder(ctx context.Context, owner id.UserID, reminderID id.ReminderID) (*Reminder, error)
	CompleteReminder(ctx context.Context, owner id.UserID, reminderID id.ReminderID, at time.Time) error
}

type NoteStore interface {
	CreateNote(ctx context.Context, n *Note) error
	ListNotes(ctx context.Context, owner id.UserID, clientID id.ClientID, limit int) ([]Note, error)
}

// TxRunner runs fn as one unit of work. Stores called with the ctx passed to
// fn join the unit; returning an error rolls it back.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}
