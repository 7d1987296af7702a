// Package actions defines the closed set of structured actions the assistant
// may request, and validates raw parameters into typed values.
//
// Each action is its own struct implementing Action. The unexported marker
// method keeps the set closed to this package, so the dispatcher's type switch
// is exhaustive over everything Validate can return.
package actions

import (
	"time"

	"carepilot/internal/records"
	id "carepilot/pkg/domain"
	audit "carepilot/pkg/platform/audit"
)

// Name is the wire name of an action.
type Name string

const (
	NameCreateClient          Name = "create_client"
	NameUpdateClient          Name = "update_client"
	NameCreateAppointment     Name = "create_appointment"
	NameRescheduleAppointment Name = "reschedule_appointment"
	NameCancelAppointment     Name = "cancel_appointment"
	NameListAppointments      Name = "list_appointments"
	NameCreateInvoice         Name = "create_invoice"
	NameMarkInvoicePaid       Name = "mark_invoice_paid"
	NameCreateReminder        Name = "create_reminder"
	NameCompleteReminder      Name = "complete_reminder"
	NameCreateNote            Name = "create_note"
	NameGetClientNotes        Name = "get_client_notes"
)

// Request is one action requested by a user turn. It is never persisted as-is.
type Request struct {
	Name     string
	Params   map[string]any
	ActorID  id.UserID
	Timezone string
}

// Action is a validated action. Only this package can implement it.
type Action interface {
	ActionName() Name
	sealed()
}

// ClientScoped is implemented by actions that reference a client record. The
// dispatcher verifies access to that client before any mutation.
type ClientScoped interface {
	ClientRef() (id.ClientID, bool)
}

type CreateClient struct {
	FirstName string
	LastName  string
	Email     string
	Phone     string
}

type UpdateClient struct {
	ClientID id.ClientID
	Email    *string
	Phone    *string
	Status   *records.ClientStatus
}

type CreateAppointment struct {
	ClientID        id.ClientID
	StartsAt        time.Time
	DurationMinutes int
	Type            records.AppointmentType
	Notes           string
}

type RescheduleAppointment struct {
	AppointmentID   id.AppointmentID
	StartsAt        time.Time
	DurationMinutes *int
}

type CancelAppointment struct {
	AppointmentID id.AppointmentID
	Reason        string
}

type ListAppointments struct {
	ClientID *id.ClientID
	From     *time.Time
	To       *time.Time
}

type CreateInvoice struct {
	ClientID    id.ClientID
	AmountCents int64
	Description string
	DueDate     *time.Time
}

type MarkInvoicePaid struct {
	InvoiceID id.InvoiceID
}

type CreateReminder struct {
	Title    string
	DueAt    time.Time
	ClientID *id.ClientID
}

type CompleteReminder struct {
	ReminderID id.ReminderID
}

type CreateNote struct {
	ClientID id.ClientID
	Content  string
	NoteType records.NoteType
}

type GetClientNotes struct {
	ClientID id.ClientID
	Limit    int
}

func (CreateClient) ActionName() Name          { return NameCreateClient }
func (UpdateClient) ActionName() Name          { return NameUpdateClient }
func (CreateAppointment) ActionName() Name     { return NameCreateAppointment }
func (RescheduleAppointment) ActionName() Name { return NameRescheduleAppointment }
func (CancelAppointment) ActionName() Name     { return NameCancelAppointment }
func (ListAppointments) ActionName() Name      { return NameListAppointments }
func (CreateInvoice) ActionName() Name         { return NameCreateInvoice }
func (MarkInvoicePaid) ActionName() Name       { return NameMarkInvoicePaid }
func (CreateReminder) ActionName() Name        { return NameCreateReminder }
func (CompleteReminder) ActionName() Name      { return NameCompleteReminder }
func (CreateNote) ActionName() Name            { return NameCreateNote }
func (GetClientNotes) ActionName() Name        { return NameGetClientNotes }

func (CreateClient) sealed()          {}
func (UpdateClient) sealed()          {}
func (CreateAppointment) sealed()     {}
func (RescheduleAppointment) sealed() {}
func (CancelAppointment) sealed()     {}
func (ListAppointments) sealed()      {}
func (CreateInvoice) sealed()         {}
func (MarkInvoicePaid) sealed()       {}
func (CreateReminder) sealed()        {}
func (CompleteReminder) sealed()      {}
func (CreateNote) sealed()            {}
func (GetClientNotes) sealed()        {}

func (a UpdateClient) ClientRef() (id.ClientID, bool)      { return a.ClientID, true }
func (a CreateAppointment) ClientRef() (id.ClientID, bool) { return a.ClientID, true }
func (a CreateInvoice) ClientRef() (id.ClientID, bool)     { return a.ClientID, true }
func (a CreateNote) ClientRef() (id.ClientID, bool)        { return a.ClientID, true }
func (a GetClientNotes) ClientRef() (id.ClientID, bool)    { return a.ClientID, true }

func (a ListAppointments) ClientRef() (id.ClientID, bool) {
	if a.ClientID == nil {
		return id.ClientID{}, false
	}
	return *a.ClientID, true
}

func (a CreateReminder) ClientRef() (id.ClientID, bool) {
	if a.ClientID == nil {
		return id.ClientID{}, false
	}
	return *a.ClientID, true
}

// Info describes an action for auditing and tool declaration.
type Info struct {
	Name        Name
	Description string
	Entity      audit.EntityType
	Access      audit.AccessType
}

// Protected reports whether the action touches protected client or clinical data.
func (i Info) Protected() bool { return i.Entity.Protected() }

// Describe returns catalogue information for a known action.
func Describe(name Name) (Info, bool) {
	s, ok := catalogue[name]
	if !ok {
		return Info{}, false
	}
	return s.info, true
}

// Names returns every known action in declaration order.
func Names() []Name {
	out := make([]Name, len(order))
	copy(out, order)
	return out
}
