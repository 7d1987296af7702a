package actions

import (
	"time"

	"carepilot/internal/records"
	audit "carepilot/pkg/platform/audit"
)

// Bounds shared by the catalogue and the tool declarations.
const (
	MaxAmount             = 100000
	MinDurationMinutes    = 15
	MaxDurationMinutes    = 480
	DefaultDuration       = 60
	DefaultNotesLimit     = 10
	MaxNotesLimit         = 50
	DefaultCurrency       = "USD"
	maxNameLength         = 100
	maxShortTextLength    = 500
	maxAppointmentNoteLen = 2000
	maxNoteContentLength  = 20000
	maxReminderTitle      = 200
)

type kind int

const (
	kindText kind = iota
	kindUUID
	kindInt
	kindMoney
	kindDateTime
	kindDate
	kindEnum
	kindEmail
	kindPhone
)

type field struct {
	name     string
	kind     kind
	required bool
	min, max int
	enum     []string
	desc     string
}

type schema struct {
	info   Info
	fields []field
	check  func(v values) []FieldError
	build  func(v values) Action
}

func clientRef(required bool) field {
	return field{
		name:     "client_id",
		kind:     kindUUID,
		required: required,
		desc:     "Client id, or the client's name exactly as the user said it",
	}
}

var order = []Name{
	NameCreateClient,
	NameUpdateClient,
	NameCreateAppointment,
	NameRescheduleAppointment,
	NameCancelAppointment,
	NameListAppointments,
	NameCreateInvoice,
	NameMarkInvoicePaid,
	NameCreateReminder,
	NameCompleteReminder,
	NameCreateNote,
	NameGetClientNotes,
}

var catalogue = map[Name]schema{
	NameCreateClient: {
		info: Info{Name: NameCreateClient, Entity: audit.EntityClient, Access: audit.AccessWrite,
			Description: "Create a new client record"},
		fields: []field{
			{name: "first_name", kind: kindText, required: true, min: 1, max: maxNameLength},
			{name: "last_name", kind: kindText, required: true, min: 1, max: maxNameLength},
			{name: "email", kind: kindEmail},
			{name: "phone", kind: kindPhone},
		},
		build: func(v values) Action {
			return CreateClient{
				FirstName: v.str("first_name"),
				LastName:  v.str("last_name"),
				Email:     v.str("email"),
				Phone:     v.str("phone"),
			}
		},
	},
	NameUpdateClient: {
		info: Info{Name: NameUpdateClient, Entity: audit.EntityClient, Access: audit.AccessWrite,
			Description: "Update a client's contact details or status"},
		fields: []field{
			clientRef(true),
			{name: "email", kind: kindEmail},
			{name: "phone", kind: kindPhone},
			{name: "status", kind: kindEnum, enum: []string{
				string(records.ClientActive), string(records.ClientInactive), string(records.ClientDischarged),
			}},
		},
		check: func(v values) []FieldError {
			if !v.has("email") && !v.has("phone") && !v.has("status") {
				return []FieldError{{Field: "params", Message: "at least one of email, phone or status is required"}}
			}
			return nil
		},
		build: func(v values) Action {
			a := UpdateClient{
				ClientID: v.clientID("client_id"),
				Email:    v.strPtr("email"),
				Phone:    v.strPtr("phone"),
			}
			if s := v.strPtr("status"); s != nil {
				status := records.ClientStatus(*s)
				a.Status = &status
			}
			return a
		},
	},
	NameCreateAppointment: {
		info: Info{Name: NameCreateAppointment, Entity: audit.EntityAppointment, Access: audit.AccessWrite,
			Description: "Schedule an appointment with a client"},
		fields: []field{
			clientRef(true),
			{name: "appointment_date", kind: kindDateTime, required: true, desc: "Start time, e.g. 2025-03-14T14:00"},
			{name: "duration_minutes", kind: kindInt, min: MinDurationMinutes, max: MaxDurationMinutes},
			{name: "appointment_type", kind: kindEnum, enum: []string{
				string(records.AppointmentInPerson), string(records.AppointmentTelehealth),
			}},
			{name: "notes", kind: kindText, max: maxAppointmentNoteLen},
		},
		build: func(v values) Action {
			t := records.AppointmentInPerson
			if s := v.strPtr("appointment_type"); s != nil {
				t = records.AppointmentType(*s)
			}
			return CreateAppointment{
				ClientID:        v.clientID("client_id"),
				StartsAt:        v.time("appointment_date"),
				DurationMinutes: v.intOr("duration_minutes", DefaultDuration),
				Type:            t,
				Notes:           v.str("notes"),
			}
		},
	},
	NameRescheduleAppointment: {
		info: Info{Name: NameRescheduleAppointment, Entity: audit.EntityAppointment, Access: audit.AccessWrite,
			Description: "Move an existing appointment to a new time"},
		fields: []field{
			{name: "appointment_id", kind: kindUUID, required: true},
			{name: "appointment_date", kind: kindDateTime, required: true},
			{name: "duration_minutes", kind: kindInt, min: MinDurationMinutes, max: MaxDurationMinutes},
		},
		build: func(v values) Action {
			return RescheduleAppointment{
				AppointmentID:   v.appointmentID("appointment_id"),
				StartsAt:        v.time("appointment_date"),
				DurationMinutes: v.intPtr("duration_minutes"),
			}
		},
	},
	NameCancelAppointment: {
		info: Info{Name: NameCancelAppointment, Entity: audit.EntityAppointment, Access: audit.AccessWrite,
			Description: "Cancel a scheduled appointment"},
		fields: []field{
			{name: "appointment_id", kind: kindUUID, required: true},
			{name: "reason", kind: kindText, max: maxShortTextLength},
		},
		build: func(v values) Action {
			return CancelAppointment{
				AppointmentID: v.appointmentID("appointment_id"),
				Reason:        v.str("reason"),
			}
		},
	},
	NameListAppointments: {
		info: Info{Name: NameListAppointments, Entity: audit.EntityAppointment, Access: audit.AccessRead,
			Description: "List appointments, optionally for one client or a time range"},
		fields: []field{
			clientRef(false),
			{name: "from", kind: kindDateTime},
			{name: "to", kind: kindDateTime},
		},
		check: func(v values) []FieldError {
			if v.has("from") && v.has("to") && !v.time("from").Before(v.time("to")) {
				return []FieldError{{Field: "to", Message: "must be after from"}}
			}
			return nil
		},
		build: func(v values) Action {
			return ListAppointments{
				ClientID: v.clientIDPtr("client_id"),
				From:     v.timePtr("from"),
				To:       v.timePtr("to"),
			}
		},
	},
	NameCreateInvoice: {
		info: Info{Name: NameCreateInvoice, Entity: audit.EntityInvoice, Access: audit.AccessWrite,
			Description: "Create an invoice for a client"},
		fields: []field{
			clientRef(true),
			{name: "amount", kind: kindMoney, required: true, max: MaxAmount, desc: "Amount in dollars"},
			{name: "description", kind: kindText, max: maxShortTextLength},
			{name: "due_date", kind: kindDate},
		},
		build: func(v values) Action {
			return CreateInvoice{
				ClientID:    v.clientID("client_id"),
				AmountCents: v.cents("amount"),
				Description: v.str("description"),
				DueDate:     v.timePtr("due_date"),
			}
		},
	},
	NameMarkInvoicePaid: {
		info: Info{Name: NameMarkInvoicePaid, Entity: audit.EntityInvoice, Access: audit.AccessWrite,
			Description: "Mark an invoice as paid"},
		fields: []field{
			{name: "invoice_id", kind: kindUUID, required: true},
		},
		build: func(v values) Action {
			return MarkInvoicePaid{InvoiceID: v.invoiceID("invoice_id")}
		},
	},
	NameCreateReminder: {
		info: Info{Name: NameCreateReminder, Entity: audit.EntityReminder, Access: audit.AccessWrite,
			Description: "Create a reminder, optionally about a client"},
		fields: []field{
			{name: "title", kind: kindText, required: true, min: 1, max: maxReminderTitle},
			{name: "due_at", kind: kindDateTime, required: true},
			clientRef(false),
		},
		build: func(v values) Action {
			return CreateReminder{
				Title:    v.str("title"),
				DueAt:    v.time("due_at"),
				ClientID: v.clientIDPtr("client_id"),
			}
		},
	},
	NameCompleteReminder: {
		info: Info{Name: NameCompleteReminder, Entity: audit.EntityReminder, Access: audit.AccessWrite,
			Description: "Mark a reminder as done"},
		fields: []field{
			{name: "reminder_id", kind: kindUUID, required: true},
		},
		build: func(v values) Action {
			return CompleteReminder{ReminderID: v.reminderID("reminder_id")}
		},
	},
	NameCreateNote: {
		info: Info{Name: NameCreateNote, Entity: audit.EntityNote, Access: audit.AccessWrite,
			Description: "Write a clinical session note for a client"},
		fields: []field{
			clientRef(true),
			{name: "content", kind: kindText, required: true, min: 1, max: maxNoteContentLength},
			{name: "note_type", kind: kindEnum, enum: []string{
				string(records.NoteProgress), string(records.NoteIntake), string(records.NoteDischarge),
			}},
		},
		build: func(v values) Action {
			nt := records.NoteProgress
			if s := v.strPtr("note_type"); s != nil {
				nt = records.NoteType(*s)
			}
			return CreateNote{
				ClientID: v.clientID("client_id"),
				Content:  v.str("content"),
				NoteType: nt,
			}
		},
	},
	NameGetClientNotes: {
		info: Info{Name: NameGetClientNotes, Entity: audit.EntityNote, Access: audit.AccessRead,
			Description: "Read the most recent session notes for a client"},
		fields: []field{
			clientRef(true),
			{name: "limit", kind: kindInt, min: 1, max: MaxNotesLimit},
		},
		build: func(v values) Action {
			return GetClientNotes{
				ClientID: v.clientID("client_id"),
				Limit:    v.intOr("limit", DefaultNotesLimit),
			}
		},
	},
}

// Validate checks params against the schema for name, reading local times as UTC.
func Validate(name string, params map[string]any) (Action, error) {
	return ValidateIn(name, params, time.UTC)
}

// ValidateIn is Validate with local date-times interpreted in loc.
func ValidateIn(name string, params map[string]any, loc *time.Location) (Action, error) {
	s, ok := catalogue[Name(name)]
	if !ok {
		return nil, &UnknownActionError{Name: name}
	}
	if loc == nil {
		loc = time.UTC
	}

	v := values{}
	var errs []FieldError
	for _, f := range s.fields {
		raw, present := params[f.name]
		if !present || isBlank(raw) {
			if f.required {
				errs = append(errs, FieldError{Field: f.name, Message: "is required"})
			}
			continue
		}
		parsed, msg := f.parse(raw, loc)
		if msg != "" {
			errs = append(errs, FieldError{Field: f.name, Message: msg})
			continue
		}
		v[f.name] = parsed
	}
	if len(errs) == 0 && s.check != nil {
		errs = s.check(v)
	}
	if len(errs) > 0 {
		return nil, &ValidationError{Action: s.info.Name, Fields: errs}
	}
	return s.build(v), nil
}

// Fields returns the parameter names declared for name, in schema order.
func Fields(name Name) []string {
	s, ok := catalogue[name]
	if !ok {
		return nil
	}
	out := make([]string, len(s.fields))
	for i, f := range s.fields {
		out[i] = f.name
	}
	return out
}
