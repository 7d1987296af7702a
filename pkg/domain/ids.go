// Package domain holds typed identifiers shared across bounded contexts.
//
// Every record type gets its own UUID-backed type so a client id can never be
// passed where an appointment id is expected. Parse functions are the trust
// boundary: they reject empty, malformed and nil UUIDs with CodeInvalidInput.
package domain

import (
	"strings"

	"github.com/google/uuid"

	dErrors "carepilot/pkg/domain-errors"
)

type (
	UserID        uuid.UUID
	ClientID      uuid.UUID
	AppointmentID uuid.UUID
	InvoiceID     uuid.UUID
	ReminderID    uuid.UUID
	NoteID        uuid.UUID
)

func (id UserID) String() string        { return uuid.UUID(id).String() }
func (id ClientID) String() string      { return uuid.UUID(id).String() }
func (id AppointmentID) String() string { return uuid.UUID(id).String() }
func (id InvoiceID) String() string     { return uuid.UUID(id).String() }
func (id ReminderID) String() string    { return uuid.UUID(id).String() }
func (id NoteID) String() string        { return uuid.UUID(id).String() }

func (id UserID) IsNil() bool        { return uuid.UUID(id) == uuid.Nil }
func (id ClientID) IsNil() bool      { return uuid.UUID(id) == uuid.Nil }
func (id AppointmentID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id InvoiceID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
func (id ReminderID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id NoteID) IsNil() bool        { return uuid.UUID(id) == uuid.Nil }

func ParseUserID(s string) (UserID, error) {
	u, err := parseUUID(s, "user_id")
	return UserID(u), err
}

func ParseClientID(s string) (ClientID, error) {
	u, err := parseUUID(s, "client_id")
	return ClientID(u), err
}

func ParseAppointmentID(s string) (AppointmentID, error) {
	u, err := parseUUID(s, "appointment_id")
	return AppointmentID(u), err
}

func ParseInvoiceID(s string) (InvoiceID, error) {
	u, err := parseUUID(s, "invoice_id")
	return InvoiceID(u), err
}

func ParseReminderID(s string) (ReminderID, error) {
	u, err := parseUUID(s, "reminder_id")
	return ReminderID(u), err
}

func ParseNoteID(s string) (NoteID, error) {
	u, err := parseUUID(s, "note_id")
	return NoteID(u), err
}

// LooksLikeUUID reports whether s parses as a non-nil UUID. The dispatcher uses
// it to decide whether a client reference needs name resolution.
func LooksLikeUUID(s string) bool {
	_, err := parseUUID(s, "id")
	return err == nil
}

func parseUUID(s, field string) (uuid.UUID, error) {
	if strings.TrimSpace(s) == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, field+" is required")
	}
	// uuid.Parse also accepts urn and braced forms; only the canonical 36-char
	// form is allowed at the boundary.
	if len(s) != 36 {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, field+" must be a valid UUID")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, field+" must be a valid UUID")
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, field+" must not be the nil UUID")
	}
	return u, nil
}
