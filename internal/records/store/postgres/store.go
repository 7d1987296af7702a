// Package postgres implements records.Store on PostgreSQL. Every statement
// filters by therapist_id; updates that match zero rows are reported as
// sentinel.ErrNotFound.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"carepilot/internal/platform/postgres"
	"carepilot/internal/records"
	id "carepilot/pkg/domain"
	"carepilot/pkg/platform/sentinel"
	txcontext "carepilot/pkg/platform/tx"
)

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) exec(ctx context.Context) txcontext.Executor {
	return txcontext.Execer(ctx, s.db)
}

func translate(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return sentinel.ErrNotFound
	case postgres.IsUniqueViolation(err):
		return fmt.Errorf("%s: %w", what, sentinel.ErrConflict)
	case postgres.IsForeignKeyViolation(err):
		return fmt.Errorf("%s: %w", what, sentinel.ErrNotFound)
	default:
		return fmt.Errorf("%s: %w", what, err)
	}
}

func requireOneRow(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", what, err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

// -----------------------------------------------------------------------------
// Clients
// -----------------------------------------------------------------------------

const clientColumns = `id, therapist_id, first_name, last_name, email, phone, status, created_at, updated_at`

func scanClient(row interface{ Scan(...any) error }) (records.Client, error) {
	var (
		c            records.Client
		cid, ownerID uuid.UUID
		status       string
	)
	err := row.Scan(&cid, &ownerID, &c.FirstName, &c.LastName, &c.Email, &c.Phone, &status, &c.CreatedAt, &c.UpdatedAt)
	c.ID = id.ClientID(cid)
	c.TherapistID = id.UserID(ownerID)
	c.Status = records.ClientStatus(status)
	return c, err
}

func (s *Store) ListClients(ctx context.Context, owner id.UserID) ([]records.Client, error) {
	rows, err := s.exec(ctx).QueryContext(ctx,
		`SELECT `+clientColumns+` FROM clients WHERE therapist_id = $1 ORDER BY last_name, first_name`,
		uuid.UUID(owner))
	if err != nil {
		return nil, translate(err, "list clients")
	}
	defer rows.Close()

	var out []records.Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, fmt.Errorf("scan client: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) GetClient(ctx context.Context, owner id.UserID, clientID id.ClientID) (*records.Client, error) {
	row := s.exec(ctx).QueryRowContext(ctx,
		`SELECT `+clientColumns+` FROM clients WHERE id = $1 AND therapist_id = $2`,
		uuid.UUID(clientID), uuid.UUID(owner))
	c, err := scanClient(row)
	if err != nil {
		return nil, translate(err, "get client")
	}
	return &c, nil
}

func (s *Store) CreateClient(ctx context.Context, c *records.Client) error {
	_, err := s.exec(ctx).ExecContext(ctx, `
		INSERT INTO clients (`+clientColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		uuid.UUID(c.ID), uuid.UUID(c.TherapistID), c.FirstName, c.LastName, c.Email, c.Phone,
		string(c.Status), c.CreatedAt, c.UpdatedAt)
	return translate(err, "insert client")
}

func (s *Store) UpdateClient(ctx context.Context, c *records.Client) error {
	res, err := s.exec(ctx).ExecContext(ctx, `
		UPDATE clients SET email = $1, phone = $2, status = $3, updated_at = $4
		WHERE id = $5 AND therapist_id = $6`,
		c.Email, c.Phone, string(c.Status), c.UpdatedAt, uuid.UUID(c.ID), uuid.UUID(c.TherapistID))
	if err != nil {
		return translate(err, "update client")
	}
	return requireOneRow(res, "update client")
}

func (s *Store) IsPortalLinked(ctx context.Context, user id.UserID, clientID id.ClientID) (bool, error) {
	var linked bool
	err := s.exec(ctx).QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM client_portal_links WHERE user_id = $1 AND client_id = $2)`,
		uuid.UUID(user), uuid.UUID(clientID)).Scan(&linked)
	if err != nil {
		return false, fmt.Errorf("check portal link: %w", err)
	}
	return linked, nil
}

// -----------------------------------------------------------------------------
// Appointments
// -----------------------------------------------------------------------------

const appointmentColumns = `id, therapist_id, client_id, starts_at, duration_minutes, appointment_type, status, notes, cancel_reason, created_at, updated_at`

func scanAppointment(row interface{ Scan(...any) error }) (records.Appointment, error) {
	var (
		a                  records.Appointment
		aid, owner, client uuid.UUID
		typ, status        string
	)
	err := row.Scan(&aid, &owner, &client, &a.StartsAt, &a.DurationMinutes, &typ, &status, &a.Notes, &a.CancelReason, &a.CreatedAt, &a.UpdatedAt)
	a.ID = id.AppointmentID(aid)
	a.TherapistID = id.UserID(owner)
	a.ClientID = id.ClientID(client)
	a.Type = records.AppointmentType(typ)
	a.Status = records.AppointmentStatus(status)
	return a, err
}

func (s *Store) CreateAppointment(ctx context.Context, a *records.Appointment) error {
	_, err := s.exec(ctx).ExecContext(ctx, `
		INSERT INTO appointments (`+appointmentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		uuid.UUID(a.ID), uuid.UUID(a.TherapistID), uuid.UUID(a.ClientID), a.StartsAt, a.DurationMinutes,
		string(a.Type), string(a.Status), a.Notes, a.CancelReason, a.CreatedAt, a.UpdatedAt)
	return translate(err, "insert appointment")
}

func (s *Store) GetAppointment(ctx context.Context, owner id.UserID, apptID id.AppointmentID) (*records.Appointment, error) {
	row := s.exec(ctx).QueryRowContext(ctx,
		`SELECT `+appointmentColumns+` FROM appointments WHERE id = $1 AND therapist_id = $2`,
		uuid.UUID(apptID), uuid.UUID(owner))
	a, err := scanAppointment(row)
	if err != nil {
		return nil, translate(err, "get appointment")
	}
	return &a, nil
}

func (s *Store) UpdateAppointment(ctx context.Context, a *records.Appointment) error {
	res, err := s.exec(ctx).ExecContext(ctx, `
		UPDATE appointments
		SET starts_at = $1, duration_minutes = $2, status = $3, cancel_reason = $4, updated_at = $5
		WHERE id = $6 AND therapist_id = $7`,
		a.StartsAt, a.DurationMinutes, string(a.Status), a.CancelReason, a.UpdatedAt,
		uuid.UUID(a.ID), uuid.UUID(a.TherapistID))
	if err != nil {
		return translate(err, "update appointment")
	}
	return requireOneRow(res, "update appointment")
}

func (s *Store) ListAppointments(ctx context.Context, owner id.UserID, f records.AppointmentFilter) ([]records.Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE therapist_id = $1`
	args := []any{uuid.UUID(owner)}
	if f.ClientID != nil {
		args = append(args, uuid.UUID(*f.ClientID))
		query += fmt.Sprintf(" AND client_id = $%d", len(args))
	}
	if f.From != nil {
		args = append(args, *f.From)
		query += fmt.Sprintf(" AND starts_at >= $%d", len(args))
	}
	if f.To != nil {
		args = append(args, *f.To)
		query += fmt.Sprintf(" AND starts_at < $%d", len(args))
	}
	query += " ORDER BY starts_at"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.exec(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, translate(err, "list appointments")
	}
	defer rows.Close()

	var out []records.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan appointment: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// -----------------------------------------------------------------------------
// Invoices
// -----------------------------------------------------------------------------

func (s *Store) CreateInvoice(ctx context.Context, inv *records.Invoice) error {
	_, err := s.exec(ctx).ExecContext(ctx, `
		INSERT INTO invoices (id, therapist_id, client_id, amount_cents, currency, description, due_date, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		uuid.UUID(inv.ID), uuid.UUID(inv.TherapistID), uuid.UUID(inv.ClientID), inv.AmountCents,
		inv.Currency, inv.Description, inv.DueDate, string(inv.Status), inv.CreatedAt)
	return translate(err, "insert invoice")
}

func (s *Store) GetInvoice(ctx context.Context, owner id.UserID, invoiceID id.InvoiceID) (*records.Invoice, error) {
	var (
		inv                    records.Invoice
		iid, ownerID, clientID uuid.UUID
		status                 string
		dueDate, paidAt        sql.NullTime
	)
	err := s.exec(ctx).QueryRowContext(ctx, `
		SELECT id, therapist_id, client_id, amount_cents, currency, description, due_date, status, paid_at, created_at
		FROM invoices WHERE id = $1 AND therapist_id = $2`,
		uuid.UUID(invoiceID), uuid.UUID(owner),
	).Scan(&iid, &ownerID, &clientID, &inv.AmountCents, &inv.Currency, &inv.Description, &dueDate, &status, &paidAt, &inv.CreatedAt)
	if err != nil {
		return nil, translate(err, "get invoice")
	}
	inv.ID = id.InvoiceID(iid)
	inv.TherapistID = id.UserID(ownerID)
	inv.ClientID = id.ClientID(clientID)
	inv.Status = records.InvoiceStatus(status)
	if dueDate.Valid {
		inv.DueDate = &dueDate.Time
	}
	if paidAt.Valid {
		inv.PaidAt = &paidAt.Time
	}
	return &inv, nil
}

func (s *Store) MarkInvoicePaid(ctx context.Context, owner id.UserID, invoiceID id.InvoiceID, paidAt time.Time) error {
	res, err := s.exec(ctx).ExecContext(ctx, `
		UPDATE invoices SET status = $1, paid_at = $2
		WHERE id = $3 AND therapist_id = $4`,
		string(records.InvoicePaid), paidAt, uuid.UUID(invoiceID), uuid.UUID(owner))
	if err != nil {
		return translate(err, "mark invoice paid")
	}
	return requireOneRow(res, "mark invoice paid")
}

// -----------------------------------------------------------------------------
// Reminders
// -----------------------------------------------------------------------------

func (s *Store) CreateReminder(ctx context.Context, r *records.Reminder) error {
	var clientID uuid.NullUUID
	if r.ClientID != nil {
		clientID = uuid.NullUUID{UUID: uuid.UUID(*r.ClientID), Valid: true}
	}
	_, err := s.exec(ctx).ExecContext(ctx, `
		INSERT INTO reminders (id, therapist_id, client_id, title, due_at, completed, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		uuid.UUID(r.ID), uuid.UUID(r.TherapistID), clientID, r.Title, r.DueAt, r.Completed, r.CreatedAt)
	return translate(err, "insert reminder")
}

func (s *Store) GetReminder(ctx context.Context, owner id.UserID, reminderID id.ReminderID) (*records.Reminder, error) {
	var (
		r           records.Reminder
		rid, ownerU uuid.UUID
		clientID    uuid.NullUUID
		completedAt sql.NullTime
	)
	err := s.exec(ctx).QueryRowContext(ctx, `
		SELECT id, therapist_id, client_id, title, due_at, completed, completed_at, created_at
		FROM reminders WHERE id = $1 AND therapist_id = $2`,
		uuid.UUID(reminderID), uuid.UUID(owner),
	).Scan(&rid, &ownerU, &clientID, &r.Title, &r.DueAt, &r.Completed, &completedAt, &r.CreatedAt)
	if err != nil {
		return nil, translate(err, "get reminder")
	}
	r.ID = id.ReminderID(rid)
	r.TherapistID = id.UserID(ownerU)
	if clientID.Valid {
		c := id.ClientID(clientID.UUID)
		r.ClientID = &c
	}
	if completedAt.Valid {
		r.CompletedAt = &completedAt.Time
	}
	return &r, nil
}

func (s *Store) CompleteReminder(ctx context.Context, owner id.UserID, reminderID id.ReminderID, at time.Time) error {
	res, err := s.exec(ctx).ExecContext(ctx, `
		UPDATE reminders SET completed = TRUE, completed_at = $1
		WHERE id = $2 AND therapist_id = $3`,
		at, uuid.UUID(reminderID), uuid.UUID(owner))
	if err != nil {
		return translate(err, "complete reminder")
	}
	return requireOneRow(res, "complete reminder")
}

// -----------------------------------------------------------------------------
// Notes
// -----------------------------------------------------------------------------

func (s *Store) CreateNote(ctx context.Context, n *records.Note) error {
	_, err := s.exec(ctx).ExecContext(ctx, `
		INSERT INTO session_notes (id, therapist_id, client_id, note_type, content, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		uuid.UUID(n.ID), uuid.UUID(n.TherapistID), uuid.UUID(n.ClientID), string(n.NoteType), n.Content, n.CreatedAt)
	return translate(err, "insert note")
}

func (s *Store) ListNotes(ctx context.Context, owner id.UserID, clientID id.ClientID, limit int) ([]records.Note, error) {
	rows, err := s.exec(ctx).QueryContext(ctx, `
		SELECT id, therapist_id, client_id, note_type, content, created_at
		FROM session_notes
		WHERE therapist_id = $1 AND client_id = $2
		ORDER BY created_at DESC
		LIMIT $3`,
		uuid.UUID(owner), uuid.UUID(clientID), limit)
	if err != nil {
		return nil, translate(err, "list notes")
	}
	defer rows.Close()

	var out []records.Note
	for rows.Next() {
		var (
			n                 records.Note
			nid, ownerU, cidU uuid.UUID
			noteType          string
		)
		if err := rows.Scan(&nid, &ownerU, &cidU, &noteType, &n.Content, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan note: %w", err)
		}
		n.ID = id.NoteID(nid)
		n.TherapistID = id.UserID(ownerU)
		n.ClientID = id.ClientID(cidU)
		n.NoteType = records.NoteType(noteType)
		out = append(out, n)
	}
	return out, rows.Err()
}
