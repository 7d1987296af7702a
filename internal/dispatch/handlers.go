package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"carepilot/internal/actions"
	"carepilot/internal/notify"
	"carepilot/internal/records"
	id "carepilot/pkg/domain"
	"carepilot/pkg/requestcontext"
)

const (
	listAppointmentsLimit = 50
	displayTime           = "Mon, Jan 2 at 3:04 PM"
)

// outcome is what a handler wrote or read.
type outcome struct {
	entityID string
	oldValue map[string]any
	newValue map[string]any
	data     any
	message  string
	notice   *notify.Notification
}

// stateError rejects a transition the record's current state does not allow.
type stateError struct{ message string }

func (e *stateError) Error() string { return e.message }

// mutate performs the single domain write (or read) for run.action. The
// switch covers every actions.Action.
func (d *Dispatcher) mutate(ctx context.Context, run *execution) (outcome, error) {
	actor := run.req.ActorID
	switch a := run.action.(type) {
	case actions.CreateClient:
		return d.createClient(ctx, actor, run.newClientID, a)
	case actions.UpdateClient:
		return d.updateClient(ctx, actor, a)
	case actions.CreateAppointment:
		return d.createAppointment(ctx, actor, run.loc, a)
	case actions.RescheduleAppointment:
		return d.rescheduleAppointment(ctx, actor, run.loc, a)
	case actions.CancelAppointment:
		return d.cancelAppointment(ctx, actor, a)
	case actions.ListAppointments:
		return d.listAppointments(ctx, actor, run.loc, a)
	case actions.CreateInvoice:
		return d.createInvoice(ctx, actor, a)
	case actions.MarkInvoicePaid:
		return d.markInvoicePaid(ctx, actor, a)
	case actions.CreateReminder:
		return d.createReminder(ctx, actor, run.loc, a)
	case actions.CompleteReminder:
		return d.completeReminder(ctx, actor, a)
	case actions.CreateNote:
		return d.createNote(ctx, actor, a)
	case actions.GetClientNotes:
		return d.getClientNotes(ctx, actor, a)
	default:
		return outcome{}, fmt.Errorf("no handler for %T", a)
	}
}

func (d *Dispatcher) createClient(ctx context.Context, actor id.UserID, clientID id.ClientID, a actions.CreateClient) (outcome, error) {
	if clientID.IsNil() {
		clientID = id.ClientID(uuid.New())
	}
	now := requestcontext.Now(ctx)
	c := &records.Client{
		ID:          clientID,
		TherapistID: actor,
		FirstName:   a.FirstName,
		LastName:    a.LastName,
		Email:       a.Email,
		Phone:       a.Phone,
		Status:      records.ClientActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := d.store.CreateClient(ctx, c); err != nil {
		return outcome{}, err
	}
	return outcome{
		entityID: c.ID.String(),
		newValue: c.AuditView(),
		data:     c.AuditView(),
		message:  fmt.Sprintf("Added %s as a new client.", c.FullName()),
	}, nil
}

func (d *Dispatcher) updateClient(ctx context.Context, actor id.UserID, a actions.UpdateClient) (outcome, error) {
	c, err := d.store.GetClient(ctx, actor, a.ClientID)
	if err != nil {
		return outcome{}, err
	}
	before := c.AuditView()

	if a.Email != nil {
		c.Email = *a.Email
	}
	if a.Phone != nil {
		c.Phone = *a.Phone
	}
	if a.Status != nil {
		c.Status = *a.Status
	}
	c.UpdatedAt = requestcontext.Now(ctx)
	if err := d.store.UpdateClient(ctx, c); err != nil {
		return outcome{}, err
	}
	return outcome{
		entityID: c.ID.String(),
		oldValue: before,
		newValue: c.AuditView(),
		data:     c.AuditView(),
		message:  fmt.Sprintf("Updated %s.", c.FullName()),
	}, nil
}

func (d *Dispatcher) createAppointment(ctx context.Context, actor id.UserID, loc *time.Location, a actions.CreateAppointment) (outcome, error) {
	client, err := d.store.GetClient(ctx, actor, a.ClientID)
	if err != nil {
		return outcome{}, err
	}
	now := requestcontext.Now(ctx)
	appt := &records.Appointment{
		ID:              id.AppointmentID(uuid.New()),
		TherapistID:     actor,
		ClientID:        a.ClientID,
		StartsAt:        a.StartsAt,
		DurationMinutes: a.DurationMinutes,
		Type:            a.Type,
		Status:          records.AppointmentScheduled,
		Notes:           a.Notes,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := d.store.CreateAppointment(ctx, appt); err != nil {
		return outcome{}, err
	}

	when := appt.StartsAt.In(loc).Format(displayTime)
	return outcome{
		entityID: appt.ID.String(),
		newValue: appt.AuditView(),
		data:     appt.AuditView(),
		message:  fmt.Sprintf("Scheduled a %d-minute appointment with %s on %s.", appt.DurationMinutes, client.FullName(), when),
		notice: &notify.Notification{
			UserID:  actor,
			Title:   "Appointment scheduled",
			Message: fmt.Sprintf("%s on %s", client.FullName(), when),
			Link:    "/appointments/" + appt.ID.String(),
		},
	}, nil
}

func (d *Dispatcher) rescheduleAppointment(ctx context.Context, actor id.UserID, loc *time.Location, a actions.RescheduleAppointment) (outcome, error) {
	appt, err := d.store.GetAppointment(ctx, actor, a.AppointmentID)
	if err != nil {
		return outcome{}, err
	}
	if appt.Status != records.AppointmentScheduled {
		return outcome{}, &stateError{message: fmt.Sprintf("That appointment is %s and can't be rescheduled.", appt.Status)}
	}
	before := appt.AuditView()

	appt.StartsAt = a.StartsAt
	if a.DurationMinutes != nil {
		appt.DurationMinutes = *a.DurationMinutes
	}
	appt.UpdatedAt = requestcontext.Now(ctx)
	if err := d.store.UpdateAppointment(ctx, appt); err != nil {
		return outcome{}, err
	}
	return outcome{
		entityID: appt.ID.String(),
		oldValue: before,
		newValue: appt.AuditView(),
		data:     appt.AuditView(),
		message:  "Moved the appointment to " + appt.StartsAt.In(loc).Format(displayTime) + ".",
	}, nil
}

func (d *Dispatcher) cancelAppointment(ctx context.Context, actor id.UserID, a actions.CancelAppointment) (outcome, error) {
	appt, err := d.store.GetAppointment(ctx, actor, a.AppointmentID)
	if err != nil {
		return outcome{}, err
	}
	if appt.Status != records.AppointmentScheduled {
		return outcome{}, &stateError{message: fmt.Sprintf("That appointment is already %s.", appt.Status)}
	}
	before := appt.AuditView()

	appt.Status = records.AppointmentCancelled
	appt.CancelReason = a.Reason
	appt.UpdatedAt = requestcontext.Now(ctx)
	if err := d.store.UpdateAppointment(ctx, appt); err != nil {
		return outcome{}, err
	}
	return outcome{
		entityID: appt.ID.String(),
		oldValue: before,
		newValue: appt.AuditView(),
		data:     appt.AuditView(),
		message:  "Cancelled the appointment.",
	}, nil
}

func (d *Dispatcher) listAppointments(ctx context.Context, actor id.UserID, loc *time.Location, a actions.ListAppointments) (outcome, error) {
	appts, err := d.store.ListAppointments(ctx, actor, records.AppointmentFilter{
		ClientID: a.ClientID,
		From:     a.From,
		To:       a.To,
		Limit:    listAppointmentsLimit,
	})
	if err != nil {
		return outcome{}, err
	}

	views := make([]map[string]any, len(appts))
	for i, appt := range appts {
		views[i] = appt.AuditView()
	}
	var entityID string
	if a.ClientID != nil {
		entityID = a.ClientID.String()
	}
	msg := fmt.Sprintf("Found %d appointments.", len(appts))
	switch len(appts) {
	case 0:
		msg = "No appointments found."
	case 1:
		msg = "Found 1 appointment, on " + appts[0].StartsAt.In(loc).Format(displayTime) + "."
	}
	return outcome{
		entityID: entityID,
		newValue: map[string]any{"count": len(appts)},
		data:     views,
		message:  msg,
	}, nil
}

func (d *Dispatcher) createInvoice(ctx context.Context, actor id.UserID, a actions.CreateInvoice) (outcome, error) {
	client, err := d.store.GetClient(ctx, actor, a.ClientID)
	if err != nil {
		return outcome{}, err
	}
	inv := &records.Invoice{
		ID:          id.InvoiceID(uuid.New()),
		TherapistID: actor,
		ClientID:    a.ClientID,
		AmountCents: a.AmountCents,
		Currency:    actions.DefaultCurrency,
		Description: a.Description,
		DueDate:     a.DueDate,
		Status:      records.InvoiceDraft,
		CreatedAt:   requestcontext.Now(ctx),
	}
	if err := d.store.CreateInvoice(ctx, inv); err != nil {
		return outcome{}, err
	}
	return outcome{
		entityID: inv.ID.String(),
		newValue: inv.AuditView(),
		data:     inv.AuditView(),
		message:  fmt.Sprintf("Created a %s invoice for %s.", formatCents(inv.AmountCents), client.FullName()),
	}, nil
}

func (d *Dispatcher) markInvoicePaid(ctx context.Context, actor id.UserID, a actions.MarkInvoicePaid) (outcome, error) {
	inv, err := d.store.GetInvoice(ctx, actor, a.InvoiceID)
	if err != nil {
		return outcome{}, err
	}
	if inv.Status == records.InvoicePaid || inv.Status == records.InvoiceVoid {
		return outcome{}, &stateError{message: fmt.Sprintf("That invoice is already %s.", inv.Status)}
	}
	before := inv.AuditView()

	paidAt := requestcontext.Now(ctx)
	if err := d.store.MarkInvoicePaid(ctx, actor, a.InvoiceID, paidAt); err != nil {
		return outcome{}, err
	}
	inv.Status = records.InvoicePaid
	inv.PaidAt = &paidAt
	return outcome{
		entityID: inv.ID.String(),
		oldValue: before,
		newValue: inv.AuditView(),
		data:     inv.AuditView(),
		message:  fmt.Sprintf("Marked the %s invoice as paid.", formatCents(inv.AmountCents)),
	}, nil
}

func (d *Dispatcher) createReminder(ctx context.Context, actor id.UserID, loc *time.Location, a actions.CreateReminder) (outcome, error) {
	r := &records.Reminder{
		ID:          id.ReminderID(uuid.New()),
		TherapistID: actor,
		ClientID:    a.ClientID,
		Title:       a.Title,
		DueAt:       a.DueAt,
		CreatedAt:   requestcontext.Now(ctx),
	}
	if err := d.store.CreateReminder(ctx, r); err != nil {
		return outcome{}, err
	}
	when := r.DueAt.In(loc).Format(displayTime)
	return outcome{
		entityID: r.ID.String(),
		newValue: r.AuditView(),
		data:     r.AuditView(),
		message:  fmt.Sprintf("I'll remind you to %q on %s.", r.Title, when),
		notice: &notify.Notification{
			UserID:  actor,
			Title:   "Reminder set",
			Message: fmt.Sprintf("%s (%s)", r.Title, when),
			Link:    "/reminders/" + r.ID.String(),
		},
	}, nil
}

func (d *Dispatcher) completeReminder(ctx context.Context, actor id.UserID, a actions.CompleteReminder) (outcome, error) {
	r, err := d.store.GetReminder(ctx, actor, a.ReminderID)
	if err != nil {
		return outcome{}, err
	}
	if r.Completed {
		return outcome{}, &stateError{message: "That reminder is already done."}
	}
	before := r.AuditView()

	at := requestcontext.Now(ctx)
	if err := d.store.CompleteReminder(ctx, actor, a.ReminderID, at); err != nil {
		return outcome{}, err
	}
	r.Completed = true
	r.CompletedAt = &at
	return outcome{
		entityID: r.ID.String(),
		oldValue: before,
		newValue: r.AuditView(),
		data:     r.AuditView(),
		message:  fmt.Sprintf("Marked %q as done.", r.Title),
	}, nil
}

func (d *Dispatcher) createNote(ctx context.Context, actor id.UserID, a actions.CreateNote) (outcome, error) {
	client, err := d.store.GetClient(ctx, actor, a.ClientID)
	if err != nil {
		return outcome{}, err
	}
	n := &records.Note{
		ID:          id.NoteID(uuid.New()),
		TherapistID: actor,
		ClientID:    a.ClientID,
		NoteType:    a.NoteType,
		Content:     a.Content,
		CreatedAt:   requestcontext.Now(ctx),
	}
	if err := d.store.CreateNote(ctx, n); err != nil {
		return outcome{}, err
	}
	return outcome{
		entityID: n.ID.String(),
		newValue: n.AuditView(),
		data:     n.AuditView(),
		message:  fmt.Sprintf("Saved a %s note for %s.", n.NoteType, client.FullName()),
	}, nil
}

func (d *Dispatcher) getClientNotes(ctx context.Context, actor id.UserID, a actions.GetClientNotes) (outcome, error) {
	notes, err := d.store.ListNotes(ctx, actor, a.ClientID, a.Limit)
	if err != nil {
		return outcome{}, err
	}

	views := make([]map[string]any, len(notes))
	for i, n := range notes {
		view := n.AuditView()
		view["content"] = n.Content
		view["created_at"] = n.CreatedAt.UTC().Format(time.RFC3339)
		views[i] = view
	}
	msg := fmt.Sprintf("Found %d notes.", len(notes))
	if len(notes) == 0 {
		msg = "There are no notes for that client yet."
	}
	return outcome{
		entityID: a.ClientID.String(),
		newValue: map[string]any{"count": len(notes)},
		data:     views,
		message:  msg,
	}, nil
}

func formatCents(cents int64) string {
	return fmt.Sprintf("$%d.%02d", cents/100, cents%100)
}
