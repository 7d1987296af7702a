// Package memory is an in-process records store for tests and single-instance
// deployments without DATABASE_URL.
package memory

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"sync"
	"time"

	"carepilot/internal/records"
	id "carepilot/pkg/domain"
	"carepilot/pkg/platform/sentinel"
)

type data struct {
	clients      map[id.ClientID]records.Client
	appointments map[id.AppointmentID]records.Appointment
	invoices     map[id.InvoiceID]records.Invoice
	reminders    map[id.ReminderID]records.Reminder
	notes        []records.Note
	portal       map[records.PortalLink]struct{}
}

func newData() data {
	return data{
		clients:      make(map[id.ClientID]records.Client),
		appointments: make(map[id.AppointmentID]records.Appointment),
		invoices:     make(map[id.InvoiceID]records.Invoice),
		reminders:    make(map[id.ReminderID]records.Reminder),
		portal:       make(map[records.PortalLink]struct{}),
	}
}

func (d data) clone() data {
	return data{
		clients:      maps.Clone(d.clients),
		appointments: maps.Clone(d.appointments),
		invoices:     maps.Clone(d.invoices),
		reminders:    maps.Clone(d.reminders),
		notes:        append([]records.Note(nil), d.notes...),
		portal:       maps.Clone(d.portal),
	}
}

// Store implements records.Store and records.TxRunner. RunInTx serialises
// units of work and restores a snapshot when fn fails.
type Store struct {
	txMu sync.Mutex
	mu   sync.RWMutex
	d    data
}

func New() *Store {
	return &Store{d: newData()}
}

func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("transaction aborted: %w", err)
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	snapshot := s.d.clone()
	s.mu.RUnlock()

	if err := fn(ctx); err != nil {
		s.mu.Lock()
		s.d = snapshot
		s.mu.Unlock()
		return err
	}
	return nil
}

// LinkPortalUser grants a portal user access to a client record.
func (s *Store) LinkPortalUser(user id.UserID, clientID id.ClientID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.d.portal[records.PortalLink{UserID: user, ClientID: clientID}] = struct{}{}
}

// -----------------------------------------------------------------------------
// Clients
// -----------------------------------------------------------------------------

func (s *Store) ListClients(_ context.Context, owner id.UserID) ([]records.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []records.Client
	for _, c := range s.d.clients {
		if c.TherapistID == owner {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LastName != out[j].LastName {
			return out[i].LastName < out[j].LastName
		}
		return out[i].FirstName < out[j].FirstName
	})
	return out, nil
}

func (s *Store) GetClient(_ context.Context, owner id.UserID, clientID id.ClientID) (*records.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.d.clients[clientID]
	if !ok || c.TherapistID != owner {
		return nil, sentinel.ErrNotFound
	}
	return &c, nil
}

func (s *Store) CreateClient(_ context.Context, c *records.Client) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.d.clients[c.ID]; exists {
		return sentinel.ErrConflict
	}
	s.d.clients[c.ID] = *c
	return nil
}

func (s *Store) UpdateClient(_ context.Context, c *records.Client) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.d.clients[c.ID]
	if !ok || existing.TherapistID != c.TherapistID {
		return sentinel.ErrNotFound
	}
	s.d.clients[c.ID] = *c
	return nil
}

func (s *Store) IsPortalLinked(_ context.Context, user id.UserID, clientID id.ClientID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.d.portal[records.PortalLink{UserID: user, ClientID: clientID}]
	return ok, nil
}

// -----------------------------------------------------------------------------
// Appointments
// -----------------------------------------------------------------------------

func (s *Store) CreateAppointment(_ context.Context, a *records.Appointment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.d.appointments[a.ID]; exists {
		return sentinel.ErrConflict
	}
	s.d.appointments[a.ID] = *a
	return nil
}

func (s *Store) GetAppointment(_ context.Context, owner id.UserID, apptID id.AppointmentID) (*records.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.d.appointments[apptID]
	if !ok || a.TherapistID != owner {
		return nil, sentinel.ErrNotFound
	}
	return &a, nil
}

func (s *Store) UpdateAppointment(_ context.Context, a *records.Appointment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.d.appointments[a.ID]
	if !ok || existing.TherapistID != a.TherapistID {
		return sentinel.ErrNotFound
	}
	s.d.appointments[a.ID] = *a
	return nil
}

func (s *Store) ListAppointments(_ context.Context, owner id.UserID, f records.AppointmentFilter) ([]records.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []records.Appointment
	for _, a := range s.d.appointments {
		if a.TherapistID != owner {
			continue
		}
		if f.ClientID != nil && a.ClientID != *f.ClientID {
			continue
		}
		if f.From != nil && a.StartsAt.Before(*f.From) {
			continue
		}
		if f.To != nil && !a.StartsAt.Before(*f.To) {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartsAt.Before(out[j].StartsAt) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// -----------------------------------------------------------------------------
// Invoices
// -----------------------------------------------------------------------------

func (s *Store) CreateInvoice(_ context.Context, inv *records.Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.d.invoices[inv.ID]; exists {
		return sentinel.ErrConflict
	}
	s.d.invoices[inv.ID] = *inv
	return nil
}

func (s *Store) GetInvoice(_ context.Context, owner id.UserID, invoiceID id.InvoiceID) (*records.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inv, ok := s.d.invoices[invoiceID]
	if !ok || inv.TherapistID != owner {
		return nil, sentinel.ErrNotFound
	}
	return &inv, nil
}

func (s *Store) MarkInvoicePaid(_ context.Context, owner id.UserID, invoiceID id.InvoiceID, paidAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.d.invoices[invoiceID]
	if !ok || inv.TherapistID != owner {
		return sentinel.ErrNotFound
	}
	inv.Status = records.InvoicePaid
	inv.PaidAt = &paidAt
	s.d.invoices[invoiceID] = inv
	return nil
}

// -----------------------------------------------------------------------------
// Reminders
// -----------------------------------------------------------------------------

func (s *Store) CreateReminder(_ context.Context, r *records.Reminder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.d.reminders[r.ID]; exists {
		return sentinel.ErrConflict
	}
	s.d.reminders[r.ID] = *r
	return nil
}

func (s *Store) GetReminder(_ context.Context, owner id.UserID, reminderID id.ReminderID) (*records.Reminder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.d.reminders[reminderID]
	if !ok || r.TherapistID != owner {
		return nil, sentinel.ErrNotFound
	}
	return &r, nil
}

func (s *Store) CompleteReminder(_ context.Context, owner id.UserID, reminderID id.ReminderID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.d.reminders[reminderID]
	if !ok || r.TherapistID != owner {
		return sentinel.ErrNotFound
	}
	r.Completed = true
	r.CompletedAt = &at
	s.d.reminders[reminderID] = r
	return nil
}

// -----------------------------------------------------------------------------
// Notes
// -----------------------------------------------------------------------------

func (s *Store) CreateNote(_ context.Context, n *records.Note) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.d.notes = append(s.d.notes, *n)
	return nil
}

// ListNotes returns the newest notes first.
func (s *Store) ListNotes(_ context.Context, owner id.UserID, clientID id.ClientID, limit int) ([]records.Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []records.Note
	for i := len(s.d.notes) - 1; i >= 0; i-- {
		n := s.d.notes[i]
		if n.TherapistID == owner && n.ClientID == clientID {
			out = append(out, n)
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

// Counts reports stored record counts; tests use it to assert that nothing was written.
func (s *Store) Counts() (clients, appointments, invoices, reminders, notes int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.d.clients), len(s.d.appointments), len(s.d.invoices), len(s.d.reminders), len(s.d.notes)
}
