package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"carepilot/internal/access"
	"carepilot/internal/actions"
	"carepilot/internal/dispatch/mocks"
	"carepilot/internal/notify"
	"carepilot/internal/platform/postgres"
	"carepilot/internal/records"
	"carepilot/internal/records/store/memory"
	"carepilot/internal/resolver"
	id "carepilot/pkg/domain"
	audit "carepilot/pkg/platform/audit"
	"carepilot/pkg/platform/audit/publishers/compliance"
	"carepilot/pkg/platform/audit/publishers/ops"
	auditmemory "carepilot/pkg/platform/audit/store/memory"
	txcontext "carepilot/pkg/platform/tx"
	"carepilot/pkg/requestcontext"
)

type sentNotifications chan notify.Notification

func (s sentNotifications) Send(_ context.Context, n notify.Notification) error {
	s <- n
	return nil
}

type DispatcherSuite struct {
	suite.Suite
	ctx        context.Context
	now        time.Time
	store      *memory.Store
	audit      *auditmemory.InMemoryStore
	notices    sentNotifications
	dispatcher *Dispatcher

	actor id.UserID
	other id.UserID
	jane  id.ClientID
	john  id.ClientID
	rival id.ClientID
}

func TestDispatcherSuite(t *testing.T) {
	suite.Run(t, new(DispatcherSuite))
}

func (s *DispatcherSuite) SetupTest() {
	s.now = time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
	s.ctx = requestcontext.WithRequestID(s.ctx, "req-42")
	s.store = memory.New()
	s.audit = auditmemory.NewInMemoryStore()
	s.notices = make(sentNotifications, 4)

	guard := access.New(s.store, compliance.New(s.audit))
	d, err := New(
		s.store,
		s.store,
		resolver.New(s.store),
		guard,
		compliance.New(s.audit),
		ops.New(s.audit),
		WithNotifier(s.notices),
	)
	s.Require().NoError(err)
	s.dispatcher = d

	s.actor = id.UserID(uuid.New())
	s.other = id.UserID(uuid.New())
	s.jane = s.addClient(s.actor, "Jane", "Doe")
	s.john = s.addClient(s.actor, "John", "Smith")
	s.rival = s.addClient(s.other, "Jane", "Roe")
}

func (s *DispatcherSuite) addClient(owner id.UserID, first, last string) id.ClientID {
	c := &records.Client{
		ID:          id.ClientID(uuid.New()),
		TherapistID: owner,
		FirstName:   first,
		LastName:    last,
		Status:      records.ClientActive,
	}
	s.Require().NoError(s.store.CreateClient(s.ctx, c))
	return c.ID
}

func (s *DispatcherSuite) execute(name string, params map[string]any) (*Result, error) {
	return s.dispatcher.Execute(s.ctx, actions.Request{
		Name:     name,
		Params:   params,
		ActorID:  s.actor,
		Timezone: "America/New_York",
	})
}

func (s *DispatcherSuite) requireKind(err error, kind Kind) *Error {
	var de *Error
	s.Require().ErrorAs(err, &de)
	s.Require().Equal(kind, de.Kind, de.Error())
	s.NotEmpty(de.Message)
	return de
}

func (s *DispatcherSuite) TestCreateAppointmentByClientName() {
	res, err := s.execute("create_appointment", map[string]any{
		"client_name":      "Jane Doe",
		"appointment_date": "2025-03-15T14:00",
	})
	s.Require().NoError(err)
	s.Equal(actions.NameCreateAppointment, res.Action)
	s.Contains(res.Message, "Jane Doe")
	s.Contains(res.Message, "2:00 PM")

	appts, err := s.store.ListAppointments(s.ctx, s.actor, records.AppointmentFilter{})
	s.Require().NoError(err)
	s.Require().Len(appts, 1)
	s.Equal(s.jane, appts[0].ClientID)
	s.Equal(s.actor, appts[0].TherapistID)
	s.Equal(records.AppointmentScheduled, appts[0].Status)
	s.Equal(60, appts[0].DurationMinutes)
	s.Equal(time.Date(2025, 3, 15, 18, 0, 0, 0, time.UTC), appts[0].StartsAt.UTC())
	s.Equal(appts[0].ID.String(), res.EntityID)

	recs := s.audit.Records()
	s.Require().Len(recs, 1)
	s.Equal(audit.ActionCreate, recs[0].Action)
	s.Equal(audit.EntityAppointment, recs[0].EntityType)
	s.Equal(res.EntityID, recs[0].EntityID)
	s.True(recs[0].Success)
	s.Equal("req-42", recs[0].RequestID)
	s.Empty(s.audit.PHIAccesses(), "appointments are not protected data")

	select {
	case n := <-s.notices:
		s.Equal(s.actor, n.UserID)
		s.Equal("Appointment scheduled", n.Title)
	case <-time.After(time.Second):
		s.Fail("expected a notification")
	}
}

func (s *DispatcherSuite) TestClientIDAsNameIsResolved() {
	_, err := s.execute("create_invoice", map[string]any{
		"client_id": "john smith",
		"amount":    120,
	})
	s.Require().NoError(err)
	_, appts, invoices, _, _ := s.store.Counts()
	s.Zero(appts)
	s.Equal(1, invoices)
}

func (s *DispatcherSuite) TestUnownedClientIsRejectedWithoutMutation() {
	_, err := s.execute("create_appointment", map[string]any{
		"client_id":        s.rival.String(),
		"appointment_date": "2025-03-15T14:00",
	})
	s.requireKind(err, KindUnauthorized)

	_, appts, _, _, _ := s.store.Counts()
	s.Zero(appts)

	recs := s.audit.Records()
	s.Require().Len(recs, 1, "only the denial is recorded")
	s.Equal(audit.ActionUnauthorizedAccess, recs[0].Action)
	s.Equal(s.rival.String(), recs[0].EntityID)
	s.False(recs[0].Success)
}

func (s *DispatcherSuite) TestResolverNeverSeesOtherTherapistsClients() {
	_, err := s.execute("create_note", map[string]any{
		"client_name": "Roe",
		"content":     "Session went well.",
	})
	de := s.requireKind(err, KindNotFound)
	s.Contains(de.Message, "Jane Doe")
	s.NotContains(de.Message, "Jane Roe")
}

func (s *DispatcherSuite) TestAmbiguousNameIsNotGuessed() {
	s.addClient(s.actor, "Jane", "Austen")

	_, err := s.execute("create_invoice", map[string]any{
		"client_name": "Jane",
		"amount":      80,
	})
	de := s.requireKind(err, KindAmbiguous)
	s.Contains(de.Message, "Jane Doe")
	s.Contains(de.Message, "Jane Austen")

	_, _, invoices, _, _ := s.store.Counts()
	s.Zero(invoices)
}

func (s *DispatcherSuite) TestValidationFailureReportsFirstField() {
	_, err := s.execute("create_invoice", map[string]any{
		"client_id": s.jane.String(),
		"amount":    -5,
	})
	de := s.requireKind(err, KindValidation)
	s.Contains(de.Message, "amount")
	s.Equal(StageValidating, de.Stage)
	s.Empty(s.audit.Records(), "no mutation was attempted on a non-protected entity")
}

func (s *DispatcherSuite) TestProtectedValidationFailureIsAudited() {
	_, err := s.execute("create_note", map[string]any{
		"client_id": s.jane.String(),
	})
	s.requireKind(err, KindValidation)

	recs := s.audit.Records()
	s.Require().Len(recs, 1)
	s.False(recs[0].Success)
	s.Equal(audit.EntityNote, recs[0].EntityType)
	s.Equal(string(KindValidation), recs[0].ErrorKind)
}

func (s *DispatcherSuite) TestUnknownAction() {
	_, err := s.execute("drop_database", map[string]any{})
	s.requireKind(err, KindUnknownAction)
	s.Empty(s.audit.Records())
}

func (s *DispatcherSuite) TestMissingRecordIsNotFound() {
	_, err := s.execute("reschedule_appointment", map[string]any{
		"appointment_id":   uuid.NewString(),
		"appointment_date": "2025-03-20T10:00",
	})
	de := s.requireKind(err, KindNotFound)
	s.Equal(StageMutating, de.Stage)

	recs := s.audit.Records()
	s.Require().Len(recs, 1)
	s.Equal(audit.ActionUpdate, recs[0].Action)
	s.False(recs[0].Success)
	s.Equal(string(KindNotFound), recs[0].ErrorKind)
	s.NotEmpty(recs[0].Message)
}

func (s *DispatcherSuite) TestAppointmentLifecycle() {
	res, err := s.execute("create_appointment", map[string]any{
		"client_id":        s.jane.String(),
		"appointment_date": "2025-03-15T14:00",
		"duration_minutes": 50,
	})
	s.Require().NoError(err)
	apptID := res.EntityID

	_, err = s.execute("reschedule_appointment", map[string]any{
		"appointment_id":   apptID,
		"appointment_date": "2025-03-16T09:30",
	})
	s.Require().NoError(err)

	_, err = s.execute("cancel_appointment", map[string]any{"appointment_id": apptID, "reason": "client ill"})
	s.Require().NoError(err)

	_, err = s.execute("cancel_appointment", map[string]any{"appointment_id": apptID})
	de := s.requireKind(err, KindValidation)
	s.Contains(de.Message, "already cancelled")

	parsed, err := id.ParseAppointmentID(apptID)
	s.Require().NoError(err)
	appt, err := s.store.GetAppointment(s.ctx, s.actor, parsed)
	s.Require().NoError(err)
	s.Equal(records.AppointmentCancelled, appt.Status)
	s.Equal("client ill", appt.CancelReason)
	s.Equal(50, appt.DurationMinutes)

	recs := s.audit.Records()
	s.Require().Len(recs, 4)
	s.Equal("scheduled", recs[1].OldValue["status"])
	s.Equal("cancelled", recs[2].NewValue["status"])
}

func (s *DispatcherSuite) TestInvoiceAndReminderFlows() {
	res, err := s.execute("create_invoice", map[string]any{
		"client_id":   s.jane.String(),
		"amount":      150.5,
		"description": "March sessions",
		"due_date":    "2025-04-01",
	})
	s.Require().NoError(err)
	s.Contains(res.Message, "$150.50")

	_, err = s.execute("mark_invoice_paid", map[string]any{"invoice_id": res.EntityID})
	s.Require().NoError(err)
	_, err = s.execute("mark_invoice_paid", map[string]any{"invoice_id": res.EntityID})
	s.requireKind(err, KindValidation)

	rem, err := s.execute("create_reminder", map[string]any{
		"title":  "Send intake forms",
		"due_at": "2025-03-17T08:00",
	})
	s.Require().NoError(err)
	_, err = s.execute("complete_reminder", map[string]any{"reminder_id": rem.EntityID})
	s.Require().NoError(err)
}

func (s *DispatcherSuite) TestListAppointmentsIsAuditedAsRead() {
	_, err := s.execute("create_appointment", map[string]any{
		"client_id":        s.john.String(),
		"appointment_date": "2025-03-18T11:00",
	})
	s.Require().NoError(err)
	s.audit.Clear()

	res, err := s.execute("list_appointments", map[string]any{"client_name": "John Smith"})
	s.Require().NoError(err)
	views, ok := res.Data.([]map[string]any)
	s.Require().True(ok)
	s.Len(views, 1)

	recs := s.audit.Records()
	s.Require().Len(recs, 1)
	s.Equal(audit.ActionRead, recs[0].Action)
	s.Equal(s.john.String(), recs[0].EntityID)
}

func (s *DispatcherSuite) TestNotesAreProtected() {
	_, err := s.execute("create_note", map[string]any{
		"client_name": "Jane Doe",
		"content":     "Discussed sleep hygiene.",
		"note_type":   "progress",
	})
	s.Require().NoError(err)

	res, err := s.execute("get_client_notes", map[string]any{"client_id": s.jane.String()})
	s.Require().NoError(err)
	views := res.Data.([]map[string]any)
	s.Require().Len(views, 1)
	s.Equal("Discussed sleep hygiene.", views[0]["content"])

	logged := s.audit.PHIAccesses()
	s.Require().Len(logged, 2)
	s.Equal(audit.AccessWrite, logged[0].AccessType)
	s.Equal([]string{"client_id", "content", "note_type"}, logged[0].AccessedFields)
	s.Equal(audit.AccessRead, logged[1].AccessType)
	s.Equal(s.jane, logged[1].ClientID)

	recs := s.audit.Records()
	s.Require().Len(recs, 2)
	s.Equal(audit.CategoryCompliance, recs[0].Category)
	s.NotContains(recs[0].NewValue, "content", "clinical text never reaches the audit trail")
}

func (s *DispatcherSuite) TestExcessFieldsAreRejected() {
	_, err := s.execute("get_client_notes", map[string]any{
		"client_id": s.jane.String(),
		"email":     "jane@example.com",
	})
	s.requireKind(err, KindUnauthorized)
	s.Empty(s.audit.PHIAccesses())
}

func (s *DispatcherSuite) TestProtectedAuditFailureRollsBackTheWrite() {
	s.audit.FailAppends(errors.New("audit store down"))

	_, err := s.execute("create_note", map[string]any{
		"client_id": s.jane.String(),
		"content":   "Should not persist.",
	})
	de := s.requireKind(err, KindPersistence)
	s.Equal(StageAuditing, de.Stage)

	_, _, _, _, notes := s.store.Counts()
	s.Zero(notes)
	s.Len(s.audit.PHIAccesses(), 1, "access was logged before the attempt")
}

func (s *DispatcherSuite) TestAccessLogFailureBlocksTheWrite() {
	s.audit.FailAccessLogs(errors.New("audit store down"))

	_, err := s.execute("update_client", map[string]any{
		"client_id": s.jane.String(),
		"phone":     "+1 555 010 2000",
	})
	s.requireKind(err, KindPersistence)

	c, err := s.store.GetClient(s.ctx, s.actor, s.jane)
	s.Require().NoError(err)
	s.Empty(c.Phone)
}

func (s *DispatcherSuite) TestOpsAuditFailureDoesNotBlock() {
	s.audit.FailAppends(errors.New("audit store down"))

	_, err := s.execute("create_reminder", map[string]any{
		"title":  "Renew license",
		"due_at": "2025-06-01T09:00",
	})
	s.Require().NoError(err)
	_, _, _, reminders, _ := s.store.Counts()
	s.Equal(1, reminders)
}

func (s *DispatcherSuite) TestCreateClientRejectsUndeclaredFields() {
	_, err := s.execute("create_client", map[string]any{
		"first_name": "Ada",
		"last_name":  "Lovelace",
		"diagnosis":  "F41.1",
	})
	de := s.requireKind(err, KindUnauthorized)
	s.Equal(StageAuthorizing, de.Stage)

	clients, _, _, _, _ := s.store.Counts()
	s.Equal(3, clients)
	s.Empty(s.audit.PHIAccesses())
}

func (s *DispatcherSuite) TestUndeclaredFieldsRejectedWithoutClient() {
	for _, tc := range []struct {
		name   string
		params map[string]any
	}{
		{"create_reminder", map[string]any{"title": "Renew license", "due_at": "2025-06-01T09:00", "diagnosis": "x"}},
		{"complete_reminder", map[string]any{"reminder_id": uuid.NewString(), "notes": "x"}},
		{"mark_invoice_paid", map[string]any{"invoice_id": uuid.NewString(), "amount": 10}},
	} {
		s.Run(tc.name, func() {
			_, err := s.execute(tc.name, tc.params)
			s.requireKind(err, KindUnauthorized)
		})
	}
	_, _, _, reminders, _ := s.store.Counts()
	s.Zero(reminders)
}

// Creates carry no idempotency key: repeating a request creates a second row.
func (s *DispatcherSuite) TestCreateIsNotIdempotent() {
	params := map[string]any{"first_name": "Ada", "last_name": "Lovelace"}
	first, err := s.execute("create_client", params)
	s.Require().NoError(err)
	second, err := s.execute("create_client", params)
	s.Require().NoError(err)

	s.NotEqual(first.EntityID, second.EntityID)
	clients, _, _, _, _ := s.store.Counts()
	s.Equal(5, clients)

	logged := s.audit.PHIAccesses()
	s.Require().Len(logged, 2)
	s.Equal(first.EntityID, logged[0].ClientID.String())
}

func (s *DispatcherSuite) TestExpiredContextIsTimeout() {
	ctx, cancel := context.WithDeadline(s.ctx, s.now.Add(-time.Minute))
	defer cancel()

	_, err := s.dispatcher.Execute(ctx, actions.Request{
		Name:    "create_appointment",
		ActorID: s.actor,
		Params: map[string]any{
			"client_id":        s.jane.String(),
			"appointment_date": "2025-03-15T14:00",
		},
	})
	s.requireKind(err, KindTimeout)
}

func (s *DispatcherSuite) TestMissingActor() {
	_, err := s.dispatcher.Execute(s.ctx, actions.Request{Name: "create_client"})
	s.requireKind(err, KindUnauthorized)
}

func TestNewRequiresDependencies(t *testing.T) {
	store := memory.New()
	_, err := New(nil, store, nil, nil, nil, nil)
	assert.Error(t, err)
	_, err = New(store, store, resolver.New(store), nil, nil, nil)
	assert.Error(t, err)
}

func TestAccessLookupFailureIsPersistenceError(t *testing.T) {
	ctrl := gomock.NewController(t)
	guard := mocks.NewMockAccessControl(ctrl)
	compliancePub := mocks.NewMockComplianceAuditor(ctrl)
	opsPub := mocks.NewMockOpsAuditor(ctrl)
	res := mocks.NewMockResolver(ctrl)

	store := memory.New()
	actor := id.UserID(uuid.New())
	clientID := id.ClientID(uuid.New())

	guard.EXPECT().
		ValidateMinimumNecessary(gomock.Any(), "create_invoice", []string{"amount", "client_id"}).
		Return(access.MinimumNecessaryResult{Valid: true})
	guard.EXPECT().
		VerifyAccess(gomock.Any(), actor, clientID).
		Return(false, errors.New("pq: connection refused"))

	d, err := New(store, store, res, guard, compliancePub, opsPub)
	require.NoError(t, err)

	_, err = d.Execute(context.Background(), actions.Request{
		Name:    "create_invoice",
		ActorID: actor,
		Params:  map[string]any{"client_id": clientID.String(), "amount": 50},
	})

	var de *Error
	require.ErrorAs(t, err, &de)
	assert.Equal(t, KindPersistence, de.Kind)
	assert.Equal(t, StageAuthorizing, de.Stage)
	assert.NotContains(t, de.Message, "pq:")
}

func TestResolverFailureIsAuditedForProtectedActions(t *testing.T) {
	ctrl := gomock.NewController(t)
	guard := mocks.NewMockAccessControl(ctrl)
	compliancePub := mocks.NewMockComplianceAuditor(ctrl)
	opsPub := mocks.NewMockOpsAuditor(ctrl)
	res := mocks.NewMockResolver(ctrl)

	store := memory.New()
	actor := id.UserID(uuid.New())

	res.EXPECT().Resolve(gomock.Any(), actor, "Jane").
		Return(id.ClientID{}, &resolver.AmbiguousError{Query: "Jane", Matches: []string{"Jane Doe", "Jane Roe"}})
	compliancePub.EXPECT().Emit(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, r audit.Record) error {
			assert.False(t, r.Success)
			assert.Equal(t, audit.EntityNote, r.EntityType)
			assert.Equal(t, string(KindAmbiguous), r.ErrorKind)
			return nil
		})

	d, err := New(store, store, res, guard, compliancePub, opsPub)
	require.NoError(t, err)

	_, err = d.Execute(context.Background(), actions.Request{
		Name:    "create_note",
		ActorID: actor,
		Params:  map[string]any{"client_name": "Jane", "content": "x"},
	})
	var de *Error
	require.ErrorAs(t, err, &de)
	assert.Equal(t, KindAmbiguous, de.Kind)
}

func TestNotificationFailureDoesNotFailTheAction(t *testing.T) {
	ctrl := gomock.NewController(t)
	notifier := mocks.NewMockNotifier(ctrl)
	done := make(chan struct{})
	notifier.EXPECT().Send(gomock.Any(), gomock.Any()).
		DoAndReturn(func(context.Context, notify.Notification) error {
			close(done)
			return errors.New("smtp down")
		})

	store := memory.New()
	auditStore := auditmemory.NewInMemoryStore()
	d, err := New(store, store, resolver.New(store),
		access.New(store, compliance.New(auditStore)),
		compliance.New(auditStore), ops.New(auditStore),
		WithNotifier(notifier))
	require.NoError(t, err)

	_, err = d.Execute(context.Background(), actions.Request{
		Name:    "create_reminder",
		ActorID: id.UserID(uuid.New()),
		Params:  map[string]any{"title": "Call insurer", "due_at": "2025-03-20T10:00"},
	})
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("notification was not attempted")
	}
}

func TestOpsAuditIsWrittenAfterCommit(t *testing.T) {
	ctrl := gomock.NewController(t)
	opsPub := mocks.NewMockOpsAuditor(ctrl)

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectBegin()
	mock.ExpectCommit()

	store := memory.New()
	auditStore := auditmemory.NewInMemoryStore()
	d, err := New(store, postgres.NewTxRunner(db), resolver.New(store),
		access.New(store, compliance.New(auditStore)),
		compliance.New(auditStore), opsPub)
	require.NoError(t, err)

	opsPub.EXPECT().Track(gomock.Any(), gomock.Any()).
		Do(func(ctx context.Context, r audit.Record) {
			_, inTx := txcontext.From(ctx)
			assert.False(t, inTx, "ops record must not join the transaction")
			assert.NoError(t, mock.ExpectationsWereMet(), "transaction committed first")
			assert.True(t, r.Success)
			assert.Equal(t, audit.EntityReminder, r.EntityType)
		})

	res, err := d.Execute(context.Background(), actions.Request{
		Name:    "create_reminder",
		ActorID: id.UserID(uuid.New()),
		Params:  map[string]any{"title": "Call insurer", "due_at": "2025-03-20T10:00"},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, res.EntityID)
}
