package access

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"carepilot/internal/records"
	"carepilot/internal/records/store/memory"
	id "carepilot/pkg/domain"
	audit "carepilot/pkg/platform/audit"
	"carepilot/pkg/platform/audit/publishers/compliance"
	auditmemory "carepilot/pkg/platform/audit/store/memory"
	"carepilot/pkg/requestcontext"
)

type recordingSecurity struct {
	events []audit.SecurityEvent
}

func (r *recordingSecurity) Emit(_ context.Context, event audit.SecurityEvent) {
	r.events = append(r.events, event)
}

type AccessSuite struct {
	suite.Suite
	ctx      context.Context
	records  *memory.Store
	audit    *auditmemory.InMemoryStore
	security *recordingSecurity
	service  *Service

	owner  id.UserID
	other  id.UserID
	client id.ClientID
}

func TestAccessSuite(t *testing.T) {
	suite.Run(t, new(AccessSuite))
}

func (s *AccessSuite) SetupTest() {
	s.ctx = requestcontext.WithRequestID(context.Background(), "req-123")
	s.records = memory.New()
	s.audit = auditmemory.NewInMemoryStore()
	s.security = &recordingSecurity{}
	s.service = New(s.records, compliance.New(s.audit), WithSecuritySink(s.security))

	s.owner = id.UserID(uuid.New())
	s.other = id.UserID(uuid.New())
	s.client = id.ClientID(uuid.New())
	s.Require().NoError(s.records.CreateClient(s.ctx, &records.Client{
		ID:          s.client,
		TherapistID: s.owner,
		FirstName:   "Jane",
		LastName:    "Doe",
		Status:      records.ClientActive,
	}))
}

func (s *AccessSuite) TestOwnerIsAllowedWithoutAuditNoise() {
	ok, err := s.service.VerifyAccess(s.ctx, s.owner, s.client)
	s.Require().NoError(err)
	s.True(ok)
	s.Empty(s.audit.Records())
}

func (s *AccessSuite) TestLinkedPortalUserIsAllowed() {
	s.records.LinkPortalUser(s.other, s.client)

	ok, err := s.service.VerifyAccess(s.ctx, s.other, s.client)
	s.Require().NoError(err)
	s.True(ok)
}

func (s *AccessSuite) TestDenialIsAudited() {
	cases := map[string]id.ClientID{
		"someone else's client": s.client,
		"client does not exist": id.ClientID(uuid.New()),
	}
	for name, clientID := range cases {
		s.Run(name, func() {
			s.audit.Clear()
			s.security.events = nil

			ok, err := s.service.VerifyAccess(s.ctx, s.other, clientID)
			s.Require().NoError(err)
			s.False(ok)

			recs := s.audit.Records()
			s.Require().Len(recs, 1)
			s.Equal(audit.ActionUnauthorizedAccess, recs[0].Action)
			s.Equal(audit.EntityClient, recs[0].EntityType)
			s.Equal(clientID.String(), recs[0].EntityID)
			s.Equal(s.other, recs[0].ActorID)
			s.False(recs[0].Success)
			s.Equal("req-123", recs[0].RequestID)

			s.Require().Len(s.security.events, 1)
			s.Equal(audit.ActionUnauthorizedAccess, s.security.events[0].Action)
		})
	}
}

func (s *AccessSuite) TestDenialStandsWhenAuditWriteFails() {
	s.audit.FailAppends(errors.New("disk full"))

	ok, err := s.service.VerifyAccess(s.ctx, s.other, s.client)
	s.NoError(err)
	s.False(ok)
}

func (s *AccessSuite) TestLogAccessIsFailClosed() {
	access := audit.PHIAccess{
		ActorID:        s.owner,
		AccessType:     audit.AccessWrite,
		EntityType:     audit.EntityNote,
		ClientID:       s.client,
		Justification:  "create_note",
		AccessedFields: []string{"content", "client_id", "Content"},
	}

	s.Require().NoError(s.service.LogAccess(s.ctx, access))
	logged := s.audit.PHIAccesses()
	s.Require().Len(logged, 1)
	s.Equal([]string{"content", "client_id"}, logged[0].AccessedFields)
	s.Equal("req-123", logged[0].RequestID)

	s.audit.FailAccessLogs(errors.New("connection refused"))
	err := s.service.LogAccess(s.ctx, access)
	s.Require().Error(err)
	s.Contains(err.Error(), "connection refused")
}

func (s *AccessSuite) TestLogAccessRequiresJustification() {
	err := s.service.LogAccess(s.ctx, audit.PHIAccess{ActorID: s.owner, ClientID: s.client})
	s.Error(err)
	s.Empty(s.audit.PHIAccesses())
}

func TestValidateMinimumNecessary(t *testing.T) {
	svc := New(nil, nil)
	ctx := context.Background()

	res := svc.ValidateMinimumNecessary(ctx, "get_client_notes", []string{"client_id", "limit"})
	assert.True(t, res.Valid)

	res = svc.ValidateMinimumNecessary(ctx, "get_client_notes", []string{"client_id", "content", "email"})
	assert.False(t, res.Valid)
	assert.Equal(t, []string{"content", "email"}, res.Excess)
	assert.Contains(t, res.Error, "get_client_notes")

	res = svc.ValidateMinimumNecessary(ctx, "export_everything", []string{"ssn"})
	assert.True(t, res.Valid, "undeclared actions fail open")
}

func TestPolicyOverrides(t *testing.T) {
	p, err := ParsePolicy([]byte("actions:\n  get_client_notes: [client_id]\n"))
	require.NoError(t, err)

	svc := New(nil, nil, WithPolicy(p))
	res := svc.ValidateMinimumNecessary(context.Background(), "get_client_notes", []string{"client_id", "limit"})
	assert.False(t, res.Valid)
	assert.Equal(t, []string{"limit"}, res.Excess)

	fields, ok := p.Allowed("create_note")
	assert.True(t, ok)
	assert.Contains(t, fields, "content")

	_, err = ParsePolicy([]byte("actions:\n  create_note: []\n"))
	assert.Error(t, err)
}

func TestLoadPolicy(t *testing.T) {
	p, err := LoadPolicy(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	_, ok := p.Allowed("create_note")
	assert.True(t, ok)

	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte("actions:\n  create_invoice: [client_id, amount]\n"), 0o600))
	p, err = LoadPolicy(path)
	require.NoError(t, err)
	fields, _ := p.Allowed("create_invoice")
	assert.Equal(t, []string{"client_id", "amount"}, fields)

	require.NoError(t, os.WriteFile(path, []byte("actions: [not, a, map"), 0o600))
	_, err = LoadPolicy(path)
	assert.Error(t, err)
}
