package memory

import (
	"context"
	"sync"

	id "carepilot/pkg/domain"
	audit "carepilot/pkg/platform/audit"
)

// InMemoryStore keeps audit data for tests and single-process deployments
// without DATABASE_URL.
type InMemoryStore struct {
	mu       sync.RWMutex
	records  []audit.Record
	access   []audit.PHIAccess
	security []audit.SecurityEvent

	appendErr error
	accessErr error
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = nil
	s.access = nil
	s.security = nil
}

// FailAppends makes Append return err until called again with nil.
func (s *InMemoryStore) FailAppends(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendErr = err
}

// FailAccessLogs makes AppendPHIAccess return err until called again with nil.
func (s *InMemoryStore) FailAccessLogs(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accessErr = err
}

func (s *InMemoryStore) Append(_ context.Context, record audit.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.appendErr != nil {
		return s.appendErr
	}
	s.records = append(s.records, record)
	return nil
}

func (s *InMemoryStore) AppendPHIAccess(_ context.Context, access audit.PHIAccess) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.accessErr != nil {
		return s.accessErr
	}
	access.AccessedFields = append([]string(nil), access.AccessedFields...)
	s.access = append(s.access, access)
	return nil
}

func (s *InMemoryStore) AppendSecurity(_ context.Context, event audit.SecurityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.security = append(s.security, event)
	return nil
}

func (s *InMemoryStore) ListByActor(_ context.Context, actorID id.UserID) ([]audit.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []audit.Record
	for _, r := range s.records {
		if r.ActorID == actorID {
			out = append(out, r)
		}
	}
	return out, nil
}

// Records returns every audit record in append order.
func (s *InMemoryStore) Records() []audit.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]audit.Record(nil), s.records...)
}

func (s *InMemoryStore) PHIAccesses() []audit.PHIAccess {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]audit.PHIAccess(nil), s.access...)
}

func (s *InMemoryStore) SecurityEvents() []audit.SecurityEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]audit.SecurityEvent(nil), s.security...)
}
