package ops

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "carepilot/pkg/domain"
	audit "carepilot/pkg/platform/audit"
	"carepilot/pkg/platform/circuit"
	"carepilot/pkg/platform/audit/store/memory"
)

func record() audit.Record {
	return audit.Record{
		ActorID:    id.UserID(uuid.New()),
		Action:     audit.ActionCreate,
		EntityType: audit.EntityInvoice,
		Success:    true,
	}
}

func TestTrackPersists(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := New(store)

	pub.Track(context.Background(), record())

	recs := store.Records()
	require.Len(t, recs, 1)
	assert.Equal(t, audit.CategoryOperations, recs[0].Category)
	assert.NotEqual(t, uuid.Nil, recs[0].ID)
}

func TestTrackSwallowsFailuresAndOpensBreaker(t *testing.T) {
	store := memory.NewInMemoryStore()
	store.FailAppends(errors.New("connection refused"))
	breaker := circuit.New("ops-audit", circuit.WithFailureThreshold(2), circuit.WithSuccessThreshold(1))
	pub := New(store, WithCircuitBreaker(breaker))

	pub.Track(context.Background(), record())
	assert.False(t, breaker.IsOpen())
	pub.Track(context.Background(), record())
	assert.True(t, breaker.IsOpen())

	// While open, writes are not attempted even after the store recovers.
	store.FailAppends(nil)
	pub.Track(context.Background(), record())
	assert.Empty(t, store.Records())
}
