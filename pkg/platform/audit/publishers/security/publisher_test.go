package security

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	audit "carepilot/pkg/platform/audit"
	"carepilot/pkg/platform/audit/store/memory"
)

func TestCloseDrainsBuffer(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := New(store, WithFlushInterval(time.Hour))

	for range 10 {
		pub.Emit(context.Background(), audit.SecurityEvent{
			Subject: "actor-1",
			Action:  audit.ActionRateLimitExceeded,
		})
	}
	require.NoError(t, pub.Close())

	events := store.SecurityEvents()
	require.Len(t, events, 10)
	assert.Equal(t, audit.SeverityWarning, events[0].Severity)
	assert.False(t, events[0].Timestamp.IsZero())
	assert.NoError(t, pub.Close(), "close is idempotent")
}

func TestFlushLoopWritesWithoutClose(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := New(store, WithFlushInterval(10*time.Millisecond))
	defer pub.Close()

	pub.Emit(context.Background(), audit.SecurityEvent{Action: audit.ActionUnauthorizedAccess})

	assert.Eventually(t, func() bool {
		return len(store.SecurityEvents()) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestRingBufferDropsOldest(t *testing.T) {
	buf := NewRingBuffer(3)
	for _, subject := range []string{"a", "b", "c", "d", "e"} {
		buf.Enqueue(audit.SecurityEvent{Subject: subject})
	}

	assert.Equal(t, 3, buf.Len())
	assert.EqualValues(t, 2, buf.Dropped())

	batch := buf.DequeueBatch(10)
	require.Len(t, batch, 3)
	assert.Equal(t, "c", batch[0].Subject)
	assert.Equal(t, "e", batch[2].Subject)
	assert.Zero(t, buf.Len())
}
