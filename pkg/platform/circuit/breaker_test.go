package circuit

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// play feeds outcomes ('F' failure, 'S' success) and returns the state after
// each step as a string of 'c'/'o'.
func play(b *Breaker, outcomes string) string {
	var sb strings.Builder
	for _, o := range outcomes {
		if o == 'F' {
			b.RecordFailure()
		} else {
			b.RecordSuccess()
		}
		if b.IsOpen() {
			sb.WriteByte('o')
		} else {
			sb.WriteByte('c')
		}
	}
	return sb.String()
}

func TestBreakerTransitions(t *testing.T) {
	tests := []struct {
		name     string
		failures int
		success  int
		outcomes string
		want     string
	}{
		{"defaults open on the fifth failure", 0, 0, "FFFFF", "cccco"},
		{"success resets the failure streak", 3, 1, "FFSFFF", "ccccco"},
		{"closes after the success streak", 1, 2, "FSS", "ooc"},
		{"failure while open restarts the success streak", 1, 3, "FSSFSSS", "ooooooc"},
		{"stays open on repeated failures", 2, 1, "FFFF", "cooo"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var opts []Option
			if tt.failures > 0 {
				opts = append(opts, WithFailureThreshold(tt.failures))
			}
			if tt.success > 0 {
				opts = append(opts, WithSuccessThreshold(tt.success))
			}
			assert.Equal(t, tt.want, play(New("counter", opts...), tt.outcomes))
		})
	}
}

func TestBreakerReportsChanges(t *testing.T) {
	b := New("redis-counter", WithFailureThreshold(2), WithSuccessThreshold(1))
	require.Equal(t, "redis-counter", b.Name())
	require.Equal(t, "closed", b.State().String())

	fallback, change := b.RecordFailure()
	assert.False(t, fallback)
	assert.Equal(t, Change{}, change)

	fallback, change = b.RecordFailure()
	assert.True(t, fallback)
	assert.True(t, change.Opened)
	assert.Equal(t, "open", b.State().String())

	fallback, change = b.RecordFailure()
	assert.True(t, fallback)
	assert.False(t, change.Opened, "already open")

	primary, change := b.RecordSuccess()
	assert.True(t, primary)
	assert.True(t, change.Closed)

	b.RecordFailure()
	b.RecordFailure()
	b.Reset()
	assert.Equal(t, StateClosed, b.State())
}

func TestBreakerAllowAfterCooldown(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	b := New("ops-audit",
		WithFailureThreshold(3),
		WithSuccessThreshold(1),
		WithCooldown(time.Minute),
		WithClock(func() time.Time { return now }),
	)
	assert.True(t, b.Allow())

	play(b, "FFF")
	require.True(t, b.IsOpen())
	assert.False(t, b.Allow())

	now = now.Add(61 * time.Second)
	assert.True(t, b.Allow(), "cooldown elapsed lets a trial through")

	b.RecordFailure()
	assert.False(t, b.Allow(), "a failed trial restarts the cooldown")

	now = now.Add(61 * time.Second)
	require.True(t, b.Allow())
	b.RecordSuccess()
	assert.False(t, b.IsOpen())
	assert.True(t, b.Allow())
}
