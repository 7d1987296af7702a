package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLinearBackoff(t *testing.T) {
	l := &Linear{Base: 100 * time.Millisecond}
	assert.Equal(t, 100*time.Millisecond, l.NextBackOff())
	assert.Equal(t, 200*time.Millisecond, l.NextBackOff())
	assert.Equal(t, 300*time.Millisecond, l.NextBackOff())
	l.Reset()
	assert.Equal(t, 100*time.Millisecond, l.NextBackOff())
}

func TestDoRetriesTransientFailures(t *testing.T) {
	var waits []time.Duration
	calls := 0
	err := Do(context.Background(), Policy{
		MaxRetries: 3,
		Base:       time.Millisecond,
		OnRetry:    func(_ error, wait time.Duration) { waits = append(waits, wait) },
	}, func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("503 service temporarily unavailable")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{time.Millisecond, 2 * time.Millisecond}, waits)
}

func TestDoStopsAfterMaxRetries(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Policy{MaxRetries: 2, Base: time.Millisecond}, func(context.Context) error {
		calls++
		return errors.New("request timed out")
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls, "one attempt plus two retries")
	assert.Equal(t, "request timed out", err.Error())
}

func TestDoDoesNotRetryPermanentFailures(t *testing.T) {
	calls := 0
	sentinel := errors.New("client not found")
	err := Do(context.Background(), Policy{MaxRetries: 3, Base: time.Millisecond}, func(context.Context) error {
		calls++
		return fmt.Errorf("execute: %w", sentinel)
	})

	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, 1, calls)
}

func TestDoHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Do(ctx, Policy{MaxRetries: 5, Base: time.Hour}, func(context.Context) error {
		calls++
		cancel()
		return errors.New("network is unreachable")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{errors.New("Rate limit reached for gpt-4o-mini"), true},
		{errors.New("dial tcp: connection refused"), true},
		{errors.New("context deadline exceeded (Client.Timeout exceeded while awaiting headers)"), true},
		{errors.New("The service is temporarily unavailable"), true},
		{errors.New("invalid date format"), false},
		{errors.New("permission denied"), false},
		{context.Canceled, false},
		{nil, false},
	}
	for _, tt := range tests {
		name := "nil"
		if tt.err != nil {
			name = tt.err.Error()
		}
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}
