// Package retry runs an operation again after transient failures, waiting
// attempt × base between tries.
package retry

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Linear is a backoff.BackOff whose n-th wait is n × Base.
type Linear struct {
	Base    time.Duration
	attempt int
}

func (l *Linear) NextBackOff() time.Duration {
	l.attempt++
	return time.Duration(l.attempt) * l.Base
}

func (l *Linear) Reset() { l.attempt = 0 }

// Policy bounds a retry loop. Transient decides which errors are retried;
// nil means IsTransient.
type Policy struct {
	MaxRetries int
	Base       time.Duration
	Transient  func(error) bool
	OnRetry    func(err error, wait time.Duration)
}

// Do calls fn until it succeeds, fails with a non-transient error, ctx ends,
// or MaxRetries retries have been spent. The last error is returned unchanged.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	transient := p.Transient
	if transient == nil {
		transient = IsTransient
	}
	maxRetries := p.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}

	b := backoff.WithContext(
		backoff.WithMaxRetries(&Linear{Base: p.Base}, uint64(maxRetries)),
		ctx,
	)
	op := func() error {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil || !transient(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	var notify backoff.Notify
	if p.OnRetry != nil {
		notify = p.OnRetry
	}
	return backoff.RetryNotify(op, b, notify)
}

var transientPatterns = []string{
	"rate limit",
	"too many requests",
	"timeout",
	"timed out",
	"network",
	"connection reset",
	"connection refused",
	"temporarily unavailable",
	"service unavailable",
	"econnreset",
	"unexpected eof",
}

// IsTransient reports whether err looks like a failure worth retrying. It
// checks net.Error timeouts first and then matches on the message text, since
// errors crossing an HTTP boundary arrive as strings.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, p := range transientPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
