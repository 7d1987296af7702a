package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/openai/openai-go"

	dErrors "carepilot/pkg/domain-errors"
	"carepilot/pkg/platform/retry"
)

// ErrorKind classifies a failed provider call.
type ErrorKind string

const (
	KindRateLimited ErrorKind = "rate_limited"
	KindQuota       ErrorKind = "quota_exceeded"
	KindProvider    ErrorKind = "provider_error"
)

const insufficientQuota = "insufficient_quota"

// Error is a classified provider failure. StatusCode is zero when the failure
// happened below HTTP.
type Error struct {
	Kind       ErrorKind
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("provider %s (status %d): %v", e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("provider %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Code maps the kind onto the shared domain error codes.
func (e *Error) Code() dErrors.Code {
	switch e.Kind {
	case KindRateLimited:
		return dErrors.CodeRateLimited
	case KindQuota:
		return dErrors.CodeQuotaExceeded
	default:
		return dErrors.CodeProvider
	}
}

// classify wraps err as *Error. Context errors pass through untouched so
// callers can tell a deadline from a provider fault.
func classify(err error) error {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var pe *Error
	if errors.As(err, &pe) {
		return err
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusPaymentRequired,
			apiErr.Code == insufficientQuota,
			apiErr.Type == insufficientQuota,
			strings.Contains(apiErr.RawJSON(), insufficientQuota):
			return &Error{Kind: KindQuota, StatusCode: apiErr.StatusCode, Err: err}
		case apiErr.StatusCode == http.StatusTooManyRequests:
			return &Error{Kind: KindRateLimited, StatusCode: apiErr.StatusCode, Err: err}
		default:
			return &Error{Kind: KindProvider, StatusCode: apiErr.StatusCode, Err: err}
		}
	}

	// Errors reported inside the event stream only carry text.
	if strings.Contains(err.Error(), insufficientQuota) {
		return &Error{Kind: KindQuota, Err: err}
	}
	return &Error{Kind: KindProvider, Err: err}
}

// retryable reports whether a failure before the first chunk is worth another
// attempt. Only connection-level failures are; an HTTP answer from the
// provider is final.
func retryable(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return false
	}
	return errors.Is(err, errStreamUnavailable) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		retry.IsTransient(err)
}
