package dispatch

import (
	"fmt"

	dErrors "carepilot/pkg/domain-errors"
)

// Kind classifies a dispatch failure.
type Kind string

const (
	KindValidation    Kind = "validation_error"
	KindUnknownAction Kind = "unknown_action"
	KindNotFound      Kind = "not_found"
	KindAmbiguous     Kind = "ambiguous"
	KindUnauthorized  Kind = "unauthorized"
	KindTimeout       Kind = "timeout"
	KindPersistence   Kind = "persistence_error"
)

// Code maps the kind onto the shared domain error codes.
func (k Kind) Code() dErrors.Code {
	switch k {
	case KindValidation:
		return dErrors.CodeValidation
	case KindUnknownAction:
		return dErrors.CodeUnknownAction
	case KindNotFound:
		return dErrors.CodeNotFound
	case KindAmbiguous:
		return dErrors.CodeAmbiguous
	case KindUnauthorized:
		return dErrors.CodeForbidden
	case KindTimeout:
		return dErrors.CodeTimeout
	default:
		return dErrors.CodeInternal
	}
}

// Error is returned by Execute. Message is safe to show the user; Cause holds
// the raw failure for logs and the audit trail.
type Error struct {
	Kind    Kind
	Stage   Stage
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s at %s: %s: %v", e.Kind, e.Stage, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s at %s: %s", e.Kind, e.Stage, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// DomainError converts e for transports that speak domain error codes.
func (e *Error) DomainError() *dErrors.Error {
	return dErrors.Wrap(e.Cause, e.Kind.Code(), e.Message)
}

// Stage is a step of one execution. Stages only move forward; any failure
// jumps to StageFailed.
type Stage string

const (
	StagePending     Stage = "pending"
	StageResolving   Stage = "resolving"
	StageValidating  Stage = "validating"
	StageAuthorizing Stage = "authorizing"
	StageMutating    Stage = "mutating"
	StageAuditing    Stage = "auditing"
	StageCompleted   Stage = "completed"
	StageFailed      Stage = "failed"
)
