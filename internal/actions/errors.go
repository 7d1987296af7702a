package actions

import (
	"fmt"
	"strings"

	dErrors "carepilot/pkg/domain-errors"
)

// FieldError is one violated field with a human-readable message.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (f FieldError) String() string {
	return f.Field + ": " + f.Message
}

// ValidationError lists every violated field in schema order.
type ValidationError struct {
	Action Name
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.String()
	}
	return fmt.Sprintf("invalid parameters for %s: %s", e.Action, strings.Join(parts, "; "))
}

// First returns the first violation, for user-facing display.
func (e *ValidationError) First() FieldError {
	if len(e.Fields) == 0 {
		return FieldError{Field: "params", Message: "invalid parameters"}
	}
	return e.Fields[0]
}

// Unwrap exposes a coded error so transports can map it without a type switch.
func (e *ValidationError) Unwrap() error {
	return dErrors.New(dErrors.CodeValidation, e.First().String())
}

// UnknownActionError is returned for names outside the catalogue. It is a
// distinct kind from ValidationError.
type UnknownActionError struct {
	Name string
}

func (e *UnknownActionError) Error() string {
	return fmt.Sprintf("unknown action %q", e.Name)
}

func (e *UnknownActionError) Unwrap() error {
	return dErrors.New(dErrors.CodeUnknownAction, e.Error())
}
