package actionclient

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"carepilot/pkg/platform/retry"
)

// Category groups failures by what the user can do about them.
type Category string

const (
	CategoryMissingClient Category = "missing_client"
	CategoryDateTime      Category = "date_time"
	CategoryPermission    Category = "permission_denied"
	CategoryUnavailable   Category = "unavailable"
	CategoryGeneric       Category = "generic"
)

var friendlyMessages = map[Category]string{
	CategoryMissingClient: "Could not find that client. Check the name and try again.",
	CategoryDateTime:      `That date or time didn't look right. Try something like "Tuesday at 2pm".`,
	CategoryPermission:    "You don't have permission to do that.",
	CategoryUnavailable:   "The service is busy right now. Please try again in a moment.",
	CategoryGeneric:       "Something went wrong. Please try again.",
}

// Error is a failed action. Message is safe to show; Err keeps the server's
// reply for logs.
type Error struct {
	Category Category
	Message  string
	Err      error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Category, e.Err)
	}
	return string(e.Category)
}

func (e *Error) Unwrap() error { return e.Err }

// StatusError is a non-2xx reply from the actions endpoint.
type StatusError struct {
	Status  int
	Code    string
	Message string
}

// Error includes the code and status text so message-based retry
// classification sees "timeout", "Too Many Requests" and "Service Unavailable".
func (e *StatusError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (%s, status %d %s)", e.Message, e.Code, e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("%s (status %d %s)", e.Message, e.Status, http.StatusText(e.Status))
}

var (
	dateTimeWords = regexp.MustCompile(`(?i)\b(date|time|datetime|start_time|due_at|due_date)\b|invalid (date|time)|parse.*time`)
	missingClient = regexp.MustCompile(`(?i)(no client|client .*not found|could(n't| not) find .*client|no .*client.* named)`)
	permission    = regexp.MustCompile(`(?i)(permission|not authori[sz]ed|unauthori[sz]ed|forbidden|access)`)
)

// Classify maps a failure to a friendly category.
func Classify(err error) Category {
	var se *StatusError
	if errors.As(err, &se) {
		switch {
		case se.Status == http.StatusUnauthorized || se.Status == http.StatusForbidden ||
			se.Code == "forbidden" || se.Code == "unauthorized":
			return CategoryPermission
		case se.Code == "not_found" && missingClient.MatchString(se.Message):
			return CategoryMissingClient
		}
	}
	if retry.IsTransient(err) {
		return CategoryUnavailable
	}

	msg := err.Error()
	switch {
	case missingClient.MatchString(msg):
		return CategoryMissingClient
	case permission.MatchString(msg):
		return CategoryPermission
	case dateTimeWords.MatchString(msg):
		return CategoryDateTime
	default:
		return CategoryGeneric
	}
}

func newError(err error) *Error {
	c := Classify(err)
	return &Error{Category: c, Message: friendlyMessages[c], Err: err}
}

// FriendlyMessage returns short guidance for any error returned by this
// package.
func FriendlyMessage(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return friendlyMessages[Classify(err)]
}

func isBlank(s string) bool { return strings.TrimSpace(s) == "" }
