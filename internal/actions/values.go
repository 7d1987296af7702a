package actions

import (
	"encoding/json"
	"fmt"
	"math"
	"net/mail"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	id "carepilot/pkg/domain"
)

var phonePattern = regexp.MustCompile(`^\+?[0-9 ()\-.]{7,20}$`)

var dateTimeLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

const dateLayout = "2006-01-02"

func isBlank(raw any) bool {
	if raw == nil {
		return true
	}
	s, ok := raw.(string)
	return ok && strings.TrimSpace(s) == ""
}

// parse converts a raw JSON value into the field's Go type. A non-empty
// message means the value was rejected.
func (f field) parse(raw any, loc *time.Location) (any, string) {
	switch f.kind {
	case kindText:
		s, ok := raw.(string)
		if !ok {
			return nil, "must be a string"
		}
		s = strings.TrimSpace(s)
		n := utf8.RuneCountInString(s)
		if f.min > 0 && (n < f.min || n > f.max) {
			return nil, fmt.Sprintf("must be between %d and %d characters", f.min, f.max)
		}
		if f.max > 0 && n > f.max {
			return nil, fmt.Sprintf("must be at most %d characters", f.max)
		}
		return s, ""

	case kindUUID:
		s, ok := raw.(string)
		if !ok || !id.LooksLikeUUID(strings.TrimSpace(s)) {
			return nil, "must be a valid UUID"
		}
		u, err := uuid.Parse(strings.TrimSpace(s))
		if err != nil || u == uuid.Nil {
			return nil, "must be a valid UUID"
		}
		return u, ""

	case kindInt:
		n, ok := toFloat(raw)
		if !ok || n != math.Trunc(n) {
			return nil, "must be a whole number"
		}
		if int(n) < f.min || int(n) > f.max {
			return nil, fmt.Sprintf("must be between %d and %d", f.min, f.max)
		}
		return int(n), ""

	case kindMoney:
		n, ok := toFloat(raw)
		if !ok || math.IsNaN(n) || math.IsInf(n, 0) {
			return nil, "must be a number"
		}
		if n <= 0 {
			return nil, "must be greater than 0"
		}
		if n > float64(f.max) {
			return nil, fmt.Sprintf("must not exceed %d", f.max)
		}
		cents := int64(math.Round(n * 100))
		if cents < 1 {
			return nil, "must be at least 0.01"
		}
		return cents, ""

	case kindDateTime:
		s, ok := raw.(string)
		if !ok {
			return nil, "must be a date and time like 2025-03-14T14:00"
		}
		t, ok := parseDateTime(strings.TrimSpace(s), loc)
		if !ok {
			return nil, "must be a date and time like 2025-03-14T14:00"
		}
		return t, ""

	case kindDate:
		s, ok := raw.(string)
		if !ok {
			return nil, "must be a date like 2025-03-14"
		}
		s = strings.TrimSpace(s)
		if t, err := time.ParseInLocation(dateLayout, s, loc); err == nil {
			return t, ""
		}
		if t, ok := parseDateTime(s, loc); ok {
			y, m, d := t.In(loc).Date()
			return time.Date(y, m, d, 0, 0, 0, 0, loc), ""
		}
		return nil, "must be a date like 2025-03-14"

	case kindEnum:
		s, ok := raw.(string)
		if ok {
			s = strings.ToLower(strings.TrimSpace(s))
			for _, allowed := range f.enum {
				if s == allowed {
					return s, ""
				}
			}
		}
		return nil, "must be one of: " + strings.Join(f.enum, ", ")

	case kindEmail:
		s, ok := raw.(string)
		if !ok {
			return nil, "must be a valid email address"
		}
		s = strings.TrimSpace(s)
		addr, err := mail.ParseAddress(s)
		if err != nil || addr.Address != s || len(s) > 254 {
			return nil, "must be a valid email address"
		}
		return s, ""

	case kindPhone:
		s, ok := raw.(string)
		if !ok {
			return nil, "must be a valid phone number"
		}
		s = strings.TrimSpace(s)
		if !phonePattern.MatchString(s) || countDigits(s) < 7 {
			return nil, "must be a valid phone number"
		}
		return s, ""
	}
	return nil, "unsupported field"
}

func parseDateTime(s string, loc *time.Location) (time.Time, bool) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	for _, layout := range dateTimeLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func toFloat(raw any) (float64, bool) {
	switch n := raw.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}

func countDigits(s string) int {
	n := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			n++
		}
	}
	return n
}

// values holds parsed parameters keyed by field name.
type values map[string]any

func (v values) has(name string) bool {
	_, ok := v[name]
	return ok
}

func (v values) str(name string) string {
	s, _ := v[name].(string)
	return s
}

func (v values) strPtr(name string) *string {
	s, ok := v[name].(string)
	if !ok {
		return nil
	}
	return &s
}

func (v values) intOr(name string, def int) int {
	if n, ok := v[name].(int); ok {
		return n
	}
	return def
}

func (v values) intPtr(name string) *int {
	n, ok := v[name].(int)
	if !ok {
		return nil
	}
	return &n
}

func (v values) cents(name string) int64 {
	n, _ := v[name].(int64)
	return n
}

func (v values) time(name string) time.Time {
	t, _ := v[name].(time.Time)
	return t
}

func (v values) timePtr(name string) *time.Time {
	t, ok := v[name].(time.Time)
	if !ok {
		return nil
	}
	return &t
}

func (v values) uuid(name string) uuid.UUID {
	u, _ := v[name].(uuid.UUID)
	return u
}

func (v values) clientID(name string) id.ClientID { return id.ClientID(v.uuid(name)) }

func (v values) clientIDPtr(name string) *id.ClientID {
	if !v.has(name) {
		return nil
	}
	c := v.clientID(name)
	return &c
}

func (v values) appointmentID(name string) id.AppointmentID { return id.AppointmentID(v.uuid(name)) }
func (v values) invoiceID(name string) id.InvoiceID         { return id.InvoiceID(v.uuid(name)) }
func (v values) reminderID(name string) id.ReminderID       { return id.ReminderID(v.uuid(name)) }
