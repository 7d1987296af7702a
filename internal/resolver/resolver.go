// Package resolver maps a free-text client name to exactly one client owned by
// the requester. It never guesses: zero or several matches are typed errors.
package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"carepilot/internal/records"
	id "carepilot/pkg/domain"
	dErrors "carepilot/pkg/domain-errors"
	textutil "carepilot/pkg/platform/strings"
)

// maxSuggestions caps the names offered back when nothing matched.
const maxSuggestions = 10

// ClientLister is the owner-filtered lookup port.
type ClientLister interface {
	ListClients(ctx context.Context, owner id.UserID) ([]records.Client, error)
}

// NotFoundError means no owned client matched. Suggestions lists up to ten
// valid names so the assistant can ask the user to pick one.
type NotFoundError struct {
	Query       string
	Suggestions []string
}

func (e *NotFoundError) Error() string {
	if len(e.Suggestions) == 0 {
		return fmt.Sprintf("no client matches %q", e.Query)
	}
	return fmt.Sprintf("no client matches %q; known clients: %s", e.Query, strings.Join(e.Suggestions, ", "))
}

func (e *NotFoundError) Unwrap() error {
	return dErrors.New(dErrors.CodeNotFound, e.Error())
}

// AmbiguousError means more than one owned client matched.
type AmbiguousError struct {
	Query   string
	Matches []string
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("%q matches several clients: %s", e.Query, strings.Join(e.Matches, ", "))
}

func (e *AmbiguousError) Unwrap() error {
	return dErrors.New(dErrors.CodeAmbiguous, e.Error())
}

type Resolver struct {
	clients ClientLister
	logger  *slog.Logger
}

type Option func(*Resolver)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		r.logger = logger
	}
}

func New(clients ClientLister, opts ...Option) *Resolver {
	r := &Resolver{clients: clients, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the id of the single owned client matching name.
//
// Passes run in order and the first non-empty one wins:
//  1. exact "first last" or "last, first"
//  2. exact first name
//  3. the full name contains the query, or the query contains a first name
func (r *Resolver) Resolve(ctx context.Context, owner id.UserID, name string) (id.ClientID, error) {
	query := textutil.NormalizeName(name)
	if query == "" {
		return id.ClientID{}, dErrors.New(dErrors.CodeValidation, "client name is required")
	}

	clients, err := r.clients.ListClients(ctx, owner)
	if err != nil {
		return id.ClientID{}, fmt.Errorf("listing clients for resolution: %w", err)
	}

	for _, pass := range passes {
		matches := filter(clients, query, pass)
		switch len(matches) {
		case 0:
			continue
		case 1:
			return matches[0].ID, nil
		default:
			names := make([]string, len(matches))
			for i, c := range matches {
				names[i] = c.FullName()
			}
			r.logger.InfoContext(ctx, "client name ambiguous", "matches", len(matches))
			return id.ClientID{}, &AmbiguousError{Query: name, Matches: names}
		}
	}

	suggestions := make([]string, 0, min(len(clients), maxSuggestions))
	for _, c := range clients {
		if len(suggestions) == maxSuggestions {
			break
		}
		suggestions = append(suggestions, c.FullName())
	}
	return id.ClientID{}, &NotFoundError{Query: name, Suggestions: suggestions}
}

type matcher func(c records.Client, query string) bool

var passes = []matcher{
	exactFullName,
	exactFirstName,
	partialName,
}

func exactFullName(c records.Client, query string) bool {
	first := textutil.NormalizeName(c.FirstName)
	last := textutil.NormalizeName(c.LastName)
	return query == first+" "+last || query == last+", "+first
}

func exactFirstName(c records.Client, query string) bool {
	return query == textutil.NormalizeName(c.FirstName)
}

func partialName(c records.Client, query string) bool {
	full := textutil.NormalizeName(c.FullName())
	first := textutil.NormalizeName(c.FirstName)
	return strings.Contains(full, query) || (first != "" && strings.Contains(query, first))
}

func filter(clients []records.Client, query string, match matcher) []records.Client {
	var out []records.Client
	for _, c := range clients {
		if match(c, query) {
			out = append(out, c)
		}
	}
	return out
}
