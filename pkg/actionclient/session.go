package actionclient

import (
	"context"
	"errors"
	"sync"
)

// Executor is satisfied by *Client.
type Executor interface {
	Execute(ctx context.Context, p Payload) (*Result, error)
}

// Outcome is what the UI should show for one assistant reply.
type Outcome struct {
	// Text is the reply without the embedded action, or a status line when
	// the reply held nothing else.
	Text     string
	Executed bool
	Result   *Result
	Err      *Error
}

// Session handles the replies of one conversation. It fills in the
// conversation's timezone and keeps the results of executed actions.
type Session struct {
	executor Executor
	timezone string

	mu      sync.Mutex
	history []Result
}

func NewSession(executor Executor, timezone string) *Session {
	return &Session{executor: executor, timezone: timezone}
}

// HandleReply extracts and executes the action embedded in reply, if any.
func (s *Session) HandleReply(ctx context.Context, reply string) Outcome {
	ex, ok := Extract(reply)
	if !ok {
		return Outcome{Text: reply}
	}
	if ex.Payload.Timezone == "" {
		ex.Payload.Timezone = s.timezone
	}

	res, err := s.executor.Execute(ctx, ex.Payload)
	if err != nil {
		var e *Error
		if !errors.As(err, &e) {
			e = newError(err)
		}
		return Outcome{Text: orElse(ex.Text, e.Message), Err: e}
	}

	s.mu.Lock()
	s.history = append(s.history, *res)
	s.mu.Unlock()
	return Outcome{Text: orElse(ex.Text, res.Message), Executed: true, Result: res}
}

// Executed returns the results of actions run so far, oldest first.
func (s *Session) Executed() []Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Result, len(s.history))
	copy(out, s.history)
	return out
}

func orElse(text, fallback string) string {
	if isBlank(text) {
		return fallback
	}
	return text
}
