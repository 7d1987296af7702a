package assistant

import (
	"io"
	"net/http"
	"strings"
)

// EventWriter receives the payloads of server-sent events.
type EventWriter interface {
	WriteEvent(data string) error
}

const doneEvent = "[DONE]"

// SSEWriter frames payloads as "data: ...\n\n" events and flushes each one.
// A payload spanning several lines becomes one data line per line.
// Headers are sent with the first event, so a turn that fails before
// producing output can still answer with a plain JSON error.
type SSEWriter struct {
	w       io.Writer
	header  func()
	flush   func()
	started bool
}

func NewSSEWriter(w http.ResponseWriter) *SSEWriter {
	s := &SSEWriter{
		w: w,
		header: func() {
			h := w.Header()
			h.Set("Content-Type", "text/event-stream")
			h.Set("Cache-Control", "no-cache")
			h.Set("Connection", "keep-alive")
			h.Set("X-Accel-Buffering", "no")
			w.WriteHeader(http.StatusOK)
		},
		flush: func() {},
	}
	if f, ok := w.(http.Flusher); ok {
		s.flush = f.Flush
	}
	return s
}

func (s *SSEWriter) WriteEvent(data string) error {
	if !s.started {
		s.started = true
		s.header()
	}
	var b strings.Builder
	for _, line := range strings.Split(data, "\n") {
		b.WriteString("data: ")
		b.WriteString(strings.TrimSuffix(line, "\r"))
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	if _, err := io.WriteString(s.w, b.String()); err != nil {
		return err
	}
	s.flush()
	return nil
}

// Started reports whether any event has been written.
func (s *SSEWriter) Started() bool { return s.started }
