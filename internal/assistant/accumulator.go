package assistant

import (
	"slices"
	"strings"

	"carepilot/internal/assistant/provider"
)

// Accumulator collects a streamed reply: every raw chunk in arrival order,
// the concatenated text, and tool calls assembled from their fragments.
type Accumulator struct {
	raw     []string
	content strings.Builder
	calls   map[int]*pendingCall
}

type pendingCall struct {
	id   string
	name string
	args strings.Builder
}

func (a *Accumulator) Add(c provider.Chunk) {
	a.raw = append(a.raw, c.Raw)
	a.content.WriteString(c.Content)
	for _, d := range c.ToolCalls {
		if a.calls == nil {
			a.calls = make(map[int]*pendingCall)
		}
		call, ok := a.calls[d.Index]
		if !ok {
			call = &pendingCall{}
			a.calls[d.Index] = call
		}
		if call.id == "" {
			call.id = d.ID
		}
		if call.name == "" {
			call.name = d.Name
		}
		call.args.WriteString(d.Arguments)
	}
}

// Raw returns the buffered chunks exactly as received.
func (a *Accumulator) Raw() []string { return a.raw }

func (a *Accumulator) Content() string { return a.content.String() }

func (a *Accumulator) HasToolCalls() bool { return len(a.calls) > 0 }

// ToolCalls returns the assembled calls ordered by stream index.
func (a *Accumulator) ToolCalls() []provider.ToolCall {
	indexes := make([]int, 0, len(a.calls))
	for i := range a.calls {
		indexes = append(indexes, i)
	}
	slices.Sort(indexes)

	out := make([]provider.ToolCall, 0, len(indexes))
	for _, i := range indexes {
		c := a.calls[i]
		out = append(out, provider.ToolCall{ID: c.id, Name: c.name, Arguments: c.args.String()})
	}
	return out
}
