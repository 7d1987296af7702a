// Package assistant runs one conversational turn: it streams a reply from the
// provider, executes any requested actions through the dispatcher, and streams
// the follow-up reply that reports on them.
package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"carepilot/internal/actions"
	"carepilot/internal/assistant/provider"
	"carepilot/internal/dispatch"
	id "carepilot/pkg/domain"
	dErrors "carepilot/pkg/domain-errors"
	"carepilot/pkg/requestcontext"
)

var tracer = otel.Tracer("carepilot/internal/assistant")

const defaultTimeout = 60 * time.Second

// Provider streams completions.
type Provider interface {
	Stream(ctx context.Context, req provider.Request) (*provider.Stream, error)
}

// Executor runs one action.
type Executor interface {
	Execute(ctx context.Context, req actions.Request) (*dispatch.Result, error)
}

// Turn is one user request with the conversation so far.
type Turn struct {
	ActorID  id.UserID
	Timezone string
	Messages []provider.Message
}

// ToolResult is the content of the tool message returned to the provider
// for one call.
type ToolResult struct {
	Success bool             `json:"success"`
	Result  *dispatch.Result `json:"result,omitempty"`
	Error   string           `json:"error,omitempty"`
}

type Orchestrator struct {
	provider Provider
	executor Executor
	timeout  time.Duration
	tools    []actions.Tool
	metrics  *Metrics
	logger   *slog.Logger
}

type Option func(*Orchestrator)

func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

func WithMetrics(m *Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// WithTimeout bounds a whole turn: both provider requests and all tool
// execution.
func WithTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.timeout = d
		}
	}
}

func New(p Provider, executor Executor, opts ...Option) (*Orchestrator, error) {
	if p == nil {
		return nil, errors.New("provider is required")
	}
	if executor == nil {
		return nil, errors.New("executor is required")
	}
	o := &Orchestrator{
		provider: p,
		executor: executor,
		timeout:  defaultTimeout,
		tools:    actions.Tools(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Chat runs turn and writes the reply to out. A reply without tool calls is
// replayed chunk for chunk; otherwise the calls are executed in order and the
// follow-up reply is forwarded as it streams. Errors are coded domain errors.
func (o *Orchestrator) Chat(ctx context.Context, turn Turn, out EventWriter) error {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()
	ctx, span := tracer.Start(ctx, "assistant.turn")
	defer span.End()
	start := time.Now()

	err := o.chat(ctx, turn, out)

	outcome := "ok"
	if err != nil {
		outcome = string(dErrors.CodeOf(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		o.logger.WarnContext(ctx, "assistant turn failed",
			"actor_id", turn.ActorID.String(),
			"outcome", outcome,
			"error", err,
		)
	}
	if o.metrics != nil {
		o.metrics.Turns.WithLabelValues(outcome).Inc()
		o.metrics.TurnDuration.Observe(time.Since(start).Seconds())
	}
	return err
}

func (o *Orchestrator) chat(ctx context.Context, turn Turn, out EventWriter) error {
	history := o.history(ctx, turn)

	var first Accumulator
	if err := o.stream(ctx, history, func(c provider.Chunk) error {
		first.Add(c)
		return nil
	}); err != nil {
		return err
	}

	if !first.HasToolCalls() {
		for _, raw := range first.Raw() {
			if err := out.WriteEvent(raw); err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "writing reply")
			}
		}
		return out.WriteEvent(doneEvent)
	}

	calls := first.ToolCalls()
	followUp := append(history, provider.Message{
		Role:      provider.RoleAssistant,
		Content:   first.Content(),
		ToolCalls: calls,
	})
	for _, call := range calls {
		result := o.execute(ctx, turn, call)
		if err := ctx.Err(); err != nil {
			return timeoutError(err)
		}
		content, err := json.Marshal(result)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "encoding tool result")
		}
		followUp = append(followUp, provider.Message{
			Role:       provider.RoleTool,
			ToolCallID: call.ID,
			Content:    string(content),
		})
	}

	if err := o.stream(ctx, followUp, func(c provider.Chunk) error {
		return out.WriteEvent(c.Raw)
	}); err != nil {
		return err
	}
	return out.WriteEvent(doneEvent)
}

// stream runs one provider request and hands every chunk to fn.
func (o *Orchestrator) stream(ctx context.Context, messages []provider.Message, fn func(provider.Chunk) error) error {
	s, err := o.provider.Stream(ctx, provider.Request{Messages: messages, Tools: o.tools})
	if err != nil {
		return providerError(ctx, err)
	}
	defer s.Close()

	for s.Next() {
		if err := fn(s.Current()); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "writing reply")
		}
	}
	if err := s.Err(); err != nil {
		return providerError(ctx, err)
	}
	if err := ctx.Err(); err != nil {
		return timeoutError(err)
	}
	return nil
}

// execute runs one tool call. A call whose arguments do not parse becomes an
// error result for that call alone.
func (o *Orchestrator) execute(ctx context.Context, turn Turn, call provider.ToolCall) ToolResult {
	ctx, span := tracer.Start(ctx, "assistant.tool")
	defer span.End()
	span.SetAttributes(attribute.String("action", call.Name))

	params := map[string]any{}
	if args := strings.TrimSpace(call.Arguments); args != "" {
		if err := json.Unmarshal([]byte(args), &params); err != nil {
			o.logger.WarnContext(ctx, "tool call arguments did not parse",
				"action", call.Name,
				"tool_call_id", call.ID,
				"error", err,
			)
			o.countTool(call.Name, "invalid_arguments")
			return ToolResult{Error: "The arguments for this action were not valid JSON."}
		}
	}

	res, err := o.executor.Execute(ctx, actions.Request{
		Name:     call.Name,
		Params:   params,
		ActorID:  turn.ActorID,
		Timezone: turn.Timezone,
	})
	if err != nil {
		span.RecordError(err)
		var de *dispatch.Error
		if errors.As(err, &de) {
			o.countTool(call.Name, string(de.Kind))
			return ToolResult{Error: de.Message}
		}
		o.countTool(call.Name, "error")
		return ToolResult{Error: "Something went wrong. Please try again."}
	}
	o.countTool(call.Name, "ok")
	return ToolResult{Success: true, Result: res}
}

func (o *Orchestrator) countTool(action, outcome string) {
	if o.metrics == nil {
		return
	}
	if _, ok := actions.Describe(actions.Name(action)); !ok {
		action = "unknown"
	}
	o.metrics.ToolCalls.WithLabelValues(action, outcome).Inc()
}

// history prepends the system instruction. Only user and assistant turns are
// taken from the caller.
func (o *Orchestrator) history(ctx context.Context, turn Turn) []provider.Message {
	loc := requestcontext.Location(ctx)
	if turn.Timezone != "" {
		if l, err := time.LoadLocation(turn.Timezone); err == nil {
			loc = l
		}
	}
	msgs := make([]provider.Message, 0, len(turn.Messages)+1)
	msgs = append(msgs, provider.Message{
		Role:    provider.RoleSystem,
		Content: systemPrompt(requestcontext.Now(ctx).In(loc), loc),
	})
	for _, m := range turn.Messages {
		if m.Role != provider.RoleUser && m.Role != provider.RoleAssistant {
			continue
		}
		msgs = append(msgs, provider.Message{Role: m.Role, Content: m.Content})
	}
	return msgs
}

func systemPrompt(now time.Time, loc *time.Location) string {
	return fmt.Sprintf(`You are the practice assistant for a therapist. You help manage clients, appointments, invoices, reminders and session notes by calling the available actions.

Today is %s and the therapist's timezone is %s. Resolve relative dates such as "tomorrow" or "next Tuesday" against that date and pass times in that timezone, for example 2025-03-14T14:00.

Refer to clients by their name exactly as the therapist said it; the system finds the matching record. If an action reports several matching clients, or none, ask which client was meant instead of guessing.
Only call an action when the therapist asked for it. After actions run, say briefly what was done or why it failed.`,
		now.Format("Monday, January 2, 2006"), loc.String())
}

const (
	timeoutMessage     = "The assistant took too long to respond. Please try again."
	rateLimitedMessage = "The assistant is busy right now. Please try again in a moment."
	quotaMessage       = "The assistant is unavailable because its usage quota is exhausted."
	providerMessage    = "The assistant is unavailable right now. Please try again."
)

func timeoutError(err error) error {
	return dErrors.Wrap(err, dErrors.CodeTimeout, timeoutMessage)
}

func providerError(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
		return timeoutError(err)
	}
	var pe *provider.Error
	if errors.As(err, &pe) {
		switch pe.Kind {
		case provider.KindRateLimited:
			return dErrors.Wrap(err, pe.Code(), rateLimitedMessage)
		case provider.KindQuota:
			return dErrors.Wrap(err, pe.Code(), quotaMessage)
		}
		return dErrors.Wrap(err, pe.Code(), providerMessage)
	}
	return dErrors.Wrap(err, dErrors.CodeProvider, providerMessage)
}
