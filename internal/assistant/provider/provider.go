// Package provider streams chat completions from an OpenAI-compatible API.
//
// A Stream yields every server-sent event as a Chunk holding the verbatim JSON
// payload next to the decoded content and tool-call fragments, so a caller can
// both inspect a reply and forward it unchanged.
package provider

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/ssestream"
	"github.com/openai/openai-go/shared"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"carepilot/internal/actions"
	"carepilot/pkg/platform/retry"
)

var tracer = otel.Tracer("carepilot/internal/assistant/provider")

const (
	defaultMaxRetries = 2
	defaultRetryBase  = 500 * time.Millisecond
)

var errStreamUnavailable = errors.New("stream not available")

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is one turn of conversation history.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// ToolCall is a complete function call requested by the model.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

type Request struct {
	Messages []Message
	Tools    []actions.Tool
}

// Chunk is one streamed event. Raw is the event's JSON payload exactly as
// received.
type Chunk struct {
	Raw          string
	Content      string
	ToolCalls    []ToolCallDelta
	FinishReason string
}

// ToolCallDelta is a fragment of a tool call. Fragments sharing an Index
// belong to the same call; ID and Name arrive on the first one.
type ToolCallDelta struct {
	Index     int
	ID        string
	Name      string
	Arguments string
}

type chatCompletions interface {
	NewStreaming(ctx context.Context, params openai.ChatCompletionNewParams, opts ...option.RequestOption) *ssestream.Stream[openai.ChatCompletionChunk]
}

type Config struct {
	BaseURL string
	APIKey  string
	Model   string
}

type Client struct {
	completions chatCompletions
	model       string
	maxRetries  int
	retryBase   time.Duration
	httpClient  *http.Client
	metrics     *Metrics
	logger      *slog.Logger
}

type Option func(*Client)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

func WithMetrics(m *Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithRetry overrides how often, and how far apart, a request that failed
// before its first chunk is attempted again.
func WithRetry(maxRetries int, base time.Duration) Option {
	return func(c *Client) {
		c.maxRetries = maxRetries
		c.retryBase = base
	}
}

func New(cfg Config, opts ...Option) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("provider api key is required")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, errors.New("provider model is required")
	}

	c := &Client{
		model:      cfg.Model,
		maxRetries: defaultMaxRetries,
		retryBase:  defaultRetryBase,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}

	// Retries are ours; the SDK must not add its own on top.
	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.BaseURL))
	}
	if c.httpClient != nil {
		reqOpts = append(reqOpts, option.WithHTTPClient(c.httpClient))
	}
	client := openai.NewClient(reqOpts...)
	c.completions = &client.Chat.Completions
	return c, nil
}

// Stream starts a streamed completion. Connection failures before the first
// chunk are retried; once a chunk has arrived the stream is never restarted.
// Errors are *Error, or the context's error.
func (c *Client) Stream(ctx context.Context, req Request) (*Stream, error) {
	ctx, span := tracer.Start(ctx, "provider.stream")
	defer span.End()
	start := time.Now()
	params := c.params(req)

	var stream *Stream
	attempts := 0
	err := retry.Do(ctx, retry.Policy{
		MaxRetries: c.maxRetries,
		Base:       c.retryBase,
		Transient:  retryable,
		OnRetry: func(err error, wait time.Duration) {
			if c.metrics != nil {
				c.metrics.Retries.Inc()
			}
			c.logger.WarnContext(ctx, "provider connection failed, retrying",
				"attempt", attempts,
				"wait", wait,
				"error", err,
			)
		},
	}, func(ctx context.Context) error {
		attempts++
		s, err := c.open(ctx, params)
		if err != nil {
			return err
		}
		stream = s
		return nil
	})
	span.SetAttributes(attribute.Int("provider.attempts", attempts))

	if err != nil {
		err = classify(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "stream failed")
		c.observe(errorOutcome(err), start)
		return nil, err
	}
	c.observe("ok", start)
	return stream, nil
}

// open issues one request and waits for its first event.
func (c *Client) open(ctx context.Context, params openai.ChatCompletionNewParams) (*Stream, error) {
	raw := c.completions.NewStreaming(ctx, params)
	if raw == nil {
		return nil, errStreamUnavailable
	}
	if !raw.Next() {
		err := raw.Err()
		_ = raw.Close()
		if err != nil {
			return nil, err
		}
		return &Stream{done: true}, nil
	}
	return &Stream{raw: raw, pending: true}, nil
}

func (c *Client) observe(outcome string, start time.Time) {
	if c.metrics != nil {
		c.metrics.observe(outcome, time.Since(start).Seconds())
	}
}

func errorOutcome(err error) string {
	var pe *Error
	if errors.As(err, &pe) {
		return string(pe.Kind)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	return "cancelled"
}

func (c *Client) params(req Request) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(c.model),
		Messages: toMessageParams(req.Messages),
	}
	if len(req.Tools) > 0 {
		params.Tools = toToolParams(req.Tools)
	}
	return params
}

func toMessageParams(msgs []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case RoleAssistant:
			out = append(out, assistantMessage(m))
		case RoleTool:
			out = append(out, openai.ToolMessage(m.Content, m.ToolCallID))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

func assistantMessage(m Message) openai.ChatCompletionMessageParamUnion {
	param := openai.ChatCompletionAssistantMessageParam{}
	if m.Content != "" {
		param.Content = openai.ChatCompletionAssistantMessageParamContentUnion{
			OfString: openai.String(m.Content),
		}
	}
	for _, call := range m.ToolCalls {
		param.ToolCalls = append(param.ToolCalls, openai.ChatCompletionMessageToolCallParam{
			ID: call.ID,
			Function: openai.ChatCompletionMessageToolCallFunctionParam{
				Name:      call.Name,
				Arguments: call.Arguments,
			},
		})
	}
	return openai.ChatCompletionMessageParamUnion{OfAssistant: &param}
}

func toToolParams(tools []actions.Tool) []openai.ChatCompletionToolParam {
	out := make([]openai.ChatCompletionToolParam, 0, len(tools))
	for _, t := range tools {
		tool := openai.ChatCompletionToolParam{
			Function: shared.FunctionDefinitionParam{
				Name:       t.Name,
				Parameters: shared.FunctionParameters(t.Parameters),
			},
		}
		if t.Description != "" {
			tool.Function.Description = openai.String(t.Description)
		}
		out = append(out, tool)
	}
	return out
}

// Stream iterates over the chunks of one completion. It is not safe for
// concurrent use.
type Stream struct {
	raw     *ssestream.Stream[openai.ChatCompletionChunk]
	pending bool
	done    bool
	cur     Chunk
	err     error
}

// Next advances to the next chunk. It returns false at the end of the stream
// or on error; check Err afterwards.
func (s *Stream) Next() bool {
	if s.done {
		return false
	}
	if s.pending {
		s.pending = false
		s.cur = toChunk(s.raw.Current())
		return true
	}
	if !s.raw.Next() {
		s.done = true
		s.err = classify(s.raw.Err())
		return false
	}
	s.cur = toChunk(s.raw.Current())
	return true
}

func (s *Stream) Current() Chunk { return s.cur }

func (s *Stream) Err() error { return s.err }

func (s *Stream) Close() error {
	s.done = true
	if s.raw == nil {
		return nil
	}
	return s.raw.Close()
}

func toChunk(c openai.ChatCompletionChunk) Chunk {
	out := Chunk{Raw: c.RawJSON()}
	var content strings.Builder
	for _, choice := range c.Choices {
		if choice.FinishReason != "" {
			out.FinishReason = string(choice.FinishReason)
		}
		content.WriteString(choice.Delta.Content)
		for _, tc := range choice.Delta.ToolCalls {
			out.ToolCalls = append(out.ToolCalls, ToolCallDelta{
				Index:     int(tc.Index),
				ID:        tc.ID,
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			})
		}
	}
	out.Content = content.String()
	return out
}
