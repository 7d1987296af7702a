package actionclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"carepilot/pkg/platform/retry"
)

const (
	defaultTimeout    = 15 * time.Second
	defaultMaxRetries = 3
	defaultRetryBase  = time.Second
	maxResponseBytes  = 1 << 20
)

// Result mirrors a successful dispatcher result.
type Result struct {
	Action   string          `json:"action"`
	EntityID string          `json:"entity_id,omitempty"`
	Message  string          `json:"message"`
	Data     json.RawMessage `json:"data,omitempty"`
}

type Client struct {
	baseURL    string
	token      string
	http       *http.Client
	timeout    time.Duration
	maxRetries int
	retryBase  time.Duration
	logger     *slog.Logger
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTimeout bounds each attempt, not the whole retry loop.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func WithRetry(maxRetries int, base time.Duration) Option {
	return func(c *Client) {
		c.maxRetries = maxRetries
		c.retryBase = base
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// New builds a client for the actions endpoint under baseURL.
func New(baseURL, token string, opts ...Option) (*Client, error) {
	if isBlank(baseURL) {
		return nil, errors.New("base url is required")
	}
	if isBlank(token) {
		return nil, errors.New("bearer token is required")
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		http:       &http.Client{},
		timeout:    defaultTimeout,
		maxRetries: defaultMaxRetries,
		retryBase:  defaultRetryBase,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Execute posts p and retries transient failures with linear backoff. Any
// failure is returned as *Error.
func (c *Client) Execute(ctx context.Context, p Payload) (*Result, error) {
	body, err := json.Marshal(p)
	if err != nil {
		return nil, newError(fmt.Errorf("encode action: %w", err))
	}

	var result *Result
	err = retry.Do(ctx, retry.Policy{
		MaxRetries: c.maxRetries,
		Base:       c.retryBase,
		OnRetry: func(err error, wait time.Duration) {
			c.logger.WarnContext(ctx, "action request failed, retrying",
				"action", p.Action,
				"error", err,
				"wait_ms", wait.Milliseconds(),
			)
		},
	}, func(ctx context.Context) error {
		r, err := c.attempt(ctx, body)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		return nil, newError(err)
	}
	return result, nil
}

func (c *Client) attempt(ctx context.Context, body []byte) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/actions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Error string `json:"error"`
			Code  string `json:"code"`
		}
		_ = json.Unmarshal(raw, &e)
		if e.Error == "" {
			e.Error = strings.TrimSpace(string(raw))
		}
		return nil, &StatusError{Status: resp.StatusCode, Code: e.Code, Message: e.Error}
	}

	var ok struct {
		Success bool    `json:"success"`
		Result  *Result `json:"result"`
		Error   string  `json:"error"`
	}
	if err := json.Unmarshal(raw, &ok); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if !ok.Success || ok.Result == nil {
		msg := ok.Error
		if msg == "" {
			msg = "action was not completed"
		}
		return nil, &StatusError{Status: resp.StatusCode, Message: msg}
	}
	return ok.Result, nil
}
