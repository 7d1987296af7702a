package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"carepilot/internal/ratelimit/metrics"
	"carepilot/internal/ratelimit/models"
	"carepilot/pkg/attrs"
	dErrors "carepilot/pkg/domain-errors"
	audit "carepilot/pkg/platform/audit"
	"carepilot/pkg/platform/circuit"
	"carepilot/pkg/platform/httputil"
	"carepilot/pkg/requestcontext"
)

const rejectedMessage = "You're sending requests too quickly. Please wait a moment and try again."

// Counter counts one request against key in a fixed window.
type Counter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (*models.Result, error)
}

// SecurityEmitter receives rejected requests for alerting.
type SecurityEmitter interface {
	Emit(ctx context.Context, event audit.SecurityEvent)
}

// Middleware limits requests per actor (or per client IP before
// authentication). When the shared counter errors, requests fail open until
// the breaker opens; from then on the in-process fallback enforces the limit
// and responses carry X-RateLimit-Status: degraded.
type Middleware struct {
	counter  Counter
	fallback Counter
	breaker  *circuit.Breaker
	limit    int
	window   time.Duration
	security SecurityEmitter
	logger   *slog.Logger
	metrics  *metrics.Metrics
	disabled bool
}

type Option func(*Middleware)

func WithLogger(logger *slog.Logger) Option {
	return func(m *Middleware) {
		m.logger = logger
	}
}

func WithMetrics(metrics *metrics.Metrics) Option {
	return func(m *Middleware) {
		m.metrics = metrics
	}
}

// WithFallback sets the counter used while the primary counter is failing.
func WithFallback(c Counter) Option {
	return func(m *Middleware) {
		m.fallback = c
	}
}

func WithSecurityEmitter(e SecurityEmitter) Option {
	return func(m *Middleware) {
		m.security = e
	}
}

func WithBreaker(b *circuit.Breaker) Option {
	return func(m *Middleware) {
		m.breaker = b
	}
}

// WithDisabled disables rate limiting entirely (for local demos).
func WithDisabled(disabled bool) Option {
	return func(m *Middleware) {
		m.disabled = disabled
	}
}

func New(counter Counter, limit int, window time.Duration, opts ...Option) (*Middleware, error) {
	if counter == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "rate limit counter is required")
	}
	if limit <= 0 || window <= 0 {
		return nil, dErrors.New(dErrors.CodeInternal, "rate limit and window must be positive")
	}
	m := &Middleware{
		counter: counter,
		limit:   limit,
		window:  window,
		breaker: circuit.New("ratelimit"),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.disabled {
		m.logger.Info("rate limiting disabled")
	}
	return m, nil
}

func (m *Middleware) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.disabled {
			next.ServeHTTP(w, r)
			return
		}

		ctx := r.Context()
		key := keyFor(ctx)

		result, degraded := m.check(ctx, key)
		if result == nil {
			m.observe("failed_open")
			next.ServeHTTP(w, r)
			return
		}

		addRateLimitHeaders(w, result)
		if degraded {
			w.Header().Set("X-RateLimit-Status", "degraded")
		}

		if !result.Allowed {
			m.observe("rejected")
			m.reject(ctx, w, key, result)
			return
		}

		m.observe("allowed")
		next.ServeHTTP(w, r)
	})
}

// check returns nil when no counter could answer.
func (m *Middleware) check(ctx context.Context, key string) (*models.Result, bool) {
	result, err := m.counter.Allow(ctx, key, m.limit, m.window)
	if err == nil {
		usePrimary, change := m.breaker.RecordSuccess()
		if change.Closed {
			m.logger.InfoContext(ctx, "rate limit counter recovered")
			m.setDegraded(false)
		}
		if usePrimary || m.fallback == nil {
			return result, false
		}
		return m.fromFallback(ctx, key)
	}

	if m.metrics != nil {
		m.metrics.IncrementErrors()
	}
	useFallback, change := m.breaker.RecordFailure()
	if change.Opened {
		m.logger.WarnContext(ctx, "rate limit counter unavailable, using in-process fallback", "error", err)
		m.setDegraded(true)
	} else {
		m.logger.ErrorContext(ctx, "failed to check rate limit", "error", err)
	}
	if !useFallback || m.fallback == nil {
		return nil, false
	}
	return m.fromFallback(ctx, key)
}

func (m *Middleware) fromFallback(ctx context.Context, key string) (*models.Result, bool) {
	result, err := m.fallback.Allow(ctx, key, m.limit, m.window)
	if err != nil {
		m.logger.ErrorContext(ctx, "fallback rate limit check failed", "error", err)
		return nil, true
	}
	return result, true
}

func (m *Middleware) reject(ctx context.Context, w http.ResponseWriter, key string, result *models.Result) {
	m.logAudit(ctx, "rate limit exceeded",
		"identifier", key,
		"reason", "request limit of "+strconv.Itoa(result.Limit)+" per "+m.window.String()+" exceeded",
		"retry_after", result.RetryAfter,
	)
	w.Header().Set("Retry-After", strconv.Itoa(result.RetryAfter))
	httputil.WriteError(w, dErrors.New(dErrors.CodeRateLimited, rejectedMessage))
}

// logAudit writes the audit log line and forwards a security event built from
// the same attributes.
func (m *Middleware) logAudit(ctx context.Context, msg string, attrList ...any) {
	requestID := requestcontext.RequestID(ctx)
	ip := requestcontext.ClientIP(ctx)
	if requestID != "" {
		attrList = append(attrList, "request_id", requestID)
	}
	if ip != "" {
		attrList = append(attrList, "ip", ip)
	}
	m.logger.WarnContext(ctx, msg, append(attrList, "log_type", "audit")...)

	if m.security == nil {
		return
	}
	event := audit.SecurityEvent{
		Timestamp: requestcontext.Now(ctx),
		Subject:   attrs.First(attrList, "identifier", "ip"),
		Action:    audit.ActionRateLimitExceeded,
		Reason:    attrs.ExtractString(attrList, "reason"),
		IP:        ip,
		RequestID: requestID,
		Severity:  audit.SeverityWarning,
	}
	if actor := requestcontext.UserID(ctx); !actor.IsNil() {
		event.ActorID = actor.String()
	}
	m.security.Emit(ctx, event)
}

func (m *Middleware) observe(outcome string) {
	if m.metrics != nil {
		m.metrics.IncrementDecision(outcome)
	}
}

func (m *Middleware) setDegraded(degraded bool) {
	if m.metrics != nil {
		m.metrics.SetDegraded(degraded)
	}
}

func keyFor(ctx context.Context) string {
	if actor := requestcontext.UserID(ctx); !actor.IsNil() {
		return models.ActorKey(actor.String())
	}
	return models.IPKey(requestcontext.ClientIP(ctx))
}

func addRateLimitHeaders(w http.ResponseWriter, result *models.Result) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
}
