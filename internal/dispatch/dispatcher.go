// Package dispatch executes one validated action against the domain records.
//
// Every execution walks the same stages in order: resolve name-like
// parameters, validate, authorize, mutate, audit. A failing stage ends the
// run; the audit trail still records the attempt.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"carepilot/internal/actions"
	"carepilot/internal/notify"
	"carepilot/internal/records"
	"carepilot/internal/resolver"
	id "carepilot/pkg/domain"
	audit "carepilot/pkg/platform/audit"
	"carepilot/pkg/platform/sentinel"
	"carepilot/pkg/requestcontext"
)

var tracer = otel.Tracer("carepilot/internal/dispatch")

const notifyTimeout = 5 * time.Second

// Result is a completed action. Data is the user-visible view of what was
// written or read.
type Result struct {
	Action   actions.Name `json:"action"`
	EntityID string       `json:"entity_id,omitempty"`
	Message  string       `json:"message"`
	Data     any          `json:"data,omitempty"`
}

type Dispatcher struct {
	store      records.Store
	tx         records.TxRunner
	resolver   Resolver
	access     AccessControl
	compliance ComplianceAuditor
	ops        OpsAuditor
	notifier   Notifier
	metrics    *Metrics
	logger     *slog.Logger
}

type Option func(*Dispatcher)

func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

func WithMetrics(m *Metrics) Option {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

func WithNotifier(n Notifier) Option {
	return func(d *Dispatcher) {
		d.notifier = n
	}
}

func New(
	store records.Store,
	tx records.TxRunner,
	resolver Resolver,
	access AccessControl,
	compliance ComplianceAuditor,
	ops OpsAuditor,
	opts ...Option,
) (*Dispatcher, error) {
	switch {
	case store == nil:
		return nil, errors.New("records store is required")
	case tx == nil:
		return nil, errors.New("tx runner is required")
	case resolver == nil:
		return nil, errors.New("resolver is required")
	case access == nil:
		return nil, errors.New("access control is required")
	case compliance == nil || ops == nil:
		return nil, errors.New("compliance and ops auditors are required")
	}

	d := &Dispatcher{
		store:      store,
		tx:         tx,
		resolver:   resolver,
		access:     access,
		compliance: compliance,
		ops:        ops,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// execution carries the state of one Execute call.
type execution struct {
	req    actions.Request
	stage  Stage
	loc    *time.Location
	info   actions.Info
	known  bool
	params map[string]any
	action actions.Action

	// newClientID is assigned before create_client so the PHI access record
	// can reference the row about to be written.
	newClientID id.ClientID
	// denied is set when VerifyAccess already wrote the denial record.
	denied bool
}

// Execute runs req through every stage. Errors are always *Error.
func (d *Dispatcher) Execute(ctx context.Context, req actions.Request) (*Result, error) {
	ctx, span := tracer.Start(ctx, "dispatch.execute",
		trace.WithAttributes(attribute.String("action", req.Name)))
	defer span.End()
	start := time.Now()

	run := &execution{req: req, stage: StagePending}
	run.info, run.known = actions.Describe(actions.Name(req.Name))

	res, err := d.run(ctx, run)

	outcome := "ok"
	if err != nil {
		var de *Error
		if errors.As(err, &de) {
			outcome = string(de.Kind)
			span.SetAttributes(attribute.String("dispatch.stage", string(de.Stage)))
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		d.logger.WarnContext(ctx, "action failed",
			"action", req.Name,
			"outcome", outcome,
			"error", err,
		)
	}
	if d.metrics != nil {
		label := req.Name
		if !run.known {
			label = "unknown"
		}
		d.metrics.observe(label, outcome, time.Since(start).Seconds())
	}
	return res, err
}

func (d *Dispatcher) run(ctx context.Context, run *execution) (*Result, error) {
	if run.req.ActorID.IsNil() {
		return nil, d.fail(ctx, run, KindUnauthorized, "You need to be signed in to do that.", errors.New("missing actor"))
	}
	run.loc = requestLocation(ctx, run.req.Timezone)

	run.stage = StageResolving
	if err := d.resolve(ctx, run); err != nil {
		return nil, err
	}

	run.stage = StageValidating
	action, err := actions.ValidateIn(run.req.Name, run.params, run.loc)
	if err != nil {
		var unknown *actions.UnknownActionError
		if errors.As(err, &unknown) {
			return nil, d.fail(ctx, run, KindUnknownAction,
				fmt.Sprintf("I don't know how to %q.", run.req.Name), err)
		}
		var verr *actions.ValidationError
		if errors.As(err, &verr) {
			first := verr.First()
			return nil, d.fail(ctx, run, KindValidation,
				fmt.Sprintf("Invalid %s: %s.", first.Field, first.Message), err)
		}
		return nil, d.fail(ctx, run, KindValidation, "Those details don't look right.", err)
	}
	run.action = action

	run.stage = StageAuthorizing
	if res := d.access.ValidateMinimumNecessary(ctx, run.req.Name, fieldNames(run.params)); !res.Valid {
		return nil, d.fail(ctx, run, KindUnauthorized,
			"That request includes more client information than it needs.", errors.New(res.Error))
	}
	if err := d.authorize(ctx, run); err != nil {
		return nil, err
	}

	if run.info.Protected() {
		if err := d.logAccess(ctx, run); err != nil {
			return nil, d.fail(ctx, run, KindPersistence, "Something went wrong. Please try again.", err)
		}
	}

	run.stage = StageMutating
	var out outcome
	err = d.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		out, err = d.mutate(ctx, run)
		if err != nil {
			return err
		}
		if !run.info.Protected() {
			return nil
		}
		run.stage = StageAuditing
		if err := d.compliance.Emit(ctx, d.successRecord(ctx, run, out)); err != nil {
			return &auditError{err: err}
		}
		return nil
	})
	if err != nil {
		return nil, d.failMutation(ctx, run, err)
	}
	// Best-effort records are written after commit, outside the transaction.
	if !run.info.Protected() {
		run.stage = StageAuditing
		d.ops.Track(ctx, d.successRecord(ctx, run, out))
	}

	run.stage = StageCompleted
	if out.notice != nil {
		d.notify(ctx, *out.notice)
	}
	return &Result{
		Action:   run.info.Name,
		EntityID: out.entityID,
		Message:  out.message,
		Data:     out.data,
	}, nil
}

// resolve replaces a client_name, or a client_id that is not a UUID, with the
// id of the single owned client it names.
func (d *Dispatcher) resolve(ctx context.Context, run *execution) error {
	params := maps.Clone(run.req.Params)
	if params == nil {
		params = map[string]any{}
	}
	run.params = params

	var name string
	if v, ok := params["client_name"].(string); ok && strings.TrimSpace(v) != "" {
		name = v
		delete(params, "client_name")
	} else if v, ok := params["client_id"].(string); ok && strings.TrimSpace(v) != "" && !id.LooksLikeUUID(strings.TrimSpace(v)) {
		name = v
	}
	if name == "" {
		return nil
	}

	clientID, err := d.resolver.Resolve(ctx, run.req.ActorID, name)
	if err != nil {
		var nf *resolver.NotFoundError
		if errors.As(err, &nf) {
			msg := fmt.Sprintf("I couldn't find a client named %q.", name)
			if len(nf.Suggestions) > 0 {
				msg += " Your clients include: " + strings.Join(nf.Suggestions, ", ") + "."
			}
			return d.fail(ctx, run, KindNotFound, msg, err)
		}
		var amb *resolver.AmbiguousError
		if errors.As(err, &amb) {
			return d.fail(ctx, run, KindAmbiguous,
				fmt.Sprintf("Several clients match %q: %s. Which one did you mean?", name, strings.Join(amb.Matches, ", ")), err)
		}
		return d.fail(ctx, run, KindPersistence, "Something went wrong looking up that client.", err)
	}
	params["client_id"] = clientID.String()
	return nil
}

func (d *Dispatcher) authorize(ctx context.Context, run *execution) error {
	scoped, ok := run.action.(actions.ClientScoped)
	if !ok {
		return nil
	}
	clientID, ok := scoped.ClientRef()
	if !ok {
		return nil
	}

	allowed, err := d.access.VerifyAccess(ctx, run.req.ActorID, clientID)
	if err != nil {
		return d.fail(ctx, run, KindPersistence, "Something went wrong checking access.", err)
	}
	if !allowed {
		run.denied = true
		return d.fail(ctx, run, KindUnauthorized, "You don't have access to that client.",
			fmt.Errorf("access to client %s denied", clientID))
	}
	return nil
}

func (d *Dispatcher) logAccess(ctx context.Context, run *execution) error {
	var clientID id.ClientID
	switch a := run.action.(type) {
	case actions.CreateClient:
		run.newClientID = id.ClientID(uuid.New())
		clientID = run.newClientID
	case actions.ClientScoped:
		clientID, _ = a.ClientRef()
	}
	return d.access.LogAccess(ctx, audit.PHIAccess{
		ActorID:        run.req.ActorID,
		AccessType:     run.info.Access,
		EntityType:     run.info.Entity,
		ClientID:       clientID,
		Justification:  run.req.Name,
		AccessedFields: fieldNames(run.params),
	})
}

func (d *Dispatcher) successRecord(ctx context.Context, run *execution, out outcome) audit.Record {
	return audit.Record{
		ActorID:       run.req.ActorID,
		Action:        auditAction(run.info),
		EntityType:    run.info.Entity,
		EntityID:      out.entityID,
		Success:       true,
		Justification: run.req.Name,
		OldValue:      out.oldValue,
		NewValue:      out.newValue,
	}.Stamp(ctx)
}

// auditError marks a failed success-audit so the rollback is reported as a
// persistence failure rather than a domain one.
type auditError struct{ err error }

func (e *auditError) Error() string { return "audit write failed: " + e.err.Error() }
func (e *auditError) Unwrap() error { return e.err }

func (d *Dispatcher) failMutation(ctx context.Context, run *execution, err error) error {
	var ae *auditError
	var se *stateError
	switch {
	case errors.As(err, &ae):
		return d.fail(ctx, run, KindPersistence, "Something went wrong saving that. Nothing was changed.", err)
	case errors.Is(err, context.DeadlineExceeded):
		return d.fail(ctx, run, KindTimeout, "That took too long. Please try again.", err)
	case errors.Is(err, sentinel.ErrNotFound):
		return d.fail(ctx, run, KindNotFound, fmt.Sprintf("I couldn't find that %s.", run.info.Entity), err)
	case errors.As(err, &se):
		return d.fail(ctx, run, KindValidation, se.message, err)
	case errors.Is(err, sentinel.ErrConflict):
		return d.fail(ctx, run, KindValidation, fmt.Sprintf("That %s already exists.", run.info.Entity), err)
	default:
		return d.fail(ctx, run, KindPersistence, "Something went wrong saving that. Please try again.", err)
	}
}

// fail builds the returned error and writes the failure audit record. Known
// protected actions are audited at any stage; other actions only once a
// mutation was attempted. A denial already audited by VerifyAccess is not
// written twice.
func (d *Dispatcher) fail(ctx context.Context, run *execution, kind Kind, message string, cause error) error {
	stage := run.stage
	run.stage = StageFailed
	derr := &Error{Kind: kind, Stage: stage, Message: message, Cause: cause}

	if !run.known || run.denied {
		return derr
	}
	mutating := stage == StageMutating || stage == StageAuditing
	if !run.info.Protected() && !mutating {
		return derr
	}

	record := audit.Record{
		ActorID:       run.req.ActorID,
		Action:        auditAction(run.info),
		EntityType:    run.info.Entity,
		EntityID:      run.entityHint(),
		Success:       false,
		Justification: run.req.Name,
		ErrorKind:     string(kind),
		Message:       cause.Error(),
	}.Stamp(ctx)

	if run.info.Protected() {
		if run.req.ActorID.IsNil() {
			return derr
		}
		if err := d.compliance.Emit(context.WithoutCancel(ctx), record); err != nil {
			d.logger.ErrorContext(ctx, "failed to audit failed action",
				"action", run.req.Name,
				"error", err,
			)
		}
		return derr
	}
	d.ops.Track(context.WithoutCancel(ctx), record)
	return derr
}

// entityHint names the record an action targeted, for failure records.
func (run *execution) entityHint() string {
	switch a := run.action.(type) {
	case actions.RescheduleAppointment:
		return a.AppointmentID.String()
	case actions.CancelAppointment:
		return a.AppointmentID.String()
	case actions.MarkInvoicePaid:
		return a.InvoiceID.String()
	case actions.CompleteReminder:
		return a.ReminderID.String()
	case actions.CreateClient:
		if !run.newClientID.IsNil() {
			return run.newClientID.String()
		}
	case actions.ClientScoped:
		if c, ok := a.ClientRef(); ok {
			return c.String()
		}
	}
	return ""
}

func (d *Dispatcher) notify(ctx context.Context, n notify.Notification) {
	if d.notifier == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	go func() {
		ctx, cancel := context.WithTimeout(ctx, notifyTimeout)
		defer cancel()
		if err := d.notifier.Send(ctx, n); err != nil {
			d.logger.WarnContext(ctx, "notification failed", "title", n.Title, "error", err)
		}
	}()
}

func auditAction(info actions.Info) audit.Action {
	switch {
	case info.Access == audit.AccessRead:
		return audit.ActionRead
	case strings.HasPrefix(string(info.Name), "create_"):
		return audit.ActionCreate
	default:
		return audit.ActionUpdate
	}
}

func requestLocation(ctx context.Context, name string) *time.Location {
	if name != "" {
		if loc, err := time.LoadLocation(name); err == nil {
			return loc
		}
	}
	return requestcontext.Location(ctx)
}

func fieldNames(params map[string]any) []string {
	return slices.Sorted(maps.Keys(params))
}
