// Package scheduler implements the tool-call state machine from spec.md
// §4.4: validation, optional confirmation, concurrent execution, and
// terminal reporting for one batch of tool calls at a time.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fletchway/agentcore/internal/confirm"
	"github.com/fletchway/agentcore/internal/functioncall"
	"github.com/fletchway/agentcore/internal/schema"
	"github.com/fletchway/agentcore/internal/telemetry"
	"github.com/fletchway/agentcore/internal/tools"
)

// Status is a Call's position in the state diagram from spec.md §4.4.
// Success, Error, and Cancelled are terminal and absorbing.
type Status string

const (
	StatusValidating       Status = "validating"
	StatusAwaitingApproval Status = "awaiting_approval"
	StatusScheduled        Status = "scheduled"
	StatusExecuting        Status = "executing"
	StatusSuccess          Status = "success"
	StatusError            Status = "error"
	StatusCancelled        Status = "cancelled"
)

// IsTerminal reports whether s is one of the three absorbing states.
func (s Status) IsTerminal() bool {
	return s == StatusSuccess || s == StatusError || s == StatusCancelled
}

// Call is the scheduler's view of one tool invocation as it moves through
// the state diagram.
type Call struct {
	Request functioncall.Request
	Tool    tools.Tool // nil only for calls that errored before or during name resolution (undecodable arguments, unknown tool)

	Status              Status
	Response            map[string]any // set for every terminal call
	ConfirmationDetails *tools.ConfirmationDetails
	Outcome             confirm.Outcome

	StartTime  time.Time
	DurationMs int64

	LiveOutput string
}

// Snapshot is an immutable copy of a Call suitable for handing to external
// callbacks without risking a data race with the scheduler's mutations.
type Snapshot struct {
	CallID              string
	Name                string
	Status              Status
	Response            map[string]any
	ConfirmationDetails *tools.ConfirmationDetails
	Outcome             confirm.Outcome
	DurationMs          int64
	LiveOutput          string
}

func snapshotOf(c *Call) Snapshot {
	return Snapshot{
		CallID:              c.Request.CallID,
		Name:                c.Request.Name,
		Status:              c.Status,
		Response:            c.Response,
		ConfirmationDetails: c.ConfirmationDetails,
		Outcome:             c.Outcome,
		DurationMs:          c.DurationMs,
		LiveOutput:          c.LiveOutput,
	}
}

// ErrBusy is returned by Schedule when a batch is already in flight.
var ErrBusy = errors.New("scheduler: busy, a batch is already in flight")

// Policy configures scheduler-wide behavior.
type Policy struct {
	// AutoConfirm bypasses Tool.ShouldConfirm entirely when true (spec.md §6).
	AutoConfirm bool
}

// Hooks are the scheduler's external callback contract.
type Hooks struct {
	// OnUpdate fires after every status change with a snapshot of the whole
	// batch.
	OnUpdate func(batch []Snapshot)
	// OnAllComplete fires exactly once per batch, after every call has
	// reached a terminal state.
	OnAllComplete func(batch []Snapshot)
	// OnOutput fires for each live-output chunk a streaming tool emits,
	// tagged with the call id.
	OnOutput func(callID, chunk string)
}

// Scheduler advances one batch of tool calls at a time through validation,
// confirmation, and execution. Only one batch may be in flight; see
// spec.md §4.4 and §5 for the concurrency contract this type implements via
// a single mutex-guarded owner.
type Scheduler struct {
	mu sync.Mutex

	registry *tools.Registry
	confirm  confirm.Policy
	policy   Policy
	hooks    Hooks

	logger telemetry.Logger
	tracer telemetry.Tracer
	metric telemetry.Metrics

	active bool
	calls  []*Call
	byID   map[string]*Call

	cancel context.CancelFunc
	cancelled bool

	wg sync.WaitGroup
}

// Option configures a Scheduler at construction time.
type Option func(*Scheduler)

// WithLogger sets the scheduler's logger.
func WithLogger(l telemetry.Logger) Option { return func(s *Scheduler) { s.logger = l } }

// WithTracer sets the scheduler's tracer.
func WithTracer(t telemetry.Tracer) Option { return func(s *Scheduler) { s.tracer = t } }

// WithMetrics sets the scheduler's metrics recorder.
func WithMetrics(m telemetry.Metrics) Option { return func(s *Scheduler) { s.metric = m } }

// New builds a Scheduler bound to registry, confirmation policy, hooks, and
// scheduling policy.
func New(registry *tools.Registry, confirmPolicy confirm.Policy, policy Policy, hooks Hooks, opts ...Option) *Scheduler {
	s := &Scheduler{
		registry: registry,
		confirm:  confirmPolicy,
		policy:   policy,
		hooks:    hooks,
		logger:   telemetry.NewNoopLogger(),
		tracer:   telemetry.NewNoopTracer(),
		metric:   telemetry.NewNoopMetrics(),
		byID:     make(map[string]*Call),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Schedule begins processing a new batch of requests. It fails with ErrBusy
// if a prior batch has not fully drained.
func (s *Scheduler) Schedule(ctx context.Context, requests []functioncall.Request) error {
	s.mu.Lock()
	if s.active {
		s.mu.Unlock()
		return ErrBusy
	}
	s.active = true
	s.cancelled = false
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.calls = make([]*Call, 0, len(requests))
	s.byID = make(map[string]*Call, len(requests))
	s.mu.Unlock()

	for _, req := range requests {
		call := &Call{Request: req, Status: StatusValidating}
		s.mu.Lock()
		s.calls = append(s.calls, call)
		s.byID[req.CallID] = call
		s.mu.Unlock()
		s.resolveAndValidate(runCtx, call)
	}

	s.emitUpdate()
	s.runExecutorPass(runCtx)
	s.maybeComplete()
	return nil
}

// resolveAndValidate performs steps 2-4 of the scheduling algorithm in
// spec.md §4.4 for a single call: registry resolution, Validate, and the
// confirmation decision. Calls are validated strictly in input order, as
// spec.md §5 requires, because Schedule invokes this synchronously per
// request before any executor pass begins.
func (s *Scheduler) resolveAndValidate(ctx context.Context, call *Call) {
	if call.Request.ArgsDecodeError != nil {
		s.finish(call, StatusError, map[string]any{"error": call.Request.ArgsDecodeError.Error()})
		return
	}

	tool, ok := s.registry.Lookup(call.Request.Name)
	if !ok {
		s.finish(call, StatusError, map[string]any{
			"error": fmt.Sprintf("Tool '%s' not found", call.Request.Name),
		})
		return
	}
	call.Tool = tool
	call.StartTime = time.Now()

	if err := schema.ValidateArgs(schema.FromTool(tool), call.Request.Args); err != nil {
		s.finish(call, StatusError, map[string]any{"error": err.Error()})
		return
	}

	if err := tool.Validate(call.Request.Args); err != nil {
		s.finish(call, StatusError, map[string]any{"error": validationErrorMessage(err)})
		return
	}

	if s.policy.AutoConfirm {
		s.setStatus(call, StatusScheduled)
		return
	}

	details, err := tool.ShouldConfirm(ctx, call.Request.Args)
	if err != nil {
		s.finish(call, StatusError, map[string]any{"error": err.Error()})
		return
	}
	if details == nil {
		s.setStatus(call, StatusScheduled)
		return
	}
	call.ConfirmationDetails = details
	s.setStatus(call, StatusAwaitingApproval)

	go s.awaitConfirmation(ctx, call, *details)
}

func (s *Scheduler) awaitConfirmation(ctx context.Context, call *Call, details tools.ConfirmationDetails) {
	outcome, err := s.confirm.Decide(ctx, call.Request.CallID, details)
	if err != nil {
		s.mu.Lock()
		stillWaiting := call.Status == StatusAwaitingApproval
		s.mu.Unlock()
		if stillWaiting {
			s.finish(call, StatusError, map[string]any{"error": err.Error()})
			s.emitUpdate()
			s.runExecutorPass(ctx)
			s.maybeComplete()
		}
		return
	}
	s.HandleConfirmation(ctx, call.Request.CallID, outcome)
}

// HandleConfirmation resolves a pending confirmation, per spec.md §4.4. It
// is a no-op for calls not currently in StatusAwaitingApproval.
func (s *Scheduler) HandleConfirmation(ctx context.Context, callID string, outcome confirm.Outcome) {
	s.mu.Lock()
	call, ok := s.byID[callID]
	if !ok || call.Status != StatusAwaitingApproval {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	switch outcome {
	case confirm.OutcomeCancel:
		s.finish(call, StatusCancelled, map[string]any{"error": "Operation cancelled by user"})
	case confirm.OutcomeProceedOnce, confirm.OutcomeProceedAlwaysTool:
		call.Outcome = outcome
		s.setStatus(call, StatusScheduled)
	default:
		s.finish(call, StatusError, map[string]any{"error": fmt.Sprintf("unknown confirmation outcome %q", outcome)})
	}
	s.emitUpdate()
	s.runExecutorPass(ctx)
	s.maybeComplete()
}

// runExecutorPass collects every call currently StatusScheduled and runs
// Tool.Execute for the whole set concurrently, per spec.md §4.4's executor
// pass. Individual failures never abort sibling calls.
func (s *Scheduler) runExecutorPass(ctx context.Context) {
	s.mu.Lock()
	var toRun []*Call
	for _, call := range s.calls {
		if call.Status == StatusScheduled {
			call.Status = StatusExecuting
			toRun = append(toRun, call)
		}
	}
	s.mu.Unlock()
	if len(toRun) == 0 {
		return
	}
	s.emitUpdate()

	for _, call := range toRun {
		s.wg.Add(1)
		go func(call *Call) {
			defer s.wg.Done()
			s.executeOne(ctx, call)
		}(call)
	}
}

func (s *Scheduler) executeOne(ctx context.Context, call *Call) {
	spanCtx, span := s.tracer.Start(ctx, "scheduler.execute_tool")
	span.SetAttributes("tool", call.Request.Name, "call_id", call.Request.CallID)
	defer span.End()

	var sink tools.ProgressSink
	if call.Tool.CanStreamOutput() {
		sink = tools.ProgressSinkFunc(func(_ context.Context, chunk string) error {
			s.mu.Lock()
			call.LiveOutput += chunk
			s.mu.Unlock()
			if s.hooks.OnOutput != nil {
				s.hooks.OnOutput(call.Request.CallID, chunk)
			}
			s.emitUpdate()
			return nil
		})
	}

	result, err := call.Tool.Execute(spanCtx, call.Request.Args, sink)
	s.mu.Lock()
	cancelled := s.cancelled
	s.mu.Unlock()
	if cancelled {
		// abort_all already drove this call to Cancelled; discard the late
		// result per spec.md §5.
		return
	}
	if err != nil {
		span.RecordError(err)
		s.logger.Error(ctx, "tool execution failed", "tool", call.Request.Name, "call_id", call.Request.CallID, "err", err)
		s.finish(call, StatusError, map[string]any{"error": err.Error()})
		s.metric.IncCounter("agentcore.tool.calls", 1, "tool", call.Request.Name, "status", "error")
		s.emitUpdate()
		s.maybeComplete()
		return
	}

	response := map[string]any{}
	if result.Success {
		response["output"] = result.LLMContent
	} else {
		msg := result.DisplayContent
		if msg == "" {
			if str, ok := result.LLMContent.(string); ok {
				msg = str
			} else {
				msg = "tool call failed"
			}
		}
		if hint := retryHintMessage(result.RetryHint); hint != "" {
			msg += " " + hint
		}
		response["error"] = msg
	}

	status := StatusSuccess
	if !result.Success {
		status = StatusError
	}
	s.finish(call, status, response)
	s.metric.IncCounter("agentcore.tool.calls", 1, "tool", call.Request.Name, "status", string(status))
	s.emitUpdate()
	s.maybeComplete()
}

// validationErrorMessage folds a *tools.ValidationError's structured issues
// into a single string for the model, per spec.md §3's retry-guidance intent.
// Any other error is passed through as its plain message.
func validationErrorMessage(err error) string {
	var verr *tools.ValidationError
	if !errors.As(err, &verr) || len(verr.Issues) == 0 {
		return err.Error()
	}
	var b strings.Builder
	b.WriteString(verr.Message)
	for _, issue := range verr.Issues {
		fmt.Fprintf(&b, "; %s: %s", issue.Field, issue.Constraint)
		if len(issue.Allowed) > 0 {
			fmt.Fprintf(&b, " (allowed: %s)", strings.Join(issue.Allowed, ", "))
		}
	}
	return b.String()
}

// retryHintMessage renders a *tools.RetryHint as a short suffix appended to a
// failed call's error text so retry guidance reaches the model consistently
// instead of each tool author formatting it ad hoc.
func retryHintMessage(hint *tools.RetryHint) string {
	if hint == nil {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "(retry hint: %s", hint.Reason)
	if len(hint.MissingFields) > 0 {
		fmt.Fprintf(&b, ", missing fields: %s", strings.Join(hint.MissingFields, ", "))
	}
	if hint.ClarifyingQuestion != "" {
		fmt.Fprintf(&b, ", clarify: %s", hint.ClarifyingQuestion)
	}
	b.WriteString(")")
	return b.String()
}

func (s *Scheduler) setStatus(call *Call, status Status) {
	s.mu.Lock()
	call.Status = status
	s.mu.Unlock()
}

func (s *Scheduler) finish(call *Call, status Status, response map[string]any) {
	s.mu.Lock()
	call.Status = status
	call.Response = response
	if !call.StartTime.IsZero() {
		call.DurationMs = time.Since(call.StartTime).Milliseconds()
	}
	s.mu.Unlock()
	s.metric.RecordTimer("agentcore.tool.duration_ms", time.Duration(call.DurationMs)*time.Millisecond, "tool", call.Request.Name)
}

func (s *Scheduler) emitUpdate() {
	if s.hooks.OnUpdate == nil {
		return
	}
	s.hooks.OnUpdate(s.snapshotBatch())
}

func (s *Scheduler) snapshotBatch() []Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Snapshot, 0, len(s.calls))
	for _, c := range s.calls {
		out = append(out, snapshotOf(c))
	}
	return out
}

// maybeComplete checks whether every call in the active batch has reached a
// terminal state and, if so, fires OnAllComplete exactly once and frees the
// scheduler to accept a new batch.
func (s *Scheduler) maybeComplete() {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return
	}
	for _, c := range s.calls {
		if !c.Status.IsTerminal() {
			s.mu.Unlock()
			return
		}
	}
	batch := make([]Snapshot, 0, len(s.calls))
	for _, c := range s.calls {
		batch = append(batch, snapshotOf(c))
	}
	s.active = false
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if s.hooks.OnAllComplete != nil {
		s.hooks.OnAllComplete(batch)
	}
}

// AbortAll cancels every non-terminal call in the active batch immediately,
// driving each to Cancelled with an aborted-by-user response, per spec.md
// §4.4 and §5. It is safe to call when no batch is active.
func (s *Scheduler) AbortAll() {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return
	}
	s.cancelled = true
	cancel := s.cancel
	var toCancel []*Call
	for _, c := range s.calls {
		if !c.Status.IsTerminal() {
			toCancel = append(toCancel, c)
		}
	}
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	for _, c := range toCancel {
		s.finish(c, StatusCancelled, map[string]any{"error": "Operation aborted by user"})
	}
	s.emitUpdate()
	s.maybeComplete()
}

// Wait blocks until every spawned tool execution goroutine for the current
// (or most recently active) batch has returned. Tests use this to avoid
// races on OnAllComplete; production callers normally rely on OnAllComplete
// instead.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// Snapshot returns the current state of the active (or just-completed)
// batch.
func (s *Scheduler) Snapshot() []Snapshot {
	return s.snapshotBatch()
}
