// Package orchestrator drives the outer multi-turn agent loop described in
// spec.md §4.5: it feeds conversation history to a streaming content
// generator, hands any function-call requests to a scheduler, folds the
// results back into history, and repeats until the model stops requesting
// tools or an iteration cap is hit.
package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/fletchway/agentcore/internal/confirm"
	"github.com/fletchway/agentcore/internal/functioncall"
	"github.com/fletchway/agentcore/internal/model"
	"github.com/fletchway/agentcore/internal/scheduler"
	"github.com/fletchway/agentcore/internal/telemetry"
	"github.com/fletchway/agentcore/internal/tools"
)

// EventKind tags the variant of an Event in the stream the orchestrator
// emits for one turn, per spec.md §4.5/§6.
type EventKind string

const (
	EventContent            EventKind = "content"
	EventToolCallRequest    EventKind = "tool_call_request"
	EventToolCallResponse   EventKind = "tool_call_response"
	EventFinished           EventKind = "finished"
	EventError              EventKind = "error"
)

// Event is one item of the orchestrator's output stream.
type Event struct {
	Kind EventKind

	// EventContent
	Text string

	// EventToolCallRequest
	Request *functioncall.Request

	// EventToolCallResponse
	Response *functioncall.Completed

	// EventFinished
	Reason string

	// EventError
	Err error
}

// Turn is what a ContentGenerator produces for one model turn: zero or more
// text chunks already concatenated into Text, plus any function calls the
// model requested, tagged with the response-shape family they arrived in.
type Turn struct {
	Text        string
	Calls       []functioncall.Request
	Provider    functioncall.ProviderKind
	FinishedAll bool // true when the model produced no tool calls this turn
}

// ContentGenerator is the streaming LM client interface the orchestrator
// depends on. Concrete implementations live in internal/providers/*.
type ContentGenerator interface {
	Generate(ctx context.Context, history model.History) (Turn, error)
}

// ErrIterationCapReached is returned (wrapped) inside an EventError when the
// loop stops because it hit MaxIterations without the model finishing,
// rather than because the conversation concluded naturally.
var ErrIterationCapReached = errors.New("orchestrator: max agent iterations reached")

// Config controls one Run.
type Config struct {
	// MaxIterations bounds how many outer-loop turns a single Run may take,
	// per spec.md §4.5's iteration cap.
	MaxIterations int
	// AutoConfirm, when true, bypasses tool confirmation entirely for this
	// run (propagated into the scheduler's Policy).
	AutoConfirm bool
	// Limiter, when non-nil, is waited on once per iteration before calling
	// the content generator (added ambient throttling; see SPEC_FULL.md
	// §4.5).
	Limiter *rate.Limiter
}

// Orchestrator runs the outer agent loop over a single content generator,
// tool registry, and confirmation policy.
type Orchestrator struct {
	gen      ContentGenerator
	registry *tools.Registry
	confirm  confirm.Policy
	logger   telemetry.Logger
	tracer   telemetry.Tracer
	metric   telemetry.Metrics
}

// Option configures an Orchestrator at construction time.
type Option func(*Orchestrator)

// WithLogger sets the orchestrator's logger.
func WithLogger(l telemetry.Logger) Option { return func(o *Orchestrator) { o.logger = l } }

// WithTracer sets the orchestrator's tracer.
func WithTracer(t telemetry.Tracer) Option { return func(o *Orchestrator) { o.tracer = t } }

// WithMetrics sets the orchestrator's metrics recorder.
func WithMetrics(m telemetry.Metrics) Option { return func(o *Orchestrator) { o.metric = m } }

// New builds an Orchestrator bound to a content generator, tool registry,
// and confirmation policy.
func New(gen ContentGenerator, registry *tools.Registry, confirmPolicy confirm.Policy, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		gen:      gen,
		registry: registry,
		confirm:  confirmPolicy,
		logger:   telemetry.NewNoopLogger(),
		tracer:   telemetry.NewNoopTracer(),
		metric:   telemetry.NewNoopMetrics(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run drives the agent loop starting from history, emitting Events on the
// returned channel until the model finishes, an unrecoverable error occurs,
// or cfg.MaxIterations is exhausted. The channel is closed when Run returns.
// ctx cancellation aborts any in-flight tool batch via the scheduler's
// AbortAll.
func (o *Orchestrator) Run(ctx context.Context, history model.History, cfg Config) <-chan Event {
	events := make(chan Event, 8)
	go o.run(ctx, history, cfg, events)
	return events
}

func (o *Orchestrator) run(ctx context.Context, history model.History, cfg Config, events chan<- Event) {
	defer close(events)

	runCtx, span := o.tracer.Start(ctx, "orchestrator.run")
	defer span.End()

	maxIter := cfg.MaxIterations
	if maxIter <= 0 {
		maxIter = 1
	}

	for iter := 0; iter < maxIter; iter++ {
		if cfg.Limiter != nil {
			if err := cfg.Limiter.Wait(runCtx); err != nil {
				events <- Event{Kind: EventError, Err: fmt.Errorf("rate limiter: %w", err)}
				return
			}
		}

		if err := model.CheckCallResponseBalance(history); err != nil {
			events <- Event{Kind: EventError, Err: err}
			return
		}

		turn, err := o.gen.Generate(runCtx, history)
		if err != nil {
			o.logger.Error(runCtx, "content generation failed", "iteration", iter, "err", err)
			events <- Event{Kind: EventError, Err: err}
			return
		}

		if turn.Text != "" {
			history = append(history, model.TextMessage(model.RoleModel, turn.Text))
			events <- Event{Kind: EventContent, Text: turn.Text}
		}

		if len(turn.Calls) == 0 || turn.FinishedAll {
			events <- Event{Kind: EventFinished, Reason: "model_finished"}
			return
		}

		callMsg := model.Message{Role: model.RoleModel}
		for _, c := range turn.Calls {
			callMsg.Parts = append(callMsg.Parts, model.FunctionCallPart{ID: c.CallID, Name: c.Name, Args: c.Args})
			reqCopy := c
			events <- Event{Kind: EventToolCallRequest, Request: &reqCopy}
		}
		history = append(history, callMsg)

		completed, err := o.runBatch(runCtx, turn.Calls, cfg)
		if err != nil {
			events <- Event{Kind: EventError, Err: err}
			return
		}

		for _, c := range completed {
			cc := c
			events <- Event{Kind: EventToolCallResponse, Response: &cc}
		}

		// Folded under RoleTool rather than RoleUser: RoleTool is within the
		// role set model.History supports, and every provider adapter here
		// translates it back to that provider's own tool-result wire shape
		// (Anthropic tool_result blocks, OpenAI role:"tool" messages).
		history = append(history, functioncall.ConvertNativeMessage(model.RoleTool, completed))

		o.metric.IncCounter("agentcore.orchestrator.iterations", 1)

		if iter == maxIter-1 {
			events <- Event{Kind: EventError, Err: fmt.Errorf("%w (after %d iterations)", ErrIterationCapReached, maxIter)}
			return
		}
	}
}

// runBatch hands turn.Calls to a fresh scheduler and blocks until every call
// in the batch reaches a terminal state, returning completions in the
// scheduler's final snapshot order (which matches input order; see
// scheduler.Scheduler).
func (o *Orchestrator) runBatch(ctx context.Context, calls []functioncall.Request, cfg Config) ([]functioncall.Completed, error) {
	done := make(chan []scheduler.Snapshot, 1)
	hooks := scheduler.Hooks{
		OnAllComplete: func(batch []scheduler.Snapshot) {
			done <- batch
		},
	}
	s := scheduler.New(o.registry, o.confirm, scheduler.Policy{AutoConfirm: cfg.AutoConfirm}, hooks,
		scheduler.WithLogger(o.logger), scheduler.WithTracer(o.tracer), scheduler.WithMetrics(o.metric))

	if err := s.Schedule(ctx, calls); err != nil {
		return nil, err
	}

	select {
	case batch := <-done:
		out := make([]functioncall.Completed, 0, len(batch))
		for _, snap := range batch {
			out = append(out, functioncall.Completed{
				Request: functioncall.Request{CallID: snap.CallID, Name: snap.Name},
				Result:  resultFromResponse(snap),
			})
		}
		return out, nil
	case <-ctx.Done():
		s.AbortAll()
		return nil, ctx.Err()
	}
}

func resultFromResponse(snap scheduler.Snapshot) tools.Result {
	if snap.Status == scheduler.StatusSuccess {
		return tools.Result{Success: true, LLMContent: snap.Response["output"]}
	}
	msg := "tool call did not complete"
	if snap.Response != nil {
		if e, ok := snap.Response["error"].(string); ok {
			msg = e
		}
	}
	kind := tools.ErrorKindToolFailed
	if snap.Status == scheduler.StatusCancelled {
		kind = tools.ErrorKindCancelled
	}
	return tools.Result{Success: false, DisplayContent: msg, ErrorKind: kind}
}

