// Package tools defines the abstract contract tools implement and the
// registry that resolves tool names to implementations for a single agent
// session.
package tools

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Kind classifies whether a tool can mutate state outside the conversation.
// The scheduler does not consult it: whether a call needs confirmation is
// decided only by the tool's ShouldConfirm.
type Kind string

const (
	// KindReadOnly marks a tool that only observes state (file reads,
	// search, listings).
	KindReadOnly Kind = "read_only"
	// KindModifying marks a tool that can change state (file writes, shell
	// execution, network mutation).
	KindModifying Kind = "modifying"
)

// FieldIssue describes a single structured validation failure for a tool's
// arguments. Tools may return issues instead of (or in addition to) a plain
// message from Validate so callers can build richer retry guidance.
type FieldIssue struct {
	Field      string
	Constraint string
	Allowed    []string
}

// ValidationError carries one or more FieldIssue values alongside a
// human-readable summary. Tool authors construct this from Validate when
// they want structured detail; the scheduler falls back to treating any
// other non-nil error as an opaque message.
type ValidationError struct {
	Message string
	Issues  []FieldIssue
}

func (e *ValidationError) Error() string { return e.Message }

// ConfirmationDetails is a tagged variant describing what a tool wants the
// user to approve before it executes.
type ConfirmationDetails struct {
	// Type discriminates the variant: "execute_shell", "edit_file", or a
	// tool-chosen generic type string.
	Type string

	// ExecuteShell fields.
	Command     string
	RootCommand string

	// EditFile fields.
	FilePath string
	FileName string
	FileDiff string

	// Generic fields.
	URLs []string

	// Description is shared across variants; optional human-readable
	// context shown above the specific fields.
	Description string
}

// ExecuteShellDetails builds a ConfirmationDetails for a shell command.
func ExecuteShellDetails(command, rootCommand, description string) ConfirmationDetails {
	return ConfirmationDetails{
		Type:        "execute_shell",
		Command:     command,
		RootCommand: rootCommand,
		Description: description,
	}
}

// EditFileDetails builds a ConfirmationDetails for a file edit.
func EditFileDetails(filePath, fileName, fileDiff, description string) ConfirmationDetails {
	return ConfirmationDetails{
		Type:        "edit_file",
		FilePath:    filePath,
		FileName:    fileName,
		FileDiff:    fileDiff,
		Description: description,
	}
}

// GenericDetails builds a ConfirmationDetails for tools that don't fit the
// shell or file-edit shapes.
func GenericDetails(kind, description string, urls []string, filePath string) ConfirmationDetails {
	return ConfirmationDetails{
		Type:        kind,
		Description: description,
		URLs:        urls,
		FilePath:    filePath,
	}
}

// ErrorKind classifies why a tool call did not produce a normal success
// result. Callers match on this to decide whether a failure is retryable.
type ErrorKind string

const (
	ErrorKindUnknownTool           ErrorKind = "unknown_tool"
	ErrorKindInvalidArgs           ErrorKind = "invalid_args"
	ErrorKindConfirmationCancelled ErrorKind = "confirmation_cancelled"
	ErrorKindToolFailed            ErrorKind = "tool_failed"
	ErrorKindCancelled             ErrorKind = "cancelled"
)

// RetryReason is a machine-readable classification attached to a RetryHint
// so callers can render consistent guidance without inspecting error text.
type RetryReason string

const (
	RetryReasonInvalidArguments RetryReason = "invalid_arguments"
	RetryReasonMissingFields    RetryReason = "missing_fields"
	RetryReasonTimeout          RetryReason = "timeout"
)

// RetryHint carries optional structured guidance for the model about how to
// correct and resend a failed tool call.
type RetryHint struct {
	Reason             RetryReason
	Tool               string
	MissingFields      []string
	ExampleInput       map[string]any
	ClarifyingQuestion string
}

// Result is what Execute returns for a successful or failed tool call. It is
// independent of the scheduler's bookkeeping (status, timing, ids) which the
// scheduler tracks separately in scheduler.Call.
type Result struct {
	// LLMContent is fed back to the model as the function-response payload.
	// It may be a string or any JSON-marshalable structured value.
	LLMContent any
	// DisplayContent is optional human-readable content for the terminal UI;
	// when empty, callers render LLMContent instead.
	DisplayContent string
	// Success indicates whether the tool considers the call to have
	// succeeded. A tool may still set Success true with an empty result for
	// no-op operations.
	Success bool
	// ErrorKind optionally classifies a failure. Empty when Success is true.
	ErrorKind ErrorKind
	// RetryHint optionally guides the model toward a corrected retry.
	RetryHint *RetryHint
}

// ProgressSink receives incremental output chunks from a streaming tool
// while it is still executing. Tools whose CanStreamOutput is false must
// never call Send.
type ProgressSink interface {
	Send(ctx context.Context, chunk string) error
}

// ProgressSinkFunc adapts a function to ProgressSink.
type ProgressSinkFunc func(ctx context.Context, chunk string) error

// Send implements ProgressSink.
func (f ProgressSinkFunc) Send(ctx context.Context, chunk string) error { return f(ctx, chunk) }

// Tool is the abstract capability contract every pluggable action
// implements. Implementations are instantiated once and are immutable
// thereafter; Execute is the only method permitted to block or perform side
// effects.
type Tool interface {
	// Name is the unique, stable identifier the model uses to invoke this
	// tool.
	Name() string
	// DisplayName is a short human-readable label for UIs.
	DisplayName() string
	// Description is free text shown to the model describing what the tool
	// does and when to use it.
	Description() string
	// ParametersSchema is a JSON-Schema-shaped object (type "object" at the
	// top level) describing accepted arguments.
	ParametersSchema() map[string]any
	// Kind classifies the tool's blast radius (read-only or modifying).
	Kind() Kind
	// CanStreamOutput reports whether Execute may call ProgressSink.Send.
	CanStreamOutput() bool

	// Validate performs a pure, I/O-free check over args and returns a
	// human-readable failure, or nil if args are acceptable. It may return
	// *ValidationError for structured detail.
	Validate(args map[string]any) error
	// ShouldConfirm may perform cheap I/O (e.g. stat a file) to decide
	// whether interactive consent is required. Returning nil means no
	// confirmation is needed.
	ShouldConfirm(ctx context.Context, args map[string]any) (*ConfirmationDetails, error)
	// Execute performs the side effect. It must honor ctx cancellation and,
	// when CanStreamOutput is true, may emit progress chunks via sink (sink
	// is non-nil only for calls the scheduler has been asked to stream).
	Execute(ctx context.Context, args map[string]any, sink ProgressSink) (Result, error)
}

// FilterPolicy restricts which registered tools are reachable by the model.
// A tool is reachable iff it is not in Deny and (Allow is empty or contains
// it).
type FilterPolicy struct {
	Allow []string
	Deny  []string
}

func (p FilterPolicy) allows(name string) bool {
	for _, d := range p.Deny {
		if d == name {
			return false
		}
	}
	if len(p.Allow) == 0 {
		return true
	}
	for _, a := range p.Allow {
		if a == name {
			return true
		}
	}
	return false
}

// RegistrationError is returned by Register when a name collides with an
// existing entry or is excluded by the filter policy.
type RegistrationError struct {
	Name   string
	Reason string
}

func (e *RegistrationError) Error() string {
	return fmt.Sprintf("register tool %q: %s", e.Name, e.Reason)
}

type registryEntry struct {
	tool   Tool
	source string
}

// Registry maps tool names to implementations, applying a FilterPolicy to
// decide reachability. It is safe for concurrent use; registration normally
// happens once at startup but the methods are not restricted to that phase.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]registryEntry
	policy  FilterPolicy
}

// NewRegistry builds an empty registry with the given filter policy.
func NewRegistry(policy FilterPolicy) *Registry {
	return &Registry{
		entries: make(map[string]registryEntry),
		policy:  policy,
	}
}

// Register adds tool under sourceTag. It fails if a tool of the same name
// already exists (unless force is true) or if the filter policy excludes
// the name.
func (r *Registry) Register(tool Tool, sourceTag string, force bool) error {
	if tool == nil {
		return &RegistrationError{Reason: "nil tool"}
	}
	name := tool.Name()
	if name == "" {
		return &RegistrationError{Reason: "empty tool name"}
	}
	if !r.policy.allows(name) {
		return &RegistrationError{Name: name, Reason: "excluded by filter policy"}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[name]; exists && !force {
		return &RegistrationError{Name: name, Reason: "already registered"}
	}
	r.entries[name] = registryEntry{tool: tool, source: sourceTag}
	return nil
}

// Lookup resolves name to a Tool, honoring the filter policy. It returns
// (nil, false) for unregistered or excluded names.
func (r *Registry) Lookup(name string) (Tool, bool) {
	if !r.policy.allows(name) {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.entries[name]
	if !ok {
		return nil, false
	}
	return entry.tool, true
}

// ListEnabled returns every reachable tool, sorted by name for deterministic
// schema export order.
func (r *Registry) ListEnabled() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, 0, len(r.entries))
	for name, entry := range r.entries {
		if r.policy.allows(name) {
			out = append(out, entry.tool)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Unregister removes name from the registry, if present.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, name)
}

// Clear removes every tool registered under sourceTag, or every tool if
// sourceTag is empty.
func (r *Registry) Clear(sourceTag string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if sourceTag == "" {
		r.entries = make(map[string]registryEntry)
		return
	}
	for name, entry := range r.entries {
		if entry.source == sourceTag {
			delete(r.entries, name)
		}
	}
}
