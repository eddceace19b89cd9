// Package confirm implements the confirmation UI callback contract from
// spec.md §4.6: the scheduler surfaces tools.ConfirmationDetails and awaits
// an Outcome through a caller-supplied callback. Always-allow memory lives
// here, not in the scheduler, per spec.md §9's design note.
package confirm

import (
	"context"
	"fmt"
	"strings"

	"github.com/fletchway/agentcore/internal/tools"
)

// Outcome is the user's decision for one confirmation prompt.
type Outcome string

const (
	OutcomeProceedOnce        Outcome = "proceed_once"
	OutcomeProceedAlwaysTool  Outcome = "proceed_always_tool"
	OutcomeCancel             Outcome = "cancel"
)

// Callback is the caller-supplied function the scheduler awaits for each
// call that requires confirmation. It must be side-effect-free with respect
// to the scheduler: only its return value is consulted.
type Callback func(ctx context.Context, callID string, details tools.ConfirmationDetails) (Outcome, error)

// AlwaysAllowStore remembers per-session "always allow" decisions, keyed by
// a tool-specific identity string such as "shell:rm" or "edit:main.go".
// Implementations are owned by the confirmation UI layer; the scheduler
// never reads or writes one directly.
type AlwaysAllowStore interface {
	IsAllowed(ctx context.Context, key string) (bool, error)
	Allow(ctx context.Context, key string) error
}

// dangerousRoots lists shell root commands that must always prompt,
// overriding any always-allow entry, per spec.md §4.6.
var dangerousRoots = map[string]bool{
	"rm": true, "rmdir": true, "dd": true, "sudo": true, "su": true,
	"shutdown": true, "reboot": true, "halt": true, "kill": true,
	"killall": true, "mkfs": true, "format": true, "fdisk": true,
}

// IdentityKey builds the always-allow lookup key for a ConfirmationDetails
// value: "shell:<root_command>" for shell confirmations, "edit:<file_name>"
// for file edits, or "<type>:<description>" for generic confirmations.
func IdentityKey(d tools.ConfirmationDetails) string {
	switch d.Type {
	case "execute_shell":
		return "shell:" + d.RootCommand
	case "edit_file":
		name := d.FileName
		if name == "" {
			name = d.FilePath
		}
		return "edit:" + name
	default:
		return d.Type + ":" + d.Description
	}
}

// IsDangerous reports whether d names a shell command whose root token is on
// the dangerous-command list, and therefore must be confirmed even when an
// always-allow entry would otherwise apply.
func IsDangerous(d tools.ConfirmationDetails) bool {
	if d.Type != "execute_shell" {
		return false
	}
	root := strings.TrimSpace(d.RootCommand)
	if root == "" {
		root = firstToken(d.Command)
	}
	if dangerousRoots[root] {
		return true
	}
	return strings.Contains(d.Command, "> /dev/") || strings.Contains(d.Command, ">/dev/")
}

func firstToken(command string) string {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// Policy wraps a user-facing callback with the always-allow and
// dangerous-command rules from spec.md §4.6, presenting a single Decide
// entry point the scheduler can call.
type Policy struct {
	Ask   Callback
	Store AlwaysAllowStore
}

// Decide resolves the outcome for one confirmation: it consults the
// always-allow store unless the details are flagged dangerous, in which
// case the user is always asked regardless of a prior always-allow
// decision.
func (p Policy) Decide(ctx context.Context, callID string, details tools.ConfirmationDetails) (Outcome, error) {
	if p.Store != nil && !IsDangerous(details) {
		allowed, err := p.Store.IsAllowed(ctx, IdentityKey(details))
		if err != nil {
			return "", fmt.Errorf("check always-allow for %q: %w", callID, err)
		}
		if allowed {
			return OutcomeProceedOnce, nil
		}
	}
	if p.Ask == nil {
		return "", fmt.Errorf("no confirmation callback configured for call %q", callID)
	}
	outcome, err := p.Ask(ctx, callID, details)
	if err != nil {
		return "", err
	}
	if outcome == OutcomeProceedAlwaysTool && p.Store != nil {
		if err := p.Store.Allow(ctx, IdentityKey(details)); err != nil {
			return "", fmt.Errorf("record always-allow for %q: %w", callID, err)
		}
	}
	return outcome, nil
}
