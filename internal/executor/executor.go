// Package executor defines the capability every executor profile
// implements (spec.md §4.E's "executor" side of the Spawnable/Normalizer
// split) and a registry keyed by ExecutorProfileID.Executor, mirroring
// original_source's crates/executors/src/profile dispatch-by-name.
package executor

import (
	"fmt"

	"github.com/vibeorchestrator/engine/internal/model"
	"github.com/vibeorchestrator/engine/internal/supervisor"
)

// Profile turns one node of an ExecutorAction chain into something the
// supervisor can spawn, plus (optionally) a Normalizer that translates
// the child's raw stdout/stderr into msgstore JsonPatch/SessionId/Usage
// messages. Normalizer is nil for profiles whose raw output is already
// the desired log shape (e.g. plain scripts).
type Profile interface {
	// Build returns the Spawnable for action, resolved against
	// worktreePath, plus its Normalizer (nil if none).
	Build(action *model.ExecutorAction, worktreePath string) (supervisor.Spawnable, supervisor.Normalizer, error)

	// Resume adapts a CodingAgentFollowUpRequest so the child process
	// continues sessionID's conversation rather than starting fresh.
	// Profiles with no notion of session resumption may return Build's
	// result unmodified.
	Resume(action *model.ExecutorAction, worktreePath, sessionID string) (supervisor.Spawnable, supervisor.Normalizer, error)
}

// ErrUnknownExecutor is returned by Registry.Lookup for an
// ExecutorProfileID.Executor with no registered Profile.
type ErrUnknownExecutor struct {
	Executor string
}

func (e *ErrUnknownExecutor) Error() string {
	return fmt.Sprintf("executor: no profile registered for %q", e.Executor)
}

// Registry resolves an ExecutorProfileID to the Profile implementation
// that knows how to run it.
type Registry struct {
	profiles map[string]Profile
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{profiles: make(map[string]Profile)}
}

// Register associates executor (e.g. "codex", "script") with a Profile.
// Re-registering a name overwrites the previous entry.
func (r *Registry) Register(executor string, p Profile) {
	r.profiles[executor] = p
}

// Lookup resolves profileID.Executor, or ErrUnknownExecutor.
func (r *Registry) Lookup(profileID model.ExecutorProfileID) (Profile, error) {
	p, ok := r.profiles[profileID.Executor]
	if !ok {
		return nil, &ErrUnknownExecutor{Executor: profileID.Executor}
	}
	return p, nil
}

// ProfileIDOf extracts the ExecutorProfileID driving action, if the
// action carries a coding-agent request; the zero value and false
// otherwise (e.g. for a ScriptRequest, which has no profile).
func ProfileIDOf(action *model.ExecutorAction) (model.ExecutorProfileID, bool) {
	switch action.Type {
	case model.ActionCodingAgentInitialRequest:
		return action.CodingAgentInitial.ExecutorProfileID, true
	case model.ActionCodingAgentFollowUpRequest:
		return action.CodingAgentFollowUp.ExecutorProfileID, true
	default:
		return model.ExecutorProfileID{}, false
	}
}
