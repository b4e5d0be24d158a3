// Package script implements executor.Profile for plain ScriptRequest
// steps (setup/cleanup/dev-server scripts): the simplest profile, with
// no Normalizer since a script's stdout/stderr are already the log.
package script

import (
	"fmt"

	"github.com/vibeorchestrator/engine/internal/model"
	"github.com/vibeorchestrator/engine/internal/supervisor"
)

// Name is the value callers register this Profile under.
const Name = "script"

// Profile runs a ScriptRequest through the user's shell.
type Profile struct {
	// Shell is the interpreter invoked with "-c <script>"; defaults to
	// "sh" when empty. Language is informational only today (the
	// teacher's script runner likewise shells out regardless of the
	// declared language, trusting the script body itself).
	Shell string
}

func (p Profile) shell() string {
	if p.Shell != "" {
		return p.Shell
	}
	return "sh"
}

// Build turns action.Script into a Spawnable. Returns an error if action
// is not a ScriptRequest.
func (p Profile) Build(action *model.ExecutorAction, worktreePath string) (supervisor.Spawnable, supervisor.Normalizer, error) {
	if action.Type != model.ActionScriptRequest || action.Script == nil {
		return supervisor.Spawnable{}, nil, fmt.Errorf("script: action is not a script_request")
	}
	return supervisor.Spawnable{
		Command: p.shell(),
		Args:    []string{"-c", action.Script.Script},
		Dir:     worktreePath,
	}, nil, nil
}

// Resume is a no-op for scripts: there is no session to continue, so it
// just delegates to Build.
func (p Profile) Resume(action *model.ExecutorAction, worktreePath, sessionID string) (supervisor.Spawnable, supervisor.Normalizer, error) {
	return p.Build(action, worktreePath)
}
