package orchestrator

import "errors"

// errNoExecutorProfile is returned when finalize needs an
// ExecutorProfileID for a queued follow-up but the attempt has no prior
// CodingAgent process to read one from.
var errNoExecutorProfile = errors.New("orchestrator: attempt has no recorded executor profile")

// ErrRetryInvalid is returned when a retry/restore boundary does not
// belong to the attempt it was issued against, per spec.md §7's
// "State-machine invariant" error kind.
var ErrRetryInvalid = errors.New("orchestrator: retry boundary does not belong to this attempt")

// ErrWorktreeDirty is returned by Restore when perform_git_reset is
// requested against a dirty worktree without force_when_dirty.
var ErrWorktreeDirty = errors.New("orchestrator: worktree has uncommitted changes, refuse reset without force")
