package orchestrator

import (
	"context"
	"fmt"

	"github.com/vibeorchestrator/engine/internal/model"
)

// RetryOptions controls a Restore per spec.md §4.F's "Retry / restore".
type RetryOptions struct {
	ForceWhenDirty  bool
	PerformGitReset bool
}

// Restore moves attempt backward in history to boundaryProcessID: it
// resolves the target commit, optionally resets the worktree to it,
// stops any running processes, soft-drops the boundary and everything
// newer than it, then spawns next as the follow-up action.
func (o *Orchestrator) Restore(ctx context.Context, attempt *model.TaskAttempt, boundaryProcessID string, opts RetryOptions, next *model.ExecutorAction) error {
	boundary, err := o.repo.GetExecutionProcess(ctx, boundaryProcessID)
	if err != nil {
		return err
	}
	if boundary.TaskAttemptID != attempt.ID {
		return ErrRetryInvalid
	}

	procs, err := o.repo.ListExecutionProcesses(ctx, attempt.ID, true)
	if err != nil {
		return err
	}

	targetOID := boundary.BeforeHeadCommit
	if targetOID == "" {
		targetOID = o.priorAfterHead(procs, boundary)
	}

	worktreePath, err := o.readyWorktree(ctx, attempt)
	if err != nil {
		return err
	}

	if opts.PerformGitReset && targetOID != "" {
		clean, err := o.git.IsClean(ctx, worktreePath)
		if err != nil {
			return err
		}
		if !clean && !opts.ForceWhenDirty {
			return ErrWorktreeDirty
		}
		if err := o.git.Reset(ctx, worktreePath, targetOID); err != nil {
			return fmt.Errorf("reset worktree to %s: %w", targetOID, err)
		}
	}

	o.stopRunning(ctx, attempt.ID)

	for _, p := range procs {
		if p.Dropped {
			continue
		}
		if p.ID == boundary.ID || p.CreatedAt.After(boundary.CreatedAt) {
			if err := o.repo.SetExecutionProcessDropped(ctx, p.ID, true); err != nil {
				return err
			}
		}
	}

	return o.StartAttempt(ctx, attempt, next)
}

// priorAfterHead finds the AfterHeadCommit of the process immediately
// preceding boundary by created_at, among boundary's siblings.
func (o *Orchestrator) priorAfterHead(procs []*model.ExecutionProcess, boundary *model.ExecutionProcess) string {
	var prior *model.ExecutionProcess
	for _, p := range procs {
		if p.ID == boundary.ID {
			continue
		}
		if !p.CreatedAt.Before(boundary.CreatedAt) {
			continue
		}
		if prior == nil || p.CreatedAt.After(prior.CreatedAt) {
			prior = p
		}
	}
	if prior == nil {
		return ""
	}
	return prior.AfterHeadCommit
}

// stopRunning stops every process this Orchestrator has a live child
// for within attemptID, preemptively and idempotently per spec.md §5's
// cancellation rule.
func (o *Orchestrator) stopRunning(ctx context.Context, attemptID string) {
	o.mu.Lock()
	var toStop []string
	for id := range o.children {
		toStop = append(toStop, id)
	}
	o.mu.Unlock()

	for _, id := range toStop {
		proc, err := o.repo.GetExecutionProcess(ctx, id)
		if err != nil || proc.TaskAttemptID != attemptID {
			continue
		}
		if child, ok := o.Child(id); ok {
			child.Stop()
		}
	}
}
