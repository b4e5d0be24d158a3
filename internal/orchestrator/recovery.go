package orchestrator

import (
	"context"

	"github.com/vibeorchestrator/engine/internal/model"
)

// Recover runs the two one-shot startup recoveries from spec.md §4.F:
// orphaned Running rows with no live child are marked Failed (moving
// their task to InReview), and rows missing before_head_commit are
// backfilled from the prior process's after_head_commit (or the target
// branch's OID, lacking that).
func (o *Orchestrator) Recover(ctx context.Context) error {
	if err := o.recoverOrphans(ctx); err != nil {
		return err
	}
	return o.backfillBeforeHeads(ctx)
}

func (o *Orchestrator) recoverOrphans(ctx context.Context) error {
	running, err := o.repo.ListRunningExecutionProcesses(ctx)
	if err != nil {
		return err
	}
	for _, proc := range running {
		if _, ok := o.Child(proc.ID); ok {
			continue // a live child handle means this is not orphaned
		}

		attempt, err := o.repo.GetTaskAttempt(ctx, proc.TaskAttemptID)
		if err != nil {
			o.log.Warn().Err(err).Str("process_id", proc.ID).Msg("recover orphan: load attempt")
			continue
		}

		if worktreePath, werr := o.readyWorktree(ctx, attempt); werr == nil {
			if after, herr := o.git.RevParse(ctx, worktreePath, "HEAD"); herr == nil {
				_ = o.repo.UpdateExecutionProcessHeads(ctx, proc.ID, proc.BeforeHeadCommit, after)
			}
		}

		if err := o.repo.UpdateExecutionProcessStatus(ctx, proc.ID, model.ProcessFailed, nil); err != nil {
			return err
		}

		if proc.RunReason == model.RunCodingAgent || proc.RunReason == model.RunSetupScript || proc.RunReason == model.RunCleanupScript {
			if task, terr := o.repo.GetTask(ctx, attempt.TaskID); terr == nil {
				_ = o.repo.UpdateTaskStatus(ctx, task.ID, model.TaskInReview)
			}
		}
	}
	return nil
}

func (o *Orchestrator) backfillBeforeHeads(ctx context.Context) error {
	missing, err := o.repo.ListExecutionProcessesMissingBeforeHead(ctx)
	if err != nil {
		return err
	}
	for _, proc := range missing {
		before, err := o.resolveBackfillBefore(ctx, proc)
		if err != nil || before == "" {
			continue
		}
		if err := o.repo.UpdateExecutionProcessHeads(ctx, proc.ID, before, proc.AfterHeadCommit); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) resolveBackfillBefore(ctx context.Context, proc *model.ExecutionProcess) (string, error) {
	siblings, err := o.repo.ListExecutionProcesses(ctx, proc.TaskAttemptID, true)
	if err != nil {
		return "", err
	}
	if before := o.priorAfterHead(siblings, proc); before != "" {
		return before, nil
	}

	attempt, err := o.repo.GetTaskAttempt(ctx, proc.TaskAttemptID)
	if err != nil {
		return "", err
	}
	task, err := o.repo.GetTask(ctx, attempt.TaskID)
	if err != nil {
		return "", err
	}
	project, err := o.repo.GetProject(ctx, task.ProjectID)
	if err != nil {
		return "", err
	}
	return o.git.RevParse(ctx, project.RepoPath, attempt.TargetBranch)
}
