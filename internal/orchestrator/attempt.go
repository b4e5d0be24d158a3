package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/vibeorchestrator/engine/internal/executor"
	"github.com/vibeorchestrator/engine/internal/executor/script"
	"github.com/vibeorchestrator/engine/internal/model"
	"github.com/vibeorchestrator/engine/internal/msgstore"
	"github.com/vibeorchestrator/engine/internal/supervisor"
)

// StartAttempt drives an attempt from idle through to finalized for the
// given action chain (spec.md §4.F's state diagram): it ensures the
// worktree, then runs runChain over the chain's nodes in order.
func (o *Orchestrator) StartAttempt(ctx context.Context, attempt *model.TaskAttempt, chain *model.ExecutorAction) error {
	worktreePath, err := o.readyWorktree(ctx, attempt)
	if err != nil {
		return fmt.Errorf("ready worktree: %w", err)
	}
	o.runChain(ctx, attempt, worktreePath, chain)
	return nil
}

// readyWorktree implements "idle --create_worktree--> ready": for a
// regular attempt it ensures the branch's worktree exists under the
// managed base dir, first creating the branch off attempt.TargetBranch
// when it does not exist yet; an orchestrator attempt runs directly
// against the project repo (attempt.ContainerRef), no worktree.
func (o *Orchestrator) readyWorktree(ctx context.Context, attempt *model.TaskAttempt) (string, error) {
	if attempt.IsOrchestrator {
		return attempt.ContainerRef, nil
	}
	task, err := o.repo.GetTask(ctx, attempt.TaskID)
	if err != nil {
		return "", err
	}
	project, err := o.repo.GetProject(ctx, task.ProjectID)
	if err != nil {
		return "", err
	}
	_, branchErr := o.git.RevParse(ctx, project.RepoPath, "refs/heads/"+attempt.Branch)
	createBranch := branchErr != nil
	if err := o.worktrees.Create(ctx, project.RepoPath, attempt.Branch, attempt.ContainerRef, attempt.TargetBranch, createBranch); err != nil {
		return "", err
	}
	return attempt.ContainerRef, nil
}

// runChain walks action and its Next chain, spawning one
// ExecutionProcess per node until the chain is exhausted or a process
// fails/is killed, then finalizes the attempt.
func (o *Orchestrator) runChain(ctx context.Context, attempt *model.TaskAttempt, worktreePath string, action *model.ExecutorAction) {
	for node := action; node != nil; {
		result, proc := o.runProcess(ctx, attempt, worktreePath, node)
		if result.Status != model.ProcessCompleted {
			o.finalize(ctx, attempt, false)
			return
		}

		committed := o.maybeAutoCommit(ctx, attempt, worktreePath, proc)
		if node.Next == nil {
			break
		}
		if node.Type == model.ActionCodingAgentInitialRequest || node.Type == model.ActionCodingAgentFollowUpRequest {
			if !o.autoCommit && !committed {
				clean, err := o.git.IsClean(ctx, worktreePath)
				if err == nil && clean {
					break // skip cleanup, finalize directly
				}
			}
		}
		node = node.Next
	}
	o.finalize(ctx, attempt, true)
}

// runProcess spawns one ExecutorAction node as a tracked
// ExecutionProcess and blocks until the supervisor reconciles its exit.
func (o *Orchestrator) runProcess(ctx context.Context, attempt *model.TaskAttempt, worktreePath string, node *model.ExecutorAction) (supervisor.Result, *model.ExecutionProcess) {
	proc := &model.ExecutionProcess{
		ID:            newID(),
		TaskAttemptID: attempt.ID,
		RunReason:     runReasonFor(node),
		Action:        node,
		Status:        model.ProcessRunning,
		StartedAt:     now(),
		CreatedAt:     now(),
	}
	if before, err := o.git.RevParse(ctx, worktreePath, "HEAD"); err == nil {
		proc.BeforeHeadCommit = before
	}

	if err := o.repo.CreateExecutionProcess(ctx, proc, nil); err != nil {
		o.log.Error().Err(err).Msg("create execution process")
		return supervisor.Result{Status: model.ProcessFailed}, proc
	}

	spawnable, norm, err := o.resolveSpawnable(ctx, attempt, node, worktreePath)
	if err != nil {
		o.log.Error().Err(err).Str("process_id", proc.ID).Msg("resolve spawnable")
		_ = o.repo.UpdateExecutionProcessStatus(ctx, proc.ID, model.ProcessFailed, nil)
		return supervisor.Result{Status: model.ProcessFailed}, proc
	}

	st := msgstore.New()
	child, err := o.sup.Spawn(ctx, spawnable, st, norm, worktreePath)
	if err != nil {
		o.log.Error().Err(err).Str("process_id", proc.ID).Msg("spawn")
		_ = o.repo.UpdateExecutionProcessStatus(ctx, proc.ID, model.ProcessFailed, nil)
		return supervisor.Result{Status: model.ProcessFailed}, proc
	}

	o.trackChild(proc.ID, child, st)
	if o.logs != nil {
		go o.logs.Forward(proc.ID, st)
	}

	result := o.sup.Reconcile(ctx, child)
	o.untrackChild(proc.ID)

	after, _ := o.git.RevParse(ctx, worktreePath, "HEAD")
	_ = o.repo.UpdateExecutionProcessHeads(ctx, proc.ID, proc.BeforeHeadCommit, after)
	_ = o.repo.UpdateExecutionProcessStatus(ctx, proc.ID, result.Status, result.ExitCode)

	proc.Status = result.Status
	proc.AfterHeadCommit = after
	return result, proc
}

func (o *Orchestrator) resolveSpawnable(ctx context.Context, attempt *model.TaskAttempt, node *model.ExecutorAction, worktreePath string) (supervisor.Spawnable, supervisor.Normalizer, error) {
	if node.Type == model.ActionScriptRequest {
		return script.Profile{}.Build(node, worktreePath)
	}

	profileID, ok := executor.ProfileIDOf(node)
	if !ok {
		return supervisor.Spawnable{}, nil, fmt.Errorf("orchestrator: action %s carries no executor profile", node.Type)
	}
	profile, err := o.registry.Lookup(profileID)
	if err != nil {
		return supervisor.Spawnable{}, nil, err
	}
	if node.Type == model.ActionCodingAgentFollowUpRequest {
		return profile.Resume(node, worktreePath, node.CodingAgentFollowUp.SessionID)
	}
	return profile.Build(node, worktreePath)
}

// maybeAutoCommit implements spec.md §4.F's "Auto-commit" rule: after a
// successful CodingAgent or CleanupScript, stage-all and commit if
// enabled. Returns whether a commit was made.
func (o *Orchestrator) maybeAutoCommit(ctx context.Context, attempt *model.TaskAttempt, worktreePath string, proc *model.ExecutionProcess) bool {
	if !o.autoCommit {
		return false
	}
	if proc.RunReason != model.RunCodingAgent && proc.RunReason != model.RunCleanupScript {
		return false
	}
	clean, err := o.git.IsClean(ctx, worktreePath)
	if err != nil || clean {
		return false
	}
	if err := o.git.StageAll(ctx, worktreePath); err != nil {
		o.log.Warn().Err(err).Msg("stage all for auto-commit")
		return false
	}
	message := o.commitMessage(ctx, attempt, proc)
	if _, err := o.git.Commit(ctx, worktreePath, message); err != nil {
		o.log.Warn().Err(err).Msg("auto-commit")
		return false
	}
	return true
}

func (o *Orchestrator) commitMessage(ctx context.Context, attempt *model.TaskAttempt, proc *model.ExecutionProcess) string {
	if session, err := o.repo.GetExecutorSession(ctx, proc.ID); err == nil && session != nil && session.Summary != "" {
		return session.Summary
	}
	return fmt.Sprintf("Commit changes from coding agent for attempt %s", attempt.ID)
}

func runReasonFor(node *model.ExecutorAction) model.RunReason {
	switch node.Type {
	case model.ActionScriptRequest:
		switch node.Script.Context {
		case model.ScriptContextCleanup:
			return model.RunCleanupScript
		case model.ScriptContextDev:
			return model.RunDevServer
		default:
			return model.RunSetupScript
		}
	default:
		return model.RunCodingAgent
	}
}

func now() time.Time { return time.Now() }
