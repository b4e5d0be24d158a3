package orchestrator

import (
	"context"
	"fmt"

	"github.com/vibeorchestrator/engine/internal/model"
)

// MergeDirect merges attempt's branch into its target branch in the
// source repo, using spec.md §4.F's two-line message convention, and
// persists a Merge row. It kills any running dev servers for the
// attempt (cleanup_dev_servers) and moves the task to Done.
func (o *Orchestrator) MergeDirect(ctx context.Context, attempt *model.TaskAttempt, title, description string) (*model.Merge, error) {
	task, err := o.repo.GetTask(ctx, attempt.TaskID)
	if err != nil {
		return nil, err
	}
	project, err := o.repo.GetProject(ctx, task.ProjectID)
	if err != nil {
		return nil, err
	}

	message := fmt.Sprintf("%s (vibe-kanban %s)\n\n%s", title, shortID(attempt.ID), description)
	commit, err := o.git.Merge(ctx, project.RepoPath, attempt.Branch, message)
	if err != nil {
		return nil, err
	}

	mg := &model.Merge{
		TaskAttemptID: attempt.ID,
		Kind:          model.MergeDirect,
		TargetBranch:  attempt.TargetBranch,
		Commit:        commit,
		CreatedAt:     now(),
	}
	if err := o.repo.PutMerge(ctx, mg); err != nil {
		return nil, err
	}
	if err := o.repo.UpdateTaskStatus(ctx, task.ID, model.TaskDone); err != nil {
		return nil, err
	}
	o.killDevServers(attempt.ID)
	return mg, nil
}

func (o *Orchestrator) killDevServers(attemptID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for id, child := range o.children {
		proc, err := o.repo.GetExecutionProcess(context.Background(), id)
		if err != nil || proc.TaskAttemptID != attemptID || proc.RunReason != model.RunDevServer {
			continue
		}
		child.Stop()
	}
}

// GitHubAdapter is the external PR-creation boundary; production wiring
// shells out to the gh CLI, kept outside this package per spec.md §3's
// Non-goal on PR-monitor polling implementation detail.
type GitHubAdapter interface {
	CreatePR(ctx context.Context, repoPath, head, base, title, body string) (number int, url string, err error)
}

// PushToolingError classifies the missing-tooling cases spec.md §4.F's
// "Push / PR" calls for.
type PushToolingError string

func (e PushToolingError) Error() string { return string(e) }

const (
	ErrGhCliNotInstalled  PushToolingError = "gh CLI not installed"
	ErrGhCliNotLoggedIn   PushToolingError = "gh CLI not logged in"
	ErrGitCliNotInstalled PushToolingError = "git CLI not installed"
	ErrGitCliNotLoggedIn  PushToolingError = "git CLI not authenticated"
)

// CreatePR pushes attempt's branch and opens a pull request via gh,
// persisting a Merge(Pr{...}) row. Push rejects surface
// gitutil.ErrForcePushRequired; missing target-branch-on-remote is
// reported directly rather than guessed at.
func (o *Orchestrator) CreatePR(ctx context.Context, attempt *model.TaskAttempt, gh GitHubAdapter, title, body string) (*model.Merge, error) {
	task, err := o.repo.GetTask(ctx, attempt.TaskID)
	if err != nil {
		return nil, err
	}
	project, err := o.repo.GetProject(ctx, task.ProjectID)
	if err != nil {
		return nil, err
	}

	exists, err := o.git.RemoteBranchExists(ctx, project.RepoPath, attempt.TargetBranch)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("orchestrator: target branch %q does not exist on remote", attempt.TargetBranch)
	}

	if err := o.git.Push(ctx, project.RepoPath, attempt.Branch); err != nil {
		return nil, err
	}

	number, url, err := gh.CreatePR(ctx, project.RepoPath, attempt.Branch, attempt.TargetBranch, title, body)
	if err != nil {
		return nil, err
	}

	mg := &model.Merge{
		TaskAttemptID: attempt.ID,
		Kind:          model.MergePR,
		TargetBranch:  attempt.TargetBranch,
		PRNumber:      number,
		PRURL:         url,
		PRStatus:      model.PROpen,
		CreatedAt:     now(),
	}
	if err := o.repo.PutMerge(ctx, mg); err != nil {
		return nil, err
	}
	return mg, nil
}

func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
