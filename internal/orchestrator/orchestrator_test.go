package orchestrator

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/vibeorchestrator/engine/internal/executor"
	"github.com/vibeorchestrator/engine/internal/gitutil"
	"github.com/vibeorchestrator/engine/internal/model"
	"github.com/vibeorchestrator/engine/internal/store"
	"github.com/vibeorchestrator/engine/internal/supervisor"
	"github.com/vibeorchestrator/engine/internal/worktree"
)

func initRepo(t *testing.T, dir string) {
	t.Helper()
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		out, err := cmd.CombinedOutput()
		require.NoError(t, err, string(out))
	}
	run("init", "-b", "main")
	run("config", "user.email", "test@example.com")
	run("config", "user.name", "test")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("hello\n"), 0o644))
	run("add", "-A")
	run("commit", "-m", "initial")
}

type testEnv struct {
	repo  string
	base  string
	orch  *Orchestrator
	store *store.Memory
}

func newTestEnv(t *testing.T, autoCommit bool) *testEnv {
	t.Helper()
	repo := t.TempDir()
	initRepo(t, repo)

	base := t.TempDir()
	git := gitutil.New()
	wt := worktree.NewManager(git, base, zerolog.Nop())
	sup := supervisor.New(zerolog.Nop())
	reg := executor.NewRegistry()
	repoStore := store.NewMemory()

	orch := New(repoStore, wt, git, sup, reg, nil, autoCommit, zerolog.Nop())
	return &testEnv{repo: repo, base: base, orch: orch, store: repoStore}
}

func (e *testEnv) seedTask(t *testing.T) (*model.Project, *model.Task) {
	t.Helper()
	ctx := context.Background()
	project := &model.Project{ID: "proj-1", Name: "proj", RepoPath: e.repo}
	require.NoError(t, e.store.PutProject(ctx, project))
	task := &model.Task{ID: "task-1", ProjectID: project.ID, Title: "do thing", Status: model.TaskInProgress}
	require.NoError(t, e.store.PutTask(ctx, task))
	return project, task
}

func scriptAction(script string, next *model.ExecutorAction) *model.ExecutorAction {
	return &model.ExecutorAction{
		Type:   model.ActionScriptRequest,
		Script: &model.ScriptRequest{Script: script, Context: model.ScriptContextSetup},
		Next:   next,
	}
}

func TestStartAttemptRunsChainAndAutoCommits(t *testing.T) {
	env := newTestEnv(t, true)
	_, task := env.seedTask(t)

	ctx := context.Background()
	attempt := &model.TaskAttempt{
		ID:           "attempt-1",
		TaskID:       task.ID,
		Branch:       "feature-1",
		TargetBranch: "main",
		ContainerRef: filepath.Join(env.base, "attempt-1"),
	}
	require.NoError(t, env.store.PutTaskAttempt(ctx, attempt))

	chain := scriptAction("echo changed > new_file.txt", nil)
	// Auto-commit only follows a CodingAgent or CleanupScript process.
	chain.Script.Context = model.ScriptContextCleanup
	require.NoError(t, env.orch.StartAttempt(ctx, attempt, chain))

	procs, err := env.store.ListExecutionProcesses(ctx, attempt.ID, false)
	require.NoError(t, err)
	require.Len(t, procs, 1)
	require.Equal(t, model.ProcessCompleted, procs[0].Status)

	clean, err := env.orch.git.IsClean(ctx, attempt.ContainerRef)
	require.NoError(t, err)
	require.True(t, clean, "auto-commit should have staged and committed the new file")

	updatedTask, err := env.store.GetTask(ctx, task.ID)
	require.NoError(t, err)
	require.Equal(t, model.TaskInReview, updatedTask.Status)
}

func TestStartAttemptFinalizesOnFailure(t *testing.T) {
	env := newTestEnv(t, true)
	_, task := env.seedTask(t)

	ctx := context.Background()
	attempt := &model.TaskAttempt{
		ID:           "attempt-2",
		TaskID:       task.ID,
		Branch:       "feature-2",
		TargetBranch: "main",
		ContainerRef: filepath.Join(env.base, "attempt-2"),
	}
	require.NoError(t, env.store.PutTaskAttempt(ctx, attempt))

	chain := scriptAction("exit 1", scriptAction("echo should-not-run > nope.txt", nil))
	require.NoError(t, env.orch.StartAttempt(ctx, attempt, chain))

	procs, err := env.store.ListExecutionProcesses(ctx, attempt.ID, false)
	require.NoError(t, err)
	require.Len(t, procs, 1, "the second node must not run after a failure")
	require.Equal(t, model.ProcessFailed, procs[0].Status)

	updatedTask, err := env.store.GetTask(ctx, task.ID)
	require.NoError(t, err)
	require.Equal(t, model.TaskInReview, updatedTask.Status)
}

func TestRestoreSoftDropsNewerProcesses(t *testing.T) {
	env := newTestEnv(t, true)
	_, task := env.seedTask(t)

	ctx := context.Background()
	attempt := &model.TaskAttempt{
		ID:           "attempt-3",
		TaskID:       task.ID,
		Branch:       "feature-3",
		TargetBranch: "main",
		ContainerRef: filepath.Join(env.base, "attempt-3"),
	}
	require.NoError(t, env.store.PutTaskAttempt(ctx, attempt))

	require.NoError(t, env.orch.StartAttempt(ctx, attempt, scriptAction("echo one > one.txt", nil)))
	require.NoError(t, env.orch.StartAttempt(ctx, attempt, scriptAction("echo two > two.txt", nil)))

	procs, err := env.store.ListExecutionProcesses(ctx, attempt.ID, false)
	require.NoError(t, err)
	require.Len(t, procs, 2)
	boundary := procs[1]

	err = env.orch.Restore(ctx, attempt, boundary.ID, RetryOptions{}, scriptAction("echo three > three.txt", nil))
	require.NoError(t, err)

	withDropped, err := env.store.ListExecutionProcesses(ctx, attempt.ID, true)
	require.NoError(t, err)
	var dropped, kept int
	for _, p := range withDropped {
		if p.ID == procs[0].ID {
			require.False(t, p.Dropped, "process before the boundary must stay")
			kept++
		}
		if p.ID == boundary.ID {
			require.True(t, p.Dropped, "the boundary itself is soft-dropped")
			dropped++
		}
	}
	require.Equal(t, 1, kept)
	require.Equal(t, 1, dropped)
}

func TestRestoreRejectsBoundaryFromAnotherAttempt(t *testing.T) {
	env := newTestEnv(t, true)
	_, task := env.seedTask(t)

	ctx := context.Background()
	a1 := &model.TaskAttempt{ID: "a1", TaskID: task.ID, Branch: "b1", TargetBranch: "main", ContainerRef: filepath.Join(env.base, "a1")}
	a2 := &model.TaskAttempt{ID: "a2", TaskID: task.ID, Branch: "b2", TargetBranch: "main", ContainerRef: filepath.Join(env.base, "a2")}
	require.NoError(t, env.store.PutTaskAttempt(ctx, a1))
	require.NoError(t, env.store.PutTaskAttempt(ctx, a2))

	require.NoError(t, env.orch.StartAttempt(ctx, a1, scriptAction("echo one > one.txt", nil)))
	procs, err := env.store.ListExecutionProcesses(ctx, a1.ID, false)
	require.NoError(t, err)

	err = env.orch.Restore(ctx, a2, procs[0].ID, RetryOptions{}, scriptAction("echo x", nil))
	require.ErrorIs(t, err, ErrRetryInvalid)
}

func TestMergeDirectSetsTaskDone(t *testing.T) {
	env := newTestEnv(t, true)
	_, task := env.seedTask(t)

	ctx := context.Background()
	attempt := &model.TaskAttempt{
		ID:           "attempt-4",
		TaskID:       task.ID,
		Branch:       "feature-4",
		TargetBranch: "main",
		ContainerRef: filepath.Join(env.base, "attempt-4"),
	}
	require.NoError(t, env.store.PutTaskAttempt(ctx, attempt))
	require.NoError(t, env.orch.StartAttempt(ctx, attempt, scriptAction("echo change > f.txt", nil)))

	mg, err := env.orch.MergeDirect(ctx, attempt, "add f.txt", "adds a file")
	require.NoError(t, err)
	require.Equal(t, model.MergeDirect, mg.Kind)
	require.NotEmpty(t, mg.Commit)

	updatedTask, err := env.store.GetTask(ctx, task.ID)
	require.NoError(t, err)
	require.Equal(t, model.TaskDone, updatedTask.Status)
}
