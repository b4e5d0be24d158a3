package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/vibeorchestrator/engine/internal/executor"
	"github.com/vibeorchestrator/engine/internal/gitutil"
	"github.com/vibeorchestrator/engine/internal/model"
	"github.com/vibeorchestrator/engine/internal/orchestrator"
	"github.com/vibeorchestrator/engine/internal/store"
	"github.com/vibeorchestrator/engine/internal/supervisor"
	"github.com/vibeorchestrator/engine/internal/worktree"
)

func initTestRepo(t *testing.T, dir string) {
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

func newTestServer(t *testing.T) (*Server, *store.Memory, *model.TaskAttempt) {
	t.Helper()
	repo := t.TempDir()
	initTestRepo(t, repo)
	base := t.TempDir()

	git := gitutil.New()
	wt := worktree.NewManager(git, base, zerolog.Nop())
	sup := supervisor.New(zerolog.Nop())
	reg := executor.NewRegistry()
	repoStore := store.NewMemory()

	orch := orchestrator.New(repoStore, wt, git, sup, reg, nil, true, zerolog.Nop())

	project := &model.Project{ID: "proj-1", Name: "proj", RepoPath: repo}
	require.NoError(t, repoStore.PutProject(t.Context(), project))
	task := &model.Task{ID: "task-1", ProjectID: project.ID, Title: "do thing", Status: model.TaskInProgress}
	require.NoError(t, repoStore.PutTask(t.Context(), task))
	attempt := &model.TaskAttempt{
		ID:           "attempt-1",
		TaskID:       task.ID,
		Branch:       "feature-1",
		TargetBranch: "main",
		ContainerRef: filepath.Join(base, "attempt-1"),
	}
	require.NoError(t, repoStore.PutTaskAttempt(t.Context(), attempt))

	srv := NewServer(repoStore, git, orch, Config{}, zerolog.Nop())
	return srv, repoStore, attempt
}

func TestHandleHealth(t *testing.T) {
	srv, _, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleGetAttemptNotFound(t *testing.T) {
	srv, _, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/attempts/does-not-exist", nil)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleGetAttemptFound(t *testing.T) {
	srv, _, attempt := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/attempts/"+attempt.ID, nil)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var got model.TaskAttempt
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, attempt.ID, got.ID)
}

func TestHandleStartAttemptRejectsMissingAction(t *testing.T) {
	srv, _, attempt := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/attempts/"+attempt.ID+"/start", bytes.NewBufferString(`{}`))
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleStartAttemptAccepted(t *testing.T) {
	srv, repoStore, attempt := newTestServer(t)
	body, err := json.Marshal(startAttemptRequest{Action: &model.ExecutorAction{
		Type:   model.ActionScriptRequest,
		Script: &model.ScriptRequest{Script: "echo hi > out.txt", Context: model.ScriptContextSetup},
	}})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/attempts/"+attempt.ID+"/start", bytes.NewBuffer(body))
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code)

	// The chain runs in a background goroutine; poll for its process row.
	require.Eventually(t, func() bool {
		procs, err := repoStore.ListExecutionProcesses(req.Context(), attempt.ID, false)
		return err == nil && len(procs) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHandleMergeAttemptRequiresTitle(t *testing.T) {
	srv, _, attempt := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/attempts/"+attempt.ID+"/merge", bytes.NewBufferString(`{}`))
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleQueueFollowUpRequiresPrompt(t *testing.T) {
	srv, _, attempt := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/attempts/"+attempt.ID+"/follow-up", bytes.NewBufferString(`{}`))
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleProcessMessagesNoLiveStream(t *testing.T) {
	srv, _, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/ws/processes/does-not-exist/messages", nil)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}
