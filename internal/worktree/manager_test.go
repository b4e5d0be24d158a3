package worktree

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/vibeorchestrator/engine/internal/gitutil"
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

func newTestManager(t *testing.T) (*Manager, string) {
	t.Helper()
	base := t.TempDir()
	git := gitutil.New()
	return NewManager(git, base, zerolog.Nop()), base
}

func TestEnsureCreatesWorktree(t *testing.T) {
	ctx := context.Background()
	repo := t.TempDir()
	initRepo(t, repo)

	mgr, base := newTestManager(t)
	wtPath := filepath.Join(base, "attempt-1")

	require.NoError(t, mgr.Create(ctx, repo, "feature-1", wtPath, "main", true))
	require.DirExists(t, wtPath)
	require.FileExists(t, filepath.Join(wtPath, "README.md"))
}

func TestEnsureIsIdempotent(t *testing.T) {
	ctx := context.Background()
	repo := t.TempDir()
	initRepo(t, repo)

	mgr, base := newTestManager(t)
	wtPath := filepath.Join(base, "attempt-2")

	require.NoError(t, mgr.Create(ctx, repo, "feature-2", wtPath, "main", true))
	// Second Ensure call against the same path must be a no-op, not an error.
	require.NoError(t, mgr.Ensure(ctx, repo, "feature-2", wtPath))
	require.DirExists(t, wtPath)
}

func TestCleanupRemovesWorktree(t *testing.T) {
	ctx := context.Background()
	repo := t.TempDir()
	initRepo(t, repo)

	mgr, base := newTestManager(t)
	wtPath := filepath.Join(base, "attempt-3")
	require.NoError(t, mgr.Create(ctx, repo, "feature-3", wtPath, "main", true))

	require.NoError(t, mgr.Cleanup(ctx, wtPath, repo))
	require.NoDirExists(t, wtPath)
}

func TestCleanupRefusesPathOutsideBase(t *testing.T) {
	mgr, _ := newTestManager(t)
	outside := filepath.Join(os.TempDir(), "vibe-kanban-totally-unmanaged-dir")
	err := mgr.verifyPathSafeForDeletion(outside)
	require.Error(t, err)
	var unsafe *ErrUnsafePath
	require.ErrorAs(t, err, &unsafe)
}

func TestCleanupRefusesDotDotTraversal(t *testing.T) {
	mgr, base := newTestManager(t)
	traversal := filepath.Join(base, "..", "escaped")
	err := mgr.verifyPathSafeForDeletion(traversal)
	require.Error(t, err)
}

func TestCreateFailsWhenBranchAlreadyCheckedOut(t *testing.T) {
	ctx := context.Background()
	repo := t.TempDir()
	initRepo(t, repo)

	mgr, base := newTestManager(t)
	first := filepath.Join(base, "attempt-a")
	second := filepath.Join(base, "attempt-b")

	require.NoError(t, mgr.Create(ctx, repo, "shared-branch", first, "main", true))

	err := mgr.Ensure(ctx, repo, "shared-branch", second)
	require.Error(t, err)
	var checkedOut *ErrBranchAlreadyCheckedOut
	require.ErrorAs(t, err, &checkedOut)
}
