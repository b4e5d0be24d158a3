// Package worktree implements the engine's Worktree Manager: safe
// create/ensure/cleanup of per-attempt Git worktrees under a managed base
// directory, adapted from the teacher's internal/worktree/manager.go and
// grounded on the original implementation's safety discipline
// (worktree_manager.rs).
package worktree

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/vibeorchestrator/engine/internal/gitutil"
)

// ErrBranchAlreadyCheckedOut is returned when the target branch is
// already checked out in another worktree.
type ErrBranchAlreadyCheckedOut struct{ Branch string }

func (e *ErrBranchAlreadyCheckedOut) Error() string {
	return fmt.Sprintf("branch %q is already checked out in another worktree", e.Branch)
}

// ErrUnsafePath is returned when a delete target fails the safety
// verification in verifyPathSafeForDeletion.
type ErrUnsafePath struct{ Path string }

func (e *ErrUnsafePath) Error() string {
	return fmt.Sprintf("unsafe path, refusing to delete %q: outside managed worktree base", e.Path)
}

// Manager allocates and reclaims worktrees under a single managed base
// directory shared by every repo the engine touches.
type Manager struct {
	git     *gitutil.Service
	baseDir string
	log     zerolog.Logger

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex // keyed by worktree path, created lazily, kept forever
}

// NewManager creates a Manager rooted at baseDir (normally
// <temp>/vibe-kanban/worktrees, see BaseDir).
func NewManager(git *gitutil.Service, baseDir string, log zerolog.Logger) *Manager {
	return &Manager{
		git:     git,
		baseDir: baseDir,
		log:     log.With().Str("component", "worktree").Logger(),
		locks:   make(map[string]*sync.Mutex),
	}
}

// BaseDir returns the default managed worktree base directory,
// <temp>/vibe-kanban/worktrees.
func BaseDir() string {
	return filepath.Join(os.TempDir(), "vibe-kanban", "worktrees")
}

// pathLock returns (creating if needed) the mutex serializing operations
// on worktreePath. Locks are never removed: bounded by the number of
// distinct worktrees ever created in the process lifetime.
func (m *Manager) pathLock(worktreePath string) *sync.Mutex {
	m.locksMu.Lock()
	defer m.locksMu.Unlock()
	l, ok := m.locks[worktreePath]
	if !ok {
		l = &sync.Mutex{}
		m.locks[worktreePath] = l
	}
	return l
}

// Create creates a worktree at worktreePath for branch, optionally
// creating the branch off targetBranch first.
func (m *Manager) Create(ctx context.Context, repoPath, branch, worktreePath, targetBranch string, createBranch bool) error {
	if createBranch {
		if err := m.git.CreateBranch(ctx, repoPath, branch, targetBranch); err != nil {
			return fmt.Errorf("create branch %s off %s: %w", branch, targetBranch, err)
		}
	}
	return m.Ensure(ctx, repoPath, branch, worktreePath)
}

// Ensure makes worktreePath a properly set-up worktree for branch,
// idempotently. A worktree is "properly set up" iff its directory exists
// and the repo's worktree registration lists it; otherwise it is fully
// recreated.
func (m *Manager) Ensure(ctx context.Context, repoPath, branch, worktreePath string) error {
	lock := m.pathLock(worktreePath)
	lock.Lock()
	defer lock.Unlock()

	ok, err := m.isProperlySetUp(ctx, repoPath, worktreePath)
	if err != nil {
		return err
	}
	if ok {
		m.log.Trace().Str("path", worktreePath).Msg("worktree already set up")
		return nil
	}

	m.log.Info().Str("path", worktreePath).Str("branch", branch).Msg("(re)creating worktree")
	if err := m.verifyPathSafeForDeletion(worktreePath); err != nil {
		return err
	}
	if err := m.comprehensiveCleanup(ctx, repoPath, worktreePath); err != nil {
		return err
	}
	if parent := filepath.Dir(worktreePath); parent != "." {
		if err := os.MkdirAll(parent, 0o755); err != nil {
			return fmt.Errorf("create worktree parent dir: %w", err)
		}
	}
	return m.addWorktreeWithRetry(ctx, repoPath, branch, worktreePath)
}

func (m *Manager) isProperlySetUp(ctx context.Context, repoPath, worktreePath string) (bool, error) {
	if _, err := os.Stat(worktreePath); err != nil {
		return false, nil
	}
	reg, err := m.git.ListWorktreeRegistrations(ctx, repoPath)
	if err != nil {
		return false, nil // repo may be gone; treat as not set up, caller falls through to cleanup+recreate
	}
	return reg[worktreePath], nil
}

func (m *Manager) addWorktreeWithRetry(ctx context.Context, repoPath, branch, worktreePath string) error {
	err := m.git.AddWorktree(ctx, repoPath, worktreePath, branch, false, "")
	if err == nil {
		return nil
	}
	if isAlreadyCheckedOut(err) {
		return &ErrBranchAlreadyCheckedOut{Branch: branch}
	}
	m.log.Info().Err(err).Msg("worktree add failed, retrying after metadata cleanup")
	if err := m.forceCleanupMetadata(repoPath, filepath.Base(worktreePath)); err != nil {
		m.log.Debug().Err(err).Msg("metadata cleanup before retry failed (non-fatal)")
	}
	if err := m.verifyPathSafeForDeletion(worktreePath); err != nil {
		return err
	}
	if _, statErr := os.Stat(worktreePath); statErr == nil {
		if err := os.RemoveAll(worktreePath); err != nil {
			return fmt.Errorf("remove stray worktree dir: %w", err)
		}
	}
	if err2 := m.git.AddWorktree(ctx, repoPath, worktreePath, branch, false, ""); err2 != nil {
		if isAlreadyCheckedOut(err2) {
			return &ErrBranchAlreadyCheckedOut{Branch: branch}
		}
		return fmt.Errorf("create worktree after retry: %w", err2)
	}
	return nil
}

func isAlreadyCheckedOut(err error) bool {
	s := err.Error()
	return strings.Contains(s, "is already used by worktree") || strings.Contains(s, "is already checked out")
}

// Cleanup removes worktreePath and its git metadata. repoHint, if
// non-empty, names the repo the worktree belongs to; otherwise it is
// inferred via `git rev-parse --git-common-dir` run inside the worktree.
func (m *Manager) Cleanup(ctx context.Context, worktreePath, repoHint string) error {
	if err := m.verifyPathSafeForDeletion(worktreePath); err != nil {
		m.log.Warn().Err(err).Str("path", worktreePath).Msg("refusing to clean up unsafe path")
		return nil
	}

	lock := m.pathLock(worktreePath)
	lock.Lock()
	defer lock.Unlock()

	repoPath := repoHint
	if repoPath == "" {
		repoPath = m.inferRepoPath(ctx, worktreePath)
	}
	if repoPath == "" {
		return m.simpleCleanup(worktreePath)
	}
	return m.comprehensiveCleanup(ctx, repoPath, worktreePath)
}

func (m *Manager) comprehensiveCleanup(ctx context.Context, repoPath, worktreePath string) error {
	if err := m.verifyPathSafeForDeletion(worktreePath); err != nil {
		return err
	}
	if err := m.git.RemoveWorktree(ctx, repoPath, worktreePath, true); err != nil {
		m.log.Debug().Err(err).Msg("git worktree remove non-fatal error")
	}
	if err := m.forceCleanupMetadata(repoPath, filepath.Base(worktreePath)); err != nil {
		m.log.Debug().Err(err).Msg("metadata cleanup non-fatal error")
	}
	if err := m.verifyPathSafeForDeletion(worktreePath); err != nil {
		return err
	}
	if _, err := os.Stat(worktreePath); err == nil {
		if err := os.RemoveAll(worktreePath); err != nil {
			return fmt.Errorf("remove worktree dir: %w", err)
		}
	}
	if err := m.git.PruneWorktrees(ctx, repoPath); err != nil {
		m.log.Debug().Err(err).Msg("git worktree prune non-fatal error")
	}
	return nil
}

func (m *Manager) simpleCleanup(worktreePath string) error {
	if err := m.verifyPathSafeForDeletion(worktreePath); err != nil {
		return err
	}
	if _, err := os.Stat(worktreePath); err == nil {
		return os.RemoveAll(worktreePath)
	}
	return nil
}

func (m *Manager) forceCleanupMetadata(repoPath, worktreeName string) error {
	metaDir := filepath.Join(repoPath, ".git", "worktrees", worktreeName)
	if _, err := os.Stat(metaDir); err == nil {
		return os.RemoveAll(metaDir)
	}
	return nil
}

func (m *Manager) inferRepoPath(ctx context.Context, worktreePath string) string {
	out, err := m.git.RevParse(ctx, worktreePath, "--git-common-dir")
	if err != nil || out == "" {
		return ""
	}
	abs := out
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(worktreePath, out)
	}
	if filepath.Base(abs) == ".git" {
		return filepath.Dir(abs)
	}
	return abs
}

// verifyPathSafeForDeletion is the critical safety gate from spec.md §4.A:
// no deletion may touch a path outside the managed worktree base. Callers
// run it twice (once before any work, once immediately before the actual
// removal) as defense in depth against a TOCTOU symlink swap.
func (m *Manager) verifyPathSafeForDeletion(worktreePath string) error {
	if err := os.MkdirAll(m.baseDir, 0o755); err != nil {
		return fmt.Errorf("ensure worktree base dir: %w", err)
	}

	if !isWithin(worktreePath, m.baseDir) {
		return &ErrUnsafePath{Path: worktreePath}
	}

	for _, part := range strings.Split(filepath.Clean(worktreePath), string(filepath.Separator)) {
		if part == ".." {
			return &ErrUnsafePath{Path: worktreePath}
		}
	}

	canonicalBase, err := filepath.EvalSymlinks(m.baseDir)
	if err != nil {
		canonicalBase = m.baseDir
	}
	if _, err := os.Stat(worktreePath); err == nil {
		canonicalPath, err := filepath.EvalSymlinks(worktreePath)
		if err == nil && !isWithin(canonicalPath, canonicalBase) {
			return &ErrUnsafePath{Path: worktreePath}
		}
	}

	if !isTempLike(m.baseDir) {
		return &ErrUnsafePath{Path: worktreePath}
	}

	return nil
}

func isWithin(path, base string) bool {
	rel, err := filepath.Rel(base, path)
	if err != nil {
		return false
	}
	return rel == "." || (!strings.HasPrefix(rel, "..") && !filepath.IsAbs(rel))
}

func isTempLike(dir string) bool {
	return strings.HasPrefix(dir, os.TempDir()) ||
		strings.Contains(dir, string(filepath.Separator)+"tmp"+string(filepath.Separator)) ||
		strings.Contains(dir, "/var/folders/") ||
		strings.Contains(dir, "/var/tmp/")
}

// VerifyPathSafe exposes the safety check for tests and for callers (e.g.
// the orphan reclamation sweep) that need to pre-validate a path.
func (m *Manager) VerifyPathSafe(worktreePath string) error {
	return m.verifyPathSafeForDeletion(worktreePath)
}
