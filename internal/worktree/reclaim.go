package worktree

import (
	"context"
	"os"
	"path/filepath"
	"time"

	cache "github.com/patrickmn/go-cache"

	"github.com/vibeorchestrator/engine/internal/store"
)

// expiryWindow matches the original implementation's 72-hour
// since-last-activity threshold for reclaiming an attempt's worktree.
const expiryWindow = 72 * time.Hour

// Reclaimer periodically sweeps the managed worktree base directory for
// three classes of staleness: externally-deleted worktrees (directory
// vanished underneath the engine), expired attempts (72h past the later
// of the attempt's UpdatedAt and the last time recorded for it through
// NoteActivity), and orphan directories (no attempt references them at
// all). Expiry does not look at execution processes: an attempt with a
// running process is not skipped. Grounded on local-deployment/container.go's
// cleanup_orphaned_worktrees / cleanup_expired_attempts / periodic loop.
type Reclaimer struct {
	mgr   *Manager
	repo  store.Repository
	cache *cache.Cache // tracks last-activity timestamps per attempt id, TTL = expiryWindow
}

// NewReclaimer builds a Reclaimer over repo's attempt bookkeeping.
func NewReclaimer(mgr *Manager, repo store.Repository) *Reclaimer {
	return &Reclaimer{
		mgr:   mgr,
		repo:  repo,
		cache: cache.New(expiryWindow, expiryWindow/2),
	}
}

// NoteActivity records that attemptID had activity at t, resetting its
// expiry countdown. Call on execution-process completion and attempt
// updates, matching the original's "activity" definition.
func (r *Reclaimer) NoteActivity(attemptID string, t time.Time) {
	r.cache.Set(attemptID, t, expiryWindow)
}

// Run executes one full sweep pass. Callers schedule this on a ticker
// (the original uses a 30-minute interval).
func (r *Reclaimer) Run(ctx context.Context) {
	r.checkExternallyDeleted(ctx)
	r.cleanupExpiredAttempts(ctx)
	r.cleanupOrphanDirectories(ctx)
}

func (r *Reclaimer) checkExternallyDeleted(ctx context.Context) {
	attempts, err := r.repo.ListAllTaskAttempts(ctx)
	if err != nil {
		return
	}
	for _, a := range attempts {
		if a.WorktreeDeleted || a.IsOrchestrator {
			continue
		}
		if _, err := os.Stat(a.ContainerRef); err != nil {
			a.WorktreeDeleted = true
			_ = r.repo.PutTaskAttempt(ctx, a)
		}
	}
}

func (r *Reclaimer) cleanupExpiredAttempts(ctx context.Context) {
	attempts, err := r.repo.ListAllTaskAttempts(ctx)
	if err != nil {
		return
	}
	now := time.Now()
	for _, a := range attempts {
		if a.WorktreeDeleted || a.IsOrchestrator {
			continue
		}
		lastActivity := a.UpdatedAt
		if v, ok := r.cache.Get(a.ID); ok {
			if t, ok := v.(time.Time); ok && t.After(lastActivity) {
				lastActivity = t
			}
		}
		if now.Sub(lastActivity) < expiryWindow {
			continue
		}
		if err := r.mgr.Cleanup(ctx, a.ContainerRef, ""); err != nil {
			continue
		}
		a.WorktreeDeleted = true
		_ = r.repo.PutTaskAttempt(ctx, a)
	}
}

func (r *Reclaimer) cleanupOrphanDirectories(ctx context.Context) {
	if _, disabled := os.LookupEnv("DISABLE_WORKTREE_ORPHAN_CLEANUP"); disabled {
		r.mgr.log.Debug().Msg("orphan worktree cleanup disabled via DISABLE_WORKTREE_ORPHAN_CLEANUP")
		return
	}
	entries, err := os.ReadDir(r.mgr.baseDir)
	if err != nil {
		return
	}
	known := make(map[string]bool)
	attempts, err := r.repo.ListAllTaskAttempts(ctx)
	if err != nil {
		return
	}
	for _, a := range attempts {
		known[a.ContainerRef] = true
	}

	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		path := filepath.Join(r.mgr.baseDir, e.Name())
		if known[path] {
			continue
		}
		if err := r.mgr.VerifyPathSafe(path); err != nil {
			r.mgr.log.Warn().Str("path", path).Msg("skipping orphan cleanup, path outside managed base")
			continue
		}
		r.mgr.log.Info().Str("path", path).Msg("removing orphaned worktree directory")
		if err := r.mgr.Cleanup(ctx, path, ""); err != nil {
			r.mgr.log.Error().Err(err).Str("path", path).Msg("failed to remove orphaned worktree")
		}
	}
}
