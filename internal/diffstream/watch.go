package diffstream

import (
	"context"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watchIncremental starts a debounced recursive filesystem watcher
// rooted at the worktree and recomputes diffs for each changed batch,
// per spec.md §4.D's incremental phase. It blocks until ctx is
// cancelled or the watcher fails; a watcher error propagates as a
// single terminal item per the spec's "errors terminate the stream"
// rule.
func (s *Stream) watchIncremental(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := addRecursive(watcher, s.worktreePath); err != nil {
		return err
	}

	pending := make(map[string]struct{})
	timer := time.NewTimer(debounceWindow)
	if !timer.Stop() {
		<-timer.C
	}
	timerActive := false

	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		paths := make([]string, 0, len(pending))
		for p := range pending {
			paths = append(paths, p)
		}
		pending = make(map[string]struct{})
		return s.processChangedPaths(ctx, paths)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if rel, ok := normalizeWatchPath(s.worktreePath, ev.Name); ok {
				pending[rel] = struct{}{}
				if ev.Op&fsnotify.Create != 0 {
					_ = watcher.Add(ev.Name) // best-effort: new directory may need its own watch
				}
			}
			if !timerActive {
				timer.Reset(debounceWindow)
				timerActive = true
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return err
		case <-timer.C:
			timerActive = false
			if err := flush(); err != nil {
				return err
			}
		}
	}
}

// addRecursive walks dir adding every subdirectory (except .git) to the
// watcher; fsnotify itself only watches one level.
func addRecursive(watcher *fsnotify.Watcher, root string) error {
	return walkDirs(root, func(dir string) error {
		return watcher.Add(dir)
	})
}

func (s *Stream) processChangedPaths(ctx context.Context, changedPaths []string) error {
	diffs, err := s.git.DiffWorktree(ctx, s.worktreePath, s.baseCommit, changedPaths)
	if err != nil {
		return err
	}

	present := make(map[string]bool, len(diffs))
	for _, fd := range diffs {
		d := s.toDiff(fd)
		present[d.Path] = true
		s.applyOmitPolicy(&d)

		if d.ContentOmitted && s.wasFullySent(d.Path) {
			continue
		}
		s.rememberFull(d)
		s.emitAdd(d)
	}

	for _, p := range changedPaths {
		if !present[p] {
			s.emitRemove(p)
		}
	}
	return nil
}
