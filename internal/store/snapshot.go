package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/vibeorchestrator/engine/internal/model"
)

// Snapshot wraps Memory and mirrors writes of projects, tasks, task
// attempts and execution processes to a one-file-per-entity JSON
// directory; executor sessions and execution-process repo states are kept
// in memory only and are not reloaded. It persists the way the teacher's internal/session/store.go persists
// sessions. It exists as the non-SQL durable adapter called for by
// SPEC_FULL.md's Non-goal on mandating a database driver: same
// Repository interface, no SQL engine required.
type Snapshot struct {
	*Memory
	dir  string
	fsmu sync.Mutex
}

// NewSnapshot creates (or loads) a snapshot store rooted at dir.
func NewSnapshot(dir string) (*Snapshot, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	s := &Snapshot{Memory: NewMemory(), dir: dir}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Snapshot) entityPath(kind, id string) string {
	return filepath.Join(s.dir, kind, id+".json")
}

func (s *Snapshot) writeEntity(kind, id string, v any) error {
	s.fsmu.Lock()
	defer s.fsmu.Unlock()
	dir := filepath.Join(s.dir, kind)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.entityPath(kind, id), data, 0o644)
}

func (s *Snapshot) load() error {
	for _, kind := range []string{"projects", "tasks", "attempts", "processes", "merges"} {
		dir := filepath.Join(s.dir, kind)
		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return err
		}
		for _, e := range entries {
			if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
				continue
			}
			data, err := os.ReadFile(filepath.Join(dir, e.Name()))
			if err != nil {
				continue
			}
			switch kind {
			case "projects":
				var p model.Project
				if json.Unmarshal(data, &p) == nil {
					s.Memory.projects[p.ID] = &p
				}
			case "tasks":
				var t model.Task
				if json.Unmarshal(data, &t) == nil {
					s.Memory.tasks[t.ID] = &t
				}
			case "attempts":
				var a model.TaskAttempt
				if json.Unmarshal(data, &a) == nil {
					s.Memory.attempts[a.ID] = &a
				}
			case "processes":
				var p model.ExecutionProcess
				if json.Unmarshal(data, &p) == nil {
					s.Memory.processes[p.ID] = &p
				}
			case "merges":
				var mg model.Merge
				if json.Unmarshal(data, &mg) == nil {
					s.Memory.merges[mg.TaskAttemptID] = &mg
				}
			}
		}
	}
	return nil
}

func (s *Snapshot) PutProject(ctx context.Context, p *model.Project) error {
	if err := s.Memory.PutProject(ctx, p); err != nil {
		return err
	}
	return s.writeEntity("projects", p.ID, p)
}

func (s *Snapshot) PutTask(ctx context.Context, t *model.Task) error {
	if err := s.Memory.PutTask(ctx, t); err != nil {
		return err
	}
	return s.writeEntity("tasks", t.ID, t)
}

func (s *Snapshot) UpdateTaskStatus(ctx context.Context, id string, status model.TaskStatus) error {
	if err := s.Memory.UpdateTaskStatus(ctx, id, status); err != nil {
		return err
	}
	t, err := s.Memory.GetTask(ctx, id)
	if err != nil {
		return err
	}
	return s.writeEntity("tasks", id, t)
}

func (s *Snapshot) PutTaskAttempt(ctx context.Context, a *model.TaskAttempt) error {
	if err := s.Memory.PutTaskAttempt(ctx, a); err != nil {
		return err
	}
	return s.writeEntity("attempts", a.ID, a)
}

func (s *Snapshot) CreateExecutionProcess(ctx context.Context, p *model.ExecutionProcess, repoStates []*model.ExecutionProcessRepoState) error {
	if err := s.Memory.CreateExecutionProcess(ctx, p, repoStates); err != nil {
		return err
	}
	return s.writeEntity("processes", p.ID, p)
}

func (s *Snapshot) persistProcess(ctx context.Context, id string) error {
	p, err := s.Memory.GetExecutionProcess(ctx, id)
	if err != nil {
		return err
	}
	return s.writeEntity("processes", id, p)
}

func (s *Snapshot) UpdateExecutionProcessStatus(ctx context.Context, id string, status model.ProcessStatus, exitCode *int) error {
	if err := s.Memory.UpdateExecutionProcessStatus(ctx, id, status, exitCode); err != nil {
		return err
	}
	return s.persistProcess(ctx, id)
}

func (s *Snapshot) UpdateExecutionProcessHeads(ctx context.Context, id string, before, after string) error {
	if err := s.Memory.UpdateExecutionProcessHeads(ctx, id, before, after); err != nil {
		return err
	}
	return s.persistProcess(ctx, id)
}

func (s *Snapshot) SetExecutionProcessDropped(ctx context.Context, id string, dropped bool) error {
	if err := s.Memory.SetExecutionProcessDropped(ctx, id, dropped); err != nil {
		return err
	}
	return s.persistProcess(ctx, id)
}

func (s *Snapshot) PutMerge(ctx context.Context, mg *model.Merge) error {
	if err := s.Memory.PutMerge(ctx, mg); err != nil {
		return err
	}
	return s.writeEntity("merges", mg.TaskAttemptID, mg)
}

var _ Repository = (*Snapshot)(nil)
