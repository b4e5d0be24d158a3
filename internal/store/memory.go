package store

import (
	"context"
	"sort"
	"sync"

	"github.com/vibeorchestrator/engine/internal/model"
)

// Memory is an in-process Repository backed by maps guarded by a single
// RWMutex, matching the teacher's "one lock per map, held only during the
// critical section" discipline (internal/agent/manager.go).
type Memory struct {
	mu sync.RWMutex

	projects  map[string]*model.Project
	tasks     map[string]*model.Task
	attempts  map[string]*model.TaskAttempt
	processes map[string]*model.ExecutionProcess
	repoState map[string][]*model.ExecutionProcessRepoState // keyed by process id
	sessions  map[string]*model.ExecutorSession              // keyed by process id
	merges    map[string]*model.Merge                        // keyed by attempt id
}

// NewMemory creates an empty in-memory repository.
func NewMemory() *Memory {
	return &Memory{
		projects:  make(map[string]*model.Project),
		tasks:     make(map[string]*model.Task),
		attempts:  make(map[string]*model.TaskAttempt),
		processes: make(map[string]*model.ExecutionProcess),
		repoState: make(map[string][]*model.ExecutionProcessRepoState),
		sessions:  make(map[string]*model.ExecutorSession),
		merges:    make(map[string]*model.Merge),
	}
}

func (m *Memory) PutProject(_ context.Context, p *model.Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.projects[p.ID] = &cp
	return nil
}

func (m *Memory) GetProject(_ context.Context, id string) (*model.Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.projects[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *Memory) PutTask(_ context.Context, t *model.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	m.tasks[t.ID] = &cp
	return nil
}

func (m *Memory) GetTask(_ context.Context, id string) (*model.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tasks[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *Memory) UpdateTaskStatus(_ context.Context, id string, status model.TaskStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return ErrNotFound
	}
	t.Status = status
	return nil
}

func (m *Memory) PutTaskAttempt(_ context.Context, a *model.TaskAttempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *a
	m.attempts[a.ID] = &cp
	return nil
}

func (m *Memory) GetTaskAttempt(_ context.Context, id string) (*model.TaskAttempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.attempts[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *Memory) ListTaskAttempts(_ context.Context, taskID string) ([]*model.TaskAttempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.TaskAttempt
	for _, a := range m.attempts {
		if a.TaskID == taskID {
			cp := *a
			out = append(out, &cp)
		}
	}
	sortAttempts(out)
	return out, nil
}

func (m *Memory) ListAllTaskAttempts(_ context.Context) ([]*model.TaskAttempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*model.TaskAttempt, 0, len(m.attempts))
	for _, a := range m.attempts {
		cp := *a
		out = append(out, &cp)
	}
	sortAttempts(out)
	return out, nil
}

func sortAttempts(a []*model.TaskAttempt) {
	sort.Slice(a, func(i, j int) bool { return a[i].CreatedAt.Before(a[j].CreatedAt) })
}

func (m *Memory) CreateExecutionProcess(_ context.Context, p *model.ExecutionProcess, repoStates []*model.ExecutionProcessRepoState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.processes[p.ID]; exists {
		return ErrUniqueConstraint
	}
	cp := *p
	m.processes[p.ID] = &cp
	if len(repoStates) > 0 {
		states := make([]*model.ExecutionProcessRepoState, len(repoStates))
		for i, rs := range repoStates {
			c := *rs
			states[i] = &c
		}
		m.repoState[p.ID] = states
	}
	return nil
}

func (m *Memory) UpdateExecutionProcessStatus(_ context.Context, id string, status model.ProcessStatus, exitCode *int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.processes[id]
	if !ok {
		return ErrNotFound
	}
	p.Status = status
	p.ExitCode = exitCode
	return nil
}

func (m *Memory) UpdateExecutionProcessHeads(_ context.Context, id string, before, after string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.processes[id]
	if !ok {
		return ErrNotFound
	}
	if before != "" {
		p.BeforeHeadCommit = before
	}
	if after != "" {
		p.AfterHeadCommit = after
	}
	return nil
}

func (m *Memory) SetExecutionProcessDropped(_ context.Context, id string, dropped bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.processes[id]
	if !ok {
		return ErrNotFound
	}
	p.Dropped = dropped
	return nil
}

func (m *Memory) GetExecutionProcess(_ context.Context, id string) (*model.ExecutionProcess, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.processes[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *Memory) ListExecutionProcesses(_ context.Context, attemptID string, includeDropped bool) ([]*model.ExecutionProcess, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.ExecutionProcess
	for _, p := range m.processes {
		if p.TaskAttemptID != attemptID {
			continue
		}
		if p.Dropped && !includeDropped {
			continue
		}
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) ListRunningExecutionProcesses(_ context.Context) ([]*model.ExecutionProcess, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.ExecutionProcess
	for _, p := range m.processes {
		if p.Status == model.ProcessRunning {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *Memory) ListExecutionProcessesMissingBeforeHead(_ context.Context) ([]*model.ExecutionProcess, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.ExecutionProcess
	for _, p := range m.processes {
		if p.AfterHeadCommit != "" && p.BeforeHeadCommit == "" {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *Memory) PutExecutorSession(_ context.Context, s *model.ExecutorSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.sessions[s.ExecutionProcessID] = &cp
	return nil
}

func (m *Memory) GetExecutorSession(_ context.Context, processID string) (*model.ExecutorSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[processID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *Memory) LatestExecutorSession(_ context.Context, attemptID string) (*model.ExecutorSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var latest *model.ExecutionProcess
	for _, p := range m.processes {
		if p.TaskAttemptID != attemptID || p.Dropped || p.RunReason != model.RunCodingAgent {
			continue
		}
		if latest == nil || p.CreatedAt.After(latest.CreatedAt) {
			latest = p
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	s, ok := m.sessions[latest.ID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *Memory) PutMerge(_ context.Context, mg *model.Merge) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *mg
	m.merges[mg.TaskAttemptID] = &cp
	return nil
}

func (m *Memory) GetMerge(_ context.Context, attemptID string) (*model.Merge, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mg, ok := m.merges[attemptID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *mg
	return &cp, nil
}

var _ Repository = (*Memory)(nil)
