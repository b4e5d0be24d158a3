// Package store persists the orchestration engine's entities behind a
// small repository interface. Per the spec's Non-goal on mandating a
// database driver, the core ships an in-memory implementation and a
// JSON-snapshot-to-disk implementation; either satisfies Repository, so a
// SQL-backed adapter can be swapped in without touching orchestration
// logic.
package store

import (
	"context"
	"errors"

	"github.com/vibeorchestrator/engine/internal/model"
)

// ErrNotFound is returned when a lookup misses.
var ErrNotFound = errors.New("store: not found")

// ErrUniqueConstraint mirrors a durable-write unique-constraint failure,
// per spec.md §7's "Durable write" error kind.
var ErrUniqueConstraint = errors.New("store: unique constraint violation")

// Repository is the persistence boundary the orchestrator depends on.
// Implementations must be safe for concurrent use.
type Repository interface {
	Projects
	Tasks
	TaskAttempts
	ExecutionProcesses
	Merges
}

type Projects interface {
	PutProject(ctx context.Context, p *model.Project) error
	GetProject(ctx context.Context, id string) (*model.Project, error)
}

type Tasks interface {
	PutTask(ctx context.Context, t *model.Task) error
	GetTask(ctx context.Context, id string) (*model.Task, error)
	UpdateTaskStatus(ctx context.Context, id string, status model.TaskStatus) error
}

type TaskAttempts interface {
	PutTaskAttempt(ctx context.Context, a *model.TaskAttempt) error
	GetTaskAttempt(ctx context.Context, id string) (*model.TaskAttempt, error)
	ListTaskAttempts(ctx context.Context, taskID string) ([]*model.TaskAttempt, error)
	ListAllTaskAttempts(ctx context.Context) ([]*model.TaskAttempt, error)
}

// ExecutionProcesses covers both the process rows and their per-repo
// commit bookkeeping, since a process's creation and its repo-state rows
// are written transactionally per spec.md §5's database discipline.
type ExecutionProcesses interface {
	// CreateExecutionProcess inserts a process row together with any
	// per-repo state rows as a single atomic unit.
	CreateExecutionProcess(ctx context.Context, p *model.ExecutionProcess, repoStates []*model.ExecutionProcessRepoState) error
	UpdateExecutionProcessStatus(ctx context.Context, id string, status model.ProcessStatus, exitCode *int) error
	UpdateExecutionProcessHeads(ctx context.Context, id string, before, after string) error
	SetExecutionProcessDropped(ctx context.Context, id string, dropped bool) error
	GetExecutionProcess(ctx context.Context, id string) (*model.ExecutionProcess, error)
	ListExecutionProcesses(ctx context.Context, attemptID string, includeDropped bool) ([]*model.ExecutionProcess, error)
	ListRunningExecutionProcesses(ctx context.Context) ([]*model.ExecutionProcess, error)
	ListExecutionProcessesMissingBeforeHead(ctx context.Context) ([]*model.ExecutionProcess, error)

	PutExecutorSession(ctx context.Context, s *model.ExecutorSession) error
	GetExecutorSession(ctx context.Context, processID string) (*model.ExecutorSession, error)
	// LatestExecutorSession returns the session of the most recent
	// non-dropped CodingAgent process in the attempt, if any.
	LatestExecutorSession(ctx context.Context, attemptID string) (*model.ExecutorSession, error)
}

type Merges interface {
	PutMerge(ctx context.Context, m *model.Merge) error
	GetMerge(ctx context.Context, attemptID string) (*model.Merge, error)
}
