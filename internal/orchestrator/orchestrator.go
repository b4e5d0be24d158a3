// Package orchestrator implements the Attempt Orchestrator (spec.md
// §4.F): the top-level state machine that allocates a worktree, chains
// an attempt's execution processes (setup -> coding agent -> cleanup),
// auto-commits, honors queued follow-ups and retry/restore, merges or
// pushes a branch, and recovers orphaned processes at startup. Grounded
// on the teacher's internal/agent/manager.go (spawn/track/stop shape)
// and internal/agent/merger.go (merge/conflict handling), generalized
// from a single Codex-process-per-role model to the spec's chained
// ExecutorAction state machine.
package orchestrator

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/vibeorchestrator/engine/internal/executor"
	"github.com/vibeorchestrator/engine/internal/gitutil"
	"github.com/vibeorchestrator/engine/internal/logstore"
	"github.com/vibeorchestrator/engine/internal/msgstore"
	"github.com/vibeorchestrator/engine/internal/store"
	"github.com/vibeorchestrator/engine/internal/supervisor"
	"github.com/vibeorchestrator/engine/internal/worktree"
)

// Orchestrator holds the two process-wide maps spec.md §5 calls for
// (process id -> child, process id -> store) plus the component
// handles it coordinates between.
type Orchestrator struct {
	repo      store.Repository
	worktrees *worktree.Manager
	git       *gitutil.Service
	sup       *supervisor.Supervisor
	registry  *executor.Registry
	logs      *logstore.Store
	log       zerolog.Logger

	autoCommit bool

	mu       sync.Mutex
	children map[string]*supervisor.Child
	stores   map[string]*msgstore.Store
	queued   map[string]string // attemptID -> queued follow-up prompt
}

// New creates an Orchestrator. autoCommit controls whether a successful
// CodingAgent/CleanupScript process stages and commits per spec.md
// §4.F's "Auto-commit" rule.
func New(repo store.Repository, worktrees *worktree.Manager, git *gitutil.Service, sup *supervisor.Supervisor, registry *executor.Registry, logs *logstore.Store, autoCommit bool, log zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		repo:       repo,
		worktrees:  worktrees,
		git:        git,
		sup:        sup,
		registry:   registry,
		logs:       logs,
		autoCommit: autoCommit,
		log:        log.With().Str("component", "orchestrator").Logger(),
		children:   make(map[string]*supervisor.Child),
		stores:     make(map[string]*msgstore.Store),
		queued:     make(map[string]string),
	}
}

func (o *Orchestrator) trackChild(processID string, c *supervisor.Child, st *msgstore.Store) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.children[processID] = c
	o.stores[processID] = st
}

func (o *Orchestrator) untrackChild(processID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.children, processID)
	delete(o.stores, processID)
}

// Store returns the in-memory Message Store for a live process, if any.
func (o *Orchestrator) Store(processID string) (*msgstore.Store, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	st, ok := o.stores[processID]
	return st, ok
}

// Child returns the supervised child handle for a live process, if any.
func (o *Orchestrator) Child(processID string) (*supervisor.Child, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	c, ok := o.children[processID]
	return c, ok
}

// QueueFollowUp records prompt to be spawned as a follow-up once
// attemptID's current chain finalizes, per spec.md §4.F's "Queued
// follow-up" rule.
func (o *Orchestrator) QueueFollowUp(attemptID, prompt string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.queued[attemptID] = prompt
}

func (o *Orchestrator) popQueuedFollowUp(attemptID string) (string, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	prompt, ok := o.queued[attemptID]
	if ok {
		delete(o.queued, attemptID)
	}
	return prompt, ok
}
