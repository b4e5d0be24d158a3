// Package model holds the entities shared across the orchestration engine:
// projects, tasks, attempts, execution processes and the small value types
// threaded through them.
package model

import "time"

// TaskStatus is the lifecycle state of a Task.
type TaskStatus string

const (
	TaskTodo       TaskStatus = "todo"
	TaskInProgress TaskStatus = "inprogress"
	TaskInReview   TaskStatus = "inreview"
	TaskDone       TaskStatus = "done"
	TaskCancelled  TaskStatus = "cancelled"
)

// ProcessStatus is the lifecycle state of an ExecutionProcess.
type ProcessStatus string

const (
	ProcessRunning   ProcessStatus = "running"
	ProcessCompleted ProcessStatus = "completed"
	ProcessFailed    ProcessStatus = "failed"
	ProcessKilled    ProcessStatus = "killed"
)

// RunReason identifies what an ExecutionProcess spawns.
type RunReason string

const (
	RunSetupScript   RunReason = "setup_script"
	RunCleanupScript RunReason = "cleanup_script"
	RunCodingAgent   RunReason = "coding_agent"
	RunDevServer     RunReason = "dev_server"
)

// Project is a user-registered Git repository plus optional lifecycle scripts.
type Project struct {
	ID             string
	Name           string
	RepoPath       string
	SetupScript    string
	DevScript      string
	CleanupScript  string
	CopyFiles      []string
	CreatedAt      time.Time
}

// Task belongs to a Project. ProjectID is immutable once set.
type Task struct {
	ID                string
	ProjectID         string
	Title             string
	Description       string
	Status            TaskStatus
	ParentTaskAttempt string // optional, references TaskAttempt.ID
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// TaskAttempt is one end-to-end try at a Task.
type TaskAttempt struct {
	ID              string
	TaskID          string
	Executor        string // agent kind, e.g. "claude", "codex"
	Branch          string
	TargetBranch    string
	ContainerRef    string // absolute path to the worktree, or the project repo for orchestrator attempts
	IsOrchestrator  bool   // runs directly against the project repo, no worktree
	WorktreeDeleted bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ExecutionProcess is a single child-process span within an attempt.
type ExecutionProcess struct {
	ID                string
	TaskAttemptID     string
	RunReason         RunReason
	Action            *ExecutorAction
	Status            ProcessStatus
	ExitCode          *int
	Dropped           bool
	StartedAt         time.Time
	CompletedAt       *time.Time
	BeforeHeadCommit  string
	AfterHeadCommit   string
	CreatedAt         time.Time
}

// ExecutionProcessRepoState carries per-repo commit bookkeeping for
// multi-repo workspace attempts.
type ExecutionProcessRepoState struct {
	ExecutionProcessID string
	RepoName           string
	BeforeHeadCommit   string
	AfterHeadCommit    string
	MergeCommit        string
}

// ExecutorActionType tags the variant of an ExecutorAction node.
type ExecutorActionType string

const (
	ActionScriptRequest              ExecutorActionType = "script_request"
	ActionCodingAgentInitialRequest   ExecutorActionType = "coding_agent_initial_request"
	ActionCodingAgentFollowUpRequest  ExecutorActionType = "coding_agent_follow_up_request"
)

// ScriptContext distinguishes which lifecycle slot a ScriptRequest runs in.
type ScriptContext string

const (
	ScriptContextSetup   ScriptContext = "setup_script"
	ScriptContextCleanup ScriptContext = "cleanup_script"
	ScriptContextDev     ScriptContext = "dev_server"
)

// ExecutorProfileID names an agent kind plus a configuration variant
// (e.g. model preset), per the recovered "executor profile" concept.
type ExecutorProfileID struct {
	Executor string `json:"executor"`
	Variant  string `json:"variant,omitempty"`
}

// ExecutorAction is a recursive, cycle-free node describing one step of
// an attempt's chained execution (setup -> agent -> cleanup). Exactly one
// of the payload fields is populated, selected by Type.
type ExecutorAction struct {
	Type ExecutorActionType `json:"type"`

	Script            *ScriptRequest                   `json:"script,omitempty"`
	CodingAgentInitial *CodingAgentInitialRequest       `json:"codingAgentInitial,omitempty"`
	CodingAgentFollowUp *CodingAgentFollowUpRequest     `json:"codingAgentFollowUp,omitempty"`

	Next *ExecutorAction `json:"next,omitempty"`
}

// ScriptRequest runs a one-shot shell script inside the attempt's worktree.
type ScriptRequest struct {
	Script   string        `json:"script"`
	Language string        `json:"language"`
	Context  ScriptContext `json:"context"`
}

// CodingAgentInitialRequest starts a fresh coding-agent conversation.
type CodingAgentInitialRequest struct {
	Prompt           string            `json:"prompt"`
	ExecutorProfileID ExecutorProfileID `json:"executorProfileId"`
}

// CodingAgentFollowUpRequest resumes a coding-agent conversation by session id.
type CodingAgentFollowUpRequest struct {
	Prompt            string            `json:"prompt"`
	SessionID         string            `json:"sessionId"`
	ExecutorProfileID ExecutorProfileID `json:"executorProfileId"`
}

// Walk calls fn for the action and every node in its Next chain, in order.
func (a *ExecutorAction) Walk(fn func(*ExecutorAction)) {
	for n := a; n != nil; n = n.Next {
		fn(n)
	}
}

// ExecutorSession is the per-process record of a coding agent's reported
// identity: its session id (discovered mid-stream) and a short textual
// summary of its last assistant message.
type ExecutorSession struct {
	ExecutionProcessID string
	SessionID          string
	Summary            string
}

// MergeKind distinguishes a direct merge from a PR-mediated one.
type MergeKind string

const (
	MergeDirect MergeKind = "direct"
	MergePR     MergeKind = "pr"
)

// PRStatus is the lifecycle state of an attached pull request.
type PRStatus string

const (
	PROpen   PRStatus = "open"
	PRMerged PRStatus = "merged"
	PRClosed PRStatus = "closed"
)

// Merge records how an attempt's branch reached its target branch.
type Merge struct {
	TaskAttemptID string
	Kind          MergeKind
	TargetBranch  string

	// Direct fields
	Commit string

	// PR fields
	PRNumber    int
	PRURL       string
	PRStatus    PRStatus
	MergeCommit string

	CreatedAt time.Time
}
