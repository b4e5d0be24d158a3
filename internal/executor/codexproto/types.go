package codexproto

import "encoding/json"

// Approval policy values.
const (
	ApprovalPolicyUnlessTrusted = "untrusted"
	ApprovalPolicyOnFailure     = "on-failure"
	ApprovalPolicyOnRequest     = "on-request"
	ApprovalPolicyNever         = "never"
)

// Sandbox mode values.
const (
	SandboxReadOnly         = "read-only"
	SandboxWorkspaceWrite   = "workspace-write"
	SandboxDangerFullAccess = "danger-full-access"
)

// Approval decision values.
const (
	DecisionAccept           = "accept"
	DecisionAcceptForSession = "acceptForSession"
	DecisionDecline          = "decline"
	DecisionCancel           = "cancel"
)

// InitializeParams is sent as the first request to the agent process.
type InitializeParams struct {
	ClientInfo ClientInfo `json:"clientInfo"`
}

type ClientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type InitializeResponse struct {
	UserAgent string `json:"userAgent"`
}

// ThreadStartParams creates a new conversation thread.
type ThreadStartParams struct {
	Model          *string `json:"model,omitempty"`
	Cwd            *string `json:"cwd,omitempty"`
	ApprovalPolicy *string `json:"approvalPolicy,omitempty"`
	Sandbox        *string `json:"sandbox,omitempty"`
}

type ThreadStartResponse struct {
	Thread Thread `json:"thread"`
}

// ThreadResumeParams resumes an existing thread by id.
type ThreadResumeParams struct {
	ThreadID string `json:"threadId"`
}

type Thread struct {
	ID  string `json:"id"`
	Cwd string `json:"cwd"`
}

// TurnStartParams sends user input and begins a turn.
type TurnStartParams struct {
	ThreadID       string      `json:"threadId"`
	Input          []UserInput `json:"input"`
	ApprovalPolicy *string     `json:"approvalPolicy,omitempty"`
}

type UserInput struct {
	Type string `json:"type"` // "text"
	Text string `json:"text"`
}

type TurnStartResponse struct {
	Turn Turn `json:"turn"`
}

type Turn struct {
	ID     string          `json:"id"`
	Status string          `json:"status"` // "completed"|"interrupted"|"failed"|"inProgress"
	Error  *TurnError      `json:"error,omitempty"`
	Usage  *TurnUsage      `json:"usage,omitempty"`
	Items  json.RawMessage `json:"items,omitempty"`
}

type TurnError struct {
	Message string `json:"message"`
}

// TurnUsage reports cumulative token counts for a turn, supplementing
// spec.md's message kinds with the usage tracking original_source carries.
type TurnUsage struct {
	InputTokens  int64 `json:"inputTokens"`
	OutputTokens int64 `json:"outputTokens"`
	CachedTokens int64 `json:"cachedTokens"`
}

// TurnInterruptParams stops the current turn.
type TurnInterruptParams struct {
	ThreadID string `json:"threadId"`
	TurnID   string `json:"turnId"`
}

// --- Notifications (server -> client) ---

// AgentMessageDelta streams agent text output.
type AgentMessageDelta struct {
	ThreadID string `json:"threadId"`
	TurnID   string `json:"turnId"`
	ItemID   string `json:"itemId"`
	Delta    string `json:"delta"`
}

type TurnStartedNotification struct {
	ThreadID string `json:"threadId"`
	Turn     Turn   `json:"turn"`
}

type TurnCompletedNotification struct {
	ThreadID string `json:"threadId"`
	Turn     Turn   `json:"turn"`
}

type ItemStartedNotification struct {
	ThreadID string `json:"threadId"`
	TurnID   string `json:"turnId"`
	ItemID   string `json:"itemId"`
}

type ItemCompletedNotification struct {
	ThreadID string `json:"threadId"`
	TurnID   string `json:"turnId"`
	ItemID   string `json:"itemId"`
}

// --- Approval requests (server -> client) ---

type CommandApprovalParams struct {
	ThreadID string  `json:"threadId"`
	TurnID   string  `json:"turnId"`
	ItemID   string  `json:"itemId"`
	Command  *string `json:"command,omitempty"`
	Cwd      *string `json:"cwd,omitempty"`
}

type CommandApprovalResponse struct {
	Decision string `json:"decision"`
}

type FileChangeApprovalParams struct {
	ThreadID string `json:"threadId"`
	TurnID   string `json:"turnId"`
	ItemID   string `json:"itemId"`
}

type FileChangeApprovalResponse struct {
	Decision string `json:"decision"`
}
