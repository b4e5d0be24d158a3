package codexproto

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/vibeorchestrator/engine/internal/model"
	"github.com/vibeorchestrator/engine/internal/msgstore"
	"github.com/vibeorchestrator/engine/internal/supervisor"
)

// Name is the value this profile is registered under in
// executor.Registry, and the ExecutorProfileID.Executor it answers to.
const Name = "codex"

const initializeTimeout = 10 * time.Second

// Profile runs the coding agent as a long-lived app-server subprocess
// speaking the protocol in this package over stdio, grounded on the
// teacher's internal/codexrpc/process.go spawn shape.
type Profile struct {
	// BinaryPath is the agent executable; defaults to "codex" on PATH.
	BinaryPath string
}

func (p Profile) binary() string {
	if p.BinaryPath != "" {
		return p.BinaryPath
	}
	return "codex"
}

func (p Profile) spawnable(worktreePath string) supervisor.Spawnable {
	return supervisor.Spawnable{
		Command: p.binary(),
		Args:    []string{"app-server", "--listen", "stdio://"},
		Dir:     worktreePath,
	}
}

// Build starts a fresh conversation for a CodingAgentInitialRequest.
func (p Profile) Build(action *model.ExecutorAction, worktreePath string) (supervisor.Spawnable, supervisor.Normalizer, error) {
	req := action.CodingAgentInitial
	if action.Type != model.ActionCodingAgentInitialRequest || req == nil {
		return supervisor.Spawnable{}, nil, fmt.Errorf("codexproto: action is not a coding_agent_initial_request")
	}
	n := &normalizer{prompt: req.Prompt, variant: req.ExecutorProfileID.Variant}
	return p.spawnable(worktreePath), n, nil
}

// Resume reattaches to sessionID (the thread id reported by an earlier
// SessionId message) for a CodingAgentFollowUpRequest.
func (p Profile) Resume(action *model.ExecutorAction, worktreePath, sessionID string) (supervisor.Spawnable, supervisor.Normalizer, error) {
	req := action.CodingAgentFollowUp
	if action.Type != model.ActionCodingAgentFollowUpRequest || req == nil {
		return supervisor.Spawnable{}, nil, fmt.Errorf("codexproto: action is not a coding_agent_follow_up_request")
	}
	n := &normalizer{prompt: req.Prompt, variant: req.ExecutorProfileID.Variant, resumeThreadID: sessionID}
	return p.spawnable(worktreePath), n, nil
}

// normalizer drives one turn of the protocol against a spawned agent
// process: it performs the initialize/thread/turn handshake over input,
// reads the resulting notification stream back out of the Message
// Store (see Client.Run), and republishes it as JsonPatch/SessionId/
// Usage messages per spec.md §4.E's normalize_logs contract. Command
// and file-change approvals auto-accept: this engine has no interactive
// approval surface, matching the "no human in the loop" shape of an
// unattended orchestration run.
type normalizer struct {
	prompt         string
	variant        string
	resumeThreadID string
}

func (n *normalizer) NormalizeLogs(ctx context.Context, store *msgstore.Store, worktreePath string, input io.Writer, fireExit func(supervisor.ExitSignal)) {
	client := NewClient(input)
	client.SetServerRequestHandler(n.approve)

	itemText := make(map[string]*[]byte)
	client.SetNotificationHandler(func(method string, params json.RawMessage) {
		n.handleNotification(store, itemText, method, params, fireExit)
	})

	go client.Run(ctx, store)

	initCtx, cancel := context.WithTimeout(ctx, initializeTimeout)
	defer cancel()

	if _, err := client.Initialize(initCtx); err != nil {
		fireExit(supervisor.ExitSignal{Success: false})
		return
	}

	threadID, err := n.openThread(initCtx, client, worktreePath)
	if err != nil {
		fireExit(supervisor.ExitSignal{Success: false})
		return
	}
	store.Push(msgstore.SessionID(threadID))

	resp, err := client.TurnStart(ctx, TurnStartParams{
		ThreadID: threadID,
		Input:    []UserInput{{Type: "text", Text: n.prompt}},
	})
	if err != nil {
		fireExit(supervisor.ExitSignal{Success: false})
		return
	}

	success := resp.Turn.Status == "completed"
	if resp.Turn.Usage != nil {
		store.Push(msgstore.UsageMsg(msgstore.Usage{
			InputTokens:  resp.Turn.Usage.InputTokens,
			OutputTokens: resp.Turn.Usage.OutputTokens,
			CachedTokens: resp.Turn.Usage.CachedTokens,
		}))
	}
	fireExit(supervisor.ExitSignal{Success: success})
}

func (n *normalizer) openThread(ctx context.Context, client *Client, worktreePath string) (string, error) {
	if n.resumeThreadID != "" {
		resp, err := client.ThreadResume(ctx, ThreadResumeParams{ThreadID: n.resumeThreadID})
		if err != nil {
			return "", err
		}
		return resp.Thread.ID, nil
	}
	cwd := worktreePath
	resp, err := client.ThreadStart(ctx, ThreadStartParams{Cwd: &cwd})
	if err != nil {
		return "", err
	}
	return resp.Thread.ID, nil
}

func (n *normalizer) handleNotification(store *msgstore.Store, itemText map[string]*[]byte, method string, params json.RawMessage, fireExit func(supervisor.ExitSignal)) {
	switch method {
	case "agentMessageDelta":
		var delta AgentMessageDelta
		if json.Unmarshal(params, &delta) != nil {
			return
		}
		buf, ok := itemText[delta.ItemID]
		if !ok {
			b := []byte{}
			buf = &b
			itemText[delta.ItemID] = buf
		}
		*buf = append(*buf, delta.Delta...)
		store.Push(msgstore.JSONPatch(msgstore.Patch{
			Op:    "add",
			Path:  "/entries/" + msgstore.EncodePointerSegment(delta.ItemID),
			Value: string(*buf),
		}))
	case "turnCompleted":
		var notif TurnCompletedNotification
		if json.Unmarshal(params, &notif) == nil && notif.Turn.Usage != nil {
			store.Push(msgstore.UsageMsg(msgstore.Usage{
				InputTokens:  notif.Turn.Usage.InputTokens,
				OutputTokens: notif.Turn.Usage.OutputTokens,
				CachedTokens: notif.Turn.Usage.CachedTokens,
			}))
		}
	}
}

// approve auto-accepts every command and file-change approval request.
func (n *normalizer) approve(id RequestID, method string, params json.RawMessage) (json.RawMessage, error) {
	switch method {
	case "commandApproval":
		return json.Marshal(CommandApprovalResponse{Decision: DecisionAccept})
	case "fileChangeApproval":
		return json.Marshal(FileChangeApprovalResponse{Decision: DecisionAccept})
	default:
		return nil, fmt.Errorf("codexproto: unhandled server request %q", method)
	}
}
