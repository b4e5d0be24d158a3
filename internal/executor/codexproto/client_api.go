package codexproto

import (
	"context"
	"encoding/json"
	"fmt"
)

// Initialize performs the handshake with the agent process.
func (c *Client) Initialize(ctx context.Context) (*InitializeResponse, error) {
	raw, err := c.Call(ctx, "initialize", InitializeParams{
		ClientInfo: ClientInfo{Name: "vibeorchestrator-engine", Version: "0.1.0"},
	})
	if err != nil {
		return nil, fmt.Errorf("initialize: %w", err)
	}
	var resp InitializeResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal initialize response: %w", err)
	}
	if err := c.Notify("initialized", nil); err != nil {
		return nil, fmt.Errorf("send initialized notification: %w", err)
	}
	return &resp, nil
}

// ThreadStart creates a new conversation thread.
func (c *Client) ThreadStart(ctx context.Context, params ThreadStartParams) (*ThreadStartResponse, error) {
	raw, err := c.Call(ctx, "thread/start", params)
	if err != nil {
		return nil, fmt.Errorf("thread/start: %w", err)
	}
	var resp ThreadStartResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal thread/start response: %w", err)
	}
	return &resp, nil
}

// ThreadResume reattaches to an existing thread by id, for a follow-up
// request continuing a prior session.
func (c *Client) ThreadResume(ctx context.Context, params ThreadResumeParams) (*ThreadStartResponse, error) {
	raw, err := c.Call(ctx, "thread/resume", params)
	if err != nil {
		return nil, fmt.Errorf("thread/resume: %w", err)
	}
	var resp ThreadStartResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal thread/resume response: %w", err)
	}
	return &resp, nil
}

// TurnStart sends user input and begins a new turn.
func (c *Client) TurnStart(ctx context.Context, params TurnStartParams) (*TurnStartResponse, error) {
	raw, err := c.Call(ctx, "turn/start", params)
	if err != nil {
		return nil, fmt.Errorf("turn/start: %w", err)
	}
	var resp TurnStartResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal turn/start response: %w", err)
	}
	return &resp, nil
}

// TurnInterrupt stops the current turn.
func (c *Client) TurnInterrupt(ctx context.Context, params TurnInterruptParams) error {
	_, err := c.Call(ctx, "turn/interrupt", params)
	return err
}
