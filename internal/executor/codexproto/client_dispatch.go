package codexproto

import (
	"context"
	"encoding/json"

	"github.com/vibeorchestrator/engine/internal/msgstore"
)

// Run replays store's Stdout messages as the client's JSON-RPC read
// side (history first, then live, ending at Finished — msgstore's
// replay contract stands in for reading a stdout pipe line by line,
// since the supervisor already owns that pipe). It returns once store
// reaches Finished or ctx is cancelled.
func (c *Client) Run(ctx context.Context, store *msgstore.Store) {
	defer close(c.done)

	history, live := store.Subscribe()
	for _, msg := range history {
		if !c.consume(msg) {
			return
		}
	}
	for {
		select {
		case <-ctx.Done():
			c.err = ctx.Err()
			c.drainPending()
			return
		case msg, ok := <-live:
			if !ok {
				c.drainPending()
				return
			}
			if !c.consume(msg) {
				return
			}
		}
	}
}

// consume handles one message, returning false if it was the terminal
// Finished sentinel.
func (c *Client) consume(msg msgstore.Message) bool {
	if msg.Kind == msgstore.KindFinished {
		c.drainPending()
		return false
	}
	if msg.Kind == msgstore.KindStdout {
		c.dispatch([]byte(msg.Text))
	}
	return true
}

func (c *Client) drainPending() {
	c.mu.Lock()
	defer c.mu.Unlock()
	errResult := &rpcResult{Error: &RPCError{Code: -1, Message: "client closed"}}
	for id, ch := range c.pendingCalls {
		select {
		case ch <- errResult:
		default:
		}
		delete(c.pendingCalls, id)
	}
}

// dispatch routes one incoming JSON-RPC line based on its fields.
func (c *Client) dispatch(line []byte) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(line, &raw); err != nil {
		return
	}

	_, hasID := raw["id"]
	_, hasMethod := raw["method"]
	_, hasResult := raw["result"]
	_, hasError := raw["error"]

	switch {
	case hasResult && hasID:
		var resp Response
		if json.Unmarshal(line, &resp) != nil {
			return
		}
		c.resolveCall(resp.ID, &rpcResult{Result: resp.Result})

	case hasError && hasID:
		var errResp ErrorResponse
		if json.Unmarshal(line, &errResp) != nil {
			return
		}
		c.resolveCall(errResp.ID, &rpcResult{Error: &errResp.Error})

	case hasMethod && hasID:
		var req ServerRequest
		if json.Unmarshal(line, &req) != nil {
			return
		}
		go c.handleServerRequest(req)

	case hasMethod && !hasID:
		var notif Notification
		if json.Unmarshal(line, &notif) != nil {
			return
		}
		if c.notifyHandler != nil {
			var params json.RawMessage
			if notif.Params != nil {
				params = *notif.Params
			}
			c.notifyHandler(notif.Method, params)
		}
	}
}

func (c *Client) resolveCall(id RequestID, result *rpcResult) {
	idStr := string(id)
	c.mu.Lock()
	ch, ok := c.pendingCalls[idStr]
	if ok {
		delete(c.pendingCalls, idStr)
	}
	c.mu.Unlock()
	if ok {
		select {
		case ch <- result:
		default:
		}
	}
}

func (c *Client) handleServerRequest(req ServerRequest) {
	if c.requestHandler == nil {
		c.writeResponse(req.ID, nil, &RPCError{Code: -32601, Message: "no handler registered"})
		return
	}
	var params json.RawMessage
	if req.Params != nil {
		params = *req.Params
	}
	result, err := c.requestHandler(req.ID, req.Method, params)
	if err != nil {
		c.writeResponse(req.ID, nil, &RPCError{Code: -1, Message: err.Error()})
		return
	}
	c.writeResponse(req.ID, result, nil)
}
