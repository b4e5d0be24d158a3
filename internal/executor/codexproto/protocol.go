// Package codexproto adapts the coding-agent JSON-RPC protocol (named
// "codex" after the agent kind it was grounded on) into an
// executor.Profile. The wire shape — line-delimited JSON, "jsonrpc":"2.0"
// omitted — and the request/response/notification plumbing are carried
// over from the teacher's internal/codexrpc client; what changes is the
// transport: instead of owning its own stdout pipe, the client treats
// the attempt's Message Store as its read side (the supervisor already
// drains the child's stdout into Stdout messages, in order, exactly
// once) and the child's stdin as its write side.
package codexproto

import "encoding/json"

// RequestID can be a string or integer; carried as raw JSON.
type RequestID = json.RawMessage

// Request is a JSON-RPC request from client to server.
type Request struct {
	ID     RequestID        `json:"id"`
	Method string           `json:"method"`
	Params *json.RawMessage `json:"params,omitempty"`
}

// Response is a successful JSON-RPC response.
type Response struct {
	ID     RequestID       `json:"id"`
	Result json.RawMessage `json:"result"`
}

// ErrorResponse is a JSON-RPC error response.
type ErrorResponse struct {
	ID    RequestID `json:"id"`
	Error RPCError  `json:"error"`
}

// RPCError is the error body of a JSON-RPC error response.
type RPCError struct {
	Code    int64            `json:"code"`
	Message string           `json:"message"`
	Data    *json.RawMessage `json:"data,omitempty"`
}

// Notification is a JSON-RPC notification (no id field).
type Notification struct {
	Method string           `json:"method"`
	Params *json.RawMessage `json:"params,omitempty"`
}

// ServerRequest is a JSON-RPC request from server to client, e.g. an
// approval prompt. It carries both id and method.
type ServerRequest struct {
	ID     RequestID        `json:"id"`
	Method string           `json:"method"`
	Params *json.RawMessage `json:"params,omitempty"`
}
