package codexproto

import (
	"encoding/json"
	"io"
	"sync"
	"sync/atomic"
)

// NotificationHandler is called for each server notification.
type NotificationHandler func(method string, params json.RawMessage)

// ServerRequestHandler handles server-initiated requests (e.g. an
// approval prompt). It returns a JSON-encodable result or an error.
type ServerRequestHandler func(id RequestID, method string, params json.RawMessage) (json.RawMessage, error)

// Client is a JSON-RPC 2.0 client whose write side is the child
// process's stdin and whose read side is a msgstore.Store's Stdout
// messages (see Run), rather than a private stdout pipe.
type Client struct {
	input   io.Writer
	writeMu sync.Mutex

	mu           sync.Mutex
	nextID       atomic.Int64
	pendingCalls map[string]chan *rpcResult

	notifyHandler  NotificationHandler
	requestHandler ServerRequestHandler

	done chan struct{}
	err  error
}

type rpcResult struct {
	Result json.RawMessage
	Error  *RPCError
}

// NewClient creates a Client that writes requests to input.
func NewClient(input io.Writer) *Client {
	return &Client{
		input:        input,
		pendingCalls: make(map[string]chan *rpcResult),
		done:         make(chan struct{}),
	}
}

// SetNotificationHandler sets the handler for server notifications.
func (c *Client) SetNotificationHandler(h NotificationHandler) {
	c.notifyHandler = h
}

// SetServerRequestHandler sets the handler for server-initiated requests.
func (c *Client) SetServerRequestHandler(h ServerRequestHandler) {
	c.requestHandler = h
}

// Done returns a channel closed once the client's read side ends.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Err returns the error (if any) that ended the client's read side.
func (c *Client) Err() error {
	return c.err
}
