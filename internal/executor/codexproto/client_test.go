package codexproto

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vibeorchestrator/engine/internal/msgstore"
)

// readRequest decodes the single line most recently written to buf.
func readRequest(t *testing.T, buf *bytes.Buffer) Request {
	t.Helper()
	line, err := buf.ReadBytes('\n')
	require.NoError(t, err)
	var req Request
	require.NoError(t, json.Unmarshal(line, &req))
	return req
}

func TestCallRoundTripsThroughStore(t *testing.T) {
	var buf bytes.Buffer
	store := msgstore.New()
	client := NewClient(&buf)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	go client.Run(ctx, store)

	result := make(chan json.RawMessage, 1)
	go func() {
		raw, err := client.Call(ctx, "thread/start", ThreadStartParams{})
		require.NoError(t, err)
		result <- raw
	}()

	require.Eventually(t, func() bool { return buf.Len() > 0 }, time.Second, time.Millisecond)
	req := readRequest(t, &buf)
	require.Equal(t, "thread/start", req.Method)

	resp, err := json.Marshal(ThreadStartResponse{Thread: Thread{ID: "thread-1"}})
	require.NoError(t, err)
	store.Push(msgstore.Stdout(string(mustMarshal(t, Response{ID: req.ID, Result: resp}))))

	select {
	case raw := <-result:
		var parsed ThreadStartResponse
		require.NoError(t, json.Unmarshal(raw, &parsed))
		require.Equal(t, "thread-1", parsed.Thread.ID)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for Call to resolve")
	}
}

func TestRunEndsOnFinished(t *testing.T) {
	var buf bytes.Buffer
	store := msgstore.New()
	client := NewClient(&buf)

	done := make(chan struct{})
	go func() {
		client.Run(context.Background(), store)
		close(done)
	}()

	store.Push(msgstore.Finished)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after Finished")
	}
}

func mustMarshal(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}
