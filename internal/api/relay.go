package api

import (
	"context"

	"github.com/vibeorchestrator/engine/internal/msgstore"
)

// relayStore replays store's history then live messages onto topic as
// Events, until Finished, the live channel closes, or ctx is cancelled.
// Both the process-message stream and the attempt-diff stream use this:
// a msgstore.Store is the uniform wire format for either.
func relayStore(ctx context.Context, hub *Hub, topic string, store *msgstore.Store) {
	history, live := store.Subscribe()
	for _, msg := range history {
		hub.Broadcast(topic, toEvent(msg))
		if msg.Kind == msgstore.KindFinished {
			return
		}
	}
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-live:
			if !ok {
				return
			}
			hub.Broadcast(topic, toEvent(msg))
			if msg.Kind == msgstore.KindFinished {
				return
			}
		}
	}
}

func toEvent(msg msgstore.Message) Event {
	switch msg.Kind {
	case msgstore.KindStdout:
		return Event{Type: "stdout", Data: msg.Text}
	case msgstore.KindStderr:
		return Event{Type: "stderr", Data: msg.Text}
	case msgstore.KindSessionID:
		return Event{Type: "session_id", Data: msg.Text}
	case msgstore.KindJSONPatch:
		return Event{Type: "json_patch", Data: msg.Patch}
	case msgstore.KindUsage:
		return Event{Type: "usage", Data: msg.Usage}
	default:
		return Event{Type: "finished"}
	}
}
