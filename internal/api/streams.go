package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"nhooyr.io/websocket"

	"github.com/vibeorchestrator/engine/internal/diffstream"
	"github.com/vibeorchestrator/engine/internal/msgstore"
)

// handleProcessMessages attaches a live WebSocket to a running process's
// Message Store. Only live processes are served here; a finished
// process's persisted raw entries are read back with internal/logstore's
// ReadRaw, which no endpoint exposes.
func (s *Server) handleProcessMessages(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ms, ok := s.orch.Store(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no live stream for process"})
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	client := NewClient(id, conn, s.hub)
	s.hub.Register(client)

	ctx := r.Context()
	go relayStore(ctx, s.hub, id, ms)
	go client.ReadLoop(ctx)
	client.WriteLoop(ctx, s.log)
}

// handleAttemptDiff attaches a live WebSocket to an attempt's worktree
// diff, streaming an initial full diff followed by incremental
// filesystem-watcher-driven updates (spec.md §4.D) for the lifetime of
// the connection.
func (s *Server) handleAttemptDiff(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	attempt, err := s.repo.GetTaskAttempt(r.Context(), id)
	if err != nil {
		writeJSON(w, httpStatusFor(err), map[string]string{"error": err.Error()})
		return
	}

	baseCommit, err := s.git.MergeBase(r.Context(), attempt.ContainerRef, attempt.Branch, attempt.TargetBranch)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	client := NewClient(id, conn, s.hub)
	s.hub.Register(client)

	ctx := r.Context()
	ms := msgstore.New()
	stream := diffstream.New(s.git, attempt.ContainerRef, baseCommit, false, ms)
	if s.diffByteBudget > 0 {
		stream.SetBudget(s.diffByteBudget)
	}

	go func() {
		if err := stream.RunWorktree(ctx); err != nil {
			s.log.Warn().Err(err).Str("attempt_id", id).Msg("diff stream stopped")
		}
	}()
	go relayStore(ctx, s.hub, id, ms)
	go client.ReadLoop(ctx)
	client.WriteLoop(ctx, s.log)
}
