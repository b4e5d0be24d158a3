package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vibeorchestrator/engine/internal/model"
	"github.com/vibeorchestrator/engine/internal/orchestrator"
)

func (s *Server) handleListAttempts(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	attempts, err := s.repo.ListTaskAttempts(r.Context(), taskID)
	if err != nil {
		writeJSON(w, httpStatusFor(err), map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, attempts)
}

func (s *Server) handleGetAttempt(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	attempt, err := s.repo.GetTaskAttempt(r.Context(), id)
	if err != nil {
		writeJSON(w, httpStatusFor(err), map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, attempt)
}

type startAttemptRequest struct {
	Action *model.ExecutorAction `json:"action"`
}

func (s *Server) handleStartAttempt(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	attempt, err := s.repo.GetTaskAttempt(r.Context(), id)
	if err != nil {
		writeJSON(w, httpStatusFor(err), map[string]string{"error": err.Error()})
		return
	}

	var req startAttemptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Action == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid action chain"})
		return
	}

	// StartAttempt blocks until the chain finalizes; callers attach the
	// process-message and diff WebSockets to watch it run. The chain
	// outlives this request, so its context is detached from r's
	// cancellation.
	ctx := context.WithoutCancel(r.Context())
	go func() {
		if err := s.orch.StartAttempt(ctx, attempt, req.Action); err != nil {
			s.log.Error().Err(err).Str("attempt_id", id).Msg("start attempt")
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

type retryAttemptRequest struct {
	BoundaryProcessID string                `json:"boundaryProcessId"`
	ForceWhenDirty    bool                  `json:"forceWhenDirty"`
	PerformGitReset   bool                  `json:"performGitReset"`
	Next              *model.ExecutorAction `json:"next"`
}

func (s *Server) handleRetryAttempt(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	attempt, err := s.repo.GetTaskAttempt(r.Context(), id)
	if err != nil {
		writeJSON(w, httpStatusFor(err), map[string]string{"error": err.Error()})
		return
	}

	var req retryAttemptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.BoundaryProcessID == "" || req.Next == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid retry request"})
		return
	}

	opts := orchestrator.RetryOptions{ForceWhenDirty: req.ForceWhenDirty, PerformGitReset: req.PerformGitReset}
	ctx := context.WithoutCancel(r.Context())
	go func() {
		if err := s.orch.Restore(ctx, attempt, req.BoundaryProcessID, opts, req.Next); err != nil {
			s.log.Error().Err(err).Str("attempt_id", id).Msg("restore attempt")
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "restoring"})
}

type followUpRequest struct {
	Prompt string `json:"prompt"`
}

func (s *Server) handleQueueFollowUp(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req followUpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Prompt == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "prompt required"})
		return
	}
	s.orch.QueueFollowUp(id, req.Prompt)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

type mergeAttemptRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

func (s *Server) handleMergeAttempt(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	attempt, err := s.repo.GetTaskAttempt(r.Context(), id)
	if err != nil {
		writeJSON(w, httpStatusFor(err), map[string]string{"error": err.Error()})
		return
	}

	var req mergeAttemptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Title == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "title required"})
		return
	}

	mg, err := s.orch.MergeDirect(r.Context(), attempt, req.Title, req.Description)
	if err != nil {
		writeJSON(w, httpStatusFor(err), map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, mg)
}
