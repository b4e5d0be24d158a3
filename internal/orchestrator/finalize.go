package orchestrator

import (
	"context"

	"github.com/google/uuid"

	"github.com/vibeorchestrator/engine/internal/model"
)

func newID() string { return uuid.NewString() }

// finalize implements "finalized -- task.status := InReview (notify)"
// plus the queued-follow-up rule: if a follow-up prompt was queued and
// succeeded is true, a new CodingAgent execution is spawned (follow-up
// variant if the attempt's latest non-dropped CodingAgent process has a
// recorded session id, initial otherwise); if succeeded is false the
// queued message is discarded.
func (o *Orchestrator) finalize(ctx context.Context, attempt *model.TaskAttempt, succeeded bool) {
	task, err := o.repo.GetTask(ctx, attempt.TaskID)
	if err == nil {
		_ = o.repo.UpdateTaskStatus(ctx, task.ID, model.TaskInReview)
	}

	prompt, queued := o.popQueuedFollowUp(attempt.ID)
	if !queued {
		return
	}
	if !succeeded {
		return
	}

	profileID, err := o.latestProfileID(ctx, attempt.ID)
	if err != nil {
		o.log.Warn().Err(err).Str("attempt_id", attempt.ID).Msg("no executor profile on record for queued follow-up")
		return
	}

	var next *model.ExecutorAction
	if session, err := o.repo.LatestExecutorSession(ctx, attempt.ID); err == nil && session != nil && session.SessionID != "" {
		next = &model.ExecutorAction{
			Type: model.ActionCodingAgentFollowUpRequest,
			CodingAgentFollowUp: &model.CodingAgentFollowUpRequest{
				Prompt:            prompt,
				SessionID:         session.SessionID,
				ExecutorProfileID: profileID,
			},
		}
	} else {
		next = &model.ExecutorAction{
			Type: model.ActionCodingAgentInitialRequest,
			CodingAgentInitial: &model.CodingAgentInitialRequest{
				Prompt:            prompt,
				ExecutorProfileID: profileID,
			},
		}
	}

	if err := o.StartAttempt(ctx, attempt, next); err != nil {
		o.log.Error().Err(err).Str("attempt_id", attempt.ID).Msg("spawn queued follow-up")
	}
}

// latestProfileID finds the ExecutorProfileID of the most recent
// non-dropped CodingAgent process in the attempt, via its action.
func (o *Orchestrator) latestProfileID(ctx context.Context, attemptID string) (model.ExecutorProfileID, error) {
	procs, err := o.repo.ListExecutionProcesses(ctx, attemptID, false)
	if err != nil {
		return model.ExecutorProfileID{}, err
	}
	for i := len(procs) - 1; i >= 0; i-- {
		p := procs[i]
		switch p.Action.Type {
		case model.ActionCodingAgentInitialRequest:
			return p.Action.CodingAgentInitial.ExecutorProfileID, nil
		case model.ActionCodingAgentFollowUpRequest:
			return p.Action.CodingAgentFollowUp.ExecutorProfileID, nil
		}
	}
	return model.ExecutorProfileID{}, errNoExecutorProfile
}
