package executor

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vibeorchestrator/engine/internal/model"
	"github.com/vibeorchestrator/engine/internal/supervisor"
)

type stubProfile struct{}

func (stubProfile) Build(action *model.ExecutorAction, worktreePath string) (supervisor.Spawnable, supervisor.Normalizer, error) {
	return supervisor.Spawnable{Command: "stub"}, nil, nil
}

func (stubProfile) Resume(action *model.ExecutorAction, worktreePath, sessionID string) (supervisor.Spawnable, supervisor.Normalizer, error) {
	return supervisor.Spawnable{Command: "stub-resume"}, nil, nil
}

func TestRegistryLookupKnownExecutor(t *testing.T) {
	r := NewRegistry()
	r.Register("stub", stubProfile{})

	p, err := r.Lookup(model.ExecutorProfileID{Executor: "stub"})
	require.NoError(t, err)

	sp, _, err := p.Build(&model.ExecutorAction{}, "/tmp")
	require.NoError(t, err)
	require.Equal(t, "stub", sp.Command)
}

func TestRegistryLookupUnknownExecutor(t *testing.T) {
	r := NewRegistry()
	_, err := r.Lookup(model.ExecutorProfileID{Executor: "nope"})
	require.Error(t, err)

	var unknown *ErrUnknownExecutor
	require.ErrorAs(t, err, &unknown)
	require.Equal(t, "nope", unknown.Executor)
}

func TestProfileIDOfCodingAgentActions(t *testing.T) {
	initial := &model.ExecutorAction{
		Type:              model.ActionCodingAgentInitialRequest,
		CodingAgentInitial: &model.CodingAgentInitialRequest{ExecutorProfileID: model.ExecutorProfileID{Executor: "codex"}},
	}
	id, ok := ProfileIDOf(initial)
	require.True(t, ok)
	require.Equal(t, "codex", id.Executor)

	script := &model.ExecutorAction{Type: model.ActionScriptRequest, Script: &model.ScriptRequest{}}
	_, ok = ProfileIDOf(script)
	require.False(t, ok)
}
