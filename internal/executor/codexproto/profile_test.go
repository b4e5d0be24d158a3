package codexproto

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vibeorchestrator/engine/internal/model"
)

func TestBuildReturnsCodexAppServerSpawnable(t *testing.T) {
	action := &model.ExecutorAction{
		Type: model.ActionCodingAgentInitialRequest,
		CodingAgentInitial: &model.CodingAgentInitialRequest{
			Prompt:            "fix the bug",
			ExecutorProfileID: model.ExecutorProfileID{Executor: Name},
		},
	}

	sp, norm, err := Profile{}.Build(action, "/work/tree")
	require.NoError(t, err)
	require.NotNil(t, norm)
	require.Equal(t, "codex", sp.Command)
	require.Equal(t, []string{"app-server", "--listen", "stdio://"}, sp.Args)
	require.Equal(t, "/work/tree", sp.Dir)
}

func TestBuildRejectsWrongActionType(t *testing.T) {
	_, _, err := Profile{}.Build(&model.ExecutorAction{Type: model.ActionScriptRequest}, "/work/tree")
	require.Error(t, err)
}

func TestResumeCarriesSessionID(t *testing.T) {
	action := &model.ExecutorAction{
		Type: model.ActionCodingAgentFollowUpRequest,
		CodingAgentFollowUp: &model.CodingAgentFollowUpRequest{
			Prompt:            "keep going",
			ExecutorProfileID: model.ExecutorProfileID{Executor: Name},
		},
	}
	_, norm, err := Profile{}.Resume(action, "/work/tree", "thread-42")
	require.NoError(t, err)

	n, ok := norm.(*normalizer)
	require.True(t, ok)
	require.Equal(t, "thread-42", n.resumeThreadID)
}

func TestApproveAutoAcceptsCommandAndFileChange(t *testing.T) {
	n := &normalizer{}

	raw, err := n.approve(nil, "commandApproval", nil)
	require.NoError(t, err)
	require.JSONEq(t, `{"decision":"accept"}`, string(raw))

	raw, err = n.approve(nil, "fileChangeApproval", nil)
	require.NoError(t, err)
	require.JSONEq(t, `{"decision":"accept"}`, string(raw))

	_, err = n.approve(nil, "somethingElse", nil)
	require.Error(t, err)
}
