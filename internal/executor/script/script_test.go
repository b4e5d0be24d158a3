package script

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vibeorchestrator/engine/internal/model"
)

func TestBuildWrapsScriptUnderShell(t *testing.T) {
	action := &model.ExecutorAction{
		Type:   model.ActionScriptRequest,
		Script: &model.ScriptRequest{Script: "echo hi", Context: model.ScriptContextSetup},
	}

	spawnable, norm, err := Profile{}.Build(action, "/tmp/worktree")
	require.NoError(t, err)
	require.Nil(t, norm)
	require.Equal(t, "sh", spawnable.Command)
	require.Equal(t, []string{"-c", "echo hi"}, spawnable.Args)
	require.Equal(t, "/tmp/worktree", spawnable.Dir)
}

func TestBuildRejectsNonScriptAction(t *testing.T) {
	action := &model.ExecutorAction{Type: model.ActionCodingAgentInitialRequest}
	_, _, err := Profile{}.Build(action, "/tmp/worktree")
	require.Error(t, err)
}

func TestResumeDelegatesToBuild(t *testing.T) {
	action := &model.ExecutorAction{
		Type:   model.ActionScriptRequest,
		Script: &model.ScriptRequest{Script: "echo resumed"},
	}
	spawnable, _, err := Profile{}.Resume(action, "/tmp/worktree", "ignored-session")
	require.NoError(t, err)
	require.Equal(t, []string{"-c", "echo resumed"}, spawnable.Args)
}
