package cli

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vibeorchestrator/engine/internal/config"
	"github.com/vibeorchestrator/engine/internal/store"
)

func TestRootCmdRegistersSubcommands(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	require.True(t, names["serve"])
	require.True(t, names["attempt"])
	require.True(t, names["worktree"])
}

func TestBuildRepositoryDefaultsToMemory(t *testing.T) {
	repo, err := buildRepository(&config.Config{})
	require.NoError(t, err)
	require.IsType(t, &store.Memory{}, repo)
}

func TestBuildRepositoryUsesSnapshotWhenDataDirSet(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")
	repo, err := buildRepository(&config.Config{DataDir: dir})
	require.NoError(t, err)
	require.IsType(t, &store.Snapshot{}, repo)
}
