package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWithoutFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.Addr)
	require.Equal(t, 30*time.Minute, cfg.ReclaimInterval)
	require.True(t, cfg.AutoCommit)
	require.Equal(t, "codex", cfg.CodexBinary)
}

func TestLoadReadsYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("addr: \":9090\"\nauto_commit: false\ncodex_binary: /usr/local/bin/codex\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":9090", cfg.Addr)
	require.False(t, cfg.AutoCommit)
	require.Equal(t, "/usr/local/bin/codex", cfg.CodexBinary)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("VIBEORCHESTRATOR_ADDR", ":7777")
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, ":7777", cfg.Addr)
}

func TestLoadSurfacesOrphanCleanupDisableFlag(t *testing.T) {
	t.Setenv("DISABLE_WORKTREE_ORPHAN_CLEANUP", "1")
	cfg, err := Load("")
	require.NoError(t, err)
	require.True(t, cfg.DisableWorktreeOrphanCleanup)
}
