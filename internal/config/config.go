// Package config loads the engine's runtime configuration via
// github.com/spf13/viper, YAML with environment-variable overrides, per
// SPEC_FULL.md's ambient-stack section.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the engine's full runtime configuration.
type Config struct {
	// Addr is the HTTP server's listen address.
	Addr string `mapstructure:"addr"`
	// WorktreeBaseDir overrides the managed worktree base directory;
	// empty keeps worktree.BaseDir()'s OS-temp-rooted default.
	WorktreeBaseDir string `mapstructure:"worktree_base_dir"`
	// DataDir, if set, persists entity state as JSON snapshots under
	// this directory (internal/store.Snapshot); empty keeps the
	// in-memory-only store.
	DataDir string `mapstructure:"data_dir"`
	// LogDir holds each process's append-only on-disk log
	// (internal/logstore). Defaults to <os temp>/orchestratord-logs.
	LogDir string `mapstructure:"log_dir"`
	// ReclaimInterval is how often the orphan/expired-worktree sweep
	// runs (spec.md §4.A: "every 30 min").
	ReclaimInterval time.Duration `mapstructure:"reclaim_interval"`
	// DiffByteBudget overrides diffstream's cumulative-content budget;
	// zero keeps its 200 MiB default.
	DiffByteBudget int `mapstructure:"diff_byte_budget"`
	// AutoCommit enables the orchestrator's auto-commit rule after a
	// successful CodingAgent/CleanupScript process.
	AutoCommit bool `mapstructure:"auto_commit"`
	// CodexBinary is the path to the codex app-server executable the
	// codexproto executor profile spawns.
	CodexBinary string `mapstructure:"codex_binary"`
	// LogLevel and LogPretty feed internal/logging.Options directly.
	LogLevel  string `mapstructure:"log_level"`
	LogPretty bool   `mapstructure:"log_pretty"`

	// DisableWorktreeOrphanCleanup mirrors the DISABLE_WORKTREE_ORPHAN_CLEANUP
	// kill-switch. internal/worktree.Reclaimer reads the environment
	// variable directly (operators set it ad hoc without a restart),
	// so this field is informational only — surfaced for `config show`
	// style commands, not consulted by the reclaimer itself.
	DisableWorktreeOrphanCleanup bool `mapstructure:"-"`
}

func defaults() Config {
	return Config{
		Addr:            ":8080",
		LogDir:          filepath.Join(os.TempDir(), "orchestratord-logs"),
		ReclaimInterval: 30 * time.Minute,
		AutoCommit:      true,
		CodexBinary:     "codex",
		LogLevel:        "info",
	}
}

// Load reads configuration from path (if non-empty and present) merged
// with VIBEORCHESTRATOR_-prefixed environment overrides, falling back
// to defaults() for anything unset. path may be empty to use defaults
// and environment only.
func Load(path string) (*Config, error) {
	v := viper.New()

	d := defaults()
	v.SetDefault("addr", d.Addr)
	v.SetDefault("log_dir", d.LogDir)
	v.SetDefault("reclaim_interval", d.ReclaimInterval)
	v.SetDefault("auto_commit", d.AutoCommit)
	v.SetDefault("codex_binary", d.CodexBinary)
	v.SetDefault("log_level", d.LogLevel)

	v.SetEnvPrefix("VIBEORCHESTRATOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if !os.IsNotExist(err) {
				return nil, err
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	_, cfg.DisableWorktreeOrphanCleanup = os.LookupEnv("DISABLE_WORKTREE_ORPHAN_CLEANUP")
	return &cfg, nil
}
