package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vibeorchestrator/engine/internal/config"
	"github.com/vibeorchestrator/engine/internal/gitutil"
	"github.com/vibeorchestrator/engine/internal/logging"
	"github.com/vibeorchestrator/engine/internal/worktree"
)

func init() {
	worktreeCmd.AddCommand(worktreeGCCmd)
	rootCmd.AddCommand(worktreeCmd)
}

var worktreeCmd = &cobra.Command{
	Use:   "worktree",
	Short: "Inspect and reclaim managed worktrees",
}

var worktreeGCCmd = &cobra.Command{
	Use:   "gc",
	Short: "Run one orphan/expired-worktree reclamation sweep",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		log := logging.New(logging.Options{Level: cfg.LogLevel, Pretty: cfg.LogPretty})

		repo, err := buildRepository(cfg)
		if err != nil {
			return fmt.Errorf("build repository: %w", err)
		}

		git := gitutil.New()
		mgr := worktree.NewManager(git, cfg.WorktreeBaseDir, log)
		reclaimer := worktree.NewReclaimer(mgr, repo)

		reclaimer.Run(context.Background())
		return nil
	},
}
