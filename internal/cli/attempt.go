package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vibeorchestrator/engine/internal/config"
	"github.com/vibeorchestrator/engine/internal/executor"
	"github.com/vibeorchestrator/engine/internal/executor/codexproto"
	"github.com/vibeorchestrator/engine/internal/executor/script"
	"github.com/vibeorchestrator/engine/internal/gitutil"
	"github.com/vibeorchestrator/engine/internal/logging"
	"github.com/vibeorchestrator/engine/internal/logstore"
	"github.com/vibeorchestrator/engine/internal/model"
	"github.com/vibeorchestrator/engine/internal/orchestrator"
	"github.com/vibeorchestrator/engine/internal/supervisor"
	"github.com/vibeorchestrator/engine/internal/worktree"
)

var attemptExecutor string

func init() {
	attemptRunCmd.Flags().StringVar(&attemptExecutor, "executor", "codex", "Executor profile to run the task's prompt against")
	attemptCmd.AddCommand(attemptRunCmd)
	rootCmd.AddCommand(attemptCmd)
}

var attemptCmd = &cobra.Command{
	Use:   "attempt",
	Short: "Drive a single attempt outside the HTTP server",
}

var attemptRunCmd = &cobra.Command{
	Use:   "run <attempt-id>",
	Short: "Start an attempt's chain and block until it finishes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		attemptID := args[0]

		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		log := logging.New(logging.Options{Level: cfg.LogLevel, Pretty: cfg.LogPretty})

		repo, err := buildRepository(cfg)
		if err != nil {
			return fmt.Errorf("build repository: %w", err)
		}

		ctx := context.Background()
		attempt, err := repo.GetTaskAttempt(ctx, attemptID)
		if err != nil {
			return fmt.Errorf("load attempt: %w", err)
		}
		task, err := repo.GetTask(ctx, attempt.TaskID)
		if err != nil {
			return fmt.Errorf("load task: %w", err)
		}

		git := gitutil.New()
		worktrees := worktree.NewManager(git, cfg.WorktreeBaseDir, log)
		sup := supervisor.New(log)

		registry := executor.NewRegistry()
		registry.Register("script", script.Profile{})
		registry.Register("codex", codexproto.Profile{BinaryPath: cfg.CodexBinary})

		logs, err := logstore.New(cfg.LogDir, repo)
		if err != nil {
			return fmt.Errorf("open log store: %w", err)
		}

		orch := orchestrator.New(repo, worktrees, git, sup, registry, logs, cfg.AutoCommit, log)

		chain := &model.ExecutorAction{
			Type: model.ActionCodingAgentInitialRequest,
			CodingAgentInitial: &model.CodingAgentInitialRequest{
				Prompt:            task.Description,
				ExecutorProfileID: model.ExecutorProfileID{Executor: attemptExecutor},
			},
		}

		return orch.StartAttempt(ctx, attempt, chain)
	},
}
