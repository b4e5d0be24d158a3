package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/vibeorchestrator/engine/internal/api"
	"github.com/vibeorchestrator/engine/internal/config"
	"github.com/vibeorchestrator/engine/internal/executor"
	"github.com/vibeorchestrator/engine/internal/executor/codexproto"
	"github.com/vibeorchestrator/engine/internal/executor/script"
	"github.com/vibeorchestrator/engine/internal/gitutil"
	"github.com/vibeorchestrator/engine/internal/logging"
	"github.com/vibeorchestrator/engine/internal/logstore"
	"github.com/vibeorchestrator/engine/internal/orchestrator"
	"github.com/vibeorchestrator/engine/internal/store"
	"github.com/vibeorchestrator/engine/internal/supervisor"
	"github.com/vibeorchestrator/engine/internal/worktree"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP/WebSocket orchestration daemon",
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

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		if err := orch.Recover(ctx); err != nil {
			return fmt.Errorf("recover orchestrator state: %w", err)
		}

		reclaimer := worktree.NewReclaimer(worktrees, repo)

		server := api.NewServer(repo, git, orch, api.Config{DiffByteBudget: cfg.DiffByteBudget}, log)

		return runDaemon(ctx, cancel, cfg, log, reclaimer, server)
	},
}

func buildRepository(cfg *config.Config) (store.Repository, error) {
	if cfg.DataDir == "" {
		return store.NewMemory(), nil
	}
	return store.NewSnapshot(cfg.DataDir)
}

func runDaemon(ctx context.Context, cancel context.CancelFunc, cfg *config.Config, log zerolog.Logger, reclaimer *worktree.Reclaimer, server *api.Server) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(cfg.ReclaimInterval)
	defer ticker.Stop()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				reclaimer.Run(ctx)
			}
		}
	}()

	serveErrCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Addr).Msg("serving")
		serveErrCh <- server.Start(cfg.Addr)
	}()

	select {
	case <-sigCh:
		log.Info().Msg("shutting down")
		server.Shutdown()
		cancel()
		<-serveErrCh
		return nil
	case err := <-serveErrCh:
		cancel()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
