// Package cli is the engine's cobra command tree, grounded on
// re-cinq-detergent's internal/cli layout (a rootCmd plus one file per
// subcommand, each registering itself via init()) in place of the
// teacher's bare flag package, per SPEC_FULL.md's ambient-stack
// section.
package cli

import (
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "orchestratord",
	Short: "Run and drive the attempt orchestration engine",
	Long: `orchestratord supervises coding-agent attempts: it allocates Git
worktrees, chains setup/agent/cleanup processes per attempt, streams
live output and diffs, and reconciles retries and merges.`,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file (YAML)")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
