package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/teranos/tabsync/cmd/tabsync-agent/commands"
	"github.com/teranos/tabsync/logger"
)

var rootCmd = &cobra.Command{
	Use:   "tabsync-agent",
	Short: "tabsync-agent - adaptive CRDT tab sync engine",
	Long: `tabsync-agent drives the browser tab/window sync core: it tracks
windows, batches local changes into CRDT operations, and exchanges them
with a sync server on an adaptive schedule.

Available commands:
  run     - Run the sync agent, reading browser events from stdin
  status  - Show persisted device identity and sync state
  version - Show build information`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		jsonOutput, _ := cmd.Flags().GetBool("json")
		if err := logger.Initialize(jsonOutput); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().Bool("json", false, "Emit structured JSON logs instead of human-readable output")
	rootCmd.PersistentFlags().String("config", "", "Path to an explicit config file (bypasses the default search path)")

	rootCmd.AddCommand(commands.RunCmd)
	rootCmd.AddCommand(commands.StatusCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
