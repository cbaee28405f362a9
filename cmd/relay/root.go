package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/arihanv/relay/internal/config"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "relay",
	Short: "Autonomous coding-agent dispatch coordinator",
	Long: `Relay coordinates a fleet of autonomous coding-agent workers against
an issue tracker.

It listens for issue assignments, checks blocking relations before
dispatching, hands tasks to tmux or SSH worker sessions in per-task git
worktrees, and routes every tracker API call through a rate-limited
request gateway.

Start the coordinator with 'relay serve'.`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (default: XDG config + .relay.yaml overrides)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig honors the --config flag, falling back to the layered default
// search.
func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.LoadFromPath(configPath)
	}
	return config.Load()
}
