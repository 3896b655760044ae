// climated ingests temperature and humidity readings from room sensors.
//
// Sensors publish JSON readings on MQTT (and optionally NATS) topics that
// carry the device identifier. climated validates each reading, resolves
// the device and its room, stores it in SQLite and serves the results over
// an HTTP API with a live WebSocket feed.
//
// Run "climated serve" for the daemon; the other subcommands are
// maintenance tools that work on the same configuration file.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Cancel on Ctrl+C or SIGTERM so every command can shut down cleanly.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newRootCmd builds the command tree. A fresh tree per call keeps flag
// state out of package globals.
func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "climated",
		Short:         "Room climate ingestion service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", getConfigPath(),
		"path to the YAML configuration file (env CLIMATE_CONFIG)")

	cfgPath := func() string { return configPath }
	root.AddCommand(
		newServeCmd(cfgPath),
		newMigrateCmd(cfgPath),
		newProvisionCmd(cfgPath),
		newTokenCmd(cfgPath),
		newStatusCmd(cfgPath),
		newPublishCmd(cfgPath),
		newVersionCmd(),
	)
	return root
}

// getConfigPath returns the configuration file path.
// Uses CLIMATE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("CLIMATE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "climated %s (commit %s, built %s)\n", version, commit, date)
		},
	}
}
