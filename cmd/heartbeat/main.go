// Package main is the entry point for the heartbeat CLI.
//
// heartbeat can be run either as a library (SDK) or as a standalone binary
// with YAML configuration. This CLI provides the standalone binary approach.
//
// Usage:
//
//	heartbeat serve -c config.yaml    # Start monitoring
//	heartbeat validate -c config.yaml # Validate configuration
//	heartbeat version                 # Show version info
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information - set by GoReleaser at build time via ldflags.
// Example: go build -ldflags "-X main.version=1.0.0"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// rootCmd is the base command when called without subcommands.
var rootCmd = &cobra.Command{
	Use:   "heartbeat",
	Short: "API liveness monitor",
	Long: `heartbeat checks user-registered HTTP endpoints on a fixed interval
and records their UP/DOWN status and last check time in a document store.

On start it warms up every endpoint, retrying until it answers 200 or runs
out of attempts, then re-checks everything concurrently each cycle.

Quick start:
  1. Create a config file (heartbeat.yaml)
  2. Run: heartbeat serve -c heartbeat.yaml
  3. Open http://localhost:8080/api/status

Example config:
  port: 8080
  monitor:
    interval: 5m
  store:
    driver: sqlite
    dsn: heartbeat.db
  users:
    - id: alice
      apis:
        - id: orders
          url: https://orders.example.com/health`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		// Cobra already prints the error, just exit with code 1
		os.Exit(1)
	}
}

func main() {
	Execute()
}

// versionCmd prints version information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print the version, commit hash, and build date of this heartbeat binary.`,
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "heartbeat %s\n", version)
		fmt.Fprintf(out, "  commit: %s\n", commit)
		fmt.Fprintf(out, "  built:  %s\n", date)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
