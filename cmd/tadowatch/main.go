// Package main is the entry point for the tadowatch CLI.
//
// The CLI wraps the tadowatch library in a standalone binary configured
// through YAML; programs can embed the library directly instead.
//
// Usage:
//
//	tadowatch login                     # Authorize via the device-code flow
//	tadowatch serve -c config.yaml      # Start the watcher
//	tadowatch validate -c config.yaml   # Validate configuration
//	tadowatch version                   # Show version info
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Build metadata, overridden at release time:
// go build -ldflags "-X main.version=1.0.0"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// rootCmd carries the CLI help text; all behavior lives in subcommands.
var rootCmd = &cobra.Command{
	Use:   "tadowatch",
	Short: "A quota-aware watcher for Tado X smart thermostats",
	Long: `tadowatch polls the Tado X cloud APIs on a schedule that respects
the account's daily request quota, keeps the latest home state in
memory, and serves it over a local HTTP API with live updates.

Quick start:
  1. Authorize: tadowatch login
  2. Run: tadowatch serve
  3. Open http://localhost:8080/api/state

Example config:
  port: 8080
  tier: free
  poll_interval: 45m
  features:
    - weather`,
	// without Run/RunE a bare invocation prints the help text
}

// Execute dispatches to the chosen subcommand.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		// cobra has already printed the error
		os.Exit(1)
	}
}

func main() {
	Execute()
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print the version, commit hash, and build date of this tadowatch binary.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("tadowatch %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
