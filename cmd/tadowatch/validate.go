package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/tadowatch"
	"github.com/jpalmerr/tadowatch/config"
	"github.com/jpalmerr/tadowatch/internal/quota"
)

// validateCmd validates a config file without starting the watcher.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a config file",
	Long: `Validate a tadowatch configuration file without starting the watcher.

The command parses the YAML, expands environment variables, checks every
field, and prints the resulting polling plan with an estimate of the
daily API call count. Handy as a pre-deployment or CI check.

Exits 0 when the config is valid, 1 otherwise (details go to stderr).

Example:
  tadowatch validate -c config.yaml
  tadowatch validate --config /etc/tadowatch/config.yaml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringP("config", "c", "", "config file to check (required)")
	_ = validateCmd.MarkFlagRequired("config")
}

func runValidate(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("config check failed: %w", err)
	}

	policy := quota.Policy{
		Tier:     quota.Tier(cfg.Tier),
		Override: cfg.PollInterval.Duration(),
	}
	interval := policy.Interval()
	limit := policy.Limit()

	// every cycle fetches rooms, devices, and home state, plus one call
	// per enabled feature
	callsPerCycle := 3 + len(cfg.Features)
	estimated := quota.EstimatedDailyCalls(interval, callsPerCycle)

	dataDir := cfg.DataDir
	if dataDir == "" {
		dataDir = tadowatch.DefaultDataDir()
	}

	features := "none"
	if len(cfg.Features) > 0 {
		features = strings.Join(cfg.Features, ", ")
	}

	fmt.Printf("Config is valid!\n")
	fmt.Printf("  Port:          %d\n", cfg.Port)
	fmt.Printf("  Data dir:      %s\n", dataDir)
	fmt.Printf("  Tier:          %s (%d calls/day)\n", cfg.Tier, limit)
	fmt.Printf("  Poll interval: %s\n", interval)
	fmt.Printf("  Features:      %s\n", features)

	if estimated > limit {
		fmt.Printf("  Quota plan:    ~%d calls/day - exceeds the %d/day quota, some polls will be skipped\n",
			estimated, limit)
	} else {
		fmt.Printf("  Quota plan:    ~%d calls/day\n", estimated)
	}

	return nil
}
