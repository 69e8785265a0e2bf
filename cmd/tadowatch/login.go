package main

import (
	"context"
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/tadowatch"
	"github.com/jpalmerr/tadowatch/tado"
)

// loginCmd runs the OAuth device-code flow and stores the token.
var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Authorize tadowatch with your Tado account",
	Long: `Authorize tadowatch with your Tado account via the device-code flow.

The command prints a verification URL and a short code. Open the URL in
any browser, sign in to your Tado account, and enter the code. Once the
login is approved the token is stored in the data directory and "serve"
can run unattended; tokens are refreshed automatically from then on.

Example:
  tadowatch login
  tadowatch login -c config.yaml`,
	RunE: runLogin,
}

func init() {
	rootCmd.AddCommand(loginCmd)

	loginCmd.Flags().StringP("config", "c", "", "path to config file (optional, read for data_dir)")
}

func runLogin(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := loadConfig(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	dataDir := cfg.DataDir
	if dataDir == "" {
		dataDir = tadowatch.DefaultDataDir()
	}
	tokenPath := filepath.Join(dataDir, tadowatch.TokenFileName)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	da, err := tado.StartDeviceAuth(ctx)
	if err != nil {
		return fmt.Errorf("failed to start device authorization: %w", err)
	}

	fmt.Printf("Open %s in a browser and enter the code: %s\n", da.VerificationURI, da.UserCode)
	if da.VerificationURIComplete != "" {
		fmt.Printf("Or open %s directly.\n", da.VerificationURIComplete)
	}
	fmt.Println()
	fmt.Println("Waiting for approval (Ctrl+C to abort)...")

	tok, err := tado.WaitForToken(ctx, da)
	if err != nil {
		return fmt.Errorf("authorization failed: %w", err)
	}

	if err := tado.SaveToken(tokenPath, tok); err != nil {
		return fmt.Errorf("failed to store token: %w", err)
	}

	fmt.Printf("\nLogin successful. Token stored at %s\n", tokenPath)
	return nil
}
