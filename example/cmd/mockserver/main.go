// Standalone mock Tado API for testing the CLI.
//
// Usage:
//
//	go run ./example/cmd/mockserver
//
// and in a second terminal:
//
//	go run ./cmd/tadowatch serve -c example/config.yaml
//
// The mock accepts any bearer token, so no real login is needed; a demo
// token is written to the demo data directory on startup.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/oauth2"

	"github.com/jpalmerr/tadowatch"
	"github.com/jpalmerr/tadowatch/example/mocktado"
	"github.com/jpalmerr/tadowatch/tado"
)

func main() {
	addr := flag.String("addr", ":9999", "address to listen on")
	limit := flag.Int("limit", mocktado.DefaultLimit, "daily call quota")
	flag.Parse()

	// let "serve -c example/config.yaml" start without a real login
	dataDir := filepath.Join(os.TempDir(), "tadowatch-demo")
	tokenPath := filepath.Join(dataDir, tadowatch.TokenFileName)
	if err := tado.SaveToken(tokenPath, &oauth2.Token{AccessToken: "demo"}); err != nil {
		slog.Error("failed to write demo token", "error", err)
		os.Exit(1)
	}

	fmt.Printf("Mock Tado API starting on %s (quota %d calls/day)\n", *addr, *limit)
	fmt.Printf("Demo token written to %s\n", tokenPath)
	fmt.Println("Press Ctrl+C to stop")
	fmt.Println()

	mock := mocktado.New(*limit, slog.Default())
	if err := mock.ListenAndServe(*addr); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}
