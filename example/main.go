package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"golang.org/x/oauth2"

	"github.com/jpalmerr/tadowatch"
	"github.com/jpalmerr/tadowatch/example/mocktado"
)

const (
	mockAddr = ":9999"

	// small enough that the quota gate closes mid-demo
	dailyLimit = 60
)

func main() {
	// keep slog quiet so the callback output stays readable
	logger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level: slog.LevelWarn,
	}))

	// start the fake Tado cloud (see mocktado)
	mock := mocktado.New(dailyLimit, logger)
	go func() {
		if err := mock.ListenAndServe(mockAddr); err != nil {
			logger.Error("mock server error", "error", err)
			os.Exit(1)
		}
	}()
	time.Sleep(100 * time.Millisecond)

	// stable path so a restart demonstrates the persisted quota counter
	dataDir := filepath.Join(os.TempDir(), "tadowatch-demo")

	w, err := tadowatch.New(
		tadowatch.WithTokenSource(oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "demo"})),
		tadowatch.WithAPIBase(
			"http://localhost"+mockAddr,
			"http://localhost"+mockAddr+"/api/v2",
			"http://localhost"+mockAddr+"/eiq",
		),
		tadowatch.WithDataDir(dataDir),
		tadowatch.WithPollInterval(30*time.Second),
		tadowatch.WithFeatures(tadowatch.FeatureWeather, tadowatch.FeatureAirComfort),
		tadowatch.WithPort(8080),
		tadowatch.WithLogger(logger),
		tadowatch.WithUpdateCallback(printUpdate),
	)
	if err != nil {
		logger.Error("failed to create watcher", "error", err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════════════════╗")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ║   tadowatch Demo                                      ║")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ║   Watching a mock Tado home on :9999                  ║")
	fmt.Println("  ║   State: http://localhost:8080/api/state              ║")
	fmt.Println("  ║   Usage: http://localhost:8080/api/usage              ║")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ║   5 calls every 30s against a 60/day quota, so        ║")
	fmt.Println("  ║   the quota gate closes partway through.              ║")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ║   Press Ctrl+C to stop                                ║")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ╚═══════════════════════════════════════════════════════╝")
	fmt.Println()

	// Ctrl+C cancels the context and the watcher shuts down cleanly
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := w.Start(ctx); err != nil {
		logger.Error("watcher error", "error", err)
		os.Exit(1)
	}
}

// printUpdate renders one poll cycle's result to stdout.
func printUpdate(u tadowatch.Update) {
	now := time.Now().Format(time.TimeOnly)

	if u.RateLimited {
		fmt.Printf("%s  daily quota spent, polling paused until %s\n",
			now, u.Usage.ResetAt.Format(time.Kitchen))
		return
	}
	if u.Err != nil {
		fmt.Printf("%s  update failed: %v\n", now, u.Err)
		return
	}

	fmt.Printf("%s  update received\n", now)
	for _, room := range u.Rooms {
		line := fmt.Sprintf("          %-12s %5.1f°C  %3.0f%% humidity",
			room.Name,
			room.SensorDataPoints.InsideTemperature.Value,
			room.SensorDataPoints.Humidity.Percentage,
		)
		if room.Setting.Power == "ON" && room.Setting.Temperature != nil {
			line += fmt.Sprintf("  (target %.1f°C)", room.Setting.Temperature.Value)
		}
		fmt.Println(line)
	}
	if u.Weather != nil {
		fmt.Printf("          %-12s %5.1f°C  %s\n",
			"outside",
			u.Weather.OutsideTemperature.Celsius,
			u.Weather.WeatherState.Value,
		)
	}
	fmt.Printf("          quota %d/%d used, next poll in %s\n",
		u.Usage.CallsToday, u.Usage.Limit, u.Usage.Interval)
}
