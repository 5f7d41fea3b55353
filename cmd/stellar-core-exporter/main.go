package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"stellarexporter/internal/app"
	"stellarexporter/internal/config"
)

const (
	exitCodeFailure = 1
	exitCodeUsage   = 2
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// run starts the exporter process.
// Params: none.
// Returns: process exit code.
func run() int {
	var (
		configPath  string
		coreAddress string
		port        int
		showInfo    bool
	)

	defaultPort, err := envInt("PORT")
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return exitCodeUsage
	}

	flag.StringVar(&configPath, "config", "", "path to TOML config file or directory (optional)")
	flag.StringVar(&coreAddress, "stellar-core-address", os.Getenv("STELLAR_CORE_ADDRESS"),
		"Stellar core address. Defaults to STELLAR_CORE_ADDRESS environment variable or if not set to http://127.0.0.1:11626")
	flag.IntVar(&port, "port", defaultPort,
		"HTTP bind port. Defaults to PORT environment variable or if not set to 9473")
	flag.BoolVar(&showInfo, "v", false, "show build information")
	flag.BoolVar(&showInfo, "version", false, "show build information")
	flag.Parse()

	if showInfo {
		fmt.Printf("stellar-core-exporter version=%s commit=%s date=%s\n", version, commit, date)
		return 0
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reloadSignal := make(chan os.Signal, 1)
	signal.Notify(reloadSignal, syscall.SIGHUP)
	defer signal.Stop(reloadSignal)

	reload := make(chan struct{}, 1)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-reloadSignal:
				select {
				case reload <- struct{}{}:
				default:
				}
			}
		}
	}()

	rt := app.Runtime{
		ConfigPath: configPath,
		Overrides: config.Overrides{
			CoreAddress: coreAddress,
			Port:        port,
		},
		Reload: reload,
	}
	if err := app.Run(ctx, rt); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return exitCodeFailure
	}

	return 0
}

// envInt reads an optional integer environment variable; unset means 0.
func envInt(name string) (int, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return 0, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", name, err)
	}
	return value, nil
}

func main() {
	os.Exit(run())
}
