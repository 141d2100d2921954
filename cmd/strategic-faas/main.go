// ABOUTME: Entry point for strategic-faas
// ABOUTME: Deploys a callback behind a gateway with the strategy the operator types

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"

	"github.com/2389/strategic-faas/internal/config"
	"github.com/2389/strategic-faas/internal/store"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
     _             _             _               __
 ___| |_ _ __ __ _| |_ ___  __ _(_) ___         / _| __ _  __ _ ___
/ __| __| '__/ _' | __/ _ \/ _' | |/ __| _____ | |_ / _' |/ _' / __|
\__ \ |_| | | (_| | ||  __/ (_| | | (__ |_____||  _| (_| | (_| \__ \
|___/\__|_|  \__,_|\__\___|\__, |_|\___|       |_|  \__,_|\__,_|___/
                           |___/
`

func usage() {
	fmt.Println("Usage: strategic-faas [command]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  run (default)                      Start the interactive deploy loop")
	fmt.Println("  init                               Create a new config file interactively")
	fmt.Println("  history [--limit N]                Show the stack's deployment history")
	fmt.Println("  token --subject NAME [--ttl 24h]   Mint a gateway bearer token")
}

func main() {
	cmd := "run"
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch cmd {
	case "run":
		err = runDeployLoop(ctx)
	case "init":
		err = runInit()
	case "history":
		err = runHistory(ctx, os.Args[2:])
	case "token":
		err = runToken(os.Args[2:])
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		usage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runDeployLoop(ctx context.Context) error {
	configPath := config.Path()

	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging, os.Stderr)
	printBanner(configPath, cfg)

	logger.Info("starting strategic-faas",
		"config", configPath,
		"stack", cfg.Project+"/"+cfg.Stack,
		"region", cfg.Region,
	)

	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening stack store: %w", err)
	}
	defer st.Close()

	a, err := newApp(cfg, st, os.Stdin, os.Stdout, logger)
	if err != nil {
		return err
	}
	defer a.close()

	return a.run(ctx)
}

// printBanner writes the startup banner to stderr so stdout carries only
// the deploy loop's lines.
func printBanner(configPath string, cfg *config.Config) {
	out := os.Stderr
	cyan := color.New(color.FgCyan)
	gray := color.New(color.FgHiBlack)
	green := color.New(color.FgGreen)

	cyan.Fprint(out, banner)
	gray.Fprintf(out, "    version: %s\n\n", version)

	green.Fprint(out, "    ▶ ")
	fmt.Fprintf(out, "Config:    %s\n", configPath)
	green.Fprint(out, "    ▶ ")
	fmt.Fprintf(out, "Stack:     %s/%s (%s)\n", cfg.Project, cfg.Stack, cfg.Region)
	green.Fprint(out, "    ▶ ")
	fmt.Fprintf(out, "Route:     %s %s\n", cfg.Route.Method, cfg.Route.Path)

	if cfg.Gateway.Tailscale.Enabled {
		green.Fprint(out, "    ▶ ")
		fmt.Fprint(out, "Tailscale: ")
		cyan.Fprint(out, cfg.Gateway.Tailscale.Hostname)
		if cfg.Gateway.Tailscale.Ephemeral {
			gray.Fprint(out, " (ephemeral)")
		}
		fmt.Fprintln(out)
	} else {
		green.Fprint(out, "    ▶ ")
		fmt.Fprintf(out, "Gateway:   %s\n", cfg.Gateway.Addr)
	}
	if cfg.Gateway.JWTSecret != "" {
		green.Fprint(out, "    ▶ ")
		fmt.Fprintln(out, "Auth:      bearer token required")
	}
	fmt.Fprintln(out)
}
