// ABOUTME: Interactive config writer for strategic-faas init
// ABOUTME: Prompts for stack, route, gateway and logging settings and writes YAML

package main

import (
	"bufio"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/2389/strategic-faas/internal/config"
)

func runInit() error {
	return initConfig(os.Stdin, os.Stdout)
}

// initConfig asks the init questions on w, reads answers from in and writes
// the resulting config file.
func initConfig(in io.Reader, w io.Writer) error {
	reader := bufio.NewReader(in)

	fmt.Fprintln(w, "strategic-faas configuration setup")
	fmt.Fprintln(w, "==================================")
	fmt.Fprintln(w)

	def := config.Default()

	outputFile := prompt(reader, w, "Config file path", config.Path())

	if _, err := os.Stat(outputFile); err == nil {
		overwrite := prompt(reader, w, "File exists. Overwrite?", "no")
		if !isYes(overwrite) {
			fmt.Fprintln(w, "Aborted.")
			return nil
		}
	}

	fmt.Fprintln(w, "\n--- Stack ---")
	name := prompt(reader, w, "Resource name prefix", def.Name)
	project := prompt(reader, w, "Project", def.Project)
	stack := prompt(reader, w, "Stack", def.Stack)
	region := prompt(reader, w, "Region", def.Region)

	fmt.Fprintln(w, "\n--- Route ---")
	path := prompt(reader, w, "Path", def.Route.Path)
	method := prompt(reader, w, "Method", def.Route.Method)

	fmt.Fprintln(w, "\n--- Database ---")
	dbPath := prompt(reader, w, "SQLite database path", def.Database.Path)

	fmt.Fprintln(w, "\n--- Readiness ---")
	interval := prompt(reader, w, "Poll interval", def.Readiness.IntervalRaw)
	maxAttempts := prompt(reader, w, "Max attempts (0 = until ready)", "0")

	fmt.Fprintln(w, "\n--- Gateway ---")
	gatewayAddr := prompt(reader, w, "Gateway address", def.Gateway.Addr)
	var jwtSecret string
	if isYes(prompt(reader, w, "Require bearer tokens?", "no")) {
		secretBytes := make([]byte, 32)
		if _, err := rand.Read(secretBytes); err != nil {
			return fmt.Errorf("generating JWT secret: %w", err)
		}
		jwtSecret = base64.StdEncoding.EncodeToString(secretBytes)
	}

	tailscaleEnabled := isYes(prompt(reader, w, "Enable Tailscale?", "no"))
	var tsHostname, tsAuthKey string
	var tsEphemeral bool
	if tailscaleEnabled {
		tsHostname = prompt(reader, w, "Tailscale hostname", "strategic-faas")
		tsAuthKey = prompt(reader, w, "Tailscale auth key (leave empty to use TS_AUTHKEY)", "")
		tsEphemeral = isYes(prompt(reader, w, "Ephemeral node?", "no"))
	}

	fmt.Fprintln(w, "\n--- Logging ---")
	logLevel := prompt(reader, w, "Log level (debug/info/warn/error)", def.Logging.Level)
	logFormat := prompt(reader, w, "Log format (text/json)", def.Logging.Format)

	var cfg strings.Builder
	cfg.WriteString("# strategic-faas configuration\n")
	cfg.WriteString("# Generated by strategic-faas init\n\n")

	fmt.Fprintf(&cfg, "name: %q\n", name)
	fmt.Fprintf(&cfg, "project: %q\n", project)
	fmt.Fprintf(&cfg, "stack: %q\n", stack)
	fmt.Fprintf(&cfg, "region: %q\n\n", region)

	cfg.WriteString("route:\n")
	fmt.Fprintf(&cfg, "  path: %q\n", path)
	fmt.Fprintf(&cfg, "  method: %q\n\n", method)

	cfg.WriteString("database:\n")
	fmt.Fprintf(&cfg, "  path: %q\n\n", dbPath)

	cfg.WriteString("readiness:\n")
	fmt.Fprintf(&cfg, "  interval: %q\n", interval)
	fmt.Fprintf(&cfg, "  max_attempts: %s\n\n", maxAttempts)

	cfg.WriteString("gateway:\n")
	fmt.Fprintf(&cfg, "  addr: %q\n", gatewayAddr)
	if jwtSecret != "" {
		fmt.Fprintf(&cfg, "  jwt_secret: %q\n", jwtSecret)
	}
	cfg.WriteString("  tailscale:\n")
	fmt.Fprintf(&cfg, "    enabled: %t\n", tailscaleEnabled)
	if tailscaleEnabled {
		fmt.Fprintf(&cfg, "    hostname: %q\n", tsHostname)
		if tsAuthKey != "" {
			fmt.Fprintf(&cfg, "    auth_key: %q\n", tsAuthKey)
		}
		fmt.Fprintf(&cfg, "    ephemeral: %t\n", tsEphemeral)
	}
	cfg.WriteString("\n")

	cfg.WriteString("logging:\n")
	fmt.Fprintf(&cfg, "  level: %q\n", logLevel)
	fmt.Fprintf(&cfg, "  format: %q\n", logFormat)

	if err := os.MkdirAll(filepath.Dir(outputFile), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	// 0600 because the file may hold the JWT secret
	if err := os.WriteFile(outputFile, []byte(cfg.String()), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	if _, err := config.Load(outputFile); err != nil {
		return fmt.Errorf("generated config is invalid: %w", err)
	}

	dataDir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	fmt.Fprintf(w, "\nConfig written to %s\n", outputFile)
	fmt.Fprintf(w, "Data directory: %s\n", dataDir)
	fmt.Fprintln(w, "\nTo start deploying:")
	fmt.Fprintln(w, "  strategic-faas run")

	return nil
}

func isYes(s string) bool {
	s = strings.ToLower(s)
	return s == "yes" || s == "y"
}

func prompt(reader *bufio.Reader, w io.Writer, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Fprintf(w, "%s [%s]: ", question, defaultVal)
	} else {
		fmt.Fprintf(w, "%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil {
		// On EOF or error, return default
		fmt.Fprintln(w)
		return defaultVal
	}
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}
