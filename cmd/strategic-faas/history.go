// ABOUTME: history and token subcommands for strategic-faas
// ABOUTME: Reads the stack's deployment history and mints gateway bearer tokens

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/2389/strategic-faas/internal/auth"
	"github.com/2389/strategic-faas/internal/config"
	"github.com/2389/strategic-faas/internal/store"
)

// flagValue matches "--name value" and "--name=value" at args[i]. It returns
// the value, how many extra args were consumed and whether it matched.
func flagValue(args []string, i int, names ...string) (string, int, bool, error) {
	arg := args[i]
	for _, name := range names {
		if arg == name {
			if i+1 >= len(args) {
				return "", 0, true, fmt.Errorf("%s requires a value", name)
			}
			return args[i+1], 1, true, nil
		}
		if v, ok := strings.CutPrefix(arg, name+"="); ok {
			return v, 0, true, nil
		}
	}
	return "", 0, false, nil
}

func runHistory(ctx context.Context, args []string) error {
	limit := 20
	for i := 0; i < len(args); i++ {
		v, skip, ok, err := flagValue(args, i, "--limit", "-n")
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("unexpected argument: %s", args[i])
		}
		limit, err = strconv.Atoi(v)
		if err != nil || limit <= 0 {
			return fmt.Errorf("--limit must be a positive integer")
		}
		i += skip
	}

	cfg, err := config.LoadOrDefault(config.Path())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening stack store: %w", err)
	}
	defer st.Close()

	return printHistory(ctx, os.Stdout, st, store.StackRef{Project: cfg.Project, Name: cfg.Stack}, limit)
}

func printHistory(ctx context.Context, w io.Writer, st store.Store, ref store.StackRef, limit int) error {
	stack, err := st.GetStack(ctx, ref)
	if err != nil {
		return fmt.Errorf("stack %s: %w", ref, err)
	}
	deployments, err := st.ListDeployments(ctx, ref, limit)
	if err != nil {
		return fmt.Errorf("listing deployments: %w", err)
	}

	cyan := color.New(color.FgCyan)
	gray := color.New(color.FgHiBlack)

	cyan.Fprintf(w, "Stack %s", ref)
	if stack.DestroyedAt != nil {
		gray.Fprintf(w, " (destroyed %s)", stack.DestroyedAt.Local().Format(time.DateTime))
	}
	fmt.Fprintln(w)

	if len(deployments) == 0 {
		fmt.Fprintln(w, "  no deployments")
		return nil
	}

	for _, d := range deployments {
		fmt.Fprintf(w, "  %s  %-9s  %s",
			d.StartedAt.Local().Format(time.DateTime),
			d.Strategy,
			statusColor(d.Status).Sprintf("%-9s", d.Status),
		)
		if d.FinishedAt != nil {
			gray.Fprintf(w, "  %s", d.FinishedAt.Sub(d.StartedAt).Round(time.Millisecond))
		}
		switch {
		case d.RouteURL != "":
			fmt.Fprintf(w, "  %s", d.RouteURL)
		case d.Error != "":
			fmt.Fprintf(w, "  %s", d.Error)
		}
		fmt.Fprintln(w)
	}
	return nil
}

func statusColor(s store.DeploymentStatus) *color.Color {
	switch s {
	case store.DeploymentSucceeded:
		return color.New(color.FgGreen)
	case store.DeploymentFailed:
		return color.New(color.FgRed)
	case store.DeploymentRunning:
		return color.New(color.FgYellow)
	default:
		return color.New(color.FgHiBlack)
	}
}

func runToken(args []string) error {
	var subject string
	ttl := 24 * time.Hour

	for i := 0; i < len(args); i++ {
		if v, skip, ok, err := flagValue(args, i, "--subject", "-s"); ok {
			if err != nil {
				return err
			}
			subject = v
			i += skip
			continue
		}
		if v, skip, ok, err := flagValue(args, i, "--ttl"); ok {
			if err != nil {
				return err
			}
			d, err := time.ParseDuration(v)
			if err != nil || d <= 0 {
				return fmt.Errorf("--ttl must be a positive duration")
			}
			ttl = d
			i += skip
			continue
		}
		if strings.HasPrefix(args[i], "-") {
			return fmt.Errorf("unknown flag: %s", args[i])
		}
		return fmt.Errorf("unexpected argument: %s", args[i])
	}

	subject = strings.TrimSpace(subject)
	if subject == "" {
		return fmt.Errorf("--subject flag is required")
	}

	cfg, err := config.LoadOrDefault(config.Path())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.Gateway.JWTSecret == "" {
		return fmt.Errorf("gateway.jwt_secret is not configured")
	}

	verifier, err := auth.NewJWTVerifier([]byte(cfg.Gateway.JWTSecret))
	if err != nil {
		return fmt.Errorf("creating JWT verifier: %w", err)
	}
	token, err := verifier.Generate(subject, ttl)
	if err != nil {
		return fmt.Errorf("generating token: %w", err)
	}

	fmt.Println(token)
	return nil
}
