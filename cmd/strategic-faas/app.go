// ABOUTME: Wires the store, backend, poller, gateway and orchestrator into one runnable app
// ABOUTME: Also holds the default demo callback that answers with Hello World

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/2389/strategic-faas/internal/auth"
	"github.com/2389/strategic-faas/internal/command"
	"github.com/2389/strategic-faas/internal/config"
	"github.com/2389/strategic-faas/internal/gateway"
	"github.com/2389/strategic-faas/internal/orchestrator"
	"github.com/2389/strategic-faas/internal/provision"
	"github.com/2389/strategic-faas/internal/readiness"
	"github.com/2389/strategic-faas/internal/route"
	"github.com/2389/strategic-faas/internal/store"
	"github.com/2389/strategic-faas/internal/strategy"
)

const shutdownTimeout = 10 * time.Second

type app struct {
	local  *provision.Local
	server *gateway.Server
	orch   *orchestrator.Orchestrator
	loop   *command.Loop
	logger *slog.Logger
}

// helloCallback is the function deployed when nothing else is configured.
func helloCallback(logger *slog.Logger) route.Callback {
	return func(ctx context.Context, event route.Event) (map[string]any, error) {
		logger.Info("Hello World", "method", event.Method, "path", event.Path)
		return map[string]any{"message": "Hello World"}, nil
	}
}

func newApp(cfg *config.Config, st store.Store, in io.Reader, out io.Writer, logger *slog.Logger) (*app, error) {
	method, err := route.ParseMethod(cfg.Route.Method)
	if err != nil {
		return nil, fmt.Errorf("route.method: %w", err)
	}
	req := route.Request{
		Path:     cfg.Route.Path,
		Method:   method,
		Callback: helloCallback(logger.With("component", "callback")),
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	ref := store.StackRef{Project: cfg.Project, Name: cfg.Stack}

	local := provision.NewLocal(provision.LocalConfig{
		Name:       cfg.Name,
		Stack:      ref,
		Store:      st,
		BootDelay:  cfg.Server.BootDelay,
		ListenAddr: cfg.Server.ListenAddr,
		Logger:     logger,
	})

	srvCfg := gateway.ServerConfig{
		Addr:     cfg.Gateway.Addr,
		Resolver: local,
		Tailscale: gateway.TailscaleConfig{
			Enabled:   cfg.Gateway.Tailscale.Enabled,
			Hostname:  cfg.Gateway.Tailscale.Hostname,
			AuthKey:   cfg.Gateway.Tailscale.AuthKey,
			StateDir:  cfg.Gateway.Tailscale.StateDir,
			Ephemeral: cfg.Gateway.Tailscale.Ephemeral,
		},
		Logger: logger,
	}
	if cfg.Gateway.JWTSecret != "" {
		verifier, err := auth.NewJWTVerifier([]byte(cfg.Gateway.JWTSecret))
		if err != nil {
			return nil, fmt.Errorf("creating JWT verifier: %w", err)
		}
		srvCfg.Verifier = verifier
	}
	server := gateway.NewServer(srvCfg)

	poller := readiness.NewPoller(readiness.Config{
		Prober: readiness.NewHTTPProber(10 * time.Second),
		Policy: readiness.Policy{
			Interval:    cfg.Readiness.Interval,
			MaxAttempts: cfg.Readiness.MaxAttempts,
			Timeout:     cfg.Readiness.Timeout,
		},
		Output: out,
		Logger: logger,
	})

	orch := orchestrator.New(orchestrator.Config{
		Stack:      ref,
		Region:     cfg.Region,
		Request:    req,
		Dispatcher: strategy.NewDispatcher(local, poller, logger),
		Composer:   gateway.NewComposer(server, logger),
		Registrar:  server,
		Backend:    local,
		Store:      st,
		Output:     out,
		Logger:     logger,
	})

	loop := command.NewLoop(command.Config{
		Lifecycle: orch,
		Input:     in,
		Output:    out,
		Logger:    logger,
	})

	return &app{local: local, server: server, orch: orch, loop: loop, logger: logger}, nil
}

func (a *app) run(ctx context.Context) error {
	if err := a.orch.Start(ctx); err != nil {
		return fmt.Errorf("starting orchestrator: %w", err)
	}
	return a.loop.Run(ctx)
}

// close releases anything a failed destroy left running. After a clean
// destroy both calls are no-ops.
func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := errors.Join(a.server.Close(ctx), a.local.Close(ctx)); err != nil {
		a.logger.Warn("shutdown incomplete", "error", err)
	}
}
