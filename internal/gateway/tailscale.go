// ABOUTME: Optional tailnet listener for the local gateway using tsnet
// ABOUTME: Resolves state dir and auth key, brings the node up and derives the base URL

package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"

	"tailscale.com/ipn/ipnstate"
	"tailscale.com/tsnet"
)

// TailscaleConfig exposes the gateway on a tailnet instead of a TCP address.
type TailscaleConfig struct {
	Enabled   bool
	Hostname  string
	AuthKey   string
	StateDir  string
	Ephemeral bool
}

// resolveTailscaleStateDir returns the state directory, using default if not configured.
func resolveTailscaleStateDir(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory for tailscale state (set gateway.tailscale.state_dir explicitly): %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "strategic-faas", "tailscale"), nil
}

// resolveTailscaleAuthKey returns the auth key from config or environment.
func resolveTailscaleAuthKey(configured string) (string, error) {
	authKey := configured
	if authKey == "" {
		authKey = os.Getenv("TS_AUTHKEY")
	}
	if authKey == "" {
		return "", errors.New("tailscale auth key required: set gateway.tailscale.auth_key in config or TS_AUTHKEY environment variable")
	}
	return authKey, nil
}

// listenTailscale brings up a tsnet node and listens on :80. Callers hold s.mu.
func (s *Server) listenTailscale(ctx context.Context) (net.Listener, error) {
	tsCfg := s.cfg.Tailscale
	hostname := tsCfg.Hostname
	if hostname == "" {
		hostname = "strategic-faas"
	}

	stateDir, err := resolveTailscaleStateDir(tsCfg.StateDir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(stateDir, 0700); err != nil {
		return nil, fmt.Errorf("creating tailscale state dir: %w", err)
	}

	authKey, err := resolveTailscaleAuthKey(tsCfg.AuthKey)
	if err != nil {
		return nil, err
	}

	s.tsnetServer = &tsnet.Server{
		Hostname:  hostname,
		Dir:       stateDir,
		Ephemeral: tsCfg.Ephemeral,
		AuthKey:   authKey,
	}

	s.logger.Info("starting tailscale node", "hostname", hostname, "state_dir", stateDir, "ephemeral", tsCfg.Ephemeral)
	status, err := s.tsnetServer.Up(ctx)
	if err != nil {
		_ = s.tsnetServer.Close()
		s.tsnetServer = nil
		return nil, fmt.Errorf("starting tailscale: %w", err)
	}

	ln, err := s.tsnetServer.Listen("tcp", ":80")
	if err != nil {
		_ = s.tsnetServer.Close()
		s.tsnetServer = nil
		return nil, fmt.Errorf("listening on tailscale HTTP port: %w", err)
	}

	s.baseURL = tailnetBaseURL(hostname, status)
	s.logger.Info("tailscale node ready", "hostname", hostname, "base_url", s.baseURL)
	return ln, nil
}

// tailnetBaseURL prefers the node's MagicDNS name over its bare hostname.
func tailnetBaseURL(hostname string, status *ipnstate.Status) string {
	host := hostname
	if status != nil && status.Self != nil && status.Self.DNSName != "" {
		host = strings.TrimSuffix(status.Self.DNSName, ".")
	}
	return "http://" + host + "/"
}
