// ABOUTME: Configuration loading and parsing for strategic-faas
// ABOUTME: Reads YAML (or TOML by extension) with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// EnvConfigPath overrides the config file location.
const EnvConfigPath = "FAAS_CONFIG"

// Config represents the complete strategic-faas configuration
type Config struct {
	// Name prefixes the provisioned function and server names.
	Name      string          `yaml:"name" toml:"name"`
	Project   string          `yaml:"project" toml:"project"`
	Stack     string          `yaml:"stack" toml:"stack"`
	Region    string          `yaml:"region" toml:"region"`
	Route     RouteConfig     `yaml:"route" toml:"route"`
	Database  DatabaseConfig  `yaml:"database" toml:"database"`
	Readiness ReadinessConfig `yaml:"readiness" toml:"readiness"`
	Server    ServerConfig    `yaml:"server" toml:"server"`
	Gateway   GatewayConfig   `yaml:"gateway" toml:"gateway"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging"`
}

// RouteConfig is the path and method the deployed callback answers on.
type RouteConfig struct {
	Path   string `yaml:"path" toml:"path"`
	Method string `yaml:"method" toml:"method"`
}

// DatabaseConfig holds the stack store location
type DatabaseConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// ReadinessConfig holds health-check pacing for server deployments
type ReadinessConfig struct {
	Interval    time.Duration `yaml:"-" toml:"-"`
	Timeout     time.Duration `yaml:"-" toml:"-"`
	MaxAttempts int           `yaml:"max_attempts" toml:"max_attempts"`

	// Raw string values for unmarshaling
	IntervalRaw string `yaml:"interval" toml:"interval"`
	TimeoutRaw  string `yaml:"timeout" toml:"timeout"`
}

// ServerConfig holds settings for the locally hosted servers
type ServerConfig struct {
	ListenAddr string        `yaml:"listen_addr" toml:"listen_addr"`
	BootDelay  time.Duration `yaml:"-" toml:"-"`

	BootDelayRaw string `yaml:"boot_delay" toml:"boot_delay"`
}

// GatewayConfig holds the HTTP gateway settings
type GatewayConfig struct {
	Addr string `yaml:"addr" toml:"addr"`
	// JWTSecret, when set, requires a bearer token on every route.
	JWTSecret string          `yaml:"jwt_secret" toml:"jwt_secret"`
	Tailscale TailscaleConfig `yaml:"tailscale" toml:"tailscale"`
}

// TailscaleConfig holds Tailscale tsnet configuration
type TailscaleConfig struct {
	Enabled   bool   `yaml:"enabled" toml:"enabled"`
	Hostname  string `yaml:"hostname" toml:"hostname"`
	AuthKey   string `yaml:"auth_key" toml:"auth_key"`
	StateDir  string `yaml:"state_dir" toml:"state_dir"`
	Ephemeral bool   `yaml:"ephemeral" toml:"ephemeral"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Name:    "myfaas",
		Project: "faas",
		Stack:   "demo",
		Region:  "us-west-2",
		Route: RouteConfig{
			Path:   "/hello",
			Method: "GET",
		},
		Database: DatabaseConfig{
			Path: filepath.Join(DataPath(), "stacks.db"),
		},
		Readiness: ReadinessConfig{
			Interval:    5 * time.Second,
			IntervalRaw: "5s",
		},
		Server: ServerConfig{
			ListenAddr: "127.0.0.1:0",
		},
		Gateway: GatewayConfig{
			Addr: "127.0.0.1:8080",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Path returns the path to the config file.
// Priority: FAAS_CONFIG env var > XDG_CONFIG_HOME/strategic-faas/config.yaml > ~/.config/strategic-faas/config.yaml
func Path() string {
	if envPath := os.Getenv(EnvConfigPath); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "config.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "strategic-faas", "config.yaml")
}

// DataPath returns the data directory.
// Priority: XDG_DATA_HOME/strategic-faas > ~/.local/share/strategic-faas
func DataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "strategic-faas")
}

// LoadOrDefault loads path, falling back to Default when the file does not exist.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Default(), nil
	}
	return Load(path)
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are decoded as TOML, everything else as YAML. Keys the
// file leaves out keep their Default values. Environment variables in the
// format ${VAR_NAME} are expanded.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := expandEnvVars(string(data))

	cfg := Default()
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expanded, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envVarPattern.FindStringSubmatch(match)[1])
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("name is required")
	}
	if c.Project == "" || c.Stack == "" {
		return fmt.Errorf("project and stack are required")
	}
	if !strings.HasPrefix(c.Route.Path, "/") {
		return fmt.Errorf("route.path must start with /")
	}
	if c.Route.Method == "" {
		return fmt.Errorf("route.method is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Readiness.MaxAttempts < 0 {
		return fmt.Errorf("readiness.max_attempts must not be negative")
	}

	// Tailscale requires a hostname; without it a TCP address is needed
	if c.Gateway.Tailscale.Enabled {
		if c.Gateway.Tailscale.Hostname == "" {
			return fmt.Errorf("gateway.tailscale.hostname is required when tailscale is enabled")
		}
	} else if c.Gateway.Addr == "" {
		return fmt.Errorf("gateway.addr is required (or enable tailscale)")
	}

	if c.Gateway.JWTSecret != "" && len(c.Gateway.JWTSecret) < 32 {
		return fmt.Errorf("gateway.jwt_secret must be at least 32 bytes")
	}

	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Readiness.IntervalRaw != "" {
		cfg.Readiness.Interval, err = time.ParseDuration(cfg.Readiness.IntervalRaw)
		if err != nil {
			return fmt.Errorf("parsing readiness.interval %q: %w", cfg.Readiness.IntervalRaw, err)
		}
	}

	if cfg.Readiness.TimeoutRaw != "" {
		cfg.Readiness.Timeout, err = time.ParseDuration(cfg.Readiness.TimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing readiness.timeout %q: %w", cfg.Readiness.TimeoutRaw, err)
		}
	}

	if cfg.Server.BootDelayRaw != "" {
		cfg.Server.BootDelay, err = time.ParseDuration(cfg.Server.BootDelayRaw)
		if err != nil {
			return fmt.Errorf("parsing server.boot_delay %q: %w", cfg.Server.BootDelayRaw, err)
		}
	}

	return nil
}
