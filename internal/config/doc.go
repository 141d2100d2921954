// Package config handles configuration loading for strategic-faas.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from FAAS_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/strategic-faas/config.yaml
//  3. ~/.config/strategic-faas/config.yaml
//
// A missing file is not an error: Default is used. Files ending in .toml are
// decoded as TOML, everything else as YAML. Keys a file omits keep their
// defaults.
//
// # Environment Variable Expansion
//
//	gateway:
//	  jwt_secret: "${FAAS_JWT_SECRET}"
//
// Unset variables expand to the empty string.
//
// # Durations
//
// Duration values use time.ParseDuration syntax:
//
//	readiness:
//	  interval: "5s"
//	  timeout: "10m"
//	  max_attempts: 0   # 0 polls until ready or interrupted
//	server:
//	  boot_delay: "2s"
//
// # Sections
//
//	name: myfaas          # resource name prefix
//	project: faas
//	stack: demo
//	region: us-west-2
//	route:
//	  path: /hello
//	  method: GET
//	database:
//	  path: ~/.local/share/strategic-faas/stacks.db
//	gateway:
//	  addr: 127.0.0.1:8080
//	  tailscale:
//	    enabled: false
//	    hostname: faas
//	logging:
//	  level: info         # debug, info, warn, error
//	  format: text        # text or json
package config
