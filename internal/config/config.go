// Package config loads the service configuration from YAML and keeps an
// atomically swappable snapshot of it, reloaded when the file changes.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/wiseops/wise/internal/rcon"
)

// FileConfig is the full service configuration as read from disk.
// Consumers receive it as a read-only snapshot; a reload swaps the whole
// snapshot at once.
type FileConfig struct {
	Rcon      rcon.Credentials `yaml:"rcon"`
	Polling   PollingConfig    `yaml:"polling"`
	Auth      AuthConfig       `yaml:"auth"`
	Exporting ExportingConfig  `yaml:"exporting"`
	Logging   LoggingConfig    `yaml:"logging"`
}

// PollingConfig paces the pollers. Durations are milliseconds.
type PollingConfig struct {
	// WaitMS is the period of the game state poller.
	WaitMS uint64 `yaml:"wait_ms"`

	// CooldownMS spaces the player poller launches on startup.
	CooldownMS uint64 `yaml:"cooldown_ms"`

	// ManageLifecycle starts and stops player pollers from connect and
	// disconnect log lines.
	ManageLifecycle bool `yaml:"manage_lifecycle"`
}

// AuthConfig lists the access tokens websocket clients may present.
type AuthConfig struct {
	Tokens []TokenConfig `yaml:"tokens"`
}

// TokenConfig is one named access token with its permissions.
type TokenConfig struct {
	Name  string      `yaml:"name"`
	Value string      `yaml:"value"`
	Perms PermsConfig `yaml:"perms"`
}

// PermsConfig scopes what a token may do.
type PermsConfig struct {
	// ReadRconEvents lets the client receive server events.
	ReadRconEvents bool `yaml:"read_rcon_events"`

	// WriteRcon lets the client dispatch commands.
	WriteRcon bool `yaml:"write_rcon"`
}

// ExportingConfig configures the outward-facing surfaces.
type ExportingConfig struct {
	WebSocket WebSocketConfig `yaml:"websocket"`
}

// WebSocketConfig configures the websocket exporter.
type WebSocketConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`

	// Password, when set, demands a legacy password frame before the
	// token handshake.
	Password string `yaml:"password"`

	TLS      bool   `yaml:"tls"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// LoggingConfig controls verbosity. Level maps onto slog levels:
// -2 errors only, -1 warnings, 0 info, 1 and above debug.
type LoggingConfig struct {
	Level int `yaml:"level"`
}

// Default returns the configuration used when the file is absent or
// leaves fields unset.
func Default() FileConfig {
	return FileConfig{
		Rcon: rcon.Credentials{
			Address: "127.0.0.1:28016",
		},
		Polling: PollingConfig{
			WaitMS:          1000,
			CooldownMS:      100,
			ManageLifecycle: true,
		},
		Exporting: ExportingConfig{
			WebSocket: WebSocketConfig{
				Address: "127.0.0.1:3030",
			},
		},
	}
}

// Load reads the configuration from a YAML file. A missing file yields
// the defaults.
func Load(path string) (FileConfig, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}

	return cfg, nil
}

// Token looks up a token by its secret value. The comparison is
// case-sensitive.
func (c *FileConfig) Token(value string) (TokenConfig, bool) {
	for _, token := range c.Auth.Tokens {
		if token.Value == value {
			return token, true
		}
	}
	return TokenConfig{}, false
}
