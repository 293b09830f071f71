// Copyright 2024-2026 Aiku AI

// Package config loads the bridge configuration from defaults, an
// optional TOML file, and TELEBRIDGE_ environment variables, in that
// order of precedence.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config is the full bridge configuration.
type Config struct {
	Mattermost struct {
		ServerURL    string  `koanf:"server_url"`
		Token        string  `koanf:"token"`
		ChannelID    string  `koanf:"channel_id"`
		MaxFileBytes int64   `koanf:"max_file_bytes"`
		RatePerSec   float64 `koanf:"rate_per_sec"`
		RateBurst    int     `koanf:"rate_burst"`
	} `koanf:"mattermost"`

	Telegram struct {
		Token        string  `koanf:"token"`
		ChatID       int64   `koanf:"chat_id"`
		APIURL       string  `koanf:"api_url"`
		PollTimeout  int     `koanf:"poll_timeout_sec"`
		MaxFileBytes int64   `koanf:"max_file_bytes"`
		RatePerSec   float64 `koanf:"rate_per_sec"`
		RateBurst    int     `koanf:"rate_burst"`
	} `koanf:"telegram"`

	Bridge struct {
		DataDir          string `koanf:"data_dir"`
		QueueSize        int    `koanf:"queue_size"`
		MediaWorkers     int    `koanf:"media_workers"`
		RetryMaxAttempts int    `koanf:"retry_max_attempts"`
		RetryBaseMS      int    `koanf:"retry_base_ms"`
		RetryMaxMS       int    `koanf:"retry_max_ms"`
		ShutdownGraceSec int    `koanf:"shutdown_grace_sec"`
		AdminAddr        string `koanf:"admin_addr"`
	} `koanf:"bridge"`

	Logging struct {
		Level  string `koanf:"level"`
		Pretty bool   `koanf:"pretty"`
	} `koanf:"logging"`
}

// defaults are the baseline values every load starts from.
var defaults = map[string]interface{}{
	"mattermost.max_file_bytes": int64(100 * 1024 * 1024),
	"mattermost.rate_per_sec":   5.0,
	"mattermost.rate_burst":     10,

	"telegram.api_url":          "https://api.telegram.org",
	"telegram.poll_timeout_sec": 25,
	"telegram.max_file_bytes":   int64(50 * 1024 * 1024),
	"telegram.rate_per_sec":     1.0,
	"telegram.rate_burst":       5,

	"bridge.data_dir":           "./data",
	"bridge.queue_size":         256,
	"bridge.media_workers":      4,
	"bridge.retry_max_attempts": 5,
	"bridge.retry_base_ms":      250,
	"bridge.retry_max_ms":       30000,
	"bridge.shutdown_grace_sec": 10,
	"bridge.admin_addr":         ":8077",

	"logging.level":  "info",
	"logging.pretty": false,
}

// Load reads the configuration. An empty configPath falls back to the
// default locations; a missing file is not an error since everything can
// come from the environment.
func Load(configPath string) (*Config, error) {
	var k = koanf.New(".")

	k.Load(confmap.Provider(defaults, "."), nil)

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), toml.Parser()); err != nil {
			return nil, fmt.Errorf("error loading config: %w", err)
		}
	} else {
		defaultPaths := []string{"./telebridge.toml", "$HOME/.telebridge.toml"}
		for _, path := range defaultPaths {
			path = os.ExpandEnv(path)
			if _, err := os.Stat(path); err == nil {
				if err := k.Load(file.Provider(path), toml.Parser()); err == nil {
					break
				}
			}
		}
	}

	k.Load(env.Provider("TELEBRIDGE_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "TELEBRIDGE_")), "_", ".", 1)
	}), nil)

	var config Config
	if err := k.Unmarshal("", &config); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}
	return &config, nil
}

// Validate checks that the settings without usable defaults are present.
func Validate(config *Config) error {
	if config.Mattermost.ServerURL == "" {
		return fmt.Errorf("mattermost server_url is required")
	}
	if config.Mattermost.Token == "" {
		return fmt.Errorf("mattermost token is required")
	}
	if config.Mattermost.ChannelID == "" {
		return fmt.Errorf("mattermost channel_id is required")
	}
	if config.Telegram.Token == "" {
		return fmt.Errorf("telegram token is required")
	}
	if config.Telegram.ChatID == 0 {
		return fmt.Errorf("telegram chat_id is required")
	}
	return nil
}

// PollTimeout returns the Telegram long-poll timeout as a duration.
func (c *Config) PollTimeout() time.Duration {
	return time.Duration(c.Telegram.PollTimeout) * time.Second
}

// ShutdownGrace returns how long a stopping bridge keeps draining
// in-flight relays.
func (c *Config) ShutdownGrace() time.Duration {
	return time.Duration(c.Bridge.ShutdownGraceSec) * time.Second
}

// Init writes a commented sample configuration to configPath.
func Init(configPath string) error {
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("configuration file already exists at %s", configPath)
	}

	sampleConfig := `# telebridge configuration

[mattermost]
server_url = "https://mattermost.example.com"
token = "your-bot-token"
channel_id = "your-channel-id"

[telegram]
token = "123456:your-bot-token"
chat_id = -1001234567890

[bridge]
data_dir = "./data"
admin_addr = ":8077"

[logging]
level = "info"
pretty = false
`
	return os.WriteFile(configPath, []byte(sampleConfig), 0644)
}
