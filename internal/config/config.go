// Package config loads runtime settings from TOML files, overlaying a
// project-local .everbot/config.toml on top of ~/.everbot/config.toml.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	// DefaultEndpoint is the EverText websocket endpoint, query parameters
	// selecting protocol version and transport included.
	DefaultEndpoint = "wss://evertext.sytes.net/socket.io/?EIO=4&transport=websocket"

	defaultMode             = "daily"
	defaultSupervisorTick   = 5 * time.Second
	defaultActivityTimeout  = 180 * time.Second
	defaultSettleDelay      = 1500 * time.Millisecond
	defaultHandshakeTimeout = 10 * time.Second
)

// Config stores runtime settings loaded from TOML files.
type Config struct {
	Endpoint         string
	Cookie           string
	CookieFile       string
	AccountsPath     string
	DefaultMode      string
	SupervisorTick   time.Duration
	ActivityTimeout  time.Duration
	SettleDelay      time.Duration
	HandshakeTimeout time.Duration
}

type fileConfig struct {
	Endpoint         *string `toml:"endpoint"`
	Cookie           *string `toml:"cookie"`
	CookieFile       *string `toml:"cookie_file"`
	AccountsPath     *string `toml:"accounts_path"`
	DefaultMode      *string `toml:"default_mode"`
	SupervisorTick   *string `toml:"supervisor_tick"`
	ActivityTimeout  *string `toml:"activity_timeout"`
	SettleDelay      *string `toml:"settle_delay"`
	HandshakeTimeout *string `toml:"handshake_timeout"`
}

// Load reads config from ~/.everbot/config.toml and overlays a project-local
// .everbot/config.toml.
func Load() (*Config, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve home directory: %w", err)
	}

	workingDir, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("resolve working directory: %w", err)
	}

	cfg := defaults(homeDir)
	paths := []string{
		filepath.Join(homeDir, ".everbot", "config.toml"),
		filepath.Join(workingDir, ".everbot", "config.toml"),
	}
	for _, path := range paths {
		if err := overlayFromFile(&cfg, path); err != nil {
			return nil, err
		}
	}

	return &cfg, nil
}

func defaults(homeDir string) Config {
	return Config{
		Endpoint:         DefaultEndpoint,
		AccountsPath:     filepath.Join(homeDir, ".everbot", "accounts.toml"),
		DefaultMode:      defaultMode,
		SupervisorTick:   defaultSupervisorTick,
		ActivityTimeout:  defaultActivityTimeout,
		SettleDelay:      defaultSettleDelay,
		HandshakeTimeout: defaultHandshakeTimeout,
	}
}

func overlayFromFile(cfg *Config, path string) error {
	if cfg == nil {
		return errors.New("config must not be nil")
	}

	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("stat config file %q: %w", path, err)
	}

	var decoded fileConfig
	if _, err := toml.DecodeFile(path, &decoded); err != nil {
		return fmt.Errorf("decode config file %q: %w", path, err)
	}

	applyStringOverrides(cfg, decoded)
	return applyDurationOverrides(cfg, decoded, path)
}

func applyStringOverrides(cfg *Config, decoded fileConfig) {
	if decoded.Endpoint != nil {
		cfg.Endpoint = strings.TrimSpace(*decoded.Endpoint)
	}
	if decoded.Cookie != nil {
		cfg.Cookie = strings.TrimSpace(*decoded.Cookie)
	}
	if decoded.CookieFile != nil {
		cfg.CookieFile = strings.TrimSpace(*decoded.CookieFile)
	}
	if decoded.AccountsPath != nil {
		cfg.AccountsPath = strings.TrimSpace(*decoded.AccountsPath)
	}
	if decoded.DefaultMode != nil {
		cfg.DefaultMode = strings.ToLower(strings.TrimSpace(*decoded.DefaultMode))
	}
}

func applyDurationOverrides(cfg *Config, decoded fileConfig, path string) error {
	entries := []struct {
		value *string
		key   string
		dst   *time.Duration
	}{
		{decoded.SupervisorTick, "supervisor_tick", &cfg.SupervisorTick},
		{decoded.ActivityTimeout, "activity_timeout", &cfg.ActivityTimeout},
		{decoded.SettleDelay, "settle_delay", &cfg.SettleDelay},
		{decoded.HandshakeTimeout, "handshake_timeout", &cfg.HandshakeTimeout},
	}
	for _, entry := range entries {
		if entry.value == nil {
			continue
		}
		parsed, err := time.ParseDuration(*entry.value)
		if err != nil {
			return fmt.Errorf("parse %s in %q: %w", entry.key, path, err)
		}
		if parsed <= 0 {
			return fmt.Errorf("parse %s in %q: must be > 0", entry.key, path)
		}
		*entry.dst = parsed
	}
	return nil
}

// SessionCookie resolves the session cookie, preferring the cookie file
// when one is configured.
func (c *Config) SessionCookie() (string, error) {
	if c == nil {
		return "", errors.New("config must not be nil")
	}
	if c.CookieFile != "" {
		// #nosec G304 -- path comes from the operator's own config file.
		raw, err := os.ReadFile(c.CookieFile)
		if err != nil {
			return "", fmt.Errorf("read cookie file %q: %w", c.CookieFile, err)
		}
		cookie := strings.TrimSpace(string(raw))
		if cookie == "" {
			return "", fmt.Errorf("cookie file %q is empty", c.CookieFile)
		}
		return cookie, nil
	}
	if strings.TrimSpace(c.Cookie) == "" {
		return "", errors.New("no session cookie configured")
	}
	return strings.TrimSpace(c.Cookie), nil
}
