// Package config loads tabclose settings from <home>/config.yaml.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// HomeEnv overrides the tabclose home directory.
const HomeEnv = "TABCLOSE_HOME"

// Config holds global tabclose settings.
type Config struct {
	Daemon        DaemonConfig        `yaml:"daemon"`
	Storage       StorageConfig       `yaml:"storage"`
	Browser       BrowserConfig       `yaml:"browser"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Debug         DebugConfig         `yaml:"debug"`
}

// DaemonConfig tunes the background daemon.
type DaemonConfig struct {
	// TickInterval is how often watchers receive status updates.
	TickInterval time.Duration `yaml:"tick_interval"`
	// IdleTimeout stops the daemon after this long without a pending
	// timer. Zero keeps it running.
	IdleTimeout time.Duration `yaml:"idle_timeout"`
}

// StorageConfig selects the key-value backend ("sqlite" or "diskv").
type StorageConfig struct {
	Backend string `yaml:"backend"`
}

// BrowserConfig controls how tabs are reached.
type BrowserConfig struct {
	// CDPEndpoint attaches to a running Chromium, e.g.
	// http://localhost:9222. Empty launches a dedicated browser.
	CDPEndpoint string `yaml:"cdp_endpoint"`
	Headless    bool   `yaml:"headless"`
}

// NotificationsConfig toggles desktop notifications.
type NotificationsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// DebugConfig controls debug log retention.
type DebugConfig struct {
	RetentionDays int `yaml:"retention_days"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Daemon:        DaemonConfig{TickInterval: time.Second},
		Storage:       StorageConfig{Backend: "sqlite"},
		Notifications: NotificationsConfig{Enabled: true},
		Debug:         DebugConfig{RetentionDays: 7},
	}
}

// Home returns $TABCLOSE_HOME, or ~/.tabclose.
func Home() string {
	if dir := os.Getenv(HomeEnv); dir != "" {
		return dir
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".tabclose")
	}
	return filepath.Join(homeDir, ".tabclose")
}

// Load reads <home>/config.yaml and applies environment overrides. A
// missing or unparsable file yields the defaults.
func Load() (*Config, error) {
	return LoadFrom(filepath.Join(Home(), "config.yaml"))
}

// LoadFrom is Load with an explicit path.
func LoadFrom(path string) (*Config, error) {
	cfg := Default()
	if data, err := os.ReadFile(path); err == nil {
		file := Default()
		if yaml.Unmarshal(data, file) == nil {
			cfg = file
		}
	}
	applyEnv(cfg)
	cfg.normalize()
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("TABCLOSE_CDP_ENDPOINT"); v != "" {
		cfg.Browser.CDPEndpoint = v
	}
	if v := os.Getenv("TABCLOSE_STORAGE_BACKEND"); v != "" {
		cfg.Storage.Backend = v
	}
	if v := os.Getenv("TABCLOSE_TICK_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Daemon.TickInterval = d
		} else if ms, err := strconv.Atoi(v); err == nil {
			cfg.Daemon.TickInterval = time.Duration(ms) * time.Millisecond
		}
	}
}

func (c *Config) normalize() {
	if c.Daemon.TickInterval <= 0 {
		c.Daemon.TickInterval = time.Second
	}
	if c.Daemon.IdleTimeout < 0 {
		c.Daemon.IdleTimeout = 0
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = "sqlite"
	}
	if c.Debug.RetentionDays <= 0 {
		c.Debug.RetentionDays = 7
	}
}

// DebugDir is where daemon and CLI debug logs are written.
func DebugDir() string { return filepath.Join(Home(), "debug") }
