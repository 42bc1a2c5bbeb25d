// Package config defines the configuration schema for throwbridge.
//
// JSON keys use camelCase. The same schema loads from YAML when the file
// name ends in .yaml or .yml.
package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// ItemServiceConfig locates the Item Service WebSocket endpoint.
type ItemServiceConfig struct {
	Host string `json:"host" yaml:"host"`
	Port int    `json:"port" yaml:"port"`
	Path string `json:"path" yaml:"path"`
}

func defaultItemServiceConfig() ItemServiceConfig {
	return ItemServiceConfig{Host: "127.0.0.1", Port: 42069, Path: "/websocket"}
}

// URL builds the WebSocket URL for the given port. The port is passed in
// because settings notifications can move it at runtime.
func (c ItemServiceConfig) URL(port int) string {
	path := "/" + strings.TrimPrefix(c.Path, "/")
	return "ws://" + net.JoinHostPort(c.Host, strconv.Itoa(port)) + path
}

// ControlHostConfig locates the Control Host socket and names the plugin.
type ControlHostConfig struct {
	Host            string `json:"host" yaml:"host"`
	Port            int    `json:"port" yaml:"port"`
	PluginID        string `json:"pluginId" yaml:"pluginId"`
	SettingsSection string `json:"settingsSection" yaml:"settingsSection"`
}

func defaultControlHostConfig() ControlHostConfig {
	return ControlHostConfig{
		Host:            "127.0.0.1",
		Port:            12136,
		PluginID:        "tits.connector",
		SettingsSection: "communication_listen_settings",
	}
}

// Addr returns host:port.
func (c ControlHostConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// SettingsKeys are the option names the Control Host uses in settings entries.
type SettingsKeys struct {
	DebugLogging    string `json:"debugLogging" yaml:"debugLogging"`
	ItemServicePort string `json:"itemServicePort" yaml:"itemServicePort"`
}

func defaultSettingsKeys() SettingsKeys {
	return SettingsKeys{DebugLogging: "Debug Logging", ItemServicePort: "TITS Port"}
}

// RefreshConfig schedules periodic catalog refreshes. An empty schedule disables them.
type RefreshConfig struct {
	Schedule string `json:"schedule" yaml:"schedule"` // cron expression or descriptor, e.g. "@every 10m"
}

// MetricsConfig enables the Prometheus endpoint when Addr is set.
type MetricsConfig struct {
	Addr string `json:"addr" yaml:"addr"`
}

// Config is the root configuration object.
type Config struct {
	ItemService      ItemServiceConfig `json:"itemService" yaml:"itemService"`
	ControlHost      ControlHostConfig `json:"controlHost" yaml:"controlHost"`
	SettingsKeys     SettingsKeys      `json:"settingsKeys" yaml:"settingsKeys"`
	ReconnectDelayMs int               `json:"reconnectDelayMs" yaml:"reconnectDelayMs"`
	DataDir          string            `json:"dataDir" yaml:"dataDir"`
	LogFile          string            `json:"logFile" yaml:"logFile"`
	DebugLogging     bool              `json:"debugLogging" yaml:"debugLogging"`
	Refresh          RefreshConfig     `json:"refresh" yaml:"refresh"`
	Metrics          MetricsConfig     `json:"metrics" yaml:"metrics"`
}

// DefaultConfig returns a Config with all defaults applied.
func DefaultConfig() Config {
	return Config{
		ItemService:      defaultItemServiceConfig(),
		ControlHost:      defaultControlHostConfig(),
		SettingsKeys:     defaultSettingsKeys(),
		ReconnectDelayMs: 5000,
		DataDir:          "~/.throwbridge",
		LogFile:          "plugin-debug.log",
	}
}

// ReconnectDelay is the fixed pause between connection attempts.
func (c *Config) ReconnectDelay() time.Duration {
	if c.ReconnectDelayMs <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.ReconnectDelayMs) * time.Millisecond
}

// DataPath returns the expanded absolute path to the data directory.
func (c *Config) DataPath() string {
	dir := c.DataDir
	if dir == "" {
		dir = "~/.throwbridge"
	}
	if len(dir) >= 2 && dir[:2] == "~/" {
		home, err := os.UserHomeDir()
		if err == nil {
			dir = filepath.Join(home, dir[2:])
		}
	}
	return dir
}

// LogPath returns the log file location. Relative names live in the data directory.
func (c *Config) LogPath() string {
	name := c.LogFile
	if name == "" {
		name = "plugin-debug.log"
	}
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(c.DataPath(), name)
}

// Validate checks the values the bridge cannot start without.
func (c *Config) Validate() error {
	if _, err := ParsePort(strconv.Itoa(c.ItemService.Port)); err != nil {
		return fmt.Errorf("itemService.port: %w", err)
	}
	if _, err := ParsePort(strconv.Itoa(c.ControlHost.Port)); err != nil {
		return fmt.Errorf("controlHost.port: %w", err)
	}
	if c.ControlHost.PluginID == "" {
		return fmt.Errorf("controlHost.pluginId is required")
	}
	return nil
}
