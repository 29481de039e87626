package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"
)

const (
	DefaultAddr            = "127.0.0.1:8080"
	DefaultSendInterval    = 30
	DefaultDriver          = "sqlite"
	DefaultCORSOrigin      = "*"
	DefaultShutdownTimeout = 30
)

// Config represents the sdr configuration
type Config struct {
	Server   ServerConfig             `yaml:"server"`
	Database DatabaseConfig           `yaml:"database"`
	Logging  LoggingConfig            `yaml:"logging"`
	Dispatch DispatchConfig           `yaml:"dispatch"`
	Channels map[string]ChannelConfig `yaml:"channels"`
}

// ServerConfig controls the HTTP API.
type ServerConfig struct {
	Addr                   string `yaml:"addr"`
	CORSOrigin             string `yaml:"cors_origin,omitempty"`
	ReadTimeoutSeconds     int    `yaml:"read_timeout_seconds,omitempty"`
	WriteTimeoutSeconds    int    `yaml:"write_timeout_seconds,omitempty"`
	ShutdownTimeoutSeconds int    `yaml:"shutdown_timeout_seconds,omitempty"`
}

// DatabaseConfig selects the sqlite driver and file.
// Driver is "sqlite" (modernc, pure Go) or "sqlite3" (mattn, cgo).
type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path,omitempty"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DispatchConfig holds defaults for bulk sends.
type DispatchConfig struct {
	// DefaultIntervalSeconds applies when a user has no send interval set.
	DefaultIntervalSeconds int `yaml:"default_interval_seconds"`
}

// ChannelConfig represents a delivery channel (email, whatsapp).
type ChannelConfig struct {
	Kind    string         `yaml:"kind"`
	Type    string         `yaml:"type"`
	Enabled bool           `yaml:"enabled"`
	Options map[string]any `yaml:"options,omitempty"`
}

// Default returns the configuration used when no config file exists.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:                   DefaultAddr,
			CORSOrigin:             DefaultCORSOrigin,
			ShutdownTimeoutSeconds: DefaultShutdownTimeout,
		},
		Database: DatabaseConfig{Driver: DefaultDriver},
		Logging:  LoggingConfig{Level: "info", Format: "json"},
		Dispatch: DispatchConfig{DefaultIntervalSeconds: DefaultSendInterval},
		Channels: map[string]ChannelConfig{
			"email": {
				Kind:    "email",
				Type:    "resend",
				Enabled: true,
				Options: map[string]any{
					"from": "SDR Agent <onboarding@resend.dev>",
				},
			},
			"whatsapp": {
				Kind:    "whatsapp",
				Type:    "simulated",
				Enabled: true,
				Options: map[string]any{
					"delay_ms":     1000,
					"success_rate": 0.9,
				},
			},
		},
	}
}

// GetConfigDir returns the XDG-compliant config directory
func GetConfigDir() (string, error) {
	// Explicit override (useful for tests and portable installs)
	if override := os.Getenv("SDR_CONFIG_DIR"); override != "" {
		return override, nil
	}

	var base string
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		base = xdg
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "sdr"), nil
}

// GetDataDir returns the platform-specific data directory
func GetDataDir() (string, error) {
	if override := os.Getenv("SDR_DATA_DIR"); override != "" {
		return override, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}

	if runtime.GOOS == "darwin" {
		return filepath.Join(home, "Library", "Application Support", "SDR"), nil
	}

	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "sdr"), nil
	}

	return filepath.Join(home, ".local", "share", "sdr"), nil
}

// GetConfigPath returns the path of config.yaml.
func GetConfigPath() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "config.yaml"), nil
}

// Load loads config from the config file
func Load() (*Config, error) {
	configPath, err := GetConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFile(configPath)
}

// LoadFile reads a config file, falling back to defaults when it is missing.
func LoadFile(configPath string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnv()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.fillDefaults()
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) fillDefaults() {
	def := Default()
	if c.Server.Addr == "" {
		c.Server.Addr = def.Server.Addr
	}
	if c.Server.CORSOrigin == "" {
		c.Server.CORSOrigin = def.Server.CORSOrigin
	}
	if c.Server.ShutdownTimeoutSeconds <= 0 {
		c.Server.ShutdownTimeoutSeconds = def.Server.ShutdownTimeoutSeconds
	}
	if c.Database.Driver == "" {
		c.Database.Driver = def.Database.Driver
	}
	if c.Logging.Level == "" {
		c.Logging.Level = def.Logging.Level
	}
	if c.Logging.Format == "" {
		c.Logging.Format = def.Logging.Format
	}
	if c.Dispatch.DefaultIntervalSeconds <= 0 {
		c.Dispatch.DefaultIntervalSeconds = def.Dispatch.DefaultIntervalSeconds
	}
	if c.Channels == nil {
		c.Channels = make(map[string]ChannelConfig)
	}
	for name, ch := range c.Channels {
		if ch.Kind == "" {
			ch.Kind = name
			c.Channels[name] = ch
		}
	}
}

func (c *Config) applyEnv() {
	if addr := os.Getenv("SDR_ADDR"); addr != "" {
		c.Server.Addr = addr
	}
	if level := os.Getenv("SDR_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if key := os.Getenv("RESEND_API_KEY"); key != "" {
		for name, ch := range c.Channels {
			if ch.Type != "resend" {
				continue
			}
			if s, ok := ch.Options["api_key"].(string); ok && s != "" {
				continue
			}
			opts := make(map[string]any, len(ch.Options)+1)
			for k, v := range ch.Options {
				opts[k] = v
			}
			opts["api_key"] = key
			ch.Options = opts
			c.Channels[name] = ch
		}
	}
}

// Save saves the config to the config file
func (c *Config) Save() error {
	configDir, err := GetConfigDir()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	configPath := filepath.Join(configDir, "config.yaml")

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}
