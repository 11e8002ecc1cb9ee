package model

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// BackendConfig holds the connection settings for the marketplace backend.
type BackendConfig struct {
	// BaseURL is the root of the backend REST API
	// (e.g., http://localhost:8000/api).
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`

	// TimeoutSec bounds the token exchange and initial sync requests.
	TimeoutSec int `mapstructure:"timeout_sec" yaml:"timeout_sec"`

	// LongPollTimeoutSec bounds a single long-poll request. It must be
	// longer than the time the server holds a request open.
	LongPollTimeoutSec int `mapstructure:"longpoll_timeout_sec" yaml:"longpoll_timeout_sec"`
}

// AuthConfig holds the token exchange retry policy.
type AuthConfig struct {
	RetryDelayMS int `mapstructure:"retry_delay_ms" yaml:"retry_delay_ms"`
}

// SyncConfig holds the long-poll backoff policy applied after failures.
type SyncConfig struct {
	BackoffInitialMS int `mapstructure:"backoff_initial_ms" yaml:"backoff_initial_ms"`
	BackoffMaxMS     int `mapstructure:"backoff_max_ms" yaml:"backoff_max_ms"`
}

// DisplayConfig holds UI/rendering preferences.
type DisplayConfig struct {
	Theme         string `mapstructure:"theme" yaml:"theme"`
	DropdownLimit int    `mapstructure:"dropdown_limit" yaml:"dropdown_limit"`
	ToastSec      int    `mapstructure:"toast_sec" yaml:"toast_sec"`
	Toasts        bool   `mapstructure:"toasts" yaml:"toasts"`
}

// LogConfig controls where and how verbosely the client logs.
type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
	File  string `mapstructure:"file" yaml:"file"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	Backend BackendConfig `mapstructure:"backend" yaml:"backend"`
	Auth    AuthConfig    `mapstructure:"auth" yaml:"auth"`
	Sync    SyncConfig    `mapstructure:"sync" yaml:"sync"`
	Display DisplayConfig `mapstructure:"display" yaml:"display"`
	Log     LogConfig     `mapstructure:"log" yaml:"log"`
}

// RetryDelay returns the token exchange retry delay.
func (c *AppConfig) RetryDelay() time.Duration {
	return time.Duration(c.Auth.RetryDelayMS) * time.Millisecond
}

// BackoffInitial returns the first long-poll backoff delay.
func (c *AppConfig) BackoffInitial() time.Duration {
	return time.Duration(c.Sync.BackoffInitialMS) * time.Millisecond
}

// BackoffMax returns the long-poll backoff cap.
func (c *AppConfig) BackoffMax() time.Duration {
	return time.Duration(c.Sync.BackoffMaxMS) * time.Millisecond
}

// ToastDuration returns how long a toast stays on screen.
func (c *AppConfig) ToastDuration() time.Duration {
	return time.Duration(c.Display.ToastSec) * time.Second
}

// ConfigDir returns ~/.config/carrylink, falling back to the working
// directory when the home directory cannot be resolved.
func ConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "carrylink")
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/carrylink/config.yaml.
func DefaultConfigPath() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// DefaultConfig returns the configuration used when no file or
// environment override is present.
func DefaultConfig() *AppConfig {
	return defaultAppConfig()
}

// defaultAppConfig returns a sensible default configuration.
func defaultAppConfig() *AppConfig {
	return &AppConfig{
		Backend: BackendConfig{
			BaseURL:            "http://localhost:8000/api",
			TimeoutSec:         30,
			LongPollTimeoutSec: 60,
		},
		Auth: AuthConfig{
			RetryDelayMS: 3000,
		},
		Sync: SyncConfig{
			BackoffInitialMS: 1000,
			BackoffMaxMS:     30000,
		},
		Display: DisplayConfig{
			Theme:         "default",
			DropdownLimit: 5,
			ToastSec:      4,
			Toasts:        true,
		},
		Log: LogConfig{
			Level: "info",
			File:  filepath.Join(ConfigDir(), "carrylink.log"),
		},
	}
}

// setDefaults registers every default with v so that missing keys and
// environment overrides resolve consistently.
func setDefaults(v *viper.Viper) {
	d := defaultAppConfig()
	v.SetDefault("backend.base_url", d.Backend.BaseURL)
	v.SetDefault("backend.timeout_sec", d.Backend.TimeoutSec)
	v.SetDefault("backend.longpoll_timeout_sec", d.Backend.LongPollTimeoutSec)
	v.SetDefault("auth.retry_delay_ms", d.Auth.RetryDelayMS)
	v.SetDefault("sync.backoff_initial_ms", d.Sync.BackoffInitialMS)
	v.SetDefault("sync.backoff_max_ms", d.Sync.BackoffMaxMS)
	v.SetDefault("display.theme", d.Display.Theme)
	v.SetDefault("display.dropdown_limit", d.Display.DropdownLimit)
	v.SetDefault("display.toast_sec", d.Display.ToastSec)
	v.SetDefault("display.toasts", d.Display.Toasts)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.file", d.Log.File)
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// Values may be overridden with CARRYLINK_* environment variables
// (e.g., CARRYLINK_BACKEND_BASE_URL). If the file does not exist, the
// defaults plus any environment overrides are returned.
func LoadConfig(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("carrylink")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		_, isPathErr := err.(*os.PathError)
		_, isNotFound := err.(viper.ConfigFileNotFoundError)
		if !isPathErr && !isNotFound {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := defaultAppConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return cfg, nil
}

// validate rejects values the client cannot run with and clamps the
// ones that have a safe floor.
func (c *AppConfig) validate() error {
	if strings.TrimSpace(c.Backend.BaseURL) == "" {
		return fmt.Errorf("backend.base_url is required")
	}
	if c.Backend.TimeoutSec <= 0 {
		c.Backend.TimeoutSec = 30
	}
	if c.Backend.LongPollTimeoutSec <= 0 {
		c.Backend.LongPollTimeoutSec = 60
	}
	if c.Auth.RetryDelayMS <= 0 {
		c.Auth.RetryDelayMS = 3000
	}
	if c.Sync.BackoffInitialMS <= 0 {
		c.Sync.BackoffInitialMS = 1000
	}
	if c.Sync.BackoffMaxMS < c.Sync.BackoffInitialMS {
		c.Sync.BackoffMaxMS = c.Sync.BackoffInitialMS
	}
	if c.Display.DropdownLimit <= 0 {
		c.Display.DropdownLimit = 5
	}
	if c.Display.ToastSec <= 0 {
		c.Display.ToastSec = 4
	}
	return nil
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("backend", cfg.Backend)
	v.Set("auth", cfg.Auth)
	v.Set("sync", cfg.Sync)
	v.Set("display", cfg.Display)
	v.Set("log", cfg.Log)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
