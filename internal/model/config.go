package model

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// APIConfig holds the REST backend settings.
type APIConfig struct {
	// BaseURL is the scheme and host of the console backend; the
	// /api/... paths are appended to it.
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`

	// TimeoutSec bounds a single HTTP request.
	TimeoutSec int `mapstructure:"timeout_sec" yaml:"timeout_sec"`

	// MaxRetries applies to rate-limited (429) responses only.
	MaxRetries int `mapstructure:"max_retries" yaml:"max_retries"`
}

// ReconnectConfig controls the optional live channel reconnect policy.
type ReconnectConfig struct {
	Enabled           bool `mapstructure:"enabled" yaml:"enabled"`
	InitialIntervalMs int  `mapstructure:"initial_interval_ms" yaml:"initial_interval_ms"`
	MaxIntervalSec    int  `mapstructure:"max_interval_sec" yaml:"max_interval_sec"`
	MaxElapsedSec     int  `mapstructure:"max_elapsed_sec" yaml:"max_elapsed_sec"`
}

// InitialInterval returns the first reconnect delay.
func (c ReconnectConfig) InitialInterval() time.Duration {
	return time.Duration(c.InitialIntervalMs) * time.Millisecond
}

// MaxInterval returns the cap on a single reconnect delay.
func (c ReconnectConfig) MaxInterval() time.Duration {
	return time.Duration(c.MaxIntervalSec) * time.Second
}

// MaxElapsed returns how long reconnecting may go on before giving up.
func (c ReconnectConfig) MaxElapsed() time.Duration {
	return time.Duration(c.MaxElapsedSec) * time.Second
}

// LiveConfig holds the WebSocket channel settings.
type LiveConfig struct {
	Path      string          `mapstructure:"path" yaml:"path"`
	Reconnect ReconnectConfig `mapstructure:"reconnect" yaml:"reconnect"`
}

// DisplayConfig holds UI/rendering preferences.
type DisplayConfig struct {
	Theme    string `mapstructure:"theme" yaml:"theme"`
	ToastSec int    `mapstructure:"toast_sec" yaml:"toast_sec"`
}

// CacheConfig locates the local snapshot mirror.
type CacheConfig struct {
	DBPath string `mapstructure:"db_path" yaml:"db_path"`
}

// LogConfig controls the rotating log file.
type LogConfig struct {
	File string `mapstructure:"file" yaml:"file"`
	Dev  bool   `mapstructure:"dev" yaml:"dev"`
}

// MetricsConfig controls the optional Prometheus endpoint.
type MetricsConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	API     APIConfig     `mapstructure:"api" yaml:"api"`
	Live    LiveConfig    `mapstructure:"live" yaml:"live"`
	Display DisplayConfig `mapstructure:"display" yaml:"display"`
	Cache   CacheConfig   `mapstructure:"cache" yaml:"cache"`
	Log     LogConfig     `mapstructure:"log" yaml:"log"`
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// EnvPrefix is the prefix for environment overrides, e.g.
// LABCONSOLE_API_BASE_URL.
const EnvPrefix = "LABCONSOLE"

// ConfigDir returns ~/.config/labconsole, or the working directory when
// the home directory cannot be resolved.
func ConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "labconsole")
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/labconsole/config.yaml.
func DefaultConfigPath() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// defaultAppConfig returns a sensible default configuration.
func defaultAppConfig() *AppConfig {
	dir := ConfigDir()
	return &AppConfig{
		API: APIConfig{
			BaseURL:    "http://localhost:8000",
			TimeoutSec: 30,
			MaxRetries: 3,
		},
		Live: LiveConfig{
			Path: "/ws/notifications/",
			Reconnect: ReconnectConfig{
				InitialIntervalMs: 500,
				MaxIntervalSec:    30,
				MaxElapsedSec:     300,
			},
		},
		Display: DisplayConfig{
			Theme:    "default",
			ToastSec: 5,
		},
		Cache: CacheConfig{
			DBPath: filepath.Join(dir, "notifications.db"),
		},
		Log: LogConfig{
			File: filepath.Join(dir, "labconsole.log"),
		},
	}
}

// setDefaults registers every default with v so that environment
// overrides resolve even when the key is absent from the file.
func setDefaults(v *viper.Viper, cfg *AppConfig) {
	v.SetDefault("api.base_url", cfg.API.BaseURL)
	v.SetDefault("api.timeout_sec", cfg.API.TimeoutSec)
	v.SetDefault("api.max_retries", cfg.API.MaxRetries)
	v.SetDefault("live.path", cfg.Live.Path)
	v.SetDefault("live.reconnect.enabled", cfg.Live.Reconnect.Enabled)
	v.SetDefault("live.reconnect.initial_interval_ms", cfg.Live.Reconnect.InitialIntervalMs)
	v.SetDefault("live.reconnect.max_interval_sec", cfg.Live.Reconnect.MaxIntervalSec)
	v.SetDefault("live.reconnect.max_elapsed_sec", cfg.Live.Reconnect.MaxElapsedSec)
	v.SetDefault("display.theme", cfg.Display.Theme)
	v.SetDefault("display.toast_sec", cfg.Display.ToastSec)
	v.SetDefault("cache.db_path", cfg.Cache.DBPath)
	v.SetDefault("log.file", cfg.Log.File)
	v.SetDefault("log.dev", cfg.Log.Dev)
	v.SetDefault("metrics.addr", cfg.Metrics.Addr)
}

// LoadConfig reads configuration from the given YAML file path using Viper,
// then applies LABCONSOLE_* environment overrides. A missing file is not
// an error; defaults are used in its place.
func LoadConfig(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v, defaultAppConfig())

	if err := v.ReadInConfig(); err != nil {
		_, missing := err.(viper.ConfigFileNotFoundError)
		if _, ok := err.(*os.PathError); ok {
			missing = true
		}
		if !missing {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := defaultAppConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	cfg.API.BaseURL = strings.TrimRight(cfg.API.BaseURL, "/")
	if cfg.API.TimeoutSec <= 0 {
		cfg.API.TimeoutSec = 30
	}
	if cfg.API.MaxRetries < 0 {
		cfg.API.MaxRetries = 0
	}
	if cfg.Display.ToastSec <= 0 {
		cfg.Display.ToastSec = 5
	}
	if !strings.HasPrefix(cfg.Live.Path, "/") {
		cfg.Live.Path = "/" + cfg.Live.Path
	}

	return cfg, nil
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

	v.Set("api", cfg.API)
	v.Set("live", cfg.Live)
	v.Set("display", cfg.Display)
	v.Set("cache", cfg.Cache)
	v.Set("log", cfg.Log)
	v.Set("metrics", cfg.Metrics)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
