package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Backend identifies the cache store implementation
type Backend string

const (
	BackendBolt   Backend = "bolt"
	BackendSQLite Backend = "sqlite"
)

// Config holds all application configuration
type Config struct {
	Owner     string          `mapstructure:"owner"` // default collection owner
	Remote    RemoteConfig    `mapstructure:"remote"`
	PlayCount PlayCountConfig `mapstructure:"playcount"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Progress  ProgressConfig  `mapstructure:"progress"`
	Poller    PollerConfig    `mapstructure:"poller"`
	Query     QueryConfig     `mapstructure:"query"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// RemoteConfig holds collection API configuration
type RemoteConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	Token     string        `mapstructure:"token"`
	PageSize  int           `mapstructure:"page_size"`
	Timeout   time.Duration `mapstructure:"timeout"`
	RateLimit int           `mapstructure:"rate_limit"` // requests per minute, 0 = unlimited
	Retry     RetryConfig   `mapstructure:"retry"`
}

// RetryConfig holds HTTP retry settings
type RetryConfig struct {
	MaxAttempts    int           `mapstructure:"max_attempts"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff"`
}

// PlayCountConfig holds scrobble-service configuration
type PlayCountConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	APIKey      string        `mapstructure:"api_key"`
	Username    string        `mapstructure:"username"`
	TTL         time.Duration `mapstructure:"ttl"`
	Concurrency int           `mapstructure:"concurrency"`
}

// CacheConfig holds cache store and freshness configuration
type CacheConfig struct {
	Backend               Backend       `mapstructure:"backend"` // "bolt" or "sqlite"
	Dir                   string        `mapstructure:"dir"`
	FullTTL               time.Duration `mapstructure:"full_ttl"`
	ItemTTL               time.Duration `mapstructure:"item_ttl"`
	CompletenessThreshold int           `mapstructure:"completeness_threshold"`
}

// ProgressConfig holds progress tracker retention
type ProgressConfig struct {
	Retention     time.Duration `mapstructure:"retention"`
	IdleTTL       time.Duration `mapstructure:"idle_ttl"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

// PollerConfig holds client polling configuration
type PollerConfig struct {
	Interval      time.Duration `mapstructure:"interval"`
	MaxAttempts   int           `mapstructure:"max_attempts"`
	BackoffFactor float64       `mapstructure:"backoff_factor"`
	MaxInterval   time.Duration `mapstructure:"max_interval"`
}

// QueryConfig holds view settings
type QueryConfig struct {
	RevealBatch int `mapstructure:"reveal_batch"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	File  string `mapstructure:"file"`
	Level string `mapstructure:"level"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Remote: RemoteConfig{
			BaseURL:   "https://api.discogs.com",
			PageSize:  100,
			Timeout:   30 * time.Second,
			RateLimit: 60,
			Retry: RetryConfig{
				MaxAttempts:    3,
				InitialBackoff: 500 * time.Millisecond,
				MaxBackoff:     10 * time.Second,
			},
		},
		PlayCount: PlayCountConfig{
			BaseURL:     "https://ws.audioscrobbler.com",
			TTL:         24 * time.Hour,
			Concurrency: 4,
		},
		Cache: CacheConfig{
			Backend:               BackendBolt,
			Dir:                   defaultCachePath(),
			FullTTL:               24 * time.Hour,
			ItemTTL:               7 * 24 * time.Hour,
			CompletenessThreshold: 50,
		},
		Progress: ProgressConfig{
			Retention:     30 * time.Second,
			IdleTTL:       10 * time.Minute,
			SweepInterval: time.Minute,
		},
		Poller: PollerConfig{
			Interval:      time.Second,
			MaxAttempts:   60,
			BackoffFactor: 1.5,
			MaxInterval:   10 * time.Second,
		},
		Query: QueryConfig{
			RevealBatch: 50,
		},
		Logging: LoggingConfig{
			File:  defaultLogPath(),
			Level: "INFO",
		},
	}
}

// defaultLogPath returns the default log file path for the current OS
func defaultLogPath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "crate", "crate.log")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".local", "share", "crate", "crate.log")
	}
}

// defaultConfigPath returns the default config directory for the current OS
func defaultConfigPath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "crate")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".config", "crate")
	}
}

// defaultCachePath returns the default cache directory path for the current OS
func defaultCachePath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("LOCALAPPDATA"), "crate", "cache")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".local", "share", "crate", "cache")
	}
}

// Loader reads configuration. Search paths default to the OS config
// directory and the working directory.
type Loader struct {
	v       *viper.Viper
	paths   []string
	envFile string
}

// NewLoader creates a loader. An empty path list uses the defaults.
func NewLoader(paths ...string) *Loader {
	if len(paths) == 0 {
		paths = []string{defaultConfigPath(), "."}
	}
	return &Loader{v: viper.New(), paths: paths, envFile: ".env"}
}

// WithEnvFile sets the dotenv file loaded before reading. Empty disables it.
func (l *Loader) WithEnvFile(path string) *Loader {
	l.envFile = path
	return l
}

// Load loads configuration from file and environment. CRATE_ variables
// override file values, e.g. CRATE_REMOTE_TOKEN for remote.token.
func (l *Loader) Load() (*Config, error) {
	if l.envFile != "" {
		// Existing environment wins over the dotenv file
		if err := godotenv.Load(l.envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("error reading env file: %w", err)
		}
	}

	cfg := DefaultConfig()
	v := l.v

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	for _, p := range l.paths {
		v.AddConfigPath(p)
	}

	v.SetEnvPrefix("CRATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, cfg)

	// Read config file if it exists
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes cfg to config.yaml in dir, creating it if needed.
func (l *Loader) Save(cfg *Config, dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	setAll(l.v, cfg)

	configFile := filepath.Join(dir, "config.yaml")
	if err := l.v.WriteConfigAs(configFile); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// LoadConfig loads configuration from the default locations
func LoadConfig() (*Config, error) {
	return NewLoader().Load()
}

// SaveConfig saves the configuration to the default config directory
func SaveConfig(cfg *Config) error {
	return NewLoader().WithEnvFile("").Save(cfg, defaultConfigPath())
}

// Validate rejects settings the components cannot run with.
func (c *Config) Validate() error {
	switch c.Cache.Backend {
	case BackendBolt, BackendSQLite:
	default:
		return fmt.Errorf("invalid cache.backend %q: want %q or %q", c.Cache.Backend, BackendBolt, BackendSQLite)
	}
	if c.Remote.PageSize <= 0 {
		return fmt.Errorf("invalid remote.page_size %d: must be positive", c.Remote.PageSize)
	}
	if c.Cache.FullTTL < 0 || c.Cache.ItemTTL < 0 {
		return fmt.Errorf("invalid cache ttl: must not be negative")
	}
	if c.Poller.BackoffFactor < 1 {
		return fmt.Errorf("invalid poller.backoff_factor %v: must be at least 1", c.Poller.BackoffFactor)
	}
	return nil
}

// IsConfigured returns true if the remote URL and token are set
func (c *Config) IsConfigured() bool {
	return c.Remote.BaseURL != "" && c.Remote.Token != ""
}

// setDefaults registers every key so environment overrides reach Unmarshal.
func setDefaults(v *viper.Viper, cfg *Config) {
	for key, val := range settings(cfg) {
		v.SetDefault(key, val)
	}
}

// setAll sets every key individually to ensure snake_case key names.
func setAll(v *viper.Viper, cfg *Config) {
	for key, val := range settings(cfg) {
		v.Set(key, val)
	}
}

func settings(cfg *Config) map[string]any {
	return map[string]any{
		"owner": cfg.Owner,

		"remote.base_url":              cfg.Remote.BaseURL,
		"remote.token":                 cfg.Remote.Token,
		"remote.page_size":             cfg.Remote.PageSize,
		"remote.timeout":               cfg.Remote.Timeout.String(),
		"remote.rate_limit":            cfg.Remote.RateLimit,
		"remote.retry.max_attempts":    cfg.Remote.Retry.MaxAttempts,
		"remote.retry.initial_backoff": cfg.Remote.Retry.InitialBackoff.String(),
		"remote.retry.max_backoff":     cfg.Remote.Retry.MaxBackoff.String(),

		"playcount.base_url":    cfg.PlayCount.BaseURL,
		"playcount.api_key":     cfg.PlayCount.APIKey,
		"playcount.username":    cfg.PlayCount.Username,
		"playcount.ttl":         cfg.PlayCount.TTL.String(),
		"playcount.concurrency": cfg.PlayCount.Concurrency,

		"cache.backend":                string(cfg.Cache.Backend),
		"cache.dir":                    cfg.Cache.Dir,
		"cache.full_ttl":               cfg.Cache.FullTTL.String(),
		"cache.item_ttl":               cfg.Cache.ItemTTL.String(),
		"cache.completeness_threshold": cfg.Cache.CompletenessThreshold,

		"progress.retention":      cfg.Progress.Retention.String(),
		"progress.idle_ttl":       cfg.Progress.IdleTTL.String(),
		"progress.sweep_interval": cfg.Progress.SweepInterval.String(),

		"poller.interval":       cfg.Poller.Interval.String(),
		"poller.max_attempts":   cfg.Poller.MaxAttempts,
		"poller.backoff_factor": cfg.Poller.BackoffFactor,
		"poller.max_interval":   cfg.Poller.MaxInterval.String(),

		"query.reveal_batch": cfg.Query.RevealBatch,

		"logging.file":  cfg.Logging.File,
		"logging.level": cfg.Logging.Level,
	}
}
