package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the application's configuration model.
// It is passed explicitly to the fetcher, the collector and the scheduler.
type Config struct {
	Provider   ProviderConfig   `yaml:"provider"`
	Collection CollectionConfig `yaml:"collection"`
	Storage    StorageConfig    `yaml:"storage"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Logging    LoggingConfig    `yaml:"logging"`
}

type ProviderConfig struct {
	BaseURL string `yaml:"baseURL"`
	// If empty, read from env KOLMETER_API_KEY
	APIKey string `yaml:"apiKey"`
	// Per-attempt deadline.
	TimeoutMs     int `yaml:"timeoutMs"`
	MaxAttempts   int `yaml:"maxAttempts"`
	BackoffStepMs int `yaml:"backoffStepMs"`
	// Token bucket shared by every provider request.
	RequestsPerSecond float64 `yaml:"requestsPerSecond"`
	Burst             int     `yaml:"burst"`
	TimelineCount     int     `yaml:"timelineCount"`
}

type CollectionConfig struct {
	// Handle of the account interactions are measured against.
	OfficialHandle string `yaml:"officialHandle"`
	// Seed handles registered by `accounts sync`.
	Handles              []string `yaml:"handles"`
	InterAccountDelayMs  int      `yaml:"interAccountDelayMs"`
	InterAccountJitterMs int      `yaml:"interAccountJitterMs"`
	// Cron spec for `schedule`, e.g. "@every 6h" or "0 */6 * * *".
	Schedule         string `yaml:"schedule"`
	ScoreWindowHours int    `yaml:"scoreWindowHours"`
}

type StorageConfig struct {
	DBPath string `yaml:"dbPath"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Default returns a sensible default configuration.
func Default() Config {
	return Config{
		Provider: ProviderConfig{
			BaseURL:           "https://api.tweetscout.example/v1",
			TimeoutMs:         30000,
			MaxAttempts:       3,
			BackoffStepMs:     2000,
			RequestsPerSecond: 1,
			Burst:             2,
			TimelineCount:     40,
		},
		Collection: CollectionConfig{
			InterAccountDelayMs:  1200,
			InterAccountJitterMs: 800,
			Schedule:             "@every 6h",
			ScoreWindowHours:     24 * 7,
		},
		Storage: StorageConfig{DBPath: "./kolmeter.db"},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Timeout is the per-attempt fetch deadline.
func (p ProviderConfig) Timeout() time.Duration {
	return time.Duration(p.TimeoutMs) * time.Millisecond
}

// BackoffStep is the unit of the linear retry backoff.
func (p ProviderConfig) BackoffStep() time.Duration {
	return time.Duration(p.BackoffStepMs) * time.Millisecond
}

func (c CollectionConfig) InterAccountDelay() time.Duration {
	return time.Duration(c.InterAccountDelayMs) * time.Millisecond
}

func (c CollectionConfig) InterAccountJitter() time.Duration {
	return time.Duration(c.InterAccountJitterMs) * time.Millisecond
}

func (c CollectionConfig) ScoreWindow() time.Duration {
	return time.Duration(c.ScoreWindowHours) * time.Hour
}

// LoadDotEnv loads KEY=VALUE pairs from the given files into the process
// environment without overriding variables that are already set. Missing
// files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// ResolveEnv fills in config fields from environment variables if set.
func (c *Config) ResolveEnv() {
	if c.Provider.APIKey == "" {
		c.Provider.APIKey = os.Getenv("KOLMETER_API_KEY")
	}
	if v := os.Getenv("KOLMETER_BASE_URL"); v != "" {
		c.Provider.BaseURL = v
	}
	if v := os.Getenv("KOLMETER_DB_PATH"); v != "" {
		c.Storage.DBPath = v
	}
	if v := os.Getenv("KOLMETER_METRICS_ADDR"); v != "" {
		c.Metrics.Addr = v
	}
	if v := os.Getenv("KOLMETER_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("KOLMETER_OFFICIAL_HANDLE"); v != "" {
		c.Collection.OfficialHandle = v
	}
	c.Provider.MaxAttempts = getEnvInt("KOLMETER_MAX_ATTEMPTS", c.Provider.MaxAttempts)
	c.Collection.InterAccountDelayMs = getEnvInt("KOLMETER_INTER_ACCOUNT_DELAY_MS", c.Collection.InterAccountDelayMs)
}

// Validate reports the first setting that would make a run impossible.
func (c Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Provider.BaseURL) == "":
		return errors.New("provider.baseURL is required")
	case c.Provider.MaxAttempts < 1:
		return errors.New("provider.maxAttempts must be at least 1")
	case c.Provider.TimeoutMs <= 0:
		return errors.New("provider.timeoutMs must be positive")
	case c.Provider.BackoffStepMs < 0:
		return errors.New("provider.backoffStepMs must not be negative")
	case c.Collection.InterAccountDelayMs < 0 || c.Collection.InterAccountJitterMs < 0:
		return errors.New("collection delays must not be negative")
	case strings.TrimSpace(c.Collection.OfficialHandle) == "":
		return errors.New("collection.officialHandle is required")
	case c.Storage.DBPath == "":
		return errors.New("storage.dbPath is required")
	}
	return nil
}

// Load reads YAML config from path on top of Default().
func Load(path string) (Config, error) {
	cfg := Default()
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.ResolveEnv()
	return cfg, nil
}

// Save writes YAML config to path, creating directories as needed.
func Save(path string, cfg Config) error {
	if path == "" {
		return errors.New("empty path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	b, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if i, err := strconv.Atoi(v); err == nil && i >= 0 {
		return i
	}
	return def
}
