package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds configuration for a model job manager and its tooling.
type Config struct {
	Name            string        `yaml:"name"`
	Pool            PoolConfig    `yaml:"pool"`
	HistoryCapacity int           `yaml:"history_capacity"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	Log             LogConfig     `yaml:"log"`
	Metrics         MetricsConfig `yaml:"metrics"`
}

// PoolConfig sizes the shared worker pool.
type PoolConfig struct {
	MinWorkers int           `yaml:"min_workers"`
	MaxWorkers int           `yaml:"max_workers"` // 0 = unbounded
	KeepAlive  time.Duration `yaml:"keep_alive"`
}

type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json, zap
}

type MetricsConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Namespace    string        `yaml:"namespace"`
	Addr         string        `yaml:"addr"` // admin listen address, empty = none
	PollInterval time.Duration `yaml:"poll_interval"`
}

// Default returns sensible defaults.
func Default() *Config {
	return &Config{
		Name: "model-jobs",
		Pool: PoolConfig{
			MinWorkers: 1,
			MaxWorkers: 0,
			KeepAlive:  30 * time.Second,
		},
		HistoryCapacity: 100,
		ShutdownTimeout: 10 * time.Second,
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled:      false,
			Namespace:    "modeljobs",
			PollInterval: 5 * time.Second,
		},
	}
}

// Load reads a YAML file over the defaults. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from MODELJOBS_* environment variables.
func (c *Config) ApplyEnv() {
	c.Name = getEnv("MODELJOBS_NAME", c.Name)
	c.Pool.MinWorkers = getEnvInt("MODELJOBS_MIN_WORKERS", c.Pool.MinWorkers)
	c.Pool.MaxWorkers = getEnvInt("MODELJOBS_MAX_WORKERS", c.Pool.MaxWorkers)
	c.Pool.KeepAlive = getEnvDuration("MODELJOBS_KEEP_ALIVE", c.Pool.KeepAlive)
	c.HistoryCapacity = getEnvInt("MODELJOBS_HISTORY_CAPACITY", c.HistoryCapacity)
	c.ShutdownTimeout = getEnvDuration("MODELJOBS_SHUTDOWN_TIMEOUT", c.ShutdownTimeout)
	c.Log.Level = getEnv("MODELJOBS_LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("MODELJOBS_LOG_FORMAT", c.Log.Format)
	c.Metrics.Addr = getEnv("MODELJOBS_METRICS_ADDR", c.Metrics.Addr)
	if v, ok := os.LookupEnv("MODELJOBS_METRICS_ENABLED"); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Metrics.Enabled = b
		}
	}
}

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Name == "" {
		errs = append(errs, errors.New("name must not be empty"))
	}
	if c.Pool.MinWorkers < 0 {
		errs = append(errs, fmt.Errorf("pool.min_workers must be >= 0, got %d", c.Pool.MinWorkers))
	}
	if c.Pool.MaxWorkers < 0 {
		errs = append(errs, fmt.Errorf("pool.max_workers must be >= 0, got %d", c.Pool.MaxWorkers))
	}
	if c.Pool.MaxWorkers > 0 && c.Pool.MinWorkers > c.Pool.MaxWorkers {
		errs = append(errs, fmt.Errorf("pool.min_workers (%d) exceeds pool.max_workers (%d)", c.Pool.MinWorkers, c.Pool.MaxWorkers))
	}
	if c.Pool.KeepAlive <= 0 {
		errs = append(errs, fmt.Errorf("pool.keep_alive must be positive, got %v", c.Pool.KeepAlive))
	}
	if c.HistoryCapacity < 1 {
		errs = append(errs, fmt.Errorf("history_capacity must be >= 1, got %d", c.HistoryCapacity))
	}
	switch c.Log.Format {
	case "text", "json", "zap":
	default:
		errs = append(errs, fmt.Errorf("log.format must be text, json or zap, got %q", c.Log.Format))
	}
	if c.Metrics.Enabled && c.Metrics.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("metrics.poll_interval must be positive, got %v", c.Metrics.PollInterval))
	}
	return errors.Join(errs...)
}

// YAML renders the config as it would be written to a file.
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}

func getEnv(key, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
