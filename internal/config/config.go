package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Transport names.
const (
	TransportLoopback = "loopback"
	TransportTelegram = "telegram"
)

// Config is the on-disk configuration, read from config.yaml.
type Config struct {
	LogLevel    string         `yaml:"log_level"`
	LocalUserID string         `yaml:"local_user_id"`
	Transport   string         `yaml:"transport"`
	Telegram    TelegramConfig `yaml:"telegram"`
	Delivery    DeliveryConfig `yaml:"delivery"`
	Loopback    LoopbackConfig `yaml:"loopback"`
	Metrics     MetricsConfig  `yaml:"metrics"`
}

// TelegramConfig holds the API credentials and session location.
type TelegramConfig struct {
	APIID      int    `yaml:"api_id"`
	APIHash    string `yaml:"api_hash"`
	SessionDir string `yaml:"session_dir"`
}

// DeliveryConfig tunes the send retry loop.
type DeliveryConfig struct {
	MaxAttempts int `yaml:"max_attempts"`
}

// LoopbackConfig drives the offline transport.
type LoopbackConfig struct {
	Latency  time.Duration `yaml:"latency"`
	Failures int           `yaml:"failures"`
	Echo     bool          `yaml:"echo"`
	Chats    []string      `yaml:"chats"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	// Listen is the address for the /metrics endpoint. Empty disables it.
	Listen string `yaml:"listen"`
}

// Dir returns the tgflux directory under the user config dir.
func Dir() string {
	cfgDir, err := os.UserConfigDir()
	if err != nil {
		cfgDir = filepath.Join(os.Getenv("HOME"), ".config")
	}
	return filepath.Join(cfgDir, "tgflux")
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads the YAML file at path and fills unset fields with defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LocalUserID == "" {
		c.LocalUserID = "me"
	}
	if c.Transport == "" {
		c.Transport = TransportLoopback
	}
	if c.Telegram.SessionDir == "" {
		c.Telegram.SessionDir = Dir()
	}
	if c.Delivery.MaxAttempts == 0 {
		c.Delivery.MaxAttempts = 2
	}
	if c.Loopback.Latency == 0 {
		c.Loopback.Latency = 500 * time.Millisecond
	}
	if len(c.Loopback.Chats) == 0 {
		c.Loopback.Chats = []string{"general"}
	}
}

// ApplyEnv overrides file values with TGFLUX_* variables from getenv.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if v := getenv("TGFLUX_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := getenv("TGFLUX_LOCAL_USER_ID"); v != "" {
		c.LocalUserID = v
	}
	if v := getenv("TGFLUX_TRANSPORT"); v != "" {
		c.Transport = v
	}
	if v := getenv("TGFLUX_API_ID"); v != "" {
		id, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse TGFLUX_API_ID: %w", err)
		}
		c.Telegram.APIID = id
	}
	if v := getenv("TGFLUX_API_HASH"); v != "" {
		c.Telegram.APIHash = v
	}
	if v := getenv("TGFLUX_MAX_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse TGFLUX_MAX_ATTEMPTS: %w", err)
		}
		c.Delivery.MaxAttempts = n
	}
	if v := getenv("TGFLUX_METRICS_LISTEN"); v != "" {
		c.Metrics.Listen = v
	}
	return nil
}

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var errs []error
	switch c.Transport {
	case TransportLoopback:
	case TransportTelegram:
		if c.Telegram.APIID == 0 || c.Telegram.APIHash == "" {
			errs = append(errs, errors.New("telegram transport needs api_id and api_hash"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown transport %q", c.Transport))
	}
	if c.Delivery.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("delivery.max_attempts must be at least 1, got %d", c.Delivery.MaxAttempts))
	}
	if c.Loopback.Failures < 0 {
		errs = append(errs, fmt.Errorf("loopback.failures must not be negative, got %d", c.Loopback.Failures))
	}
	return errors.Join(errs...)
}
