// Package config provides CLI configuration management for epctl.
// It supports loading configuration from YAML files, environment variables,
// and command-line flags.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// OutputFormat defines the supported output formats for CLI results.
type OutputFormat string

const (
	// OutputFormatText is human-readable plain text output.
	OutputFormatText OutputFormat = "text"
	// OutputFormatJSON is JSON-formatted output for machine processing.
	OutputFormatJSON OutputFormat = "json"
	// OutputFormatYAML is YAML-formatted output for machine processing.
	OutputFormatYAML OutputFormat = "yaml"
)

// Default configuration values.
const (
	DefaultGatewayURL     = "http://localhost:8080"
	DefaultRequestTimeout = 30 * time.Second
	DefaultBatchDeadline  = 2 * time.Minute
	DefaultOutputFormat   = OutputFormatText
	DefaultConfigDir      = ".epctl"
	DefaultConfigFile     = "config.yaml"
)

// RedisConfig holds result-cache connection settings.
type RedisConfig struct {
	// Address is the Redis server address (host:port).
	Address string `yaml:"address,omitempty"`

	// Password authenticates against a protected instance.
	Password string `yaml:"password,omitempty"`

	// DB selects the Redis logical database.
	DB int `yaml:"db,omitempty"`

	// TTL bounds how long cached gateway results stay fresh.
	TTL time.Duration `yaml:"-"`
}

// IsConfigured returns true when a cache address is set.
func (c *RedisConfig) IsConfigured() bool {
	return c != nil && c.Address != ""
}

// AuditConfig holds audit-database connection settings.
type AuditConfig struct {
	// Host is the database server hostname.
	Host string `yaml:"host,omitempty"`

	// Port is the database server port (default: 5432).
	Port int `yaml:"port,omitempty"`

	// Database is the database name.
	Database string `yaml:"database,omitempty"`

	// User is the database username.
	User string `yaml:"user,omitempty"`

	// Password is the database password. Prefer EPCTL_DB_PASSWORD over
	// putting this in the file.
	Password string `yaml:"password,omitempty"`

	// SSLMode is the SSL connection mode (disable, require, verify-ca,
	// verify-full).
	SSLMode string `yaml:"sslmode,omitempty"`
}

// IsConfigured returns true if the audit store has its required fields.
func (c *AuditConfig) IsConfigured() bool {
	return c != nil && c.Host != "" && c.Database != "" && c.User != ""
}

// CLIConfig holds the CLI configuration settings.
type CLIConfig struct {
	// GatewayURL is the base URL of the metrics/tool gateway.
	GatewayURL string `yaml:"gateway_url"`

	// RequestTimeout bounds each individual gateway call.
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// BatchDeadline bounds one whole query fan-out.
	BatchDeadline time.Duration `yaml:"batch_deadline"`

	// OutputFormat specifies the default output format for commands.
	OutputFormat OutputFormat `yaml:"output_format"`

	// DefaultClientID is used when --client is not given.
	DefaultClientID string `yaml:"default_client_id,omitempty"`

	// ClientMetrics maps client IDs to their conversion metric IDs, the
	// precondition for revenue queries.
	ClientMetrics map[string]string `yaml:"client_metrics,omitempty"`

	// Debug enables verbose debug logging.
	Debug bool `yaml:"debug,omitempty"`

	// Redis holds result-cache settings.
	Redis *RedisConfig `yaml:"redis,omitempty"`

	// Audit holds audit-database settings.
	Audit *AuditConfig `yaml:"audit,omitempty"`
}

// ConversionMetricID returns the configured conversion metric for a client,
// or empty when none is configured.
func (c *CLIConfig) ConversionMetricID(clientID string) string {
	if c == nil || c.ClientMetrics == nil {
		return ""
	}
	return c.ClientMetrics[clientID]
}

// DefaultConfig returns a CLIConfig with default values.
func DefaultConfig() *CLIConfig {
	return &CLIConfig{
		GatewayURL:     DefaultGatewayURL,
		RequestTimeout: DefaultRequestTimeout,
		BatchDeadline:  DefaultBatchDeadline,
		OutputFormat:   DefaultOutputFormat,
	}
}

// ConfigDir returns the configuration directory path.
// Uses $EPCTL_CONFIG_DIR if set, otherwise ~/.epctl
func ConfigDir() (string, error) {
	if dir := os.Getenv("EPCTL_CONFIG_DIR"); dir != "" {
		return dir, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(home, DefaultConfigDir), nil
}

// ConfigPath returns the full path to the configuration file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, DefaultConfigFile), nil
}

// LoadConfig loads the CLI configuration from file and environment
// variables. Configuration is loaded in this order (later sources override
// earlier):
// 1. Default values
// 2. Config file (~/.epctl/config.yaml or $EPCTL_CONFIG_DIR/config.yaml)
// 3. Environment variables (EPCTL_GATEWAY_URL, EPCTL_OUTPUT_FORMAT, ...)
func LoadConfig() (*CLIConfig, error) {
	cfg := DefaultConfig()

	configPath, err := ConfigPath()
	if err != nil {
		return nil, fmt.Errorf("getting config path: %w", err)
	}

	if _, err := os.Stat(configPath); err == nil {
		if err := loadFromFile(cfg, configPath); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	loadFromEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// loadFromFile loads configuration from a YAML file.
func loadFromFile(cfg *CLIConfig, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}

	// Durations are stored as strings ("30s"), so unmarshal through a
	// file-shaped struct.
	type redisFile struct {
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	}
	type configFile struct {
		GatewayURL      string            `yaml:"gateway_url"`
		RequestTimeout  string            `yaml:"request_timeout"`
		BatchDeadline   string            `yaml:"batch_deadline"`
		OutputFormat    OutputFormat      `yaml:"output_format"`
		DefaultClientID string            `yaml:"default_client_id"`
		ClientMetrics   map[string]string `yaml:"client_metrics"`
		Debug           bool              `yaml:"debug"`
		Redis           *redisFile        `yaml:"redis"`
		Audit           *AuditConfig      `yaml:"audit"`
	}

	var fileCfg configFile
	if err := yaml.Unmarshal(data, &fileCfg); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}

	if fileCfg.GatewayURL != "" {
		cfg.GatewayURL = fileCfg.GatewayURL
	}
	if fileCfg.RequestTimeout != "" {
		timeout, err := time.ParseDuration(fileCfg.RequestTimeout)
		if err != nil {
			return fmt.Errorf("parsing request_timeout: %w", err)
		}
		cfg.RequestTimeout = timeout
	}
	if fileCfg.BatchDeadline != "" {
		deadline, err := time.ParseDuration(fileCfg.BatchDeadline)
		if err != nil {
			return fmt.Errorf("parsing batch_deadline: %w", err)
		}
		cfg.BatchDeadline = deadline
	}
	if fileCfg.OutputFormat != "" {
		cfg.OutputFormat = fileCfg.OutputFormat
	}
	if fileCfg.DefaultClientID != "" {
		cfg.DefaultClientID = fileCfg.DefaultClientID
	}
	if fileCfg.ClientMetrics != nil {
		cfg.ClientMetrics = fileCfg.ClientMetrics
	}
	if fileCfg.Redis != nil {
		cfg.Redis = &RedisConfig{
			Address:  fileCfg.Redis.Address,
			Password: fileCfg.Redis.Password,
			DB:       fileCfg.Redis.DB,
		}
		if fileCfg.Redis.TTL != "" {
			ttl, err := time.ParseDuration(fileCfg.Redis.TTL)
			if err != nil {
				return fmt.Errorf("parsing redis ttl: %w", err)
			}
			cfg.Redis.TTL = ttl
		}
	}
	if fileCfg.Audit != nil {
		cfg.Audit = fileCfg.Audit
	}
	cfg.Debug = fileCfg.Debug

	return nil
}

// loadFromEnv overlays environment variables onto the configuration.
func loadFromEnv(cfg *CLIConfig) {
	if v := os.Getenv("EPCTL_GATEWAY_URL"); v != "" {
		cfg.GatewayURL = v
	}
	if v := os.Getenv("EPCTL_REQUEST_TIMEOUT"); v != "" {
		if timeout, err := time.ParseDuration(v); err == nil {
			cfg.RequestTimeout = timeout
		}
	}
	if v := os.Getenv("EPCTL_BATCH_DEADLINE"); v != "" {
		if deadline, err := time.ParseDuration(v); err == nil {
			cfg.BatchDeadline = deadline
		}
	}
	if v := os.Getenv("EPCTL_OUTPUT_FORMAT"); v != "" {
		cfg.OutputFormat = OutputFormat(v)
	}
	if v := os.Getenv("EPCTL_CLIENT_ID"); v != "" {
		cfg.DefaultClientID = v
	}
	if v := os.Getenv("EPCTL_DEBUG"); v == "true" || v == "1" {
		cfg.Debug = true
	}
	if v := os.Getenv("EPCTL_REDIS_ADDRESS"); v != "" {
		if cfg.Redis == nil {
			cfg.Redis = &RedisConfig{}
		}
		cfg.Redis.Address = v
	}
	if cfg.Redis != nil {
		if v := os.Getenv("EPCTL_REDIS_PASSWORD"); v != "" {
			cfg.Redis.Password = v
		}
		if v := os.Getenv("EPCTL_REDIS_DB"); v != "" {
			if db, err := strconv.Atoi(v); err == nil {
				cfg.Redis.DB = db
			}
		}
	}
}

// Validate checks that the configuration is valid.
func (c *CLIConfig) Validate() error {
	if c.GatewayURL == "" {
		return fmt.Errorf("gateway_url is required")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive")
	}
	if c.BatchDeadline <= 0 {
		return fmt.Errorf("batch_deadline must be positive")
	}
	if !c.OutputFormat.IsValid() {
		return fmt.Errorf("invalid output_format: %q (must be text, json, or yaml)", c.OutputFormat)
	}
	return nil
}

// IsValid checks if the output format is valid.
func (f OutputFormat) IsValid() bool {
	switch f {
	case OutputFormatText, OutputFormatJSON, OutputFormatYAML:
		return true
	default:
		return false
	}
}

// String returns the string representation of the output format.
func (f OutputFormat) String() string {
	return string(f)
}

// SaveConfig saves the configuration to the config file.
func SaveConfig(cfg *CLIConfig) error {
	configDir, err := ConfigDir()
	if err != nil {
		return fmt.Errorf("getting config directory: %w", err)
	}
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	type redisFile struct {
		Address  string `yaml:"address,omitempty"`
		Password string `yaml:"password,omitempty"`
		DB       int    `yaml:"db,omitempty"`
		TTL      string `yaml:"ttl,omitempty"`
	}
	type configFile struct {
		GatewayURL      string            `yaml:"gateway_url"`
		RequestTimeout  string            `yaml:"request_timeout"`
		BatchDeadline   string            `yaml:"batch_deadline"`
		OutputFormat    OutputFormat      `yaml:"output_format"`
		DefaultClientID string            `yaml:"default_client_id,omitempty"`
		ClientMetrics   map[string]string `yaml:"client_metrics,omitempty"`
		Debug           bool              `yaml:"debug,omitempty"`
		Redis           *redisFile        `yaml:"redis,omitempty"`
		Audit           *AuditConfig      `yaml:"audit,omitempty"`
	}

	fileCfg := configFile{
		GatewayURL:      cfg.GatewayURL,
		RequestTimeout:  cfg.RequestTimeout.String(),
		BatchDeadline:   cfg.BatchDeadline.String(),
		OutputFormat:    cfg.OutputFormat,
		DefaultClientID: cfg.DefaultClientID,
		ClientMetrics:   cfg.ClientMetrics,
		Debug:           cfg.Debug,
		Audit:           cfg.Audit,
	}
	if cfg.Redis != nil {
		fileCfg.Redis = &redisFile{
			Address:  cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}
		if cfg.Redis.TTL > 0 {
			fileCfg.Redis.TTL = cfg.Redis.TTL.String()
		}
	}

	data, err := yaml.Marshal(&fileCfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	configPath := filepath.Join(configDir, DefaultConfigFile)
	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// EnsureConfigDir creates the configuration directory if it doesn't exist.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0700)
}
