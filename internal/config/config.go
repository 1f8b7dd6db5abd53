package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Auth      AuthConfig      `yaml:"auth"`
	Logging   LoggingConfig   `yaml:"logging"`
	Tasks     TasksConfig     `yaml:"tasks"`
	Analysis  AnalysisConfig  `yaml:"analysis"`
	Providers ProvidersConfig `yaml:"providers"`
	Audit     AuditConfig     `yaml:"audit"`
}

type ServerConfig struct {
	HTTP ServerHTTPConfig `yaml:"http"`
}

type ServerHTTPConfig struct {
	Addr string `yaml:"addr"`

	ReadTimeout    string `yaml:"read_timeout"`
	WriteTimeout   string `yaml:"write_timeout"`
	MaxRequestSize string `yaml:"max_request_size"`
}

type AuthConfig struct {
	Type   string           `yaml:"type"` // none|api_key
	APIKey AuthAPIKeyConfig `yaml:"api_key"`
}

type AuthAPIKeyConfig struct {
	KeysFile   string `yaml:"keys_file"`
	HeaderName string `yaml:"header_name"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

type TasksConfig struct {
	// MaxTasks caps live registry entries; submissions beyond it fail.
	MaxTasks int `yaml:"max_tasks"`

	// Retention is how long terminal tasks stay readable before the
	// reaper removes them. Duration string, e.g. "1h".
	Retention       string `yaml:"retention"`
	CleanupInterval string `yaml:"cleanup_interval"`
}

type AnalysisConfig struct {
	// PacingInterval is the minimum spacing between provider lookups
	// across all running tasks.
	PacingInterval string `yaml:"pacing_interval"`
	RequestTimeout string `yaml:"request_timeout"`
	DNSTimeout     string `yaml:"dns_timeout"`
}

type ProvidersConfig struct {
	Geo   GeoProviderConfig   `yaml:"geo"`
	Abuse AbuseProviderConfig `yaml:"abuse"`
}

type GeoProviderConfig struct {
	BaseURL string `yaml:"base_url"`
}

type AbuseProviderConfig struct {
	BaseURL string `yaml:"base_url"`
	// APIKey is the server-wide default; per-task keys supplied at
	// submission take precedence.
	APIKey string `yaml:"api_key"`
}

type AuditConfig struct {
	Enabled bool `yaml:"enabled"`

	Storage AuditStorageConfig `yaml:"storage"`
	JSONL   AuditJSONLConfig   `yaml:"jsonl"`
	Webhook AuditWebhookConfig `yaml:"webhook"`
}

type AuditStorageConfig struct {
	SQLitePath string `yaml:"sqlite_path"`
}

type AuditJSONLConfig struct {
	Path       string `yaml:"path"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

type AuditWebhookConfig struct {
	URL           string            `yaml:"url"`
	BatchSize     int               `yaml:"batch_size"`
	FlushInterval string            `yaml:"flush_interval"`
	Timeout       string            `yaml:"timeout"`
	Headers       map[string]string `yaml:"headers"`
}

func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)
	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFromBytes loads configuration from bytes without applying environment
// overrides. This is intended for testing where env vars should not interfere.
func LoadFromBytes(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	applyDefaults(&cfg)
	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration used when no config file is given.
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)
	return &cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Server.HTTP.Addr == "" {
		cfg.Server.HTTP.Addr = "127.0.0.1:8080"
	}
	if cfg.Server.HTTP.ReadTimeout == "" {
		cfg.Server.HTTP.ReadTimeout = "30s"
	}
	if cfg.Server.HTTP.WriteTimeout == "" {
		cfg.Server.HTTP.WriteTimeout = "5m"
	}
	if cfg.Server.HTTP.MaxRequestSize == "" {
		cfg.Server.HTTP.MaxRequestSize = "1MB"
	}
	if cfg.Auth.Type == "" {
		cfg.Auth.Type = "none"
	}
	if cfg.Auth.APIKey.HeaderName == "" {
		cfg.Auth.APIKey.HeaderName = "X-API-Key"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Tasks.MaxTasks <= 0 {
		cfg.Tasks.MaxTasks = 1000
	}
	if cfg.Tasks.Retention == "" {
		cfg.Tasks.Retention = "24h"
	}
	if cfg.Tasks.CleanupInterval == "" {
		cfg.Tasks.CleanupInterval = "1m"
	}
	if cfg.Analysis.PacingInterval == "" {
		cfg.Analysis.PacingInterval = "1s"
	}
	if cfg.Analysis.RequestTimeout == "" {
		cfg.Analysis.RequestTimeout = "5s"
	}
	if cfg.Analysis.DNSTimeout == "" {
		cfg.Analysis.DNSTimeout = "3s"
	}
	if cfg.Providers.Geo.BaseURL == "" {
		cfg.Providers.Geo.BaseURL = "https://ipinfo.io"
	}
	if cfg.Providers.Abuse.BaseURL == "" {
		cfg.Providers.Abuse.BaseURL = "https://api.abuseipdb.com/api/v2"
	}
	if cfg.Audit.Storage.SQLitePath == "" {
		cfg.Audit.Storage.SQLitePath = "/var/lib/ipscope/events.db"
	}
	if cfg.Audit.JSONL.MaxSizeMB == 0 {
		cfg.Audit.JSONL.MaxSizeMB = 100
	}
	if cfg.Audit.JSONL.MaxBackups == 0 {
		cfg.Audit.JSONL.MaxBackups = 3
	}
	if cfg.Audit.Webhook.BatchSize == 0 {
		cfg.Audit.Webhook.BatchSize = 100
	}
	if cfg.Audit.Webhook.FlushInterval == "" {
		cfg.Audit.Webhook.FlushInterval = "10s"
	}
	if cfg.Audit.Webhook.Timeout == "" {
		cfg.Audit.Webhook.Timeout = "5s"
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("IPSCOPE_HTTP_ADDR"); v != "" {
		cfg.Server.HTTP.Addr = v
	}
	if v := os.Getenv("IPSCOPE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("IPSCOPE_ABUSEIPDB_KEY"); v != "" {
		cfg.Providers.Abuse.APIKey = v
	}
	if v := os.Getenv("IPSCOPE_DATA_DIR"); v != "" {
		cfg.Audit.Storage.SQLitePath = filepath.Join(v, "events.db")
		if cfg.Audit.JSONL.Path != "" {
			cfg.Audit.JSONL.Path = filepath.Join(v, filepath.Base(cfg.Audit.JSONL.Path))
		}
	}
}

func validateConfig(cfg *Config) error {
	switch cfg.Auth.Type {
	case "none", "api_key":
	default:
		return fmt.Errorf("invalid auth.type %q", cfg.Auth.Type)
	}
	switch cfg.Logging.Format {
	case "", "json", "text":
	default:
		return fmt.Errorf("invalid logging.format %q", cfg.Logging.Format)
	}
	for _, d := range []struct {
		name  string
		value string
	}{
		{"tasks.retention", cfg.Tasks.Retention},
		{"tasks.cleanup_interval", cfg.Tasks.CleanupInterval},
		{"analysis.pacing_interval", cfg.Analysis.PacingInterval},
		{"analysis.request_timeout", cfg.Analysis.RequestTimeout},
		{"analysis.dns_timeout", cfg.Analysis.DNSTimeout},
	} {
		if _, err := time.ParseDuration(d.value); err != nil {
			return fmt.Errorf("invalid %s %q", d.name, d.value)
		}
	}
	if _, err := ParseByteSize(cfg.Server.HTTP.MaxRequestSize); err != nil {
		return fmt.Errorf("invalid server.http.max_request_size %q", cfg.Server.HTTP.MaxRequestSize)
	}
	return nil
}

// Duration parses a duration config value, returning fallback when the
// value is empty or malformed. Defaults are validated at load time, so
// malformed values only appear for zero-value Config structs in tests.
func Duration(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}
