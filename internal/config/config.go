// ABOUTME: Configuration loading and parsing for realtime-gateway
// ABOUTME: Supports YAML and TOML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Environment variables consulted by the loader.
const (
	EnvConfigPath        = "REALTIME_GATEWAY_CONFIG"
	EnvOrchestratorURL   = "ORCHESTRATOR_URL"
	EnvMediaJobRetention = "MEDIA_JOB_RETENTION"
)

// Replay ledger backends.
const (
	ReplayBackendMemory = "memory"
	ReplayBackendSQLite = "sqlite"
	ReplayBackendRedis  = "redis"
)

// Config represents the complete realtime-gateway configuration
type Config struct {
	Server       ServerConfig       `yaml:"server" toml:"server"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator" toml:"orchestrator"`
	Tasks        TasksConfig        `yaml:"tasks" toml:"tasks"`
	Media        MediaConfig        `yaml:"media" toml:"media"`
	Replay       ReplayConfig       `yaml:"replay" toml:"replay"`
	Database     DatabaseConfig     `yaml:"database" toml:"database"`
	Auth         AuthConfig         `yaml:"auth" toml:"auth"`
	Logging      LoggingConfig      `yaml:"logging" toml:"logging"`
	Metrics      MetricsConfig      `yaml:"metrics" toml:"metrics"`
	RateLimit    RateLimitConfig    `yaml:"rate_limit" toml:"rate_limit"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	GRPCAddr string `yaml:"grpc_addr" toml:"grpc_addr"`
	HTTPAddr string `yaml:"http_addr" toml:"http_addr"`
	// AllowedOrigins are WebSocket origin patterns; empty means same-origin only.
	AllowedOrigins []string `yaml:"allowed_origins" toml:"allowed_origins"`
}

// OrchestratorConfig covers both the gateway's client and the orchestrator service
type OrchestratorConfig struct {
	URL          string        `yaml:"url" toml:"url"`
	Timeout      time.Duration `yaml:"-" toml:"-"`
	MaxRetries   int           `yaml:"max_retries" toml:"max_retries"`
	RetryBackoff time.Duration `yaml:"-" toml:"-"`

	// Service-side settings used by cmd/orchestrator
	ListenAddr   string              `yaml:"listen_addr" toml:"listen_addr"`
	DefaultRoute string              `yaml:"default_route" toml:"default_route"`
	Intents      map[string]string   `yaml:"intents" toml:"intents"`
	Agents       map[string][]string `yaml:"agents" toml:"agents"`

	// Raw string values for unmarshaling
	TimeoutRaw      string `yaml:"timeout" toml:"timeout"`
	RetryBackoffRaw string `yaml:"retry_backoff" toml:"retry_backoff"`
}

// TasksConfig sizes the task registry
type TasksConfig struct {
	CompletedRetention    time.Duration `yaml:"-" toml:"-"`
	MaxEntries            int           `yaml:"max_entries" toml:"max_entries"`
	CompletedRetentionRaw string        `yaml:"completed_retention" toml:"completed_retention"`
}

// MediaConfig sizes the media job queue
type MediaConfig struct {
	Retention    time.Duration `yaml:"-" toml:"-"`
	RetentionRaw string        `yaml:"retention" toml:"retention"`
}

// ReplayConfig selects and sizes the replay ledger
type ReplayConfig struct {
	Backend       string        `yaml:"backend" toml:"backend"`
	TTL           time.Duration `yaml:"-" toml:"-"`
	MaxEntries    int           `yaml:"max_entries" toml:"max_entries"`
	RedisAddr     string        `yaml:"redis_addr" toml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password" toml:"redis_password"`
	RedisDB       int           `yaml:"redis_db" toml:"redis_db"`
	RedisPrefix   string        `yaml:"redis_prefix" toml:"redis_prefix"`
	TTLRaw        string        `yaml:"ttl" toml:"ttl"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// AuthConfig holds authentication configuration. An empty secret disables auth.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret" toml:"jwt_secret"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// MetricsConfig holds metrics endpoint configuration
type MetricsConfig struct {
	Enabled     bool          `yaml:"enabled" toml:"enabled"`
	Path        string        `yaml:"path" toml:"path"`
	Interval    time.Duration `yaml:"-" toml:"-"`
	IntervalRaw string        `yaml:"interval" toml:"interval"`
}

// RateLimitConfig bounds inbound requests per session. Zero disables limiting.
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second" toml:"requests_per_second"`
	Burst             int     `yaml:"burst" toml:"burst"`
}

// Default returns a configuration with every field set to its default,
// durations already parsed.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			GRPCAddr: ":50051",
			HTTPAddr: ":8080",
		},
		Orchestrator: OrchestratorConfig{
			URL:             "http://localhost:8090/orchestrate",
			Timeout:         8 * time.Second,
			MaxRetries:      2,
			RetryBackoff:    250 * time.Millisecond,
			ListenAddr:      ":8090",
			DefaultRoute:    "live-agent",
			TimeoutRaw:      "8s",
			RetryBackoffRaw: "250ms",
		},
		Tasks: TasksConfig{
			CompletedRetention:    10 * time.Minute,
			MaxEntries:            1000,
			CompletedRetentionRaw: "10m",
		},
		Media: MediaConfig{
			Retention:    time.Hour,
			RetentionRaw: "1h",
		},
		Replay: ReplayConfig{
			Backend:     ReplayBackendMemory,
			TTL:         10 * time.Minute,
			MaxEntries:  10000,
			RedisPrefix: "replay:",
			TTLRaw:      "10m",
		},
		Database: DatabaseConfig{
			Path: "./data/gateway.db",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled:     true,
			Path:        "/metrics",
			Interval:    15 * time.Second,
			IntervalRaw: "15s",
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 20,
			Burst:             40,
		},
	}
}

// ResolvePath returns flagValue, or the REALTIME_GATEWAY_CONFIG path, or
// ./config.yaml.
func ResolvePath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if env := os.Getenv(EnvConfigPath); env != "" {
		return env
	}
	return "config.yaml"
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data, strings.EqualFold(filepath.Ext(path), ".toml"))
}

// Parse decodes configuration bytes (TOML when isTOML, otherwise YAML) on top
// of the defaults, applies environment overrides, and validates the result.
func Parse(data []byte, isTOML bool) (*Config, error) {
	expanded := expandEnvVars(string(data))

	cfg := Default()
	if isTOML {
		if _, err := toml.Decode(expanded, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envVarPattern.FindStringSubmatch(match)[1])
	})
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv(EnvOrchestratorURL); v != "" {
		cfg.Orchestrator.URL = v
	}
	if v := os.Getenv(EnvMediaJobRetention); v != "" {
		if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
			v = (time.Duration(ms) * time.Millisecond).String()
		}
		cfg.Media.RetentionRaw = v
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}
	if c.Orchestrator.URL == "" {
		return fmt.Errorf("orchestrator.url is required")
	}
	if c.Orchestrator.MaxRetries < 0 {
		return fmt.Errorf("orchestrator.max_retries must be >= 0, got %d", c.Orchestrator.MaxRetries)
	}

	switch c.Replay.Backend {
	case ReplayBackendMemory:
	case ReplayBackendSQLite:
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required for the sqlite replay backend")
		}
	case ReplayBackendRedis:
		if c.Replay.RedisAddr == "" {
			return fmt.Errorf("replay.redis_addr is required for the redis replay backend")
		}
	default:
		return fmt.Errorf("replay.backend must be one of memory, sqlite, redis; got %q", c.Replay.Backend)
	}

	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	if c.RateLimit.RequestsPerSecond < 0 || c.RateLimit.Burst < 0 {
		return fmt.Errorf("rate_limit values must be >= 0")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"orchestrator.timeout", cfg.Orchestrator.TimeoutRaw, &cfg.Orchestrator.Timeout},
		{"orchestrator.retry_backoff", cfg.Orchestrator.RetryBackoffRaw, &cfg.Orchestrator.RetryBackoff},
		{"tasks.completed_retention", cfg.Tasks.CompletedRetentionRaw, &cfg.Tasks.CompletedRetention},
		{"media.retention", cfg.Media.RetentionRaw, &cfg.Media.Retention},
		{"replay.ttl", cfg.Replay.TTLRaw, &cfg.Replay.TTL},
		{"metrics.interval", cfg.Metrics.IntervalRaw, &cfg.Metrics.Interval},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		if d < 0 {
			return fmt.Errorf("%s must not be negative, got %q", f.name, f.raw)
		}
		*f.dst = d
	}
	return nil
}

// Save writes c to path as TOML when the extension is .toml, YAML otherwise.
// Only raw duration strings are written.
func (c *Config) Save(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("creating config file: %w", err)
	}
	defer func() { _ = f.Close() }()

	if strings.EqualFold(filepath.Ext(path), ".toml") {
		err = toml.NewEncoder(f).Encode(c)
	} else {
		enc := yaml.NewEncoder(f)
		enc.SetIndent(2)
		err = enc.Encode(c)
		if err == nil {
			err = enc.Close()
		}
	}
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return nil
}
