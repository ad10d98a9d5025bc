// Package config loads gateway configuration from an optional YAML file and
// environment variables. Environment variables always win over file values.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultListenAddr       = ":8080"
	defaultQueryTimeout     = 30 * time.Second
	defaultMaxRows          = 1000
	defaultPoolMaxOpen      = 10
	defaultPoolMaxIdle      = 5
	defaultTokenTTL         = 24 * time.Hour
	defaultRateWindow       = time.Minute
	defaultRequestsPerMin   = 60
	defaultAuthRequestsPM   = 10
	defaultBurstPerSecond   = 20
	defaultAuditDir         = "./logs/audit"
	defaultMaxBodyBytes     = 1 << 20
	defaultShutdownGrace    = 10 * time.Second
)

// Config holds every tunable the gateway needs. Constructed once in main and
// passed down explicitly; nothing reads the environment after Load returns.
type Config struct {
	ListenAddr string
	LogLevel   string
	DevMode    bool

	// Backing database for guarded query execution.
	DatabaseDSN  string
	QueryTimeout time.Duration
	MaxRows      int
	PoolMaxOpen  int
	PoolMaxIdle  int

	// Shared state store for revocation and rate windows. Empty means the
	// in-memory single-process backends.
	StateDSN string

	// Token issuance.
	AuthSecret string
	TokenTTL   time.Duration

	// Sliding-window rate limits.
	RateWindow        time.Duration
	RequestsPerWindow int
	AuthReqsPerWindow int
	BurstPerSecond    int

	// Schema registry, user registry, and audit trail locations.
	SchemaPath   string
	UsersPath    string
	AuditDir     string
	MaxBodyBytes int64

	ShutdownGrace time.Duration
}

// fileConfig mirrors Config for YAML decoding. Durations are strings in the
// file ("30s", "24h") and parsed with time.ParseDuration; pointer fields
// distinguish "absent" from zero values.
type fileConfig struct {
	ListenAddr        *string `yaml:"listen_addr"`
	LogLevel          *string `yaml:"log_level"`
	DevMode           *bool   `yaml:"dev_mode"`
	DatabaseDSN       *string `yaml:"database_dsn"`
	QueryTimeout      *string `yaml:"query_timeout"`
	MaxRows           *int    `yaml:"max_rows"`
	PoolMaxOpen       *int    `yaml:"pool_max_open"`
	PoolMaxIdle       *int    `yaml:"pool_max_idle"`
	StateDSN          *string `yaml:"state_dsn"`
	AuthSecret        *string `yaml:"auth_secret"`
	TokenTTL          *string `yaml:"token_ttl"`
	RateWindow        *string `yaml:"rate_window"`
	RequestsPerWindow *int    `yaml:"requests_per_window"`
	AuthReqsPerWindow *int    `yaml:"auth_requests_per_window"`
	BurstPerSecond    *int    `yaml:"burst_per_second"`
	SchemaPath        *string `yaml:"schema_path"`
	UsersPath         *string `yaml:"users_path"`
	AuditDir          *string `yaml:"audit_dir"`
	MaxBodyBytes      *int64  `yaml:"max_body_bytes"`
	ShutdownGrace     *string `yaml:"shutdown_grace"`
}

// Load reads MOATGATE_CONFIG (if set) and then applies environment overrides.
func Load() (Config, error) {
	cfg := defaults()

	if path := os.Getenv("MOATGATE_CONFIG"); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		var fc fileConfig
		if err := yaml.Unmarshal(raw, &fc); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
		if err := fc.apply(&cfg); err != nil {
			return Config{}, err
		}
	}

	cfg.ListenAddr = envOrDefault("MOATGATE_LISTEN_ADDR", cfg.ListenAddr)
	cfg.LogLevel = strings.ToLower(envOrDefault("MOATGATE_LOG_LEVEL", cfg.LogLevel))
	cfg.DevMode = envBool("MOATGATE_DEV_MODE", cfg.DevMode)
	cfg.DatabaseDSN = envOrDefault("MOATGATE_DB_DSN", cfg.DatabaseDSN)
	cfg.QueryTimeout = envDuration("MOATGATE_DB_TIMEOUT", cfg.QueryTimeout)
	cfg.MaxRows = envPositiveInt("MOATGATE_DB_MAX_ROWS", cfg.MaxRows)
	cfg.PoolMaxOpen = envPositiveInt("MOATGATE_DB_POOL_MAX_OPEN", cfg.PoolMaxOpen)
	cfg.PoolMaxIdle = envPositiveInt("MOATGATE_DB_POOL_MAX_IDLE", cfg.PoolMaxIdle)
	cfg.StateDSN = envOrDefault("MOATGATE_STATE_DSN", cfg.StateDSN)
	cfg.AuthSecret = envOrDefault("MOATGATE_AUTH_SECRET", cfg.AuthSecret)
	cfg.TokenTTL = envDuration("MOATGATE_TOKEN_TTL", cfg.TokenTTL)
	cfg.RateWindow = envDuration("MOATGATE_RATE_WINDOW", cfg.RateWindow)
	cfg.RequestsPerWindow = envPositiveInt("MOATGATE_REQUESTS_PER_WINDOW", cfg.RequestsPerWindow)
	cfg.AuthReqsPerWindow = envPositiveInt("MOATGATE_AUTH_REQUESTS_PER_WINDOW", cfg.AuthReqsPerWindow)
	cfg.BurstPerSecond = envPositiveInt("MOATGATE_BURST_PER_SECOND", cfg.BurstPerSecond)
	cfg.SchemaPath = envOrDefault("MOATGATE_SCHEMA_PATH", cfg.SchemaPath)
	cfg.UsersPath = envOrDefault("MOATGATE_USERS_PATH", cfg.UsersPath)
	cfg.AuditDir = envOrDefault("MOATGATE_AUDIT_DIR", cfg.AuditDir)
	cfg.MaxBodyBytes = envPositiveInt64("MOATGATE_MAX_BODY_BYTES", cfg.MaxBodyBytes)
	cfg.ShutdownGrace = envDuration("MOATGATE_SHUTDOWN_GRACE", cfg.ShutdownGrace)

	if strings.TrimSpace(cfg.AuthSecret) == "" {
		return Config{}, fmt.Errorf("MOATGATE_AUTH_SECRET is required")
	}
	if cfg.PoolMaxIdle > cfg.PoolMaxOpen {
		cfg.PoolMaxIdle = cfg.PoolMaxOpen
	}
	if cfg.AuthReqsPerWindow > cfg.RequestsPerWindow {
		cfg.AuthReqsPerWindow = cfg.RequestsPerWindow
	}
	return cfg, nil
}

func (fc *fileConfig) apply(cfg *Config) error {
	setString := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	setInt := func(dst *int, src *int) {
		if src != nil && *src > 0 {
			*dst = *src
		}
	}
	setDuration := func(name string, dst *time.Duration, src *string) error {
		if src == nil {
			return nil
		}
		parsed, err := time.ParseDuration(*src)
		if err != nil || parsed <= 0 {
			return fmt.Errorf("config field %s: invalid duration %q", name, *src)
		}
		*dst = parsed
		return nil
	}

	setString(&cfg.ListenAddr, fc.ListenAddr)
	setString(&cfg.LogLevel, fc.LogLevel)
	if fc.DevMode != nil {
		cfg.DevMode = *fc.DevMode
	}
	setString(&cfg.DatabaseDSN, fc.DatabaseDSN)
	if err := setDuration("query_timeout", &cfg.QueryTimeout, fc.QueryTimeout); err != nil {
		return err
	}
	setInt(&cfg.MaxRows, fc.MaxRows)
	setInt(&cfg.PoolMaxOpen, fc.PoolMaxOpen)
	setInt(&cfg.PoolMaxIdle, fc.PoolMaxIdle)
	setString(&cfg.StateDSN, fc.StateDSN)
	setString(&cfg.AuthSecret, fc.AuthSecret)
	if err := setDuration("token_ttl", &cfg.TokenTTL, fc.TokenTTL); err != nil {
		return err
	}
	if err := setDuration("rate_window", &cfg.RateWindow, fc.RateWindow); err != nil {
		return err
	}
	setInt(&cfg.RequestsPerWindow, fc.RequestsPerWindow)
	setInt(&cfg.AuthReqsPerWindow, fc.AuthReqsPerWindow)
	setInt(&cfg.BurstPerSecond, fc.BurstPerSecond)
	setString(&cfg.SchemaPath, fc.SchemaPath)
	setString(&cfg.UsersPath, fc.UsersPath)
	setString(&cfg.AuditDir, fc.AuditDir)
	if fc.MaxBodyBytes != nil && *fc.MaxBodyBytes > 0 {
		cfg.MaxBodyBytes = *fc.MaxBodyBytes
	}
	return setDuration("shutdown_grace", &cfg.ShutdownGrace, fc.ShutdownGrace)
}

func defaults() Config {
	return Config{
		ListenAddr:        defaultListenAddr,
		LogLevel:          "info",
		QueryTimeout:      defaultQueryTimeout,
		MaxRows:           defaultMaxRows,
		PoolMaxOpen:       defaultPoolMaxOpen,
		PoolMaxIdle:       defaultPoolMaxIdle,
		TokenTTL:          defaultTokenTTL,
		RateWindow:        defaultRateWindow,
		RequestsPerWindow: defaultRequestsPerMin,
		AuthReqsPerWindow: defaultAuthRequestsPM,
		BurstPerSecond:    defaultBurstPerSecond,
		AuditDir:          defaultAuditDir,
		MaxBodyBytes:      defaultMaxBodyBytes,
		ShutdownGrace:     defaultShutdownGrace,
	}
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return parsed
}

func envPositiveInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(v)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func envPositiveInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseInt(v, 10, 64)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(v)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}
