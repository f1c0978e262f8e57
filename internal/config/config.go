// Package config provides configuration management for Aura.
//
// Configuration is loaded from:
// 1. config.yaml file (optional)
// 2. Environment variables (standard names like DATABASE_URL, REDIS_ADDR)
// 3. Default values
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Database drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Fact store write modes.
const (
	// StoreModeAppend closes the previous current row and inserts a new one.
	StoreModeAppend = "append"
	// StoreModeReplace keeps a single row per item and replaces it in place.
	StoreModeReplace = "replace"
)

// Source adapter types.
const (
	SourceWarehouseCSV  = "warehouse_csv"
	SourceWarehouseXLSX = "warehouse_xlsx"
	SourceLogisticsFile = "logistics_file"
	SourceLogisticsHTTP = "logistics_http"
)

// Config is the root configuration structure.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Store    StoreConfig    `mapstructure:"store"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Log      LogConfig      `mapstructure:"log"`
	River    RiverConfig    `mapstructure:"river"`
	Worker   WorkerConfig   `mapstructure:"worker"`
	Resolver ResolverConfig `mapstructure:"resolver"`
	Gate     GateConfig     `mapstructure:"gate"`
	Security SecurityConfig `mapstructure:"security"`
	Sources  []SourceConfig `mapstructure:"sources"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`

	AllowCredentials bool `mapstructure:"allow_credentials"`
	// UnsafeAllowAllOrigins honours "*" in AllowedOrigins. Credentials are
	// then disabled.
	UnsafeAllowAllOrigins bool `mapstructure:"unsafe_allow_all_origins"`
}

// DatabaseConfig selects and configures the event/fact persistence backend.
type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`

	URL string `mapstructure:"url"`

	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"sslmode"`

	// Pool configuration (shared by the fact store and River)
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`

	// SQLitePath is the database file used by the sqlite driver.
	SQLitePath string `mapstructure:"sqlite_path"`

	AutoMigrate bool `mapstructure:"auto_migrate"`
}

// DSN returns the PostgreSQL connection string.
// Priority: DATABASE_URL > constructed from individual fields.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	sslmode := c.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, sslmode,
	)
}

// StoreConfig controls how facts are written.
type StoreConfig struct {
	Mode         string        `mapstructure:"mode"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`

	// HistoryRetention prunes closed fact versions older than this. Zero
	// keeps the full history.
	HistoryRetention time.Duration `mapstructure:"history_retention"`
}

// RedisConfig enables the current-fact cache and the distributed item lock.
// An empty Addr disables both.
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
	LockTTL  time.Duration `mapstructure:"lock_ttl"`
}

// Enabled reports whether a Redis address is configured.
func (c RedisConfig) Enabled() bool {
	return strings.TrimSpace(c.Addr) != ""
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or console
}

// RiverConfig contains River Queue settings.
type RiverConfig struct {
	MaxWorkers                  int           `mapstructure:"max_workers"`
	CompletedJobRetentionPeriod time.Duration `mapstructure:"completed_job_retention_period"`
	ResolveAllInterval          time.Duration `mapstructure:"resolve_all_interval"`
}

// WorkerConfig contains worker pool settings.
type WorkerConfig struct {
	GeneralPoolSize int `mapstructure:"general_pool_size"`
	ResolvePoolSize int `mapstructure:"resolve_pool_size"`
}

// ResolverConfig holds the event-to-fact thresholds.
type ResolverConfig struct {
	LateArrivalThresholdHours float64 `mapstructure:"late_arrival_threshold_hours"`
	ShadowStockGapHours       float64 `mapstructure:"shadow_stock_gap_hours"`
	CriticalStockThreshold    int64   `mapstructure:"critical_stock_threshold"`
	ReorderThreshold          int64   `mapstructure:"reorder_threshold"`
	HighConfidenceThreshold   float64 `mapstructure:"high_confidence_threshold"`
}

// GateConfig holds the safety gate thresholds. MinReliability is also the
// low-confidence cut-off used by the resolver.
type GateConfig struct {
	MinReliability    float64 `mapstructure:"min_reliability"`
	MaxFreshnessHours float64 `mapstructure:"max_freshness_hours"`
}

// SecurityConfig contains agent authentication settings. An empty signing
// key disables JWT checks on the query API.
type SecurityConfig struct {
	JWTSigningKey string `mapstructure:"jwt_signing_key"`
	JWTIssuer     string `mapstructure:"jwt_issuer"`
}

// SourceConfig declares one event source adapter.
type SourceConfig struct {
	Name             string        `mapstructure:"name"`
	Type             string        `mapstructure:"type"`
	Path             string        `mapstructure:"path"`
	Endpoint         string        `mapstructure:"endpoint"`
	ReliabilityScore float64       `mapstructure:"reliability_score"`
	UpdateFrequency  string        `mapstructure:"update_frequency"`
	Timeout          time.Duration `mapstructure:"timeout"`
}

// Load reads configuration from file and environment variables.
// Standard environment variables without prefix (DATABASE_URL, REDIS_ADDR, etc.).
func Load() (*Config, error) {
	return LoadWithFlags(nil)
}

// LoadWithFlags is Load with command-line overrides. Flags named after a
// config key (for example "database.driver") take precedence over env and
// file values; a "config" flag selects an explicit config file.
func LoadWithFlags(flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/aura")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
		if path, err := flags.GetString("config"); err == nil && path != "" {
			v.SetConfigFile(path)
		}
	}

	// Maps nested config: gate.min_reliability → GATE_MIN_RELIABILITY
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
		// Config file is optional, use defaults and env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.applySourceDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// Validate checks for critical configuration errors.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverMemory, DriverPostgres, DriverSQLite:
	default:
		return fmt.Errorf("database.driver must be one of memory, postgres, sqlite; got %q", c.Database.Driver)
	}
	if c.Database.Driver == DriverSQLite && strings.TrimSpace(c.Database.SQLitePath) == "" {
		return fmt.Errorf("database.sqlite_path must not be empty for the sqlite driver")
	}
	switch c.Store.Mode {
	case StoreModeAppend, StoreModeReplace:
	default:
		return fmt.Errorf("store.mode must be append or replace; got %q", c.Store.Mode)
	}
	if c.Store.HistoryRetention < 0 {
		return fmt.Errorf("store.history_retention must not be negative")
	}

	if c.Resolver.LateArrivalThresholdHours < 0 {
		return fmt.Errorf("resolver.late_arrival_threshold_hours must not be negative")
	}
	if c.Resolver.ShadowStockGapHours < 0 {
		return fmt.Errorf("resolver.shadow_stock_gap_hours must not be negative")
	}
	if c.Resolver.CriticalStockThreshold < 0 || c.Resolver.ReorderThreshold < 0 {
		return fmt.Errorf("resolver stock thresholds must not be negative")
	}
	if c.Resolver.CriticalStockThreshold > c.Resolver.ReorderThreshold {
		return fmt.Errorf("resolver.critical_stock_threshold (%d) must not exceed resolver.reorder_threshold (%d)",
			c.Resolver.CriticalStockThreshold, c.Resolver.ReorderThreshold)
	}
	if !inUnitRange(c.Gate.MinReliability) || !inUnitRange(c.Resolver.HighConfidenceThreshold) {
		return fmt.Errorf("reliability thresholds must be within [0,1]")
	}
	if c.Resolver.HighConfidenceThreshold < c.Gate.MinReliability {
		return fmt.Errorf("resolver.high_confidence_threshold must not be below gate.min_reliability")
	}
	if c.Gate.MaxFreshnessHours <= 0 {
		return fmt.Errorf("gate.max_freshness_hours must be positive")
	}

	seen := make(map[string]struct{}, len(c.Sources))
	for i, src := range c.Sources {
		if strings.TrimSpace(src.Name) == "" {
			return fmt.Errorf("sources[%d].name must not be empty", i)
		}
		if _, dup := seen[src.Name]; dup {
			return fmt.Errorf("sources[%d]: duplicate source name %q", i, src.Name)
		}
		seen[src.Name] = struct{}{}
		if !inUnitRange(src.ReliabilityScore) {
			return fmt.Errorf("sources[%d].reliability_score must be within [0,1], got %v", i, src.ReliabilityScore)
		}
		switch src.Type {
		case SourceWarehouseCSV, SourceWarehouseXLSX, SourceLogisticsFile:
			if strings.TrimSpace(src.Path) == "" {
				return fmt.Errorf("sources[%d].path must not be empty for %s", i, src.Type)
			}
		case SourceLogisticsHTTP:
			if strings.TrimSpace(src.Endpoint) == "" {
				return fmt.Errorf("sources[%d].endpoint must not be empty for %s", i, src.Type)
			}
		default:
			return fmt.Errorf("sources[%d].type %q is not supported", i, src.Type)
		}
	}
	return nil
}

// SourceReliability returns the static per-source trust weights keyed by
// source name.
func (c *Config) SourceReliability() map[string]float64 {
	out := make(map[string]float64, len(c.Sources))
	for _, src := range c.Sources {
		out[src.Name] = src.ReliabilityScore
	}
	return out
}

func (c *Config) applySourceDefaults() {
	for i := range c.Sources {
		src := &c.Sources[i]
		if src.Timeout <= 0 {
			src.Timeout = 10 * time.Second
		}
		if src.UpdateFrequency == "" {
			src.UpdateFrequency = "unknown"
		}
	}
}

func inUnitRange(v float64) bool {
	return v >= 0 && v <= 1
}

func setDefaults(v *viper.Viper) {
	// Server
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.allowed_origins", []string{})
	v.SetDefault("server.allow_credentials", false)
	v.SetDefault("server.unsafe_allow_all_origins", false)

	// Database
	v.SetDefault("database.driver", DriverMemory)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "aura")
	v.SetDefault("database.password", "")
	v.SetDefault("database.database", "aura")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "10m")
	v.SetDefault("database.sqlite_path", "aura.db")
	v.SetDefault("database.auto_migrate", false)

	// Fact store
	v.SetDefault("store.mode", StoreModeAppend)
	v.SetDefault("store.write_timeout", "10s")
	v.SetDefault("store.history_retention", "0s")

	// Redis (disabled unless addr is set)
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.cache_ttl", "5m")
	v.SetDefault("redis.lock_ttl", "30s")

	// Log
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// River
	v.SetDefault("river.max_workers", 10)
	v.SetDefault("river.completed_job_retention_period", "24h")
	v.SetDefault("river.resolve_all_interval", "1h")

	// Worker Pool
	v.SetDefault("worker.general_pool_size", 100)
	v.SetDefault("worker.resolve_pool_size", 32)

	// Resolver
	v.SetDefault("resolver.late_arrival_threshold_hours", 12)
	v.SetDefault("resolver.shadow_stock_gap_hours", 6)
	v.SetDefault("resolver.critical_stock_threshold", 30)
	v.SetDefault("resolver.reorder_threshold", 50)
	v.SetDefault("resolver.high_confidence_threshold", 0.85)

	// Safety gate
	v.SetDefault("gate.min_reliability", 0.6)
	v.SetDefault("gate.max_freshness_hours", 24)

	// Security
	v.SetDefault("security.jwt_signing_key", "")
	v.SetDefault("security.jwt_issuer", "aura")
}
