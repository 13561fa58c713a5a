// Package config handles application configuration loading and validation using Viper.
package config

import (
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration.
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Engine       EngineConfig       `mapstructure:"engine"`
	Scheduler    SchedulerConfig    `mapstructure:"scheduler"`
	Achievements AchievementsConfig `mapstructure:"achievements"`
	Metrics      MetricsConfig      `mapstructure:"metrics"`
	Logging      LoggingConfig      `mapstructure:"logging"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Port            int    `mapstructure:"port"`
	Environment     string `mapstructure:"environment"`
	ShutdownTimeout int    `mapstructure:"shutdown_timeout"` // seconds
}

// DatabaseConfig contains database connection settings for the SQL store and Redis.
type DatabaseConfig struct {
	Driver         string         `mapstructure:"driver"` // postgres or sqlite
	MigrateOnStart bool           `mapstructure:"migrate_on_start"`
	Postgres       PostgresConfig `mapstructure:"postgres"`
	SQLite         SQLiteConfig   `mapstructure:"sqlite"`
	Redis          RedisConfig    `mapstructure:"redis"`
}

// PostgresConfig contains PostgreSQL database connection and pool settings.
type PostgresConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Database        string `mapstructure:"database"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	SSLMode         string `mapstructure:"ssl_mode"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
}

// DSN returns the PostgreSQL connection string.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// URL returns the PostgreSQL URL form used by golang-migrate.
func (p PostgresConfig) URL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		p.User, p.Password, p.Host, p.Port, p.Database, p.SSLMode,
	)
}

// SQLiteConfig contains the SQLite database location.
type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

// RedisConfig contains Redis cache connection and pool settings.
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

// Addr returns host:port.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// EngineConfig contains streak engine settings.
type EngineConfig struct {
	Timezone          string      `mapstructure:"timezone"`
	BackfillGraceDays int         `mapstructure:"backfill_grace_days"`
	Lock              LockConfig  `mapstructure:"lock"`
	Retry             RetryConfig `mapstructure:"retry"`
}

// GetLocation returns the engine's reference time zone.
func (c *EngineConfig) GetLocation() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

// LockConfig selects the per-habit lock backend.
type LockConfig struct {
	Backend string `mapstructure:"backend"` // local or redis
	TTL     int    `mapstructure:"ttl"`     // milliseconds
	Wait    int    `mapstructure:"wait"`    // milliseconds, max time spent acquiring
}

// RetryConfig bounds retries of transient store errors.
type RetryConfig struct {
	MaxAttempts     int `mapstructure:"max_attempts"`
	InitialInterval int `mapstructure:"initial_interval"` // milliseconds
	MaxInterval     int `mapstructure:"max_interval"`     // milliseconds
}

// SchedulerConfig contains daily sweep scheduler settings.
type SchedulerConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Time      string `mapstructure:"time"`
	Timezone  string `mapstructure:"timezone"`
	Workers   int    `mapstructure:"workers"`
	BatchSize int    `mapstructure:"batch_size"`
}

// AchievementsConfig contains achievement unlock settings.
type AchievementsConfig struct {
	CacheSize int `mapstructure:"cache_size"`
}

// MetricsConfig contains metrics exporter settings.
type MetricsConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
}

// PrometheusConfig contains Prometheus metrics exporter settings.
type PrometheusConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// LoggingConfig contains application logging settings.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

var clockTime = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]$`)

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.shutdown_timeout", 15)

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.migrate_on_start", false)
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.ssl_mode", "disable")
	v.SetDefault("database.postgres.max_open_conns", 25)
	v.SetDefault("database.postgres.max_idle_conns", 5)
	v.SetDefault("database.postgres.conn_max_lifetime", 300)
	v.SetDefault("database.sqlite.path", "streakd.db")
	v.SetDefault("database.redis.enabled", false)
	v.SetDefault("database.redis.host", "localhost")
	v.SetDefault("database.redis.port", 6379)
	v.SetDefault("database.redis.pool_size", 10)

	v.SetDefault("engine.timezone", "UTC")
	v.SetDefault("engine.backfill_grace_days", 1)
	v.SetDefault("engine.lock.backend", "local")
	v.SetDefault("engine.lock.ttl", 10000)
	v.SetDefault("engine.lock.wait", 5000)
	v.SetDefault("engine.retry.max_attempts", 3)
	v.SetDefault("engine.retry.initial_interval", 50)
	v.SetDefault("engine.retry.max_interval", 1000)

	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.time", "00:05")
	v.SetDefault("scheduler.timezone", "UTC")
	v.SetDefault("scheduler.workers", 8)
	v.SetDefault("scheduler.batch_size", 200)

	v.SetDefault("achievements.cache_size", 4096)

	v.SetDefault("metrics.prometheus.enabled", true)
	v.SetDefault("metrics.prometheus.path", "/metrics")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.max_size_mb", 100)
	v.SetDefault("logging.max_backups", 5)
	v.SetDefault("logging.max_age_days", 28)
}

// Load reads configuration from file and environment variables.
// An explicit path must exist; without one, a missing config file falls back to defaults and env.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	// Set config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/streakd/")
	}

	// Bind specific environment variables (explicit bindings for 12-factor app compliance)
	// Server configuration
	_ = v.BindEnv("server.port", "SERVER_PORT")
	_ = v.BindEnv("server.environment", "SERVER_ENVIRONMENT")
	_ = v.BindEnv("server.shutdown_timeout", "SERVER_SHUTDOWN_TIMEOUT")

	// Database configuration
	_ = v.BindEnv("database.driver", "DATABASE_DRIVER")
	_ = v.BindEnv("database.migrate_on_start", "DATABASE_MIGRATE_ON_START")
	_ = v.BindEnv("database.sqlite.path", "SQLITE_PATH")

	// PostgreSQL configuration
	_ = v.BindEnv("database.postgres.host", "POSTGRES_HOST")
	_ = v.BindEnv("database.postgres.port", "POSTGRES_PORT")
	_ = v.BindEnv("database.postgres.database", "POSTGRES_DB")
	_ = v.BindEnv("database.postgres.user", "POSTGRES_USER")
	_ = v.BindEnv("database.postgres.password", "POSTGRES_PASSWORD")
	_ = v.BindEnv("database.postgres.ssl_mode", "POSTGRES_SSL_MODE")
	_ = v.BindEnv("database.postgres.max_open_conns", "POSTGRES_MAX_OPEN_CONNS")
	_ = v.BindEnv("database.postgres.max_idle_conns", "POSTGRES_MAX_IDLE_CONNS")
	_ = v.BindEnv("database.postgres.conn_max_lifetime", "POSTGRES_CONN_MAX_LIFETIME")

	// Redis configuration
	_ = v.BindEnv("database.redis.enabled", "REDIS_ENABLED")
	_ = v.BindEnv("database.redis.host", "REDIS_HOST")
	_ = v.BindEnv("database.redis.port", "REDIS_PORT")
	_ = v.BindEnv("database.redis.password", "REDIS_PASSWORD")
	_ = v.BindEnv("database.redis.db", "REDIS_DB")
	_ = v.BindEnv("database.redis.pool_size", "REDIS_POOL_SIZE")

	// Engine configuration
	_ = v.BindEnv("engine.timezone", "ENGINE_TIMEZONE")
	_ = v.BindEnv("engine.backfill_grace_days", "ENGINE_BACKFILL_GRACE_DAYS")
	_ = v.BindEnv("engine.lock.backend", "ENGINE_LOCK_BACKEND")
	_ = v.BindEnv("engine.lock.ttl", "ENGINE_LOCK_TTL")
	_ = v.BindEnv("engine.lock.wait", "ENGINE_LOCK_WAIT")
	_ = v.BindEnv("engine.retry.max_attempts", "ENGINE_RETRY_MAX_ATTEMPTS")

	// Logging configuration
	_ = v.BindEnv("logging.level", "LOG_LEVEL")
	_ = v.BindEnv("logging.format", "LOG_FORMAT")
	_ = v.BindEnv("logging.output", "LOG_OUTPUT")

	// Scheduler configuration
	_ = v.BindEnv("scheduler.enabled", "SCHEDULER_ENABLED")
	_ = v.BindEnv("scheduler.time", "SCHEDULER_TIME")
	_ = v.BindEnv("scheduler.timezone", "SCHEDULER_TIMEZONE")
	_ = v.BindEnv("scheduler.workers", "SCHEDULER_WORKERS")
	_ = v.BindEnv("scheduler.batch_size", "SCHEDULER_BATCH_SIZE")

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate required fields
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres":
		if c.Database.Postgres.Host == "" {
			return fmt.Errorf("database.postgres.host is required")
		}
		if c.Database.Postgres.Database == "" {
			return fmt.Errorf("database.postgres.database is required")
		}
		if c.Database.Postgres.User == "" {
			return fmt.Errorf("database.postgres.user is required")
		}
	case "sqlite":
		if c.Database.SQLite.Path == "" {
			return fmt.Errorf("database.sqlite.path is required")
		}
	default:
		return fmt.Errorf("database.driver must be postgres or sqlite, got %q", c.Database.Driver)
	}

	switch c.Engine.Lock.Backend {
	case "local":
	case "redis":
		if !c.Database.Redis.Enabled {
			return fmt.Errorf("engine.lock.backend=redis requires database.redis.enabled")
		}
	default:
		return fmt.Errorf("engine.lock.backend must be local or redis, got %q", c.Engine.Lock.Backend)
	}

	if c.Engine.BackfillGraceDays < 0 {
		return fmt.Errorf("engine.backfill_grace_days must not be negative")
	}
	if _, err := c.Engine.GetLocation(); err != nil {
		return fmt.Errorf("engine.timezone: %w", err)
	}
	if c.Engine.Retry.MaxAttempts < 1 {
		return fmt.Errorf("engine.retry.max_attempts must be at least 1")
	}

	if !clockTime.MatchString(c.Scheduler.Time) {
		return fmt.Errorf("scheduler.time must be HH:MM, got %q", c.Scheduler.Time)
	}
	if _, err := c.Scheduler.GetLocation(); err != nil {
		return fmt.Errorf("scheduler.timezone: %w", err)
	}
	if c.Scheduler.Workers < 1 {
		return fmt.Errorf("scheduler.workers must be at least 1")
	}
	if c.Scheduler.BatchSize < 1 {
		return fmt.Errorf("scheduler.batch_size must be at least 1")
	}

	return nil
}

// GetLocation returns the timezone location.
func (c *SchedulerConfig) GetLocation() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

// LockTTL returns the distributed lock expiry.
func (c *LockConfig) LockTTL() time.Duration {
	return time.Duration(c.TTL) * time.Millisecond
}

// WaitTimeout returns the maximum time spent acquiring a habit lock.
func (c *LockConfig) WaitTimeout() time.Duration {
	return time.Duration(c.Wait) * time.Millisecond
}
