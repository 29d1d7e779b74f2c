package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"
)

const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

type DatabaseConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Name         string `mapstructure:"name"`
	SSLMode      string `mapstructure:"sslmode"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type StorageConfig struct {
	Backend    string `mapstructure:"backend"`
	HistoryKey string `mapstructure:"history_key"`
	AuditKey   string `mapstructure:"audit_key"`
}

type RedisConfig struct {
	URL          string        `mapstructure:"url"`
	MaxRetries   int           `mapstructure:"max_retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
}

type RetentionConfig struct {
	HistoryDays int           `mapstructure:"history_days"`
	AuditDays   int           `mapstructure:"audit_days"`
	Interval    time.Duration `mapstructure:"interval"`
}

type RateLimitConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool   `mapstructure:"prometheus_enabled"`
	MetricsPath       string `mapstructure:"metrics_path"`
}

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Retention  RetentionConfig  `mapstructure:"retention"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
	CORS       CORSConfig       `mapstructure:"cors"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
	JWT        struct {
		Secret string `mapstructure:"secret"`
	} `mapstructure:"jwt"`
	Log struct {
		Level string `mapstructure:"level"`
		JSON  bool   `mapstructure:"json"`
	} `mapstructure:"log"`
	Rules struct {
		File             string `mapstructure:"file"`
		MaxRunningAlerts int    `mapstructure:"max_running_alerts"`
	} `mapstructure:"rules"`
}

// envOverrides are read with the CDS_ prefix, e.g. CDS_REDIS_URL.
type envOverrides struct {
	StorageBackend string   `envconfig:"STORAGE_BACKEND"`
	RedisURL       string   `envconfig:"REDIS_URL"`
	DBHost         string   `envconfig:"DB_HOST"`
	DBPort         int      `envconfig:"DB_PORT"`
	DBUser         string   `envconfig:"DB_USER"`
	DBPassword     string   `envconfig:"DB_PASSWORD"`
	DBName         string   `envconfig:"DB_NAME"`
	JWTSecret      string   `envconfig:"JWT_SECRET"`
	ServerPort     int      `envconfig:"SERVER_PORT"`
	LogLevel       string   `envconfig:"LOG_LEVEL"`
	RulesFile      string   `envconfig:"RULES_FILE"`
	CORSOrigins    []string `envconfig:"CORS_ALLOWED_ORIGINS"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("storage.backend", BackendMemory)
	v.SetDefault("storage.history_key", "cds_alert_history")
	v.SetDefault("storage.audit_key", "cds_audit_log")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.max_retries", 3)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("retention.history_days", 90)
	v.SetDefault("retention.audit_days", 365)
	v.SetDefault("retention.interval", 24*time.Hour)
	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests_per_second", 50.0)
	v.SetDefault("rate_limit.burst", 100)
	v.SetDefault("monitoring.prometheus_enabled", true)
	v.SetDefault("monitoring.metrics_path", "/metrics")
	v.SetDefault("log.level", "info")
	v.SetDefault("rules.max_running_alerts", 10000)
}

// LoadConfig reads path (or config.yaml from the usual locations when path is empty),
// applies defaults and then CDS_* environment overrides. A missing file is not an error.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/app/config")
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	var env envOverrides
	if err := envconfig.Process("CDS", &env); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}
	env.apply(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (e envOverrides) apply(cfg *Config) {
	if e.StorageBackend != "" {
		cfg.Storage.Backend = e.StorageBackend
	}
	if len(e.CORSOrigins) > 0 {
		cfg.CORS.AllowedOrigins = e.CORSOrigins
	}
	if e.RedisURL != "" {
		cfg.Redis.URL = e.RedisURL
	}
	if e.DBHost != "" {
		cfg.Database.Host = e.DBHost
	}
	if e.DBPort != 0 {
		cfg.Database.Port = e.DBPort
	}
	if e.DBUser != "" {
		cfg.Database.User = e.DBUser
	}
	if e.DBPassword != "" {
		cfg.Database.Password = e.DBPassword
	}
	if e.DBName != "" {
		cfg.Database.Name = e.DBName
	}
	if e.JWTSecret != "" {
		cfg.JWT.Secret = e.JWTSecret
	}
	if e.ServerPort != 0 {
		cfg.Server.Port = e.ServerPort
	}
	if e.LogLevel != "" {
		cfg.Log.Level = e.LogLevel
	}
	if e.RulesFile != "" {
		cfg.Rules.File = e.RulesFile
	}
}

func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case BackendMemory, BackendRedis, BackendPostgres:
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	if c.Retention.HistoryDays < 0 || c.Retention.AuditDays < 0 {
		return fmt.Errorf("retention days must not be negative")
	}
	if c.Retention.Interval <= 0 {
		return fmt.Errorf("retention interval must be positive")
	}
	return nil
}
