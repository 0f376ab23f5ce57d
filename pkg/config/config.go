package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/opsgate/gatehouse/pkg/observability"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	Redis         RedisConfig         `yaml:"redis"`
	Audit         AuditConfig         `yaml:"audit"`
	Auth          AuthConfig          `yaml:"auth"`
	Sweeper       SweeperConfig       `yaml:"sweeper"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// Health/metrics server (separate port for k8s probes)
	HealthPort string `yaml:"health_port"`
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	URL          string        `yaml:"url"`
	MaxOpenConns int           `yaml:"max_open_conns"`
	MaxIdleConns int           `yaml:"max_idle_conns"`
	ConnLifetime time.Duration `yaml:"conn_lifetime"`
}

// RedisConfig holds session registry configuration
type RedisConfig struct {
	URL        string        `yaml:"url"`
	Password   string        `yaml:"password"`
	DB         int           `yaml:"db"`
	PoolSize   int           `yaml:"pool_size"`
	SessionTTL time.Duration `yaml:"session_ttl"`
}

// AuditConfig holds audit logging and archival configuration
type AuditConfig struct {
	Enabled bool `yaml:"enabled"`
	// Archive settings; the sweeper moves aged rows to this bucket.
	S3Endpoint     string        `yaml:"s3_endpoint"`
	S3Region       string        `yaml:"s3_region"`
	S3Bucket       string        `yaml:"s3_bucket"`
	S3AccessKey    string        `yaml:"s3_access_key"`
	S3SecretKey    string        `yaml:"s3_secret_key"`
	S3UsePathStyle bool          `yaml:"s3_use_path_style"`
	RetainFor      time.Duration `yaml:"retain_for"`
	ArchiveOnPrune bool          `yaml:"archive_on_prune"`
}

// AuthConfig holds OIDC edge authentication configuration
type AuthConfig struct {
	Enabled      bool   `yaml:"enabled"`
	IssuerURL    string `yaml:"issuer_url"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RedirectURL  string `yaml:"redirect_url"`
}

// SweeperConfig holds maintenance job schedules
type SweeperConfig struct {
	// Cron specs in robfig/cron format.
	OrphanSchedule  string `yaml:"orphan_schedule"`
	ArchiveSchedule string `yaml:"archive_schedule"`
	GaugeSchedule   string `yaml:"gauge_schedule"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel observability.LogLevel `yaml:"-"`
	// LogLevelName is the YAML-facing form of LogLevel.
	LogLevelName string `yaml:"log_level"`

	MetricsEnabled bool `yaml:"metrics_enabled"`

	OTelEnabled        bool   `yaml:"otel_enabled"`
	OTelEndpoint       string `yaml:"otel_endpoint"`
	OTelServiceName    string `yaml:"otel_service_name"`
	OTelServiceVersion string `yaml:"otel_service_version"`
	OTelInsecure       bool   `yaml:"otel_insecure"`
}

// LoadConfig loads configuration from environment variables only.
func LoadConfig() (*Config, error) {
	cfg := defaults()
	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            "8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			HealthPort:      "9090",
		},
		Database: DatabaseConfig{
			MaxOpenConns: 25,
			MaxIdleConns: 5,
			ConnLifetime: 5 * time.Minute,
		},
		Redis: RedisConfig{
			URL:        "redis://localhost:6379",
			SessionTTL: 30 * time.Minute,
		},
		Audit: AuditConfig{
			Enabled:        true,
			RetainFor:      90 * 24 * time.Hour,
			ArchiveOnPrune: true,
		},
		Sweeper: SweeperConfig{
			OrphanSchedule:  "*/10 * * * *",
			ArchiveSchedule: "0 3 * * *",
			GaugeSchedule:   "* * * * *",
		},
		Observability: ObservabilityConfig{
			LogLevel:           observability.InfoLevel,
			LogLevelName:       "info",
			MetricsEnabled:     true,
			OTelEnabled:        false,
			OTelEndpoint:       "localhost:4317",
			OTelServiceName:    "gatehouse",
			OTelServiceVersion: "1.0.0",
			OTelInsecure:       true,
		},
	}
}

func applyEnv(cfg *Config) {
	cfg.Server.Host = getEnv("GATEHOUSE_HOST", cfg.Server.Host)
	cfg.Server.Port = getEnv("GATEHOUSE_PORT", cfg.Server.Port)
	cfg.Server.ReadTimeout = getEnvDuration("GATEHOUSE_READ_TIMEOUT", cfg.Server.ReadTimeout)
	cfg.Server.WriteTimeout = getEnvDuration("GATEHOUSE_WRITE_TIMEOUT", cfg.Server.WriteTimeout)
	cfg.Server.IdleTimeout = getEnvDuration("GATEHOUSE_IDLE_TIMEOUT", cfg.Server.IdleTimeout)
	cfg.Server.ShutdownTimeout = getEnvDuration("GATEHOUSE_SHUTDOWN_TIMEOUT", cfg.Server.ShutdownTimeout)
	cfg.Server.HealthPort = getEnv("GATEHOUSE_HEALTH_PORT", cfg.Server.HealthPort)

	cfg.Database.URL = getEnv("GATEHOUSE_POSTGRES_URL", cfg.Database.URL)
	cfg.Database.MaxOpenConns = getEnvInt("GATEHOUSE_POSTGRES_MAX_CONNS", cfg.Database.MaxOpenConns)
	cfg.Database.MaxIdleConns = getEnvInt("GATEHOUSE_POSTGRES_IDLE_CONNS", cfg.Database.MaxIdleConns)
	cfg.Database.ConnLifetime = getEnvDuration("GATEHOUSE_POSTGRES_CONN_LIFETIME", cfg.Database.ConnLifetime)

	cfg.Redis.URL = getEnv("GATEHOUSE_REDIS_URL", cfg.Redis.URL)
	cfg.Redis.Password = getEnv("GATEHOUSE_REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = getEnvInt("GATEHOUSE_REDIS_DB", cfg.Redis.DB)
	cfg.Redis.PoolSize = getEnvInt("GATEHOUSE_REDIS_POOL_SIZE", cfg.Redis.PoolSize)
	cfg.Redis.SessionTTL = getEnvDuration("GATEHOUSE_SESSION_TTL", cfg.Redis.SessionTTL)

	cfg.Audit.Enabled = getEnvBool("GATEHOUSE_AUDIT_ENABLED", cfg.Audit.Enabled)
	cfg.Audit.S3Endpoint = getEnv("GATEHOUSE_AUDIT_S3_ENDPOINT", cfg.Audit.S3Endpoint)
	cfg.Audit.S3Region = getEnv("GATEHOUSE_AUDIT_S3_REGION", cfg.Audit.S3Region)
	cfg.Audit.S3Bucket = getEnv("GATEHOUSE_AUDIT_S3_BUCKET", cfg.Audit.S3Bucket)
	cfg.Audit.S3AccessKey = getEnv("GATEHOUSE_AUDIT_S3_ACCESS_KEY", cfg.Audit.S3AccessKey)
	cfg.Audit.S3SecretKey = getEnv("GATEHOUSE_AUDIT_S3_SECRET_KEY", cfg.Audit.S3SecretKey)
	cfg.Audit.S3UsePathStyle = getEnvBool("GATEHOUSE_AUDIT_S3_USE_PATH_STYLE", cfg.Audit.S3UsePathStyle)
	cfg.Audit.RetainFor = getEnvDuration("GATEHOUSE_AUDIT_RETAIN_FOR", cfg.Audit.RetainFor)
	cfg.Audit.ArchiveOnPrune = getEnvBool("GATEHOUSE_AUDIT_ARCHIVE_ON_PRUNE", cfg.Audit.ArchiveOnPrune)

	cfg.Auth.Enabled = getEnvBool("GATEHOUSE_AUTH_ENABLED", cfg.Auth.Enabled)
	cfg.Auth.IssuerURL = getEnv("GATEHOUSE_AUTH_ISSUER_URL", cfg.Auth.IssuerURL)
	cfg.Auth.ClientID = getEnv("GATEHOUSE_AUTH_CLIENT_ID", cfg.Auth.ClientID)
	cfg.Auth.ClientSecret = getEnv("GATEHOUSE_AUTH_CLIENT_SECRET", cfg.Auth.ClientSecret)
	cfg.Auth.RedirectURL = getEnv("GATEHOUSE_AUTH_REDIRECT_URL", cfg.Auth.RedirectURL)

	cfg.Sweeper.OrphanSchedule = getEnv("GATEHOUSE_SWEEPER_ORPHAN_SCHEDULE", cfg.Sweeper.OrphanSchedule)
	cfg.Sweeper.ArchiveSchedule = getEnv("GATEHOUSE_SWEEPER_ARCHIVE_SCHEDULE", cfg.Sweeper.ArchiveSchedule)
	cfg.Sweeper.GaugeSchedule = getEnv("GATEHOUSE_SWEEPER_GAUGE_SCHEDULE", cfg.Sweeper.GaugeSchedule)

	cfg.Observability.LogLevelName = getEnv("GATEHOUSE_LOG_LEVEL", cfg.Observability.LogLevelName)
	cfg.Observability.LogLevel = ParseLogLevel(cfg.Observability.LogLevelName)
	cfg.Observability.MetricsEnabled = getEnvBool("GATEHOUSE_METRICS_ENABLED", cfg.Observability.MetricsEnabled)
	cfg.Observability.OTelEnabled = getEnvBool("GATEHOUSE_OTEL_ENABLED", cfg.Observability.OTelEnabled)
	cfg.Observability.OTelEndpoint = getEnv("GATEHOUSE_OTEL_ENDPOINT", cfg.Observability.OTelEndpoint)
	cfg.Observability.OTelServiceName = getEnv("GATEHOUSE_OTEL_SERVICE_NAME", cfg.Observability.OTelServiceName)
	cfg.Observability.OTelServiceVersion = getEnv("GATEHOUSE_OTEL_SERVICE_VERSION", cfg.Observability.OTelServiceVersion)
	cfg.Observability.OTelInsecure = getEnvBool("GATEHOUSE_OTEL_INSECURE", cfg.Observability.OTelInsecure)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	if c.Database.URL == "" {
		return fmt.Errorf("postgres URL is required")
	}

	if c.Audit.Enabled && c.Audit.ArchiveOnPrune && c.Audit.S3Bucket == "" {
		return fmt.Errorf("audit S3 bucket is required when archive on prune is enabled")
	}

	if c.Auth.Enabled {
		if c.Auth.IssuerURL == "" {
			return fmt.Errorf("auth issuer URL is required when auth is enabled")
		}
		if c.Auth.ClientID == "" {
			return fmt.Errorf("auth client ID is required when auth is enabled")
		}
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// ParseLogLevel parses a log level string
func ParseLogLevel(level string) observability.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return observability.DebugLevel
	case "info":
		return observability.InfoLevel
	case "warn", "warning":
		return observability.WarnLevel
	case "error":
		return observability.ErrorLevel
	default:
		return observability.InfoLevel
	}
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
