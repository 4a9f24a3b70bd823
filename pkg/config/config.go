package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Storage backends
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendMongo    = "mongo"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Storage       StorageConfig       `yaml:"storage"`
	Cache         CacheConfig         `yaml:"cache"`
	Audit         AuditConfig         `yaml:"audit"`
	Auth          AuthConfig          `yaml:"auth"`
	RateLimit     RateLimitConfig     `yaml:"rate_limit"`
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
	MaxBodyBytes    int64         `yaml:"max_body_bytes"`

	// Health/metrics server (separate port for k8s probes)
	HealthPort string `yaml:"health_port"`
}

// StorageConfig selects and configures the audit event store
type StorageConfig struct {
	Backend string `yaml:"backend"`

	PostgresURL         string        `yaml:"postgres_url"`
	PostgresReplicaURLs []string      `yaml:"postgres_replica_urls"`
	PostgresMaxConns    int           `yaml:"postgres_max_conns"`
	PostgresMinConns    int           `yaml:"postgres_min_conns"`
	PostgresTimeout     time.Duration `yaml:"postgres_timeout"`

	MongoURI        string        `yaml:"mongo_uri"`
	MongoDatabase   string        `yaml:"mongo_database"`
	MongoCollection string        `yaml:"mongo_collection"`
	MongoTimeout    time.Duration `yaml:"mongo_timeout"`
}

// CacheConfig configures the audit count cache
type CacheConfig struct {
	Enabled       bool          `yaml:"enabled"`
	RedisURL      string        `yaml:"redis_url"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
	TTL           time.Duration `yaml:"ttl"`
	L1Size        int           `yaml:"l1_size"`
}

// AuditConfig tunes the recorder and the query composer
type AuditConfig struct {
	WriteTimeout         time.Duration `yaml:"write_timeout"`
	TrustIdentityHeaders bool          `yaml:"trust_identity_headers"`
	Timezone             string        `yaml:"timezone"`
}

// Location resolves Timezone, falling back to the process local zone
func (a AuditConfig) Location() (*time.Location, error) {
	if a.Timezone == "" || strings.EqualFold(a.Timezone, "local") {
		return time.Local, nil
	}
	return time.LoadLocation(a.Timezone)
}

// AuthConfig configures bearer-token verification. With an empty secret,
// tokens are not checked and identity comes only from trusted headers.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
	Required  bool   `yaml:"required"`
}

// RateLimitConfig limits the audit query route. Redis is used for shared
// counters when a Redis URL is configured.
type RateLimitConfig struct {
	Enabled           bool          `yaml:"enabled"`
	RequestsPerWindow int           `yaml:"requests_per_window"`
	Window            time.Duration `yaml:"window"`
	Burst             int           `yaml:"burst"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	MetricsEnabled bool `yaml:"metrics_enabled"`

	// Cron spec for refreshing the audit entry gauge
	GaugeSchedule string `yaml:"gauge_schedule"`

	OTelEnabled        bool          `yaml:"otel_enabled"`
	OTelEndpoint       string        `yaml:"otel_endpoint"`
	OTelServiceName    string        `yaml:"otel_service_name"`
	OTelServiceVersion string        `yaml:"otel_service_version"`
	OTelInsecure       bool          `yaml:"otel_insecure"`
	OTelExportInterval time.Duration `yaml:"otel_export_interval"`

	// Fraction of root traces sampled, 0 < r <= 1
	OTelSampleRatio float64 `yaml:"otel_sample_ratio"`
}

// Default returns the configuration used before any overlay is applied
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            "8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			MaxBodyBytes:    1 << 20,
			HealthPort:      "9090",
		},
		Storage: StorageConfig{
			Backend:          BackendMemory,
			PostgresMaxConns: 20,
			PostgresMinConns: 2,
			PostgresTimeout:  5 * time.Second,
			MongoDatabase:    "medtrail",
			MongoCollection:  "audit_logs",
			MongoTimeout:     5 * time.Second,
		},
		Cache: CacheConfig{
			TTL:    30 * time.Second,
			L1Size: 1024,
		},
		Audit: AuditConfig{
			WriteTimeout: 5 * time.Second,
			Timezone:     "Local",
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerWindow: 120,
			Window:            time.Minute,
			Burst:             20,
		},
		Observability: ObservabilityConfig{
			LogLevel:           "info",
			LogFormat:          "json",
			MetricsEnabled:     true,
			GaugeSchedule:      "@every 1m",
			OTelEndpoint:       "localhost:4317",
			OTelServiceName:    "medtrail",
			OTelServiceVersion: "1.0.0",
			OTelInsecure:       true,
			OTelSampleRatio:    1,
			OTelExportInterval: 10 * time.Second,
		},
	}
}

// LoadConfig builds the configuration from defaults, an optional YAML file
// (MEDTRAIL_CONFIG_FILE), an optional .env file (MEDTRAIL_ENV_FILE, default
// ".env") and MEDTRAIL_* environment variables, in that order.
func LoadConfig() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("MEDTRAIL_CONFIG_FILE"); path != "" {
		if err := cfg.loadYAML(path); err != nil {
			return nil, err
		}
	}

	// godotenv never overrides variables already present in the environment
	envFile := getEnv("MEDTRAIL_ENV_FILE", ".env")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load env file %s: %w", envFile, err)
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	s := &c.Server
	s.Host = getEnv("MEDTRAIL_HOST", s.Host)
	s.Port = getEnv("MEDTRAIL_PORT", s.Port)
	s.ReadTimeout = getEnvDuration("MEDTRAIL_READ_TIMEOUT", s.ReadTimeout)
	s.WriteTimeout = getEnvDuration("MEDTRAIL_WRITE_TIMEOUT", s.WriteTimeout)
	s.IdleTimeout = getEnvDuration("MEDTRAIL_IDLE_TIMEOUT", s.IdleTimeout)
	s.ShutdownTimeout = getEnvDuration("MEDTRAIL_SHUTDOWN_TIMEOUT", s.ShutdownTimeout)
	s.MaxBodyBytes = getEnvInt64("MEDTRAIL_MAX_BODY_BYTES", s.MaxBodyBytes)
	s.HealthPort = getEnv("MEDTRAIL_HEALTH_PORT", s.HealthPort)

	st := &c.Storage
	st.Backend = strings.ToLower(getEnv("MEDTRAIL_STORAGE_BACKEND", st.Backend))
	st.PostgresURL = getEnv("MEDTRAIL_POSTGRES_URL", st.PostgresURL)
	if replicas := os.Getenv("MEDTRAIL_POSTGRES_REPLICA_URLS"); replicas != "" {
		st.PostgresReplicaURLs = splitList(replicas)
	}
	st.PostgresMaxConns = getEnvInt("MEDTRAIL_POSTGRES_MAX_CONNS", st.PostgresMaxConns)
	st.PostgresMinConns = getEnvInt("MEDTRAIL_POSTGRES_MIN_CONNS", st.PostgresMinConns)
	st.PostgresTimeout = getEnvDuration("MEDTRAIL_POSTGRES_TIMEOUT", st.PostgresTimeout)
	st.MongoURI = getEnv("MEDTRAIL_MONGO_URI", st.MongoURI)
	st.MongoDatabase = getEnv("MEDTRAIL_MONGO_DATABASE", st.MongoDatabase)
	st.MongoCollection = getEnv("MEDTRAIL_MONGO_COLLECTION", st.MongoCollection)
	st.MongoTimeout = getEnvDuration("MEDTRAIL_MONGO_TIMEOUT", st.MongoTimeout)

	ca := &c.Cache
	ca.Enabled = getEnvBool("MEDTRAIL_CACHE_ENABLED", ca.Enabled)
	ca.RedisURL = getEnv("MEDTRAIL_REDIS_URL", ca.RedisURL)
	ca.RedisPassword = getEnv("MEDTRAIL_REDIS_PASSWORD", ca.RedisPassword)
	ca.RedisDB = getEnvInt("MEDTRAIL_REDIS_DB", ca.RedisDB)
	ca.TTL = getEnvDuration("MEDTRAIL_CACHE_TTL", ca.TTL)
	ca.L1Size = getEnvInt("MEDTRAIL_L1_CACHE_SIZE", ca.L1Size)

	a := &c.Audit
	a.WriteTimeout = getEnvDuration("MEDTRAIL_AUDIT_WRITE_TIMEOUT", a.WriteTimeout)
	a.TrustIdentityHeaders = getEnvBool("MEDTRAIL_TRUST_IDENTITY_HEADERS", a.TrustIdentityHeaders)
	a.Timezone = getEnv("MEDTRAIL_TIMEZONE", a.Timezone)

	c.Auth.JWTSecret = getEnv("MEDTRAIL_JWT_SECRET", c.Auth.JWTSecret)
	c.Auth.Required = getEnvBool("MEDTRAIL_AUTH_REQUIRED", c.Auth.Required)

	rl := &c.RateLimit
	rl.Enabled = getEnvBool("MEDTRAIL_RATE_LIMIT_ENABLED", rl.Enabled)
	rl.RequestsPerWindow = getEnvInt("MEDTRAIL_RATE_LIMIT_REQUESTS", rl.RequestsPerWindow)
	rl.Window = getEnvDuration("MEDTRAIL_RATE_LIMIT_WINDOW", rl.Window)
	rl.Burst = getEnvInt("MEDTRAIL_RATE_LIMIT_BURST", rl.Burst)

	o := &c.Observability
	o.LogLevel = getEnv("MEDTRAIL_LOG_LEVEL", o.LogLevel)
	o.LogFormat = getEnv("MEDTRAIL_LOG_FORMAT", o.LogFormat)
	o.MetricsEnabled = getEnvBool("MEDTRAIL_METRICS_ENABLED", o.MetricsEnabled)
	o.GaugeSchedule = getEnv("MEDTRAIL_GAUGE_SCHEDULE", o.GaugeSchedule)
	o.OTelEnabled = getEnvBool("MEDTRAIL_OTEL_ENABLED", o.OTelEnabled)
	o.OTelEndpoint = getEnv("MEDTRAIL_OTEL_ENDPOINT", o.OTelEndpoint)
	o.OTelServiceName = getEnv("MEDTRAIL_OTEL_SERVICE_NAME", o.OTelServiceName)
	o.OTelServiceVersion = getEnv("MEDTRAIL_OTEL_SERVICE_VERSION", o.OTelServiceVersion)
	o.OTelInsecure = getEnvBool("MEDTRAIL_OTEL_INSECURE", o.OTelInsecure)
	o.OTelSampleRatio = getEnvFloat("MEDTRAIL_OTEL_SAMPLE_RATIO", o.OTelSampleRatio)
	o.OTelExportInterval = getEnvDuration("MEDTRAIL_OTEL_EXPORT_INTERVAL", o.OTelExportInterval)
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

	switch c.Storage.Backend {
	case BackendMemory:
	case BackendPostgres:
		if c.Storage.PostgresURL == "" {
			return fmt.Errorf("postgres URL is required for postgres storage")
		}
	case BackendMongo:
		if c.Storage.MongoURI == "" {
			return fmt.Errorf("mongo URI is required for mongo storage")
		}
		if c.Storage.MongoDatabase == "" || c.Storage.MongoCollection == "" {
			return fmt.Errorf("mongo database and collection are required for mongo storage")
		}
	default:
		return fmt.Errorf("invalid storage backend: %s (must be memory, postgres, or mongo)", c.Storage.Backend)
	}

	if c.Cache.Enabled && c.Cache.L1Size <= 0 && c.Cache.RedisURL == "" {
		return fmt.Errorf("cache enabled but neither an L1 size nor a Redis URL is configured")
	}

	if c.Audit.WriteTimeout <= 0 {
		return fmt.Errorf("audit write timeout must be positive")
	}
	if _, err := c.Audit.Location(); err != nil {
		return fmt.Errorf("invalid audit timezone %q: %w", c.Audit.Timezone, err)
	}

	if c.Auth.Required && c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT secret is required when auth is required")
	}

	if c.RateLimit.Enabled && (c.RateLimit.RequestsPerWindow <= 0 || c.RateLimit.Window <= 0) {
		return fmt.Errorf("rate limit requires positive requests per window and window")
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
		if r := c.Observability.OTelSampleRatio; r <= 0 || r > 1 {
			return fmt.Errorf("OpenTelemetry sample ratio must be in (0, 1], got %v", r)
		}
	}

	return nil
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

// getEnvInt64 returns an int64 environment variable or a default
func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvFloat returns a float64 environment variable or a default
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
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

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
