package config

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/danharap/TaskManager-Backend/pkg/auth"
	"github.com/danharap/TaskManager-Backend/pkg/observability"
	"github.com/danharap/TaskManager-Backend/pkg/storage"
	"github.com/danharap/TaskManager-Backend/pkg/storage/sqlstore"
)

// EnvPrefix is prepended to every environment variable, e.g. TASKMANAGER_JWT_SECRET
const EnvPrefix = "TASKMANAGER"

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Storage       storage.Config
	Auth          AuthConfig
	RateLimit     RateLimitConfig
	Audit         AuditConfig
	Observability ObservabilityConfig

	// MigrateOnly applies schema migrations and exits
	MigrateOnly bool
	// ConfigFile is the file viper read, empty when none was used
	ConfigFile string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	HealthPort      string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	CORSOrigins     []string
	MaxBodyBytes    int64
}

// Addr is the listen address of the API server
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, s.Port)
}

// HealthAddr is the listen address of the health/metrics server
func (s ServerConfig) HealthAddr() string {
	return net.JoinHostPort(s.Host, s.HealthPort)
}

// AuthConfig holds token and password settings
type AuthConfig struct {
	JWTSecret      string
	TokenTTL       time.Duration
	PasswordScheme auth.Scheme
	// MaxConcurrentHashes bounds in-flight password hashes; 0 means one per CPU
	MaxConcurrentHashes int
}

// RateLimitConfig holds login and registration throttling settings
type RateLimitConfig struct {
	LoginPerMinute    int
	RegisterPerMinute int
	TrustProxyHeaders bool
}

// AuditConfig selects the audit trail sinks. Events always reach the
// application log when Enabled; Dir adds a rotated JSON-lines file.
type AuditConfig struct {
	Enabled   bool
	Dir       string
	MaxSizeMB int
	MaxFiles  int
}

// ObservabilityConfig holds observability configuration
type ObservabilityConfig struct {
	LogLevel       observability.LogLevel
	MetricsEnabled bool

	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool
	OTelSampleRatio    float64
}

// OTel converts the settings into the form InitOTel expects
func (o ObservabilityConfig) OTel() observability.OTelConfig {
	return observability.OTelConfig{
		Enabled:        o.OTelEnabled,
		Endpoint:       o.OTelEndpoint,
		ServiceName:    o.OTelServiceName,
		ServiceVersion: o.OTelServiceVersion,
		Insecure:       o.OTelInsecure,
		SampleRatio:    o.OTelSampleRatio,
	}
}

func setDefaults(v *viper.Viper) {
	store := storage.DefaultConfig()

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.health_port", "9090")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.idle_timeout", 120*time.Second)
	v.SetDefault("server.shutdown_timeout", observability.DefaultShutdownTimeout)
	v.SetDefault("server.cors_origins", "*")
	v.SetDefault("server.max_body_bytes", int64(1<<20))

	v.SetDefault("database.driver", store.Driver)
	v.SetDefault("database.url", store.URL)
	v.SetDefault("database.max_conns", store.MaxConns)
	v.SetDefault("database.min_conns", store.MinConns)
	v.SetDefault("database.timeout", store.Timeout)
	v.SetDefault("database.max_lifetime", store.MaxLifetime)
	v.SetDefault("database.max_idle_time", store.MaxIdleTime)

	v.SetDefault("redis.url", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", store.RedisDB)
	v.SetDefault("redis.max_retries", store.RedisMaxRetries)
	v.SetDefault("redis.pool_size", store.RedisPoolSize)

	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.ttl", auth.DefaultTokenTTL)
	v.SetDefault("password.scheme", string(auth.SchemeArgon2id))
	v.SetDefault("password.max_concurrent", 0)

	v.SetDefault("ratelimit.login_per_minute", 10)
	v.SetDefault("ratelimit.register_per_minute", 5)
	v.SetDefault("ratelimit.trust_proxy_headers", false)

	v.SetDefault("audit.enabled", true)
	v.SetDefault("audit.dir", "")
	v.SetDefault("audit.max_size_mb", 100)
	v.SetDefault("audit.max_files", 10)

	v.SetDefault("log.level", "info")
	v.SetDefault("metrics.enabled", true)

	v.SetDefault("otel.enabled", false)
	v.SetDefault("otel.endpoint", "localhost:4317")
	v.SetDefault("otel.service_name", "taskmanager")
	v.SetDefault("otel.service_version", "1.0.0")
	v.SetDefault("otel.insecure", true)
	v.SetDefault("otel.sample_ratio", 1.0)
}

func newFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("taskmanager", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.String("config", "", "path to a YAML, JSON or TOML config file")
	fs.String("env-file", ".env", "dotenv file loaded before reading the environment")
	fs.String("port", "8080", "API server port")
	fs.Bool("migrate-only", false, "apply database migrations and exit")
	return fs
}

// Usage returns the command-line help text
func Usage() string {
	return newFlagSet().FlagUsages()
}

// Load reads configuration from command-line args, an optional .env file,
// environment variables and an optional config file, in that order of precedence.
func Load(args []string) (*Config, error) {
	fs := newFlagSet()
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	envFile, _ := fs.GetString("env-file")
	if err := loadDotEnv(envFile); err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlag("server.port", fs.Lookup("port")); err != nil {
		return nil, err
	}

	configFile, _ := fs.GetString("config")
	if configFile == "" {
		configFile = os.Getenv(EnvPrefix + "_CONFIG")
	}
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	}

	cfg, err := fromViper(v)
	if err != nil {
		return nil, err
	}
	cfg.ConfigFile = v.ConfigFileUsed()
	cfg.MigrateOnly, _ = fs.GetBool("migrate-only")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadDotEnv loads a dotenv file without overriding variables already set.
// A missing file is not an error.
func loadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

func fromViper(v *viper.Viper) (*Config, error) {
	level, err := observability.ParseLogLevel(v.GetString("log.level"))
	if err != nil {
		return nil, err
	}
	scheme, err := auth.ParseScheme(v.GetString("password.scheme"))
	if err != nil {
		return nil, err
	}

	return &Config{
		Server: ServerConfig{
			Host:            v.GetString("server.host"),
			Port:            v.GetString("server.port"),
			HealthPort:      v.GetString("server.health_port"),
			ReadTimeout:     v.GetDuration("server.read_timeout"),
			WriteTimeout:    v.GetDuration("server.write_timeout"),
			IdleTimeout:     v.GetDuration("server.idle_timeout"),
			ShutdownTimeout: v.GetDuration("server.shutdown_timeout"),
			CORSOrigins:     splitList(v.GetStringSlice("server.cors_origins")),
			MaxBodyBytes:    v.GetInt64("server.max_body_bytes"),
		},
		Storage: storage.Config{
			Driver:          strings.ToLower(v.GetString("database.driver")),
			URL:             v.GetString("database.url"),
			MaxConns:        v.GetInt("database.max_conns"),
			MinConns:        v.GetInt("database.min_conns"),
			Timeout:         v.GetDuration("database.timeout"),
			MaxLifetime:     v.GetDuration("database.max_lifetime"),
			MaxIdleTime:     v.GetDuration("database.max_idle_time"),
			RedisURL:        v.GetString("redis.url"),
			RedisPassword:   v.GetString("redis.password"),
			RedisDB:         v.GetInt("redis.db"),
			RedisMaxRetries: v.GetInt("redis.max_retries"),
			RedisPoolSize:   v.GetInt("redis.pool_size"),
		},
		Auth: AuthConfig{
			JWTSecret:      v.GetString("jwt.secret"),
			TokenTTL:       v.GetDuration("jwt.ttl"),
			PasswordScheme: scheme,

			MaxConcurrentHashes: v.GetInt("password.max_concurrent"),
		},
		RateLimit: RateLimitConfig{
			LoginPerMinute:    v.GetInt("ratelimit.login_per_minute"),
			RegisterPerMinute: v.GetInt("ratelimit.register_per_minute"),
			TrustProxyHeaders: v.GetBool("ratelimit.trust_proxy_headers"),
		},
		Audit: AuditConfig{
			Enabled:   v.GetBool("audit.enabled"),
			Dir:       v.GetString("audit.dir"),
			MaxSizeMB: v.GetInt("audit.max_size_mb"),
			MaxFiles:  v.GetInt("audit.max_files"),
		},
		Observability: ObservabilityConfig{
			LogLevel:           level,
			MetricsEnabled:     v.GetBool("metrics.enabled"),
			OTelEnabled:        v.GetBool("otel.enabled"),
			OTelEndpoint:       v.GetString("otel.endpoint"),
			OTelServiceName:    v.GetString("otel.service_name"),
			OTelServiceVersion: v.GetString("otel.service_version"),
			OTelInsecure:       v.GetBool("otel.insecure"),
			OTelSampleRatio:    v.GetFloat64("otel.sample_ratio"),
		},
	}, nil
}

// splitList accepts both YAML lists and comma-separated env values
func splitList(items []string) []string {
	var out []string
	for _, item := range items {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if len(c.Auth.JWTSecret) < auth.MinSecretLength {
		return fmt.Errorf("%s_JWT_SECRET: %w", EnvPrefix, auth.ErrSecretTooShort)
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("jwt ttl must be positive")
	}

	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}
	if c.Server.MaxBodyBytes <= 0 {
		return fmt.Errorf("server max body bytes must be positive")
	}

	switch c.Storage.Driver {
	case sqlstore.DriverPostgres, sqlstore.DriverSQLite:
	default:
		return fmt.Errorf("invalid database driver: %s (must be %s or %s)",
			c.Storage.Driver, sqlstore.DriverPostgres, sqlstore.DriverSQLite)
	}
	if c.Storage.URL == "" {
		return fmt.Errorf("database URL is required")
	}

	if c.Auth.MaxConcurrentHashes < 0 {
		return fmt.Errorf("password max_concurrent must not be negative")
	}

	if c.RateLimit.LoginPerMinute <= 0 {
		return fmt.Errorf("ratelimit login_per_minute must be positive")
	}
	if c.RateLimit.RegisterPerMinute <= 0 {
		return fmt.Errorf("ratelimit register_per_minute must be positive")
	}

	if c.Audit.Dir != "" {
		if c.Audit.MaxSizeMB < 0 {
			return fmt.Errorf("audit max_size_mb must not be negative")
		}
		if c.Audit.MaxFiles <= 0 {
			return fmt.Errorf("audit max_files must be positive")
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
