// Package config loads service configuration from the environment.
package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Storage drivers.
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config is the full service configuration. It is built once at startup and
// passed into constructors.
type Config struct {
	Service        ServiceConfig  `envPrefix:"SERVICE_"`
	Server         ServerConfig   `envPrefix:"SERVER_"`
	Database       DatabaseConfig `envPrefix:"DATABASE_"`
	Auth           AuthConfig     `envPrefix:"AUTH_"`
	Redis          RedisConfig    `envPrefix:"REDIS_"`
	NATS           NATSConfig     `envPrefix:"NATS_"`
	StorageDriver  string         `env:"STORAGE_DRIVER" envDefault:"postgres"`
	MigrateOnStart bool           `env:"MIGRATE_ON_START" envDefault:"true"`
	LogLevel       string         `env:"LOG_LEVEL" envDefault:"info"`
}

type ServiceConfig struct {
	Name        string `env:"NAME" envDefault:"be-ops-indicators"`
	Version     string `env:"VERSION" envDefault:"dev"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
}

type ServerConfig struct {
	Port            int           `env:"PORT" envDefault:"8080"`
	GRPCPort        int           `env:"GRPC_PORT" envDefault:"9090"`
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"30s"`
	IdleTimeout     time.Duration `env:"IDLE_TIMEOUT" envDefault:"60s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"20s"`
	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT" envDefault:"30s"`
	CORSOrigins     []string      `env:"CORS_ORIGINS" envDefault:"*" envSeparator:","`
}

type DatabaseConfig struct {
	URL             string        `env:"URL"`
	Host            string        `env:"HOST" envDefault:"localhost"`
	Port            int           `env:"PORT" envDefault:"5432"`
	User            string        `env:"USER" envDefault:"indicators"`
	Password        string        `env:"PASSWORD"`
	Name            string        `env:"NAME" envDefault:"indicators"`
	SSLMode         string        `env:"SSLMODE" envDefault:"disable"`
	MaxConns        int32         `env:"MAX_CONNS" envDefault:"10"`
	MinConns        int32         `env:"MIN_CONNS" envDefault:"1"`
	MaxConnLifetime time.Duration `env:"MAX_CONN_LIFETIME" envDefault:"1h"`
	MaxConnIdleTime time.Duration `env:"MAX_CONN_IDLE_TIME" envDefault:"5m"`
	ConnectTimeout  time.Duration `env:"CONNECT_TIMEOUT" envDefault:"10s"`
}

type AuthConfig struct {
	JWTSecret           string        `env:"JWT_SECRET"`
	TokenTTL            time.Duration `env:"TOKEN_TTL" envDefault:"12h"`
	Leeway              time.Duration `env:"LEEWAY" envDefault:"120s"`
	Issuer              string        `env:"ISSUER" envDefault:"be-ops-indicators"`
	BcryptCost          int           `env:"BCRYPT_COST" envDefault:"10"`
	PlaceholderPassword string        `env:"PLACEHOLDER_PASSWORD" envDefault:"1234"`
	SeedAdminEmail      string        `env:"SEED_ADMIN_EMAIL" envDefault:"admin@empresa.com"`
	SeedAdminPassword   string        `env:"SEED_ADMIN_PASSWORD"`
	LoginMaxAttempts    int           `env:"LOGIN_MAX_ATTEMPTS" envDefault:"10"`
	LoginWindow         time.Duration `env:"LOGIN_WINDOW" envDefault:"15m"`
}

type RedisConfig struct {
	URL string `env:"URL"`
}

type NATSConfig struct {
	URL           string `env:"URL"`
	SubjectPrefix string `env:"SUBJECT_PREFIX" envDefault:"indicators.audit"`
}

// Load parses the environment and validates the result.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints env tags cannot express.
func (c *Config) Validate() error {
	switch c.StorageDriver {
	case DriverPostgres, DriverMemory:
	default:
		return fmt.Errorf("STORAGE_DRIVER must be %q or %q, got %q", DriverPostgres, DriverMemory, c.StorageDriver)
	}
	if len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("AUTH_JWT_SECRET must be at least 32 bytes")
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("AUTH_TOKEN_TTL must be positive")
	}
	if c.Auth.Leeway < 0 {
		return fmt.Errorf("AUTH_LEEWAY cannot be negative")
	}
	if c.Auth.BcryptCost < 4 || c.Auth.BcryptCost > 31 {
		return fmt.Errorf("AUTH_BCRYPT_COST must be between 4 and 31")
	}
	if strings.TrimSpace(c.Auth.PlaceholderPassword) == "" {
		return fmt.Errorf("AUTH_PLACEHOLDER_PASSWORD is required")
	}
	if c.Database.MinConns > c.Database.MaxConns {
		return fmt.Errorf("DATABASE_MIN_CONNS cannot exceed DATABASE_MAX_CONNS")
	}
	return nil
}

// DSN returns DATABASE_URL when set, otherwise a URL assembled from parts.
func (d DatabaseConfig) DSN() string {
	if v := strings.TrimSpace(d.URL); v != "" {
		return v
	}
	uri := &url.URL{
		Scheme: "postgres",
		Host:   d.Host + ":" + strconv.Itoa(d.Port),
		Path:   "/" + d.Name,
	}
	if d.Password != "" {
		uri.User = url.UserPassword(d.User, d.Password)
	} else {
		uri.User = url.User(d.User)
	}
	q := uri.Query()
	q.Set("sslmode", d.SSLMode)
	uri.RawQuery = q.Encode()
	return uri.String()
}
