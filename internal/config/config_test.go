package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestLoadDefaults(t *testing.T) {
	t.Setenv("AUTH_JWT_SECRET", testSecret)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DriverPostgres, cfg.StorageDriver)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 12*time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, 120*time.Second, cfg.Auth.Leeway)
	assert.Equal(t, "1234", cfg.Auth.PlaceholderPassword)
	assert.Equal(t, []string{"*"}, cfg.Server.CORSOrigins)
	assert.Equal(t, "indicators.audit", cfg.NATS.SubjectPrefix)
}

func TestLoadReadsNestedPrefixes(t *testing.T) {
	t.Setenv("AUTH_JWT_SECRET", testSecret)
	t.Setenv("AUTH_TOKEN_TTL", "30m")
	t.Setenv("SERVER_PORT", "9999")
	t.Setenv("DATABASE_MAX_CONNS", "20")
	t.Setenv("STORAGE_DRIVER", "memory")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 30*time.Minute, cfg.Auth.TokenTTL)
	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, int32(20), cfg.Database.MaxConns)
	assert.Equal(t, DriverMemory, cfg.StorageDriver)
}

func TestLoadRejectsShortSecret(t *testing.T) {
	t.Setenv("AUTH_JWT_SECRET", "short")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AUTH_JWT_SECRET")
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			StorageDriver: DriverMemory,
			Auth: AuthConfig{
				JWTSecret:           testSecret,
				TokenTTL:            time.Hour,
				BcryptCost:          10,
				PlaceholderPassword: "1234",
			},
			Database: DatabaseConfig{MaxConns: 4, MinConns: 1},
		}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"unknown driver", func(c *Config) { c.StorageDriver = "mysql" }, "STORAGE_DRIVER"},
		{"zero ttl", func(c *Config) { c.Auth.TokenTTL = 0 }, "AUTH_TOKEN_TTL"},
		{"negative leeway", func(c *Config) { c.Auth.Leeway = -time.Second }, "AUTH_LEEWAY"},
		{"bcrypt cost", func(c *Config) { c.Auth.BcryptCost = 2 }, "AUTH_BCRYPT_COST"},
		{"placeholder", func(c *Config) { c.Auth.PlaceholderPassword = " " }, "AUTH_PLACEHOLDER_PASSWORD"},
		{"conns", func(c *Config) { c.Database.MinConns = 9 }, "DATABASE_MIN_CONNS"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	assert.NoError(t, base().Validate())
}

func TestDSN(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: 5433, User: "ops", Password: "p@ss", Name: "kpi", SSLMode: "require"}
	dsn := d.DSN()
	assert.True(t, strings.HasPrefix(dsn, "postgres://ops:p%40ss@db:5433/kpi"))
	assert.Contains(t, dsn, "sslmode=require")

	d.URL = " postgres://override/x "
	assert.Equal(t, "postgres://override/x", d.DSN())
}
