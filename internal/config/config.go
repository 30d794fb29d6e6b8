package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/telhawk-systems/seccore/internal/models"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Session   SessionConfig   `mapstructure:"session"`
	Audit     AuditConfig     `mapstructure:"audit"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

type DatabaseConfig struct {
	Type     string         `mapstructure:"type"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	SSLMode  string `mapstructure:"sslmode"`
}

// ConnString renders a pgx-compatible connection URL.
func (p *PostgresConfig) ConnString() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		p.User, p.Password, p.Host, p.Port, p.Database, p.SSLMode,
	)
}

// RedisConfig selects an optional Redis backend for rate-limit counters.
type RedisConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
}

type RateLimitConfig struct {
	Policies        map[string]PolicyConfig `mapstructure:"policies"`
	CleanupInterval time.Duration           `mapstructure:"cleanup_interval"`
}

type PolicyConfig struct {
	MaxAttempts   int           `mapstructure:"max_attempts"`
	Window        time.Duration `mapstructure:"window"`
	BlockDuration time.Duration `mapstructure:"block_duration"`
}

// PolicyTable converts the configured policies to the limiter's table.
func (r *RateLimitConfig) PolicyTable() map[models.Action]models.RateLimitPolicy {
	table := make(map[models.Action]models.RateLimitPolicy, len(r.Policies))
	for action, p := range r.Policies {
		table[models.Action(action)] = models.RateLimitPolicy{
			MaxAttempts:   p.MaxAttempts,
			Window:        p.Window,
			BlockDuration: p.BlockDuration,
		}
	}
	return table
}

type SessionConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

type AuditConfig struct {
	SigningKey string `mapstructure:"signing_key"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("server.port", 8084)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.idle_timeout", "60s")
	v.SetDefault("database.type", "memory")
	v.SetDefault("database.redis.enabled", false)
	v.SetDefault("rate_limit.cleanup_interval", "5m")
	v.SetDefault("rate_limit.policies.login_failed.max_attempts", 5)
	v.SetDefault("rate_limit.policies.login_failed.window", "15m")
	v.SetDefault("rate_limit.policies.login_failed.block_duration", "30m")
	v.SetDefault("rate_limit.policies.password_reset.max_attempts", 3)
	v.SetDefault("rate_limit.policies.password_reset.window", "15m")
	v.SetDefault("rate_limit.policies.password_reset.block_duration", "1h")
	v.SetDefault("session.ttl", "168h")
	v.SetDefault("audit.signing_key", "change-this-in-production")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Read config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/seccore")
	}

	// Environment variables override
	v.SetEnvPrefix("SECCORE")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found; use defaults
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}
