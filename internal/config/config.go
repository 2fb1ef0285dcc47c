package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App     AppConfig
	Redis   RedisConfig
	Session SessionConfig
	Webhook WebhookConfig
	Remote  RemoteConfig
	Ledger  LedgerConfig
	HTTP    HTTPConfig
	Log     LogConfig
}

type AppConfig struct {
	Name string
	Env  string
	Port string
}

type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
	StateTTL  time.Duration // 0 keeps state keys forever
}

type SessionConfig struct {
	Key    string // cookie signing key
	Secure bool
}

// WebhookConfig is the single retry policy applied to every form webhook.
type WebhookConfig struct {
	Timeout       time.Duration
	RetryAttempts int // extra attempts after the first failure
	RetryDelay    time.Duration
}

// RemoteConfig points at the backend submission API. Empty BaseURL disables it.
type RemoteConfig struct {
	BaseURL         string
	Timeout         time.Duration
	BreakerFailures uint32
	BreakerTimeout  time.Duration
}

type LedgerConfig struct {
	Driver     string // redis or sqlite
	SQLitePath string
}

type HTTPConfig struct {
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
	MaxBodySize     int64
}

type LogConfig struct {
	Level  string
	Format string
	Output string
}

// Load reads configuration.
// Priority (highest to lowest):
// 1. Environment variables with STOREFRONT_ prefix (e.g. STOREFRONT_REDIS_ADDR)
// 2. storefront.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("storefront")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/storefront")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	v.SetEnvPrefix("STOREFRONT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Redis: RedisConfig{
			Addr:      v.GetString("redis.addr"),
			Password:  v.GetString("redis.password"),
			DB:        v.GetInt("redis.db"),
			KeyPrefix: v.GetString("redis.key_prefix"),
			StateTTL:  v.GetDuration("redis.state_ttl"),
		},
		Session: SessionConfig{
			Key:    v.GetString("session.key"),
			Secure: v.GetBool("session.secure"),
		},
		Webhook: WebhookConfig{
			Timeout:       v.GetDuration("webhook.timeout"),
			RetryAttempts: v.GetInt("webhook.retry_attempts"),
			RetryDelay:    v.GetDuration("webhook.retry_delay"),
		},
		Remote: RemoteConfig{
			BaseURL:         v.GetString("remote.base_url"),
			Timeout:         v.GetDuration("remote.timeout"),
			BreakerFailures: v.GetUint32("remote.breaker_failures"),
			BreakerTimeout:  v.GetDuration("remote.breaker_timeout"),
		},
		Ledger: LedgerConfig{
			Driver:     v.GetString("ledger.driver"),
			SQLitePath: v.GetString("ledger.sqlite_path"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:     v.GetDuration("http.read_timeout"),
			WriteTimeout:    v.GetDuration("http.write_timeout"),
			IdleTimeout:     v.GetDuration("http.idle_timeout"),
			RequestTimeout:  v.GetDuration("http.request_timeout"),
			ShutdownTimeout: v.GetDuration("http.shutdown_timeout"),
			MaxBodySize:     v.GetInt64("http.max_body_size"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "storefront")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key_prefix", "storefront:")
	v.SetDefault("redis.state_ttl", 30*24*time.Hour)

	v.SetDefault("session.secure", false)

	v.SetDefault("webhook.timeout", 10*time.Second)
	v.SetDefault("webhook.retry_attempts", 1)
	v.SetDefault("webhook.retry_delay", time.Second)

	v.SetDefault("remote.timeout", 5*time.Second)
	v.SetDefault("remote.breaker_failures", 3)
	v.SetDefault("remote.breaker_timeout", 30*time.Second)

	v.SetDefault("ledger.driver", "redis")
	v.SetDefault("ledger.sqlite_path", "./submissions.db")

	v.SetDefault("http.read_timeout", 10*time.Second)
	v.SetDefault("http.write_timeout", 30*time.Second)
	v.SetDefault("http.idle_timeout", 60*time.Second)
	v.SetDefault("http.request_timeout", 30*time.Second)
	v.SetDefault("http.shutdown_timeout", 10*time.Second)
	v.SetDefault("http.max_body_size", 1<<20)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output", "stdout")
}

func (c *Config) validate() error {
	if c.App.Port == "" {
		return errors.New("app.port is required")
	}
	if c.Redis.Addr == "" {
		return errors.New("redis.addr is required")
	}
	switch c.Ledger.Driver {
	case "redis":
	case "sqlite":
		if c.Ledger.SQLitePath == "" {
			return errors.New("ledger.sqlite_path is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("unknown ledger.driver %q", c.Ledger.Driver)
	}
	if c.Webhook.RetryAttempts < 0 {
		return errors.New("webhook.retry_attempts must not be negative")
	}
	if c.Session.Key == "" && c.App.Env == "production" {
		return errors.New("session.key is required in production")
	}
	return nil
}

// IsProduction reports whether the app runs in production mode
func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}
