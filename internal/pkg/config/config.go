package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/pitlane-app/pitlane/internal/pkg/env"
)

// Config is built once at startup and handed to every component that needs
// credentials or tunables. Business logic never reads the environment itself.
type Config struct {
	AppHost      string `validate:"required"`
	AppPort      string `validate:"required,numeric"`
	AppEnv       string `validate:"oneof=dev test prod"`
	PublicDomain string

	Stripe    StripeConfig
	Database  DatabaseConfig
	Cache     CacheConfig
	SMTP      SMTPConfig
	RateLimit RateLimitConfig
	History   HistoryConfig
	Metrics   MetricsConfig
}

// StripeConfig holds the provider API key and the webhook signing secret.
type StripeConfig struct {
	SecretKey     string `validate:"required"`
	WebhookSecret string `validate:"required"`
}

// DatabaseConfig carries two credential sets. User/Password are the public
// (anon) credentials used for every regular query; ServiceUser/ServicePassword
// are only used by the entitlement fallback path.
type DatabaseConfig struct {
	Host            string `validate:"required"`
	Port            string `validate:"required,numeric"`
	Name            string `validate:"required"`
	User            string `validate:"required"`
	Password        string
	ServiceUser     string
	ServicePassword string
}

// HasServiceRole reports whether a service-role credential is configured.
func (d DatabaseConfig) HasServiceRole() bool {
	return strings.TrimSpace(d.ServiceUser) != ""
}

type CacheConfig struct {
	Host     string `validate:"required"`
	Port     string `validate:"required,numeric"`
	Password string
}

type SMTPConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	Sender   string
}

// Enabled is false when no SMTP host is configured; notifications are then dropped.
func (s SMTPConfig) Enabled() bool {
	return strings.TrimSpace(s.Host) != ""
}

// RateLimitConfig configures the general API limiter and the coarser webhook limiter.
type RateLimitConfig struct {
	APIMax        int           `validate:"gt=0"`
	APIWindow     time.Duration `validate:"gt=0"`
	WebhookMax    int           `validate:"gt=0"`
	WebhookWindow time.Duration `validate:"gt=0"`
}

type HistoryConfig struct {
	// SessionLimit caps how many checkout sessions a single history read scans.
	SessionLimit int64 `validate:"gt=0,lte=100"`
}

type MetricsConfig struct {
	User     string
	Password string
}

// Load reads the configuration from the loaded .env map and the process environment.
func Load() (*Config, error) {
	cfg := &Config{
		AppHost:      env.GetEnv("APP_HOST", "localhost"),
		AppPort:      env.GetEnv("APP_PORT", "4000"),
		AppEnv:       env.GetEnv("APP_ENV", "prod"),
		PublicDomain: strings.TrimRight(env.GetEnv("PUBLIC_DOMAIN", ""), "/"),
		Stripe: StripeConfig{
			SecretKey:     strings.TrimSpace(env.GetEnv("STRIPE_SECRET_KEY", "")),
			WebhookSecret: strings.TrimSpace(env.GetEnv("STRIPE_WEBHOOK_SECRET", "")),
		},
		Database: LoadDatabase(),
		Cache: CacheConfig{
			Host:     env.GetEnv("CACHE_HOST", "localhost"),
			Port:     env.GetEnv("CACHE_PORT", "6379"),
			Password: env.GetEnv("CACHE_PASSWORD", ""),
		},
		SMTP: SMTPConfig{
			Host:     env.GetEnv("SMTP_HOST", ""),
			Port:     env.GetEnv("SMTP_PORT", "587"),
			Username: env.GetEnv("SMTP_USERNAME", ""),
			Password: env.GetEnv("SMTP_PASSWORD", ""),
			Sender:   env.GetEnv("SMTP_SENDER", ""),
		},
		RateLimit: RateLimitConfig{
			APIMax:        env.GetEnvInt("API_RATE_LIMIT", 60),
			APIWindow:     env.GetEnvDuration("API_RATE_WINDOW", time.Minute),
			WebhookMax:    env.GetEnvInt("WEBHOOK_RATE_LIMIT", 600),
			WebhookWindow: env.GetEnvDuration("WEBHOOK_RATE_WINDOW", time.Minute),
		},
		History: HistoryConfig{
			SessionLimit: int64(env.GetEnvInt("HISTORY_SESSION_LIMIT", 100)),
		},
		Metrics: MetricsConfig{
			User:     env.GetEnv("METRICS_USER", "admin"),
			Password: env.GetEnv("METRICS_PASSWORD", ""),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDatabase reads only the database settings. cmd/migrate uses it so
// migrations run without provider credentials.
func LoadDatabase() DatabaseConfig {
	return DatabaseConfig{
		Host:            env.GetEnv("DB_HOST", "127.0.0.1"),
		Port:            env.GetEnv("DB_PORT", "3306"),
		Name:            env.GetEnv("DB_NAME", ""),
		User:            env.GetEnv("DB_USER", ""),
		Password:        env.GetEnv("DB_PASSWORD", ""),
		ServiceUser:     env.GetEnv("DB_SERVICE_USER", ""),
		ServicePassword: env.GetEnv("DB_SERVICE_PASSWORD", ""),
	}
}

// Validate checks the struct tags and returns a readable error naming the first bad fields.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid configuration: %s", strings.Join(fields, ", "))
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func (c *Config) IsDev() bool {
	return c.AppEnv == "dev"
}

// ListenAddr returns host:port for app.Listen.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%s", c.AppHost, c.AppPort)
}
