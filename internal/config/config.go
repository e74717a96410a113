package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/subcycle/subcycle/internal/types"
)

type Configuration struct {
	Deployment DeploymentConfig `validate:"required"`
	Server     ServerConfig     `validate:"required"`
	Logging    LoggingConfig    `validate:"required"`
	Postgres   PostgresConfig   `validate:"required"`
	Billing    BillingConfig    `validate:"required"`
	Gateway    GatewayConfig
	Sentry     SentryConfig
}

type DeploymentConfig struct {
	Mode types.RunMode `validate:"required"`
}

type ServerConfig struct {
	Address string `validate:"required"`
}

type LoggingConfig struct {
	Level types.LogLevel `validate:"required"`
}

type PostgresConfig struct {
	Host                   string
	Port                   int
	User                   string
	Password               string
	DBName                 string
	SSLMode                string
	MaxOpenConns           int
	MaxIdleConns           int
	ConnMaxLifetimeMinutes int
}

// BillingConfig drives the renewal/dunning scanner.
type BillingConfig struct {
	// LookAheadDays is how far ahead of the next billing date the renewal
	// scan selects subscriptions.
	LookAheadDays int `validate:"gte=0"`

	// MaxBillingAttempts is the number of consecutive failed renewal
	// attempts after which a subscription is canceled for payment failure.
	MaxBillingAttempts int `validate:"gte=1"`

	// RetryInitialInterval, RetryMaxInterval and RetryMultiplier shape the
	// dunning backoff schedule between renewal attempts.
	RetryInitialInterval time.Duration
	RetryMaxInterval     time.Duration
	RetryMultiplier      float64
}

// GatewayConfig configures the payment gateway client.
type GatewayConfig struct {
	BaseURL string
	APIKey  string
	// Timeout bounds a single charge call. A timed-out charge is treated as
	// failed, never retried synchronously.
	Timeout time.Duration
}

type SentryConfig struct {
	Enabled     bool
	DSN         string
	Environment string
	SampleRate  float64
}

func NewConfig() (*Configuration, error) {
	// Load .env for local development before viper reads the environment
	_ = godotenv.Load()

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./internal/config")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/subcycle")

	v.SetEnvPrefix("SUBCYCLE")
	v.SetEnvKeyReplacer(strings.NewReplacer(
		".", "_",
		"-", "_",
	))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, err
		}
	}

	var config Configuration
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("deployment.mode", string(types.ModeLocal))
	v.SetDefault("server.address", ":8080")
	v.SetDefault("logging.level", string(types.LogLevelInfo))
	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "subcycle")
	v.SetDefault("postgres.dbname", "subcycle")
	v.SetDefault("postgres.sslmode", "disable")
	v.SetDefault("postgres.maxopenconns", 10)
	v.SetDefault("postgres.maxidleconns", 5)
	v.SetDefault("postgres.connmaxlifetimeminutes", 30)
	v.SetDefault("billing.lookaheaddays", 0)
	v.SetDefault("billing.maxbillingattempts", 3)
	v.SetDefault("billing.retryinitialinterval", 24*time.Hour)
	v.SetDefault("billing.retrymaxinterval", 96*time.Hour)
	v.SetDefault("billing.retrymultiplier", 2.0)
	v.SetDefault("gateway.timeout", 30*time.Second)
	v.SetDefault("sentry.samplerate", 1.0)
}

func (c Configuration) Validate() error {
	validate := validator.New()
	return validate.Struct(c)
}

// GetDefaultConfig returns a default configuration for local development.
// This is useful for running scripts or tests outside the web application.
func GetDefaultConfig() *Configuration {
	return &Configuration{
		Deployment: DeploymentConfig{Mode: types.ModeLocal},
		Logging:    LoggingConfig{Level: types.LogLevelInfo},
		Billing: BillingConfig{
			LookAheadDays:        0,
			MaxBillingAttempts:   3,
			RetryInitialInterval: 24 * time.Hour,
			RetryMaxInterval:     96 * time.Hour,
			RetryMultiplier:      2.0,
		},
		Gateway: GatewayConfig{Timeout: 30 * time.Second},
	}
}

func (c PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"user=%s password=%s dbname=%s host=%s port=%d sslmode=%s",
		c.User, c.Password, c.DBName, c.Host, c.Port, c.SSLMode,
	)
}
