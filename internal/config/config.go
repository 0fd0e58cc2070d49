// Package config defines the global configuration structure for LinkDigest.
// Configuration is loaded once at process initialization and is immutable
// thereafter. It follows 12-Factor App principles by strictly separating
// code from configuration.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File (Lowest)
//
// Any missing required value or invalid format causes the application to exit
// immediately on startup (fail fast).
package config

import (
	"time"

	"linkdigest/internal/types"
)

// SecretString is an alias for types.SecretString, the redacted secret type used
// throughout configuration to prevent accidental logging of sensitive values.
type SecretString = types.SecretString

// Config is the top-level configuration struct for LinkDigest.
// It is populated once during process initialization and never modified.
// Sub-components receive only the specific config subsets they require.
type Config struct {
	// System Metadata
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"linkdigest"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// Domain Configurations
	Server        ServerConfig
	Database      DatabaseConfig
	Email         EmailConfig
	Digest        DigestConfig
	Security      SecurityConfig
	Observability ObservabilityConfig
	AWS           AWSConfig
}

// ServerConfig holds HTTP server and public URL configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8080"`
	// Public URL of the submission form, linked from the digest footer
	// (no trailing slash).
	PublicFormURL string `envconfig:"PUBLIC_FORM_URL" validate:"required,url"`
}

// DatabaseConfig holds database connection and pool tuning parameters.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"required,url"`

	// Tuning Parameters
	MaxConns          int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns          int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	AcquireTimeout    time.Duration `envconfig:"DB_ACQUIRE_TIMEOUT" default:"2s"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`
}

// EmailConfig holds email delivery provider credentials and sender identity.
type EmailConfig struct {
	SendGridAPIKey SecretString `envconfig:"SENDGRID_API_KEY" validate:"required"`
	FromAddress    string       `envconfig:"EMAIL_FROM_ADDRESS" default:"digest@linkdigest.io" validate:"email"`
	FromName       string       `envconfig:"EMAIL_FROM_NAME" default:"LinkDigest"`
	Recipients     []string     `envconfig:"EMAIL_RECIPIENTS" validate:"required,min=1,dive,email"`
	BaseURL        string       `envconfig:"SENDGRID_BASE_URL" default:"https://api.sendgrid.com"`
}

// DigestConfig holds the daily schedule for the evaluate-and-send cycle.
type DigestConfig struct {
	// DeliveryTime is the local wall-clock time of the daily run, HH:MM.
	DeliveryTime string `envconfig:"DIGEST_DELIVERY_TIME" default:"08:00"`
	// Timezone is an IANA zone name the schedule is evaluated in.
	Timezone string `envconfig:"DIGEST_TIMEZONE" default:"UTC"`
	// PreviewConcurrency caps parallel preview fetches during enrichment.
	PreviewConcurrency int `envconfig:"PREVIEW_CONCURRENCY" default:"5"`
	// CycleTimeout bounds one full evaluate-and-send cycle.
	CycleTimeout time.Duration `envconfig:"DIGEST_CYCLE_TIMEOUT" default:"2m"`
}

// SecurityConfig holds security-related configuration including admin access
// and CORS settings for the public submission form.
type SecurityConfig struct {
	AdminAPIKey        SecretString `envconfig:"ADMIN_API_KEY" validate:"required"`
	CorsAllowedOrigins []string     `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
}

// ObservabilityConfig holds telemetry and monitoring settings.
type ObservabilityConfig struct {
	MetricNamespace string `envconfig:"METRIC_NAMESPACE" default:"LinkDigest"`
	EnableMetrics   bool   `envconfig:"ENABLE_METRICS" default:"false"`
}

// AWSConfig holds regional configuration for the CloudWatch metrics client.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"us-east-1"`
}

// ConfigErrorType categorizes configuration loading failures to aid debugging.
type ConfigErrorType string

const (
	// ErrValidation indicates the configuration failed struct validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates a failure when parsing environment variable values
	// into their target types.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
)
