// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// DatabaseConfig provides database connection settings.
type DatabaseConfig interface {
	GetDatabaseURL() string
}

// SchedulerConfig provides settings for the asynq job queue.
type SchedulerConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
}

// IdempotencyConfig provides settings for the idempotency store.
type IdempotencyConfig interface {
	GetRedisURL() string
	GetIdempotencyTTL() time.Duration
}

// EngineConfig provides settings for the reasoning engine.
type EngineConfig interface {
	GetEngineAPIKey() string
	GetEngineModel() string
	IsEngineEnabled() bool
}

// WhatsAppConfig provides settings for the WhatsApp messaging provider.
type WhatsAppConfig interface {
	GetWhatsAppURL() string
	GetWhatsAppKey() string
	GetWhatsAppDeviceID() string
}

// EmailConfig provides settings for SMTP reply sending.
type EmailConfig interface {
	GetSMTPHost() string
	GetSMTPPort() int
	GetSMTPUsername() string
	GetSMTPPassword() string
	GetEmailFromName() string
	GetEmailFromAddress() string
	IsEmailEnabled() bool
}

// CRMConfig provides settings for the RD Station CRM sync.
type CRMConfig interface {
	GetCRMBaseURL() string
	IsCRMEnabled() bool
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
	GetCORSAllowCreds() bool
}

// IngestionConfig provides settings for the public ingestion endpoints.
type IngestionConfig interface {
	GetDefaultPhoneRegion() string
	GetIngestRatePerMinute() float64
	GetIngestRateBurst() int
}

// Config holds all application configuration loaded from the environment.
type Config struct {
	Env string

	HTTPAddr       string
	CORSAllowAll   bool
	CORSOrigins    []string
	CORSAllowCreds bool

	DatabaseURL   string
	MigrationsDir string

	RedisURL         string
	RedisTLSInsecure bool
	AsynqQueueName   string
	AsynqConcurrency int

	IdempotencyTTL time.Duration

	EngineAPIKey string
	EngineModel  string

	WhatsAppURL      string
	WhatsAppKey      string
	WhatsAppDeviceID string

	SMTPHost         string
	SMTPPort         int
	SMTPUsername     string
	SMTPPassword     string
	EmailFromName    string
	EmailFromAddress string
	EmailEnabled     bool

	CRMBaseURL string
	CRMEnabled bool

	DefaultPhoneRegion  string
	IngestRatePerMinute float64
	IngestRateBurst     int

	TenantSeedFile string
}

// DatabaseConfig implementation
func (c *Config) GetDatabaseURL() string { return c.DatabaseURL }

// SchedulerConfig implementation
func (c *Config) GetRedisURL() string       { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool { return c.RedisTLSInsecure }
func (c *Config) GetAsynqQueueName() string { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int  { return c.AsynqConcurrency }

// IdempotencyConfig implementation
func (c *Config) GetIdempotencyTTL() time.Duration { return c.IdempotencyTTL }

// EngineConfig implementation
func (c *Config) GetEngineAPIKey() string { return c.EngineAPIKey }
func (c *Config) GetEngineModel() string  { return c.EngineModel }
func (c *Config) IsEngineEnabled() bool   { return c.EngineAPIKey != "" }

// WhatsAppConfig implementation
func (c *Config) GetWhatsAppURL() string      { return c.WhatsAppURL }
func (c *Config) GetWhatsAppKey() string      { return c.WhatsAppKey }
func (c *Config) GetWhatsAppDeviceID() string { return c.WhatsAppDeviceID }

// EmailConfig implementation
func (c *Config) GetSMTPHost() string         { return c.SMTPHost }
func (c *Config) GetSMTPPort() int            { return c.SMTPPort }
func (c *Config) GetSMTPUsername() string     { return c.SMTPUsername }
func (c *Config) GetSMTPPassword() string     { return c.SMTPPassword }
func (c *Config) GetEmailFromName() string    { return c.EmailFromName }
func (c *Config) GetEmailFromAddress() string { return c.EmailFromAddress }
func (c *Config) IsEmailEnabled() bool        { return c.EmailEnabled && c.SMTPHost != "" }

// CRMConfig implementation
func (c *Config) GetCRMBaseURL() string { return c.CRMBaseURL }
func (c *Config) IsCRMEnabled() bool    { return c.CRMEnabled }

// HTTPConfig implementation
func (c *Config) GetHTTPAddr() string      { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool    { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string { return c.CORSOrigins }
func (c *Config) GetCORSAllowCreds() bool  { return c.CORSAllowCreds }

// IngestionConfig implementation
func (c *Config) GetDefaultPhoneRegion() string   { return c.DefaultPhoneRegion }
func (c *Config) GetIngestRatePerMinute() float64 { return c.IngestRatePerMinute }
func (c *Config) GetIngestRateBurst() int         { return c.IngestRateBurst }

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	corsOrigins := splitCSV(getEnv("CORS_ORIGINS", "http://localhost:4200"))
	corsAllowAll := strings.EqualFold(getEnv("CORS_ALLOW_ALL", "false"), "true")
	if containsWildcard(corsOrigins) {
		corsAllowAll = true
	}

	cfg := &Config{
		Env:                 getEnv("APP_ENV", "development"),
		HTTPAddr:            getEnv("HTTP_ADDR", ":8080"),
		CORSAllowAll:        corsAllowAll,
		CORSOrigins:         corsOrigins,
		CORSAllowCreds:      strings.EqualFold(getEnv("CORS_ALLOW_CREDENTIALS", "true"), "true"),
		DatabaseURL:         getEnv("DATABASE_URL", ""),
		MigrationsDir:       getEnv("MIGRATIONS_DIR", "migrations"),
		RedisURL:            getEnv("REDIS_URL", "redis://localhost:6379/0"),
		RedisTLSInsecure:    strings.EqualFold(getEnv("REDIS_TLS_INSECURE", "false"), "true"),
		AsynqQueueName:      getEnv("ASYNQ_QUEUE", "leadflow"),
		AsynqConcurrency:    mustInt(getEnv("ASYNQ_CONCURRENCY", "10")),
		IdempotencyTTL:      mustDuration(getEnv("IDEMPOTENCY_TTL", "24h")),
		EngineAPIKey:        getEnv("ENGINE_API_KEY", ""),
		EngineModel:         getEnv("ENGINE_MODEL", "gemini-2.0-flash"),
		WhatsAppURL:         getEnv("WHATSAPP_URL", ""),
		WhatsAppKey:         getEnv("WHATSAPP_KEY", ""),
		WhatsAppDeviceID:    getEnv("WHATSAPP_DEVICE_ID", ""),
		SMTPHost:            getEnv("SMTP_HOST", ""),
		SMTPPort:            mustInt(getEnv("SMTP_PORT", "587")),
		SMTPUsername:        getEnv("SMTP_USERNAME", ""),
		SMTPPassword:        getEnv("SMTP_PASSWORD", ""),
		EmailFromName:       getEnv("EMAIL_FROM_NAME", "LeadFlow"),
		EmailFromAddress:    getEnv("EMAIL_FROM_ADDRESS", ""),
		EmailEnabled:        strings.EqualFold(getEnv("EMAIL_ENABLED", "true"), "true"),
		CRMBaseURL:          getEnv("CRM_BASE_URL", "https://api.rd.services"),
		CRMEnabled:          strings.EqualFold(getEnv("CRM_ENABLED", "true"), "true"),
		DefaultPhoneRegion:  getEnv("DEFAULT_PHONE_REGION", "BR"),
		IngestRatePerMinute: mustFloat(getEnv("INGEST_RATE_PER_MINUTE", "60")),
		IngestRateBurst:     mustInt(getEnv("INGEST_RATE_BURST", "20")),
		TenantSeedFile:      getEnv("TENANT_SEED_FILE", ""),
	}

	return cfg, nil
}
