// internal/common/config/config.go
package config

import (
	"fmt"
	"time"
)

// Config is the main application configuration struct.
type Config struct {
	App         AppConfig               `mapstructure:"app"`
	Camunda     CamundaConfig           `mapstructure:"camunda"`
	Database    DatabaseConfig          `mapstructure:"database"`
	Auth        AuthConfig              `mapstructure:"auth"`
	Entitlement EntitlementConfig       `mapstructure:"entitlement"`
	Audit       AuditConfig             `mapstructure:"audit"`
	Workers     map[string]WorkerConfig `mapstructure:"workers"`
	Server      ServerConfig            `mapstructure:"server"`
	Logging     LoggingConfig           `mapstructure:"logging"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string   `mapstructure:"name"`
	Version     string   `mapstructure:"version"`
	Environment string   `mapstructure:"environment"`
	Locales     []string `mapstructure:"locales"`
}

type CamundaConfig struct {
	BrokerAddress  string `mapstructure:"broker_address"`
	Plaintext      bool   `mapstructure:"plaintext"`
	MaxJobsActive  int    `mapstructure:"max_jobs_active"`
	Timeout        int    `mapstructure:"timeout"`         // milliseconds
	RequestTimeout int    `mapstructure:"request_timeout"` // milliseconds
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Redis         RedisConfig         `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// ElasticsearchConfig is optional; an empty address list disables the audit index.
type ElasticsearchConfig struct {
	Addresses []string `mapstructure:"addresses"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
}

// Enabled reports whether at least one address is configured.
func (e ElasticsearchConfig) Enabled() bool {
	return len(e.Addresses) > 0
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// WorkerConfig holds the core settings applicable to every worker.
type WorkerConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxJobsActive int  `mapstructure:"max_jobs_active"`
	Timeout       int  `mapstructure:"timeout"`     // milliseconds
	MaxRetries    int  `mapstructure:"max_retries"` // For error handling
}

// Identity providers accepted in auth.provider.
const (
	ProviderKeycloak = "keycloak"
	ProviderJWT      = "jwt"
)

// AuthConfig selects and configures the identity provider.
type AuthConfig struct {
	Provider string `mapstructure:"provider"`

	Keycloak struct {
		URL          string `mapstructure:"url"`
		Realm        string `mapstructure:"realm"`
		ClientID     string `mapstructure:"client_id"`
		ClientSecret string `mapstructure:"client_secret"`
	} `mapstructure:"keycloak"`

	JWT struct {
		Secret string `mapstructure:"secret"`
		Issuer string `mapstructure:"issuer"`
	} `mapstructure:"jwt"`
}

// EntitlementConfig tunes the checker. Durations are parsed by viper ("5m", "30s").
// The subscription grace window is fixed at one day and is not configurable.
type EntitlementConfig struct {
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
	// IdentityCacheTTL bounds how long a resolved token is reused; negative disables the cache.
	IdentityCacheTTL time.Duration `mapstructure:"identity_cache_ttl"`
	// CreditLimit of 0 keeps the presence-only credit rule.
	CreditLimit int `mapstructure:"credit_limit"`
}

// AuditConfig controls where entitlement decisions are shipped.
type AuditConfig struct {
	IndexPrefix string `mapstructure:"index_prefix"`
	SNS         struct {
		TopicARN string `mapstructure:"topic_arn"`
		Region   string `mapstructure:"region"`
		// AlertWindow coalesces repeat alerts for the same path and error code.
		AlertWindow time.Duration `mapstructure:"alert_window"`
	} `mapstructure:"sns"`
}

// ServerConfig is the health/metrics/entitlement HTTP listener.
type ServerConfig struct {
	Address         string   `mapstructure:"address"`
	ShutdownTimeout int      `mapstructure:"shutdown_timeout"` // milliseconds
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}
