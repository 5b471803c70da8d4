package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	API      APIConfig      `mapstructure:"api"`
	Database DatabaseConfig `mapstructure:"database"`
	Gateway  GatewayConfig  `mapstructure:"gateway"`
	Engine   EngineConfig   `mapstructure:"engine"`
	Ledger   LedgerConfig   `mapstructure:"ledger"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Quota    QuotaConfig    `mapstructure:"quota"`
}

// APIConfig holds REST API server configuration.
type APIConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig holds PostgreSQL connection configuration.
type DatabaseConfig struct {
	URL            string        `mapstructure:"url"`
	PoolMin        int32         `mapstructure:"pool_min"`
	PoolMax        int32         `mapstructure:"pool_max"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

// GatewayConfig holds messaging gateway configuration.
// Kind selects the adapter: "vonage" for the live WhatsApp gateway,
// "stdout" for development.
type GatewayConfig struct {
	Kind      string        `mapstructure:"kind"`
	Endpoint  string        `mapstructure:"endpoint"`
	APIKey    string        `mapstructure:"api_key"`
	APISecret string        `mapstructure:"api_secret"`
	Sender    string        `mapstructure:"sender"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// EngineConfig holds broadcast engine tuning.
type EngineConfig struct {
	// MaxAttempts is the delivery attempt budget per recipient.
	MaxAttempts int `mapstructure:"max_attempts"`
	// RetryBackoff is the base backoff between delivery attempts; each
	// subsequent attempt doubles it.
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
	// RecipientInterval is the pause between recipients, protecting the
	// gateway's sandbox-tier rate limit.
	RecipientInterval time.Duration `mapstructure:"recipient_interval"`
}

// LedgerConfig selects the delivery ledger backend: "postgres" or "file".
type LedgerConfig struct {
	Kind     string `mapstructure:"kind"`
	FilePath string `mapstructure:"file_path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level     string `mapstructure:"level"`
	Output    string `mapstructure:"output"`
	FilePath  string `mapstructure:"file_path"`
	MaxSizeMB int    `mapstructure:"max_size_mb"`
	MaxFiles  int    `mapstructure:"max_files"`
}

// AuthConfig holds operator login configuration.
type AuthConfig struct {
	SigningKey  string             `mapstructure:"signing_key"`
	TokenExpiry time.Duration      `mapstructure:"token_expiry"`
	Issuer      string             `mapstructure:"issuer"`
	Credentials []CredentialConfig `mapstructure:"credentials"`
}

// CredentialConfig is a single operator login entry. PasswordHash is a
// bcrypt hash, never a plaintext password.
type CredentialConfig struct {
	Username     string `mapstructure:"username"`
	PasswordHash string `mapstructure:"password_hash"`
	Role         string `mapstructure:"role"`
}

// QuotaConfig holds the optional Redis-backed monthly send quota.
// An empty RedisURL disables quota tracking.
type QuotaConfig struct {
	RedisURL     string `mapstructure:"redis_url"`
	MonthlyLimit int    `mapstructure:"monthly_limit"`
}

// Load reads configuration from the given config directory path.
// It looks for a file named "config.yaml" in that directory.
// Environment variables with prefix KIDCONNECT_ override file values.
// For example, KIDCONNECT_DATABASE_URL overrides database.url.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)

	v.SetEnvPrefix("KIDCONNECT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// validate checks cross-field constraints that viper cannot express.
func (c *Config) validate() error {
	if c.Engine.MaxAttempts < 1 {
		return fmt.Errorf("engine.max_attempts must be at least 1, got %d", c.Engine.MaxAttempts)
	}
	if c.Engine.RetryBackoff < 0 {
		return fmt.Errorf("engine.retry_backoff must not be negative, got %v", c.Engine.RetryBackoff)
	}
	if c.Engine.RecipientInterval < 0 {
		return fmt.Errorf("engine.recipient_interval must not be negative, got %v", c.Engine.RecipientInterval)
	}
	switch c.Ledger.Kind {
	case "postgres", "file":
	default:
		return fmt.Errorf("ledger.kind must be postgres or file, got %q", c.Ledger.Kind)
	}
	switch c.Gateway.Kind {
	case "vonage", "stdout":
	default:
		return fmt.Errorf("gateway.kind must be vonage or stdout, got %q", c.Gateway.Kind)
	}
	return nil
}
