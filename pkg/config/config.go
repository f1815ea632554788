package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Env        string
	LogLevel   string
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	LLM        LLMConfig
	Validation ValidationConfig
	OTEL       OTELConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Host            string
	Port            int
	AllowedOrigins  []string
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Database     string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	PoolSize int
	// ConnectAttempts bounds the startup ping loop. Redis is optional, so
	// this stays small.
	ConnectAttempts int
}

// ProviderConfig holds credentials for a single LLM provider adapter.
type ProviderConfig struct {
	APIKey  string
	Model   string
	BaseURL string
	// RateLimitRPM <= -1 disables client-side rate limiting.
	RateLimitRPM   int
	RateLimitBurst int
}

// LLMConfig holds the provider chain configuration
type LLMConfig struct {
	// ProviderOrder is the fixed fallback order, e.g. anthropic,grok,openai.
	ProviderOrder   []string
	Timeout         time.Duration
	MaxTokens       int
	Temperature     float64
	// BreakerFailures consecutive failures skip a provider for BreakerCooldown
	BreakerFailures uint32
	BreakerCooldown time.Duration
	Anthropic       ProviderConfig
	Grok            ProviderConfig
	OpenAI          ProviderConfig
}

// ValidationConfig holds clinical validation settings
type ValidationConfig struct {
	WordLimit           int
	OverrideMinAttempts int
	TemplatesFile       string
	ReferenceCacheTTL   time.Duration
	ReferenceLimit      int
}

// OTELConfig holds OpenTelemetry configuration
type OTELConfig struct {
	ServiceName    string
	ServiceVersion string
	Endpoint       string
	Enabled        bool
}

// Load loads configuration from environment variables and an optional .env file
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	setDefaults(v)

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{
		Env:      v.GetString("APP_ENV"),
		LogLevel: v.GetString("LOG_LEVEL"),
		Server: ServerConfig{
			Host:            v.GetString("SERVER_HOST"),
			Port:            v.GetInt("SERVER_PORT"),
			AllowedOrigins:  strings.Split(v.GetString("ALLOWED_ORIGINS"), ","),
			ShutdownTimeout: time.Duration(v.GetInt("SERVER_SHUTDOWN_TIMEOUT_SECONDS")) * time.Second,
		},
		Database: DatabaseConfig{
			Host:         v.GetString("DB_HOST"),
			Port:         v.GetInt("DB_PORT"),
			User:         v.GetString("DB_USER"),
			Password:     v.GetString("DB_PASSWORD"),
			Database:     v.GetString("DB_NAME"),
			SSLMode:      v.GetString("DB_SSLMODE"),
			MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
			MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
		},
		Redis: RedisConfig{
			Host:            v.GetString("REDIS_HOST"),
			Port:            v.GetInt("REDIS_PORT"),
			Password:        v.GetString("REDIS_PASSWORD"),
			DB:              v.GetInt("REDIS_DB"),
			PoolSize:        v.GetInt("REDIS_POOL_SIZE"),
			ConnectAttempts: v.GetInt("REDIS_CONNECT_ATTEMPTS"),
		},
		LLM: LLMConfig{
			ProviderOrder:   splitList(v.GetString("LLM_PROVIDER_ORDER")),
			Timeout:         time.Duration(v.GetInt("LLM_TIMEOUT_MS")) * time.Millisecond,
			MaxTokens:       v.GetInt("LLM_MAX_TOKENS"),
			Temperature:     v.GetFloat64("LLM_TEMPERATURE"),
			BreakerFailures: v.GetUint32("LLM_BREAKER_FAILURES"),
			BreakerCooldown: time.Duration(v.GetInt("LLM_BREAKER_COOLDOWN_SECONDS")) * time.Second,
			Anthropic:       providerConfig(v, "ANTHROPIC"),
			Grok:            providerConfig(v, "GROK"),
			OpenAI:          providerConfig(v, "OPENAI"),
		},
		Validation: ValidationConfig{
			WordLimit:           v.GetInt("VALIDATION_WORD_LIMIT"),
			OverrideMinAttempts: v.GetInt("VALIDATION_OVERRIDE_MIN_ATTEMPTS"),
			TemplatesFile:       v.GetString("VALIDATION_TEMPLATES_FILE"),
			ReferenceCacheTTL:   time.Duration(v.GetInt("VALIDATION_REFERENCE_CACHE_TTL_SECONDS")) * time.Second,
			ReferenceLimit:      v.GetInt("VALIDATION_REFERENCE_LIMIT"),
		},
		OTEL: OTELConfig{
			ServiceName:    v.GetString("OTEL_SERVICE_NAME"),
			ServiceVersion: v.GetString("OTEL_SERVICE_VERSION"),
			Endpoint:       v.GetString("OTEL_ENDPOINT"),
			Enabled:        v.GetBool("OTEL_ENABLED"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_PORT", 8080)
	v.SetDefault("ALLOWED_ORIGINS", "*")
	v.SetDefault("SERVER_SHUTDOWN_TIMEOUT_SECONDS", 15)
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "")
	v.SetDefault("DB_NAME", "radiology_orders")
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 25)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_POOL_SIZE", 20)
	v.SetDefault("REDIS_CONNECT_ATTEMPTS", 3)
	v.SetDefault("LLM_PROVIDER_ORDER", "anthropic,grok,openai")
	v.SetDefault("LLM_TIMEOUT_MS", 30000)
	v.SetDefault("LLM_MAX_TOKENS", 4000)
	v.SetDefault("LLM_TEMPERATURE", 0.2)
	v.SetDefault("LLM_BREAKER_FAILURES", 5)
	v.SetDefault("LLM_BREAKER_COOLDOWN_SECONDS", 30)
	v.SetDefault("ANTHROPIC_MODEL", "claude-3-7-sonnet-20250219")
	v.SetDefault("GROK_MODEL", "grok-3")
	v.SetDefault("GROK_BASE_URL", "https://api.x.ai/v1")
	v.SetDefault("OPENAI_MODEL", "gpt-4o-mini")
	v.SetDefault("OPENAI_BASE_URL", "https://api.openai.com/v1")
	v.SetDefault("VALIDATION_WORD_LIMIT", 500)
	v.SetDefault("VALIDATION_OVERRIDE_MIN_ATTEMPTS", 3)
	v.SetDefault("VALIDATION_TEMPLATES_FILE", "")
	v.SetDefault("VALIDATION_REFERENCE_CACHE_TTL_SECONDS", 3600)
	v.SetDefault("VALIDATION_REFERENCE_LIMIT", 20)
	v.SetDefault("OTEL_SERVICE_NAME", "radiology-order-intake")
	v.SetDefault("OTEL_SERVICE_VERSION", "1.0.0")
	v.SetDefault("OTEL_ENDPOINT", "")
	v.SetDefault("OTEL_ENABLED", false)
}

// providerConfig reads <PREFIX>_API_KEY, <PREFIX>_MODEL and friends.
func providerConfig(v *viper.Viper, prefix string) ProviderConfig {
	return ProviderConfig{
		APIKey:         v.GetString(prefix + "_API_KEY"),
		Model:          v.GetString(prefix + "_MODEL"),
		BaseURL:        v.GetString(prefix + "_BASE_URL"),
		RateLimitRPM:   v.GetInt(prefix + "_RATE_LIMIT_RPM"),
		RateLimitBurst: v.GetInt(prefix + "_RATE_LIMIT_BURST"),
	}
}

func (c *Config) validate() error {
	if len(c.LLM.ProviderOrder) == 0 {
		return fmt.Errorf("LLM_PROVIDER_ORDER must name at least one provider")
	}
	if c.LLM.Timeout <= 0 {
		return fmt.Errorf("LLM_TIMEOUT_MS must be positive")
	}
	if c.Validation.OverrideMinAttempts < 1 {
		return fmt.Errorf("VALIDATION_OVERRIDE_MIN_ATTEMPTS must be at least 1")
	}
	return nil
}

// DatabaseDSN returns the PostgreSQL connection string
func (c *DatabaseConfig) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// RedisAddr returns the Redis address
func (c *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
