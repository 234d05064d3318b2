// Package config provides application configuration loading and management.
package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds application configuration values loaded from file or environment variables.
type Config struct {
	JWTSecret      string `mapstructure:"JWT_SECRET"`
	Port           string `mapstructure:"PORT"`
	DBHost         string `mapstructure:"DB_HOST"`
	DBPort         string `mapstructure:"DB_PORT"`
	DBUser         string `mapstructure:"DB_USER"`
	DBPassword     string `mapstructure:"DB_PASSWORD"`
	DBName         string `mapstructure:"DB_NAME"`
	DBSSLMode      string `mapstructure:"DB_SSLMODE"`
	DBSchemaMode   string `mapstructure:"DB_SCHEMA_MODE"`
	RedisURL       string `mapstructure:"REDIS_URL"`
	AllowedOrigins string `mapstructure:"ALLOWED_ORIGINS"`
	FeatureFlags   string `mapstructure:"FEATURE_FLAGS"`
	Env            string `mapstructure:"APP_ENV"`

	// Conversion prompt policy.
	ConversionSoftThreshold   int           `mapstructure:"CONVERSION_SOFT_THRESHOLD"`
	ConversionStrongThreshold int           `mapstructure:"CONVERSION_STRONG_THRESHOLD"`
	ConversionPromptCooldown  time.Duration `mapstructure:"CONVERSION_PROMPT_COOLDOWN"`
	ConversionDismissLimit    int           `mapstructure:"CONVERSION_DISMISS_LIMIT"`

	ReactionRateLimit       int           `mapstructure:"REACTION_RATE_LIMIT"`
	ReactionRateLimitWindow time.Duration `mapstructure:"REACTION_RATE_LIMIT_WINDOW"`

	PostExpiryInterval time.Duration `mapstructure:"POST_EXPIRY_INTERVAL"`

	EventsBreakerMaxFailures uint32        `mapstructure:"EVENTS_BREAKER_MAX_FAILURES"`
	EventsBreakerTimeout     time.Duration `mapstructure:"EVENTS_BREAKER_TIMEOUT"`

	TracingEnabled      bool    `mapstructure:"TRACING_ENABLED"`
	TracingExporter     string  `mapstructure:"TRACING_EXPORTER"`
	TracingOTLPEndpoint string  `mapstructure:"TRACING_OTLP_ENDPOINT"`
	TracingSampleRatio  float64 `mapstructure:"TRACING_SAMPLE_RATIO"`
}

// LoadConfig loads application configuration from file and environment variables.
func LoadConfig() (*Config, error) {
	// A local .env is optional; real environment variables always win.
	_ = godotenv.Load()

	viper.AddConfigPath(".")
	viper.AddConfigPath("..")
	viper.AddConfigPath("../..")
	viper.SetConfigName("config")
	viper.SetConfigType("yml")
	viper.AutomaticEnv()

	// Initial read to get APP_ENV if set in base config
	// We intentionally ignore this error as the config file may not exist yet
	_ = viper.ReadInConfig()

	env := viper.GetString("APP_ENV")
	if env == "" {
		env = "development"
	}

	if env != "development" && env != "test" {
		viper.SetConfigName("config." + env)
		if err := viper.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("required profile-specific config 'config.%s.yml' not found: %w", env, err)
		}
		log.Printf("Loaded profile-specific configuration: config.%s.yml", env)
	}

	setDefaults()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}
	config.DBSSLMode = strings.ToLower(strings.TrimSpace(config.DBSSLMode))

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("PORT", "8390")
	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", "5432")
	viper.SetDefault("DB_USER", "user")
	viper.SetDefault("DB_PASSWORD", "password")
	viper.SetDefault("DB_NAME", "rally")
	viper.SetDefault("DB_SSLMODE", "disable")
	viper.SetDefault("DB_SCHEMA_MODE", "hybrid")
	viper.SetDefault("REDIS_URL", "localhost:6379")
	viper.SetDefault("JWT_SECRET", "your-secret-key-change-in-production")
	viper.SetDefault("ALLOWED_ORIGINS", "http://localhost:5173,http://localhost:3000")
	viper.SetDefault("FEATURE_FLAGS", "conversion_prompts=on")
	viper.SetDefault("APP_ENV", "development")

	viper.SetDefault("CONVERSION_SOFT_THRESHOLD", 5)
	viper.SetDefault("CONVERSION_STRONG_THRESHOLD", 10)
	viper.SetDefault("CONVERSION_PROMPT_COOLDOWN", "24h")
	viper.SetDefault("CONVERSION_DISMISS_LIMIT", 3)

	viper.SetDefault("REACTION_RATE_LIMIT", 60)
	viper.SetDefault("REACTION_RATE_LIMIT_WINDOW", "1m")

	viper.SetDefault("POST_EXPIRY_INTERVAL", "1m")

	viper.SetDefault("EVENTS_BREAKER_MAX_FAILURES", 5)
	viper.SetDefault("EVENTS_BREAKER_TIMEOUT", "30s")

	viper.SetDefault("TRACING_ENABLED", false)
	viper.SetDefault("TRACING_EXPORTER", "stdout")
	viper.SetDefault("TRACING_OTLP_ENDPOINT", "localhost:4318")
	viper.SetDefault("TRACING_SAMPLE_RATIO", 1.0)
}

// IsProduction reports whether the config targets a production environment.
func (c *Config) IsProduction() bool {
	return c.Env == "production" || c.Env == "prod"
}

// Validate ensures that required configuration values are present and meet security standards.
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("PORT is required")
	}
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}

	if c.ConversionSoftThreshold < 1 {
		return errors.New("CONVERSION_SOFT_THRESHOLD must be at least 1")
	}
	if c.ConversionStrongThreshold < c.ConversionSoftThreshold {
		return errors.New("CONVERSION_STRONG_THRESHOLD must not be below CONVERSION_SOFT_THRESHOLD")
	}
	if c.ConversionDismissLimit < 1 {
		return errors.New("CONVERSION_DISMISS_LIMIT must be at least 1")
	}
	if c.ConversionPromptCooldown < 0 {
		return errors.New("CONVERSION_PROMPT_COOLDOWN must not be negative")
	}

	// Strict checks for production
	if c.IsProduction() {
		if c.JWTSecret == "your-secret-key-change-in-production" {
			return errors.New("JWT_SECRET must be changed from the default value in production")
		}
		if len(c.JWTSecret) < 32 {
			return errors.New("JWT_SECRET must be at least 32 characters in production")
		}
		if c.DBPassword == "password" || c.DBPassword == "" {
			return errors.New("a strong DB_PASSWORD is required in production")
		}
		if c.DBSSLMode == "disable" || c.DBSSLMode == "" {
			return errors.New("DB_SSLMODE must enable SSL in production")
		}
		if c.AllowedOrigins == "*" {
			log.Println("WARNING: ALLOWED_ORIGINS is set to '*' in production. This is insecure.")
		}
	} else if len(c.JWTSecret) < 32 {
		log.Println("WARNING: JWT_SECRET is shorter than 32 characters. Consider using a stronger secret for production.")
	}

	return nil
}
