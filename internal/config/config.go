package config

import (
	"fmt"
	"log"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Port          string   `mapstructure:"PORT"`
	Env           string   `mapstructure:"ENV"`
	DatabaseURL   string   `mapstructure:"DATABASE_URL"`
	DBMaxConns    int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns    int32    `mapstructure:"DB_MIN_CONNS"`
	RedisURL      string   `mapstructure:"REDIS_URL"`
	AuthIssuer    string   `mapstructure:"AUTH_ISSUER"`
	AuthJWKSURL   string   `mapstructure:"AUTH_JWKS_URL"`
	AuthAudience  string   `mapstructure:"AUTH_AUDIENCE"`
	CORSOrigins   []string `mapstructure:"CORS_ORIGINS"`
	BlobBackend   string   `mapstructure:"BLOB_BACKEND"`
	BlobBucket    string   `mapstructure:"BLOB_BUCKET"`
	BlobRegion    string   `mapstructure:"BLOB_REGION"`
	AIAPIKey      string   `mapstructure:"AI_API_KEY"`
	AIBaseURL     string   `mapstructure:"AI_BASE_URL"`
	AIModel       string   `mapstructure:"AI_MODEL"`
	SignedURLTTL  int      `mapstructure:"SIGNED_URL_TTL_SECONDS"`
	MigrationsDir string   `mapstructure:"MIGRATIONS_DIR"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("BLOB_BACKEND", "memory")
	v.SetDefault("AI_MODEL", "gpt-4-turbo-preview")
	v.SetDefault("SIGNED_URL_TTL_SECONDS", 900)
	v.SetDefault("MIGRATIONS_DIR", "./migrations")

	// Bind env vars explicitly so Unmarshal picks them up
	for _, key := range []string{
		"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
		"REDIS_URL", "AUTH_ISSUER", "AUTH_JWKS_URL", "AUTH_AUDIENCE",
		"CORS_ORIGINS", "BLOB_BACKEND", "BLOB_BUCKET", "BLOB_REGION",
		"AI_API_KEY", "AI_BASE_URL", "AI_MODEL", "SIGNED_URL_TTL_SECONDS",
		"MIGRATIONS_DIR",
	} {
		v.BindEnv(key)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.IsDev() {
		log.Println("WARNING: server is running in DEVELOPMENT mode (ENV=development).")
		log.Println("WARNING: unauthenticated requests are accepted with a default user.")
		log.Println("WARNING: set ENV=production and configure AUTH_ISSUER for production.")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate checks that the configuration is safe to run. In production,
// real JWT authentication must be configured and the blob backend must be
// durable storage, not the in-memory store.
func (c *Config) Validate() error {
	if c.IsProduction() && c.AuthIssuer == "" {
		return fmt.Errorf("AUTH_ISSUER is required in production; refusing to start without authentication")
	}

	switch c.BlobBackend {
	case "memory", "s3":
	default:
		return fmt.Errorf("BLOB_BACKEND must be \"memory\" or \"s3\", got %q", c.BlobBackend)
	}
	if c.BlobBackend == "s3" && c.BlobBucket == "" {
		return fmt.Errorf("BLOB_BUCKET is required when BLOB_BACKEND is \"s3\"")
	}
	if c.IsProduction() && c.BlobBackend == "memory" {
		return fmt.Errorf("BLOB_BACKEND=memory is not durable and cannot be used in production")
	}

	if c.IsProduction() && c.AIAPIKey == "" {
		return fmt.Errorf("AI_API_KEY is required in production")
	}

	if c.SignedURLTTL <= 0 {
		return fmt.Errorf("SIGNED_URL_TTL_SECONDS must be positive, got %d", c.SignedURLTTL)
	}

	return nil
}
