package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	AppEnv         string `validate:"required,oneof=dev test staging prod"`
	HTTPAddr       string `validate:"required"`
	MigrationsPath string
	LogLevel       string `validate:"omitempty,oneof=trace debug info warn error"`

	// Hosted Postgres convenience:
	// - DATABASE_URL: runtime connection (often PgBouncer/pooler)
	// - DIRECT_URL: direct connection for migrations
	DatabaseURL string
	DirectURL   string

	// PublicBaseURL is the externally reachable URL for this backend (required for webhook registration).
	// Example: https://your-ngrok-subdomain.ngrok-free.app
	PublicBaseURL string `validate:"omitempty,url"`

	DB DBConfig

	Shopify ShopifyConfig

	Session SessionConfig

	Redis RedisConfig

	// AllowedOrigins is the CORS allowlist for the embedded auth-check API.
	// Empty means any origin (the endpoint carries no cookies cross-site).
	AllowedOrigins []string
}

type DBConfig struct {
	Host     string
	Port     string
	Name     string
	User     string
	Password string
	SSLMode  string
}

type ShopifyConfig struct {
	APIKey      string `validate:"required"`
	APISecret   string `validate:"required"`
	Scopes      string
	RedirectURL string `validate:"omitempty,url"`

	// WebhookSecret defaults to APISecret; Shopify signs app webhooks with the client secret.
	WebhookSecret string

	APIVersion string `validate:"required"`

	// ShopDomainSuffix and AdminHost describe the hosted-shop namespace.
	ShopDomainSuffix string `validate:"required,startswith=."`
	AdminHost        string `validate:"required"`

	// StrictOAuthState turns a callback state/nonce mismatch into a hard failure.
	StrictOAuthState bool

	// VerifySessionTokenSignature checks the HS256 signature of embedded session tokens.
	VerifySessionTokenSignature bool

	TokenExchangeTimeout   time.Duration `validate:"gt=0"`
	WebhookRegisterTimeout time.Duration `validate:"gt=0"`
}

type SessionConfig struct {
	// Store selects the session backend: "memory" or "redis".
	Store      string        `validate:"oneof=memory redis"`
	CookieName string        `validate:"required"`
	Secret     string        `validate:"required,min=16"`
	TTL        time.Duration `validate:"gt=0"`
	Secure     bool
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int `validate:"gte=0"`
}

// HasDatabase reports whether a Postgres connection is configured.
func (c Config) HasDatabase() bool {
	return strings.TrimSpace(c.DatabaseURL) != "" || strings.TrimSpace(c.DB.Host) != ""
}

func (c Config) IsProd() bool { return c.AppEnv == "prod" }

func Load() Config {
	// Convenience for local dev: load variables from .env if present.
	// In production, rely on real environment variables.
	_ = godotenv.Load()

	// Cloud Run sets PORT. Prefer it when HTTP_ADDR isn't explicitly set.
	httpAddr := os.Getenv("HTTP_ADDR")
	if httpAddr == "" {
		if port := os.Getenv("PORT"); port != "" {
			httpAddr = ":" + port
		} else {
			httpAddr = ":8081"
		}
	}

	apiSecret := os.Getenv("SHOPIFY_API_SECRET")
	appEnv := env("APP_ENV", "dev")

	return Config{
		AppEnv:         appEnv,
		HTTPAddr:       httpAddr,
		MigrationsPath: os.Getenv("MIGRATIONS_PATH"),
		LogLevel:       env("LOG_LEVEL", "info"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		DirectURL:      os.Getenv("DIRECT_URL"),
		PublicBaseURL:  os.Getenv("PUBLIC_BASE_URL"),
		DB: DBConfig{
			Host:     os.Getenv("DB_HOST"),
			Port:     env("DB_PORT", "5432"),
			Name:     env("DB_NAME", "shoppulse"),
			User:     env("DB_USER", "shoppulse"),
			Password: env("DB_PASSWORD", "shoppulse"),
			SSLMode:  env("DB_SSLMODE", "disable"),
		},
		Shopify: ShopifyConfig{
			APIKey:                      os.Getenv("SHOPIFY_API_KEY"),
			APISecret:                   apiSecret,
			Scopes:                      os.Getenv("SHOPIFY_SCOPES"),
			RedirectURL:                 os.Getenv("SHOPIFY_REDIRECT_URL"),
			WebhookSecret:               env("SHOPIFY_WEBHOOK_SECRET", apiSecret),
			APIVersion:                  env("SHOPIFY_API_VERSION", "2025-10"),
			ShopDomainSuffix:            env("SHOPIFY_SHOP_DOMAIN_SUFFIX", ".myshopify.com"),
			AdminHost:                   env("SHOPIFY_ADMIN_HOST", "admin.shopify.com"),
			StrictOAuthState:            envBool("SHOPIFY_STRICT_OAUTH_STATE", false),
			VerifySessionTokenSignature: envBool("SHOPIFY_VERIFY_SESSION_SIGNATURE", false),
			TokenExchangeTimeout:        envDuration("SHOPIFY_TOKEN_EXCHANGE_TIMEOUT", 10*time.Second),
			WebhookRegisterTimeout:      envDuration("SHOPIFY_WEBHOOK_REGISTER_TIMEOUT", 10*time.Second),
		},
		Session: SessionConfig{
			Store:      env("SESSION_STORE", "memory"),
			CookieName: env("SESSION_COOKIE_NAME", "shoppulse_session"),
			Secret:     os.Getenv("SESSION_SECRET"),
			TTL:        envDuration("SESSION_TTL", 24*time.Hour),
			Secure:     envBool("SESSION_COOKIE_SECURE", appEnv == "prod"),
		},
		Redis: RedisConfig{
			Addr:     env("REDIS_ADDR", "localhost:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       envInt("REDIS_DB", 0),
		},
		AllowedOrigins: envList("CORS_ALLOWED_ORIGINS", ""),
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the loaded configuration before any listener starts.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Session.Store == "redis" && strings.TrimSpace(c.Redis.Addr) == "" {
		return fmt.Errorf("invalid config: REDIS_ADDR is required when SESSION_STORE=redis")
	}
	return nil
}

func env(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func envBool(key string, fallback bool) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return fallback
	}
	return v
}

func envInt(key string, fallback int) int {
	v, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return fallback
	}
	return v
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v, err := time.ParseDuration(strings.TrimSpace(os.Getenv(key)))
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

func envList(key, fallbackCSV string) []string {
	v := os.Getenv(key)
	if v == "" {
		v = fallbackCSV
	}
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
