package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	StripeMetadataUserID   = "userId"
	StripeMetadataPlanName = "planName"
)

type Config struct {
	ServerAddr     string
	AllowedOrigins []string
	LogLevel       string
	LogFormat      string

	DatabaseURL     string
	AutoMigrate     bool
	DBMaxOpenConns  int
	DBMaxIdleConns  int
	RedisURL        string
	RateLimitPerMin int

	Ledger  LedgerConfig
	Billing BillingConfig
	AI      AIConfig
	Auth    AuthConfig

	UsageResetSchedule string
	ShutdownTimeout    time.Duration
}

type LedgerConfig struct {
	StoreTimeout        time.Duration
	MaxIncrementRetries int
}

type BillingConfig struct {
	StripeSecretKey     string
	StripeWebhookSecret string
	SuccessURL          string
	CancelURL           string
	ProviderTimeout     time.Duration
	WebhookTolerance    time.Duration
	DedupTTL            time.Duration
	PriceBasic          string
	PricePremium        string
	PricePremiumPlus    string
}

type AIConfig struct {
	GeminiAPIKey         string
	Model                string
	MaxOutputTokens      int
	Timeout              time.Duration
	MaxJobDescriptionLen int
}

type AuthConfig struct {
	JWKSURL  string
	Issuer   string
	Audience string
}

func Load() *Config {
	feBaseURL := strings.TrimRight(getEnv("FE_BASE_URL", "http://localhost:5173"), "/")
	return &Config{
		ServerAddr:      getEnv("SERVER_ADDR", ":3000"),
		AllowedOrigins:  getEnvList("ALLOWED_ORIGINS", []string{feBaseURL}),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		LogFormat:       getEnv("LOG_FORMAT", "json"),
		DatabaseURL:     getEnv("DATABASE_URL", ""),
		AutoMigrate:     getEnvBool("AUTO_MIGRATE", false),
		DBMaxOpenConns:  getEnvInt("DB_MAX_OPEN_CONNS", 10),
		DBMaxIdleConns:  getEnvInt("DB_MAX_IDLE_CONNS", 2),
		RedisURL:        getEnv("REDIS_URL", ""),
		RateLimitPerMin: getEnvInt("RATE_LIMIT_PER_MINUTE", 20),
		Ledger: LedgerConfig{
			StoreTimeout:        getEnvDuration("STORE_TIMEOUT", 5*time.Second),
			MaxIncrementRetries: getEnvInt("MAX_INCREMENT_RETRIES", 5),
		},
		Billing: BillingConfig{
			StripeSecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
			StripeWebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
			SuccessURL:          getEnv("STRIPE_SUCCESS_URL", feBaseURL+"/success?session_id={CHECKOUT_SESSION_ID}"),
			CancelURL:           getEnv("STRIPE_CANCEL_URL", feBaseURL+"/pricing"),
			ProviderTimeout:     getEnvDuration("STRIPE_TIMEOUT", 10*time.Second),
			WebhookTolerance:    getEnvDuration("STRIPE_WEBHOOK_TOLERANCE", 5*time.Minute),
			DedupTTL:            getEnvDuration("WEBHOOK_DEDUP_TTL", 72*time.Hour),
			PriceBasic:          getEnv("STRIPE_PRICE_BASIC", ""),
			PricePremium:        getEnv("STRIPE_PRICE_PREMIUM", ""),
			PricePremiumPlus:    getEnv("STRIPE_PRICE_PREMIUM_PLUS", ""),
		},
		AI: AIConfig{
			GeminiAPIKey:         getEnv("GEMINI_API_KEY", ""),
			Model:                getEnv("AI_MODEL", "gemini-2.5-flash"),
			MaxOutputTokens:      getEnvInt("AI_MAX_OUTPUT_TOKENS", 2048),
			Timeout:              getEnvDuration("AI_TIMEOUT", 60*time.Second),
			MaxJobDescriptionLen: getEnvInt("MAX_JOB_DESCRIPTION_LENGTH", 20000),
		},
		Auth: AuthConfig{
			JWKSURL:  getEnv("AUTH_JWKS_URL", ""),
			Issuer:   getEnv("AUTH_ISSUER", ""),
			Audience: getEnv("AUTH_AUDIENCE", ""),
		},
		UsageResetSchedule: getEnv("USAGE_RESET_SCHEDULE", ""),
		ShutdownTimeout:    getEnvDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
	}
}

// Validate reports missing settings the server cannot start without.
func (c *Config) Validate() error {
	var errs []error
	if c.Billing.StripeSecretKey == "" {
		errs = append(errs, errors.New("STRIPE_SECRET_KEY is required"))
	}
	if c.Billing.StripeWebhookSecret == "" {
		errs = append(errs, errors.New("STRIPE_WEBHOOK_SECRET is required"))
	}
	if c.Auth.JWKSURL == "" {
		errs = append(errs, errors.New("AUTH_JWKS_URL is required"))
	}
	if c.AI.GeminiAPIKey == "" {
		errs = append(errs, errors.New("GEMINI_API_KEY is required"))
	}
	if c.Ledger.MaxIncrementRetries < 1 {
		errs = append(errs, errors.New("MAX_INCREMENT_RETRIES must be at least 1"))
	}
	return errors.Join(errs...)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
