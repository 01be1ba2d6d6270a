package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv      string
	Port        string
	DatabaseURL string
	JWTSecret   string

	// AuthBridgeSecret signs the identity assertions the web frontend
	// exchanges for API sessions.
	AuthBridgeSecret string

	StripeSecretKey     string
	StripeWebhookSecret string
	// StripeCreditPackPriceID maps to a fixed grant of CreditPackCredits
	// when it shows up on a completed checkout session.
	StripeCreditPackPriceID string
	CreditPackCredits       int64

	HeygenAPIKey        string
	HeygenBaseURL       string
	HeygenWebhookSecret string

	// CreditPriceUSDCents is the revenue value of one credit; the checkout
	// fallback mapping (floor(amount_total_cents/100)) assumes 100.
	CreditPriceUSDCents int64
	// HeygenCostUSDCentsPerCredit prices vendor consumption for margin
	// reporting.
	HeygenCostUSDCentsPerCredit int64

	CheckoutSuccessURL string
	CheckoutCancelURL  string

	GeoIPDBPath string

	WorkerSweepInterval time.Duration
	WorkerStaleAfter    time.Duration

	DBMaxConns int32

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	RateLimitPerMin  int
	AllowedOrigins   []string
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:           getEnv("APP_ENV", "development"),
		Port:             getEnv("PORT", "8080"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		JWTSecret:        os.Getenv("JWT_SECRET"),
		AuthBridgeSecret: os.Getenv("AUTH_BRIDGE_SECRET"),

		StripeSecretKey:         os.Getenv("STRIPE_SECRET_KEY"),
		StripeWebhookSecret:     os.Getenv("STRIPE_WEBHOOK_SECRET"),
		StripeCreditPackPriceID: os.Getenv("STRIPE_CREDIT_PACK_PRICE_ID"),
		CreditPackCredits:       int64(getEnvInt("CREDIT_PACK_CREDITS", 100)),

		HeygenAPIKey:        os.Getenv("HEYGEN_API_KEY"),
		HeygenBaseURL:       getEnv("HEYGEN_BASE_URL", "https://api.heygen.com"),
		HeygenWebhookSecret: os.Getenv("HEYGEN_WEBHOOK_SECRET"),

		CreditPriceUSDCents:         int64(getEnvInt("CREDIT_PRICE_USD_CENTS", 100)),
		HeygenCostUSDCentsPerCredit: int64(getEnvInt("HEYGEN_COST_USD_CENTS_PER_CREDIT", 50)),

		CheckoutSuccessURL: getEnv("CHECKOUT_SUCCESS_URL", "http://localhost:3000/credits?status=success"),
		CheckoutCancelURL:  getEnv("CHECKOUT_CANCEL_URL", "http://localhost:3000/credits?status=cancelled"),

		GeoIPDBPath: os.Getenv("GEOIP_DB_PATH"),

		WorkerSweepInterval: time.Second * time.Duration(getEnvInt("WORKER_SWEEP_INTERVAL_SECONDS", 60)),
		WorkerStaleAfter:    time.Minute * time.Duration(getEnvInt("WORKER_STALE_AFTER_MINUTES", 10)),

		DBMaxConns: int32(getEnvInt("DB_MAX_CONNS", 10)),

		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:  getEnvInt("RATE_LIMIT_PER_MINUTE", 60),
		AllowedOrigins:   splitCSV(getEnv("ALLOWED_ORIGINS", "http://localhost:3000")),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func splitCSV(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
