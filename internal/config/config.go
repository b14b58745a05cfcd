package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Rate sources for display -> settlement currency conversion.
const (
	RateSourceFixed = "fixed"
	RateSourceLive  = "live"
)

type Config struct {
	HTTPAddr string
	RunLocal bool

	// AWS_REGION and AWS_ENDPOINT_OVERRIDE are read by the aws package.

	OrdersTable      string
	OrdersUserIndex  string
	ProductsTable    string
	CartsTable       string
	IdempotencyTable string
	IdempotencyTTL   time.Duration
	// IN_PROGRESS records untouched for longer than this may be reclaimed.
	IdempotencyLease time.Duration

	// Empty disables lifecycle events.
	OrdersQueueURL   string
	MetricsNamespace string

	PayPalBaseURL      string
	PayPalClientID     string
	PayPalClientSecret string
	PayPalReturnURL    string
	PayPalCancelURL    string
	PayPalTimeout      time.Duration

	RateSource         string
	FixedRate          decimal.Decimal
	RateURL            string
	RateTTL            time.Duration
	DisplayCurrency    string
	SettlementCurrency string

	LogLevel  string
	LogFormat string
}

// Load reads the configuration from the environment, applying defaults.
func Load() (Config, error) {
	cfg := Config{
		HTTPAddr: getenv("HTTP_ADDR", ":8080"),
		RunLocal: getenv("RUN_LOCAL", "") == "true",

		OrdersTable:      getenv("ORDERS_TABLE", "orders"),
		OrdersUserIndex:  getenv("ORDERS_USER_INDEX", "user_id-index"),
		ProductsTable:    getenv("PRODUCTS_TABLE", "products"),
		CartsTable:       getenv("CARTS_TABLE", "carts"),
		IdempotencyTable: getenv("IDEMPOTENCY_TABLE", "idempotency"),

		OrdersQueueURL:   getenv("ORDERS_QUEUE_URL", ""),
		MetricsNamespace: getenv("METRICS_NAMESPACE", "Storefront/Orders"),

		PayPalBaseURL:      getenv("PAYPAL_BASE_URL", "https://api-m.sandbox.paypal.com"),
		PayPalClientID:     getenv("PAYPAL_CLIENT_ID", ""),
		PayPalClientSecret: getenv("PAYPAL_CLIENT_SECRET", ""),
		PayPalReturnURL:    getenv("PAYPAL_RETURN_URL", "http://localhost:5173/shop/paypal-return"),
		PayPalCancelURL:    getenv("PAYPAL_CANCEL_URL", "http://localhost:5173/shop/paypal-cancel"),

		RateSource:         strings.ToLower(getenv("CURRENCY_RATE_SOURCE", RateSourceFixed)),
		RateURL:            getenv("CURRENCY_RATE_URL", ""),
		DisplayCurrency:    getenv("DISPLAY_CURRENCY", "INR"),
		SettlementCurrency: getenv("SETTLEMENT_CURRENCY", "USD"),

		LogLevel:  getenv("LOG_LEVEL", "info"),
		LogFormat: getenv("LOG_FORMAT", "json"),
	}

	var err error
	if cfg.IdempotencyTTL, err = durationEnv("IDEMPOTENCY_TTL", 48*time.Hour); err != nil {
		return Config{}, err
	}
	if cfg.IdempotencyLease, err = durationEnv("IDEMPOTENCY_LEASE", time.Minute); err != nil {
		return Config{}, err
	}
	if cfg.PayPalTimeout, err = durationEnv("PAYPAL_TIMEOUT", 15*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.RateTTL, err = durationEnv("CURRENCY_RATE_TTL", time.Hour); err != nil {
		return Config{}, err
	}

	rate := getenv("CURRENCY_FIXED_RATE", "83")
	if cfg.FixedRate, err = decimal.NewFromString(rate); err != nil {
		return Config{}, fmt.Errorf("CURRENCY_FIXED_RATE: invalid decimal %q", rate)
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.RateSource {
	case RateSourceFixed:
		if !c.FixedRate.IsPositive() {
			return fmt.Errorf("CURRENCY_FIXED_RATE must be positive, got %s", c.FixedRate)
		}
	case RateSourceLive:
		if c.RateURL == "" {
			return fmt.Errorf("CURRENCY_RATE_URL is required when CURRENCY_RATE_SOURCE=%s", RateSourceLive)
		}
	default:
		return fmt.Errorf("CURRENCY_RATE_SOURCE must be %q or %q, got %q", RateSourceFixed, RateSourceLive, c.RateSource)
	}
	if c.PayPalTimeout <= 0 {
		return fmt.Errorf("PAYPAL_TIMEOUT must be positive")
	}
	if c.IdempotencyLease < 0 {
		return fmt.Errorf("IDEMPOTENCY_LEASE must not be negative")
	}
	return nil
}

// ValidateGateway checks the PayPal settings the API needs to create payments. Empty credentials
// are tolerated only with RUN_LOCAL, where /health and the order reads work without PayPal.
func (c Config) ValidateGateway() error {
	if c.RunLocal {
		return nil
	}
	var missing []string
	if strings.TrimSpace(c.PayPalClientID) == "" {
		missing = append(missing, "PAYPAL_CLIENT_ID")
	}
	if strings.TrimSpace(c.PayPalClientSecret) == "" {
		missing = append(missing, "PAYPAL_CLIENT_SECRET")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%s required", strings.Join(missing, " and "))
	}
	return nil
}

func getenv(k, def string) string {
	if v := os.Getenv(k); strings.TrimSpace(v) != "" {
		return v
	}
	return def
}

func durationEnv(k string, def time.Duration) (time.Duration, error) {
	v := getenv(k, "")
	if v == "" {
		return def, nil
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d, nil
	}
	// bare seconds
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	return 0, fmt.Errorf("%s: invalid duration %q", k, v)
}
