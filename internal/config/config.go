package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Config holds all configuration for the spsync server. Values come from
// environment variables and are validated once at load time; business logic
// never re-interprets raw settings.
type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	Marketplace MarketplaceConfig
	Pricing     PricingConfig
	Feeds       FeedConfig
}

type ServerConfig struct {
	Port int
	Env  string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

// MarketplaceConfig identifies the selling-partner endpoint and credentials.
// With Simulate on, no credential is required and no network call is made.
type MarketplaceConfig struct {
	Endpoint      string
	TokenURL      string
	MarketplaceID string
	SellerID      string
	Region        string
	Simulate      bool
	Timeout       time.Duration

	ClientID     string
	ClientSecret string
	RefreshToken string
	AccessKey    string
	SecretKey    string
}

// MarginTier maps an inclusive upper cost bound to a minimum margin.
type MarginTier struct {
	MaxCost decimal.Decimal
	Margin  decimal.Decimal
}

// PricingConfig drives the floor/recommend computations. All rates are
// fractions (0.21 = 21%).
type PricingConfig struct {
	VATRate          decimal.Decimal
	FeeRate          decimal.Decimal
	FeeSurchargeRate decimal.Decimal
	ShippingCost     decimal.Decimal
	FixedSurcharge   decimal.Decimal
	UndercutStep     decimal.Decimal
	DefaultMargin    decimal.Decimal
	Tiers            []MarginTier
	Rounding         string // "" for plain 2dp, ".99" for charm rounding
	MinAbsFloor      decimal.Decimal
	MaxPriceCap      decimal.Decimal // zero means no cap
	Currency         string
}

type FeedConfig struct {
	PollInterval       time.Duration
	PollDeadline       time.Duration
	ReportPollInterval time.Duration
	ReportPollDeadline time.Duration
	DataDir            string
}

// Load reads configuration from environment variables and returns a validated
// Config. Returns an error with a descriptive message if any required value
// is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: envInt("SPSYNC_PORT", 8080),
			Env:  envString("SPSYNC_ENV", "development"),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Marketplace: MarketplaceConfig{
			Endpoint:      envString("SPAPI_ENDPOINT", "https://sellingpartnerapi-eu.amazon.com"),
			TokenURL:      envString("LWA_TOKEN_URL", "https://api.amazon.com/auth/o2/token"),
			MarketplaceID: envString("MARKETPLACE_ID", "A1RKKUPIHCS9HS"),
			SellerID:      os.Getenv("SELLER_ID"),
			Region:        envString("AWS_REGION", "eu-west-1"),
			Simulate:      envBool("SPAPI_SIMULATE", true),
			Timeout:       envDuration("SPAPI_TIMEOUT", 60*time.Second),
			ClientID:      os.Getenv("LWA_CLIENT_ID"),
			ClientSecret:  os.Getenv("LWA_CLIENT_SECRET"),
			RefreshToken:  os.Getenv("LWA_REFRESH_TOKEN"),
			AccessKey:     os.Getenv("AWS_ACCESS_KEY_ID"),
			SecretKey:     os.Getenv("AWS_SECRET_ACCESS_KEY"),
		},
		Pricing: PricingConfig{
			VATRate:          envDecimal("PRICING_VAT_RATE", "0.21"),
			FeeRate:          envDecimal("PRICING_FEE_RATE", "0.13"),
			FeeSurchargeRate: envDecimal("PRICING_FEE_SURCHARGE_RATE", "0.02"),
			ShippingCost:     envDecimal("PRICING_SHIPPING_COST", "4.0"),
			FixedSurcharge:   envDecimal("PRICING_FIXED_SURCHARGE", "0"),
			UndercutStep:     envDecimal("PRICING_UNDERCUT_STEP", "0.01"),
			DefaultMargin:    envDecimal("PRICING_DEFAULT_MARGIN", "0.05"),
			Rounding:         envString("PRICING_ROUNDING", ""),
			MinAbsFloor:      envDecimal("PRICING_MIN_ABS_FLOOR", "0"),
			MaxPriceCap:      envDecimal("PRICING_MAX_PRICE_CAP", "0"),
			Currency:         envString("PRICING_CURRENCY", "EUR"),
		},
		Feeds: FeedConfig{
			PollInterval:       envDuration("FEED_POLL_INTERVAL", 10*time.Second),
			PollDeadline:       envDuration("FEED_POLL_DEADLINE", 420*time.Second),
			ReportPollInterval: envDuration("REPORT_POLL_INTERVAL", 15*time.Second),
			ReportPollDeadline: envDuration("REPORT_POLL_DEADLINE", 900*time.Second),
			DataDir:            envString("SPSYNC_DATA_DIR", "data"),
		},
	}

	tiers, err := parseTiers(envString("PRICING_MARGIN_TIERS", "10:0.60,20:0.50,50:0.35,150:0.25,400:0.18,1000:0.12"))
	if err != nil {
		return nil, fmt.Errorf("PRICING_MARGIN_TIERS: %w", err)
	}
	cfg.Pricing.Tiers = tiers

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if !strings.HasPrefix(c.Marketplace.Endpoint, "http://") && !strings.HasPrefix(c.Marketplace.Endpoint, "https://") {
		return fmt.Errorf("SPAPI_ENDPOINT must start with http:// or https://, got %q", c.Marketplace.Endpoint)
	}

	if !c.Marketplace.Simulate {
		if c.Marketplace.ClientID == "" || c.Marketplace.ClientSecret == "" || c.Marketplace.RefreshToken == "" {
			return fmt.Errorf("LWA_CLIENT_ID, LWA_CLIENT_SECRET and LWA_REFRESH_TOKEN are required when SPAPI_SIMULATE is off")
		}
		if c.Marketplace.AccessKey == "" || c.Marketplace.SecretKey == "" {
			return fmt.Errorf("AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY are required when SPAPI_SIMULATE is off")
		}
	}

	if c.Pricing.Rounding != "" && c.Pricing.Rounding != ".99" {
		return fmt.Errorf("PRICING_ROUNDING must be empty or .99, got %q", c.Pricing.Rounding)
	}

	if c.Pricing.FeeRate.IsNegative() || c.Pricing.VATRate.IsNegative() {
		return fmt.Errorf("pricing rates must be non-negative")
	}

	return nil
}

// parseTiers parses "maxCost:margin" pairs separated by commas, e.g.
// "20:0.50,50:0.35". Tiers are sorted by ascending cost bound.
func parseTiers(s string) ([]MarginTier, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	var tiers []MarginTier
	for _, part := range strings.Split(s, ",") {
		bound, margin, ok := strings.Cut(strings.TrimSpace(part), ":")
		if !ok {
			return nil, fmt.Errorf("malformed tier %q, want maxCost:margin", part)
		}
		max, err := decimal.NewFromString(strings.TrimSpace(bound))
		if err != nil {
			return nil, fmt.Errorf("tier bound %q: %w", bound, err)
		}
		m, err := decimal.NewFromString(strings.TrimSpace(margin))
		if err != nil {
			return nil, fmt.Errorf("tier margin %q: %w", margin, err)
		}
		tiers = append(tiers, MarginTier{MaxCost: max, Margin: m})
	}
	sort.Slice(tiers, func(i, j int) bool {
		return tiers[i].MaxCost.LessThan(tiers[j].MaxCost)
	})
	return tiers, nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envBool(key string, defaultVal bool) bool {
	v := strings.ToLower(os.Getenv(key))
	switch v {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return defaultVal
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func envDecimal(key, defaultVal string) decimal.Decimal {
	v := os.Getenv(key)
	if v == "" {
		v = defaultVal
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		d, _ = decimal.NewFromString(defaultVal)
	}
	return d
}
