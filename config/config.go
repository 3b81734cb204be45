package config

import (
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"storefront-billing/internal/domain/plans"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is loaded and validated once at process start and then passed to
// every component that needs it.
type Config struct {
	Port       string
	AppEnv     string
	AppURL     string
	CORSOrigin string
	LogLevel   string

	DBDriver string
	DBURL    string

	JWTSecret string

	StripeSecretKey     string
	StripeWebhookSecret string
	StripeMaxRetries    uint64
	PlanPrices          map[plans.PlanType]string
	UnknownPricePolicy  plans.UnknownPricePolicy

	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	EventDedupeTTL time.Duration
}

var priceKeys = map[plans.PlanType]string{
	plans.PlanPro:             "STRIPE_PRICE_PRO",
	plans.PlanProPlus:         "STRIPE_PRICE_PRO_PLUS",
	plans.PlanVerified:        "STRIPE_PRICE_VERIFIED",
	plans.PlanProPlusVerified: "STRIPE_PRICE_PRO_PLUS_VERIFIED",
}

// Load reads .env (if present) and the environment, then validates.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found. Using system environment variables.")
	}
	return FromViper(newViper())
}

func newViper() *viper.Viper {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("PORT", "8080")
	v.SetDefault("APP_ENV", "production")
	v.SetDefault("APP_URL", "http://localhost:5173")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DB_DRIVER", "postgres")
	v.SetDefault("STRIPE_MAX_RETRIES", 4)
	v.SetDefault("BILLING_UNKNOWN_PRICE_POLICY", string(plans.PolicyFallback))
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("EVENT_DEDUPE_TTL", "72h")
	return v
}

// FromViper builds a Config from an already populated viper instance.
func FromViper(v *viper.Viper) (Config, error) {
	get := func(key string) string { return strings.TrimSpace(v.GetString(key)) }

	cfg := Config{
		Port:       get("PORT"),
		AppEnv:     get("APP_ENV"),
		AppURL:     strings.TrimRight(get("APP_URL"), "/"),
		CORSOrigin: get("CORS_ORIGIN"),
		LogLevel:   get("LOG_LEVEL"),

		DBDriver: strings.ToLower(get("DB_DRIVER")),
		DBURL:    get("DB_URL"),

		JWTSecret: get("JWT_SECRET"),

		StripeSecretKey:     get("STRIPE_SECRET_KEY"),
		StripeWebhookSecret: get("STRIPE_WEBHOOK_SECRET"),
		StripeMaxRetries:    v.GetUint64("STRIPE_MAX_RETRIES"),
		PlanPrices:          make(map[plans.PlanType]string, len(priceKeys)),

		RedisAddr:      get("REDIS_ADDR"),
		RedisPassword:  get("REDIS_PASSWORD"),
		RedisDB:        v.GetInt("REDIS_DB"),
		EventDedupeTTL: v.GetDuration("EVENT_DEDUPE_TTL"),
	}
	for t, key := range priceKeys {
		cfg.PlanPrices[t] = get(key)
	}

	policy, ok := plans.ParseUnknownPricePolicy(get("BILLING_UNKNOWN_PRICE_POLICY"))
	if !ok {
		return Config{}, fmt.Errorf("invalid BILLING_UNKNOWN_PRICE_POLICY %q (want fallback or reject)", get("BILLING_UNKNOWN_PRICE_POLICY"))
	}
	cfg.UnknownPricePolicy = policy

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate fails on the first start-up misconfiguration.
func (c Config) Validate() error {
	var missing []string
	required := map[string]string{
		"DB_URL":                c.DBURL,
		"JWT_SECRET":            c.JWTSecret,
		"STRIPE_SECRET_KEY":     c.StripeSecretKey,
		"STRIPE_WEBHOOK_SECRET": c.StripeWebhookSecret,
	}
	for t, key := range priceKeys {
		required[key] = c.PlanPrices[t]
	}
	for key, value := range required {
		if value == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}

	switch c.DBDriver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver)
	}
	if c.EventDedupeTTL <= 0 {
		return errors.New("EVENT_DEDUPE_TTL must be positive")
	}
	return nil
}

// IsDevelopment reports whether verbose, human readable logging is wanted.
func (c Config) IsDevelopment() bool {
	return c.AppEnv == "development" || c.AppEnv == "local"
}
