package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is loaded once at startup and handed to constructors.
// Nothing below the cmd layer reads the environment.
type Config struct {
	Env       string
	Port      string
	AppURL    string
	JWTSecret string

	StoreDriver string // postgres | bolt
	BoltPath    string
	Database    Database

	Redis    Redis
	Paystack Paystack
	Wallet   Wallet
	Orders   Orders
	Settle   Settlement
	Alerts   Alerts
}

type Database struct {
	URL      string
	User     string
	Password string
	Host     string
	Port     string
	Name     string
	SSLMode  string
}

// DSN prefers DATABASE_URL and falls back to the discrete DB_* variables
func (d Database) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode)
}

type Redis struct {
	Addr     string
	Password string
	DB       int
}

type Paystack struct {
	SecretKey   string
	BaseURL     string
	CallbackURL string
	Timeout     time.Duration
	MaxElapsed  time.Duration
}

// Wallet carries the top-up limits formerly kept in the system settings record.
// All amounts are minor units.
type Wallet struct {
	Currency            string
	TopUpMin            int64
	TopUpMax            int64
	HistoryLimit        int
	LowBalanceThreshold int64
}

type Orders struct {
	EnabledCarriers []string
}

type Settlement struct {
	LookupRetries  int
	LookupDelay    time.Duration
	ReconcileAfter time.Duration
	DedupeTTL      time.Duration
}

type Alerts struct {
	Enabled    bool
	AdminEmail string
	MailFrom   string
	PlunkKey   string
	PlunkURL   string
}

// Load reads .env (when present) and then the process environment
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Env:         getenv("APP_ENV", "dev"),
		Port:        getenv("PORT", "8080"),
		AppURL:      strings.TrimRight(getenv("APP_URL", "http://localhost:5173"), "/"),
		JWTSecret:   os.Getenv("JWT_SECRET"),
		StoreDriver: getenv("STORE_DRIVER", "postgres"),
		BoltPath:    getenv("BOLT_PATH", "bundlehub.db"),
		Database: Database{
			URL:      os.Getenv("DATABASE_URL"),
			User:     os.Getenv("DB_USER"),
			Password: os.Getenv("DB_PASSWORD"),
			Host:     getenv("DB_HOST", "localhost"),
			Port:     getenv("DB_PORT", "5432"),
			Name:     getenv("DB_NAME", "bundlehub"),
			SSLMode:  getenv("DB_SSLMODE", "disable"),
		},
		Redis: Redis{
			Addr:     redisAddr(),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       getint("REDIS_DB", 0),
		},
		Paystack: Paystack{
			SecretKey:   os.Getenv("PAYSTACK_SECRET_KEY"),
			BaseURL:     getenv("PAYSTACK_BASE_URL", "https://api.paystack.co"),
			CallbackURL: os.Getenv("PAYSTACK_CALLBACK_URL"),
			Timeout:     getduration("PAYSTACK_TIMEOUT", 10*time.Second),
			MaxElapsed:  getduration("PAYSTACK_MAX_ELAPSED", 30*time.Second),
		},
		Wallet: Wallet{
			Currency:            getenv("WALLET_CURRENCY", "GHS"),
			TopUpMin:            getint64("TOPUP_MIN_AMOUNT", 100),
			TopUpMax:            getint64("TOPUP_MAX_AMOUNT", 500000),
			HistoryLimit:        getint("WALLET_HISTORY_LIMIT", 50),
			LowBalanceThreshold: getint64("LOW_BALANCE_THRESHOLD", 0),
		},
		Orders: Orders{
			EnabledCarriers: getlist("ENABLED_CARRIERS", []string{"MTN", "TELECEL", "AT"}),
		},
		Settle: Settlement{
			LookupRetries:  getint("SETTLE_LOOKUP_RETRIES", 3),
			LookupDelay:    getduration("SETTLE_LOOKUP_DELAY", 500*time.Millisecond),
			ReconcileAfter: getduration("RECONCILE_AFTER", 10*time.Minute),
			DedupeTTL:      getduration("WEBHOOK_DEDUPE_TTL", 24*time.Hour),
		},
		Alerts: Alerts{
			Enabled:    getbool("ALERTS_ENABLED", true),
			AdminEmail: getenv("ADMIN_ALERT_EMAIL", "admin@bundlehub.local"),
			MailFrom:   os.Getenv("MAIL_FROM"),
			PlunkKey:   os.Getenv("PLUNK_API_KEY"),
			PlunkURL:   getenv("PLUNK_API_URL", "https://api.useplunk.com/v1/send"),
		},
	}

	if cfg.Paystack.CallbackURL == "" {
		cfg.Paystack.CallbackURL = cfg.AppURL + "/shop/wallet/topup-success"
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("config: JWT_SECRET is required")
	}
	if c.Paystack.SecretKey == "" {
		return fmt.Errorf("config: PAYSTACK_SECRET_KEY is required")
	}
	if c.StoreDriver != "postgres" && c.StoreDriver != "bolt" {
		return fmt.Errorf("config: unknown STORE_DRIVER %q", c.StoreDriver)
	}
	// zero would disable the HTTP deadline or the retry budget outright
	if c.Paystack.Timeout <= 0 {
		return fmt.Errorf("config: PAYSTACK_TIMEOUT must be positive, got %s", c.Paystack.Timeout)
	}
	if c.Paystack.MaxElapsed <= 0 {
		return fmt.Errorf("config: PAYSTACK_MAX_ELAPSED must be positive, got %s", c.Paystack.MaxElapsed)
	}
	if c.Wallet.TopUpMin <= 0 || c.Wallet.TopUpMax < c.Wallet.TopUpMin {
		return fmt.Errorf("config: invalid top-up limits %d..%d", c.Wallet.TopUpMin, c.Wallet.TopUpMax)
	}
	return nil
}

func (c *Config) IsProduction() bool { return c.Env == "production" }

// redisAddr keeps the REDIS_ADDR / REDIS_HOST+PORT fallbacks used by the worker deployment
func redisAddr() string {
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		return addr
	}
	if host := os.Getenv("REDIS_HOST"); host != "" {
		return host + ":" + getenv("REDIS_PORT", "6379")
	}
	if os.Getenv("RUN_LOCAL") == "true" {
		return "127.0.0.1:6379"
	}
	return "redis:6379"
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if v, err := strconv.Atoi(os.Getenv(k)); err == nil {
		return v
	}
	return def
}

func getint64(k string, def int64) int64 {
	if v, err := strconv.ParseInt(os.Getenv(k), 10, 64); err == nil {
		return v
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, err := strconv.ParseBool(os.Getenv(k)); err == nil {
		return v
	}
	return def
}

func getduration(k string, def time.Duration) time.Duration {
	if v, err := time.ParseDuration(os.Getenv(k)); err == nil {
		return v
	}
	return def
}

func getlist(k string, def []string) []string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.ToUpper(strings.TrimSpace(p)); p != "" {
			out = append(out, p)
		}
	}
	return out
}
