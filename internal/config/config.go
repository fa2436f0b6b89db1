package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Cfg is the global configuration loaded at startup.
var Cfg Config

// Config holds all application configuration.
type Config struct {
	// Server
	Port     string
	BaseURL  string
	LogLevel string

	// Sentry
	SentryDSN         string
	SentryEnvironment string
	SentryRelease     string

	// Analytics
	GTMID string

	// Rate limiter
	RateLimitRPS     int
	RateLimitBurst   int
	TrustedProxyHops int // proxies that append to X-Forwarded-For; 0 ignores the header

	// Gzip
	GzipEnabled bool

	// Turnstile
	TurnstileSiteKey   string
	TurnstileSecretKey string

	// Admin endpoints
	AdminAPIKey string

	// Tax tables
	TaxTablesPath  string
	TaxYear        int // pins the default tax year; 0 follows the tables file
	TaxTablesWatch bool

	// Google Sheets audit sink
	GoogleSheetID             string
	GoogleServiceAccountEmail string
	GooglePrivateKeyBase64    string

	// Audit dispatcher
	AuditDBPath    string
	AuditQueueSize int
	AuditWorkers   int
	AuditTimeout   time.Duration

	// Results kept for the PDF report
	ResultTTL time.Duration

	CounterFile string

	// Markdown pages; empty serves the embedded ones
	ContentDir string

	// Official-source link checker
	LinkCheckInterval time.Duration
	UserAgent         string
}

// Load reads .env (if present) and populates Cfg from environment variables.
func Load() {
	if err := godotenv.Load(); err != nil {
		log.Println("config: no .env file found, using environment variables")
	}

	Cfg = Config{
		Port:     envOr("PORT", "8080"),
		BaseURL:  envOr("BASE_URL", "https://ahorrove.co"),
		LogLevel: envOr("LOG_LEVEL", "info"),

		SentryDSN:         os.Getenv("SENTRY_DSN"),
		SentryEnvironment: envOr("SENTRY_ENVIRONMENT", "production"),
		SentryRelease:     envOr("SENTRY_RELEASE", "ahorrove@1.0.0"),

		GTMID: envOr("GTM_ID", ""),

		RateLimitRPS:     envInt("RATE_LIMIT_RPS", 10),
		RateLimitBurst:   envInt("RATE_LIMIT_BURST", 20),
		TrustedProxyHops: envInt("TRUSTED_PROXY_HOPS", 1),

		GzipEnabled: envBool("GZIP_ENABLED", true),

		TurnstileSiteKey:   os.Getenv("TURNSTILE_SITE_KEY"),
		TurnstileSecretKey: os.Getenv("TURNSTILE_SECRET_KEY"),

		AdminAPIKey: os.Getenv("ADMIN_API_KEY"),

		TaxTablesPath:  os.Getenv("TAX_TABLES_PATH"),
		TaxYear:        envInt("TAX_YEAR", 0),
		TaxTablesWatch: envBool("TAX_TABLES_WATCH", true),

		GoogleSheetID:             os.Getenv("GOOGLE_SHEET_ID"),
		GoogleServiceAccountEmail: os.Getenv("GOOGLE_SERVICE_ACCOUNT_EMAIL"),
		GooglePrivateKeyBase64:    os.Getenv("GOOGLE_PRIVATE_KEY_BASE64"),

		AuditDBPath:    envOr("AUDIT_DB_PATH", "data/calculos.db"),
		AuditQueueSize: envInt("AUDIT_QUEUE_SIZE", 256),
		AuditWorkers:   envInt("AUDIT_WORKERS", 2),
		AuditTimeout:   envDuration("AUDIT_TIMEOUT", 10*time.Second),

		ResultTTL: envDuration("RESULT_TTL", 30*time.Minute),

		CounterFile: envOr("COUNTER_FILE", "counter.json"),

		ContentDir: os.Getenv("CONTENT_DIR"),

		LinkCheckInterval: envDuration("LINKCHECK_INTERVAL", 24*time.Hour),
		UserAgent:         envOr("USER_AGENT", "AhorroVE-LinkCheck/1.0 (+https://ahorrove.co)"),
	}

	log.Printf("config: loaded (port=%s, year=%d, sheets=%v, gtm=%s)",
		Cfg.Port, Cfg.TaxYear, Cfg.SheetsEnabled(), maskGTM(Cfg.GTMID))
}

// SheetsEnabled reports whether all Google Sheets credentials are present.
func (c Config) SheetsEnabled() bool {
	return c.GoogleSheetID != "" && c.GoogleServiceAccountEmail != "" && c.GooglePrivateKeyBase64 != ""
}

func maskGTM(id string) string {
	if id == "" {
		return "(disabled)"
	}
	return id
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
