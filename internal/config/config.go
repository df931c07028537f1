package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName          string
	AppVersion       string
	Environment      string
	AppBaseURL       string
	HTTPAddr         string
	AuthCookieSecure bool
	AuthJWTSecret    string

	OTLPEndpoint string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	Redis      RedisConfig
	Email      EmailConfig
	Onboarding OnboardingConfig

	PlansConfigPath string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

func (c RedisConfig) Enabled() bool {
	return strings.TrimSpace(c.Addr) != ""
}

type EmailConfig struct {
	Provider     string
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	From         string
	SESRegion    string
}

// OnboardingConfig tunes the onboarding flow runtime.
type OnboardingConfig struct {
	// Store selects the progress backend: redis, sql or memory.
	Store                string
	KeyPrefix            string
	FlowTTL              time.Duration
	FlowCacheSize        int
	VerifyResendCooldown time.Duration
	VerifyAutoAdvance    time.Duration
}

const (
	ProgressStoreRedis  = "redis"
	ProgressStoreSQL    = "sql"
	ProgressStoreMemory = "memory"
)

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	environment := getenv("ENVIRONMENT", "development")
	authCookieSecure := environment == "production"
	if !authCookieSecure {
		authCookieSecure = getenvBool("AUTH_COOKIE_SECURE", false)
	}

	cfg := Config{
		AppName:          getenv("APP_SERVICE", "launchpad"),
		AppVersion:       getenv("APP_VERSION", "0.1.0"),
		Environment:      environment,
		AppBaseURL:       strings.TrimRight(getenv("APP_BASE_URL", "http://localhost:8080"), "/"),
		HTTPAddr:         getenv("HTTP_ADDR", ":8080"),
		AuthCookieSecure: authCookieSecure,
		AuthJWTSecret:    strings.TrimSpace(getenv("AUTH_JWT_SECRET", "")),
		OTLPEndpoint:     getenv("OTLP_ENDPOINT", "localhost:4317"),
		DBType:           getenv("DATABASE_TYPE", "postgres"),
		DBHost:           getenv("DATABASE_HOST", "localhost"),
		DBPort:           getenv("DATABASE_PORT", "5432"),
		DBName:           getenv("DATABASE_NAME", "postgres"),
		DBUser:           getenv("DATABASE_USER", "postgres"),
		DBPassword:       getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:        getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:    getenvInt("DATABASE_MAX_IDLE_CONN", 10),
		DBMaxOpenConn:    getenvInt("DATABASE_MAX_OPEN_CONN", 50),
		// seconds
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 1800),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 300),
		Redis: RedisConfig{
			Addr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
			Password: getenv("REDIS_PASSWORD", ""),
			DB:       getenvInt("REDIS_DB", 0),
		},
		Email: EmailConfig{
			Provider:     strings.ToLower(getenv("EMAIL_PROVIDER", "smtp")),
			SMTPHost:     getenv("EMAIL_SMTP_HOST", "localhost"),
			SMTPPort:     getenvInt("EMAIL_SMTP_PORT", 1025),
			SMTPUsername: getenv("EMAIL_SMTP_USERNAME", ""),
			SMTPPassword: getenv("EMAIL_SMTP_PASSWORD", ""),
			From:         getenv("EMAIL_FROM", "no-reply@launchpad.local"),
			SESRegion:    getenv("EMAIL_SES_REGION", "us-east-1"),
		},
		Onboarding: OnboardingConfig{
			Store:                normalizeProgressStore(getenv("ONBOARDING_STORE", "")),
			KeyPrefix:            getenv("ONBOARDING_KEY_PREFIX", "onboarding"),
			FlowTTL:              getenvDuration("ONBOARDING_FLOW_TTL", 30*time.Minute),
			FlowCacheSize:        getenvInt("ONBOARDING_FLOW_CACHE_SIZE", 10_000),
			VerifyResendCooldown: getenvDuration("ONBOARDING_VERIFY_RESEND_COOLDOWN", time.Minute),
			VerifyAutoAdvance:    getenvDuration("ONBOARDING_VERIFY_AUTO_ADVANCE", 2*time.Second),
		},
		PlansConfigPath: strings.TrimSpace(getenv("PLANS_CONFIG_PATH", "")),
	}

	return cfg
}

func (c Config) IsProduction() bool {
	return c.Environment == "production"
}

// ProgressStore resolves the effective progress backend. An unset store
// falls back to redis when it is configured and to sql otherwise.
func (c Config) ProgressStore() string {
	if c.Onboarding.Store != "" {
		return c.Onboarding.Store
	}
	if c.Redis.Enabled() {
		return ProgressStoreRedis
	}
	return ProgressStoreSQL
}

func normalizeProgressStore(raw string) string {
	value := strings.ToLower(strings.TrimSpace(raw))
	switch value {
	case ProgressStoreRedis, ProgressStoreSQL, ProgressStoreMemory:
		return value
	default:
		return ""
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}
