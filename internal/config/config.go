package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
)

type Config struct {
	Port               string
	DatabaseURL        string
	MongoDatabase      string
	RedisURL           string
	JWTSecret          string
	SessionTTL         time.Duration
	AllowedEmailDomain string
	OTPIssuer          string
	BcryptCost         int
	CookieSecure       bool
	FrontendURL        string
	CORSOrigins        []string
	TrustedProxies     []string
	LogLevel           string
	LogFile            string
	Email              EmailConfig
}

type EmailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Secure   bool
}

func (e EmailConfig) Enabled() bool {
	return e.Host != "" && e.Port != 0 && e.From != ""
}

// DatabaseDriver names the credential store backend selected by DatabaseURL.
func (c Config) DatabaseDriver() string {
	switch {
	case strings.HasPrefix(c.DatabaseURL, "mongodb://"), strings.HasPrefix(c.DatabaseURL, "mongodb+srv://"):
		return "mongo"
	case strings.HasPrefix(c.DatabaseURL, "postgres://"), strings.HasPrefix(c.DatabaseURL, "postgresql://"):
		return "postgres"
	default:
		return ""
	}
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first without overriding variables that are already set.
func Load() (Config, error) {
	_ = godotenv.Load()

	clean := func(val string) string {
		return strings.Trim(val, "\"' \t\r\n")
	}

	emailPort, err := strconv.Atoi(clean(getenvDefault("EMAIL_SERVER_PORT", "587")))
	if err != nil {
		emailPort = 587
	}

	cost := bcrypt.DefaultCost
	if raw := clean(os.Getenv("BCRYPT_COST")); raw != "" {
		cost, err = strconv.Atoi(raw)
		if err != nil || cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
			return Config{}, fmt.Errorf("BCRYPT_COST must be an integer between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
		}
	}

	cfg := Config{
		Port:               getenvDefault("PORT", "8080"),
		DatabaseURL:        clean(firstNonEmpty(os.Getenv("DATABASE_URL"), os.Getenv("MONGODB_URI"))),
		MongoDatabase:      getenvDefault("MONGO_DB", "storeadmin"),
		RedisURL:           getenvDefault("REDIS_URL", "redis://localhost:6379"),
		JWTSecret:          clean(os.Getenv("JWT_SECRET")),
		SessionTTL:         7 * 24 * time.Hour,
		AllowedEmailDomain: strings.TrimPrefix(strings.ToLower(clean(getenvDefault("ALLOWED_EMAIL_DOMAIN", "gmail.com"))), "@"),
		OTPIssuer:          getenvDefault("OTP_ISSUER", "Store Admin"),
		BcryptCost:         cost,
		CookieSecure:       parseBoolDefault(os.Getenv("COOKIE_SECURE"), true),
		FrontendURL:        clean(os.Getenv("FRONTEND_URL")),
		CORSOrigins:        parseList(os.Getenv("CORS_ORIGINS")),
		TrustedProxies:     parseList(os.Getenv("TRUSTED_PROXIES")),
		LogLevel:           getenvDefault("LOG_LEVEL", "info"),
		LogFile:            os.Getenv("LOG_FILE"),
	}
	if _, ok := os.LookupEnv("LOG_FILE"); !ok {
		cfg.LogFile = "logs/server.log"
	}

	cfg.Email = EmailConfig{
		Host:     clean(os.Getenv("EMAIL_SERVER_HOST")),
		Port:     emailPort,
		Username: clean(firstNonEmpty(os.Getenv("EMAIL_SERVER_USER"), os.Getenv("EMAIL_USER"))),
		Password: clean(firstNonEmpty(os.Getenv("EMAIL_SERVER_PASSWORD"), os.Getenv("EMAIL_PASS"))),
		From:     clean(os.Getenv("EMAIL_FROM")),
		Secure:   parseBoolDefault(os.Getenv("EMAIL_SERVER_SECURE"), false),
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.DatabaseDriver() == "" {
		return Config{}, fmt.Errorf("DATABASE_URL must be a mongodb:// or postgres:// URL")
	}
	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.AllowedEmailDomain == "" {
		return Config{}, fmt.Errorf("ALLOWED_EMAIL_DOMAIN must not be empty")
	}

	return cfg, nil
}

func getenvDefault(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func parseBoolDefault(val string, def bool) bool {
	val = strings.ToLower(strings.Trim(val, "\"' "))
	switch val {
	case "":
		return def
	case "1", "true", "yes":
		return true
	default:
		return false
	}
}

func parseList(val string) []string {
	parts := strings.Split(val, ",")
	var out []string
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
