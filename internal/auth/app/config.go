package app

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pastvault/pastvault/pkg/jwtx"
)

type Config struct {
	Issuer      string // Issuer claim for both token classes
	TokenSecret string // Required: HS256 secret, at least 32 bytes

	DatabaseFile string // Path to SQLite database file (default: ./auth.db)
	PepperFile   string // Path to password hashing pepper file (default: ./pepper)

	RPID          string   // WebAuthn relying party id (default: localhost)
	RPDisplayName string   // WebAuthn relying party display name
	RPOrigins     []string // Allowed WebAuthn origins

	SecureCookies bool // Set the Secure flag on auth cookies

	PreAuthTTL time.Duration // Pre-auth token lifetime
	SessionTTL time.Duration // Session token lifetime

	Env                  string        // Environment (dev, staging, prod) (default: dev)
	LogLevel             string        // Log level (debug, info, warn, error) (default: info)
	LogFormat            string        // Log format (json, text) (default: json)
	Port                 int           // HTTP server port (default: 8080)
	ShutdownGracePeriod  time.Duration // Graceful shutdown timeout (default: 10s)
	HousekeepingInterval time.Duration // Challenge cleanup interval (default: 1h)
}

func LoadConfig() Config {
	env := getEnvOrDefault("ENV", "dev")

	return Config{
		Issuer:      getEnvOrDefault("AUTH_ISSUER", "pastvault-auth"),
		TokenSecret: os.Getenv("AUTH_TOKEN_SECRET"),

		DatabaseFile: getEnvOrDefault("AUTH_DATABASE_FILE", "auth.db"),
		PepperFile:   getEnvOrDefault("AUTH_PEPPER_FILE", "pepper"),

		RPID:          getEnvOrDefault("WEBAUTHN_RP_ID", "localhost"),
		RPDisplayName: getEnvOrDefault("WEBAUTHN_RP_DISPLAY_NAME", "PastVault"),
		RPOrigins: splitCommaList(
			getEnvOrDefault("WEBAUTHN_RP_ORIGINS", "http://localhost:8080"),
		),

		SecureCookies: getEnvBoolOrDefault("COOKIE_SECURE", env == "prod"),

		PreAuthTTL: getEnvDurationOrDefault("AUTH_PREAUTH_TTL", jwtx.DefaultPreAuthTTL),
		SessionTTL: getEnvDurationOrDefault("AUTH_SESSION_TTL", jwtx.DefaultSessionTTL),

		Env:                  env,
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                 getEnvIntOrDefault("PORT", 8080),
		ShutdownGracePeriod:  getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		HousekeepingInterval: getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", 1*time.Hour),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if boolValue, err := strconv.ParseBool(value); err == nil {
		return boolValue
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	return defaultValue
}

func splitCommaList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
