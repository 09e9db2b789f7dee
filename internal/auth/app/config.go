package app

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/agentauth/agentauth/internal/auth/service"
	"github.com/agentauth/agentauth/pkg/jwtx"
)

type Config struct {
	Issuer            string // Required: issuer claim for tokens and discovery
	SigningSecret     string // Symmetric signing key, >= 32 bytes
	SigningSecretFile string // Alternative: path to a file holding the key
	DatabaseFile      string // Path to SQLite database file (default: ./auth.db)
	AdminToken        string // Optional: bearer token for the admin endpoints

	AuthRequestTTL      time.Duration // Lifetime of a pending authorization request (default: 10m)
	AccessTokenTTL      time.Duration // Access token lifetime (default: 1h)
	RefreshTokenTTL     time.Duration // Refresh token lifetime (default: 30d)
	VerificationCodeTTL time.Duration // 2FA code lifetime (default: 5m)

	Env                  string        // Environment (dev, staging, prod) (default: dev)
	LogLevel             string        // Log level (debug, info, warn, error) (default: info)
	LogFormat            string        // Log format (json, text) (default: json)
	Port                 int           // HTTP server port (default: 8080)
	ShutdownGracePeriod  time.Duration // Graceful shutdown timeout (default: 10s)
	HousekeepingInterval time.Duration // Housekeeping interval (default: 1h)
}

func LoadConfig() Config {
	cfg := Config{
		Issuer:            getEnvOrDefault("AUTH_ISSUER", "http://localhost:8080"),
		SigningSecret:     os.Getenv("AUTH_SIGNING_SECRET"),
		SigningSecretFile: os.Getenv("AUTH_SIGNING_SECRET_FILE"),
		DatabaseFile:      getEnvOrDefault("AUTH_DATABASE_FILE", "auth.db"),
		AdminToken:        os.Getenv("AUTH_ADMIN_TOKEN"),

		AuthRequestTTL:      getEnvDurationOrDefault("AUTH_REQUEST_TTL", service.DefaultAuthRequestTTL),
		AccessTokenTTL:      getEnvDurationOrDefault("ACCESS_TOKEN_TTL", jwtx.DefaultAccessTokenTTL),
		RefreshTokenTTL:     getEnvDurationOrDefault("REFRESH_TOKEN_TTL", jwtx.DefaultRefreshTokenTTL),
		VerificationCodeTTL: getEnvDurationOrDefault("VERIFICATION_CODE_TTL", service.DefaultVerificationCodeTTL),

		Env:                  getEnvOrDefault("ENV", "dev"),
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                 getEnvIntOrDefault("PORT", 8080),
		ShutdownGracePeriod:  getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		HousekeepingInterval: getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", 1*time.Hour),
	}

	return cfg
}

// SigningKey resolves the signing secret, preferring the inline value over
// the file.
func (c Config) SigningKey() ([]byte, error) {
	if c.SigningSecret != "" {
		return []byte(c.SigningSecret), nil
	}
	if c.SigningSecretFile != "" {
		data, err := os.ReadFile(c.SigningSecretFile)
		if err != nil {
			return nil, err
		}
		return []byte(strings.TrimSpace(string(data))), nil
	}
	return nil, nil
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
