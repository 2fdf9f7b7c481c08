// Package config provides configuration management for the access
// provisioning service. It handles loading configuration from environment
// variables with sensible defaults and validates the configuration to ensure
// the application starts safely.
//
// Secrets are loaded once at startup and injected into components at
// construction; no component performs ambient environment lookups at request
// time.
//
// Environment Variables:
//
// Application Settings:
//   - PORT: Server port (default: 8080)
//   - LOG_LEVEL: Logging level (default: info)
//   - TLS_CERT / TLS_KEY: Optional TLS certificate pair
//
// Signing Secrets:
//   - STRIPE_WEBHOOK_SECRET: Shared secret for the payment webhook
//     signature (required)
//   - WEBHOOK_SECRET: Shared secret for first-party request signatures
//     (required)
//   - STRIPE_SIGNATURE_TOLERANCE: Maximum age of a timestamped signature
//     (default: 300s, "0" disables the freshness check)
//
// GitHub Configuration:
//   - GITHUB_TOKEN: Bearer token for the GitHub API (required)
//   - GITHUB_ORG: Organization owning the protected repository
//     (default: shipmode)
//   - GITHUB_REPO: Protected repository name (default: framework)
//   - GITHUB_API_URL: API base URL (default: https://api.github.com)
//   - GITHUB_TIMEOUT: Outbound request timeout (default: 10s)
//
// Rate Limiting (active only when REDIS_ADDRESS is set):
//   - REDIS_ADDRESS: Redis server address
//   - REDIS_PASSWORD: Redis password
//   - REDIS_DB: Redis database number 0-15 (default: 0)
//   - RATE_LIMIT_ENABLED: Enable rate limiting (default: true)
//   - RATE_LIMIT_DEFAULT: Default rate limit per window (default: 100)
//   - RATE_LIMIT_WINDOW: Rate limit time window (default: 60s)
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration values for the provisioning service.
// All fields correspond to environment variables that can be set to
// override the default values.
//
// The configuration is loaded using the Load() function and should be
// validated using the Validate() method before use.
type Config struct {
	// Application settings
	Port     string // Server port number
	LogLevel string // Logging level (debug, info, warn, error)
	TLSCert  string // Path to TLS certificate file
	TLSKey   string // Path to TLS key file

	// Signing secrets
	StripeWebhookSecret string        // Secret shared with the payment processor
	InternalSecret      string        // Secret shared between first-party services
	SignatureTolerance  time.Duration // Max age of a timestamped signature (0 disables)

	// GitHub configuration
	GitHubToken   string        // Bearer token for the GitHub API
	GitHubOrg     string        // Organization owning the protected repository
	GitHubRepo    string        // Protected repository name
	GitHubAPIURL  string        // API base URL, overridable for tests
	GitHubTimeout time.Duration // Outbound request timeout

	// Rate limiting configuration
	RedisAddress     string // Redis server address (host:port), empty disables limiting
	RedisPassword    string // Redis authentication password
	RedisDB          string // Redis database number (0-15)
	RateLimitEnabled bool   // Whether rate limiting is enabled
	RateLimitDefault string // Default requests per window
	RateLimitWindow  string // Rate limiting time window (e.g., "60s", "1m")
}

// Load creates a new Config instance with values loaded from environment
// variables. If an environment variable is not set, the corresponding
// default value is used.
//
// This function does not validate the configuration - call Validate() on the
// returned Config to ensure all required values are properly set and valid.
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "8080"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		TLSCert:  getEnv("TLS_CERT", ""),
		TLSKey:   getEnv("TLS_KEY", ""),

		StripeWebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
		InternalSecret:      getEnv("WEBHOOK_SECRET", ""),
		SignatureTolerance:  getDurationEnv("STRIPE_SIGNATURE_TOLERANCE", 300*time.Second),

		GitHubToken:   getEnv("GITHUB_TOKEN", ""),
		GitHubOrg:     getEnv("GITHUB_ORG", "shipmode"),
		GitHubRepo:    getEnv("GITHUB_REPO", "framework"),
		GitHubAPIURL:  getEnv("GITHUB_API_URL", "https://api.github.com"),
		GitHubTimeout: getDurationEnv("GITHUB_TIMEOUT", 10*time.Second),

		RedisAddress:     getEnv("REDIS_ADDRESS", ""),
		RedisPassword:    getEnv("REDIS_PASSWORD", ""),
		RedisDB:          getEnv("REDIS_DB", "0"),
		RateLimitEnabled: getBoolEnv("RATE_LIMIT_ENABLED", true),
		RateLimitDefault: getEnv("RATE_LIMIT_DEFAULT", "100"),
		RateLimitWindow:  getEnv("RATE_LIMIT_WINDOW", "60s"),
	}
}

// getEnv retrieves an environment variable value or returns a default value if not set.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getBoolEnv retrieves a boolean environment variable value or returns a default value.
func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getDurationEnv retrieves a duration environment variable value or returns a
// default value. Accepts Go duration strings ("30s", "5m") and bare integers,
// which are interpreted as seconds.
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if parsed, err := time.ParseDuration(value); err == nil {
		return parsed
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}
	return defaultValue
}

// Validate performs comprehensive validation on the configuration to ensure
// all required fields are present and all values are valid.
//
// The application should call this method after loading configuration and
// before starting to ensure safe operation.
func (c *Config) Validate() error {
	if c.StripeWebhookSecret == "" {
		return fmt.Errorf("STRIPE_WEBHOOK_SECRET environment variable is required")
	}

	if c.InternalSecret == "" {
		return fmt.Errorf("WEBHOOK_SECRET environment variable is required")
	}

	if c.GitHubToken == "" {
		return fmt.Errorf("GITHUB_TOKEN environment variable is required")
	}

	if c.GitHubOrg == "" || c.GitHubRepo == "" {
		return fmt.Errorf("GITHUB_ORG and GITHUB_REPO must not be empty")
	}

	// Validate port
	if port, err := strconv.Atoi(c.Port); err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("PORT must be a valid port number between 1 and 65535")
	}

	if c.SignatureTolerance < 0 {
		return fmt.Errorf("STRIPE_SIGNATURE_TOLERANCE must not be negative")
	}

	if c.GitHubTimeout <= 0 {
		return fmt.Errorf("GITHUB_TIMEOUT must be positive")
	}

	// TLS cert and key must be provided together
	if (c.TLSCert == "") != (c.TLSKey == "") {
		return fmt.Errorf("TLS_CERT and TLS_KEY must both be set to enable TLS")
	}

	// Validate Redis config if provided
	if c.RedisAddress != "" {
		if db, err := strconv.Atoi(c.RedisDB); err != nil || db < 0 || db > 15 {
			return fmt.Errorf("REDIS_DB must be a number between 0 and 15")
		}
	}

	// Validate rate limit config
	if c.RateLimitEnabled {
		if limit, err := strconv.Atoi(c.RateLimitDefault); err != nil || limit < 1 {
			return fmt.Errorf("RATE_LIMIT_DEFAULT must be a positive number")
		}
		if _, err := time.ParseDuration(c.RateLimitWindow); err != nil {
			return fmt.Errorf("RATE_LIMIT_WINDOW must be a valid duration (e.g., '60s', '1m')")
		}
	}

	return nil
}
