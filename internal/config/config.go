// Package config provides application configuration management with support for environment variables, command-line flags, and .env files.
package config

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config holds the application configuration.
type Config struct {
	App          AppConfig
	Logger       LoggerConfig
	Data         DataConfig
	Server       ServerConfig
	Auth         AuthConfig
	Availability AvailabilityConfig
	Payment      PaymentConfig

	// EnvFile is the .env path the config was loaded from; the hot
	// reloader watches it.
	EnvFile string
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Environment string
}

// LoggerConfig holds logging configuration.
type LoggerConfig struct {
	Level string
}

// DataConfig holds on-disk storage configuration. The document store and
// the search index both live under BasePath.
type DataConfig struct {
	BasePath string
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Name         string
	Port         string        // Server port (default: 8080)
	ReadTimeout  time.Duration // HTTP read timeout (default: 15s)
	WriteTimeout time.Duration // HTTP write timeout (default: 15s)
	IdleTimeout  time.Duration // HTTP idle timeout (default: 60s)
	CORSOrigins  []string      // Allowed CORS origins (default: *)
}

// AuthConfig holds authentication configuration.
type AuthConfig struct {
	// PASETO v4 symmetric key for access tokens (32 bytes)
	AccessTokenKey []byte
	// Token lifetimes
	AccessTokenDuration    time.Duration // e.g., 24h
	ShopperSessionDuration time.Duration // e.g., 720h (30 days)
}

// AvailabilityConfig holds the reservation tunables. These are the values
// the hot reloader is allowed to change at runtime.
type AvailabilityConfig struct {
	// ReservationTTL is how long a checkout holds a product without a
	// heartbeat (default: 10m).
	ReservationTTL time.Duration
	// HeartbeatInterval is the renewal period; must be well under the TTL
	// so a few missed beats don't lapse the hold (default: 2m).
	HeartbeatInterval time.Duration
	// WarningGrace is how long the expiry warning waits for an answer
	// before the hold is released (default: 30s).
	WarningGrace time.Duration
	// MaxCheckoutItems caps the products in one checkout (default: 50).
	MaxCheckoutItems int
}

// PaymentConfig holds the payment handoff configuration.
type PaymentConfig struct {
	// ReturnBaseURL is where the provider sends the shopper back
	// (default: http://localhost:8080).
	ReturnBaseURL string
}

// LoadConfig loads configuration from multiple sources with precedence:
// 1. Command-line flags (highest priority).
// 2. Environment variables.
// 3. .env file.
// 4. Default values (lowest priority).
func LoadConfig() (*Config, error) {
	env := flag.String("env", "", "Environment (development, staging, production)")
	logLevel := flag.String("log-level", "", "Log level (debug, info, warn, error)")
	dataPath := flag.String("data-path", "", "Base path for on-disk storage")
	serverName := flag.String("server-name", "", "Name for the server")

	// Auth flags
	accessTokenDuration := flag.String("access-token-duration", "", "Access token lifetime (e.g., 24h)")
	shopperSessionDuration := flag.String("shopper-session-duration", "", "Anonymous shopper session lifetime (e.g., 720h)")

	// Server flags
	serverPort := flag.String("port", "", "Server port (default: 8080)")
	readTimeout := flag.String("read-timeout", "", "HTTP read timeout (default: 15s)")
	writeTimeout := flag.String("write-timeout", "", "HTTP write timeout (default: 15s)")
	idleTimeout := flag.String("idle-timeout", "", "HTTP idle timeout (default: 60s)")
	corsOrigins := flag.String("cors-origins", "", "Comma-separated allowed CORS origins (default: *)")

	// Availability flags
	reservationTTL := flag.String("reservation-ttl", "", "Checkout reservation lifetime (default: 10m)")
	heartbeatInterval := flag.String("heartbeat-interval", "", "Reservation heartbeat period (default: 2m)")
	warningGrace := flag.String("warning-grace", "", "Expiry warning grace before release (default: 30s)")
	maxCheckoutItems := flag.String("max-checkout-items", "", "Max products per checkout (default: 50)")

	// Payment flags
	paymentReturnURL := flag.String("payment-return-url", "", "Base URL the payment provider returns to")

	envFile := flag.String("env-file", ".env", "Path to .env file")

	// Parse flags but don't exit on error - we want to handle it gracefully.
	flag.Parse()

	// Load .env file if it exists (silently ignore if not found).
	_ = loadEnvFile(*envFile)

	cfg := &Config{
		EnvFile: *envFile,
		App: AppConfig{
			Environment: getConfigValue(*env, "ENV", "development"),
		},
		Logger: LoggerConfig{
			Level: getConfigValue(*logLevel, "LOG_LEVEL", "info"),
		},
		Data: DataConfig{
			BasePath: getConfigValue(*dataPath, "DATA_PATH", ""),
		},
		Server: ServerConfig{
			Name: getConfigValue(*serverName, "SERVER_NAME", "Relove Server"),
			Port: getConfigValue(*serverPort, "SERVER_PORT", "8080"),
		},
		Auth: AuthConfig{
			AccessTokenKey: nil, // Set by auth.LoadOrGenerateKey in main
		},
		Availability: AvailabilityConfig{
			MaxCheckoutItems: getIntConfigValue(*maxCheckoutItems, "MAX_CHECKOUT_ITEMS", 50),
		},
		Payment: PaymentConfig{
			ReturnBaseURL: getConfigValue(*paymentReturnURL, "PAYMENT_RETURN_URL", "http://localhost:8080"),
		},
	}

	origins := getConfigValue(*corsOrigins, "CORS_ORIGINS", "*")
	for _, origin := range strings.Split(origins, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			cfg.Server.CORSOrigins = append(cfg.Server.CORSOrigins, origin)
		}
	}

	durations := []struct {
		dst       *time.Duration
		flagValue string
		envKey    string
		fallback  string
	}{
		{&cfg.Auth.AccessTokenDuration, *accessTokenDuration, "ACCESS_TOKEN_DURATION", "24h"},
		{&cfg.Auth.ShopperSessionDuration, *shopperSessionDuration, "SHOPPER_SESSION_DURATION", "720h"},
		{&cfg.Server.ReadTimeout, *readTimeout, "SERVER_READ_TIMEOUT", "15s"},
		{&cfg.Server.WriteTimeout, *writeTimeout, "SERVER_WRITE_TIMEOUT", "15s"},
		{&cfg.Server.IdleTimeout, *idleTimeout, "SERVER_IDLE_TIMEOUT", "60s"},
		{&cfg.Availability.ReservationTTL, *reservationTTL, "RESERVATION_TTL", "10m"},
		{&cfg.Availability.HeartbeatInterval, *heartbeatInterval, "HEARTBEAT_INTERVAL", "2m"},
		{&cfg.Availability.WarningGrace, *warningGrace, "WARNING_GRACE", "30s"},
	}
	for _, d := range durations {
		raw := getConfigValue(d.flagValue, d.envKey, d.fallback)
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid %s %q: %w", strings.ToLower(d.envKey), raw, err)
		}
		*d.dst = parsed
	}

	// Expand and validate the data path.
	if err := cfg.expandDataPath(); err != nil {
		return nil, fmt.Errorf("invalid data path: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required config values are present and valid.
func (c *Config) Validate() error {
	if c.App.Environment == "" {
		return errors.New("ENV is required")
	}

	validEnvs := map[string]bool{
		"development": true,
		"staging":     true,
		"production":  true,
	}
	if !validEnvs[c.App.Environment] {
		return fmt.Errorf("invalid environment: %s (must be development, staging, or production)", c.App.Environment)
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[strings.ToLower(c.Logger.Level)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logger.Level)
	}

	if c.Data.BasePath == "" {
		return errors.New("data base path cannot be empty after expansion")
	}

	return c.Availability.Validate()
}

// Validate checks the availability tunables against each other. A heartbeat
// at or above the TTL would lapse every hold between beats.
func (a *AvailabilityConfig) Validate() error {
	if a.ReservationTTL <= 0 {
		return errors.New("reservation TTL must be positive")
	}
	if a.HeartbeatInterval <= 0 {
		return errors.New("heartbeat interval must be positive")
	}
	if a.HeartbeatInterval >= a.ReservationTTL {
		return fmt.Errorf("heartbeat interval %s must be below the reservation TTL %s", a.HeartbeatInterval, a.ReservationTTL)
	}
	if a.WarningGrace <= 0 {
		return errors.New("warning grace must be positive")
	}
	if a.MaxCheckoutItems <= 0 {
		return errors.New("max checkout items must be positive")
	}
	return nil
}

// expandPath expands ~ and makes the path absolute.
// If path is empty and defaultPath is provided, uses the default.
func expandPath(path, defaultPath string) (string, error) {
	if path == "" {
		return defaultPath, nil
	}

	// Expand tilde.
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(homeDir, path[2:])
	}

	// Make absolute if needed.
	if !filepath.IsAbs(path) {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("failed to get absolute path: %w", err)
		}
		path = absPath
	}

	return filepath.Clean(path), nil
}

// expandDataPath expands ~ and makes the path absolute.
func (c *Config) expandDataPath() error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}
	defaultPath := filepath.Join(homeDir, "Relove", "data")

	expanded, err := expandPath(c.Data.BasePath, defaultPath)
	if err != nil {
		return err
	}
	c.Data.BasePath = expanded
	return nil
}

// getConfigValue returns the first non-empty value from flag, env var, or default.
func getConfigValue(flagValue, envKey, defaultValue string) string {
	// Priority 1: Command-line flag.
	if flagValue != "" {
		return flagValue
	}

	// Priority 2: Environment variable.
	if envValue := os.Getenv(envKey); envValue != "" {
		return envValue
	}

	// Priority 3: Default value.
	return defaultValue
}

// getIntConfigValue returns an int from flag, env var, or default.
func getIntConfigValue(flagValue, envKey string, defaultValue int) int {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	var result int
	if _, err := fmt.Sscanf(strValue, "%d", &result); err != nil {
		return defaultValue
	}
	return result
}

// loadEnvFile loads environment variables from a .env file.
// Format: KEY=value (one per line, # for comments).
func loadEnvFile(path string) error {
	values, err := parseEnvFile(path)
	if err != nil {
		return err
	}

	for key, value := range values {
		// Only set if not already set (env vars take precedence over .env file).
		if os.Getenv(key) == "" {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("failed to set env var %s: %w", key, err)
			}
		}
	}
	return nil
}

// parseEnvFile reads a .env file into a map without touching the process
// environment. The hot reloader uses this to re-read tunables.
func parseEnvFile(path string) (map[string]string, error) {
	file, err := os.Open(path) //#nosec G304 -- Config file path from user input is expected
	if err != nil {
		return nil, err
	}
	defer file.Close()

	values := make(map[string]string)
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments.
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse KEY=value.
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid format at line %d: %s", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		// Remove quotes if present.
		value = strings.Trim(value, `"'`)
		values[key] = value
	}

	return values, scanner.Err()
}
