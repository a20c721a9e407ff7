// Package config loads server configuration from environment variables.
//
// Optional variables:
//   - STORE_BACKEND: "memory" (default) or "postgres".
//   - DATABASE_URL: PostgreSQL connection string (required when
//     STORE_BACKEND is "postgres").
//   - HTTP_ADDR: listen address for the HTTP server (default ":8080").
//   - LOG_LEVEL: minimum log level (default "info").
//   - LOG_FORMAT: "json" (default) or "text".
//   - AUTO_CREATE: lazily create missing features as disabled on first
//     access (default "false").
//   - API_KEY_HASHES: comma-separated bcrypt hashes of accepted API keys;
//     when empty, authentication is disabled.
//   - AUTH_RATE_LIMIT: max failed auth attempts per IP per minute
//     (default "10", must be > 0 if set).
//   - MAX_JSON_BODY_SIZE: max HTTP JSON request body size in bytes
//     (default "1048576", must be > 0 if set).
//   - SHUTDOWN_TIMEOUT: graceful shutdown deadline (default "10s", must be
//     > 0 if set).
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	// BackendMemory selects the in-memory feature store.
	BackendMemory = "memory"

	// BackendPostgres selects the PostgreSQL-backed feature store.
	BackendPostgres = "postgres"
)

const (
	defaultHTTPAddr              = ":8080"
	defaultAuthRateLimit         = 10
	defaultMaxJSONBodySize int64 = 1 << 20 // 1MB
	defaultShutdownTimeout       = 10 * time.Second
)

// Config holds the runtime configuration for the featflip server.
type Config struct {
	StoreBackend    string
	DatabaseURL     string
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	AutoCreate      bool
	APIKeyHashes    []string
	AuthRateLimit   int
	MaxJSONBodySize int64
	ShutdownTimeout time.Duration
}

// Load reads configuration from environment variables, applying defaults
// where appropriate. It returns an error if required variables are missing
// or if optional values fail validation.
func Load() (Config, error) {
	storeBackend := strings.ToLower(strings.TrimSpace(os.Getenv("STORE_BACKEND")))
	if storeBackend == "" {
		storeBackend = BackendMemory
	}
	if storeBackend != BackendMemory && storeBackend != BackendPostgres {
		return Config{}, fmt.Errorf("STORE_BACKEND must be %q or %q, got %q", BackendMemory, BackendPostgres, storeBackend)
	}

	databaseURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if storeBackend == BackendPostgres && databaseURL == "" {
		return Config{}, errors.New("DATABASE_URL is required when STORE_BACKEND is postgres")
	}

	httpAddr := strings.TrimSpace(os.Getenv("HTTP_ADDR"))
	if httpAddr == "" {
		httpAddr = defaultHTTPAddr
	}

	autoCreate := false
	if value := strings.TrimSpace(os.Getenv("AUTO_CREATE")); value != "" {
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			return Config{}, fmt.Errorf("parse AUTO_CREATE: %w", err)
		}
		autoCreate = parsed
	}

	var apiKeyHashes []string
	for _, hash := range strings.Split(os.Getenv("API_KEY_HASHES"), ",") {
		if hash = strings.TrimSpace(hash); hash != "" {
			apiKeyHashes = append(apiKeyHashes, hash)
		}
	}

	authRateLimit := defaultAuthRateLimit
	if value := strings.TrimSpace(os.Getenv("AUTH_RATE_LIMIT")); value != "" {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return Config{}, fmt.Errorf("parse AUTH_RATE_LIMIT: %w", err)
		}
		if parsed <= 0 {
			return Config{}, errors.New("AUTH_RATE_LIMIT must be > 0")
		}
		authRateLimit = parsed
	}

	maxJSONBodySize := defaultMaxJSONBodySize
	if value := strings.TrimSpace(os.Getenv("MAX_JSON_BODY_SIZE")); value != "" {
		parsed, err := strconv.ParseInt(value, 10, 64)
		if err != nil || parsed < 1 {
			return Config{}, errors.New("MAX_JSON_BODY_SIZE must be a positive integer (bytes)")
		}
		maxJSONBodySize = parsed
	}

	shutdownTimeout := defaultShutdownTimeout
	if value := strings.TrimSpace(os.Getenv("SHUTDOWN_TIMEOUT")); value != "" {
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return Config{}, fmt.Errorf("parse SHUTDOWN_TIMEOUT: %w", err)
		}
		if parsed <= 0 {
			return Config{}, errors.New("SHUTDOWN_TIMEOUT must be > 0")
		}
		shutdownTimeout = parsed
	}

	return Config{
		StoreBackend:    storeBackend,
		DatabaseURL:     databaseURL,
		HTTPAddr:        httpAddr,
		LogLevel:        strings.TrimSpace(os.Getenv("LOG_LEVEL")),
		LogFormat:       strings.TrimSpace(os.Getenv("LOG_FORMAT")),
		AutoCreate:      autoCreate,
		APIKeyHashes:    apiKeyHashes,
		AuthRateLimit:   authRateLimit,
		MaxJSONBodySize: maxJSONBodySize,
		ShutdownTimeout: shutdownTimeout,
	}, nil
}
