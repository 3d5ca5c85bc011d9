package app

import (
	"errors"
	"os"
	"strconv"
	"time"
)

type Config struct {
	RealmURL         string // Required: public base URL of the identity server
	RealmInternalURL string // Optional: reachable base URL when split from the public one
	RealmName        string // Required: realm to authenticate against
	ClientID         string // Required: confidential client id
	ClientSecret     string // Required: confidential client secret

	RegisterResources bool // Optional: register protected resources over UMA at startup

	DatabaseFile        string        // Optional: path to SQLite database file (default: ./resource.db)
	Env                 string        // Environment (dev, staging, prod) (default: dev)
	LogLevel            string        // Log level (debug, info, warn, error) (default: info)
	LogFormat           string        // Log format (json, text) (default: json)
	Port                int           // HTTP server port (default: 8080)
	ShutdownGracePeriod time.Duration // Graceful shutdown timeout (default: 10s)
}

func LoadConfig() (Config, error) {
	cfg := Config{
		RealmURL:            os.Getenv("REALM_URL"),
		RealmInternalURL:    os.Getenv("REALM_INTERNAL_URL"),
		RealmName:           os.Getenv("REALM_NAME"),
		ClientID:            os.Getenv("CLIENT_ID"),
		ClientSecret:        os.Getenv("CLIENT_SECRET"),
		RegisterResources:   getEnvBoolOrDefault("REGISTER_RESOURCES", false),
		DatabaseFile:        getEnvOrDefault("DATABASE_FILE", "resource.db"),
		Env:                 getEnvOrDefault("ENV", "dev"),
		LogLevel:            getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:           getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                getEnvIntOrDefault("PORT", 8080),
		ShutdownGracePeriod: getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
	}

	switch {
	case cfg.RealmURL == "":
		return Config{}, errors.New("REALM_URL is required")
	case cfg.RealmName == "":
		return Config{}, errors.New("REALM_NAME is required")
	case cfg.ClientID == "":
		return Config{}, errors.New("CLIENT_ID is required")
	case cfg.ClientSecret == "":
		return Config{}, errors.New("CLIENT_SECRET is required")
	}

	return cfg, nil
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

	// Plain integers are treated as seconds.
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}

	return defaultValue
}
