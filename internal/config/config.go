package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Store backends accepted by STORE_BACKEND.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendMongo    = "mongo"
)

// Config holds runtime configuration sourced from env vars.
type Config struct {
	Port          string
	StoreBackend  string
	DatabaseURL   string
	MongoURI      string
	MongoDatabase string
	RedisURL      string

	JWTSecret string
	JWTIssuer string
	// JWTTTL of zero issues tokens without an exp claim.
	JWTTTL      time.Duration
	CORSOrigins []string

	IdentityAPIURL   string
	IdentityAPIToken string
	IPLookupURL      string
	GeneratorURL     string
	GeneratorAPIKey  string
	OutboundTimeout  time.Duration

	LogLevel slog.Level
}

// Load reads configuration from the environment and performs minimal validation.
func Load() (Config, error) {
	cfg := Config{
		Port:             fallback(os.Getenv("PORT"), "8080"),
		StoreBackend:     strings.ToLower(fallback(os.Getenv("STORE_BACKEND"), BackendMemory)),
		DatabaseURL:      strings.TrimSpace(os.Getenv("DATABASE_URL")),
		MongoURI:         strings.TrimSpace(os.Getenv("MONGODB_URI")),
		MongoDatabase:    fallback(os.Getenv("MONGODB_DATABASE"), "barrio_seguro"),
		RedisURL:         strings.TrimSpace(os.Getenv("REDIS_URL")),
		JWTSecret:        strings.TrimSpace(os.Getenv("JWT_SECRET")),
		JWTIssuer:        fallback(os.Getenv("JWT_ISSUER"), "barrio-seguro-backend"),
		CORSOrigins:      parseCSV(fallback(os.Getenv("CORS_ALLOWED_ORIGINS"), "*")),
		IdentityAPIURL:   strings.TrimSpace(os.Getenv("IDENTITY_API_URL")),
		IdentityAPIToken: strings.TrimSpace(os.Getenv("IDENTITY_API_TOKEN")),
		IPLookupURL:      fallback(os.Getenv("IP_LOOKUP_URL"), "https://api.ipify.org?format=json"),
		GeneratorURL:     strings.TrimSpace(os.Getenv("GENERATOR_URL")),
		GeneratorAPIKey:  strings.TrimSpace(os.Getenv("GENERATOR_API_KEY")),
		LogLevel:         parseLevel(os.Getenv("LOG_LEVEL")),
	}

	minutes := fallback(os.Getenv("JWT_TTL_MINUTES"), "0")
	if ttlMinutes, err := strconv.Atoi(minutes); err == nil && ttlMinutes > 0 {
		cfg.JWTTTL = time.Duration(ttlMinutes) * time.Minute
	}

	seconds := fallback(os.Getenv("OUTBOUND_TIMEOUT_SECONDS"), "10")
	if s, err := strconv.Atoi(seconds); err == nil && s > 0 {
		cfg.OutboundTimeout = time.Duration(s) * time.Second
	} else {
		cfg.OutboundTimeout = 10 * time.Second
	}

	if cfg.JWTSecret == "" {
		return Config{}, errors.New("JWT_SECRET is required")
	}
	switch cfg.StoreBackend {
	case BackendMemory:
	case BackendPostgres:
		if cfg.DatabaseURL == "" {
			return Config{}, errors.New("DATABASE_URL is required for the postgres backend")
		}
	case BackendMongo:
		if cfg.MongoURI == "" {
			return Config{}, errors.New("MONGODB_URI is required for the mongo backend")
		}
	default:
		return Config{}, fmt.Errorf("unknown STORE_BACKEND %q", cfg.StoreBackend)
	}

	return cfg, nil
}

// HTTPAddress returns the host:port pair for the HTTP server to bind to.
func (c Config) HTTPAddress() string {
	return fmt.Sprintf(":%s", c.Port)
}

func fallback(value, def string) string {
	if strings.TrimSpace(value) == "" {
		return def
	}
	return strings.TrimSpace(value)
}

func parseCSV(input string) []string {
	parts := strings.Split(input, ",")
	var out []string
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}

func parseLevel(input string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(input))); err != nil {
		return slog.LevelInfo
	}
	return level
}
