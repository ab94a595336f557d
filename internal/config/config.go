// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes settings for the
// remote café API client, local persistence, cache and session behavior, the
// local bridge server, logging, and observability.
package config

import (
	"errors"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "cafesync")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// APIConfig defines how the remote café API is reached.
type APIConfig struct {
	BaseURL   string        // API_BASE_URL, e.g. https://cafes.example.edu/api
	Timeout   time.Duration // per-request timeout
	RateRPS   float64       // outgoing requests per second
	RateBurst int           // outgoing burst
}

// Config holds all configuration values for the application.
type Config struct {
	// Remote API
	API APIConfig

	// Local state
	DBPath               string        // SQLite path for the key-value store
	CacheTTL             time.Duration // freshness window of cached collection pages
	FavoritesConcurrency int           // parallel detail fetches during favorites sync

	// Location fallback
	LocationTimeout time.Duration
	DefaultLat      float64
	DefaultLng      float64

	// Bridge server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 30s
	IdleTimeout       time.Duration // e.g. 60s
	GinMode           string        // debug|release|test
	APIBasePath       string        // base path for bridge routes

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	SwaggerEnabled bool   // enable Swagger UI route

	// Bridge rate limiting
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads an optional .env file, then configuration from environment
// variables, applies defaults, normalizes values, and validates the result.
// Variables already present in the environment win over .env entries.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		API: APIConfig{
			BaseURL:   strings.TrimRight(strings.TrimSpace(getenv("API_BASE_URL", "")), "/"),
			Timeout:   getdur("API_TIMEOUT", 10*time.Second),
			RateRPS:   getfloat("API_RATE_RPS", 10),
			RateBurst: getint("API_RATE_BURST", 20),
		},

		DBPath:               getenv("DB_PATH", "cafesync.db"),
		CacheTTL:             getdur("CACHE_TTL", 5*time.Minute),
		FavoritesConcurrency: getint("FAVORITES_CONCURRENCY", 4),

		LocationTimeout: getdur("LOCATION_TIMEOUT", 3*time.Second),
		DefaultLat:      getfloat("DEFAULT_LAT", 0),
		DefaultLng:      getfloat("DEFAULT_LNG", 0),

		Port:              getenv("PORT", "8787"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 30*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),
		APIBasePath:       normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),

		RateRPS:   getfloat("RATE_RPS", 20.0),
		RateBurst: getint("RATE_BURST", 40),

		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "cafesync"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if cfg.API.BaseURL == "" {
		return cfg, errors.New("API_BASE_URL must not be empty")
	}
	if u, err := url.Parse(cfg.API.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return cfg, errors.New("API_BASE_URL must be an absolute http(s) URL")
	}
	if cfg.API.Timeout <= 0 {
		return cfg, errors.New("API_TIMEOUT must be > 0")
	}
	if cfg.API.RateRPS <= 0 {
		return cfg, errors.New("API_RATE_RPS must be > 0")
	}
	if cfg.API.RateBurst < 1 {
		return cfg, errors.New("API_RATE_BURST must be >= 1")
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		return cfg, errors.New("DB_PATH must not be empty")
	}
	if cfg.CacheTTL <= 0 {
		return cfg, errors.New("CACHE_TTL must be > 0")
	}
	if cfg.FavoritesConcurrency < 1 {
		return cfg, errors.New("FAVORITES_CONCURRENCY must be >= 1")
	}
	if cfg.LocationTimeout <= 0 {
		return cfg, errors.New("LOCATION_TIMEOUT must be > 0")
	}
	if cfg.DefaultLat < -90 || cfg.DefaultLat > 90 || cfg.DefaultLng < -180 || cfg.DefaultLng > 180 {
		return cfg, errors.New("DEFAULT_LAT/DEFAULT_LNG out of range")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// ---- helpers ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
