// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes application settings
// such as server timeouts, logging, database paths, booking windows, abuse
// thresholds, mail delivery, rate limiting, and observability.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
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
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "go-booking-backend")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// SMTPConfig defines outgoing mail settings. Delivery is disabled when Host
// is empty; the rest of the application treats mail as best effort.
type SMTPConfig struct {
	Host        string // SMTP_HOST; empty disables mail delivery
	Port        int    // SMTP_PORT
	Username    string // SMTP_USERNAME; empty submits without AUTH
	Password    string // SMTP_PASSWORD
	From        string // SMTP_FROM
	StudioEmail string // STUDIO_EMAIL; inbox for new-booking alerts
}

// AbuseConfig tunes the submission gate. Zero values fall back to the gate's
// built-in defaults.
type AbuseConfig struct {
	MaxPerWindow    int           // ABUSE_MAX_PER_WINDOW
	RateWindow      time.Duration // ABUSE_RATE_WINDOW
	DuplicateWindow time.Duration // ABUSE_DUPLICATE_WINDOW
	BlockThreshold  int           // ABUSE_BLOCK_THRESHOLD
	RejectScore     int           // ABUSE_REJECT_SCORE
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	SwaggerEnabled bool   // enable Swagger UI route
	APIBasePath    string // base path for API routes

	// App
	DBPath     string        // SQLite path
	AdminToken string        // shared secret for the admin surface
	BaseURL    string        // public origin for confirm/reject mail links
	Timezone   string        // studio local time zone, IANA name
	WindowDays int           // how far ahead availability looks
	CacheTTL   time.Duration // availability snapshot staleness bound
	RedisAddr  string        // optional host:port; empty selects in-memory cache

	// Rate limiting
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Submission gate
	Abuse AbuseConfig

	// Mail
	SMTP SMTPConfig

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

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging / Docs
		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		// App
		DBPath:     getenv("DB_PATH", "bookings.db"),
		AdminToken: getenv("ADMIN_TOKEN", ""),
		BaseURL:    strings.TrimRight(getenv("BASE_URL", "http://localhost:8080"), "/"),
		Timezone:   getenv("TIMEZONE", "Europe/Kyiv"),
		WindowDays: getint("WINDOW_DAYS", 7),
		CacheTTL:   getdur("CACHE_TTL", 5*time.Minute),
		RedisAddr:  getenv("REDIS_ADDR", ""),

		// Rate limiting
		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

		// Submission gate
		Abuse: AbuseConfig{
			MaxPerWindow:    getint("ABUSE_MAX_PER_WINDOW", 3),
			RateWindow:      getdur("ABUSE_RATE_WINDOW", time.Hour),
			DuplicateWindow: getdur("ABUSE_DUPLICATE_WINDOW", 10*time.Minute),
			BlockThreshold:  getint("ABUSE_BLOCK_THRESHOLD", 5),
			RejectScore:     getint("ABUSE_REJECT_SCORE", 3),
		},

		// Mail
		SMTP: SMTPConfig{
			Host:        getenv("SMTP_HOST", ""),
			Port:        getint("SMTP_PORT", 587),
			Username:    getenv("SMTP_USERNAME", ""),
			Password:    getenv("SMTP_PASSWORD", ""),
			From:        getenv("SMTP_FROM", "bookings@localhost"),
			StudioEmail: getenv("STUDIO_EMAIL", ""),
		},

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "go-booking-backend"),
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
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		return cfg, errors.New("DB_PATH must not be empty")
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return cfg, errors.New("BASE_URL must not be empty")
	}
	if cfg.WindowDays < 1 {
		return cfg, errors.New("WINDOW_DAYS must be >= 1")
	}
	if cfg.CacheTTL <= 0 {
		return cfg, errors.New("CACHE_TTL must be > 0")
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.Abuse.MaxPerWindow < 1 || cfg.Abuse.BlockThreshold < 1 || cfg.Abuse.RejectScore < 1 {
		return cfg, errors.New("abuse thresholds must be >= 1")
	}
	if cfg.Abuse.RateWindow <= 0 || cfg.Abuse.DuplicateWindow <= 0 {
		return cfg, errors.New("abuse windows must be positive durations")
	}
	if cfg.SMTP.Host != "" && (cfg.SMTP.Port < 1 || cfg.SMTP.Port > 65535) {
		return cfg, errors.New("SMTP_PORT must be a valid port")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// ---- helpers (no external deps) ----

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
