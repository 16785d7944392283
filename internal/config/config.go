// Package config provides configuration management for the reporting service.
//
// This package handles loading configuration from environment variables,
// validating required settings, and providing sensible defaults for optional
// parameters. Configuration is loaded once at startup and remains immutable
// during runtime for thread-safety.
//
// Configuration sources (in order of precedence):
//  1. Environment variables (highest priority)
//  2. External .env file in the working directory
//  3. Embedded defaults.env (fallback, included in binary)
//  4. Hard-coded defaults (lowest priority)
package config

import (
	_ "embed"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

//go:embed defaults.env
var embeddedEnv string

var validate = validator.New()

// Transport names accepted by TRANSPORT.
const (
	TransportHTTP    = "http"
	TransportBrowser = "browser"
)

// Config holds all application configuration.
//
// This struct is immutable after creation. Durations accept Go duration
// strings ("60s", "5m").
type Config struct {
	// Admin API endpoints
	APIBaseURL     string `validate:"required,url"` // e.g. https://admin.example.com/api
	ComplaintsPath string `validate:"required"`     // Paginated complaint collection
	UserStatsPath  string `validate:"required"`     // Aggregate user counts
	APIToken       string // Bearer token, optional

	// Transport selection
	Transport          string `validate:"oneof=http browser"`
	BrowserUserDataDir string // Chrome profile holding an authenticated session
	BrowserHeadless    bool

	// Analytics and polling
	WindowDays      int           `validate:"gte=1"`
	RefreshInterval time.Duration `validate:"gte=1s"`
	PageSize        int           `validate:"gte=1,lte=1000"`
	MaxPages        int           `validate:"gte=1"`
	Sort            string

	// HTTP client and circuit breaker
	HTTPTimeout         time.Duration
	HTTPMaxConns        int
	BreakerFailureRatio float64 `validate:"gt=0,lte=1"`
	BreakerMinRequests  int     `validate:"gte=1"`
	BreakerOpenTimeout  time.Duration

	// Health / consumer HTTP server
	HealthCheckPort    string   `validate:"required,numeric"`
	CORSAllowedOrigins []string // Empty disables CORS headers
	RefetchRateLimit   int      `validate:"gte=0"` // Manual refetches per IP per minute, 0 disables

	// Telegram digest (optional)
	TelegramBotToken   string
	TelegramChatID     string
	AlertAfterFailures int `validate:"gte=1"`

	// Insight localization (optional)
	TranslateAPIKey string
	InsightLanguage string

	// Logging
	LogLevel  string
	LogFormat string `validate:"oneof=json console"`

	// Debug mode - notifications are logged instead of sent
	DebugMode bool
}

// LoadConfig loads configuration from environment variables with defaults.
//
// Loading process:
//  1. Load external .env file if present (does not override real env vars)
//  2. Parse embedded defaults.env and fill whatever is still unset
//  3. Read environment variables and apply hard-coded defaults
//  4. Validate
//
// Returns:
//   - *Config: Fully populated configuration struct
//   - error: Validation error if required fields are missing or invalid
func LoadConfig() (*Config, error) {
	// External .env first: godotenv.Load never overrides variables that are
	// already set, so loading it before the embedded file gives it priority.
	_ = godotenv.Load()

	envMap, err := godotenv.Unmarshal(embeddedEnv)
	if err == nil {
		for k, v := range envMap {
			if os.Getenv(k) == "" {
				os.Setenv(k, v)
			}
		}
	}

	cfg := &Config{
		APIBaseURL:     strings.TrimRight(os.Getenv("API_BASE_URL"), "/"),
		ComplaintsPath: getEnvOrDefault("COMPLAINTS_PATH", "/complaints"),
		UserStatsPath:  getEnvOrDefault("USER_STATS_PATH", "/users/stats"),
		APIToken:       os.Getenv("API_TOKEN"),

		Transport:          strings.ToLower(getEnvOrDefault("TRANSPORT", TransportHTTP)),
		BrowserUserDataDir: os.Getenv("BROWSER_USER_DATA_DIR"),
		BrowserHeadless:    getEnvBool("BROWSER_HEADLESS", true),

		WindowDays:      getEnvInt("WINDOW_DAYS", 30),
		RefreshInterval: getEnvDuration("REFRESH_INTERVAL", 60*time.Second),
		PageSize:        getEnvInt("PAGE_SIZE", 100),
		MaxPages:        getEnvInt("MAX_PAGES", 50),
		Sort:            getEnvOrDefault("SORT", "-createdAt"),

		HTTPTimeout:         getEnvDuration("HTTP_TIMEOUT", 30*time.Second),
		HTTPMaxConns:        getEnvInt("HTTP_MAX_CONNS", 100),
		BreakerFailureRatio: getEnvFloat("BREAKER_FAILURE_RATIO", 0.6),
		BreakerMinRequests:  getEnvInt("BREAKER_MIN_REQUESTS", 10),
		BreakerOpenTimeout:  getEnvDuration("BREAKER_OPEN_TIMEOUT", 2*time.Minute),

		HealthCheckPort:    getEnvOrDefault("HEALTH_CHECK_PORT", "8080"),
		CORSAllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS"),
		RefetchRateLimit:   getEnvInt("REFETCH_RATE_LIMIT", 6),

		TelegramBotToken:   os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramChatID:     os.Getenv("TELEGRAM_CHAT_ID"),
		AlertAfterFailures: getEnvInt("ALERT_AFTER_FAILURES", 3),

		TranslateAPIKey: os.Getenv("TRANSLATE_API_KEY"),
		InsightLanguage: os.Getenv("INSIGHT_LANGUAGE"),

		LogLevel:  getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat: getEnvOrDefault("LOG_FORMAT", "console"),

		DebugMode: getEnvBool("DEBUG_MODE", false),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that required configuration is present and values are sensible.
func (c *Config) Validate() error {
	if c.APIBaseURL == "" {
		return fmt.Errorf("API_BASE_URL environment variable is required")
	}
	if c.Transport == TransportBrowser && c.BrowserUserDataDir == "" {
		return fmt.Errorf("BROWSER_USER_DATA_DIR is required when TRANSPORT=browser")
	}
	if (c.TelegramBotToken == "") != (c.TelegramChatID == "") {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN and TELEGRAM_CHAT_ID must be set together")
	}

	if err := validate.Struct(c); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("invalid configuration: %s failed %q (value %v)", fe.Field(), fe.Tag(), fe.Value())
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}

	return nil
}

// CollectionURL returns the absolute URL of the complaint collection.
func (c *Config) CollectionURL() string {
	return c.APIBaseURL + c.ComplaintsPath
}

// Helper functions for environment variable parsing

// getEnvOrDefault returns the environment variable value or a default if not set
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvList returns a comma-separated environment variable as a slice,
// dropping empty entries
func getEnvList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// getEnvInt returns the environment variable as an integer or a default if not set/invalid
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvDuration returns the environment variable as a duration or a default if not set/invalid.
//
// Accepts standard Go duration strings like "5s", "10m", "1h30m". A bare
// integer is read as milliseconds so REFRESH_INTERVAL=60000 keeps working.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
		if ms, err := strconv.Atoi(value); err == nil {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return defaultValue
}
