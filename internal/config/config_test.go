package config

import (
	"testing"
	"time"
)

func validConfig() *Config {
	return &Config{
		APIBaseURL:          "http://example.com/api",
		ComplaintsPath:      "/complaints",
		UserStatsPath:       "/users/stats",
		Transport:           TransportHTTP,
		WindowDays:          30,
		RefreshInterval:     time.Minute,
		PageSize:            50,
		MaxPages:            10,
		BreakerFailureRatio: 0.6,
		BreakerMinRequests:  10,
		HealthCheckPort:     "8080",
		AlertAfterFailures:  3,
		LogFormat:           "console",
	}
}

func TestLoadConfig(t *testing.T) {
	origEmbedded := embeddedEnv
	embeddedEnv = ""
	defer func() { embeddedEnv = origEmbedded }()

	t.Setenv("API_BASE_URL", "")
	if _, err := LoadConfig(); err == nil {
		t.Error("expected error for missing API_BASE_URL")
	}

	t.Setenv("API_BASE_URL", "https://admin.example.com/api/")
	t.Setenv("REFRESH_INTERVAL", "30000")
	t.Setenv("MAX_PAGES", "2")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("expected no error but got: %v", err)
	}

	if cfg.APIBaseURL != "https://admin.example.com/api" {
		t.Errorf("expected trailing slash trimmed, got %q", cfg.APIBaseURL)
	}
	if cfg.CollectionURL() != "https://admin.example.com/api/complaints" {
		t.Errorf("unexpected collection URL %q", cfg.CollectionURL())
	}
	if cfg.RefreshInterval != 30*time.Second {
		t.Errorf("expected millisecond interval to parse to 30s but got %v", cfg.RefreshInterval)
	}
	if cfg.MaxPages != 2 {
		t.Errorf("expected MaxPages=2 but got %d", cfg.MaxPages)
	}

	// Defaults
	if cfg.WindowDays != 30 {
		t.Errorf("expected default WindowDays=30 but got %d", cfg.WindowDays)
	}
	if cfg.PageSize != 100 {
		t.Errorf("expected default PageSize=100 but got %d", cfg.PageSize)
	}
	if cfg.Transport != TransportHTTP {
		t.Errorf("expected default transport http but got %q", cfg.Transport)
	}
}

func TestLoadConfig_EmbeddedDefaults(t *testing.T) {
	origEmbedded := embeddedEnv
	embeddedEnv = "WINDOW_DAYS=90\nSORT=createdAt"
	defer func() { embeddedEnv = origEmbedded }()

	t.Setenv("API_BASE_URL", "http://localhost:9000")
	t.Setenv("WINDOW_DAYS", "")
	t.Setenv("SORT", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("expected no error but got: %v", err)
	}
	if cfg.WindowDays != 90 {
		t.Errorf("expected embedded WINDOW_DAYS=90 but got %d", cfg.WindowDays)
	}
	if cfg.Sort != "createdAt" {
		t.Errorf("expected embedded SORT but got %q", cfg.Sort)
	}
}

func TestGetEnvOrDefault(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue string
		envValue     string
		expected     string
	}{
		{"env var set", "CMON_TEST_VAR", "default", "custom", "custom"},
		{"env var not set", "CMON_NONEXISTENT_VAR", "default", "", "default"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.envValue)

			result := getEnvOrDefault(tt.key, tt.defaultValue)
			if result != tt.expected {
				t.Errorf("expected %q but got %q", tt.expected, result)
			}
		})
	}
}

func TestGetEnvInt(t *testing.T) {
	tests := []struct {
		name         string
		envValue     string
		defaultValue int
		expected     int
	}{
		{"valid int", "25", 10, 25},
		{"invalid int uses default", "notanumber", 10, 10},
		{"empty uses default", "", 10, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("CMON_TEST_INT", tt.envValue)

			result := getEnvInt("CMON_TEST_INT", tt.defaultValue)
			if result != tt.expected {
				t.Errorf("expected %d but got %d", tt.expected, result)
			}
		})
	}
}

func TestGetEnvDuration(t *testing.T) {
	tests := []struct {
		envValue string
		expected time.Duration
	}{
		{"90s", 90 * time.Second},
		{"1500", 1500 * time.Millisecond},
		{"soon", time.Minute},
		{"", time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.envValue, func(t *testing.T) {
			t.Setenv("CMON_TEST_DURATION", tt.envValue)

			if got := getEnvDuration("CMON_TEST_DURATION", time.Minute); got != tt.expected {
				t.Errorf("expected %v but got %v", tt.expected, got)
			}
		})
	}
}

func TestGetEnvList(t *testing.T) {
	t.Setenv("CMON_TEST_LIST", " https://a.example.com, ,https://b.example.com ")
	got := getEnvList("CMON_TEST_LIST")
	if len(got) != 2 || got[0] != "https://a.example.com" || got[1] != "https://b.example.com" {
		t.Errorf("unexpected list %q", got)
	}

	t.Setenv("CMON_TEST_LIST", "")
	if got := getEnvList("CMON_TEST_LIST"); got != nil {
		t.Errorf("expected nil but got %q", got)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(c *Config)
		expectErr bool
	}{
		{"valid config", func(c *Config) {}, false},
		{"missing base url", func(c *Config) { c.APIBaseURL = "" }, true},
		{"invalid base url", func(c *Config) { c.APIBaseURL = "not a url" }, true},
		{"zero window", func(c *Config) { c.WindowDays = 0 }, true},
		{"zero max pages", func(c *Config) { c.MaxPages = 0 }, true},
		{"interval too short", func(c *Config) { c.RefreshInterval = 10 * time.Millisecond }, true},
		{"unknown transport", func(c *Config) { c.Transport = "grpc" }, true},
		{"browser without profile", func(c *Config) { c.Transport = TransportBrowser }, true},
		{"browser with profile", func(c *Config) {
			c.Transport = TransportBrowser
			c.BrowserUserDataDir = "/tmp/chrome"
		}, false},
		{"telegram token without chat", func(c *Config) { c.TelegramBotToken = "123:abc" }, true},
		{"breaker ratio out of range", func(c *Config) { c.BreakerFailureRatio = 1.5 }, true},
		{"negative refetch limit", func(c *Config) { c.RefetchRateLimit = -1 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.expectErr && err == nil {
				t.Error("expected error but got nil")
			}
			if !tt.expectErr && err != nil {
				t.Errorf("expected no error but got: %v", err)
			}
		})
	}
}
