package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Browser   BrowserConfig   `yaml:"browser"`
	Wait      WaitConfig      `yaml:"wait"`
	Export    ExportConfig    `yaml:"export"`
	Auth      AuthConfig      `yaml:"auth"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Webhook   WebhookConfig   `yaml:"webhook"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host string `yaml:"host"` // default: "0.0.0.0"
	Port int    `yaml:"port"` // default: 8080
	Mode string `yaml:"mode"` // "debug", "release", "test"; default: "release"

	// ShutdownTimeout bounds draining in-flight requests and pending webhook
	// deliveries on exit.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"` // default: 30s
}

// BrowserConfig selects and tunes the driver backend.
type BrowserConfig struct {
	// Driver is the backend: "rod", "chromedp" or "http". default: "rod"
	Driver string `yaml:"driver"`

	// Headless controls whether the browser runs headless.
	Headless bool `yaml:"headless"` // default: true

	// NoSandbox disables Chrome's sandbox (needed in Docker).
	NoSandbox bool `yaml:"no_sandbox"` // default: false

	// BrowserBin overrides the Chromium binary path.
	BrowserBin string `yaml:"browser_bin"`

	// Proxy is the proxy URL for all page loads.
	Proxy string `yaml:"proxy"`

	// Stealth injects anti-detection evasions into every new document (rod only).
	Stealth bool `yaml:"stealth"`

	// UserAgent overrides the browser user agent when non-empty.
	UserAgent string `yaml:"user_agent"`

	// ExtraHeaders are sent with every page load.
	ExtraHeaders map[string]string `yaml:"extra_headers"`

	// NavigationTimeout bounds a single page load.
	NavigationTimeout time.Duration `yaml:"navigation_timeout"` // default: 30s
}

// WaitConfig controls element waits.
type WaitConfig struct {
	// DefaultTimeout is used when a caller passes no wait time.
	DefaultTimeout time.Duration `yaml:"default_timeout"` // default: 10s

	// PollInterval is the delay between two selector queries.
	PollInterval time.Duration `yaml:"poll_interval"` // default: 500ms
}

// ExportConfig controls CSV export from the API.
type ExportConfig struct {
	// Dir is where API-triggered exports are written.
	Dir string `yaml:"dir"` // default: "."
}

// AuthConfig controls API key authentication.
type AuthConfig struct {
	// Enabled toggles API key authentication.
	Enabled bool `yaml:"enabled"` // default: true

	// APIKeys is the list of valid API keys.
	APIKeys []string `yaml:"api_keys"`
}

// RateLimitConfig controls per-key rate limiting.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate per API key.
	RequestsPerSecond float64 `yaml:"requests_per_second"` // default: 5

	// Burst is the maximum burst size per API key.
	Burst int `yaml:"burst"` // default: 10
}

// WebhookConfig controls delivery of helper action events.
type WebhookConfig struct {
	// URL receives a POST for every completed action. Empty disables delivery.
	URL string `yaml:"url"`

	// Secret signs each body with HMAC-SHA256 when non-empty.
	Secret string `yaml:"secret"`
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // default: "info"
	Format string `yaml:"format"` // "json" or "text"; default: "json"
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Mode: "release",

			ShutdownTimeout: 30 * time.Second,
		},
		Browser: BrowserConfig{
			Driver:            "rod",
			Headless:          true,
			NavigationTimeout: 30 * time.Second,
		},
		Wait: WaitConfig{
			DefaultTimeout: 10 * time.Second,
			PollInterval:   500 * time.Millisecond,
		},
		Export: ExportConfig{
			Dir: ".",
		},
		Auth: AuthConfig{
			Enabled: true,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 5,
			Burst:             10,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load builds the configuration in three layers: built-in defaults, the YAML
// file named by BROWSERKIT_CONFIG_FILE, then environment variables. A .env
// file in the working directory is loaded into the environment first.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}

	cfg := Defaults()
	if path := os.Getenv("BROWSERKIT_CONFIG_FILE"); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// mergeFile decodes the YAML file at path over the current values.
func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Server.Host = envOr("BROWSERKIT_HOST", c.Server.Host)
	c.Server.Port = envIntOr("BROWSERKIT_PORT", c.Server.Port)
	c.Server.Mode = envOr("BROWSERKIT_MODE", c.Server.Mode)
	c.Server.ShutdownTimeout = envDurationOr("BROWSERKIT_SHUTDOWN_TIMEOUT", c.Server.ShutdownTimeout)

	c.Browser.Driver = envOr("BROWSERKIT_DRIVER", c.Browser.Driver)
	c.Browser.Headless = envBoolOr("BROWSERKIT_HEADLESS", c.Browser.Headless)
	c.Browser.NoSandbox = envBoolOr("BROWSERKIT_NO_SANDBOX", c.Browser.NoSandbox)
	c.Browser.BrowserBin = envOr("BROWSERKIT_BROWSER_BIN", c.Browser.BrowserBin)
	c.Browser.Proxy = envOr("BROWSERKIT_PROXY", c.Browser.Proxy)
	c.Browser.Stealth = envBoolOr("BROWSERKIT_STEALTH", c.Browser.Stealth)
	c.Browser.UserAgent = envOr("BROWSERKIT_USER_AGENT", c.Browser.UserAgent)
	c.Browser.ExtraHeaders = envMapOr("BROWSERKIT_EXTRA_HEADERS", c.Browser.ExtraHeaders)
	c.Browser.NavigationTimeout = envDurationOr("BROWSERKIT_NAV_TIMEOUT", c.Browser.NavigationTimeout)

	c.Wait.DefaultTimeout = envDurationOr("BROWSERKIT_WAIT_TIMEOUT", c.Wait.DefaultTimeout)
	c.Wait.PollInterval = envDurationOr("BROWSERKIT_POLL_INTERVAL", c.Wait.PollInterval)

	c.Export.Dir = envOr("BROWSERKIT_EXPORT_DIR", c.Export.Dir)

	c.Auth.Enabled = envBoolOr("BROWSERKIT_AUTH_ENABLED", c.Auth.Enabled)
	c.Auth.APIKeys = envSliceOr("BROWSERKIT_API_KEYS", c.Auth.APIKeys)

	c.RateLimit.RequestsPerSecond = envFloatOr("BROWSERKIT_RATE_RPS", c.RateLimit.RequestsPerSecond)
	c.RateLimit.Burst = envIntOr("BROWSERKIT_RATE_BURST", c.RateLimit.Burst)

	c.Webhook.URL = envOr("BROWSERKIT_WEBHOOK_URL", c.Webhook.URL)
	c.Webhook.Secret = envOr("BROWSERKIT_WEBHOOK_SECRET", c.Webhook.Secret)

	c.Log.Level = envOr("BROWSERKIT_LOG_LEVEL", c.Log.Level)
	c.Log.Format = envOr("BROWSERKIT_LOG_FORMAT", c.Log.Format)
}

// Validate rejects values no component can run with.
func (c *Config) Validate() error {
	switch c.Browser.Driver {
	case "rod", "chromedp", "http":
	default:
		return fmt.Errorf("config: unknown driver %q (want rod, chromedp or http)", c.Browser.Driver)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("config: shutdown timeout must be positive, got %s", c.Server.ShutdownTimeout)
	}
	if c.Browser.NavigationTimeout < 0 {
		return fmt.Errorf("config: navigation timeout must not be negative, got %s", c.Browser.NavigationTimeout)
	}
	if c.Wait.DefaultTimeout <= 0 {
		return fmt.Errorf("config: wait timeout must be positive, got %s", c.Wait.DefaultTimeout)
	}
	if c.Wait.PollInterval <= 0 {
		return fmt.Errorf("config: poll interval must be positive, got %s", c.Wait.PollInterval)
	}
	if c.Webhook.URL != "" {
		u, err := url.Parse(c.Webhook.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("config: webhook url %q must be an absolute http(s) URL", c.Webhook.URL)
		}
	}
	return nil
}

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return fallback
}

// envMapOr parses "Key1=v1,Key2=v2".
func envMapOr(key string, fallback map[string]string) map[string]string {
	pairs := envSliceOr(key, nil)
	if len(pairs) == 0 {
		return fallback
	}
	result := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || strings.TrimSpace(k) == "" {
			continue
		}
		result[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return result
}
