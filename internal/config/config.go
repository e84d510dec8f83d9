package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the candlelens server.
type Config struct {
	Port      int
	Version   string
	LogLevel  string
	StaticDir string

	TaxonomyPath string
	HTTPTimeout  time.Duration

	Replicate ReplicateConfig
	DeepSeek  DeepSeekConfig
	Telemetry TelemetryConfig
	Auth      AuthConfig
}

type ReplicateConfig struct {
	APIToken          string
	BaseURL           string
	VisionVersion     string
	WarmupImageURL    string
	PollInterval      time.Duration
	VisionMaxAttempts int
	WarmupMaxAttempts int
}

type DeepSeekConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

type TelemetryConfig struct {
	Enabled      bool
	OTLPEndpoint string
	ServiceName  string
}

type AuthConfig struct {
	// Comma-separated in CANDLELENS_API_KEYS; empty disables the guard
	APIKeys []string
}

// LoadDotEnv loads .env files into the process environment without
// overriding variables that are already set. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		Port:         envInt("PORT", 3000),
		Version:      envStr("CANDLELENS_VERSION", "0.1.0"),
		LogLevel:     envStr("LOG_LEVEL", "info"),
		StaticDir:    envStr("STATIC_DIR", "static"),
		TaxonomyPath: envStr("TAXONOMY_PATH", "candlestick_patterns.csv"),
		HTTPTimeout:  envDuration("HTTP_TIMEOUT", 5*time.Minute),
		Replicate: ReplicateConfig{
			APIToken:          envStr("REPLICATE_API_TOKEN", ""),
			BaseURL:           envStr("REPLICATE_BASE_URL", "https://api.replicate.com"),
			VisionVersion:     envStr("VISION_MODEL_VERSION", "e5caf557dd9e5dcee46442e1315291ef1867f027991ede8ff95e304d4f734200"),
			WarmupImageURL:    envStr("WARMUP_IMAGE_URL", "https://replicate.delivery/pbxt/MTtsBStHRqLDgNZMkt0J7PptoJ3lseSUNcGaDkG230ttNJlT/workflow.png"),
			PollInterval:      envDuration("POLL_INTERVAL", 3*time.Second),
			VisionMaxAttempts: envInt("VISION_MAX_ATTEMPTS", 100),
			WarmupMaxAttempts: envInt("WARMUP_MAX_ATTEMPTS", 120),
		},
		DeepSeek: DeepSeekConfig{
			APIKey:  envStr("DEEPSEEK_API_KEY", ""),
			BaseURL: envStr("DEEPSEEK_BASE_URL", "https://api.deepseek.com"),
			Model:   envStr("DEEPSEEK_MODEL", "deepseek-reasoner"),
		},
		Telemetry: TelemetryConfig{
			Enabled:      envBool("OTEL_ENABLED", false),
			OTLPEndpoint: envStr("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			ServiceName:  envStr("OTEL_SERVICE_NAME", "candlelens"),
		},
		Auth: AuthConfig{
			APIKeys: envList("CANDLELENS_API_KEYS"),
		},
	}
}

// Validate reports missing credentials and nonsensical limits.
func (c *Config) Validate() error {
	var errs []error
	if c.Replicate.APIToken == "" {
		errs = append(errs, errors.New("REPLICATE_API_TOKEN must be set"))
	}
	if c.DeepSeek.APIKey == "" {
		errs = append(errs, errors.New("DEEPSEEK_API_KEY must be set"))
	}
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT %d is out of range", c.Port))
	}
	if c.Replicate.PollInterval <= 0 {
		errs = append(errs, errors.New("POLL_INTERVAL must be positive"))
	}
	if c.Replicate.VisionMaxAttempts <= 0 || c.Replicate.WarmupMaxAttempts <= 0 {
		errs = append(errs, errors.New("VISION_MAX_ATTEMPTS and WARMUP_MAX_ATTEMPTS must be positive"))
	}
	return errors.Join(errs...)
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
