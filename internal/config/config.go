package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/fortuna/vetoscope/internal/platform/logging"
)

const (
	FetchModeHTTP    = "http"
	FetchModeBrowser = "browser"

	LogFormatJSON    = "json"
	LogFormatConsole = "console"

	DefaultBaseURL   = "https://www.vlr.gg"
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// Config stores runtime configuration for the CLI and the server.
type Config struct {
	BaseURL string

	FetchTimeout       time.Duration
	FetchAttempts      int
	FetchBackoffBase   time.Duration
	FetchBackoffJitter time.Duration
	FetchMode          string
	UserAgent          string

	PageDelay  time.Duration
	MatchDelay time.Duration
	MaxMatches int

	CacheEnabled   bool
	RedisURL       string
	CacheTTL       time.Duration
	PublishEnabled bool

	StoreDSN string
	RESTPort string

	LogLevel  logging.Level
	LogFormat string
}

// Load reads the environment, applying defaults for anything unset.
func Load() (Config, error) {
	cfg := Config{
		FetchMode: strings.ToLower(strings.TrimSpace(getEnv("FETCH_MODE", FetchModeHTTP))),
		UserAgent: getEnv("USER_AGENT", DefaultUserAgent),
		RedisURL:  getEnv("REDIS_URL", "redis://localhost:6379/0"),
		RESTPort:  getEnv("REST_PORT", "8080"),
		LogFormat: strings.ToLower(strings.TrimSpace(getEnv("LOG_FORMAT", LogFormatJSON))),
	}

	baseURL, err := parseBaseURL(getEnv("VETOSCOPE_BASE_URL", DefaultBaseURL))
	if err != nil {
		return Config{}, err
	}
	cfg.BaseURL = baseURL

	durations := []struct {
		key      string
		fallback time.Duration
		dst      *time.Duration
	}{
		{"FETCH_TIMEOUT", 60 * time.Second, &cfg.FetchTimeout},
		{"FETCH_BACKOFF_BASE", 500 * time.Millisecond, &cfg.FetchBackoffBase},
		{"FETCH_BACKOFF_JITTER", 300 * time.Millisecond, &cfg.FetchBackoffJitter},
		{"PAGE_DELAY", 500 * time.Millisecond, &cfg.PageDelay},
		{"MATCH_DELAY", 400 * time.Millisecond, &cfg.MatchDelay},
		{"CACHE_TTL", 6 * time.Hour, &cfg.CacheTTL},
	}
	for _, d := range durations {
		v, err := getEnvAsDuration(d.key, d.fallback)
		if err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", d.key, err)
		}
		if v < 0 {
			return Config{}, fmt.Errorf("%s must not be negative", d.key)
		}
		*d.dst = v
	}
	if cfg.FetchTimeout == 0 {
		return Config{}, fmt.Errorf("FETCH_TIMEOUT must be positive")
	}

	if cfg.FetchAttempts, err = getEnvAsInt("FETCH_ATTEMPTS", 3); err != nil {
		return Config{}, fmt.Errorf("parse FETCH_ATTEMPTS: %w", err)
	}
	if cfg.FetchAttempts < 1 {
		return Config{}, fmt.Errorf("FETCH_ATTEMPTS must be at least 1")
	}

	if cfg.MaxMatches, err = getEnvAsInt("MAX_MATCHES", 100); err != nil {
		return Config{}, fmt.Errorf("parse MAX_MATCHES: %w", err)
	}
	if cfg.MaxMatches < 1 {
		return Config{}, fmt.Errorf("MAX_MATCHES must be at least 1")
	}

	if cfg.CacheEnabled, err = strconv.ParseBool(getEnv("CACHE_ENABLED", "false")); err != nil {
		return Config{}, fmt.Errorf("parse CACHE_ENABLED: %w", err)
	}
	if cfg.PublishEnabled, err = strconv.ParseBool(getEnv("PUBLISH_ENABLED", "false")); err != nil {
		return Config{}, fmt.Errorf("parse PUBLISH_ENABLED: %w", err)
	}

	switch cfg.FetchMode {
	case FetchModeHTTP, FetchModeBrowser:
	default:
		return Config{}, fmt.Errorf("invalid FETCH_MODE %q: valid values are %s, %s", cfg.FetchMode, FetchModeHTTP, FetchModeBrowser)
	}

	switch cfg.LogFormat {
	case LogFormatJSON, LogFormatConsole:
	default:
		return Config{}, fmt.Errorf("invalid LOG_FORMAT %q: valid values are %s, %s", cfg.LogFormat, LogFormatJSON, LogFormatConsole)
	}

	if cfg.LogLevel, err = logging.ParseLevel(getEnv("LOG_LEVEL", "info")); err != nil {
		return Config{}, fmt.Errorf("parse LOG_LEVEL: %w", err)
	}

	cfg.StoreDSN = getEnv("STORE_DSN", "")
	if cfg.StoreDSN == "" {
		cfg.StoreDSN = DefaultStorePath()
	}

	return cfg, nil
}

// NewLogger builds the logger selected by LogFormat and LogLevel.
func (c Config) NewLogger() *logging.Logger {
	if c.LogFormat == LogFormatConsole {
		return logging.NewConsole(c.LogLevel)
	}
	return logging.NewJSON(c.LogLevel)
}

// DefaultStorePath is ~/.vetoscope/runs.db, or a relative path when the
// home directory cannot be resolved.
func DefaultStorePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "vetoscope-runs.db"
	}
	return filepath.Join(home, ".vetoscope", "runs.db")
}

func parseBaseURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("parse VETOSCOPE_BASE_URL: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("invalid VETOSCOPE_BASE_URL %q: absolute http(s) URL required", raw)
	}
	return strings.TrimRight(u.String(), "/"), nil
}

func getEnv(key, fallback string) string {
	value := os.Getenv(key)
	if strings.TrimSpace(value) == "" {
		return fallback
	}

	return value
}

func getEnvAsInt(key string, fallback int) (int, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback, nil
	}

	return strconv.Atoi(value)
}

func getEnvAsDuration(key string, fallback time.Duration) (time.Duration, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback, nil
	}

	return time.ParseDuration(value)
}
