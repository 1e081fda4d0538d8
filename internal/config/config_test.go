package config

import (
	"testing"
	"time"

	"github.com/fortuna/vetoscope/internal/platform/logging"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("STORE_DSN", "")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.BaseURL != DefaultBaseURL {
		t.Fatalf("unexpected BaseURL: %q", cfg.BaseURL)
	}
	if cfg.FetchTimeout != 60*time.Second || cfg.FetchAttempts != 3 {
		t.Fatalf("unexpected fetch defaults: %s / %d", cfg.FetchTimeout, cfg.FetchAttempts)
	}
	if cfg.FetchBackoffBase != 500*time.Millisecond || cfg.FetchBackoffJitter != 300*time.Millisecond {
		t.Fatalf("unexpected backoff defaults: %s / %s", cfg.FetchBackoffBase, cfg.FetchBackoffJitter)
	}
	if cfg.PageDelay != 500*time.Millisecond || cfg.MatchDelay != 400*time.Millisecond {
		t.Fatalf("unexpected delays: %s / %s", cfg.PageDelay, cfg.MatchDelay)
	}
	if cfg.MaxMatches != 100 {
		t.Fatalf("unexpected MaxMatches: %d", cfg.MaxMatches)
	}
	if cfg.FetchMode != FetchModeHTTP || cfg.LogFormat != LogFormatJSON || cfg.LogLevel != logging.LevelInfo {
		t.Fatalf("unexpected modes: %q %q %v", cfg.FetchMode, cfg.LogFormat, cfg.LogLevel)
	}
	if cfg.StoreDSN != DefaultStorePath() {
		t.Fatalf("unexpected StoreDSN: %q", cfg.StoreDSN)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("VETOSCOPE_BASE_URL", "http://127.0.0.1:9999/")
	t.Setenv("FETCH_TIMEOUT", "5s")
	t.Setenv("FETCH_ATTEMPTS", "5")
	t.Setenv("MATCH_DELAY", "0s")
	t.Setenv("FETCH_MODE", "Browser")
	t.Setenv("CACHE_ENABLED", "true")
	t.Setenv("STORE_DSN", "postgres://u:p@localhost/vetoscope")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "console")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.BaseURL != "http://127.0.0.1:9999" {
		t.Fatalf("trailing slash not trimmed: %q", cfg.BaseURL)
	}
	if cfg.FetchTimeout != 5*time.Second || cfg.FetchAttempts != 5 || cfg.MatchDelay != 0 {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.FetchMode != FetchModeBrowser || !cfg.CacheEnabled {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.StoreDSN != "postgres://u:p@localhost/vetoscope" {
		t.Fatalf("unexpected StoreDSN: %q", cfg.StoreDSN)
	}
	if cfg.LogLevel != logging.LevelDebug || cfg.LogFormat != LogFormatConsole {
		t.Fatalf("unexpected logging config: %v %q", cfg.LogLevel, cfg.LogFormat)
	}
}

func TestLoad_Invalid(t *testing.T) {
	cases := map[string]string{
		"FETCH_TIMEOUT":      "soon",
		"FETCH_ATTEMPTS":     "0",
		"MAX_MATCHES":        "-1",
		"PAGE_DELAY":         "-1s",
		"FETCH_MODE":         "carrier-pigeon",
		"LOG_FORMAT":         "xml",
		"LOG_LEVEL":          "loud",
		"CACHE_ENABLED":      "maybe",
		"VETOSCOPE_BASE_URL": "vlr.gg",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			if _, err := Load(); err == nil {
				t.Fatalf("expected error for %s=%q", key, value)
			}
		})
	}
}
