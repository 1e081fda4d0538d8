package main

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fortuna/vetoscope/internal/cache"
	"github.com/fortuna/vetoscope/internal/config"
	"github.com/fortuna/vetoscope/internal/fetch"
	"github.com/fortuna/vetoscope/internal/platform/logging"
	"github.com/fortuna/vetoscope/internal/publisher"
	"github.com/fortuna/vetoscope/internal/session"
	"github.com/fortuna/vetoscope/internal/store"
	"github.com/fortuna/vetoscope/internal/vlr"
)

// app holds the process-wide dependencies shared by the subcommands.
type app struct {
	cfg    config.Config
	logger *logging.Logger

	redis   *redis.Client
	closers []func() error
}

// loadApp reads the environment and applies persistent flag overrides.
// Interactive commands log to stderr in console format so tables on stdout
// stay clean.
func loadApp(interactive bool) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if storeDSN != "" {
		cfg.StoreDSN = storeDSN
	}
	switch fetchMode {
	case "":
	case config.FetchModeHTTP, config.FetchModeBrowser:
		cfg.FetchMode = fetchMode
	default:
		return nil, fmt.Errorf("invalid --fetch-mode %q: valid values are %s, %s", fetchMode, config.FetchModeHTTP, config.FetchModeBrowser)
	}
	if logLevel != "" {
		if cfg.LogLevel, err = logging.ParseLevel(logLevel); err != nil {
			return nil, err
		}
	}
	if interactive {
		cfg.LogFormat = config.LogFormatConsole
	}

	logger := cfg.NewLogger()
	logging.SetDefault(logger)
	return &app{cfg: cfg, logger: logger}, nil
}

func (a *app) onClose(fn func() error) {
	a.closers = append(a.closers, fn)
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("close failed", "error", err)
		}
	}
	_ = a.logger.Sync()
}

func (a *app) retryPolicy() fetch.RetryPolicy {
	return fetch.RetryPolicy{
		Attempts:  a.cfg.FetchAttempts,
		BaseDelay: a.cfg.FetchBackoffBase,
		MaxJitter: a.cfg.FetchBackoffJitter,
	}
}

// redisClient connects once and reuses the client for cache and streams.
func (a *app) redisClient(ctx context.Context) (*redis.Client, error) {
	if a.redis != nil {
		return a.redis, nil
	}
	client, err := cache.Connect(ctx, a.cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	a.redis = client
	a.onClose(client.Close)
	return client, nil
}

// newFetcher builds the configured page fetcher, wrapped in the Redis
// document cache when enabled. An unreachable Redis only disables caching.
func (a *app) newFetcher(ctx context.Context) fetch.Fetcher {
	var f fetch.Fetcher
	switch a.cfg.FetchMode {
	case config.FetchModeBrowser:
		bf := fetch.NewBrowserFetcher(&fetch.BrowserConfig{
			Timeout:   a.cfg.FetchTimeout,
			UserAgent: a.cfg.UserAgent,
			Retry:     a.retryPolicy(),
			Settle:    500 * time.Millisecond,
		}, a.logger)
		a.onClose(func() error {
			bf.Close()
			return nil
		})
		f = bf
	default:
		f = fetch.NewHTTPFetcher(&fetch.HTTPConfig{
			Timeout:   a.cfg.FetchTimeout,
			UserAgent: a.cfg.UserAgent,
			Retry:     a.retryPolicy(),
		}, a.logger)
	}

	if !a.cfg.CacheEnabled {
		return f
	}
	client, err := a.redisClient(ctx)
	if err != nil {
		a.logger.Warn("document cache disabled", "error", err)
		return f
	}
	return fetch.NewCachedFetcher(f, cache.NewRedisCacheFromClient(client, a.cfg.CacheTTL), vlr.IsMatchPageURL, a.logger)
}

func (a *app) newOrchestrator(ctx context.Context) (*session.Orchestrator, error) {
	return session.NewOrchestrator(a.newFetcher(ctx), &session.Config{
		BaseURL:    a.cfg.BaseURL,
		PageDelay:  a.cfg.PageDelay,
		MatchDelay: a.cfg.MatchDelay,
		MaxMatches: a.cfg.MaxMatches,
	}, a.logger)
}

// newPublisher returns nil when publishing is disabled or Redis is down.
func (a *app) newPublisher(ctx context.Context) *publisher.RedisStreamPublisher {
	if !a.cfg.PublishEnabled {
		return nil
	}
	client, err := a.redisClient(ctx)
	if err != nil {
		a.logger.Warn("result publishing disabled", "error", err)
		return nil
	}
	return publisher.NewRedisStreamPublisher(client, publisher.DefaultStream)
}

func (a *app) openStore(ctx context.Context) (*store.Database, error) {
	db, err := store.Open(ctx, a.cfg.StoreDSN, a.logger)
	if err != nil {
		return nil, fmt.Errorf("open run history: %w", err)
	}
	a.onClose(db.Close)
	return db, nil
}
