// Package cache stores completed availability runs keyed by venue and date.
//
// Entries are overwritten, never merged, and expire after a fixed TTL. A
// missing or unreachable backend degrades to a store that always misses.
package cache

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/courtcheck/courtcheck/internal/common/apperrors"
	"github.com/courtcheck/courtcheck/internal/courtsrv/availability"
	"github.com/courtcheck/courtcheck/internal/courtsrv/config"
)

// ErrCacheConfig is a ConfigError: the configured backend is unusable. It is
// logged and never fatal.
var ErrCacheConfig = apperrors.New("cache backend unavailable").SetStatusCode(http.StatusServiceUnavailable)

// Entry is a cached run.
type Entry struct {
	Key      string
	Results  availability.Results
	CachedAt time.Time
}

// Store is an availability cache backend.
type Store interface {
	// Get returns the entry stored under key. A miss is (Entry{}, false, nil).
	Get(ctx context.Context, key string) (Entry, bool, error)
	// Put replaces the entry under key.
	Put(ctx context.Context, key string, results availability.Results, ttl time.Duration) error
	// Ping checks that the backend is reachable.
	Ping(ctx context.Context) error
	// Backend names the backend.
	Backend() string
}

// Key returns the cache key of a venue and date, "venue:date".
func Key(venue, date string) string {
	return venue + ":" + date
}

// New opens the backend selected by cfg. When the backend cannot be used the
// returned store is a no-op one and the error wraps ErrCacheConfig.
func New(ctx context.Context, cfg config.CacheConfig) (Store, error) {
	switch cfg.Backend {
	case config.CacheBackendMemory:
		return NewMemory(), nil
	case config.CacheBackendRedis:
		if cfg.RedisAddr == "" {
			return Noop{}, ErrCacheConfig.Msg("cache.redis_addr is not set")
		}
		r := NewRedis(RedisOptions{
			Addr:      cfg.RedisAddr,
			Password:  cfg.RedisPassword,
			DB:        cfg.RedisDB,
			KeyPrefix: cfg.KeyPrefix,
			TTL:       cfg.TTL.Duration,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := r.Ping(pingCtx); err != nil {
			r.Close()
			return Noop{}, ErrCacheConfig.MsgErr("unable to reach redis at "+cfg.RedisAddr, err)
		}
		return r, nil
	case config.CacheBackendNone, "":
		return Noop{}, nil
	default:
		return Noop{}, ErrCacheConfig.Msg("unsupported cache backend " + cfg.Backend)
	}
}

// MustNew is New with the error logged instead of returned.
func MustNew(ctx context.Context, cfg config.CacheConfig) Store {
	s, err := New(ctx, cfg)
	if err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("backend", cfg.Backend).Msg("availability cache disabled")
	}
	return s
}

// Noop is the store used when no backend is configured. Every Get misses.
type Noop struct{}

func (Noop) Get(context.Context, string) (Entry, bool, error) {
	return Entry{}, false, nil
}

func (Noop) Put(context.Context, string, availability.Results, time.Duration) error {
	return nil
}

func (Noop) Ping(context.Context) error {
	return nil
}

func (Noop) Backend() string {
	return config.CacheBackendNone
}
