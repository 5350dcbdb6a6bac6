package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"

	"github.com/courtcheck/courtcheck/internal/courtsrv/availability"
	"github.com/courtcheck/courtcheck/internal/courtsrv/config"
)

// RedisOptions configures a Redis store.
type RedisOptions struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
	// TTL is the lifetime Put is normally called with. The age of an entry
	// is derived from it and the remaining TTL.
	TTL time.Duration
}

// Redis stores the JSON results map of a run as a plain string value with an
// expiry.
type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

func NewRedis(opts RedisOptions) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	return NewRedisWithClient(client, opts.KeyPrefix, opts.TTL)
}

// NewRedisWithClient wraps an existing client.
func NewRedisWithClient(client *redis.Client, prefix string, ttl time.Duration) *Redis {
	return &Redis{
		client: client,
		prefix: prefix,
		ttl:    ttl,
		now:    time.Now,
	}
}

func (r *Redis) key(key string) string {
	return r.prefix + key
}

// Get reads the entry for key along with its remaining TTL, from which the
// write time is recovered. Malformed values are logged and treated as a miss.
func (r *Redis) Get(ctx context.Context, key string) (Entry, bool, error) {
	k := r.key(key)
	pipe := r.client.Pipeline()
	getCmd := pipe.Get(ctx, k)
	ttlCmd := pipe.PTTL(ctx, k)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return Entry{}, false, fmt.Errorf("redis get %s: %w", k, err)
	}

	payload, err := getCmd.Result()
	if errors.Is(err, redis.Nil) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("redis get %s: %w", k, err)
	}

	// a value that is not a JSON object was not written by Put
	if !gjson.Valid(payload) || !gjson.Parse(payload).IsObject() {
		log.Ctx(ctx).Warn().Str("key", k).Msg("discarding malformed cache entry")
		return Entry{}, false, nil
	}
	var results availability.Results
	if err := json.Unmarshal([]byte(payload), &results); err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("key", k).Msg("discarding malformed cache entry")
		return Entry{}, false, nil
	}

	cachedAt := r.now()
	if remaining, err := ttlCmd.Result(); err == nil && remaining > 0 && r.ttl > remaining {
		cachedAt = cachedAt.Add(-(r.ttl - remaining))
	}
	return Entry{Key: key, Results: results, CachedAt: cachedAt}, true, nil
}

// Put writes results as JSON under key with ttl as the Redis expiry.
func (r *Redis) Put(ctx context.Context, key string, results availability.Results, ttl time.Duration) error {
	b, err := json.Marshal(results)
	if err != nil {
		return fmt.Errorf("encoding cache entry: %w", err)
	}
	if err := r.client.Set(ctx, r.key(key), b, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", r.key(key), err)
	}
	return nil
}

func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *Redis) Backend() string {
	return config.CacheBackendRedis
}

func (r *Redis) Close() error {
	return r.client.Close()
}
