package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/courtcheck/courtcheck/internal/courtsrv/availability"
	"github.com/courtcheck/courtcheck/internal/courtsrv/config"
)

func sampleResults() availability.Results {
	return availability.Results{
		"08:00": availability.FromSlots([]availability.CourtSlot{
			{CourtNumber: 3, CourtID: 101, Duration: 1, StartTime: "08:00", EndTime: "09:00"},
		}),
		"09:00": availability.NoCourts(),
		"10:00": availability.ErrorResult("upstream returned 503 Service Unavailable"),
	}
}

func TestKey(t *testing.T) {
	assert.Equal(t, "12:04/12/2024", Key("12", "04/12/2024"))
}

func TestRedisRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	s := NewRedis(RedisOptions{Addr: mr.Addr(), KeyPrefix: "courts:", TTL: 600 * time.Second})
	t.Cleanup(func() { s.Close() })
	ctx := context.Background()

	_, ok, err := s.Get(ctx, Key("12", "04/12/2024"))
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Put(ctx, Key("12", "04/12/2024"), sampleResults(), 600*time.Second))
	assert.True(t, mr.Exists("courts:12:04/12/2024"))
	assert.Equal(t, 600*time.Second, mr.TTL("courts:12:04/12/2024"))

	mr.FastForward(100 * time.Second)
	e, ok, err := s.Get(ctx, Key("12", "04/12/2024"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, sampleResults(), e.Results)
	assert.Equal(t, "12:04/12/2024", e.Key)
	assert.WithinDuration(t, time.Now().Add(-100*time.Second), e.CachedAt, 5*time.Second)

	mr.FastForward(600 * time.Second)
	_, ok, err = s.Get(ctx, Key("12", "04/12/2024"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisPutOverwrites(t *testing.T) {
	mr := miniredis.RunT(t)
	s := NewRedisWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "", time.Minute)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "k", sampleResults(), time.Minute))
	require.NoError(t, s.Put(ctx, "k", availability.Results{"20:00": availability.NoCourts()}, time.Minute))

	e, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, e.Results, 1)
	assert.Contains(t, e.Results, "20:00")
}

func TestRedisDiscardsMalformedValue(t *testing.T) {
	mr := miniredis.RunT(t)
	s := NewRedis(RedisOptions{Addr: mr.Addr()})
	require.NoError(t, mr.Set("k", "not json"))

	_, ok, err := s.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, mr.Set("k", `["a"]`))
	_, ok, err = s.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryExpiry(t *testing.T) {
	m := NewMemory()
	now := time.Date(2024, time.December, 4, 8, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, m.Put(ctx, "k", sampleResults(), 10*time.Minute))
	e, ok, err := m.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, now, e.CachedAt)

	// callers cannot mutate the stored map
	delete(e.Results, "08:00")
	e, _, _ = m.Get(ctx, "k")
	assert.Len(t, e.Results, 3)

	now = now.Add(10 * time.Minute)
	_, ok, err = m.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNoopAlwaysMisses(t *testing.T) {
	var s Store = Noop{}
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "k", sampleResults(), time.Minute))
	_, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, config.CacheBackendNone, s.Backend())
}

func TestNewSelectsBackend(t *testing.T) {
	ctx := context.Background()

	s, err := New(ctx, config.CacheConfig{Backend: config.CacheBackendNone})
	require.NoError(t, err)
	assert.IsType(t, Noop{}, s)

	s, err = New(ctx, config.CacheConfig{Backend: config.CacheBackendMemory})
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, s)

	mr := miniredis.RunT(t)
	s, err = New(ctx, config.CacheConfig{Backend: config.CacheBackendRedis, RedisAddr: mr.Addr(), TTL: config.Duration{Duration: time.Minute}})
	require.NoError(t, err)
	assert.Equal(t, config.CacheBackendRedis, s.Backend())
}

func TestNewDegradesToNoop(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	s, err := New(context.Background(), config.CacheConfig{Backend: config.CacheBackendRedis, RedisAddr: addr})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCacheConfig)
	assert.IsType(t, Noop{}, s)

	s = MustNew(context.Background(), config.CacheConfig{Backend: config.CacheBackendRedis})
	assert.IsType(t, Noop{}, s)
}
