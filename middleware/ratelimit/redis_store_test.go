package ratelimit

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tech-arch1tect/crmauth/config"
	"github.com/tech-arch1tect/crmauth/services/logging"
	"github.com/tech-arch1tect/crmauth/testutils"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"
)

func setupRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client, logging.NewNop()), mr
}

func TestRedisStore_GetMissing(t *testing.T) {
	store, _ := setupRedisStore(t)

	count, reset, exists := store.Get("nobody")

	assert.False(t, exists)
	assert.Zero(t, count)
	assert.True(t, reset.IsZero())
}

func TestRedisStore_IncrementOpensWindow(t *testing.T) {
	store, mr := setupRedisStore(t)
	reset := time.Now().Add(time.Minute)

	assert.Equal(t, 1, store.Increment("k", reset))
	assert.Equal(t, 2, store.Increment("k", time.Now().Add(time.Hour)))

	count, got, exists := store.Get("k")
	require.True(t, exists)
	assert.Equal(t, 2, count)
	assert.WithinDuration(t, reset, got, 2*time.Second)

	ttl := mr.TTL("ratelimit:k")
	assert.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, time.Minute)
}

func TestRedisStore_WindowExpires(t *testing.T) {
	store, mr := setupRedisStore(t)
	store.Increment("k", time.Now().Add(time.Minute))

	mr.FastForward(2 * time.Minute)

	_, _, exists := store.Get("k")
	assert.False(t, exists)
	assert.Equal(t, 1, store.Increment("k", time.Now().Add(time.Minute)))
}

func TestRedisStore_Reset(t *testing.T) {
	store, mr := setupRedisStore(t)
	store.Increment("k", time.Now().Add(time.Minute))

	store.Reset("k")

	assert.False(t, mr.Exists("ratelimit:k"))
}

func TestRedisStore_FailsOpen(t *testing.T) {
	store, mr := setupRedisStore(t)
	mr.Close()

	assert.Zero(t, store.Increment("k", time.Now().Add(time.Minute)))
	_, _, exists := store.Get("k")
	assert.False(t, exists)
}

func TestRedisStore_BacksMiddleware(t *testing.T) {
	store, _ := setupRedisStore(t)
	mw := Middleware(&Config{Store: store, Rate: 2, Period: time.Minute, KeyGenerator: fixedKey})

	for i := 0; i < 2; i++ {
		rec, err := serve(mw, ok)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, rec.Code)
	}

	_, err := serve(mw, ok)
	expectLimited(t, err)
}

func TestProvideStore(t *testing.T) {
	provide := func(t *testing.T, cfg *config.Config) (Store, *fxtest.App) {
		var store Store
		app := fxtest.New(t,
			fx.Supply(cfg),
			fx.Provide(logging.NewNop),
			fx.Provide(ProvideStore),
			fx.Populate(&store),
		)
		return store, app
	}

	t.Run("memory by default", func(t *testing.T) {
		cfg := testutils.GetTestConfig()
		cfg.RateLimit.Store = ""

		store, app := provide(t, cfg)
		app.RequireStart()
		defer app.RequireStop()

		assert.IsType(t, &MemoryStore{}, store)
	})

	t.Run("redis", func(t *testing.T) {
		mr := miniredis.RunT(t)
		cfg := testutils.GetTestConfig()
		cfg.RateLimit.Store = "redis"
		cfg.RateLimit.RedisURL = "redis://" + mr.Addr() + "/0"

		store, app := provide(t, cfg)
		app.RequireStart()
		defer app.RequireStop()

		require.IsType(t, &RedisStore{}, store)
		store.Increment("k", time.Now().Add(time.Minute))
		assert.True(t, mr.Exists("ratelimit:k"))
	})

	t.Run("redis unreachable fails start", func(t *testing.T) {
		mr := miniredis.RunT(t)
		addr := mr.Addr()
		mr.Close()

		cfg := testutils.GetTestConfig()
		cfg.RateLimit.Store = "redis"
		cfg.RateLimit.RedisURL = "redis://" + addr + "/0"

		_, app := provide(t, cfg)
		err := app.Start(context.Background())

		assert.ErrorContains(t, err, "rate limit redis unreachable")
	})

	t.Run("bad url", func(t *testing.T) {
		cfg := testutils.GetTestConfig()
		cfg.RateLimit.Store = "redis"
		cfg.RateLimit.RedisURL = "memcache://nowhere"

		var store Store
		app := fx.New(
			fx.NopLogger,
			fx.Supply(cfg),
			fx.Provide(logging.NewNop),
			fx.Provide(ProvideStore),
			fx.Populate(&store),
		)

		assert.ErrorContains(t, app.Err(), "invalid rate limit redis url")
	})
}
