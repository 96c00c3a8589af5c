package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/tech-arch1tect/crmauth/config"
	"github.com/tech-arch1tect/crmauth/services/logging"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Limiters holds the middlewares applied to the authentication routes. When rate
// limiting is disabled every field is a pass-through.
type Limiters struct {
	API      echo.MiddlewareFunc
	Login    echo.MiddlewareFunc
	Password echo.MiddlewareFunc
}

var Module = fx.Options(
	fx.Provide(ProvideStore, ProvideLimiters),
)

// ProvideStore returns the counter store selected by RATE_LIMIT_STORE and ties
// its background work to the application lifecycle.
func ProvideStore(lc fx.Lifecycle, cfg *config.Config, logger *logging.Service) (Store, error) {
	if cfg.RateLimit.Store != "redis" {
		store := NewMemoryStore()
		registerJanitor(lc, store)
		return store, nil
	}

	opts, err := redis.ParseURL(cfg.RateLimit.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid rate limit redis url: %w", err)
	}
	client := redis.NewClient(opts)
	store := NewRedisStore(client, logger)

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := store.Ping(ctx); err != nil {
				return fmt.Errorf("rate limit redis unreachable: %w", err)
			}
			logger.Info("rate limit counters stored in redis", zap.String("addr", opts.Addr))
			return nil
		},
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return store, nil
}

func ProvideLimiters(cfg *config.Config, store Store) *Limiters {
	return NewLimiters(&cfg.RateLimit, store)
}

func NewLimiters(cfg *config.RateLimitConfig, store Store) *Limiters {
	if !cfg.Enabled {
		pass := func(next echo.HandlerFunc) echo.HandlerFunc { return next }
		return &Limiters{API: pass, Login: pass, Password: pass}
	}

	return &Limiters{
		API: Middleware(&Config{
			Store:   store,
			Prefix:  "api",
			Rate:    cfg.GlobalRate,
			Period:  cfg.GlobalPeriod,
			Message: "Too many requests from this IP, please try again later.",
		}),
		Login: Middleware(&Config{
			Store:     store,
			Prefix:    "auth",
			Rate:      cfg.LoginRate,
			Period:    cfg.LoginPeriod,
			CountMode: CountFailures,
			Message:   "Too many authentication attempts, please try again later.",
		}),
		Password: Middleware(&Config{
			Store:   store,
			Prefix:  "password",
			Rate:    cfg.PasswordRate,
			Period:  cfg.PasswordPeriod,
			Message: "Too many password reset requests, please try again later.",
		}),
	}
}

func registerJanitor(lc fx.Lifecycle, store *MemoryStore) {
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			store.StartJanitor(ctx, time.Minute)
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}
