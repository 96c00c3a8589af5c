package ratelimit

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/tech-arch1tect/crmauth/apperror"
)

type CountingMode string

const (
	CountAll      CountingMode = "all"
	CountFailures CountingMode = "failures"
	CountSuccess  CountingMode = "success"
)

type Config struct {
	Store  Store
	Rate   int
	Period time.Duration
	// Prefix separates the counters of limiters sharing one store.
	Prefix         string
	CountMode      CountingMode
	Message        string
	KeyGenerator   func(c echo.Context) string
	OnLimitReached func(c echo.Context, message string) error
}

func Middleware(cfg *Config) echo.MiddlewareFunc {
	if cfg.Store == nil {
		cfg.Store = NewMemoryStore()
	}

	if cfg.Rate <= 0 {
		cfg.Rate = 10
	}

	if cfg.Period <= 0 {
		cfg.Period = time.Minute
	}

	if cfg.KeyGenerator == nil {
		cfg.KeyGenerator = DefaultKeyGenerator
	}

	if cfg.OnLimitReached == nil {
		cfg.OnLimitReached = DefaultOnLimitReached
	}

	if cfg.CountMode == "" {
		cfg.CountMode = CountAll
	}

	if cfg.Message == "" {
		cfg.Message = "Too many requests, please try again later."
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := cfg.KeyGenerator(c)
			if cfg.Prefix != "" {
				key = cfg.Prefix + ":" + key
			}
			resetTime := time.Now().Add(cfg.Period)

			count, existingResetTime, exists := cfg.Store.Get(key)
			if exists {
				resetTime = existingResetTime
			}

			header := c.Response().Header()
			header.Set("X-RateLimit-Limit", strconv.Itoa(cfg.Rate))

			if count >= cfg.Rate {
				header.Set("X-RateLimit-Remaining", "0")
				header.Set("X-RateLimit-Reset", strconv.FormatInt(resetTime.Unix(), 10))
				header.Set("Retry-After", strconv.Itoa(int(time.Until(resetTime).Seconds())+1))
				return cfg.OnLimitReached(c, cfg.Message)
			}

			if cfg.CountMode == CountAll {
				count = cfg.Store.Increment(key, resetTime)
			}
			header.Set("X-RateLimit-Remaining", strconv.Itoa(max(cfg.Rate-count, 0)))
			header.Set("X-RateLimit-Reset", strconv.FormatInt(resetTime.Unix(), 10))

			err := next(c)

			if cfg.CountMode != CountAll {
				failed := responseStatus(c, err) >= http.StatusBadRequest
				if failed == (cfg.CountMode == CountFailures) {
					cfg.Store.Increment(key, resetTime)
				}
			}

			return err
		}
	}
}

// responseStatus is the status the request will end with. Errors are rendered by
// the error handler after the middleware chain unwinds, so they are inspected
// directly.
func responseStatus(c echo.Context, err error) int {
	if err == nil {
		return c.Response().Status
	}
	if appErr, ok := apperror.As(err); ok {
		return appErr.Status
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	return http.StatusInternalServerError
}

func DefaultKeyGenerator(c echo.Context) string {
	realIP := c.RealIP()

	if realIP == "" || realIP == "unknown" {
		realIP = "fallback"
	}

	return "rate_limit:" + realIP
}

func DefaultOnLimitReached(c echo.Context, message string) error {
	return apperror.New(http.StatusTooManyRequests, apperror.CodeRateLimited, message)
}
