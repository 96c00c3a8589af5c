package ratelimit

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/tech-arch1tect/crmauth/services/logging"
	"go.uber.org/zap"
)

// incrementScript opens the window with its expiry in the same step as the first
// increment, so a key never outlives its window.
var incrementScript = redis.NewScript(`
local n = redis.call('INCR', KEYS[1])
if n == 1 then
	redis.call('PEXPIREAT', KEYS[1], ARGV[1])
end
return n
`)

// RedisStore keeps counters in redis with one expiring key per window. Redis
// errors are logged and the request is let through.
type RedisStore struct {
	client  redis.UniversalClient
	prefix  string
	timeout time.Duration
	logger  *logging.Service
}

func NewRedisStore(client redis.UniversalClient, logger *logging.Service) *RedisStore {
	return &RedisStore{
		client:  client,
		prefix:  "ratelimit:",
		timeout: time.Second,
		logger:  logger,
	}
}

func (s *RedisStore) Get(key string) (int, time.Time, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	var get *redis.StringCmd
	var ttl *redis.DurationCmd
	_, err := s.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		get = p.Get(ctx, s.prefix+key)
		ttl = p.PTTL(ctx, s.prefix+key)
		return nil
	})
	if errors.Is(err, redis.Nil) {
		return 0, time.Time{}, false
	}
	if err != nil {
		s.logger.Warn("rate limit lookup failed", zap.String("key", key), zap.Error(err))
		return 0, time.Time{}, false
	}

	count, err := strconv.Atoi(get.Val())
	if err != nil || ttl.Val() <= 0 {
		return 0, time.Time{}, false
	}
	return count, time.Now().Add(ttl.Val()), true
}

func (s *RedisStore) Increment(key string, resetTime time.Time) int {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	n, err := incrementScript.Run(ctx, s.client, []string{s.prefix + key}, resetTime.UnixMilli()).Int()
	if err != nil {
		s.logger.Warn("rate limit increment failed", zap.String("key", key), zap.Error(err))
		return 0
	}
	return n
}

func (s *RedisStore) Reset(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		s.logger.Warn("rate limit reset failed", zap.String("key", key), zap.Error(err))
	}
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
