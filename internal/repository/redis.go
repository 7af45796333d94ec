package repository

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"contact-guard/internal/window"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisOptions configures the connection to the shared counter store.
type RedisOptions struct {
	Addr         string
	Password     string
	DB           int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolSize     int
}

// RedisStore keeps counters in Redis so every instance sees the same state.
type RedisStore struct {
	client *redis.Client
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore connects to Redis and returns a Store implementation.
func NewRedisStore(ctx context.Context, o RedisOptions) (*RedisStore, error) {
	if o.Addr == "" {
		return nil, fmt.Errorf("redis address is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:         o.Addr,
		Password:     o.Password,
		DB:           o.DB,
		DialTimeout:  o.DialTimeout,
		ReadTimeout:  o.ReadTimeout,
		WriteTimeout: o.WriteTimeout,
		PoolSize:     o.PoolSize,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisStore{client: client}, nil
}

// slidingWindowLua purges, counts and conditionally records in one step.
// ARGV: now ms, exclusive purge bound "(now-window", limit, member, window ms.
var slidingWindowLua = redis.NewScript(`
local key = KEYS[1]
redis.call('ZREMRANGEBYSCORE', key, '-inf', ARGV[2])
local count = redis.call('ZCARD', key)
local limit = tonumber(ARGV[3])
if count >= limit then
  local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
  if oldest[2] == nil then
    return {0, 0, -1}
  end
  return {0, 0, tonumber(oldest[2])}
end
redis.call('ZADD', key, ARGV[1], ARGV[4])
redis.call('PEXPIRE', key, ARGV[5])
return {1, limit - count - 1}
`)

// cooldownLua stores the acceptance time with a TTL equal to the cooldown, so the key
// exists exactly while the cooldown is active. A refused SET reports the TTL left.
var cooldownLua = redis.NewScript(`
local ok = redis.call('SET', KEYS[1], ARGV[1], 'NX', 'PX', ARGV[2])
if ok then
  return {1, 0}
end
return {0, redis.call('PTTL', KEYS[1])}
`)

func (r *RedisStore) SlidingWindow(ctx context.Context, key string, limit int, span time.Duration, now time.Time) (bool, int, time.Duration, error) {
	if limit <= 0 {
		return false, 0, span, nil
	}
	ms := now.UnixMilli()
	spanMs := span.Milliseconds()
	// members must be unique per event; several may share a millisecond
	member := strconv.FormatInt(ms, 10) + "-" + uuid.NewString()
	res, err := slidingWindowLua.Run(ctx, r.client, []string{key},
		ms,
		"("+strconv.FormatInt(ms-spanMs, 10),
		limit,
		member,
		spanMs,
	).Result()
	if err != nil {
		return false, 0, 0, fmt.Errorf("sliding window script: %w", err)
	}
	vals, err := parseInts(res, 2)
	if err != nil {
		return false, 0, 0, err
	}
	if vals[0] == 1 {
		return true, int(vals[1]), 0, nil
	}
	if len(vals) < 3 || vals[2] < 0 {
		return false, 0, span, nil
	}
	return false, 0, window.SlotFreesIn(vals[2], ms, span), nil
}

func (r *RedisStore) Cooldown(ctx context.Context, key string, cooldown time.Duration, now time.Time) (bool, time.Duration, error) {
	span := cooldown.Milliseconds()
	if span <= 0 {
		return true, 0, nil
	}
	res, err := cooldownLua.Run(ctx, r.client, []string{key}, now.UnixMilli(), span).Result()
	if err != nil {
		return false, 0, fmt.Errorf("cooldown script: %w", err)
	}
	allowed, ttl, err := parsePair(res)
	if err != nil {
		return false, 0, err
	}
	if allowed == 1 {
		return true, cooldown, nil
	}
	switch {
	case ttl < 0:
		// no TTL (-1) or vanished between SET and PTTL (-2): report the full cooldown
		return false, cooldown, nil
	case ttl == 0:
		return false, time.Millisecond, nil
	}
	return false, time.Duration(ttl) * time.Millisecond, nil
}

func (r *RedisStore) Reset(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisStore) Backend() string { return "redis" }

func (r *RedisStore) Close() error {
	return r.client.Close()
}

func parsePair(res interface{}) (int64, int64, error) {
	vals, err := parseInts(res, 2)
	if err != nil {
		return 0, 0, err
	}
	return vals[0], vals[1], nil
}

// parseInts converts a script's array reply, which must hold at least min integers.
func parseInts(res interface{}, min int) ([]int64, error) {
	arr, ok := res.([]interface{})
	if !ok || len(arr) < min {
		return nil, fmt.Errorf("unexpected redis response: %v", res)
	}
	vals := make([]int64, len(arr))
	for i, v := range arr {
		n, err := toInt64(v)
		if err != nil {
			return nil, err
		}
		vals[i] = n
	}
	return vals, nil
}

func toInt64(v interface{}) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case string:
		// redis may return string
		parsed, err := strconv.ParseInt(n, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("unexpected redis value %q: %w", n, err)
		}
		return parsed, nil
	default:
		return 0, fmt.Errorf("unexpected redis value type %T", v)
	}
}
