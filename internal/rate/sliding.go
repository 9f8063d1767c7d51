package rate

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// allowScript trims expired members, counts the rest and adds the new member
// only when the budget is not exhausted. Redis runs the whole script
// atomically, so concurrent callers can never both take the last slot.
//
// KEYS[1] window key
// ARGV[1] score of the new member (now, microseconds)
// ARGV[2] exclusive lower bound to trim, e.g. "(1700000000000000"
// ARGV[3] max attempts
// ARGV[4] member
// ARGV[5] key ttl in milliseconds
var allowScript = redis.NewScript(`
redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', ARGV[2])
local count = redis.call('ZCARD', KEYS[1])
if count >= tonumber(ARGV[3]) then
	return 0
end
redis.call('ZADD', KEYS[1], ARGV[1], ARGV[4])
local ttl = redis.call('PTTL', KEYS[1])
if ttl < tonumber(ARGV[5]) then
	redis.call('PEXPIRE', KEYS[1], ARGV[5])
end
return 1
`)

var recordScript = redis.NewScript(`
redis.call('ZADD', KEYS[1], ARGV[1], ARGV[2])
local ttl = redis.call('PTTL', KEYS[1])
if ttl < tonumber(ARGV[3]) then
	redis.call('PEXPIRE', KEYS[1], ARGV[3])
end
return 1
`)

// SlidingConfig tunes the Redis sliding-window counter.
type SlidingConfig struct {
	// Prefix namespaces every counter key.
	Prefix string
	// Retention is the minimum key lifetime. Keys never live shorter than
	// twice the window passed to Allow.
	Retention time.Duration
}

// Sliding is a Redis sorted-set sliding-window counter.
type Sliding struct {
	redis  redis.UniversalClient
	config SlidingConfig
	now    func() time.Time
}

// NewSliding creates a Redis-backed [Counter].
func NewSliding(redisClient redis.UniversalClient, cfg SlidingConfig) *Sliding {
	if cfg.Prefix == "" {
		cfg.Prefix = "gg:att:"
	}
	if cfg.Retention <= 0 {
		cfg.Retention = 2 * time.Hour
	}
	return &Sliding{
		redis:  redisClient,
		config: cfg,
		now:    time.Now,
	}
}

// WithClock returns a copy of s that reads time from now.
func (s *Sliding) WithClock(now func() time.Time) *Sliding {
	clone := *s
	clone.now = now
	return &clone
}

// Allow implements [Counter].
func (s *Sliding) Allow(ctx context.Context, key string, window time.Duration, max int) (bool, error) {
	if err := validWindow(window, max); err != nil {
		return false, err
	}

	now := s.now()
	cutoff := now.Add(-window)
	ttl := 2 * window
	if ttl < s.config.Retention {
		ttl = s.config.Retention
	}

	res, err := allowScript.Run(ctx, s.redis, []string{s.key(key)},
		score(now),
		"("+score(cutoff),
		max,
		member(now),
		ttl.Milliseconds(),
	).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return res == 1, nil
}

// Record implements [Counter].
func (s *Sliding) Record(ctx context.Context, key string) error {
	now := s.now()
	err := recordScript.Run(ctx, s.redis, []string{s.key(key)},
		score(now),
		member(now),
		s.config.Retention.Milliseconds(),
	).Err()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Count returns the number of attempts recorded in [now-window, now].
func (s *Sliding) Count(ctx context.Context, key string, window time.Duration) (int, error) {
	now := s.now()
	n, err := s.redis.ZCount(ctx, s.key(key), score(now.Add(-window)), score(now)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return int(n), nil
}

func (s *Sliding) key(k string) string {
	return s.config.Prefix + k
}

func score(t time.Time) string {
	return strconv.FormatInt(t.UnixMicro(), 10)
}

func member(t time.Time) string {
	return strconv.FormatInt(t.UnixNano(), 10) + "-" + uuid.NewString()
}
