// Package cache stores provider responses by key with a TTL.
package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Cache is a byte cache. A miss is (nil, false, nil); err is reserved for backend failures.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
}

// Config selects the backend. An empty RedisAddr means in-process memory.
type Config struct {
	RedisAddr  string        `yaml:"redis_addr" envconfig:"REDIS_ADDR"`
	RedisDB    int           `yaml:"redis_db" envconfig:"REDIS_DB"`
	Prefix     string        `yaml:"prefix"`
	DefaultTTL time.Duration `yaml:"default_ttl"`
	OpTimeout  time.Duration `yaml:"op_timeout"`
}

// DefaultConfig returns a memory cache with a one-hour TTL.
func DefaultConfig() Config {
	return Config{
		Prefix:     "cryptolens:",
		DefaultTTL: time.Hour,
		OpTimeout:  500 * time.Millisecond,
	}
}

// New returns a Redis cache when RedisAddr is set, else a memory cache.
func New(cfg Config) Cache {
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
		return NewRedis(client, cfg.Prefix, cfg.OpTimeout)
	}
	return NewMemory()
}

type memory struct {
	mu  sync.Mutex
	m   map[string]entry
	now func() time.Time
}

type entry struct {
	b   []byte
	exp time.Time
}

// NewMemory returns an in-process cache.
func NewMemory() Cache {
	return &memory{m: make(map[string]entry), now: time.Now}
}

func (c *memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.m[key]
	if !ok {
		return nil, false, nil
	}
	if !e.exp.IsZero() && c.now().After(e.exp) {
		delete(c.m, key)
		return nil, false, nil
	}
	return append([]byte(nil), e.b...), true, nil
}

func (c *memory) Set(_ context.Context, key string, val []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := entry{b: append([]byte(nil), val...)}
	if ttl > 0 {
		e.exp = c.now().Add(ttl)
	}
	c.m[key] = e
	return nil
}

type redisCache struct {
	r       redis.Cmdable
	prefix  string
	timeout time.Duration
}

// NewRedis wraps a go-redis client. Keys are stored under prefix.
func NewRedis(client redis.Cmdable, prefix string, timeout time.Duration) Cache {
	if timeout <= 0 {
		timeout = 500 * time.Millisecond
	}
	return &redisCache{r: client, prefix: prefix, timeout: timeout}
}

func (c *redisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	v, err := c.r.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return v, true, nil
}

func (c *redisCache) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if err := c.r.Set(ctx, c.prefix+key, val, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}
