package analytics

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Counter is a small key-value counter store used for usage analytics. It is
// deliberately outside the generation core: a counter failure must never fail
// a generation.
type Counter interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Put(ctx context.Context, key, value string, ttl time.Duration) error
	Incr(ctx context.Context, key string) (int64, error)
}

// RedisCounter stores counters in Redis.
type RedisCounter struct {
	client *redis.Client
}

// NewRedisCounter connects using a redis URL (redis://host:port/db).
func NewRedisCounter(url string) (*RedisCounter, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return &RedisCounter{client: redis.NewClient(opts)}, nil
}

func (c *RedisCounter) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (c *RedisCounter) Put(ctx context.Context, key, value string, ttl time.Duration) error {
	return c.client.Set(ctx, key, value, ttl).Err()
}

func (c *RedisCounter) Incr(ctx context.Context, key string) (int64, error) {
	return c.client.Incr(ctx, key).Result()
}

// Close releases the underlying connection pool.
func (c *RedisCounter) Close() error {
	return c.client.Close()
}

// MemoryCounter is the in-process fallback used when no Redis is configured.
// Values expire lazily on read.
type MemoryCounter struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	value   string
	expires time.Time // zero means no expiry
}

// NewMemoryCounter builds an empty in-memory counter.
func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{entries: make(map[string]memoryEntry), now: time.Now}
}

func (c *MemoryCounter) Get(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.getLocked(key)
	if !ok {
		return "", false, nil
	}
	return entry.value, true, nil
}

func (c *MemoryCounter) Put(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	entry := memoryEntry{value: value}
	if ttl > 0 {
		entry.expires = c.now().Add(ttl)
	}
	c.entries[key] = entry
	return nil
}

func (c *MemoryCounter) Incr(ctx context.Context, key string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	var current int64
	if entry, ok := c.getLocked(key); ok {
		parsed, err := strconv.ParseInt(entry.value, 10, 64)
		if err != nil {
			return 0, err
		}
		current = parsed
	}
	current++
	expires := c.entries[key].expires
	c.entries[key] = memoryEntry{value: strconv.FormatInt(current, 10), expires: expires}
	return current, nil
}

func (c *MemoryCounter) getLocked(key string) (memoryEntry, bool) {
	entry, ok := c.entries[key]
	if !ok {
		return memoryEntry{}, false
	}
	if !entry.expires.IsZero() && c.now().After(entry.expires) {
		delete(c.entries, key)
		return memoryEntry{}, false
	}
	return entry, true
}

var (
	_ Counter = (*RedisCounter)(nil)
	_ Counter = (*MemoryCounter)(nil)
)
