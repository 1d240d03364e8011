// Package cache provides a two-tier cache for proxied upstream responses:
// an in-memory L1 and an optional redis L2.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// TTLs of the proxied resources.
const (
	OEmbedTTL = 24 * time.Hour
	SearchTTL = 15 * time.Minute
	VideosTTL = 5 * time.Minute
)

// DefaultMaxEntries bounds the L1 tier when no limit is configured.
const DefaultMaxEntries = 1000

// Tiered is a memory cache optionally backed by redis. The zero value is not
// usable; create one with New.
type Tiered struct {
	l1         sync.Map // key -> *entry
	rdb        *redis.Client
	maxEntries int
	log        *slog.Logger
	now        func() time.Time

	hits   atomic.Int64
	misses atomic.Int64
}

type entry struct {
	data      []byte
	expiresAt time.Time
}

// New creates a cache. rdb may be nil to disable L2.
func New(rdb *redis.Client, maxEntries int, log *slog.Logger) *Tiered {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &Tiered{rdb: rdb, maxEntries: maxEntries, log: log, now: time.Now}
}

// Dial connects to redisURL, returning nil if the URL is empty, invalid or
// unreachable. The cache then runs memory-only.
func Dial(ctx context.Context, redisURL string, log *slog.Logger) *redis.Client {
	if redisURL == "" {
		return nil
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		log.Warn("invalid redis url, L2 disabled", "error", err)
		return nil
	}
	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Warn("redis unreachable, L2 disabled", "error", err)
		_ = rdb.Close()
		return nil
	}
	log.Info("redis connected", "addr", opts.Addr)
	return rdb
}

// Key builds a deterministic cache key from parts.
func Key(prefix string, parts ...string) string {
	hash := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return fmt.Sprintf("cf:%s:%x", prefix, hash[:12])
}

// Get decodes the value stored under key into dst. L2 hits populate L1.
func (c *Tiered) Get(ctx context.Context, key string, dst any) bool {
	if val, ok := c.l1.Load(key); ok {
		e := val.(*entry)
		if c.now().Before(e.expiresAt) && json.Unmarshal(e.data, dst) == nil {
			c.hits.Add(1)
			return true
		}
		c.l1.Delete(key)
	}

	if c.rdb != nil {
		data, err := c.rdb.Get(ctx, key).Bytes()
		if err == nil && json.Unmarshal(data, dst) == nil {
			ttl := time.Minute
			if d, err := c.rdb.TTL(ctx, key).Result(); err == nil && d > 0 {
				ttl = d
			}
			c.store(key, data, ttl)
			c.hits.Add(1)
			return true
		}
		if err != nil && !errors.Is(err, redis.Nil) {
			c.log.Debug("redis get failed", "key", key, "error", err)
		}
	}

	c.misses.Add(1)
	return false
}

// Set stores value under key in both tiers.
func (c *Tiered) Set(ctx context.Context, key string, value any, ttl time.Duration) {
	data, err := json.Marshal(value)
	if err != nil {
		c.log.Warn("encode cache value", "key", key, "error", err)
		return
	}
	c.store(key, data, ttl)

	if c.rdb != nil {
		if err := c.rdb.Set(ctx, key, data, ttl).Err(); err != nil {
			c.log.Debug("redis set failed", "key", key, "error", err)
		}
	}
}

// Stats returns the hit and miss counters.
func (c *Tiered) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// Len returns the number of L1 entries, expired ones included.
func (c *Tiered) Len() int {
	n := 0
	c.l1.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// Sweep drops expired L1 entries and returns how many were removed.
func (c *Tiered) Sweep() int {
	now := c.now()
	removed := 0
	c.l1.Range(func(key, val any) bool {
		if now.After(val.(*entry).expiresAt) {
			c.l1.Delete(key)
			removed++
		}
		return true
	})
	return removed
}

// Close closes the redis client, if any.
func (c *Tiered) Close() error {
	if c.rdb == nil {
		return nil
	}
	return c.rdb.Close()
}

func (c *Tiered) store(key string, data []byte, ttl time.Duration) {
	if _, exists := c.l1.Load(key); !exists {
		c.evictIfNeeded()
	}
	c.l1.Store(key, &entry{data: data, expiresAt: c.now().Add(ttl)})
}

// evictIfNeeded makes room for one entry: expired entries go first, then
// the ones closest to expiry.
func (c *Tiered) evictIfNeeded() {
	count := c.Len()
	if count < c.maxEntries {
		return
	}

	c.Sweep()
	count = c.Len()

	for count >= c.maxEntries {
		var (
			oldestKey any
			oldestAt  time.Time
		)
		c.l1.Range(func(key, val any) bool {
			e := val.(*entry)
			if oldestKey == nil || e.expiresAt.Before(oldestAt) {
				oldestKey = key
				oldestAt = e.expiresAt
			}
			return true
		})
		if oldestKey == nil {
			return
		}
		c.l1.Delete(oldestKey)
		count--
	}
}
