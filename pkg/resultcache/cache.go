// Package resultcache provides a Redis-backed cache for gateway responses.
// Entries are keyed by a digest of (tool, client, params), so identical calls
// within the TTL are served without touching the gateway. Cache writes are
// append-only and uniquely keyed per call, so concurrent sub-requests never
// race on a slot.
package resultcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/emailpilot/epctl/pkg/logging"
)

const keyPrefix = "epctl:result:"

// DefaultTTL keeps gateway responses fresh enough for interactive use while
// absorbing repeated sub-queries inside one session.
const DefaultTTL = 5 * time.Minute

// Cache wraps a Redis client. A nil *Cache is valid and behaves as a
// pass-through (always miss, writes dropped), so the executor does not need
// to special-case a disabled cache.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	log    logging.Logger
}

// New creates a Cache. ttl <= 0 selects DefaultTTL; log may be nil.
func New(client *redis.Client, ttl time.Duration, log logging.Logger) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if log == nil {
		log = logging.Nop()
	}
	return &Cache{client: client, ttl: ttl, log: log}
}

// Key derives the cache key for one gateway call.
func Key(tool, clientID, paramsKey string) string {
	sum := sha256.Sum256([]byte(tool + "|" + clientID + "|" + paramsKey))
	return keyPrefix + hex.EncodeToString(sum[:])
}

// Get returns the cached payload for key, or (nil, false) on miss or error.
// Cache errors are logged and treated as misses; the gateway call proceeds.
func (c *Cache) Get(ctx context.Context, key string) (json.RawMessage, bool) {
	if c == nil || c.client == nil {
		return nil, false
	}
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn("result cache read failed", logging.F("key", key), logging.Err(err))
		}
		return nil, false
	}
	return data, true
}

// Put stores a successful gateway payload. Failures are logged and swallowed;
// caching is best-effort and never fails the query path.
func (c *Cache) Put(ctx context.Context, key string, payload json.RawMessage) {
	if c == nil || c.client == nil {
		return
	}
	if err := c.client.Set(ctx, key, []byte(payload), c.ttl).Err(); err != nil {
		c.log.Warn("result cache write failed", logging.F("key", key), logging.Err(err))
	}
}

// Ping checks Redis reachability, for the health command.
func (c *Cache) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return errors.New("result cache not configured")
	}
	return c.client.Ping(ctx).Err()
}
