package ctxcache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/hugh/schoolyard/internal/identity"
	"github.com/redis/go-redis/v9"
)

// invalidationChannel carries eviction messages so every instance drops its
// local copy when a membership or school changes.
const invalidationChannel = "schoolyard:authctx:invalidate"

const schoolPrefix = "school:"

// Loader re-derives an authorization context on cache miss. The identity
// store implements it. A loader failure propagates so callers fail closed.
type Loader interface {
	LoadContext(ctx context.Context, userID, schoolID uuid.UUID) (*identity.AuthContext, error)
}

type Options struct {
	Redis     *redis.Client // optional; local-only when nil
	Loader    Loader
	LocalTTL  time.Duration
	LocalSize int
	SharedTTL time.Duration
	Logger    *slog.Logger
}

// Cache is the read-through context cache in front of the identity store,
// keyed by (user_id, school_id). Tier one is a short-TTL in-process LRU;
// tier two is redis, which is authoritative for invalidation.
type Cache struct {
	local     *expirable.LRU[string, identity.AuthContext]
	redis     *redis.Client
	loader    Loader
	sharedTTL time.Duration
	logger    *slog.Logger
	sub       *redis.PubSub
}

func New(opts Options) *Cache {
	if opts.LocalSize <= 0 {
		opts.LocalSize = 8192
	}
	if opts.LocalTTL <= 0 {
		opts.LocalTTL = 10 * time.Second
	}
	if opts.SharedTTL <= 0 {
		opts.SharedTTL = 5 * time.Minute
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	c := &Cache{
		local:     expirable.NewLRU[string, identity.AuthContext](opts.LocalSize, nil, opts.LocalTTL),
		redis:     opts.Redis,
		loader:    opts.Loader,
		sharedTTL: opts.SharedTTL,
		logger:    opts.Logger,
	}

	if c.redis != nil {
		c.sub = c.redis.Subscribe(context.Background(), invalidationChannel)
		go c.listen()
	}

	return c
}

func cacheKey(userID, schoolID uuid.UUID) string {
	return "authctx:" + schoolID.String() + ":" + userID.String()
}

// GetContext returns the cached context for (user, school), loading it from
// the identity store on miss. Errors propagate; a miss never resolves to an
// implicit allow.
func (c *Cache) GetContext(ctx context.Context, userID, schoolID uuid.UUID) (*identity.AuthContext, error) {
	return c.GetContextAtLeast(ctx, userID, schoolID, 0)
}

// GetContextAtLeast is GetContext with a version floor: a cached entry older
// than minVersion is treated as a miss and re-derived. Callers holding a
// token with a newer permission_version use this to skip stale cache state.
func (c *Cache) GetContextAtLeast(ctx context.Context, userID, schoolID uuid.UUID, minVersion int64) (*identity.AuthContext, error) {
	key := cacheKey(userID, schoolID)

	if entry, ok := c.local.Get(key); ok && entry.PermissionVersion >= minVersion {
		return &entry, nil
	}

	if c.redis != nil {
		data, err := c.redis.Get(ctx, key).Bytes()
		if err == nil {
			var entry identity.AuthContext
			if err := json.Unmarshal(data, &entry); err == nil && entry.PermissionVersion >= minVersion {
				c.local.Add(key, entry)
				return &entry, nil
			}
		} else if err != redis.Nil {
			c.logger.Warn("shared cache read failed", "key", key, "error", err)
		}
	}

	entry, err := c.loader.LoadContext(ctx, userID, schoolID)
	if err != nil {
		return nil, err
	}

	c.store(ctx, key, entry)
	return entry, nil
}

func (c *Cache) store(ctx context.Context, key string, entry *identity.AuthContext) {
	c.local.Add(key, *entry)

	if c.redis == nil {
		return
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, key, data, c.sharedTTL).Err(); err != nil {
		c.logger.Warn("shared cache write failed", "key", key, "error", err)
	}
}

// Invalidate evicts one (user, school) context everywhere: local tier,
// shared tier, and via publish on every other instance.
func (c *Cache) Invalidate(ctx context.Context, userID, schoolID uuid.UUID) error {
	key := cacheKey(userID, schoolID)
	c.local.Remove(key)

	if c.redis == nil {
		return nil
	}
	if err := c.redis.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("evicting shared cache entry: %w", err)
	}
	if err := c.redis.Publish(ctx, invalidationChannel, key).Err(); err != nil {
		return fmt.Errorf("publishing invalidation: %w", err)
	}
	return nil
}

// InvalidateSchool evicts every context scoped to a school, used when the
// school's feature flags or subscription tier change.
func (c *Cache) InvalidateSchool(ctx context.Context, schoolID uuid.UUID) error {
	c.evictSchoolLocal(schoolID.String())

	if c.redis == nil {
		return nil
	}

	pattern := "authctx:" + schoolID.String() + ":*"
	iter := c.redis.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		if err := c.redis.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("evicting shared cache entry: %w", err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scanning shared cache: %w", err)
	}

	if err := c.redis.Publish(ctx, invalidationChannel, schoolPrefix+schoolID.String()).Err(); err != nil {
		return fmt.Errorf("publishing invalidation: %w", err)
	}
	return nil
}

func (c *Cache) evictSchoolLocal(schoolID string) {
	prefix := "authctx:" + schoolID + ":"
	for _, key := range c.local.Keys() {
		if strings.HasPrefix(key, prefix) {
			c.local.Remove(key)
		}
	}
}

func (c *Cache) listen() {
	for msg := range c.sub.Channel() {
		payload := msg.Payload
		if strings.HasPrefix(payload, schoolPrefix) {
			c.evictSchoolLocal(strings.TrimPrefix(payload, schoolPrefix))
			continue
		}
		c.local.Remove(payload)
	}
}

// Close stops the invalidation subscriber.
func (c *Cache) Close() error {
	if c.sub != nil {
		return c.sub.Close()
	}
	return nil
}

// Compile-time check: the cache is the identity store's invalidator.
var _ identity.Invalidator = (*Cache)(nil)
