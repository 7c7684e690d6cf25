package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/frahmantamala/ifarm/internal"
	"github.com/frahmantamala/ifarm/internal/core/events"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const (
	keyPrefix = "ifarm:access"

	fillTimeout  = 5 * time.Second
	bumpAttempts = 3
	bumpBackoff  = 20 * time.Millisecond
)

func versionKey(tenantID int64) string {
	return fmt.Sprintf("%s:version:%d", keyPrefix, tenantID)
}

func grantsKey(tenantID, userID, version int64) string {
	return fmt.Sprintf("%s:grants:%d:%d:v%d", keyPrefix, tenantID, userID, version)
}

// GrantCache stores role-derived grants per user under a tenant version.
// Bumping the version orphans every entry of the tenant; TTL reclaims them.
// A nil *GrantCache is valid and always loads.
//
// A tenant whose version bump failed is marked stale. Stale tenants bypass
// Redis until a later bump succeeds, so a write is never hidden behind an
// entry from before it.
type GrantCache struct {
	client *redis.Client
	ttl    time.Duration
	group  singleflight.Group
	logger *slog.Logger

	mu    sync.Mutex
	stale map[int64]bool
}

func NewGrantCache(client *redis.Client, ttl time.Duration, logger *slog.Logger) *GrantCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &GrantCache{client: client, ttl: ttl, logger: logger, stale: make(map[int64]bool)}
}

// Version returns the tenant's current version. A missing key is version 0.
func (c *GrantCache) Version(ctx context.Context, tenantID int64) (int64, error) {
	ver, err := c.client.Get(ctx, versionKey(tenantID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return ver, err
}

// Fetch fills dest from the cache or from load. Cache failures are logged and
// fall through to load, so the cache never decides an outcome on its own.
func (c *GrantCache) Fetch(ctx context.Context, tenantID, userID int64, dest interface{}, load func(context.Context) (interface{}, error)) error {
	if c == nil || c.client == nil {
		return loadInto(ctx, dest, load)
	}

	if c.isStale(tenantID) {
		if err := c.Invalidate(ctx, tenantID); err != nil {
			c.logger.Warn("grant cache still stale, loading from stores", "tenant_id", tenantID, "error", err)
			return loadInto(ctx, dest, load)
		}
		c.logger.Info("grant cache recovered", "tenant_id", tenantID)
	}

	ver, err := c.Version(ctx, tenantID)
	if err != nil {
		c.logger.Warn("grant cache version lookup failed", "tenant_id", tenantID, "error", err)
		return loadInto(ctx, dest, load)
	}
	key := grantsKey(tenantID, userID, ver)

	payload, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		if jsonErr := json.Unmarshal(payload, dest); jsonErr == nil {
			return nil
		}
		c.logger.Warn("grant cache entry unreadable", "key", key)
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("grant cache read failed", "key", key, "error", err)
		return loadInto(ctx, dest, load)
	}

	// The fill outlives any single caller: followers share its result.
	ch := c.group.DoChan(key, func() (interface{}, error) {
		fillCtx, cancel := internal.WithTimeout(context.WithoutCancel(ctx), fillTimeout)
		defer cancel()

		value, err := load(fillCtx)
		if err != nil {
			return nil, err
		}
		raw, err := json.Marshal(value)
		if err != nil {
			return nil, err
		}
		if err := c.client.Set(fillCtx, key, raw, c.ttl).Err(); err != nil {
			c.logger.Warn("grant cache write failed", "key", key, "error", err)
		}
		return raw, nil
	})

	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return res.Err
		}
		return json.Unmarshal(res.Val.([]byte), dest)
	}
}

// Invalidate bumps the tenant version, retrying briefly. When every attempt
// fails the tenant is marked stale and reads bypass Redis until a bump lands.
func (c *GrantCache) Invalidate(ctx context.Context, tenantID int64) error {
	if c == nil || c.client == nil {
		return nil
	}

	var err error
retry:
	for attempt := 1; ; attempt++ {
		if err = c.client.Incr(ctx, versionKey(tenantID)).Err(); err == nil {
			c.setStale(tenantID, false)
			return nil
		}
		if attempt == bumpAttempts {
			break
		}
		select {
		case <-ctx.Done():
			break retry
		case <-time.After(bumpBackoff * time.Duration(attempt)):
		}
	}

	c.setStale(tenantID, true)
	return err
}

func (c *GrantCache) isStale(tenantID int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stale[tenantID]
}

func (c *GrantCache) setStale(tenantID int64, stale bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if stale {
		if c.stale == nil {
			c.stale = make(map[int64]bool)
		}
		c.stale[tenantID] = true
		return
	}
	delete(c.stale, tenantID)
}

// Invalidator bumps the tenant version for every access change event. It runs
// inside PublishSync, so the bump lands before the write call returns.
func (c *GrantCache) Invalidator() events.Handler {
	return func(ctx context.Context, event events.Event) error {
		changed, ok := event.(*events.AccessChangedEvent)
		if !ok {
			return nil
		}
		if err := c.Invalidate(ctx, changed.TenantID); err != nil {
			return fmt.Errorf("invalidate tenant %d: %w", changed.TenantID, err)
		}
		return nil
	}
}

// Subscribe wires the invalidator to every change event type.
func (c *GrantCache) Subscribe(bus *events.EventBus) {
	bus.SubscribeAll(events.ChangeTypes, c.Invalidator())
}

func loadInto(ctx context.Context, dest interface{}, load func(context.Context) (interface{}, error)) error {
	value, err := load(ctx)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dest)
}
