// Package about caches the service metadata record that every response
// envelope carries.
package about

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"moalmanac-api/internal/logging"
	"moalmanac-api/internal/planner"
	"moalmanac-api/internal/resolver"
	"moalmanac-api/internal/schema"
	"moalmanac-api/internal/serialize"
)

// DefaultTTL is how long a loaded record is served before it is reloaded.
const DefaultTTL = 300 * time.Second

// ErrMissing is returned when the about table is empty.
var ErrMissing = errors.New("about record missing")

// Loader reads the current about record.
type Loader func(ctx context.Context) (*serialize.OrderedMap, error)

// Observer is told whether each read was served from the cache and how
// each reload went.
type Observer interface {
	ObserveAboutCache(ctx context.Context, hit bool)
	ObserveAboutReload(ctx context.Context, duration time.Duration, err error)
}

// Snapshot is an immutable cached value.
type Snapshot struct {
	Value    *serialize.OrderedMap
	LoadedAt time.Time
}

// Config controls the cache.
type Config struct {
	TTL      time.Duration
	Load     Loader
	Logger   *logging.Logger
	Observer Observer
	// Now overrides the clock in tests.
	Now func() time.Time
}

// Cache holds the about record for a bounded time.
type Cache struct {
	ttl      time.Duration
	load     Loader
	logger   *logging.Logger
	observer Observer
	now      func() time.Time
	current  atomic.Pointer[Snapshot]
	mu       sync.Mutex
}

// New creates an empty cache. Nothing is loaded until the first Get.
func New(cfg Config) (*Cache, error) {
	if cfg.Load == nil {
		return nil, fmt.Errorf("about cache requires a loader")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Logger == nil {
		cfg.Logger = &logging.Logger{Logger: slog.Default()}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Cache{
		ttl:      cfg.TTL,
		load:     cfg.Load,
		logger:   cfg.Logger.WithFields(slog.String("component", "about_cache")),
		observer: cfg.Observer,
		now:      cfg.Now,
	}, nil
}

// Get returns the cached record, reloading it once the TTL has passed. If a
// reload fails and an older value exists, the older value is served.
func (c *Cache) Get(ctx context.Context) (*serialize.OrderedMap, error) {
	if snap := c.current.Load(); c.fresh(snap) {
		c.observe(ctx, true)
		return snap.Value, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	snap := c.current.Load()
	if c.fresh(snap) {
		c.observe(ctx, true)
		return snap.Value, nil
	}
	c.observe(ctx, false)

	started := c.now()
	value, err := c.load(ctx)
	if c.observer != nil {
		c.observer.ObserveAboutReload(ctx, c.now().Sub(started), err)
	}
	if err != nil {
		if snap != nil {
			c.logger.Warn("about reload failed; serving stale value",
				slog.String("error", err.Error()),
				slog.Time("loaded_at", snap.LoadedAt),
			)
			return snap.Value, nil
		}
		return nil, err
	}
	c.current.Store(&Snapshot{Value: value, LoadedAt: c.now()})
	return value, nil
}

// Invalidate drops the cached value.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current.Store(nil)
}

func (c *Cache) fresh(snap *Snapshot) bool {
	return snap != nil && c.now().Sub(snap.LoadedAt) < c.ttl
}

func (c *Cache) observe(ctx context.Context, hit bool) {
	if c.observer != nil {
		c.observer.ObserveAboutCache(ctx, hit)
	}
}

// ResolverLoader reads the first about row through r.
func ResolverLoader(r *resolver.Resolver) Loader {
	return func(ctx context.Context) (*serialize.OrderedMap, error) {
		rows, err := r.Find(ctx, schema.About, nil, planner.RootOptions{})
		if err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			return nil, ErrMissing
		}
		s, _ := serialize.For(schema.About)
		return s.Primary(nil, rows[0]), nil
	}
}
