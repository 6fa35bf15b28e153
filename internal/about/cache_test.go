package about

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"moalmanac-api/internal/dbexec"
	"moalmanac-api/internal/planner"
	"moalmanac-api/internal/resolver"
	"moalmanac-api/internal/schema"
	"moalmanac-api/internal/serialize"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type countingObserver struct {
	hits, misses atomic.Int64
	reloads      atomic.Int64
	failures     atomic.Int64
}

func (o *countingObserver) ObserveAboutCache(_ context.Context, hit bool) {
	if hit {
		o.hits.Add(1)
	} else {
		o.misses.Add(1)
	}
}

func (o *countingObserver) ObserveAboutReload(_ context.Context, _ time.Duration, err error) {
	o.reloads.Add(1)
	if err != nil {
		o.failures.Add(1)
	}
}

func release(v string) *serialize.OrderedMap {
	m := serialize.NewOrderedMap()
	m.Set("release", v)
	return m
}

func TestCacheServesWithinTTL(t *testing.T) {
	clk := &clock{now: time.Unix(1700000000, 0)}
	var loads atomic.Int32
	obs := &countingObserver{}
	cache, err := New(Config{
		TTL:      time.Minute,
		Now:      clk.Now,
		Observer: obs,
		Load: func(context.Context) (*serialize.OrderedMap, error) {
			n := loads.Add(1)
			if n == 1 {
				return release("v1"), nil
			}
			return release("v2"), nil
		},
	})
	require.NoError(t, err)

	first, err := cache.Get(context.Background())
	require.NoError(t, err)
	second, err := cache.Get(context.Background())
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, int32(1), loads.Load())

	clk.Advance(2 * time.Minute)
	third, err := cache.Get(context.Background())
	require.NoError(t, err)
	v, _ := third.Get("release")
	assert.Equal(t, "v2", v)
	assert.Equal(t, int64(1), obs.hits.Load())
	assert.Equal(t, int64(2), obs.misses.Load())
	assert.Equal(t, int64(2), obs.reloads.Load())
}

func TestCacheServesStaleOnReloadError(t *testing.T) {
	clk := &clock{now: time.Unix(1700000000, 0)}
	fail := false
	obs := &countingObserver{}
	cache, err := New(Config{
		TTL:      time.Second,
		Now:      clk.Now,
		Observer: obs,
		Load: func(context.Context) (*serialize.OrderedMap, error) {
			if fail {
				return nil, errors.New("database is locked")
			}
			return release("v1"), nil
		},
	})
	require.NoError(t, err)

	_, err = cache.Get(context.Background())
	require.NoError(t, err)

	fail = true
	clk.Advance(time.Minute)
	value, err := cache.Get(context.Background())
	require.NoError(t, err)
	v, _ := value.Get("release")
	assert.Equal(t, "v1", v)

	cache.Invalidate()
	_, err = cache.Get(context.Background())
	require.Error(t, err)
	assert.Equal(t, int64(3), obs.reloads.Load())
	assert.Equal(t, int64(2), obs.failures.Load())
}

func TestCacheConcurrentReadersLoadOnce(t *testing.T) {
	var loads atomic.Int32
	cache, err := New(Config{
		Load: func(context.Context) (*serialize.OrderedMap, error) {
			loads.Add(1)
			time.Sleep(10 * time.Millisecond)
			return release("v1"), nil
		},
	})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			value, err := cache.Get(context.Background())
			assert.NoError(t, err)
			assert.NotNil(t, value)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), loads.Load())
}

func TestNewRequiresLoader(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)
}

func TestResolverLoader(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	defer db.Close()

	plan, err := planner.PlanRootQuery(schema.About, nil, planner.RootOptions{})
	require.NoError(t, err)
	mock.ExpectQuery(plan.SQL).WillReturnRows(
		sqlmock.NewRows(schema.MustLookup(schema.About).ColumnNames()).
			AddRow(int64(1), "https://github.com/vanallenlab/moalmanac-db", "Molecular Oncology Almanac",
				"GPL-2.0", "v.2024-06-11", "https://moalmanac.org", "2024-06-11"))

	load := ResolverLoader(resolver.NewResolver(dbexec.NewStandardExecutor(db)))
	value, err := load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"github", "label", "license", "release", "url", "last_updated"}, value.Keys())
	updated, _ := value.Get("last_updated")
	assert.Equal(t, "2024-06-11", updated)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestResolverLoaderEmptyTable(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	defer db.Close()

	plan, err := planner.PlanRootQuery(schema.About, nil, planner.RootOptions{})
	require.NoError(t, err)
	mock.ExpectQuery(plan.SQL).WillReturnRows(sqlmock.NewRows(schema.MustLookup(schema.About).ColumnNames()))

	_, err = ResolverLoader(resolver.NewResolver(dbexec.NewStandardExecutor(db)))(context.Background())
	assert.True(t, errors.Is(err, ErrMissing))
}
