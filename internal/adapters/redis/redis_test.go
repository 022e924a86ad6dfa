package redis

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"feedcore/internal/core/errs"
	"feedcore/internal/core/timeline"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestCache(t *testing.T, bound int) (*TimelineCacheRedis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewTimelineCacheRedis(client, bound, 0, zap.NewNop()), mr
}

func entry(id string, score float64) timeline.Entry {
	return timeline.Entry{PostID: id, Score: score}
}

func ids(entries []timeline.Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.PostID
	}
	return out
}

func TestTimelineCache_MissVersusEmpty(t *testing.T) {
	ctx := context.Background()
	cache, _ := newTestCache(t, 10)

	_, err := cache.Read(ctx, "u1", 10, nil)
	assert.ErrorIs(t, err, errs.ErrCacheMiss)

	require.NoError(t, cache.Replace(ctx, "u1", nil, 0))
	got, err := cache.Read(ctx, "u1", 10, nil)
	require.NoError(t, err)
	assert.Empty(t, got)

	cached, err := cache.IsCached(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, cached)

	require.NoError(t, cache.Invalidate(ctx, "u1"))
	_, err = cache.Read(ctx, "u1", 10, nil)
	assert.ErrorIs(t, err, errs.ErrCacheMiss)
}

func TestTimelineCache_OrderAndTieBreak(t *testing.T) {
	ctx := context.Background()
	cache, _ := newTestCache(t, 10)
	require.NoError(t, cache.Replace(ctx, "u1", nil, 0))

	require.NoError(t, cache.Insert(ctx, "u1", entry("a", 100), entry("c", 200), entry("b", 200)))
	require.NoError(t, cache.InsertMany(ctx, []string{"u1", "u2"}, entry("d", 300)))

	got, err := cache.Read(ctx, "u1", 10, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"d", "c", "b", "a"}, ids(got))
}

func TestTimelineCache_CursorAcrossTies(t *testing.T) {
	ctx := context.Background()
	cache, _ := newTestCache(t, 10)
	require.NoError(t, cache.Replace(ctx, "u1", []timeline.Entry{
		entry("e", 300), entry("d", 200), entry("c", 200), entry("b", 200), entry("a", 100),
	}, 0))

	var seen []string
	var cursor *timeline.Cursor
	for {
		page, err := cache.Read(ctx, "u1", 2, cursor)
		require.NoError(t, err)
		if len(page) == 0 {
			break
		}
		seen = append(seen, ids(page)...)
		cursor = timeline.CursorOf(page[len(page)-1])
	}
	assert.Equal(t, []string{"e", "d", "c", "b", "a"}, seen)
}

func TestTimelineCache_BoundEvictsOldest(t *testing.T) {
	ctx := context.Background()
	cache, _ := newTestCache(t, 3)
	require.NoError(t, cache.Replace(ctx, "u1", nil, 0))

	for i := 1; i <= 5; i++ {
		require.NoError(t, cache.Insert(ctx, "u1", entry(fmt.Sprintf("p%d", i), float64(i))))
	}
	// equal scores evict the lowest id first
	require.NoError(t, cache.Insert(ctx, "u1", entry("p0", 3)))

	got, err := cache.Read(ctx, "u1", 10, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"p5", "p4", "p3"}, ids(got))

	require.NoError(t, cache.Trim(ctx, "u1", 1))
	got, err = cache.Read(ctx, "u1", 10, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"p5"}, ids(got))
}

func TestTimelineCache_RemoveIsIdempotent(t *testing.T) {
	ctx := context.Background()
	cache, _ := newTestCache(t, 10)
	for _, owner := range []string{"u1", "u2"} {
		require.NoError(t, cache.Replace(ctx, owner, []timeline.Entry{entry("a", 1), entry("b", 2)}, 0))
	}

	require.NoError(t, cache.RemoveMany(ctx, []string{"u1", "u2"}, "a"))
	require.NoError(t, cache.RemoveMany(ctx, []string{"u1", "u2"}, "a"))
	require.NoError(t, cache.Remove(ctx, "u1", "b"))

	got, err := cache.Read(ctx, "u1", 10, nil)
	require.NoError(t, err)
	assert.Empty(t, got)
	got, err = cache.Read(ctx, "u2", 10, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, ids(got))
}

func TestTimelineCache_ReplaceKeepsEntriesAfterCutoff(t *testing.T) {
	ctx := context.Background()
	cache, _ := newTestCache(t, 10)

	require.NoError(t, cache.Replace(ctx, "u1", nil, 0))
	// a stale entry from before the rebuild and one fanned out while it ran
	require.NoError(t, cache.Insert(ctx, "u1", entry("stale", 50), entry("late", 500)))

	require.NoError(t, cache.Replace(ctx, "u1", []timeline.Entry{entry("b", 200), entry("a", 100)}, 400))

	got, err := cache.Read(ctx, "u1", 10, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"late", "b", "a"}, ids(got))
}

func TestTimelineCache_InsertSkipsUncachedOwners(t *testing.T) {
	ctx := context.Background()
	cache, mr := newTestCache(t, 10)
	require.NoError(t, cache.Replace(ctx, "warm", nil, 0))

	require.NoError(t, cache.Insert(ctx, "cold", entry("a", 1)))
	require.NoError(t, cache.InsertMany(ctx, []string{"warm", "cold"}, entry("b", 2)))

	assert.False(t, mr.Exists(timeline.Key("cold")))
	got, err := cache.Read(ctx, "warm", 10, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, ids(got))
}

func TestTimelineCache_ReplaceFromRetakesSnapshotAfterConcurrentInsert(t *testing.T) {
	ctx := context.Background()
	cache, mr := newTestCache(t, 10)

	calls := 0
	got, err := cache.ReplaceFrom(ctx, "u1", 400, func(ctx context.Context) ([]timeline.Entry, error) {
		calls++
		if calls == 1 {
			// committed after the first snapshot read and fanned out to the
			// owner that is being rebuilt
			require.NoError(t, cache.Insert(ctx, "u1", entry("late", 300)))
			return []timeline.Entry{entry("a", 100)}, nil
		}
		return []timeline.Entry{entry("late", 300), entry("a", 100)}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, []string{"late", "a"}, ids(got))

	read, err := cache.Read(ctx, "u1", 10, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"late", "a"}, ids(read))
	assert.False(t, mr.Exists(timeline.BuildingKey("u1")))
	assert.Zero(t, mr.TTL(timeline.Key("u1")))
}

func TestTimelineCache_AbandonedRebuildExpires(t *testing.T) {
	ctx := context.Background()
	cache, mr := newTestCache(t, 10)
	boom := errs.Transient(errors.New("store down"))

	_, err := cache.ReplaceFrom(ctx, "u1", 0, func(ctx context.Context) ([]timeline.Entry, error) {
		require.NoError(t, cache.Insert(ctx, "u1", entry("late", 300)))
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)

	require.True(t, mr.Exists(timeline.Key("u1")))
	assert.Greater(t, mr.TTL(timeline.Key("u1")), time.Duration(0))
	_, err = cache.Read(ctx, "u1", 10, nil)
	assert.ErrorIs(t, err, errs.ErrCacheMiss)

	mr.FastForward(buildingTTL + time.Second)
	assert.False(t, mr.Exists(timeline.Key("u1")))
	require.NoError(t, cache.Insert(ctx, "u1", entry("later", 400)))
	assert.False(t, mr.Exists(timeline.Key("u1")))
}

func TestTimelineCache_ReplaceWithTTL(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	cache := NewTimelineCacheRedis(client, 10, time.Minute, zap.NewNop())

	require.NoError(t, cache.Replace(ctx, "u1", []timeline.Entry{entry("a", 1)}, 0))
	mr.FastForward(2 * time.Minute)

	_, err := cache.Read(ctx, "u1", 10, nil)
	assert.ErrorIs(t, err, errs.ErrCacheMiss)
}

func TestTimelineCache_ConnectionLossIsTransient(t *testing.T) {
	ctx := context.Background()
	cache, mr := newTestCache(t, 10)
	mr.Close()

	err := cache.Insert(ctx, "u1", entry("a", 1))
	assert.ErrorIs(t, err, errs.ErrTransient)
	assert.True(t, errs.IsRetryable(err))
}

func TestClassify(t *testing.T) {
	assert.NoError(t, classify(nil))
	assert.ErrorIs(t, classify(redis.Nil), errs.ErrCacheMiss)
	assert.ErrorIs(t, classify(errors.New("OOM command not allowed when used memory > 'maxmemory'.")), errs.ErrCapacity)
	assert.ErrorIs(t, classify(context.DeadlineExceeded), errs.ErrTransient)
	assert.ErrorIs(t, classify(context.Canceled), context.Canceled)
}

func TestCounterStore(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	store := NewCounterStoreRedis(client)

	_, err := store.Get(ctx, "user:u1:followers")
	assert.ErrorIs(t, err, errs.ErrCacheMiss)

	// moving an absent counter leaves it absent
	require.NoError(t, store.Incr(ctx, "user:u1:followers", 1))
	_, err = store.Get(ctx, "user:u1:followers")
	assert.ErrorIs(t, err, errs.ErrCacheMiss)

	require.NoError(t, store.Set(ctx, "user:u1:followers", 4))
	require.NoError(t, store.Incr(ctx, "user:u1:followers", 2))
	require.NoError(t, store.Decr(ctx, "user:u1:followers", 1))

	n, err := store.Get(ctx, "user:u1:followers")
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)
}
