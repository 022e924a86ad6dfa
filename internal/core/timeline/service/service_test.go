package timelineapp

import (
	"context"
	"testing"
	"time"

	"feedcore/internal/adapters/database"
	redisAdapter "feedcore/internal/adapters/redis"
	"feedcore/internal/core/errs"
	"feedcore/internal/core/follower"
	"feedcore/internal/core/post"
	reconcileapp "feedcore/internal/core/reconcile/service"
	"feedcore/internal/core/timeline"
	timelinePort "feedcore/internal/ports/timeline"
	"feedcore/internal/retry"
	"feedcore/internal/testutil"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fixture struct {
	mr      *miniredis.Miniredis
	posts   *database.PostRepositoryDatabase
	follows *database.FollowerRepositoryDatabase
	cache   *redisAdapter.TimelineCacheRedis
	svc     *TimelineService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.DB(t)
	client, mr := testutil.Redis(t)
	f := &fixture{
		mr:      mr,
		posts:   database.NewPostRepositoryDatabase(db),
		follows: database.NewFollowerRepositoryDatabase(db),
		cache:   redisAdapter.NewTimelineCacheRedis(client, 100, 0, zap.NewNop()),
	}
	rebuilder := reconcileapp.NewReconcileService(
		f.posts, f.follows, database.NewUserRepositoryDatabase(db), f.cache,
		redisAdapter.NewCounterStoreRedis(client), reconcileapp.Options{Bound: 100}, zap.NewNop(),
	)
	f.svc = NewTimelineService(f.cache, rebuilder, f.posts, Options{
		PageSize:    2,
		MaxPageSize: 10,
		Retry:       retry.Policy{Attempts: 1},
		OpTimeout:   time.Second,
	}, zap.NewNop())
	return f
}

// seed makes owner follow author and stores n posts by author, oldest first.
func (f *fixture) seed(t *testing.T, owner, author uuid.UUID, n int) []*post.Post {
	t.Helper()
	ctx := context.Background()
	now := time.Now()
	_, _, err := f.follows.FollowUser(ctx, &follower.Follower{
		ID: uuid.Must(uuid.NewV4()), UserID: author, FollowerID: owner, CreatedAt: testutil.Millis(now.Add(-time.Hour)),
	})
	require.NoError(t, err)

	var posts []*post.Post
	for i := 0; i < n; i++ {
		p, err := f.posts.Create(ctx, &post.Post{
			ID: uuid.Must(uuid.NewV7()), AuthorID: author, Body: "post",
			CreatedAt: testutil.Millis(now.Add(time.Duration(i-n) * time.Minute)),
		})
		require.NoError(t, err)
		posts = append(posts, p)
	}
	return posts
}

func itemIDs(page *timelinePort.Page) []string {
	ids := make([]string, len(page.Items))
	for i, it := range page.Items {
		ids[i] = it.ID
	}
	return ids
}

func TestGetTimeline_ColdCacheIsRebuilt(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	owner, author := uuid.Must(uuid.NewV4()), uuid.Must(uuid.NewV4())
	posts := f.seed(t, owner, author, 2)

	first, err := f.svc.GetTimelineByUserID(ctx, owner.String(), 10, "")
	require.NoError(t, err)
	assert.Equal(t, timelinePort.SourceRebuild, first.Source)
	assert.Equal(t, []string{posts[1].ID.String(), posts[0].ID.String()}, itemIDs(first))

	second, err := f.svc.GetTimelineByUserID(ctx, owner.String(), 10, "")
	require.NoError(t, err)
	assert.Equal(t, timelinePort.SourceCache, second.Source)
	assert.Equal(t, itemIDs(first), itemIDs(second))
}

func TestGetTimeline_EmptyIsNotAMiss(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	owner := uuid.Must(uuid.NewV4())

	_, err := f.svc.GetTimelineByUserID(ctx, owner.String(), 10, "")
	require.NoError(t, err)

	page, err := f.svc.GetTimelineByUserID(ctx, owner.String(), 10, "")
	require.NoError(t, err)
	assert.Equal(t, timelinePort.SourceCache, page.Source)
	assert.Empty(t, page.Items)
	assert.Empty(t, page.NextCursor)
}

func TestGetTimeline_Pagination(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	owner, author := uuid.Must(uuid.NewV4()), uuid.Must(uuid.NewV4())
	posts := f.seed(t, owner, author, 5)

	var seen []string
	cursor := ""
	for i := 0; i < 5; i++ {
		page, err := f.svc.GetTimelineByUserID(ctx, owner.String(), 0, cursor)
		require.NoError(t, err)
		seen = append(seen, itemIDs(page)...)
		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}

	var want []string
	for i := len(posts) - 1; i >= 0; i-- {
		want = append(want, posts[i].ID.String())
	}
	assert.Equal(t, want, seen)
}

func TestGetTimeline_HidesTombstonedPosts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	owner, author := uuid.Must(uuid.NewV4()), uuid.Must(uuid.NewV4())
	posts := f.seed(t, owner, author, 2)

	_, err := f.svc.GetTimelineByUserID(ctx, owner.String(), 10, "")
	require.NoError(t, err)

	// the cache still references the post until the retract reaches it
	require.NoError(t, f.posts.Tombstone(ctx, posts[1].ID.String(), time.Now()))
	page, err := f.svc.GetTimelineByUserID(ctx, owner.String(), 10, "")
	require.NoError(t, err)
	assert.Equal(t, timelinePort.SourceCache, page.Source)
	assert.Equal(t, []string{posts[0].ID.String()}, itemIDs(page))
}

func TestGetTimeline_RepairsAfterGrace(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.svc.opts.TombstoneGrace = time.Hour
	owner, author := uuid.Must(uuid.NewV4()), uuid.Must(uuid.NewV4())
	posts := f.seed(t, owner, author, 2)

	_, err := f.svc.GetTimelineByUserID(ctx, owner.String(), 10, "")
	require.NoError(t, err)
	deleted := posts[1].ID.String()
	require.NoError(t, f.posts.Tombstone(ctx, deleted, time.Now()))

	cachedIDs := func() []string {
		entries, err := f.cache.Read(ctx, owner.String(), 10, nil)
		require.NoError(t, err)
		var ids []string
		for _, e := range entries {
			ids = append(ids, e.PostID)
		}
		return ids
	}

	// within the grace window the entry is hidden but left in place
	_, err = f.svc.GetTimelineByUserID(ctx, owner.String(), 10, "")
	require.NoError(t, err)
	assert.Contains(t, cachedIDs(), deleted)

	f.svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	page, err := f.svc.GetTimelineByUserID(ctx, owner.String(), 10, "")
	require.NoError(t, err)
	assert.Equal(t, []string{posts[0].ID.String()}, itemIDs(page))
	assert.Equal(t, []string{posts[0].ID.String()}, cachedIDs())
}

func TestGetTimeline_FallsBackToStore(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	owner, author := uuid.Must(uuid.NewV4()), uuid.Must(uuid.NewV4())
	posts := f.seed(t, owner, author, 1)
	f.mr.Close()

	page, err := f.svc.GetTimelineByUserID(ctx, owner.String(), 10, "")
	require.NoError(t, err)
	assert.Equal(t, timelinePort.SourceStore, page.Source)
	assert.Equal(t, []string{posts[0].ID.String()}, itemIDs(page))
}

func TestGetTimeline_BadCursor(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.GetTimelineByUserID(context.Background(), uuid.Must(uuid.NewV4()).String(), 10, "garbage")
	assert.ErrorIs(t, err, errs.ErrValidation)
}

func TestGetTimeline_CursorFormat(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	owner, author := uuid.Must(uuid.NewV4()), uuid.Must(uuid.NewV4())
	posts := f.seed(t, owner, author, 3)

	page, err := f.svc.GetTimelineByUserID(ctx, owner.String(), 2, "")
	require.NoError(t, err)
	cursor, err := timeline.ParseCursor(page.NextCursor)
	require.NoError(t, err)
	assert.Equal(t, posts[1].ID.String(), cursor.PostID)
	assert.Equal(t, timeline.ScoreOf(posts[1].CreatedAt), cursor.Score)
}
