package followerapp

import (
	"context"
	"testing"
	"time"

	"feedcore/internal/adapters/database"
	redisAdapter "feedcore/internal/adapters/redis"
	"feedcore/internal/core/errs"
	"feedcore/internal/core/task"
	"feedcore/internal/core/timeline"
	"feedcore/internal/core/user"
	counterPort "feedcore/internal/ports/counter"
	"feedcore/internal/testutil"

	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordedNotification struct {
	kind, recipient, actor string
}

type fakeNotifications struct {
	sent []recordedNotification
}

func (f *fakeNotifications) Enqueue(_ context.Context, kind, recipientID, actorID, _ string) (string, error) {
	f.sent = append(f.sent, recordedNotification{kind, recipientID, actorID})
	return "n", nil
}

type fixture struct {
	svc      *FollowerService
	users    *database.UserRepositoryDatabase
	cache    *redisAdapter.TimelineCacheRedis
	counters *redisAdapter.CounterStoreRedis
	notes    *fakeNotifications
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.DB(t)
	client, _ := testutil.Redis(t)
	f := &fixture{
		users:    database.NewUserRepositoryDatabase(db),
		cache:    redisAdapter.NewTimelineCacheRedis(client, 100, 0, zap.NewNop()),
		counters: redisAdapter.NewCounterStoreRedis(client),
		notes:    &fakeNotifications{},
	}
	f.svc = NewFollowerService(database.NewFollowerRepositoryDatabase(db), f.users, f.counters, f.cache, f.notes, zap.NewNop())
	return f
}

func (f *fixture) user(t *testing.T, handle string) string {
	t.Helper()
	u, err := f.users.Upsert(context.Background(), &user.User{ID: uuid.Must(uuid.NewV4()), Handle: handle})
	require.NoError(t, err)
	return u.ID.String()
}

func TestFollowUser(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice, bob := f.user(t, "alice"), f.user(t, "bob")

	edge, err := f.svc.FollowUser(ctx, bob, alice)
	require.NoError(t, err)
	assert.Equal(t, alice, edge.UserID)
	assert.Equal(t, bob, edge.FollowerID)

	again, err := f.svc.FollowUser(ctx, bob, alice)
	require.NoError(t, err)
	assert.Equal(t, edge.ID, again.ID)

	following, err := f.svc.IsFollowing(ctx, bob, alice)
	require.NoError(t, err)
	assert.True(t, following)

	followers, err := f.svc.GetFollowersByUserID(ctx, alice)
	require.NoError(t, err)
	require.Len(t, followers, 1)
	assert.Equal(t, bob, followers[0].FollowerID)

	assert.Equal(t, []recordedNotification{{task.NotifyFollow, alice, bob}}, f.notes.sent)
}

func TestFollowUser_Rejects(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice := f.user(t, "alice")

	_, err := f.svc.FollowUser(ctx, alice, alice)
	assert.ErrorIs(t, err, errs.ErrValidation)

	_, err = f.svc.FollowUser(ctx, "not-a-uuid", alice)
	assert.ErrorIs(t, err, errs.ErrValidation)

	_, err = f.svc.FollowUser(ctx, alice, uuid.Must(uuid.NewV4()).String())
	assert.ErrorIs(t, err, errs.ErrNotFound)

	assert.Empty(t, f.notes.sent)
}

func TestFollowerCount(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice, bob, carol := f.user(t, "alice"), f.user(t, "bob"), f.user(t, "carol")

	_, err := f.svc.FollowUser(ctx, bob, alice)
	require.NoError(t, err)

	// counter absent: loaded from the durable store and cached
	n, err := f.svc.FollowerCount(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = f.svc.FollowUser(ctx, carol, alice)
	require.NoError(t, err)
	cached, err := f.counters.Get(ctx, counterPort.FollowersKey(alice))
	require.NoError(t, err)
	assert.Equal(t, int64(2), cached)

	require.NoError(t, f.svc.UnfollowUser(ctx, carol, alice))
	n, err = f.svc.FollowerCount(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestUnfollowUser_InvalidatesTimeline(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice, bob := f.user(t, "alice"), f.user(t, "bob")

	_, err := f.svc.FollowUser(ctx, bob, alice)
	require.NoError(t, err)
	require.NoError(t, f.cache.Replace(ctx, bob, []timeline.Entry{{
		PostID: "p1", Score: timeline.ScoreOf(time.Now()),
	}}, 0))

	require.NoError(t, f.svc.UnfollowUser(ctx, bob, alice))

	cached, err := f.cache.IsCached(ctx, bob)
	require.NoError(t, err)
	assert.False(t, cached)

	following, err := f.svc.IsFollowing(ctx, bob, alice)
	require.NoError(t, err)
	assert.False(t, following)

	// unfollowing again is a no-op
	require.NoError(t, f.svc.UnfollowUser(ctx, bob, alice))
}
