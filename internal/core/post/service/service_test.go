package postapp

import (
	"context"
	"strings"
	"testing"

	"feedcore/internal/adapters/database"
	redisAdapter "feedcore/internal/adapters/redis"
	"feedcore/internal/core/errs"
	"feedcore/internal/core/fanout"
	fanoutapp "feedcore/internal/core/fanout/service"
	followerapp "feedcore/internal/core/follower/service"
	"feedcore/internal/core/task"
	"feedcore/internal/core/user"
	"feedcore/internal/retry"
	"feedcore/internal/testutil"

	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordedNotification struct {
	kind, recipient, actor, post string
}

type fakeNotifications struct {
	sent []recordedNotification
}

func (f *fakeNotifications) Enqueue(_ context.Context, kind, recipientID, actorID, postID string) (string, error) {
	f.sent = append(f.sent, recordedNotification{kind, recipientID, actorID, postID})
	return "n", nil
}

type fixture struct {
	svc       *PostService
	users     *database.UserRepositoryDatabase
	posts     *database.PostRepositoryDatabase
	queue     *database.TaskQueueDatabase
	cache     *redisAdapter.TimelineCacheRedis
	followers *followerapp.FollowerService
	notes     *fakeNotifications
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.DB(t)
	client, _ := testutil.Redis(t)
	f := &fixture{
		users: database.NewUserRepositoryDatabase(db),
		posts: database.NewPostRepositoryDatabase(db),
		queue: database.NewTaskQueueDatabase(db, database.QueueOptions{}),
		cache: redisAdapter.NewTimelineCacheRedis(client, 100, 0, zap.NewNop()),
		notes: &fakeNotifications{},
	}
	follows := database.NewFollowerRepositoryDatabase(db)
	counters := redisAdapter.NewCounterStoreRedis(client)
	f.followers = followerapp.NewFollowerService(follows, f.users, counters, f.cache, f.notes, zap.NewNop())
	fan := fanoutapp.NewFanoutService(f.posts, follows, f.cache, f.queue, fanoutapp.Options{
		Threshold: 10,
		BatchSize: 10,
		Retry:     retry.Policy{Attempts: 1},
	}, zap.NewNop())
	f.svc = NewPostService(f.posts, f.users, fan, f.followers, f.queue, f.notes, 20, zap.NewNop())
	return f
}

func (f *fixture) user(t *testing.T, handle string) string {
	t.Helper()
	u, err := f.users.Upsert(context.Background(), &user.User{ID: uuid.Must(uuid.NewV4()), Handle: handle})
	require.NoError(t, err)
	return u.ID.String()
}

// warm marks a timeline as cached so fan-out results are observable.
func (f *fixture) warm(t *testing.T, owner string) {
	t.Helper()
	require.NoError(t, f.cache.Replace(context.Background(), owner, nil, 0))
}

func (f *fixture) timeline(t *testing.T, owner string) []string {
	t.Helper()
	entries, err := f.cache.Read(context.Background(), owner, 50, nil)
	require.NoError(t, err)
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.PostID)
	}
	return ids
}

func TestCreatePost_FansOutAndNotifies(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice, bob, carol := f.user(t, "alice"), f.user(t, "bob"), f.user(t, "carol")
	_, err := f.followers.FollowUser(ctx, bob, alice)
	require.NoError(t, err)
	f.warm(t, alice)
	f.warm(t, bob)
	f.warm(t, carol)
	f.notes.sent = nil

	res, err := f.svc.CreatePost(ctx, alice, "hi @Carol, @alice @nobody", "")
	require.NoError(t, err)
	assert.Equal(t, string(fanout.ModeSync), res.Fanout)
	assert.False(t, res.Degraded)

	id, err := uuid.FromString(res.Post.ID)
	require.NoError(t, err)
	assert.Equal(t, byte(7), id.Version())

	assert.Equal(t, []string{res.Post.ID}, f.timeline(t, alice))
	assert.Equal(t, []string{res.Post.ID}, f.timeline(t, bob))
	assert.Empty(t, f.timeline(t, carol))

	assert.Equal(t, []recordedNotification{{task.NotifyMention, carol, alice, res.Post.ID}}, f.notes.sent)
}

func TestCreatePost_QueuesMedia(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice := f.user(t, "alice")

	res, err := f.svc.CreatePost(ctx, alice, "", "uploads/abc")
	require.NoError(t, err)

	leased, err := f.queue.Lease(ctx)
	require.NoError(t, err)
	require.NotNil(t, leased)
	assert.Equal(t, task.KindMediaProcess, leased.Kind)

	var payload task.MediaPayload
	require.NoError(t, leased.Decode(&payload))
	assert.Equal(t, task.MediaPayload{PostID: res.Post.ID, SourceKey: "uploads/abc"}, payload)
}

func TestCreatePost_Rejects(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice := f.user(t, "alice")

	tests := []struct {
		name, author, body, media string
	}{
		{"BadAuthor", "nope", "hi", ""},
		{"Empty", alice, "   ", ""},
		{"TooLong", alice, strings.Repeat("x", 21), ""},
		{"BadMedia", alice, "hi", "../etc/passwd"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CreatePost(ctx, tt.author, tt.body, tt.media)
			assert.ErrorIs(t, err, errs.ErrValidation)
		})
	}
}

func TestDeletePost(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice, bob := f.user(t, "alice"), f.user(t, "bob")
	_, err := f.followers.FollowUser(ctx, bob, alice)
	require.NoError(t, err)
	f.warm(t, alice)
	f.warm(t, bob)

	res, err := f.svc.CreatePost(ctx, alice, "short lived", "")
	require.NoError(t, err)

	assert.ErrorIs(t, f.svc.DeletePost(ctx, bob, res.Post.ID), errs.ErrForbidden)

	require.NoError(t, f.svc.DeletePost(ctx, alice, res.Post.ID))
	assert.Empty(t, f.timeline(t, alice))
	assert.Empty(t, f.timeline(t, bob))

	stored, err := f.posts.FindByID(ctx, res.Post.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsDeleted())

	_, err = f.svc.GetPost(ctx, res.Post.ID)
	assert.ErrorIs(t, err, errs.ErrNotFound)

	// second delete is a no-op
	require.NoError(t, f.svc.DeletePost(ctx, alice, res.Post.ID))

	assert.ErrorIs(t, f.svc.DeletePost(ctx, alice, uuid.Must(uuid.NewV4()).String()), errs.ErrNotFound)
}
