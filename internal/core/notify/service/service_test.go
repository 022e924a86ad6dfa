package notifyapp

import (
	"context"
	"testing"
	"time"

	"feedcore/internal/adapters/database"
	"feedcore/internal/core/errs"
	"feedcore/internal/core/task"
	notifyPort "feedcore/internal/ports/notify"
	"feedcore/internal/testutil"

	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) Notify(ctx context.Context, n notifyPort.Notification) error {
	return m.Called(ctx, n).Error(0)
}

func TestNotify_EnqueueAndHandle(t *testing.T) {
	ctx := context.Background()
	queue := database.NewTaskQueueDatabase(testutil.DB(t), database.QueueOptions{Lease: time.Minute})
	notifier := new(mockNotifier)
	svc := NewNotifyService(notifier, queue, zap.NewNop())

	id, err := svc.Enqueue(ctx, task.NotifyMention, "bob", "alice", "p1")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	none, err := svc.Enqueue(ctx, task.NotifyMention, "alice", "alice", "p1")
	require.NoError(t, err)
	assert.Empty(t, none)

	leased, err := queue.Lease(ctx)
	require.NoError(t, err)
	require.NotNil(t, leased)
	assert.Equal(t, task.KindNotify, leased.Kind)

	notifier.On("Notify", ctx, notifyPort.Notification{
		Kind: task.NotifyMention, RecipientID: "bob", ActorID: "alice", PostID: "p1",
	}).Return(nil).Once()
	require.NoError(t, svc.HandleNotifyTask(ctx, leased))
	notifier.AssertExpectations(t)

	next, err := queue.Lease(ctx)
	require.NoError(t, err)
	assert.Nil(t, next)
}

func TestNotify_RejectsBadPayload(t *testing.T) {
	svc := NewNotifyService(new(mockNotifier), nil, zap.NewNop())

	unknown, err := task.New(task.KindNotify, "", task.NotifyPayload{Kind: "poke", RecipientID: "b", ActorID: "a"})
	require.NoError(t, err)
	assert.ErrorIs(t, svc.HandleNotifyTask(context.Background(), unknown), errs.ErrValidation)

	noRecipient, err := task.New(task.KindNotify, "", task.NotifyPayload{Kind: task.NotifyFollow, ActorID: "a"})
	require.NoError(t, err)
	assert.ErrorIs(t, svc.HandleNotifyTask(context.Background(), noRecipient), errs.ErrValidation)

	garbage := &task.Task{ID: uuid.Must(uuid.NewV4()), Kind: task.KindNotify, Payload: "]"}
	assert.ErrorIs(t, svc.HandleNotifyTask(context.Background(), garbage), errs.ErrValidation)
}
