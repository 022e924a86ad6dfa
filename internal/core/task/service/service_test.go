package taskapp

import (
	"context"
	"errors"
	"testing"

	"feedcore/internal/adapters/database"
	"feedcore/internal/core/errs"
	"feedcore/internal/core/task"
	"feedcore/internal/testutil"

	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDeadLetters_ListAndReplay(t *testing.T) {
	ctx := context.Background()
	queue := database.NewTaskQueueDatabase(testutil.DB(t), database.QueueOptions{})
	svc := NewDeadLetterService(queue, zap.NewNop())

	tk, err := task.New(task.KindFanoutPublish, "p1", task.FanoutPayload{PostID: "p1", AuthorID: "a1"})
	require.NoError(t, err)
	_, err = queue.Enqueue(ctx, tk)
	require.NoError(t, err)
	leased, err := queue.Lease(ctx)
	require.NoError(t, err)
	require.NotNil(t, leased)
	err = queue.Fail(ctx, leased, errors.New("bad payload"), false)
	require.ErrorIs(t, err, errs.ErrExhaustedRetries)

	letters, err := svc.ListDeadLetters(ctx, 0)
	require.NoError(t, err)
	require.Len(t, letters, 1)
	assert.Equal(t, tk.ID.String(), letters[0].TaskID)
	assert.Equal(t, string(task.KindFanoutPublish), letters[0].Kind)
	assert.Equal(t, "bad payload", letters[0].LastError)
	assert.Empty(t, letters[0].ReplayedAt)

	newID, err := svc.ReplayDeadLetter(ctx, letters[0].ID)
	require.NoError(t, err)
	assert.NotEqual(t, tk.ID.String(), newID)

	replayed, err := queue.Get(ctx, newID)
	require.NoError(t, err)
	assert.Equal(t, task.StatusPending, replayed.Status)
	assert.Equal(t, 0, replayed.Attempts)
	assert.Equal(t, tk.Payload, replayed.Payload)

	letters, err = svc.ListDeadLetters(ctx, 10)
	require.NoError(t, err)
	assert.NotEmpty(t, letters[0].ReplayedAt)

	_, err = svc.ReplayDeadLetter(ctx, uuid.Must(uuid.NewV4()).String())
	assert.ErrorIs(t, err, errs.ErrNotFound)
}
