package task_test

import (
	"testing"

	"feedcore/internal/core/errs"
	"feedcore/internal/core/task"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAndDecode(t *testing.T) {
	tk, err := task.New(task.KindFanoutPublish, "p1", task.FanoutPayload{PostID: "p1", AuthorID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, task.StatusPending, tk.Status)
	assert.Equal(t, "p1", tk.Ref)

	var p task.FanoutPayload
	require.NoError(t, tk.Decode(&p))
	assert.Equal(t, "u1", p.AuthorID)
	assert.Empty(t, p.Targets)
}

func TestDecode_Malformed(t *testing.T) {
	tk := &task.Task{Kind: task.KindMediaProcess, Payload: "{not json"}

	var p task.MediaPayload
	err := tk.Decode(&p)
	assert.ErrorIs(t, err, errs.ErrValidation)
}
