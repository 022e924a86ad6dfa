package task

import (
	"context"

	"feedcore/internal/core/task"
)

// Queue is the durable, at-least-once work queue behind the worker pool.
type Queue interface {
	Enqueue(ctx context.Context, t *task.Task) (string, error)
	// Lease claims the next visible task, or returns nil when none is ready.
	Lease(ctx context.Context) (*task.Task, error)
	Complete(ctx context.Context, t *task.Task) error
	// Fail records a failed attempt. The task is rescheduled with backoff when
	// retryable and budget remains, and dead-lettered otherwise.
	Fail(ctx context.Context, t *task.Task, cause error, retryable bool) error
	// CancelByRef cancels tasks of kind for ref that have not been leased.
	CancelByRef(ctx context.Context, kind task.Kind, ref string) (int64, error)
	DeadLetters(ctx context.Context, limit int) ([]*task.DeadLetter, error)
	Replay(ctx context.Context, deadLetterID string) (string, error)
}

// DTOs for use cases
type DeadLetterDTO struct {
	ID         string `json:"id"`
	TaskID     string `json:"task_id"`
	Kind       string `json:"kind"`
	Ref        string `json:"ref,omitempty"`
	Payload    string `json:"payload"`
	Attempts   int    `json:"attempts"`
	LastError  string `json:"last_error"`
	FailedAt   string `json:"failed_at"`
	ReplayedAt string `json:"replayed_at,omitempty"`
}
