package taskapp

import (
	"context"
	"time"

	"feedcore/internal/core/task"
	taskPort "feedcore/internal/ports/task"

	"go.uber.org/zap"
)

// DeadLetterService exposes failed tasks for inspection and manual replay.
type DeadLetterService struct {
	Queue  taskPort.Queue
	logger *zap.Logger
}

func NewDeadLetterService(queue taskPort.Queue, logger *zap.Logger) *DeadLetterService {
	return &DeadLetterService{Queue: queue, logger: logger}
}

func (s *DeadLetterService) ListDeadLetters(ctx context.Context, limit int) ([]*taskPort.DeadLetterDTO, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	letters, err := s.Queue.DeadLetters(ctx, limit)
	if err != nil {
		return nil, err
	}
	out := make([]*taskPort.DeadLetterDTO, 0, len(letters))
	for _, d := range letters {
		out = append(out, toDTO(d))
	}
	return out, nil
}

// ReplayDeadLetter re-enqueues the failed task with a fresh attempt budget.
func (s *DeadLetterService) ReplayDeadLetter(ctx context.Context, id string) (string, error) {
	taskID, err := s.Queue.Replay(ctx, id)
	if err != nil {
		return "", err
	}
	s.logger.Info("dead letter replayed", zap.String("deadLetterID", id), zap.String("taskID", taskID))
	return taskID, nil
}

func toDTO(d *task.DeadLetter) *taskPort.DeadLetterDTO {
	dto := &taskPort.DeadLetterDTO{
		ID:        d.ID.String(),
		TaskID:    d.TaskID.String(),
		Kind:      string(d.Kind),
		Ref:       d.Ref,
		Payload:   d.Payload,
		Attempts:  d.Attempts,
		LastError: d.LastError,
		FailedAt:  d.FailedAt.UTC().Format(time.RFC3339),
	}
	if d.ReplayedAt != nil {
		dto.ReplayedAt = d.ReplayedAt.UTC().Format(time.RFC3339)
	}
	return dto
}
