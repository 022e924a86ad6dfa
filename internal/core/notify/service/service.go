package notifyapp

import (
	"context"

	"feedcore/internal/core/errs"
	"feedcore/internal/core/task"
	notifyPort "feedcore/internal/ports/notify"
	taskPort "feedcore/internal/ports/task"

	"go.uber.org/zap"
)

// NotifyService queues user notifications and delivers them from the worker pool.
type NotifyService struct {
	Notifier notifyPort.Notifier
	Queue    taskPort.Queue
	logger   *zap.Logger
}

func NewNotifyService(notifier notifyPort.Notifier, queue taskPort.Queue, logger *zap.Logger) *NotifyService {
	return &NotifyService{Notifier: notifier, Queue: queue, logger: logger}
}

// Enqueue schedules a notification. Self-notifications are dropped.
func (s *NotifyService) Enqueue(ctx context.Context, kind, recipientID, actorID, postID string) (string, error) {
	if recipientID == actorID {
		return "", nil
	}
	t, err := task.New(task.KindNotify, postID, task.NotifyPayload{
		Kind:        kind,
		RecipientID: recipientID,
		ActorID:     actorID,
		PostID:      postID,
	})
	if err != nil {
		return "", err
	}
	return s.Queue.Enqueue(ctx, t)
}

func (s *NotifyService) HandleNotifyTask(ctx context.Context, t *task.Task) error {
	var payload task.NotifyPayload
	if err := t.Decode(&payload); err != nil {
		return err
	}
	switch payload.Kind {
	case task.NotifyMention, task.NotifyFollow:
	default:
		return errs.Validation("unknown notification kind %q", payload.Kind)
	}
	if payload.RecipientID == "" || payload.ActorID == "" {
		return errs.Validation("notification task %s needs recipient and actor", t.ID)
	}

	return s.Notifier.Notify(ctx, notifyPort.Notification{
		Kind:        payload.Kind,
		RecipientID: payload.RecipientID,
		ActorID:     payload.ActorID,
		PostID:      payload.PostID,
	})
}
