package notify

import (
	"context"

	notifyPort "feedcore/internal/ports/notify"

	"go.uber.org/zap"
)

// LogNotifier writes notifications to the log. Delivery to users (push,
// email) is handled outside this service.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(ctx context.Context, note notifyPort.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	n.logger.Info("notification",
		zap.String("kind", note.Kind),
		zap.String("recipientID", note.RecipientID),
		zap.String("actorID", note.ActorID),
		zap.String("postID", note.PostID),
	)
	return nil
}
