package notify

import "context"

// Notification is handed to the outbound delivery layer.
type Notification struct {
	Kind        string
	RecipientID string
	ActorID     string
	PostID      string
}

// Notifier delivers notifications. Delivery mechanics live outside the core.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}
