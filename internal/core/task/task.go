// Package task defines the durable background-job records consumed by the
// worker pool, their payloads and the dead-letter record.
package task

import (
	"encoding/json"
	"time"

	"feedcore/internal/core/errs"

	"github.com/gofrs/uuid"
)

type Kind string

const (
	KindFanoutPublish Kind = "fanout.publish"
	KindFanoutRetract Kind = "fanout.retract"
	KindMediaProcess  Kind = "media.process"
	KindNotify        Kind = "notify.send"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusLeased    Status = "leased"
	StatusDone      Status = "done"
	StatusDead      Status = "dead"
	StatusCancelled Status = "cancelled"
)

// Task is one unit of background work. A leased task stays invisible until
// VisibleAt (unix ms) passes; an expired lease makes it leasable again.
type Task struct {
	ID         uuid.UUID `gorm:"primaryKey;type:char(36)"`
	Kind       Kind      `gorm:"type:varchar(32);not null;index:idx_tasks_kind_ref,priority:1"`
	Ref        string    `gorm:"type:varchar(64);index:idx_tasks_kind_ref,priority:2"`
	Payload    string    `gorm:"type:text;not null"`
	Status     Status    `gorm:"type:varchar(20);not null;index:idx_tasks_status_visible,priority:1"`
	Attempts   int       `gorm:"not null;default:0"`
	VisibleAt  int64     `gorm:"not null;index:idx_tasks_status_visible,priority:2"`
	LeaseToken string    `gorm:"type:varchar(36)"`
	LastError  string    `gorm:"type:text"`
	CreatedAt  time.Time `gorm:"autoCreateTime"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime"`
}

// DeadLetter keeps enough of a failed task to inspect and replay it by hand.
type DeadLetter struct {
	ID         uuid.UUID  `gorm:"primaryKey;type:char(36)"`
	TaskID     uuid.UUID  `gorm:"type:char(36);not null;index"`
	Kind       Kind       `gorm:"type:varchar(32);not null"`
	Ref        string     `gorm:"type:varchar(64)"`
	Payload    string     `gorm:"type:text;not null"`
	Attempts   int        `gorm:"not null"`
	LastError  string     `gorm:"type:text"`
	FailedAt   time.Time  `gorm:"not null"`
	ReplayedAt *time.Time `gorm:"index"`
}

// New builds a pending task with a JSON payload.
func New(kind Kind, ref string, payload any) (*Task, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, errs.Validation("encode %s payload: %v", kind, err)
	}
	return &Task{
		ID:      uuid.Must(uuid.NewV4()),
		Kind:    kind,
		Ref:     ref,
		Payload: string(raw),
		Status:  StatusPending,
	}, nil
}

// Decode unmarshals the payload into v. A malformed payload is a validation error.
func (t *Task) Decode(v any) error {
	if err := json.Unmarshal([]byte(t.Payload), v); err != nil {
		return errs.Validation("decode %s payload of task %s: %v", t.Kind, t.ID, err)
	}
	return nil
}

// FanoutPayload drives fanout.publish and fanout.retract. Targets, when set,
// restricts the work to those timeline owners.
type FanoutPayload struct {
	PostID   string   `json:"post_id"`
	AuthorID string   `json:"author_id"`
	Targets  []string `json:"targets,omitempty"`
}

// MediaPayload drives media.process.
type MediaPayload struct {
	PostID    string `json:"post_id"`
	SourceKey string `json:"source_key"`
}

const (
	NotifyMention = "mention"
	NotifyFollow  = "follow"
)

// NotifyPayload drives notify.send.
type NotifyPayload struct {
	Kind        string `json:"kind"`
	RecipientID string `json:"recipient_id"`
	ActorID     string `json:"actor_id"`
	PostID      string `json:"post_id,omitempty"`
}
