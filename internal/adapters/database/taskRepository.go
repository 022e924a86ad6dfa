package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"feedcore/internal/core/errs"
	"feedcore/internal/core/task"
	"feedcore/internal/retry"

	"github.com/gofrs/uuid"
	"gorm.io/gorm"
)

// QueueOptions tunes leasing and the retry budget.
type QueueOptions struct {
	MaxAttempts int
	Lease       time.Duration
	BackoffBase time.Duration
	BackoffMax  time.Duration
	// ScanSize is how many candidate rows a lease looks at before giving up.
	ScanSize int
}

// TaskQueueDatabase is the durable task queue. Leases are claimed with a
// compare-and-set update so two workers never hold the same task.
type TaskQueueDatabase struct {
	db   *gorm.DB
	opts QueueOptions
	now  func() time.Time
}

func NewTaskQueueDatabase(db *gorm.DB, opts QueueOptions) *TaskQueueDatabase {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 5
	}
	if opts.Lease <= 0 {
		opts.Lease = 30 * time.Second
	}
	if opts.ScanSize <= 0 {
		opts.ScanSize = 16
	}
	return &TaskQueueDatabase{db: db, opts: opts, now: time.Now}
}

// WithClock replaces the queue clock. Used by tests to expire leases.
func (q *TaskQueueDatabase) WithClock(now func() time.Time) *TaskQueueDatabase {
	q.now = now
	return q
}

func (q *TaskQueueDatabase) Enqueue(ctx context.Context, t *task.Task) (string, error) {
	if t.ID == uuid.Nil {
		t.ID = uuid.Must(uuid.NewV4())
	}
	t.Status = task.StatusPending
	if t.VisibleAt == 0 {
		t.VisibleAt = q.now().UnixMilli()
	}
	if err := q.db.WithContext(ctx).Create(t).Error; err != nil {
		return "", classify(err, "task", t.ID.String())
	}
	return t.ID.String(), nil
}

func (q *TaskQueueDatabase) Get(ctx context.Context, id string) (*task.Task, error) {
	var t task.Task
	if err := q.db.WithContext(ctx).Where("id = ?", id).First(&t).Error; err != nil {
		return nil, classify(err, "task", id)
	}
	return &t, nil
}

// Lease claims the oldest visible task. Pending tasks and leased tasks whose
// lease has expired are both candidates. A candidate that has already used
// its attempt budget is dead-lettered instead of handed out, and a scan that
// only buried tasks is repeated so tasks behind them are still reached.
func (q *TaskQueueDatabase) Lease(ctx context.Context) (*task.Task, error) {
	for {
		t, buried, full, err := q.leaseScan(ctx)
		if err != nil || t != nil {
			return t, err
		}
		if buried == 0 || !full {
			return nil, nil
		}
	}
}

// leaseScan tries one window of candidates. full reports whether the window
// was filled, meaning more visible tasks may sit behind it.
func (q *TaskQueueDatabase) leaseScan(ctx context.Context) (*task.Task, int, bool, error) {
	now := q.now()

	var candidates []*task.Task
	err := q.db.WithContext(ctx).
		Where("status IN ? AND visible_at <= ?", []task.Status{task.StatusPending, task.StatusLeased}, now.UnixMilli()).
		Order("visible_at ASC").
		Limit(q.opts.ScanSize).
		Find(&candidates).Error
	if err != nil {
		return nil, 0, false, classify(err, "task", "")
	}
	full := len(candidates) == q.opts.ScanSize

	buried := 0
	for _, t := range candidates {
		if t.Attempts >= q.opts.MaxAttempts {
			cause := errors.New(t.LastError)
			if t.LastError == "" {
				cause = errors.New("lease expired after final attempt")
			}
			if err := q.bury(ctx, t, cause); err != nil && !errors.Is(err, errs.ErrLeaseLost) {
				return nil, buried, full, err
			}
			buried++
			continue
		}

		token := uuid.Must(uuid.NewV4()).String()
		visibleAt := now.Add(q.opts.Lease).UnixMilli()
		res := q.db.WithContext(ctx).Model(&task.Task{}).
			Where("id = ? AND status = ? AND visible_at = ? AND lease_token = ?", t.ID, t.Status, t.VisibleAt, t.LeaseToken).
			Updates(map[string]any{
				"status":      task.StatusLeased,
				"visible_at":  visibleAt,
				"lease_token": token,
				"attempts":    gorm.Expr("attempts + 1"),
			})
		if res.Error != nil {
			return nil, buried, full, classify(res.Error, "task", t.ID.String())
		}
		if res.RowsAffected != 1 {
			// another worker won this row
			continue
		}

		t.Status = task.StatusLeased
		t.VisibleAt = visibleAt
		t.LeaseToken = token
		t.Attempts++
		return t, buried, full, nil
	}
	return nil, buried, full, nil
}

func (q *TaskQueueDatabase) Complete(ctx context.Context, t *task.Task) error {
	res := q.db.WithContext(ctx).Model(&task.Task{}).
		Where("id = ? AND status = ? AND lease_token = ?", t.ID, task.StatusLeased, t.LeaseToken).
		Updates(map[string]any{"status": task.StatusDone, "last_error": ""})
	if res.Error != nil {
		return classify(res.Error, "task", t.ID.String())
	}
	if res.RowsAffected != 1 {
		return fmt.Errorf("%w: task %s", errs.ErrLeaseLost, t.ID)
	}
	t.Status = task.StatusDone
	return nil
}

// Fail records a failed attempt. Retryable failures go back to pending after
// a backoff until MaxAttempts is reached; anything else is dead-lettered.
// ErrExhaustedRetries is returned when the failure dead-letters the task.
func (q *TaskQueueDatabase) Fail(ctx context.Context, t *task.Task, cause error, retryable bool) error {
	if !retryable || t.Attempts >= q.opts.MaxAttempts {
		if err := q.bury(ctx, t, cause); err != nil {
			return err
		}
		return fmt.Errorf("%w: task %s after %d attempts: %v", errs.ErrExhaustedRetries, t.ID, t.Attempts, cause)
	}

	policy := retry.Policy{Base: q.opts.BackoffBase, Max: q.opts.BackoffMax}
	visibleAt := q.now().Add(policy.Backoff(t.Attempts)).UnixMilli()
	res := q.db.WithContext(ctx).Model(&task.Task{}).
		Where("id = ? AND status = ? AND lease_token = ?", t.ID, task.StatusLeased, t.LeaseToken).
		Updates(map[string]any{
			"status":      task.StatusPending,
			"visible_at":  visibleAt,
			"lease_token": "",
			"last_error":  errorText(cause),
		})
	if res.Error != nil {
		return classify(res.Error, "task", t.ID.String())
	}
	if res.RowsAffected != 1 {
		return fmt.Errorf("%w: task %s", errs.ErrLeaseLost, t.ID)
	}
	t.Status = task.StatusPending
	t.VisibleAt = visibleAt
	t.LeaseToken = ""
	t.LastError = errorText(cause)
	return nil
}

// bury moves the task to dead and writes its dead-letter record in one transaction.
func (q *TaskQueueDatabase) bury(ctx context.Context, t *task.Task, cause error) error {
	now := q.now().UTC()
	err := q.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&task.Task{}).
			Where("id = ? AND status = ? AND lease_token = ?", t.ID, t.Status, t.LeaseToken).
			Updates(map[string]any{
				"status":     task.StatusDead,
				"last_error": errorText(cause),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != 1 {
			return fmt.Errorf("%w: task %s", errs.ErrLeaseLost, t.ID)
		}
		return tx.Create(&task.DeadLetter{
			ID:        uuid.Must(uuid.NewV4()),
			TaskID:    t.ID,
			Kind:      t.Kind,
			Ref:       t.Ref,
			Payload:   t.Payload,
			Attempts:  t.Attempts,
			LastError: errorText(cause),
			FailedAt:  now,
		}).Error
	})
	if err != nil {
		if errors.Is(err, errs.ErrLeaseLost) {
			return err
		}
		return classify(err, "task", t.ID.String())
	}
	t.Status = task.StatusDead
	t.LastError = errorText(cause)
	return nil
}

func (q *TaskQueueDatabase) CancelByRef(ctx context.Context, kind task.Kind, ref string) (int64, error) {
	res := q.db.WithContext(ctx).Model(&task.Task{}).
		Where("kind = ? AND ref = ? AND status = ?", kind, ref, task.StatusPending).
		Update("status", task.StatusCancelled)
	if res.Error != nil {
		return 0, classify(res.Error, "task", ref)
	}
	return res.RowsAffected, nil
}

func (q *TaskQueueDatabase) DeadLetters(ctx context.Context, limit int) ([]*task.DeadLetter, error) {
	var letters []*task.DeadLetter
	if err := q.db.WithContext(ctx).Order("failed_at DESC").Limit(limit).Find(&letters).Error; err != nil {
		return nil, classify(err, "dead letter", "")
	}
	return letters, nil
}

// Replay enqueues a fresh copy of a dead-lettered task with a full attempt budget.
func (q *TaskQueueDatabase) Replay(ctx context.Context, deadLetterID string) (string, error) {
	var taskID string
	err := q.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var letter task.DeadLetter
		if err := tx.Where("id = ?", deadLetterID).First(&letter).Error; err != nil {
			return err
		}
		t := &task.Task{
			ID:        uuid.Must(uuid.NewV4()),
			Kind:      letter.Kind,
			Ref:       letter.Ref,
			Payload:   letter.Payload,
			Status:    task.StatusPending,
			VisibleAt: q.now().UnixMilli(),
		}
		if err := tx.Create(t).Error; err != nil {
			return err
		}
		replayed := q.now().UTC()
		if err := tx.Model(&task.DeadLetter{}).Where("id = ?", letter.ID).Update("replayed_at", replayed).Error; err != nil {
			return err
		}
		taskID = t.ID.String()
		return nil
	})
	if err != nil {
		return "", classify(err, "dead letter", deadLetterID)
	}
	return taskID, nil
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
