package workers

import (
	"context"
	"errors"
	"time"

	"feedcore/internal/core/errs"
	"feedcore/internal/core/task"
	taskPort "feedcore/internal/ports/task"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Handler runs one task. A returned error is classified by the pool.
type Handler func(ctx context.Context, t *task.Task) error

type PoolOptions struct {
	Workers      int
	PollInterval time.Duration
	TaskTimeout  time.Duration
}

// Pool leases tasks from the durable queue and dispatches them by kind.
type Pool struct {
	Queue    taskPort.Queue
	handlers map[task.Kind]Handler
	opts     PoolOptions
	Logger   *zap.Logger
}

func NewPool(queue taskPort.Queue, opts PoolOptions, logger *zap.Logger) *Pool {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	if opts.TaskTimeout <= 0 {
		opts.TaskTimeout = time.Minute
	}
	return &Pool{
		Queue:    queue,
		handlers: map[task.Kind]Handler{},
		opts:     opts,
		Logger:   logger,
	}
}

// Handle registers h for kind. Must be called before Run.
func (p *Pool) Handle(kind task.Kind, h Handler) {
	p.handlers[kind] = h
}

// Run starts the workers and blocks until ctx is cancelled.
func (p *Pool) Run(ctx context.Context) error {
	p.Logger.Info("worker pool started", zap.Int("workers", p.opts.Workers))
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < p.opts.Workers; i++ {
		id := i
		g.Go(func() error {
			p.loop(ctx, id)
			return nil
		})
	}
	err := g.Wait()
	p.Logger.Info("worker pool stopped")
	return err
}

func (p *Pool) loop(ctx context.Context, id int) {
	log := p.Logger.With(zap.Int("worker", id))
	for {
		if ctx.Err() != nil {
			return
		}
		worked, err := p.RunOnce(ctx)
		if err != nil && ctx.Err() == nil {
			log.Error("task queue unavailable", zap.Error(err))
		}
		if worked {
			continue
		}
		timer := time.NewTimer(p.opts.PollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// RunOnce leases and processes at most one task. It reports whether a task
// was found.
func (p *Pool) RunOnce(ctx context.Context) (bool, error) {
	t, err := p.Queue.Lease(ctx)
	if err != nil {
		return false, err
	}
	if t == nil {
		return false, nil
	}
	return true, p.process(ctx, t)
}

func (p *Pool) process(ctx context.Context, t *task.Task) error {
	log := p.Logger.With(
		zap.String("taskID", t.ID.String()),
		zap.String("kind", string(t.Kind)),
		zap.Int("attempt", t.Attempts),
	)

	h, ok := p.handlers[t.Kind]
	if !ok {
		cause := errs.Validation("no handler for task kind %q", t.Kind)
		log.Error("unroutable task", zap.Error(cause))
		return p.fail(ctx, log, t, cause, false)
	}

	tctx, cancel := context.WithTimeout(ctx, p.opts.TaskTimeout)
	started := time.Now()
	err := h(tctx, t)
	cancel()

	switch {
	case err == nil:
		log.Debug("task done", zap.Duration("took", time.Since(started)))
		return p.complete(ctx, log, t)
	case errors.Is(err, errs.ErrNotFound):
		// the referenced post or user is gone, nothing left to converge
		log.Info("task target missing, completing", zap.Error(err))
		return p.complete(ctx, log, t)
	case ctx.Err() != nil:
		// shutting down: the lease expires and another worker picks it up
		log.Info("task interrupted", zap.Error(err))
		return nil
	}

	retryable := !errors.Is(err, errs.ErrValidation) && !errors.Is(err, errs.ErrForbidden)
	log.Warn("task failed", zap.Bool("retryable", retryable), zap.Error(err))
	return p.fail(ctx, log, t, err, retryable)
}

func (p *Pool) complete(ctx context.Context, log *zap.Logger, t *task.Task) error {
	err := p.Queue.Complete(ctx, t)
	if errors.Is(err, errs.ErrLeaseLost) {
		log.Warn("lease lost before completion", zap.Error(err))
		return nil
	}
	return err
}

func (p *Pool) fail(ctx context.Context, log *zap.Logger, t *task.Task, cause error, retryable bool) error {
	err := p.Queue.Fail(ctx, t, cause, retryable)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, errs.ErrExhaustedRetries):
		log.Error("task dead-lettered", zap.Error(err))
		return nil
	case errors.Is(err, errs.ErrLeaseLost):
		log.Warn("lease lost before failure was recorded", zap.Error(err))
		return nil
	}
	return err
}
