package fanoutapp

import (
	"context"
	"time"

	"feedcore/internal/core/errs"
	"feedcore/internal/core/fanout"
	postEntity "feedcore/internal/core/post"
	"feedcore/internal/core/task"
	"feedcore/internal/core/timeline"
	followerPort "feedcore/internal/ports/follower"
	postPort "feedcore/internal/ports/post"
	taskPort "feedcore/internal/ports/task"
	timelinePort "feedcore/internal/ports/timeline"
	"feedcore/internal/retry"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Options tunes the engine.
type Options struct {
	// Threshold is the largest follower count served synchronously.
	Threshold int64
	BatchSize int
	// Retry bounds local retries of each cache batch.
	Retry     retry.Policy
	OpTimeout time.Duration
}

type FanoutService struct {
	PostRepository     postPort.PostRepository
	FollowerRepository followerPort.FollowerRepository
	TimelineCache      timelinePort.TimelineCache
	Queue              taskPort.Queue
	opts               Options
	logger             *zap.Logger
}

func NewFanoutService(
	postRepo postPort.PostRepository,
	followerRepo followerPort.FollowerRepository,
	cache timelinePort.TimelineCache,
	queue taskPort.Queue,
	opts Options,
	logger *zap.Logger,
) *FanoutService {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.OpTimeout <= 0 {
		opts.OpTimeout = 2 * time.Second
	}
	return &FanoutService{
		PostRepository:     postRepo,
		FollowerRepository: followerRepo,
		TimelineCache:      cache,
		Queue:              queue,
		opts:               opts,
		logger:             logger,
	}
}

func entryOf(p *postEntity.Post) timeline.Entry {
	return timeline.Entry{PostID: p.ID.String(), Score: timeline.ScoreOf(p.CreatedAt)}
}

// Publish pushes a freshly stored post into timelines. The author's own
// timeline is always written inline. Followers are written inline when there
// are at most Threshold of them, otherwise a single fan-out task is enqueued.
// Owners whose batch failed after local retries are handed to a fan-out task
// and the outcome is marked degraded.
func (s *FanoutService) Publish(ctx context.Context, p *postEntity.Post, followerCount int64) (fanout.Outcome, error) {
	entry := entryOf(p)
	authorID := p.AuthorID.String()
	log := s.logger.With(zap.String("postID", entry.PostID), zap.String("authorID", authorID))

	var deferred []string
	var result error
	if err := s.insert(ctx, []string{authorID}, entry); err != nil {
		log.Warn("author timeline insert failed", zap.Error(err))
		deferred = append(deferred, authorID)
		result = multierr.Append(result, err)
	}

	if followerCount > s.opts.Threshold {
		id, err := s.enqueue(ctx, task.KindFanoutPublish, p, nil)
		if err != nil {
			log.Error("failed to enqueue fan-out", zap.Error(err))
			return fanout.Outcome{Mode: fanout.ModeAsync, Degraded: true}, multierr.Append(result, err)
		}
		log.Info("fan-out deferred", zap.Int64("followers", followerCount), zap.String("taskID", id))
		// the task also covers the author, so a failed inline write is not lost
		return fanout.Outcome{Mode: fanout.ModeAsync, TaskID: id, Degraded: len(deferred) > 0, Deferred: len(deferred)}, nil
	}

	owners, err := s.eligibleFollowers(ctx, p)
	if err != nil {
		log.Warn("failed to load followers", zap.Error(err))
		id, qerr := s.enqueue(ctx, task.KindFanoutPublish, p, nil)
		out := fanout.Outcome{Mode: fanout.ModeSync, TaskID: id, Degraded: true}
		return out, multierr.Combine(result, err, qerr)
	}

	delivered, failed, err := s.deliver(ctx, owners, func(ctx context.Context, batch []string) error {
		return s.TimelineCache.InsertMany(ctx, batch, entry)
	})
	result = multierr.Append(result, err)
	deferred = append(deferred, failed...)

	out := fanout.Outcome{Mode: fanout.ModeSync, Delivered: delivered, Deferred: len(deferred)}
	if len(deferred) == 0 {
		return out, nil
	}

	out.Degraded = true
	id, qerr := s.enqueue(ctx, task.KindFanoutPublish, p, deferred)
	out.TaskID = id
	log.Warn("fan-out partially deferred", zap.Int("delivered", delivered), zap.Int("deferred", len(deferred)), zap.Error(result))
	if qerr != nil {
		return out, multierr.Append(result, qerr)
	}
	return out, nil
}

// Retract removes a tombstoned post from timelines and cancels any publish
// task for it that has not been leased yet.
func (s *FanoutService) Retract(ctx context.Context, p *postEntity.Post, followerCount int64) (fanout.Outcome, error) {
	postID := p.ID.String()
	authorID := p.AuthorID.String()
	log := s.logger.With(zap.String("postID", postID), zap.String("authorID", authorID))

	var result error
	if n, err := s.Queue.CancelByRef(ctx, task.KindFanoutPublish, postID); err != nil {
		log.Warn("failed to cancel pending fan-out", zap.Error(err))
	} else if n > 0 {
		log.Info("cancelled pending fan-out", zap.Int64("tasks", n))
	}

	var deferred []string
	if err := s.remove(ctx, []string{authorID}, postID); err != nil {
		deferred = append(deferred, authorID)
		result = multierr.Append(result, err)
	}

	if followerCount > s.opts.Threshold {
		id, err := s.enqueue(ctx, task.KindFanoutRetract, p, nil)
		if err != nil {
			return fanout.Outcome{Mode: fanout.ModeAsync, Degraded: true}, multierr.Append(result, err)
		}
		return fanout.Outcome{Mode: fanout.ModeAsync, TaskID: id, Degraded: len(deferred) > 0, Deferred: len(deferred)}, nil
	}

	owners, err := s.allFollowers(ctx, authorID)
	if err != nil {
		id, qerr := s.enqueue(ctx, task.KindFanoutRetract, p, nil)
		return fanout.Outcome{Mode: fanout.ModeSync, TaskID: id, Degraded: true}, multierr.Combine(result, err, qerr)
	}

	delivered, failed, err := s.deliver(ctx, owners, func(ctx context.Context, batch []string) error {
		return s.TimelineCache.RemoveMany(ctx, batch, postID)
	})
	result = multierr.Append(result, err)
	deferred = append(deferred, failed...)

	out := fanout.Outcome{Mode: fanout.ModeSync, Delivered: delivered, Deferred: len(deferred)}
	if len(deferred) == 0 {
		return out, nil
	}
	out.Degraded = true
	id, qerr := s.enqueue(ctx, task.KindFanoutRetract, p, deferred)
	out.TaskID = id
	log.Warn("retract partially deferred", zap.Int("deferred", len(deferred)), zap.Error(result))
	if qerr != nil {
		return out, multierr.Append(result, qerr)
	}
	return out, nil
}

// HandlePublish runs a fan-out.publish task. Re-running it is harmless: a
// timeline entry is keyed by post id. The post is re-read before every batch
// so a retraction stops the work between batches.
func (s *FanoutService) HandlePublish(ctx context.Context, t *task.Task) error {
	var payload task.FanoutPayload
	if err := t.Decode(&payload); err != nil {
		return err
	}
	if payload.PostID == "" {
		return errs.Validation("fan-out task %s has no post id", t.ID)
	}

	p, err := s.PostRepository.FindByID(ctx, payload.PostID)
	if err != nil {
		return err
	}
	if p.IsDeleted() {
		return nil
	}
	entry := entryOf(p)

	owners := payload.Targets
	if len(owners) == 0 {
		owners, err = s.eligibleFollowers(ctx, p)
		if err != nil {
			return err
		}
		owners = append(owners, p.AuthorID.String())
	}

	for start := 0; start < len(owners); start += s.opts.BatchSize {
		live, err := s.PostRepository.FindByID(ctx, payload.PostID)
		if err != nil {
			return err
		}
		if live.IsDeleted() {
			s.logger.Info("post retracted during fan-out, stopping",
				zap.String("postID", payload.PostID), zap.Int("delivered", start))
			return nil
		}

		batch := owners[start:min(start+s.opts.BatchSize, len(owners))]
		if err := s.insert(ctx, batch, entry); err != nil {
			return err
		}
	}
	s.logger.Debug("fan-out task done", zap.String("postID", payload.PostID), zap.Int("owners", len(owners)))
	return nil
}

// HandleRetract runs a fan-out.retract task.
func (s *FanoutService) HandleRetract(ctx context.Context, t *task.Task) error {
	var payload task.FanoutPayload
	if err := t.Decode(&payload); err != nil {
		return err
	}
	if payload.PostID == "" || payload.AuthorID == "" {
		return errs.Validation("retract task %s needs post and author ids", t.ID)
	}

	owners := payload.Targets
	if len(owners) == 0 {
		var err error
		owners, err = s.allFollowers(ctx, payload.AuthorID)
		if err != nil {
			return err
		}
		owners = append(owners, payload.AuthorID)
	}

	for start := 0; start < len(owners); start += s.opts.BatchSize {
		batch := owners[start:min(start+s.opts.BatchSize, len(owners))]
		if err := s.remove(ctx, batch, payload.PostID); err != nil {
			return err
		}
	}
	return nil
}

// eligibleFollowers returns the followers whose edge existed when the post
// was created. Later edges never see the post.
func (s *FanoutService) eligibleFollowers(ctx context.Context, p *postEntity.Post) ([]string, error) {
	edges, err := s.FollowerRepository.GetFollowersByUserID(ctx, p.AuthorID.String())
	if err != nil {
		return nil, err
	}
	owners := make([]string, 0, len(edges))
	for _, e := range edges {
		if e.CreatedAt.After(p.CreatedAt) {
			continue
		}
		owners = append(owners, e.FollowerID.String())
	}
	return owners, nil
}

func (s *FanoutService) allFollowers(ctx context.Context, authorID string) ([]string, error) {
	edges, err := s.FollowerRepository.GetFollowersByUserID(ctx, authorID)
	if err != nil {
		return nil, err
	}
	owners := make([]string, 0, len(edges))
	for _, e := range edges {
		owners = append(owners, e.FollowerID.String())
	}
	return owners, nil
}

// deliver applies op to owners in batches. A failed batch does not stop the
// others; its owners are returned for a deferred retry.
func (s *FanoutService) deliver(ctx context.Context, owners []string, op func(context.Context, []string) error) (int, []string, error) {
	var delivered int
	var failed []string
	var result error
	for start := 0; start < len(owners); start += s.opts.BatchSize {
		batch := owners[start:min(start+s.opts.BatchSize, len(owners))]
		err := retry.Do(ctx, s.opts.Retry, func(ctx context.Context) error {
			ctx, cancel := context.WithTimeout(ctx, s.opts.OpTimeout)
			defer cancel()
			return op(ctx, batch)
		})
		if err != nil {
			failed = append(failed, batch...)
			result = multierr.Append(result, err)
			continue
		}
		delivered += len(batch)
	}
	return delivered, failed, result
}

func (s *FanoutService) insert(ctx context.Context, owners []string, entry timeline.Entry) error {
	_, _, err := s.deliver(ctx, owners, func(ctx context.Context, batch []string) error {
		return s.TimelineCache.InsertMany(ctx, batch, entry)
	})
	return err
}

func (s *FanoutService) remove(ctx context.Context, owners []string, postID string) error {
	_, _, err := s.deliver(ctx, owners, func(ctx context.Context, batch []string) error {
		return s.TimelineCache.RemoveMany(ctx, batch, postID)
	})
	return err
}

func (s *FanoutService) enqueue(ctx context.Context, kind task.Kind, p *postEntity.Post, targets []string) (string, error) {
	t, err := task.New(kind, p.ID.String(), task.FanoutPayload{
		PostID:   p.ID.String(),
		AuthorID: p.AuthorID.String(),
		Targets:  targets,
	})
	if err != nil {
		return "", err
	}
	return s.Queue.Enqueue(ctx, t)
}
