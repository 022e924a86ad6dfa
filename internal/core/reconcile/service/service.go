package reconcileapp

import (
	"context"
	"time"

	"feedcore/internal/core/timeline"
	counterPort "feedcore/internal/ports/counter"
	followerPort "feedcore/internal/ports/follower"
	postPort "feedcore/internal/ports/post"
	timelinePort "feedcore/internal/ports/timeline"
	userPort "feedcore/internal/ports/user"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

type Options struct {
	// Bound is the per-owner timeline length, the same bound the cache trims to.
	Bound int
	// PageSize is how many users a sweep loads per page.
	PageSize int
}

// SweepReport summarises one reconciliation pass.
type SweepReport struct {
	Users   int `json:"users"`
	Rebuilt int `json:"rebuilt"`
	Failed  int `json:"failed"`
}

// ReconcileService rebuilds timelines from the durable store, which is the
// only source of truth. The cache is a projection that can always be
// regenerated from it.
type ReconcileService struct {
	PostRepository     postPort.PostRepository
	FollowerRepository followerPort.FollowerRepository
	UserRepository     userPort.UserRepository
	TimelineCache      timelinePort.TimelineCache
	CounterStore       counterPort.CounterStore
	opts               Options
	logger             *zap.Logger
	group              singleflight.Group
	now                func() time.Time
}

func NewReconcileService(
	postRepo postPort.PostRepository,
	followerRepo followerPort.FollowerRepository,
	userRepo userPort.UserRepository,
	cache timelinePort.TimelineCache,
	counters counterPort.CounterStore,
	opts Options,
	logger *zap.Logger,
) *ReconcileService {
	if opts.Bound <= 0 {
		opts.Bound = 1000
	}
	if opts.PageSize <= 0 {
		opts.PageSize = 200
	}
	return &ReconcileService{
		PostRepository:     postRepo,
		FollowerRepository: followerRepo,
		UserRepository:     userRepo,
		TimelineCache:      cache,
		CounterStore:       counters,
		opts:               opts,
		logger:             logger,
		now:                time.Now,
	}
}

// Snapshot computes an owner's timeline from the durable store: the owner's
// own live posts plus every followee's live posts created at or after the
// follow edge, ordered and bounded the way fan-out leaves the cache.
func (s *ReconcileService) Snapshot(ctx context.Context, owner string) ([]timeline.Entry, error) {
	own, err := s.PostRepository.FindRecentByAuthor(ctx, owner, time.Time{}, s.opts.Bound)
	if err != nil {
		return nil, err
	}
	entries := make([]timeline.Entry, 0, len(own))
	for _, p := range own {
		entries = append(entries, timeline.Entry{PostID: p.ID.String(), Score: timeline.ScoreOf(p.CreatedAt)})
	}

	edges, err := s.FollowerRepository.GetFollowingByUserID(ctx, owner)
	if err != nil {
		return nil, err
	}
	for _, e := range edges {
		posts, err := s.PostRepository.FindRecentByAuthor(ctx, e.UserID.String(), e.CreatedAt, s.opts.Bound)
		if err != nil {
			return nil, err
		}
		for _, p := range posts {
			entries = append(entries, timeline.Entry{PostID: p.ID.String(), Score: timeline.ScoreOf(p.CreatedAt)})
		}
	}
	return timeline.Bound(entries, s.opts.Bound), nil
}

// Rebuild recomputes and installs an owner's timeline. Concurrent rebuilds of
// the same owner share one computation. The snapshot is read while the cache
// watches the timeline, so a post fanned out during the read restarts it
// instead of being dropped as stale.
func (s *ReconcileService) Rebuild(ctx context.Context, owner string) ([]timeline.Entry, error) {
	v, err, shared := s.group.Do(owner, func() (interface{}, error) {
		cutoff := timeline.ScoreOf(s.now())
		entries, err := s.TimelineCache.ReplaceFrom(ctx, owner, cutoff, func(ctx context.Context) ([]timeline.Entry, error) {
			return s.Snapshot(ctx, owner)
		})
		if err != nil {
			return entries, err
		}
		s.logger.Debug("timeline rebuilt", zap.String("owner", owner), zap.Int("entries", len(entries)))
		return entries, nil
	})
	if shared {
		s.logger.Debug("joined in-flight rebuild", zap.String("owner", owner))
	}
	entries, _ := v.([]timeline.Entry)
	return entries, err
}

// SyncCounters writes the durable follower and following counts to the user
// row and the counter cache.
func (s *ReconcileService) SyncCounters(ctx context.Context, userID string) error {
	followers, err := s.FollowerRepository.CountFollowers(ctx, userID)
	if err != nil {
		return err
	}
	following, err := s.FollowerRepository.CountFollowing(ctx, userID)
	if err != nil {
		return err
	}
	if err := s.UserRepository.UpdateCounts(ctx, userID, followers, following); err != nil {
		return err
	}
	return multierr.Combine(
		s.CounterStore.Set(ctx, counterPort.FollowersKey(userID), followers),
		s.CounterStore.Set(ctx, counterPort.FollowingKey(userID), following),
	)
}

// Sweep walks every user, rebuilds the timelines that are cached and
// resyncs counters. Failures are collected and the walk continues.
func (s *ReconcileService) Sweep(ctx context.Context) (SweepReport, error) {
	var report SweepReport
	var result error
	after := ""
	for {
		ids, err := s.UserRepository.ListIDs(ctx, after, s.opts.PageSize)
		if err != nil {
			return report, multierr.Append(result, err)
		}
		if len(ids) == 0 {
			break
		}

		for _, id := range ids {
			if err := ctx.Err(); err != nil {
				return report, multierr.Append(result, err)
			}
			report.Users++
			if err := s.sweepOne(ctx, id, &report); err != nil {
				report.Failed++
				result = multierr.Append(result, err)
				s.logger.Warn("sweep failed for user", zap.String("userID", id), zap.Error(err))
			}
		}
		after = ids[len(ids)-1]
	}

	s.logger.Info("sweep finished",
		zap.Int("users", report.Users),
		zap.Int("rebuilt", report.Rebuilt),
		zap.Int("failed", report.Failed),
	)
	return report, result
}

func (s *ReconcileService) sweepOne(ctx context.Context, userID string, report *SweepReport) error {
	cached, err := s.TimelineCache.IsCached(ctx, userID)
	if err != nil {
		return err
	}
	if cached {
		if _, err := s.Rebuild(ctx, userID); err != nil {
			return err
		}
		report.Rebuilt++
	}
	return s.SyncCounters(ctx, userID)
}
