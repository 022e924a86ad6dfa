package followerapp

import (
	"context"
	"errors"
	"time"

	"feedcore/internal/core/errs"
	followerEntity "feedcore/internal/core/follower"
	"feedcore/internal/core/task"
	counterPort "feedcore/internal/ports/counter"
	followerPort "feedcore/internal/ports/follower"
	timelinePort "feedcore/internal/ports/timeline"
	userPort "feedcore/internal/ports/user"

	"github.com/gofrs/uuid"
	"go.uber.org/zap"
)

// Notifications schedules user notifications.
type Notifications interface {
	Enqueue(ctx context.Context, kind, recipientID, actorID, postID string) (string, error)
}

type FollowerService struct {
	FollowerRepository followerPort.FollowerRepository
	UserRepository     userPort.UserRepository
	CounterStore       counterPort.CounterStore
	TimelineCache      timelinePort.TimelineCache
	Notifications      Notifications
	logger             *zap.Logger
	now                func() time.Time
}

func NewFollowerService(
	repo followerPort.FollowerRepository,
	userRepo userPort.UserRepository,
	counters counterPort.CounterStore,
	cache timelinePort.TimelineCache,
	notifications Notifications,
	logger *zap.Logger,
) *FollowerService {
	return &FollowerService{
		FollowerRepository: repo,
		UserRepository:     userRepo,
		CounterStore:       counters,
		TimelineCache:      cache,
		Notifications:      notifications,
		logger:             logger,
		now:                time.Now,
	}
}

// FollowUser creates the edge followerID -> followeeID. Following twice is a
// no-op. The new follower only sees posts created from now on.
func (s *FollowerService) FollowUser(ctx context.Context, followerID, followeeID string) (*followerPort.FollowerDTO, error) {
	if followerID == followeeID {
		s.logger.Warn("cannot follow yourself", zap.String("userID", followerID))
		return nil, errs.Validation("cannot follow yourself")
	}
	fid, err := uuid.FromString(followerID)
	if err != nil {
		return nil, errs.Validation("invalid follower id %q", followerID)
	}
	uid, err := uuid.FromString(followeeID)
	if err != nil {
		return nil, errs.Validation("invalid followee id %q", followeeID)
	}
	if _, err := s.UserRepository.FindByID(ctx, followeeID); err != nil {
		return nil, err
	}

	edge, created, err := s.FollowerRepository.FollowUser(ctx, &followerEntity.Follower{
		ID:         uuid.Must(uuid.NewV4()),
		UserID:     uid,
		FollowerID: fid,
		CreatedAt:  s.now().UTC().Truncate(time.Millisecond),
	})
	if err != nil {
		return nil, err
	}

	if created {
		s.adjustCounters(ctx, followerID, followeeID, s.CounterStore.Incr)
		if _, err := s.Notifications.Enqueue(ctx, task.NotifyFollow, followeeID, followerID, ""); err != nil {
			s.logger.Warn("failed to queue follow notification", zap.String("followerID", followerID), zap.Error(err))
		}
	}
	return toDTO(edge), nil
}

// UnfollowUser removes the edge and drops the follower's cached timeline so
// the next read rebuilds it without the followee's posts.
func (s *FollowerService) UnfollowUser(ctx context.Context, followerID, followeeID string) error {
	removed, err := s.FollowerRepository.UnfollowUser(ctx, followerID, followeeID)
	if err != nil {
		return err
	}
	if !removed {
		return nil
	}

	s.adjustCounters(ctx, followerID, followeeID, s.CounterStore.Decr)
	if err := s.TimelineCache.Invalidate(ctx, followerID); err != nil {
		// reconciliation repairs it; reads still hide nothing that should be hidden
		s.logger.Warn("failed to invalidate timeline after unfollow", zap.String("userID", followerID), zap.Error(err))
	}
	return nil
}

// FollowerCount returns the cached follower count, loading it from the
// durable store on a miss.
func (s *FollowerService) FollowerCount(ctx context.Context, userID string) (int64, error) {
	n, err := s.CounterStore.Get(ctx, counterPort.FollowersKey(userID))
	if err == nil {
		return n, nil
	}
	if !errors.Is(err, errs.ErrCacheMiss) {
		s.logger.Warn("follower counter unavailable, counting", zap.String("userID", userID), zap.Error(err))
	}

	n, err = s.FollowerRepository.CountFollowers(ctx, userID)
	if err != nil {
		return 0, err
	}
	if err := s.CounterStore.Set(ctx, counterPort.FollowersKey(userID), n); err != nil {
		s.logger.Debug("failed to cache follower count", zap.String("userID", userID), zap.Error(err))
	}
	return n, nil
}

func (s *FollowerService) adjustCounters(ctx context.Context, followerID, followeeID string, apply func(context.Context, string, int64) error) {
	if err := apply(ctx, counterPort.FollowersKey(followeeID), 1); err != nil {
		s.logger.Warn("failed to update follower counter", zap.String("userID", followeeID), zap.Error(err))
	}
	if err := apply(ctx, counterPort.FollowingKey(followerID), 1); err != nil {
		s.logger.Warn("failed to update following counter", zap.String("userID", followerID), zap.Error(err))
	}
}

func (s *FollowerService) GetFollowersByUserID(ctx context.Context, userID string) ([]*followerPort.FollowerDTO, error) {
	followers, err := s.FollowerRepository.GetFollowersByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return toDTOs(followers), nil
}

func (s *FollowerService) GetFollowingByUserID(ctx context.Context, userID string) ([]*followerPort.FollowerDTO, error) {
	following, err := s.FollowerRepository.GetFollowingByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return toDTOs(following), nil
}

func (s *FollowerService) IsFollowing(ctx context.Context, followerID, followeeID string) (bool, error) {
	return s.FollowerRepository.IsFollowing(ctx, followerID, followeeID)
}

func toDTO(f *followerEntity.Follower) *followerPort.FollowerDTO {
	return &followerPort.FollowerDTO{
		ID:         f.ID.String(),
		UserID:     f.UserID.String(),
		FollowerID: f.FollowerID.String(),
		CreatedAt:  f.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func toDTOs(edges []*followerEntity.Follower) []*followerPort.FollowerDTO {
	// always a non-nil slice so it encodes as []
	out := make([]*followerPort.FollowerDTO, 0, len(edges))
	for _, f := range edges {
		out = append(out, toDTO(f))
	}
	return out
}
