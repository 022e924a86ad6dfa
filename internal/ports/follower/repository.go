package follower

import (
	"context"

	"feedcore/internal/core/follower"
)

// FollowerRepository is the durable store contract for follow edges.
type FollowerRepository interface {
	// FollowUser creates the edge. Following twice returns the existing edge
	// and created=false.
	FollowUser(ctx context.Context, follower *follower.Follower) (edge *follower.Follower, created bool, err error)
	// UnfollowUser removes the edge and reports whether one existed.
	UnfollowUser(ctx context.Context, followerID, followeeID string) (bool, error)
	GetFollowersByUserID(ctx context.Context, userID string) ([]*follower.Follower, error)
	GetFollowingByUserID(ctx context.Context, followerID string) ([]*follower.Follower, error)
	IsFollowing(ctx context.Context, followerID, followeeID string) (bool, error)
	CountFollowers(ctx context.Context, userID string) (int64, error)
	CountFollowing(ctx context.Context, followerID string) (int64, error)
}

// DTOs for use cases
type FollowerDTO struct {
	ID         string `json:"id"`
	UserID     string `json:"userId"`
	FollowerID string `json:"followerId"`
	CreatedAt  string `json:"createdAt"`
}
