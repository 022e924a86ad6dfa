package user

import (
	"context"

	"feedcore/internal/core/user"
)

// UserRepository is the durable store contract for users.
type UserRepository interface {
	Upsert(ctx context.Context, user *user.User) (*user.User, error)
	FindByID(ctx context.Context, id string) (*user.User, error)
	FindByHandles(ctx context.Context, handles []string) ([]*user.User, error)
	// ListIDs pages through user ids in ascending order, starting after the given id.
	ListIDs(ctx context.Context, after string, limit int) ([]string, error)
	UpdateCounts(ctx context.Context, id string, followers, following int64) error
}

// DTOs for use cases
type UserDTO struct {
	ID             string `json:"id"`
	Handle         string `json:"handle"`
	FollowerCount  int64  `json:"follower_count"`
	FollowingCount int64  `json:"following_count"`
}

// AdminAudience is the token audience accepted by the admin routes.
const AdminAudience = "admin"

type TokenResponse struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expires_at"`
}
