package database

import (
	"context"
	"errors"

	"feedcore/internal/core/follower"

	"gorm.io/gorm"
)

// FollowerRepositoryDatabase implements FollowerRepository on gorm.
type FollowerRepositoryDatabase struct {
	db *gorm.DB
}

func NewFollowerRepositoryDatabase(db *gorm.DB) *FollowerRepositoryDatabase {
	return &FollowerRepositoryDatabase{db: db}
}

// FollowUser inserts the edge. A duplicate pair returns the edge already stored.
func (repo *FollowerRepositoryDatabase) FollowUser(ctx context.Context, f *follower.Follower) (*follower.Follower, bool, error) {
	err := repo.db.WithContext(ctx).Create(f).Error
	if err == nil {
		return f, true, nil
	}
	if !errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, false, classify(err, "follow", f.FollowerID.String())
	}

	var existing follower.Follower
	if err := repo.db.WithContext(ctx).
		Where("follower_id = ? AND user_id = ?", f.FollowerID, f.UserID).
		First(&existing).Error; err != nil {
		return nil, false, classify(err, "follow", f.FollowerID.String())
	}
	return &existing, false, nil
}

func (repo *FollowerRepositoryDatabase) UnfollowUser(ctx context.Context, followerID, followeeID string) (bool, error) {
	res := repo.db.WithContext(ctx).
		Where("follower_id = ? AND user_id = ?", followerID, followeeID).
		Delete(&follower.Follower{})
	if res.Error != nil {
		return false, classify(res.Error, "follow", followerID)
	}
	return res.RowsAffected > 0, nil
}

func (repo *FollowerRepositoryDatabase) GetFollowersByUserID(ctx context.Context, userID string) ([]*follower.Follower, error) {
	var followers []*follower.Follower
	if err := repo.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at ASC").Find(&followers).Error; err != nil {
		return nil, classify(err, "follow", userID)
	}
	return followers, nil
}

func (repo *FollowerRepositoryDatabase) GetFollowingByUserID(ctx context.Context, followerID string) ([]*follower.Follower, error) {
	var following []*follower.Follower
	if err := repo.db.WithContext(ctx).Where("follower_id = ?", followerID).Order("created_at ASC").Find(&following).Error; err != nil {
		return nil, classify(err, "follow", followerID)
	}
	return following, nil
}

func (repo *FollowerRepositoryDatabase) IsFollowing(ctx context.Context, followerID, followeeID string) (bool, error) {
	var count int64
	if err := repo.db.WithContext(ctx).Model(&follower.Follower{}).
		Where("follower_id = ? AND user_id = ?", followerID, followeeID).
		Count(&count).Error; err != nil {
		return false, classify(err, "follow", followerID)
	}
	return count > 0, nil
}

func (repo *FollowerRepositoryDatabase) CountFollowers(ctx context.Context, userID string) (int64, error) {
	return repo.count(ctx, "user_id = ?", userID)
}

func (repo *FollowerRepositoryDatabase) CountFollowing(ctx context.Context, followerID string) (int64, error) {
	return repo.count(ctx, "follower_id = ?", followerID)
}

func (repo *FollowerRepositoryDatabase) count(ctx context.Context, where, id string) (int64, error) {
	var n int64
	if err := repo.db.WithContext(ctx).Model(&follower.Follower{}).Where(where, id).Count(&n).Error; err != nil {
		return 0, classify(err, "follow", id)
	}
	return n, nil
}
