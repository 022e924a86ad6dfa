package database

import (
	"context"

	"feedcore/internal/core/user"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UserRepositoryDatabase implements UserRepository on gorm.
type UserRepositoryDatabase struct {
	db *gorm.DB
}

func NewUserRepositoryDatabase(db *gorm.DB) *UserRepositoryDatabase {
	return &UserRepositoryDatabase{db: db}
}

// Upsert inserts the user or updates its handle. The counters are owned by
// UpdateCounts and are left untouched.
func (repo *UserRepositoryDatabase) Upsert(ctx context.Context, u *user.User) (*user.User, error) {
	err := repo.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"handle", "updated_at"}),
	}).Create(u).Error
	if err != nil {
		return nil, classify(err, "handle", u.Handle)
	}
	return repo.FindByID(ctx, u.ID.String())
}

func (repo *UserRepositoryDatabase) FindByID(ctx context.Context, id string) (*user.User, error) {
	var u user.User
	if err := repo.db.WithContext(ctx).Where("id = ?", id).First(&u).Error; err != nil {
		return nil, classify(err, "user", id)
	}
	return &u, nil
}

func (repo *UserRepositoryDatabase) FindByHandles(ctx context.Context, handles []string) ([]*user.User, error) {
	if len(handles) == 0 {
		return nil, nil
	}
	var users []*user.User
	if err := repo.db.WithContext(ctx).Where("handle IN ?", handles).Find(&users).Error; err != nil {
		return nil, classify(err, "user", "")
	}
	return users, nil
}

func (repo *UserRepositoryDatabase) ListIDs(ctx context.Context, after string, limit int) ([]string, error) {
	var ids []string
	q := repo.db.WithContext(ctx).Model(&user.User{}).Order("id ASC").Limit(limit)
	if after != "" {
		q = q.Where("id > ?", after)
	}
	if err := q.Pluck("id", &ids).Error; err != nil {
		return nil, classify(err, "user", "")
	}
	return ids, nil
}

func (repo *UserRepositoryDatabase) UpdateCounts(ctx context.Context, id string, followers, following int64) error {
	res := repo.db.WithContext(ctx).Model(&user.User{}).Where("id = ?", id).Updates(map[string]any{
		"follower_count":  followers,
		"following_count": following,
	})
	if res.Error != nil {
		return classify(res.Error, "user", id)
	}
	if res.RowsAffected == 0 {
		_, err := repo.FindByID(ctx, id)
		return err
	}
	return nil
}
