package database

import (
	"context"
	"time"

	"feedcore/internal/core/post"

	"gorm.io/gorm"
)

// PostRepositoryDatabase implements PostRepository on gorm.
type PostRepositoryDatabase struct {
	db *gorm.DB
}

func NewPostRepositoryDatabase(db *gorm.DB) *PostRepositoryDatabase {
	return &PostRepositoryDatabase{db: db}
}

func (repo *PostRepositoryDatabase) Create(ctx context.Context, p *post.Post) (*post.Post, error) {
	if err := repo.db.WithContext(ctx).Create(p).Error; err != nil {
		return nil, classify(err, "post", p.ID.String())
	}
	return p, nil
}

func (repo *PostRepositoryDatabase) FindByID(ctx context.Context, id string) (*post.Post, error) {
	var p post.Post
	if err := repo.db.WithContext(ctx).Where("id = ?", id).First(&p).Error; err != nil {
		return nil, classify(err, "post", id)
	}
	return &p, nil
}

func (repo *PostRepositoryDatabase) FindByIDs(ctx context.Context, ids []string) ([]*post.Post, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var posts []*post.Post
	if err := repo.db.WithContext(ctx).Where("id IN ?", ids).Find(&posts).Error; err != nil {
		return nil, classify(err, "post", "")
	}
	return posts, nil
}

func (repo *PostRepositoryDatabase) FindRecentByAuthor(ctx context.Context, authorID string, since time.Time, limit int) ([]*post.Post, error) {
	var posts []*post.Post
	err := repo.db.WithContext(ctx).
		Where("author_id = ? AND created_at >= ? AND deleted_at IS NULL", authorID, since.UTC()).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&posts).Error
	if err != nil {
		return nil, classify(err, "post", "")
	}
	return posts, nil
}

// Tombstone marks the post deleted. Tombstoning twice keeps the first time.
func (repo *PostRepositoryDatabase) Tombstone(ctx context.Context, id string, at time.Time) error {
	res := repo.db.WithContext(ctx).Model(&post.Post{}).
		Where("id = ? AND deleted_at IS NULL", id).
		Update("deleted_at", at.UTC())
	if res.Error != nil {
		return classify(res.Error, "post", id)
	}
	if res.RowsAffected == 0 {
		// either already tombstoned or missing
		if _, err := repo.FindByID(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

func (repo *PostRepositoryDatabase) SetMediaRef(ctx context.Context, id, ref string) error {
	return repo.update(ctx, id, map[string]any{"media_ref": ref})
}

func (repo *PostRepositoryDatabase) ClearMedia(ctx context.Context, id string) error {
	return repo.update(ctx, id, map[string]any{"media_ref": "", "media_source": ""})
}

func (repo *PostRepositoryDatabase) update(ctx context.Context, id string, fields map[string]any) error {
	res := repo.db.WithContext(ctx).Model(&post.Post{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return classify(res.Error, "post", id)
	}
	if res.RowsAffected == 0 {
		if _, err := repo.FindByID(ctx, id); err != nil {
			return err
		}
	}
	return nil
}
