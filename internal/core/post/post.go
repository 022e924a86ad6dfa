package post

import (
	"time"

	"github.com/gofrs/uuid"
)

// Post is immutable once created except for the tombstone and the media
// fields filled in by the media pipeline.
type Post struct {
	ID          uuid.UUID  `gorm:"primaryKey;type:char(36)"`
	AuthorID    uuid.UUID  `gorm:"type:char(36);not null;index:idx_posts_author_created,priority:1"`
	Body        string     `gorm:"type:text;not null"`
	MediaSource string     `gorm:"type:varchar(255)"`
	MediaRef    string     `gorm:"type:varchar(255)"`
	CreatedAt   time.Time  `gorm:"precision:3;not null;index:idx_posts_author_created,priority:2"`
	DeletedAt   *time.Time `gorm:"precision:3;index"`
}

// IsDeleted reports whether the post carries a tombstone.
func (p *Post) IsDeleted() bool {
	return p.DeletedAt != nil
}
