package follower

import (
	"time"

	"github.com/gofrs/uuid"
)

// Follower is a follow edge: FollowerID follows UserID. CreatedAt bounds which
// of UserID's posts the follower may see.
type Follower struct {
	ID         uuid.UUID `gorm:"primaryKey;type:char(36)"`
	UserID     uuid.UUID `gorm:"type:char(36);not null;uniqueIndex:uniq_follow_pair,priority:2;index"`
	FollowerID uuid.UUID `gorm:"type:char(36);not null;uniqueIndex:uniq_follow_pair,priority:1"`
	CreatedAt  time.Time `gorm:"precision:3;not null"`
}
