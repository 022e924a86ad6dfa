package user

import (
	"time"

	"github.com/gofrs/uuid"
)

// User is the canonical account record. The counters are derived from the
// follows table and refreshed by the counter sync.
type User struct {
	ID             uuid.UUID `gorm:"primaryKey;type:char(36)"`
	Handle         string    `gorm:"type:varchar(64);uniqueIndex;not null"`
	FollowerCount  int64     `gorm:"not null;default:0"`
	FollowingCount int64     `gorm:"not null;default:0"`
	CreatedAt      time.Time `gorm:"autoCreateTime"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime"`
}
