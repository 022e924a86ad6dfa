package database

import (
	"feedcore/internal/core/follower"
	"feedcore/internal/core/post"
	"feedcore/internal/core/task"
	"feedcore/internal/core/user"

	"gorm.io/gorm"
)

// Migrate creates or updates the users, posts, follows, tasks and dead-letter tables.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&user.User{},
		&post.Post{},
		&follower.Follower{},
		&task.Task{},
		&task.DeadLetter{},
	)
}
