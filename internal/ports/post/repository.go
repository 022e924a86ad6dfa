package post

import (
	"context"
	"time"

	"feedcore/internal/core/post"
)

// PostRepository is the durable store contract for posts.
type PostRepository interface {
	Create(ctx context.Context, post *post.Post) (*post.Post, error)
	FindByID(ctx context.Context, id string) (*post.Post, error)
	// FindByIDs returns the posts that exist, tombstoned ones included, in no particular order.
	FindByIDs(ctx context.Context, ids []string) ([]*post.Post, error)
	// FindRecentByAuthor returns live posts created at or after since, newest first.
	FindRecentByAuthor(ctx context.Context, authorID string, since time.Time, limit int) ([]*post.Post, error)
	Tombstone(ctx context.Context, id string, at time.Time) error
	SetMediaRef(ctx context.Context, id, ref string) error
	ClearMedia(ctx context.Context, id string) error
}

// DTOs for use cases
type PostDTO struct {
	ID        string `json:"id"`
	Body      string `json:"body"`
	AuthorID  string `json:"author_id"`
	MediaRef  string `json:"media_ref,omitempty"`
	CreatedAt string `json:"created_at"`
}

// CreatePostResult reports the durable write and how the fan-out went.
type CreatePostResult struct {
	Post     *PostDTO `json:"post"`
	Fanout   string   `json:"fanout"`
	TaskID   string   `json:"task_id,omitempty"`
	Degraded bool     `json:"degraded"`
}
