package timeline

import (
	"context"

	"feedcore/internal/core/timeline"
	postPort "feedcore/internal/ports/post"
)

// TimelineCache is the low-latency projection of every owner's feed.
// All mutations are atomic per call: a reader sees a batch fully or not at all.
type TimelineCache interface {
	// Insert and InsertMany only touch timelines that are cached or being
	// rebuilt. Other owners are rebuilt from the durable store on first read.
	Insert(ctx context.Context, owner string, entries ...timeline.Entry) error
	InsertMany(ctx context.Context, owners []string, entry timeline.Entry) error
	Remove(ctx context.Context, owner, postID string) error
	RemoveMany(ctx context.Context, owners []string, postID string) error
	// Read returns entries after cursor, newest first, or errs.ErrCacheMiss.
	Read(ctx context.Context, owner string, limit int, cursor *timeline.Cursor) ([]timeline.Entry, error)
	Trim(ctx context.Context, owner string, bound int) error
	// Replace installs a rebuilt sequence. Cached entries missing from the
	// snapshot are dropped only if their score is at or below cutoff.
	Replace(ctx context.Context, owner string, entries []timeline.Entry, cutoff float64) error
	// ReplaceFrom is Replace with the sequence computed by snapshot while the
	// timeline is watched. A write that lands during snapshot starts it over.
	ReplaceFrom(ctx context.Context, owner string, cutoff float64, snapshot func(context.Context) ([]timeline.Entry, error)) ([]timeline.Entry, error)
	Invalidate(ctx context.Context, owner string) error
	IsCached(ctx context.Context, owner string) (bool, error)
}

// Page is one slice of a hydrated timeline.
type Page struct {
	Items      []*postPort.PostDTO `json:"items"`
	NextCursor string              `json:"next_cursor,omitempty"`
	Source     string              `json:"source"`
}

const (
	SourceCache   = "cache"
	SourceRebuild = "rebuild"
	SourceStore   = "store"
)
