package timelineapp

import (
	"context"
	"errors"
	"time"

	"feedcore/internal/core/errs"
	"feedcore/internal/core/timeline"
	postPort "feedcore/internal/ports/post"
	timelinePort "feedcore/internal/ports/timeline"
	"feedcore/internal/retry"

	"go.uber.org/zap"
)

// Rebuilder recomputes timelines from the durable store.
type Rebuilder interface {
	Rebuild(ctx context.Context, owner string) ([]timeline.Entry, error)
	Snapshot(ctx context.Context, owner string) ([]timeline.Entry, error)
}

type Options struct {
	PageSize    int
	MaxPageSize int
	Retry       retry.Policy
	OpTimeout   time.Duration
	// TombstoneGrace is how long a deleted post may linger in a cached
	// timeline before a read removes it.
	TombstoneGrace time.Duration
}

type TimelineService struct {
	TimelineCache  timelinePort.TimelineCache
	Rebuilder      Rebuilder
	PostRepository postPort.PostRepository
	opts           Options
	logger         *zap.Logger
	now            func() time.Time
}

func NewTimelineService(
	cache timelinePort.TimelineCache,
	rebuilder Rebuilder,
	postRepo postPort.PostRepository,
	opts Options,
	logger *zap.Logger,
) *TimelineService {
	if opts.PageSize <= 0 {
		opts.PageSize = 20
	}
	if opts.MaxPageSize < opts.PageSize {
		opts.MaxPageSize = 100
	}
	if opts.OpTimeout <= 0 {
		opts.OpTimeout = 2 * time.Second
	}
	return &TimelineService{
		TimelineCache:  cache,
		Rebuilder:      rebuilder,
		PostRepository: postRepo,
		opts:           opts,
		logger:         logger,
		now:            time.Now,
	}
}

// GetTimelineByUserID returns one page of an owner's timeline, newest first.
// A cold cache is rebuilt on the spot. When the cache is unreachable the page
// is computed straight from the durable store.
func (s *TimelineService) GetTimelineByUserID(ctx context.Context, userID string, limit int, rawCursor string) (*timelinePort.Page, error) {
	cursor, err := timeline.ParseCursor(rawCursor)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = s.opts.PageSize
	}
	limit = min(limit, s.opts.MaxPageSize)

	source := timelinePort.SourceCache
	var entries []timeline.Entry
	err = retry.Do(ctx, s.opts.Retry, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, s.opts.OpTimeout)
		defer cancel()
		var rerr error
		entries, rerr = s.TimelineCache.Read(ctx, userID, limit, cursor)
		return rerr
	})

	switch {
	case err == nil:
	case errors.Is(err, errs.ErrCacheMiss):
		source = timelinePort.SourceRebuild
		all, rerr := s.Rebuilder.Rebuild(ctx, userID)
		if rerr != nil {
			if !errs.IsRetryable(rerr) || all == nil {
				return nil, rerr
			}
			// the snapshot was computed but could not be installed
			s.logger.Warn("timeline rebuild not cached", zap.String("userID", userID), zap.Error(rerr))
			source = timelinePort.SourceStore
		}
		entries = timeline.Page(all, limit, cursor)
	case errs.IsRetryable(err):
		s.logger.Warn("timeline cache unavailable, reading from store", zap.String("userID", userID), zap.Error(err))
		source = timelinePort.SourceStore
		all, serr := s.Rebuilder.Snapshot(ctx, userID)
		if serr != nil {
			return nil, serr
		}
		entries = timeline.Page(all, limit, cursor)
	default:
		return nil, err
	}

	items, stale, err := s.hydrate(ctx, entries)
	if err != nil {
		return nil, err
	}
	if source == timelinePort.SourceCache && len(stale) > 0 {
		s.repair(ctx, userID, stale)
	}
	page := &timelinePort.Page{Items: items, Source: source}
	if len(entries) == limit {
		page.NextCursor = timeline.CursorOf(entries[len(entries)-1]).String()
	}
	return page, nil
}

// hydrate loads the posts behind entries in timeline order. Tombstoned posts
// and posts missing from the store are dropped; the ids of those past the
// tombstone grace are returned as stale.
func (s *TimelineService) hydrate(ctx context.Context, entries []timeline.Entry) ([]*postPort.PostDTO, []string, error) {
	items := make([]*postPort.PostDTO, 0, len(entries))
	if len(entries) == 0 {
		return items, nil, nil
	}
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.PostID
	}
	posts, err := s.PostRepository.FindByIDs(ctx, ids)
	if err != nil {
		return nil, nil, err
	}

	expired := s.now().Add(-s.opts.TombstoneGrace)
	known := make(map[string]bool, len(posts))
	var stale []string
	byID := make(map[string]*postPort.PostDTO, len(posts))
	for _, p := range posts {
		known[p.ID.String()] = true
		if p.IsDeleted() {
			if !p.DeletedAt.After(expired) {
				stale = append(stale, p.ID.String())
			}
			continue
		}
		byID[p.ID.String()] = &postPort.PostDTO{
			ID:        p.ID.String(),
			Body:      p.Body,
			AuthorID:  p.AuthorID.String(),
			MediaRef:  p.MediaRef,
			CreatedAt: p.CreatedAt.UTC().Format(time.RFC3339Nano),
		}
	}
	for _, id := range ids {
		if dto, ok := byID[id]; ok {
			items = append(items, dto)
		} else if !known[id] {
			stale = append(stale, id)
		}
	}
	return items, stale, nil
}

// repair drops stale entries from a cached timeline. Failures only cost a
// later retry, the read already hides them.
func (s *TimelineService) repair(ctx context.Context, owner string, postIDs []string) {
	for _, id := range postIDs {
		if err := s.TimelineCache.Remove(ctx, owner, id); err != nil {
			s.logger.Debug("timeline repair failed", zap.String("userID", owner), zap.String("postID", id), zap.Error(err))
			return
		}
	}
	s.logger.Debug("removed stale timeline entries", zap.String("userID", owner), zap.Int("count", len(postIDs)))
}
