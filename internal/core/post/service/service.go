package postapp

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"feedcore/internal/core/errs"
	"feedcore/internal/core/fanout"
	"feedcore/internal/core/media"
	postEntity "feedcore/internal/core/post"
	"feedcore/internal/core/task"
	postPort "feedcore/internal/ports/post"
	taskPort "feedcore/internal/ports/task"
	userPort "feedcore/internal/ports/user"

	"github.com/gofrs/uuid"
	"go.uber.org/zap"
)

// Fanout propagates post creation and deletion into timelines.
type Fanout interface {
	Publish(ctx context.Context, p *postEntity.Post, followerCount int64) (fanout.Outcome, error)
	Retract(ctx context.Context, p *postEntity.Post, followerCount int64) (fanout.Outcome, error)
}

// FollowerCounter reports how many followers a user has.
type FollowerCounter interface {
	FollowerCount(ctx context.Context, userID string) (int64, error)
}

// Notifications schedules user notifications.
type Notifications interface {
	Enqueue(ctx context.Context, kind, recipientID, actorID, postID string) (string, error)
}

type PostService struct {
	PostRepository postPort.PostRepository
	UserRepository userPort.UserRepository
	Fanout         Fanout
	Followers      FollowerCounter
	Queue          taskPort.Queue
	Notifications  Notifications
	maxLength      int
	logger         *zap.Logger
	now            func() time.Time
}

func NewPostService(
	postRepo postPort.PostRepository,
	userRepo userPort.UserRepository,
	fan Fanout,
	followers FollowerCounter,
	queue taskPort.Queue,
	notifications Notifications,
	maxLength int,
	logger *zap.Logger,
) *PostService {
	if maxLength <= 0 {
		maxLength = 500
	}
	return &PostService{
		PostRepository: postRepo,
		UserRepository: userRepo,
		Fanout:         fan,
		Followers:      followers,
		Queue:          queue,
		Notifications:  notifications,
		maxLength:      maxLength,
		logger:         logger,
		now:            time.Now,
	}
}

// CreatePost stores a post and propagates it. Only the durable write can
// fail the call; fan-out, media and notification problems are logged and
// reported through the Degraded flag.
func (s *PostService) CreatePost(ctx context.Context, authorID, body, mediaSource string) (*postPort.CreatePostResult, error) {
	uid, err := uuid.FromString(authorID)
	if err != nil {
		return nil, errs.Validation("invalid author id %q", authorID)
	}
	body = strings.TrimSpace(body)
	if body == "" && mediaSource == "" {
		return nil, errs.Validation("post is empty")
	}
	if n := utf8.RuneCountInString(body); n > s.maxLength {
		return nil, errs.Validation("post is %d characters, limit is %d", n, s.maxLength)
	}
	if mediaSource != "" && !strings.HasPrefix(mediaSource, media.UploadPrefix) {
		return nil, errs.Validation("invalid media source %q", mediaSource)
	}

	created, err := s.PostRepository.Create(ctx, &postEntity.Post{
		ID:          uuid.Must(uuid.NewV7()),
		AuthorID:    uid,
		Body:        body,
		MediaSource: mediaSource,
		CreatedAt:   s.now().UTC().Truncate(time.Millisecond),
	})
	if err != nil {
		return nil, err
	}
	postID := created.ID.String()
	log := s.logger.With(zap.String("postID", postID), zap.String("authorID", authorID))

	outcome, err := s.Fanout.Publish(ctx, created, s.followerCount(ctx, authorID))
	if err != nil {
		log.Warn("fan-out degraded", zap.Error(err))
		outcome.Degraded = true
	}
	result := &postPort.CreatePostResult{
		Post:     toDTO(created),
		Fanout:   string(outcome.Mode),
		TaskID:   outcome.TaskID,
		Degraded: outcome.Degraded,
	}

	if mediaSource != "" {
		if err := s.enqueueMedia(ctx, postID, mediaSource); err != nil {
			log.Error("failed to queue media processing", zap.Error(err))
			result.Degraded = true
		}
	}

	s.notifyMentions(ctx, created)
	log.Info("post created", zap.String("fanout", result.Fanout), zap.Bool("degraded", result.Degraded))
	return result, nil
}

// DeletePost tombstones the author's post and retracts it from timelines.
// Deleting an already deleted post succeeds.
func (s *PostService) DeletePost(ctx context.Context, userID, postID string) error {
	p, err := s.PostRepository.FindByID(ctx, postID)
	if err != nil {
		return err
	}
	if p.AuthorID.String() != userID {
		return errs.ErrForbidden
	}
	if p.IsDeleted() {
		return nil
	}

	at := s.now().UTC().Truncate(time.Millisecond)
	if err := s.PostRepository.Tombstone(ctx, postID, at); err != nil {
		return err
	}
	p.DeletedAt = &at

	if _, err := s.Fanout.Retract(ctx, p, s.followerCount(ctx, userID)); err != nil {
		// reads skip tombstoned posts, so leftovers are only a cache cost
		s.logger.Warn("retract degraded", zap.String("postID", postID), zap.Error(err))
	}
	return nil
}

func (s *PostService) GetPost(ctx context.Context, postID string) (*postPort.PostDTO, error) {
	p, err := s.PostRepository.FindByID(ctx, postID)
	if err != nil {
		return nil, err
	}
	if p.IsDeleted() {
		return nil, errs.NotFound("post", postID)
	}
	return toDTO(p), nil
}

// followerCount falls back to the asynchronous path when the count is unknown.
func (s *PostService) followerCount(ctx context.Context, userID string) int64 {
	n, err := s.Followers.FollowerCount(ctx, userID)
	if err != nil {
		s.logger.Warn("follower count unavailable", zap.String("userID", userID), zap.Error(err))
		return math.MaxInt64
	}
	return n
}

func (s *PostService) enqueueMedia(ctx context.Context, postID, source string) error {
	t, err := task.New(task.KindMediaProcess, postID, task.MediaPayload{PostID: postID, SourceKey: source})
	if err != nil {
		return err
	}
	_, err = s.Queue.Enqueue(ctx, t)
	return err
}

func (s *PostService) notifyMentions(ctx context.Context, p *postEntity.Post) {
	handles := postEntity.Mentions(p.Body)
	if len(handles) == 0 {
		return
	}
	users, err := s.UserRepository.FindByHandles(ctx, handles)
	if err != nil {
		s.logger.Warn("failed to resolve mentions", zap.String("postID", p.ID.String()), zap.Error(err))
		return
	}
	for _, u := range users {
		if u.ID == p.AuthorID {
			continue
		}
		if _, err := s.Notifications.Enqueue(ctx, task.NotifyMention, u.ID.String(), p.AuthorID.String(), p.ID.String()); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Warn("failed to queue mention", zap.String("recipientID", u.ID.String()), zap.Error(err))
		}
	}
}

func toDTO(p *postEntity.Post) *postPort.PostDTO {
	return &postPort.PostDTO{
		ID:        p.ID.String(),
		Body:      p.Body,
		AuthorID:  p.AuthorID.String(),
		MediaRef:  p.MediaRef,
		CreatedAt: p.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}
