package httpapi

import (
	"context"
	"net/http"

	"feedcore/internal/adapters/httpapi/middleware"
	followerPort "feedcore/internal/ports/follower"
	postPort "feedcore/internal/ports/post"
	taskPort "feedcore/internal/ports/task"
	timelinePort "feedcore/internal/ports/timeline"
	userPort "feedcore/internal/ports/user"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Inbound ports used by the controllers.

type UserUseCase interface {
	UpsertUser(ctx context.Context, userID, handle string) (*userPort.UserDTO, error)
	GetUser(ctx context.Context, userID string) (*userPort.UserDTO, error)
}

type PostUseCase interface {
	CreatePost(ctx context.Context, authorID, body, mediaSource string) (*postPort.CreatePostResult, error)
	GetPost(ctx context.Context, postID string) (*postPort.PostDTO, error)
	DeletePost(ctx context.Context, userID, postID string) error
}

type MediaUseCase interface {
	StoreUpload(ctx context.Context, data []byte) (string, error)
}

type FollowerUseCase interface {
	FollowUser(ctx context.Context, followerID, followeeID string) (*followerPort.FollowerDTO, error)
	UnfollowUser(ctx context.Context, followerID, followeeID string) error
	GetFollowersByUserID(ctx context.Context, userID string) ([]*followerPort.FollowerDTO, error)
	GetFollowingByUserID(ctx context.Context, userID string) ([]*followerPort.FollowerDTO, error)
}

type TimelineUseCase interface {
	GetTimelineByUserID(ctx context.Context, userID string, limit int, cursor string) (*timelinePort.Page, error)
}

type AdminUseCase interface {
	ListDeadLetters(ctx context.Context, limit int) ([]*taskPort.DeadLetterDTO, error)
	ReplayDeadLetter(ctx context.Context, id string) (string, error)
}

// UseCases bundles everything the router dispatches to.
type UseCases struct {
	User     UserUseCase
	Post     PostUseCase
	Media    MediaUseCase
	Follower FollowerUseCase
	Timeline TimelineUseCase
	Admin    AdminUseCase
}

type RouterOptions struct {
	JWTSecret      []byte
	MaxUploadBytes int64
}

// SetupRoutes only wires routes; use cases are injected from outside.
func SetupRoutes(uc UseCases, opts RouterOptions, logger *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(logger))
	r.MaxMultipartMemory = opts.MaxUploadBytes

	users := NewUserController(uc.User)
	posts := NewPostController(uc.Post)
	media := NewMediaController(uc.Media, opts.MaxUploadBytes)
	followers := NewFollowerController(uc.Follower)
	timeline := NewTimelineController(uc.Timeline)
	admin := NewAdminController(uc.Admin)

	auth := r.Group("/", middleware.JWTAuthMiddleware(opts.JWTSecret, ""))
	auth.PUT("/users/me", users.UpsertMe)
	auth.GET("/users/me", users.GetMe)

	auth.POST("/media", media.Upload)
	auth.POST("/post", posts.CreatePost)
	auth.GET("/post/:id", posts.GetPost)
	auth.DELETE("/post/:id", posts.DeletePost)

	auth.POST("/follow", followers.FollowUser)
	auth.POST("/unfollow", followers.UnfollowUser)
	auth.GET("/followers", followers.GetFollowersByUserID)
	auth.GET("/following", followers.GetFollowingByUserID)

	auth.GET("/timeline", timeline.GetTimelineByUserID)

	ops := r.Group("/admin", middleware.JWTAuthMiddleware(opts.JWTSecret, userPort.AdminAudience))
	ops.GET("/dead-letters", admin.ListDeadLetters)
	ops.POST("/dead-letters/:id/replay", admin.ReplayDeadLetter)

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	return r
}
