package main

import (
	"context"
	"fmt"

	"feedcore/internal/adapters/database"
	"feedcore/internal/adapters/notify"
	redisAdapter "feedcore/internal/adapters/redis"
	"feedcore/internal/adapters/storage"
	"feedcore/internal/config"
	fanoutapp "feedcore/internal/core/fanout/service"
	followerapp "feedcore/internal/core/follower/service"
	"feedcore/internal/core/media"
	mediaapp "feedcore/internal/core/media/service"
	notifyapp "feedcore/internal/core/notify/service"
	postapp "feedcore/internal/core/post/service"
	reconcileapp "feedcore/internal/core/reconcile/service"
	"feedcore/internal/core/task"
	taskapp "feedcore/internal/core/task/service"
	timelineapp "feedcore/internal/core/timeline/service"
	userapp "feedcore/internal/core/user/service"
	"feedcore/internal/retry"
	"feedcore/internal/workers"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// app is the composition root shared by every command.
type app struct {
	db    *gorm.DB
	redis *redis.Client
	queue *database.TaskQueueDatabase

	users       *userapp.UserService
	posts       *postapp.PostService
	followers   *followerapp.FollowerService
	fanout      *fanoutapp.FanoutService
	timelines   *timelineapp.TimelineService
	reconcile   *reconcileapp.ReconcileService
	media       *mediaapp.MediaService
	notify      *notifyapp.NotifyService
	deadLetters *taskapp.DeadLetterService
}

// newApp opens the stores, migrates the schema and builds the services.
// Object storage is only contacted when withStorage is set.
func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger, withStorage bool) (*app, error) {
	db, err := config.OpenDB(cfg.Database)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(db); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	logger.Info("database migrations completed", zap.String("driver", cfg.Database.Driver))

	rdb, err := config.OpenRedis(ctx, cfg.Redis)
	if err != nil {
		closeDB(db, logger)
		return nil, err
	}

	a := &app{db: db, redis: rdb}

	userRepo := database.NewUserRepositoryDatabase(db)
	postRepo := database.NewPostRepositoryDatabase(db)
	followerRepo := database.NewFollowerRepositoryDatabase(db)
	a.queue = database.NewTaskQueueDatabase(db, database.QueueOptions{
		MaxAttempts: cfg.Queue.MaxAttempts,
		Lease:       cfg.Queue.Lease,
		BackoffBase: cfg.Queue.BackoffBase,
		BackoffMax:  cfg.Queue.BackoffMax,
		ScanSize:    cfg.Queue.ScanSize,
	})

	cache := redisAdapter.NewTimelineCacheRedis(rdb, cfg.Feed.TimelineBound, cfg.Feed.TimelineTTL, logger.Named("cache"))
	counters := redisAdapter.NewCounterStoreRedis(rdb)
	storeRetry := retry.Policy{Attempts: cfg.Feed.StoreRetries, Base: cfg.Feed.RetryBase, Max: cfg.Feed.OpTimeout}

	a.notify = notifyapp.NewNotifyService(notify.NewLogNotifier(logger.Named("notify")), a.queue, logger.Named("notify"))
	a.users = userapp.NewUserService(userRepo, counters, []byte(cfg.App.JWTSecret), cfg.App.Issuer, logger.Named("user"))
	a.followers = followerapp.NewFollowerService(followerRepo, userRepo, counters, cache, a.notify, logger.Named("follower"))
	a.fanout = fanoutapp.NewFanoutService(postRepo, followerRepo, cache, a.queue, fanoutapp.Options{
		Threshold: cfg.Feed.FanoutThreshold,
		BatchSize: cfg.Feed.BatchSize,
		Retry:     storeRetry,
		OpTimeout: cfg.Feed.OpTimeout,
	}, logger.Named("fanout"))
	a.posts = postapp.NewPostService(postRepo, userRepo, a.fanout, a.followers, a.queue, a.notify, cfg.Feed.MaxPostLength, logger.Named("post"))
	a.reconcile = reconcileapp.NewReconcileService(postRepo, followerRepo, userRepo, cache, counters, reconcileapp.Options{
		Bound:    cfg.Feed.TimelineBound,
		PageSize: cfg.Sweep.PageSize,
	}, logger.Named("reconcile"))
	a.timelines = timelineapp.NewTimelineService(cache, a.reconcile, postRepo, timelineapp.Options{
		PageSize:       cfg.Feed.PageSize,
		Retry:          storeRetry,
		OpTimeout:      cfg.Feed.OpTimeout,
		TombstoneGrace: cfg.Feed.TombstoneGrace,
	}, logger.Named("timeline"))
	a.deadLetters = taskapp.NewDeadLetterService(a.queue, logger.Named("tasks"))

	if withStorage {
		client, err := storage.NewClient(cfg.Storage)
		if err != nil {
			a.close(logger)
			return nil, fmt.Errorf("failed to create storage client: %w", err)
		}
		store := storage.NewObjectStoreMinio(client, cfg.Storage.Bucket, cfg.Media.MaxUploadBytes, logger.Named("storage"))
		if err := store.EnsureBucket(ctx); err != nil {
			a.close(logger)
			return nil, fmt.Errorf("failed to prepare bucket %s: %w", cfg.Storage.Bucket, err)
		}
		a.media = mediaapp.NewMediaService(store, postRepo, mediaVariants(cfg.Media), cfg.Media.MaxUploadBytes, logger.Named("media"))
	}

	return a, nil
}

// mediaVariants derives the image variants from configuration. The first
// one is what a post's media ref points at.
func mediaVariants(cfg config.MediaConfig) []media.Variant {
	return []media.Variant{
		{Name: "large", Width: cfg.MaxWidth, Height: cfg.MaxHeight, Mode: media.ModeFit, Format: media.FormatJPEG, Quality: cfg.JPEGQuality},
		{Name: "thumb", Width: cfg.ThumbSize, Height: cfg.ThumbSize, Mode: media.ModeFill, Format: media.FormatJPEG, Quality: cfg.JPEGQuality},
	}
}

// registerHandlers routes every task kind to its handler.
func (a *app) registerHandlers(pool *workers.Pool) {
	pool.Handle(task.KindFanoutPublish, a.fanout.HandlePublish)
	pool.Handle(task.KindFanoutRetract, a.fanout.HandleRetract)
	pool.Handle(task.KindNotify, a.notify.HandleNotifyTask)
	if a.media != nil {
		pool.Handle(task.KindMediaProcess, a.media.HandleMediaTask)
	}
}

// close releases the redis and database connections.
func (a *app) close(logger *zap.Logger) {
	if err := a.redis.Close(); err != nil {
		logger.Error("error closing redis connection", zap.Error(err))
	}
	closeDB(a.db, logger)
}

func closeDB(db *gorm.DB, logger *zap.Logger) {
	sqlDB, err := db.DB()
	if err != nil {
		logger.Error("error getting raw DB", zap.Error(err))
		return
	}
	if err := sqlDB.Close(); err != nil {
		logger.Error("error closing database connection", zap.Error(err))
	}
}
