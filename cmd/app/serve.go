package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"feedcore/internal/adapters/httpapi"
	"feedcore/internal/workers"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var withWorkers bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Serves the HTTP API on app.port. With --with-workers the task pool and the
sweeper run in the same process, which is handy for local development.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&withWorkers, "with-workers", false, "also run the task pool and sweeper")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.App.JWTSecret == "" {
		return errors.New("JWT secret is not set (APP_JWT_SECRET)")
	}
	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	a, err := newApp(ctx, cfg, logger, true)
	if err != nil {
		return err
	}
	defer a.close(logger)

	r := httpapi.SetupRoutes(httpapi.UseCases{
		User:     a.users,
		Post:     a.posts,
		Media:    a.media,
		Follower: a.followers,
		Timeline: a.timelines,
		Admin:    a.deadLetters,
	}, httpapi.RouterOptions{
		JWTSecret:      []byte(cfg.App.JWTSecret),
		MaxUploadBytes: cfg.Media.MaxUploadBytes,
	}, logger.Named("http"))

	srv := &http.Server{
		Addr:              ":" + cfg.App.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if withWorkers {
		startWorkers(ctx, g, a)
	}

	return g.Wait()
}

// startWorkers runs the task pool and the sweeper inside g.
func startWorkers(ctx context.Context, g *errgroup.Group, a *app) {
	pool := workers.NewPool(a.queue, workers.PoolOptions{
		Workers:      cfg.Queue.Workers,
		PollInterval: cfg.Queue.PollInterval,
		TaskTimeout:  cfg.Queue.TaskTimeout,
	}, logger.Named("pool"))
	a.registerHandlers(pool)
	sweeper := workers.NewSweeper(a.reconcile, cfg.Sweep.Interval, logger.Named("sweeper"))

	g.Go(func() error { return pool.Run(ctx) })
	g.Go(func() error { return sweeper.Run(ctx) })
}
