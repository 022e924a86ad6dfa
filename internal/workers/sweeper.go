package workers

import (
	"context"
	"time"

	reconcileapp "feedcore/internal/core/reconcile/service"

	"go.uber.org/zap"
)

// Reconciler repairs cached state from the durable store.
type Reconciler interface {
	Sweep(ctx context.Context) (reconcileapp.SweepReport, error)
}

// Sweeper runs a reconciliation sweep on a fixed interval.
type Sweeper struct {
	Reconciler Reconciler
	Interval   time.Duration
	Logger     *zap.Logger
}

func NewSweeper(reconciler Reconciler, interval time.Duration, logger *zap.Logger) *Sweeper {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &Sweeper{Reconciler: reconciler, Interval: interval, Logger: logger}
}

// Run sweeps every Interval until ctx is cancelled. A failed sweep is logged
// and retried on the next tick.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	s.Logger.Info("sweeper started", zap.Duration("interval", s.Interval))
	for {
		select {
		case <-ctx.Done():
			s.Logger.Info("sweeper stopped")
			return nil
		case <-ticker.C:
			report, err := s.Reconciler.Sweep(ctx)
			if err != nil && ctx.Err() == nil {
				s.Logger.Warn("sweep incomplete",
					zap.Int("users", report.Users),
					zap.Int("failed", report.Failed),
					zap.Error(err),
				)
			}
		}
	}
}
