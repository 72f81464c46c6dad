package propagation

import (
	"context"
	"time"

	"go.uber.org/zap"

	"cardvault/application/ports"
	"cardvault/pkg/observability"
)

// Sweeper periodically removes expired cards. Removal is guarded per record,
// so overlapping sweeps across instances never double-remove or double-emit.
type Sweeper struct {
	repo     ports.CardRepository
	metrics  *observability.Metrics
	logger   *zap.Logger
	interval time.Duration

	stopChan    chan struct{}
	stoppedChan chan struct{}
}

// NewSweeper creates an expiration sweeper.
func NewSweeper(repo ports.CardRepository, metrics *observability.Metrics, logger *zap.Logger, interval time.Duration) *Sweeper {
	return &Sweeper{
		repo:        repo,
		metrics:     metrics,
		logger:      logger,
		interval:    interval,
		stopChan:    make(chan struct{}),
		stoppedChan: make(chan struct{}),
	}
}

// Start runs the sweep loop until Stop is called or ctx is cancelled.
func (s *Sweeper) Start(ctx context.Context) {
	go func() {
		defer close(s.stoppedChan)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.logger.Info("Expiration sweeper started", zap.Duration("interval", s.interval))

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopChan:
				return
			case <-ticker.C:
				s.sweep(ctx)
			}
		}
	}()
}

// Stop halts the loop and waits for an in-flight sweep to finish.
func (s *Sweeper) Stop() {
	close(s.stopChan)
	<-s.stoppedChan
	s.logger.Info("Expiration sweeper stopped")
}

func (s *Sweeper) sweep(ctx context.Context) {
	removed, err := s.repo.ExpireSweep(ctx, time.Now().UTC())
	if err != nil {
		s.logger.Error("Expiration sweep failed", zap.Error(err))
		return
	}
	if removed > 0 {
		s.logger.Info("Expired cards removed", zap.Int("count", removed))
		s.metrics.Count(ctx, observability.MetricRecordsExpired, float64(removed))
	}
}
