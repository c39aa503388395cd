package sessionstore

import (
	"context"
	"log/slog"
	"time"

	"idmask/internal/sessionstore/metrics"
)

// Sweepable is the part of a Store the sweeper drives.
type Sweepable interface {
	Sweep(ctx context.Context) (int, error)
	Len(ctx context.Context) (int, error)
}

// Sweeper periodically trims one namespace back to its bound.
type Sweeper struct {
	namespace Namespace
	store     Sweepable
	interval  time.Duration
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// NewSweeper creates a sweeper for store. A non-positive interval uses the default.
func NewSweeper(namespace Namespace, store Sweepable, interval time.Duration, logger *slog.Logger, m *metrics.Metrics) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &Sweeper{
		namespace: namespace,
		store:     store,
		interval:  interval,
		logger:    logger,
		metrics:   m,
	}
}

// Run sweeps every interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("session sweeper started", "namespace", s.namespace, "interval", s.interval.String())
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("session sweeper stopped", "namespace", s.namespace)
			return nil
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce runs a single sweep and records its outcome.
func (s *Sweeper) SweepOnce(ctx context.Context) int {
	evicted, err := s.store.Sweep(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "session sweep failed", "namespace", s.namespace, "error", err)
		s.metrics.RecordSweepError(string(s.namespace))
		return 0
	}
	size, err := s.store.Len(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "session store size unavailable", "namespace", s.namespace, "error", err)
	}
	s.metrics.RecordSweep(string(s.namespace), evicted, size)
	if evicted > 0 {
		s.logger.InfoContext(ctx, "session sweep evicted entries",
			"namespace", s.namespace,
			"evicted", evicted,
			"size", size,
		)
	}
	return evicted
}
