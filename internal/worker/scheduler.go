package worker

import (
	"context"
	"errors"
	"time"

	"bizdir/internal/domain"
	"bizdir/internal/models"

	"github.com/rs/zerolog"
)

// ErrDrainInProgress reports that another drain holds the run lock.
var ErrDrainInProgress = errors.New("drain already in progress")

// Scheduler periodically drains the queue. Each tick takes the run lock,
// sweeps stale claims back to pending, then runs one bounded drain. The same
// RunOnce path serves the HTTP schedule trigger, so external cron and the
// internal ticker share single-drain semantics.
type Scheduler struct {
	processor  *Processor
	queue      domain.QueueStore
	lock       domain.RunLocker
	interval   time.Duration
	staleAfter time.Duration
	batchSize  int
	logger     zerolog.Logger
}

func NewScheduler(processor *Processor, queue domain.QueueStore, lock domain.RunLocker, interval, staleAfter time.Duration, batchSize int, logger *zerolog.Logger) *Scheduler {
	if interval <= 0 {
		interval = models.DefaultSchedulerIntervalMinutes * time.Minute
	}
	if staleAfter <= 0 {
		staleAfter = models.DefaultStaleAfterMinutes * time.Minute
	}
	if batchSize <= 0 {
		batchSize = models.DefaultBatchSize
	}

	return &Scheduler{
		processor:  processor,
		queue:      queue,
		lock:       lock,
		interval:   interval,
		staleAfter: staleAfter,
		batchSize:  batchSize,
		logger:     logger.With().Str("component", "scheduler").Logger(),
	}
}

// Start runs the tick loop until ctx is done.
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info().Dur("interval", s.interval).Int("batch_size", s.batchSize).Msg("scheduler started")
	defer s.logger.Info().Msg("scheduler stopped")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			report, err := s.RunOnce(ctx, s.batchSize)
			switch {
			case errors.Is(err, ErrDrainInProgress):
				s.logger.Info().Msg("skipping tick, drain already running")
			case err != nil:
				s.logger.Error().Err(err).Msg("drain failed")
			default:
				s.logger.Info().
					Int("processed", report.Processed).
					Int("succeeded", report.Succeeded).
					Int("failed", report.Failed).
					Int("released", report.Released).
					Msg("drain finished")
			}
		}
	}
}

// RunOnce performs a single locked drain with the given batch size.
func (s *Scheduler) RunOnce(ctx context.Context, batchSize int) (Report, error) {
	if batchSize <= 0 {
		batchSize = s.batchSize
	}

	acquired, err := s.lock.TryLock(ctx, models.RunLockTTL*time.Second)
	if err != nil {
		// Lock backend down: proceed, single-instance deployments still need
		// their drains.
		s.logger.Warn().Err(err).Msg("run lock unavailable, draining without it")
	} else if !acquired {
		return Report{}, ErrDrainInProgress
	} else {
		defer func() {
			if err := s.lock.Unlock(ctx); err != nil {
				s.logger.Warn().Err(err).Msg("run lock release failed")
			}
		}()
	}

	if n, err := s.queue.ReclaimStale(ctx, s.staleAfter); err != nil {
		s.logger.Error().Err(err).Msg("stale claim sweep failed")
	} else if n > 0 {
		s.logger.Warn().Int64("reclaimed", n).Msg("reclaimed stale processing entries")
	}

	return s.processor.ProcessQueue(ctx, batchSize)
}
