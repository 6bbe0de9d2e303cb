package ingestion

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// DefaultInterval is the period of the scheduled full sweep.
const DefaultInterval = 15 * time.Minute

// Submitter queues ingestion tasks.
type Submitter interface {
	Submit(key string) bool
}

// Scheduler submits a full sweep immediately and then every Interval.
type Scheduler struct {
	submit   Submitter
	interval time.Duration
	logger   zerolog.Logger
}

// NewScheduler creates a Scheduler. A non-positive interval uses DefaultInterval.
func NewScheduler(submit Submitter, interval time.Duration, logger zerolog.Logger) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Scheduler{
		submit:   submit,
		interval: interval,
		logger:   logger.With().Str("component", "scheduler").Logger(),
	}
}

// Run blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info().Dur("interval", s.interval).Msg("scheduler started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.fire()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("scheduler stopping")
			return ctx.Err()
		case <-ticker.C:
			s.fire()
		}
	}
}

func (s *Scheduler) fire() {
	if !s.submit.Submit(AllWallets) {
		s.logger.Info().Msg("full sweep still pending, tick skipped")
	}
}
