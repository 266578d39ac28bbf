// Package scheduler runs the periodic usage-cycle reset.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/blagoySimandov/careerpilot/internal/metrics"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

type UsageResetter interface {
	ResetAllUsage(ctx context.Context) (int64, error)
}

type Scheduler struct {
	cron     *cron.Cron
	resetter UsageResetter
	metrics  *metrics.Metrics
	schedule string
	timeout  time.Duration
}

func New(resetter UsageResetter, schedule string, m *metrics.Metrics) *Scheduler {
	c := cron.New(cron.WithChain(cron.Recover(cronLogger{})))
	return &Scheduler{
		cron:     c,
		resetter: resetter,
		metrics:  m,
		schedule: schedule,
		timeout:  time.Minute,
	}
}

// Start registers the reset job and starts the cron loop. An empty schedule disables it.
func (s *Scheduler) Start() error {
	if s.schedule == "" {
		log.Info().Msg("Usage reset schedule not configured, scheduler disabled")
		return nil
	}
	if _, err := s.cron.AddFunc(s.schedule, s.RunUsageReset); err != nil {
		return fmt.Errorf("schedule usage reset %q: %w", s.schedule, err)
	}
	log.Info().Str("schedule", s.schedule).Msg("Scheduled usage reset job")
	s.cron.Start()
	return nil
}

// Stop waits for a running job to finish or ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
		log.Warn().Msg("Scheduler stop timed out with a job still running")
	}
}

func (s *Scheduler) RunUsageReset() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	start := time.Now()
	n, err := s.resetter.ResetAllUsage(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Usage reset failed")
		return
	}
	s.metrics.ObserveUsageReset(n)
	log.Info().Int64("accounts", n).Dur("duration", time.Since(start)).Msg("Usage reset completed")
}

// cronLogger routes cron's internal logging to zerolog.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	log.Debug().Fields(keysAndValues).Msg(msg)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
