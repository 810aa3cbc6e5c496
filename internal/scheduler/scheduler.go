package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"football-predictor/internal/config"
	"football-predictor/internal/domain"
	"football-predictor/internal/engine"
	"football-predictor/internal/service"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

type Syncer interface {
	SyncResults(ctx context.Context, req service.SyncRequest) (*domain.SyncReport, error)
}

// Scheduler runs a results sync for the default dates on a cron schedule.
// A tick that fires while the previous sync is still running is skipped.
type Scheduler struct {
	cron   *cron.Cron
	syncer Syncer
	expr   string
	logger zerolog.Logger
}

func New(eng *engine.Engine, cfg *config.Config, logger zerolog.Logger) *Scheduler {
	return newScheduler(eng, cfg.SyncSchedule, cfg.SyncTimezone, logger)
}

func newScheduler(syncer Syncer, expr string, loc *time.Location, logger zerolog.Logger) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	cl := cronLogger{logger: logger}
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		syncer: syncer,
		expr:   expr,
		logger: logger,
	}
}

func (s *Scheduler) Start() error {
	if s.expr == "" {
		return errors.New("SYNC_SCHEDULE is not set")
	}
	id, err := s.cron.AddFunc(s.expr, s.runSync)
	if err != nil {
		return fmt.Errorf("invalid sync schedule %q: %w", s.expr, err)
	}
	s.cron.Start()

	s.logger.Info().
		Str("schedule", s.expr).
		Time("next_run", s.cron.Entry(id).Next).
		Msg("sync scheduler started")
	return nil
}

// Stop waits for a running sync to finish or for ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.logger.Info().Msg("sync scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) runSync() {
	report, err := s.syncer.SyncResults(context.Background(), service.SyncRequest{})
	if report == nil {
		s.logger.Error().Err(err).Msg("scheduled sync failed")
		return
	}

	event := s.logger.Info()
	if err != nil {
		event = s.logger.Error().Err(err)
	}
	event.
		Str("run_id", report.RunID).
		Int("succeeded", report.Succeeded()).
		Int("failed", report.Failed()).
		Msg("scheduled sync finished")
}

type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg("cron: " + msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}
