package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"football-predictor/internal/config"
	"football-predictor/internal/domain"
	"football-predictor/internal/repository"
	"football-predictor/internal/runid"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const dayLayout = "2006-01-02"

// ResultsProvider lists the fixtures of one calendar day.
type ResultsProvider interface {
	FetchResults(ctx context.Context, date time.Time) ([]domain.ExternalResult, error)
}

type SyncRequest struct {
	// defaults to today and yesterday in SYNC_TIMEZONE
	Dates []time.Time
	// dates whose failure fails the whole run
	Required []time.Time
}

type SyncService struct {
	provider        ResultsProvider
	matchRepo       *repository.MatchRepository
	competitionRepo *repository.CompetitionRepository
	cfg             *config.Config
	logger          zerolog.Logger
	now             func() time.Time
}

func NewSyncService(provider ResultsProvider, matchRepo *repository.MatchRepository, competitionRepo *repository.CompetitionRepository, cfg *config.Config, logger zerolog.Logger) *SyncService {
	return &SyncService{
		provider:        provider,
		matchRepo:       matchRepo,
		competitionRepo: competitionRepo,
		cfg:             cfg,
		logger:          logger,
		now:             time.Now,
	}
}

// DefaultDates is today and yesterday in the configured timezone.
func (s *SyncService) DefaultDates() []time.Time {
	now := s.now().In(s.cfg.SyncTimezone)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.cfg.SyncTimezone)
	return []time.Time{today, today.AddDate(0, 0, -1)}
}

// Sync fetches and upserts every requested date. Dates run concurrently and
// fail independently; the report is always returned. The error is
// ErrAllDatesFailed when nothing succeeded and ErrRequiredDateFailed when a
// required date failed.
func (s *SyncService) Sync(ctx context.Context, req SyncRequest) (*domain.SyncReport, error) {
	logger := withRunID(ctx, s.logger)

	dates := req.Dates
	if len(dates) == 0 {
		dates = s.DefaultDates()
	}
	dates = uniqueDays(append(slices.Clone(dates), req.Required...))

	report := &domain.SyncReport{
		RunID:     runid.Get(ctx),
		StartedAt: s.now().UTC(),
		Dates:     make([]domain.DateOutcome, len(dates)),
	}

	logger.Info().Strs("dates", formatDays(dates)).Int("concurrency", s.cfg.SyncConcurrency).Msg("sync started")

	var g errgroup.Group
	g.SetLimit(s.cfg.SyncConcurrency)
	for i, date := range dates {
		i, date := i, date
		g.Go(func() error {
			report.Dates[i] = s.syncDate(ctx, logger, date)
			return nil
		})
	}
	g.Wait()

	report.FinishedAt = s.now().UTC()

	failed := map[string]error{}
	for _, outcome := range report.Dates {
		if !outcome.OK {
			failed[outcome.Date.Format(dayLayout)] = outcome.Err
		}
	}

	logger.Info().
		Int("succeeded", report.Succeeded()).
		Int("failed", report.Failed()).
		Dur("elapsed", report.FinishedAt.Sub(report.StartedAt)).
		Msg("sync finished")

	if len(failed) == len(report.Dates) {
		return report, fmt.Errorf("%w: %d of %d dates", domain.ErrAllDatesFailed, len(failed), len(report.Dates))
	}
	for _, d := range req.Required {
		day := d.Format(dayLayout)
		if err, ok := failed[day]; ok {
			return report, fmt.Errorf("%w: %s: %w", domain.ErrRequiredDateFailed, day, err)
		}
	}
	return report, nil
}

func (s *SyncService) syncDate(ctx context.Context, logger zerolog.Logger, date time.Time) domain.DateOutcome {
	outcome := domain.DateOutcome{Date: date}
	day := date.Format(dayLayout)
	logger = logger.With().Str("date", day).Logger()

	fetchCtx, cancel := context.WithTimeout(ctx, s.cfg.ProviderTimeout)
	results, err := s.provider.FetchResults(fetchCtx, date)
	cancel()
	if err != nil {
		logger.Error().Err(err).Msg("failed to fetch results")
		outcome.Err = err
		return outcome
	}
	outcome.Fetched = len(results)

	competitions := map[string]domain.Competition{}
	for _, r := range results {
		if err := r.Validate(); err != nil {
			outcome.Skipped++
			logger.Debug().Err(err).Str("external_id", r.ExternalID).Msg("skipping malformed result")
			continue
		}

		res, err := s.matchRepo.UpsertMatch(ctx, r.ExternalID, r.Fields())
		if err != nil {
			logger.Error().Err(err).Str("external_id", r.ExternalID).Msg("failed to upsert match")
			outcome.Err = fmt.Errorf("failed to upsert match %s: %w", r.ExternalID, err)
			return outcome
		}
		switch {
		case res.Created:
			outcome.Created++
		case res.Changed:
			outcome.Updated++
		default:
			outcome.Unchanged++
		}
		if res.Corrected {
			outcome.Corrected++
		}

		if r.Competition != "" {
			competitions[r.CompetitionID] = domain.Competition{ID: r.CompetitionID, Name: r.Competition, Country: r.Country}
		}
	}

	for _, c := range competitions {
		if err := s.competitionRepo.Upsert(ctx, c); err != nil {
			logger.Warn().Err(err).Str("competition_id", c.ID).Msg("failed to upsert competition")
		}
	}

	outcome.OK = true
	logger.Info().
		Int("fetched", outcome.Fetched).
		Int("created", outcome.Created).
		Int("updated", outcome.Updated).
		Int("unchanged", outcome.Unchanged).
		Int("corrected", outcome.Corrected).
		Int("skipped", outcome.Skipped).
		Msg("date synced")
	return outcome
}

func uniqueDays(dates []time.Time) []time.Time {
	seen := make(map[string]bool, len(dates))
	out := make([]time.Time, 0, len(dates))
	for _, d := range dates {
		key := d.Format(dayLayout)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, d)
	}
	return out
}

func formatDays(dates []time.Time) []string {
	out := make([]string, len(dates))
	for i, d := range dates {
		out[i] = d.Format(dayLayout)
	}
	return out
}

// ParseDates reads YYYY-MM-DD values as calendar days in loc.
func ParseDates(values []string, loc *time.Location) ([]time.Time, error) {
	dates := make([]time.Time, 0, len(values))
	var errs []error
	for _, v := range values {
		d, err := time.ParseInLocation(dayLayout, v, loc)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid date %q, want YYYY-MM-DD", v))
			continue
		}
		dates = append(dates, d)
	}
	return dates, errors.Join(errs...)
}
