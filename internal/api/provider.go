package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"football-predictor/internal/config"
	"football-predictor/internal/domain"

	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"
)

const dateLayout = "2006-01-02"

// RequestCounter persists how many provider calls were made per day.
// Increment must be atomic and return the day's total including this call.
type RequestCounter interface {
	Increment(ctx context.Context, at time.Time) (int, error)
}

// FootballProvider turns API-Football fixtures into provider results.
type FootballProvider struct {
	client     *FootballClient
	counter    RequestCounter
	apiKey     string
	dailyLimit int
	logger     zerolog.Logger
	now        func() time.Time
}

func NewFootballProvider(client *FootballClient, counter RequestCounter, cfg *config.Config, logger zerolog.Logger) *FootballProvider {
	return &FootballProvider{
		client:     client,
		counter:    counter,
		apiKey:     cfg.APIFootballKey,
		dailyLimit: cfg.APIFootballDailyLimit,
		logger:     logger,
		now:        time.Now,
	}
}

// FetchResults returns every fixture the provider lists for date's calendar
// day. Items are mapped leniently; callers validate and skip malformed ones.
func (p *FootballProvider) FetchResults(ctx context.Context, date time.Time) ([]domain.ExternalResult, error) {
	day := date.Format(dateLayout)
	if p.apiKey == "" {
		return nil, fmt.Errorf("%w: API_FOOTBALL_KEY is not set", domain.ErrProviderRequest)
	}

	if err := p.reserve(ctx); err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := p.client.GetFixturesByDate(ctx, day)
	if err != nil {
		p.logger.Error().Err(err).Str("date", day).Dur("elapsed", time.Since(start)).Msg("fixtures request failed")
		return nil, classifyError(day, err)
	}

	if msgs := resp.ErrorMessages(); len(msgs) > 0 {
		p.logger.Error().Strs("errors", msgs).Str("date", day).Msg("provider rejected fixtures request")
		return nil, fmt.Errorf("%w: fixtures %s: %s", domain.ErrProviderRequest, day, strings.Join(msgs, "; "))
	}
	if resp.Response == nil {
		return nil, fmt.Errorf("%w: fixtures %s: response field missing", domain.ErrProviderData, day)
	}

	results := make([]domain.ExternalResult, 0, len(resp.Response))
	for _, item := range resp.Response {
		results = append(results, toExternalResult(item))
	}

	rl := p.client.GetRateLimitInfo()
	p.logger.Info().
		Str("date", day).
		Int("fixtures", len(results)).
		Int("daily_remaining", rl.DailyRemaining).
		Dur("elapsed", time.Since(start)).
		Msg("fetched fixtures")

	return results, nil
}

// reserve counts the call against today's budget before it is made, so
// failed calls are charged too. Concurrent callers each get their own total
// back from the counter, so at most dailyLimit of them go through.
func (p *FootballProvider) reserve(ctx context.Context) error {
	if p.counter == nil || p.dailyLimit <= 0 {
		return nil
	}
	used, err := p.counter.Increment(ctx, p.now())
	if err != nil {
		return fmt.Errorf("failed to record request: %w", err)
	}
	if used > p.dailyLimit {
		p.logger.Warn().Int("used", used).Int("limit", p.dailyLimit).Msg("daily request budget exhausted")
		return fmt.Errorf("%w: daily request budget of %d exhausted", domain.ErrProviderRequest, p.dailyLimit)
	}
	return nil
}

func classifyError(day string, err error) error {
	var statusErr *StatusError
	var decodeErr *DecodeError
	var netErr net.Error

	switch {
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, fasthttp.ErrTimeout),
		errors.Is(err, fasthttp.ErrDialTimeout),
		errors.As(err, &netErr) && netErr.Timeout():
		return fmt.Errorf("%w: fixtures %s: %w", domain.ErrProviderTimeout, day, err)
	case errors.As(err, &decodeErr):
		return fmt.Errorf("%w: fixtures %s: %w", domain.ErrProviderData, day, err)
	case errors.As(err, &statusErr):
		return fmt.Errorf("%w: fixtures %s: %w", domain.ErrProviderRequest, day, err)
	default:
		return fmt.Errorf("%w: fixtures %s: %w", domain.ErrProviderRequest, day, err)
	}
}

// MapStatus folds API-Football short status codes into the three states the
// store knows about.
func MapStatus(short string) domain.MatchStatus {
	switch strings.ToUpper(short) {
	case "FT", "AET", "PEN", "AWD", "WO":
		return domain.StatusFinished
	case "NS", "TBD":
		return domain.StatusScheduled
	default:
		return domain.StatusUnknown
	}
}

func toExternalResult(item FixtureItem) domain.ExternalResult {
	r := domain.ExternalResult{
		Competition:    item.League.Name,
		Country:        item.League.Country,
		Season:         item.League.Season,
		Round:          item.League.Round,
		HomeTeam:       strings.TrimSpace(item.Teams.Home.Name),
		AwayTeam:       strings.TrimSpace(item.Teams.Away.Name),
		HomeGoals:      item.Goals.Home,
		AwayGoals:      item.Goals.Away,
		Status:         MapStatus(item.Fixture.Status.Short),
		ProviderStatus: item.Fixture.Status.Short,
	}
	if item.Fixture.ID > 0 {
		r.ExternalID = strconv.FormatInt(item.Fixture.ID, 10)
	}
	if item.League.ID > 0 {
		r.CompetitionID = strconv.FormatInt(item.League.ID, 10)
	}
	if t, err := time.Parse(time.RFC3339, item.Fixture.Date); err == nil {
		r.Kickoff = t.UTC()
	} else if item.Fixture.Timestamp > 0 {
		r.Kickoff = time.Unix(item.Fixture.Timestamp, 0).UTC()
	}
	return r
}
