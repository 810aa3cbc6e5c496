package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"football-predictor/internal/artifact"
	"football-predictor/internal/config"
	"football-predictor/internal/constants"
	"football-predictor/internal/domain"
	"football-predictor/internal/engine"
	fxmodules "football-predictor/internal/fx"
	"football-predictor/internal/scheduler"
	"football-predictor/internal/service"

	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

const usage = `usage: predictor <command> [flags]

commands:
  sync                fetch results for dates (default today and yesterday)
  build-dataset       build the feature dataset of a competition
  train               fit a model on the stored dataset of a competition
  train-all           build and train every competition with enough matches
  validate            chronological holdout evaluation of a dataset
  predict             over/under 2.5 probabilities for a fixture
  models              list published model versions of a competition
  train-classifier    fit the feature-based over/under classifier
  predict-classifier  classifier over/under 2.5 probability for a fixture
  match               show one stored match by provider fixture id
  competitions        list known competitions
  schedule            run sync on SYNC_SCHEDULE until interrupted
`

type runtime struct {
	engine    *engine.Engine
	scheduler *scheduler.Scheduler
	cfg       *config.Config
	logger    zerolog.Logger
}

type action func(ctx context.Context, rt *runtime) error

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	act, err := parseCommand(os.Args[1], os.Args[2:])
	if err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(2)
	}

	rt := &runtime{}
	app := fx.New(
		fxmodules.Module,
		fx.NopLogger,
		fx.Invoke(registerShutdown),
		fx.Populate(&rt.engine, &rt.scheduler, &rt.cfg, &rt.logger),
	)
	if err := app.Err(); err != nil {
		fmt.Fprintln(os.Stderr, "startup failed:", err)
		os.Exit(1)
	}

	startCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		rt.logger.Error().Err(err).Msg("failed to start")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	runErr := act(ctx, rt)
	stop()

	stopCtx, cancelStop := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
	defer cancelStop()
	if err := app.Stop(stopCtx); err != nil {
		rt.logger.Warn().Err(err).Msg("shutdown failed")
	}

	if runErr != nil {
		rt.logger.Error().Err(runErr).Str("command", os.Args[1]).Msg("command failed")
		os.Exit(1)
	}
}

func registerShutdown(lc fx.Lifecycle, db *sql.DB, logger zerolog.Logger) {
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			if err := db.Close(); err != nil {
				logger.Warn().Err(err).Msg("error closing database connection")
			}
			return nil
		},
	})
}

func parseCommand(name string, args []string) (action, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)

	switch name {
	case "sync":
		var dates, required stringList
		fs.Var(&dates, "date", "date to sync as YYYY-MM-DD, repeatable")
		fs.Var(&required, "require", "date whose failure fails the run, repeatable")
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		return func(ctx context.Context, rt *runtime) error {
			return runSync(ctx, rt, dates, required)
		}, nil

	case "build-dataset":
		competition := fs.String("competition", "", "competition id")
		limit := fs.Int("limit", 0, "keep only the most recent N finished matches")
		from := fs.String("from", "", "earliest kickoff day, YYYY-MM-DD")
		to := fs.String("to", "", "latest kickoff day, YYYY-MM-DD")
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		return func(ctx context.Context, rt *runtime) error {
			opts := service.DatasetOptions{Limit: *limit}
			var err error
			if opts.From, err = parseDay(*from, rt.cfg.SyncTimezone, false); err != nil {
				return err
			}
			if opts.To, err = parseDay(*to, rt.cfg.SyncTimezone, true); err != nil {
				return err
			}
			ref, err := rt.engine.BuildDataset(ctx, *competition, opts)
			if err != nil {
				return err
			}
			return printJSON(ref)
		}, nil

	case "train":
		competition := fs.String("competition", "", "competition id")
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		return func(ctx context.Context, rt *runtime) error {
			ref, err := rt.engine.TrainModel(ctx, domain.DatasetRef{
				CompetitionID: *competition,
				Key:           artifact.DatasetKey(*competition),
			})
			if err != nil {
				return err
			}
			return printJSON(ref)
		}, nil

	case "train-all":
		minMatches := fs.Int("min-matches", 0, "minimum finished matches, defaults to TRAIN_ALL_MIN_MATCHES")
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		return func(ctx context.Context, rt *runtime) error {
			results, err := rt.engine.TrainAll(ctx, *minMatches)
			out := make([]trainAllView, len(results))
			for i, r := range results {
				out[i] = trainAllView{
					CompetitionID: r.CompetitionID,
					Name:          r.Name,
					Dataset:       r.Dataset,
					Model:         r.Model,
					Error:         errString(r.Err),
				}
			}
			if printErr := printJSON(out); printErr != nil {
				return printErr
			}
			return err
		}, nil

	case "validate":
		competition := fs.String("competition", "", "competition id")
		ratio := fs.Float64("train-ratio", constants.ValidationTrainRatio, "share of rows used for fitting")
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		return func(ctx context.Context, rt *runtime) error {
			eval, err := rt.engine.Validate(ctx, domain.DatasetRef{CompetitionID: *competition}, *ratio)
			if err != nil {
				return err
			}
			return printJSON(eval)
		}, nil

	case "predict":
		competition := fs.String("competition", "", "competition id")
		version := fs.String("version", "", "model version, defaults to the latest")
		home := fs.String("home", "", "home team")
		away := fs.String("away", "", "away team")
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		return func(ctx context.Context, rt *runtime) error {
			ref := &domain.ModelRef{
				CompetitionID: *competition,
				Version:       *version,
				Key:           artifact.ModelKey(*competition, *version),
			}
			if *version == "" {
				var err error
				if ref, err = rt.engine.LatestModel(ctx, *competition); err != nil {
					return err
				}
			}
			pred, err := rt.engine.Predict(ctx, *ref, *home, *away)
			if err != nil {
				return err
			}
			return printJSON(pred)
		}, nil

	case "models":
		competition := fs.String("competition", "", "competition id")
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		return func(ctx context.Context, rt *runtime) error {
			refs, err := rt.engine.ModelVersions(ctx, *competition)
			if err != nil {
				return err
			}
			return printJSON(refs)
		}, nil

	case "train-classifier":
		competition := fs.String("competition", "", "competition id")
		ratio := fs.Float64("train-ratio", 0, "share of rows used for fitting, defaults to CLASSIFIER_TRAIN_RATIO")
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		return func(ctx context.Context, rt *runtime) error {
			ref, eval, err := rt.engine.TrainClassifier(ctx, domain.DatasetRef{
				CompetitionID: *competition,
				Key:           artifact.DatasetKey(*competition),
			}, *ratio)
			if err != nil {
				return err
			}
			return printJSON(classifierView{Classifier: ref, Holdout: eval})
		}, nil

	case "predict-classifier":
		competition := fs.String("competition", "", "competition id")
		version := fs.String("version", "", "classifier version, defaults to the latest")
		home := fs.String("home", "", "home team")
		away := fs.String("away", "", "away team")
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		return func(ctx context.Context, rt *runtime) error {
			ref := &domain.ClassifierRef{
				CompetitionID: *competition,
				Version:       *version,
				Key:           artifact.ClassifierKey(*competition, *version),
			}
			if *version == "" {
				var err error
				if ref, err = rt.engine.LatestClassifier(ctx, *competition); err != nil {
					return err
				}
			}
			pred, err := rt.engine.PredictClassifier(ctx, *ref, *home, *away)
			if err != nil {
				return err
			}
			return printJSON(pred)
		}, nil

	case "match":
		id := fs.String("id", "", "provider fixture id")
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		return func(ctx context.Context, rt *runtime) error {
			m, err := rt.engine.Match(ctx, *id)
			if err != nil {
				return err
			}
			return printJSON(newMatchView(m))
		}, nil

	case "competitions":
		minFinished := fs.Int("min-finished", 0, "only competitions with at least N finished matches")
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		return func(ctx context.Context, rt *runtime) error {
			comps, err := rt.engine.Competitions(ctx, *minFinished)
			if err != nil {
				return err
			}
			return printJSON(comps)
		}, nil

	case "schedule":
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		return func(ctx context.Context, rt *runtime) error {
			if err := rt.scheduler.Start(); err != nil {
				return err
			}
			<-ctx.Done()
			stopCtx, cancel := context.WithTimeout(context.Background(), constants.RequestTimeout)
			defer cancel()
			return rt.scheduler.Stop(stopCtx)
		}, nil

	case "help", "-h", "--help":
		fmt.Fprint(os.Stdout, usage)
		return nil, flag.ErrHelp
	}

	return nil, fmt.Errorf("unknown command %q\n\n%s", name, usage)
}

func runSync(ctx context.Context, rt *runtime, dates, required []string) error {
	loc := rt.cfg.SyncTimezone
	parsed, err := service.ParseDates(dates, loc)
	if err != nil {
		return err
	}
	req, err := service.ParseDates(required, loc)
	if err != nil {
		return err
	}

	report, err := rt.engine.SyncResults(ctx, service.SyncRequest{Dates: parsed, Required: req})
	if report != nil {
		if printErr := printJSON(newSyncView(report)); printErr != nil {
			return printErr
		}
	}
	return err
}

type syncDateView struct {
	Date      string `json:"date"`
	OK        bool   `json:"ok"`
	Fetched   int    `json:"fetched"`
	Created   int    `json:"created"`
	Updated   int    `json:"updated"`
	Unchanged int    `json:"unchanged"`
	Corrected int    `json:"corrected"`
	Skipped   int    `json:"skipped"`
	Error     string `json:"error,omitempty"`
}

type syncView struct {
	RunID      string         `json:"run_id"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Succeeded  int            `json:"succeeded"`
	Failed     int            `json:"failed"`
	Dates      []syncDateView `json:"dates"`
}

func newSyncView(r *domain.SyncReport) syncView {
	v := syncView{
		RunID:      r.RunID,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		Succeeded:  r.Succeeded(),
		Failed:     r.Failed(),
		Dates:      make([]syncDateView, len(r.Dates)),
	}
	for i, d := range r.Dates {
		v.Dates[i] = syncDateView{
			Date:      d.Date.Format("2006-01-02"),
			OK:        d.OK,
			Fetched:   d.Fetched,
			Created:   d.Created,
			Updated:   d.Updated,
			Unchanged: d.Unchanged,
			Corrected: d.Corrected,
			Skipped:   d.Skipped,
			Error:     errString(d.Err),
		}
	}
	return v
}

type trainAllView struct {
	CompetitionID string             `json:"competition_id"`
	Name          string             `json:"name"`
	Dataset       *domain.DatasetRef `json:"dataset,omitempty"`
	Model         *domain.ModelRef   `json:"model,omitempty"`
	Error         string             `json:"error,omitempty"`
}

type classifierView struct {
	Classifier *domain.ClassifierRef `json:"classifier"`
	Holdout    *domain.Evaluation    `json:"holdout"`
}

type matchView struct {
	ID             string             `json:"id"`
	ExternalID     string             `json:"external_id"`
	CompetitionID  string             `json:"competition_id"`
	Season         int                `json:"season"`
	Round          string             `json:"round,omitempty"`
	HomeTeam       string             `json:"home_team"`
	AwayTeam       string             `json:"away_team"`
	Kickoff        time.Time          `json:"kickoff"`
	HomeGoals      *int               `json:"home_goals"`
	AwayGoals      *int               `json:"away_goals"`
	Status         domain.MatchStatus `json:"status"`
	ProviderStatus string             `json:"provider_status"`
	UpdatedAt      time.Time          `json:"updated_at"`
}

func newMatchView(m *domain.Match) matchView {
	return matchView{
		ID:             m.ID,
		ExternalID:     m.ExternalID,
		CompetitionID:  m.CompetitionID,
		Season:         m.Season,
		Round:          m.Round,
		HomeTeam:       m.HomeTeam,
		AwayTeam:       m.AwayTeam,
		Kickoff:        m.Kickoff,
		HomeGoals:      m.HomeGoals,
		AwayGoals:      m.AwayGoals,
		Status:         m.Status,
		ProviderStatus: m.ProviderStatus,
		UpdatedAt:      m.UpdatedAt,
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// parseDay reads YYYY-MM-DD in loc. endOfDay moves the result to the last
// instant of that day so a "to" bound includes the whole day.
func parseDay(value string, loc *time.Location, endOfDay bool) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	d, err := time.ParseInLocation("2006-01-02", value, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, want YYYY-MM-DD", value)
	}
	if endOfDay {
		d = d.AddDate(0, 0, 1).Add(-time.Nanosecond)
	}
	return d, nil
}

type stringList []string

func (l *stringList) String() string {
	return strings.Join(*l, ",")
}

func (l *stringList) Set(v string) error {
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			*l = append(*l, part)
		}
	}
	return nil
}
