package dataset

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
	"time"

	"football-predictor/internal/domain"
)

const metaPrefix = "# "

var baseColumns = []string{
	"match_id", "kickoff", "home_team", "away_team",
	"home_goals", "away_goals", "total_goals", "is_over_2_5",
}

// required to train; the rest may be missing from older files
var requiredColumns = []string{
	"match_id", "kickoff", "home_team", "away_team", "home_goals", "away_goals",
}

type featureColumn struct {
	name string
	ptr  func(r *domain.DatasetRow) **float64
}

var featureColumns = []featureColumn{
	{"home_attack_form_5", func(r *domain.DatasetRow) **float64 { return &r.HomeAttackForm5 }},
	{"away_attack_form_5", func(r *domain.DatasetRow) **float64 { return &r.AwayAttackForm5 }},
	{"home_defensive_fragility_5", func(r *domain.DatasetRow) **float64 { return &r.HomeDefensiveFragility5 }},
	{"away_defensive_fragility_5", func(r *domain.DatasetRow) **float64 { return &r.AwayDefensiveFragility5 }},
	{"home_attack_form_10", func(r *domain.DatasetRow) **float64 { return &r.HomeAttackForm10 }},
	{"away_attack_form_10", func(r *domain.DatasetRow) **float64 { return &r.AwayAttackForm10 }},
	{"home_defensive_fragility_10", func(r *domain.DatasetRow) **float64 { return &r.HomeDefensiveFragility10 }},
	{"away_defensive_fragility_10", func(r *domain.DatasetRow) **float64 { return &r.AwayDefensiveFragility10 }},
	{"home_scored_avg_5", func(r *domain.DatasetRow) **float64 { return &r.HomeScoredAvg5 }},
	{"home_conceded_avg_5", func(r *domain.DatasetRow) **float64 { return &r.HomeConcededAvg5 }},
	{"away_scored_avg_5", func(r *domain.DatasetRow) **float64 { return &r.AwayScoredAvg5 }},
	{"away_conceded_avg_5", func(r *domain.DatasetRow) **float64 { return &r.AwayConcededAvg5 }},
	{"h2h_total_goals_avg_3", func(r *domain.DatasetRow) **float64 { return &r.H2HTotalGoalsAvg3 }},
}

func Columns() []string {
	cols := make([]string, 0, len(baseColumns)+len(featureColumns))
	cols = append(cols, baseColumns...)
	for _, fc := range featureColumns {
		cols = append(cols, fc.name)
	}
	return cols
}

// Encode writes the dataset as CSV preceded by one query-encoded metadata line:
//
//	# built_at=2024-02-23T10%3A00%3A00Z&competition=Premier+League&version=...
func Encode(ds *domain.Dataset) ([]byte, error) {
	meta := url.Values{}
	meta.Set("competition", ds.CompetitionID)
	meta.Set("version", ds.Version)
	meta.Set("built_at", ds.BuiltAt.UTC().Format(time.RFC3339))

	var buf bytes.Buffer
	buf.WriteString(metaPrefix)
	buf.WriteString(meta.Encode())
	buf.WriteByte('\n')

	w := csv.NewWriter(&buf)
	if err := w.Write(Columns()); err != nil {
		return nil, err
	}

	record := make([]string, 0, len(baseColumns)+len(featureColumns))
	for i := range ds.Rows {
		r := &ds.Rows[i]
		over := "0"
		if r.IsOver25() {
			over = "1"
		}
		record = append(record[:0],
			r.MatchID,
			r.Kickoff.UTC().Format(time.RFC3339),
			r.HomeTeam,
			r.AwayTeam,
			strconv.Itoa(r.HomeGoals),
			strconv.Itoa(r.AwayGoals),
			strconv.Itoa(r.TotalGoals()),
			over,
		)
		for _, fc := range featureColumns {
			record = append(record, formatFeature(*fc.ptr(r)))
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("failed to encode dataset: %w", err)
	}
	return buf.Bytes(), nil
}

// FeatureNames lists the rolling feature columns in a fixed order.
func FeatureNames() []string {
	names := make([]string, len(featureColumns))
	for i, fc := range featureColumns {
		names[i] = fc.name
	}
	return names
}

// FeatureValues returns the row's features in FeatureNames order. A feature
// without history reads as 0.
func FeatureValues(r domain.DatasetRow) []float64 {
	values := make([]float64, len(featureColumns))
	for i, fc := range featureColumns {
		if v := *fc.ptr(&r); v != nil {
			values[i] = *v
		}
	}
	return values
}

func formatFeature(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', 4, 64)
}

// Decode parses a dataset written by Encode. Any structural problem is
// reported as a training error, since the only consumer is the trainer.
func Decode(data []byte) (*domain.Dataset, error) {
	ds := &domain.Dataset{}

	br := bufio.NewReader(bytes.NewReader(data))
	if peek, err := br.Peek(len(metaPrefix)); err == nil && string(peek) == metaPrefix {
		line, err := br.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, domain.TrainingError("failed to read dataset metadata: %v", err)
		}
		if err := parseMeta(strings.TrimSpace(strings.TrimPrefix(line, metaPrefix)), ds); err != nil {
			return nil, domain.TrainingError("invalid dataset metadata: %v", err)
		}
	}

	r := csv.NewReader(br)
	r.ReuseRecord = true

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, domain.TrainingError("dataset is empty")
	}
	if err != nil {
		return nil, domain.TrainingError("failed to read dataset header: %v", err)
	}

	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.TrimSpace(name)] = i
	}
	var missing []string
	for _, col := range requiredColumns {
		if _, ok := index[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, domain.TrainingError("dataset is missing columns: %s", strings.Join(missing, ", "))
	}

	line := 1
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, domain.TrainingError("dataset row %d: %v", line, err)
		}

		row, err := decodeRow(record, index)
		if err != nil {
			return nil, domain.TrainingError("dataset row %d: %v", line, err)
		}
		ds.Rows = append(ds.Rows, row)
	}
	return ds, nil
}

func decodeRow(record []string, index map[string]int) (domain.DatasetRow, error) {
	get := func(col string) string {
		i, ok := index[col]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	row := domain.DatasetRow{
		MatchID:  get("match_id"),
		HomeTeam: get("home_team"),
		AwayTeam: get("away_team"),
	}
	if row.HomeTeam == "" || row.AwayTeam == "" {
		return row, fmt.Errorf("missing team name")
	}

	kickoff, err := time.Parse(time.RFC3339, get("kickoff"))
	if err != nil {
		return row, fmt.Errorf("invalid kickoff %q", get("kickoff"))
	}
	row.Kickoff = kickoff.UTC()

	if row.HomeGoals, err = parseGoals(get("home_goals")); err != nil {
		return row, err
	}
	if row.AwayGoals, err = parseGoals(get("away_goals")); err != nil {
		return row, err
	}

	for _, fc := range featureColumns {
		raw := get(fc.name)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return row, fmt.Errorf("invalid %s %q", fc.name, raw)
		}
		*fc.ptr(&row) = &v
	}
	return row, nil
}

func parseGoals(raw string) (int, error) {
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid goals %q", raw)
	}
	return n, nil
}

func parseMeta(line string, ds *domain.Dataset) error {
	meta, err := url.ParseQuery(line)
	if err != nil {
		return err
	}
	ds.CompetitionID = meta.Get("competition")
	ds.Version = meta.Get("version")
	if raw := meta.Get("built_at"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return fmt.Errorf("invalid built_at %q", raw)
		}
		ds.BuiltAt = t
	}
	return nil
}
