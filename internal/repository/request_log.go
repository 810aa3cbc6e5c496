package repository

import (
	"context"
	"fmt"
	"time"

	"football-predictor/internal/db"

	"github.com/rs/zerolog"
)

const requestDayLayout = "2006-01-02"

// RequestLogRepository counts provider calls per UTC day.
type RequestLogRepository struct {
	queries *db.Queries
	logger  zerolog.Logger
}

func NewRequestLogRepository(queries *db.Queries, logger zerolog.Logger) *RequestLogRepository {
	return &RequestLogRepository{
		queries: queries,
		logger:  logger,
	}
}

// Increment records one request on the day of at and returns the new total.
func (r *RequestLogRepository) Increment(ctx context.Context, at time.Time) (int, error) {
	day := at.UTC().Format(requestDayLayout)
	count, err := r.queries.IncrementRequestCount(ctx, day, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to increment request count for %s: %w", day, err)
	}
	return int(count), nil
}
