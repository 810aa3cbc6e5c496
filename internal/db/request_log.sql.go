package db

import (
	"context"
	"time"
)

const incrementRequestCount = `INSERT INTO api_request_log (day, request_count, updated_at)
VALUES (?, 1, ?)
ON CONFLICT (day) DO UPDATE SET
    request_count = api_request_log.request_count + 1,
    updated_at = excluded.updated_at
RETURNING request_count`

func (q *Queries) IncrementRequestCount(ctx context.Context, day string, updatedAt time.Time) (int64, error) {
	row := q.db.QueryRowContext(ctx, q.rebind(incrementRequestCount), day, updatedAt)
	var count int64
	err := row.Scan(&count)
	return count, err
}
