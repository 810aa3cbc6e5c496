package db

import (
	"context"
	"time"
)

// The WHERE clause keeps repeated syncs from rewriting unchanged rows.
const upsertCompetition = `INSERT INTO competitions (id, name, country, created_at, updated_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
    name = excluded.name,
    country = excluded.country,
    updated_at = excluded.updated_at
WHERE competitions.name <> excluded.name OR competitions.country <> excluded.country`

type UpsertCompetitionParams struct {
	ID        string
	Name      string
	Country   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (q *Queries) UpsertCompetition(ctx context.Context, arg UpsertCompetitionParams) error {
	_, err := q.db.ExecContext(ctx, q.rebind(upsertCompetition),
		arg.ID,
		arg.Name,
		arg.Country,
		arg.CreatedAt,
		arg.UpdatedAt,
	)
	return err
}

const listCompetitionsWithFinished = `SELECT m.competition_id,
       COALESCE(c.name, ''),
       COALESCE(c.country, ''),
       COUNT(*) AS finished_matches
FROM matches m
LEFT JOIN competitions c ON c.id = m.competition_id
WHERE m.status = 'finished'
GROUP BY m.competition_id, c.name, c.country
HAVING COUNT(*) >= ?
ORDER BY COALESCE(c.country, ''), COALESCE(c.name, ''), m.competition_id`

func (q *Queries) ListCompetitionsWithFinished(ctx context.Context, minFinished int64) ([]CompetitionWithCount, error) {
	rows, err := q.db.QueryContext(ctx, q.rebind(listCompetitionsWithFinished), minFinished)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []CompetitionWithCount
	for rows.Next() {
		var i CompetitionWithCount
		if err := rows.Scan(&i.ID, &i.Name, &i.Country, &i.FinishedMatches); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
