package db

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
)

type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

// Queries are written with ? placeholders; postgres gets $n.
func New(db DBTX, driver string) *Queries {
	return &Queries{db: db, driver: driver}
}

type Queries struct {
	db     DBTX
	driver string
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{
		db:     tx,
		driver: q.driver,
	}
}

func (q *Queries) rebind(query string) string {
	if q.driver != "postgres" {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
