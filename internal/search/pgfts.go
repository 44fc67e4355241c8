package search

import (
	"context"
	"database/sql"
	"fmt"
)

// PgFTS implements Searcher over the posts.fts generated column.
type PgFTS struct {
	db *sql.DB
}

func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true: when Postgres is down the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

func (p *PgFTS) Search(ctx context.Context, q Query) ([]Result, int, error) {
	q = q.normalized()
	if q.Text == "" {
		return nil, 0, nil
	}

	const where = `status = 'published' AND fts @@ plainto_tsquery('simple', $1)`

	var total int
	if err := p.db.QueryRowContext(ctx, `SELECT count(*) FROM posts WHERE `+where, q.Text).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, `
		SELECT id, slug, title, coalesce(excerpt, ''),
			ts_headline('simple', content, plainto_tsquery('simple', $1), 'MaxFragments=1,MaxWords=30,StartSel=<mark>,StopSel=</mark>')
		FROM posts
		WHERE `+where+`
		ORDER BY ts_rank(fts, plainto_tsquery('simple', $1)) DESC, published_at DESC
		LIMIT $2 OFFSET $3
	`, q.Text, q.Limit, q.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	results := make([]Result, 0)
	for rows.Next() {
		var (
			r       Result
			excerpt string
		)
		if err := rows.Scan(&r.ID, &r.Slug, &r.Title, &excerpt, &r.Snippet); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		r.Snippet = snippetOf(excerpt, r.Snippet)
		results = append(results, r)
	}
	return results, total, rows.Err()
}
