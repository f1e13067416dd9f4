package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/docoho/emoji/internal/store"
)

// Postgres runs catalog queries against the emojis table.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// List returns one page of matching emojis plus the total count over the
// filtered, unpaginated set.
func (p *Postgres) List(ctx context.Context, q Query) ([]store.Emoji, int, error) {
	countSQL, dataSQL, args := buildListSQL(q)

	var total int
	if err := p.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count emojis: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list emojis: %w", err)
	}
	defer rows.Close()

	items := make([]store.Emoji, 0)
	for rows.Next() {
		var item store.Emoji
		if err := rows.Scan(
			&item.ID,
			&item.Symbol,
			&item.Title,
			&item.Description,
			&item.Category,
			&item.Keywords,
			&item.SubmitterEmail,
			&item.SubmitterID,
			&item.CreatedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("scan emoji: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate emojis: %w", err)
	}
	return items, total, nil
}

func buildListSQL(q Query) (countSQL, dataSQL string, args []any) {
	var where []string
	argN := 1

	if q.Search != "" {
		where = append(where, fmt.Sprintf(
			"(title ILIKE $%d OR description ILIKE $%d OR keywords ILIKE $%d)", argN, argN, argN))
		args = append(args, "%"+q.Search+"%")
		argN++
	}
	if q.Category != "" {
		where = append(where, fmt.Sprintf("category = $%d", argN))
		args = append(args, q.Category)
		argN++
	}

	var whereSQL string
	if len(where) > 0 {
		whereSQL = " WHERE " + strings.Join(where, " AND ")
	}

	countSQL = "SELECT count(*) FROM emojis" + whereSQL
	dataSQL = fmt.Sprintf(
		"SELECT id, symbol, title, description, category, keywords, submitter_email, submitter_id, created_at"+
			" FROM emojis%s ORDER BY %s LIMIT %d OFFSET %d",
		whereSQL, q.Sort.orderClause(), q.Limit, q.Offset)
	return countSQL, dataSQL, args
}
