package postgres

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/JakeFAU/realtime-news-ingest/internal/ingest"
)

// ArticleRepository stores canonical articles with a unique index on url.
type ArticleRepository struct {
	db    DB
	table string
}

// NewArticleRepository constructs a repository over an existing pool.
func NewArticleRepository(db DB, table string) (*ArticleRepository, error) {
	if db == nil {
		return nil, fmt.Errorf("pool is required")
	}
	table, err := checkTable(table, "articles")
	if err != nil {
		return nil, err
	}
	return &ArticleRepository{db: db, table: table}, nil
}

// Close releases the underlying pool resources.
func (r *ArticleRepository) Close() {
	if r == nil || r.db == nil {
		return
	}
	r.db.Close()
}

// EnsureSchema creates the article table and its unique url index.
func (r *ArticleRepository) EnsureSchema(ctx context.Context) error {
	statements := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	source TEXT NOT NULL,
	category TEXT NOT NULL,
	raw_category TEXT NOT NULL DEFAULT '',
	title TEXT NOT NULL,
	url TEXT,
	content TEXT NOT NULL,
	published_at TIMESTAMPTZ NOT NULL,
	inserted_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`, r.table),
		fmt.Sprintf(`CREATE UNIQUE INDEX IF NOT EXISTS %s_url_key ON %s (url)`, r.table, r.table),
	}
	for _, stmt := range statements {
		if _, err := r.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// LookupByURLs returns the urls already present in the table.
func (r *ArticleRepository) LookupByURLs(ctx context.Context, urls []string) ([]string, error) {
	if len(urls) == 0 {
		return nil, nil
	}
	query, args, err := psql.Select("url").From(r.table).Where(sq.Eq{"url": urls}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build lookup: %w", err)
	}
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("lookup urls: %w", err)
	}
	defer rows.Close()

	var found []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("scan url: %w", err)
		}
		found = append(found, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate urls: %w", err)
	}
	return found, nil
}

// InsertBatch writes all articles in one statement. Conflicting urls are
// dropped by the database and absent from the returned rows.
func (r *ArticleRepository) InsertBatch(ctx context.Context, articles []ingest.Article) ([]ingest.InsertedRow, error) {
	if len(articles) == 0 {
		return nil, nil
	}
	builder := psql.Insert(r.table).
		Columns("source", "category", "raw_category", "title", "url", "content", "published_at", "inserted_at")
	for _, a := range articles {
		builder = builder.Values(a.Source, a.Category, a.RawCategory, a.Title, nullableURL(a.URL), a.Content, a.PublishedAt, a.InsertedAt)
	}
	query, args, err := builder.Suffix("ON CONFLICT (url) DO NOTHING RETURNING id::text, COALESCE(url, '')").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build insert: %w", err)
	}
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("insert articles: %w", err)
	}
	defer rows.Close()

	var inserted []ingest.InsertedRow
	for rows.Next() {
		var row ingest.InsertedRow
		if err := rows.Scan(&row.ID, &row.URL); err != nil {
			return nil, fmt.Errorf("scan inserted row: %w", err)
		}
		inserted = append(inserted, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate inserted rows: %w", err)
	}
	return inserted, nil
}

func nullableURL(u string) any {
	if u == "" {
		return nil
	}
	return u
}
