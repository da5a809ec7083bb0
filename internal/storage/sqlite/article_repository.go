// Package sqlite stores canonical articles in an embedded SQLite database.
package sqlite

import (
	"context"
	"fmt"
	"regexp"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/JakeFAU/realtime-news-ingest/internal/ingest"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ArticleRepository implements store.Repository over SQLite.
type ArticleRepository struct {
	db    *sqlx.DB
	table string
	ids   ingest.IDGenerator
}

// Open connects to the SQLite file at path.
func Open(ctx context.Context, path string) (*sqlx.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("db.sqlite_path is required")
	}
	db, err := sqlx.ConnectContext(ctx, "sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite serializes writers; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	return db, nil
}

// NewArticleRepository wraps an open database.
func NewArticleRepository(db *sqlx.DB, table string, ids ingest.IDGenerator) (*ArticleRepository, error) {
	if db == nil {
		return nil, fmt.Errorf("database is required")
	}
	if ids == nil {
		return nil, fmt.Errorf("id generator is required")
	}
	if table == "" {
		table = "articles"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &ArticleRepository{db: db, table: table, ids: ids}, nil
}

// Close closes the database.
func (r *ArticleRepository) Close() error {
	return r.db.Close()
}

// EnsureSchema creates the article table and its unique url index.
func (r *ArticleRepository) EnsureSchema(ctx context.Context) error {
	statements := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id TEXT PRIMARY KEY,
	source TEXT NOT NULL,
	category TEXT NOT NULL,
	raw_category TEXT NOT NULL DEFAULT '',
	title TEXT NOT NULL,
	url TEXT,
	content TEXT NOT NULL,
	published_at TIMESTAMP NOT NULL,
	inserted_at TIMESTAMP NOT NULL
)`, r.table),
		fmt.Sprintf(`CREATE UNIQUE INDEX IF NOT EXISTS %s_url_key ON %s (url)`, r.table, r.table),
	}
	for _, stmt := range statements {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
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
	query, args, err := sq.Select("url").From(r.table).Where(sq.Eq{"url": urls}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build lookup: %w", err)
	}
	var found []string
	if err := r.db.SelectContext(ctx, &found, query, args...); err != nil {
		return nil, fmt.Errorf("lookup urls: %w", err)
	}
	return found, nil
}

// InsertBatch writes all articles in one statement with generated UUIDv7 ids.
func (r *ArticleRepository) InsertBatch(ctx context.Context, articles []ingest.Article) ([]ingest.InsertedRow, error) {
	if len(articles) == 0 {
		return nil, nil
	}
	builder := sq.Insert(r.table).
		Columns("id", "source", "category", "raw_category", "title", "url", "content", "published_at", "inserted_at")
	for _, a := range articles {
		id, err := r.ids.NewID()
		if err != nil {
			return nil, err
		}
		builder = builder.Values(id, a.Source, a.Category, a.RawCategory, a.Title, nullableURL(a.URL), a.Content, a.PublishedAt, a.InsertedAt)
	}
	query, args, err := builder.Suffix("ON CONFLICT (url) DO NOTHING RETURNING id, COALESCE(url, '') AS url").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build insert: %w", err)
	}

	rows, err := r.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("insert articles: %w", err)
	}
	defer rows.Close()

	var inserted []ingest.InsertedRow
	for rows.Next() {
		var row struct {
			ID  string `db:"id"`
			URL string `db:"url"`
		}
		if err := rows.StructScan(&row); err != nil {
			return nil, fmt.Errorf("scan inserted row: %w", err)
		}
		inserted = append(inserted, ingest.InsertedRow{ID: row.ID, URL: row.URL})
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
