package memory

import (
	"context"
	"sync"

	"github.com/JakeFAU/realtime-news-ingest/internal/ingest"
)

// ArticleRepository is a map-backed store.Repository with a unique url index.
type ArticleRepository struct {
	mu    sync.RWMutex
	ids   ingest.IDGenerator
	byURL map[string]string
	rows  []ingest.Article
}

// NewArticleRepository constructs an empty repository.
func NewArticleRepository(ids ingest.IDGenerator) *ArticleRepository {
	return &ArticleRepository{ids: ids, byURL: make(map[string]string)}
}

// LookupByURLs returns the urls already stored.
func (r *ArticleRepository) LookupByURLs(_ context.Context, urls []string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var found []string
	for _, u := range urls {
		if _, ok := r.byURL[u]; ok {
			found = append(found, u)
		}
	}
	return found, nil
}

// InsertBatch stores the articles, dropping urls that are already present.
func (r *ArticleRepository) InsertBatch(ctx context.Context, articles []ingest.Article) ([]ingest.InsertedRow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var inserted []ingest.InsertedRow
	for _, article := range articles {
		if err := ctx.Err(); err != nil {
			return inserted, err
		}
		if article.URL != "" {
			if _, ok := r.byURL[article.URL]; ok {
				continue
			}
		}
		id, err := r.ids.NewID()
		if err != nil {
			return inserted, err
		}
		article.ID = id
		if article.URL != "" {
			r.byURL[article.URL] = id
		}
		r.rows = append(r.rows, article)
		inserted = append(inserted, ingest.InsertedRow{ID: id, URL: article.URL})
	}
	return inserted, nil
}

// Articles returns a snapshot of every stored article in insertion order.
func (r *ArticleRepository) Articles() []ingest.Article {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ingest.Article, len(r.rows))
	copy(out, r.rows)
	return out
}
