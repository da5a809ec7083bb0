package store

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-news-ingest/internal/ingest"
	"github.com/JakeFAU/realtime-news-ingest/internal/metrics"
)

// Repository is the storage collaborator behind the gateway.
type Repository interface {
	// LookupByURLs returns the subset of urls already stored.
	LookupByURLs(ctx context.Context, urls []string) ([]string, error)
	// InsertBatch writes the articles and returns the rows actually inserted.
	// Rows dropped by a unique conflict on url are omitted from the result.
	InsertBatch(ctx context.Context, articles []ingest.Article) ([]ingest.InsertedRow, error)
}

// Gateway deduplicates articles by URL before inserting them.
type Gateway struct {
	repo   Repository
	logger *zap.Logger
}

// NewGateway wraps a repository.
func NewGateway(repo Repository, logger *zap.Logger) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{repo: repo, logger: logger}
}

// Persist performs one batched lookup and one batched insert. Articles whose
// URL is already stored, or repeated earlier in the batch, are skipped.
// Articles without a URL are always attempted.
func (g *Gateway) Persist(ctx context.Context, articles []ingest.Article) (ingest.PersistResult, error) {
	result := ingest.PersistResult{Checked: len(articles), InsertedIDs: []string{}}
	if len(articles) == 0 {
		return result, nil
	}
	if g.repo == nil {
		return result, fmt.Errorf("%w: repository is not configured", ingest.ErrPersistence)
	}
	if err := ctx.Err(); err != nil {
		return result, fmt.Errorf("%w: %w", ingest.ErrPersistence, err)
	}

	urls := distinctURLs(articles)
	stored := make(map[string]struct{})
	if len(urls) > 0 {
		existing, err := g.repo.LookupByURLs(ctx, urls)
		if err != nil {
			return result, fmt.Errorf("%w: lookup urls: %w", ingest.ErrPersistence, err)
		}
		for _, u := range existing {
			stored[u] = struct{}{}
		}
	}

	fresh := make([]ingest.Article, 0, len(articles))
	for _, article := range articles {
		if article.URL == "" {
			fresh = append(fresh, article)
			continue
		}
		if _, dup := stored[article.URL]; dup {
			g.logger.Debug("skipping stored url", zap.String("url", article.URL))
			continue
		}
		stored[article.URL] = struct{}{}
		fresh = append(fresh, article)
	}

	if len(fresh) > 0 {
		rows, err := g.repo.InsertBatch(ctx, fresh)
		if err != nil {
			return result, fmt.Errorf("%w: insert batch: %w", ingest.ErrPersistence, err)
		}
		for _, row := range rows {
			result.InsertedIDs = append(result.InsertedIDs, row.ID)
		}
		result.Rows = rows
		result.Inserted = len(rows)
	}
	result.Skipped = result.Checked - result.Inserted

	metrics.ObservePersist(result.Inserted, result.Skipped)
	g.logger.Info("persisted articles",
		zap.Int("checked", result.Checked),
		zap.Int("inserted", result.Inserted),
		zap.Int("skipped", result.Skipped),
	)
	return result, nil
}

func distinctURLs(articles []ingest.Article) []string {
	seen := make(map[string]struct{}, len(articles))
	out := make([]string, 0, len(articles))
	for _, article := range articles {
		if article.URL == "" {
			continue
		}
		if _, ok := seen[article.URL]; ok {
			continue
		}
		seen[article.URL] = struct{}{}
		out = append(out, article.URL)
	}
	return out
}
