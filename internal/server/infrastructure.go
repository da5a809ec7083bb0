package server

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-news-ingest/internal/archive"
	"github.com/JakeFAU/realtime-news-ingest/internal/hash/sha256"
	"github.com/JakeFAU/realtime-news-ingest/internal/ingest"
	kafkapublisher "github.com/JakeFAU/realtime-news-ingest/internal/publisher/kafka"
	memorypublisher "github.com/JakeFAU/realtime-news-ingest/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/realtime-news-ingest/internal/publisher/pubsub"
	"github.com/JakeFAU/realtime-news-ingest/internal/publisher/webhook"
	"github.com/JakeFAU/realtime-news-ingest/internal/run"
	gcsstorage "github.com/JakeFAU/realtime-news-ingest/internal/storage/gcs"
	localstorage "github.com/JakeFAU/realtime-news-ingest/internal/storage/local"
	memorystorage "github.com/JakeFAU/realtime-news-ingest/internal/storage/memory"
	pgstore "github.com/JakeFAU/realtime-news-ingest/internal/storage/postgres"
	sqlitestore "github.com/JakeFAU/realtime-news-ingest/internal/storage/sqlite"
	"github.com/JakeFAU/realtime-news-ingest/internal/store"
)

const runsTable = "ingest_runs"

// setupStorage selects the article repository and run store. SQLite keeps run
// records in memory.
func setupStorage(ctx context.Context, app *App, ids ingest.IDGenerator) (store.Repository, error) {
	cfg := app.cfg
	switch cfg.Storage.Driver {
	case "postgres":
		pool, err := pgstore.NewPool(ctx, pgstore.PoolConfig{
			DSN:             cfg.DB.DSN,
			MaxConns:        cfg.DB.MaxConns,
			MinConns:        cfg.DB.MinConns,
			MaxConnLifetime: cfg.DB.MaxConnLifetime(),
		})
		if err != nil {
			return nil, fmt.Errorf("postgres pool init failed: %w", err)
		}
		app.addCloser("postgres", func() error {
			pool.Close()
			return nil
		})
		repo, err := pgstore.NewArticleRepository(pool, cfg.Storage.Table)
		if err != nil {
			return nil, fmt.Errorf("article repository init failed: %w", err)
		}
		runs, err := pgstore.NewRunStore(pool, runsTable)
		if err != nil {
			return nil, fmt.Errorf("run store init failed: %w", err)
		}
		if cfg.Storage.EnsureSchema {
			if err := repo.EnsureSchema(ctx); err != nil {
				return nil, fmt.Errorf("ensure articles schema: %w", err)
			}
			if err := runs.EnsureSchema(ctx); err != nil {
				return nil, fmt.Errorf("ensure runs schema: %w", err)
			}
		}
		app.runs = runs
		app.readiness = append(app.readiness, pool.Ping)
		app.logger.Info("using postgres storage", zap.String("table", cfg.Storage.Table))
		return repo, nil
	case "sqlite":
		db, err := sqlitestore.Open(ctx, cfg.DB.SQLitePath)
		if err != nil {
			return nil, err
		}
		repo, err := sqlitestore.NewArticleRepository(db, cfg.Storage.Table, ids)
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("article repository init failed: %w", err)
		}
		app.addCloser("sqlite", repo.Close)
		if cfg.Storage.EnsureSchema {
			if err := repo.EnsureSchema(ctx); err != nil {
				return nil, fmt.Errorf("ensure articles schema: %w", err)
			}
		}
		app.runs = memorystorage.NewRunStore()
		app.readiness = append(app.readiness, db.PingContext)
		app.logger.Info("using sqlite storage", zap.String("path", cfg.DB.SQLitePath))
		return repo, nil
	default:
		app.logger.Info("using in-memory storage")
		app.runs = memorystorage.NewRunStore()
		return memorystorage.NewArticleRepository(ids), nil
	}
}

// setupArchive returns a nil Archiver when archiving is disabled.
func setupArchive(ctx context.Context, app *App) (run.Archiver, error) {
	cfg := app.cfg.Archive
	var blobs ingest.BlobStore
	switch cfg.Backend {
	case "gcs":
		gcs, err := gcsstorage.Dial(ctx, gcsstorage.Config{Bucket: cfg.GCSBucket}, app.logger)
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		app.addCloser("gcs", gcs.Close)
		blobs = gcs
		app.logger.Info("archiving to gcs", zap.String("bucket", cfg.GCSBucket))
	case "local":
		local, err := localstorage.New(localstorage.Config{BaseDir: cfg.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		blobs = local
		app.logger.Info("archiving to local disk", zap.String("path", cfg.BaseDir))
	case "memory":
		blobs = memorystorage.NewBlobStore()
	default:
		app.logger.Info("raw html archiving disabled")
		return nil, nil
	}
	archiver, err := archive.New(blobs, sha256.New(), archive.Config{
		Prefix:      cfg.Prefix,
		ContentType: cfg.ContentType,
	}, app.logger.Named("archive"))
	if err != nil {
		return nil, fmt.Errorf("archiver init failed: %w", err)
	}
	return archiver, nil
}

// setupPublisher returns a nil Publisher when notifications are disabled.
func setupPublisher(ctx context.Context, app *App) (ingest.Publisher, error) {
	cfg := app.cfg.Notify
	switch cfg.Backend {
	case "memory":
		app.logger.Info("using in-memory publisher", zap.String("topic", cfg.Topic))
		return memorypublisher.New(), nil
	case "pubsub":
		p, err := gcppublisher.Dial(ctx, cfg.PubSub.ProjectID, cfg.Topic)
		if err != nil {
			return nil, fmt.Errorf("pubsub publisher init failed: %w", err)
		}
		app.addCloser("pubsub", p.Close)
		app.logger.Info("Pub/Sub publisher initialized",
			zap.String("project", cfg.PubSub.ProjectID),
			zap.String("topic", cfg.Topic),
		)
		return p, nil
	case "kafka":
		p, err := kafkapublisher.New(cfg.Kafka.Brokers)
		if err != nil {
			return nil, fmt.Errorf("kafka publisher init failed: %w", err)
		}
		app.addCloser("kafka", p.Close)
		app.logger.Info("kafka publisher initialized",
			zap.Strings("brokers", cfg.Kafka.Brokers),
			zap.String("topic", cfg.Topic),
		)
		return p, nil
	case "webhook":
		p, err := webhook.New(webhook.Config{
			URL:     cfg.Webhook.URL,
			Timeout: time.Duration(cfg.Webhook.TimeoutSeconds) * time.Second,
			Retries: cfg.Webhook.Retries,
		})
		if err != nil {
			return nil, fmt.Errorf("webhook publisher init failed: %w", err)
		}
		app.logger.Info("webhook publisher initialized", zap.String("url", cfg.Webhook.URL))
		return p, nil
	default:
		app.logger.Info("article notifications disabled")
		return nil, nil
	}
}
