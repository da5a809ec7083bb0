// Package archive stores the raw HTML of inserted articles in a blob store.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-news-ingest/internal/ingest"
)

// DefaultContentType is used when no content type is configured.
const DefaultContentType = "text/html; charset=utf-8"

// Config controls object naming.
type Config struct {
	Prefix      string
	ContentType string
}

// Archiver writes documents under content-addressed keys:
// <prefix>/<source>/<digest[:2]>/<digest>.html.
type Archiver struct {
	store       ingest.BlobStore
	hasher      ingest.Hasher
	prefix      string
	contentType string
	logger      *zap.Logger
}

// New constructs an Archiver.
func New(store ingest.BlobStore, hasher ingest.Hasher, cfg Config, logger *zap.Logger) (*Archiver, error) {
	if store == nil {
		return nil, ingest.Configf("archive blob store is required")
	}
	if hasher == nil {
		return nil, ingest.Configf("archive hasher is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	contentType := cfg.ContentType
	if contentType == "" {
		contentType = DefaultContentType
	}
	return &Archiver{
		store:       store,
		hasher:      hasher,
		prefix:      strings.Trim(cfg.Prefix, "/"),
		contentType: contentType,
		logger:      logger,
	}, nil
}

// Archive stores body for the given source and returns the object URI.
func (a *Archiver) Archive(ctx context.Context, sourceID string, body []byte) (string, error) {
	if len(body) == 0 {
		return "", fmt.Errorf("archive: empty document")
	}
	digest, err := a.hasher.Hash(body)
	if err != nil {
		return "", fmt.Errorf("archive: hash document: %w", err)
	}
	key := a.Key(sourceID, digest)
	uri, err := a.store.PutObject(ctx, key, a.contentType, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("archive: put %s: %w", key, err)
	}
	a.logger.Debug("archived document", zap.String("source", sourceID), zap.String("uri", uri))
	return uri, nil
}

// Key builds the object key for a digest.
func (a *Archiver) Key(sourceID, digest string) string {
	shard := digest
	if len(shard) > 2 {
		shard = shard[:2]
	}
	parts := []string{sourceID, shard, digest + ".html"}
	if a.prefix != "" {
		parts = append([]string{a.prefix}, parts...)
	}
	return path.Join(parts...)
}
