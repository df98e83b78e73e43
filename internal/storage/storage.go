// Package storage records what was ingested: documents, their chunks and each ingestion run.
package storage

import (
	"context"

	"github.com/hyperjump/primr/internal/models"
)

// Catalog persists the ingestion catalog. The vector file stays the store of
// record for embeddings; the catalog answers provenance and status questions.
type Catalog interface {
	// ReplaceCatalog swaps the whole document and chunk set in one transaction.
	ReplaceCatalog(ctx context.Context, docs []*models.Document, chunks []*models.DocumentChunk) error
	ListDocuments(ctx context.Context, offset, limit int) ([]*models.Document, error)
	GetChunksByDocumentID(ctx context.Context, docID string) ([]*models.DocumentChunk, error)

	RecordRun(ctx context.Context, run *models.IngestRun) error
	// LastRun returns the most recent run, or nil when none is recorded.
	LastRun(ctx context.Context) (*models.IngestRun, error)

	CountDocuments(ctx context.Context) (int64, error)
	CountChunks(ctx context.Context) (int64, error)

	Close() error
}
