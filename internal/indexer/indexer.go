package indexer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/hyperjump/primr/internal/embedding"
	"github.com/hyperjump/primr/internal/models"
	"github.com/hyperjump/primr/internal/storage"
	"github.com/hyperjump/primr/internal/vector"
	"github.com/hyperjump/primr/pkg/utils"
	"go.uber.org/zap"
)

// ErrNoDocuments means the data directory held no readable, non-empty documents.
var ErrNoDocuments = errors.New("no documents found")

// Metadata keys written for every chunk.
const (
	MetaSource      = "source"
	MetaFileName    = "file_name"
	MetaChunkIndex  = "chunk_index"
	MetaProcessedAt = "processed_at"
	MetaDocumentID  = "document_id"
)

// Indexer rebuilds the vector file (and, when configured, the catalog) from a directory of documents.
type Indexer struct {
	embedder    embedding.Embedder
	splitter    *Splitter
	vectorsPath string
	extensions  []string
	catalog     storage.Catalog
	logger      *zap.Logger // optional; when set, logs progress
	now         func() time.Time
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithLogger sets a logger for progress output (file loaded, chunks created, etc.).
func WithLogger(l *zap.Logger) IndexerOption {
	return func(idx *Indexer) { idx.logger = l }
}

// WithCatalog records documents, chunks and runs in c.
func WithCatalog(c storage.Catalog) IndexerOption {
	return func(idx *Indexer) { idx.catalog = c }
}

// WithExtensions sets which file extensions are ingested (default .md and .txt).
func WithExtensions(exts []string) IndexerOption {
	return func(idx *Indexer) {
		if len(exts) > 0 {
			idx.extensions = exts
		}
	}
}

// NewIndexer creates an indexer that writes the vector file to vectorsPath.
func NewIndexer(embedder embedding.Embedder, splitter *Splitter, vectorsPath string, opts ...IndexerOption) *Indexer {
	idx := &Indexer{
		embedder:    embedder,
		splitter:    splitter,
		vectorsPath: vectorsPath,
		extensions:  []string{".md", ".txt"},
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(idx)
	}
	idx.logger = utils.OrNop(idx.logger)
	return idx
}

type loadedDoc struct {
	doc    *models.Document
	chunks []string
}

// Ingest loads every matching file directly inside dataDir, splits and embeds it, and
// atomically replaces the vector file. Unreadable files are logged and skipped.
// It returns the new store so a running process can swap it in without re-reading the file.
func (idx *Indexer) Ingest(ctx context.Context, dataDir string) (*vector.Store, *models.IngestReport, error) {
	started := idx.now()
	run := &models.IngestRun{ID: uuid.NewString(), StartedAt: started}
	report := &models.IngestReport{
		RunID:          run.ID,
		Files:          []string{},
		EmbeddingModel: idx.embedder.Model(),
		VectorsPath:    idx.vectorsPath,
	}

	store, err := idx.ingest(ctx, dataDir, run, report)
	run.FinishedAt = idx.now()
	report.DurationMS = run.FinishedAt.Sub(started).Milliseconds()
	if err != nil {
		run.Error = err.Error()
		idx.logger.Error("ingestion failed", zap.String("data_dir", dataDir), zap.Error(err))
	}
	if idx.catalog != nil {
		if recErr := idx.catalog.RecordRun(context.WithoutCancel(ctx), run); recErr != nil {
			idx.logger.Warn("failed to record ingest run", zap.Error(recErr))
		}
	}
	if err != nil {
		return nil, report, err
	}
	idx.logger.Info("ingestion completed",
		zap.Int("files", len(report.Files)),
		zap.Int("chunks", report.Chunks),
		zap.Int("dimensions", report.Dimensions),
		zap.Int64("duration_ms", report.DurationMS))
	return store, report, nil
}

func (idx *Indexer) ingest(ctx context.Context, dataDir string, run *models.IngestRun, report *models.IngestReport) (*vector.Store, error) {
	paths, err := storage.ListDataFiles(dataDir, idx.extensions)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dataDir, err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoDocuments, dataDir)
	}
	idx.logger.Info("starting ingestion", zap.String("data_dir", dataDir), zap.Int("files", len(paths)))

	var loaded []loadedDoc
	var texts []string
	for _, p := range paths {
		ld, err := idx.load(p, run.StartedAt)
		if err != nil {
			idx.logger.Warn("skipping document", zap.String("path", p), zap.Error(err))
			report.Skipped = append(report.Skipped, p)
			continue
		}
		loaded = append(loaded, ld)
		report.Files = append(report.Files, p)
		texts = append(texts, ld.chunks...)
		idx.logger.Debug("document loaded", zap.String("path", p), zap.Int("chunks", len(ld.chunks)))
	}
	run.Files = len(loaded)
	run.Chunks = len(texts)
	report.Chunks = len(texts)
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: %d files had no usable content", ErrNoDocuments, len(paths))
	}

	embeddings, err := idx.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed chunks: %w", err)
	}
	if len(embeddings) != len(texts) {
		return nil, fmt.Errorf("embed chunks: got %d vectors for %d chunks", len(embeddings), len(texts))
	}

	processedAt := run.StartedAt.Format(time.RFC3339Nano)
	records := make([]vector.Record, 0, len(texts))
	docs := make([]*models.Document, 0, len(loaded))
	var chunks []*models.DocumentChunk
	i := 0
	for _, ld := range loaded {
		docs = append(docs, ld.doc)
		for ci, text := range ld.chunks {
			records = append(records, vector.Record{
				Text: text,
				Metadata: map[string]any{
					MetaSource:      ld.doc.Source,
					MetaFileName:    ld.doc.FileName,
					MetaChunkIndex:  ci,
					MetaProcessedAt: processedAt,
					MetaDocumentID:  ld.doc.ID,
				},
				Embedding: embeddings[i],
			})
			chunks = append(chunks, &models.DocumentChunk{
				ID:         uuid.NewString(),
				DocumentID: ld.doc.ID,
				Content:    text,
				ChunkIndex: ci,
				Embedding:  embeddings[i],
				CreatedAt:  run.StartedAt,
			})
			i++
		}
	}

	store, err := vector.New(idx.embedder.Model(), records, processedAt)
	if err != nil {
		return nil, fmt.Errorf("build vector store: %w", err)
	}
	if err := vector.Save(idx.vectorsPath, store); err != nil {
		return nil, err
	}
	run.VectorIndexCreated = true
	report.Dimensions = store.Dimensions()

	if idx.catalog != nil {
		if err := idx.catalog.ReplaceCatalog(ctx, docs, chunks); err != nil {
			return nil, fmt.Errorf("update catalog: %w", err)
		}
	}
	return store, nil
}

func (idx *Indexer) load(path string, at time.Time) (loadedDoc, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return loadedDoc{}, err
	}
	sum := sha256.Sum256(raw)
	chunks := idx.splitter.Split(Preprocess(string(raw)))
	if len(chunks) == 0 {
		return loadedDoc{}, fmt.Errorf("document is empty")
	}
	return loadedDoc{
		doc: &models.Document{
			ID:            uuid.NewString(),
			Source:        path,
			FileName:      filepath.Base(path),
			SizeBytes:     int64(len(raw)),
			ContentSHA256: hex.EncodeToString(sum[:]),
			ChunkCount:    len(chunks),
			IngestedAt:    at,
		},
		chunks: chunks,
	}, nil
}
