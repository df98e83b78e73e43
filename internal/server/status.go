package server

import (
	"context"
	"os"
	"time"

	"github.com/hyperjump/primr/internal/config"
	"github.com/hyperjump/primr/internal/models"
	"github.com/hyperjump/primr/internal/search"
	"github.com/hyperjump/primr/internal/storage"
	"github.com/hyperjump/primr/pkg/utils"
	"go.uber.org/zap"
)

// ServiceName is reported by /health and /status.
const ServiceName = "primr"

// CollectStatus reports the loaded store, the catalog and the data dir.
// Missing pieces are reported as absent rather than failing; catalog may be nil.
func CollectStatus(ctx context.Context, k *search.Knowledge, catalog storage.Catalog, cfg *config.Config, logger *zap.Logger) models.StatusResponse {
	logger = utils.OrNop(logger)
	resp := models.StatusResponse{
		Service:     ServiceName,
		VectorsPath: cfg.Storage.VectorsPath,
		DataFiles:   []string{},
		Timestamp:   time.Now().Format(time.RFC3339),
	}
	if _, err := os.Stat(cfg.Storage.VectorsPath); err == nil {
		resp.IndexExists = true
	}
	if store := k.Current(); store != nil {
		stats := store.Stats()
		resp.Ready = true
		resp.VectorStore = &stats
	}

	files, err := storage.ListDataFiles(cfg.Storage.DataDir, cfg.Search.Extensions)
	if err != nil {
		logger.Warn("status: list data files failed", zap.Error(err))
	} else {
		resp.DataFiles = files
	}

	if catalog != nil {
		if n, err := catalog.CountDocuments(ctx); err != nil {
			logger.Warn("status: count documents failed", zap.Error(err))
		} else {
			resp.DocumentCount = int(n)
		}
		if n, err := catalog.CountChunks(ctx); err != nil {
			logger.Warn("status: count chunks failed", zap.Error(err))
		} else {
			resp.ChunkCount = int(n)
		}
		if run, err := catalog.LastRun(ctx); err != nil {
			logger.Warn("status: last ingest run failed", zap.Error(err))
		} else {
			resp.LastIngest = run
		}
	}

	diskBytes, err := storage.DiskUsageBytes(cfg.Storage.VectorsPath, cfg.Storage.CatalogPath, cfg.Storage.DataDir)
	if err == nil {
		resp.DiskUsageBytes = diskBytes
	}
	return resp
}
