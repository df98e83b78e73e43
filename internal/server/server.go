// Package server provides the HTTP API for primr.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hyperjump/primr/internal/answer"
	"github.com/hyperjump/primr/internal/config"
	"github.com/hyperjump/primr/internal/indexer"
	"github.com/hyperjump/primr/internal/models"
	"github.com/hyperjump/primr/internal/search"
	"github.com/hyperjump/primr/internal/storage"
	"github.com/hyperjump/primr/internal/vector"
	"github.com/hyperjump/primr/internal/watcher"
	"github.com/hyperjump/primr/pkg/utils"
	"go.uber.org/zap"
)

// ErrReindexRunning is returned by Reindex while another ingestion is in progress.
var ErrReindexRunning = errors.New("reindex already running")

// Server is the HTTP server for the primr API.
type Server struct {
	engine   *search.Engine
	answerer *answer.Answerer
	indexer  *indexer.Indexer
	catalog  storage.Catalog
	config   *config.Config
	logger   *zap.Logger
	server   *http.Server

	reindexMu sync.Mutex
	watchers  []*watcher.Watcher
}

// NewServer creates a server with the given dependencies.
// idx and catalog may be nil; /reindex then answers 503 and /status omits catalog counts.
func NewServer(
	engine *search.Engine,
	answerer *answer.Answerer,
	idx *indexer.Indexer,
	catalog storage.Catalog,
	cfg *config.Config,
	logger *zap.Logger,
) *Server {
	logger = utils.OrNop(logger)
	return &Server{
		engine:   engine,
		answerer: answerer,
		indexer:  idx,
		catalog:  catalog,
		config:   cfg,
		logger:   logger,
	}
}

// Router builds the chi router with all routes and middleware.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.requestTimeout()))

	r.Get("/health", s.handleHealth)
	r.Get("/status", s.handleStatus)
	r.Post("/query", s.handleQuery)
	r.Post("/search", s.handleSearch)
	r.Post("/reindex", s.handleReindex)
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop stops the watchers and gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	for _, w := range s.watchers {
		w.Stop()
	}
	s.watchers = nil
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// Watch starts the file watchers enabled in config. The vector file watcher reloads
// the store when the file is replaced; the data dir watcher re-ingests on document changes.
// Watchers stop when ctx is done or Stop is called.
func (s *Server) Watch(ctx context.Context) error {
	if s.config.Watch.Enabled {
		path := s.config.Storage.VectorsPath
		w := watcher.NewWatcher(filepath.Dir(path), watcher.FileMatcher(path), func([]string) {
			s.reloadStore()
		}, watcher.WithLogger(s.logger))
		if err := w.Start(ctx); err != nil {
			return fmt.Errorf("watch vector file: %w", err)
		}
		s.watchers = append(s.watchers, w)
		s.logger.Info("watching vector file", zap.String("path", path))
	}
	if s.config.Watch.DataDir && s.indexer != nil {
		dir := s.config.Storage.DataDir
		w := watcher.NewWatcher(dir, watcher.ExtensionMatcher(s.config.Search.Extensions), func(paths []string) {
			s.logger.Info("documents changed, re-ingesting", zap.Strings("paths", paths))
			if _, err := s.Reindex(ctx); err != nil && !errors.Is(err, ErrReindexRunning) {
				s.logger.Warn("re-ingest after document change failed", zap.Error(err))
			}
		}, watcher.WithLogger(s.logger))
		if err := w.Start(ctx); err != nil {
			return fmt.Errorf("watch data dir: %w", err)
		}
		s.watchers = append(s.watchers, w)
		s.logger.Info("watching data dir", zap.String("dir", dir))
	}
	return nil
}

// Reindex ingests the data dir and swaps the new store in. Only one ingestion runs at a time.
func (s *Server) Reindex(ctx context.Context) (*models.IngestReport, error) {
	if s.indexer == nil {
		return nil, errors.New("ingestion is not configured")
	}
	if !s.reindexMu.TryLock() {
		return nil, ErrReindexRunning
	}
	defer s.reindexMu.Unlock()

	store, report, err := s.indexer.Ingest(ctx, s.config.Storage.DataDir)
	if err != nil {
		return report, err
	}
	s.engine.Knowledge().Swap(store)
	s.logger.Info("knowledge base swapped", zap.Int("records", store.Len()))
	return report, nil
}

// reloadStore loads the vector file and swaps it in. It reports whether the store changed;
// a file holding the store already current (as after Reindex writes it) is skipped.
func (s *Server) reloadStore() bool {
	path := s.config.Storage.VectorsPath
	store, err := vector.Load(path)
	if err != nil {
		s.logger.Warn("vector store reload failed, keeping previous store",
			zap.String("path", path), zap.Error(err))
		return false
	}
	k := s.engine.Knowledge()
	if sameSnapshot(k.Current(), store) {
		s.logger.Debug("vector file matches the loaded store, skipping reload", zap.String("path", path))
		return false
	}
	k.Swap(store)
	s.logger.Info("vector store reloaded",
		zap.String("path", path),
		zap.Int("records", store.Len()))
	return true
}

// sameSnapshot reports whether a and b come from the same ingestion run.
// Stores without a creation stamp never match.
func sameSnapshot(a, b *vector.Store) bool {
	if a == nil || b == nil || a.CreatedAt() == "" {
		return false
	}
	return a.CreatedAt() == b.CreatedAt() && a.Model() == b.Model() && a.Len() == b.Len()
}

func (s *Server) requestTimeout() time.Duration {
	if s.config.Server.RequestTimeoutSecs <= 0 {
		return 60 * time.Second
	}
	return time.Duration(s.config.Server.RequestTimeoutSecs) * time.Second
}
