// Package search retrieves the stored chunks most similar to a query.
package search

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hyperjump/primr/internal/embedding"
	"github.com/hyperjump/primr/internal/models"
	"github.com/hyperjump/primr/internal/vector"
	"github.com/hyperjump/primr/pkg/utils"
	"go.uber.org/zap"
)

var (
	// ErrNotLoaded means no vector store is loaded.
	ErrNotLoaded = errors.New("knowledge base not loaded")
	// ErrDimensionMismatch means the query embedding does not match the store's dimension.
	ErrDimensionMismatch = vector.ErrDimensionMismatch
)

// ProviderError wraps a failed call to an external model provider.
type ProviderError struct {
	Op  string
	Err error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Engine embeds queries and ranks the loaded store against them.
type Engine struct {
	embedder  embedding.Embedder
	knowledge *Knowledge
	defaultK  int
	logger    *zap.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets the logger used for retrieval failures and debug timings.
func WithLogger(l *zap.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

// WithDefaultK sets the number of matches used when a caller passes k <= 0.
func WithDefaultK(k int) EngineOption {
	return func(e *Engine) {
		if k > 0 {
			e.defaultK = k
		}
	}
}

// NewEngine creates an engine over knowledge using embedder for queries.
func NewEngine(embedder embedding.Embedder, knowledge *Knowledge, opts ...EngineOption) *Engine {
	e := &Engine{
		embedder:  embedder,
		knowledge: knowledge,
		defaultK:  models.DefaultK,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = utils.OrNop(e.logger)
	return e
}

// Knowledge returns the store holder the engine reads from.
func (e *Engine) Knowledge() *Knowledge { return e.knowledge }

// Retrieve returns up to k matches for query ordered by descending cosine similarity.
// It fails with ErrNotLoaded, a *ProviderError, or ErrDimensionMismatch.
// An empty store yields an empty result without calling the embedder.
func (e *Engine) Retrieve(ctx context.Context, query string, k int) ([]models.Match, error) {
	store := e.knowledge.Current()
	if store == nil {
		return []models.Match{}, ErrNotLoaded
	}
	if k <= 0 {
		k = e.defaultK
	}
	if store.Len() == 0 {
		return []models.Match{}, nil
	}
	start := time.Now()
	vec, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return []models.Match{}, &ProviderError{Op: "embed query", Err: err}
	}
	matches, err := store.Search(vec, k)
	if err != nil {
		return []models.Match{}, err
	}
	fields := []zap.Field{
		zap.Int("k", k),
		zap.Int("matches", len(matches)),
		zap.Int("records", store.Len()),
		zap.Duration("took", time.Since(start)),
	}
	if ce, ok := e.embedder.(*embedding.CachedEmbedder); ok {
		hits, misses := ce.Cache().Stats()
		fields = append(fields, zap.Uint64("cache_hits", hits), zap.Uint64("cache_misses", misses))
	}
	e.logger.Debug("retrieved matches", fields...)
	return matches, nil
}

// Search is Retrieve with failures logged and reported as no matches. It never returns nil.
func (e *Engine) Search(ctx context.Context, query string, k int) []models.Match {
	matches, err := e.Retrieve(ctx, query, k)
	if err != nil {
		e.logger.Error("search failed", zap.String("query", query), zap.Error(err))
		return []models.Match{}
	}
	return matches
}
