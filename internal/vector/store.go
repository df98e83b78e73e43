// Package vector holds the persisted embedding store and its brute-force cosine search.
package vector

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/hyperjump/primr/internal/models"
	"github.com/hyperjump/primr/pkg/utils"
)

// CurrentVersion is the file format version written by Save.
// Files without a version field load as version 0.
const CurrentVersion = 1

var (
	// ErrNotFound means the vector file does not exist.
	ErrNotFound = errors.New("vector store not found")
	// ErrInvalidStore means the vector file exists but does not describe a consistent store.
	ErrInvalidStore = errors.New("invalid vector store")
	// ErrDimensionMismatch means a query vector does not match the store's dimension.
	ErrDimensionMismatch = errors.New("dimension mismatch")
)

// LoadError reports why a vector file could not be loaded.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load vector store %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Record is one stored chunk: its text, provenance metadata and embedding.
type Record struct {
	Text      string
	Metadata  map[string]any
	Embedding []float32
}

// file is the on-disk JSON layout. The arrays are aligned by index.
type file struct {
	Version        int              `json:"version"`
	Embeddings     [][]float32      `json:"embeddings"`
	Texts          []string         `json:"texts"`
	Metadata       []map[string]any `json:"metadata"`
	CreatedAt      string           `json:"created_at"`
	EmbeddingModel string           `json:"embedding_model"`
	Dimensions     int              `json:"dimensions"`
}

// Store is an immutable set of records sharing one embedding dimension.
// It is safe for concurrent reads.
type Store struct {
	version    int
	model      string
	dims       int
	createdAt  string
	texts      []string
	metadata   []map[string]any
	embeddings [][]float32
	norms      []float64
}

// New builds a store from records. All embeddings must share one non-zero length.
// Records are copied and metadata is normalized to its JSON form (numbers become
// float64), so a store equals what Load returns after Save.
func New(model string, records []Record, createdAt string) (*Store, error) {
	f := &file{
		Version:        CurrentVersion,
		EmbeddingModel: model,
		CreatedAt:      createdAt,
		Texts:          make([]string, len(records)),
		Metadata:       make([]map[string]any, len(records)),
		Embeddings:     make([][]float32, len(records)),
	}
	for i, r := range records {
		md, err := normalizeMetadata(r.Metadata)
		if err != nil {
			return nil, fmt.Errorf("%w: record %d metadata: %w", ErrInvalidStore, i, err)
		}
		f.Texts[i] = r.Text
		f.Metadata[i] = md
		f.Embeddings[i] = append([]float32(nil), r.Embedding...)
	}
	if len(records) > 0 {
		f.Dimensions = len(records[0].Embedding)
	}
	return fromFile(f)
}

// Load reads and validates the vector file at path.
// Failures are *LoadError wrapping ErrNotFound or ErrInvalidStore; no partial store is returned.
func Load(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &LoadError{Path: path, Err: fmt.Errorf("%w: %w", ErrNotFound, err)}
		}
		return nil, &LoadError{Path: path, Err: err}
	}
	var f file
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, &LoadError{Path: path, Err: fmt.Errorf("%w: %w", ErrInvalidStore, err)}
	}
	s, err := fromFile(&f)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	return s, nil
}

func fromFile(f *file) (*Store, error) {
	if f.Version < 0 || f.Version > CurrentVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrInvalidStore, f.Version)
	}
	n := len(f.Texts)
	if len(f.Metadata) != n || len(f.Embeddings) != n {
		return nil, fmt.Errorf("%w: texts=%d metadata=%d embeddings=%d are not aligned",
			ErrInvalidStore, n, len(f.Metadata), len(f.Embeddings))
	}
	dims := 0
	if n > 0 {
		dims = len(f.Embeddings[0])
		if dims == 0 {
			return nil, fmt.Errorf("%w: record 0 has an empty embedding", ErrInvalidStore)
		}
		for i, e := range f.Embeddings {
			if len(e) != dims {
				return nil, fmt.Errorf("%w: record %d has dimension %d, record 0 has %d",
					ErrInvalidStore, i, len(e), dims)
			}
		}
		if f.Dimensions != 0 && f.Dimensions != dims {
			return nil, fmt.Errorf("%w: dimensions field is %d but embeddings have %d",
				ErrInvalidStore, f.Dimensions, dims)
		}
	}
	norms := make([]float64, n)
	for i, e := range f.Embeddings {
		norms[i] = utils.L2Norm(e)
	}
	for i := range f.Metadata {
		if f.Metadata[i] == nil {
			f.Metadata[i] = map[string]any{}
		}
	}
	return &Store{
		version:    f.Version,
		model:      f.EmbeddingModel,
		dims:       dims,
		createdAt:  f.CreatedAt,
		texts:      f.Texts,
		metadata:   f.Metadata,
		embeddings: f.Embeddings,
		norms:      norms,
	}, nil
}

// Save writes s to path atomically: a temp file in the same directory is
// written, synced and renamed over path. The parent directory is created if needed.
func Save(path string, s *Store) error {
	f := file{
		Version:        CurrentVersion,
		Embeddings:     s.embeddings,
		Texts:          s.texts,
		Metadata:       s.metadata,
		CreatedAt:      s.createdAt,
		EmbeddingModel: s.model,
		Dimensions:     s.dims,
	}
	if f.Embeddings == nil {
		f.Embeddings = [][]float32{}
		f.Texts = []string{}
		f.Metadata = []map[string]any{}
	}
	data, err := json.Marshal(&f)
	if err != nil {
		return fmt.Errorf("encode vector store: %w", err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create vector store dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("write vector store: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("sync vector store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close vector store: %w", err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		cleanup()
		return fmt.Errorf("chmod vector store: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("replace vector store: %w", err)
	}
	return nil
}

// Search scores every record against query by cosine similarity and returns the
// first min(k, n) matches by descending score. Ties keep store order.
// Zero-norm records and zero-norm queries score 0.
func (s *Store) Search(query []float32, k int) ([]models.Match, error) {
	n := len(s.texts)
	if n == 0 || k <= 0 {
		return []models.Match{}, nil
	}
	if len(query) != s.dims {
		return nil, fmt.Errorf("%w: query has %d, store has %d", ErrDimensionMismatch, len(query), s.dims)
	}
	qn := utils.L2Norm(query)
	type scored struct {
		idx   int
		score float64
	}
	scores := make([]scored, n)
	for i, vec := range s.embeddings {
		scores[i] = scored{idx: i, score: cosine(query, vec, qn, s.norms[i])}
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].score > scores[j].score })
	if k > n {
		k = n
	}
	out := make([]models.Match, k)
	for i := 0; i < k; i++ {
		idx := scores[i].idx
		out[i] = models.Match{
			Text:     s.texts[idx],
			Metadata: copyMetadata(s.metadata[idx]),
			Score:    scores[i].score,
		}
	}
	return out, nil
}

// Len returns the number of records.
func (s *Store) Len() int { return len(s.texts) }

// Dimensions returns the shared embedding length, or 0 for an empty store.
func (s *Store) Dimensions() int { return s.dims }

// Model returns the embedding model identifier recorded at ingestion.
func (s *Store) Model() string { return s.model }

// CreatedAt returns the ingestion timestamp as written in the file.
func (s *Store) CreatedAt() string { return s.createdAt }

// Version returns the file format version the store was loaded from.
func (s *Store) Version() int { return s.version }

// Records returns copies of all records in store order.
func (s *Store) Records() []Record {
	out := make([]Record, len(s.texts))
	for i := range s.texts {
		out[i] = Record{
			Text:      s.texts[i],
			Metadata:  copyMetadata(s.metadata[i]),
			Embedding: append([]float32(nil), s.embeddings[i]...),
		}
	}
	return out
}

// Stats summarizes the store for status reporting.
func (s *Store) Stats() models.StoreStats {
	return models.StoreStats{
		Status:         "loaded",
		TotalVectors:   len(s.texts),
		EmbeddingModel: s.model,
		Dimensions:     s.dims,
		CreatedAt:      s.createdAt,
		Version:        s.version,
	}
}

func normalizeMetadata(m map[string]any) (map[string]any, error) {
	if len(m) == 0 {
		return map[string]any{}, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	out := map[string]any{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func copyMetadata(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
