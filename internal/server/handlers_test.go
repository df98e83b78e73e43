package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hyperjump/primr/internal/answer"
	"github.com/hyperjump/primr/internal/config"
	"github.com/hyperjump/primr/internal/embedding"
	"github.com/hyperjump/primr/internal/indexer"
	"github.com/hyperjump/primr/internal/models"
	"github.com/hyperjump/primr/internal/search"
	"github.com/hyperjump/primr/internal/storage"
	"github.com/hyperjump/primr/internal/vector"
	"go.uber.org/zap"
)

type stubSynthesizer struct {
	reply string
	calls int
}

func (s *stubSynthesizer) Complete(ctx context.Context, prompt string) (string, error) {
	s.calls++
	return s.reply, nil
}

type testEnv struct {
	srv   *Server
	cfg   *config.Config
	emb   *embedding.MockEmbedder
	synth *stubSynthesizer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	root := t.TempDir()
	cfg := config.Default()
	cfg.Storage.VectorsPath = filepath.Join(root, "vectors.json")
	cfg.Storage.CatalogPath = filepath.Join(root, "catalog.db")
	cfg.Storage.DataDir = filepath.Join(root, "data")

	catalog, err := storage.NewSQLiteCatalog(cfg.Storage.CatalogPath)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = catalog.Close() })

	logger := zap.NewNop()
	emb := embedding.NewMockEmbedder(8)
	engine := search.NewEngine(emb, search.NewKnowledge(), search.WithLogger(logger))
	synth := &stubSynthesizer{reply: "Twenty days of vacation."}
	answerer := answer.NewAnswerer(engine, synth, answer.WithLogger(logger))
	idx := indexer.NewIndexer(emb, indexer.NewSplitter(200, 20), cfg.Storage.VectorsPath,
		indexer.WithCatalog(catalog), indexer.WithLogger(logger))
	return &testEnv{
		srv:   NewServer(engine, answerer, idx, catalog, cfg, logger),
		cfg:   cfg,
		emb:   emb,
		synth: synth,
	}
}

func (e *testEnv) writeDocs(t *testing.T) {
	t.Helper()
	if err := os.MkdirAll(e.cfg.Storage.DataDir, 0755); err != nil {
		t.Fatal(err)
	}
	docs := map[string]string{
		"handbook.md": "Employees get twenty days of vacation per year.",
		"office.txt":  "The office is in Berlin.",
	}
	for name, content := range docs {
		if err := os.WriteFile(filepath.Join(e.cfg.Storage.DataDir, name), []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, path, nil)
	} else {
		r = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		r.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.srv.Router().ServeHTTP(w, r)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, w.Body.String())
	}
	return out
}

func TestHandleHealth(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodGet, "/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	out := decode[map[string]string](t, w)
	if out["status"] != "healthy" || out["service"] != "primr" || out["timestamp"] == "" {
		t.Errorf("unexpected body: %v", out)
	}
}

func TestHandleStatus_noStore(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodGet, "/status", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	out := decode[models.StatusResponse](t, w)
	if out.IndexExists || out.Ready || out.VectorStore != nil {
		t.Errorf("expected no index, got %+v", out)
	}
	if out.LastIngest != nil {
		t.Errorf("unexpected last ingest: %+v", out.LastIngest)
	}
}

func TestHandleReindex_thenStatus(t *testing.T) {
	env := newTestEnv(t)
	env.writeDocs(t)

	w := env.do(t, http.MethodPost, "/reindex", "")
	if w.Code != http.StatusOK {
		t.Fatalf("reindex status: got %d body %s", w.Code, w.Body.String())
	}
	report := decode[models.IngestReport](t, w)
	if len(report.Files) != 2 || report.Chunks != 2 {
		t.Errorf("report: %+v", report)
	}
	if !env.srv.engine.Knowledge().Ready() {
		t.Fatal("store should be swapped in after reindex")
	}

	w = env.do(t, http.MethodGet, "/status", "")
	status := decode[models.StatusResponse](t, w)
	if !status.IndexExists || !status.Ready {
		t.Errorf("expected loaded index: %+v", status)
	}
	if status.VectorStore == nil || status.VectorStore.TotalVectors != 2 || status.VectorStore.Dimensions != 8 {
		t.Errorf("vector store stats: %+v", status.VectorStore)
	}
	if status.DocumentCount != 2 || status.ChunkCount != 2 || len(status.DataFiles) != 2 {
		t.Errorf("counts: docs=%d chunks=%d files=%v", status.DocumentCount, status.ChunkCount, status.DataFiles)
	}
	if status.LastIngest == nil || !status.LastIngest.VectorIndexCreated {
		t.Errorf("last ingest: %+v", status.LastIngest)
	}
	if status.DiskUsageBytes <= 0 {
		t.Errorf("disk usage: %d", status.DiskUsageBytes)
	}
}

func TestHandleReindex_noDocuments(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodPost, "/reindex", "")
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status: got %d", w.Code)
	}
	if env.srv.engine.Knowledge().Ready() {
		t.Error("failed reindex must not install a store")
	}
}

func TestHandleReindex_conflict(t *testing.T) {
	env := newTestEnv(t)
	env.srv.reindexMu.Lock()
	defer env.srv.reindexMu.Unlock()
	w := env.do(t, http.MethodPost, "/reindex", "")
	if w.Code != http.StatusConflict {
		t.Errorf("status: got %d", w.Code)
	}
}

func TestHandleReindex_notConfigured(t *testing.T) {
	env := newTestEnv(t)
	env.srv.indexer = nil
	w := env.do(t, http.MethodPost, "/reindex", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status: got %d", w.Code)
	}
}

func TestHandleQuery(t *testing.T) {
	env := newTestEnv(t)
	env.writeDocs(t)
	if _, err := env.srv.Reindex(context.Background()); err != nil {
		t.Fatal(err)
	}

	w := env.do(t, http.MethodPost, "/query", `{"question":"  How much vacation do I get?  ","k":1}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	out := decode[models.Answer](t, w)
	if out.Answer != "Twenty days of vacation." || out.Outcome != models.OutcomeAnswered {
		t.Errorf("answer: %+v", out)
	}
	if out.Question != "How much vacation do I get?" {
		t.Errorf("question not trimmed: %q", out.Question)
	}
	if len(out.Sources) != 1 {
		t.Errorf("sources: got %d, want 1", len(out.Sources))
	}
}

func TestHandleQuery_notLoaded(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodPost, "/query", `{"question":"anything?"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	out := decode[models.Answer](t, w)
	if out.Answer != answer.NoKnowledgeMessage || out.Outcome != models.OutcomeNoKnowledge {
		t.Errorf("answer: %+v", out)
	}
	if env.synth.calls != 0 {
		t.Errorf("synthesizer called %d times", env.synth.calls)
	}
}

func TestHandleQuery_badRequests(t *testing.T) {
	env := newTestEnv(t)
	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{"question":`},
		{"empty question", `{"question":"   "}`},
		{"missing question", `{}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/query", tt.body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("status: got %d", w.Code)
			}
			out := decode[map[string]string](t, w)
			if out["error"] == "" {
				t.Error("expected error message")
			}
		})
	}
}

func TestHandleSearch(t *testing.T) {
	env := newTestEnv(t)
	store, err := vector.New("mock", []vector.Record{
		{Text: "A", Metadata: map[string]any{"source": "a.md"}, Embedding: []float32{1, 0, 0, 0, 0, 0, 0, 0}},
		{Text: "B", Embedding: []float32{0, 1, 0, 0, 0, 0, 0, 0}},
		{Text: "C", Embedding: []float32{1, 1, 0, 0, 0, 0, 0, 0}},
	}, "")
	if err != nil {
		t.Fatal(err)
	}
	env.srv.engine.Knowledge().Swap(store)
	env.emb.Set("find A", []float32{1, 0, 0, 0, 0, 0, 0, 0})

	w := env.do(t, http.MethodPost, "/search", `{"query":"find A","k":2}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	out := decode[models.SearchResponse](t, w)
	if out.Total != 2 || len(out.Matches) != 2 {
		t.Fatalf("matches: %+v", out.Matches)
	}
	if out.Matches[0].Text != "A" || out.Matches[1].Text != "C" {
		t.Errorf("order: %s, %s", out.Matches[0].Text, out.Matches[1].Text)
	}
	if out.Matches[0].Source() != "a.md" {
		t.Errorf("source: %q", out.Matches[0].Source())
	}

	w = env.do(t, http.MethodPost, "/search", `{"query":""}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("empty query status: got %d", w.Code)
	}
}

func TestWatch_reloadsVectorFile(t *testing.T) {
	env := newTestEnv(t)
	env.cfg.Watch.Enabled = true
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := env.srv.Watch(ctx); err != nil {
		t.Fatal(err)
	}
	defer env.srv.Stop(context.Background())

	store, err := vector.New("mock", []vector.Record{{Text: "fresh", Embedding: []float32{1, 2}}}, "")
	if err != nil {
		t.Fatal(err)
	}
	if err := vector.Save(env.cfg.Storage.VectorsPath, store); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cur := env.srv.engine.Knowledge().Current(); cur != nil && cur.Len() == 1 {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatal("vector store was not reloaded")
}

func TestWatch_invalidFileKeepsStore(t *testing.T) {
	env := newTestEnv(t)
	env.cfg.Watch.Enabled = true
	prev, _ := vector.New("mock", []vector.Record{{Text: "old", Embedding: []float32{1}}}, "")
	env.srv.engine.Knowledge().Swap(prev)

	env.srv.config.Storage.VectorsPath = filepath.Join(filepath.Dir(env.cfg.Storage.VectorsPath), "broken.json")
	if err := os.WriteFile(env.srv.config.Storage.VectorsPath, []byte(`{"texts":["x"]`), 0644); err != nil {
		t.Fatal(err)
	}
	env.srv.reloadStore()
	if env.srv.engine.Knowledge().Current() != prev {
		t.Error("failed reload replaced the previous store")
	}
}

func TestReloadStore_skipsStoreWrittenByReindex(t *testing.T) {
	env := newTestEnv(t)
	env.writeDocs(t)
	if _, err := env.srv.Reindex(context.Background()); err != nil {
		t.Fatal(err)
	}
	current := env.srv.engine.Knowledge().Current()
	if env.srv.reloadStore() {
		t.Error("reload of the file Reindex just wrote swapped the store")
	}
	if env.srv.engine.Knowledge().Current() != current {
		t.Error("current store replaced")
	}

	other, err := vector.New("mock", []vector.Record{{Text: "newer", Embedding: []float32{1, 0, 0, 0, 0, 0, 0, 0}}}, "2030-01-01T00:00:00Z")
	if err != nil {
		t.Fatal(err)
	}
	if err := vector.Save(env.cfg.Storage.VectorsPath, other); err != nil {
		t.Fatal(err)
	}
	if !env.srv.reloadStore() {
		t.Fatal("a store from another run was not reloaded")
	}
	if got := env.srv.engine.Knowledge().Current().Len(); got != 1 {
		t.Errorf("records after reload = %d, want 1", got)
	}
}

func TestCollectStatus_nilCatalog(t *testing.T) {
	env := newTestEnv(t)
	status := CollectStatus(context.Background(), search.NewKnowledge(), nil, env.cfg, nil)
	if status.Service != "primr" || status.Ready || status.DocumentCount != 0 {
		t.Errorf("status: %+v", status)
	}
	if !strings.HasSuffix(status.VectorsPath, "vectors.json") {
		t.Errorf("vectors path: %s", status.VectorsPath)
	}
}
