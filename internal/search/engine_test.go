package search

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"

	"github.com/hyperjump/primr/internal/embedding"
	"github.com/hyperjump/primr/internal/vector"
)

func newABCEngine(t *testing.T) (*Engine, *embedding.MockEmbedder) {
	t.Helper()
	store, err := vector.New("mock", []vector.Record{
		{Text: "A", Embedding: []float32{1, 0}},
		{Text: "B", Embedding: []float32{0, 1}},
		{Text: "C", Embedding: []float32{1, 1}},
	}, "")
	if err != nil {
		t.Fatal(err)
	}
	k := NewKnowledge()
	k.Swap(store)
	emb := embedding.NewMockEmbedder(2)
	emb.Set("find A", []float32{1, 0})
	return NewEngine(emb, k), emb
}

func TestEngine_SearchRanking(t *testing.T) {
	engine, _ := newABCEngine(t)
	matches := engine.Search(context.Background(), "find A", 3)
	if len(matches) != 3 {
		t.Fatalf("got %d matches", len(matches))
	}
	got := []string{matches[0].Text, matches[1].Text, matches[2].Text}
	want := []string{"A", "C", "B"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("ranking = %v, want %v", got, want)
		}
	}
	if matches[0].Score != 1.0 {
		t.Errorf("A score = %v", matches[0].Score)
	}
}

func TestEngine_DefaultK(t *testing.T) {
	records := make([]vector.Record, 8)
	for i := range records {
		records[i] = vector.Record{Text: string(rune('a' + i)), Embedding: []float32{float32(i + 1), 1}}
	}
	store, _ := vector.New("mock", records, "")
	k := NewKnowledge()
	k.Swap(store)
	engine := NewEngine(embedding.NewMockEmbedder(2), k)
	if got := len(engine.Search(context.Background(), "q", 0)); got != 5 {
		t.Errorf("k=0 should use default 5, got %d", got)
	}
	engine = NewEngine(embedding.NewMockEmbedder(2), k, WithDefaultK(3))
	if got := len(engine.Search(context.Background(), "q", -1)); got != 3 {
		t.Errorf("WithDefaultK(3): got %d", got)
	}
}

func TestEngine_ProviderFailureYieldsEmpty(t *testing.T) {
	engine, emb := newABCEngine(t)
	emb.FailWith(errors.New("rate limited"))

	matches := engine.Search(context.Background(), "find A", 3)
	if matches == nil || len(matches) != 0 {
		t.Errorf("want empty slice, got %#v", matches)
	}

	_, err := engine.Retrieve(context.Background(), "find A", 3)
	var pe *ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("want *ProviderError, got %v", err)
	}
}

func TestEngine_NotLoaded(t *testing.T) {
	emb := embedding.NewMockEmbedder(2)
	engine := NewEngine(emb, NewKnowledge())
	if matches := engine.Search(context.Background(), "anything", 5); len(matches) != 0 {
		t.Errorf("unloaded store: got %v", matches)
	}
	if _, err := engine.Retrieve(context.Background(), "anything", 5); !errors.Is(err, ErrNotLoaded) {
		t.Errorf("want ErrNotLoaded, got %v", err)
	}
	if emb.Calls() != 0 {
		t.Errorf("embedder called %d times for an unloaded store", emb.Calls())
	}
}

func TestEngine_EmptyStore(t *testing.T) {
	store, _ := vector.New("mock", nil, "")
	k := NewKnowledge()
	k.Swap(store)
	emb := embedding.NewMockEmbedder(2)
	engine := NewEngine(emb, k)
	matches, err := engine.Retrieve(context.Background(), "q", 5)
	if err != nil || len(matches) != 0 {
		t.Errorf("empty store: %v %v", matches, err)
	}
	if emb.Calls() != 0 {
		t.Error("embedder should not be called for an empty store")
	}
}

func TestEngine_DimensionMismatch(t *testing.T) {
	engine, emb := newABCEngine(t)
	emb.Set("wide", []float32{1, 0, 0})
	if matches := engine.Search(context.Background(), "wide", 3); len(matches) != 0 {
		t.Errorf("mismatched query should yield no matches, got %v", matches)
	}
	if _, err := engine.Retrieve(context.Background(), "wide", 3); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("want ErrDimensionMismatch, got %v", err)
	}
}

func TestEngine_SelfSimilarityIsMax(t *testing.T) {
	emb := embedding.NewMockEmbedder(32)
	ctx := context.Background()
	texts := []string{
		"Employees accrue 1.5 vacation days per month.",
		"The VPN must be used on public networks.",
		"Expense reports are due by the fifth business day.",
		"Production deploys happen on Tuesdays and Thursdays.",
	}
	vecs, err := emb.EmbedBatch(ctx, texts)
	if err != nil {
		t.Fatal(err)
	}
	records := make([]vector.Record, len(texts))
	for i := range texts {
		records[i] = vector.Record{Text: texts[i], Embedding: vecs[i]}
	}
	store, _ := vector.New(emb.Model(), records, "")
	k := NewKnowledge()
	k.Swap(store)
	engine := NewEngine(emb, k)

	for _, q := range texts {
		matches := engine.Search(ctx, q, len(texts))
		if matches[0].Text != q {
			t.Errorf("query %q: top match %q", q, matches[0].Text)
		}
		if math.Abs(matches[0].Score-1) > 1e-5 {
			t.Errorf("query %q: self score %v", q, matches[0].Score)
		}
	}
}

func TestKnowledge_LoadKeepsPreviousOnFailure(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vectors.json")
	k := NewKnowledge()
	if k.Ready() {
		t.Fatal("new holder should not be ready")
	}
	if err := k.Load(path); !errors.Is(err, vector.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
	if k.Ready() {
		t.Fatal("failed load must not make the holder ready")
	}

	store, _ := vector.New("m", []vector.Record{{Text: "x", Embedding: []float32{1}}}, "")
	if err := vector.Save(path, store); err != nil {
		t.Fatal(err)
	}
	if err := k.Load(path); err != nil {
		t.Fatal(err)
	}
	first := k.Current()
	if first == nil || first.Len() != 1 {
		t.Fatal("store not loaded")
	}

	if err := k.Load(filepath.Join(dir, "missing.json")); err == nil {
		t.Fatal("expected error")
	}
	if k.Current() != first {
		t.Error("previous store should remain after a failed reload")
	}
	if prev := k.Swap(nil); prev != first {
		t.Error("Swap should return the previous store")
	}
}

func TestEngine_NilLoggerOption(t *testing.T) {
	engine := NewEngine(embedding.NewMockEmbedder(2), NewKnowledge(), WithLogger(nil))
	if matches := engine.Search(context.Background(), "anything", 3); len(matches) != 0 {
		t.Errorf("got %d matches from an unloaded store", len(matches))
	}
}
