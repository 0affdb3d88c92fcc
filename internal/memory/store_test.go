package memory

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/easeaico/marketing-analyst/internal/dataframe"
	"github.com/easeaico/marketing-analyst/internal/llm"
	"github.com/easeaico/marketing-analyst/internal/platform"
)

// countingIndex wraps an Index and counts calls per method.
type countingIndex struct {
	Index
	mu        sync.Mutex
	ensures   int
	adds      int
	searchErr error
}

func (c *countingIndex) Upsert(ctx context.Context, ns string, docs []Document) error {
	c.mu.Lock()
	c.adds += len(docs)
	c.mu.Unlock()
	return c.Index.Upsert(ctx, ns, docs)
}

func (c *countingIndex) EnsureNamespace(ctx context.Context, ns string, dims int) error {
	c.mu.Lock()
	c.ensures++
	c.mu.Unlock()
	return c.Index.EnsureNamespace(ctx, ns, dims)
}

func (c *countingIndex) Search(ctx context.Context, ns string, vec []float32, limit int) ([]ScoredDocument, error) {
	if c.searchErr != nil {
		return nil, c.searchErr
	}
	return c.Index.Search(ctx, ns, vec, limit)
}

func newTestStore(t *testing.T) (*Store, *countingIndex) {
	t.Helper()
	chromemIdx, err := NewChromemIndex("")
	if err != nil {
		t.Fatalf("failed to create index: %v", err)
	}
	idx := &countingIndex{Index: chromemIdx}
	return NewStore(idx, llm.NewHashEmbedder(256), Options{}, zerolog.Nop()), idx
}

func facebookFrame(t *testing.T) *dataframe.Frame {
	t.Helper()
	f := dataframe.New(platform.DateColumn, platform.Facebook.Columns())
	for d := 1; d <= 31; d++ {
		follows := dataframe.Float(float64(d % 7))
		if d%10 == 0 {
			follows = nil
		}
		date := time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC)
		if err := f.Append(date, []*float64{dataframe.Float(float64(100 * d)), dataframe.Float(float64(40 * d)), follows}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	return f
}

func TestNamespace(t *testing.T) {
	ns := Namespace("1")
	if !strings.HasPrefix(ns, "client-") || len(ns) != len("client-")+10 {
		t.Errorf("unexpected namespace %q", ns)
	}
	if Namespace("1") != ns {
		t.Error("namespace must be stable")
	}
	if Namespace("2") == ns {
		t.Error("different clients must get different namespaces")
	}
}

func TestStore_EnsureNamespaceOnce(t *testing.T) {
	store, idx := newTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := store.EnsureNamespace(ctx, "1"); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if _, err := store.Retriever(ctx, "1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if idx.ensures != 1 {
		t.Errorf("expected the index to be consulted once, got %d", idx.ensures)
	}
}

func TestStore_WriteSummaryAndRetrieveMissingValues(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	if err := store.WriteSummary(ctx, "1", platform.Facebook, facebookFrame(t)); err != nil {
		t.Fatalf("failed to write summary: %v", err)
	}

	docs, err := store.Retrieve(ctx, "1", "valores ausentes", 5, 10)
	if err != nil {
		t.Fatalf("failed to retrieve: %v", err)
	}
	if len(docs) != len(SummaryKinds) {
		t.Fatalf("expected all %d facets back, got %d", len(SummaryKinds), len(docs))
	}
	if docs[0].Kind != KindMissingValues {
		t.Errorf("expected the missing_values facet first, got %s", docs[0].Kind)
	}
	if !strings.Contains(docs[0].Content, "page_follows: 3 valores ausentes (9.68%)") {
		t.Errorf("unexpected facet content:\n%s", docs[0].Content)
	}

	limited, err := store.Retrieve(ctx, "1", "valores ausentes", 2, 10)
	if err != nil {
		t.Fatalf("failed to retrieve: %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("expected k=2 documents, got %d", len(limited))
	}
}

func TestStore_NamespaceIsolation(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	if err := store.WriteAnalysis(ctx, "A", platform.Instagram, "alcance de março", "O alcance caiu 10%."); err != nil {
		t.Fatalf("failed to write analysis: %v", err)
	}
	if err := store.EnsureNamespace(ctx, "B"); err != nil {
		t.Fatalf("failed to ensure namespace: %v", err)
	}

	docs, err := store.Retrieve(ctx, "B", "alcance de março", 5, 10)
	if err != nil {
		t.Fatalf("failed to retrieve: %v", err)
	}
	if len(docs) != 0 {
		t.Errorf("client B must not see client A documents, got %+v", docs)
	}

	docs, err = store.Retrieve(ctx, "A", "alcance de março", 5, 10)
	if err != nil {
		t.Fatalf("failed to retrieve: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("expected the analysis record, got %d documents", len(docs))
	}
	d := docs[0]
	if d.Kind != KindAnalysisRecord || d.ClientID != "A" || d.Platform != "instagram" {
		t.Errorf("unexpected document %+v", d)
	}
	if d.Content != "Consulta: alcance de março\n\nResultado da Análise: O alcance caiu 10%." {
		t.Errorf("unexpected content %q", d.Content)
	}
	if d.Metadata["query"] != "alcance de março" || d.Metadata["timestamp"] == "" {
		t.Errorf("unexpected metadata %v", d.Metadata)
	}
}

func TestStore_RetrieveOnEmptyNamespace(t *testing.T) {
	store, _ := newTestStore(t)

	r, err := store.Retriever(context.Background(), "new-client")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	docs, err := r.Retrieve(context.Background(), "qualquer coisa")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(docs) != 0 {
		t.Errorf("expected no documents, got %d", len(docs))
	}
	if r.ClientID() != "new-client" {
		t.Errorf("unexpected client %q", r.ClientID())
	}
}

func TestStore_RetrieveSearchError(t *testing.T) {
	store, idx := newTestStore(t)
	idx.searchErr = errors.New("index unavailable")

	_, err := store.Retrieve(context.Background(), "1", "q", 5, 10)
	if err == nil || !strings.Contains(err.Error(), "index unavailable") {
		t.Fatalf("expected wrapped search error, got %v", err)
	}
}

func TestSummarize(t *testing.T) {
	facets := Summarize("1", platform.Facebook, facebookFrame(t))
	if len(facets) != 5 {
		t.Fatalf("expected 5 facets, got %d", len(facets))
	}

	want := map[Kind][]string{
		KindDatasetInfo: {
			"Dataset para cliente 1 na plataforma facebook contém 31 linhas e 4 colunas.",
			"Colunas: data, page_impressions, page_impressions_unique, page_follows",
		},
		KindDataTypes:     {"- data: datetime", "- page_follows: float64"},
		KindStatistics:    {"count", "mean", "75%", "page_impressions", "1600.000000"},
		KindMissingValues: {"Valores ausentes:", "- page_follows: 3 valores ausentes (9.68%)"},
		KindDateInfo:      {"- data: de 2024-01-01 00:00:00 até 2024-01-31 00:00:00"},
	}
	for i, f := range facets {
		if f.Kind != SummaryKinds[i] {
			t.Errorf("facet %d: expected %s, got %s", i, SummaryKinds[i], f.Kind)
		}
		for _, s := range want[f.Kind] {
			if !strings.Contains(f.Content, s) {
				t.Errorf("%s facet missing %q:\n%s", f.Kind, s, f.Content)
			}
		}
	}
}
