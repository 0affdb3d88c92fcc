package memory

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/easeaico/marketing-analyst/internal/dataframe"
	"github.com/easeaico/marketing-analyst/internal/metrics"
	"github.com/easeaico/marketing-analyst/internal/platform"
)

// Index defines the contract of a vector backend. Namespaces isolate
// clients from each other: nothing written in one namespace is ever
// returned by a search in another.
type Index interface {
	// EnsureNamespace creates the namespace if missing. It is idempotent and
	// fails with ErrDimensionMismatch when dims differ from the existing one.
	EnsureNamespace(ctx context.Context, namespace string, dims int) error

	// Upsert stores documents, replacing any document with the same ID.
	Upsert(ctx context.Context, namespace string, docs []Document) error

	// Search returns up to limit documents ordered by cosine similarity to
	// vector. Candidates carry their embeddings.
	Search(ctx context.Context, namespace string, vector []float32, limit int) ([]ScoredDocument, error)

	// Close releases any resources held by the index.
	Close() error
}

// Options tunes retrieval.
type Options struct {
	K       int
	FetchK  int
	Lambda  float64
	Timeout time.Duration
}

// DefaultOptions mirrors the configuration defaults.
var DefaultOptions = Options{K: 5, FetchK: 10, Lambda: 0.5, Timeout: 15 * time.Second}

// Store is the semantic memory of every client.
type Store struct {
	index    Index
	embedder Embedder
	opts     Options
	logger   zerolog.Logger
	now      func() time.Time

	mu      sync.Mutex
	ensured map[string]bool
}

// NewStore creates a store over index. Zero option fields fall back to
// DefaultOptions.
func NewStore(index Index, embedder Embedder, opts Options, logger zerolog.Logger) *Store {
	if opts.K <= 0 {
		opts.K = DefaultOptions.K
	}
	if opts.FetchK < opts.K {
		opts.FetchK = max(DefaultOptions.FetchK, opts.K)
	}
	if opts.Lambda <= 0 || opts.Lambda > 1 {
		opts.Lambda = DefaultOptions.Lambda
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultOptions.Timeout
	}
	return &Store{
		index:    index,
		embedder: embedder,
		opts:     opts,
		logger:   logger.With().Str("component", "memory").Logger(),
		now:      func() time.Time { return time.Now().UTC() },
		ensured:  make(map[string]bool),
	}
}

// Namespace derives the stable namespace name of a client.
func Namespace(clientID string) string {
	sum := md5.Sum([]byte(clientID))
	return "client-" + hex.EncodeToString(sum[:])[:10]
}

// EnsureNamespace makes sure the namespace of clientID exists. The index is
// only consulted the first time per process.
func (s *Store) EnsureNamespace(ctx context.Context, clientID string) error {
	ns := Namespace(clientID)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ensured[ns] {
		return nil
	}
	if err := s.index.EnsureNamespace(ctx, ns, s.embedder.Dimensions()); err != nil {
		return fmt.Errorf("failed to ensure namespace for client %s: %w", clientID, err)
	}
	s.ensured[ns] = true
	return nil
}

// WriteSummary embeds and stores the five descriptive facets of frame.
func (s *Store) WriteSummary(ctx context.Context, clientID string, p platform.Platform, frame *dataframe.Frame) error {
	if err := s.EnsureNamespace(ctx, clientID); err != nil {
		return err
	}

	facets := Summarize(clientID, p, frame)
	now := s.now()
	docs := make([]Document, 0, len(facets))
	for _, f := range facets {
		vec, err := s.embedder.Embed(ctx, f.Content)
		if err != nil {
			return fmt.Errorf("failed to embed %s summary: %w", f.Kind, err)
		}
		docs = append(docs, Document{
			ID:        uuid.NewString(),
			Kind:      f.Kind,
			ClientID:  clientID,
			Platform:  string(p),
			Content:   f.Content,
			Metadata:  map[string]string{"type": string(f.Kind)},
			CreatedAt: now,
			Embedding: vec,
		})
	}

	if err := s.index.Upsert(ctx, Namespace(clientID), docs); err != nil {
		return fmt.Errorf("failed to store dataset summary: %w", err)
	}
	for _, d := range docs {
		metrics.RecordMemoryDocument(string(d.Kind))
	}
	s.logger.Debug().Str("client_id", clientID).Str("platform", string(p)).Int("documents", len(docs)).Msg("dataset summary stored")
	return nil
}

// AnalysisContent renders the stored text of a completed analysis.
func AnalysisContent(query, result string) string {
	return fmt.Sprintf("Consulta: %s\n\nResultado da Análise: %s", query, result)
}

// WriteAnalysis stores one completed analysis. query must be the original
// request, not the augmented prompt sent to the engine.
func (s *Store) WriteAnalysis(ctx context.Context, clientID string, p platform.Platform, query, result string) error {
	if err := s.EnsureNamespace(ctx, clientID); err != nil {
		return err
	}

	content := AnalysisContent(query, result)
	vec, err := s.embedder.Embed(ctx, content)
	if err != nil {
		return fmt.Errorf("failed to embed analysis: %w", err)
	}

	now := s.now()
	doc := Document{
		ID:       uuid.NewString(),
		Kind:     KindAnalysisRecord,
		ClientID: clientID,
		Platform: string(p),
		Content:  content,
		Metadata: map[string]string{
			"type":      "analysis",
			"query":     query,
			"timestamp": now.Format(time.RFC3339),
		},
		CreatedAt: now,
		Embedding: vec,
	}
	if err := s.index.Upsert(ctx, Namespace(clientID), []Document{doc}); err != nil {
		return fmt.Errorf("failed to store analysis: %w", err)
	}
	metrics.RecordMemoryDocument(string(KindAnalysisRecord))
	return nil
}

// Retrieve returns at most k documents of the client namespace, picked by
// maximal marginal relevance among the fetchK nearest neighbours of query.
func (s *Store) Retrieve(ctx context.Context, clientID, query string, k, fetchK int) ([]Document, error) {
	if k <= 0 {
		return nil, nil
	}
	fetchK = max(fetchK, k)

	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to generate query embedding: %w", err)
	}

	candidates, err := s.index.Search(ctx, Namespace(clientID), vec, fetchK)
	if err != nil {
		return nil, fmt.Errorf("failed to search semantic memory: %w", err)
	}

	picked := MMR(vec, candidates, k, s.opts.Lambda)
	docs := make([]Document, len(picked))
	for i, c := range picked {
		docs[i] = c.Document
	}
	return docs, nil
}

// Retriever binds the store to one client with the configured k and fetch_k.
// The namespace is created on first use.
func (s *Store) Retriever(ctx context.Context, clientID string) (*Retriever, error) {
	if err := s.EnsureNamespace(ctx, clientID); err != nil {
		return nil, err
	}
	return &Retriever{store: s, clientID: clientID, k: s.opts.K, fetchK: s.opts.FetchK}, nil
}

// Retriever is a handle that recalls documents of a single client.
type Retriever struct {
	store    *Store
	clientID string
	k        int
	fetchK   int
}

// ClientID returns the client the retriever is bound to.
func (r *Retriever) ClientID() string { return r.clientID }

// Retrieve runs an MMR search in the bound namespace.
func (r *Retriever) Retrieve(ctx context.Context, query string) ([]Document, error) {
	return r.store.Retrieve(ctx, r.clientID, query, r.k, r.fetchK)
}
