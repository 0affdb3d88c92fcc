package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	chromem "github.com/philippgille/chromem-go"
)

// Reserved chromem metadata keys; user metadata is stored as JSON under metaKey.
const (
	metaKind      = "kind"
	metaClientID  = "client_id"
	metaPlatform  = "platform"
	metaCreatedAt = "created_at"
	metaKey       = "metadata"
)

var errNoEmbeddingFunc = errors.New("documents must carry precomputed embeddings")

// ChromemIndex implements Index with chromem-go, an embedded pure Go vector
// database. Each namespace is its own collection.
type ChromemIndex struct {
	db *chromem.DB

	mu          sync.RWMutex
	collections map[string]*chromem.Collection
	dims        map[string]int
}

// NewChromemIndex opens an index. An empty path keeps everything in memory;
// otherwise collections are persisted as gzip'd gob files under path.
func NewChromemIndex(path string) (*ChromemIndex, error) {
	db := chromem.NewDB()
	if path != "" {
		var err error
		db, err = chromem.NewPersistentDB(path, true)
		if err != nil {
			return nil, fmt.Errorf("failed to open chromem database: %w", err)
		}
	}

	return &ChromemIndex{
		db:          db,
		collections: make(map[string]*chromem.Collection),
		dims:        make(map[string]int),
	}, nil
}

func rejectEmbedding(context.Context, string) ([]float32, error) {
	return nil, errNoEmbeddingFunc
}

// EnsureNamespace creates the namespace collection if needed.
func (s *ChromemIndex) EnsureNamespace(_ context.Context, namespace string, dims int) error {
	_, err := s.collection(namespace, dims)
	return err
}

// collection returns the collection of a namespace with a double-checked
// lock. dims <= 0 accepts any registered dimensionality.
func (s *ChromemIndex) collection(namespace string, dims int) (*chromem.Collection, error) {
	s.mu.RLock()
	col, exists := s.collections[namespace]
	existing := s.dims[namespace]
	s.mu.RUnlock()

	if !exists {
		s.mu.Lock()
		defer s.mu.Unlock()

		if col, exists = s.collections[namespace]; !exists {
			var err error
			col, err = s.db.GetOrCreateCollection(namespace, map[string]string{"space": "cosine"}, rejectEmbedding)
			if err != nil {
				return nil, fmt.Errorf("failed to create collection %s: %w", namespace, err)
			}
			s.collections[namespace] = col
			if dims > 0 {
				s.dims[namespace] = dims
			}
		}
		existing = s.dims[namespace]
	}

	if dims > 0 && existing > 0 && existing != dims {
		return nil, fmt.Errorf("%w: namespace %s has %d dimensions, embedder produces %d", ErrDimensionMismatch, namespace, existing, dims)
	}
	return col, nil
}

// Upsert adds docs; chromem overwrites documents with the same ID.
func (s *ChromemIndex) Upsert(ctx context.Context, namespace string, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}
	col, err := s.collection(namespace, 0)
	if err != nil {
		return err
	}

	out := make([]chromem.Document, 0, len(docs))
	for _, d := range docs {
		meta, err := json.Marshal(d.Metadata)
		if err != nil {
			return fmt.Errorf("failed to encode metadata: %w", err)
		}
		out = append(out, chromem.Document{
			ID:        d.ID,
			Content:   d.Content,
			Embedding: d.Embedding,
			Metadata: map[string]string{
				metaKind:      string(d.Kind),
				metaClientID:  d.ClientID,
				metaPlatform:  d.Platform,
				metaCreatedAt: d.CreatedAt.UTC().Format(time.RFC3339Nano),
				metaKey:       string(meta),
			},
		})
	}

	if err := col.AddDocuments(ctx, out, 1); err != nil {
		return fmt.Errorf("failed to add documents: %w", err)
	}
	return nil
}

// Search queries the namespace collection. chromem requires the result
// count to be within the collection size, so limit is clamped.
func (s *ChromemIndex) Search(ctx context.Context, namespace string, vector []float32, limit int) ([]ScoredDocument, error) {
	col, err := s.collection(namespace, 0)
	if err != nil {
		return nil, err
	}

	n := min(limit, col.Count())
	if n <= 0 {
		return nil, nil
	}

	results, err := col.QueryEmbedding(ctx, vector, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem query: %w", err)
	}

	out := make([]ScoredDocument, 0, len(results))
	for _, r := range results {
		d := Document{
			ID:        r.ID,
			Kind:      Kind(r.Metadata[metaKind]),
			ClientID:  r.Metadata[metaClientID],
			Platform:  r.Metadata[metaPlatform],
			Content:   r.Content,
			Embedding: r.Embedding,
		}
		d.CreatedAt, _ = time.Parse(time.RFC3339Nano, r.Metadata[metaCreatedAt])
		if raw := r.Metadata[metaKey]; raw != "" && raw != "null" {
			if err := json.Unmarshal([]byte(raw), &d.Metadata); err != nil {
				return nil, fmt.Errorf("failed to decode metadata of %s: %w", r.ID, err)
			}
		}
		out = append(out, ScoredDocument{Document: d, Similarity: r.Similarity})
	}
	return out, nil
}

// Close is a no-op; persistent collections are written on every add.
func (s *ChromemIndex) Close() error { return nil }

var _ Index = (*ChromemIndex)(nil)
