package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// PostgresIndex implements Index using PostgreSQL with pgvector. All
// namespaces share one table; the vector column is sized on first use.
type PostgresIndex struct {
	pool *pgxpool.Pool

	schemaMu   sync.Mutex
	schemaDims int
}

// NewPostgresIndex wraps an existing pool. The caller owns the pool.
func NewPostgresIndex(pool *pgxpool.Pool) *PostgresIndex {
	return &PostgresIndex{pool: pool}
}

// schemaSQL creates the extension and tables. Searches scan one namespace
// exactly through its B-tree index, so there is no approximate vector index.
func schemaSQL(dims int) string {
	return fmt.Sprintf(`
		CREATE EXTENSION IF NOT EXISTS vector;

		CREATE TABLE IF NOT EXISTS semantic_namespaces (
			namespace TEXT PRIMARY KEY,
			dimensions INTEGER NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS semantic_documents (
			id TEXT PRIMARY KEY,
			namespace TEXT NOT NULL,
			kind TEXT NOT NULL,
			client_id TEXT NOT NULL,
			platform TEXT,
			content TEXT NOT NULL,
			metadata JSONB,
			embedding vector(%d) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_semantic_documents_namespace ON semantic_documents(namespace);
		DROP INDEX IF EXISTS idx_semantic_documents_embedding;
	`, dims)
}

const searchSQL = `
	SELECT id, kind, client_id, COALESCE(platform, ''), content, metadata, embedding,
	       created_at, 1 - (embedding <=> $2) AS similarity
	FROM semantic_documents
	WHERE namespace = $1
	ORDER BY embedding <=> $2
	LIMIT $3
`

// ensureSchema creates the schema once per vector size.
func (s *PostgresIndex) ensureSchema(ctx context.Context, dims int) error {
	s.schemaMu.Lock()
	defer s.schemaMu.Unlock()
	if s.schemaDims == dims {
		return nil
	}

	if _, err := s.pool.Exec(ctx, schemaSQL(dims)); err != nil {
		return fmt.Errorf("failed to initialize vector schema: %w", err)
	}
	s.schemaDims = dims
	return nil
}

// EnsureNamespace registers namespace with dims, or verifies the registered dims.
func (s *PostgresIndex) EnsureNamespace(ctx context.Context, namespace string, dims int) error {
	if err := s.ensureSchema(ctx, dims); err != nil {
		return err
	}

	var existing int
	err := s.pool.QueryRow(ctx, `
		INSERT INTO semantic_namespaces (namespace, dimensions) VALUES ($1, $2)
		ON CONFLICT (namespace) DO UPDATE SET namespace = EXCLUDED.namespace
		RETURNING dimensions
	`, namespace, dims).Scan(&existing)
	if err != nil {
		return fmt.Errorf("failed to create namespace: %w", err)
	}
	if existing != dims {
		return fmt.Errorf("%w: namespace %s has %d dimensions, embedder produces %d", ErrDimensionMismatch, namespace, existing, dims)
	}
	return nil
}

// Upsert stores docs in a single batch.
func (s *PostgresIndex) Upsert(ctx context.Context, namespace string, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}

	query := `
		INSERT INTO semantic_documents
			(id, namespace, kind, client_id, platform, content, metadata, embedding, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			content = EXCLUDED.content,
			metadata = EXCLUDED.metadata,
			embedding = EXCLUDED.embedding
	`

	batch := &pgx.Batch{}
	for _, d := range docs {
		meta, err := json.Marshal(d.Metadata)
		if err != nil {
			return fmt.Errorf("failed to encode metadata: %w", err)
		}
		batch.Queue(query, d.ID, namespace, string(d.Kind), d.ClientID, d.Platform, d.Content,
			meta, pgvector.NewVector(d.Embedding), d.CreatedAt)
	}

	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to save documents: %w", err)
	}
	return nil
}

// Search finds the nearest documents of the namespace with the `<=>` cosine
// distance operator. The scan is exact.
func (s *PostgresIndex) Search(ctx context.Context, namespace string, vector []float32, limit int) ([]ScoredDocument, error) {
	vec := pgvector.NewVector(vector)

	rows, err := s.pool.Query(ctx, searchSQL, namespace, vec, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search documents: %w", err)
	}
	defer rows.Close()

	var results []ScoredDocument
	for rows.Next() {
		var (
			r         ScoredDocument
			kind      string
			meta      []byte
			embedding pgvector.Vector
			createdAt time.Time
			sim       float64
		)
		if err := rows.Scan(&r.ID, &kind, &r.ClientID, &r.Platform, &r.Content, &meta, &embedding, &createdAt, &sim); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		r.Kind = Kind(kind)
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &r.Metadata); err != nil {
				return nil, fmt.Errorf("failed to decode metadata of %s: %w", r.ID, err)
			}
		}
		r.Embedding = embedding.Slice()
		r.CreatedAt = createdAt.UTC()
		r.Similarity = float32(sim)
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating documents: %w", err)
	}

	return results, nil
}

// Close is a no-op; the pool belongs to the caller.
func (s *PostgresIndex) Close() error { return nil }

var _ Index = (*PostgresIndex)(nil)
