package memory

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"time"
)

// SQLiteIndex implements Index on SQLite. Embeddings are stored as
// little-endian float32 blobs and similarity is computed in application
// memory, which suits namespaces of up to a few thousand documents.
type SQLiteIndex struct {
	db *sql.DB
}

// NewSQLiteIndex wraps an open database. The caller owns db.
func NewSQLiteIndex(db *sql.DB) *SQLiteIndex {
	return &SQLiteIndex{db: db}
}

// InitSchema creates the document and namespace tables if they don't exist.
func (s *SQLiteIndex) InitSchema(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS semantic_namespaces (
			namespace TEXT PRIMARY KEY,
			dimensions INTEGER NOT NULL,
			created_at TEXT DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE IF NOT EXISTS semantic_documents (
			id TEXT PRIMARY KEY,
			namespace TEXT NOT NULL,
			kind TEXT NOT NULL,
			client_id TEXT NOT NULL,
			platform TEXT,
			content TEXT NOT NULL,
			metadata TEXT,
			embedding BLOB NOT NULL,
			created_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_semantic_documents_namespace ON semantic_documents(namespace);
	`

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// EnsureNamespace registers namespace with dims, or verifies the registered dims.
func (s *SQLiteIndex) EnsureNamespace(ctx context.Context, namespace string, dims int) error {
	if err := s.InitSchema(ctx); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO semantic_namespaces (namespace, dimensions) VALUES (?, ?) ON CONFLICT(namespace) DO NOTHING`,
		namespace, dims)
	if err != nil {
		return fmt.Errorf("failed to create namespace: %w", err)
	}

	var existing int
	if err := s.db.QueryRowContext(ctx,
		`SELECT dimensions FROM semantic_namespaces WHERE namespace = ?`, namespace).Scan(&existing); err != nil {
		return fmt.Errorf("failed to read namespace: %w", err)
	}
	if existing != dims {
		return fmt.Errorf("%w: namespace %s has %d dimensions, embedder produces %d", ErrDimensionMismatch, namespace, existing, dims)
	}
	return nil
}

// Upsert stores docs in one transaction.
func (s *SQLiteIndex) Upsert(ctx context.Context, namespace string, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT OR REPLACE INTO semantic_documents
			(id, namespace, kind, client_id, platform, content, metadata, embedding, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	for _, d := range docs {
		meta, err := json.Marshal(d.Metadata)
		if err != nil {
			return fmt.Errorf("failed to encode metadata: %w", err)
		}
		_, err = tx.ExecContext(ctx, query,
			d.ID, namespace, string(d.Kind), d.ClientID, d.Platform, d.Content,
			string(meta), encodeVector(d.Embedding), d.CreatedAt.UTC().Format(time.RFC3339Nano))
		if err != nil {
			return fmt.Errorf("failed to save document: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit documents: %w", err)
	}
	return nil
}

// Search loads every embedding of the namespace and ranks by cosine
// similarity in memory.
func (s *SQLiteIndex) Search(ctx context.Context, namespace string, vector []float32, limit int) ([]ScoredDocument, error) {
	query := `
		SELECT id, kind, client_id, platform, content, metadata, embedding, created_at
		FROM semantic_documents
		WHERE namespace = ?
	`

	rows, err := s.db.QueryContext(ctx, query, namespace)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	var results []ScoredDocument
	for rows.Next() {
		var (
			d             Document
			kind          string
			platform      sql.NullString
			meta          sql.NullString
			embeddingBlob []byte
			createdAt     string
		)
		if err := rows.Scan(&d.ID, &kind, &d.ClientID, &platform, &d.Content, &meta, &embeddingBlob, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		d.Kind = Kind(kind)
		d.Platform = platform.String
		if meta.Valid && meta.String != "" {
			if err := json.Unmarshal([]byte(meta.String), &d.Metadata); err != nil {
				return nil, fmt.Errorf("failed to decode metadata of %s: %w", d.ID, err)
			}
		}
		d.CreatedAt, _ = parseTimestamp(createdAt)

		d.Embedding = decodeVector(embeddingBlob)
		if len(d.Embedding) == 0 || len(d.Embedding) != len(vector) {
			continue
		}
		results = append(results, ScoredDocument{Document: d, Similarity: cosineSimilarity(vector, d.Embedding)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating documents: %w", err)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})

	return results[:min(limit, len(results))], nil
}

// Close is a no-op; the database belongs to the caller.
func (s *SQLiteIndex) Close() error { return nil }

// encodeVector converts a float32 slice to a byte slice for storage.
// Each float32 is encoded as 4 bytes in little-endian format.
func encodeVector(v []float32) []byte {
	if v == nil {
		return nil
	}
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// decodeVector converts a byte slice back to a float32 slice.
func decodeVector(b []byte) []float32 {
	if len(b) == 0 || len(b)%4 != 0 {
		return nil
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}

// parseTimestamp parses a SQLite timestamp string to time.Time.
func parseTimestamp(s string) (time.Time, error) {
	formats := []string{
		time.RFC3339Nano,
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
	}

	for _, format := range formats {
		if t, err := time.Parse(format, s); err == nil {
			return t.UTC(), nil
		}
	}

	return time.Time{}, fmt.Errorf("unable to parse timestamp: %s", s)
}

var _ Index = (*SQLiteIndex)(nil)
