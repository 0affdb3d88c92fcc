package memory

import (
	"strings"
	"testing"
)

func TestPostgresSchema_NoSharedApproximateIndex(t *testing.T) {
	schema := schemaSQL(768)

	if !strings.Contains(schema, "vector(768)") {
		t.Errorf("embedding column not sized: %s", schema)
	}
	if !strings.Contains(schema, "ON semantic_documents(namespace)") {
		t.Error("searches need the namespace index")
	}
	for _, stmt := range strings.Split(schema, ";") {
		s := strings.ToLower(stmt)
		if strings.Contains(s, "create index") && (strings.Contains(s, "hnsw") || strings.Contains(s, "ivfflat")) {
			t.Errorf("approximate index over every namespace: %s", strings.TrimSpace(stmt))
		}
	}
	if !strings.Contains(schema, "DROP INDEX IF EXISTS idx_semantic_documents_embedding") {
		t.Error("an index left by an earlier schema must be dropped")
	}
}

func TestPostgresSearch_FiltersBeforeLimit(t *testing.T) {
	q := strings.Join(strings.Fields(searchSQL), " ")
	where := strings.Index(q, "WHERE namespace = $1")
	order := strings.Index(q, "ORDER BY embedding <=> $2")
	limit := strings.Index(q, "LIMIT $3")
	if where < 0 || order < where || limit < order {
		t.Errorf("unexpected search query: %s", q)
	}
}
