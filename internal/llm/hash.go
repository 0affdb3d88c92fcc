package llm

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// HashEmbedder is an offline embedder for development and tests. Every
// token is hashed into one signed bucket, so texts sharing words get
// similar vectors. Output is deterministic and unit length.
type HashEmbedder struct {
	dimensions int
}

// NewHashEmbedder creates a hash embedder producing dims-long vectors.
func NewHashEmbedder(dims int) *HashEmbedder {
	return &HashEmbedder{dimensions: dims}
}

// Embed creates a deterministic embedding from the tokens of text.
func (m *HashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	embedding := make([]float32, m.dimensions)

	tokens := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
	for _, tok := range tokens {
		h := fnv.New64a()
		h.Write([]byte(tok))
		sum := h.Sum64()

		idx := int(sum % uint64(m.dimensions))
		if sum&(1<<63) != 0 {
			embedding[idx]--
		} else {
			embedding[idx]++
		}
	}

	return normalize(embedding), nil
}

// Dimensions returns the embedding size.
func (m *HashEmbedder) Dimensions() int { return m.dimensions }

// normalize converts embedding to unit vector.
func normalize(vec []float32) []float32 {
	var norm float32
	for _, v := range vec {
		norm += v * v
	}

	if norm == 0 {
		return vec
	}

	norm = float32(math.Sqrt(float64(norm)))
	for i := range vec {
		vec[i] /= norm
	}
	return vec
}

var _ Embedder = (*HashEmbedder)(nil)
