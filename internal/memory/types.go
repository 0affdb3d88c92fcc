// Package memory provides the per-client semantic memory of the analyst:
// embedded dataset summaries and past analyses, stored in a vector index and
// recalled with maximal marginal relevance.
package memory

import (
	"context"
	"errors"
	"time"
)

// ErrDimensionMismatch is returned when a namespace already exists with a
// different vector dimensionality.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// Kind classifies a semantic document.
type Kind string

const (
	KindDatasetInfo    Kind = "dataset_info"
	KindDataTypes      Kind = "data_types"
	KindStatistics     Kind = "statistics"
	KindMissingValues  Kind = "missing_values"
	KindDateInfo       Kind = "date_info"
	KindAnalysisRecord Kind = "analysis_record"
)

// SummaryKinds lists the facets written for every freshly built dataset, in
// write order.
var SummaryKinds = []Kind{KindDatasetInfo, KindDataTypes, KindStatistics, KindMissingValues, KindDateInfo}

// Document is one embedded text in a client namespace. Documents are never
// mutated after they are written.
type Document struct {
	ID        string
	Kind      Kind
	ClientID  string
	Platform  string
	Content   string
	Metadata  map[string]string
	CreatedAt time.Time
	Embedding []float32
}

// ScoredDocument is a search candidate with its cosine similarity to the query.
type ScoredDocument struct {
	Document
	Similarity float32
}

// Embedder turns text into vectors of a fixed dimensionality.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}
