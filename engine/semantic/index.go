// Package semantic owns the searchable corpus: it synthesizes one natural
// language document per sighting, embeds the documents, and answers nearest
// neighbour queries. Two index backends exist behind the same interface, an
// in-process brute-force index and a Qdrant collection.
package semantic

import (
	"context"

	"github.com/sightline-ai/sightline/engine/domain"
)

// Embedder is the external embedding capability. Vectors are comparable by
// cosine-style similarity where higher is more relevant.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Hit is one ranked candidate from an index query.
type Hit struct {
	Record domain.SightingRecord
	Score  float64
}

// Index holds the embedded corpus of sighting documents.
//
// Rebuild replaces the whole corpus; an empty input yields an empty but
// queryable index. Query returns up to k hits ordered by descending score,
// ties broken by corpus insertion order. Locations reports the distinct
// location values observed at the last rebuild, and Count the corpus size.
type Index interface {
	Rebuild(ctx context.Context, records []domain.SightingRecord) error
	Query(ctx context.Context, query string, k int) ([]Hit, error)
	Locations() []string
	Count() int
}
