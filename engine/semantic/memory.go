package semantic

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/sightline-ai/sightline/engine/domain"
)

// embedBatchSize is the max documents per embedding request during rebuild.
const embedBatchSize = 100

// MemoryIndex is an in-process brute-force cosine index. The corpus lives
// behind a single atomic pointer: Rebuild constructs the replacement off to
// the side and publishes it with one swap, so concurrent readers observe
// either the fully-old or fully-new corpus, never a mix.
type MemoryIndex struct {
	embedder Embedder
	logger   *slog.Logger

	rebuildMu sync.Mutex // serializes rebuilds against each other
	corpus    atomic.Pointer[corpus]
}

// corpus is the aligned pair of documents and their embeddings. Index i in
// docs corresponds to index i in vectors and norms.
type corpus struct {
	docs      []indexedDocument
	vectors   [][]float32
	norms     []float64
	locations []string
}

type indexedDocument struct {
	text   string
	record domain.SightingRecord
}

// NewMemoryIndex creates an empty in-memory index.
func NewMemoryIndex(embedder Embedder, logger *slog.Logger) *MemoryIndex {
	if logger == nil {
		logger = slog.Default()
	}
	idx := &MemoryIndex{embedder: embedder, logger: logger}
	idx.corpus.Store(&corpus{})
	return idx
}

// Rebuild replaces the entire corpus with one document per record.
func (m *MemoryIndex) Rebuild(ctx context.Context, records []domain.SightingRecord) error {
	m.rebuildMu.Lock()
	defer m.rebuildMu.Unlock()

	next := &corpus{
		docs:    make([]indexedDocument, len(records)),
		vectors: make([][]float32, 0, len(records)),
		norms:   make([]float64, len(records)),
	}

	texts := make([]string, len(records))
	locSet := make(map[string]bool)
	for i, rec := range records {
		rec = rec.Normalize()
		texts[i] = Describe(rec)
		next.docs[i] = indexedDocument{text: texts[i], record: rec}
		locSet[rec.Location] = true
	}

	for start := 0; start < len(texts); start += embedBatchSize {
		end := min(start+embedBatchSize, len(texts))
		vecs, err := m.embedder.EmbedBatch(ctx, texts[start:end])
		if err != nil {
			return fmt.Errorf("semantic: embed documents [%d:%d]: %w",
				start, end, errors.Join(domain.ErrEmbedderUnavailable, err))
		}
		next.vectors = append(next.vectors, vecs...)
	}
	if len(next.vectors) != len(next.docs) {
		return fmt.Errorf("semantic: embedder returned %d vectors for %d documents",
			len(next.vectors), len(next.docs))
	}
	for i, v := range next.vectors {
		next.norms[i] = norm(v)
	}

	next.locations = make([]string, 0, len(locSet))
	for loc := range locSet {
		next.locations = append(next.locations, loc)
	}
	sort.Strings(next.locations)

	m.corpus.Store(next)
	m.logger.Info("semantic index rebuilt", "records", len(next.docs), "locations", len(next.locations))
	return nil
}

// Query embeds the query text and returns up to k hits ordered by descending
// similarity, ties broken by corpus insertion order. Scores are clamped to
// [0,1].
func (m *MemoryIndex) Query(ctx context.Context, query string, k int) ([]Hit, error) {
	c := m.corpus.Load()
	if len(c.docs) == 0 || k <= 0 {
		return nil, nil
	}

	qv, err := m.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("semantic: embed query: %w",
			errors.Join(domain.ErrEmbedderUnavailable, err))
	}
	qn := norm(qv)

	scores := make([]float64, len(c.vectors))
	for i, v := range c.vectors {
		scores[i] = cosine(qv, qn, v, c.norms[i])
	}

	order := make([]int, len(scores))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] > scores[order[b]]
	})

	if k > len(order) {
		k = len(order)
	}
	hits := make([]Hit, k)
	for i := 0; i < k; i++ {
		j := order[i]
		hits[i] = Hit{Record: c.docs[j].record, Score: scores[j]}
	}
	return hits, nil
}

// Locations returns the distinct location values from the current corpus.
func (m *MemoryIndex) Locations() []string {
	c := m.corpus.Load()
	out := make([]string, len(c.locations))
	copy(out, c.locations)
	return out
}

// Count returns the number of indexed records.
func (m *MemoryIndex) Count() int {
	return len(m.corpus.Load().docs)
}

func norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// cosine computes clamped cosine similarity given precomputed norms.
func cosine(a []float32, an float64, b []float32, bn float64) float64 {
	if an == 0 || bn == 0 {
		return 0
	}
	n := min(len(a), len(b))
	var dot float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
	}
	s := dot / (an * bn)
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}
