package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/knotworks/strata/pkg/store"
)

// Embedder is the slice of the model client the vector index needs.
type Embedder interface {
	GenerateEmbedding(ctx context.Context, input []byte) ([]float32, error)
	GenerateEmbeddings(ctx context.Context, inputs [][]byte) ([][]float32, error)
}

type vectorEntry struct {
	record store.VectorRecord
	vec    []float32
}

// Vector is an in-memory cosine-similarity index. Record content is embedded
// on upsert, queries embed the input text and scan all entries.
type Vector struct {
	embedder Embedder

	mu      sync.RWMutex
	entries map[string]vectorEntry
}

// NewVector returns an empty index backed by the given embedder.
func NewVector(embedder Embedder) *Vector {
	return &Vector{
		embedder: embedder,
		entries:  make(map[string]vectorEntry),
	}
}

func (v *Vector) Upsert(ctx context.Context, records map[string]store.VectorRecord) error {
	if len(records) == 0 {
		return nil
	}

	ids := make([]string, 0, len(records))
	inputs := make([][]byte, 0, len(records))
	for id, rec := range records {
		ids = append(ids, id)
		inputs = append(inputs, []byte(rec.Content))
	}

	vecs, err := v.embedder.GenerateEmbeddings(ctx, inputs)
	if err != nil {
		return fmt.Errorf("failed to embed records: %w", err)
	}
	if len(vecs) != len(ids) {
		return fmt.Errorf("embedding count mismatch: got %d want %d", len(vecs), len(ids))
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	for i, id := range ids {
		v.entries[id] = vectorEntry{record: records[id], vec: vecs[i]}
	}
	return nil
}

func (v *Vector) Query(ctx context.Context, text string, topK int) ([]store.VectorHit, error) {
	if topK <= 0 {
		return nil, nil
	}

	queryVec, err := v.embedder.GenerateEmbedding(ctx, []byte(text))
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	v.mu.RLock()
	defer v.mu.RUnlock()

	hits := make([]store.VectorHit, 0, len(v.entries))
	for id, entry := range v.entries {
		hits = append(hits, store.VectorHit{
			ID:         id,
			EntityName: entry.record.EntityName,
			Score:      cosine(queryVec, entry.vec),
		})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

func cosine(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
