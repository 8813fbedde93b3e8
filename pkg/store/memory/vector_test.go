package memory

import (
	"context"
	"testing"

	"github.com/knotworks/strata/pkg/store"
)

// axisEmbedder maps known texts to fixed unit vectors so similarity
// ordering is fully scripted.
type axisEmbedder struct {
	vectors map[string][]float32
}

func (e *axisEmbedder) GenerateEmbedding(ctx context.Context, input []byte) ([]float32, error) {
	if vec, ok := e.vectors[string(input)]; ok {
		return vec, nil
	}
	return []float32{0, 0, 1}, nil
}

func (e *axisEmbedder) GenerateEmbeddings(ctx context.Context, inputs [][]byte) ([][]float32, error) {
	out := make([][]float32, len(inputs))
	for i, input := range inputs {
		vec, err := e.GenerateEmbedding(ctx, input)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func TestVectorQueryRanksBySimilarity(t *testing.T) {
	t.Parallel()
	embedder := &axisEmbedder{vectors: map[string][]float32{
		"apples":  {1, 0, 0},
		"oranges": {0.8, 0.6, 0},
		"bricks":  {0, 1, 0},
		"fruit":   {1, 0.1, 0},
	}}
	v := NewVector(embedder)
	ctx := context.Background()

	err := v.Upsert(ctx, map[string]store.VectorRecord{
		"r1": {Content: "apples", EntityName: "APPLES"},
		"r2": {Content: "oranges", EntityName: "ORANGES"},
		"r3": {Content: "bricks", EntityName: "BRICKS"},
	})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	hits, err := v.Query(ctx, "fruit", 2)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("hits = %d, want 2", len(hits))
	}
	if hits[0].EntityName != "APPLES" || hits[1].EntityName != "ORANGES" {
		t.Fatalf("hits = %v, want APPLES then ORANGES", hits)
	}
	if hits[0].Score <= hits[1].Score {
		t.Fatalf("scores not descending: %v", hits)
	}

	hits, err = v.Query(ctx, "fruit", 0)
	if err != nil || hits != nil {
		t.Fatalf("Query with topK 0 = %v, %v, want nil, nil", hits, err)
	}
}
