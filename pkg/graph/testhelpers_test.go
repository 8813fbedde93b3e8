package graph

import (
	"context"
	"sync"
	"testing"

	"github.com/knotworks/strata/pkg/ai"
	"github.com/knotworks/strata/pkg/chunk"
	"github.com/knotworks/strata/pkg/cluster"
	"github.com/knotworks/strata/pkg/store"
	"github.com/knotworks/strata/pkg/store/memory"
)

// runeEncoder tokenizes one rune per token, which makes token budgets
// readable character budgets in tests.
type runeEncoder struct{}

func (runeEncoder) Encode(text string) []int {
	runes := []rune(text)
	out := make([]int, len(runes))
	for i, r := range runes {
		out[i] = int(r)
	}
	return out
}

func (runeEncoder) Decode(tokens []int) string {
	runes := make([]rune, len(tokens))
	for i, t := range tokens {
		runes[i] = rune(t)
	}
	return string(runes)
}

func (runeEncoder) Count(text string) int {
	return len([]rune(text))
}

// fakeModel scripts the model client. completionFn and formatFn may be nil,
// in which case calls return empty results.
type fakeModel struct {
	mu           sync.Mutex
	completionFn func(prompt string, opts ai.GenerateOptions) (string, error)
	formatFn     func(name, prompt string, out any) error
	prompts      []string
}

func (m *fakeModel) record(prompt string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prompts = append(m.prompts, prompt)
}

func (m *fakeModel) GenerateCompletion(ctx context.Context, prompt string, opts ...ai.GenerateOption) (string, error) {
	m.record(prompt)
	options := ai.GenerateOptions{}
	for _, opt := range opts {
		opt(&options)
	}
	if m.completionFn == nil {
		return "", nil
	}
	return m.completionFn(prompt, options)
}

func (m *fakeModel) GenerateCompletionWithFormat(ctx context.Context, name, description, prompt string, out any, opts ...ai.GenerateOption) error {
	m.record(prompt)
	if m.formatFn == nil {
		return nil
	}
	return m.formatFn(name, prompt, out)
}

func (m *fakeModel) GenerateEmbedding(ctx context.Context, input []byte) ([]float32, error) {
	return []float32{1, 0, 0}, nil
}

func (m *fakeModel) GenerateEmbeddings(ctx context.Context, inputs [][]byte) ([][]float32, error) {
	out := make([][]float32, len(inputs))
	for i := range inputs {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

// stubVectors is a canned vector index: Query returns the fixed hits,
// Upsert captures the records.
type stubVectors struct {
	hits    []store.VectorHit
	upserts map[string]store.VectorRecord
}

func newStubVectors(hits ...store.VectorHit) *stubVectors {
	return &stubVectors{hits: hits, upserts: make(map[string]store.VectorRecord)}
}

func (s *stubVectors) Upsert(ctx context.Context, records map[string]store.VectorRecord) error {
	for id, rec := range records {
		s.upserts[id] = rec
	}
	return nil
}

func (s *stubVectors) Query(ctx context.Context, text string, topK int) ([]store.VectorHit, error) {
	if topK < len(s.hits) {
		return s.hits[:topK], nil
	}
	return s.hits, nil
}

type fakeClusterer struct {
	layers []cluster.Layer
}

func (f *fakeClusterer) BuildLayers(ctx context.Context, entities []cluster.Entity) ([]cluster.Layer, error) {
	return f.layers, nil
}

type testClientEnv struct {
	client        *Client
	model         *fakeModel
	graph         *memory.Graph
	entityVectors *stubVectors
	chunkVectors  *stubVectors
	chunks        *memory.KV[chunk.Chunk]
	reports       *memory.KV[store.CommunityReport]
}

func newTestClient(t *testing.T) *testClientEnv {
	t.Helper()
	env := &testClientEnv{
		model:         &fakeModel{},
		graph:         memory.NewGraph(),
		entityVectors: newStubVectors(),
		chunkVectors:  newStubVectors(),
		chunks:        memory.NewKV[chunk.Chunk](),
		reports:       memory.NewKV[store.CommunityReport](),
	}
	client, err := NewClient(NewClientParams{
		Encoder:       runeEncoder{},
		Model:         env.model,
		Graph:         env.graph,
		EntityVectors: env.entityVectors,
		ChunkVectors:  env.chunkVectors,
		Chunks:        env.chunks,
		Reports:       env.reports,
		CheapModel:    "cheap",
		CapableModel:  "capable",
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	// Rune tokens make the default summary threshold trip on any realistic
	// description, so tests opt in explicitly.
	client.summaryMaxTokens = 1 << 20
	env.client = client
	return env
}
