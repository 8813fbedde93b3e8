// Package engine assembles the knowledge graph pipeline from the
// environment: the model transport, the storage backends and the graph
// client. Both the API server and the worker build their pipeline here so
// the two processes stay configured identically.
package engine

import (
	"strconv"
	"strings"

	"github.com/knotworks/strata/internal/util"
	"github.com/knotworks/strata/pkg/ai"
	oll "github.com/knotworks/strata/pkg/ai/ollama"
	oai "github.com/knotworks/strata/pkg/ai/openai"
	"github.com/knotworks/strata/pkg/chunk"
	"github.com/knotworks/strata/pkg/cluster"
	"github.com/knotworks/strata/pkg/graph"
	"github.com/knotworks/strata/pkg/store"
	"github.com/knotworks/strata/pkg/store/memory"
	pgstore "github.com/knotworks/strata/pkg/store/pgx"
	"github.com/knotworks/strata/pkg/tokenize"

	"github.com/jackc/pgx/v5/pgxpool"
)

// NewModelClient builds the AI transport selected by AI_ADAPTER, "openai"
// (the default) or "ollama".
func NewModelClient() (ai.ModelClient, error) {
	maxRequests := int64(util.GetEnvNumeric("AI_PARALLEL_REQ", 8))

	if util.GetEnv("AI_ADAPTER") == "ollama" {
		return oll.NewGraphOllamaClient(oll.NewGraphOllamaClientParams{
			EmbeddingModel: util.GetEnv("AI_EMBED_MODEL"),
			CheapModel:     util.GetEnv("AI_CHEAP_MODEL"),
			CapableModel:   util.GetEnv("AI_CAPABLE_MODEL"),

			BaseURL: util.GetEnv("AI_CHAT_URL"),
			ApiKey:  util.GetEnv("AI_CHAT_KEY"),

			MaxConcurrentRequests: maxRequests,
		})
	}

	return oai.NewGraphOpenAIClient(oai.NewGraphOpenAIClientParams{
		EmbeddingModel: util.GetEnv("AI_EMBED_MODEL"),
		CheapModel:     util.GetEnv("AI_CHEAP_MODEL"),
		CapableModel:   util.GetEnv("AI_CAPABLE_MODEL"),

		EmbeddingURL: util.GetEnv("AI_EMBED_URL"),
		EmbeddingKey: util.GetEnv("AI_EMBED_KEY"),
		ChatURL:      util.GetEnv("AI_CHAT_URL"),
		ChatKey:      util.GetEnv("AI_CHAT_KEY"),

		MaxConcurrentRequests: maxRequests,
	}), nil
}

// NewGraphClient wires a graph client over the Postgres-backed stores. When
// conn is nil every backend falls back to memory, which is what the tests
// and local one-shot runs use.
func NewGraphClient(conn *pgxpool.Pool, model ai.ModelClient) (*graph.Client, error) {
	enc, err := tokenize.NewTiktoken(util.GetEnvString("TOKENIZER_ENCODING", "cl100k_base"))
	if err != nil {
		return nil, err
	}

	var (
		graphStore    store.GraphStorage
		entityVectors store.VectorStorage
		chunkVectors  store.VectorStorage
		chunks        store.KVStorage[chunk.Chunk]
		reports       store.KVStorage[store.CommunityReport]
	)
	if conn != nil {
		graphStore = pgstore.NewGraph(conn)
		entityVectors = pgstore.NewVector(conn, model, "entity_vectors")
		chunkVectors = pgstore.NewVector(conn, model, "chunk_vectors")
		chunks = pgstore.NewKV[chunk.Chunk](conn, "chunks")
		reports = pgstore.NewKV[store.CommunityReport](conn, "community_reports")
	} else {
		graphStore = memory.NewGraph()
		entityVectors = memory.NewVector(model)
		chunkVectors = memory.NewVector(model)
		chunks = memory.NewKV[chunk.Chunk]()
		reports = memory.NewKV[store.CommunityReport]()
	}

	clusterer, err := cluster.NewThresholdClusterer(clusterThresholdsFromEnv())
	if err != nil {
		return nil, err
	}

	return graph.NewClient(graph.NewClientParams{
		Encoder: enc,
		Model:   model,

		Graph:         graphStore,
		EntityVectors: entityVectors,
		ChunkVectors:  chunkVectors,
		Chunks:        chunks,
		Reports:       reports,

		Clusterer: clusterer,

		ChunkParams: chunk.Params{
			MaxTokens:     int(util.GetEnvNumeric("CHUNK_MAX_TOKENS", chunk.DefaultMaxTokens)),
			OverlapTokens: int(util.GetEnvNumeric("CHUNK_OVERLAP_TOKENS", chunk.DefaultOverlapTokens)),
		},

		MaxGleaning:      int(util.GetEnvNumeric("GRAPH_MAX_GLEANING", 1)),
		SummaryMaxTokens: int(util.GetEnvNumeric("GRAPH_SUMMARY_MAX_TOKENS", 500)),
		ReportMaxTokens:  int(util.GetEnvNumeric("GRAPH_REPORT_MAX_TOKENS", 12000)),

		CheapModel:   util.GetEnv("AI_CHEAP_MODEL"),
		CapableModel: util.GetEnv("AI_CAPABLE_MODEL"),
	})
}

// CLUSTER_THRESHOLDS is a comma-separated ascending list, e.g. "0.55,0.75".
func clusterThresholdsFromEnv() []float64 {
	raw := util.GetEnv("CLUSTER_THRESHOLDS")
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil
		}
		out = append(out, v)
	}
	return out
}
